// Package cache holds the tracker's local copy of the current participant.
// Distances are only ever written by the typed updates below; nothing in
// the client computes them.
package cache

import (
	"sync"

	"movetracker/internal/participant"
)

// Observer is called with a copy of the participant each time a snapshot
// replaces the cached one.
type Observer func(participant.Participant)

type Cache struct {
	mu        sync.RWMutex
	current   *participant.Participant
	observers []Observer
}

func New() *Cache {
	return &Cache{}
}

// Observe registers fn for future Replace calls. If a participant is
// already cached fn is called with it immediately.
func (c *Cache) Observe(fn Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	var snapshot *participant.Participant
	if c.current != nil {
		p := *c.current
		snapshot = &p
	}
	c.mu.Unlock()

	if snapshot != nil {
		fn(*snapshot)
	}
}

// Replace stores a full snapshot, typically the result of the current
// participant query, and notifies observers outside the lock.
func (c *Cache) Replace(p participant.Participant) {
	c.mu.Lock()
	c.current = &p
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(p)
	}
}

// Snapshot returns a copy of the cached participant.
func (c *Cache) Snapshot() (participant.Participant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return participant.Participant{}, false
	}
	return *c.current, true
}

// UpdateParticipantDistance merges a mutation echo. It reports false when
// no participant is cached.
func (c *Cache) UpdateParticipantDistance(distance float64, state participant.State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return false
	}
	c.current.Distance = distance
	c.current.State = state
	return true
}

// UpdateGroupDistance merges a group delivery. Deliveries for a group other
// than the participant's are ignored.
func (c *Cache) UpdateGroupDistance(groupID string, distance float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.Group.ID != groupID {
		return false
	}
	c.current.Group.Distance = distance
	return true
}

// UpdateEventDistance merges an event delivery.
func (c *Cache) UpdateEventDistance(eventID string, distance float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.Event.ID != eventID {
		return false
	}
	c.current.Event.Distance = distance
	return true
}
