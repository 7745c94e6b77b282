package participant

import "strings"

// State is the authority's view of whether a participant is moving.
type State string

const (
	StateIdle   State = "IDLE"
	StateMoving State = "MOVING"
)

type Group struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

type Event struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// Participant is the snapshot returned by the current-participant query.
// Distances are kilometres computed by the authority.
type Participant struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Distance float64 `json:"distance"`
	State    State   `json:"state"`
	Group    Group   `json:"group"`
	Event    Event   `json:"event"`
}

type MoveRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type MoveResponse struct {
	Distance float64 `json:"distance"`
	State    State   `json:"state"`
}

// DistanceUpdate is the payload published on a group or event topic.
// Distance is nil for keepalives and malformed frames.
type DistanceUpdate struct {
	Distance *float64 `json:"distance"`
}

// Kind selects which aggregate a topic refers to.
type Kind string

const (
	KindGroup Kind = "group"
	KindEvent Kind = "event"
)

// Topic returns the fan-out topic name for an aggregate, e.g. "group:g-1".
func Topic(kind Kind, id string) string {
	return string(kind) + ":" + id
}

// ParseTopic splits a topic into its kind and id.
func ParseTopic(topic string) (Kind, string, bool) {
	kind, id, ok := strings.Cut(topic, ":")
	if !ok || id == "" {
		return "", "", false
	}
	switch Kind(kind) {
	case KindGroup, KindEvent:
		return Kind(kind), id, true
	}
	return "", "", false
}
