// Package fanout keeps the tracker subscribed to the group and event topics
// of the current participant and merges pushed distances into the cache.
package fanout

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"movetracker/internal/participant"
	"movetracker/internal/platform/metrics"
)

var ErrMalformedDelivery = errors.New("malformed delivery")

type InterestState int

const (
	Unsubscribed InterestState = iota
	Subscribing
	Subscribed
)

func (s InterestState) String() string {
	switch s {
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	default:
		return "unsubscribed"
	}
}

// Transport is the connection subscriptions are carried over. *Link
// implements it.
type Transport interface {
	Send(f participant.Frame) error
	OnFrame(fn func(participant.Frame))
	OnConnect(fn func())
}

// Sink receives merged aggregate distances.
type Sink interface {
	UpdateGroupDistance(groupID string, distance float64) bool
	UpdateEventDistance(eventID string, distance float64) bool
}

type Subscriptions struct {
	transport Transport
	sink      Sink
	log       *slog.Logger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	interests map[string]InterestState
}

func NewSubscriptions(t Transport, sink Sink, log *slog.Logger, m *metrics.Metrics) *Subscriptions {
	if log == nil {
		log = slog.Default()
	}
	s := &Subscriptions{
		transport: t,
		sink:      sink,
		log:       log,
		metrics:   m,
		interests: make(map[string]InterestState),
	}
	t.OnFrame(s.Handle)
	t.OnConnect(s.Resubscribe)
	return s
}

// Ensure subscribes to the participant's group and event topics. Topics
// already known are left alone, so it is safe to call on every snapshot.
func (s *Subscriptions) Ensure(p participant.Participant) {
	var fresh []string
	s.mu.Lock()
	for _, topic := range topicsFor(p) {
		if _, ok := s.interests[topic]; ok {
			continue
		}
		s.interests[topic] = Subscribing
		fresh = append(fresh, topic)
	}
	s.mu.Unlock()

	for _, topic := range fresh {
		s.send(topic)
	}
}

// Resubscribe sends a subscribe frame for every known interest. The link
// calls it after each dial since the server forgets subscriptions with the
// connection.
func (s *Subscriptions) Resubscribe() {
	s.mu.Lock()
	topics := make([]string, 0, len(s.interests))
	for topic := range s.interests {
		s.interests[topic] = Subscribing
		topics = append(topics, topic)
	}
	s.mu.Unlock()

	sort.Strings(topics)
	for _, topic := range topics {
		s.send(topic)
	}
}

func (s *Subscriptions) State(topic string) InterestState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interests[topic]
}

// Handle processes one frame from the transport.
func (s *Subscriptions) Handle(f participant.Frame) {
	switch f.Type {
	case participant.FrameAck:
		s.mu.Lock()
		if s.interests[f.Topic] == Subscribing {
			s.interests[f.Topic] = Subscribed
		}
		s.mu.Unlock()
	case participant.FrameData:
		if err := s.merge(f); err != nil {
			s.metrics.IncDeliveriesDropped()
			s.log.Debug("delivery dropped", "topic", f.Topic, "err", err)
		}
	case participant.FrameKeepalive:
	default:
		s.log.Debug("unknown frame type", "type", f.Type)
	}
}

func (s *Subscriptions) merge(f participant.Frame) error {
	kind, id, ok := participant.ParseTopic(f.Topic)
	if !ok {
		return fmt.Errorf("%w: bad topic %q", ErrMalformedDelivery, f.Topic)
	}
	if s.State(f.Topic) == Unsubscribed {
		return fmt.Errorf("%w: not subscribed to %q", ErrMalformedDelivery, f.Topic)
	}

	var update participant.DistanceUpdate
	if len(f.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedDelivery)
	}
	if err := json.Unmarshal(f.Payload, &update); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDelivery, err)
	}
	if update.Distance == nil {
		return fmt.Errorf("%w: no distance", ErrMalformedDelivery)
	}

	switch kind {
	case participant.KindGroup:
		s.sink.UpdateGroupDistance(id, *update.Distance)
	case participant.KindEvent:
		s.sink.UpdateEventDistance(id, *update.Distance)
	}
	s.metrics.IncDeliveriesMerged(string(kind))
	return nil
}

func (s *Subscriptions) send(topic string) {
	err := s.transport.Send(participant.Frame{Type: participant.FrameSubscribe, Topic: topic})
	if err != nil {
		// stays Subscribing; Resubscribe retries on the next connect
		s.log.Debug("subscribe deferred", "topic", topic, "err", err)
	}
}

func topicsFor(p participant.Participant) []string {
	var topics []string
	if p.Group.ID != "" {
		topics = append(topics, participant.Topic(participant.KindGroup, p.Group.ID))
	}
	if p.Event.ID != "" {
		topics = append(topics, participant.Topic(participant.KindEvent, p.Event.ID))
	}
	return topics
}
