package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"movetracker/internal/db"
	"movetracker/internal/participant"
	"movetracker/internal/platform/metrics"
	"movetracker/internal/shared/geo"

	"github.com/jackc/pgx/v5"
)

var ErrParticipantNotFound = errors.New("participant not found")

// Publisher receives aggregate distances after a move commits.
type Publisher interface {
	PublishDistance(kind participant.Kind, id string, distance float64)
}

// Publishers sends each update to every publisher in order.
type Publishers []Publisher

func (ps Publishers) PublishDistance(kind participant.Kind, id string, distance float64) {
	for _, p := range ps {
		p.PublishDistance(kind, id, distance)
	}
}

// OrderedPublisher drops aggregate updates that are not larger than the last
// one published for the same topic. Totals only grow, so a smaller value is a
// stale publish that lost a race with a later commit.
type OrderedPublisher struct {
	next Publisher

	mu     sync.Mutex
	topics map[string]*topicGuard
}

type topicGuard struct {
	mu   sync.Mutex
	last float64
}

func NewOrderedPublisher(next Publisher) *OrderedPublisher {
	return &OrderedPublisher{next: next, topics: make(map[string]*topicGuard)}
}

func (o *OrderedPublisher) PublishDistance(kind participant.Kind, id string, distance float64) {
	key := string(kind) + ":" + id

	o.mu.Lock()
	g, ok := o.topics[key]
	if !ok {
		g = &topicGuard{last: -1}
		o.topics[key] = g
	}
	o.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if distance <= g.last {
		return
	}
	g.last = distance
	o.next.PublishDistance(kind, id, distance)
}

// Service is the distance authority: it turns reported positions into
// cumulative distances for the participant, its group and its event.
type Service struct {
	db      db.TxQuerier
	hub     Publisher
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewService(db db.TxQuerier, hub Publisher, log *slog.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	if hub != nil {
		if _, ok := hub.(*OrderedPublisher); !ok {
			hub = NewOrderedPublisher(hub)
		}
	}
	return &Service{db: db, hub: hub, log: log, metrics: m}
}

type moveResult struct {
	response      participant.MoveResponse
	delta         float64
	groupID       string
	eventID       string
	groupDistance float64
	eventDistance float64
}

// Move records a new position for participantID and returns the updated
// cumulative distance. Group and event totals advance by the same delta and
// are published once the transaction commits. A move that covers no distance
// leaves the participant IDLE.
func (s *Service) Move(ctx context.Context, participantID string, req participant.MoveRequest) (participant.MoveResponse, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.metrics.IncMoveErrors()
		return participant.MoveResponse{}, err
	}

	res, err := s.applyMove(ctx, tx, participantID, req)
	if err != nil {
		_ = tx.Rollback(ctx)
		s.metrics.IncMoveErrors()
		return participant.MoveResponse{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		s.metrics.IncMoveErrors()
		return participant.MoveResponse{}, err
	}
	s.metrics.IncMoves()

	if res.delta > 0 && s.hub != nil {
		s.hub.PublishDistance(participant.KindGroup, res.groupID, res.groupDistance)
		s.hub.PublishDistance(participant.KindEvent, res.eventID, res.eventDistance)
	}
	s.log.Debug("move applied",
		"participant_id", participantID,
		"delta_km", res.delta,
		"distance_km", res.response.Distance,
	)
	return res.response, nil
}

func (s *Service) applyMove(ctx context.Context, tx pgx.Tx, participantID string, req participant.MoveRequest) (moveResult, error) {
	var res moveResult
	var lastLat, lastLng *float64
	err := tx.QueryRow(ctx, `
		SELECT last_latitude, last_longitude, group_id, event_id
		FROM participants WHERE id=$1
		FOR UPDATE
	`, participantID).Scan(&lastLat, &lastLng, &res.groupID, &res.eventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return res, ErrParticipantNotFound
	}
	if err != nil {
		return res, err
	}

	res.delta = geo.Distance(lastLat, lastLng, req.Latitude, req.Longitude)
	next := participant.StateIdle
	if res.delta > 0 {
		next = participant.StateMoving
	}

	var state string
	err = tx.QueryRow(ctx, `
		UPDATE participants
		SET distance = distance + $2,
		    state = $3,
		    last_latitude = COALESCE($4, last_latitude),
		    last_longitude = COALESCE($5, last_longitude),
		    last_moved_at = now()
		WHERE id=$1
		RETURNING distance, state
	`, participantID, res.delta, string(next), req.Latitude, req.Longitude).Scan(&res.response.Distance, &state)
	if err != nil {
		return res, err
	}
	res.response.State = participant.State(state)

	if res.delta == 0 {
		return res, nil
	}

	if err := tx.QueryRow(ctx, `
		UPDATE groups SET distance = distance + $2 WHERE id=$1 RETURNING distance
	`, res.groupID, res.delta).Scan(&res.groupDistance); err != nil {
		return res, fmt.Errorf("update group %s: %w", res.groupID, err)
	}
	if err := tx.QueryRow(ctx, `
		UPDATE events SET distance = distance + $2 WHERE id=$1 RETURNING distance
	`, res.eventID, res.delta).Scan(&res.eventDistance); err != nil {
		return res, fmt.Errorf("update event %s: %w", res.eventID, err)
	}
	return res, nil
}

// Current returns the participant snapshot with its group and event.
func (s *Service) Current(ctx context.Context, participantID string) (participant.Participant, error) {
	var p participant.Participant
	var state string
	err := s.db.QueryRow(ctx, `
		SELECT p.id, p.username, p.distance, p.state,
		       g.id, g.name, g.distance,
		       e.id, e.name, e.distance
		FROM participants p
		JOIN groups g ON g.id = p.group_id
		JOIN events e ON e.id = p.event_id
		WHERE p.id=$1
	`, participantID).Scan(
		&p.ID, &p.Username, &p.Distance, &state,
		&p.Group.ID, &p.Group.Name, &p.Group.Distance,
		&p.Event.ID, &p.Event.Name, &p.Event.Distance,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return participant.Participant{}, ErrParticipantNotFound
	}
	if err != nil {
		return participant.Participant{}, err
	}
	p.State = participant.State(state)
	return p, nil
}
