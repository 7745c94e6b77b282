// Package roster manages the events, groups and participants that the
// tracking authority accumulates distance for.
package roster

import (
	"context"
	"errors"
	"fmt"

	"movetracker/internal/auth"
	"movetracker/internal/db"
	"movetracker/internal/participant"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("not found")

type Service struct {
	db     db.Querier
	issuer *auth.Issuer
}

func NewService(db db.Querier, issuer *auth.Issuer) *Service {
	return &Service{db: db, issuer: issuer}
}

func (s *Service) CreateEvent(ctx context.Context, name string) (participant.Event, error) {
	ev := participant.Event{ID: uuid.NewString(), Name: name}
	_, err := s.db.Exec(ctx, `
		INSERT INTO events (id, name)
		VALUES ($1,$2)
	`, ev.ID, ev.Name)
	if err != nil {
		return participant.Event{}, err
	}
	return ev, nil
}

func (s *Service) CreateGroup(ctx context.Context, eventID, name string) (participant.Group, error) {
	if _, err := s.event(ctx, eventID); err != nil {
		return participant.Group{}, err
	}
	g := participant.Group{ID: uuid.NewString(), Name: name}
	_, err := s.db.Exec(ctx, `
		INSERT INTO groups (id, event_id, name)
		VALUES ($1,$2,$3)
	`, g.ID, eventID, g.Name)
	if err != nil {
		return participant.Group{}, err
	}
	return g, nil
}

// Register adds a participant to groupID, and so to the group's event, and
// issues its tracker token.
func (s *Service) Register(ctx context.Context, username, groupID string) (Registration, error) {
	row := s.db.QueryRow(ctx, `
		SELECT g.id, g.name, g.distance, e.id, e.name, e.distance
		FROM groups g JOIN events e ON e.id = g.event_id
		WHERE g.id=$1
	`, groupID)
	p := participant.Participant{ID: uuid.NewString(), Username: username, State: participant.StateIdle}
	if err := row.Scan(&p.Group.ID, &p.Group.Name, &p.Group.Distance, &p.Event.ID, &p.Event.Name, &p.Event.Distance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Registration{}, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
		}
		return Registration{}, err
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO participants (id, username, group_id, event_id, state)
		VALUES ($1,$2,$3,$4,$5)
	`, p.ID, p.Username, p.Group.ID, p.Event.ID, string(p.State))
	if err != nil {
		return Registration{}, err
	}

	token, err := s.issuer.Issue(p.ID, auth.DefaultTokenTTL)
	if err != nil {
		return Registration{}, err
	}
	return Registration{Participant: p, Token: token}, nil
}

func (s *Service) EventStandings(ctx context.Context, eventID string) (Standings, error) {
	ev, err := s.event(ctx, eventID)
	if err != nil {
		return Standings{}, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, name, distance
		FROM groups WHERE event_id=$1
		ORDER BY distance DESC, name
	`, eventID)
	if err != nil {
		return Standings{}, err
	}
	defer rows.Close()

	out := Standings{Event: ev, Groups: []participant.Group{}}
	for rows.Next() {
		var g participant.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Distance); err != nil {
			return Standings{}, err
		}
		out.Groups = append(out.Groups, g)
	}
	return out, rows.Err()
}

func (s *Service) GroupStandings(ctx context.Context, groupID string) (GroupStandings, error) {
	var g participant.Group
	row := s.db.QueryRow(ctx, `SELECT id, name, distance FROM groups WHERE id=$1`, groupID)
	if err := row.Scan(&g.ID, &g.Name, &g.Distance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GroupStandings{}, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
		}
		return GroupStandings{}, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, username, distance, state
		FROM participants WHERE group_id=$1
		ORDER BY distance DESC, username
	`, groupID)
	if err != nil {
		return GroupStandings{}, err
	}
	defer rows.Close()

	out := GroupStandings{Group: g, Participants: []participant.Participant{}}
	for rows.Next() {
		var p participant.Participant
		var state string
		if err := rows.Scan(&p.ID, &p.Username, &p.Distance, &state); err != nil {
			return GroupStandings{}, err
		}
		p.State = participant.State(state)
		p.Group = g
		out.Participants = append(out.Participants, p)
	}
	return out, rows.Err()
}

func (s *Service) event(ctx context.Context, id string) (participant.Event, error) {
	var ev participant.Event
	row := s.db.QueryRow(ctx, `SELECT id, name, distance FROM events WHERE id=$1`, id)
	if err := row.Scan(&ev.ID, &ev.Name, &ev.Distance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return participant.Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
		}
		return participant.Event{}, err
	}
	return ev, nil
}
