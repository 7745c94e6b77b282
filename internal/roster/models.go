package roster

import "movetracker/internal/participant"

// Registration is returned when a participant joins a group. Token is the
// bearer token the tracker agent authenticates with.
type Registration struct {
	Participant participant.Participant `json:"participant"`
	Token       string                  `json:"token"`
}

// Standings lists an event's groups by distance, furthest first.
type Standings struct {
	Event  participant.Event   `json:"event"`
	Groups []participant.Group `json:"groups"`
}

// GroupStandings lists a group's participants by distance, furthest first.
type GroupStandings struct {
	Group        participant.Group         `json:"group"`
	Participants []participant.Participant `json:"participants"`
}
