// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// SessionLayout formats the default session id from the draft start time.
const SessionLayout = "20060102_150405"

// DraftID identifies one draft instance: a league plus the session it runs in.
type DraftID struct {
	LeagueID  string `json:"league_id"`
	SessionID string `json:"session_id"`
}

// NewSessionID returns the timestamp session id for a draft started at t.
func NewSessionID(t time.Time) string {
	return t.UTC().Format(SessionLayout)
}

// String renders the id as "<league>_<session>", or just the league when the
// session is empty.
func (d DraftID) String() string {
	if d.SessionID == "" {
		return d.LeagueID
	}
	return d.LeagueID + "_" + d.SessionID
}

// Validate rejects ids that cannot be used as file names.
func (d DraftID) Validate() error {
	if strings.TrimSpace(d.LeagueID) == "" {
		return fmt.Errorf("%w: empty league id", ErrInvalidDraftID)
	}
	for _, part := range []string{d.LeagueID, d.SessionID} {
		if strings.ContainsAny(part, `/\ `) || strings.Contains(part, "..") {
			return fmt.Errorf("%w: %q contains a path separator or space", ErrInvalidDraftID, part)
		}
	}
	return nil
}

// DraftEvent is one recorded pick. Values are never mutated after they are
// appended to the event log.
type DraftEvent struct {
	PickNumber int       `json:"pick_number"`
	PlayerID   string    `json:"player_id"`
	PlayerName string    `json:"player_name,omitempty"`
	TeamID     string    `json:"team_id"`
	Price      int       `json:"price"`
	Timestamp  time.Time `json:"timestamp"`
}

// Equal reports whether two events describe the same pick.
func (e DraftEvent) Equal(o DraftEvent) bool {
	return e.PickNumber == o.PickNumber &&
		e.PlayerID == o.PlayerID &&
		e.PlayerName == o.PlayerName &&
		e.TeamID == o.TeamID &&
		e.Price == o.Price &&
		e.Timestamp.Equal(o.Timestamp)
}

// Validate checks the fields that do not depend on league state.
func (e DraftEvent) Validate() error {
	switch {
	case e.PickNumber < 1:
		return fmt.Errorf("%w: pick number %d < 1", ErrInvalidEvent, e.PickNumber)
	case strings.TrimSpace(e.PlayerID) == "":
		return fmt.Errorf("%w: pick %d has no player id", ErrInvalidEvent, e.PickNumber)
	case strings.TrimSpace(e.TeamID) == "":
		return fmt.Errorf("%w: pick %d has no team id", ErrInvalidEvent, e.PickNumber)
	case e.Price < 0:
		return fmt.Errorf("%w: pick %d has negative price %d", ErrInvalidEvent, e.PickNumber, e.Price)
	}
	return nil
}

func (e DraftEvent) String() string {
	return fmt.Sprintf("pick %d: %s -> %s for $%d", e.PickNumber, e.PlayerID, e.TeamID, e.Price)
}

// PickReport is a pick as observed by a draft source. Sources may report the
// same pick many times.
type PickReport struct {
	PickNumber int
	PlayerID   string
	PlayerName string
	TeamID     string
	Price      int
	Timestamp  time.Time
}

// Event converts the report into a draft event with a UTC timestamp.
func (r PickReport) Event() DraftEvent {
	return DraftEvent{
		PickNumber: r.PickNumber,
		PlayerID:   r.PlayerID,
		PlayerName: r.PlayerName,
		TeamID:     r.TeamID,
		Price:      r.Price,
		Timestamp:  r.Timestamp.UTC(),
	}
}
