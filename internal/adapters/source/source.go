// Package source adapts external draft providers to a pick list.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/okian/livedraft/internal/domain/model"
)

// Source returns every pick observed so far for a draft. The list may repeat
// picks already seen and may arrive in any order.
type Source interface {
	Picks(ctx context.Context, id model.DraftID) ([]model.PickReport, error)
}

// WirePick is one pick in the draft results document.
type WirePick struct {
	Pick       int       `json:"pick"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName,omitempty"`
	TeamID     string    `json:"teamId"`
	Bid        int       `json:"bid"`
	Time       time.Time `json:"time"`
}

// Results is the draft results document served by the provider.
type Results struct {
	DraftPicks []WirePick `json:"draftPicks"`
}

// Decode reads a results document.
func Decode(r io.Reader) ([]model.PickReport, error) {
	var res Results
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	out := make([]model.PickReport, 0, len(res.DraftPicks))
	for _, p := range res.DraftPicks {
		out = append(out, model.PickReport{
			PickNumber: p.Pick,
			PlayerID:   p.PlayerID,
			PlayerName: p.PlayerName,
			TeamID:     p.TeamID,
			Price:      p.Bid,
			Timestamp:  p.Time,
		})
	}
	return out, nil
}

// FromEvents renders events as a results document.
func FromEvents(events []model.DraftEvent) Results {
	res := Results{DraftPicks: make([]WirePick, 0, len(events))}
	for _, e := range events {
		res.DraftPicks = append(res.DraftPicks, WirePick{
			Pick:       e.PickNumber,
			PlayerID:   e.PlayerID,
			PlayerName: e.PlayerName,
			TeamID:     e.TeamID,
			Bid:        e.Price,
			Time:       e.Timestamp,
		})
	}
	return res
}
