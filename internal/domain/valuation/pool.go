package valuation

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/okian/livedraft/internal/domain/model"
)

// Player is one entry of the projected player pool.
type Player struct {
	PlayerID  string   `json:"player_id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Positions []string `json:"positions,omitempty"`
	Value     float64  `json:"value"`
}

// ParsePool decodes a JSON array of players and validates it.
func ParsePool(r io.Reader) ([]Player, error) {
	var players []Player
	if err := json.NewDecoder(r).Decode(&players); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPool, err)
	}
	if len(players) == 0 {
		return nil, ErrEmptyPool
	}
	seen := make(map[string]struct{}, len(players))
	for i, p := range players {
		if p.PlayerID == "" {
			return nil, fmt.Errorf("%w: entry %d has no player_id", ErrInvalidPool, i)
		}
		if _, dup := seen[p.PlayerID]; dup {
			return nil, fmt.Errorf("%w: duplicate player_id %q", ErrInvalidPool, p.PlayerID)
		}
		seen[p.PlayerID] = struct{}{}
		if p.Type != model.PlayerHitter && p.Type != model.PlayerPitcher {
			return nil, fmt.Errorf("%w: player %q has type %q", ErrInvalidPool, p.PlayerID, p.Type)
		}
	}
	return players, nil
}

// LoadPool reads a player pool file.
func LoadPool(path string) ([]Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	defer f.Close()
	return ParsePool(f)
}
