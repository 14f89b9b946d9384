package simulate

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/internal/domain/valuation"
)

// Constants for scenario generation.
const (
	poolOversize   = 1.25
	hittersPerTeam = 13
	rosterCycle    = 24
	topValue       = 45.0
	valueFloor     = 1.0
	valueJitter    = 2.0
	skipWindow     = 4
	priceJitter    = 5
	pickInterval   = 45 * time.Second
)

var (
	hitterPositions  = []string{"C", "1B", "2B", "3B", "SS", "OF", "OF", "OF"}
	pitcherPositions = []string{"SP", "SP", "RP"}
	draftStart       = time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)
)

// Scenario is a generated league: its rules, player pool and a valid
// sequence of picks.
type Scenario struct {
	Rules  model.Rules
	Pool   []valuation.Player
	Events []model.DraftEvent
}

// Generate builds a deterministic scenario with the given number of picks.
// The same rules, picks and seed always produce the same scenario, and every
// event applies cleanly in order.
func Generate(rules model.Rules, picks int, seed uint64) (Scenario, error) {
	if err := rules.Validate(); err != nil {
		return Scenario{}, err
	}
	slots := len(rules.Teams) * rules.RosterSize
	if picks < 0 || picks > slots {
		return Scenario{}, fmt.Errorf("picks %d outside [0, %d]", picks, slots)
	}

	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // deterministic scenarios
	pool := generatePool(r, int(math.Ceil(float64(slots)*poolOversize)))

	budget := make(map[string]int, len(rules.Teams))
	open := make(map[string]int, len(rules.Teams))
	for _, id := range rules.Teams {
		budget[id] = rules.Budget
		open[id] = rules.RosterSize
	}

	remaining := slices.Clone(pool)
	events := make([]model.DraftEvent, 0, picks)
	for n := 1; n <= picks; n++ {
		teams := make([]string, 0, len(open))
		for _, id := range rules.Teams {
			if open[id] > 0 {
				teams = append(teams, id)
			}
		}
		team := teams[r.IntN(len(teams))]

		idx := min(r.IntN(skipWindow), len(remaining)-1)
		player := remaining[idx]
		remaining = slices.Delete(remaining, idx, idx+1)

		maxBid := budget[team] - (open[team]-1)*rules.MinBid
		price := int(math.Round(player.Value)) + r.IntN(priceJitter) - priceJitter/2
		price = min(max(price, rules.MinBid), maxBid)

		budget[team] -= price
		open[team]--
		events = append(events, model.DraftEvent{
			PickNumber: n,
			PlayerID:   player.PlayerID,
			PlayerName: player.Name,
			TeamID:     team,
			Price:      price,
			Timestamp:  draftStart.Add(time.Duration(n-1) * pickInterval),
		})
	}

	return Scenario{Rules: rules, Pool: pool, Events: events}, nil
}

// generatePool returns n players sorted by value.
func generatePool(r *rand.Rand, n int) []valuation.Player {
	pool := make([]valuation.Player, n)
	decay := math.Max(float64(n)/4, 1)
	for i := range pool {
		p := valuation.Player{
			PlayerID: fmt.Sprintf("p%04d", i+1),
			Name:     fmt.Sprintf("Player %d", i+1),
			Value:    math.Round((topValue*math.Exp(-float64(i)/decay)+valueFloor+r.Float64()*valueJitter)*100) / 100,
		}
		if i%rosterCycle < hittersPerTeam {
			p.Type = model.PlayerHitter
			p.Positions = []string{hitterPositions[i%len(hitterPositions)]}
		} else {
			p.Type = model.PlayerPitcher
			p.Positions = []string{pitcherPositions[i%len(pitcherPositions)]}
		}
		pool[i] = p
	}
	slices.SortFunc(pool, func(a, b valuation.Player) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return strings.Compare(a.PlayerID, b.PlayerID)
	})
	return pool
}
