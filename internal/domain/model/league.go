package model

import "fmt"

// Rules are the fixed parameters of a league's auction.
type Rules struct {
	Teams      []string `json:"teams"`
	Budget     int      `json:"budget"`
	RosterSize int      `json:"roster_size"`
	MinBid     int      `json:"min_bid"`
}

// DefaultRules returns n teams named team_01..team_NN with a $500 budget,
// 24 roster spots and a $1 minimum bid.
func DefaultRules(n int) Rules {
	teams := make([]string, n)
	for i := range teams {
		teams[i] = fmt.Sprintf("team_%02d", i+1)
	}
	return Rules{Teams: teams, Budget: 500, RosterSize: 24, MinBid: 1}
}

// Validate rejects rules no draft can be run under.
func (r Rules) Validate() error {
	if len(r.Teams) == 0 {
		return fmt.Errorf("%w: no teams", ErrInvalidRules)
	}
	seen := make(map[string]struct{}, len(r.Teams))
	for _, id := range r.Teams {
		if id == "" {
			return fmt.Errorf("%w: empty team id", ErrInvalidRules)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate team id %q", ErrInvalidRules, id)
		}
		seen[id] = struct{}{}
	}
	switch {
	case r.Budget <= 0:
		return fmt.Errorf("%w: budget %d must be positive", ErrInvalidRules, r.Budget)
	case r.RosterSize <= 0:
		return fmt.Errorf("%w: roster size %d must be positive", ErrInvalidRules, r.RosterSize)
	case r.MinBid < 0:
		return fmt.Errorf("%w: negative minimum bid %d", ErrInvalidRules, r.MinBid)
	case r.MinBid*r.RosterSize > r.Budget:
		return fmt.Errorf("%w: budget %d cannot fill %d slots at $%d", ErrInvalidRules, r.Budget, r.RosterSize, r.MinBid)
	}
	return nil
}

// TeamState is one team's position in the draft.
type TeamState struct {
	TeamID               string       `json:"team_id"`
	BudgetRemaining      int          `json:"budget_remaining"`
	RosterSlotsRemaining int          `json:"roster_slots_remaining"`
	Roster               []DraftEvent `json:"roster"`
}

// Spent returns the dollars paid so far.
func (t TeamState) Spent() int {
	total := 0
	for _, e := range t.Roster {
		total += e.Price
	}
	return total
}

// MaxBid is the most the team can bid while still filling every remaining
// slot at the minimum bid.
func (t TeamState) MaxBid(minBid int) int {
	if t.RosterSlotsRemaining <= 0 {
		return 0
	}
	return t.BudgetRemaining - (t.RosterSlotsRemaining-1)*minBid
}

// LeagueState is the authoritative league position derived from the event
// log. Values are replaced, never modified in place.
type LeagueState struct {
	Rules                Rules                `json:"rules"`
	Teams                map[string]TeamState `json:"teams"`
	Drafted              map[string]int       `json:"drafted"`
	LastPick             int                  `json:"last_pick"`
	AvailableBudget      int                  `json:"available_budget"`
	AvailableRosterSpots int                  `json:"available_roster_spots"`
}

// IsDrafted reports whether playerID has been picked.
func (s LeagueState) IsDrafted(playerID string) bool {
	_, ok := s.Drafted[playerID]
	return ok
}

// Complete reports whether every roster spot is filled.
func (s LeagueState) Complete() bool {
	return len(s.Teams) > 0 && s.AvailableRosterSpots == 0
}
