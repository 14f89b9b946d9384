package model

import "time"

// Player types used by the allocator.
const (
	PlayerHitter  = "hitter"
	PlayerPitcher = "pitcher"
)

// PlayerValuation is the dollar value of one undrafted player.
type PlayerValuation struct {
	PlayerID     string   `json:"player_id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Positions    []string `json:"positions,omitempty"`
	Value        float64  `json:"value"`
	AuctionValue int      `json:"auction_value"`
	Rank         int      `json:"rank"`
}

// TeamSummary condenses a team's draft position.
type TeamSummary struct {
	TeamID          string `json:"team_id"`
	Picks           int    `json:"picks"`
	Spent           int    `json:"spent"`
	BudgetRemaining int    `json:"budget_remaining"`
	SlotsRemaining  int    `json:"slots_remaining"`
	MaxBid          int    `json:"max_bid"`
}

// ValuationSet is the recompute output for one pick number.
type ValuationSet struct {
	DraftID         string            `json:"draft_id"`
	LastPick        int               `json:"last_pick"`
	ComputedAt      time.Time         `json:"computed_at"`
	Players         []PlayerValuation `json:"players"`
	Teams           []TeamSummary     `json:"teams"`
	RemainingBudget int               `json:"remaining_budget"`
	RemainingSlots  int               `json:"remaining_slots"`
}

// Keeper is a drafted player presented to the valuation pipeline as a
// player retained at the price paid.
type Keeper struct {
	PlayerID   string `json:"player_id"`
	TeamID     string `json:"team_id"`
	Price      int    `json:"price"`
	PickNumber int    `json:"pick_number"`
}

// PoolState is the complete input of one recompute.
type PoolState struct {
	DraftID         string        `json:"draft_id"`
	LastPick        int           `json:"last_pick"`
	Keepers         []Keeper      `json:"keepers"`
	RemainingBudget int           `json:"remaining_budget"`
	RemainingSlots  int           `json:"remaining_slots"`
	MinBid          int           `json:"min_bid"`
	Teams           []TeamSummary `json:"teams"`
}

// TeamResources is a team's share of what the league has left to spend.
type TeamResources struct {
	TeamID           string  `json:"team_id"`
	BudgetRemaining  int     `json:"budget_remaining"`
	SlotsRemaining   int     `json:"slots_remaining"`
	MaxBid           int     `json:"max_bid"`
	BudgetShare      float64 `json:"budget_share"`
	SlotShare        float64 `json:"slot_share"`
	CompetitionScore float64 `json:"competition_score"`
}

// LeagueTotals sums the remaining resources of every team.
type LeagueTotals struct {
	BudgetRemaining  int     `json:"budget_remaining"`
	SlotsRemaining   int     `json:"slots_remaining"`
	AvgBudgetPerTeam float64 `json:"avg_budget_per_team"`
	AvgSlotsPerTeam  float64 `json:"avg_slots_per_team"`
	AvgBudgetPerSlot float64 `json:"avg_budget_per_slot"`
	MaxBidAnyTeam    int     `json:"max_bid_any_team"`
}

// LeagueResources is the competition picture at one pick.
type LeagueResources struct {
	DraftID  string          `json:"draft_id,omitempty"`
	LastPick int             `json:"last_pick"`
	Teams    []TeamResources `json:"teams"`
	Totals   LeagueTotals    `json:"totals"`
}
