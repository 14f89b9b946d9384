package draft

import (
	"cmp"
	"math"
	"slices"

	"github.com/okian/livedraft/internal/domain/model"
)

// Resources reports each team's share of the league's remaining budget and
// roster slots, richest team first. A team's competition score is the mean
// of its two shares, so a score of 1/len(teams) is an even split.
func Resources(state model.LeagueState) model.LeagueResources {
	var totals model.LeagueTotals
	for _, t := range state.Teams {
		totals.BudgetRemaining += t.BudgetRemaining
		totals.SlotsRemaining += t.RosterSlotsRemaining
		totals.MaxBidAnyTeam = max(totals.MaxBidAnyTeam, t.MaxBid(state.Rules.MinBid))
	}

	teams := make([]model.TeamResources, 0, len(state.Teams))
	for _, t := range state.Teams {
		budgetShare := ratio(t.BudgetRemaining, totals.BudgetRemaining)
		slotShare := ratio(t.RosterSlotsRemaining, totals.SlotsRemaining)
		teams = append(teams, model.TeamResources{
			TeamID:           t.TeamID,
			BudgetRemaining:  t.BudgetRemaining,
			SlotsRemaining:   t.RosterSlotsRemaining,
			MaxBid:           t.MaxBid(state.Rules.MinBid),
			BudgetShare:      round(budgetShare, 3),
			SlotShare:        round(slotShare, 3),
			CompetitionScore: round((budgetShare+slotShare)/2, 3),
		})
	}
	slices.SortFunc(teams, func(a, b model.TeamResources) int {
		if c := cmp.Compare(b.BudgetRemaining, a.BudgetRemaining); c != 0 {
			return c
		}
		return cmp.Compare(a.TeamID, b.TeamID)
	})

	if n := len(teams); n > 0 {
		totals.AvgBudgetPerTeam = round(float64(totals.BudgetRemaining)/float64(n), 2)
		totals.AvgSlotsPerTeam = round(float64(totals.SlotsRemaining)/float64(n), 1)
	}
	totals.AvgBudgetPerSlot = round(ratio(totals.BudgetRemaining, totals.SlotsRemaining), 2)

	return model.LeagueResources{
		LastPick: state.LastPick,
		Teams:    teams,
		Totals:   totals,
	}
}

func ratio(a, b int) float64 {
	if b <= 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
