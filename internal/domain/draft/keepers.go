package draft

import (
	"slices"
	"strings"

	"github.com/okian/livedraft/internal/domain/model"
)

// Keepers returns every drafted player as a keeper at the price paid,
// ordered by pick number.
func Keepers(state model.LeagueState) []model.Keeper {
	out := make([]model.Keeper, 0, len(state.Drafted))
	for _, t := range state.Teams {
		for _, ev := range t.Roster {
			out = append(out, model.Keeper{
				PlayerID:   ev.PlayerID,
				TeamID:     t.TeamID,
				Price:      ev.Price,
				PickNumber: ev.PickNumber,
			})
		}
	}
	slices.SortFunc(out, func(a, b model.Keeper) int { return a.PickNumber - b.PickNumber })
	return out
}

// Summaries returns one summary per team sorted by team id.
func Summaries(state model.LeagueState) []model.TeamSummary {
	out := make([]model.TeamSummary, 0, len(state.Teams))
	for _, t := range state.Teams {
		out = append(out, model.TeamSummary{
			TeamID:          t.TeamID,
			Picks:           len(t.Roster),
			Spent:           t.Spent(),
			BudgetRemaining: t.BudgetRemaining,
			SlotsRemaining:  t.RosterSlotsRemaining,
			MaxBid:          t.MaxBid(state.Rules.MinBid),
		})
	}
	slices.SortFunc(out, func(a, b model.TeamSummary) int { return strings.Compare(a.TeamID, b.TeamID) })
	return out
}

// Pool builds the recompute input for state.
func Pool(draftID string, state model.LeagueState) model.PoolState {
	return model.PoolState{
		DraftID:         draftID,
		LastPick:        state.LastPick,
		Keepers:         Keepers(state),
		RemainingBudget: state.AvailableBudget,
		RemainingSlots:  state.AvailableRosterSpots,
		MinBid:          state.Rules.MinBid,
		Teams:           Summaries(state),
	}
}
