package draft

import (
	"fmt"

	"github.com/okian/livedraft/internal/domain/model"
)

// Verify checks the accounting rules every reachable state satisfies:
// budgets and slots balance per team, the drafted set matches the rosters,
// picks are gapless up to LastPick and the league totals equal the team sums.
func Verify(state model.LeagueState) error {
	r := state.Rules
	if len(state.Teams) != len(r.Teams) {
		return fmt.Errorf("%w: %d teams, rules name %d", ErrInconsistentState, len(state.Teams), len(r.Teams))
	}

	var budget, slots, rostered int
	picks := make(map[int]struct{}, len(state.Drafted))
	for _, id := range r.Teams {
		t, ok := state.Teams[id]
		if !ok {
			return fmt.Errorf("%w: team %q missing", ErrInconsistentState, id)
		}
		if t.TeamID != id {
			return fmt.Errorf("%w: team %q recorded as %q", ErrInconsistentState, id, t.TeamID)
		}
		if got := t.BudgetRemaining + t.Spent(); got != r.Budget {
			return fmt.Errorf("%w: team %q budget %d + spent %d != %d",
				ErrInconsistentState, id, t.BudgetRemaining, t.Spent(), r.Budget)
		}
		if got := t.RosterSlotsRemaining + len(t.Roster); got != r.RosterSize {
			return fmt.Errorf("%w: team %q slots %d + roster %d != %d",
				ErrInconsistentState, id, t.RosterSlotsRemaining, len(t.Roster), r.RosterSize)
		}
		for _, ev := range t.Roster {
			if ev.TeamID != id {
				return fmt.Errorf("%w: %s on roster of %q", ErrInconsistentState, ev, id)
			}
			if pick, ok := state.Drafted[ev.PlayerID]; !ok || pick != ev.PickNumber {
				return fmt.Errorf("%w: %s not in drafted set", ErrInconsistentState, ev)
			}
			if _, dup := picks[ev.PickNumber]; dup {
				return fmt.Errorf("%w: pick %d on two rosters", ErrInconsistentState, ev.PickNumber)
			}
			picks[ev.PickNumber] = struct{}{}
		}
		budget += t.BudgetRemaining
		slots += t.RosterSlotsRemaining
		rostered += len(t.Roster)
	}

	if rostered != len(state.Drafted) {
		return fmt.Errorf("%w: %d rostered players, %d drafted", ErrInconsistentState, rostered, len(state.Drafted))
	}
	if rostered != state.LastPick {
		return fmt.Errorf("%w: %d picks recorded, last pick %d", ErrInconsistentState, rostered, state.LastPick)
	}
	for p := 1; p <= state.LastPick; p++ {
		if _, ok := picks[p]; !ok {
			return fmt.Errorf("%w: pick %d missing", ErrInconsistentState, p)
		}
	}
	if budget != state.AvailableBudget {
		return fmt.Errorf("%w: available budget %d, teams hold %d", ErrInconsistentState, state.AvailableBudget, budget)
	}
	if slots != state.AvailableRosterSpots {
		return fmt.Errorf("%w: available spots %d, teams hold %d", ErrInconsistentState, state.AvailableRosterSpots, slots)
	}
	return nil
}
