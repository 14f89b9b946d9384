// Package draft folds draft events into league state.
//
// Every function here is pure: inputs are never modified and the same inputs
// always produce the same output.
package draft

import (
	"maps"
	"slices"

	"github.com/okian/livedraft/internal/domain/model"
)

// NewLeague returns the pre-draft state for rules.
func NewLeague(rules model.Rules) (model.LeagueState, error) {
	if err := rules.Validate(); err != nil {
		return model.LeagueState{}, err
	}
	teams := make(map[string]model.TeamState, len(rules.Teams))
	for _, id := range rules.Teams {
		teams[id] = model.TeamState{
			TeamID:               id,
			BudgetRemaining:      rules.Budget,
			RosterSlotsRemaining: rules.RosterSize,
		}
	}
	return model.LeagueState{
		Rules:                cloneRules(rules),
		Teams:                teams,
		Drafted:              map[string]int{},
		AvailableBudget:      rules.Budget * len(rules.Teams),
		AvailableRosterSpots: rules.RosterSize * len(rules.Teams),
	}, nil
}

// Apply validates ev against state and returns the state after the pick.
// On error the returned state is the input state.
func Apply(state model.LeagueState, ev model.DraftEvent) (model.LeagueState, error) {
	if err := ev.Validate(); err != nil {
		return state, &InvalidEventError{Event: ev, Reason: model.ErrInvalidEvent, Detail: err.Error()}
	}
	if ev.PickNumber != state.LastPick+1 {
		return state, reject(ev, ErrOutOfSequence, "expected pick %d", state.LastPick+1)
	}
	if prev, ok := state.Drafted[ev.PlayerID]; ok {
		return state, reject(ev, ErrPlayerDrafted, "taken at pick %d", prev)
	}
	team, ok := state.Teams[ev.TeamID]
	if !ok {
		return state, reject(ev, ErrUnknownTeam, "team %q is not in the league", ev.TeamID)
	}
	if team.RosterSlotsRemaining <= 0 {
		return state, reject(ev, ErrNoRosterSlots, "team %q roster is full", ev.TeamID)
	}
	if team.BudgetRemaining < ev.Price {
		return state, reject(ev, ErrInsufficientBudget, "team %q has $%d", ev.TeamID, team.BudgetRemaining)
	}
	if ev.Price < state.Rules.MinBid {
		return state, reject(ev, ErrBelowMinBid, "minimum is $%d", state.Rules.MinBid)
	}

	roster := make([]model.DraftEvent, len(team.Roster), len(team.Roster)+1)
	copy(roster, team.Roster)
	team.Roster = append(roster, ev)
	team.BudgetRemaining -= ev.Price
	team.RosterSlotsRemaining--

	next := state
	next.Teams = maps.Clone(state.Teams)
	next.Teams[ev.TeamID] = team
	next.Drafted = maps.Clone(state.Drafted)
	if next.Drafted == nil {
		next.Drafted = make(map[string]int, 1)
	}
	next.Drafted[ev.PlayerID] = ev.PickNumber
	next.LastPick = ev.PickNumber
	next.AvailableBudget -= ev.Price
	next.AvailableRosterSpots--
	return next, nil
}

// Replay folds events over the empty league for rules.
func Replay(rules model.Rules, events []model.DraftEvent) (model.LeagueState, error) {
	state, err := NewLeague(rules)
	if err != nil {
		return model.LeagueState{}, err
	}
	return ReplayFrom(state, events)
}

// ReplayFrom folds the events numbered after state.LastPick onto state.
// Events at or below LastPick are assumed to be already reflected in it.
func ReplayFrom(state model.LeagueState, events []model.DraftEvent) (model.LeagueState, error) {
	var err error
	for _, ev := range events {
		if ev.PickNumber <= state.LastPick {
			continue
		}
		if state, err = Apply(state, ev); err != nil {
			return state, err
		}
	}
	return state, nil
}

func cloneRules(r model.Rules) model.Rules {
	r.Teams = slices.Clone(r.Teams)
	return r
}
