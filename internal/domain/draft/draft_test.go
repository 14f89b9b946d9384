package draft_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/livedraft/internal/domain/draft"
	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/internal/simulate"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)

func pick(n int, player, team string, price int) model.DraftEvent {
	return model.DraftEvent{PickNumber: n, PlayerID: player, TeamID: team, Price: price, Timestamp: t0.Add(time.Duration(n) * time.Minute)}
}

func TestNewLeague(t *testing.T) {
	Convey("Given a 12 team $500 league with 24 spots", t, func() {
		state, err := draft.NewLeague(model.DefaultRules(12))

		Convey("Then the empty state has full budgets and no picks", func() {
			So(err, ShouldBeNil)
			So(state.LastPick, ShouldEqual, 0)
			So(state.AvailableRosterSpots, ShouldEqual, 288)
			So(state.AvailableBudget, ShouldEqual, 6000)
			So(len(state.Drafted), ShouldEqual, 0)
			for _, team := range state.Teams {
				So(team.BudgetRemaining, ShouldEqual, 500)
				So(team.RosterSlotsRemaining, ShouldEqual, 24)
			}
			So(draft.Verify(state), ShouldBeNil)
		})
	})

	Convey("Given invalid rules", t, func() {
		_, err := draft.NewLeague(model.Rules{Teams: []string{"T1", "T1"}, Budget: 10, RosterSize: 2})

		Convey("Then no league is created", func() {
			So(errors.Is(err, model.ErrInvalidRules), ShouldBeTrue)
		})
	})
}

func TestApply(t *testing.T) {
	Convey("Given an empty league with teams T1 and T2", t, func() {
		rules := model.Rules{Teams: []string{"T1", "T2"}, Budget: 500, RosterSize: 2, MinBid: 1}
		state, err := draft.NewLeague(rules)
		So(err, ShouldBeNil)

		Convey("When T1 buys P1 for 45 at pick 1", func() {
			next, err := draft.Apply(state, pick(1, "P1", "T1", 45))

			Convey("Then T1 pays and the pick is recorded", func() {
				So(err, ShouldBeNil)
				So(next.Teams["T1"].BudgetRemaining, ShouldEqual, 455)
				So(next.Teams["T1"].RosterSlotsRemaining, ShouldEqual, 1)
				So(next.Drafted, ShouldResemble, map[string]int{"P1": 1})
				So(next.LastPick, ShouldEqual, 1)
				So(next.AvailableBudget, ShouldEqual, 955)
				So(next.AvailableRosterSpots, ShouldEqual, 3)
				So(draft.Verify(next), ShouldBeNil)
			})

			Convey("And the input state is untouched", func() {
				So(state.LastPick, ShouldEqual, 0)
				So(state.Teams["T1"].BudgetRemaining, ShouldEqual, 500)
				So(len(state.Teams["T1"].Roster), ShouldEqual, 0)
				So(len(state.Drafted), ShouldEqual, 0)
			})

			Convey("And the pool presents P1 as a keeper at 45", func() {
				pool := draft.Pool("L1_s1", next)
				So(pool.Keepers, ShouldResemble, []model.Keeper{{PlayerID: "P1", TeamID: "T1", Price: 45, PickNumber: 1}})
				So(pool.RemainingBudget, ShouldEqual, 955)
				So(pool.RemainingSlots, ShouldEqual, 3)
				So(pool.LastPick, ShouldEqual, 1)
				So(pool.Teams[0].TeamID, ShouldEqual, "T1")
				So(pool.Teams[0].Spent, ShouldEqual, 45)
			})
		})

		Convey("When a pick skips ahead", func() {
			first, _ := draft.Apply(state, pick(1, "P1", "T1", 5))
			_, err := draft.Apply(first, pick(3, "P3", "T2", 5))

			Convey("Then it is out of sequence and names the event", func() {
				So(errors.Is(err, draft.ErrOutOfSequence), ShouldBeTrue)
				var ie *draft.InvalidEventError
				So(errors.As(err, &ie), ShouldBeTrue)
				So(ie.Event.PickNumber, ShouldEqual, 3)
				So(err.Error(), ShouldContainSubstring, "expected pick 2")
			})
		})

		Convey("When each invariant is broken", func() {
			s1, _ := draft.Apply(state, pick(1, "P1", "T1", 5))
			s2, _ := draft.Apply(s1, pick(2, "P2", "T1", 5))

			cases := []struct {
				from model.LeagueState
				ev   model.DraftEvent
				want error
			}{
				{s1, pick(2, "P1", "T2", 5), draft.ErrPlayerDrafted},
				{s1, pick(2, "P2", "T9", 5), draft.ErrUnknownTeam},
				{s2, pick(3, "P3", "T1", 1), draft.ErrNoRosterSlots},
				{s1, pick(2, "P2", "T2", 501), draft.ErrInsufficientBudget},
				{state, pick(1, "P1", "T1", 0), draft.ErrBelowMinBid},
				{state, model.DraftEvent{PickNumber: 1, TeamID: "T1"}, model.ErrInvalidEvent},
			}

			Convey("Then the typed reason is returned and the state is unchanged", func() {
				for _, c := range cases {
					got, err := draft.Apply(c.from, c.ev)
					So(errors.Is(err, c.want), ShouldBeTrue)
					So(got.LastPick, ShouldEqual, c.from.LastPick)
				}
			})
		})

		Convey("When the sequence check and a team check both fail", func() {
			_, err := draft.Apply(state, pick(2, "P1", "T9", 5))

			Convey("Then the sequence is reported first", func() {
				So(errors.Is(err, draft.ErrOutOfSequence), ShouldBeTrue)
			})
		})
	})
}

func TestReplay(t *testing.T) {
	Convey("Given a generated 12 team draft", t, func() {
		rules := model.DefaultRules(12)
		sc, err := simulate.Generate(rules, 288, 42)
		So(err, ShouldBeNil)

		Convey("When replaying it twice", func() {
			a, errA := draft.Replay(rules, sc.Events)
			b, errB := draft.Replay(rules, sc.Events)

			Convey("Then both folds are identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(b, ShouldResemble, a)
				So(a.LastPick, ShouldEqual, 288)
			})
		})

		Convey("When folding one event at a time", func() {
			state, _ := draft.NewLeague(rules)
			prev := 0
			ok := true
			for _, ev := range sc.Events {
				state, err = draft.Apply(state, ev)
				ok = ok && err == nil && state.LastPick == prev+1 && draft.Verify(state) == nil
				prev = state.LastPick
			}

			Convey("Then every intermediate state conserves budget and advances by one", func() {
				So(ok, ShouldBeTrue)
				for _, team := range state.Teams {
					So(team.BudgetRemaining+team.Spent(), ShouldEqual, rules.Budget)
				}
			})
		})

		Convey("When resuming from every prefix", func() {
			full, _ := draft.Replay(rules, sc.Events)
			mismatches := 0
			for k := 0; k <= len(sc.Events); k += 12 {
				prefix, err := draft.Replay(rules, sc.Events[:k])
				So(err, ShouldBeNil)
				resumed, err := draft.ReplayFrom(prefix, sc.Events)
				So(err, ShouldBeNil)
				if draft.Verify(resumed) != nil || resumed.LastPick != full.LastPick ||
					resumed.AvailableBudget != full.AvailableBudget {
					mismatches++
				}
			}

			Convey("Then the resumed state equals the full fold", func() {
				So(mismatches, ShouldEqual, 0)
			})
		})

		Convey("When replay meets a bad event", func() {
			events := append([]model.DraftEvent{}, sc.Events[:5]...)
			events = append(events, sc.Events[6])
			state, err := draft.Replay(rules, events)

			Convey("Then the fold stops at the last good pick", func() {
				So(errors.Is(err, draft.ErrOutOfSequence), ShouldBeTrue)
				So(state.LastPick, ShouldEqual, 5)
			})
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Given a valid state", t, func() {
		rules := model.Rules{Teams: []string{"T1", "T2"}, Budget: 100, RosterSize: 3, MinBid: 1}
		state, _ := draft.Replay(rules, []model.DraftEvent{pick(1, "P1", "T1", 10), pick(2, "P2", "T2", 20)})
		So(draft.Verify(state), ShouldBeNil)

		Convey("When a budget is tampered with", func() {
			tampered := state
			tampered.Teams = map[string]model.TeamState{"T1": state.Teams["T1"], "T2": state.Teams["T2"]}
			t1 := tampered.Teams["T1"]
			t1.BudgetRemaining = 95
			tampered.Teams["T1"] = t1

			Convey("Then verification fails", func() {
				So(errors.Is(draft.Verify(tampered), draft.ErrInconsistentState), ShouldBeTrue)
			})
		})

		Convey("When the drafted set disagrees with the rosters", func() {
			tampered := state
			tampered.Drafted = map[string]int{"P1": 1}

			Convey("Then verification fails", func() {
				So(errors.Is(draft.Verify(tampered), draft.ErrInconsistentState), ShouldBeTrue)
			})
		})

		Convey("When the last pick is inflated", func() {
			tampered := state
			tampered.LastPick = 3

			Convey("Then verification fails", func() {
				So(errors.Is(draft.Verify(tampered), draft.ErrInconsistentState), ShouldBeTrue)
			})
		})
	})
}

func TestSummaries(t *testing.T) {
	Convey("Given a state with picks for two teams", t, func() {
		rules := model.Rules{Teams: []string{"b", "a"}, Budget: 50, RosterSize: 2, MinBid: 1}
		state, _ := draft.Replay(rules, []model.DraftEvent{pick(1, "P1", "b", 10), pick(2, "P2", "a", 4), pick(3, "P3", "b", 2)})

		Convey("Then summaries are ordered and keepers follow pick order", func() {
			sums := draft.Summaries(state)
			So(sums[0].TeamID, ShouldEqual, "a")
			So(sums[1], ShouldResemble, model.TeamSummary{TeamID: "b", Picks: 2, Spent: 12, BudgetRemaining: 38, SlotsRemaining: 0, MaxBid: 0})
			keepers := draft.Keepers(state)
			So(len(keepers), ShouldEqual, 3)
			So(keepers[1].PlayerID, ShouldEqual, "P2")
		})
	})
}
