package draft_test

import (
	"testing"

	"github.com/okian/livedraft/internal/domain/draft"
	"github.com/okian/livedraft/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestResources(t *testing.T) {
	Convey("Given a two team $100 league after T1 buys P1 for 40", t, func() {
		rules := model.Rules{Teams: []string{"T1", "T2"}, Budget: 100, RosterSize: 2, MinBid: 1}
		state, err := draft.Replay(rules, []model.DraftEvent{pick(1, "P1", "T1", 40)})
		So(err, ShouldBeNil)

		Convey("When the resources are computed", func() {
			res := draft.Resources(state)

			Convey("Then the richer team comes first with the larger score", func() {
				So(res.LastPick, ShouldEqual, 1)
				So(len(res.Teams), ShouldEqual, 2)
				So(res.Teams[0].TeamID, ShouldEqual, "T2")
				So(res.Teams[0].BudgetShare, ShouldEqual, 0.625)
				So(res.Teams[0].SlotShare, ShouldEqual, 0.667)
				So(res.Teams[0].CompetitionScore, ShouldEqual, 0.646)
				So(res.Teams[0].MaxBid, ShouldEqual, 99)
				So(res.Teams[1].TeamID, ShouldEqual, "T1")
				So(res.Teams[1].BudgetShare, ShouldEqual, 0.375)
				So(res.Teams[1].CompetitionScore, ShouldEqual, 0.354)
			})

			Convey("Then the league totals add up", func() {
				So(res.Totals.BudgetRemaining, ShouldEqual, 160)
				So(res.Totals.SlotsRemaining, ShouldEqual, 3)
				So(res.Totals.AvgBudgetPerTeam, ShouldEqual, 80)
				So(res.Totals.AvgSlotsPerTeam, ShouldEqual, 1.5)
				So(res.Totals.AvgBudgetPerSlot, ShouldEqual, 53.33)
				So(res.Totals.MaxBidAnyTeam, ShouldEqual, 99)
			})
		})
	})

	Convey("Given a league with every roster filled", t, func() {
		rules := model.Rules{Teams: []string{"T1", "T2"}, Budget: 100, RosterSize: 1, MinBid: 1}
		state, err := draft.Replay(rules, []model.DraftEvent{
			pick(1, "P1", "T1", 40),
			pick(2, "P2", "T2", 1),
		})
		So(err, ShouldBeNil)

		Convey("Then slot shares and the per slot average are zero", func() {
			res := draft.Resources(state)
			So(res.Totals.SlotsRemaining, ShouldEqual, 0)
			So(res.Totals.AvgBudgetPerSlot, ShouldEqual, 0)
			So(res.Totals.MaxBidAnyTeam, ShouldEqual, 0)
			for _, team := range res.Teams {
				So(team.SlotShare, ShouldEqual, 0)
			}
		})
	})
}
