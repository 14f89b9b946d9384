package dedupe_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	dedupe "github.com/okian/livedraft/internal/domain/dedupe"
	"github.com/okian/livedraft/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)

func ev(n int, player string, price int) model.DraftEvent {
	return model.DraftEvent{PickNumber: n, PlayerID: player, TeamID: "T1", Price: price, Timestamp: t0}
}

func report(e model.DraftEvent) model.PickReport {
	return model.PickReport{PickNumber: e.PickNumber, PlayerID: e.PlayerID, TeamID: e.TeamID, Price: e.Price, Timestamp: e.Timestamp}
}

func TestPickIndex(t *testing.T) {
	Convey("Given a new PickIndex", t, func() {
		x := dedupe.NewPickIndex(dedupe.WithCapacity(16))

		Convey("Then it is empty", func() {
			So(x.Len(), ShouldEqual, 0)
			So(x.Last(), ShouldEqual, 0)
		})

		Convey("When recording a pick", func() {
			v := x.Record(ev(1, "P1", 45))

			Convey("Then it is new and retrievable", func() {
				So(v, ShouldEqual, dedupe.New)
				got, ok := x.Get(1)
				So(ok, ShouldBeTrue)
				So(got.PlayerID, ShouldEqual, "P1")
				So(x.Last(), ShouldEqual, 1)
			})

			Convey("And the same pick again is a duplicate", func() {
				So(x.Record(ev(1, "P1", 45)), ShouldEqual, dedupe.Duplicate)
				So(x.Len(), ShouldEqual, 1)
			})

			Convey("And a different pick with the same number conflicts", func() {
				So(x.Record(ev(1, "P1", 46)), ShouldEqual, dedupe.Conflict)
				got, _ := x.Get(1)
				So(got.Price, ShouldEqual, 45)
			})
		})

		Convey("When verdicts are printed", func() {
			So(dedupe.New.String(), ShouldEqual, "new")
			So(dedupe.Conflict.String(), ShouldEqual, "conflict")
		})
	})
}

func TestDiff(t *testing.T) {
	Convey("Given an index holding picks 1 and 2", t, func() {
		x := dedupe.NewPickIndex()
		x.Record(ev(1, "P1", 10))
		x.Record(ev(2, "P2", 20))

		Convey("When the poll repeats history and adds picks out of order", func() {
			b, err := x.Diff([]model.PickReport{
				report(ev(4, "P4", 5)), report(ev(1, "P1", 10)), report(ev(3, "P3", 7)),
				report(ev(2, "P2", 20)), report(ev(3, "P3", 7)),
			})

			Convey("Then history is skipped and the fresh picks come back sorted", func() {
				So(err, ShouldBeNil)
				So(b.Duplicates, ShouldEqual, 2)
				So(len(b.Fresh), ShouldEqual, 2)
				So(b.Fresh[0].PickNumber, ShouldEqual, 3)
				So(b.Fresh[1].PickNumber, ShouldEqual, 4)
			})
		})

		Convey("When the poll only repeats history", func() {
			b, err := x.Diff([]model.PickReport{report(ev(1, "P1", 10))})

			Convey("Then nothing is fresh", func() {
				So(err, ShouldBeNil)
				So(len(b.Fresh), ShouldEqual, 0)
				So(b.Duplicates, ShouldEqual, 1)
			})
		})

		Convey("When a report contradicts history", func() {
			_, err := x.Diff([]model.PickReport{report(ev(1, "P9", 10))})
			So(errors.Is(err, dedupe.ErrHistoryMismatch), ShouldBeTrue)
		})

		Convey("When two reports disagree about one pick", func() {
			_, err := x.Diff([]model.PickReport{report(ev(3, "P3", 7)), report(ev(3, "P3", 8))})
			So(errors.Is(err, dedupe.ErrConflictingReports), ShouldBeTrue)
		})

		Convey("When the fresh picks skip a number", func() {
			_, err := x.Diff([]model.PickReport{report(ev(4, "P4", 5))})

			Convey("Then a gap is reported", func() {
				So(errors.Is(err, dedupe.ErrGap), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "expected pick 3")
			})
		})
	})
}

func TestPickIndexConcurrency(t *testing.T) {
	Convey("Given an index with concurrent writers", t, func() {
		x := dedupe.NewPickIndex()
		const goroutines = 10
		const perGoroutine = 50
		var wg sync.WaitGroup
		var mu sync.Mutex
		newCount := 0

		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 1; i <= perGoroutine; i++ {
					if x.Record(ev(i, fmt.Sprintf("P%d", i), i)) == dedupe.New {
						mu.Lock()
						newCount++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each pick is recorded exactly once", func() {
			So(newCount, ShouldEqual, perGoroutine)
			So(x.Len(), ShouldEqual, perGoroutine)
			So(x.Last(), ShouldEqual, perGoroutine)
		})
	})
}
