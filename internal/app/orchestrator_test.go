package service_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/okian/livedraft/internal/adapters/checkpoint"
	service "github.com/okian/livedraft/internal/app"
	"github.com/okian/livedraft/internal/domain/draft"
	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/internal/simulate"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBootstrap(t *testing.T) {
	Convey("Given an empty event log", t, func() {
		ctx := context.Background()
		r := newRig(t, t.TempDir())
		o := r.orchestrator(t, model.DefaultRules(12), echo(0, nil))

		Convey("When the orchestrator bootstraps", func() {
			So(o.Bootstrap(ctx), ShouldBeNil)
			state := o.State()

			Convey("Then the league is at its pre-draft position", func() {
				So(state.LastPick, ShouldEqual, 0)
				So(state.AvailableBudget, ShouldEqual, 6000)
				So(state.AvailableRosterSpots, ShouldEqual, 288)
				So(len(state.Teams), ShouldEqual, 12)
				So(o.Status().Phase, ShouldEqual, service.PhaseIdle)
				So(o.Status().CachedPick, ShouldEqual, -1)
			})
		})

		Convey("When polling before bootstrap", func() {
			_, err := o.PollOnce(ctx)

			Convey("Then it is refused", func() {
				So(errors.Is(err, service.ErrNotBootstrapped), ShouldBeTrue)
			})
		})
	})

	Convey("Given a cache ahead of the event log", t, func() {
		ctx := context.Background()
		r := newRig(t, t.TempDir())
		So(r.cache.Write(ctx, model.ValuationSet{DraftID: draftID.String(), LastPick: 5}), ShouldBeNil)
		o := r.orchestrator(t, model.DefaultRules(12), echo(0, nil))

		Convey("When the orchestrator bootstraps", func() {
			err := o.Bootstrap(ctx)

			Convey("Then it halts", func() {
				So(errors.Is(err, service.ErrHalted), ShouldBeTrue)
				So(errors.Is(err, service.ErrCacheAhead), ShouldBeTrue)
				So(o.Status().Halted, ShouldBeTrue)
				So(o.Status().Phase, ShouldEqual, service.PhaseHalted)
				So(errors.Is(o.Pause(), service.ErrHalted), ShouldBeTrue)
				So(errors.Is(o.Resume(), service.ErrHalted), ShouldBeTrue)
			})
		})
	})
}

func TestPollOnce(t *testing.T) {
	Convey("Given a bootstrapped twelve team league", t, func() {
		ctx := context.Background()
		r := newRig(t, t.TempDir())
		o := r.orchestrator(t, model.DefaultRules(12), echo(0, nil))
		So(o.Bootstrap(ctx), ShouldBeNil)

		Convey("When the first pick is reported", func() {
			r.src.publish(pick(1, "P1", "team_01", 45))
			n, err := o.PollOnce(ctx)
			So(err, ShouldBeNil)
			state := o.State()

			Convey("Then it is applied and logged", func() {
				So(n, ShouldEqual, 1)
				So(state.LastPick, ShouldEqual, 1)
				So(state.Teams["team_01"].BudgetRemaining, ShouldEqual, 455)
				So(state.IsDrafted("P1"), ShouldBeTrue)
				So(draft.Keepers(state), ShouldResemble, []model.Keeper{
					{PlayerID: "P1", TeamID: "team_01", Price: 45, PickNumber: 1},
				})
				So(r.store.Len(), ShouldEqual, 1)
			})

			Convey("And the same pick is reported again", func() {
				r.src.publish(pick(1, "P1", "team_01", 45), pick(1, "P1", "team_01", 45))
				n, err := o.PollOnce(ctx)

				Convey("Then nothing changes", func() {
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 0)
					So(o.State().LastPick, ShouldEqual, 1)
					So(r.store.Len(), ShouldEqual, 1)
				})
			})

			Convey("And pick 3 is reported without pick 2", func() {
				r.src.publish(pick(1, "P1", "team_01", 45), pick(3, "P3", "team_02", 10))
				_, err := o.PollOnce(ctx)

				Convey("Then the draft halts out of sequence", func() {
					So(errors.Is(err, service.ErrHalted), ShouldBeTrue)
					So(errors.Is(err, draft.ErrOutOfSequence), ShouldBeTrue)
					So(o.Status().Halted, ShouldBeTrue)
					So(o.State().LastPick, ShouldEqual, 1)
					So(r.store.Len(), ShouldEqual, 1)
				})

				Convey("And later polls stay halted", func() {
					r.src.publish(pick(1, "P1", "team_01", 45))
					_, err := o.PollOnce(ctx)
					So(errors.Is(err, service.ErrHalted), ShouldBeTrue)
				})
			})

			Convey("And pick 1 is reported with another player", func() {
				r.src.publish(pick(1, "P9", "team_01", 45))
				_, err := o.PollOnce(ctx)

				Convey("Then the draft halts", func() {
					So(errors.Is(err, service.ErrHalted), ShouldBeTrue)
					So(o.Status().Halted, ShouldBeTrue)
				})
			})
		})

		Convey("When a pick breaks league rules", func() {
			r.src.publish(pick(1, "P1", "team_01", 600))
			_, err := o.PollOnce(ctx)

			Convey("Then the draft halts without logging it", func() {
				So(errors.Is(err, service.ErrHalted), ShouldBeTrue)
				So(errors.Is(err, draft.ErrInsufficientBudget), ShouldBeTrue)
				So(r.store.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the source fails", func() {
			r.src.fail(errors.New("connection refused"))
			n, err := o.PollOnce(ctx)

			Convey("Then the cycle is skipped, not fatal", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				st := o.Status()
				So(st.Halted, ShouldBeFalse)
				So(st.PollErrors, ShouldEqual, 1)
				So(st.LastPollError, ShouldContainSubstring, "connection refused")
			})

			Convey("And recovers on the next poll", func() {
				r.src.fail(nil)
				r.src.publish(pick(1, "P1", "team_01", 45))
				n, err := o.PollOnce(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				So(o.Status().LastPollError, ShouldBeEmpty)
			})
		})
	})

	Convey("Given an event log whose next append fails", t, func() {
		ctx := context.Background()
		r := newRig(t, t.TempDir())
		store := &failingStore{Store: r.store}
		store.failures.Store(1)
		o, err := service.NewOrchestrator(draftID, model.DefaultRules(4), store, r.cache, r.src, echo(0, nil))
		So(err, ShouldBeNil)
		So(o.Bootstrap(ctx), ShouldBeNil)
		r.src.publish(pick(1, "P1", "team_01", 5), pick(2, "P2", "team_02", 6))

		Convey("When polling twice", func() {
			n1, err1 := o.PollOnce(ctx)
			mid := o.State().LastPick
			n2, err2 := o.PollOnce(ctx)

			Convey("Then the failed pick is retried and nothing is lost", func() {
				So(err1, ShouldBeNil)
				So(n1, ShouldEqual, 0)
				So(mid, ShouldEqual, 0)
				So(err2, ShouldBeNil)
				So(n2, ShouldEqual, 2)
				So(r.store.Len(), ShouldEqual, 2)
				So(o.Status().Halted, ShouldBeFalse)
			})
		})
	})
}

func TestRestart(t *testing.T) {
	Convey("Given a draft that logged 42 picks", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		sc, err := simulate.Generate(model.DefaultRules(12), 42, 3)
		So(err, ShouldBeNil)

		first := newRig(t, dir)
		o := first.orchestrator(t, sc.Rules, echo(0, nil))
		So(o.Bootstrap(ctx), ShouldBeNil)
		first.src.publish(sc.Events...)
		n, err := o.PollOnce(ctx)
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 42)
		So(first.store.Close(), ShouldBeNil)
		So(first.cache.Close(), ShouldBeNil)

		Convey("When a new process bootstraps from the same directory", func() {
			second := newRig(t, dir)
			restarted := second.orchestrator(t, sc.Rules, echo(0, nil))
			So(restarted.Bootstrap(ctx), ShouldBeNil)
			want, err := draft.Replay(sc.Rules, sc.Events)
			So(err, ShouldBeNil)

			Convey("Then its state equals a fresh fold of the picks", func() {
				got := restarted.State()
				So(got.LastPick, ShouldEqual, 42)
				So(got.AvailableBudget, ShouldEqual, want.AvailableBudget)
				So(got.AvailableRosterSpots, ShouldEqual, want.AvailableRosterSpots)
				So(draft.Summaries(got), ShouldResemble, draft.Summaries(want))
				So(draft.Keepers(got), ShouldResemble, draft.Keepers(want))
			})

			Convey("Then reported picks it already has are duplicates", func() {
				second.src.publish(sc.Events...)
				n, err := restarted.PollOnce(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				So(second.store.Len(), ShouldEqual, 42)
			})
		})

		Convey("When it restarts after a crash that kept only a prefix", func() {
			prefix := t.TempDir()
			partial := newRig(t, prefix)
			for _, ev := range sc.Events[:20] {
				So(partial.store.Append(ctx, ev), ShouldBeNil)
			}
			resumed := partial.orchestrator(t, sc.Rules, echo(0, nil))
			So(resumed.Bootstrap(ctx), ShouldBeNil)
			partial.src.publish(sc.Events...)
			n, err := resumed.PollOnce(ctx)

			Convey("Then the source fills in the rest", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 22)
				So(resumed.State().LastPick, ShouldEqual, 42)
			})
		})
	})
}

func TestCheckpoints(t *testing.T) {
	Convey("Given a draft saving a checkpoint every 10 picks", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		sc, err := simulate.Generate(model.DefaultRules(8), 25, 11)
		So(err, ShouldBeNil)
		file := checkpoint.NewFile(dir, draftID)

		first := newRig(t, dir)
		o := first.orchestrator(t, sc.Rules, echo(0, nil), service.WithCheckpoints(file, 10))
		So(o.Bootstrap(ctx), ShouldBeNil)
		first.src.publish(sc.Events...)
		_, err = o.PollOnce(ctx)
		So(err, ShouldBeNil)
		So(first.store.Close(), ShouldBeNil)
		So(first.cache.Close(), ShouldBeNil)

		Convey("When the polls are done", func() {
			cp, err := file.Load(ctx)

			Convey("Then the last due checkpoint is on disk", func() {
				So(err, ShouldBeNil)
				So(cp.LastPick, ShouldEqual, 20)
				So(cp.Matches(sc.Events), ShouldBeNil)
			})
		})

		Convey("When restarting with the checkpoint", func() {
			second := newRig(t, dir)
			restarted := second.orchestrator(t, sc.Rules, echo(0, nil), service.WithCheckpoints(file, 10))
			So(restarted.Bootstrap(ctx), ShouldBeNil)
			want, err := draft.Replay(sc.Rules, sc.Events)
			So(err, ShouldBeNil)

			Convey("Then the resumed state equals a full replay", func() {
				So(restarted.State().LastPick, ShouldEqual, 25)
				So(draft.Summaries(restarted.State()), ShouldResemble, draft.Summaries(want))
			})
		})

		Convey("When the checkpoint does not match the log", func() {
			cp, err := file.Load(ctx)
			So(err, ShouldBeNil)
			cp.EventsDigest = "0000"
			So(file.Save(ctx, cp), ShouldBeNil)

			second := newRig(t, dir)
			restarted := second.orchestrator(t, sc.Rules, echo(0, nil), service.WithCheckpoints(file, 10))

			Convey("Then it is ignored and the log is replayed", func() {
				So(restarted.Bootstrap(ctx), ShouldBeNil)
				So(restarted.State().LastPick, ShouldEqual, 25)
				So(draft.Verify(restarted.State()), ShouldBeNil)
			})
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running orchestrator", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		r := newRig(t, t.TempDir())
		rc := &recordingCache{Cache: r.cache}
		o, err := service.NewOrchestrator(draftID, model.DefaultRules(4), r.store, rc, r.src, echo(20*time.Millisecond, nil),
			service.WithPollInterval(10*time.Millisecond),
			service.WithSnapshotEvery(2))
		So(err, ShouldBeNil)

		done := make(chan error, 1)
		finished := make(chan struct{})
		go func() {
			defer close(finished)
			done <- o.Run(ctx)
		}()
		defer waitFor(cancel, finished)

		Convey("Then pre-draft valuations are cached", func() {
			So(eventually(func() bool {
				set, err := r.cache.ReadLatest(context.Background())
				return err == nil && set.LastPick == 0
			}), ShouldBeTrue)
		})

		Convey("When picks arrive one poll at a time", func() {
			events := []model.DraftEvent{
				pick(1, "P1", "team_01", 5),
				pick(2, "P2", "team_02", 6),
				pick(3, "P3", "team_03", 7),
				pick(4, "P4", "team_04", 8),
				pick(5, "P5", "team_01", 9),
			}
			for i := range events {
				r.src.publish(events[:i+1]...)
				time.Sleep(15 * time.Millisecond)
			}

			Convey("Then the cache settles on the last pick and never goes back", func() {
				So(eventually(func() bool { return o.Status().CachedPick == 5 }), ShouldBeTrue)
				writes := rc.written()
				So(slices.IsSorted(writes), ShouldBeTrue)
				So(writes[len(writes)-1], ShouldEqual, 5)
				set, err := r.cache.ReadLatest(context.Background())
				So(err, ShouldBeNil)
				So(set.LastPick, ShouldEqual, 5)
			})
		})

		Convey("When five picks arrive in one poll", func() {
			r.src.publish(
				pick(1, "P1", "team_01", 5),
				pick(2, "P2", "team_02", 6),
				pick(3, "P3", "team_03", 7),
				pick(4, "P4", "team_04", 8),
				pick(5, "P5", "team_01", 9),
			)

			Convey("Then snapshots are stored for the crossed multiples", func() {
				So(eventually(func() bool {
					picks, err := r.cache.ListSnapshots(context.Background())
					return err == nil && slices.Equal(picks, []int{2, 4})
				}), ShouldBeTrue)
				So(eventually(func() bool { return o.Status().CachedPick == 5 }), ShouldBeTrue)
			})
		})

		Convey("When the context is canceled", func() {
			So(eventually(func() bool { return o.Status().CachedPick == 0 }), ShouldBeTrue)
			cancel()

			Convey("Then Run returns cleanly and the draft is stopped", func() {
				select {
				case err := <-done:
					So(err, ShouldBeNil)
				case <-time.After(2 * time.Second):
					So("run did not return", ShouldBeEmpty)
				}
				So(o.Status().Phase, ShouldEqual, service.PhaseStopped)
				So(errors.Is(o.Pause(), service.ErrNotRunning), ShouldBeTrue)
			})
		})

		Convey("When the source reports a gap", func() {
			r.src.publish(pick(2, "P2", "team_02", 6))

			Convey("Then Run returns the halt", func() {
				select {
				case err := <-done:
					So(errors.Is(err, service.ErrHalted), ShouldBeTrue)
				case <-time.After(2 * time.Second):
					So("run did not halt", ShouldBeEmpty)
				}
				So(o.Status().Phase, ShouldEqual, service.PhaseHalted)
				So(errors.Is(o.Pause(), service.ErrHalted), ShouldBeTrue)
				So(errors.Is(o.Resume(), service.ErrHalted), ShouldBeTrue)
			})
		})
	})
}

func TestStaleResults(t *testing.T) {
	Convey("Given a slow recompute and a fast stream of picks", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		r := newRig(t, t.TempDir())
		rc := &recordingCache{Cache: r.cache}
		o, err := service.NewOrchestrator(draftID, model.DefaultRules(4), r.store, rc, r.src, echo(60*time.Millisecond, nil),
			service.WithPollInterval(5*time.Millisecond),
			service.WithSnapshotEvery(0))
		So(err, ShouldBeNil)
		finished := make(chan struct{})
		go func() {
			defer close(finished)
			_ = o.Run(ctx)
		}()
		defer waitFor(cancel, finished)

		Convey("When picks land while a recompute is in flight", func() {
			teams := model.DefaultRules(4).Teams
			var events []model.DraftEvent
			for i := 1; i <= 6; i++ {
				events = append(events, pick(i, fmt.Sprintf("P%d", i), teams[(i-1)%4], i))
				r.src.publish(events...)
				time.Sleep(10 * time.Millisecond)
			}

			Convey("Then only results for the current pick are cached", func() {
				So(eventually(func() bool { return o.Status().CachedPick == 6 }), ShouldBeTrue)
				writes := rc.written()
				So(slices.IsSorted(writes), ShouldBeTrue)
				So(len(writes), ShouldBeLessThan, 7)
			})
		})
	})
}

func TestCrashRecoveryEveryPrefix(t *testing.T) {
	Convey("Given a 20 pick draft", t, func() {
		ctx := context.Background()
		sc, err := simulate.Generate(model.DefaultRules(6), 20, 9)
		So(err, ShouldBeNil)
		want, err := draft.Replay(sc.Rules, sc.Events)
		So(err, ShouldBeNil)

		Convey("When a process restarts with any durable prefix and polls the full report", func() {
			var mismatched []int
			for k := 0; k <= len(sc.Events); k++ {
				r := newRig(t, t.TempDir())
				for _, ev := range sc.Events[:k] {
					So(r.store.Append(ctx, ev), ShouldBeNil)
				}
				o := r.orchestrator(t, sc.Rules, echo(0, nil))
				So(o.Bootstrap(ctx), ShouldBeNil)
				r.src.publish(sc.Events...)
				n, err := o.PollOnce(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, len(sc.Events)-k)
				got := o.State()
				if got.LastPick != want.LastPick || got.AvailableBudget != want.AvailableBudget ||
					!slices.Equal(draft.Summaries(got), draft.Summaries(want)) {
					mismatched = append(mismatched, k)
				}
			}

			Convey("Then every restart converges on the same state", func() {
				So(mismatched, ShouldBeEmpty)
			})
		})
	})
}
