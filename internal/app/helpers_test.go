package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/livedraft/internal/adapters/cache"
	"github.com/okian/livedraft/internal/adapters/eventlog"
	service "github.com/okian/livedraft/internal/app"
	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/internal/domain/valuation"
	"github.com/okian/livedraft/pkg/logger"
)

func init() {
	_ = logger.Init()
}

var draftID = model.DraftID{LeagueID: "L1", SessionID: "s1"}

// fakeSource serves whatever picks the test last published.
type fakeSource struct {
	mu      sync.Mutex
	reports []model.PickReport
	err     error
	calls   int
}

func (f *fakeSource) Picks(_ context.Context, _ model.DraftID) ([]model.PickReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.PickReport(nil), f.reports...), nil
}

func (f *fakeSource) publish(events ...model.DraftEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = f.reports[:0]
	for _, ev := range events {
		f.reports = append(f.reports, report(ev))
	}
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func report(ev model.DraftEvent) model.PickReport {
	return model.PickReport{
		PickNumber: ev.PickNumber,
		PlayerID:   ev.PlayerID,
		PlayerName: ev.PlayerName,
		TeamID:     ev.TeamID,
		Price:      ev.Price,
		Timestamp:  ev.Timestamp,
	}
}

func pick(n int, player, team string, price int) model.DraftEvent {
	return model.DraftEvent{
		PickNumber: n,
		PlayerID:   player,
		TeamID:     team,
		Price:      price,
		Timestamp:  time.Date(2026, 3, 1, 19, 0, n, 0, time.UTC),
	}
}

// echo returns a valuation set stamped with the requested pick.
func echo(delay time.Duration, calls *atomic.Int32) valuation.Recomputer {
	return valuation.RecomputerFunc(func(ctx context.Context, pool model.PoolState) (model.ValuationSet, error) {
		if calls != nil {
			calls.Add(1)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.ValuationSet{}, ctx.Err()
		}
		return model.ValuationSet{
			DraftID:         pool.DraftID,
			LastPick:        pool.LastPick,
			ComputedAt:      time.Now().UTC(),
			RemainingBudget: pool.RemainingBudget,
			RemainingSlots:  pool.RemainingSlots,
		}, nil
	})
}

// recordingCache notes every latest-set write.
type recordingCache struct {
	*cache.Cache
	mu     sync.Mutex
	writes []int
}

func (c *recordingCache) Write(ctx context.Context, set model.ValuationSet) error {
	c.mu.Lock()
	c.writes = append(c.writes, set.LastPick)
	c.mu.Unlock()
	return c.Cache.Write(ctx, set)
}

func (c *recordingCache) written() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.writes...)
}

// failingStore fails the next n appends with an I/O error.
type failingStore struct {
	eventlog.Store
	failures atomic.Int32
}

func (s *failingStore) Append(ctx context.Context, ev model.DraftEvent) error {
	if s.failures.Add(-1) >= 0 {
		return &eventlog.AppendError{Pick: ev.PickNumber, Err: eventlog.ErrIO}
	}
	return s.Store.Append(ctx, ev)
}

type rig struct {
	dir   string
	store *eventlog.FileStore
	cache *cache.Cache
	src   *fakeSource
}

func newRig(t *testing.T, dir string) *rig {
	t.Helper()
	ctx := context.Background()
	store, err := eventlog.Open(ctx, dir, draftID)
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	c, err := cache.Open(ctx, dir, draftID)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
		_ = c.Close()
	})
	return &rig{dir: dir, store: store, cache: c, src: &fakeSource{}}
}

func (r *rig) orchestrator(t *testing.T, rules model.Rules, rec valuation.Recomputer, opts ...service.Option) *service.Orchestrator {
	t.Helper()
	o, err := service.NewOrchestrator(draftID, rules, r.store, r.cache, r.src, rec, opts...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

// eventually polls cond until it holds or two seconds pass.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// waitFor cancels a run and waits for it to wind down so its files are
// closed before the test directory is removed.
func waitFor(cancel context.CancelFunc, finished <-chan struct{}) {
	cancel()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
	}
}
