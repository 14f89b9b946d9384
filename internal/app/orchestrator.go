// Package service runs live drafts: one Orchestrator per draft id, and a
// Service that starts, stops and inspects them.
package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/livedraft/internal/adapters/cache"
	"github.com/okian/livedraft/internal/adapters/checkpoint"
	"github.com/okian/livedraft/internal/adapters/eventlog"
	"github.com/okian/livedraft/internal/adapters/mq/queue"
	"github.com/okian/livedraft/internal/adapters/mq/worker"
	"github.com/okian/livedraft/internal/adapters/source"
	"github.com/okian/livedraft/internal/domain/dedupe"
	"github.com/okian/livedraft/internal/domain/draft"
	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/internal/domain/valuation"
	"github.com/okian/livedraft/pkg/logger"
	"github.com/okian/livedraft/pkg/metrics"
)

// Default orchestrator configuration constants.
const (
	defaultPollInterval     = 5 * time.Second
	defaultRecomputeTimeout = 30 * time.Second
	defaultSnapshotEvery    = 10
	workerShutdownTimeout   = 5 * time.Second
)

// ResultCache stores recompute output.
type ResultCache interface {
	Write(ctx context.Context, set model.ValuationSet) error
	WriteSnapshot(ctx context.Context, pick int, set model.ValuationSet) error
	ReadLatest(ctx context.Context) (model.ValuationSet, error)
	ReadSnapshot(ctx context.Context, pick int) (model.ValuationSet, error)
	ListSnapshots(ctx context.Context) ([]int, error)
	Close() error
}

// Checkpoints stores folded league state.
type Checkpoints interface {
	Save(ctx context.Context, c checkpoint.Checkpoint) error
	Load(ctx context.Context) (checkpoint.Checkpoint, error)
}

// Status is a point-in-time view of an orchestrator.
type Status struct {
	DraftID       string    `json:"draft_id"`
	LeagueID      string    `json:"league_id"`
	SessionID     string    `json:"session_id"`
	RunID         string    `json:"run_id,omitempty"`
	Phase         Phase     `json:"phase"`
	LastPick      int       `json:"last_pick"`
	CachedPick    int       `json:"cached_pick"`
	Halted        bool      `json:"halted"`
	Paused        bool      `json:"paused"`
	Error         string    `json:"error,omitempty"`
	PollErrors    int       `json:"poll_errors"`
	LastPollError string    `json:"last_poll_error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	LastPollAt    time.Time `json:"last_poll_at,omitzero"`
}

// Orchestrator owns one draft: its event log, its league state and the
// recompute pipeline fed from it. State is only touched by the goroutine
// calling Bootstrap, PollOnce and Run; Status and State may be called from
// anywhere.
type Orchestrator struct {
	id          model.DraftID
	runID       string
	rules       model.Rules
	store       eventlog.Store
	cache       ResultCache
	source      source.Source
	recomputer  valuation.Recomputer
	checkpoints Checkpoints
	queue       *queue.CoalescingQueue

	pollInterval     time.Duration
	recomputeTimeout time.Duration
	snapshotEvery    int
	snapshotHistory  int
	checkpointEvery  int
	now              func() time.Time
	log              logger.Logger

	// Loop owned.
	state        model.LeagueState
	index        *dedupe.PickIndex
	cachedPick   int
	requested    int
	bootstrapped bool
	haltErr      error
	// Snapshot pools whose recompute or write failed, retried next poll.
	retries map[int]model.PoolState

	paused  atomic.Bool
	resumed chan struct{}

	mu      sync.RWMutex
	status  Status
	current model.LeagueState
}

// NewOrchestrator wires an orchestrator for id. It does not touch storage
// until Bootstrap or Run.
func NewOrchestrator(
	id model.DraftID,
	rules model.Rules,
	store eventlog.Store,
	results ResultCache,
	src source.Source,
	recomputer valuation.Recomputer,
	opts ...Option,
) (*Orchestrator, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if store == nil || results == nil || src == nil || recomputer == nil {
		return nil, errors.New("orchestrator needs a store, cache, source and recomputer")
	}

	o := &Orchestrator{
		id:               id,
		rules:            rules,
		store:            store,
		cache:            results,
		source:           src,
		recomputer:       recomputer,
		pollInterval:     defaultPollInterval,
		recomputeTimeout: defaultRecomputeTimeout,
		snapshotEvery:    defaultSnapshotEvery,
		now:              time.Now,
		index:            dedupe.NewPickIndex(),
		cachedPick:       -1,
		requested:        -1,
		retries:          make(map[int]model.PoolState),
		resumed:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Get().Named("orchestrator")
	}
	o.log = o.log.With(logger.String("draft_id", id.String()))
	o.queue = queue.NewCoalescingQueue(queue.WithDraftID(id.String()), queue.WithClock(o.now))
	o.status = Status{
		DraftID:    id.String(),
		LeagueID:   id.LeagueID,
		SessionID:  id.SessionID,
		RunID:      o.runID,
		Phase:      PhaseBootstrapping,
		CachedPick: -1,
		StartedAt:  o.now().UTC(),
	}
	return o, nil
}

// ID returns the draft id.
func (o *Orchestrator) ID() model.DraftID { return o.id }

// Status returns the current status.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// State returns the latest adopted league state.
func (o *Orchestrator) State() model.LeagueState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// Latest returns the cached valuation set.
func (o *Orchestrator) Latest(ctx context.Context) (model.ValuationSet, error) {
	return o.cache.ReadLatest(ctx)
}

// Snapshots lists the stored snapshot picks.
func (o *Orchestrator) Snapshots(ctx context.Context) ([]int, error) {
	return o.cache.ListSnapshots(ctx)
}

// Snapshot returns the snapshot stored for pick.
func (o *Orchestrator) Snapshot(ctx context.Context, pick int) (model.ValuationSet, error) {
	return o.cache.ReadSnapshot(ctx, pick)
}

// Bootstrap rebuilds league state from the event log, seeded by a checkpoint
// when one matches, and loads the cached pick.
func (o *Orchestrator) Bootstrap(ctx context.Context) error {
	o.setPhase(PhaseBootstrapping)

	events, err := o.store.ReadAll(ctx)
	if err != nil {
		return o.fail(ctx, "bootstrap", fmt.Errorf("read event log: %w", err))
	}
	state, err := o.recover(ctx, events)
	if err != nil {
		return o.fail(ctx, "bootstrap", err)
	}
	if err := draft.Verify(state); err != nil {
		return o.fail(ctx, "invariant", err)
	}
	for _, ev := range events {
		o.index.Record(ev)
	}

	latest, err := o.cache.ReadLatest(ctx)
	switch {
	case err == nil:
		if latest.LastPick > state.LastPick {
			return o.fail(ctx, "cache_ahead", fmt.Errorf("%w: cache at pick %d, log at pick %d",
				ErrCacheAhead, latest.LastPick, state.LastPick))
		}
		o.cachedPick = latest.LastPick
	case errors.Is(err, cache.ErrNotFound):
	default:
		o.log.Warn(ctx, "cached valuation unreadable, it will be recomputed", logger.Error(err))
	}

	o.adopt(state)
	o.mu.Lock()
	o.status.CachedPick = o.cachedPick
	o.mu.Unlock()
	o.bootstrapped = true
	o.backfillSnapshots(ctx, events)
	o.setPhase(PhaseIdle)

	o.log.Info(ctx, "draft bootstrapped",
		logger.Int("last_pick", state.LastPick),
		logger.Int("cached_pick", o.cachedPick),
		logger.Int("available_budget", state.AvailableBudget),
		logger.Int("available_roster_spots", state.AvailableRosterSpots))
	return nil
}

func (o *Orchestrator) recover(ctx context.Context, events []model.DraftEvent) (model.LeagueState, error) {
	if !o.store.Exists() || o.checkpoints == nil {
		return draft.Replay(o.rules, events)
	}
	cp, err := o.checkpoints.Load(ctx)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNotFound) {
			o.log.Warn(ctx, "checkpoint unreadable, replaying full log", logger.Error(err))
		}
		return draft.Replay(o.rules, events)
	}
	if err := o.usable(cp, events); err != nil {
		o.log.Warn(ctx, "ignoring checkpoint, replaying full log",
			logger.Int("checkpoint_pick", cp.LastPick), logger.Error(err))
		return draft.Replay(o.rules, events)
	}
	o.log.Info(ctx, "resuming from checkpoint", logger.Int("checkpoint_pick", cp.LastPick))
	return draft.ReplayFrom(cp.State, events)
}

func (o *Orchestrator) usable(cp checkpoint.Checkpoint, events []model.DraftEvent) error {
	if cp.DraftID != o.id.String() {
		return fmt.Errorf("checkpoint belongs to draft %s", cp.DraftID)
	}
	if cp.State.LastPick != cp.LastPick {
		return fmt.Errorf("checkpoint state at pick %d, header at %d", cp.State.LastPick, cp.LastPick)
	}
	if !sameRules(cp.State.Rules, o.rules) {
		return errors.New("checkpoint rules differ from the league rules")
	}
	if err := cp.Matches(events); err != nil {
		return err
	}
	return draft.Verify(cp.State)
}

func sameRules(a, b model.Rules) bool {
	return slices.Equal(a.Teams, b.Teams) &&
		a.Budget == b.Budget &&
		a.RosterSize == b.RosterSize &&
		a.MinBid == b.MinBid
}

// PollOnce runs one poll cycle: it fetches the source's picks, appends and
// applies the new ones, and requests a recompute when state moved. A source
// failure is not an error; a halt is.
func (o *Orchestrator) PollOnce(ctx context.Context) (int, error) {
	if !o.bootstrapped {
		return 0, ErrNotBootstrapped
	}
	if o.haltErr != nil {
		return 0, fmt.Errorf("%w: %w", ErrHalted, o.haltErr)
	}

	o.setPhase(PhasePolling)
	reports, err := o.source.Picks(ctx, o.id)
	o.markPoll(err)
	if err != nil {
		metrics.RecordPollError(o.id.String())
		metrics.RecordErrorByComponent("source", "unavailable")
		o.log.Warn(ctx, "poll failed, retrying next tick", logger.Error(err))
		o.resubmit(ctx)
		o.setPhase(PhaseIdle)
		return 0, nil
	}
	metrics.RecordPoll(o.id.String())

	o.setPhase(PhaseApplying)
	batch, err := o.index.Diff(reports)
	if err != nil {
		if errors.Is(err, dedupe.ErrGap) {
			return 0, o.fail(ctx, "sequence", fmt.Errorf("%w: %w", draft.ErrOutOfSequence, err))
		}
		return 0, o.fail(ctx, "conflict", err)
	}
	for range batch.Duplicates {
		metrics.RecordPickDuplicate(o.id.String())
	}

	applied := 0
	for i, ev := range batch.Fresh {
		if ctx.Err() != nil {
			break
		}
		next, err := draft.Apply(o.state, ev)
		if err != nil {
			return applied, o.fail(ctx, "invariant", err)
		}
		// The append completes even when shutdown starts mid-call.
		if err := o.store.Append(context.WithoutCancel(ctx), ev); err != nil {
			if errors.Is(err, eventlog.ErrDuplicatePick) || errors.Is(err, eventlog.ErrOutOfSequence) {
				return applied, o.fail(ctx, "divergence", err)
			}
			metrics.RecordAppendError(o.id.String())
			metrics.RecordErrorByComponent("eventlog", "append")
			o.log.Error(ctx, "append failed, pick will be retried next poll",
				logger.Int("pick", ev.PickNumber), logger.Error(err))
			break
		}
		o.index.Record(ev)
		o.adopt(next)
		applied++
		metrics.RecordPickApplied(o.id.String(), ev.PickNumber)
		o.log.Info(ctx, "pick applied",
			logger.Int("pick", ev.PickNumber),
			logger.String("player_id", ev.PlayerID),
			logger.String("team_id", ev.TeamID),
			logger.Int("price", ev.Price))

		if i < len(batch.Fresh)-1 && o.snapshotDue(next.LastPick) {
			o.setPhase(PhaseRecomputing)
			o.enqueue(ctx, next, true)
			o.setPhase(PhaseApplying)
		}
		if o.checkpointDue(next.LastPick) {
			o.saveCheckpoint(ctx)
		}
	}

	o.setPhase(PhaseRecomputing)
	o.resubmit(ctx)
	o.setPhase(PhaseIdle)
	return applied, nil
}

// Run bootstraps when needed, then polls every interval until ctx is
// canceled or the draft halts. Canceling ctx is a clean stop and returns
// nil; a halt returns an error wrapping ErrHalted. Run may be called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.bootstrapped {
		if err := o.Bootstrap(ctx); err != nil {
			o.closeRun(ctx, nil)
			return err
		}
	}

	w := worker.New(o.queue, o.recomputer,
		worker.WithTimeout(o.recomputeTimeout),
		worker.WithLogger(o.log.Named("worker")))
	go w.Run(ctx)
	defer o.closeRun(ctx, w)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	o.resubmit(ctx)
	if _, err := o.PollOnce(ctx); err != nil {
		return err
	}
	results := w.Results()
	for {
		select {
		case <-ctx.Done():
			o.log.Info(ctx, "draft stopping", logger.Int("last_pick", o.state.LastPick))
			return nil
		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			o.handleResult(ctx, res)
		case <-ticker.C:
			if o.paused.Load() {
				continue
			}
			if _, err := o.PollOnce(ctx); err != nil {
				return err
			}
		case <-o.resumed:
			if o.paused.Load() {
				continue
			}
			if _, err := o.PollOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) closeRun(ctx context.Context, w *worker.Worker) {
	if w != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), workerShutdownTimeout)
		if err := w.Shutdown(sctx); err != nil {
			o.log.Warn(ctx, "worker shutdown", logger.Error(err))
		}
		cancel()
	}
	_ = o.queue.Close()
	if err := o.store.Close(); err != nil {
		o.log.Error(ctx, "closing event log", logger.Error(err))
	}
	o.setPhase(PhaseStopped)
}

// Close releases the result cache. Call it after Run has returned.
func (o *Orchestrator) Close() error {
	return o.cache.Close()
}

func (o *Orchestrator) handleResult(ctx context.Context, res worker.Result) {
	o.setPhase(PhaseCaching)
	defer o.setPhase(PhaseIdle)

	pick := res.Request.Pool.LastPick
	snapshot := res.Request.Snapshot && o.snapshotDue(pick)
	if res.Err != nil {
		if pick >= o.requested {
			o.requested = -1
		}
		if snapshot {
			o.retries[pick] = res.Request.Pool
		}
		return
	}

	if snapshot && !o.writeSnapshot(ctx, pick, res.Set) {
		o.retries[pick] = res.Request.Pool
	}

	if pick != o.state.LastPick || pick <= o.cachedPick {
		metrics.RecordStaleResult(o.id.String())
		o.log.Debug(ctx, "discarding stale result",
			logger.Int("result_pick", pick),
			logger.Int("last_pick", o.state.LastPick),
			logger.Int("cached_pick", o.cachedPick))
		return
	}
	if err := o.cache.Write(ctx, res.Set); err != nil {
		o.requested = -1
		metrics.RecordErrorByComponent("cache", "write")
		o.log.Warn(ctx, "caching result failed", logger.Int("pick", pick), logger.Error(err))
		return
	}
	o.cachedPick = pick
	o.mu.Lock()
	o.status.CachedPick = pick
	o.mu.Unlock()
	metrics.RecordCacheWrite(o.id.String(), pick)
	o.log.Debug(ctx, "valuations cached", logger.Int("pick", pick), logger.Duration("took", res.Took))
}

// writeSnapshot reports whether the snapshot for pick is stored.
func (o *Orchestrator) writeSnapshot(ctx context.Context, pick int, set model.ValuationSet) bool {
	err := o.cache.WriteSnapshot(ctx, pick, set)
	switch {
	case err == nil:
		metrics.RecordSnapshot(o.id.String())
		o.log.Info(ctx, "snapshot stored", logger.Int("pick", pick))
	case errors.Is(err, cache.ErrSnapshotExists):
		o.log.Debug(ctx, "snapshot already stored", logger.Int("pick", pick))
	default:
		metrics.RecordErrorByComponent("cache", "snapshot")
		o.log.Warn(ctx, "storing snapshot failed, it will be retried",
			logger.Int("pick", pick), logger.Error(err))
		return false
	}
	return true
}

// backfillSnapshots requests every due snapshot up to the current pick that
// the history lacks, folding the log once to rebuild each pool.
func (o *Orchestrator) backfillSnapshots(ctx context.Context, events []model.DraftEvent) {
	missing, err := o.missingSnapshots(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("cache", "snapshot_list")
		o.log.Warn(ctx, "listing snapshots failed, skipping backfill", logger.Error(err))
		return
	}
	if len(missing) == 0 {
		return
	}
	state, err := draft.NewLeague(o.rules)
	if err != nil {
		o.log.Warn(ctx, "snapshot backfill skipped", logger.Error(err))
		return
	}
	next := 0
	for _, ev := range events {
		if state, err = draft.Apply(state, ev); err != nil {
			o.log.Warn(ctx, "snapshot backfill stopped", logger.Int("pick", ev.PickNumber), logger.Error(err))
			return
		}
		if state.LastPick != missing[next] {
			continue
		}
		o.log.Info(ctx, "backfilling snapshot", logger.Int("pick", state.LastPick))
		o.enqueue(ctx, state, true)
		if next++; next == len(missing) {
			return
		}
	}
}

// missingSnapshots lists the due picks up to the current one with no stored
// snapshot, limited to the newest the history keeps.
func (o *Orchestrator) missingSnapshots(ctx context.Context) ([]int, error) {
	if o.snapshotEvery <= 0 || o.state.LastPick < o.snapshotEvery {
		return nil, nil
	}
	stored, err := o.cache.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	first := o.snapshotEvery
	if o.snapshotHistory > 0 {
		newest := o.state.LastPick / o.snapshotEvery
		first = max(1, newest-o.snapshotHistory+1) * o.snapshotEvery
	}
	var missing []int
	for pick := first; pick <= o.state.LastPick; pick += o.snapshotEvery {
		if !slices.Contains(stored, pick) {
			missing = append(missing, pick)
		}
	}
	return missing, nil
}

// resubmit requeues failed snapshots, then requests a recompute of the
// current state unless one is cached or already pending.
func (o *Orchestrator) resubmit(ctx context.Context) {
	for _, pick := range slices.Sorted(maps.Keys(o.retries)) {
		req := queue.Request{Pool: o.retries[pick], Snapshot: true}
		if err := o.queue.Enqueue(ctx, req); err != nil {
			break
		}
		delete(o.retries, pick)
		o.log.Debug(ctx, "snapshot retry requested", logger.Int("pick", pick))
	}
	if o.cachedPick >= o.state.LastPick || o.requested >= o.state.LastPick {
		return
	}
	o.enqueue(ctx, o.state, o.snapshotDue(o.state.LastPick))
}

func (o *Orchestrator) enqueue(ctx context.Context, state model.LeagueState, snapshot bool) {
	req := queue.Request{Pool: draft.Pool(o.id.String(), state), Snapshot: snapshot}
	if err := o.queue.Enqueue(ctx, req); err != nil {
		if ctx.Err() == nil {
			o.log.Warn(ctx, "recompute request dropped", logger.Int("pick", state.LastPick), logger.Error(err))
		}
		return
	}
	if state.LastPick > o.requested {
		o.requested = state.LastPick
	}
}

func (o *Orchestrator) snapshotDue(pick int) bool {
	return o.snapshotEvery > 0 && pick > 0 && pick%o.snapshotEvery == 0
}

func (o *Orchestrator) checkpointDue(pick int) bool {
	return o.checkpoints != nil && o.checkpointEvery > 0 && pick%o.checkpointEvery == 0
}

func (o *Orchestrator) saveCheckpoint(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	events, err := o.store.ReadAll(ctx)
	if err == nil {
		var cp checkpoint.Checkpoint
		cp, err = checkpoint.New(o.id, o.state, events, o.now())
		if err == nil {
			err = o.checkpoints.Save(ctx, cp)
		}
	}
	if err != nil {
		metrics.RecordErrorByComponent("checkpoint", "save")
		o.log.Warn(ctx, "saving checkpoint failed", logger.Int("pick", o.state.LastPick), logger.Error(err))
		return
	}
	metrics.RecordCheckpoint(o.id.String())
	o.log.Debug(ctx, "checkpoint saved", logger.Int("pick", o.state.LastPick))
}

func (o *Orchestrator) adopt(state model.LeagueState) {
	o.state = state
	o.mu.Lock()
	o.current = state
	o.status.LastPick = state.LastPick
	o.mu.Unlock()
	metrics.UpdateLastPick(o.id.String(), state.LastPick)
}

func (o *Orchestrator) markPoll(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.LastPollAt = o.now().UTC()
	if err != nil {
		o.status.PollErrors++
		o.status.LastPollError = err.Error()
		return
	}
	o.status.LastPollError = ""
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.Halted {
		return
	}
	if p == PhaseIdle && o.status.Paused {
		p = PhasePaused
	}
	o.status.Phase = p
}

// Pause stops polling until Resume. Recomputes already requested still
// finish and are cached.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.status.Halted:
		return ErrHalted
	case o.status.Phase == PhaseStopped:
		return ErrNotRunning
	}
	o.paused.Store(true)
	o.status.Paused = true
	if o.status.Phase == PhaseIdle {
		o.status.Phase = PhasePaused
	}
	return nil
}

// Resume restarts polling with an immediate poll.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.status.Halted:
		return ErrHalted
	case o.status.Phase == PhaseStopped:
		return ErrNotRunning
	}
	o.paused.Store(false)
	o.status.Paused = false
	if o.status.Phase == PhasePaused {
		o.status.Phase = PhaseIdle
	}
	select {
	case o.resumed <- struct{}{}:
	default:
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, reason string, err error) error {
	o.haltErr = err
	o.mu.Lock()
	o.status.Phase = PhaseHalted
	o.status.Halted = true
	o.status.Error = err.Error()
	o.mu.Unlock()
	metrics.RecordHalt(o.id.String(), reason)
	o.log.Error(ctx, "draft halted",
		logger.String("reason", reason),
		logger.Int("last_pick", o.state.LastPick),
		logger.Error(err))
	return fmt.Errorf("%w: %w", ErrHalted, err)
}
