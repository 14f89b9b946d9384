package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/livedraft/internal/adapters/cache"
	"github.com/okian/livedraft/internal/adapters/checkpoint"
	"github.com/okian/livedraft/internal/adapters/eventlog"
	"github.com/okian/livedraft/internal/adapters/source"
	"github.com/okian/livedraft/internal/config"
	"github.com/okian/livedraft/internal/domain/draft"
	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/internal/domain/valuation"
	"github.com/okian/livedraft/pkg/logger"
	"github.com/okian/livedraft/pkg/metrics"
)

// DraftSpec describes a draft to start. Empty fields fall back to the
// service configuration. The source fields are never decoded from JSON, so
// API callers cannot point the service at arbitrary files, URLs or keys.
type DraftSpec struct {
	LeagueID     string   `json:"league_id"`
	SessionID    string   `json:"session_id,omitempty"`
	TeamIDs      []string `json:"team_ids,omitempty"`
	Teams        int      `json:"teams,omitempty"`
	Budget       int      `json:"budget,omitempty"`
	RosterSize   int      `json:"roster_size,omitempty"`
	MinBid       *int     `json:"min_bid,omitempty"`
	SourceKind   string   `json:"-"`
	SourceURL    string   `json:"-"`
	SourceFile   string   `json:"-"`
	SourceAPIKey string   `json:"-"`
}

// SpecFromConfig returns the draft configured to start at boot.
func SpecFromConfig(cfg *config.Config) DraftSpec {
	return DraftSpec{LeagueID: cfg.LeagueID, SessionID: cfg.SessionID}
}

// SourceFactory builds the source for a resolved spec.
type SourceFactory func(cfg *config.Config, spec DraftSpec) (source.Source, error)

// DefaultSources builds an HTTP or file source from the spec.
func DefaultSources(cfg *config.Config, spec DraftSpec) (source.Source, error) {
	switch spec.SourceKind {
	case config.SourceFile:
		if spec.SourceFile == "" {
			return nil, fmt.Errorf("%w: source_file is required", ErrInvalidSpec)
		}
		return source.NewFileSource(spec.SourceFile), nil
	case config.SourceHTTP:
		return source.NewHTTPSource(spec.SourceURL,
			source.WithAPIKey(spec.SourceAPIKey),
			source.WithTimeout(cfg.SourceTimeout()),
			source.WithMaxRetries(cfg.SourceMaxRetries))
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", ErrInvalidSpec, spec.SourceKind)
	}
}

// ServiceOption applies a configuration option to the Service.
type ServiceOption func(*Service)

// WithSourceFactory replaces how draft sources are built.
func WithSourceFactory(f SourceFactory) ServiceOption {
	return func(s *Service) {
		if f != nil {
			s.sources = f
		}
	}
}

// WithRecomputer sets the recompute pipeline shared by every draft. Without
// it the allocator is built from the configured pool file.
func WithRecomputer(r valuation.Recomputer) ServiceOption {
	return func(s *Service) {
		s.recomputer = r
	}
}

// WithServiceLogger sets a custom logger for the service.
func WithServiceLogger(l logger.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithServiceClock sets the time source for session ids and timestamps.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type entry struct {
	orch *Orchestrator
	stop context.CancelFunc
	done chan struct{}
	err  error
}

// Service runs any number of drafts side by side. Drafts share nothing but
// the recompute pipeline, which is stateless.
type Service struct {
	cfg        *config.Config
	sources    SourceFactory
	recomputer valuation.Recomputer
	now        func() time.Time
	logger     logger.Logger

	base      context.Context
	cancelAll context.CancelFunc

	pipeMu sync.Mutex

	mu       sync.RWMutex
	drafts   map[string]*entry
	starting map[string]struct{}
	closed   bool
}

// New constructs a Service for cfg.
func New(cfg *config.Config, opts ...ServiceOption) *Service {
	base, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:       cfg,
		sources:   DefaultSources,
		now:       time.Now,
		base:      base,
		cancelAll: cancel,
		drafts:    make(map[string]*entry),
		starting:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

func (s *Service) resolve(spec DraftSpec) (model.DraftID, model.Rules, DraftSpec) {
	if spec.SessionID == "" {
		spec.SessionID = model.NewSessionID(s.now())
	}
	if spec.SourceKind == "" {
		spec.SourceKind = s.cfg.SourceKind
	}
	if spec.SourceURL == "" {
		spec.SourceURL = s.cfg.SourceURL
	}
	if spec.SourceFile == "" {
		spec.SourceFile = s.cfg.SourceFile
	}
	if spec.SourceAPIKey == "" {
		spec.SourceAPIKey = s.cfg.SourceAPIKey
	}

	rules := s.cfg.Rules()
	switch {
	case len(spec.TeamIDs) > 0:
		rules.Teams = slices.Clone(spec.TeamIDs)
	case spec.Teams > 0:
		rules.Teams = model.DefaultRules(spec.Teams).Teams
	}
	if spec.Budget > 0 {
		rules.Budget = spec.Budget
	}
	if spec.RosterSize > 0 {
		rules.RosterSize = spec.RosterSize
	}
	if spec.MinBid != nil {
		rules.MinBid = *spec.MinBid
	}
	return model.DraftID{LeagueID: spec.LeagueID, SessionID: spec.SessionID}, rules, spec
}

// pipeline returns the shared recomputer, loading it on first use.
func (s *Service) pipeline() (valuation.Recomputer, error) {
	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()
	if s.recomputer != nil {
		return s.recomputer, nil
	}
	players, err := valuation.LoadPool(s.cfg.PoolFile)
	if err != nil {
		return nil, err
	}
	alloc, err := valuation.NewAllocator(players, valuation.WithClock(s.now))
	if err != nil {
		return nil, err
	}
	s.recomputer = alloc
	return alloc, nil
}

// Start opens, bootstraps and runs a draft. The draft keeps running after
// ctx ends; use Stop or Shutdown to end it. The draft id is reserved while
// its files are opened, so other calls never wait on that I/O.
func (s *Service) Start(ctx context.Context, spec DraftSpec) (Status, error) {
	id, rules, spec := s.resolve(spec)
	if err := id.Validate(); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	if err := rules.Validate(); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	key := id.String()
	if err := s.reserve(key); err != nil {
		return Status{}, err
	}

	orch, err := s.open(ctx, id, rules, spec)
	if err != nil {
		s.release(key)
		if orch != nil {
			return orch.Status(), err
		}
		return Status{}, err
	}

	s.mu.Lock()
	delete(s.starting, key)
	if s.closed {
		s.mu.Unlock()
		_ = orch.store.Close()
		_ = orch.Close()
		return Status{}, ErrServiceClosed
	}
	runCtx, stop := context.WithCancel(s.base)
	e := &entry{orch: orch, stop: stop, done: make(chan struct{})}
	s.drafts[key] = e
	go s.run(runCtx, e)
	s.updateActive()
	s.mu.Unlock()

	s.logger.Info(ctx, "draft started",
		logger.String("draft_id", key),
		logger.String("run_id", orch.Status().RunID),
		logger.String("source_kind", spec.SourceKind),
		logger.Int("teams", len(rules.Teams)))
	return orch.Status(), nil
}

func (s *Service) reserve(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServiceClosed
	}
	_, running := s.drafts[key]
	_, starting := s.starting[key]
	if running || starting {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, key)
	}
	s.starting[key] = struct{}{}
	return nil
}

func (s *Service) release(key string) {
	s.mu.Lock()
	delete(s.starting, key)
	s.mu.Unlock()
}

// open builds and bootstraps the orchestrator for id. On a bootstrap failure
// the orchestrator is returned with its files closed so its status can be
// reported.
func (s *Service) open(ctx context.Context, id model.DraftID, rules model.Rules, spec DraftSpec) (*Orchestrator, error) {
	rec, err := s.pipeline()
	if err != nil {
		return nil, fmt.Errorf("load valuation pipeline: %w", err)
	}
	src, err := s.sources(s.cfg, spec)
	if err != nil {
		return nil, err
	}
	store, err := eventlog.Open(ctx, s.cfg.DataDir, id, eventlog.WithLogger(s.logger.Named("eventlog")))
	if err != nil {
		return nil, err
	}
	results, err := cache.Open(ctx, s.cfg.DataDir, id,
		cache.WithHistoryLimit(s.cfg.HistoryLimit),
		cache.WithLogger(s.logger.Named("cache")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	orch, err := NewOrchestrator(id, rules, store, results, src, rec,
		WithRunID(uuid.NewString()),
		WithPollInterval(s.cfg.PollInterval()),
		WithRecomputeTimeout(s.cfg.RecomputeTimeout()),
		WithSnapshotEvery(s.cfg.SnapshotEvery),
		WithSnapshotHistory(s.cfg.HistoryLimit),
		WithCheckpoints(checkpoint.NewFile(s.cfg.DataDir, id), s.cfg.CheckpointEvery),
		WithClock(s.now),
		WithLogger(s.logger.Named("orchestrator")),
	)
	if err != nil {
		_ = store.Close()
		_ = results.Close()
		return nil, err
	}
	if err := orch.Bootstrap(ctx); err != nil {
		_ = store.Close()
		_ = results.Close()
		return orch, err
	}
	return orch, nil
}

func (s *Service) run(ctx context.Context, e *entry) {
	err := e.orch.Run(ctx)
	s.mu.Lock()
	e.err = err
	close(e.done)
	s.updateActive()
	s.mu.Unlock()
	if err != nil {
		s.logger.Error(ctx, "draft ended", logger.String("draft_id", e.orch.ID().String()), logger.Error(err))
	}
}

// updateActive refreshes the active drafts gauge. Callers hold s.mu.
func (s *Service) updateActive() {
	n := 0
	for _, e := range s.drafts {
		select {
		case <-e.done:
		default:
			n++
		}
	}
	metrics.UpdateActiveDrafts(n)
}

// Stop ends a draft and forgets it. A halted draft stays listed until it is
// stopped.
func (s *Service) Stop(ctx context.Context, draftID string) error {
	s.mu.Lock()
	e, ok := s.drafts[draftID]
	if ok {
		delete(s.drafts, draftID)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}

	e.stop()
	select {
	case <-e.done:
	case <-ctx.Done():
		return fmt.Errorf("stop %s: %w", draftID, ctx.Err())
	}
	if err := e.orch.Close(); err != nil {
		s.logger.Warn(ctx, "closing cache", logger.String("draft_id", draftID), logger.Error(err))
	}

	s.mu.Lock()
	s.updateActive()
	s.mu.Unlock()
	s.logger.Info(ctx, "draft stopped", logger.String("draft_id", draftID))
	return nil
}

func (s *Service) lookup(draftID string) (*Orchestrator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.drafts[draftID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	return e.orch, nil
}

// Status returns the status of one draft.
func (s *Service) Status(draftID string) (Status, error) {
	o, err := s.lookup(draftID)
	if err != nil {
		return Status{}, err
	}
	return o.Status(), nil
}

// List returns the status of every draft, ordered by draft id.
func (s *Service) List() []Status {
	s.mu.RLock()
	out := make([]Status, 0, len(s.drafts))
	for _, e := range s.drafts {
		out = append(out, e.orch.Status())
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Status) int { return cmp.Compare(a.DraftID, b.DraftID) })
	return out
}

// State returns a draft's league state.
func (s *Service) State(draftID string) (model.LeagueState, error) {
	o, err := s.lookup(draftID)
	if err != nil {
		return model.LeagueState{}, err
	}
	return o.State(), nil
}

// Pause stops a draft polling its source until Resume.
func (s *Service) Pause(ctx context.Context, draftID string) (Status, error) {
	o, err := s.lookup(draftID)
	if err != nil {
		return Status{}, err
	}
	if err := o.Pause(); err != nil {
		return o.Status(), fmt.Errorf("pause %s: %w", draftID, err)
	}
	s.logger.Info(ctx, "draft paused", logger.String("draft_id", draftID))
	return o.Status(), nil
}

// Resume restarts polling for a paused draft.
func (s *Service) Resume(ctx context.Context, draftID string) (Status, error) {
	o, err := s.lookup(draftID)
	if err != nil {
		return Status{}, err
	}
	if err := o.Resume(); err != nil {
		return o.Status(), fmt.Errorf("resume %s: %w", draftID, err)
	}
	s.logger.Info(ctx, "draft resumed", logger.String("draft_id", draftID))
	return o.Status(), nil
}

// Resources returns the remaining budget and slot shares of a draft's teams.
func (s *Service) Resources(draftID string) (model.LeagueResources, error) {
	o, err := s.lookup(draftID)
	if err != nil {
		return model.LeagueResources{}, err
	}
	res := draft.Resources(o.State())
	res.DraftID = draftID
	return res, nil
}

// Valuations returns a draft's latest cached valuation set.
func (s *Service) Valuations(ctx context.Context, draftID string) (model.ValuationSet, error) {
	o, err := s.lookup(draftID)
	if err != nil {
		return model.ValuationSet{}, err
	}
	return o.Latest(ctx)
}

// Snapshots lists a draft's stored snapshot picks.
func (s *Service) Snapshots(ctx context.Context, draftID string) ([]int, error) {
	o, err := s.lookup(draftID)
	if err != nil {
		return nil, err
	}
	return o.Snapshots(ctx)
}

// Snapshot returns one stored snapshot.
func (s *Service) Snapshot(ctx context.Context, draftID string, pick int) (model.ValuationSet, error) {
	o, err := s.lookup(draftID)
	if err != nil {
		return model.ValuationSet{}, err
	}
	return o.Snapshot(ctx, pick)
}

// Shutdown stops every draft. In-flight appends complete; in-flight
// recomputes are abandoned.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	entries := make([]*entry, 0, len(s.drafts))
	for _, e := range s.drafts {
		entries = append(entries, e)
	}
	s.drafts = make(map[string]*entry)
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping drafts", logger.Int("count", len(entries)))
	s.cancelAll()

	var firstErr error
	for _, e := range entries {
		select {
		case <-e.done:
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = fmt.Errorf("shutdown: %w", ctx.Err())
			}
			continue
		}
		if err := e.orch.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	metrics.UpdateActiveDrafts(0)
	return firstErr
}
