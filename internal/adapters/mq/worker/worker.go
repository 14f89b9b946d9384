package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/livedraft/internal/adapters/mq/queue"
	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/internal/domain/valuation"
	"github.com/okian/livedraft/pkg/logger"
	"github.com/okian/livedraft/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultTimeout      = 30 * time.Second
	defaultResultBuffer = 4
)

// ErrResultMismatch is returned when a recompute answers for a different pick
// than it was asked about.
var ErrResultMismatch = errors.New("recompute result does not match request")

// Source is where the worker takes requests from.
type Source interface {
	Next(ctx context.Context) (queue.Request, error)
}

// Result is the outcome of one request.
type Result struct {
	Request queue.Request
	Set     model.ValuationSet
	Err     error
	Took    time.Duration
}

// Worker takes requests from a Source and hands each to a Recomputer, then
// publishes the outcome on Results. Only one recompute runs at a time.
type Worker struct {
	source     Source
	recomputer valuation.Recomputer
	name       string
	timeout    time.Duration
	buffer     int
	results    chan Result

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// New creates a worker.
func New(source Source, recomputer valuation.Recomputer, opts ...Option) *Worker {
	w := &Worker{
		source:     source,
		recomputer: recomputer,
		name:       "worker",
		timeout:    defaultTimeout,
		buffer:     defaultResultBuffer,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	w.results = make(chan Result, w.buffer)
	return w
}

// Results delivers one Result per request taken. It is closed when Run
// returns.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Run serves requests until ctx is canceled, Shutdown is called or the
// source is closed.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	defer close(w.results)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		req, err := w.source.Next(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) && ctx.Err() == nil {
				w.logger.Error(ctx, "taking request failed", logger.Error(err))
			}
			return
		}

		res := w.process(ctx, req)
		if ctx.Err() != nil {
			// Abandoned by shutdown; nobody is waiting for it.
			return
		}
		select {
		case w.results <- res:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, req queue.Request) Result {
	draftID := req.Pool.DraftID
	rctx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	set, err := w.recomputer.Recompute(rctx, req.Pool)
	took := time.Since(start)
	metrics.RecordRecomputeLatency(draftID, float64(took.Microseconds())/1000)

	if err == nil && set.LastPick != req.Pool.LastPick {
		err = fmt.Errorf("%w: asked for pick %d, got %d", ErrResultMismatch, req.Pool.LastPick, set.LastPick)
	}
	if err != nil {
		kind := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			kind = "timeout"
		}
		metrics.RecordRecomputeError(draftID, kind)
		if ctx.Err() == nil {
			w.logger.Warn(ctx, "recompute failed",
				logger.String("draft_id", draftID),
				logger.Int("pick", req.Pool.LastPick),
				logger.String("kind", kind),
				logger.Duration("took", took),
				logger.Error(err))
		}
		return Result{Request: req, Err: err, Took: took}
	}

	w.logger.Debug(ctx, "recompute finished",
		logger.String("draft_id", draftID),
		logger.Int("pick", req.Pool.LastPick),
		logger.Bool("snapshot", req.Snapshot),
		logger.Duration("took", took))
	return Result{Request: req, Set: set, Took: took}
}

// Shutdown stops the worker, abandoning any recompute in flight, and waits
// for Run to return.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
