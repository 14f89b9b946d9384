// Package eventlog persists draft events as an append-only JSON lines file.
package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/okian/livedraft/internal/domain/dedupe"
	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/pkg/logger"
	"github.com/okian/livedraft/pkg/metrics"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Store is the durable, ordered record of one draft's picks.
type Store interface {
	// Append durably records ev. Re-appending an identical event is a no-op.
	Append(ctx context.Context, ev model.DraftEvent) error
	// ReadAll returns every recorded event in pick order.
	ReadAll(ctx context.Context) ([]model.DraftEvent, error)
	// Exists reports whether the log holds any event.
	Exists() bool
	// Last returns the most recent event.
	Last(ctx context.Context) (model.DraftEvent, bool, error)
	Close() error
}

// Path returns the log file of a draft under dataDir.
func Path(dataDir string, id model.DraftID) string {
	return filepath.Join(dataDir, "events", "draft_"+id.String()+".jsonl")
}

// FileStore is a Store backed by one JSON object per line. Every append is
// followed by an fsync before it returns.
type FileStore struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	size   int64
	events []model.DraftEvent
	index  *dedupe.PickIndex
	log    logger.Logger
	sync   func(*os.File) error
	closed bool
}

// Open loads the log for id under dataDir, creating it when missing. A
// trailing partial record left by a crash is truncated; any other malformed
// record fails with ErrCorruptLog.
func Open(ctx context.Context, dataDir string, id model.DraftID, opts ...Option) (*FileStore, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	s := &FileStore{
		path:  Path(dataDir, id),
		index: dedupe.NewPickIndex(),
		sync:  (*os.File).Sync,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("eventlog")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), directoryPermission); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrIO, err)
	}
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, filePermission)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, s.path, err)
	}
	s.f = f

	if err := s.load(ctx); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load(ctx context.Context) error {
	data, err := io.ReadAll(s.f)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrIO, s.path, err)
	}

	var offset int64
	for lineNo := 1; len(data) > 0; lineNo++ {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			// No terminator: the last write never completed.
			return s.truncate(ctx, offset, len(data))
		}
		line := data[:nl]
		rest := data[nl+1:]

		if len(bytes.TrimSpace(line)) > 0 {
			var ev model.DraftEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				if len(bytes.TrimSpace(rest)) == 0 {
					return s.truncate(ctx, offset, len(data))
				}
				return fmt.Errorf("%w: %s line %d: %w", ErrCorruptLog, s.path, lineNo, err)
			}
			if err := ev.Validate(); err != nil {
				return fmt.Errorf("%w: %s line %d: %w", ErrCorruptLog, s.path, lineNo, err)
			}
			if want := len(s.events) + 1; ev.PickNumber != want {
				return fmt.Errorf("%w: %s line %d holds pick %d, expected %d",
					ErrCorruptLog, s.path, lineNo, ev.PickNumber, want)
			}
			s.events = append(s.events, ev)
			s.index.Record(ev)
		}
		offset += int64(nl + 1)
		data = rest
	}
	s.size = offset
	return nil
}

func (s *FileStore) truncate(ctx context.Context, offset int64, dropped int) error {
	if err := s.f.Truncate(offset); err != nil {
		return fmt.Errorf("%w: truncate partial record: %w", ErrIO, err)
	}
	if err := s.sync(s.f); err != nil {
		return fmt.Errorf("%w: sync after truncate: %w", ErrIO, err)
	}
	s.size = offset
	s.log.Warn(ctx, "truncated partial trailing record",
		logger.String("path", s.path),
		logger.Int64("offset", offset),
		logger.Int("bytes", dropped),
		logger.Int("events", len(s.events)))
	return nil
}

// Append durably records ev.
func (s *FileStore) Append(ctx context.Context, ev model.DraftEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &AppendError{Pick: ev.PickNumber, Err: ErrClosed}
	}
	if err := ev.Validate(); err != nil {
		return &AppendError{Pick: ev.PickNumber, Err: fmt.Errorf("%w: %w", ErrInvalidEvent, err)}
	}
	switch s.index.Check(ev) {
	case dedupe.Duplicate:
		return nil
	case dedupe.Conflict:
		return &AppendError{Pick: ev.PickNumber, Err: ErrDuplicatePick}
	}
	if want := len(s.events) + 1; ev.PickNumber != want {
		return &AppendError{Pick: ev.PickNumber, Err: fmt.Errorf("%w: expected %d", ErrOutOfSequence, want)}
	}
	if err := ctx.Err(); err != nil {
		return &AppendError{Pick: ev.PickNumber, Err: err}
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return &AppendError{Pick: ev.PickNumber, Err: fmt.Errorf("%w: encode: %w", ErrIO, err)}
	}
	line = append(line, '\n')

	start := time.Now()
	if _, err := s.f.Write(line); err != nil {
		s.rollback(ctx)
		return &AppendError{Pick: ev.PickNumber, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	if err := s.sync(s.f); err != nil {
		s.rollback(ctx)
		return &AppendError{Pick: ev.PickNumber, Err: fmt.Errorf("%w: sync: %w", ErrIO, err)}
	}
	metrics.RecordStoreLatency("eventlog", float64(time.Since(start).Microseconds())/1000)

	s.size += int64(len(line))
	s.events = append(s.events, ev)
	s.index.Record(ev)
	return nil
}

// rollback drops a write that did not become durable so the file matches
// the in-memory log.
func (s *FileStore) rollback(ctx context.Context) {
	if err := s.f.Truncate(s.size); err != nil {
		s.log.Error(ctx, "failed to roll back partial append", logger.String("path", s.path), logger.Error(err))
	}
}

// ReadAll returns a copy of every recorded event.
func (s *FileStore) ReadAll(_ context.Context) ([]model.DraftEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events), nil
}

// Exists reports whether the log holds any event.
func (s *FileStore) Exists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events) > 0
}

// Last returns the most recent event.
func (s *FileStore) Last(_ context.Context) (model.DraftEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return model.DraftEvent{}, false, nil
	}
	return s.events[len(s.events)-1], true, nil
}

// Len returns the number of recorded events.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

// Close syncs and closes the file. Further appends fail with ErrClosed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.sync(s.f); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("%w: sync on close: %w", ErrIO, err)
	}
	return s.f.Close()
}
