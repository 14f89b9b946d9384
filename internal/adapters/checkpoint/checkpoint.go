// Package checkpoint saves folded league state so a restart can skip most of
// the event log replay. A checkpoint is only a shortcut: it is used when its
// digest matches the log prefix it claims to summarize.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/pkg/fileutil"
)

var (
	ErrNotFound       = errors.New("checkpoint not found")
	ErrDigestMismatch = errors.New("checkpoint digest does not match the event log")
	ErrBeyondLog      = errors.New("checkpoint is ahead of the event log")
)

// Checkpoint is the league state after LastPick events.
type Checkpoint struct {
	DraftID      string            `json:"draft_id"`
	LastPick     int               `json:"last_pick"`
	EventsDigest string            `json:"events_digest"`
	State        model.LeagueState `json:"state"`
	SavedAt      time.Time         `json:"saved_at"`
}

// Digest hashes the canonical JSON encoding of events. Timestamps are
// normalized to UTC first so equal instants hash equally.
func Digest(events []model.DraftEvent) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, ev := range events {
		ev.Timestamp = ev.Timestamp.UTC()
		if err := enc.Encode(ev); err != nil {
			return "", fmt.Errorf("encode pick %d: %w", ev.PickNumber, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// New builds a checkpoint of state, digesting the events it was folded from.
func New(id model.DraftID, state model.LeagueState, events []model.DraftEvent, now time.Time) (Checkpoint, error) {
	if len(events) != state.LastPick {
		return Checkpoint{}, fmt.Errorf("state at pick %d built from %d events", state.LastPick, len(events))
	}
	digest, err := Digest(events)
	if err != nil {
		return Checkpoint{}, err
	}
	return Checkpoint{
		DraftID:      id.String(),
		LastPick:     state.LastPick,
		EventsDigest: digest,
		State:        state,
		SavedAt:      now.UTC(),
	}, nil
}

// Matches checks that the checkpoint summarizes the first LastPick events of log.
func (c Checkpoint) Matches(log []model.DraftEvent) error {
	if c.LastPick > len(log) {
		return fmt.Errorf("%w: checkpoint at pick %d, log holds %d", ErrBeyondLog, c.LastPick, len(log))
	}
	digest, err := Digest(log[:c.LastPick])
	if err != nil {
		return err
	}
	if digest != c.EventsDigest {
		return fmt.Errorf("%w at pick %d", ErrDigestMismatch, c.LastPick)
	}
	return nil
}

// Path returns the checkpoint file of a draft under dataDir.
func Path(dataDir string, id model.DraftID) string {
	return filepath.Join(dataDir, "checkpoints", "draft_"+id.String()+".json")
}

// File stores one draft's checkpoint.
type File struct {
	path string
}

// NewFile returns the checkpoint file for id under dataDir.
func NewFile(dataDir string, id model.DraftID) *File {
	return &File{path: Path(dataDir, id)}
}

// Save atomically replaces the stored checkpoint.
func (f *File) Save(ctx context.Context, c Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	return fileutil.WriteAtomic(f.path, data, 0o600)
}

// Load returns the stored checkpoint, or ErrNotFound.
func (f *File) Load(ctx context.Context) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return c, nil
}
