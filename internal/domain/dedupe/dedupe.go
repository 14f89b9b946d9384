package dedupe

import (
	"fmt"
	"slices"
	"sync"

	"github.com/okian/livedraft/internal/domain/model"
)

// Verdict classifies an event against the index.
type Verdict int

const (
	// New means no pick with this number is recorded.
	New Verdict = iota
	// Duplicate means an identical pick is recorded.
	Duplicate
	// Conflict means a different pick holds this number.
	Conflict
)

func (v Verdict) String() string {
	switch v {
	case New:
		return "new"
	case Duplicate:
		return "duplicate"
	case Conflict:
		return "conflict"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// PickIndex maps pick numbers to recorded events. It is safe for concurrent
// use.
type PickIndex struct {
	mu       sync.RWMutex
	picks    map[int]model.DraftEvent
	last     int
	capacity int
}

// NewPickIndex creates an empty index.
func NewPickIndex(opts ...Option) *PickIndex {
	x := &PickIndex{}
	for _, opt := range opts {
		opt(x)
	}
	x.picks = make(map[int]model.DraftEvent, x.capacity)
	return x
}

// Check classifies ev without recording it.
func (x *PickIndex) Check(ev model.DraftEvent) Verdict {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.check(ev)
}

func (x *PickIndex) check(ev model.DraftEvent) Verdict {
	rec, ok := x.picks[ev.PickNumber]
	switch {
	case !ok:
		return New
	case rec.Equal(ev):
		return Duplicate
	default:
		return Conflict
	}
}

// Record stores ev when its number is free and returns the verdict it had
// before the call.
func (x *PickIndex) Record(ev model.DraftEvent) Verdict {
	x.mu.Lock()
	defer x.mu.Unlock()
	v := x.check(ev)
	if v == New {
		x.picks[ev.PickNumber] = ev
		x.last = max(x.last, ev.PickNumber)
	}
	return v
}

// Get returns the event recorded at pick n.
func (x *PickIndex) Get(n int) (model.DraftEvent, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ev, ok := x.picks[n]
	return ev, ok
}

// Last returns the highest recorded pick number, or 0.
func (x *PickIndex) Last() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.last
}

// Len returns the number of recorded picks.
func (x *PickIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.picks)
}

// Batch is the outcome of diffing one poll against the index.
type Batch struct {
	// Fresh holds the unrecorded picks in ascending order, starting right
	// after the last recorded pick with no gaps.
	Fresh []model.DraftEvent
	// Duplicates counts reports that matched recorded picks.
	Duplicates int
}

// Diff separates a poll's reports into already recorded and fresh picks.
// Reports repeating a recorded pick exactly are skipped. Two different
// reports for one number, a report contradicting a recorded pick, or fresh
// picks that do not continue the sequence are errors.
func (x *PickIndex) Diff(reports []model.PickReport) (Batch, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	byNumber := make(map[int]model.DraftEvent, len(reports))
	var b Batch
	for _, r := range reports {
		ev := r.Event()
		if prev, ok := byNumber[ev.PickNumber]; ok {
			if !prev.Equal(ev) {
				return Batch{}, fmt.Errorf("%w: pick %d reported as %s and %s",
					ErrConflictingReports, ev.PickNumber, prev, ev)
			}
			continue
		}
		byNumber[ev.PickNumber] = ev

		switch x.check(ev) {
		case Duplicate:
			b.Duplicates++
		case Conflict:
			rec := x.picks[ev.PickNumber]
			return Batch{}, fmt.Errorf("%w: recorded %s, reported %s", ErrHistoryMismatch, rec, ev)
		case New:
			if ev.PickNumber <= x.last {
				return Batch{}, fmt.Errorf("%w: pick %d below last recorded pick %d is unknown",
					ErrGap, ev.PickNumber, x.last)
			}
			b.Fresh = append(b.Fresh, ev)
		}
	}

	slices.SortFunc(b.Fresh, func(a, c model.DraftEvent) int { return a.PickNumber - c.PickNumber })
	for i, ev := range b.Fresh {
		if want := x.last + 1 + i; ev.PickNumber != want {
			return Batch{}, fmt.Errorf("%w: expected pick %d, next reported is %d", ErrGap, want, ev.PickNumber)
		}
	}
	return b, nil
}
