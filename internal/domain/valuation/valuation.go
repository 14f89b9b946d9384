// Package valuation defines the recompute contract and the default dollar
// allocator behind it.
package valuation

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/okian/livedraft/internal/domain/model"
)

// Default allocator configuration constants.
const (
	defaultHitterShare = 13.0 / 24.0
)

// Recomputer turns a pool state into valuations. Implementations must be
// deterministic for a given input, apart from ComputedAt.
type Recomputer interface {
	Recompute(ctx context.Context, pool model.PoolState) (model.ValuationSet, error)
}

// RecomputerFunc adapts a function to Recomputer.
type RecomputerFunc func(ctx context.Context, pool model.PoolState) (model.ValuationSet, error)

func (f RecomputerFunc) Recompute(ctx context.Context, pool model.PoolState) (model.ValuationSet, error) {
	return f(ctx, pool)
}

// Option applies a configuration option to the Allocator.
type Option func(*Allocator)

// WithHitterShare sets the fraction of roster spots filled by hitters.
func WithHitterShare(share float64) Option {
	return func(a *Allocator) {
		if share >= 0 && share <= 1 {
			a.hitterShare = share
		}
	}
}

// WithLatency simulates the cost of an external valuation pipeline.
func WithLatency(d time.Duration) Option {
	return func(a *Allocator) {
		if d > 0 {
			a.latency = d
		}
	}
}

// WithClock sets the time source for ComputedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) {
		if now != nil {
			a.now = now
		}
	}
}

// Allocator prices the undrafted pool by value above replacement. Hitters and
// pitchers get their own replacement level and share the spendable dollars in
// proportion to the value each group generates.
type Allocator struct {
	players     []Player
	byID        map[string]Player
	hitterShare float64
	latency     time.Duration
	now         func() time.Time
}

// NewAllocator creates an allocator over a fixed player pool.
func NewAllocator(players []Player, opts ...Option) (*Allocator, error) {
	if len(players) == 0 {
		return nil, ErrEmptyPool
	}
	a := &Allocator{
		players:     slices.Clone(players),
		byID:        make(map[string]Player, len(players)),
		hitterShare: defaultHitterShare,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	for _, p := range a.players {
		a.byID[p.PlayerID] = p
	}
	return a, nil
}

// Recompute prices every player not listed as a keeper.
func (a *Allocator) Recompute(ctx context.Context, pool model.PoolState) (model.ValuationSet, error) {
	if a.latency > 0 {
		select {
		case <-ctx.Done():
			return model.ValuationSet{}, fmt.Errorf("recompute cancelled: %w", ctx.Err())
		case <-time.After(a.latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return model.ValuationSet{}, fmt.Errorf("recompute cancelled: %w", err)
	}

	kept := make(map[string]struct{}, len(pool.Keepers))
	keptHitters := 0
	for _, k := range pool.Keepers {
		kept[k.PlayerID] = struct{}{}
		if p, ok := a.byID[k.PlayerID]; ok && p.Type == model.PlayerHitter {
			keptHitters++
		}
	}

	var hitters, pitchers []Player
	for _, p := range a.players {
		if _, ok := kept[p.PlayerID]; ok {
			continue
		}
		if p.Type == model.PlayerHitter {
			hitters = append(hitters, p)
		} else {
			pitchers = append(pitchers, p)
		}
	}
	slices.SortFunc(hitters, byValue)
	slices.SortFunc(pitchers, byValue)

	remaining := max(pool.RemainingSlots, 0)
	totalSlots := remaining + len(pool.Keepers)
	hitterSlots := int(math.Round(float64(totalSlots)*a.hitterShare)) - keptHitters
	hitterSlots = min(max(hitterSlots, 0), remaining)
	pitcherSlots := remaining - hitterSlots

	hv, hVAR := aboveReplacement(hitters, hitterSlots)
	pv, pVAR := aboveReplacement(pitchers, pitcherSlots)

	dollars := float64(max(pool.RemainingBudget-remaining*pool.MinBid, 0))
	hDollars, pDollars := dollars/2, dollars/2
	if total := hVAR + pVAR; total > 0 {
		hDollars = dollars * hVAR / total
		pDollars = dollars * pVAR / total
	}

	players := make([]model.PlayerValuation, 0, len(hv)+len(pv))
	players = appendPriced(players, hv, hitterSlots, hVAR, hDollars, pool.MinBid)
	players = appendPriced(players, pv, pitcherSlots, pVAR, pDollars, pool.MinBid)
	slices.SortFunc(players, func(x, y model.PlayerValuation) int {
		if c := cmp.Compare(y.AuctionValue, x.AuctionValue); c != 0 {
			return c
		}
		if c := cmp.Compare(y.Value, x.Value); c != 0 {
			return c
		}
		return strings.Compare(x.PlayerID, y.PlayerID)
	})
	for i := range players {
		players[i].Rank = i + 1
	}

	return model.ValuationSet{
		DraftID:         pool.DraftID,
		LastPick:        pool.LastPick,
		ComputedAt:      a.now().UTC(),
		Players:         players,
		Teams:           slices.Clone(pool.Teams),
		RemainingBudget: pool.RemainingBudget,
		RemainingSlots:  pool.RemainingSlots,
	}, nil
}

type scored struct {
	player  Player
	surplus float64
}

// aboveReplacement returns the players with their value above the
// replacement level set by the first undraftable player, and the group total.
func aboveReplacement(sorted []Player, slots int) ([]scored, float64) {
	replacement := 0.0
	if slots < len(sorted) {
		replacement = sorted[slots].Value
	}
	out := make([]scored, len(sorted))
	total := 0.0
	for i, p := range sorted {
		out[i].player = p
		if i < slots {
			out[i].surplus = math.Max(p.Value-replacement, 0)
			total += out[i].surplus
		}
	}
	return out, total
}

func appendPriced(dst []model.PlayerValuation, group []scored, slots int, groupVAR, groupDollars float64, minBid int) []model.PlayerValuation {
	for i, s := range group {
		price := 0
		if i < slots {
			price = minBid
			if groupVAR > 0 && s.surplus > 0 {
				price += int(math.Round(s.surplus / groupVAR * groupDollars))
			}
		}
		dst = append(dst, model.PlayerValuation{
			PlayerID:     s.player.PlayerID,
			Name:         s.player.Name,
			Type:         s.player.Type,
			Positions:    slices.Clone(s.player.Positions),
			Value:        s.player.Value,
			AuctionValue: price,
		})
	}
	return dst
}

func byValue(a, b Player) int {
	if c := cmp.Compare(b.Value, a.Value); c != 0 {
		return c
	}
	return strings.Compare(a.PlayerID, b.PlayerID)
}
