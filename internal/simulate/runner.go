// Package simulate rehearses live drafts: it generates valid drafts, serves
// them in the provider's results format and checks that an engine keeps up.
package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/internal/domain/valuation"
	"github.com/okian/livedraft/pkg/logger"
)

// Runner configuration constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
	readHeaderTimeout   = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
	verifyPollInterval  = 500 * time.Millisecond
	verifyDeadline      = 2 * time.Minute
)

// Run generates a scenario, writes its pool, and serves it until every pick
// is revealed and, when an engine url is set, the engine has caught up.
func Run(ctx context.Context, cfg *Config) error {
	log := logger.Get().Named("simulate")

	rules := model.DefaultRules(cfg.Teams)
	rules.Budget, rules.RosterSize, rules.MinBid = cfg.Budget, cfg.RosterSize, cfg.MinBid
	picks := cfg.Picks
	if picks == 0 {
		picks = len(rules.Teams) * rules.RosterSize
	}
	sc, err := Generate(rules, picks, cfg.Seed)
	if err != nil {
		return fmt.Errorf("generate scenario: %w", err)
	}
	log.Info(ctx, "generated draft scenario",
		logger.Int("teams", len(rules.Teams)),
		logger.Int("picks", len(sc.Events)),
		logger.Int("players", len(sc.Pool)))

	if cfg.PoolFile != "" {
		if err := writePool(cfg.PoolFile, sc.Pool); err != nil {
			return err
		}
		log.Info(ctx, "player pool written", logger.String("file", cfg.PoolFile))
	}

	srv := NewServer(sc.Events,
		WithAPIKey(cfg.APIKey),
		WithLeague(cfg.LeagueID),
		WithFlakyEvery(cfg.FlakyEvery))
	httpSrv := &http.Server{Addr: cfg.Addr, Handler: srv, ReadHeaderTimeout: readHeaderTimeout}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "serving draft results", logger.String("addr", cfg.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = httpSrv.Shutdown(sctx)
		}()
		if err := reveal(gctx, srv, cfg.Interval, log); err != nil {
			return err
		}
		log.Info(gctx, "all picks revealed", logger.Int("picks", srv.Revealed()))
		if cfg.EngineURL == "" {
			return nil
		}
		return verifyEngine(gctx, cfg, len(sc.Events), log)
	})
	return g.Wait()
}

func reveal(ctx context.Context, srv *Server, interval time.Duration, log logger.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			more := srv.Step()
			log.Debug(ctx, "pick revealed", logger.Int("revealed", srv.Revealed()))
			if !more {
				return nil
			}
		}
	}
}

// engineDraft is the part of the engine's draft status the check reads.
type engineDraft struct {
	LeagueID string `json:"league_id"`
	Phase    string `json:"phase"`
	LastPick int    `json:"last_pick"`
	Cached   int    `json:"cached_pick"`
	Error    string `json:"error"`
}

// verifyEngine waits until the engine reports the final pick both applied and
// cached for the league.
func verifyEngine(ctx context.Context, cfg *Config, want int, log logger.Logger) error {
	client := &http.Client{Timeout: cfg.Timeout}
	ctx, cancel := context.WithTimeout(ctx, verifyDeadline)
	defer cancel()
	ticker := time.NewTicker(verifyPollInterval)
	defer ticker.Stop()

	for {
		drafts, err := fetchDrafts(ctx, client, cfg.EngineURL)
		if err != nil {
			log.Warn(ctx, "engine status unavailable", logger.Error(err))
		}
		for _, d := range drafts {
			if d.LeagueID != cfg.LeagueID {
				continue
			}
			if d.Error != "" {
				return fmt.Errorf("engine halted: %s", d.Error)
			}
			if d.LastPick == want && d.Cached == want {
				log.Info(ctx, "engine caught up", logger.Int("last_pick", d.LastPick))
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("engine did not reach pick %d: %w", want, ctx.Err())
		case <-ticker.C:
		}
	}
}

func fetchDrafts(ctx context.Context, client *http.Client, base string) ([]engineDraft, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/drafts", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var body struct {
		Drafts []engineDraft `json:"drafts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Drafts, nil
}

func writePool(path string, pool []valuation.Player) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create pool directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(pool, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pool: %w", err)
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return fmt.Errorf("write pool: %w", err)
	}
	return nil
}
