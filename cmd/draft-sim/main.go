package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/livedraft/internal/simulate"
	"github.com/okian/livedraft/pkg/logger"
)

// Default configuration constants.
const (
	defaultTeams      = 12
	defaultBudget     = 500
	defaultRosterSize = 24
	defaultInterval   = 2 * time.Second
	defaultTimeout    = 5 * time.Second
)

func main() {
	var (
		addr      = flag.String("addr", ":9090", "Listen address")
		league    = flag.String("league", "sim", "League id to answer for")
		apiKey    = flag.String("key", "", "Bearer token clients must send")
		teams     = flag.Int("teams", defaultTeams, "Number of teams")
		budget    = flag.Int("budget", defaultBudget, "Budget per team")
		roster    = flag.Int("roster", defaultRosterSize, "Roster spots per team")
		minBid    = flag.Int("min-bid", 1, "Minimum bid")
		picks     = flag.Int("picks", 0, "Picks to generate, 0 for a full draft")
		seed      = flag.Uint64("seed", 1, "Scenario seed")
		interval  = flag.Duration("interval", defaultInterval, "Delay between picks")
		flaky     = flag.Int("flaky", 0, "Fail every n-th request with 503")
		poolFile  = flag.String("pool", "data/pool.json", "Write the player pool here")
		engineURL = flag.String("engine", "", "Engine base url to verify against")
		verbose   = flag.Bool("verbose", false, "Enable debug logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &simulate.Config{
		Addr:       *addr,
		LeagueID:   *league,
		APIKey:     *apiKey,
		Teams:      *teams,
		Budget:     *budget,
		RosterSize: *roster,
		MinBid:     *minBid,
		Picks:      *picks,
		Seed:       *seed,
		Interval:   *interval,
		FlakyEvery: *flaky,
		PoolFile:   *poolFile,
		EngineURL:  *engineURL,
		Timeout:    defaultTimeout,
	}
	if err := simulate.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}
