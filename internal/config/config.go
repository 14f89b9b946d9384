// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Flat koanf keys, one per field, so env vars map one to one.
// - New returns a Config filled with defaults; Load layers file and env on top.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/livedraft/internal/domain/model"
)

// Source kinds.
const (
	SourceHTTP = "http"
	SourceFile = "file"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log records.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DataDir roots the event logs, caches and checkpoints.
	DataDir string `koanf:"data_dir"`

	// LeagueID starts a draft at boot when set. SessionID defaults to the
	// start timestamp.
	LeagueID  string `koanf:"league_id"`
	SessionID string `koanf:"session_id"`

	// LeagueTeams generates team_01..team_NN when TeamIDs is empty.
	LeagueTeams int `koanf:"league_teams"`
	// TeamIDs is a comma separated list of team ids.
	TeamIDs    string `koanf:"team_ids"`
	Budget     int    `koanf:"budget"`
	RosterSize int    `koanf:"roster_size"`
	MinBid     int    `koanf:"min_bid"`

	PollIntervalMS     int `koanf:"poll_interval_ms"`
	RecomputeTimeoutMS int `koanf:"recompute_timeout_ms"`
	ShutdownTimeoutMS  int `koanf:"shutdown_timeout_ms"`

	// SnapshotEvery stores a snapshot every N picks. Zero disables snapshots.
	SnapshotEvery int `koanf:"snapshot_every"`
	// HistoryLimit caps stored snapshots. Zero keeps all; the default keeps 50.
	HistoryLimit int `koanf:"history_limit"`
	// CheckpointEvery saves folded state every N picks. Zero disables it.
	CheckpointEvery int `koanf:"checkpoint_every"`

	SourceKind       string `koanf:"source_kind"`
	SourceURL        string `koanf:"source_url"`
	SourceFile       string `koanf:"source_file"`
	SourceAPIKey     string `koanf:"source_api_key"`
	SourceTimeoutMS  int    `koanf:"source_timeout_ms"`
	SourceMaxRetries int    `koanf:"source_max_retries"`

	// PoolFile is the player pool fed to the allocator.
	PoolFile string `koanf:"pool_file"`
}

// New creates a Config with defaults. Context is accepted first to follow the
// project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		DataDir:            "data",
		LeagueTeams:        12,
		Budget:             500,
		RosterSize:         24,
		MinBid:             1,
		PollIntervalMS:     5000,
		RecomputeTimeoutMS: 30000,
		ShutdownTimeoutMS:  10000,
		SnapshotEvery:      10,
		HistoryLimit:       50,
		CheckpointEvery:    25,
		SourceKind:         SourceHTTP,
		SourceTimeoutMS:    5000,
		SourceMaxRetries:   3,
		PoolFile:           "data/pool.json",
	}
}

// TeamIDList splits TeamIDs, dropping blanks.
func (c *Config) TeamIDList() []string {
	var ids []string
	for _, id := range strings.Split(c.TeamIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Rules returns the league rules described by the config.
func (c *Config) Rules() model.Rules {
	rules := model.DefaultRules(c.LeagueTeams)
	if ids := c.TeamIDList(); len(ids) > 0 {
		rules.Teams = ids
	}
	rules.Budget = c.Budget
	rules.RosterSize = c.RosterSize
	rules.MinBid = c.MinBid
	return rules
}

// PollInterval returns the delay between source polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// RecomputeTimeout returns the bound on one recompute.
func (c *Config) RecomputeTimeout() time.Duration {
	return time.Duration(c.RecomputeTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns how long shutdown may take.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// SourceTimeout returns the per-attempt source request timeout.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutMS) * time.Millisecond
}

// Validate reports the first setting no engine can run with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.DataDir) == "":
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format %q is not text or json", ErrInvalidConfig, c.LogFormat)
	case c.PollIntervalMS <= 0:
		return fmt.Errorf("%w: poll_interval_ms must be positive", ErrInvalidConfig)
	case c.RecomputeTimeoutMS < 0, c.ShutdownTimeoutMS < 0, c.SourceTimeoutMS < 0:
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	case c.SnapshotEvery < 0, c.HistoryLimit < 0, c.CheckpointEvery < 0:
		return fmt.Errorf("%w: snapshot_every, history_limit and checkpoint_every must not be negative", ErrInvalidConfig)
	case c.SourceMaxRetries < 0:
		return fmt.Errorf("%w: source_max_retries must not be negative", ErrInvalidConfig)
	case c.SourceKind != SourceHTTP && c.SourceKind != SourceFile:
		return fmt.Errorf("%w: source_kind %q is not http or file", ErrInvalidConfig, c.SourceKind)
	}
	if len(c.TeamIDList()) == 0 && c.LeagueTeams <= 0 {
		return fmt.Errorf("%w: league_teams must be positive when team_ids is empty", ErrInvalidConfig)
	}
	if err := c.Rules().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.LeagueID == "" {
		return nil
	}
	if err := (model.DraftID{LeagueID: c.LeagueID, SessionID: c.SessionID}).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.SourceKind == SourceHTTP && c.SourceURL == "" {
		return fmt.Errorf("%w: source_url is required for the http source", ErrInvalidConfig)
	}
	if c.SourceKind == SourceFile && c.SourceFile == "" {
		return fmt.Errorf("%w: source_file is required for the file source", ErrInvalidConfig)
	}
	if c.PoolFile == "" {
		return fmt.Errorf("%w: pool_file is required", ErrInvalidConfig)
	}
	return nil
}
