// Package cache stores recompute results: the latest valuation set as a JSON
// file and a history of snapshots in SQLite.
package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/pkg/fileutil"
	"github.com/okian/livedraft/pkg/logger"
	"github.com/okian/livedraft/pkg/metrics"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

const (
	latestFile   = "latest.json"
	historyFile  = "history.db"
	dirPerm      = 0o750
	filePerm     = 0o600
	sqliteParams = "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
)

// Dir returns the cache directory of a draft under dataDir.
func Dir(dataDir string, id model.DraftID) string {
	return filepath.Join(dataDir, "cache", id.String())
}

// Cache persists valuation results for one draft.
type Cache struct {
	dir          string
	db           *sql.DB
	historyLimit int
	log          logger.Logger
}

// Open creates the cache directory for id and opens its snapshot database.
func Open(ctx context.Context, dataDir string, id model.DraftID, opts ...Option) (*Cache, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	c := &Cache{dir: Dir(dataDir, id)}
	for _, opt := range opts {
		opt(c)
	}
	if c.historyLimit < 0 {
		return nil, ErrInvalidHistoryLimit
	}
	if c.log == nil {
		c.log = logger.Get().Named("cache")
	}

	if err := os.MkdirAll(c.dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(c.dir, historyFile)+sqliteParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	c.db = db
	return c, nil
}

// Close closes the snapshot database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Write replaces the latest valuation set.
func (c *Cache) Write(ctx context.Context, set model.ValuationSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode valuation set: %w", err)
	}
	start := time.Now()
	if err := fileutil.WriteAtomic(filepath.Join(c.dir, latestFile), data, filePerm); err != nil {
		return fmt.Errorf("write latest: %w", err)
	}
	metrics.RecordStoreLatency("cache_latest", float64(time.Since(start).Microseconds())/1000)
	return nil
}

// ReadLatest returns the latest valuation set, or ErrNotFound.
func (c *Cache) ReadLatest(ctx context.Context) (model.ValuationSet, error) {
	if err := ctx.Err(); err != nil {
		return model.ValuationSet{}, err
	}
	data, err := os.ReadFile(filepath.Join(c.dir, latestFile))
	if errors.Is(err, os.ErrNotExist) {
		return model.ValuationSet{}, ErrNotFound
	}
	if err != nil {
		return model.ValuationSet{}, fmt.Errorf("read latest: %w", err)
	}
	var set model.ValuationSet
	if err := json.Unmarshal(data, &set); err != nil {
		return model.ValuationSet{}, fmt.Errorf("decode latest: %w", err)
	}
	return set, nil
}

// WriteSnapshot stores set as the snapshot for pick. An existing snapshot is
// never overwritten; ErrSnapshotExists is returned instead.
func (c *Cache) WriteSnapshot(ctx context.Context, pick int, set model.ValuationSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	start := time.Now()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO snapshots (pick_number, computed_at, payload) VALUES (?, ?, ?)`,
		pick, set.ComputedAt.UTC().UnixMilli(), data)
	if isSnapshotUniqueViolation(err) {
		return fmt.Errorf("%w: pick %d", ErrSnapshotExists, pick)
	}
	if err != nil {
		return fmt.Errorf("insert snapshot %d: %w", pick, err)
	}
	metrics.RecordStoreLatency("cache_snapshot", float64(time.Since(start).Microseconds())/1000)
	return c.prune(ctx)
}

func (c *Cache) prune(ctx context.Context) error {
	if c.historyLimit == 0 {
		return nil
	}
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE pick_number NOT IN (
		   SELECT pick_number FROM snapshots ORDER BY pick_number DESC LIMIT ?
		 )`, c.historyLimit)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		c.log.Debug(ctx, "pruned snapshots", logger.Int64("removed", n), logger.Int("limit", c.historyLimit))
	}
	return nil
}

// ReadSnapshot returns the snapshot stored for pick, or ErrNotFound.
func (c *Cache) ReadSnapshot(ctx context.Context, pick int) (model.ValuationSet, error) {
	var payload []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE pick_number = ?`, pick).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ValuationSet{}, ErrNotFound
	}
	if err != nil {
		return model.ValuationSet{}, fmt.Errorf("read snapshot %d: %w", pick, err)
	}
	var set model.ValuationSet
	if err := json.Unmarshal(payload, &set); err != nil {
		return model.ValuationSet{}, fmt.Errorf("decode snapshot %d: %w", pick, err)
	}
	return set, nil
}

// ListSnapshots returns the stored snapshot pick numbers in ascending order.
func (c *Cache) ListSnapshots(ctx context.Context) ([]int, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT pick_number FROM snapshots ORDER BY pick_number`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	picks := []int{}
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		picks = append(picks, p)
	}
	return picks, rows.Err()
}

func isSnapshotUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
