// Package aggregator persists periodic snapshots of the expansion statistics
// to PostgreSQL so they survive restarts of the analytics service.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/postgres"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS expansion_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    expansions  BIGINT NOT NULL,
    partial     BIGINT NOT NULL DEFAULT 0,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS expansion_snapshots_captured_at_idx
    ON expansion_snapshots (captured_at DESC)`,
	`CREATE TABLE IF NOT EXISTS expansion_module_health (
    snapshot_id BIGINT NOT NULL REFERENCES expansion_snapshots (id) ON DELETE CASCADE,
    module      TEXT NOT NULL,
    failures    BIGINT NOT NULL,
    timeouts    BIGINT NOT NULL,
    PRIMARY KEY (snapshot_id, module)
)`,
}

// Store keeps at most retain snapshots. Each snapshot stores the full stats
// document plus one expansion_module_health row per module that has failed
// or timed out.
type Store struct {
	db     *postgres.Client
	retain int
	logger *slog.Logger

	mu        sync.Mutex
	lastSaved int64
	saved     bool
}

// NewStore creates a snapshot store. retain <= 0 keeps every snapshot.
func NewStore(db *postgres.Client, retain int) *Store {
	return &Store{
		db:     db,
		retain: retain,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// Migrate creates the tables and indexes in one transaction.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for i, stmt := range migrations {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d: %w", i+1, err)
			}
		}
		return nil
	})
}

type moduleRow struct {
	module   string
	failures int64
	timeouts int64
}

func moduleRows(stats analytics.AggregatedStats) []moduleRow {
	byModule := make(map[string]*moduleRow)
	row := func(id string) *moduleRow {
		r, ok := byModule[id]
		if !ok {
			r = &moduleRow{module: id}
			byModule[id] = r
		}
		return r
	}
	for _, kc := range stats.ModuleFailures {
		row(kc.Key).failures = kc.Count
	}
	for _, kc := range stats.ModuleTimeouts {
		row(kc.Key).timeouts = kc.Count
	}
	rows := make([]moduleRow, 0, len(byModule))
	for _, r := range byModule {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].module < rows[j].module })
	return rows
}

// SaveSnapshot writes stats and prunes old snapshots in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	captured := stats.CapturedAt
	if captured.IsZero() {
		captured = time.Now()
	}

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		var id int64
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO expansion_snapshots (data, expansions, partial, captured_at)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			data, stats.TotalExpansions, stats.PartialExpansions, captured.UTC(),
		).Scan(&id); err != nil {
			return err
		}
		for _, r := range moduleRows(stats) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO expansion_module_health (snapshot_id, module, failures, timeouts)
				 VALUES ($1, $2, $3, $4)`,
				id, r.module, r.failures, r.timeouts,
			); err != nil {
				return err
			}
		}
		if s.retain <= 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM expansion_snapshots WHERE id NOT IN (
				SELECT id FROM expansion_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1)`,
			s.retain,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.mu.Lock()
	s.lastSaved, s.saved = stats.TotalExpansions, true
	s.mu.Unlock()
	s.logger.Info("analytics snapshot saved",
		"total_expansions", stats.TotalExpansions,
		"partial_expansions", stats.PartialExpansions,
	)
	return nil
}

// changed reports whether stats differ from the last saved snapshot.
func (s *Store) changed(stats analytics.AggregatedStats) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.saved || stats.TotalExpansions != s.lastSaved
}

// LatestSnapshot returns the most recent snapshot, or nil when there is
// none yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM expansion_snapshots ORDER BY captured_at DESC, id DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that no
// longer decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM expansion_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]analytics.AggregatedStats, 0, limit)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping undecodable snapshot", "error", err)
			continue
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// ModuleHealth returns the failure and timeout counts recorded for one
// module, newest snapshot first. Snapshots where the module never failed
// have no row.
func (s *Store) ModuleHealth(ctx context.Context, module string, limit int) ([]analytics.ModulePoint, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT s.captured_at, h.failures, h.timeouts
		   FROM expansion_module_health h
		   JOIN expansion_snapshots s ON s.id = h.snapshot_id
		  WHERE h.module = $1
		  ORDER BY s.captured_at DESC, s.id DESC
		  LIMIT $2`,
		module, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying module health: %w", err)
	}
	defer rows.Close()

	var out []analytics.ModulePoint
	for rows.Next() {
		var p analytics.ModulePoint
		if err := rows.Scan(&p.CapturedAt, &p.Failures, &p.Timeouts); err != nil {
			return nil, fmt.Errorf("scanning module health row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// StartPeriodicSave snapshots agg every interval until ctx is done, then
// writes a final snapshot. Intervals without new expansions are skipped.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	save := func(ctx context.Context) {
		stats := agg.Stats()
		if !s.changed(stats) {
			return
		}
		if err := s.SaveSnapshot(ctx, stats); err != nil {
			s.logger.Error("snapshot failed", "error", err)
		}
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				save(ctx)
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				save(final)
				cancel()
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}
