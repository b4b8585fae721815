package integration

import (
	"context"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/postgres"
)

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(context.Background(), testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "queryexpansion_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "queryexpansion"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// TestSnapshotStoreRoundTrip saves aggregated stats and reads them back,
// checking that pruning keeps only the newest snapshots.
func TestSnapshotStoreRoundTrip(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := t.Context()

	store := aggregator.NewStore(db, 2)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	agg := analytics.NewAggregator(nil)
	for i := 0; i < 3; i++ {
		agg.Record(analytics.ExpansionEvent{
			ID:              analytics.NewEventID(),
			Outcome:         analytics.OutcomePartial,
			Query:           "cat AND dog",
			Terms:           []string{"cat", "dog"},
			TimedOutModules: []string{"embed"},
			LatencyMs:       int64(10 * (i + 1)),
			Timestamp:       time.Now().UTC(),
		})
		if err := store.SaveSnapshot(ctx, agg.Stats()); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	latest, err := store.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.TotalExpansions != 3 {
		t.Fatalf("expected latest snapshot with 3 expansions, got %+v", latest)
	}

	snaps, err := store.ListSnapshots(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 retained snapshots, got %d", len(snaps))
	}
	if snaps[0].TotalExpansions != 3 || snaps[1].TotalExpansions != 2 {
		t.Errorf("snapshots not newest first: %d, %d", snaps[0].TotalExpansions, snaps[1].TotalExpansions)
	}

	history, err := store.ModuleHealth(ctx, "embed", 10)
	if err != nil {
		t.Fatalf("module health: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected module rows for the 2 retained snapshots, got %d", len(history))
	}
	if history[0].Timeouts != 3 || history[1].Timeouts != 2 {
		t.Errorf("timeouts not newest first: %+v", history)
	}
}
