// Command analytics starts the standalone analytics aggregation service.
//
// It consumes expansion events from Kafka, aggregates them in memory (request
// totals, latency percentiles, top terms, zero-suggestion terms, module
// failures), snapshots the aggregate to PostgreSQL when configured and serves
// GET /api/v1/analytics for dashboards.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	noStore := flag.Bool("no-store", false, "do not persist snapshots to PostgreSQL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator(nil)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ExpansionEvents, analytics.HandleEvent(agg))
	agg.SetConsumer(consumer)

	go func() {
		if err := agg.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.ExpansionEvents)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("processed %d, skipped %d", consumer.Processed(), consumer.Skipped()),
		}
	})

	var snapshots analytics.SnapshotLister
	if !*noStore {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		} else {
			defer db.Close()
			store := aggregator.NewStore(db, cfg.Analytics.RetainSnapshots)
			if err := store.Migrate(ctx); err != nil {
				slog.Error("snapshot migration failed", "error", err)
				os.Exit(1)
			}
			store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
			snapshots = store
			ping := health.Ping(db.Ping, true)
			checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
				res := ping(ctx)
				if res.Status == health.StatusUp {
					res.Message = db.PoolSummary()
				}
				return res
			})
		}
	}

	h := analytics.NewHandler(agg, snapshots)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /api/v1/analytics/modules/{id}", h.ModuleHistory)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.CORS(cfg.CORS)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Bind, cfg.Analytics.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
