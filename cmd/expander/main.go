// Command expander serves the query expansion HTTP API.
//
// It loads every configured module at startup (a bad module set aborts the
// process), optionally connects Redis as a shared suggestion cache and Kafka
// for analytics events, and exposes Prometheus metrics on a separate port.
//
// Usage:
//
//	go run ./cmd/expander [-config configs/development.yaml] [-bind 0.0.0.0] [-port 8080]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/cache"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/dispatcher"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/handler"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/router"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module/builtin"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	bind := flag.String("bind", "", "override server.bind")
	port := flag.Int("port", 0, "override server.port")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *bind != "" {
		cfg.Server.Bind = *bind
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting expansion service", "addr", cfg.Server.Addr(), "modules", len(cfg.Modules))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	registry, err := builtin.Load(ctx, cfg)
	if err != nil {
		slog.Error("failed to load modules", "error", err)
		os.Exit(1)
	}
	slog.Info("modules loaded", "count", registry.Len(), "elapsed", time.Since(start).Round(time.Millisecond))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsServer, err := metrics.StartServer(net.JoinHostPort(cfg.Server.Bind, strconv.Itoa(cfg.Metrics.Port)), m)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	var redisClient *pkgredis.Client
	if cfg.Cache.Enabled && cfg.Cache.UseRedis {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using the in-process cache only", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			slog.Info("redis cache tier enabled", "addr", redisClient.Addr())
		}
	}

	var suggestionCache *cache.SuggestionCache
	var dcache dispatcher.Cache
	if cfg.Cache.Enabled {
		var remote cache.Remote
		if redisClient != nil {
			remote = redisClient
		}
		suggestionCache = cache.New(cfg.Cache, remote, m)
		dcache = suggestionCache
		slog.Info("suggestion cache enabled", "size", cfg.Cache.Size, "ttl", cfg.Cache.TTL)
	}

	opts := []expander.Option{expander.WithMetrics(m)}
	if cfg.Tracing.Enabled {
		opts = append(opts, expander.WithTracing(cfg.Tracing.SampleRate))
	}
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ExpansionEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, cfg.Analytics.BufferSize, m)
		collector.Start(ctx)
		defer collector.Close()
		opts = append(opts, expander.WithEventSink(collector))
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.ExpansionEvents)
	}

	d := dispatcher.New(dispatcher.ConfigFrom(cfg.Expansion), dcache, m)
	svc := expander.New(registry, d, opts...)

	checker := health.NewChecker()
	checker.Register("modules", health.MinCount("modules", len(cfg.Modules), registry.Len))
	if cfg.Cache.UseRedis {
		check := health.Check(func(context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not connected"}
		})
		if redisClient != nil {
			check = health.Ping(redisClient.Ping, true)
		}
		checker.Register("redis", check)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		defer limiter.Close()
	}

	var sc handler.SuggestionCache
	if suggestionCache != nil {
		sc = suggestionCache
	}
	h := handler.New(svc, sc, d)
	chain := router.New(h, checker, router.Options{
		CORS:           &cfg.CORS,
		Limiter:        limiter,
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
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

	slog.Info("expansion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("expansion service stopped")
}
