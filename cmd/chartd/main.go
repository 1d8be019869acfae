// cmd/chartd serves indicator overlays for stored candle series over REST and
// websocket, with an optional Redis overlay cache and cross-instance fan-out.
//
// Usage:
//
//	REDIS_ADDR=localhost:6379 go run ./cmd/chartd
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"trading-overlays/config"
	"trading-overlays/internal/gateway"
	"trading-overlays/internal/indicator"
	"trading-overlays/internal/logger"
	"trading-overlays/internal/metrics"
	"trading-overlays/internal/model"
	"trading-overlays/internal/overlay"
	redisstore "trading-overlays/internal/store/redis"
	sqlitestore "trading-overlays/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("chartd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init("chartd", logger.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prom := metrics.NewMetrics()

	// ---- Candle store ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return err
	}
	defer sqlWriter.Close()
	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer sqlReader.Close()

	// ---- Optional Redis ----
	var (
		rdb       *goredis.Client
		cache     model.OverlayCache = redisstore.NopCache{}
		publisher *redisstore.Publisher
	)
	if cfg.RedisEnabled() {
		rdb, err = redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		cb := redisstore.NewBreaker(prom)
		cache = redisstore.NewCache(rdb, cb, cfg.CacheTTL)
		publisher = redisstore.NewPublisher(ctx, rdb, cb)
	} else {
		slog.Warn("REDIS_ADDR not set, overlay cache and cross-instance fan-out disabled")
	}

	// ---- Overlay service ----
	presets, err := overlay.LoadPresets(cfg.PresetsFile)
	if err != nil {
		return err
	}
	svc := overlay.New(overlay.Deps{
		Reader:        sqlReader,
		Writer:        sqlWriter,
		Cache:         cache,
		Engine:        indicator.NewEngine(cfg.ComputeWorkers),
		Presets:       presets,
		Metrics:       prom,
		DefaultWindow: cfg.DefaultWindow,
		MaxWindow:     cfg.MaxWindow,
	})

	hub := gateway.NewHub(svc, prom)
	if publisher != nil {
		// Local ingests come back through Redis like everyone else's.
		svc.AddNotifier(publisher)
	} else {
		svc.AddNotifier(hub)
	}

	warmer, err := overlay.NewWarmer(ctx, svc, presets.Warm, cfg.WarmSchedule, prom)
	if err != nil {
		return err
	}

	// ---- Health + metrics ----
	health := metrics.NewHealthStatus(cfg.RedisEnabled())
	health.StartLivenessChecker(ctx, rdb, sqlReader.DB(), 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: gateway.NewRouter(gateway.Deps{
			Service:         svc,
			Hub:             hub,
			AdminTOTPSecret: cfg.AdminTOTPSecret,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if rdb != nil {
		g.Go(func() error {
			hub.RunRedis(gctx, rdb)
			return nil
		})
	}
	if len(presets.Warm) > 0 {
		warmer.Start()
	}

	slog.Info("chartd running",
		"sqlite", cfg.SQLitePath,
		"redis", cfg.RedisEnabled(),
		"presets", len(presets.Presets),
		"warm_targets", len(presets.Warm),
	)

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if len(presets.Warm) > 0 {
			warmer.Stop()
		}
		hub.Close()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			slog.Warn("http shutdown", "error", err)
		}
		return metricsSrv.Stop(shutCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("shutdown complete")
	return nil
}
