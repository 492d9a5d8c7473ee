// Package main provides the entry point for the paperflow collection daemon.
// It runs the ingestion pipeline on a cron schedule and serves health and
// metrics endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/GhUserLiu/paperflow/internal/app"
	"github.com/GhUserLiu/paperflow/internal/config"
	"github.com/GhUserLiu/paperflow/internal/observability"
	"github.com/GhUserLiu/paperflow/internal/rank"
	"github.com/GhUserLiu/paperflow/internal/sources"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "config file path")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging.Observability())
	logger = logger.With().Str("component", "daemon").Logger()
	logger.Info().Msg("paperflowd starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.Admin.MetricsNamespace)
	a, err := app.New(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("build components: %w", err)
	}

	// Admin endpoints.
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	adminSrv := &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Admin.Addr).Msg("admin server listening")
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	// Scheduled collection. Overlapping runs are skipped; the quota limiter
	// makes a slow batch outlast short schedule intervals.
	collector := newCollector(a, cfg.Schedule, logger)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Schedule.Cron, func() { collector.collect(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule.Cron, err)
	}
	scheduler.Start()
	logger.Info().Str("cron", cfg.Schedule.Cron).Str("query", cfg.Schedule.Query).Msg("collection schedule installed")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	// Stop scheduling new runs and let an in-flight one finish.
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Admin.ShutdownTimeout)
	defer cancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}

	logger.Info().Msg("paperflowd stopped")
	return nil
}

// collector runs one scheduled discovery-and-ingest pass at a time.
type collector struct {
	app      *app.App
	schedule config.ScheduleConfig
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
}

func newCollector(a *app.App, schedule config.ScheduleConfig, log zerolog.Logger) *collector {
	return &collector{app: a, schedule: schedule, log: log}
}

func (c *collector) collect(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.log.Warn().Msg("previous collection still running, skipping this tick")
		return
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	params := sources.SearchParams{
		Query:      c.schedule.Query,
		Categories: c.schedule.Categories,
		MaxResults: c.schedule.MaxResults,
	}
	if c.schedule.LookbackDays > 0 {
		from := time.Now().AddDate(0, 0, -c.schedule.LookbackDays)
		params.DateFrom = &from
	}

	records := c.app.Registry.CollectAll(ctx, params)
	if len(records) == 0 {
		c.log.Info().Msg("scheduled collection found no records")
		return
	}

	var metricsByID map[string]rank.MetricSet
	if c.app.ScholarMetrics != nil {
		byID, err := c.app.ScholarMetrics.LookupAll(ctx, records)
		if err != nil {
			c.log.Warn().Err(err).Msg("metrics lookup failed, ranking on defaults")
		} else {
			metricsByID = byID
		}
	}
	records = c.app.Ranker.Rank(records, metricsByID)

	summary := c.app.Orchestrator.Run(ctx, records)
	c.log.Info().
		Str("batch_id", summary.BatchID).
		Int("succeeded", summary.Succeeded).
		Int("duplicates", summary.Duplicates).
		Int("failed", summary.Failed).
		Dur("elapsed", summary.Elapsed).
		Msg("scheduled collection finished")
}
