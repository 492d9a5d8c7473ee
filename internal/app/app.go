// Package app wires configuration into the component graph shared by the
// CLI and the daemon.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/GhUserLiu/paperflow/internal/bibstore"
	"github.com/GhUserLiu/paperflow/internal/bibstore/zotero"
	"github.com/GhUserLiu/paperflow/internal/cache"
	"github.com/GhUserLiu/paperflow/internal/config"
	"github.com/GhUserLiu/paperflow/internal/dedup"
	"github.com/GhUserLiu/paperflow/internal/observability"
	"github.com/GhUserLiu/paperflow/internal/pdf"
	"github.com/GhUserLiu/paperflow/internal/pipeline"
	"github.com/GhUserLiu/paperflow/internal/rank"
	"github.com/GhUserLiu/paperflow/internal/ratelimit"
	"github.com/GhUserLiu/paperflow/internal/retry"
	"github.com/GhUserLiu/paperflow/internal/scholarmetrics"
	"github.com/GhUserLiu/paperflow/internal/sources"
	"github.com/GhUserLiu/paperflow/internal/sources/arxiv"
	"github.com/GhUserLiu/paperflow/internal/sources/chinaxiv"
)

// App is the assembled component graph. All fields are ready to use after
// New returns.
type App struct {
	Config       *config.Config
	Log          zerolog.Logger
	Metrics      *observability.Metrics
	Store        bibstore.Store
	Registry     *sources.Registry
	Orchestrator *pipeline.Orchestrator
	Ranker       *rank.Ranker

	// ScholarMetrics is nil when metrics lookup is disabled.
	ScholarMetrics *scholarmetrics.Client
}

// New builds the component graph. metrics may be nil; components then skip
// instrumentation.
func New(cfg *config.Config, log zerolog.Logger, metrics *observability.Metrics) (*App, error) {
	store, err := zotero.New(zotero.Config{
		BaseURL:     cfg.Store.BaseURL,
		LibraryID:   cfg.Store.LibraryID,
		LibraryType: zotero.LibraryType(cfg.Store.LibraryType),
		APIKey:      cfg.Store.APIKey,
		Timeout:     cfg.Store.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("store client: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		Window:            cfg.Quota.Window,
		MaxRequests:       cfg.Quota.MaxRequests,
		ThresholdFraction: cfg.Quota.ThresholdFraction,
		MinInterval:       cfg.Quota.MinInterval,
		Buffer:            cfg.Quota.Buffer,
	}, log)

	throttled := bibstore.NewThrottled(store, limiter, retry.DefaultPolicy(), metrics, log)

	cacheCfg := cache.Config{
		TTL:          cfg.Cache.TTL,
		MaxEntries:   cfg.Cache.MaxEntries,
		EvictEntries: cfg.Cache.EvictEntries,
	}
	resolver := dedup.NewResolver(throttled, dedup.NewRunState(), cache.New(cacheCfg), cache.New(cacheCfg), dedup.Config{
		Mode:            dedup.Mode(cfg.Dedup.Mode),
		Collection:      cfg.Store.Collection,
		ScanLimit:       cfg.Dedup.ScanLimit,
		ScopedScanLimit: cfg.Dedup.ScopedScanLimit,
	}, metrics, log)

	var attachments pipeline.AttachmentFetcher
	if cfg.Pipeline.DownloadAttachments {
		attachments = pdf.NewFetcher(pdf.Config{
			Timeout:   cfg.PDF.Timeout,
			MaxSize:   int64(cfg.PDF.MaxSizeMB) * 1024 * 1024,
			UserAgent: cfg.PDF.UserAgent,
		}, log)
	}

	orchestrator := pipeline.New(throttled, resolver, attachments, pipeline.Config{
		Workers:             cfg.Pipeline.Workers,
		Collection:          cfg.Store.Collection,
		BatchTimeout:        cfg.Pipeline.BatchTimeout,
		DownloadAttachments: cfg.Pipeline.DownloadAttachments,
	}, metrics, log)

	ranker, err := rank.New(rankConfig(cfg.Ranker), log)
	if err != nil {
		return nil, fmt.Errorf("ranker: %w", err)
	}

	registry := sources.NewRegistry(metrics, log)
	if cfg.Sources.ArXiv.Enabled {
		registry.Register(arxiv.New(arxiv.Config{
			BaseURL:    cfg.Sources.ArXiv.BaseURL,
			MaxResults: cfg.Sources.ArXiv.MaxResults,
			Enabled:    true,
			HTTP:       httpConfig(cfg.Sources.ArXiv),
		}))
	}
	if cfg.Sources.ChinaXiv.Enabled {
		registry.Register(chinaxiv.New(chinaxiv.Config{
			BaseURL:    cfg.Sources.ChinaXiv.BaseURL,
			MaxResults: cfg.Sources.ChinaXiv.MaxResults,
			Enabled:    true,
			HTTP:       httpConfig(cfg.Sources.ChinaXiv),
		}))
	}

	app := &App{
		Config:       cfg,
		Log:          log,
		Metrics:      metrics,
		Store:        throttled,
		Registry:     registry,
		Orchestrator: orchestrator,
		Ranker:       ranker,
	}

	if cfg.ScholarMetrics.Enabled {
		sm, err := scholarmetrics.New(scholarmetrics.Config{
			BaseURL:   cfg.ScholarMetrics.BaseURL,
			Email:     cfg.ScholarMetrics.Email,
			CachePath: cfg.ScholarMetrics.CachePath,
		}, metrics, log)
		if err != nil {
			return nil, fmt.Errorf("scholar metrics: %w", err)
		}
		app.ScholarMetrics = sm
	}

	return app, nil
}

// rankConfig converts the config section, falling back to package defaults
// for any empty map.
func rankConfig(rc config.RankerConfig) rank.Config {
	cfg := rank.DefaultConfig()
	if len(rc.Weights) > 0 {
		cfg.Weights = rc.Weights
	}
	if len(rc.Defaults) > 0 {
		cfg.Defaults = rc.Defaults
	}
	if len(rc.Ranges) > 0 {
		ranges := make(map[string]rank.Range, len(rc.Ranges))
		for name, r := range rc.Ranges {
			ranges[name] = rank.Range{Min: r.Min, Max: r.Max}
		}
		cfg.Ranges = ranges
	}
	return cfg
}

func httpConfig(sc config.SourceConfig) sources.HTTPClientConfig {
	return sources.HTTPClientConfig{
		Timeout:   sc.Timeout,
		RateLimit: sc.RateLimit,
		BurstSize: sc.BurstSize,
	}
}
