package sources

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/GhUserLiu/paperflow/internal/domain"
	"github.com/GhUserLiu/paperflow/internal/observability"
)

// SourceResult holds the outcome of one source's search.
type SourceResult struct {
	Source  domain.SourceType
	Records []*domain.Record
	Err     error
}

// Registry manages discovery sources and fans searches out across them
// concurrently. Source failures surface in the per-source results; one
// source's failure never suppresses another's records. Safe for concurrent
// use.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]Source
	metrics *observability.Metrics
	log     zerolog.Logger
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(metrics *observability.Metrics, log zerolog.Logger) *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]Source),
		metrics: metrics,
		log:     log.With().Str("component", "sources").Logger(),
	}
}

// Register adds a source, replacing any source of the same type.
func (r *Registry) Register(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns a source by type, or nil when not registered.
func (r *Registry) Get(sourceType domain.SourceType) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// EnabledSources returns a snapshot of the enabled sources.
func (r *Registry) EnabledSources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enabled := make([]Source, 0, len(r.sources))
	for _, source := range r.sources {
		if source.IsEnabled() {
			enabled = append(enabled, source)
		}
	}
	return enabled
}

// SearchAll searches every enabled source concurrently and returns one
// result per source.
func (r *Registry) SearchAll(ctx context.Context, params SearchParams) []SourceResult {
	enabled := r.EnabledSources()
	if len(enabled) == 0 {
		return nil
	}

	results := make([]SourceResult, len(enabled))
	var wg sync.WaitGroup
	for i, source := range enabled {
		wg.Add(1)
		go func(i int, s Source) {
			defer wg.Done()
			slog := observability.WithSearchContext(r.log, params.Query, s.Name())
			records, err := s.Search(ctx, params)
			if err != nil {
				slog.Error().Err(err).Msg("discovery search failed")
			} else {
				slog.Debug().Int("records", len(records)).Msg("discovery search complete")
			}
			r.metrics.RecordSearch(string(s.SourceType()), len(records))
			results[i] = SourceResult{Source: s.SourceType(), Records: records, Err: err}
		}(i, source)
	}
	wg.Wait()

	return results
}

// CollectAll searches every enabled source and merges the records into a
// single batch, dropping nothing but failed sources' absent results.
func (r *Registry) CollectAll(ctx context.Context, params SearchParams) []*domain.Record {
	var merged []*domain.Record
	for _, result := range r.SearchAll(ctx, params) {
		merged = append(merged, result.Records...)
	}
	return merged
}
