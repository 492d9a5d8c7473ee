// Package scholarmetrics looks up journal-level quality indicators from the
// OpenAlex API, with a persistent local cache in front of it.
//
// Lookups resolve in order: local cache, then the works endpoint by DOI,
// then the sources endpoint by venue name. A record with no resolvable
// metrics is not an error; the ranker falls back to its configured defaults.
package scholarmetrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/GhUserLiu/paperflow/internal/domain"
	"github.com/GhUserLiu/paperflow/internal/observability"
	"github.com/GhUserLiu/paperflow/internal/rank"
	"github.com/GhUserLiu/paperflow/internal/sources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// clientName identifies this client in errors and metrics.
	clientName = "OpenAlex"

	// metricsCacheName labels cache hit/miss counters.
	metricsCacheName = "scholarmetrics"
)

// journalNameRegex pulls the leading journal name out of a journal_ref
// string, e.g. "Nature 500 (2013) 123-145" yields "Nature".
var journalNameRegex = regexp.MustCompile(`^([A-Za-z\s.&]+)`)

// Config holds configuration for the metrics client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	BaseURL string

	// Email is the contact address for the OpenAlex polite pool. Providing
	// one grants higher rate limits.
	Email string

	// CachePath is the location of the persistent metrics cache file.
	// Empty keeps the cache in memory only.
	CachePath string

	// HTTP configures the underlying rate-limited HTTP client.
	HTTP sources.HTTPClientConfig
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.HTTP.UserAgent == "" {
		ua := "paperflow/1.0"
		if c.Email != "" {
			ua += " (mailto:" + c.Email + ")"
		}
		c.HTTP.UserAgent = ua
	}
}

// Client resolves journal metrics for records.
type Client struct {
	config  Config
	http    *sources.HTTPClient
	cache   *fileCache
	metrics *observability.Metrics
	log     zerolog.Logger
}

// New creates a metrics client, loading any existing cache file.
func New(cfg Config, metrics *observability.Metrics, log zerolog.Logger) (*Client, error) {
	cfg.applyDefaults()
	cache, err := newFileCache(cfg.CachePath)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("component", "scholarmetrics").Logger()
	logger.Info().Str("cache_path", cfg.CachePath).Int("cached_entries", cache.len()).Msg("metrics client initialized")
	return &Client{
		config:  cfg,
		http:    sources.NewHTTPClient(clientName, cfg.HTTP),
		cache:   cache,
		metrics: metrics,
		log:     logger,
	}, nil
}

// NewWithHTTPClient creates a metrics client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient, metrics *observability.Metrics, log zerolog.Logger) (*Client, error) {
	cfg.applyDefaults()
	cache, err := newFileCache(cfg.CachePath)
	if err != nil {
		return nil, err
	}
	return &Client{
		config:  cfg,
		http:    httpClient,
		cache:   cache,
		metrics: metrics,
		log:     log.With().Str("component", "scholarmetrics").Logger(),
	}, nil
}

// workResponse is the subset of the OpenAlex work object we consume.
type workResponse struct {
	CitedByPercentile struct {
		Value float64 `json:"value"`
	} `json:"cited_by_percentile"`
	PrimarySource *sourceObject `json:"primary_source"`
}

// sourceObject is the subset of the OpenAlex source object we consume.
type sourceObject struct {
	DisplayName  string   `json:"display_name"`
	HIndex       *float64 `json:"h_index"`
	ImpactFactor *float64 `json:"impact_factor"`
	SummaryStats *struct {
		HIndex       *float64 `json:"h_index"`
		ImpactFactor *float64 `json:"2yr_mean_citedness"`
	} `json:"summary_stats"`
}

type sourcesResponse struct {
	Results []sourceObject `json:"results"`
}

// Lookup resolves metrics for a single record. A nil MetricSet with a nil
// error means no metrics could be found.
func (c *Client) Lookup(ctx context.Context, rec *domain.Record) (rank.MetricSet, error) {
	if rec == nil {
		return nil, nil
	}
	if rec.DOI != "" {
		m, err := c.byDOI(ctx, rec.DOI)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}
	if rec.Venue != "" {
		return c.byJournal(ctx, rec.Venue)
	}
	return nil, nil
}

// LookupAll resolves metrics for a batch, keyed by each record's identifier
// string. Records that fail to resolve are skipped; the first non-transient
// API error aborts the batch.
func (c *Client) LookupAll(ctx context.Context, records []*domain.Record) (map[string]rank.MetricSet, error) {
	out := make(map[string]rank.MetricSet, len(records))
	for _, rec := range records {
		m, err := c.Lookup(ctx, rec)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return out, err
			}
			c.log.Warn().Err(err).Str("identifier", rec.Key().String()).Msg("metrics lookup failed, using defaults")
			continue
		}
		if m != nil {
			out[rec.Key().String()] = m
		}
	}
	return out, nil
}

// byDOI queries the works endpoint. Unknown DOIs return (nil, nil) so the
// caller can fall through to the journal name.
func (c *Client) byDOI(ctx context.Context, doi string) (rank.MetricSet, error) {
	clean := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(doi, "https://doi.org/"), "http://doi.org/"))
	if clean == "" {
		return nil, nil
	}

	cacheKey := "doi:" + clean
	if m, ok := c.cache.get(cacheKey); ok {
		c.metrics.RecordCacheLookup(metricsCacheName, true)
		return m, nil
	}
	c.metrics.RecordCacheLookup(metricsCacheName, false)

	body, err := c.http.Get(ctx, c.config.BaseURL+"/works/https://doi.org/"+url.PathEscape(clean))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrRejected) {
			return nil, nil
		}
		return nil, err
	}

	var work workResponse
	if err := unmarshal(body, &work); err != nil {
		return nil, err
	}

	m := rank.MetricSet{}
	if work.CitedByPercentile.Value > 0 {
		m[rank.MetricCitedByPercentile] = work.CitedByPercentile.Value
	}
	if work.PrimarySource != nil {
		mergeSource(m, work.PrimarySource)
	}
	if len(m) == 0 {
		return nil, nil
	}
	if err := c.cache.put(cacheKey, m); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist metrics cache")
	}
	return m, nil
}

// byJournal queries the sources endpoint by display name. The first match
// wins, following OpenAlex relevance ordering.
func (c *Client) byJournal(ctx context.Context, journalRef string) (rank.MetricSet, error) {
	name := cleanJournalName(journalRef)
	if name == "" {
		return nil, nil
	}

	cacheKey := "journal:" + name
	if m, ok := c.cache.get(cacheKey); ok {
		c.metrics.RecordCacheLookup(metricsCacheName, true)
		return m, nil
	}
	c.metrics.RecordCacheLookup(metricsCacheName, false)

	query := url.Values{}
	query.Set("filter", "display_name.search:"+name)
	body, err := c.http.Get(ctx, c.config.BaseURL+"/sources?"+query.Encode())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrRejected) {
			return nil, nil
		}
		return nil, err
	}

	var resp sourcesResponse
	if err := unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	m := rank.MetricSet{}
	mergeSource(m, &resp.Results[0])
	if len(m) == 0 {
		return nil, nil
	}
	if err := c.cache.put(cacheKey, m); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist metrics cache")
	}
	return m, nil
}

// mergeSource copies whichever indicators the source object carries. Newer
// API responses nest them under summary_stats.
func mergeSource(m rank.MetricSet, src *sourceObject) {
	h, impact := src.HIndex, src.ImpactFactor
	if src.SummaryStats != nil {
		if h == nil {
			h = src.SummaryStats.HIndex
		}
		if impact == nil {
			impact = src.SummaryStats.ImpactFactor
		}
	}
	if h != nil {
		m[rank.MetricHIndex] = *h
	}
	if impact != nil {
		m[rank.MetricImpactFactor] = *impact
	}
}

// cleanJournalName strips volume, year and page noise from a journal_ref.
func cleanJournalName(journalRef string) string {
	match := journalNameRegex.FindStringSubmatch(journalRef)
	if len(match) < 2 {
		return strings.TrimSpace(journalRef)
	}
	return strings.Join(strings.Fields(match[1]), " ")
}

func unmarshal(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s: decoding response: %w", clientName, err)
	}
	return nil
}
