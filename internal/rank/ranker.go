// Package rank orders a batch of records by a composite score built from
// external venue quality metrics.
package rank

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/GhUserLiu/paperflow/internal/domain"
)

// Named metrics understood by the ranker.
const (
	MetricCitedByPercentile = "cited_by_percentile"
	MetricHIndex            = "h_index"
	MetricImpactFactor      = "impact_factor"
)

// MetricSet holds per-record raw metric inputs. Absent entries and exact
// zeros both mean "no data", never "worst score".
type MetricSet map[string]float64

// Range is the fixed raw-value span a metric is normalized against. Values
// outside the range are clamped, not rejected.
type Range struct {
	Min float64
	Max float64
}

// Config holds ranker parameters.
type Config struct {
	// Weights maps metric name to weight. Weights need not sum to 1; they
	// are rescaled proportionally at construction time.
	Weights map[string]float64

	// Defaults are raw values substituted for missing-or-zero metrics
	// before normalization.
	Defaults map[string]float64

	// Ranges are the per-metric normalization bounds.
	Ranges map[string]Range
}

// DefaultConfig returns the weights, fallbacks and normalization ranges used
// for venue metrics: citation percentile dominates, h-index and impact
// factor follow.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			MetricCitedByPercentile: 0.50,
			MetricHIndex:            0.30,
			MetricImpactFactor:      0.20,
		},
		Defaults: map[string]float64{
			MetricCitedByPercentile: 50.0,
			MetricHIndex:            10.0,
			MetricImpactFactor:      1.0,
		},
		Ranges: map[string]Range{
			MetricCitedByPercentile: {Min: 0, Max: 100},
			MetricHIndex:            {Min: 1, Max: 500},
			MetricImpactFactor:      {Min: 0.1, Max: 50},
		},
	}
}

// Ranker computes normalized weighted scores and orders batches by them.
// Scores are deterministic given identical inputs: the ranker holds no
// mutable state and uses no randomness.
type Ranker struct {
	weights  map[string]float64
	defaults map[string]float64
	ranges   map[string]Range
	log      zerolog.Logger
}

// New creates a Ranker, rescaling the configured weights to sum to 1.
func New(cfg Config, log zerolog.Logger) (*Ranker, error) {
	base := DefaultConfig()
	if cfg.Weights == nil {
		cfg.Weights = base.Weights
	}
	if cfg.Defaults == nil {
		cfg.Defaults = base.Defaults
	}
	if cfg.Ranges == nil {
		cfg.Ranges = base.Ranges
	}

	total := 0.0
	for name, w := range cfg.Weights {
		if w < 0 {
			return nil, fmt.Errorf("rank: negative weight for %q", name)
		}
		rng, ok := cfg.Ranges[name]
		if !ok {
			return nil, fmt.Errorf("rank: no normalization range for metric %q", name)
		}
		if rng.Max <= rng.Min {
			return nil, fmt.Errorf("rank: normalization range for metric %q must have max > min", name)
		}
		if _, ok := cfg.Defaults[name]; !ok {
			return nil, fmt.Errorf("rank: no default value for metric %q", name)
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("rank: weights sum to zero")
	}

	weights := make(map[string]float64, len(cfg.Weights))
	for name, w := range cfg.Weights {
		weights[name] = w / total
	}

	return &Ranker{
		weights:  weights,
		defaults: cfg.Defaults,
		ranges:   cfg.Ranges,
		log:      log.With().Str("component", "rank").Logger(),
	}, nil
}

// Score computes the composite score in [0, 100] for one metric set.
func (r *Ranker) Score(metrics MetricSet) float64 {
	score := 0.0
	for name, weight := range r.weights {
		score += r.metricScore(metrics, name) * weight
	}
	return score
}

// metricScore normalizes one metric into [0, 100], substituting the default
// raw value when the metric is absent or exactly zero.
func (r *Ranker) metricScore(metrics MetricSet, name string) float64 {
	value, ok := metrics[name]
	if !ok || value == 0 {
		value = r.defaults[name]
	}

	rng := r.ranges[name]
	normalized := (value - rng.Min) / (rng.Max - rng.Min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}
	return normalized * 100
}

// Rank returns the records ordered by descending composite score. Metrics
// are looked up by the record's identifier key, falling back to the record's
// own RawMetrics; records with no metrics at all score on defaults and are
// never excluded. The sort is stable, so equal scores keep their original
// relative order. The input slice is not modified.
func (r *Ranker) Rank(records []*domain.Record, metricsByID map[string]MetricSet) []*domain.Record {
	if len(records) == 0 {
		return nil
	}

	ranked := make([]*domain.Record, len(records))
	copy(ranked, records)

	scores := make(map[*domain.Record]float64, len(records))
	var minScore, maxScore, sum float64
	for i, rec := range ranked {
		metrics := metricsByID[rec.Key().String()]
		if metrics == nil && rec.RawMetrics != nil {
			metrics = MetricSet(rec.RawMetrics)
		}
		s := r.Score(metrics)
		scores[rec] = s
		sum += s
		if i == 0 || s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})

	r.log.Info().
		Int("records", len(ranked)).
		Float64("avg_score", sum/float64(len(ranked))).
		Float64("max_score", maxScore).
		Float64("min_score", minScore).
		Msg("ranked batch by composite score")

	return ranked
}
