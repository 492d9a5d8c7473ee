package rank

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GhUserLiu/paperflow/internal/domain"
)

func newTestRanker(t *testing.T, cfg Config) *Ranker {
	t.Helper()
	r, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	return r
}

func record(id string) *domain.Record {
	return &domain.Record{
		ArchiveID: id,
		Title:     "paper " + id,
		Source:    domain.SourceArxiv,
	}
}

func TestNew(t *testing.T) {
	t.Run("rescales weights to sum to one", func(t *testing.T) {
		r := newTestRanker(t, Config{
			Weights: map[string]float64{
				MetricCitedByPercentile: 2,
				MetricHIndex:            1,
				MetricImpactFactor:      1,
			},
		})

		assert.InDelta(t, 0.5, r.weights[MetricCitedByPercentile], 1e-9)
		assert.InDelta(t, 0.25, r.weights[MetricHIndex], 1e-9)
	})

	t.Run("rejects bad configs", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  Config
		}{
			{"negative weight", Config{Weights: map[string]float64{MetricHIndex: -1}}},
			{"zero weight sum", Config{Weights: map[string]float64{}}},
			{"metric without range", Config{
				Weights:  map[string]float64{"novelty": 1},
				Defaults: map[string]float64{"novelty": 0.5},
				Ranges:   map[string]Range{},
			}},
			{"metric without default", Config{
				Weights:  map[string]float64{"novelty": 1},
				Defaults: map[string]float64{},
				Ranges:   map[string]Range{"novelty": {Min: 0, Max: 1}},
			}},
			{"degenerate range", Config{
				Weights:  map[string]float64{"novelty": 1},
				Defaults: map[string]float64{"novelty": 0.5},
				Ranges:   map[string]Range{"novelty": {Min: 1, Max: 1}},
			}},
			{"inverted range", Config{
				Weights:  map[string]float64{"novelty": 1},
				Defaults: map[string]float64{"novelty": 0.5},
				Ranges:   map[string]Range{"novelty": {Min: 1, Max: 0}},
			}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := New(tt.cfg, zerolog.Nop())
				assert.Error(t, err)
			})
		}
	})
}

func TestRanker_Score(t *testing.T) {
	r := newTestRanker(t, Config{})

	t.Run("best possible inputs score 100", func(t *testing.T) {
		score := r.Score(MetricSet{
			MetricCitedByPercentile: 100,
			MetricHIndex:            500,
			MetricImpactFactor:      50,
		})
		assert.InDelta(t, 100.0, score, 1e-9)
	})

	t.Run("values beyond the range clamp instead of overflowing", func(t *testing.T) {
		score := r.Score(MetricSet{
			MetricCitedByPercentile: 100,
			MetricHIndex:            2000,
			MetricImpactFactor:      300,
		})
		assert.InDelta(t, 100.0, score, 1e-9)
	})

	t.Run("missing metrics fall back to defaults", func(t *testing.T) {
		withDefaults := r.Score(nil)
		explicit := r.Score(MetricSet{
			MetricCitedByPercentile: 50,
			MetricHIndex:            10,
			MetricImpactFactor:      1,
		})
		assert.InDelta(t, explicit, withDefaults, 1e-9)
		assert.Greater(t, withDefaults, 0.0)
	})

	t.Run("zero value means no data, not worst score", func(t *testing.T) {
		zeroed := r.Score(MetricSet{MetricCitedByPercentile: 0})
		assert.InDelta(t, r.Score(nil), zeroed, 1e-9)
	})

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		m := MetricSet{MetricCitedByPercentile: 80, MetricHIndex: 120, MetricImpactFactor: 4.5}
		assert.Equal(t, r.Score(m), r.Score(m))
	})
}

func TestRanker_Rank(t *testing.T) {
	r := newTestRanker(t, Config{})

	t.Run("orders by descending score without modifying the input", func(t *testing.T) {
		low := record("2401.00001")
		high := record("2401.00002")
		mid := record("2401.00003")
		input := []*domain.Record{low, high, mid}

		ranked := r.Rank(input, map[string]MetricSet{
			low.Key().String():  {MetricCitedByPercentile: 10},
			high.Key().String(): {MetricCitedByPercentile: 95},
			mid.Key().String():  {MetricCitedByPercentile: 50},
		})

		require.Len(t, ranked, 3)
		assert.Same(t, high, ranked[0])
		assert.Same(t, mid, ranked[1])
		assert.Same(t, low, ranked[2])
		assert.Equal(t, []*domain.Record{low, high, mid}, input, "input order preserved")
	})

	t.Run("equal scores keep their original relative order", func(t *testing.T) {
		a := record("2401.00010")
		b := record("2401.00011")
		c := record("2401.00012")

		ranked := r.Rank([]*domain.Record{a, b, c}, nil)

		assert.Same(t, a, ranked[0])
		assert.Same(t, b, ranked[1])
		assert.Same(t, c, ranked[2])
	})

	t.Run("falls back to record raw metrics", func(t *testing.T) {
		plain := record("2401.00020")
		enriched := record("2401.00021")
		enriched.RawMetrics = map[string]float64{MetricCitedByPercentile: 99, MetricHIndex: 400, MetricImpactFactor: 40}

		ranked := r.Rank([]*domain.Record{plain, enriched}, nil)
		assert.Same(t, enriched, ranked[0])
	})

	t.Run("empty input yields nil", func(t *testing.T) {
		assert.Nil(t, r.Rank(nil, nil))
	})
}
