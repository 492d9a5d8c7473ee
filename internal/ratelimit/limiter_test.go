package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimiter(cfg Config) *Limiter {
	return New(cfg, zerolog.Nop())
}

func TestNew(t *testing.T) {
	t.Run("applies default values", func(t *testing.T) {
		l := testLimiter(Config{})

		assert.Equal(t, DefaultWindow, l.cfg.Window)
		assert.Equal(t, DefaultMaxRequests, l.cfg.MaxRequests)
		assert.Equal(t, DefaultMinInterval, l.cfg.MinInterval)
		assert.Equal(t, 90, l.threshold)
	})

	t.Run("clamps threshold into valid range", func(t *testing.T) {
		l := testLimiter(Config{MaxRequests: 2, ThresholdFraction: 0.1})
		assert.Equal(t, 1, l.threshold)

		l = testLimiter(Config{MaxRequests: 10, ThresholdFraction: 2.0})
		assert.Equal(t, 10, l.threshold)
	})
}

func TestLimiter_Acquire(t *testing.T) {
	t.Run("proceeds immediately below threshold", func(t *testing.T) {
		l := testLimiter(Config{
			Window:      time.Minute,
			MaxRequests: 10,
			MinInterval: time.Nanosecond,
		})

		start := time.Now()
		for i := 0; i < 5; i++ {
			require.NoError(t, l.Acquire(context.Background()))
		}
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, 5, l.InWindow())
	})

	t.Run("enforces minimum spacing between requests", func(t *testing.T) {
		l := testLimiter(Config{
			Window:      time.Minute,
			MaxRequests: 100,
			MinInterval: 50 * time.Millisecond,
		})

		start := time.Now()
		for i := 0; i < 3; i++ {
			require.NoError(t, l.Acquire(context.Background()))
		}
		// First acquire consumes the initial token; two more need spacing.
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("stalls at threshold until oldest timestamp leaves the window", func(t *testing.T) {
		l := testLimiter(Config{
			Window:            200 * time.Millisecond,
			MaxRequests:       4,
			ThresholdFraction: 0.5,
			MinInterval:       time.Nanosecond,
			Buffer:            10 * time.Millisecond,
		})

		require.NoError(t, l.Acquire(context.Background()))
		require.NoError(t, l.Acquire(context.Background()))

		// Third acquire hits the threshold of 2 and must wait out the window.
		start := time.Now()
		require.NoError(t, l.Acquire(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("returns context error while stalled", func(t *testing.T) {
		l := testLimiter(Config{
			Window:            time.Hour,
			MaxRequests:       2,
			ThresholdFraction: 0.5,
			MinInterval:       time.Nanosecond,
		})
		require.NoError(t, l.Acquire(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := l.Acquire(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, l.InWindow())
	})

	t.Run("fails closed on zero clock", func(t *testing.T) {
		l := testLimiter(Config{
			Window:      50 * time.Millisecond,
			MaxRequests: 10,
			MinInterval: time.Nanosecond,
		})
		l.now = func() time.Time { return time.Time{} }

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		err := l.Acquire(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("serializes concurrent callers", func(t *testing.T) {
		l := testLimiter(Config{
			Window:      time.Minute,
			MaxRequests: 100,
			MinInterval: 20 * time.Millisecond,
		})

		const callers = 4
		var wg sync.WaitGroup
		start := time.Now()
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, l.Acquire(context.Background()))
			}()
		}
		wg.Wait()

		// One initial token plus three spaced acquisitions.
		assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
		assert.Equal(t, callers, l.InWindow())
	})
}

func TestLimiter_prune(t *testing.T) {
	t.Run("drops timestamps older than the window", func(t *testing.T) {
		l := testLimiter(Config{Window: time.Minute, MaxRequests: 10, MinInterval: time.Nanosecond})

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		l.sent = []time.Time{
			base.Add(-2 * time.Minute),
			base.Add(-90 * time.Second),
			base.Add(-30 * time.Second),
			base.Add(-time.Second),
		}
		l.now = func() time.Time { return base }

		assert.Equal(t, 2, l.InWindow())
	})

	t.Run("boundary timestamp exactly one window old stays", func(t *testing.T) {
		l := testLimiter(Config{Window: time.Minute, MaxRequests: 10, MinInterval: time.Nanosecond})

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		l.sent = []time.Time{base.Add(-time.Minute)}
		l.now = func() time.Time { return base }

		assert.Equal(t, 1, l.InWindow())
	})
}
