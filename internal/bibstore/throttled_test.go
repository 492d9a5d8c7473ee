package bibstore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GhUserLiu/paperflow/internal/domain"
	"github.com/GhUserLiu/paperflow/internal/ratelimit"
	"github.com/GhUserLiu/paperflow/internal/retry"
)

// countingStore records call counts and returns scripted errors.
type countingStore struct {
	createCalls int32
	listCalls   int32
	failures    int32 // number of leading calls that fail transiently
}

func (s *countingStore) CreateItem(ctx context.Context, rec *domain.Record) (string, error) {
	n := atomic.AddInt32(&s.createCalls, 1)
	if n <= atomic.LoadInt32(&s.failures) {
		return "", domain.NewExternalAPIError("store", 503, "unavailable", nil)
	}
	return "ITEM-1", nil
}

func (s *countingStore) ListRecent(ctx context.Context, scope Scope, limit int) ([]Item, error) {
	atomic.AddInt32(&s.listCalls, 1)
	return []Item{{Key: "A"}}, nil
}

func (s *countingStore) AddToCollection(ctx context.Context, itemKey, collectionKey string) error {
	return nil
}

func (s *countingStore) UploadAttachment(ctx context.Context, itemKey, filename string, data []byte) error {
	return nil
}

func (s *countingStore) ListCollections(ctx context.Context) ([]Collection, error) {
	return []Collection{{Key: "C", Name: "refs"}}, nil
}

func fastLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		Window:      time.Minute,
		MaxRequests: 1000,
		MinInterval: time.Nanosecond,
	}, zerolog.Nop())
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, Multiplier: 1.1}
}

func TestThrottled(t *testing.T) {
	rec := &domain.Record{ArchiveID: "2401.00001", Title: "t", Source: domain.SourceArxiv}

	t.Run("delegates and returns the store's results", func(t *testing.T) {
		store := &countingStore{}
		th := NewThrottled(store, fastLimiter(), fastPolicy(), nil, zerolog.Nop())

		key, err := th.CreateItem(context.Background(), rec)
		require.NoError(t, err)
		assert.Equal(t, "ITEM-1", key)

		items, err := th.ListRecent(context.Background(), Scope{}, 10)
		require.NoError(t, err)
		assert.Len(t, items, 1)

		cols, err := th.ListCollections(context.Background())
		require.NoError(t, err)
		assert.Len(t, cols, 1)
	})

	t.Run("each retry re-acquires the limiter", func(t *testing.T) {
		store := &countingStore{failures: 2}
		limiter := fastLimiter()
		th := NewThrottled(store, limiter, fastPolicy(), nil, zerolog.Nop())

		key, err := th.CreateItem(context.Background(), rec)
		require.NoError(t, err)
		assert.Equal(t, "ITEM-1", key)
		assert.Equal(t, int32(3), store.createCalls)
		assert.Equal(t, 3, limiter.InWindow(), "every attempt consumed quota")
	})

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		store := &countingStore{failures: 100}
		th := NewThrottled(store, fastLimiter(), fastPolicy(), nil, zerolog.Nop())

		_, err := th.CreateItem(context.Background(), rec)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUnavailable)
		assert.Equal(t, int32(3), store.createCalls)
	})

	t.Run("context cancellation interrupts a limiter stall", func(t *testing.T) {
		// Threshold of one: the second call stalls for the full window.
		limiter := ratelimit.New(ratelimit.Config{
			Window:            time.Hour,
			MaxRequests:       2,
			ThresholdFraction: 0.5,
			MinInterval:       time.Nanosecond,
		}, zerolog.Nop())
		store := &countingStore{}
		th := NewThrottled(store, limiter, fastPolicy(), nil, zerolog.Nop())

		_, err := th.ListRecent(context.Background(), Scope{}, 10)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = th.ListRecent(ctx, Scope{}, 10)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, int32(1), store.listCalls, "the stalled call never reached the store")
	})
}

func TestScope(t *testing.T) {
	assert.True(t, Scope{}.Global())
	assert.False(t, Scope{Collection: "C1"}.Global())
}
