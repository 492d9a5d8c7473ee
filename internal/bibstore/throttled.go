package bibstore

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/GhUserLiu/paperflow/internal/domain"
	"github.com/GhUserLiu/paperflow/internal/observability"
	"github.com/GhUserLiu/paperflow/internal/ratelimit"
	"github.com/GhUserLiu/paperflow/internal/retry"
)

// Operation labels for store metrics.
const (
	opCreate      = "create"
	opList        = "list"
	opCollection  = "collection"
	opAttach      = "attach"
	opCollections = "collections"
)

// Throttled decorates a Store so that every call acquires the rate limiter
// and runs under the retry policy. It is the only path to the remote store;
// constructing a pipeline around a bare Store would bypass the quota.
type Throttled struct {
	store   Store
	limiter *ratelimit.Limiter
	retry   retry.Policy
	metrics *observability.Metrics
	log     zerolog.Logger
}

var _ Store = (*Throttled)(nil)

// NewThrottled wraps store with the limiter and retry policy. metrics may be
// nil.
func NewThrottled(store Store, limiter *ratelimit.Limiter, policy retry.Policy, metrics *observability.Metrics, log zerolog.Logger) *Throttled {
	return &Throttled{
		store:   store,
		limiter: limiter,
		retry:   policy,
		metrics: metrics,
		log:     log.With().Str("component", "bibstore").Logger(),
	}
}

// do gates one logical store call: each attempt re-acquires the limiter, so
// retries count against the quota like any other request.
func (t *Throttled) do(ctx context.Context, operation string, fn func(context.Context) error) error {
	err := t.retry.Do(ctx, func() error {
		start := time.Now()
		if err := t.limiter.Acquire(ctx); err != nil {
			return err
		}
		t.metrics.RecordLimiterWait(time.Since(start).Seconds())

		err := fn(ctx)
		t.metrics.RecordStoreRequest(operation, err != nil)
		if err != nil {
			t.log.Debug().Err(err).Str("operation", operation).Msg("store call failed")
		}
		return err
	})
	return err
}

// CreateItem implements Store.
func (t *Throttled) CreateItem(ctx context.Context, rec *domain.Record) (string, error) {
	var key string
	err := t.do(ctx, opCreate, func(ctx context.Context) error {
		var err error
		key, err = t.store.CreateItem(ctx, rec)
		return err
	})
	return key, err
}

// ListRecent implements Store.
func (t *Throttled) ListRecent(ctx context.Context, scope Scope, limit int) ([]Item, error) {
	var items []Item
	err := t.do(ctx, opList, func(ctx context.Context) error {
		var err error
		items, err = t.store.ListRecent(ctx, scope, limit)
		return err
	})
	return items, err
}

// AddToCollection implements Store.
func (t *Throttled) AddToCollection(ctx context.Context, itemKey, collectionKey string) error {
	return t.do(ctx, opCollection, func(ctx context.Context) error {
		return t.store.AddToCollection(ctx, itemKey, collectionKey)
	})
}

// UploadAttachment implements Store.
func (t *Throttled) UploadAttachment(ctx context.Context, itemKey, filename string, data []byte) error {
	return t.do(ctx, opAttach, func(ctx context.Context) error {
		return t.store.UploadAttachment(ctx, itemKey, filename, data)
	})
}

// ListCollections implements Store.
func (t *Throttled) ListCollections(ctx context.Context) ([]Collection, error) {
	var cols []Collection
	err := t.do(ctx, opCollections, func(ctx context.Context) error {
		var err error
		cols, err = t.store.ListCollections(ctx)
		return err
	})
	return cols, err
}
