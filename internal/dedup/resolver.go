package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/GhUserLiu/paperflow/internal/bibstore"
	"github.com/GhUserLiu/paperflow/internal/cache"
	"github.com/GhUserLiu/paperflow/internal/domain"
	"github.com/GhUserLiu/paperflow/internal/observability"
)

// Mode selects where duplicate scans look.
type Mode string

const (
	// ModeGlobal scans the whole library (most recent items only).
	ModeGlobal Mode = "global"

	// ModeScoped scans only the target collection. Faster, but blind to
	// duplicates living in other collections.
	ModeScoped Mode = "scoped"
)

// Resolution tiers, used for logging and metrics.
const (
	TierRun    = "run"
	TierCache  = "cache"
	TierRemote = "remote"
)

// Default scan bounds. Detection is deliberately bounded: items older than
// the most recent ScanLimit additions are invisible to the scan, trading
// completeness for a fixed per-lookup cost.
const (
	DefaultScanLimit       = 500
	DefaultScopedScanLimit = 100
)

// Config holds resolver settings.
type Config struct {
	// Mode selects global or scoped duplicate checking.
	Mode Mode

	// Collection is the target collection key, required in scoped mode.
	Collection string

	// ScanLimit bounds global listing scans.
	ScanLimit int

	// ScopedScanLimit bounds collection-scoped listing scans.
	ScopedScanLimit int
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeGlobal
	}
	if c.ScanLimit == 0 {
		c.ScanLimit = DefaultScanLimit
	}
	if c.ScopedScanLimit == 0 {
		c.ScopedScanLimit = DefaultScopedScanLimit
	}
}

// Resolution is the outcome of a duplicate check.
type Resolution struct {
	// Duplicate reports whether the record already exists.
	Duplicate bool

	// ItemKey is the existing item's store key when known. It may be empty
	// for a run-state duplicate whose create is still in flight.
	ItemKey string

	// Tier names the layer that resolved the check (run, cache, remote).
	Tier string
}

// Resolver answers "has this record already been stored?" across three
// layers of truth, cheapest first: the batch's run state, the lookup caches,
// and the remote store. Remote calls go through the throttled store.
type Resolver struct {
	store     bibstore.Store
	run       *RunState
	accession *cache.TTL
	general   *cache.TTL
	cfg       Config
	metrics   *observability.Metrics
	log       zerolog.Logger
}

// NewResolver creates a Resolver. The accession cache serves the
// high-traffic archive-location field; the general cache serves every other
// identifier field. metrics may be nil.
func NewResolver(store bibstore.Store, run *RunState, accession, general *cache.TTL, cfg Config, metrics *observability.Metrics, log zerolog.Logger) *Resolver {
	cfg.applyDefaults()
	return &Resolver{
		store:     store,
		run:       run,
		accession: accession,
		general:   general,
		cfg:       cfg,
		metrics:   metrics,
		log:       log.With().Str("component", "dedup").Logger(),
	}
}

// Begin resolves key and, when the record is new, atomically claims it in
// the run state so concurrent workers holding the same key resolve as
// duplicates. Callers that proceed to create the item must follow up with
// Commit on success or Abort on failure.
//
// A cached "confirmed absent" short-circuits the remote scan but still means
// "no cached duplicate found", so the caller proceeds to creation.
func (r *Resolver) Begin(ctx context.Context, key domain.IdentifierKey) (Resolution, error) {
	if key.IsZero() {
		// Nothing to check against; the record is ingested as new.
		return Resolution{}, nil
	}

	if itemKey, claimed := r.run.Lookup(key); claimed {
		r.metrics.RecordDuplicate(TierRun)
		return Resolution{Duplicate: true, ItemKey: itemKey, Tier: TierRun}, nil
	}

	if res, decided, err := r.check(ctx, key); err != nil {
		return Resolution{}, err
	} else if decided {
		return res, nil
	}

	// Claim the key. A concurrent worker may have won the race since the
	// lookup above; it then owns the create and we are the duplicate.
	if itemKey, acquired := r.run.TryClaim(key); !acquired {
		r.metrics.RecordDuplicate(TierRun)
		return Resolution{Duplicate: true, ItemKey: itemKey, Tier: TierRun}, nil
	}
	return Resolution{}, nil
}

// Commit registers a created item under its key and refreshes the cache.
func (r *Resolver) Commit(key domain.IdentifierKey, itemKey string) {
	if key.IsZero() {
		return
	}
	r.run.Commit(key, itemKey)
	r.cacheFor(key).Put(key, cache.Lookup{ItemKey: itemKey, Found: true})
}

// Abort releases a claim whose create failed.
func (r *Resolver) Abort(key domain.IdentifierKey) {
	if key.IsZero() {
		return
	}
	r.run.Release(key)
}

// check consults the cache and, on a miss, the remote store. decided is
// false when the record was confirmed new and the caller should claim it.
func (r *Resolver) check(ctx context.Context, key domain.IdentifierKey) (Resolution, bool, error) {
	if r.cfg.Mode == ModeScoped {
		return r.checkScoped(ctx, key)
	}

	c := r.cacheFor(key)
	lookup, ok := c.Get(key)
	r.metrics.RecordCacheLookup(r.cacheName(key), ok)
	if ok {
		if lookup.Found {
			r.metrics.RecordDuplicate(TierCache)
			return Resolution{Duplicate: true, ItemKey: lookup.ItemKey, Tier: TierCache}, true, nil
		}
		// Confirmed absent: skip the remote scan.
		return Resolution{}, false, nil
	}

	items, err := r.store.ListRecent(ctx, bibstore.Scope{}, r.cfg.ScanLimit)
	if err != nil {
		return Resolution{}, false, fmt.Errorf("duplicate scan for %s: %w", key, err)
	}

	// Populate the cache for every scanned item, amortizing this scan
	// across future lookups in the same run.
	match := ""
	for _, item := range items {
		value := strings.TrimSpace(item.Fields[key.Field])
		if value == "" {
			continue
		}
		c.Put(domain.IdentifierKey{Field: key.Field, Value: value}, cache.Lookup{ItemKey: item.Key, Found: true})
		if value == key.Value {
			match = item.Key
		}
	}

	if match != "" {
		r.metrics.RecordDuplicate(TierRemote)
		r.log.Info().Str("key", key.String()).Str("item", match).Msg("duplicate found in remote store")
		return Resolution{Duplicate: true, ItemKey: match, Tier: TierRemote}, true, nil
	}

	// Remember the confirmed absence so the next lookup in this run skips
	// the scan.
	c.Put(key, cache.Lookup{})
	return Resolution{}, false, nil
}

// checkScoped scans only the target collection, without cache involvement:
// scoped scans are small and collection membership changes mid-run.
func (r *Resolver) checkScoped(ctx context.Context, key domain.IdentifierKey) (Resolution, bool, error) {
	items, err := r.store.ListRecent(ctx, bibstore.Scope{Collection: r.cfg.Collection}, r.cfg.ScopedScanLimit)
	if err != nil {
		return Resolution{}, false, fmt.Errorf("scoped duplicate scan for %s: %w", key, err)
	}
	for _, item := range items {
		if strings.TrimSpace(item.Fields[key.Field]) == key.Value {
			r.metrics.RecordDuplicate(TierRemote)
			r.log.Info().Str("key", key.String()).Str("item", item.Key).Msg("duplicate found in collection")
			return Resolution{Duplicate: true, ItemKey: item.Key, Tier: TierRemote}, true, nil
		}
	}
	return Resolution{}, false, nil
}

func (r *Resolver) cacheFor(key domain.IdentifierKey) *cache.TTL {
	if key.Field == domain.FieldArchiveID {
		return r.accession
	}
	return r.general
}

func (r *Resolver) cacheName(key domain.IdentifierKey) string {
	if key.Field == domain.FieldArchiveID {
		return "accession"
	}
	return "generic"
}
