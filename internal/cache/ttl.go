// Package cache provides the short-lived lookup cache that sits between the
// duplicate resolver and the remote bibliography store.
package cache

import (
	"sync"
	"time"

	"github.com/GhUserLiu/paperflow/internal/domain"
)

// Default sizing. The accession cache is tuned for the ~500 most recently
// added remote items scanned on a refresh; the generic cache is smaller.
const (
	DefaultTTL          = 300 * time.Second
	DefaultMaxEntries   = 1000
	DefaultEvictEntries = 200
)

// Lookup is a cached duplicate-check result. Found=false records a confirmed
// absence: a prior scan saw no match, which spares the next lookup a remote
// round-trip but is not a guarantee the record is new.
type Lookup struct {
	ItemKey string
	Found   bool
}

type entry struct {
	lookup   Lookup
	storedAt time.Time
}

// Config holds cache sizing parameters.
type Config struct {
	// TTL is the maximum age of an entry before reads treat it as a miss.
	TTL time.Duration

	// MaxEntries bounds the cache size.
	MaxEntries int

	// EvictEntries is how many of the oldest entries are dropped when a put
	// would exceed MaxEntries (insertion order, not LRU).
	EvictEntries int
}

func (c *Config) applyDefaults() {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.EvictEntries == 0 {
		c.EvictEntries = c.MaxEntries / 5
	}
	if c.EvictEntries < 1 {
		c.EvictEntries = 1
	}
}

// TTL is a bounded, time-boxed map from identifier key to resolved remote
// item key (or confirmed absence). Entries expire by age only; the remote
// store has no change-notification channel to invalidate against. Safe for
// concurrent use.
type TTL struct {
	mu      sync.Mutex
	cfg     Config
	entries map[domain.IdentifierKey]entry
	order   []domain.IdentifierKey
	now     func() time.Time

	hits   uint64
	misses uint64
}

// New creates a TTL cache with the given configuration.
func New(cfg Config) *TTL {
	cfg.applyDefaults()
	return &TTL{
		cfg:     cfg,
		entries: make(map[domain.IdentifierKey]entry, cfg.MaxEntries),
		now:     time.Now,
	}
}

// Get returns the cached lookup for key. ok is false when the key is absent
// or the entry's age has reached the TTL; stale entries are removed so the
// next Put re-inserts them fresh.
func (c *TTL) Get(key domain.IdentifierKey) (Lookup, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return Lookup{}, false
	}
	if c.now().Sub(e.storedAt) >= c.cfg.TTL {
		delete(c.entries, key)
		c.dropFromOrder(key)
		c.misses++
		return Lookup{}, false
	}
	c.hits++
	return e.lookup, true
}

// Put stores a lookup result, evicting the oldest entries first when the
// cache is full. Overwriting an existing key refreshes its timestamp but
// keeps its original insertion position for eviction purposes.
func (c *TTL) Put(key domain.IdentifierKey, lookup Lookup) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.entries) >= c.cfg.MaxEntries {
			c.evictOldest()
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = entry{lookup: lookup, storedAt: c.now()}
}

// Len returns the number of live entries, counting expired-but-unread ones.
func (c *TTL) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *TTL) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// evictOldest removes the EvictEntries oldest live entries in insertion
// order. Callers hold c.mu.
func (c *TTL) evictOldest() {
	removed := 0
	i := 0
	for i < len(c.order) && removed < c.cfg.EvictEntries {
		key := c.order[i]
		i++
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			removed++
		}
	}
	c.order = append(c.order[:0], c.order[i:]...)
}

// dropFromOrder removes key's insertion slot so a later Put re-appends it
// instead of leaving an orphaned slot behind. Keys appear in order at most
// once. Callers hold c.mu.
func (c *TTL) dropFromOrder(key domain.IdentifierKey) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
