package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GhUserLiu/paperflow/internal/domain"
)

func key(i int) domain.IdentifierKey {
	return domain.NewIdentifierKey(domain.FieldArchiveID, fmt.Sprintf("2401.%05d", i))
}

func TestNew(t *testing.T) {
	t.Run("applies default sizing", func(t *testing.T) {
		c := New(Config{})

		assert.Equal(t, DefaultTTL, c.cfg.TTL)
		assert.Equal(t, DefaultMaxEntries, c.cfg.MaxEntries)
		assert.Equal(t, DefaultEvictEntries, c.cfg.EvictEntries)
	})

	t.Run("derives evict count from max entries", func(t *testing.T) {
		c := New(Config{MaxEntries: 50})
		assert.Equal(t, 10, c.cfg.EvictEntries)

		c = New(Config{MaxEntries: 3})
		assert.Equal(t, 1, c.cfg.EvictEntries)
	})
}

func TestTTL_GetPut(t *testing.T) {
	t.Run("round-trips found and absent lookups", func(t *testing.T) {
		c := New(Config{})

		c.Put(key(1), Lookup{ItemKey: "ABCD1234", Found: true})
		c.Put(key(2), Lookup{Found: false})

		got, ok := c.Get(key(1))
		require.True(t, ok)
		assert.Equal(t, "ABCD1234", got.ItemKey)
		assert.True(t, got.Found)

		got, ok = c.Get(key(2))
		require.True(t, ok)
		assert.False(t, got.Found, "confirmed absence is a cacheable result")
	})

	t.Run("missing key is a miss", func(t *testing.T) {
		c := New(Config{})

		_, ok := c.Get(key(99))
		assert.False(t, ok)

		hits, misses := c.Stats()
		assert.Equal(t, uint64(0), hits)
		assert.Equal(t, uint64(1), misses)
	})

	t.Run("entry at exactly TTL age is expired", func(t *testing.T) {
		c := New(Config{TTL: time.Minute})
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return base }

		c.Put(key(1), Lookup{ItemKey: "K", Found: true})

		c.now = func() time.Time { return base.Add(time.Minute) }
		_, ok := c.Get(key(1))
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len(), "expired entry is removed on read")
	})

	t.Run("entry just under TTL age survives", func(t *testing.T) {
		c := New(Config{TTL: time.Minute})
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return base }

		c.Put(key(1), Lookup{ItemKey: "K", Found: true})

		c.now = func() time.Time { return base.Add(time.Minute - time.Nanosecond) }
		_, ok := c.Get(key(1))
		assert.True(t, ok)
	})

	t.Run("repeated expiry cycles do not grow the insertion order", func(t *testing.T) {
		c := New(Config{TTL: time.Minute, MaxEntries: 1000})
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		now := base
		c.now = func() time.Time { return now }

		// A long-lived daemon re-populates the same keys every TTL cycle:
		// each Get of an expired key must free its insertion slot, or the
		// order slice grows without bound below MaxEntries.
		for cycle := 0; cycle < 50; cycle++ {
			for i := 0; i < 100; i++ {
				_, ok := c.Get(key(i))
				assert.False(t, ok)
				c.Put(key(i), Lookup{Found: false})
			}
			now = now.Add(2 * time.Minute)
		}

		assert.Equal(t, 100, c.Len())
		assert.Equal(t, 100, len(c.order), "one order slot per live entry")
	})

	t.Run("overwrite refreshes timestamp without growing the cache", func(t *testing.T) {
		c := New(Config{TTL: time.Minute})
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return base }

		c.Put(key(1), Lookup{Found: false})
		c.now = func() time.Time { return base.Add(30 * time.Second) }
		c.Put(key(1), Lookup{ItemKey: "K", Found: true})

		assert.Equal(t, 1, c.Len())

		c.now = func() time.Time { return base.Add(80 * time.Second) }
		got, ok := c.Get(key(1))
		require.True(t, ok, "refreshed entry outlives the original TTL")
		assert.True(t, got.Found)
	})
}

func TestTTL_Eviction(t *testing.T) {
	t.Run("evicts the oldest fifth when full", func(t *testing.T) {
		c := New(Config{MaxEntries: 10})

		for i := 0; i < 10; i++ {
			c.Put(key(i), Lookup{Found: false})
		}
		require.Equal(t, 10, c.Len())

		c.Put(key(10), Lookup{Found: false})

		assert.Equal(t, 9, c.Len(), "two oldest evicted, one inserted")
		_, ok := c.Get(key(0))
		assert.False(t, ok)
		_, ok = c.Get(key(1))
		assert.False(t, ok)
		_, ok = c.Get(key(2))
		assert.True(t, ok)
		_, ok = c.Get(key(10))
		assert.True(t, ok)
	})

	t.Run("eviction order follows insertion, not overwrites", func(t *testing.T) {
		c := New(Config{MaxEntries: 4, EvictEntries: 1})

		for i := 0; i < 4; i++ {
			c.Put(key(i), Lookup{Found: false})
		}
		// Overwriting the oldest key does not move it to the back.
		c.Put(key(0), Lookup{ItemKey: "K", Found: true})

		c.Put(key(4), Lookup{Found: false})

		_, ok := c.Get(key(0))
		assert.False(t, ok, "oldest insertion is evicted despite the recent overwrite")
		_, ok = c.Get(key(1))
		assert.True(t, ok)
	})
}
