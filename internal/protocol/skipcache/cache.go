package skipcache

import (
	"slices"
	"time"

	"paircrypt/internal/util/memzero"
)

// maxTombstones bounds how many evicted counters are remembered. Once a
// tombstone ages out, a late delivery of that counter is no longer told apart
// from other underivable counters.
const maxTombstones = 1024

// Limits bound the cache.
type Limits struct {
	MaxEntries int
	// MaxAge is how long an entry may wait for its message. Zero disables
	// age-based eviction.
	MaxAge time.Duration
}

// DefaultLimits tolerate a thousand outstanding messages for up to a week.
var DefaultLimits = Limits{MaxEntries: 1000, MaxAge: 7 * 24 * time.Hour}

// Entry is one skipped message key.
type Entry struct {
	RatchetKey [32]byte `cbor:"1,keyasint"`
	Counter    uint32   `cbor:"2,keyasint"`
	Key        []byte   `cbor:"3,keyasint"`
	StoredAt   int64    `cbor:"4,keyasint"` // unix nanoseconds
}

// Tombstone marks one counter whose key was evicted unused.
type Tombstone struct {
	RatchetKey [32]byte `cbor:"1,keyasint"`
	Counter    uint32   `cbor:"2,keyasint"`
}

// Cache is the arena of skipped keys, oldest first.
type Cache struct {
	Entries    []Entry     `cbor:"1,keyasint,omitempty"`
	Tombstones []Tombstone `cbor:"2,keyasint,omitempty"`
}

// Len returns the number of cached keys.
func (c *Cache) Len() int { return len(c.Entries) }

// Has reports whether a key for (rk, n) is cached.
func (c *Cache) Has(rk [32]byte, n uint32) bool { return c.index(rk, n) >= 0 }

// Put stores key for (rk, n), evicting as needed, and returns how many
// entries were evicted. The cache takes ownership of key.
func (c *Cache) Put(rk [32]byte, n uint32, key []byte, now time.Time, lim Limits) int {
	evicted := c.Prune(now, lim)
	if lim.MaxEntries <= 0 {
		memzero.Zero(key)
		c.bury(rk, n)
		return evicted + 1
	}
	for len(c.Entries) >= lim.MaxEntries {
		c.evict(0)
		evicted++
	}
	c.Entries = append(c.Entries, Entry{RatchetKey: rk, Counter: n, Key: key, StoredAt: now.UnixNano()})
	return evicted
}

// Take removes and returns the key for (rk, n).
func (c *Cache) Take(rk [32]byte, n uint32) ([]byte, bool) {
	i := c.index(rk, n)
	if i < 0 {
		return nil, false
	}
	key := c.Entries[i].Key
	c.Entries = append(c.Entries[:i], c.Entries[i+1:]...)
	return key, true
}

// Prune evicts entries older than lim.MaxAge and returns how many went.
func (c *Cache) Prune(now time.Time, lim Limits) int {
	if lim.MaxAge <= 0 {
		return 0
	}
	cutoff := now.Add(-lim.MaxAge).UnixNano()
	n := 0
	for len(c.Entries) > 0 && c.Entries[0].StoredAt <= cutoff {
		c.evict(0)
		n++
	}
	return n
}

// Evicted reports whether the key for (rk, n) was dropped by a bound before
// it was used. Keys removed by Take are not evicted.
func (c *Cache) Evicted(rk [32]byte, n uint32) bool {
	for _, t := range c.Tombstones {
		if t.Counter == n && t.RatchetKey == rk {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c Cache) Clone() Cache {
	out := Cache{Tombstones: append([]Tombstone(nil), c.Tombstones...)}
	if len(c.Entries) > 0 {
		out.Entries = make([]Entry, len(c.Entries))
		for i, e := range c.Entries {
			e.Key = append([]byte(nil), e.Key...)
			out.Entries[i] = e
		}
	}
	return out
}

// Wipe zeroes and drops every cached key.
func (c *Cache) Wipe() {
	for i := range c.Entries {
		memzero.Zero(c.Entries[i].Key)
	}
	c.Entries = nil
}

func (c *Cache) index(rk [32]byte, n uint32) int {
	for i := range c.Entries {
		if c.Entries[i].Counter == n && c.Entries[i].RatchetKey == rk {
			return i
		}
	}
	return -1
}

func (c *Cache) evict(i int) {
	e := c.Entries[i]
	memzero.Zero(e.Key)
	c.Entries = append(c.Entries[:i], c.Entries[i+1:]...)
	c.bury(e.RatchetKey, e.Counter)
}

func (c *Cache) bury(rk [32]byte, n uint32) {
	c.Tombstones = append(c.Tombstones, Tombstone{RatchetKey: rk, Counter: n})
	if len(c.Tombstones) > maxTombstones {
		c.Tombstones = slices.Delete(c.Tombstones, 0, len(c.Tombstones)-maxTombstones)
	}
}
