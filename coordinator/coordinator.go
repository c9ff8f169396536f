// Package coordinator serializes cache population against invalidation.
//
// Each logical cache key carries a monotonic generation counter. A reader
// snapshots the generation before querying the store; the later cache write
// runs only if the generation is unchanged. An invalidation bumps the
// generation first, so any repopulation that read the store before the
// invalidating write can no longer land in the cache.
package coordinator

import "sync"

type entry struct {
	mu  sync.Mutex
	gen uint64
}

// Keyed holds per-key generation counters. The zero value is not usable;
// call New.
//
// Entries are never evicted: the map holds one counter and mutex per key
// ever coordinated, a few dozen bytes per product. Eviction would need a
// safe point where no reader holds an observed generation for the key,
// which is not worth tracking at catalog scale.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

func (k *Keyed) entryFor(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	return e
}

// Snapshot returns the key's current generation. Call it before reading the
// store on a cache miss.
func (k *Keyed) Snapshot(key string) uint64 {
	e := k.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// Populate runs write while holding the key's lock, but only if the
// generation still equals observed. It reports whether the write ran.
// A write skipped here read the store before a newer invalidation and would
// have put a stale snapshot in the cache.
func (k *Keyed) Populate(key string, observed uint64, write func()) bool {
	e := k.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != observed {
		return false
	}
	write()
	return true
}

// Invalidate bumps the key's generation and runs evict (which may be nil)
// under the key's lock. Repeating an invalidation is harmless: each call
// bumps the generation and re-runs the eviction, both of which are
// idempotent with respect to cache state.
func (k *Keyed) Invalidate(key string, evict func()) {
	e := k.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	if evict != nil {
		evict()
	}
}
