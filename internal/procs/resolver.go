package procs

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long a resolved name is reused.
const DefaultTTL = 5 * time.Minute

// NameLookup resolves a PID to its process name.
type NameLookup interface {
	Name(pid int) (string, error)
}

type cacheEntry struct {
	name    string
	expires time.Time
}

// Resolver caches PID to name lookups. Cached names outlive their process,
// which is what lets a stop notification still carry a name.
type Resolver struct {
	lookup NameLookup
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[int]cacheEntry
	hits    uint64
	misses  uint64
}

// NewResolver wraps lookup with a TTL cache. ttl <= 0 uses DefaultTTL.
func NewResolver(lookup NameLookup, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		lookup:  lookup,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int]cacheEntry),
	}
}

// Name returns the process name for pid, or "" when it cannot be resolved.
func (r *Resolver) Name(pid int) string {
	if pid <= 0 {
		return ""
	}
	now := r.now()

	r.mu.Lock()
	if e, ok := r.entries[pid]; ok && now.Before(e.expires) {
		r.hits++
		r.mu.Unlock()
		return e.name
	}
	r.misses++
	r.mu.Unlock()

	name, err := r.lookup.Name(pid)
	if err != nil || name == "" {
		return ""
	}

	r.mu.Lock()
	r.entries[pid] = cacheEntry{name: name, expires: now.Add(r.ttl)}
	r.mu.Unlock()
	return name
}

// cached returns a cached name without consulting the process table.
func (r *Resolver) cached(pid int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[pid]
	return e.name, ok
}

// Forget drops pid from the cache.
func (r *Resolver) Forget(pid int) {
	r.mu.Lock()
	delete(r.entries, pid)
	r.mu.Unlock()
}

// Prune drops expired entries and returns how many were removed.
func (r *Resolver) Prune() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for pid, e := range r.entries {
		if !now.Before(e.expires) {
			delete(r.entries, pid)
			n++
		}
	}
	return n
}

// Stats returns cache hit and miss counts.
func (r *Resolver) Stats() (hits, misses uint64, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits, r.misses, len(r.entries)
}
