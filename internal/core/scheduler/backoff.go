package scheduler

import (
	"sync"
	"time"

	"github.com/vitalsync/vitalsync/internal/core"
)

// Registry tracks the next allowed request instant per (user, route) pair,
// plus one global gate set only on rate-limit responses. State is in-memory
// only: after a restart every pair is ready again, and the offset store
// independently prevents re-requesting covered windows.
type Registry struct {
	mu     sync.Mutex
	next   map[core.PairKey]time.Time
	global time.Time
}

// NewRegistry creates an empty registry with every pair ready.
func NewRegistry() *Registry {
	return &Registry{next: make(map[core.PairKey]time.Time)}
}

// Ready reports whether the pair may issue a request at now.
func (r *Registry) Ready(key core.PairKey, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !now.Before(r.next[key])
}

// Set schedules the pair's next allowed request.
func (r *Registry) Set(key core.PairKey, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next[key] = at
}

// Disable permanently excludes the pair from scheduling.
func (r *Registry) Disable(key core.PairKey) {
	r.Set(key, core.MaxInstant)
}

// Until returns the pair's next allowed instant; the zero time means ready.
func (r *Registry) Until(key core.PairKey) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next[key]
}

// SetGlobal suppresses all pairs until at. A shorter suppression never
// overwrites a longer one already in place.
func (r *Registry) SetGlobal(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if at.After(r.global) {
		r.global = at
	}
}

// GlobalReady reports whether any request may be issued at now.
func (r *Registry) GlobalReady(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !now.Before(r.global)
}

// GlobalUntil returns the global gate's expiry; the zero time means open.
func (r *Registry) GlobalUntil() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.global
}

// Snapshot copies the registry for status reporting.
func (r *Registry) Snapshot() (map[core.PairKey]time.Time, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pairs := make(map[core.PairKey]time.Time, len(r.next))
	for k, v := range r.next {
		pairs[k] = v
	}
	return pairs, r.global
}

// keyedLocks serializes request construction and outcome application per
// (user, route) key; different keys proceed fully in parallel.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[core.PairKey]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[core.PairKey]*sync.Mutex)}
}

// lock acquires the key's mutex and returns its unlock function.
func (l *keyedLocks) lock(key core.PairKey) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
