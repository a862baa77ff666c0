// Package cache provides a generic refresh-on-stale container with
// single-flight refresh semantics. A Value holds one item and refreshes it
// synchronously when its age exceeds the refresh duration; failed refreshes
// are retried no sooner than the retry duration and never discard a
// previously fetched value.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEmpty is returned by FromCache when no fetch attempt has completed yet.
var ErrEmpty = errors.New("cache: no value fetched yet")

// Config controls refresh cadence. RetryDuration applies after a failed
// fetch and should be shorter than RefreshDuration.
type Config struct {
	RefreshDuration time.Duration
	RetryDuration   time.Duration
}

func (c Config) withDefaults() Config {
	if c.RefreshDuration <= 0 {
		c.RefreshDuration = time.Hour
	}
	if c.RetryDuration <= 0 || c.RetryDuration > c.RefreshDuration {
		c.RetryDuration = min(c.RefreshDuration, time.Minute)
	}
	return c
}

// FetchFunc produces a fresh value.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Value caches a single item of type T.
type Value[T any] struct {
	cfg   Config
	fetch FetchFunc[T]

	// Clock is overridable for tests.
	Clock func() time.Time

	sem chan struct{} // 1-slot: held by the single in-flight refresh

	mu sync.Mutex
	st state[T]
}

type state[T any] struct {
	val       T
	hasVal    bool
	err       error
	fetchedAt time.Time
	ok        bool
}

// nextAttempt is the earliest instant a new fetch may run.
func (st state[T]) nextAttempt(cfg Config) time.Time {
	if st.fetchedAt.IsZero() {
		return time.Time{}
	}
	if st.ok {
		return st.fetchedAt.Add(cfg.RefreshDuration)
	}
	return st.fetchedAt.Add(cfg.RetryDuration)
}

// NewValue creates an empty cache around fetch. The first Get triggers a
// fetch.
func NewValue[T any](cfg Config, fetch FetchFunc[T]) *Value[T] {
	return &Value[T]{
		cfg:   cfg.withDefaults(),
		fetch: fetch,
		sem:   make(chan struct{}, 1),
	}
}

func (v *Value[T]) now() time.Time {
	if v.Clock != nil {
		return v.Clock()
	}
	return time.Now().UTC()
}

func (v *Value[T]) snapshot() state[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.st
}

// Get returns the cached value, refreshing it first when stale.
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	return v.GetIf(ctx, nil)
}

// GetIf behaves like Get but additionally treats a cached value failing the
// valid predicate as stale, forcing a refresh. Used for token caches where
// expiry is a property of the value rather than of the cache entry.
func (v *Value[T]) GetIf(ctx context.Context, valid func(T) bool) (T, error) {
	st := v.snapshot()
	if v.now().Before(st.nextAttempt(v.cfg)) {
		if st.ok && (valid == nil || valid(st.val)) {
			return st.val, nil
		}
		if !st.ok {
			// Within the retry window after a failure: serve the stale value
			// when one exists, otherwise surface the captured error.
			if st.hasVal {
				return st.val, nil
			}
			var zero T
			return zero, st.err
		}
		// Value present but rejected by the predicate: refresh even though
		// the entry is nominally fresh.
	}
	return v.refresh(ctx, valid)
}

// refresh runs the fetch once, no matter how many callers arrive
// concurrently; late arrivals block on the semaphore and then observe the
// winner's state instead of fetching again.
func (v *Value[T]) refresh(ctx context.Context, valid func(T) bool) (T, error) {
	select {
	case v.sem <- struct{}{}:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	defer func() { <-v.sem }()

	// Re-check under the semaphore: another caller may have finished the
	// refresh while this one waited. A fresh successful value must also pass
	// the caller's predicate, otherwise the fetch still runs.
	st := v.snapshot()
	if v.now().Before(st.nextAttempt(v.cfg)) {
		if !st.ok || valid == nil || valid(st.val) {
			return v.resolve(st)
		}
	}

	val, err := v.fetch(ctx)

	v.mu.Lock()
	v.st.fetchedAt = v.now()
	if err != nil {
		v.st.ok = false
		v.st.err = err
	} else {
		v.st.val = val
		v.st.hasVal = true
		v.st.ok = true
		v.st.err = nil
	}
	st = v.st
	v.mu.Unlock()

	return v.resolve(st)
}

func (v *Value[T]) resolve(st state[T]) (T, error) {
	if st.ok || st.hasVal {
		return st.val, nil
	}
	var zero T
	return zero, st.err
}

// FromCache returns the last known state without triggering a refresh.
// It returns ErrEmpty when nothing has ever been fetched, the captured fetch
// error when the only attempts failed, and the (possibly stale) value
// otherwise.
func (v *Value[T]) FromCache() (T, error) {
	st := v.snapshot()
	if st.fetchedAt.IsZero() && !st.hasVal {
		var zero T
		return zero, ErrEmpty
	}
	return v.resolve(st)
}

// IsStale reports whether the next Get would attempt a refresh.
func (v *Value[T]) IsStale() bool {
	st := v.snapshot()
	return !v.now().Before(st.nextAttempt(v.cfg))
}

// Set installs val as a fresh successful entry, e.g. after a forced token
// refresh performed outside the fetch function.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.st = state[T]{val: val, hasVal: true, ok: true, fetchedAt: v.now()}
}

// Clear drops all cached state so the next Get fetches unconditionally.
func (v *Value[T]) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.st = state[T]{}
}

// Set caches a slice of items with the same semantics as Value.
type Set[T any] struct {
	Value[[]T]
}

// NewSet creates an empty set cache around fetch.
func NewSet[T any](cfg Config, fetch FetchFunc[[]T]) *Set[T] {
	s := &Set[T]{}
	s.cfg = cfg.withDefaults()
	s.fetch = fetch
	s.sem = make(chan struct{}, 1)
	return s
}
