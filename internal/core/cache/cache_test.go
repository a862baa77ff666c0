package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestValueFetchesOnFirstGet(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	calls := 0
	v := NewValue(Config{RefreshDuration: time.Hour}, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	v.Clock = clock.Now

	got, err := v.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, 1, calls)

	// Fresh entry: no second fetch.
	got, err = v.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, 1, calls)
}

func TestValueRefreshesWhenStale(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	calls := 0
	v := NewValue(Config{RefreshDuration: time.Hour}, func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	})
	v.Clock = clock.Now

	got, err := v.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, got)

	clock.Advance(2 * time.Hour)

	got, err = v.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, got)
	require.Equal(t, 2, calls)
}

func TestValueSingleFlightUnderConcurrency(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var calls atomic.Int64
	release := make(chan struct{})
	v := NewValue(Config{RefreshDuration: time.Hour}, func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "fresh", nil
	})
	v.Clock = clock.Now

	const callers = 50
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = v.Get(context.Background())
		}()
	}

	// Let the callers pile up on the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		require.Equal(t, "fresh", results[i])
	}
}

func TestValueKeepsStaleValueOnRefreshError(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	calls := 0
	fail := false
	v := NewValue(Config{RefreshDuration: time.Hour, RetryDuration: time.Minute}, func(ctx context.Context) (int, error) {
		calls++
		if fail {
			return 0, errors.New("upstream down")
		}
		return 7, nil
	})
	v.Clock = clock.Now

	_, err := v.Get(context.Background())
	require.NoError(t, err)

	fail = true
	clock.Advance(2 * time.Hour)

	// Refresh fails: previous value is retained, no error to the caller.
	got, err := v.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, got)
	require.Equal(t, 2, calls)

	// Within the retry window no new attempt is made.
	got, err = v.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, got)
	require.Equal(t, 2, calls)

	// After the retry window the fetch runs again.
	clock.Advance(2 * time.Minute)
	_, _ = v.Get(context.Background())
	require.Equal(t, 3, calls)
}

func TestValueSurfacesErrorWithoutPriorValue(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	boom := errors.New("boom")
	calls := 0
	v := NewValue(Config{RefreshDuration: time.Hour, RetryDuration: time.Minute}, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	v.Clock = clock.Now

	_, err := v.Get(context.Background())
	require.ErrorIs(t, err, boom)

	// The captured failure is replayed during the retry window.
	_, err = v.Get(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestFromCacheNeverRefreshes(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	calls := 0
	v := NewValue(Config{RefreshDuration: time.Hour}, func(ctx context.Context) (int, error) {
		calls++
		return 9, nil
	})
	v.Clock = clock.Now

	_, err := v.FromCache()
	require.ErrorIs(t, err, ErrEmpty)
	require.Equal(t, 0, calls)

	_, err = v.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(5 * time.Hour)

	got, err := v.FromCache()
	require.NoError(t, err)
	require.Equal(t, 9, got)
	require.Equal(t, 1, calls)
	require.True(t, v.IsStale())
}

func TestGetIfForcesRefreshOnInvalidValue(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	calls := 0
	v := NewValue(Config{RefreshDuration: time.Hour}, func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	})
	v.Clock = clock.Now

	got, err := v.GetIf(context.Background(), func(n int) bool { return n >= 2 })
	require.NoError(t, err)
	require.Equal(t, 1, got)
	require.Equal(t, 1, calls)

	// Entry is fresh but fails the predicate: refresh anyway.
	got, err = v.GetIf(context.Background(), func(n int) bool { return n >= 2 })
	require.NoError(t, err)
	require.Equal(t, 2, got)
	require.Equal(t, 2, calls)
}

func TestSetInstallsFreshValue(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	calls := 0
	v := NewValue(Config{RefreshDuration: time.Hour}, func(ctx context.Context) (string, error) {
		calls++
		return "fetched", nil
	})
	v.Clock = clock.Now

	v.Set("injected")

	got, err := v.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "injected", got)
	require.Equal(t, 0, calls)

	v.Clear()
	got, err = v.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fetched", got)
	require.Equal(t, 1, calls)
}

func TestSetCachesSlices(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewSet(Config{RefreshDuration: time.Hour}, func(ctx context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	})
	s.Clock = clock.Now

	got, err := s.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)
	require.False(t, s.IsStale())
}
