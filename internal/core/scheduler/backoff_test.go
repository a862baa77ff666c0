package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vitalsync/vitalsync/internal/core"
)

func TestRegistryReadyByDefault(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	assert.True(t, r.Ready(core.PairKey{UserID: "u1", Route: "sleep"}, now))
	assert.True(t, r.GlobalReady(now))
}

func TestRegistrySetAndExpire(t *testing.T) {
	r := NewRegistry()
	key := core.PairKey{UserID: "u1", Route: "sleep"}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	r.Set(key, now.Add(10*time.Minute))

	assert.False(t, r.Ready(key, now))
	assert.False(t, r.Ready(key, now.Add(10*time.Minute-time.Second)))
	assert.True(t, r.Ready(key, now.Add(10*time.Minute)))

	other := core.PairKey{UserID: "u2", Route: "sleep"}
	assert.True(t, r.Ready(other, now), "backoff is scoped to one pair")
}

func TestRegistryDisable(t *testing.T) {
	r := NewRegistry()
	key := core.PairKey{UserID: "u1", Route: "heart_rate"}

	r.Disable(key)

	assert.False(t, r.Ready(key, time.Now().AddDate(100, 0, 0)))
	assert.Equal(t, core.MaxInstant, r.Until(key))
}

func TestRegistryGlobalNeverShortens(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	r.SetGlobal(now.Add(20 * time.Minute))
	r.SetGlobal(now.Add(5 * time.Minute))

	assert.Equal(t, now.Add(20*time.Minute), r.GlobalUntil())
	assert.False(t, r.GlobalReady(now.Add(10*time.Minute)))
	assert.True(t, r.GlobalReady(now.Add(20*time.Minute)))
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()
	key := core.PairKey{UserID: "u1", Route: "spo2"}
	until := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	r.Set(key, until)
	pairs, global := r.Snapshot()

	assert.Equal(t, until, pairs[key])
	assert.True(t, global.IsZero())

	// Mutating the snapshot must not affect the registry.
	pairs[key] = core.MaxInstant
	assert.Equal(t, until, r.Until(key))
}

func TestKeyedLocksSerializePerKey(t *testing.T) {
	locks := newKeyedLocks()
	key := core.PairKey{UserID: "u1", Route: "sleep"}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := locks.lock(key)
			defer unlock()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, order, 10)
}
