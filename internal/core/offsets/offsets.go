// Package offsets tracks the per-(user, route) high-water-mark of durably
// requested data.
package offsets

import (
	"context"
	"sync"
	"time"

	"github.com/vitalsync/vitalsync/internal/core"
)

// Offset is a persisted high-water-mark for one (user, route) pair.
type Offset struct {
	UserID string
	Route  string
	Offset time.Time
}

// Manager reads and advances offsets. Implementations must provide per-key
// atomicity; the scheduler serializes conflicting updates for a single key
// itself.
type Manager interface {
	// Get returns the offset for the pair, or nil when none exists yet.
	Get(ctx context.Context, route string, user core.User) (*Offset, error)

	// Update advances the offset for the pair.
	Update(ctx context.Context, route string, user core.User, offset time.Time) error
}

// Memory is an in-process Manager for tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	offsets map[core.PairKey]time.Time
}

var _ Manager = (*Memory)(nil)

// NewMemory creates an empty in-memory offset manager.
func NewMemory() *Memory {
	return &Memory{offsets: make(map[core.PairKey]time.Time)}
}

// Get returns the stored offset, or nil when absent.
func (m *Memory) Get(ctx context.Context, route string, user core.User) (*Offset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := core.PairKey{UserID: user.VersionedID(), Route: route}
	t, ok := m.offsets[key]
	if !ok {
		return nil, nil
	}
	return &Offset{UserID: key.UserID, Route: route, Offset: t}, nil
}

// Update stores the offset for the pair. An offset never moves backwards.
func (m *Memory) Update(ctx context.Context, route string, user core.User, offset time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := core.PairKey{UserID: user.VersionedID(), Route: route}
	if cur, ok := m.offsets[key]; ok && cur.After(offset) {
		return nil
	}
	m.offsets[key] = offset
	return nil
}
