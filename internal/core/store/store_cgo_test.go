//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsync/vitalsync/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	st, err := Open(ctx, Config{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close()) })

	require.NoError(t, st.Migrate(ctx))
	return st
}

func TestOpenMemoryStore(t *testing.T) {
	st := openTestStore(t)
	assert.Equal(t, "libsql", st.Driver())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "postgres"})
	assert.Error(t, err)
}

func TestOffsetRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	user := core.User{ID: "u1", Version: "2"}

	off, err := st.Get(ctx, "sleep", user)
	require.NoError(t, err)
	assert.Nil(t, off, "absent offset reads as nil")

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.Update(ctx, "sleep", user, at))

	off, err = st.Get(ctx, "sleep", user)
	require.NoError(t, err)
	require.NotNil(t, off)
	assert.Equal(t, "u1#2", off.UserID)
	assert.True(t, off.Offset.Equal(at))
}

func TestOffsetUpdateNeverRegresses(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	user := core.User{ID: "u1"}

	later := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.Update(ctx, "sleep", user, later))
	require.NoError(t, st.Update(ctx, "sleep", user, later.Add(-time.Hour)))

	off, err := st.Get(ctx, "sleep", user)
	require.NoError(t, err)
	require.NotNil(t, off)
	assert.True(t, off.Offset.Equal(later))
}

func TestOffsetListAndReset(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.Update(ctx, "sleep", core.User{ID: "u1"}, at))
	require.NoError(t, st.Update(ctx, "heart_rate", core.User{ID: "u1"}, at))
	require.NoError(t, st.Update(ctx, "sleep", core.User{ID: "u2"}, at))

	all, err := st.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	sleepOnly, err := st.List(ctx, "sleep")
	require.NoError(t, err)
	assert.Len(t, sleepOnly, 2)

	require.NoError(t, st.Reset(ctx, "sleep", "u1"))
	off, err := st.Get(ctx, "sleep", core.User{ID: "u1"})
	require.NoError(t, err)
	assert.Nil(t, off)

	off, err = st.Get(ctx, "heart_rate", core.User{ID: "u1"})
	require.NoError(t, err)
	assert.NotNil(t, off, "reset is scoped to one pair")
}
