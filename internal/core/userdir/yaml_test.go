package userdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userFile = `
users:
  - id: u1
    projectId: study-a
    userId: participant-1
    sourceId: src-1
    serviceUserId: svc-1
    startDate: 2024-01-01T00:00:00Z
    isAuthorized: true
    accessToken: token-u1
  - id: u2
    projectId: study-a
    userId: participant-2
    sourceId: src-2
    serviceUserId: svc-2
    startDate: 2024-02-01T00:00:00Z
    isAuthorized: false
`

func writeUserFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestYAMLRepository(t *testing.T) {
	path := writeUserFile(t, userFile)
	repo, err := NewYAML(path)
	require.NoError(t, err)

	t.Run("Stream", func(t *testing.T) {
		users, err := repo.Stream(context.Background())
		require.NoError(t, err)
		require.Len(t, users, 1, "unauthorized users are filtered")
		assert.Equal(t, "u1", users[0].ID)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), users[0].StartDate)
	})

	t.Run("Get", func(t *testing.T) {
		user, err := repo.Get(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "participant-1", user.UserID)

		_, err = repo.Get(context.Background(), "missing")
		assert.Error(t, err)
	})

	t.Run("GetAccessToken", func(t *testing.T) {
		user, err := repo.Get(context.Background(), "u1")
		require.NoError(t, err)

		token, err := repo.GetAccessToken(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, "token-u1", token)

		unauthorized, err := repo.Get(context.Background(), "u2")
		require.NoError(t, err)
		_, err = repo.GetAccessToken(context.Background(), unauthorized)
		assert.ErrorIs(t, err, ErrUserNotAuthorized)
	})
}

func TestYAMLRepositoryPicksUpFileChanges(t *testing.T) {
	path := writeUserFile(t, userFile)
	repo, err := NewYAML(path)
	require.NoError(t, err)

	assert.False(t, repo.HasPendingUpdates())

	// Rewrite the file with a future timestamp so ModTime visibly changes.
	updated := userFile + `
  - id: u3
    projectId: study-a
    userId: participant-3
    sourceId: src-3
    serviceUserId: svc-3
    startDate: 2024-03-01T00:00:00Z
    isAuthorized: true
    accessToken: token-u3
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.True(t, repo.HasPendingUpdates())
	require.NoError(t, repo.ApplyPendingUpdates(context.Background()))

	users, err := repo.Stream(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.False(t, repo.HasPendingUpdates())
}

func TestYAMLRepositoryMissingFile(t *testing.T) {
	_, err := NewYAML(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
