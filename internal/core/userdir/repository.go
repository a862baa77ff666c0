// Package userdir exposes the enrolled-user directory and per-user OAuth
// credentials. Implementations wrap the identity/token service; all callers
// see immutable core.User snapshots.
package userdir

import (
	"context"
	"time"

	"github.com/vitalsync/vitalsync/internal/core"
	verrors "github.com/vitalsync/vitalsync/internal/errors"
)

// Repository is the credential/user directory.
type Repository interface {
	// Get returns the user with the given key, or a NOT_FOUND error.
	Get(ctx context.Context, key string) (core.User, error)

	// Stream returns all enrolled, complete users.
	Stream(ctx context.Context) ([]core.User, error)

	// GetAccessToken returns a valid cached access token for the user,
	// refreshing it when expired. Fails with an UNAUTHORIZED error when the
	// user's authorization has been revoked.
	GetAccessToken(ctx context.Context, user core.User) (string, error)

	// RefreshAccessToken forces a token refresh against the identity
	// service. On a credential-rejected response the cached credential is
	// evicted and the user is treated as unauthorized from then on.
	RefreshAccessToken(ctx context.Context, user core.User) (string, error)

	// HasPendingUpdates reports whether the directory is due for a refresh,
	// without forcing one.
	HasPendingUpdates() bool

	// ApplyPendingUpdates forces a directory refresh.
	ApplyPendingUpdates(ctx context.Context) error
}

// ErrUserNotAuthorized is returned when a user's authorization flag is false
// or their refresh credential has been rejected by the identity service.
var ErrUserNotAuthorized = verrors.New(verrors.KindUnauthorized, "user is not authorized")

// OAuth2Credentials is one user's bearer credential set.
type OAuth2Credentials struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the access token has passed its expiry.
func (c OAuth2Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
