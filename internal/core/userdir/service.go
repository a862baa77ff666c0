package userdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core"
	"github.com/vitalsync/vitalsync/internal/core/cache"
	verrors "github.com/vitalsync/vitalsync/internal/errors"
)

// Identity services reject a revoked or invalid refresh credential with 407.
const statusCredentialRejected = http.StatusProxyAuthRequired

// ServiceConfig configures the HTTP-backed user directory.
type ServiceConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	TokenURL     string `mapstructure:"token_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Scope        string `mapstructure:"scope"`
	Audience     string `mapstructure:"audience"`
	SourceType   string `mapstructure:"source_type"`
	// Users restricts the directory to the listed versioned ids; empty means
	// all enrolled users.
	Users           []string      `mapstructure:"users"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// ServiceRepository talks to the identity/token service over HTTP. The user
// list, the shared service token, and each user's credentials are cached
// independently so token acquisition and directory refresh never block each
// other.
type ServiceRepository struct {
	baseURL *url.URL
	client  *http.Client
	cfg     ServiceConfig
	log     *zap.Logger

	// Clock is overridable for tests.
	Clock func() time.Time

	users        *cache.Set[core.User]
	serviceToken *cache.Value[string]
	tokens       sync.Map // user id -> *cache.Value[OAuth2Credentials]
	revoked      sync.Map // user id -> struct{}
}

var _ Repository = (*ServiceRepository)(nil)

// NewService creates a ServiceRepository. A nil client falls back to a
// default client with the configured timeout.
func NewService(cfg ServiceConfig, client *http.Client, log *zap.Logger) (*ServiceRepository, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse user directory url: %w", err)
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := &ServiceRepository{
		baseURL: base,
		client:  client,
		cfg:     cfg,
		log:     log,
	}

	retry := time.Minute
	if cfg.RefreshInterval < retry {
		retry = cfg.RefreshInterval
	}
	r.users = cache.NewSet(cache.Config{
		RefreshDuration: cfg.RefreshInterval,
		RetryDuration:   retry,
	}, r.fetchUsers)

	if strings.TrimSpace(cfg.TokenURL) != "" {
		// Stay comfortably below the usual 1-hour token expiry.
		r.serviceToken = cache.NewValue(cache.Config{
			RefreshDuration: 50 * time.Minute,
			RetryDuration:   time.Minute,
		}, r.fetchServiceToken)
	}

	return r, nil
}

func (r *ServiceRepository) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

// Get returns the user with the given key.
func (r *ServiceRepository) Get(ctx context.Context, key string) (core.User, error) {
	var user core.User
	err := r.makeRequest(ctx, http.MethodGet, "users/"+url.PathEscape(key), "", &user)
	if err != nil {
		return core.User{}, err
	}
	return r.overlay(user), nil
}

// Stream returns all enrolled, complete users. It serves the cached list when
// one exists so scheduling ticks never block on a directory refresh.
func (r *ServiceRepository) Stream(ctx context.Context) ([]core.User, error) {
	users, err := r.users.FromCache()
	if err != nil {
		users, err = r.users.Get(ctx)
		if err != nil {
			return nil, err
		}
	}

	out := make([]core.User, 0, len(users))
	for _, u := range users {
		u = r.overlay(u)
		if u.Complete() {
			out = append(out, u)
		}
	}
	return out, nil
}

// GetAccessToken returns a cached, unexpired access token for the user.
func (r *ServiceRepository) GetAccessToken(ctx context.Context, user core.User) (string, error) {
	if !r.authorized(user) {
		return "", ErrUserNotAuthorized
	}

	creds, err := r.credentialCache(user).GetIf(ctx, func(c OAuth2Credentials) bool {
		return !c.Expired(r.now())
	})
	if err != nil {
		return "", err
	}
	return creds.AccessToken, nil
}

// RefreshAccessToken forces a refresh-token exchange for the user.
func (r *ServiceRepository) RefreshAccessToken(ctx context.Context, user core.User) (string, error) {
	if !r.authorized(user) {
		return "", ErrUserNotAuthorized
	}

	var creds OAuth2Credentials
	err := r.makeRequest(ctx, http.MethodPost, "users/"+url.PathEscape(user.ID)+"/token", "{}", &creds)
	if err != nil {
		var typed *verrors.Error
		if errors.As(err, &typed) && typed.StatusCode == statusCredentialRejected {
			r.tokens.Delete(user.ID)
			r.revoked.Store(user.ID, struct{}{})
			r.log.Warn("refresh token rejected, marking user unauthorized",
				zap.String("user", user.VersionedID()))
			return "", ErrUserNotAuthorized
		}
		return "", err
	}

	r.credentialCache(user).Set(creds)
	return creds.AccessToken, nil
}

// HasPendingUpdates reports whether the user list is due for a refresh.
func (r *ServiceRepository) HasPendingUpdates() bool {
	return r.users.IsStale()
}

// ApplyPendingUpdates refreshes the user list.
func (r *ServiceRepository) ApplyPendingUpdates(ctx context.Context) error {
	r.log.Info("refreshing user directory")
	_, err := r.users.Get(ctx)
	return err
}

func (r *ServiceRepository) authorized(user core.User) bool {
	if !user.Authorized {
		return false
	}
	_, revoked := r.revoked.Load(user.ID)
	return !revoked
}

// overlay applies locally observed revocations to a directory snapshot.
func (r *ServiceRepository) overlay(user core.User) core.User {
	if _, revoked := r.revoked.Load(user.ID); revoked {
		user.Authorized = false
	}
	return user
}

func (r *ServiceRepository) credentialCache(user core.User) *cache.Value[OAuth2Credentials] {
	if v, ok := r.tokens.Load(user.ID); ok {
		return v.(*cache.Value[OAuth2Credentials])
	}
	fresh := cache.NewValue(cache.Config{
		RefreshDuration: 24 * time.Hour,
		RetryDuration:   time.Minute,
	}, func(ctx context.Context) (OAuth2Credentials, error) {
		var creds OAuth2Credentials
		err := r.makeRequest(ctx, http.MethodGet, "users/"+url.PathEscape(user.ID)+"/token", "", &creds)
		if err != nil {
			var typed *verrors.Error
			if errors.As(err, &typed) && typed.StatusCode == statusCredentialRejected {
				r.tokens.Delete(user.ID)
				r.revoked.Store(user.ID, struct{}{})
				return OAuth2Credentials{}, ErrUserNotAuthorized
			}
			return OAuth2Credentials{}, err
		}
		return creds, nil
	})
	fresh.Clock = r.Clock
	actual, _ := r.tokens.LoadOrStore(user.ID, fresh)
	return actual.(*cache.Value[OAuth2Credentials])
}

func (r *ServiceRepository) fetchUsers(ctx context.Context) ([]core.User, error) {
	path := "users"
	if r.cfg.SourceType != "" {
		path += "?source-type=" + url.QueryEscape(r.cfg.SourceType)
	}

	var payload struct {
		Users []core.User `json:"users"`
	}
	if err := r.makeRequest(ctx, http.MethodGet, path, "", &payload); err != nil {
		return nil, err
	}

	contained := make(map[string]struct{}, len(r.cfg.Users))
	for _, id := range r.cfg.Users {
		contained[id] = struct{}{}
	}

	users := payload.Users[:0]
	for _, u := range payload.Users {
		if !u.Complete() {
			continue
		}
		if len(contained) > 0 {
			if _, ok := contained[u.VersionedID()]; !ok {
				continue
			}
		}
		users = append(users, u)
	}
	r.log.Info("fetched user directory", zap.Int("users", len(users)))
	return users, nil
}

func (r *ServiceRepository) fetchServiceToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	if r.cfg.Scope != "" {
		form.Set("scope", r.cfg.Scope)
	}
	if r.cfg.Audience != "" {
		form.Set("audience", r.cfg.Audience)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(r.cfg.ClientID, r.cfg.ClientSecret)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", verrors.Wrap(verrors.KindDirectoryUnavailable, err, "token service unreachable")
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &verrors.Error{
			Kind:       verrors.KindDirectoryUnavailable,
			Message:    fmt.Sprintf("token request failed: %s", strings.TrimSpace(string(body))),
			StatusCode: resp.StatusCode,
		}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", verrors.Wrap(verrors.KindDirectoryUnavailable, err, "decode token response")
	}
	if payload.AccessToken == "" {
		return "", verrors.New(verrors.KindDirectoryUnavailable, "no access token in response")
	}
	return payload.AccessToken, nil
}

func (r *ServiceRepository) makeRequest(ctx context.Context, method, path, body string, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("parse request path: %w", err)
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL.ResolveReference(ref).String(), reader)
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if r.serviceToken != nil {
		token, err := r.serviceToken.Get(ctx)
		if err != nil {
			return verrors.Wrap(verrors.KindDirectoryUnavailable, err, "service token unavailable")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	} else if r.cfg.ClientID != "" {
		req.SetBasicAuth(r.cfg.ClientID, r.cfg.ClientSecret)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return verrors.Wrap(verrors.KindDirectoryUnavailable, err, "user directory unreachable")
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return verrors.FromStatus(resp.StatusCode, "not found: "+req.URL.Path)
	case resp.StatusCode >= 500:
		return &verrors.Error{
			Kind:       verrors.KindDirectoryUnavailable,
			Message:    "user directory error",
			StatusCode: resp.StatusCode,
		}
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return verrors.FromStatus(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return verrors.Wrap(verrors.KindDirectoryUnavailable, err, "decode directory response")
	}
	return nil
}
