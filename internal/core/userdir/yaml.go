package userdir

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalsync/vitalsync/internal/core"
	verrors "github.com/vitalsync/vitalsync/internal/errors"
)

// yamlUser is one entry in a local user file. Local deployments carry
// long-lived access tokens directly in the file instead of talking to an
// identity service.
type yamlUser struct {
	ID            string     `yaml:"id"`
	ProjectID     string     `yaml:"projectId"`
	UserID        string     `yaml:"userId"`
	SourceID      string     `yaml:"sourceId"`
	ServiceUserID string     `yaml:"serviceUserId"`
	StartDate     time.Time  `yaml:"startDate"`
	EndDate       *time.Time `yaml:"endDate,omitempty"`
	Version       string     `yaml:"version,omitempty"`
	Authorized    bool       `yaml:"isAuthorized"`
	AccessToken   string     `yaml:"accessToken,omitempty"`
}

type yamlFile struct {
	Users []yamlUser `yaml:"users"`
}

// YAMLRepository reads users and their tokens from a local YAML file.
// HasPendingUpdates watches the file's modification time so edits are picked
// up on the next scheduling tick without a restart.
type YAMLRepository struct {
	path string

	mu      sync.RWMutex
	users   []core.User
	tokens  map[string]string
	modTime time.Time
}

var _ Repository = (*YAMLRepository)(nil)

// NewYAML loads the user file at path.
func NewYAML(path string) (*YAMLRepository, error) {
	r := &YAMLRepository{path: path}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *YAMLRepository) load() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read user file: %w", err)
	}
	var file yamlFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse user file %s: %w", r.path, err)
	}

	users := make([]core.User, 0, len(file.Users))
	tokens := make(map[string]string, len(file.Users))
	for _, u := range file.Users {
		users = append(users, core.User{
			ID:            u.ID,
			ProjectID:     u.ProjectID,
			UserID:        u.UserID,
			SourceID:      u.SourceID,
			ServiceUserID: u.ServiceUserID,
			StartDate:     u.StartDate,
			EndDate:       u.EndDate,
			Version:       u.Version,
			Authorized:    u.Authorized,
		})
		if u.AccessToken != "" {
			tokens[u.ID] = u.AccessToken
		}
	}

	info, err := os.Stat(r.path)
	if err != nil {
		return fmt.Errorf("stat user file: %w", err)
	}

	r.mu.Lock()
	r.users = users
	r.tokens = tokens
	r.modTime = info.ModTime()
	r.mu.Unlock()
	return nil
}

// Get returns the user with the given id or versioned id.
func (r *YAMLRepository) Get(ctx context.Context, key string) (core.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.ID == key || u.VersionedID() == key {
			return u, nil
		}
	}
	return core.User{}, verrors.FromStatus(404, "user not found: "+key)
}

// Stream returns all complete users in the file.
func (r *YAMLRepository) Stream(ctx context.Context) ([]core.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.User, 0, len(r.users))
	for _, u := range r.users {
		if u.Complete() {
			out = append(out, u)
		}
	}
	return out, nil
}

// GetAccessToken returns the token stored in the file.
func (r *YAMLRepository) GetAccessToken(ctx context.Context, user core.User) (string, error) {
	if !user.Authorized {
		return "", ErrUserNotAuthorized
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[user.ID]
	if !ok {
		return "", ErrUserNotAuthorized
	}
	return token, nil
}

// RefreshAccessToken re-reads the file and returns the stored token; local
// files are expected to carry long-lived tokens, so a rejected token means
// the file itself needs updating.
func (r *YAMLRepository) RefreshAccessToken(ctx context.Context, user core.User) (string, error) {
	if err := r.load(); err != nil {
		return "", err
	}
	return r.GetAccessToken(ctx, user)
}

// HasPendingUpdates reports whether the file changed on disk since the last
// load.
func (r *YAMLRepository) HasPendingUpdates() bool {
	info, err := os.Stat(r.path)
	if err != nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return info.ModTime().After(r.modTime)
}

// ApplyPendingUpdates reloads the file.
func (r *YAMLRepository) ApplyPendingUpdates(ctx context.Context) error {
	return r.load()
}
