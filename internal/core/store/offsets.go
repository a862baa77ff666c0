package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vitalsync/vitalsync/internal/core"
	"github.com/vitalsync/vitalsync/internal/core/offsets"
)

var _ offsets.Manager = (*Store)(nil)

// Get returns the stored offset for a (user, route) pair, or nil when the
// pair has never been polled.
func (s *Store) Get(ctx context.Context, route string, user core.User) (*offsets.Offset, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	var offsetAt int64
	row := s.DB.QueryRowContext(ctx, `
		SELECT offset_at
		FROM offsets
		WHERE user_id = ? AND route = ?
	`, user.VersionedID(), route)

	if err := row.Scan(&offsetAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch offset: %w", err)
	}

	return &offsets.Offset{
		UserID: user.VersionedID(),
		Route:  route,
		Offset: time.Unix(0, offsetAt).UTC(),
	}, nil
}

// Update advances the offset for a (user, route) pair. The upsert never
// moves an offset backwards, so a slow writer cannot undo a faster one.
func (s *Store) Update(ctx context.Context, route string, user core.User, offset time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO offsets (user_id, route, offset_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, route) DO UPDATE SET
			offset_at = MAX(offset_at, excluded.offset_at),
			updated_at = excluded.updated_at
	`, user.VersionedID(), route, offset.UTC().UnixNano(), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store offset: %w", err)
	}
	return nil
}

// List returns all stored offsets, optionally filtered by route, ordered by
// user then route. Used by the offsets CLI command.
func (s *Store) List(ctx context.Context, route string) ([]offsets.Offset, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	query := `SELECT user_id, route, offset_at FROM offsets`
	args := []any{}
	if route != "" {
		query += ` WHERE route = ?`
		args = append(args, route)
	}
	query += ` ORDER BY user_id, route`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list offsets: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var out []offsets.Offset
	for rows.Next() {
		var (
			userID   string
			routeVal string
			offsetAt int64
		)
		if err := rows.Scan(&userID, &routeVal, &offsetAt); err != nil {
			return nil, fmt.Errorf("scan offset: %w", err)
		}
		out = append(out, offsets.Offset{
			UserID: userID,
			Route:  routeVal,
			Offset: time.Unix(0, offsetAt).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list offsets: %w", err)
	}
	return out, nil
}

// Reset deletes the offset for a (user, route) pair so its history is
// re-polled from the user's start date.
func (s *Store) Reset(ctx context.Context, route string, userID string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM offsets WHERE user_id = ? AND route = ?
	`, userID, route)
	if err != nil {
		return fmt.Errorf("reset offset: %w", err)
	}
	return nil
}
