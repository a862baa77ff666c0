package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS offsets (
		user_id TEXT NOT NULL,
		route TEXT NOT NULL,
		offset_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY(user_id, route)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_offsets_route ON offsets(route);`,
}

// Migrate ensures the required tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}
	return nil
}
