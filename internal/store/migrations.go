package store

import (
	"context"
	"fmt"
	"time"
)

// MigrationApplied reports whether the named one-time migration has already run.
func (s *SQLiteStore) MigrationApplied(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations WHERE name = ?", name).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query migration %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) RecordMigration(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO migrations (name, applied_at) VALUES (?, ?)", name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}
	return nil
}
