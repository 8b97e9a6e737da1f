package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const chapterColumns = "id, name, display_name, description, folder_path, is_active, created_at, updated_at"

func scanChapter(row interface{ Scan(...any) error }) (*Chapter, error) {
	var c Chapter
	if err := row.Scan(&c.ID, &c.Name, &c.DisplayName, &c.Description, &c.FolderPath, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChapters returns chapters ordered by name.
func (s *SQLiteStore) ListChapters(ctx context.Context, includeInactive bool) ([]Chapter, error) {
	query := "SELECT " + chapterColumns + " FROM chapters"
	if !includeInactive {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query chapters: %w", err)
	}
	defer rows.Close()

	chapters := []Chapter{}
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chapter row: %w", err)
		}
		chapters = append(chapters, *c)
	}
	return chapters, rows.Err()
}

func (s *SQLiteStore) GetChapterByID(ctx context.Context, id int64) (*Chapter, error) {
	return s.getChapter(ctx, "SELECT "+chapterColumns+" FROM chapters WHERE id = ?", id)
}

func (s *SQLiteStore) GetChapterByName(ctx context.Context, name string) (*Chapter, error) {
	return s.getChapter(ctx, "SELECT "+chapterColumns+" FROM chapters WHERE name = ?", name)
}

func (s *SQLiteStore) GetActiveChapterByName(ctx context.Context, name string) (*Chapter, error) {
	return s.getChapter(ctx, "SELECT "+chapterColumns+" FROM chapters WHERE name = ? AND is_active = TRUE", name)
}

func (s *SQLiteStore) getChapter(ctx context.Context, query string, arg any) (*Chapter, error) {
	c, err := scanChapter(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chapter: %w", err)
	}
	return c, nil
}

// CreateChapter inserts c and fills in its ID and timestamps.
func (s *SQLiteStore) CreateChapter(ctx context.Context, c *Chapter) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO chapters (name, display_name, description, folder_path, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.Name, c.DisplayName, c.Description, c.FolderPath, c.IsActive, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("chapter %q: %w", c.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert chapter: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// UpdateChapter overwrites the editable fields of c and bumps updated_at.
func (s *SQLiteStore) UpdateChapter(ctx context.Context, c *Chapter) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"UPDATE chapters SET name = ?, display_name = ?, description = ?, folder_path = ?, is_active = ?, updated_at = ? WHERE id = ?",
		c.Name, c.DisplayName, c.Description, c.FolderPath, c.IsActive, now, c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("chapter %q: %w", c.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to update chapter: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	c.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) ToggleChapter(ctx context.Context, id int64) (*Chapter, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE chapters SET is_active = NOT is_active, updated_at = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle chapter: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetChapterByID(ctx, id)
}

// TouchChapter bumps updated_at, e.g. after a reindex.
func (s *SQLiteStore) TouchChapter(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE chapters SET updated_at = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch chapter: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteChapter(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chapters WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete chapter: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
