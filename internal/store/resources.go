package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const resourceColumns = "id, url, title, description, tags"

func scanResource(row interface{ Scan(...any) error }) (*ExternalResource, error) {
	var r ExternalResource
	if err := row.Scan(&r.ID, &r.URL, &r.Title, &r.Description, &r.Tags); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResources returns resources ordered by id. A non-empty tag keeps only
// resources whose tags contain it as a case-insensitive substring. limit <= 0
// means no limit.
func (s *SQLiteStore) ListResources(ctx context.Context, tag string, limit int) ([]ExternalResource, error) {
	query := "SELECT " + resourceColumns + " FROM external_resources"
	var args []any
	if tag != "" {
		query += " WHERE instr(lower(tags), lower(?)) > 0"
		args = append(args, tag)
	}
	query += " ORDER BY id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	resources := []ExternalResource{}
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource row: %w", err)
		}
		resources = append(resources, *r)
	}
	return resources, rows.Err()
}

func (s *SQLiteStore) GetResource(ctx context.Context, id int64) (*ExternalResource, error) {
	r, err := scanResource(s.db.QueryRowContext(ctx, "SELECT "+resourceColumns+" FROM external_resources WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) CreateResource(ctx context.Context, r *ExternalResource) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO external_resources (url, title, description, tags) VALUES (?, ?, ?, ?)",
		r.URL, r.Title, r.Description, r.Tags)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("resource %q: %w", r.URL, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert resource: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) UpdateResource(ctx context.Context, r *ExternalResource) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE external_resources SET url = ?, title = ?, description = ?, tags = ? WHERE id = ?",
		r.URL, r.Title, r.Description, r.Tags, r.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("resource %q: %w", r.URL, ErrDuplicate)
		}
		return fmt.Errorf("failed to update resource: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteResource(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM external_resources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
