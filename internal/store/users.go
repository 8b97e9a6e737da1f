package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = "id, email, name, picture, role, created_at"

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

// UpsertLoginUser records a login. New users get roleOnCreate; existing users
// only have name and picture refreshed, their role never changes.
func (s *SQLiteStore) UpsertLoginUser(ctx context.Context, email, name, picture, roleOnCreate string) (*User, error) {
	var user *User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanUser(tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			now := time.Now().UTC()
			res, err := tx.ExecContext(ctx,
				"INSERT INTO users (email, name, picture, role, created_at) VALUES (?, ?, ?, ?, ?)",
				email, name, picture, roleOnCreate, now)
			if err != nil {
				return fmt.Errorf("failed to insert user: %w", err)
			}
			id, _ := res.LastInsertId()
			user = &User{ID: id, Email: email, Name: name, Picture: picture, Role: roleOnCreate, CreatedAt: now}
			return nil
		case err != nil:
			return fmt.Errorf("failed to query user: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "UPDATE users SET name = ?, picture = ? WHERE id = ?", name, picture, existing.ID); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		existing.Name = name
		existing.Picture = picture
		user = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
