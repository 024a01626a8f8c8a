package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserStore persists the email↔chat identity links created by !verify.
type UserStore struct {
	db *sql.DB
}

// NewUserStore wraps an opened application database.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Link associates a chat identity with an Overseerr account, creating the
// user row if needed. The id is the Overseerr user id. Re-verifying moves
// the link to the new chat identity.
func (s *UserStore) Link(ctx context.Context, id int64, email, phone string) (*User, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO users (id, email, phone, linked_at)
		VALUES (?, ?, ?, ?)`,
		id, email, phone, now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("store: link user: %w", err)
	}
	return s.ByID(ctx, id)
}

// ByEmail returns the user linked to the given Overseerr email.
func (s *UserStore) ByEmail(ctx context.Context, email string) (*User, error) {
	return s.one(ctx, "SELECT id, email, phone, linked_at FROM users WHERE email = ?", email)
}

// ByPhone returns the user linked to the given chat identity.
func (s *UserStore) ByPhone(ctx context.Context, phone string) (*User, error) {
	return s.one(ctx, "SELECT id, email, phone, linked_at FROM users WHERE phone = ?", phone)
}

// ByID returns the user with the given id.
func (s *UserStore) ByID(ctx context.Context, id int64) (*User, error) {
	return s.one(ctx, "SELECT id, email, phone, linked_at FROM users WHERE id = ?", id)
}

func (s *UserStore) one(ctx context.Context, query string, arg any) (*User, error) {
	var (
		u        User
		linkedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Phone, &linkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: query user: %w", err)
	}
	u.LinkedAt = time.UnixMilli(linkedAt).UTC()
	return &u, nil
}
