// Package confirm persists pending yes/no confirmations. Each confirmation
// is addressable by the prompt's message id (quoted replies) and by a
// per-chat "last prompt" pointer (bare replies). Entries expire after a
// fixed TTL; reads filter expired rows and a janitor purges them.
package confirm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/purgarr/purgarr/internal/store"
)

// TTL is how long a confirmation prompt stays answerable.
const TTL = 5 * time.Minute

// KindDeleteMedia is the only confirmation variant: "delete this media?".
const KindDeleteMedia = "delete-media"

// Context is the action to perform when the user answers yes.
type Context struct {
	Kind      string          `json:"kind"`
	UserID    int64           `json:"user_id"`
	RequestID int64           `json:"request_id,omitempty"`
	MediaID   int64           `json:"media_id"`
	Title     string          `json:"title"`
	MediaType store.MediaType `json:"media_type"`
}

// Pending is a stored confirmation awaiting an answer.
type Pending struct {
	MessageID string
	ChatID    string
	Context   Context
	ExpiresAt time.Time
}

// Store persists confirmations in the application database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an opened application database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Save stores a pending confirmation keyed by the prompt message id and
// unconditionally moves the chat's last-prompt pointer to it.
func (s *Store) Save(ctx context.Context, messageID, chatID string, c Context) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("confirm: encode context: %w", err)
	}
	expires := s.now().Add(TTL).UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("confirm: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO confirmations (message_id, chat_id, context, expires_at)
		VALUES (?, ?, ?, ?)`,
		messageID, chatID, string(payload), expires,
	); err != nil {
		return fmt.Errorf("confirm: save: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO confirm_pointers (chat_id, message_id, expires_at)
		VALUES (?, ?, ?)`,
		chatID, messageID, expires,
	); err != nil {
		return fmt.Errorf("confirm: save pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("confirm: commit: %w", err)
	}
	return nil
}

// ByMessageID returns the live confirmation for a prompt message id, or nil
// when none exists or it has expired. The entry is not consumed.
func (s *Store) ByMessageID(ctx context.Context, messageID string) (*Pending, error) {
	if messageID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT message_id, chat_id, context, expires_at
		FROM confirmations WHERE message_id = ? AND expires_at > ?`,
		messageID, s.now().UnixMilli(),
	)
	return scanPending(row)
}

// LastForChat returns the chat's most recent live confirmation, or nil.
func (s *Store) LastForChat(ctx context.Context, chatID string) (*Pending, error) {
	now := s.now().UnixMilli()
	row := s.db.QueryRowContext(ctx, `
		SELECT c.message_id, c.chat_id, c.context, c.expires_at
		FROM confirm_pointers p
		JOIN confirmations c ON c.message_id = p.message_id
		WHERE p.chat_id = ? AND p.expires_at > ? AND c.expires_at > ?`,
		chatID, now, now,
	)
	return scanPending(row)
}

// Clear removes an answered confirmation. The chat's last-prompt pointer is
// dropped only when it still points at this message, so a newer prompt's
// pointer is never clobbered. The conditional delete is a single atomic
// statement. Idempotent.
func (s *Store) Clear(ctx context.Context, messageID, chatID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("confirm: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM confirmations WHERE message_id = ?", messageID,
	); err != nil {
		return fmt.Errorf("confirm: clear: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM confirm_pointers WHERE chat_id = ? AND message_id = ?",
		chatID, messageID,
	); err != nil {
		return fmt.Errorf("confirm: clear pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("confirm: commit: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired confirmations and pointers, returning the
// number of confirmation rows removed. Run by the cron janitor.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.now().UnixMilli()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM confirmations WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("confirm: purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("confirm: purge: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM confirm_pointers WHERE expires_at <= ?", now); err != nil {
		return 0, fmt.Errorf("confirm: purge pointers: %w", err)
	}
	return n, nil
}

func scanPending(row *sql.Row) (*Pending, error) {
	var (
		p       Pending
		payload string
		expires int64
	)
	err := row.Scan(&p.MessageID, &p.ChatID, &payload, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("confirm: query: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &p.Context); err != nil {
		return nil, fmt.Errorf("confirm: decode context: %w", err)
	}
	p.ExpiresAt = time.UnixMilli(expires).UTC()
	return &p, nil
}
