package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RequestStore persists media requests and their reminder due times.
type RequestStore struct {
	db *sql.DB
}

// NewRequestStore wraps an opened application database.
func NewRequestStore(db *sql.DB) *RequestStore {
	return &RequestStore{db: db}
}

// Create inserts a new pending request and returns its id. A duplicate of a
// live pending request (same email, type, media id) is silently ignored and
// reported as created=false so webhook redelivery stays idempotent.
func (s *RequestStore) Create(ctx context.Context, req MediaRequest) (id int64, created bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO requests (email, title, type, media_id, status, requested_at, due_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.Email, req.Title, string(req.Type), req.MediaID,
		string(StatusPending), req.RequestedAt.UnixMilli(), req.DueAt.UnixMilli(),
	)
	if err != nil {
		return 0, false, fmt.Errorf("store: create request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("store: create request: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("store: create request: %w", err)
	}
	return id, true, nil
}

// ByID returns the request with the given id.
func (s *RequestStore) ByID(ctx context.Context, id int64) (*MediaRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, title, type, media_id, status, requested_at, due_at
		FROM requests WHERE id = ?`, id)

	req, err := scanRequest(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: query request: %w", err)
	}
	return req, nil
}

// PendingForUser returns the user's pending requests ordered by due time.
func (s *RequestStore) PendingForUser(ctx context.Context, email string) ([]MediaRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, title, type, media_id, status, requested_at, due_at
		FROM requests WHERE email = ? AND status = ?
		ORDER BY due_at, id`,
		email, string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("store: query pending requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []MediaRequest
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: scan request: %w", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: scan requests rows: %w", err)
	}
	return out, nil
}

// AllPending returns every pending request across users, for scheduler
// restore at boot.
func (s *RequestStore) AllPending(ctx context.Context) ([]MediaRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, title, type, media_id, status, requested_at, due_at
		FROM requests WHERE status = ?
		ORDER BY due_at, id`,
		string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("store: query all pending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []MediaRequest
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: scan request: %w", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: scan requests rows: %w", err)
	}
	return out, nil
}

// MarkCancelled transitions a pending request to cancelled. Returns
// ErrRequestNotFound when no pending request has the id.
func (s *RequestStore) MarkCancelled(ctx context.Context, id int64) error {
	return s.transition(ctx, id, StatusCancelled)
}

// MarkDeleted transitions a pending request to deleted after the media was
// removed from disk.
func (s *RequestStore) MarkDeleted(ctx context.Context, id int64) error {
	return s.transition(ctx, id, StatusDeleted)
}

func (s *RequestStore) transition(ctx context.Context, id int64, to RequestStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE requests SET status = ? WHERE id = ? AND status = ?",
		string(to), id, string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("store: mark request %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: mark request %s: %w", to, err)
	}
	if n == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// DeleteFinishedBefore removes cancelled and deleted requests whose due time
// is older than the cutoff. Used by the retention janitor.
func (s *RequestStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM requests WHERE status IN (?, ?) AND due_at < ?",
		string(StatusCancelled), string(StatusDeleted), cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: retention sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: retention sweep: %w", err)
	}
	return n, nil
}

func scanRequest(scan func(...any) error) (*MediaRequest, error) {
	var (
		req          MediaRequest
		typ, status  string
		reqAt, dueAt int64
	)
	if err := scan(&req.ID, &req.Email, &req.Title, &typ, &req.MediaID, &status, &reqAt, &dueAt); err != nil {
		return nil, err
	}
	req.Type = MediaType(typ)
	req.Status = RequestStatus(status)
	req.RequestedAt = time.UnixMilli(reqAt).UTC()
	req.DueAt = time.UnixMilli(dueAt).UTC()
	return &req, nil
}
