package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Job states. Waiting jobs are claimable; active jobs are being processed
// and are never recalled by cancellation.
const (
	stateWaiting = "waiting"
	stateActive  = "active"
)

// Job is one durable "deliver reminder at time T" entry.
type Job struct {
	ID        string
	UserID    int64
	RequestID int64
	FireAt    time.Time
	Attempts  int
}

// JobID derives the deterministic job identity for a (user, request) pair.
// Re-scheduling the same logical reminder replaces rather than duplicates.
func JobID(userID, requestID int64) string {
	return fmt.Sprintf("reminder:%d:%d", userID, requestID)
}

// JobStore persists reminder jobs in the application database.
type JobStore struct {
	db *sql.DB
}

// NewJobStore wraps an opened application database.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// Schedule upserts the job for (user, request) to fire at the given time,
// resetting the attempt counter. An existing row is re-armed regardless of
// state: a handler re-scheduling its own job mid-flight wins over the
// runner's completion cleanup.
func (s *JobStore) Schedule(ctx context.Context, userID, requestID int64, fireAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminder_jobs (id, user_id, request_id, fire_at, attempts, state)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			fire_at = excluded.fire_at,
			attempts = 0,
			state = excluded.state`,
		JobID(userID, requestID), userID, requestID, fireAt.UnixMilli(), stateWaiting,
	)
	if err != nil {
		return fmt.Errorf("schedule: upsert job: %w", err)
	}
	return nil
}

// CancelAllForUser removes the user's waiting jobs and returns the count.
// Active jobs are not recalled; the dispatcher re-checks request status.
func (s *JobStore) CancelAllForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM reminder_jobs WHERE user_id = ? AND state = ?",
		userID, stateWaiting,
	)
	if err != nil {
		return 0, fmt.Errorf("schedule: cancel jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("schedule: cancel jobs: %w", err)
	}
	return n, nil
}

// NextFireTime returns the earliest waiting fire time, or ok=false when no
// waiting jobs exist.
func (s *JobStore) NextFireTime(ctx context.Context) (time.Time, bool, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MIN(fire_at) FROM reminder_jobs WHERE state = ?", stateWaiting,
	).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !ms.Valid) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("schedule: next fire time: %w", err)
	}
	return time.UnixMilli(ms.Int64).UTC(), true, nil
}

// ClaimDue atomically transitions due waiting jobs to active and returns
// them. A job lost to a concurrent claimer is skipped.
func (s *JobStore) ClaimDue(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, request_id, fire_at, attempts
		FROM reminder_jobs WHERE state = ? AND fire_at <= ?
		ORDER BY fire_at, id`,
		stateWaiting, now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule: query due jobs: %w", err)
	}

	var due []Job
	for rows.Next() {
		var (
			job Job
			ms  int64
		)
		if err := rows.Scan(&job.ID, &job.UserID, &job.RequestID, &ms, &job.Attempts); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("schedule: scan job: %w", err)
		}
		job.FireAt = time.UnixMilli(ms).UTC()
		due = append(due, job)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("schedule: scan due rows: %w", err)
	}
	_ = rows.Close()

	claimed := due[:0]
	for _, job := range due {
		res, err := s.db.ExecContext(ctx,
			"UPDATE reminder_jobs SET state = ? WHERE id = ? AND state = ?",
			stateActive, job.ID, stateWaiting,
		)
		if err != nil {
			return claimed, fmt.Errorf("schedule: claim job %s: %w", job.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

// Complete removes a finished or dropped job. The delete is conditional on
// the active state so a mid-flight re-schedule survives completion.
func (s *JobStore) Complete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM reminder_jobs WHERE id = ? AND state = ?",
		id, stateActive,
	)
	if err != nil {
		return fmt.Errorf("schedule: complete job: %w", err)
	}
	return nil
}

// Retry re-arms a failed active job with a new fire time and attempt count.
// Reports false when the job is no longer active (re-scheduled mid-flight).
func (s *JobStore) Retry(ctx context.Context, id string, fireAt time.Time, attempts int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminder_jobs SET state = ?, fire_at = ?, attempts = ?
		WHERE id = ? AND state = ?`,
		stateWaiting, fireAt.UnixMilli(), attempts, id, stateActive,
	)
	if err != nil {
		return false, fmt.Errorf("schedule: retry job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("schedule: retry job: %w", err)
	}
	return n == 1, nil
}
