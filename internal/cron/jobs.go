package cron

import (
	"context"
	"log/slog"
	"time"
)

// ConfirmPurger deletes expired pending-confirmation rows.
// Defined here to avoid importing the confirm package.
type ConfirmPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RetentionStore deletes resolved requests older than a cutoff.
type RetentionStore interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ConfirmPurgeJob removes confirmation rows whose TTL has lapsed. Reads
// already filter on expiry, so this is pure housekeeping against table
// growth.
type ConfirmPurgeJob struct {
	Store        ConfirmPurger
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

// Compile-time interface check.
var _ Job = (*ConfirmPurgeJob)(nil)

// Name implements Job.
func (j *ConfirmPurgeJob) Name() string { return "confirm_purge" }

// Schedule implements Job.
func (j *ConfirmPurgeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run purges expired confirmation rows.
func (j *ConfirmPurgeJob) Run(ctx context.Context) error {
	purged, err := j.Store.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if purged > 0 {
		j.Logger.Info("cron: purged expired confirmations", "count", purged)
	}
	return nil
}

// RequestRetentionJob deletes cancelled and deleted requests once they are
// older than the retention period. Pending requests are never touched.
type RequestRetentionJob struct {
	Store        RetentionStore
	Retention    time.Duration // zero = default 90 days
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 4 * * *"

	now func() time.Time // test hook
}

// Compile-time interface check.
var _ Job = (*RequestRetentionJob)(nil)

// Name implements Job.
func (j *RequestRetentionJob) Name() string { return "request_retention" }

// Schedule implements Job.
func (j *RequestRetentionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 4 * * *"
}

// Run sweeps resolved requests past the retention window.
func (j *RequestRetentionJob) Run(ctx context.Context) error {
	retention := j.Retention
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	now := time.Now
	if j.now != nil {
		now = j.now
	}

	swept, err := j.Store.DeleteFinishedBefore(ctx, now().Add(-retention))
	if err != nil {
		return err
	}
	if swept > 0 {
		j.Logger.Info("cron: swept finished requests", "count", swept)
	}
	return nil
}
