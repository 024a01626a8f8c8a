// Package schedule is the durable delayed-job scheduler behind reminder
// delivery. Jobs are keyed by a deterministic (user, request) identity so
// re-scheduling replaces instead of duplicating, survive restarts in the
// application database, and retry with exponential backoff on handler
// failure.
package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/purgarr/purgarr/internal/store"
)

// Retry policy for failing handlers. After maxAttempts the job is dropped;
// it reappears only if Restore runs on a later boot while the request is
// still pending.
const (
	defaultMaxAttempts = 5
	defaultRetryFloor  = time.Minute
)

// Handler processes one fired job. An error triggers the retry policy.
type Handler func(ctx context.Context, userID, requestID int64) error

// Scheduler runs the timer loop over the durable job table, firing due jobs
// through the handler.
type Scheduler struct {
	jobs   *JobStore
	logger *slog.Logger

	maxAttempts int
	retryFloor  time.Duration
	now         func() time.Time

	mu      sync.Mutex
	handler Handler

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	started bool
}

// NewScheduler creates a scheduler over the application database. Call
// SetHandler before Start.
func NewScheduler(db *sql.DB, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:        NewJobStore(db),
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		retryFloor:  defaultRetryFloor,
		now:         time.Now,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// SetHandler installs the job handler.
func (s *Scheduler) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Schedule upserts the reminder job for (user, request) and wakes the timer
// loop so an earlier fire time takes effect immediately.
func (s *Scheduler) Schedule(ctx context.Context, userID, requestID int64, fireAt time.Time) error {
	if err := s.jobs.Schedule(ctx, userID, requestID, fireAt); err != nil {
		return err
	}
	s.logger.Info("reminder scheduled",
		"job_id", JobID(userID, requestID),
		"fire_at", fireAt,
	)
	s.poke()
	return nil
}

// CancelAllForUser removes the user's waiting jobs and returns the count.
func (s *Scheduler) CancelAllForUser(ctx context.Context, userID int64) (int64, error) {
	n, err := s.jobs.CancelAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("reminder jobs cancelled", "user_id", userID, "removed", n)
	return n, nil
}

// Restore re-derives one job per pending media request, firing overdue
// reminders immediately instead of losing them. Idempotent: scheduling is
// an upsert by job identity. Requests without a linked user are skipped.
func (s *Scheduler) Restore(ctx context.Context, requests *store.RequestStore, users *store.UserStore) (int, error) {
	pending, err := requests.AllPending(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	restored := 0
	for _, req := range pending {
		user, err := users.ByEmail(ctx, req.Email)
		if errors.Is(err, store.ErrUserNotFound) {
			s.logger.Warn("pending request has no linked user, skipping restore",
				"request_id", req.ID, "email", req.Email)
			continue
		}
		if err != nil {
			return restored, err
		}

		fireAt := req.DueAt
		if fireAt.Before(now) {
			fireAt = now
		}
		if err := s.jobs.Schedule(ctx, user.ID, req.ID, fireAt); err != nil {
			return restored, err
		}
		restored++
	}

	s.logger.Info("restored scheduled jobs", "restored", restored)
	s.poke()
	return restored, nil
}

// Start launches the timer loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return errors.New("schedule: no handler installed")
	}
	if s.started {
		return nil
	}
	s.started = true
	go s.run()
	return nil
}

// Stop terminates the timer loop, waiting for an in-flight job to finish or
// the context to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	default:
		close(s.done)
	}

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("schedule: stop: %w", ctx.Err())
	}
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run wakes at the earliest waiting fire time or on a schedule signal, and
// fires every due job sequentially.
func (s *Scheduler) run() {
	defer close(s.stopped)

	for {
		ctx := context.Background()

		var timerC <-chan time.Time
		var timer *time.Timer
		next, ok, err := s.jobs.NextFireTime(ctx)
		if err != nil {
			s.logger.Error("reading next fire time failed", "error", err)
			timer = time.NewTimer(time.Second)
			timerC = timer.C
		} else if ok {
			d := next.Sub(s.now())
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-s.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
			continue
		case <-timerC:
		}

		s.fireDue(ctx)
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	claimed, err := s.jobs.ClaimDue(ctx, s.now())
	if err != nil {
		s.logger.Error("claiming due jobs failed", "error", err)
	}

	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	for _, job := range claimed {
		select {
		case <-s.done:
			// Shutting down: leave remaining claims active; Restore
			// re-arms them on the next boot.
			return
		default:
		}
		s.process(ctx, handler, job)
	}
}

func (s *Scheduler) process(ctx context.Context, handler Handler, job Job) {
	err := handler(ctx, job.UserID, job.RequestID)
	if err == nil {
		if err := s.jobs.Complete(ctx, job.ID); err != nil {
			s.logger.Error("completing job failed", "job_id", job.ID, "error", err)
		}
		s.logger.Info("reminder job completed", "job_id", job.ID)
		return
	}

	attempts := job.Attempts + 1
	if attempts >= s.maxAttempts {
		s.logger.Error("reminder job dropped after exhausting retries",
			"job_id", job.ID,
			"attempts", attempts,
			"error", err,
		)
		if err := s.jobs.Complete(ctx, job.ID); err != nil {
			s.logger.Error("dropping job failed", "job_id", job.ID, "error", err)
		}
		return
	}

	delay := s.retryFloor << (attempts - 1)
	rearmed, rerr := s.jobs.Retry(ctx, job.ID, s.now().Add(delay), attempts)
	if rerr != nil {
		s.logger.Error("re-arming job failed", "job_id", job.ID, "error", rerr)
		return
	}
	s.logger.Warn("reminder job failed, retry scheduled",
		"job_id", job.ID,
		"attempts", attempts,
		"delay", delay,
		"rearmed", rearmed,
		"error", err,
	)
	s.poke()
}
