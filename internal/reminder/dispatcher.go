// Package reminder composes and delivers the "have you finished watching"
// prompts fired by the scheduler, and keeps the cadence alive until the
// user resolves the request.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/purgarr/purgarr/internal/confirm"
	"github.com/purgarr/purgarr/internal/store"
	"github.com/purgarr/purgarr/pkg/message"
)

// defaultRetryAfter is the next-reminder delay when the user does not
// answer a prompt.
const defaultRetryAfter = 6 * time.Hour

// sendTimeout bounds one prompt delivery. The scheduler runs jobs with a
// background context, so the dispatcher puts its own ceiling on the send.
const sendTimeout = 30 * time.Second

// Sender delivers an outbound message and returns its platform message id.
type Sender interface {
	Send(ctx context.Context, out message.OutboundMessage) (string, error)
}

// JobScheduler re-arms the reminder job for the next occurrence.
type JobScheduler interface {
	Schedule(ctx context.Context, userID, requestID int64, fireAt time.Time) error
}

// ReminderRecorder counts delivered prompts. Optional.
type ReminderRecorder interface {
	RecordReminder()
}

// Dispatcher handles one fired reminder job.
type Dispatcher struct {
	users      *store.UserStore
	requests   *store.RequestStore
	confirms   *confirm.Store
	sender     Sender
	scheduler  JobScheduler
	logger     *slog.Logger
	retryAfter time.Duration
	metrics    ReminderRecorder
	now        func() time.Time
}

// NewDispatcher creates a reminder dispatcher.
func NewDispatcher(
	users *store.UserStore,
	requests *store.RequestStore,
	confirms *confirm.Store,
	sender Sender,
	scheduler JobScheduler,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		users:      users,
		requests:   requests,
		confirms:   confirms,
		sender:     sender,
		scheduler:  scheduler,
		logger:     logger,
		retryAfter: defaultRetryAfter,
		now:        time.Now,
	}
}

// SetRetryAfter overrides the next-reminder delay.
func (d *Dispatcher) SetRetryAfter(delay time.Duration) {
	if delay > 0 {
		d.retryAfter = delay
	}
}

// SetMetrics attaches an optional delivered-prompt counter.
func (d *Dispatcher) SetMetrics(rec ReminderRecorder) {
	d.metrics = rec
}

// SendReminder delivers the prompt for one (user, request) pair. A request
// that is no longer pending is the expected terminal case: the job
// completes without error and the cadence ends. Otherwise the prompt is
// sent, a fresh confirmation is stored under the sent message id, and the
// next retry is scheduled regardless of send success so the cadence
// continues until the user resolves it.
func (d *Dispatcher) SendReminder(ctx context.Context, userID, requestID int64) error {
	user, err := d.users.ByID(ctx, userID)
	if errors.Is(err, store.ErrUserNotFound) {
		d.logger.Warn("reminder for unknown user", "user_id", userID)
		return nil
	}
	if err != nil {
		return err
	}

	pending, err := d.requests.PendingForUser(ctx, user.Email)
	if err != nil {
		return err
	}
	var request *store.MediaRequest
	for i := range pending {
		if pending[i].ID == requestID {
			request = &pending[i]
			break
		}
	}
	if request == nil {
		d.logger.Info("request no longer pending, reminder cadence ends",
			"user_id", userID, "request_id", requestID)
		return nil
	}

	prompt := strings.Join([]string{
		fmt.Sprintf("👋 Have you finished watching *%s*?", request.Title),
		"Reply with:",
		"✅ yes — delete it",
		"⏳ no — remind me later",
		"❌ cancel — stop reminders",
	}, "\n")

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	sentID, sendErr := d.sender.Send(sendCtx, message.NewText(user.Phone, prompt))
	cancel()
	if sendErr != nil {
		d.logger.Error("sending reminder failed",
			"user_id", userID, "request_id", requestID, "error", sendErr)
	} else if sentID != "" {
		if err := d.confirms.Save(ctx, sentID, user.Phone, confirm.Context{
			Kind:      confirm.KindDeleteMedia,
			UserID:    user.ID,
			RequestID: request.ID,
			MediaID:   request.MediaID,
			Title:     request.Title,
			MediaType: request.Type,
		}); err != nil {
			d.logger.Error("saving pending confirmation failed",
				"message_id", sentID, "error", err)
		} else {
			if d.metrics != nil {
				d.metrics.RecordReminder()
			}
			d.logger.Info("reminder sent",
				"user_id", userID, "request_id", requestID, "title", request.Title)
		}
	}

	if err := d.scheduler.Schedule(ctx, userID, requestID, d.now().Add(d.retryAfter)); err != nil {
		return fmt.Errorf("reminder: schedule retry: %w", err)
	}
	return nil
}
