// Package ingest turns Overseerr webhook notifications into tracked media
// requests with a scheduled reminder.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/purgarr/purgarr/internal/store"
)

// Grace periods before the first reminder.
const (
	defaultMovieDelay = 72 * time.Hour
	defaultTVDelay    = 24 * time.Hour
)

// Notification types that create a tracked request. Everything else is
// acknowledged and ignored.
const (
	notifyApproved     = "MEDIA_APPROVED"
	notifyAutoApproved = "MEDIA_AUTO_APPROVED"
)

// JobScheduler arms the reminder for a newly created request.
type JobScheduler interface {
	Schedule(ctx context.Context, userID, requestID int64, fireAt time.Time) error
}

// payload is the subset of the Overseerr webhook body we consume.
type payload struct {
	NotificationType string `json:"notification_type"`
	Subject          string `json:"subject"`
	Request          struct {
		RequestID        int64  `json:"request_id"`
		RequestedByEmail string `json:"requestedBy_email"`
	} `json:"request"`
	Media struct {
		MediaType string `json:"media_type"`
		TmdbID    int64  `json:"tmdbId"`
		TvdbID    int64  `json:"tvdbId"`
	} `json:"media"`
}

// Handler ingests Overseerr webhooks. It implements gateway.WebhookHandler.
type Handler struct {
	users      *store.UserStore
	requests   *store.RequestStore
	scheduler  JobScheduler
	movieDelay time.Duration
	tvDelay    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandler creates the webhook handler. Zero delays fall back to the
// defaults (3 days for movies, 1 day for series).
func NewHandler(users *store.UserStore, requests *store.RequestStore, scheduler JobScheduler, movieDelay, tvDelay time.Duration, logger *slog.Logger) *Handler {
	if movieDelay <= 0 {
		movieDelay = defaultMovieDelay
	}
	if tvDelay <= 0 {
		tvDelay = defaultTVDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		users:      users,
		requests:   requests,
		scheduler:  scheduler,
		movieDelay: movieDelay,
		tvDelay:    tvDelay,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleWebhook processes one Overseerr notification. Unknown notification
// types, unlinked users, and duplicate deliveries are acknowledged without
// side effects; only infrastructure failures surface as errors.
func (h *Handler) HandleWebhook(ctx context.Context, source string, body []byte, _ http.Header) error {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("ingest: decode %s payload: %w", source, err)
	}

	if p.NotificationType != notifyApproved && p.NotificationType != notifyAutoApproved {
		h.logger.Debug("ignoring notification",
			"type", p.NotificationType, "subject", p.Subject)
		return nil
	}

	typ, mediaID, err := mediaIdentity(p)
	if err != nil {
		h.logger.Warn("webhook without usable media identity",
			"subject", p.Subject, "error", err)
		return nil
	}

	user, err := h.users.ByEmail(ctx, p.Request.RequestedByEmail)
	if errors.Is(err, store.ErrUserNotFound) {
		h.logger.Info("request from unlinked user, skipping",
			"email", p.Request.RequestedByEmail, "subject", p.Subject)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ingest: look up user: %w", err)
	}

	now := h.now()
	dueAt := now.Add(h.movieDelay)
	if typ == store.MediaTV {
		dueAt = now.Add(h.tvDelay)
	}

	id, created, err := h.requests.Create(ctx, store.MediaRequest{
		Email:       user.Email,
		Title:       p.Subject,
		Type:        typ,
		MediaID:     mediaID,
		RequestedAt: now,
		DueAt:       dueAt,
	})
	if err != nil {
		return fmt.Errorf("ingest: create request: %w", err)
	}
	if !created {
		h.logger.Info("duplicate request ignored",
			"email", user.Email, "subject", p.Subject, "media_id", mediaID)
		return nil
	}

	if err := h.scheduler.Schedule(ctx, user.ID, id, dueAt); err != nil {
		return fmt.Errorf("ingest: schedule reminder: %w", err)
	}

	h.logger.Info("tracking new request",
		"email", user.Email, "subject", p.Subject, "type", typ, "due_at", dueAt)
	return nil
}

// mediaIdentity maps the webhook media block onto our type and external id.
// Movies are keyed by TMDB id, series by TVDB id.
func mediaIdentity(p payload) (store.MediaType, int64, error) {
	switch p.Media.MediaType {
	case "movie":
		if p.Media.TmdbID == 0 {
			return "", 0, errors.New("ingest: movie without tmdb id")
		}
		return store.MediaMovie, p.Media.TmdbID, nil
	case "tv":
		if p.Media.TvdbID == 0 {
			return "", 0, errors.New("ingest: series without tvdb id")
		}
		return store.MediaTV, p.Media.TvdbID, nil
	default:
		return "", 0, fmt.Errorf("ingest: unknown media type %q", p.Media.MediaType)
	}
}
