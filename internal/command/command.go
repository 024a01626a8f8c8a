// Package command implements the chat commands: account verification,
// listing tracked requests, deletion by title search, and reminder
// cancellation. Handlers return user-facing reply text; the router owns
// sending and confirmation bookkeeping.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/purgarr/purgarr/internal/media"
	"github.com/purgarr/purgarr/internal/store"
)

const replyNotVerified = "❌ Please verify first with: !verify <email>"

// ConfirmRequest is a deletion awaiting a yes/no answer. The router sends
// the prompt and records the pending confirmation under the prompt's
// message id.
type ConfirmRequest struct {
	UserID    int64
	MediaID   int64
	Title     string
	MediaType store.MediaType
}

// DeleteReply is the outcome of !delete: either a plain reply or a
// confirmation prompt.
type DeleteReply struct {
	Text    string
	Confirm *ConfirmRequest
}

// Handlers holds the command implementations and their collaborators.
type Handlers struct {
	users     *store.UserStore
	requests  *store.RequestStore
	overseerr *media.Overseerr
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandlers creates the command set.
func NewHandlers(users *store.UserStore, requests *store.RequestStore, overseerr *media.Overseerr, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		users:     users,
		requests:  requests,
		overseerr: overseerr,
		logger:    logger,
		now:       time.Now,
	}
}

// Verify links the chat identity to an Overseerr account by email.
func (h *Handlers) Verify(ctx context.Context, chatID, text string) string {
	parts := strings.Fields(text)
	if len(parts) != 2 {
		return "❌ Usage: !verify <email>"
	}
	email := strings.ToLower(parts[1])

	account, err := h.overseerr.UserByEmail(ctx, email)
	if err != nil {
		h.logger.Error("verification lookup failed", "email", email, "error", err)
		return "❌ Verification failed due to a server error. Please try again later."
	}
	if account == nil {
		h.logger.Warn("no overseerr account for email", "email", email)
		return "❌ No Overseerr account found for that email."
	}

	if _, err := h.users.Link(ctx, account.ID, account.Email, chatID); err != nil {
		h.logger.Error("linking user failed", "email", email, "error", err)
		return "❌ Verification failed due to a server error. Please try again later."
	}

	h.logger.Info("user verified", "user_id", account.ID, "email", email)
	return fmt.Sprintf("✅ Verified and linked to Overseerr account: %s", email)
}

// List shows the chat's tracked pending requests with days remaining.
func (h *Handlers) List(ctx context.Context, chatID string) string {
	user, err := h.users.ByPhone(ctx, chatID)
	if err != nil {
		return replyNotVerified
	}

	pending, err := h.requests.PendingForUser(ctx, user.Email)
	if err != nil {
		h.logger.Error("listing requests failed", "email", user.Email, "error", err)
		return "❌ Could not retrieve your tracked content. Please try again later."
	}
	if len(pending) == 0 {
		return "✅ No tracked items. Enjoy the silence."
	}

	now := h.now()
	lines := make([]string, 0, len(pending)+1)
	lines = append(lines, "📋 Tracked content:")
	for _, req := range pending {
		days := int(req.DueAt.Sub(now).Hours() / 24)
		if days < 0 {
			days = 0
		}
		lines = append(lines, fmt.Sprintf("• %s (%s) (id: %d) — %d day(s) remaining",
			req.Title, req.Type, req.ID, days))
	}

	h.logger.Info("listed pending requests", "user_id", user.ID, "count", len(pending))
	return strings.Join(lines, "\n")
}

// Delete searches the catalog for the title and, on a hit, asks for a
// yes/no confirmation before anything is removed.
func (h *Handlers) Delete(ctx context.Context, chatID, text string) DeleteReply {
	user, err := h.users.ByPhone(ctx, chatID)
	if err != nil {
		return DeleteReply{Text: replyNotVerified}
	}

	parts := strings.Fields(text)
	if len(parts) < 2 {
		return DeleteReply{Text: "❌ Usage: !delete <Movie Name>"}
	}
	title := strings.Join(parts[1:], " ")

	hit, err := h.overseerr.Search(ctx, title)
	if err != nil {
		h.logger.Error("title search failed", "title", title, "error", err)
		return DeleteReply{Text: "❌ Deletion failed due to a server error. Please try again later."}
	}
	if hit == nil {
		return DeleteReply{Text: "❌ No results found."}
	}

	prompt := strings.Join([]string{
		fmt.Sprintf("❓ Are you sure you want to delete *%s*?", hit.Title),
		"Reply to this message with:",
		"✅ yes — delete it",
		"❌ no — keep it",
	}, "\n")

	return DeleteReply{
		Text: prompt,
		Confirm: &ConfirmRequest{
			UserID:    user.ID,
			MediaID:   hit.MediaID,
			Title:     hit.Title,
			MediaType: hit.MediaType,
		},
	}
}

// Cancel stops reminders for one tracked request by its listed id.
func (h *Handlers) Cancel(ctx context.Context, chatID, text string) string {
	const idHint = "\n\n(Note: You can find the movie id using the *!list* command)"

	user, err := h.users.ByPhone(ctx, chatID)
	if err != nil {
		return replyNotVerified
	}

	parts := strings.Fields(text)
	if len(parts) != 2 {
		return "❌ Usage: !cancel <id>" + idHint
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "❌ That isn't a valid id" + idHint
	}

	pending, err := h.requests.PendingForUser(ctx, user.Email)
	if err != nil {
		h.logger.Error("cancel lookup failed", "email", user.Email, "error", err)
		return "❌ Cancel request failed due to a server error. Please try again later."
	}
	var target *store.MediaRequest
	for i := range pending {
		if pending[i].ID == id {
			target = &pending[i]
			break
		}
	}
	if target == nil {
		return "❌ That isn't a valid id" + idHint
	}

	if err := h.requests.MarkCancelled(ctx, id); err != nil {
		h.logger.Error("cancelling request failed", "request_id", id, "error", err)
		return "❌ Cancel request failed due to a server error. Please try again later."
	}

	h.logger.Info("cancelled request", "email", user.Email, "request_id", id)
	return fmt.Sprintf("🛑 Cancelled %s, I will no longer bother you about it.", target.Title)
}

// Test is a liveness check: it confirms the round trip works and points
// at the main flows without touching any backend.
func Test() string {
	return strings.Join([]string{
		"✅ Test command executed successfully!",
		"Please choose an option:",
		"1. Verify your email (!verify <email>)",
		"2. List your requests (!list)",
		"3. Delete a request (!delete <title>)",
	}, "\n")
}

// Help is the command listing, also used for unknown input.
func Help() string {
	return strings.Join([]string{
		"🤖 Available commands:",
		"• !verify <email>",
		"• !list",
		"• !delete <title>",
		"• !cancel <id>",
		"• !help",
	}, "\n")
}

// Unknown is the reply for unrecognised commands.
func Unknown() string {
	return "🤖 Unknown command.\n" + Help()
}
