// Package bot routes inbound chat messages: pending confirmations are
// resolved first, everything else dispatches to a command. All errors are
// caught and logged at this boundary; message handling never crashes the
// process.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/purgarr/purgarr/internal/command"
	"github.com/purgarr/purgarr/internal/confirm"
	"github.com/purgarr/purgarr/internal/store"
	"github.com/purgarr/purgarr/pkg/message"
)

// handleTimeout bounds the I/O done for one inbound message.
const handleTimeout = 30 * time.Second

// Sender delivers an outbound message and returns its platform message id.
type Sender interface {
	Send(ctx context.Context, out message.OutboundMessage) (string, error)
}

// Deleter executes a confirmed media deletion.
type Deleter interface {
	Delete(ctx context.Context, typ store.MediaType, mediaID int64, title string) bool
}

// JobCanceller removes a user's waiting reminder jobs.
type JobCanceller interface {
	CancelAllForUser(ctx context.Context, userID int64) (int64, error)
}

// InboundRecorder counts routed messages. Optional.
type InboundRecorder interface {
	RecordInbound()
}

// Router is the per-message state machine.
type Router struct {
	confirms *confirm.Store
	commands *command.Handlers
	requests *store.RequestStore
	deleter  Deleter
	jobs     JobCanceller
	sender   Sender
	logger   *slog.Logger
	metrics  InboundRecorder
}

// SetMetrics attaches an optional inbound-message counter.
func (r *Router) SetMetrics(rec InboundRecorder) {
	r.metrics = rec
}

// NewRouter creates the conversation router.
func NewRouter(
	confirms *confirm.Store,
	commands *command.Handlers,
	requests *store.RequestStore,
	deleter Deleter,
	jobs JobCanceller,
	sender Sender,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		confirms: confirms,
		commands: commands,
		requests: requests,
		deleter:  deleter,
		jobs:     jobs,
		sender:   sender,
		logger:   logger,
	}
}

// Handle processes one inbound message. Evaluation order: resolve a live
// pending confirmation (quoted message id first, then the chat's last
// prompt), else dispatch to a command.
func (r *Router) Handle(msg message.InboundMessage) {
	if msg.FromSelf || msg.Delivery != message.DeliveryNotify {
		return
	}
	text := msg.TrimmedText()
	if text == "" {
		return
	}
	if r.metrics != nil {
		r.metrics.RecordInbound()
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	pending, err := r.lookupPending(ctx, msg)
	if err != nil {
		r.logger.Error("pending confirmation lookup failed",
			"chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
		// NotFound semantics: fall through to command routing.
	}

	if pending != nil && pending.ChatID == msg.ChatID {
		switch {
		case isYes(text):
			r.resolveYes(ctx, msg, pending)
			return
		case isNo(text):
			r.resolveNo(ctx, msg, pending)
			return
		case msg.IsQuoting():
			// They replied something else to our confirmation message:
			// re-ask, pending stays open.
			r.reply(ctx, msg, "Please reply with `yes` to delete or `no` to cancel.")
			return
		}
		// Unrelated message: fall through, pending untouched.
	}

	r.dispatchCommand(ctx, msg, text)
}

func (r *Router) lookupPending(ctx context.Context, msg message.InboundMessage) (*confirm.Pending, error) {
	if msg.IsQuoting() {
		pending, err := r.confirms.ByMessageID(ctx, msg.ReplyToID)
		if err != nil || pending != nil {
			return pending, err
		}
	}
	return r.confirms.LastForChat(ctx, msg.ChatID)
}

// resolveYes performs the confirmed deletion: delete media, mark the
// request, cancel the user's jobs, clear the pending record regardless of
// the deletion outcome, then acknowledge or report failure. A failed
// deletion is retried via a fresh command, never by re-answering the same
// confirmation.
func (r *Router) resolveYes(ctx context.Context, msg message.InboundMessage, pending *confirm.Pending) {
	c := pending.Context
	deleted := r.deleter.Delete(ctx, c.MediaType, c.MediaID, c.Title)

	if deleted && c.RequestID != 0 {
		if err := r.requests.MarkDeleted(ctx, c.RequestID); err != nil {
			r.logger.Error("marking request deleted failed",
				"request_id", c.RequestID, "error", err)
		}
	}
	if _, err := r.jobs.CancelAllForUser(ctx, c.UserID); err != nil {
		r.logger.Error("cancelling reminder jobs failed",
			"user_id", c.UserID, "error", err)
	}

	if err := r.confirms.Clear(ctx, pending.MessageID, pending.ChatID); err != nil {
		r.logger.Error("clearing confirmation failed",
			"message_id", pending.MessageID, "error", err)
	}

	if deleted {
		r.logger.Info("confirmed deletion",
			"chat_id", msg.ChatID, "title", c.Title, "media_id", c.MediaID)
		r.reply(ctx, msg, "🗑️ Deleted *"+c.Title+"*.")
		return
	}
	r.reply(ctx, msg, "❌ Delete failed due to a server error. Please try again later.")
}

func (r *Router) resolveNo(ctx context.Context, msg message.InboundMessage, pending *confirm.Pending) {
	if err := r.confirms.Clear(ctx, pending.MessageID, pending.ChatID); err != nil {
		r.logger.Error("clearing confirmation failed",
			"message_id", pending.MessageID, "error", err)
	}
	r.reply(ctx, msg, "✅ Okay, keeping it.")
}

func (r *Router) dispatchCommand(ctx context.Context, msg message.InboundMessage, text string) {
	word := strings.Fields(text)[0]

	var reply string
	switch {
	case strings.HasPrefix(text, "!verify"):
		reply = r.commands.Verify(ctx, msg.ChatID, text)
	case text == "!list":
		reply = r.commands.List(ctx, msg.ChatID)
	case strings.HasPrefix(text, "!delete"):
		out := r.commands.Delete(ctx, msg.ChatID, text)
		if out.Confirm != nil {
			r.sendPrompt(ctx, msg, out)
			return
		}
		reply = out.Text
	case strings.HasPrefix(text, "!cancel"):
		reply = r.commands.Cancel(ctx, msg.ChatID, text)
	case text == "!test":
		reply = command.Test()
	case text == "!help":
		reply = command.Help()
	default:
		reply = command.Unknown()
		r.logger.Warn("unknown command",
			"chat_id", msg.ChatID, "command", word, "message_id", msg.ID)
	}

	r.reply(ctx, msg, reply)
	r.logger.Info("handled incoming command",
		"chat_id", msg.ChatID, "command", word, "message_id", msg.ID)
}

// sendPrompt delivers a confirmation question and records the pending
// state under the prompt's own message id. This is how new pending state
// is born outside the reminder cadence.
func (r *Router) sendPrompt(ctx context.Context, msg message.InboundMessage, out command.DeleteReply) {
	sentID, err := r.sender.Send(ctx, message.NewReply(msg.ChatID, msg.ID, out.Text))
	if err != nil {
		r.logger.Error("sending confirmation prompt failed",
			"chat_id", msg.ChatID, "error", err)
		return
	}
	if sentID == "" {
		return
	}

	c := out.Confirm
	if err := r.confirms.Save(ctx, sentID, msg.ChatID, confirm.Context{
		Kind:      confirm.KindDeleteMedia,
		UserID:    c.UserID,
		MediaID:   c.MediaID,
		Title:     c.Title,
		MediaType: c.MediaType,
	}); err != nil {
		r.logger.Error("saving pending confirmation failed",
			"message_id", sentID, "error", err)
	}
}

func (r *Router) reply(ctx context.Context, msg message.InboundMessage, text string) {
	if _, err := r.sender.Send(ctx, message.NewText(msg.ChatID, text)); err != nil {
		r.logger.Error("sending reply failed", "chat_id", msg.ChatID, "error", err)
	}
}
