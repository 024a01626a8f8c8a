package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/purgarr/purgarr/internal/command"
	"github.com/purgarr/purgarr/internal/confirm"
	"github.com/purgarr/purgarr/internal/media"
	"github.com/purgarr/purgarr/internal/store"
	"github.com/purgarr/purgarr/pkg/message"
)

type fakeSender struct {
	sent   []message.OutboundMessage
	nextID string
}

func (s *fakeSender) Send(_ context.Context, out message.OutboundMessage) (string, error) {
	s.sent = append(s.sent, out)
	if s.nextID != "" {
		return s.nextID, nil
	}
	return "OUT-1", nil
}

func (s *fakeSender) last(t *testing.T) message.OutboundMessage {
	t.Helper()
	if len(s.sent) == 0 {
		t.Fatal("no message sent")
	}
	return s.sent[len(s.sent)-1]
}

type fakeDeleter struct {
	calls  int
	result bool
}

func (d *fakeDeleter) Delete(context.Context, store.MediaType, int64, string) bool {
	d.calls++
	return d.result
}

type fakeCanceller struct {
	userIDs []int64
}

func (c *fakeCanceller) CancelAllForUser(_ context.Context, userID int64) (int64, error) {
	c.userIDs = append(c.userIDs, userID)
	return 1, nil
}

type fixture struct {
	router    *Router
	confirms  *confirm.Store
	requests  *store.RequestStore
	users     *store.UserStore
	sender    *fakeSender
	deleter   *fakeDeleter
	canceller *fakeCanceller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/user":
			_, _ = w.Write([]byte(`{"results":[{"id":7,"username":"anna","email":"anna@example.net"}]}`))
		case "/api/v1/search":
			_, _ = w.Write([]byte(`{"results":[{"id":949,"title":"Heat","mediaType":"movie"}]}`))
		}
	}))
	t.Cleanup(srv.Close)

	f := &fixture{
		confirms:  confirm.NewStore(db),
		requests:  store.NewRequestStore(db),
		users:     store.NewUserStore(db),
		sender:    &fakeSender{},
		deleter:   &fakeDeleter{result: true},
		canceller: &fakeCanceller{},
	}
	commands := command.NewHandlers(f.users, f.requests, media.NewOverseerr(srv.URL, "k"), nil)
	f.router = NewRouter(f.confirms, commands, f.requests, f.deleter, f.canceller, f.sender, nil)
	return f
}

func (f *fixture) seedPending(t *testing.T, messageID string) int64 {
	t.Helper()
	ctx := context.Background()
	if _, err := f.users.Link(ctx, 7, "anna@example.net", "123@s.net"); err != nil {
		t.Fatalf("link: %v", err)
	}
	reqID, _, err := f.requests.Create(ctx, store.MediaRequest{
		Email: "anna@example.net", Title: "Heat", Type: store.MediaMovie,
		MediaID: 949, RequestedAt: time.Now(), DueAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	err = f.confirms.Save(ctx, messageID, "123@s.net", confirm.Context{
		Kind:      confirm.KindDeleteMedia,
		UserID:    7,
		RequestID: reqID,
		MediaID:   949,
		Title:     "Heat",
		MediaType: store.MediaMovie,
	})
	if err != nil {
		t.Fatalf("save pending: %v", err)
	}
	return reqID
}

func inbound(text string) message.InboundMessage {
	return message.InboundMessage{
		ID:       "IN-1",
		ChatID:   "123@s.net",
		Text:     text,
		Delivery: message.DeliveryNotify,
	}
}

func quoted(text, replyTo string) message.InboundMessage {
	msg := inbound(text)
	msg.ReplyToID = replyTo
	return msg
}

func TestYesResolvesPendingConfirmation(t *testing.T) {
	f := newFixture(t)
	reqID := f.seedPending(t, "PROMPT-1")
	ctx := context.Background()

	f.router.Handle(quoted("Yes", "PROMPT-1"))

	if f.deleter.calls != 1 {
		t.Fatalf("deleter called %d times, want 1", f.deleter.calls)
	}
	if len(f.canceller.userIDs) != 1 || f.canceller.userIDs[0] != 7 {
		t.Fatalf("cancelled jobs for %v, want [7]", f.canceller.userIDs)
	}

	req, err := f.requests.ByID(ctx, reqID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if req.Status != store.StatusDeleted {
		t.Fatalf("request status = %q, want deleted", req.Status)
	}

	if p, _ := f.confirms.ByMessageID(ctx, "PROMPT-1"); p != nil {
		t.Fatalf("confirmation should be cleared, got %+v", p)
	}
	if got := f.sender.last(t).Text; !strings.Contains(got, "Deleted *Heat*") {
		t.Fatalf("ack = %q", got)
	}
}

func TestYesViaLastPointerWithoutQuoting(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "PROMPT-1")

	f.router.Handle(inbound("y"))

	if f.deleter.calls != 1 {
		t.Fatal("bare yes should resolve via the last-prompt pointer")
	}
}

func TestFailedDeletionStillClearsPending(t *testing.T) {
	f := newFixture(t)
	reqID := f.seedPending(t, "PROMPT-1")
	f.deleter.result = false
	ctx := context.Background()

	f.router.Handle(quoted("yes", "PROMPT-1"))

	// Pending is explicitly cleared even though deletion failed; a retry
	// requires a fresh command.
	if p, _ := f.confirms.ByMessageID(ctx, "PROMPT-1"); p != nil {
		t.Fatalf("confirmation should be cleared on failure, got %+v", p)
	}
	req, _ := f.requests.ByID(ctx, reqID)
	if req.Status != store.StatusPending {
		t.Fatalf("request must stay pending on failed deletion, got %q", req.Status)
	}
	if got := f.sender.last(t).Text; !strings.Contains(got, "Delete failed") {
		t.Fatalf("failure report = %q", got)
	}
}

func TestNoKeepsMedia(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "PROMPT-1")

	f.router.Handle(quoted("NO", "PROMPT-1"))

	if f.deleter.calls != 0 {
		t.Fatal("no must not delete anything")
	}
	if p, _ := f.confirms.ByMessageID(context.Background(), "PROMPT-1"); p != nil {
		t.Fatalf("confirmation should be cleared, got %+v", p)
	}
	if got := f.sender.last(t).Text; !strings.Contains(got, "keeping it") {
		t.Fatalf("ack = %q", got)
	}
}

func TestQuotedNonAnswerReasks(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "PROMPT-1")

	f.router.Handle(quoted("maybe tomorrow", "PROMPT-1"))

	if got := f.sender.last(t).Text; !strings.Contains(got, "`yes` to delete") {
		t.Fatalf("re-ask = %q", got)
	}
	// Pending stays open.
	if p, _ := f.confirms.ByMessageID(context.Background(), "PROMPT-1"); p == nil {
		t.Fatal("pending should remain after a re-ask")
	}
}

func TestUnquotedNonAnswerFallsThroughToCommands(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "PROMPT-1")

	f.router.Handle(inbound("!list"))

	if got := f.sender.last(t).Text; !strings.Contains(got, "Tracked content") {
		t.Fatalf("fall-through reply = %q", got)
	}
	if p, _ := f.confirms.ByMessageID(context.Background(), "PROMPT-1"); p == nil {
		t.Fatal("pending should be untouched by a passthrough")
	}
}

func TestYesWithoutPendingIsUnknownCommand(t *testing.T) {
	f := newFixture(t)

	f.router.Handle(inbound("yes"))

	if f.deleter.calls != 0 {
		t.Fatal("no pending: nothing to delete")
	}
	if got := f.sender.last(t).Text; !strings.Contains(got, "Unknown command") {
		t.Fatalf("reply = %q", got)
	}
}

func TestSubstringNeverMatchesVocabulary(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "PROMPT-1")

	f.router.Handle(quoted("yesterday was fine", "PROMPT-1"))

	if f.deleter.calls != 0 {
		t.Fatal("substring must not trigger deletion")
	}
	if got := f.sender.last(t).Text; !strings.Contains(got, "`yes` to delete") {
		t.Fatalf("expected re-ask, got %q", got)
	}
}

func TestDeleteCommandCreatesPendingState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.users.Link(ctx, 7, "anna@example.net", "123@s.net"); err != nil {
		t.Fatalf("link: %v", err)
	}
	f.sender.nextID = "PROMPT-9"

	f.router.Handle(inbound("!delete Heat"))

	if got := f.sender.last(t).Text; !strings.Contains(got, "Are you sure") {
		t.Fatalf("prompt = %q", got)
	}
	pending, err := f.confirms.ByMessageID(ctx, "PROMPT-9")
	if err != nil || pending == nil {
		t.Fatalf("pending = (%+v, %v), want saved under the prompt id", pending, err)
	}
	if pending.Context.MediaID != 949 || pending.Context.UserID != 7 {
		t.Fatalf("pending context = %+v", pending.Context)
	}

	// Answering the fresh prompt deletes.
	f.router.Handle(quoted("✅", "PROMPT-9"))
	if f.deleter.calls != 1 {
		t.Fatal("confirming the command prompt should delete")
	}
}

func TestDiagnosticsCommand(t *testing.T) {
	f := newFixture(t)

	f.router.Handle(inbound("!test"))

	got := f.sender.last(t).Text
	if !strings.Contains(got, "Test command executed successfully") {
		t.Fatalf("diagnostics reply = %q", got)
	}
	if strings.Contains(got, "Unknown command") {
		t.Fatalf("!test must be a recognised command, got %q", got)
	}
}

func TestIgnoresSelfEmptyAndNonNotify(t *testing.T) {
	f := newFixture(t)

	self := inbound("!list")
	self.FromSelf = true
	f.router.Handle(self)

	history := inbound("!list")
	history.Delivery = message.DeliveryHistory
	f.router.Handle(history)

	f.router.Handle(inbound("   "))

	if len(f.sender.sent) != 0 {
		t.Fatalf("sent %d replies, want none", len(f.sender.sent))
	}
}

func TestVocabulary(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"y", "Y", "yes", "YES", " Yes ", "✅"} {
		if !isYes(s) {
			t.Errorf("isYes(%q) = false", s)
		}
	}
	for _, s := range []string{"n", "no", "NO", "❌"} {
		if !isNo(s) {
			t.Errorf("isNo(%q) = false", s)
		}
	}
	for _, s := range []string{"yesterday", "noon", "ye s", "", "yy", "nope"} {
		if isYes(s) || isNo(s) {
			t.Errorf("%q should match neither", s)
		}
	}
}
