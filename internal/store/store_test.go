package store

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/purgarr/purgarr/internal/core"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()

	dir := t.TempDir()
	m := &Module{
		config: Config{
			Path:        filepath.Join(dir, "test.db"),
			BusyTimeout: defaultBusyTimeout,
		},
	}
	m.config.defaults()

	ctx := core.NewAppContext(slog.Default(), dir)

	if err := m.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	t.Cleanup(func() {
		_ = m.Stop(context.Background())
	})

	return m
}

func pendingRequest(email, title string, typ MediaType, mediaID int64, due time.Time) MediaRequest {
	return MediaRequest{
		Email:       email,
		Title:       title,
		Type:        typ,
		MediaID:     mediaID,
		RequestedAt: due.Add(-72 * time.Hour),
		DueAt:       due,
	}
}

// --- UserStore tests ---

func TestUserLinkAndLookup(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()

	u, err := m.users.Link(ctx, 7, "anna@example.net", "4915@s.net")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if u.ID != 7 || u.Email != "anna@example.net" || u.Phone != "4915@s.net" {
		t.Fatalf("linked user = %+v", u)
	}

	byPhone, err := m.users.ByPhone(ctx, "4915@s.net")
	if err != nil {
		t.Fatalf("by phone: %v", err)
	}
	if byPhone.ID != u.ID {
		t.Fatalf("lookup by phone returned id %d, want %d", byPhone.ID, u.ID)
	}

	byID, err := m.users.ByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if byID.Email != u.Email {
		t.Fatalf("lookup by id returned %q, want %q", byID.Email, u.Email)
	}
}

func TestUserRelinkMovesPhone(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()

	first, err := m.users.Link(ctx, 7, "anna@example.net", "111@s.net")
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	second, err := m.users.Link(ctx, 7, "anna@example.net", "222@s.net")
	if err != nil {
		t.Fatalf("relink: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("relink created a new user: %d != %d", second.ID, first.ID)
	}
	if second.Phone != "222@s.net" {
		t.Fatalf("relink phone = %q, want 222@s.net", second.Phone)
	}

	if _, err := m.users.ByPhone(ctx, "111@s.net"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("old phone lookup = %v, want ErrUserNotFound", err)
	}
}

func TestUserNotFound(t *testing.T) {
	m := newTestModule(t)

	if _, err := m.users.ByEmail(context.Background(), "nobody@example.net"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("ByEmail = %v, want ErrUserNotFound", err)
	}
}

// --- RequestStore tests ---

func TestRequestCreateAndDuplicate(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()
	due := time.Now().Add(72 * time.Hour)

	id, created, err := m.requests.Create(ctx, pendingRequest("anna@example.net", "Heat", MediaMovie, 949, due))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created || id == 0 {
		t.Fatalf("create = (%d, %v), want new row", id, created)
	}

	// Same media for the same user while pending: ignored.
	dupID, created, err := m.requests.Create(ctx, pendingRequest("anna@example.net", "Heat", MediaMovie, 949, due))
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created || dupID != 0 {
		t.Fatalf("duplicate create = (%d, %v), want ignored", dupID, created)
	}

	// Same media id as a series is a distinct request.
	_, created, err = m.requests.Create(ctx, pendingRequest("anna@example.net", "Heat (TV)", MediaTV, 949, due))
	if err != nil {
		t.Fatalf("create tv: %v", err)
	}
	if !created {
		t.Fatal("different media type should not collide")
	}
}

func TestRequestRerequestAfterFinished(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()
	due := time.Now().Add(72 * time.Hour)

	id, _, err := m.requests.Create(ctx, pendingRequest("anna@example.net", "Heat", MediaMovie, 949, due))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.requests.MarkDeleted(ctx, id); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}

	// A finished row must not block a fresh request for the same media.
	_, created, err := m.requests.Create(ctx, pendingRequest("anna@example.net", "Heat", MediaMovie, 949, due))
	if err != nil {
		t.Fatalf("re-request: %v", err)
	}
	if !created {
		t.Fatal("re-request after deletion should create a new pending row")
	}
}

func TestRequestPendingForUserOrdered(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()
	base := time.Now()

	later, _, _ := m.requests.Create(ctx, pendingRequest("anna@example.net", "Ran", MediaMovie, 2, base.Add(48*time.Hour)))
	sooner, _, _ := m.requests.Create(ctx, pendingRequest("anna@example.net", "Heat", MediaMovie, 1, base.Add(24*time.Hour)))
	if _, _, err := m.requests.Create(ctx, pendingRequest("bob@example.net", "Alien", MediaMovie, 3, base)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := m.requests.PendingForUser(ctx, "anna@example.net")
	if err != nil {
		t.Fatalf("pending for user: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d requests, want 2", len(got))
	}
	if got[0].ID != sooner || got[1].ID != later {
		t.Fatalf("ordering = [%d %d], want [%d %d]", got[0].ID, got[1].ID, sooner, later)
	}
}

func TestRequestTransitions(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()

	id, _, err := m.requests.Create(ctx, pendingRequest("anna@example.net", "Heat", MediaMovie, 1, time.Now()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := m.requests.MarkCancelled(ctx, id); err != nil {
		t.Fatalf("mark cancelled: %v", err)
	}
	req, err := m.requests.ByID(ctx, id)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if req.Status != StatusCancelled {
		t.Fatalf("status = %q, want cancelled", req.Status)
	}

	// Already finished: a second transition misses.
	if err := m.requests.MarkDeleted(ctx, id); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("transition on finished request = %v, want ErrRequestNotFound", err)
	}
	if err := m.requests.MarkDeleted(ctx, 99999); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("transition on missing request = %v, want ErrRequestNotFound", err)
	}
}

func TestRequestRetentionSweep(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()
	now := time.Now()

	oldID, _, _ := m.requests.Create(ctx, pendingRequest("anna@example.net", "Heat", MediaMovie, 1, now.Add(-30*24*time.Hour)))
	freshID, _, _ := m.requests.Create(ctx, pendingRequest("anna@example.net", "Ran", MediaMovie, 2, now))
	pendingID, _, _ := m.requests.Create(ctx, pendingRequest("anna@example.net", "Alien", MediaMovie, 3, now.Add(-30*24*time.Hour)))

	if err := m.requests.MarkDeleted(ctx, oldID); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}
	if err := m.requests.MarkCancelled(ctx, freshID); err != nil {
		t.Fatalf("mark cancelled: %v", err)
	}

	n, err := m.requests.DeleteFinishedBefore(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("retention sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d rows, want 1", n)
	}

	if _, err := m.requests.ByID(ctx, oldID); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("old finished request should be gone, got %v", err)
	}
	if _, err := m.requests.ByID(ctx, freshID); err != nil {
		t.Fatalf("fresh finished request should survive: %v", err)
	}
	if _, err := m.requests.ByID(ctx, pendingID); err != nil {
		t.Fatalf("pending request must never be swept: %v", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
