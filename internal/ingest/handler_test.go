package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/purgarr/purgarr/internal/store"
)

type fakeScheduler struct {
	jobs []scheduledJob
}

type scheduledJob struct {
	userID    int64
	requestID int64
	fireAt    time.Time
}

func (s *fakeScheduler) Schedule(_ context.Context, userID, requestID int64, fireAt time.Time) error {
	s.jobs = append(s.jobs, scheduledJob{userID, requestID, fireAt})
	return nil
}

type fixture struct {
	handler   *Handler
	users     *store.UserStore
	requests  *store.RequestStore
	scheduler *fakeScheduler
	base      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		users:     store.NewUserStore(db),
		requests:  store.NewRequestStore(db),
		scheduler: &fakeScheduler{},
		base:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.handler = NewHandler(f.users, f.requests, f.scheduler, 0, 0, nil)
	f.handler.now = func() time.Time { return f.base }

	if _, err := f.users.Link(context.Background(), 7, "anna@example.net", "123@s.net"); err != nil {
		t.Fatalf("link: %v", err)
	}
	return f
}

func moviePayload(notificationType string) []byte {
	return []byte(fmt.Sprintf(`{
		"notification_type": %q,
		"subject": "Heat (1995)",
		"request": {"request_id": 12, "requestedBy_email": "anna@example.net"},
		"media": {"media_type": "movie", "tmdbId": 949}
	}`, notificationType))
}

func TestApprovedMovieCreatesRequestAndJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.handler.HandleWebhook(ctx, "overseerr", moviePayload("MEDIA_APPROVED"), nil); err != nil {
		t.Fatalf("handle: %v", err)
	}

	pending, err := f.requests.PendingForUser(ctx, "anna@example.net")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending requests, want 1", len(pending))
	}
	req := pending[0]
	if req.Title != "Heat (1995)" || req.Type != store.MediaMovie || req.MediaID != 949 {
		t.Fatalf("request = %+v", req)
	}
	wantDue := f.base.Add(72 * time.Hour)
	if !req.DueAt.Equal(wantDue) {
		t.Fatalf("due at %v, want %v", req.DueAt, wantDue)
	}

	if len(f.scheduler.jobs) != 1 {
		t.Fatalf("scheduled %d jobs, want 1", len(f.scheduler.jobs))
	}
	job := f.scheduler.jobs[0]
	if job.userID != 7 || job.requestID != req.ID || !job.fireAt.Equal(wantDue) {
		t.Fatalf("job = %+v", job)
	}
}

func TestSeriesUsesTVDelayAndTvdbID(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{
		"notification_type": "MEDIA_AUTO_APPROVED",
		"subject": "Severance",
		"request": {"requestedBy_email": "anna@example.net"},
		"media": {"media_type": "tv", "tvdbId": 371980, "tmdbId": 95396}
	}`)

	if err := f.handler.HandleWebhook(context.Background(), "overseerr", body, nil); err != nil {
		t.Fatalf("handle: %v", err)
	}

	pending, _ := f.requests.PendingForUser(context.Background(), "anna@example.net")
	if len(pending) != 1 {
		t.Fatalf("got %d pending requests, want 1", len(pending))
	}
	if pending[0].Type != store.MediaTV || pending[0].MediaID != 371980 {
		t.Fatalf("request = %+v", pending[0])
	}
	wantDue := f.base.Add(24 * time.Hour)
	if !pending[0].DueAt.Equal(wantDue) {
		t.Fatalf("due at %v, want %v", pending[0].DueAt, wantDue)
	}
}

func TestIgnoresOtherNotificationTypes(t *testing.T) {
	f := newFixture(t)

	for _, typ := range []string{"MEDIA_AVAILABLE", "MEDIA_DECLINED", "TEST_NOTIFICATION", ""} {
		if err := f.handler.HandleWebhook(context.Background(), "overseerr", moviePayload(typ), nil); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
	}

	pending, _ := f.requests.PendingForUser(context.Background(), "anna@example.net")
	if len(pending) != 0 || len(f.scheduler.jobs) != 0 {
		t.Fatalf("ignored types created state: %d requests, %d jobs", len(pending), len(f.scheduler.jobs))
	}
}

func TestUnlinkedUserIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{
		"notification_type": "MEDIA_APPROVED",
		"subject": "Heat (1995)",
		"request": {"requestedBy_email": "stranger@example.net"},
		"media": {"media_type": "movie", "tmdbId": 949}
	}`)

	if err := f.handler.HandleWebhook(context.Background(), "overseerr", body, nil); err != nil {
		t.Fatalf("unlinked user must not error: %v", err)
	}
	if len(f.scheduler.jobs) != 0 {
		t.Fatal("no job expected for an unlinked user")
	}
}

func TestDuplicateDeliveryCreatesOneRequestAndOneJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.handler.HandleWebhook(ctx, "overseerr", moviePayload("MEDIA_APPROVED"), nil); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	pending, _ := f.requests.PendingForUser(ctx, "anna@example.net")
	if len(pending) != 1 {
		t.Fatalf("got %d pending requests, want 1", len(pending))
	}
	if len(f.scheduler.jobs) != 1 {
		t.Fatalf("scheduled %d jobs, want 1", len(f.scheduler.jobs))
	}
}

func TestMalformedPayloadErrors(t *testing.T) {
	f := newFixture(t)

	if err := f.handler.HandleWebhook(context.Background(), "overseerr", []byte("{not json"), nil); err == nil {
		t.Fatal("malformed payload should error")
	}
}

func TestMissingMediaIDIsSkipped(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{
		"notification_type": "MEDIA_APPROVED",
		"subject": "Heat (1995)",
		"request": {"requestedBy_email": "anna@example.net"},
		"media": {"media_type": "movie"}
	}`)

	if err := f.handler.HandleWebhook(context.Background(), "overseerr", body, nil); err != nil {
		t.Fatalf("missing id is skipped, not an error: %v", err)
	}
	if len(f.scheduler.jobs) != 0 {
		t.Fatal("no job expected without a media id")
	}
}
