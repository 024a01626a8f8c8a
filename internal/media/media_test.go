package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/purgarr/purgarr/internal/store"
)

func TestOverseerrUserByEmail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"id":1,"username":"bob","email":"bob@example.net"},
			{"id":7,"username":"anna","email":"Anna@Example.net"}
		]}`))
	}))
	defer srv.Close()

	o := NewOverseerr(srv.URL, "secret")

	user, err := o.UserByEmail(context.Background(), "anna@example.net")
	if err != nil {
		t.Fatalf("user by email: %v", err)
	}
	if user == nil || user.ID != 7 {
		t.Fatalf("user = %+v, want id 7 via case-insensitive match", user)
	}

	missing, err := o.UserByEmail(context.Background(), "ghost@example.net")
	if err != nil {
		t.Fatalf("user by email: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing user = %+v, want nil", missing)
	}
}

func TestOverseerrSearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "the wire" {
			t.Errorf("query = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"id":1438,"name":"The Wire","mediaType":"tv"},
			{"id":99,"title":"Wired","mediaType":"movie"}
		]}`))
	}))
	defer srv.Close()

	o := NewOverseerr(srv.URL, "secret")

	hit, err := o.Search(context.Background(), "  the wire ")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hit == nil || hit.MediaID != 1438 || hit.Title != "The Wire" || hit.MediaType != store.MediaTV {
		t.Fatalf("search hit = %+v", hit)
	}
}

func TestOverseerrSearchNoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	hit, err := NewOverseerr(srv.URL, "secret").Search(context.Background(), "nothing")
	if err != nil || hit != nil {
		t.Fatalf("search = (%+v, %v), want nil hit", hit, err)
	}
}

func TestRadarrDelete(t *testing.T) {
	t.Parallel()

	var deletedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v3/movie":
			if got := r.URL.Query().Get("tmdbId"); got != "949" {
				t.Errorf("tmdbId = %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":12,"title":"Heat"}]`))
		case r.Method == http.MethodDelete:
			deletedPath = r.URL.Path
			if r.URL.Query().Get("deleteFiles") != "true" {
				t.Error("deleteFiles should be true")
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	ok, err := NewRadarr(srv.URL, "secret").Delete(context.Background(), 949)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !ok {
		t.Fatal("delete should succeed")
	}
	if deletedPath != "/api/v3/movie/12" {
		t.Fatalf("deleted %q, want the library id not the tmdb id", deletedPath)
	}
}

func TestRadarrDeleteNotInLibrary(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			t.Error("no delete expected for an unknown movie")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	ok, err := NewRadarr(srv.URL, "secret").Delete(context.Background(), 949)
	if err != nil || ok {
		t.Fatalf("delete = (%v, %v), want miss without error", ok, err)
	}
}

func TestSonarrDelete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v3/series":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":3,"title":"The Wire"}]`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v3/series/3":
			if r.URL.Query().Get("addImportListExclusion") != "false" {
				t.Error("addImportListExclusion should be false")
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	ok, err := NewSonarr(srv.URL, "secret").Delete(context.Background(), 1438)
	if err != nil || !ok {
		t.Fatalf("delete = (%v, %v), want success", ok, err)
	}
}

func TestDeleterRoutesAndDegrades(t *testing.T) {
	t.Parallel()

	radarrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":12,"title":"Heat"}]`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer radarrSrv.Close()

	d := NewDeleter(NewRadarr(radarrSrv.URL, "k"), nil, nil)
	ctx := context.Background()

	if !d.Delete(ctx, store.MediaMovie, 949, "Heat") {
		t.Fatal("movie deletion should succeed")
	}
	// Sonarr unconfigured: series deletion degrades to false.
	if d.Delete(ctx, store.MediaTV, 1438, "The Wire") {
		t.Fatal("series deletion without sonarr should report false")
	}
	if d.Delete(ctx, store.MediaMovie, 0, "No id") {
		t.Fatal("zero media id should report false")
	}
}

func TestDeleterUpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDeleter(NewRadarr(srv.URL, "k"), nil, nil)
	if d.Delete(context.Background(), store.MediaMovie, 949, "Heat") {
		t.Fatal("upstream failure should report false, not panic or succeed")
	}
}
