package media

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/purgarr/purgarr/internal/store"
)

// OverseerrUser is an Overseerr account as returned by the user listing.
type OverseerrUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SearchResult is the first catalog hit for a free-text title search.
type SearchResult struct {
	MediaID   int64
	Title     string
	MediaType store.MediaType
}

// Overseerr looks up accounts by email and resolves titles to media ids.
type Overseerr struct {
	client *apiClient
}

// NewOverseerr creates an Overseerr client for the given API base URL
// (without the /api/v1 suffix).
func NewOverseerr(apiURL, apiKey string) *Overseerr {
	return &Overseerr{client: newAPIClient(apiURL+"/api/v1", apiKey)}
}

// UserByEmail returns the account matching the email case-insensitively,
// or nil when no account matches.
func (o *Overseerr) UserByEmail(ctx context.Context, email string) (*OverseerrUser, error) {
	var page struct {
		Results []OverseerrUser `json:"results"`
	}
	query := url.Values{"take": {"100"}, "skip": {"0"}}
	if err := o.client.doJSON(ctx, http.MethodGet, "/user", query, &page); err != nil {
		return nil, err
	}

	for _, u := range page.Results {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

// Search resolves a free-text title to the first catalog hit, or nil when
// nothing matches.
func (o *Overseerr) Search(ctx context.Context, title string) (*SearchResult, error) {
	var page struct {
		Results []struct {
			ID        int64  `json:"id"`
			Title     string `json:"title"`
			Name      string `json:"name"`
			MediaType string `json:"mediaType"`
		} `json:"results"`
	}
	query := url.Values{"query": {strings.TrimSpace(title)}}
	if err := o.client.doJSON(ctx, http.MethodGet, "/search", query, &page); err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, nil
	}

	hit := page.Results[0]
	result := &SearchResult{MediaID: hit.ID, Title: hit.Title, MediaType: store.MediaMovie}
	if result.Title == "" {
		result.Title = hit.Name
	}
	if result.Title == "" {
		result.Title = "Unknown title (" + strconv.FormatInt(hit.ID, 10) + ")"
	}
	if hit.MediaType == "tv" {
		result.MediaType = store.MediaTV
	}
	return result, nil
}
