package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Radarr deletes movies (with files) by TMDB id.
type Radarr struct {
	client *apiClient
}

// NewRadarr creates a Radarr client for the given API base URL.
func NewRadarr(apiURL, apiKey string) *Radarr {
	return &Radarr{client: newAPIClient(apiURL+"/api/v3", apiKey)}
}

// Delete looks up the movie by TMDB id and removes it with its files.
// Reports false without error when the movie is not in the library.
func (r *Radarr) Delete(ctx context.Context, tmdbID int64) (bool, error) {
	var movies []struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}
	query := url.Values{"tmdbId": {strconv.FormatInt(tmdbID, 10)}}
	if err := r.client.doJSON(ctx, http.MethodGet, "/movie", query, &movies); err != nil {
		return false, err
	}
	if len(movies) == 0 {
		return false, nil
	}

	del := url.Values{
		"deleteFiles":        {"true"},
		"addImportExclusion": {"false"},
	}
	path := fmt.Sprintf("/movie/%d", movies[0].ID)
	if err := r.client.doJSON(ctx, http.MethodDelete, path, del, nil); err != nil {
		return false, err
	}
	return true, nil
}
