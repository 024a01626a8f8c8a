package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Sonarr deletes series (with files) by TVDB id.
type Sonarr struct {
	client *apiClient
}

// NewSonarr creates a Sonarr client for the given API base URL.
func NewSonarr(apiURL, apiKey string) *Sonarr {
	return &Sonarr{client: newAPIClient(apiURL+"/api/v3", apiKey)}
}

// Delete looks up the series by TVDB id and removes it with its files.
// Reports false without error when the series is not in the library.
func (s *Sonarr) Delete(ctx context.Context, tvdbID int64) (bool, error) {
	var series []struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}
	query := url.Values{"tvdbId": {strconv.FormatInt(tvdbID, 10)}}
	if err := s.client.doJSON(ctx, http.MethodGet, "/series", query, &series); err != nil {
		return false, err
	}
	if len(series) == 0 {
		return false, nil
	}

	del := url.Values{
		"deleteFiles":            {"true"},
		"addImportListExclusion": {"false"},
	}
	path := fmt.Sprintf("/series/%d", series[0].ID)
	if err := s.client.doJSON(ctx, http.MethodDelete, path, del, nil); err != nil {
		return false, err
	}
	return true, nil
}
