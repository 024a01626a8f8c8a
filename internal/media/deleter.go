package media

import (
	"context"
	"log/slog"

	"github.com/purgarr/purgarr/internal/store"
)

// Deleter routes confirmed deletions to Radarr or Sonarr. All failures,
// including an unconfigured backend, collapse to false: the caller reports
// a retryable failure to the user and never crashes on upstream errors.
type Deleter struct {
	radarr *Radarr
	sonarr *Sonarr
	logger *slog.Logger
}

// NewDeleter creates a deletion facade. Either backend may be nil when not
// configured.
func NewDeleter(radarr *Radarr, sonarr *Sonarr, logger *slog.Logger) *Deleter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deleter{radarr: radarr, sonarr: sonarr, logger: logger}
}

// Delete removes the media from the owning backend. Safe to call again
// after a confirmation: a title already gone reports false.
func (d *Deleter) Delete(ctx context.Context, typ store.MediaType, mediaID int64, title string) bool {
	if mediaID == 0 {
		d.logger.Warn("invalid media id for deletion", "title", title)
		return false
	}

	var (
		deleted bool
		err     error
	)
	switch typ {
	case store.MediaTV:
		if d.sonarr == nil {
			d.logger.Warn("sonarr not configured", "title", title)
			return false
		}
		deleted, err = d.sonarr.Delete(ctx, mediaID)
	default:
		if d.radarr == nil {
			d.logger.Warn("radarr not configured", "title", title)
			return false
		}
		deleted, err = d.radarr.Delete(ctx, mediaID)
	}

	if err != nil {
		d.logger.Error("media deletion failed",
			"type", string(typ),
			"media_id", mediaID,
			"title", title,
			"error", err,
		)
		return false
	}
	if !deleted {
		d.logger.Warn("media not found in library",
			"type", string(typ),
			"media_id", mediaID,
			"title", title,
		)
		return false
	}

	d.logger.Info("media deleted", "type", string(typ), "media_id", mediaID, "title", title)
	return true
}
