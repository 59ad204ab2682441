// Package catalog provides clients for the remote catalog resolution
// service: track metadata lookup, signed download references, and search.
package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// ErrTrackNotFound is returned when the catalog does not know the track.
// This is an expected outcome, not a failure: callers route it to the
// request-intake side channel.
var ErrTrackNotFound = errors.New("track not found in catalog")

// ResolvedTrack is the catalog's answer for a single track ID.
type ResolvedTrack struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	CoverRef    string `json:"cover_ref"`    // Cover image URL
	DownloadRef string `json:"download_ref"` // Signed audio URL
	DurationMs  int64  `json:"duration_ms"`
}

// Resolver resolves track IDs and searches the catalog. Implementations must
// be idempotent and side-effect-free.
type Resolver interface {
	// Resolve returns metadata and a signed download reference for the
	// track, or ErrTrackNotFound.
	Resolve(ctx context.Context, trackID string) (*ResolvedTrack, error)
	// Search returns catalog matches for a free-text query.
	Search(ctx context.Context, query string) ([]ResolvedTrack, error)
}

// HTTPSettings configures the generic HTTP backend.
type HTTPSettings struct {
	BaseURL    string `mapstructure:"base_url" validate:"required"`
	APIKey     string `mapstructure:"api_key"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// SpotifySettings configures the Spotify backend.
type SpotifySettings struct {
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	Market       string `mapstructure:"market"`
}

// New creates a resolver backend by name from its settings map.
func New(ctx context.Context, backend string, settings map[string]any) (Resolver, error) {
	switch backend {
	case "http":
		var s HTTPSettings
		if err := mapstructure.Decode(settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid http catalog settings")
		}
		if s.BaseURL == "" {
			return nil, errors.New("http catalog requires a base_url setting")
		}
		return NewHTTPResolver(s), nil

	case "spotify":
		var s SpotifySettings
		if err := mapstructure.Decode(settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid spotify catalog settings")
		}
		return NewSpotifyResolver(ctx, s)

	default:
		return nil, errors.Newf("unsupported catalog backend: %s", backend)
	}
}
