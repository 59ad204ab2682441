package catalog

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// SpotifyResolver resolves tracks against the Spotify catalog using the
// client-credentials flow. The preview URL serves as the download reference,
// so tracks without a preview resolve as not found.
type SpotifyResolver struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// NewSpotifyResolver creates a Spotify-backed resolver.
func NewSpotifyResolver(ctx context.Context, s SpotifySettings) (*SpotifyResolver, error) {
	if s.ClientID == "" || s.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	cc := &clientcredentials.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := cc.Client(ctx)
	client := spotify.New(httpClient)

	market := s.Market
	if market == "" {
		market = "US"
	}

	return &SpotifyResolver{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// Resolve implements Resolver.
func (r *SpotifyResolver) Resolve(ctx context.Context, trackID string) (*ResolvedTrack, error) {
	var result *spotify.FullTrack
	err := r.retry(func() error {
		t, err := r.client.GetTrack(ctx, spotify.ID(trackID), spotify.Market(r.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		if isSpotifyNotFound(err) {
			return nil, ErrTrackNotFound
		}
		return nil, errors.Wrap(err, "failed to get track")
	}

	resolved := convertTrack(result)
	if resolved.DownloadRef == "" {
		// No preview audio means nothing fetchable for this track.
		return nil, ErrTrackNotFound
	}
	return resolved, nil
}

// Search implements Resolver.
func (r *SpotifyResolver) Search(ctx context.Context, query string) ([]ResolvedTrack, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}

	var result *spotify.SearchResult
	err := r.retry(func() error {
		sr, err := r.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Market(r.market), spotify.Limit(20))
		if err != nil {
			return err
		}
		result = sr
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "search failed")
	}

	if result.Tracks == nil {
		return nil, nil
	}
	tracks := make([]ResolvedTrack, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, *convertTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// retry executes fn with simple fixed-delay retries.
func (r *SpotifyResolver) retry(fn func() error) error {
	var err error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if isSpotifyNotFound(err) {
			return err
		}
		time.Sleep(r.retryDelay)
	}
	return err
}

func convertTrack(t *spotify.FullTrack) *ResolvedTrack {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var coverRef string
	if len(t.Album.Images) > 0 {
		coverRef = t.Album.Images[0].URL
	}

	return &ResolvedTrack{
		ID:          string(t.ID),
		Title:       t.Name,
		Artist:      strings.Join(artists, ", "),
		Album:       t.Album.Name,
		CoverRef:    coverRef,
		DownloadRef: t.PreviewURL,
		DurationMs:  int64(t.Duration),
	}
}

func isSpotifyNotFound(err error) bool {
	var se spotify.Error
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}
