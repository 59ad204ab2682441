package catalog

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
)

func TestNewSpotifyResolver_RequiresCredentials(t *testing.T) {
	_, err := NewSpotifyResolver(context.Background(), SpotifySettings{})
	assert.Error(t, err)

	_, err = NewSpotifyResolver(context.Background(), SpotifySettings{ClientID: "id"})
	assert.Error(t, err)

	r, err := NewSpotifyResolver(context.Background(), SpotifySettings{ClientID: "id", ClientSecret: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "US", r.market)
}

func TestConvertTrack(t *testing.T) {
	full := &spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{
			ID:   "abc123",
			Name: "Some Song",
			Artists: []spotify.SimpleArtist{
				{Name: "First"},
				{Name: "Second"},
			},
			Duration:   180000,
			PreviewURL: "https://p.scdn.co/preview.mp3",
		},
		Album: spotify.SimpleAlbum{
			Name: "Some Album",
			Images: []spotify.Image{
				{URL: "https://i.scdn.co/large.jpg"},
				{URL: "https://i.scdn.co/small.jpg"},
			},
		},
	}

	got := convertTrack(full)
	assert.Equal(t, "abc123", got.ID)
	assert.Equal(t, "Some Song", got.Title)
	assert.Equal(t, "First, Second", got.Artist)
	assert.Equal(t, "Some Album", got.Album)
	assert.Equal(t, "https://i.scdn.co/large.jpg", got.CoverRef)
	assert.Equal(t, "https://p.scdn.co/preview.mp3", got.DownloadRef)
	assert.Equal(t, int64(180000), got.DurationMs)
}

func TestConvertTrack_NoArtwork(t *testing.T) {
	got := convertTrack(&spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{ID: "x", Name: "Bare"},
	})
	assert.Empty(t, got.CoverRef)
	assert.Empty(t, got.DownloadRef)
}

func TestIsSpotifyNotFound(t *testing.T) {
	assert.True(t, isSpotifyNotFound(spotify.Error{Status: http.StatusNotFound, Message: "not found"}))
	assert.False(t, isSpotifyNotFound(spotify.Error{Status: http.StatusTooManyRequests}))
	assert.False(t, isSpotifyNotFound(assert.AnError))
}
