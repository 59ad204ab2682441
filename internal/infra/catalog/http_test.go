package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPResolver_Resolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tracks/t1", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{
			"id": "t1",
			"title": "Some Song",
			"artist": "Some Artist",
			"album": "Some Album",
			"cover_ref": "https://cdn.example/c.jpg",
			"download_ref": "https://cdn.example/a.mp3",
			"duration_ms": 180000
		}`))
	}))
	defer server.Close()

	r := NewHTTPResolver(HTTPSettings{BaseURL: server.URL, APIKey: "secret"})
	resolved, err := r.Resolve(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", resolved.ID)
	assert.Equal(t, "Some Song", resolved.Title)
	assert.Equal(t, "https://cdn.example/a.mp3", resolved.DownloadRef)
	assert.Equal(t, int64(180000), resolved.DurationMs)
}

func TestHTTPResolver_Resolve_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	r := NewHTTPResolver(HTTPSettings{BaseURL: server.URL})
	_, err := r.Resolve(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrTrackNotFound))
}

func TestHTTPResolver_Resolve_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	r := NewHTTPResolver(HTTPSettings{BaseURL: server.URL})
	_, err := r.Resolve(context.Background(), "t1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTrackNotFound))
}

func TestHTTPResolver_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "blue train", r.URL.Query().Get("q"))
		w.Write([]byte(`{"results":[{"id":"t1","title":"Blue Train"},{"id":"t2","title":"Blue Train Live"}]}`))
	}))
	defer server.Close()

	r := NewHTTPResolver(HTTPSettings{BaseURL: server.URL})
	results, err := r.Search(context.Background(), "blue train")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "t1", results[0].ID)

	_, err = r.Search(context.Background(), "")
	assert.Error(t, err)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), "gopher-fm", nil)
	assert.Error(t, err)
}

func TestNew_HTTPBackendRequiresBaseURL(t *testing.T) {
	_, err := New(context.Background(), "http", map[string]any{})
	assert.Error(t, err)
}
