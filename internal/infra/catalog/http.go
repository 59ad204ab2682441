package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
)

const defaultTimeout = 10 * time.Second

// HTTPResolver talks to a generic JSON catalog API:
//
//	GET {base}/tracks/{id}       -> resolved track, 404 when unknown
//	GET {base}/search?q={query}  -> {"results": [...]}
type HTTPResolver struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPResolver creates a resolver for the given endpoint.
func NewHTTPResolver(s HTTPSettings) *HTTPResolver {
	timeout := defaultTimeout
	if s.TimeoutSec > 0 {
		timeout = time.Duration(s.TimeoutSec) * time.Second
	}
	return &HTTPResolver{
		baseURL:    s.BaseURL,
		apiKey:     s.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Resolve implements Resolver.
func (r *HTTPResolver) Resolve(ctx context.Context, trackID string) (*ResolvedTrack, error) {
	endpoint := fmt.Sprintf("%s/tracks/%s", r.baseURL, url.PathEscape(trackID))

	var resolved ResolvedTrack
	if err := r.getJSON(ctx, endpoint, &resolved); err != nil {
		return nil, err
	}
	if resolved.ID == "" {
		resolved.ID = trackID
	}
	return &resolved, nil
}

// Search implements Resolver.
func (r *HTTPResolver) Search(ctx context.Context, query string) ([]ResolvedTrack, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	endpoint := fmt.Sprintf("%s/search?q=%s", r.baseURL, url.QueryEscape(query))

	var resp struct {
		Results []ResolvedTrack `json:"results"`
	}
	if err := r.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (r *HTTPResolver) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "catalog request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrTrackNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("catalog returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode catalog response")
	}
	return nil
}
