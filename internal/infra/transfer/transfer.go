// Package transfer fetches remote payloads to local files.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
)

// StatusError reports a non-success HTTP status from the remote side.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transfer failed with status %d", e.Code)
}

// Client streams remote payloads to the local filesystem. Downloads go to a
// ".part" file first and are renamed on success, so a failed or cancelled
// fetch never leaves a destination file behind.
type Client struct {
	httpClient *http.Client
}

// New creates a transfer client with the given per-request timeout.
func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchToLocal downloads remoteRef into destPath and returns the number of
// bytes written. Any failure removes the partial file.
func (c *Client) FetchToLocal(ctx context.Context, remoteRef, destPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, errors.Wrap(err, "failed to create destination directory")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteRef, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &StatusError{Code: resp.StatusCode}
	}

	partial := destPath + ".part"
	f, err := os.Create(partial)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create file")
	}

	written, err := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(partial)
		return 0, errors.Wrap(err, "failed to write payload")
	}

	if err := os.Rename(partial, destPath); err != nil {
		_ = os.Remove(partial)
		return 0, errors.Wrap(err, "failed to commit file")
	}
	return written, nil
}
