// Package intake provides a client for the remote request-intake service,
// which accepts fix reports and add requests and exposes the list of
// completed ones for reconciliation.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mkaschke/offtrack/internal/domain/pending"
)

// Submission is the outcome of a submit call.
type Submission struct {
	Accepted bool   `json:"accepted"`
	ID       string `json:"id,omitempty"`     // Set when accepted
	Reason   string `json:"reason,omitempty"` // Set when rejected
}

// Service is the intake contract consumed by the core.
type Service interface {
	// Submit sends a fix report or add request. A rejection is a normal
	// outcome, reported in the Submission, not an error.
	Submit(ctx context.Context, kind pending.Kind, payload map[string]string) (*Submission, error)
	// ListCompleted returns the IDs the remote side has finished handling.
	ListCompleted(ctx context.Context, kind pending.Kind) ([]string, error)
}

// Client is an HTTP implementation of Service:
//
//	POST {base}/requests/{kind}           -> {"accepted":bool,"id":...,"reason":...}
//	GET  {base}/requests/{kind}/completed -> {"ids":[...]}
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an intake client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Submit implements Service.
func (c *Client) Submit(ctx context.Context, kind pending.Kind, payload map[string]string) (*Submission, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	endpoint := fmt.Sprintf("%s/requests/%s", c.baseURL, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "intake request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf("intake returned status %d: %s", resp.StatusCode, string(body))
	}

	var sub Submission
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, errors.Wrap(err, "failed to decode intake response")
	}
	return &sub, nil
}

// ListCompleted implements Service.
func (c *Client) ListCompleted(ctx context.Context, kind pending.Kind) ([]string, error) {
	endpoint := fmt.Sprintf("%s/requests/%s/completed", c.baseURL, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "intake request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("intake returned status %d", resp.StatusCode)
	}

	var result struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode completed list")
	}
	return result.IDs, nil
}
