// Package httpapi implements the review-service client over HTTP with JSON
// bodies. Non-2xx responses are classified into *domain.SendError so callers
// can distinguish transient, conflict, and permanent failures; transport
// errors pass through wrapped.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/reviewlab/syncward/internal/domain"
	"github.com/reviewlab/syncward/internal/ports"
	"github.com/reviewlab/syncward/pkg/log"
)

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 2048

// Client implements ports.ServiceClient against the review service.
type Client struct {
	baseURL string
	authKey string
	client  ports.HTTPClient
	logger  log.Logger
}

// NewClient creates a review-service client. baseURL must not end with a
// slash (Config.Validate normalizes this).
func NewClient(baseURL, authKey string, httpClient ports.HTTPClient, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Client{
		baseURL: baseURL,
		authKey: authKey,
		client:  httpClient,
		logger:  logger,
	}
}

// Post sends payload as JSON to the given endpoint.
func (c *Client) Post(ctx context.Context, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	return classify(resp)
}

// FetchReviewState retrieves the authoritative workflow state for a session.
func (c *Client) FetchReviewState(ctx context.Context, sessionID string) (domain.ReviewState, error) {
	url := c.baseURL + ports.ReviewStatusEndpoint(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.ReviewState{}, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.ReviewState{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return domain.ReviewState{}, err
	}

	var state domain.ReviewState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return domain.ReviewState{}, fmt.Errorf("decode review state: %w", err)
	}
	return state, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.authKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.authKey)
	}
	req.Header.Set("Accept", "application/json")
}

// classify drains enough of a non-2xx response for diagnostics and wraps it
// in a SendError. 2xx responses return nil with the body left unread.
func classify(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &domain.SendError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}
