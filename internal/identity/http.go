package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/c360studio/triggers/internal/errs"
)

func newGET(ctx context.Context, endpoint, clientID, clientSecret string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Basic "+basicAuth(clientID, clientSecret))
	return req, nil
}

func newPOSTJSON(ctx context.Context, endpoint, clientID, clientSecret string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+basicAuth(clientID, clientSecret))
	return req, nil
}

// doJSON executes req once and decodes a JSON success response. Failures
// are returned as UpstreamError, marked Transient for network errors, 5xx
// and 429; unlike post, nothing is retried.
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errs.UpstreamError{Msg: fmt.Sprintf("identity request failed: %v", err), Transient: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &errs.UpstreamError{Msg: fmt.Sprintf("read identity response: %v", err), Transient: true}
	}

	if resp.StatusCode >= 400 {
		transient := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return &errs.UpstreamError{Msg: fmt.Sprintf("identity service returned %d: %s", resp.StatusCode, truncate(body, 200)), Transient: transient}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &errs.UpstreamError{Msg: fmt.Sprintf("decode identity response: %v", err)}
		}
	}
	return nil
}
