package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/triggers/internal/errs"
	"github.com/c360studio/triggers/internal/trigger"
)

const maxResponseSize = 1 << 20

// HTTPClient implements Client against the literal action-provider wire
// contract: POST {action_url}/run, GET {action_url}/{id}/status,
// POST {action_url}/{id}/release.
type HTTPClient struct {
	httpClient *http.Client
}

// NewHTTPClient creates an HTTPClient with a bounded per-call timeout.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func (c *HTTPClient) Run(ctx context.Context, actionURL, authHeader, requestID string, body map[string]any) (*trigger.ActionStatus, error) {
	payload, err := json.Marshal(map[string]any{"request_id": requestID, "body": body})
	if err != nil {
		return nil, fmt.Errorf("marshal action run payload: %w", err)
	}
	return c.post(ctx, strings.TrimSuffix(actionURL, "/")+"/run", authHeader, payload)
}

func (c *HTTPClient) Status(ctx context.Context, actionURL, authHeader, actionID string) (*trigger.ActionStatus, error) {
	endpoint := fmt.Sprintf("%s/%s/status", strings.TrimSuffix(actionURL, "/"), actionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authHeader)
	return c.do(req)
}

func (c *HTTPClient) Release(ctx context.Context, actionURL, authHeader, actionID string) (*trigger.ActionStatus, error) {
	endpoint := fmt.Sprintf("%s/%s/release", strings.TrimSuffix(actionURL, "/"), actionID)
	return c.post(ctx, endpoint, authHeader, nil)
}

func (c *HTTPClient) post(ctx context.Context, endpoint, authHeader string, payload []byte) (*trigger.ActionStatus, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authHeader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) (*trigger.ActionStatus, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errs.UpstreamError{Msg: fmt.Sprintf("action request failed: %v", err), Transient: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &errs.UpstreamError{Msg: fmt.Sprintf("read action response: %v", err), Transient: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// A non-2xx response doesn't raise here: it is turned into a
		// FAILED ActionStatus carrying the body as details, matching
		// check_action_result in the Python original.
		return &trigger.ActionStatus{
			Status:    trigger.ActionFailed,
			StartTime: time.Now(),
			Details:   string(body),
		}, nil
	}

	var status trigger.ActionStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, &errs.UpstreamError{Msg: fmt.Sprintf("decode action response: %v", err)}
	}
	return &status, nil
}
