package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/c360studio/triggers/internal/errs"
)

const maxResponseSize = 1 << 20

// HTTPClient implements Client against the literal wire contract:
// GET/DELETE https://queues.api.globus.org/v1/queues/{id}/messages.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTPClient. baseURL defaults to the production
// Globus queues endpoint when empty; tests override it with an
// httptest.Server URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://queues.api.globus.org/v1"
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type receiveResponse struct {
	Messages []struct {
		MessageID     string `json:"message_id"`
		MessageBody   string `json:"message_body"`
		ReceiptHandle string `json:"receipt_handle"`
		SentTimestamp string `json:"sent_timestamp"`
		SenderID      string `json:"sender_id"`
	} `json:"messages"`
}

func (c *HTTPClient) Receive(ctx context.Context, queueID, authHeader string, max int) ([]Message, error) {
	endpoint := fmt.Sprintf("%s/queues/%s/messages?max_messages=%s", c.baseURL, url.PathEscape(queueID), strconv.Itoa(max))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authHeader)

	var body receiveResponse
	if err := c.do(req, &body); err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(body.Messages))
	for _, m := range body.Messages {
		out = append(out, Message{
			MessageID:     m.MessageID,
			MessageBody:   m.MessageBody,
			ReceiptHandle: m.ReceiptHandle,
			SentTimestamp: m.SentTimestamp,
			SenderID:      m.SenderID,
		})
	}
	return out, nil
}

func (c *HTTPClient) Delete(ctx context.Context, queueID, authHeader, receiptHandle string) error {
	endpoint := fmt.Sprintf("%s/queues/%s/messages?receipt_handle=%s", c.baseURL, url.PathEscape(queueID), url.QueryEscape(receiptHandle))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", authHeader)
	return c.do(req, nil)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errs.UpstreamError{Msg: fmt.Sprintf("queue request failed: %v", err), Transient: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &errs.UpstreamError{Msg: fmt.Sprintf("read queue response: %v", err), Transient: true}
	}

	if resp.StatusCode >= 400 {
		transient := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return &errs.UpstreamError{Msg: fmt.Sprintf("queue service returned %d: %s", resp.StatusCode, string(body)), Transient: transient}
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return &errs.UpstreamError{Msg: fmt.Sprintf("decode queue response: %v", err)}
		}
	}
	return nil
}
