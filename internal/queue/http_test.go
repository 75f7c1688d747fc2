package queue

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/triggers/internal/errs"
)

func TestHTTPClient_Receive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/queues/q1/messages", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("max_messages"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{
				{"message_id": "msg-1", "message_body": `{"n":1}`, "receipt_handle": "r1"},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	msgs, err := c.Receive(t.Context(), "q1", "Bearer tok", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "msg-1", msgs[0].MessageID)
	assert.Equal(t, `{"n":1}`, msgs[0].MessageBody)
	assert.Equal(t, "r1", msgs[0].ReceiptHandle)
}

func TestHTTPClient_Receive_EmptyQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]string{}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	msgs, err := c.Receive(t.Context(), "q1", "Bearer tok", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHTTPClient_Delete(t *testing.T) {
	var gotReceiptHandle string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		gotReceiptHandle = r.URL.Query().Get("receipt_handle")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	err := c.Delete(t.Context(), "q1", "Bearer tok", "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", gotReceiptHandle)
}

func TestHTTPClient_Receive_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.Receive(t.Context(), "q1", "Bearer tok", 10)
	require.Error(t, err)
	var upstream *errs.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.True(t, upstream.Transient)
}
