package action

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/triggers/internal/trigger"
)

func TestHTTPClient_Run(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var payload struct {
			RequestID string         `json:"request_id"`
			Body      map[string]any `json:"body"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "req-1", payload.RequestID)
		assert.Equal(t, float64(42), payload.Body["x"])

		_ = json.NewEncoder(w).Encode(trigger.ActionStatus{Status: trigger.ActionActive, ActionID: "a1"})
	}))
	defer srv.Close()

	c := NewHTTPClient()
	status, err := c.Run(t.Context(), srv.URL, "Bearer tok", "req-1", map[string]any{"x": 42})
	require.NoError(t, err)
	assert.Equal(t, trigger.ActionActive, status.Status)
	assert.Equal(t, "a1", status.ActionID)
}

func TestHTTPClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/a1/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(trigger.ActionStatus{Status: trigger.ActionSucceeded, ActionID: "a1"})
	}))
	defer srv.Close()

	c := NewHTTPClient()
	status, err := c.Status(t.Context(), srv.URL, "Bearer tok", "a1")
	require.NoError(t, err)
	assert.True(t, status.IsComplete())
}

func TestHTTPClient_Release(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/a1/release", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(trigger.ActionStatus{Status: trigger.ActionSucceeded, ActionID: "a1"})
	}))
	defer srv.Close()

	c := NewHTTPClient()
	status, err := c.Release(t.Context(), srv.URL, "Bearer tok", "a1")
	require.NoError(t, err)
	assert.Equal(t, trigger.ActionSucceeded, status.Status)
}

func TestHTTPClient_Run_NonTwoXXSynthesizesFailedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewHTTPClient()
	status, err := c.Run(t.Context(), srv.URL, "Bearer tok", "req-1", nil)
	require.NoError(t, err)
	assert.Equal(t, trigger.ActionFailed, status.Status)
	assert.Equal(t, "boom", status.Details)
}
