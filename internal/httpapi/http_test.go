package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/triggers/internal/action"
	"github.com/c360studio/triggers/internal/identity"
	"github.com/c360studio/triggers/internal/poller"
	"github.com/c360studio/triggers/internal/queue"
	"github.com/c360studio/triggers/internal/registry"
	"github.com/c360studio/triggers/internal/store"
	"github.com/c360studio/triggers/internal/trigger"
)

// newTestComponent wires a Component against an in-memory store and a stub
// Globus-Auth-shaped identity server that always introspects the given
// token as active for sub.
func newTestComponent(t *testing.T, sub string) (*Component, *store.MemoryStore) {
	t.Helper()

	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/oauth2/token/introspect":
			_ = json.NewEncoder(w).Encode(identity.IntrospectResult{Active: true, Sub: sub})
		case r.URL.Path == "/v2/oauth2/token":
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"access_token": "dep-queue", "resource_server": "queues.api.globus.org", "expires_in": 3600},
				{"access_token": "dep-action", "resource_server": "actions.globus.org", "expires_in": 3600},
			})
		case r.URL.Path == "/v2/api/scopes":
			scopeStrings := strings.Split(r.URL.Query().Get("scope_strings"), ",")
			scopes := make([]map[string]string, 0, len(scopeStrings))
			for i, s := range scopeStrings {
				scopes = append(scopes, map[string]string{"scope_string": s, "id": fmt.Sprintf("scope-id-%d", i)})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"scopes": scopes})
		case strings.HasSuffix(r.URL.Path, "/scopes") && strings.Contains(r.URL.Path, "/clients/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"scope": []map[string]string{{"scope_string": "https://auth.globus.org/scopes/trigger/composite"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(authSrv.Close)

	id := identity.NewClient("client-id", "secret", identity.WithBaseURL(authSrv.URL))

	st := store.NewMemoryStore()
	q := queue.NewMemoryClient()
	ac := action.NewMemoryClient()
	reg := registry.New()
	sup := poller.NewSupervisor(st, q, ac, id, reg, nil, slog.Default())

	c := New("triggers", st, sup, id, ac, slog.Default())
	return c, st
}

func TestHandleStatus_OK(t *testing.T) {
	c, _ := newTestComponent(t, "alice")
	mux := http.NewServeMux()
	c.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestHandleCreate_RequiresAuth(t *testing.T) {
	c, _ := newTestComponent(t, "alice")
	mux := http.NewServeMux()
	c.Register(mux)

	body, _ := json.Marshal(createRequest{QueueID: "q1", ActionURL: "https://actions.example.org", ActionScope: "actions.globus.org"})
	req := httptest.NewRequest(http.MethodPost, "/triggers", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleCreate_ThenGet(t *testing.T) {
	c, st := newTestComponent(t, "alice")
	mux := http.NewServeMux()
	c.Register(mux)

	body, _ := json.Marshal(createRequest{QueueID: "q1", ActionURL: "https://actions.example.org", ActionScope: "actions.globus.org"})
	req := httptest.NewRequest(http.MethodPost, "/triggers", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var created trigger.Trigger
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.NotEmpty(t, created.TriggerID)
	assert.Equal(t, "alice", created.CreatedBy)
	assert.Equal(t, trigger.StatePending, created.State)
	assert.Equal(t, "https://auth.globus.org/scopes/trigger/composite", created.GlobusAuthScope)

	persisted, err := st.Get(t.Context(), created.TriggerID)
	require.NoError(t, err)
	assert.Equal(t, "q1", persisted.QueueID)

	getReq := httptest.NewRequest(http.MethodGet, "/triggers/"+created.TriggerID, nil)
	getReq.Header.Set("Authorization", "Bearer tok")
	getRR := httptest.NewRecorder()
	mux.ServeHTTP(getRR, getReq)
	assert.Equal(t, http.StatusOK, getRR.Code)
}

func TestHandleGet_UnknownTriggerIs404(t *testing.T) {
	c, _ := newTestComponent(t, "alice")
	mux := http.NewServeMux()
	c.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/triggers/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleEnable_SnapshotsTokensAndTransitionsState(t *testing.T) {
	c, st := newTestComponent(t, "alice")
	mux := http.NewServeMux()
	c.Register(mux)

	tr := &trigger.Trigger{
		TriggerID:   "t1",
		CreatedBy:   "alice",
		QueueID:     "q1",
		ActionURL:   "https://actions.example.org",
		ActionScope: "actions.globus.org",
		State:       trigger.StatePending,
	}
	require.NoError(t, st.Put(t.Context(), tr))

	req := httptest.NewRequest(http.MethodPost, "/triggers/t1/enable", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	persisted, err := st.Get(t.Context(), "t1")
	require.NoError(t, err)
	assert.Equal(t, trigger.StateEnabled, persisted.State)
	assert.Equal(t, "dep-queue", persisted.TokenSet.DependentTokens["queues.api.globus.org"].AccessToken)
}

func TestHandleDelete_TransitionsToDeleting(t *testing.T) {
	c, st := newTestComponent(t, "alice")
	mux := http.NewServeMux()
	c.Register(mux)

	tr := &trigger.Trigger{TriggerID: "t2", CreatedBy: "alice", State: trigger.StatePending}
	require.NoError(t, st.Put(t.Context(), tr))

	req := httptest.NewRequest(http.MethodDelete, "/triggers/t2", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	persisted, err := st.Get(t.Context(), "t2")
	require.NoError(t, err)
	assert.Equal(t, trigger.StateDeleting, persisted.State)
}

func TestHandleEvent_RejectedWhenNotEnabled(t *testing.T) {
	c, st := newTestComponent(t, "alice")
	mux := http.NewServeMux()
	c.Register(mux)

	tr := &trigger.Trigger{TriggerID: "t3", CreatedBy: "alice", State: trigger.StatePending}
	require.NoError(t, st.Put(t.Context(), tr))

	req := httptest.NewRequest(http.MethodPost, "/triggers/t3/event", bytes.NewReader([]byte(`{"body":{}}`)))
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
}
