package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/triggers/internal/errs"
	"github.com/c360studio/triggers/internal/store"
	"github.com/c360studio/triggers/internal/trigger"
)

// queueReceiveScope is the well-known Globus Queues scope required to
// receive messages; every trigger's composite scope depends on it alongside
// its action_scope.
const queueReceiveScope = "https://auth.globus.org/scopes/3170bf0b-6789-4285-9aba-8b7875be7cbc/receive"

func (c *Component) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTriggersCollection serves POST /triggers (create) and GET /triggers
// (list, filtered to the caller's own triggers).
func (c *Component) handleTriggersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		c.handleCreate(w, r)
	case http.MethodGet:
		c.handleList(w, r)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTriggerItem serves everything under /triggers/{id}[/action].
func (c *Component) handleTriggerItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/triggers/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		writeError(w, r, http.StatusNotFound, "missing trigger id")
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			c.handleGet(w, r, id)
		case http.MethodDelete:
			c.handleDelete(w, r, id)
		default:
			writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	switch parts[1] {
	case "enable":
		c.handleEnable(w, r, id)
	case "disable":
		c.handleDisable(w, r, id)
	case "event":
		c.handleEvent(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "unknown sub-resource")
	}
}

// createRequest is the subset of Trigger fields a caller may supply.
type createRequest struct {
	QueueID       string         `json:"queue_id"`
	ActionURL     string         `json:"action_url"`
	ActionScope   string         `json:"action_scope"`
	EventFilter   string         `json:"event_filter"`
	EventTemplate map[string]any `json:"event_template"`
}

func (c *Component) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing caller identity")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.QueueID == "" || req.ActionURL == "" {
		writeError(w, r, http.StatusBadRequest, "queue_id and action_url are required")
		return
	}

	if req.ActionScope == "" {
		scope, err := c.discoverActionScope(r.Context(), req.ActionURL)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "action_scope not supplied and could not be discovered: "+err.Error())
			return
		}
		req.ActionScope = scope
	}

	var globusAuthScope string
	if c.identity != nil {
		scope, err := c.identity.GetScopeForDependentSet(r.Context(), "", "", []string{req.ActionScope, queueReceiveScope})
		if err != nil {
			writeError(w, r, errs.HTTPStatus(err), "resolve trigger scope: "+err.Error())
			return
		}
		globusAuthScope = scope
	}

	t := &trigger.Trigger{
		TriggerID:       uuid.NewString(),
		CreatedBy:       caller.Sub,
		QueueID:         req.QueueID,
		ActionURL:       req.ActionURL,
		ActionScope:     req.ActionScope,
		GlobusAuthScope: globusAuthScope,
		EventFilter:     req.EventFilter,
		EventTemplate:   req.EventTemplate,
		State:           trigger.StatePending,
	}

	if err := c.store.Put(r.Context(), t); err != nil {
		writeError(w, r, errs.HTTPStatus(err), err.Error())
		return
	}

	resp := t.Response()
	writeJSON(w, http.StatusOK, &resp)
}

func (c *Component) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	t, err := c.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "trigger not found")
		return
	}
	resp := t.Response()
	writeJSON(w, http.StatusOK, &resp)
}

func (c *Component) handleList(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing caller identity")
		return
	}

	triggers, err := c.store.Scan(r.Context(), []store.Clause{{"created_by": caller.Sub}})
	if err != nil {
		writeError(w, r, errs.HTTPStatus(err), err.Error())
		return
	}

	out := make([]trigger.Trigger, 0, len(triggers))
	for _, t := range triggers {
		out = append(out, t.Response())
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *Component) handleEnable(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing caller identity")
		return
	}

	t, err := c.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "trigger not found")
		return
	}
	if t.CreatedBy != caller.Sub {
		writeError(w, r, http.StatusUnauthorized, "caller does not own this trigger")
		return
	}

	authz := r.Header.Get("Authorization")
	userToken, _ := strings.CutPrefix(authz, "Bearer ")
	if c.identity != nil {
		deps, err := c.identity.DependentTokenExchange(r.Context(), userToken)
		if err != nil {
			writeError(w, r, errs.HTTPStatus(err), "dependent token exchange failed: "+err.Error())
			return
		}
		t.TokenSet = trigger.TokenSet{
			UserToken:       trigger.Token{AccessToken: userToken, ExpirationTime: time.Now().Add(time.Hour)},
			DependentTokens: deps,
		}
	}

	if err := c.supervisor.Enable(r.Context(), t); err != nil {
		writeError(w, r, errs.HTTPStatus(err), err.Error())
		return
	}

	resp := t.Response()
	writeJSON(w, http.StatusOK, &resp)
}

func (c *Component) handleDisable(w http.ResponseWriter, r *http.Request, id string) {
	t, err := c.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "trigger not found")
		return
	}
	if t.State == trigger.StateDeleting {
		writeError(w, r, http.StatusConflict, "trigger is being deleted")
		return
	}

	t.State = trigger.StatePending
	if err := c.store.Put(r.Context(), t); err != nil {
		writeError(w, r, errs.HTTPStatus(err), err.Error())
		return
	}

	resp := t.Response()
	writeJSON(w, http.StatusOK, &resp)
}

func (c *Component) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	t, err := c.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "trigger not found")
		return
	}

	t.State = trigger.StateDeleting
	if err := c.store.Put(r.Context(), t); err != nil {
		writeError(w, r, errs.HTTPStatus(err), err.Error())
		return
	}

	resp := t.Response()
	writeJSON(w, http.StatusOK, &resp)
}

// eventRequest is the body of POST /triggers/{id}/event, which is a stub
// server-side event injection path: it never reaches a real queue.
type eventRequest struct {
	Body any `json:"body"`
}

func (c *Component) handleEvent(w http.ResponseWriter, r *http.Request, id string) {
	t, err := c.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "trigger not found")
		return
	}
	if t.State != trigger.StateEnabled {
		writeError(w, r, http.StatusConflict, "trigger is not enabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req eventRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	w.WriteHeader(http.StatusAccepted)
}

// discoverActionScope GETs the action provider's introspection document and
// reads its globus_auth_scope field, used when a caller registers a trigger
// without supplying action_scope explicitly.
func (c *Component) discoverActionScope(ctx context.Context, actionURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, actionURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", &errs.ValidationError{Msg: "action provider introspection returned non-2xx"}
	}

	var doc struct {
		GlobusAuthScope string `json:"globus_auth_scope"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRequestBodySize)).Decode(&doc); err != nil {
		return "", err
	}
	if doc.GlobusAuthScope == "" {
		return "", &errs.ValidationError{Msg: "action provider did not report globus_auth_scope"}
	}
	return doc.GlobusAuthScope, nil
}
