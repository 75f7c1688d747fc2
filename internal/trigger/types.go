// Package trigger defines the core domain types shared across the trigger
// runtime: triggers, tokens, events, and action status records.
package trigger

import "time"

// State is a trigger's position in its lifecycle.
type State string

const (
	StatePending  State = "PENDING"
	StateEnabled  State = "ENABLED"
	StateNoQueue  State = "NO_QUEUE"
	StateDeleting State = "DELETING"
	StateDeleted  State = "DELETED"
)

// maxActionStatusHistory bounds AllActionStatus; oldest entries are dropped
// first once it is reached.
const maxActionStatusHistory = 50

// Token is an OAuth2-style bearer token with an expiration skew check.
type Token struct {
	AccessToken    string    `json:"access_token"`
	Scope          string    `json:"scope"`
	RefreshToken   string    `json:"refresh_token,omitempty"`
	ExpirationTime time.Time `json:"expiration_time"`
	ResourceServer string    `json:"resource_server,omitempty"`
	TokenType      string    `json:"token_type,omitempty"`
}

// RequiresRefresh reports whether the token is within 300s of expiring.
func (t Token) RequiresRefresh() bool {
	return time.Now().Add(300 * time.Second).After(t.ExpirationTime)
}

// TokenSet bundles a trigger owner's user token with the dependent tokens
// needed to call the queue and action services on their behalf.
type TokenSet struct {
	UserToken       Token            `json:"user_token"`
	DependentTokens map[string]Token `json:"dependent_tokens"`
}

// Event is a single message received from a trigger's queue.
type Event struct {
	Body                    map[string]any `json:"body"`
	EventID                 string         `json:"event_id"`
	SentByEffectiveIdentity string         `json:"sent_by_effective_identity"`
	Timestamp               time.Time      `json:"timestamp"`
	SentByApp               string         `json:"sent_by_app,omitempty"`
	SentByIdentitySet       []string       `json:"sent_by_identity_set,omitempty"`
}

// ActionStatusValue is the lifecycle state of a single action invocation.
type ActionStatusValue string

const (
	ActionSucceeded ActionStatusValue = "SUCCEEDED"
	ActionFailed    ActionStatusValue = "FAILED"
	ActionActive    ActionStatusValue = "ACTIVE"
	ActionInactive  ActionStatusValue = "INACTIVE"
)

// IsComplete reports whether the action has reached a terminal state.
func (v ActionStatusValue) IsComplete() bool {
	return v == ActionSucceeded || v == ActionFailed
}

// ActionStatus records the outcome of one action invocation triggered by an
// event, or of polling an outstanding invocation for its current status.
type ActionStatus struct {
	Status         ActionStatusValue `json:"status"`
	CreatorID      string            `json:"creator_id"`
	ActionID       string            `json:"action_id"`
	StartTime      time.Time         `json:"start_time"`
	Label          string            `json:"label,omitempty"`
	MonitorBy      []string          `json:"monitor_by,omitempty"`
	ManageBy       []string          `json:"manage_by,omitempty"`
	CompletionTime *time.Time        `json:"completion_time,omitempty"`
	ReleaseAfter   *time.Duration    `json:"release_after,omitempty"`
	DisplayStatus  string            `json:"display_status,omitempty"`
	Details        any               `json:"details,omitempty"`
}

// IsComplete reports whether this action status is terminal.
func (a ActionStatus) IsComplete() bool {
	return a.Status.IsComplete()
}

// Trigger is the full, internally held record for a registered trigger,
// including the token set needed to act on the owner's behalf. The
// trigger_id field is canonical; callers must not rely on an "id" alias.
type Trigger struct {
	TriggerID             string         `json:"trigger_id"`
	CreatedBy             string         `json:"created_by"`
	QueueID               string         `json:"queue_id"`
	ActionURL             string         `json:"action_url"`
	ActionScope           string         `json:"action_scope"`
	GlobusAuthScope       string         `json:"globus_auth_scope"`
	EventFilter           string         `json:"event_filter"`
	EventTemplate         map[string]any `json:"event_template"`
	State                 State          `json:"state"`
	TokenSet              TokenSet       `json:"token_set"`
	EventCount            int64          `json:"event_count"`
	LastEvent             *Event         `json:"last_event,omitempty"`
	LastActionStatus      *ActionStatus  `json:"last_action_status,omitempty"`
	LastErrorActionStatus *ActionStatus  `json:"last_error_action_status,omitempty"`
	AllActionStatus       []ActionStatus `json:"all_action_status,omitempty"`
}

// RecordActionStatus appends a new action outcome to the trigger's history,
// truncating AllActionStatus to maxActionStatusHistory entries and updating
// the last-status/last-error-status summaries.
func (t *Trigger) RecordActionStatus(status ActionStatus) {
	t.LastActionStatus = &status
	if status.Status == ActionFailed {
		t.LastErrorActionStatus = &status
	}

	t.AllActionStatus = append(t.AllActionStatus, status)
	if len(t.AllActionStatus) > maxActionStatusHistory {
		t.AllActionStatus = t.AllActionStatus[len(t.AllActionStatus)-maxActionStatusHistory:]
	}
}

// Response strips the fields that must never leave the process (the token
// set) and returns a copy suitable for serializing to an HTTP client.
func (t *Trigger) Response() Trigger {
	cp := *t
	cp.TokenSet = TokenSet{}
	return cp
}
