package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/triggers/internal/trigger"
)

// MemoryClient is an in-process action provider double for tests. Each
// action's status can be scripted to change across successive Status
// calls, letting a test drive an ACTIVE -> SUCCEEDED sequence the way a
// real long-running action would.
type MemoryClient struct {
	mu         sync.Mutex
	actions    map[string]*scriptedAction
	released   map[string]bool
	requestIDs []string
}

type scriptedAction struct {
	sequence []trigger.ActionStatusValue
	index    int
	details  any
}

// NewMemoryClient creates an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		actions:  make(map[string]*scriptedAction),
		released: make(map[string]bool),
	}
}

// ScriptSequence pre-registers an action whose successive Status calls for
// the returned action id report sequence in order, repeating the last entry.
// Run does not use scripted actions: each Run creates a new action that
// reports ACTIVE and then SUCCEEDED.
func (c *MemoryClient) ScriptSequence(sequence ...trigger.ActionStatusValue) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.New().String()
	c.actions[id] = &scriptedAction{sequence: sequence}
	return id
}

func (c *MemoryClient) Run(_ context.Context, _, _, requestID string, _ map[string]any) (*trigger.ActionStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.New().String()
	c.actions[id] = &scriptedAction{sequence: []trigger.ActionStatusValue{trigger.ActionActive, trigger.ActionSucceeded}}
	c.requestIDs = append(c.requestIDs, requestID)
	return c.statusLocked(id)
}

// RequestIDs returns the request_id passed to every Run call, in call
// order, letting tests assert idempotency-key threading from the queue
// message through to the action provider.
func (c *MemoryClient) RequestIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.requestIDs))
	copy(out, c.requestIDs)
	return out
}

func (c *MemoryClient) Status(_ context.Context, _, _, actionID string) (*trigger.ActionStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked(actionID)
}

func (c *MemoryClient) statusLocked(actionID string) (*trigger.ActionStatus, error) {
	a, ok := c.actions[actionID]
	if !ok {
		return nil, fmt.Errorf("unknown action id %q", actionID)
	}
	status := a.sequence[a.index]
	if a.index < len(a.sequence)-1 {
		a.index++
	}
	return &trigger.ActionStatus{
		Status:    status,
		ActionID:  actionID,
		StartTime: time.Now(),
		Details:   a.details,
	}, nil
}

func (c *MemoryClient) Release(_ context.Context, _, _, actionID string) (*trigger.ActionStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.actions[actionID]
	if !ok {
		return nil, fmt.Errorf("unknown action id %q", actionID)
	}
	c.released[actionID] = true
	status := a.sequence[len(a.sequence)-1]
	return &trigger.ActionStatus{Status: status, ActionID: actionID, StartTime: time.Now()}, nil
}

// WasReleased reports whether Release was called for actionID, letting
// tests assert the poller's release-on-completion behavior.
func (c *MemoryClient) WasReleased(actionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released[actionID]
}
