// Package registry holds the in-process view of each trigger's lifecycle
// state, independent of the persisted copy in the store. The poller
// consults this registry every tick to decide whether to keep running.
package registry

import (
	"fmt"
	"sync"

	"github.com/c360studio/triggers/internal/errs"
	"github.com/c360studio/triggers/internal/trigger"
)

// Registry is a mutex-guarded trigger_id -> State map. DELETING is terminal:
// once set, Set rejects any further transition with a ConflictError, the
// same rule set_trigger_state enforces in the Python original.
type Registry struct {
	mu     sync.RWMutex
	states map[string]trigger.State
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{states: make(map[string]trigger.State)}
}

// Get returns the current state for triggerID, defaulting to PENDING for an
// unknown id (matching the Python original's defaultdict(lambda: PENDING)).
func (r *Registry) Get(triggerID string) trigger.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.states[triggerID]; ok {
		return s
	}
	return trigger.StatePending
}

// Set transitions triggerID to newState, returning the previous state. It
// refuses any transition out of DELETING.
func (r *Registry) Set(triggerID string, newState trigger.State) (trigger.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.states[triggerID]
	if !ok {
		current = trigger.StatePending
	}
	if current == trigger.StateDeleting {
		return current, &errs.ConflictError{Msg: fmt.Sprintf("trigger %q is being deleted", triggerID)}
	}

	r.states[triggerID] = newState
	return current, nil
}

// Remove drops triggerID from the registry entirely (called once the
// reaper has removed it from the store).
func (r *Registry) Remove(triggerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, triggerID)
}
