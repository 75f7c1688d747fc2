package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360studio/triggers/internal/errs"
	"github.com/c360studio/triggers/internal/trigger"
)

// MemoryStore is an in-process Store used by tests and the seed-test
// scenarios; it implements the same conjunctive/disjunctive Scan contract
// as NATSStore.
type MemoryStore struct {
	mu       sync.RWMutex
	triggers map[string]*trigger.Trigger
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{triggers: make(map[string]*trigger.Trigger)}
}

func (s *MemoryStore) Get(_ context.Context, triggerID string) (*trigger.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.triggers[triggerID]
	if !ok {
		return nil, &errs.NotFound{Msg: fmt.Sprintf("trigger %q not found", triggerID)}
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) Put(_ context.Context, t *trigger.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.triggers[t.TriggerID] = &cp
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, triggerID string) (*trigger.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[triggerID]
	if !ok {
		return nil, &errs.NotFound{Msg: fmt.Sprintf("trigger %q not found", triggerID)}
	}
	delete(s.triggers, triggerID)
	return t, nil
}

func (s *MemoryStore) Scan(_ context.Context, clauses []Clause) ([]*trigger.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*trigger.Trigger, 0)
	for _, t := range s.triggers {
		if Matches(t, clauses) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}
