// Package store defines the Trigger persistence contract and provides two
// implementations: a NATS JetStream Key/Value-backed store for production
// and an in-memory store for tests.
package store

import (
	"context"

	"github.com/c360studio/triggers/internal/trigger"
)

// Store is the persistence contract for Trigger records. Scan combines
// filter clauses conjunctively within a clause (every key/value in the map
// must match) and disjunctively across clauses (any clause matching is
// sufficient) — the same semantics as the query_for_class scan this is
// grounded on, adapted from attribute-equality/set-membership over
// DynamoDB items to the same comparison over in-process structs.
type Store interface {
	Get(ctx context.Context, triggerID string) (*trigger.Trigger, error)
	Put(ctx context.Context, t *trigger.Trigger) error
	// Delete removes a trigger and returns the value that was removed, so
	// callers (the reaper) can inspect its final state.
	Delete(ctx context.Context, triggerID string) (*trigger.Trigger, error)
	Scan(ctx context.Context, clauses []Clause) ([]*trigger.Trigger, error)
}

// Clause is one conjunctive filter clause: every key must equal its value,
// or if the value is a []string, the field must be a member of it.
type Clause map[string]any

// MatchesClause reports whether t satisfies every condition in clause.
func MatchesClause(t *trigger.Trigger, clause Clause) bool {
	for key, want := range clause {
		got := fieldValue(t, key)
		switch w := want.(type) {
		case []string:
			if !containsString(w, got) {
				return false
			}
		case string:
			if got != w {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Matches reports whether t satisfies any clause (empty clauses matches
// everything).
func Matches(t *trigger.Trigger, clauses []Clause) bool {
	if len(clauses) == 0 {
		return true
	}
	for _, c := range clauses {
		if MatchesClause(t, c) {
			return true
		}
	}
	return false
}

func fieldValue(t *trigger.Trigger, key string) string {
	switch key {
	case "trigger_id":
		return t.TriggerID
	case "created_by":
		return t.CreatedBy
	case "state":
		return string(t.State)
	case "queue_id":
		return t.QueueID
	case "action_url":
		return t.ActionURL
	}
	return ""
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
