package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/triggers/internal/trigger"
)

func TestMemoryStore_CRUD(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	tr := &trigger.Trigger{TriggerID: "t1", CreatedBy: "alice", State: trigger.StatePending}
	require.NoError(t, s.Put(ctx, tr))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.CreatedBy)

	_, err = s.Get(ctx, "missing")
	assert.Error(t, err)

	deleted, err := s.Delete(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", deleted.TriggerID)

	_, err = s.Get(ctx, "t1")
	assert.Error(t, err)
}

func TestMemoryStore_ScanConjunctiveAndDisjunctive(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	require.NoError(t, s.Put(ctx, &trigger.Trigger{TriggerID: "t1", CreatedBy: "alice", State: trigger.StateEnabled}))
	require.NoError(t, s.Put(ctx, &trigger.Trigger{TriggerID: "t2", CreatedBy: "alice", State: trigger.StatePending}))
	require.NoError(t, s.Put(ctx, &trigger.Trigger{TriggerID: "t3", CreatedBy: "bob", State: trigger.StateEnabled}))

	// Conjunctive: both created_by and state must match within one clause.
	results, err := s.Scan(ctx, []Clause{{"created_by": "alice", "state": string(trigger.StateEnabled)}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].TriggerID)

	// Disjunctive: either clause matching is sufficient.
	results, err = s.Scan(ctx, []Clause{
		{"created_by": "bob"},
		{"state": string(trigger.StatePending)},
	})
	require.NoError(t, err)
	ids := []string{results[0].TriggerID, results[1].TriggerID}
	assert.ElementsMatch(t, []string{"t2", "t3"}, ids)

	// Set-membership via []string value.
	results, err = s.Scan(ctx, []Clause{{"state": []string{string(trigger.StateEnabled)}}})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
