package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/triggers/internal/action"
	"github.com/c360studio/triggers/internal/queue"
	"github.com/c360studio/triggers/internal/registry"
	"github.com/c360studio/triggers/internal/store"
	"github.com/c360studio/triggers/internal/trigger"
	"log/slog"
)

func newTestPoller(t *testing.T, tr *trigger.Trigger) (*Poller, *store.MemoryStore, *queue.MemoryClient, *action.MemoryClient, *registry.Registry) {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.Put(t.Context(), tr))

	q := queue.NewMemoryClient()
	ac := action.NewMemoryClient()
	reg := registry.New()
	_, err := reg.Set(tr.TriggerID, trigger.StateEnabled)
	require.NoError(t, err)

	p := New(tr.TriggerID, st, q, ac, nil, reg, nil, slog.Default())
	return p, st, q, ac, reg
}

func baseTrigger(id string) *trigger.Trigger {
	return &trigger.Trigger{
		TriggerID:     id,
		CreatedBy:     "alice",
		QueueID:       "queue-1",
		ActionURL:     "https://actions.example.org",
		ActionScope:   "actions.globus.org",
		State:         trigger.StateEnabled,
		EventFilter:   `body["ready"] == True`,
		EventTemplate: map[string]any{"value.=": "body[\"count\"]"},
		TokenSet: trigger.TokenSet{
			DependentTokens: map[string]trigger.Token{
				"queues.api.globus.org": {AccessToken: "queue-tok", ExpirationTime: time.Now().Add(time.Hour)},
				"actions.globus.org":    {AccessToken: "action-tok", ExpirationTime: time.Now().Add(time.Hour)},
			},
		},
	}
}

// S2: a matching event is dispatched to the action provider.
func TestPoller_FilterMatch_DispatchesAction(t *testing.T) {
	tr := baseTrigger("t1")
	p, st, q, _, _ := newTestPoller(t, tr)

	q.Push(tr.QueueID, `{"ready": true, "count": 3}`)

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()

	final, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), final.EventCount)

	persisted, err := st.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), persisted.EventCount)
}

// S1: filtered-out events don't dispatch but are still acknowledged.
func TestPoller_FilterReject_NoDispatch(t *testing.T) {
	tr := baseTrigger("t2")
	p, _, q, _, _ := newTestPoller(t, tr)

	q.Push(tr.QueueID, `{"ready": false, "count": 1}`)

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()

	final, err := p.Run(ctx)
	require.NoError(t, err)
	require.Len(t, final.AllActionStatus, 1)
	assert.Equal(t, trigger.ActionInactive, final.AllActionStatus[0].Status)

	remaining, _ := q.Receive(context.Background(), tr.QueueID, "", 10)
	assert.Empty(t, remaining, "message must be acknowledged regardless of filter outcome")
}

// S2 (idempotency): the action provider's request_id must equal the
// queue message's message_id, not a synthesized value.
func TestPoller_DispatchUsesMessageIDAsRequestID(t *testing.T) {
	tr := baseTrigger("t3")
	p, _, q, ac, _ := newTestPoller(t, tr)

	q.Push(tr.QueueID, `{"ready": true, "count": 1}`)
	msgs, err := q.Receive(context.Background(), tr.QueueID, "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	wantRequestID := msgs[0].MessageID
	require.NotEmpty(t, wantRequestID)

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()
	_, err = p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{wantRequestID}, ac.RequestIDs())
}

// event_count is assigned in receive order even though the matching
// subtasks for each event run concurrently.
func TestPoller_EventCountMatchesReceiveOrder(t *testing.T) {
	tr := baseTrigger("t5")
	p, st, q, _, _ := newTestPoller(t, tr)

	q.Push(tr.QueueID, `{"ready": true, "count": 1}`)
	q.Push(tr.QueueID, `{"ready": true, "count": 2}`)
	q.Push(tr.QueueID, `{"ready": true, "count": 3}`)

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()
	final, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), final.EventCount)

	persisted, err := st.Get(context.Background(), "t5")
	require.NoError(t, err)
	assert.Equal(t, int64(3), persisted.EventCount)
}

// S4: deleting a trigger (DELETING) is terminal in the registry.
func TestPoller_DeletingIsTerminalInRegistry(t *testing.T) {
	tr := baseTrigger("t4")
	_, _, _, _, reg := newTestPoller(t, tr)

	_, err := reg.Set(tr.TriggerID, trigger.StateDeleting)
	require.NoError(t, err)

	_, err = reg.Set(tr.TriggerID, trigger.StateEnabled)
	assert.Error(t, err)
}

func TestSupervisor_StartRecoversEnabledTriggers(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	enabledTrigger := baseTrigger("enabled-1")
	require.NoError(t, st.Put(ctx, enabledTrigger))

	pending := baseTrigger("pending-1")
	pending.State = trigger.StatePending
	require.NoError(t, st.Put(ctx, pending))

	q := queue.NewMemoryClient()
	ac := action.NewMemoryClient()
	reg := registry.New()

	sup := NewSupervisor(st, q, ac, nil, reg, nil, slog.Default())
	require.NoError(t, sup.Start(ctx))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, trigger.StatePending, reg.Get("pending-1"))
	assert.Equal(t, trigger.StateEnabled, reg.Get("enabled-1"))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = sup.Stop(stopCtx)
}
