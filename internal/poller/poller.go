// Package poller implements the per-trigger polling engine, the reaper
// that retires completed pollers, and the lifecycle supervisor that starts
// and stops them.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/triggers/internal/action"
	"github.com/c360studio/triggers/internal/identity"
	"github.com/c360studio/triggers/internal/metrics"
	"github.com/c360studio/triggers/internal/queue"
	"github.com/c360studio/triggers/internal/registry"
	"github.com/c360studio/triggers/internal/store"
	"github.com/c360studio/triggers/internal/trigger"
	triggerexpr "github.com/c360studio/triggers/internal/expr"
)

const (
	minPollTime     = 1 * time.Second
	maxPollTime     = 30 * time.Second
	maxMessagesPoll = 10
)

// Poller drives the event loop for a single trigger: receive queue
// messages, evaluate the filter/template, dispatch to the action provider,
// poll outstanding action invocations, and adapt its own poll interval to
// how much work each tick did.
type Poller struct {
	triggerID string

	store    store.Store
	queue    queue.Client
	action   action.Client
	identity *identity.Client
	registry *registry.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger

	pollTime atomic.Int64 // nanoseconds, accessed from Run only

	tokenMu sync.Mutex // guards refresh-and-store of t.TokenSet.DependentTokens across concurrent fan-out goroutines
}

// New creates a Poller for triggerID. Callers are expected to have already
// set the trigger's state to ENABLED in both the store and the registry.
func New(triggerID string, st store.Store, q queue.Client, ac action.Client, id *identity.Client, reg *registry.Registry, m *metrics.Metrics, logger *slog.Logger) *Poller {
	p := &Poller{
		triggerID: triggerID,
		store:     st,
		queue:     q,
		action:    ac,
		identity:  id,
		registry:  reg,
		metrics:   m,
		logger:    logger.With("trigger_id", triggerID),
	}
	p.pollTime.Store(int64(minPollTime))
	return p
}

// Run executes the poll loop while the trigger is ENABLED, or while it is
// neither ENABLED nor DELETING but still has outstanding actions to drain.
// Cancelling ctx ends the loop at the next wait between ticks; a tick in
// progress runs to completion first. On exit it persists the trigger's final
// state and returns it so the reaper can decide whether to remove it from
// the store.
func (p *Poller) Run(ctx context.Context) (*trigger.Trigger, error) {
	t, err := p.store.Get(ctx, p.triggerID)
	if err != nil {
		return nil, fmt.Errorf("load trigger %q: %w", p.triggerID, err)
	}

	var outstanding []string
	if t.LastActionStatus != nil && !t.LastActionStatus.IsComplete() {
		outstanding = []string{t.LastActionStatus.ActionID}
	}

	// Tick work runs on a context that ignores cancellation, so shutdown is
	// only observed at the wait below.
	tickCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return p.persistFinal(context.Background(), t, p.registry.Get(p.triggerID))
		case <-time.After(p.clampedPollTime()):
		}

		state := p.registry.Get(p.triggerID)
		productive := false
		var dispatched []string

		if state == trigger.StateEnabled {
			processed, ids, err := p.tickReceive(tickCtx, t)
			if err != nil {
				p.logger.Warn("receive tick failed", "error", err)
			}
			if processed > 0 {
				productive = true
			}
			dispatched = ids
		}

		if len(outstanding) > 0 {
			remaining, anyPolled := p.tickPollActions(tickCtx, t, outstanding)
			outstanding = remaining
			if anyPolled {
				productive = true
			}
		}
		outstanding = append(outstanding, dispatched...)

		if err := p.store.Put(tickCtx, t); err != nil {
			p.logger.Warn("persist trigger failed", "error", err)
		}

		p.adjustBackoff(productive)

		// Continue while ENABLED, or while not DELETING but still draining
		// outstanding actions — matches the Python original's loop guard.
		if !(state == trigger.StateEnabled || (state != trigger.StateDeleting && len(outstanding) > 0)) {
			return p.persistFinal(context.Background(), t, state)
		}
	}
}

func (p *Poller) clampedPollTime() time.Duration {
	d := time.Duration(p.pollTime.Load())
	if d < minPollTime {
		d = minPollTime
	}
	if d > maxPollTime {
		d = maxPollTime
	}
	p.pollTime.Store(int64(d))
	return d
}

func (p *Poller) adjustBackoff(productive bool) {
	current := time.Duration(p.pollTime.Load())
	var next time.Duration
	if productive {
		next = current / 2
	} else {
		next = current * 2
	}
	if next < minPollTime {
		next = minPollTime
	}
	if next > maxPollTime {
		next = maxPollTime
	}
	p.pollTime.Store(int64(next))
}

func (p *Poller) persistFinal(ctx context.Context, t *trigger.Trigger, state trigger.State) (*trigger.Trigger, error) {
	t.State = state
	if err := p.store.Put(ctx, t); err != nil {
		return t, fmt.Errorf("persist final trigger state: %w", err)
	}
	return t, nil
}

// tickReceive fetches up to maxMessagesPoll messages, builds an Event and
// assigns it an ordinal event_count for each message in receive order
// (a sequential pre-pass), then fans out the filter/template/dispatch work
// across goroutines joined on a WaitGroup (the Go analog of asyncio.gather).
// Every message is deleted from the queue regardless of its processing
// outcome, matching the Python original's unconditional delete. The
// pre-pass mirrors the single-threaded original: trigger.event_count += 1
// and names = event.dict() run synchronously before any task is scheduled,
// so each event's ordinal always matches its position in the batch.
// It returns the number of messages received and the ids of dispatched
// actions that are not yet complete.
func (p *Poller) tickReceive(ctx context.Context, t *trigger.Trigger) (int, []string, error) {
	authHeader, err := p.queueAuthHeader(ctx, t)
	if err != nil {
		return 0, nil, err
	}

	messages, err := p.queue.Receive(ctx, t.QueueID, authHeader, maxMessagesPoll)
	if err != nil {
		return 0, nil, err
	}
	if len(messages) == 0 {
		return 0, nil, nil
	}

	events := make([]trigger.Event, len(messages))
	eventCounts := make([]int64, len(messages))
	for i, m := range messages {
		ev := parseEvent(m)
		t.EventCount++
		t.LastEvent = &ev
		events[i] = ev
		eventCounts[i] = t.EventCount
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var dispatched []string

	for i, msg := range messages {
		wg.Add(1)
		go func(m queue.Message, ev trigger.Event, eventCount int64) {
			defer wg.Done()

			status := p.processEvent(ctx, t, ev, eventCount)

			mu.Lock()
			t.RecordActionStatus(*status)
			if !status.IsComplete() && status.ActionID != "trigger_event_filtered" {
				dispatched = append(dispatched, status.ActionID)
			}
			mu.Unlock()

			if err := p.queue.Delete(ctx, t.QueueID, authHeader, m.ReceiptHandle); err != nil {
				p.logger.Warn("delete queue message failed", "error", err)
			}
		}(msg, events[i], eventCounts[i])
	}
	wg.Wait()

	if p.metrics != nil {
		p.metrics.EventsReceived.Add(float64(len(messages)))
	}
	return len(messages), dispatched, nil
}

// processEvent evaluates the trigger's filter against the event, and on a
// match evaluates the template and dispatches the resulting body to the
// action provider. names mirrors the Python original's event.dict() plus
// the injected event_count.
func (p *Poller) processEvent(ctx context.Context, t *trigger.Trigger, ev trigger.Event, eventCount int64) *trigger.ActionStatus {
	names := map[string]any{
		"body":                       ev.Body,
		"event_id":                   ev.EventID,
		"sent_by_effective_identity": ev.SentByEffectiveIdentity,
		"timestamp":                  ev.Timestamp,
		"sent_by_app":                ev.SentByApp,
		"sent_by_identity_set":       ev.SentByIdentitySet,
		"event_count":                eventCount,
	}

	if t.EventFilter != "" {
		result, err := triggerexpr.Eval(t.EventFilter, names)
		if err != nil {
			return &trigger.ActionStatus{
				Status:    trigger.ActionFailed,
				ActionID:  "trigger_action_failure",
				StartTime: time.Now(),
				Details:   err.Error(),
			}
		}
		if matched, ok := result.(bool); !ok || !matched {
			return &trigger.ActionStatus{
				Status:    trigger.ActionInactive,
				ActionID:  "trigger_event_filtered",
				StartTime: time.Now(),
			}
		}
	}

	body, err := triggerexpr.EvalTemplate(t.EventTemplate, names)
	if err != nil {
		return &trigger.ActionStatus{
			Status:    trigger.ActionFailed,
			ActionID:  "trigger_action_failure",
			StartTime: time.Now(),
			Details:   err.Error(),
		}
	}

	actionAuth, err := p.actionAuthHeader(ctx, t)
	if err != nil {
		return &trigger.ActionStatus{
			Status:    trigger.ActionFailed,
			ActionID:  "trigger_action_failure",
			StartTime: time.Now(),
			Details:   err.Error(),
		}
	}

	bodyMap, _ := body.(map[string]any)
	status, err := p.action.Run(ctx, t.ActionURL, actionAuth, ev.EventID, bodyMap)
	if err != nil {
		return &trigger.ActionStatus{
			Status:    trigger.ActionFailed,
			ActionID:  "trigger_action_failure",
			StartTime: time.Now(),
			Details:   err.Error(),
		}
	}

	final := p.checkActionResult(ctx, t, status)
	return final
}

// tickPollActions polls every outstanding action id and returns the subset
// that has not yet completed.
func (p *Poller) tickPollActions(ctx context.Context, t *trigger.Trigger, outstanding []string) ([]string, bool) {
	authHeader, err := p.actionAuthHeader(ctx, t)
	if err != nil {
		p.logger.Warn("action auth failed", "error", err)
		return outstanding, false
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	remaining := make([]string, 0, len(outstanding))

	for _, actionID := range outstanding {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			status, err := p.action.Status(ctx, t.ActionURL, authHeader, id)
			if err != nil {
				mu.Lock()
				remaining = append(remaining, id)
				mu.Unlock()
				return
			}

			final := p.checkActionResult(ctx, t, status)

			mu.Lock()
			t.RecordActionStatus(*final)
			if !final.IsComplete() {
				remaining = append(remaining, id)
			}
			mu.Unlock()
		}(actionID)
	}
	wg.Wait()

	return remaining, true
}

// checkActionResult releases a completed action's bookkeeping on the
// provider side and returns the status that release reports. A status that
// is not complete, or whose release cannot be authorized or fails, is
// returned unchanged.
func (p *Poller) checkActionResult(ctx context.Context, t *trigger.Trigger, status *trigger.ActionStatus) *trigger.ActionStatus {
	if !status.IsComplete() {
		return status
	}

	authHeader, err := p.actionAuthHeader(ctx, t)
	if err != nil {
		return status
	}

	released, err := p.action.Release(ctx, t.ActionURL, authHeader, status.ActionID)
	if err != nil {
		p.logger.Warn("release action failed", "action_id", status.ActionID, "error", err)
		return status
	}
	return released
}

func (p *Poller) queueAuthHeader(ctx context.Context, t *trigger.Trigger) (string, error) {
	return p.dependentAuthHeader(ctx, t, "queues.api.globus.org")
}

func (p *Poller) actionAuthHeader(ctx context.Context, t *trigger.Trigger) (string, error) {
	return p.dependentAuthHeader(ctx, t, t.ActionScope)
}

// dependentAuthHeader may run concurrently across a tick's fan-out
// goroutines (processEvent calls it per message), so the read-refresh-store
// sequence on the shared token map is serialized under tokenMu.
func (p *Poller) dependentAuthHeader(ctx context.Context, t *trigger.Trigger, resourceServer string) (string, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	tok, ok := t.TokenSet.DependentTokens[resourceServer]
	if !ok {
		return "", fmt.Errorf("no dependent token for resource server %q", resourceServer)
	}
	refreshed, err := p.identity.RefreshIfRequired(ctx, tok)
	if err != nil {
		return "", fmt.Errorf("refresh dependent token: %w", err)
	}
	t.TokenSet.DependentTokens[resourceServer] = refreshed
	return "Bearer " + refreshed.AccessToken, nil
}

func parseEvent(m queue.Message) trigger.Event {
	var body map[string]any
	if err := json.Unmarshal([]byte(m.MessageBody), &body); err != nil {
		body = map[string]any{"message": m.MessageBody, "json_parse_status": "failed"}
	}
	return trigger.Event{
		Body:      body,
		EventID:   m.MessageID,
		Timestamp: time.Now(),
	}
}
