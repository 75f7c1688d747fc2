package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360studio/triggers/internal/metrics"
	"github.com/c360studio/triggers/internal/registry"
	"github.com/c360studio/triggers/internal/store"
	"github.com/c360studio/triggers/internal/trigger"
)

// reaperChannelCapacity bounds how many finished pollers can be queued for
// the reaper before a new poller's completion blocks — a backpressure
// valve so a burst of trigger deletions cannot pile up unboundedly.
const reaperChannelCapacity = 100

// finishedPoller is what a Poller hands the reaper when its Run loop exits.
type finishedPoller struct {
	trigger *trigger.Trigger
	err     error
}

// Reaper drains completed pollers and removes any trigger that finished in
// the DELETING state from the store and registry.
type Reaper struct {
	store    store.Store
	registry *registry.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger

	ch chan finishedPoller
}

// NewReaper creates a Reaper with the default channel capacity.
func NewReaper(st store.Store, reg *registry.Registry, m *metrics.Metrics, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:    st,
		registry: reg,
		metrics:  m,
		logger:   logger,
		ch:       make(chan finishedPoller, reaperChannelCapacity),
	}
}

// Submit hands a finished poller's result to the reaper. It blocks if the
// reaper's channel is full, applying backpressure to the supervisor.
func (r *Reaper) Submit(t *trigger.Trigger, err error) {
	r.ch <- finishedPoller{trigger: t, err: err}
}

// Run drains the reaper's channel until ctx is cancelled, waking every 10s
// when idle to re-check for cancellation, matching the Python original's
// non-blocking-drain-then-sleep loop.
func (r *Reaper) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-r.ch:
			r.handle(ctx, f)
		case <-time.After(10 * time.Second):
		}
	}
}

func (r *Reaper) handle(ctx context.Context, f finishedPoller) {
	if f.err != nil {
		r.logger.Warn("poller exited with error", "error", f.err)
	}
	if f.trigger == nil {
		return
	}

	if r.metrics != nil {
		r.metrics.ReaperQueueDepth.Set(float64(len(r.ch)))
	}

	if f.trigger.State != trigger.StateDeleting {
		return
	}

	if _, err := r.store.Delete(ctx, f.trigger.TriggerID); err != nil {
		r.logger.Warn("reaper failed to remove trigger", "trigger_id", f.trigger.TriggerID, "error", err)
		return
	}
	r.registry.Remove(f.trigger.TriggerID)
	r.logger.Info("trigger removed", "trigger_id", f.trigger.TriggerID)
}
