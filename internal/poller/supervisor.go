package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/c360studio/triggers/internal/action"
	"github.com/c360studio/triggers/internal/identity"
	"github.com/c360studio/triggers/internal/metrics"
	"github.com/c360studio/triggers/internal/queue"
	"github.com/c360studio/triggers/internal/registry"
	"github.com/c360studio/triggers/internal/store"
	"github.com/c360studio/triggers/internal/trigger"
)

// Supervisor owns the reaper and one Poller goroutine per ENABLED trigger.
// Shutdown is cooperative: Stop lowers an active flag and cancels the
// pollers' run context, which each poller observes only between ticks, so a
// tick always completes its queue acknowledgements.
type Supervisor struct {
	store    store.Store
	queue    queue.Client
	action   action.Client
	identity *identity.Client
	registry *registry.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger

	reaper *Reaper

	active atomic.Bool

	mu     sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor wires a Supervisor from its collaborators.
func NewSupervisor(st store.Store, q queue.Client, ac action.Client, id *identity.Client, reg *registry.Registry, m *metrics.Metrics, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		store:    st,
		queue:    q,
		action:   ac,
		identity: id,
		registry: reg,
		metrics:  m,
		logger:   logger,
		reaper:   NewReaper(st, reg, m, logger),
	}
}

// Start recovers every ENABLED trigger from the store, spawns a poller for
// each, and starts the reaper — mirroring the FastAPI startup hook's
// enum_triggers(state="ENABLED") recovery in the Python original.
func (s *Supervisor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.runCtx = runCtx
	s.cancel = cancel
	s.mu.Unlock()
	s.active.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reaper.Run(runCtx)
	}()

	enabled, err := s.store.Scan(ctx, nil)
	if err != nil {
		return err
	}
	for _, t := range enabled {
		if t.State != trigger.StateEnabled {
			continue
		}
		if _, err := s.registry.Set(t.TriggerID, trigger.StateEnabled); err != nil {
			s.logger.Warn("failed to recover trigger state", "trigger_id", t.TriggerID, "error", err)
			continue
		}
		s.spawn(runCtx, t.TriggerID)
	}

	return nil
}

// Enable transitions triggerID to ENABLED in both the registry and the
// store, then spawns a poller for it.
func (s *Supervisor) Enable(ctx context.Context, t *trigger.Trigger) error {
	if _, err := s.registry.Set(t.TriggerID, trigger.StateEnabled); err != nil {
		return err
	}
	t.State = trigger.StateEnabled
	if err := s.store.Put(ctx, t); err != nil {
		return err
	}

	if !s.active.Load() {
		return nil
	}
	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()
	s.spawn(runCtx, t.TriggerID)
	return nil
}

func (s *Supervisor) spawn(ctx context.Context, triggerID string) {
	p := New(triggerID, s.store, s.queue, s.action, s.identity, s.registry, s.metrics, s.logger)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		final, err := p.Run(ctx)
		s.reaper.Submit(final, err)
	}()
}

// Stop flips the active flag and waits for every in-flight poller tick and
// the reaper to observe cancellation and return.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.active.Store(false)

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
