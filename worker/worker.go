/*
worker.go - Recompute dispatcher and worker pool

PURPOSE:
  Delivers "recompute (group, currency)" events to a bounded worker pool.
  Every expense or settlement write marks its key Stale here; a worker
  walks the key Stale -> Recomputing -> Fresh by running the engine's
  recompute. Delivery is at-least-once and recompute is idempotent, so a
  duplicate or re-delivered event is harmless.

DESIGN:
  - Buffered channel as the queue; duplicate pending keys coalesce (a key
    already queued is not queued again, it just stays Stale).
  - A key re-marked Stale while a worker is recomputing it stays Stale
    after that run finishes: the run read state older than the new write.
  - Retry-exhausted recomputes (optimistic-lock contention) are surfaced:
    logged at error, counted, and re-queued after a delay - never
    silently dropped.
  - Consistency violations leave the key Stale and are NOT re-queued
    automatically: re-running cannot fix a broken history, and the
    violation is already on monitoring.

SEE ALSO:
  - engine/recompute.go: the work being dispatched
  - api/handlers.go: MarkStale call sites
*/
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/split-engine/engine"
	"github.com/warp/split-engine/metrics"
	"github.com/warp/split-engine/money"
)

// =============================================================================
// STATE MACHINE - per (group, currency) key
// =============================================================================

type State string

const (
	StateStale       State = "stale"
	StateRecomputing State = "recomputing"
	StateFresh       State = "fresh"
)

// Key identifies one recompute unit. Different keys are independent; no
// ordering holds across them.
type Key struct {
	Group    engine.GroupID
	Currency money.Currency
}

// =============================================================================
// DISPATCHER
// =============================================================================

const defaultQueueSize = 1024

// Dispatcher owns the recompute queue and worker pool.
type Dispatcher struct {
	rec *engine.Recomputer
	met *metrics.Metrics
	log *slog.Logger

	workers      int
	RequeueDelay time.Duration

	queue  chan Key
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	states map[Key]State
	queued map[Key]bool
}

// NewDispatcher creates a dispatcher with the given pool size.
func NewDispatcher(rec *engine.Recomputer, workers int) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		rec:          rec,
		met:          metrics.New(),
		log:          slog.Default(),
		workers:      workers,
		RequeueDelay: 250 * time.Millisecond,
		queue:        make(chan Key, defaultQueueSize),
		ctx:          ctx,
		cancel:       cancel,
		states:       make(map[Key]State),
		queued:       make(map[Key]bool),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	d.log.Info("recompute dispatcher started", "workers", d.workers)
}

// Stop drains nothing: it cancels in-flight recomputes and waits for the
// workers to exit. Keys still Stale at shutdown are recomputed lazily on
// the next read (SimplifiedDebts) after restart.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
	d.log.Info("recompute dispatcher stopped")
}

// MarkStale records that the key's projection no longer matches history
// and enqueues a recompute unless one is already pending.
func (d *Dispatcher) MarkStale(key Key) {
	d.mu.Lock()
	d.states[key] = StateStale
	if d.queued[key] {
		d.mu.Unlock()
		return
	}
	d.queued[key] = true
	d.mu.Unlock()

	select {
	case d.queue <- key:
		d.met.QueueDepth.Inc()
	case <-d.ctx.Done():
	}
}

// State returns the key's current state. A key with no recorded state has
// never been written since boot; its stored projection, if any, is fresh.
func (d *Dispatcher) State(key Key) (State, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[key]
	return s, ok
}

// =============================================================================
// WORKER LOOP
// =============================================================================

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case key := <-d.queue:
			d.met.QueueDepth.Dec()
			d.process(key)
		}
	}
}

func (d *Dispatcher) process(key Key) {
	d.mu.Lock()
	delete(d.queued, key)
	d.states[key] = StateRecomputing
	d.mu.Unlock()

	start := time.Now()
	_, err := d.rec.Recompute(d.ctx, key.Group, key.Currency)
	d.met.RecomputeDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		d.met.RecomputesTotal.WithLabelValues("ok").Inc()
		d.mu.Lock()
		// A MarkStale that raced the recompute re-queued the key; its
		// state must stay Stale so readers know the projection lags.
		if d.states[key] == StateRecomputing && !d.queued[key] {
			d.states[key] = StateFresh
		}
		d.mu.Unlock()

	case engine.IsRetryable(err):
		d.met.RecomputesTotal.WithLabelValues("conflict_exhausted").Inc()
		d.log.Error("recompute retries exhausted, re-queueing",
			"group", key.Group, "currency", key.Currency, "error", err)
		d.setStale(key)
		time.AfterFunc(d.RequeueDelay, func() {
			select {
			case <-d.ctx.Done():
			default:
				d.MarkStale(key)
			}
		})

	case errors.Is(err, engine.ErrConsistencyViolation):
		d.met.RecomputesTotal.WithLabelValues("violation").Inc()
		d.log.Error("recompute aborted on consistency violation",
			"group", key.Group, "currency", key.Currency, "error", err)
		d.setStale(key)

	case errors.Is(err, context.Canceled):
		d.setStale(key)

	default:
		d.met.RecomputesTotal.WithLabelValues("error").Inc()
		d.log.Error("recompute failed",
			"group", key.Group, "currency", key.Currency, "error", err)
		d.setStale(key)
	}
}

func (d *Dispatcher) setStale(key Key) {
	d.mu.Lock()
	if d.states[key] == StateRecomputing {
		d.states[key] = StateStale
	}
	d.mu.Unlock()
}
