// Package engine drives the periodic sweep that turns wall-clock time into
// process progress. One sweep per interval walks every non-terminal record,
// advances it under its row lock and fans out any terminal event.
package engine

import (
	"context"
	"time"

	"procgrid/internal/model"
	"procgrid/pkg/interfaces"
	"procgrid/pkg/lock"
	"procgrid/pkg/logger"
	"procgrid/pkg/policy"
)

const defaultBatchSize = 500

// Clock abstracts time.Now so sweeps can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Engine is the tick engine. It owns no state of its own; everything it
// knows about a process it reads under the store's row lock during the tick
// itself, so a record mutated between listing and ticking is handled by
// whatever state the lock reveals.
type Engine struct {
	store     interfaces.ProcessStore
	sink      interfaces.EventSink
	pol       policy.Throughput
	sweepLock lock.SweepLock
	clock     Clock

	interval  time.Duration
	batchSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithBatchSize caps how many records one sweep visits.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// NewEngine creates a tick engine. sink and sweepLock may be nil; a nil
// sink drops events and a nil lock means this instance always sweeps.
func NewEngine(store interfaces.ProcessStore, sink interfaces.EventSink, pol policy.Throughput, sweepLock lock.SweepLock, interval time.Duration, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		sink:      sink,
		pol:       pol,
		sweepLock: sweepLock,
		clock:     realClock{},
		interval:  interval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements jobs.Job.
func (e *Engine) Name() string { return "tick_sweep" }

// Interval implements jobs.Job.
func (e *Engine) Interval() time.Duration { return e.interval }

// Run implements jobs.Job. Each run is one sweep guarded by the
// distributed lock, so a fleet of instances produces exactly one sweep per
// interval and a lost lock just means another instance is doing the work.
func (e *Engine) Run(ctx context.Context) error {
	if e.sweepLock != nil {
		acquired, err := e.sweepLock.TryLock(ctx)
		if err != nil {
			return err
		}
		if !acquired {
			logger.DebugCtx(ctx, "sweep lock held elsewhere, skipping sweep")
			return nil
		}
		defer func() {
			if err := e.sweepLock.Unlock(ctx); err != nil {
				logger.WarnCtx(ctx, "failed to release sweep lock: %v", err)
			}
		}()
	}

	return e.Sweep(ctx)
}

// Sweep ticks every active process once. Per-record failures are logged and
// do not stop the sweep; a record the store cannot advance this interval
// will be picked up by the next one.
func (e *Engine) Sweep(ctx context.Context) error {
	ids, err := e.store.ActiveProcessIDs(ctx, e.batchSize)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	now := e.clock.Now()
	var ticked, finished int
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		outcome, err := e.store.Tick(ctx, id, now, e.pol)
		if err != nil {
			// The row may have been purged or locked out from under the
			// listing. Neither blocks the rest of the sweep.
			logger.WarnCtx(ctx, "tick failed, process_id: %s, err: %v", id, err)
			continue
		}
		ticked++

		if outcome.Event != nil {
			finished++
			if e.sink != nil {
				e.sink.Emit(ctx, outcome.Event)
			}
		}
	}

	logger.DebugCtx(ctx, "sweep done, visited: %d, ticked: %d, finished: %d", len(ids), ticked, finished)
	return nil
}

// TickOne advances a single process outside the sweep cycle and fans out
// its event, for callers that need synchronous settlement.
func (e *Engine) TickOne(ctx context.Context, processID string) (*model.TickOutcome, error) {
	outcome, err := e.store.Tick(ctx, processID, e.clock.Now(), e.pol)
	if err != nil {
		return nil, err
	}
	if outcome.Event != nil && e.sink != nil {
		e.sink.Emit(ctx, outcome.Event)
	}
	return outcome, nil
}
