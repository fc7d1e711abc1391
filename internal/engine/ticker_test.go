package engine

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"procgrid/internal/model"
	"procgrid/pkg/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeStore mirrors the repository's tick semantics in memory: queued rows
// start running on first observation, running rows accrue work, cancelling
// rows settle, and the pool is credited exactly once on the terminal
// transition.
type fakeStore struct {
	mu       sync.Mutex
	procs    map[string]*model.Process
	pool     model.Reservation
	targets  map[string]bool
	credits  int
	extraIDs []string
}

func newFakeStore(pool model.Reservation) *fakeStore {
	return &fakeStore{
		procs:   make(map[string]*model.Process),
		pool:    pool,
		targets: make(map[string]bool),
	}
}

func (f *fakeStore) addProcess(p *model.Process) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pool = f.pool.Sub(p.Reservation)
	cp := *p
	f.procs[p.ID] = &cp
	if p.TargetServerID != "" {
		f.targets[p.TargetServerID] = true
	}
}

func (f *fakeStore) dropTarget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.targets, id)
}

func (f *fakeStore) process(id string) model.Process {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.procs[id]
}

func (f *fakeStore) available() model.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pool
}

func (f *fakeStore) creditCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits
}

func (f *fakeStore) Admit(_ context.Context, p *model.Process) error {
	f.addProcess(p)
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*model.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) List(_ context.Context, _ model.ProcessFilter) ([]*model.Process, error) {
	return nil, nil
}

func (f *fakeStore) ActiveProcessIDs(_ context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, p := range f.procs {
		if p.State.IsActive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	ids = append(append([]string(nil), f.extraIDs...), ids...)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeStore) RequestCancel(_ context.Context, id, ownerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[id]
	if !ok || p.OwnerID != ownerID || !model.CanTransition(p.State, model.ProcessStateCancelling) {
		return false, nil
	}
	p.State = model.ProcessStateCancelling
	return true, nil
}

func (f *fakeStore) CompleteCancellation(_ context.Context, id string) (*model.LifecycleEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[id]
	if !ok || p.State != model.ProcessStateCancelling {
		return nil, nil
	}
	return f.finishLocked(p, model.ProcessStateCancelled, time.Now()), nil
}

func (f *fakeStore) Tick(_ context.Context, id string, now time.Time, pol policy.Throughput) (*model.TickOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[id]
	if !ok {
		return nil, model.ErrInvalidProcess
	}
	outcome := &model.TickOutcome{}
	switch p.State {
	case model.ProcessStateQueued:
		p.State = model.ProcessStateRunning
		p.LastCheckpointAt = now
	case model.ProcessStateRunning:
		if !f.targets[p.TargetServerID] {
			outcome.Event = f.finishLocked(p, model.ProcessStateFailed, now)
			break
		}
		elapsed := now.Sub(p.LastCheckpointAt)
		if elapsed < 0 {
			elapsed = 0
		}
		p.Progress += pol.WorkPerSecond(p.Reservation, p.Type) * elapsed.Seconds()
		if p.Progress >= p.RequiredWork {
			p.Progress = p.RequiredWork
			outcome.Event = f.finishLocked(p, model.ProcessStateCompleted, now)
		} else {
			p.LastCheckpointAt = now
		}
	case model.ProcessStateCancelling:
		outcome.Event = f.finishLocked(p, model.ProcessStateCancelled, now)
	}
	cp := *p
	outcome.Process = &cp
	return outcome, nil
}

func (f *fakeStore) PurgeTerminalBefore(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, p := range f.procs {
		if p.State.IsTerminal() && p.CompletedAt != nil && p.CompletedAt.Before(before) {
			delete(f.procs, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) finishLocked(p *model.Process, target model.ProcessState, now time.Time) *model.LifecycleEvent {
	f.pool = f.pool.Add(p.Reservation)
	f.credits++
	p.State = target
	t := now
	p.CompletedAt = &t
	return &model.LifecycleEvent{
		EventID:          "ev-" + p.ID,
		ProcessID:        p.ID,
		OwnerID:          p.OwnerID,
		GatewayServerID:  p.GatewayServerID,
		ProcessType:      p.Type,
		State:            target,
		FreedReservation: p.Reservation,
		OccurredAt:       now,
	}
}

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []*model.LifecycleEvent
}

func (s *recordingSink) Emit(_ context.Context, ev *model.LifecycleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) all() []*model.LifecycleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.LifecycleEvent(nil), s.events...)
}

func newTestProcess(id string, res model.Reservation, requiredWork float64) *model.Process {
	return &model.Process{
		ID:              id,
		OwnerID:         "owner-1",
		GatewayServerID: "gw-1",
		TargetServerID:  "target-1",
		Type:            model.ProcessTypeCrackerBruteforce,
		State:           model.ProcessStateQueued,
		Reservation:     res,
		RequiredWork:    requiredWork,
	}
}

func TestSweepCompletesAfterExpectedDuration(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(model.Reservation{CPU: 8000})
	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	sink := &recordingSink{}
	eng := NewEngine(store, sink, policy.NewHardwarePolicy(), nil, time.Second, WithClock(clock))

	// 4000 cpu units yield 5 work/s, so 300 work completes in 60 seconds.
	store.addProcess(newTestProcess("p-1", model.Reservation{CPU: 4000}, 300))

	// First sweep only promotes QUEUED to RUNNING; no progress yet.
	require.NoError(t, eng.Sweep(ctx))
	p := store.process("p-1")
	assert.Equal(t, model.ProcessStateRunning, p.State)
	assert.Equal(t, float64(0), p.Progress)

	// 59 seconds in: nearly done but still running.
	clock.Advance(59 * time.Second)
	require.NoError(t, eng.Sweep(ctx))
	p = store.process("p-1")
	assert.Equal(t, model.ProcessStateRunning, p.State)
	assert.InDelta(t, 295.0, p.Progress, 0.001)

	// Crossing the 60 second mark completes it and frees the pool.
	clock.Advance(1 * time.Second)
	require.NoError(t, eng.Sweep(ctx))
	p = store.process("p-1")
	assert.Equal(t, model.ProcessStateCompleted, p.State)
	assert.Equal(t, p.RequiredWork, p.Progress)
	assert.Equal(t, int64(8000), store.available().CPU)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.ProcessStateCompleted, events[0].State)
	assert.Equal(t, int64(4000), events[0].FreedReservation.CPU)
}

func TestSweepSettlesCancellingWithoutProgress(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(model.Reservation{CPU: 1000})
	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	sink := &recordingSink{}
	eng := NewEngine(store, sink, policy.NewHardwarePolicy(), nil, time.Second, WithClock(clock))

	store.addProcess(newTestProcess("p-1", model.Reservation{CPU: 500}, 1000))
	require.NoError(t, eng.Sweep(ctx))

	clock.Advance(10 * time.Second)
	require.NoError(t, eng.Sweep(ctx))
	before := store.process("p-1")
	assert.Greater(t, before.Progress, float64(0))

	ok, err := store.RequestCancel(ctx, "p-1", "owner-1")
	require.NoError(t, err)
	require.True(t, ok)

	// A cancelling record settles without accruing any further work, no
	// matter how much wall time has passed.
	clock.Advance(time.Hour)
	require.NoError(t, eng.Sweep(ctx))
	p := store.process("p-1")
	assert.Equal(t, model.ProcessStateCancelled, p.State)
	assert.Equal(t, before.Progress, p.Progress)
	assert.Equal(t, int64(1000), store.available().CPU)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.ProcessStateCancelled, events[0].State)

	// Terminal records leave the sweep set; a further sweep credits
	// nothing again.
	clock.Advance(time.Minute)
	require.NoError(t, eng.Sweep(ctx))
	assert.Equal(t, 1, store.creditCount())
	assert.Equal(t, int64(1000), store.available().CPU)
}

func TestSweepFailsProcessWhoseTargetVanished(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(model.Reservation{CPU: 1000})
	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	sink := &recordingSink{}
	eng := NewEngine(store, sink, policy.NewHardwarePolicy(), nil, time.Second, WithClock(clock))

	store.addProcess(newTestProcess("p-1", model.Reservation{CPU: 500}, 1000))
	require.NoError(t, eng.Sweep(ctx))

	store.dropTarget("target-1")
	clock.Advance(time.Second)
	require.NoError(t, eng.Sweep(ctx))

	p := store.process("p-1")
	assert.Equal(t, model.ProcessStateFailed, p.State)
	assert.Equal(t, int64(1000), store.available().CPU)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.ProcessStateFailed, events[0].State)
}

func TestSweepSurvivesPerRecordFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(model.Reservation{CPU: 1000})
	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	eng := NewEngine(store, nil, policy.NewHardwarePolicy(), nil, time.Second, WithClock(clock))

	store.addProcess(newTestProcess("p-1", model.Reservation{CPU: 100}, 50))
	store.addProcess(newTestProcess("p-2", model.Reservation{CPU: 100}, 50))

	// A row purged between listing and ticking fails its tick without
	// stopping the sweep.
	store.mu.Lock()
	store.extraIDs = []string{"p-gone"}
	store.mu.Unlock()

	require.NoError(t, eng.Sweep(ctx))
	assert.Equal(t, model.ProcessStateRunning, store.process("p-1").State)
	assert.Equal(t, model.ProcessStateRunning, store.process("p-2").State)
}

func TestSweepRespectsBatchSize(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(model.Reservation{CPU: 10000})
	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	eng := NewEngine(store, nil, policy.NewHardwarePolicy(), nil, time.Second, WithClock(clock), WithBatchSize(1))

	store.addProcess(newTestProcess("p-1", model.Reservation{CPU: 100}, 50))
	store.addProcess(newTestProcess("p-2", model.Reservation{CPU: 100}, 50))

	require.NoError(t, eng.Sweep(ctx))
	running := 0
	for _, id := range []string{"p-1", "p-2"} {
		if store.process(id).State == model.ProcessStateRunning {
			running++
		}
	}
	assert.Equal(t, 1, running)
}

func TestConcurrentCompletionCreditsOnce(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(model.Reservation{CPU: 8000})
	start := time.Unix(1_700_000_000, 0)
	clock := newFakeClock(start)
	sink := &recordingSink{}
	eng := NewEngine(store, sink, policy.NewHardwarePolicy(), nil, time.Second, WithClock(clock))

	// Already running and past its threshold: every tick from here on
	// crosses the completion boundary.
	p := newTestProcess("p-1", model.Reservation{CPU: 4000}, 300)
	p.State = model.ProcessStateRunning
	p.LastCheckpointAt = start
	store.addProcess(p)
	clock.Advance(120 * time.Second)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := eng.TickOne(ctx, "p-1"); err != nil {
				t.Errorf("tick failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// One winner transitions and credits; the rest observe a terminal row
	// and do nothing.
	got := store.process("p-1")
	assert.Equal(t, model.ProcessStateCompleted, got.State)
	assert.Equal(t, got.RequiredWork, got.Progress)
	assert.Equal(t, 1, store.creditCount())
	assert.Equal(t, int64(8000), store.available().CPU)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.ProcessStateCompleted, events[0].State)
}

func TestTickOneEmitsEvent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(model.Reservation{CPU: 1000})
	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	sink := &recordingSink{}
	eng := NewEngine(store, sink, policy.NewHardwarePolicy(), nil, time.Second, WithClock(clock))

	store.addProcess(newTestProcess("p-1", model.Reservation{CPU: 500}, 1000))
	_, err := store.RequestCancel(ctx, "p-1", "owner-1")
	require.NoError(t, err)

	outcome, err := eng.TickOne(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, outcome.Event)
	assert.Equal(t, model.ProcessStateCancelled, outcome.Process.State)
	assert.Len(t, sink.all(), 1)
}

func TestPurgeJobRemovesAgedTerminals(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(model.Reservation{CPU: 1000})

	old := newTestProcess("p-old", model.Reservation{CPU: 100}, 50)
	old.State = model.ProcessStateCompleted
	done := time.Now().Add(-48 * time.Hour)
	old.CompletedAt = &done
	store.addProcess(old)

	fresh := newTestProcess("p-fresh", model.Reservation{CPU: 100}, 50)
	store.addProcess(fresh)

	job := NewPurgeJob(store, 24*time.Hour, time.Hour)
	require.NoError(t, job.Run(ctx))

	got, err := store.Get(ctx, "p-old")
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = store.Get(ctx, "p-fresh")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
