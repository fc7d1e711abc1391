package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"procgrid/internal/model"
	"procgrid/pkg/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory ProcessStore/ServerStore with the same
// admission and cancellation semantics as the MySQL repositories, minus
// the row locking (the mutex stands in for it).
type memStore struct {
	mu      sync.Mutex
	servers map[string]*model.Server
	procs   map[string]*model.Process
}

func newMemStore() *memStore {
	return &memStore{
		servers: make(map[string]*model.Server),
		procs:   make(map[string]*model.Process),
	}
}

func (m *memStore) Register(_ context.Context, s *model.Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.servers[s.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, serverID string) (*model.Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[serverID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) Exists(_ context.Context, serverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.servers[serverID]
	return ok, nil
}

func (m *memStore) List(_ context.Context, _, _ int) ([]*model.Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Server, 0, len(m.servers))
	for _, s := range m.servers {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) Admit(_ context.Context, p *model.Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gw, ok := m.servers[p.GatewayServerID]
	if !ok {
		return model.ErrInvalidProcess
	}
	if !p.Reservation.Fits(gw.Available) {
		return model.ErrResourceExhausted
	}
	gw.Available = gw.Available.Sub(p.Reservation)
	cp := *p
	m.procs[p.ID] = &cp
	return nil
}

func (m *memStore) GetProcess(_ context.Context, processID string) (*model.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[processID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListProcesses(_ context.Context, filter model.ProcessFilter) ([]*model.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Process, 0, len(m.procs))
	for _, p := range m.procs {
		if filter.OwnerID != "" && p.OwnerID != filter.OwnerID {
			continue
		}
		if filter.GatewayServerID != "" && p.GatewayServerID != filter.GatewayServerID {
			continue
		}
		if filter.State != "" && p.State != filter.State {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) ActiveProcessIDs(_ context.Context, _ int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, p := range m.procs {
		if p.State.IsActive() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) RequestCancel(_ context.Context, processID, ownerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[processID]
	if !ok || p.OwnerID != ownerID {
		return false, nil
	}
	if !model.CanTransition(p.State, model.ProcessStateCancelling) {
		return false, nil
	}
	p.State = model.ProcessStateCancelling
	return true, nil
}

func (m *memStore) CompleteCancellation(_ context.Context, processID string) (*model.LifecycleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[processID]
	if !ok || p.State != model.ProcessStateCancelling {
		return nil, nil
	}
	m.finishLocked(p, model.ProcessStateCancelled, time.Now())
	return m.eventLocked(p), nil
}

func (m *memStore) Tick(_ context.Context, processID string, now time.Time, pol policy.Throughput) (*model.TickOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[processID]
	if !ok {
		return nil, model.ErrInvalidProcess
	}
	outcome := &model.TickOutcome{}
	switch p.State {
	case model.ProcessStateQueued:
		p.State = model.ProcessStateRunning
		p.LastCheckpointAt = now
	case model.ProcessStateRunning:
		if _, ok := m.servers[p.TargetServerID]; !ok {
			m.finishLocked(p, model.ProcessStateFailed, now)
			outcome.Event = m.eventLocked(p)
			break
		}
		elapsed := now.Sub(p.LastCheckpointAt)
		if elapsed < 0 {
			elapsed = 0
		}
		p.Progress += pol.WorkPerSecond(p.Reservation, p.Type) * elapsed.Seconds()
		if p.Progress >= p.RequiredWork {
			p.Progress = p.RequiredWork
			m.finishLocked(p, model.ProcessStateCompleted, now)
			outcome.Event = m.eventLocked(p)
		} else {
			p.LastCheckpointAt = now
		}
	case model.ProcessStateCancelling:
		m.finishLocked(p, model.ProcessStateCancelled, now)
		outcome.Event = m.eventLocked(p)
	}
	cp := *p
	outcome.Process = &cp
	return outcome, nil
}

func (m *memStore) PurgeTerminalBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.procs {
		if p.State.IsTerminal() && p.CompletedAt != nil && p.CompletedAt.Before(before) {
			delete(m.procs, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) finishLocked(p *model.Process, target model.ProcessState, now time.Time) {
	if gw, ok := m.servers[p.GatewayServerID]; ok {
		gw.Available = gw.Available.Add(p.Reservation)
	}
	p.State = target
	p.CompletedAt = &now
}

func (m *memStore) eventLocked(p *model.Process) *model.LifecycleEvent {
	return &model.LifecycleEvent{
		EventID:          "ev-" + p.ID,
		ProcessID:        p.ID,
		OwnerID:          p.OwnerID,
		GatewayServerID:  p.GatewayServerID,
		ProcessType:      p.Type,
		State:            p.State,
		FreedReservation: p.Reservation,
		WebhookURL:       p.WebhookURL,
		OccurredAt:       time.Now(),
	}
}

// processStoreAdapter maps memStore's process methods onto the
// interfaces.ProcessStore names (Get/List collide with ServerStore's).
type processStoreAdapter struct{ *memStore }

func (a processStoreAdapter) Get(ctx context.Context, processID string) (*model.Process, error) {
	return a.GetProcess(ctx, processID)
}

func (a processStoreAdapter) List(ctx context.Context, filter model.ProcessFilter) ([]*model.Process, error) {
	return a.ListProcesses(ctx, filter)
}

type captureSink struct {
	mu     sync.Mutex
	events []*model.LifecycleEvent
}

func (s *captureSink) Emit(_ context.Context, ev *model.LifecycleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func newTestService(t *testing.T) (*ProcessService, *memStore, *captureSink) {
	t.Helper()
	mem := newMemStore()
	sink := &captureSink{}
	svc := NewProcessService(processStoreAdapter{mem}, mem, policy.NewHardwarePolicy(), sink)
	return svc, mem, sink
}

func registerServer(t *testing.T, mem *memStore, id string, total model.Reservation, secLevel int) {
	t.Helper()
	require.NoError(t, mem.Register(context.Background(), &model.Server{
		ID:            id,
		Total:         total,
		Available:     total,
		SecurityLevel: secLevel,
	}))
}

func TestAdmitRejectOnExhaustion(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	pool := model.Reservation{CPU: 100, RAM: 1024, HDD: 100, Net: 100}
	registerServer(t, mem, "gw-1", pool, 0)
	registerServer(t, mem, "target-1", pool, 0)

	first, err := svc.Admit(ctx, "owner-1", &model.AdmitRequest{
		ProcessType:     string(model.ProcessTypeCrackerBruteforce),
		GatewayServerID: "gw-1",
		TargetServerID:  "target-1",
		Requested:       model.Reservation{CPU: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProcessStateQueued, first.State)

	// 50 left, asking for 60. Rejected outright, never queued.
	_, err = svc.Admit(ctx, "owner-1", &model.AdmitRequest{
		ProcessType:     string(model.ProcessTypeCrackerBruteforce),
		GatewayServerID: "gw-1",
		TargetServerID:  "target-1",
		Requested:       model.Reservation{CPU: 60},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrResourceExhausted))

	// A rejected admission must not touch the pool.
	gw, err := mem.Get(ctx, "gw-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), gw.Available.CPU)

	// A request that fits the remainder still goes through.
	_, err = svc.Admit(ctx, "owner-1", &model.AdmitRequest{
		ProcessType:     string(model.ProcessTypeCrackerBruteforce),
		GatewayServerID: "gw-1",
		TargetServerID:  "target-1",
		Requested:       model.Reservation{CPU: 50},
	})
	require.NoError(t, err)
}

func TestAdmitZeroReservation(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	registerServer(t, mem, "gw-1", model.Reservation{CPU: 100}, 0)
	registerServer(t, mem, "target-1", model.Reservation{CPU: 100}, 0)

	// A zero-valued reservation is a valid request and must never read as
	// exhaustion, including back-to-back admissions on the same pool row.
	for i := 0; i < 2; i++ {
		_, err := svc.Admit(ctx, "owner-1", &model.AdmitRequest{
			ProcessType:     string(model.ProcessTypePortScan),
			GatewayServerID: "gw-1",
			TargetServerID:  "target-1",
			Requested:       model.Reservation{},
		})
		require.NoError(t, err)
	}

	gw, err := mem.Get(ctx, "gw-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), gw.Available.CPU)
}

func TestAdmitValidation(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	registerServer(t, mem, "gw-1", model.Reservation{CPU: 100}, 0)
	registerServer(t, mem, "target-1", model.Reservation{CPU: 100}, 0)

	valid := func() *model.AdmitRequest {
		return &model.AdmitRequest{
			ProcessType:     string(model.ProcessTypeFileDownload),
			GatewayServerID: "gw-1",
			TargetServerID:  "target-1",
			Requested:       model.Reservation{CPU: 10},
		}
	}

	_, err := svc.Admit(ctx, "", valid())
	assert.True(t, errors.Is(err, model.ErrPermissionDenied))

	req := valid()
	req.ProcessType = "mine_bitcoin"
	_, err = svc.Admit(ctx, "owner-1", req)
	assert.True(t, errors.Is(err, model.ErrInvalidProcess))

	req = valid()
	req.Requested = model.Reservation{CPU: -1}
	_, err = svc.Admit(ctx, "owner-1", req)
	assert.True(t, errors.Is(err, model.ErrInvalidProcess))

	req = valid()
	req.TargetServerID = "no-such-server"
	_, err = svc.Admit(ctx, "owner-1", req)
	assert.True(t, errors.Is(err, model.ErrInvalidProcess))

	req = valid()
	req.GatewayServerID = "no-such-server"
	_, err = svc.Admit(ctx, "owner-1", req)
	assert.True(t, errors.Is(err, model.ErrInvalidProcess))
}

func TestRequiredWorkScalesWithSecurityLevel(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	registerServer(t, mem, "gw-1", model.Reservation{CPU: 1000}, 0)
	registerServer(t, mem, "soft-target", model.Reservation{CPU: 100}, 0)
	registerServer(t, mem, "hard-target", model.Reservation{CPU: 100}, 10)

	admit := func(target string) *model.Process {
		resp, err := svc.Admit(ctx, "owner-1", &model.AdmitRequest{
			ProcessType:     string(model.ProcessTypeBankHack),
			GatewayServerID: "gw-1",
			TargetServerID:  target,
			Requested:       model.Reservation{CPU: 10},
		})
		require.NoError(t, err)
		p, err := mem.GetProcess(ctx, resp.ProcessID)
		require.NoError(t, err)
		return p
	}

	soft := admit("soft-target")
	hard := admit("hard-target")
	assert.Greater(t, hard.RequiredWork, soft.RequiredWork)
}

func TestCancelAlwaysAcknowledges(t *testing.T) {
	svc, mem, sink := newTestService(t)
	ctx := context.Background()
	registerServer(t, mem, "gw-1", model.Reservation{CPU: 100}, 0)
	registerServer(t, mem, "target-1", model.Reservation{CPU: 100}, 0)

	resp, err := svc.Admit(ctx, "owner-1", &model.AdmitRequest{
		ProcessType:     string(model.ProcessTypePortScan),
		GatewayServerID: "gw-1",
		TargetServerID:  "target-1",
		Requested:       model.Reservation{CPU: 10},
	})
	require.NoError(t, err)

	// Wrong owner gets the same answer as the right one and the process
	// is untouched. No probing for other players' process IDs.
	out := svc.Cancel(ctx, resp.ProcessID, "owner-2")
	assert.Equal(t, "ok", out.Status)
	p, err := mem.GetProcess(ctx, resp.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, model.ProcessStateQueued, p.State)
	assert.Empty(t, sink.events)

	// Unknown process ID is also fine.
	out = svc.Cancel(ctx, "no-such-process", "owner-1")
	assert.Equal(t, "ok", out.Status)

	// Right owner runs both phases: the record settles CANCELLED and the
	// reservation is credited back.
	out = svc.Cancel(ctx, resp.ProcessID, "owner-1")
	assert.Equal(t, "ok", out.Status)
	p, err = mem.GetProcess(ctx, resp.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, model.ProcessStateCancelled, p.State)
	gw, err := mem.Get(ctx, "gw-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), gw.Available.CPU)
	require.Len(t, sink.events, 1)
	assert.Equal(t, model.ProcessStateCancelled, sink.events[0].State)

	// Repeating the cancel is a no-op with the same answer and no second
	// credit or event.
	out = svc.Cancel(ctx, resp.ProcessID, "owner-1")
	assert.Equal(t, "ok", out.Status)
	gw, err = mem.Get(ctx, "gw-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), gw.Available.CPU)
	assert.Len(t, sink.events, 1)
}

func TestGetStatusAndList(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	registerServer(t, mem, "gw-1", model.Reservation{CPU: 100}, 0)
	registerServer(t, mem, "target-1", model.Reservation{CPU: 100}, 0)

	resp, err := svc.Admit(ctx, "owner-1", &model.AdmitRequest{
		ProcessType:     string(model.ProcessTypeLogForge),
		GatewayServerID: "gw-1",
		TargetServerID:  "target-1",
		Requested:       model.Reservation{CPU: 10},
	})
	require.NoError(t, err)

	got, err := svc.GetStatus(ctx, resp.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, resp.ProcessID, got.ProcessID)
	assert.Equal(t, float64(0), got.ProgressPercent)

	_, err = svc.GetStatus(ctx, "no-such-process")
	assert.True(t, errors.Is(err, model.ErrInvalidProcess))

	list, err := svc.ListProcesses(ctx, model.ProcessFilter{OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = svc.ListProcesses(ctx, model.ProcessFilter{OwnerID: "owner-2"})
	require.NoError(t, err)
	assert.Len(t, list, 0)
}
