package service

import (
	"context"
	"fmt"
	"time"

	"procgrid/internal/model"
	"procgrid/pkg/interfaces"
	"procgrid/pkg/logger"
	"procgrid/pkg/policy"

	"github.com/google/uuid"
)

// ProcessService is the admission controller and the client-facing side of
// the cancellation protocol.
type ProcessService struct {
	store   interfaces.ProcessStore
	servers interfaces.ServerStore
	pol     policy.Throughput
	sink    interfaces.EventSink
}

// NewProcessService creates a new process service. sink may be nil.
func NewProcessService(store interfaces.ProcessStore, servers interfaces.ServerStore, pol policy.Throughput, sink interfaces.EventSink) *ProcessService {
	return &ProcessService{
		store:   store,
		servers: servers,
		pol:     pol,
		sink:    sink,
	}
}

// Admit validates the request, derives the required work from the target's
// security level, and commits the reservation atomically with the new
// process row. Reject-on-exhaustion: a request that does not fit returns
// model.ErrResourceExhausted immediately and is never queued, because a
// queued process would hold no resources yet block forward progress
// indefinitely.
func (s *ProcessService) Admit(ctx context.Context, ownerID string, req *model.AdmitRequest) (*model.AdmitResponse, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("missing owner identity: %w", model.ErrPermissionDenied)
	}

	processType := model.ProcessType(req.ProcessType)
	if !processType.Valid() {
		return nil, fmt.Errorf("unknown process type %q: %w", req.ProcessType, model.ErrInvalidProcess)
	}
	if !req.Requested.Valid() {
		return nil, fmt.Errorf("negative resource request: %w", model.ErrInvalidProcess)
	}

	target, err := s.servers.Get(ctx, req.TargetServerID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("target server %s: %w", req.TargetServerID, model.ErrInvalidProcess)
	}

	now := time.Now()
	proc := &model.Process{
		ID:               uuid.New().String(),
		OwnerID:          ownerID,
		GatewayServerID:  req.GatewayServerID,
		TargetServerID:   req.TargetServerID,
		Type:             processType,
		State:            model.ProcessStateQueued,
		Reservation:      req.Requested,
		Progress:         0,
		RequiredWork:     s.pol.RequiredWork(processType, target.SecurityLevel),
		WebhookURL:       req.WebhookURL,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastCheckpointAt: now,
	}

	if err := s.store.Admit(ctx, proc); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "process admitted, process_id: %s, type: %s, gateway: %s",
		proc.ID, proc.Type, proc.GatewayServerID)

	return &model.AdmitResponse{
		ProcessID:   proc.ID,
		State:       proc.State,
		Reservation: proc.Reservation,
	}, nil
}

// Cancel runs the two-phase cancellation protocol. It always acknowledges
// success: a missing process, an owner mismatch, a row locked by an
// in-flight sweep, a terminal state and a transient store failure all look
// the same to the caller.
//
// Phase two runs right after the request transaction commits so the
// reservation frees promptly; if the process dies between the phases, the
// next sweep settles the CANCELLING row instead.
func (s *ProcessService) Cancel(ctx context.Context, processID, ownerID string) *model.CancelResponse {
	transitioned, err := s.store.RequestCancel(ctx, processID, ownerID)
	if err != nil {
		// Store trouble delays the cancel until the client retries; it is
		// not surfaced, matching the idempotent contract.
		logger.ErrorCtx(ctx, "cancel request failed, process_id: %s, error: %v", processID, err)
	} else if transitioned {
		logger.InfoCtx(ctx, "process cancelling, process_id: %s", processID)

		ev, err := s.store.CompleteCancellation(ctx, processID)
		if err != nil {
			logger.ErrorCtx(ctx, "cancel completion deferred to sweep, process_id: %s, error: %v", processID, err)
		} else if ev != nil && s.sink != nil {
			s.sink.Emit(ctx, ev)
		}
	}

	return &model.CancelResponse{
		Status:    "ok",
		ProcessID: processID,
	}
}

// GetStatus returns a process snapshot.
func (s *ProcessService) GetStatus(ctx context.Context, processID string) (*model.ProcessResponse, error) {
	proc, err := s.store.Get(ctx, processID)
	if err != nil {
		return nil, err
	}
	if proc == nil {
		return nil, fmt.Errorf("process %s: %w", processID, model.ErrInvalidProcess)
	}
	return toProcessResponse(proc), nil
}

// ListProcesses returns process snapshots matching the filter.
func (s *ProcessService) ListProcesses(ctx context.Context, filter model.ProcessFilter) ([]*model.ProcessResponse, error) {
	procs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	resps := make([]*model.ProcessResponse, 0, len(procs))
	for _, proc := range procs {
		resps = append(resps, toProcessResponse(proc))
	}
	return resps, nil
}

func toProcessResponse(p *model.Process) *model.ProcessResponse {
	resp := &model.ProcessResponse{
		ProcessID:       p.ID,
		OwnerID:         p.OwnerID,
		GatewayServerID: p.GatewayServerID,
		TargetServerID:  p.TargetServerID,
		ProcessType:     p.Type,
		State:           p.State,
		Reservation:     p.Reservation,
		ProgressPercent: p.ProgressPercent(),
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
	if p.CompletedAt != nil {
		resp.CompletedAt = p.CompletedAt.Format(time.RFC3339)
	}
	return resp
}
