// Package interfaces declares the seams between the engine's components and
// their backing infrastructure, so services and the tick engine can be
// exercised against in-memory fakes.
package interfaces

import (
	"context"
	"time"

	"procgrid/internal/model"
	"procgrid/pkg/policy"
)

// ProcessStore is the transactional persistence surface of the scheduling
// engine. Implementations guarantee that every state-changing method is a
// single transaction and that pool mutations happen in the same transaction
// as the process row they account for.
type ProcessStore interface {
	// Admit reserves capacity and inserts the process atomically.
	// Returns model.ErrResourceExhausted or model.ErrInvalidProcess.
	Admit(ctx context.Context, proc *model.Process) error

	// Get returns (nil, nil) for an unknown process.
	Get(ctx context.Context, processID string) (*model.Process, error)

	// List returns processes matching the filter, newest first.
	List(ctx context.Context, filter model.ProcessFilter) ([]*model.Process, error)

	// ActiveProcessIDs returns IDs still requiring tick work, oldest first.
	ActiveProcessIDs(ctx context.Context, limit int) ([]string, error)

	// RequestCancel is the non-blocking request phase of cancellation.
	// The bool reports whether a transition happened (logging only).
	RequestCancel(ctx context.Context, processID, ownerID string) (bool, error)

	// CompleteCancellation is the blocking completion phase. The returned
	// event is non-nil exactly when this call performed the reclaim.
	CompleteCancellation(ctx context.Context, processID string) (*model.LifecycleEvent, error)

	// Tick advances one record under an exclusive lock.
	Tick(ctx context.Context, processID string, now time.Time, pol policy.Throughput) (*model.TickOutcome, error)

	// PurgeTerminalBefore removes aged terminal rows from the hot set.
	PurgeTerminalBefore(ctx context.Context, before time.Time) (int64, error)
}

// ServerStore is the server registry and pool snapshot surface.
type ServerStore interface {
	Register(ctx context.Context, server *model.Server) error
	Get(ctx context.Context, serverID string) (*model.Server, error)
	Exists(ctx context.Context, serverID string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*model.Server, error)
}

// EventSink receives lifecycle events after the owning transaction commits.
// Implementations must be best-effort and non-blocking with respect to the
// engine: a failing sink delays nothing and is only logged.
type EventSink interface {
	Emit(ctx context.Context, ev *model.LifecycleEvent)
}
