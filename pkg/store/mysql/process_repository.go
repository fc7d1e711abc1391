package mysql

import (
	"context"
	"fmt"
	"time"

	domain "procgrid/internal/model"
	"procgrid/pkg/policy"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProcessRepository handles process persistence in MySQL. All state-changing
// methods are single transactions; the row locks they take are the only
// coordination between concurrent workers.
type ProcessRepository struct {
	ds *Datastore
}

// NewProcessRepository creates a new process repository
func NewProcessRepository(ds *Datastore) *ProcessRepository {
	return &ProcessRepository{ds: ds}
}

// Admit reserves capacity on the gateway server's pool and inserts the
// process row in one transaction. The debit is a compare-and-set UPDATE
// conditioned on every dimension still fitting, so two concurrent admissions
// can never both succeed on a stale available value.
//
// Returns domain.ErrResourceExhausted when any dimension does not fit, and
// domain.ErrInvalidProcess when the gateway server does not exist.
func (r *ProcessRepository) Admit(ctx context.Context, p *domain.Process) error {
	proc := FromProcessDomain(p)
	return r.ds.ExecTx(ctx, func(txCtx context.Context) error {
		result := r.ds.DB(txCtx).Model(&Server{}).
			Where("server_id = ? AND cpu_available >= ? AND ram_available >= ? AND hdd_available >= ? AND net_available >= ?",
				proc.GatewayServerID, proc.CPUReserved, proc.RAMReserved, proc.HDDReserved, proc.NetReserved).
			Updates(map[string]interface{}{
				"cpu_available": gorm.Expr("cpu_available - ?", proc.CPUReserved),
				"ram_available": gorm.Expr("ram_available - ?", proc.RAMReserved),
				"hdd_available": gorm.Expr("hdd_available - ?", proc.HDDReserved),
				"net_available": gorm.Expr("net_available - ?", proc.NetReserved),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to debit pool: %w", result.Error)
		}

		// RowsAffected must count matched rows, not changed rows: a
		// zero-valued reservation debits nothing. The DSN sets
		// clientFoundRows for this.
		if result.RowsAffected == 0 {
			var count int64
			if err := r.ds.DB(txCtx).Model(&Server{}).
				Where("server_id = ?", proc.GatewayServerID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check gateway server: %w", err)
			}
			if count == 0 {
				return fmt.Errorf("gateway server %s: %w", proc.GatewayServerID, domain.ErrInvalidProcess)
			}
			return domain.ErrResourceExhausted
		}

		if err := r.ds.DB(txCtx).Create(proc).Error; err != nil {
			return fmt.Errorf("failed to insert process: %w", err)
		}
		return nil
	})
}

// Get retrieves a process by its public ID. Returns (nil, nil) when the row
// does not exist.
func (r *ProcessRepository) Get(ctx context.Context, processID string) (*domain.Process, error) {
	var proc Process
	err := r.ds.DB(ctx).Where("process_id = ?", processID).First(&proc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get process: %w", err)
	}
	return ToProcessDomain(&proc), nil
}

// List retrieves processes matching the filter, newest first.
func (r *ProcessRepository) List(ctx context.Context, filter domain.ProcessFilter) ([]*domain.Process, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := r.ds.DB(ctx).Model(&Process{})
	if filter.OwnerID != "" {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.GatewayServerID != "" {
		query = query.Where("gateway_server_id = ?", filter.GatewayServerID)
	}
	if filter.State != "" {
		query = query.Where("state = ?", string(filter.State))
	}

	var procs []*Process
	err := query.Order("id DESC").Limit(limit).Offset(filter.Offset).Find(&procs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	result := make([]*domain.Process, 0, len(procs))
	for _, proc := range procs {
		result = append(result, ToProcessDomain(proc))
	}
	return result, nil
}

// ActiveProcessIDs returns the IDs of processes the tick engine still has
// work on (QUEUED, RUNNING or CANCELLING), oldest first.
func (r *ProcessRepository) ActiveProcessIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	query := r.ds.DB(ctx).Model(&Process{}).
		Where("state IN ?", []string{
			string(domain.ProcessStateQueued),
			string(domain.ProcessStateRunning),
			string(domain.ProcessStateCancelling),
		}).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("process_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list active processes: %w", err)
	}
	return ids, nil
}

// RequestCancel is phase 1 of the cancellation protocol. It takes a
// non-blocking FOR UPDATE SKIP LOCKED lock scoped by (process_id, owner_id):
// a row that is missing, owned by someone else, or currently locked by an
// in-flight worker transaction is treated as absent and the call succeeds
// without any state change. Only QUEUED or RUNNING rows move to CANCELLING;
// everything else is a committed no-op.
//
// The returned bool reports whether the transition actually happened, for
// logging only — callers surface success regardless.
func (r *ProcessRepository) RequestCancel(ctx context.Context, processID, ownerID string) (bool, error) {
	var transitioned bool
	err := r.ds.ExecTx(ctx, func(txCtx context.Context) error {
		var proc Process
		err := r.ds.DB(txCtx).
			Where("process_id = ? AND owner_id = ?", processID, ownerID).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			First(&proc).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				// Not found, wrong owner, or locked elsewhere: idempotent success.
				return nil
			}
			return fmt.Errorf("failed to lock process for cancel: %w", err)
		}

		state := domain.ProcessState(proc.State)
		if !domain.CanTransition(state, domain.ProcessStateCancelling) {
			return nil
		}

		result := r.ds.DB(txCtx).Model(&Process{}).
			Where("process_id = ?", processID).
			Update("state", string(domain.ProcessStateCancelling))
		if result.Error != nil {
			return fmt.Errorf("failed to mark process cancelling: %w", result.Error)
		}
		transitioned = result.RowsAffected > 0
		return nil
	})
	return transitioned, err
}

// CompleteCancellation is phase 2 of the cancellation protocol. It takes a
// blocking FOR UPDATE lock filtered to state = CANCELLING, credits the
// stored reservation back to the gateway pool and marks the row CANCELLED,
// all in one transaction. Any other state means the work was already done
// (or never requested) and the call is a no-op, so the credit happens
// exactly once no matter how many workers race here.
func (r *ProcessRepository) CompleteCancellation(ctx context.Context, processID string) (*domain.LifecycleEvent, error) {
	var event *domain.LifecycleEvent
	err := r.ds.ExecTx(ctx, func(txCtx context.Context) error {
		var proc Process
		err := r.ds.DB(txCtx).
			Where("process_id = ? AND state = ?", processID, string(domain.ProcessStateCancelling)).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&proc).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return fmt.Errorf("failed to lock cancelling process: %w", err)
		}

		now := r.ds.GetDB().NowFunc()
		if err := r.finishProcess(txCtx, &proc, domain.ProcessStateCancelled, now); err != nil {
			return err
		}
		event = ToLifecycleEvent(&proc, uuid.New().String(), now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// Tick advances a single record under an exclusive row lock:
//
//	QUEUED     -> RUNNING on first observation
//	RUNNING    -> progress accrual, COMPLETED when required work is reached,
//	              FAILED when the target server no longer exists
//	CANCELLING -> CANCELLED (cancellation completion, no progress advance)
//	terminal   -> no-op
//
// Pool credits happen inside the same transaction as the state change, and
// only on transitions out of a non-terminal state, so racing ticks on the
// same record cannot double-credit.
func (r *ProcessRepository) Tick(ctx context.Context, processID string, now time.Time, pol policy.Throughput) (*domain.TickOutcome, error) {
	outcome := &domain.TickOutcome{}
	err := r.ds.ExecTx(ctx, func(txCtx context.Context) error {
		var proc Process
		err := r.ds.DB(txCtx).
			Where("process_id = ?", processID).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&proc).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("process %s: %w", processID, domain.ErrInvalidProcess)
			}
			return fmt.Errorf("failed to lock process for tick: %w", err)
		}

		switch domain.ProcessState(proc.State) {
		case domain.ProcessStateQueued:
			// Reservation was committed at admission, so start immediately.
			updates := map[string]interface{}{
				"state":              string(domain.ProcessStateRunning),
				"last_checkpoint_at": now,
			}
			if err := r.ds.DB(txCtx).Model(&Process{}).
				Where("process_id = ?", processID).
				Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to start process: %w", err)
			}
			proc.State = string(domain.ProcessStateRunning)
			proc.LastCheckpointAt = now

		case domain.ProcessStateRunning:
			var targets int64
			if err := r.ds.DB(txCtx).Model(&Server{}).
				Where("server_id = ?", proc.TargetServerID).
				Count(&targets).Error; err != nil {
				return fmt.Errorf("failed to check target server: %w", err)
			}
			if targets == 0 {
				if err := r.finishProcess(txCtx, &proc, domain.ProcessStateFailed, now); err != nil {
					return err
				}
				outcome.Event = ToLifecycleEvent(&proc, uuid.New().String(), now)
				break
			}

			elapsed := now.Sub(proc.LastCheckpointAt)
			if elapsed < 0 {
				elapsed = 0
			}
			reservation := domain.Reservation{
				CPU: proc.CPUReserved, RAM: proc.RAMReserved,
				HDD: proc.HDDReserved, Net: proc.NetReserved,
			}
			rate := pol.WorkPerSecond(reservation, domain.ProcessType(proc.ProcessType))
			proc.Progress += rate * elapsed.Seconds()
			proc.LastCheckpointAt = now

			if proc.Progress >= proc.RequiredWork {
				proc.Progress = proc.RequiredWork
				if err := r.finishProcess(txCtx, &proc, domain.ProcessStateCompleted, now); err != nil {
					return err
				}
				outcome.Event = ToLifecycleEvent(&proc, uuid.New().String(), now)
				break
			}

			if err := r.ds.DB(txCtx).Model(&Process{}).
				Where("process_id = ?", processID).
				Updates(map[string]interface{}{
					"progress":           proc.Progress,
					"last_checkpoint_at": now,
				}).Error; err != nil {
				return fmt.Errorf("failed to checkpoint process: %w", err)
			}

		case domain.ProcessStateCancelling:
			// No further progress; finish the reclaim under the lock we hold.
			if err := r.finishProcess(txCtx, &proc, domain.ProcessStateCancelled, now); err != nil {
				return err
			}
			outcome.Event = ToLifecycleEvent(&proc, uuid.New().String(), now)

		default:
			// Terminal: nothing to do.
		}

		outcome.Process = ToProcessDomain(&proc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// finishProcess moves a locked row into a terminal state and credits its
// stored reservation back to the gateway pool in the caller's transaction.
// Callers guarantee proc's current state may legally transition to target.
func (r *ProcessRepository) finishProcess(txCtx context.Context, proc *Process, target domain.ProcessState, now time.Time) error {
	result := r.ds.DB(txCtx).Model(&Server{}).
		Where("server_id = ?", proc.GatewayServerID).
		Updates(map[string]interface{}{
			"cpu_available": gorm.Expr("cpu_available + ?", proc.CPUReserved),
			"ram_available": gorm.Expr("ram_available + ?", proc.RAMReserved),
			"hdd_available": gorm.Expr("hdd_available + ?", proc.HDDReserved),
			"net_available": gorm.Expr("net_available + ?", proc.NetReserved),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to credit pool: %w", result.Error)
	}

	updates := map[string]interface{}{
		"state":        string(target),
		"progress":     proc.Progress,
		"completed_at": now,
	}
	if err := r.ds.DB(txCtx).Model(&Process{}).
		Where("process_id = ?", proc.ProcessID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to finish process: %w", err)
	}

	proc.State = string(target)
	proc.CompletedAt = &now
	return nil
}

// PurgeTerminalBefore removes terminal rows older than the given time in
// batches. Archival proper is an external concern; this only keeps the hot
// table small.
func (r *ProcessRepository) PurgeTerminalBefore(ctx context.Context, before time.Time) (int64, error) {
	const batchSize = 5000
	var total int64
	for {
		result := r.ds.DB(ctx).
			Where("state IN (?, ?, ?) AND updated_at < ?",
				string(domain.ProcessStateCompleted),
				string(domain.ProcessStateFailed),
				string(domain.ProcessStateCancelled),
				before).
			Limit(batchSize).Delete(&Process{})
		if result.Error != nil {
			return total, result.Error
		}
		total += result.RowsAffected
		if result.RowsAffected < batchSize {
			break
		}
		time.Sleep(100 * time.Millisecond) // avoid overwhelming DB
	}
	return total, nil
}

// ExecTx executes a function within a transaction
func (r *ProcessRepository) ExecTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.ds.ExecTx(ctx, fn)
}
