package engine

import (
	"context"
	"time"

	"procgrid/pkg/interfaces"
	"procgrid/pkg/logger"
)

// PurgeJob trims aged terminal process rows so the hot table only carries
// records the sweep or the API still cares about. The event log keeps the
// history.
type PurgeJob struct {
	store       interfaces.ProcessStore
	retainFor   time.Duration
	runInterval time.Duration
}

// NewPurgeJob creates a purge job. retainFor is how long a terminal row
// stays queryable after it finishes.
func NewPurgeJob(store interfaces.ProcessStore, retainFor, runInterval time.Duration) *PurgeJob {
	return &PurgeJob{
		store:       store,
		retainFor:   retainFor,
		runInterval: runInterval,
	}
}

// Name implements jobs.Job.
func (j *PurgeJob) Name() string { return "terminal_purge" }

// Interval implements jobs.Job.
func (j *PurgeJob) Interval() time.Duration { return j.runInterval }

// AlignToInterval implements jobs.AlignedJob. Purges run on interval
// boundaries so a rolling restart does not trigger an immediate delete
// storm.
func (j *PurgeJob) AlignToInterval() bool { return true }

// Run implements jobs.Job.
func (j *PurgeJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.retainFor)
	n, err := j.store.PurgeTerminalBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.InfoCtx(ctx, "purged terminal processes, count: %d, cutoff: %s", n, cutoff.Format(time.RFC3339))
	}
	return nil
}
