package service

import (
	"context"

	"procgrid/internal/model"
	"procgrid/pkg/events"
	"procgrid/pkg/logger"
	"procgrid/pkg/notify"
	mysqlStore "procgrid/pkg/store/mysql"
)

// LifecycleNotifier fans a terminal-state event out to the durable event
// log, the redis channel and the webhook queue. Every leg is best-effort:
// the process row is already committed by the time Emit runs, so a failing
// sink is logged and never retried here.
type LifecycleNotifier struct {
	eventRepo  *mysqlStore.ProcessEventRepository
	publisher  *events.Publisher
	dispatcher *notify.Dispatcher
}

// NewLifecycleNotifier creates a notifier. Any argument may be nil; a nil
// leg is skipped so tests and single-binary deployments can run without
// redis or asynq.
func NewLifecycleNotifier(eventRepo *mysqlStore.ProcessEventRepository, publisher *events.Publisher, dispatcher *notify.Dispatcher) *LifecycleNotifier {
	return &LifecycleNotifier{
		eventRepo:  eventRepo,
		publisher:  publisher,
		dispatcher: dispatcher,
	}
}

// Emit records the event and notifies subscribers. Runs the durable write
// synchronously so the event log never silently lags the process table,
// then pushes the fan-out legs.
func (n *LifecycleNotifier) Emit(ctx context.Context, ev *model.LifecycleEvent) {
	if ev == nil {
		return
	}

	if n.eventRepo != nil {
		if err := n.eventRepo.RecordEvent(ctx, ev); err != nil {
			logger.ErrorCtx(ctx, "failed to record lifecycle event, process_id: %s, err: %v", ev.ProcessID, err)
		}
	}

	if n.publisher != nil {
		if err := n.publisher.Publish(ctx, ev); err != nil {
			logger.WarnCtx(ctx, "failed to publish lifecycle event, process_id: %s, err: %v", ev.ProcessID, err)
		}
	}

	if n.dispatcher != nil {
		if err := n.dispatcher.Enqueue(ctx, ev); err != nil {
			logger.WarnCtx(ctx, "failed to enqueue webhook delivery, process_id: %s, err: %v", ev.ProcessID, err)
		}
	}
}
