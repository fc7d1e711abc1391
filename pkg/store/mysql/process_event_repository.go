package mysql

import (
	"context"
	"fmt"
	"time"

	domain "procgrid/internal/model"

	"github.com/google/uuid"
)

// ProcessEventRepository persists the durable lifecycle event log.
type ProcessEventRepository struct {
	ds *Datastore
}

// NewProcessEventRepository creates a new process event repository
func NewProcessEventRepository(ds *Datastore) *ProcessEventRepository {
	return &ProcessEventRepository{ds: ds}
}

// RecordEvent appends a lifecycle event to the log.
func (r *ProcessEventRepository) RecordEvent(ctx context.Context, ev *domain.LifecycleEvent) error {
	row := &ProcessEvent{
		EventID:         ev.EventID,
		ProcessID:       ev.ProcessID,
		OwnerID:         ev.OwnerID,
		GatewayServerID: ev.GatewayServerID,
		EventType:       ev.EventType(),
		State:           string(ev.State),
		CPUFreed:        ev.FreedReservation.CPU,
		RAMFreed:        ev.FreedReservation.RAM,
		HDDFreed:        ev.FreedReservation.HDD,
		NetFreed:        ev.FreedReservation.Net,
		EventTime:       ev.OccurredAt,
	}
	if row.EventID == "" {
		row.EventID = uuid.New().String()
	}
	if row.EventTime.IsZero() {
		row.EventTime = time.Now()
	}
	return r.ds.DB(ctx).Create(row).Error
}

// GetProcessEvents retrieves all events for a process, ordered by time.
func (r *ProcessEventRepository) GetProcessEvents(ctx context.Context, processID string) ([]*ProcessEvent, error) {
	var events []*ProcessEvent
	err := r.ds.DB(ctx).
		Where("process_id = ?", processID).
		Order("event_time ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get process events: %w", err)
	}
	return events, nil
}

// GetServerEvents retrieves recent events for processes launched from a
// gateway server.
func (r *ProcessEventRepository) GetServerEvents(ctx context.Context, gatewayServerID string, limit int) ([]*ProcessEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []*ProcessEvent
	err := r.ds.DB(ctx).
		Where("gateway_server_id = ?", gatewayServerID).
		Order("event_time DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get server events: %w", err)
	}
	return events, nil
}
