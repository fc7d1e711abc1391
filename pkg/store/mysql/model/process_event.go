package model

import "time"

// ProcessEvent MySQL model for the process_events table: the durable log of
// lifecycle transitions. One row per terminal transition, written after the
// state-changing transaction commits.
type ProcessEvent struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID         string    `gorm:"column:event_id;type:varchar(64);not null;uniqueIndex:idx_event_id_unique" json:"event_id"`
	ProcessID       string    `gorm:"column:process_id;type:varchar(64);not null;index:idx_event_process_id" json:"process_id"`
	OwnerID         string    `gorm:"column:owner_id;type:varchar(64);not null;index:idx_event_owner_id" json:"owner_id"`
	GatewayServerID string    `gorm:"column:gateway_server_id;type:varchar(64);not null;index:idx_event_gateway" json:"gateway_server_id"`
	EventType       string    `gorm:"column:event_type;type:varchar(50);not null" json:"event_type"`
	State           string    `gorm:"column:state;type:varchar(20);not null" json:"state"`
	CPUFreed        int64     `gorm:"column:cpu_freed;not null" json:"cpu_freed"`
	RAMFreed        int64     `gorm:"column:ram_freed;not null" json:"ram_freed"`
	HDDFreed        int64     `gorm:"column:hdd_freed;not null" json:"hdd_freed"`
	NetFreed        int64     `gorm:"column:net_freed;not null" json:"net_freed"`
	EventTime       time.Time `gorm:"column:event_time;type:datetime(3);not null;index:idx_event_time" json:"event_time"`
}

// TableName specifies the table name for ProcessEvent
func (ProcessEvent) TableName() string {
	return "process_events"
}
