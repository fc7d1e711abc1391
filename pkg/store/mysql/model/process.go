package model

import (
	"time"
)

// Process MySQL model for the processes table. The reservation columns hold
// the exact amounts debited from the gateway server's pool at admission;
// they are stored, not recomputed, so a later policy change cannot drift the
// accounting.
type Process struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProcessID        string     `gorm:"column:process_id;type:varchar(64);not null;uniqueIndex:idx_process_id_unique" json:"process_id"`
	OwnerID          string     `gorm:"column:owner_id;type:varchar(64);not null;index:idx_owner_id" json:"owner_id"`
	GatewayServerID  string     `gorm:"column:gateway_server_id;type:varchar(64);not null;index:idx_gateway_state,priority:1" json:"gateway_server_id"`
	TargetServerID   string     `gorm:"column:target_server_id;type:varchar(64);not null" json:"target_server_id"`
	ProcessType      string     `gorm:"column:process_type;type:varchar(50);not null" json:"process_type"`
	State            string     `gorm:"column:state;type:varchar(20);not null;index:idx_state;index:idx_gateway_state,priority:2" json:"state"`
	CPUReserved      int64      `gorm:"column:cpu_reserved;not null" json:"cpu_reserved"`
	RAMReserved      int64      `gorm:"column:ram_reserved;not null" json:"ram_reserved"`
	HDDReserved      int64      `gorm:"column:hdd_reserved;not null" json:"hdd_reserved"`
	NetReserved      int64      `gorm:"column:net_reserved;not null" json:"net_reserved"`
	Progress         float64    `gorm:"column:progress;type:double;not null;default:0" json:"progress"`
	RequiredWork     float64    `gorm:"column:required_work;type:double;not null" json:"required_work"`
	WebhookURL       string     `gorm:"column:webhook_url;type:varchar(1000)" json:"webhook_url"`
	CreatedAt        time.Time  `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
	LastCheckpointAt time.Time  `gorm:"column:last_checkpoint_at;type:datetime(3);not null" json:"last_checkpoint_at"`
	CompletedAt      *time.Time `gorm:"column:completed_at;type:datetime(3)" json:"completed_at"`
}

// TableName specifies the table name for Process
func (Process) TableName() string {
	return "processes"
}
