package model

import "time"

// Server MySQL model for the servers table: one resource pool per server.
// Invariant: every *_available column stays between 0 and its total, and is
// only mutated inside a transaction that also writes exactly one process
// row's state.
type Server struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ServerID      string    `gorm:"column:server_id;type:varchar(64);not null;uniqueIndex:idx_server_id_unique" json:"server_id"`
	CPUTotal      int64     `gorm:"column:cpu_total;not null" json:"cpu_total"`
	RAMTotal      int64     `gorm:"column:ram_total;not null" json:"ram_total"`
	HDDTotal      int64     `gorm:"column:hdd_total;not null" json:"hdd_total"`
	NetTotal      int64     `gorm:"column:net_total;not null" json:"net_total"`
	CPUAvailable  int64     `gorm:"column:cpu_available;not null" json:"cpu_available"`
	RAMAvailable  int64     `gorm:"column:ram_available;not null" json:"ram_available"`
	HDDAvailable  int64     `gorm:"column:hdd_available;not null" json:"hdd_available"`
	NetAvailable  int64     `gorm:"column:net_available;not null" json:"net_available"`
	SecurityLevel int       `gorm:"column:security_level;not null;default:0" json:"security_level"`
	CreatedAt     time.Time `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
}

// TableName specifies the table name for Server
func (Server) TableName() string {
	return "servers"
}
