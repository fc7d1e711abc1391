package mysql

import (
	"context"
	"fmt"

	domain "procgrid/internal/model"

	"gorm.io/gorm"
)

// ServerRepository handles server (resource pool) persistence in MySQL.
// Pool debits and credits do NOT live here: they happen inside the process
// repository's transactions, next to the process row they account for.
type ServerRepository struct {
	ds *Datastore
}

// NewServerRepository creates a new server repository
func NewServerRepository(ds *Datastore) *ServerRepository {
	return &ServerRepository{ds: ds}
}

// Register creates a new server with a full pool (available = total).
func (r *ServerRepository) Register(ctx context.Context, server *domain.Server) error {
	row := FromServerDomain(server)
	row.CPUAvailable = row.CPUTotal
	row.RAMAvailable = row.RAMTotal
	row.HDDAvailable = row.HDDTotal
	row.NetAvailable = row.NetTotal
	if err := r.ds.DB(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to register server: %w", err)
	}
	return nil
}

// Get retrieves a server by its public ID. Returns (nil, nil) when the row
// does not exist.
func (r *ServerRepository) Get(ctx context.Context, serverID string) (*domain.Server, error) {
	var server Server
	err := r.ds.DB(ctx).Where("server_id = ?", serverID).First(&server).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return ToServerDomain(&server), nil
}

// Exists reports whether a server row exists.
func (r *ServerRepository) Exists(ctx context.Context, serverID string) (bool, error) {
	var count int64
	err := r.ds.DB(ctx).Model(&Server{}).
		Where("server_id = ?", serverID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check server: %w", err)
	}
	return count > 0, nil
}

// List retrieves all servers, oldest first.
func (r *ServerRepository) List(ctx context.Context, limit, offset int) ([]*domain.Server, error) {
	if limit <= 0 {
		limit = 100
	}
	var servers []*Server
	err := r.ds.DB(ctx).Order("id ASC").Limit(limit).Offset(offset).Find(&servers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	result := make([]*domain.Server, 0, len(servers))
	for _, s := range servers {
		result = append(result, ToServerDomain(s))
	}
	return result, nil
}
