package service

import (
	"context"
	"fmt"
	"time"

	"procgrid/internal/model"
	"procgrid/pkg/interfaces"
	"procgrid/pkg/logger"
)

// ServerService manages the server registry. The engine itself never
// creates servers; the surrounding game does, through this service.
type ServerService struct {
	servers interfaces.ServerStore
}

// NewServerService creates a new server service
func NewServerService(servers interfaces.ServerStore) *ServerService {
	return &ServerService{servers: servers}
}

// Register adds a server with a full pool.
func (s *ServerService) Register(ctx context.Context, req *model.RegisterServerRequest) (*model.Server, error) {
	if !req.Total.Valid() || req.Total.IsZero() {
		return nil, fmt.Errorf("server needs a positive capacity: %w", model.ErrInvalidProcess)
	}

	existing, err := s.servers.Get(ctx, req.ServerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("server %s already registered: %w", req.ServerID, model.ErrInvalidProcess)
	}

	now := time.Now()
	server := &model.Server{
		ID:            req.ServerID,
		Total:         req.Total,
		Available:     req.Total,
		SecurityLevel: req.SecurityLevel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.servers.Register(ctx, server); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "server registered, server_id: %s", server.ID)
	return server, nil
}

// Get returns the server with its current pool snapshot.
func (s *ServerService) Get(ctx context.Context, serverID string) (*model.Server, error) {
	server, err := s.servers.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return nil, fmt.Errorf("server %s: %w", serverID, model.ErrInvalidProcess)
	}
	return server, nil
}

// List returns all servers.
func (s *ServerService) List(ctx context.Context, limit, offset int) ([]*model.Server, error) {
	return s.servers.List(ctx, limit, offset)
}
