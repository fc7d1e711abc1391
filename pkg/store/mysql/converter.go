package mysql

import (
	"time"

	domain "procgrid/internal/model"
)

// FromProcessDomain converts a domain process to its MySQL row.
func FromProcessDomain(p *domain.Process) *Process {
	if p == nil {
		return nil
	}
	return &Process{
		ProcessID:        p.ID,
		OwnerID:          p.OwnerID,
		GatewayServerID:  p.GatewayServerID,
		TargetServerID:   p.TargetServerID,
		ProcessType:      string(p.Type),
		State:            string(p.State),
		CPUReserved:      p.Reservation.CPU,
		RAMReserved:      p.Reservation.RAM,
		HDDReserved:      p.Reservation.HDD,
		NetReserved:      p.Reservation.Net,
		Progress:         p.Progress,
		RequiredWork:     p.RequiredWork,
		WebhookURL:       p.WebhookURL,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		LastCheckpointAt: p.LastCheckpointAt,
		CompletedAt:      p.CompletedAt,
	}
}

// ToProcessDomain converts a MySQL row to the domain process.
func ToProcessDomain(p *Process) *domain.Process {
	if p == nil {
		return nil
	}
	return &domain.Process{
		ID:              p.ProcessID,
		OwnerID:         p.OwnerID,
		GatewayServerID: p.GatewayServerID,
		TargetServerID:  p.TargetServerID,
		Type:            domain.ProcessType(p.ProcessType),
		State:           domain.ProcessState(p.State),
		Reservation: domain.Reservation{
			CPU: p.CPUReserved,
			RAM: p.RAMReserved,
			HDD: p.HDDReserved,
			Net: p.NetReserved,
		},
		Progress:         p.Progress,
		RequiredWork:     p.RequiredWork,
		WebhookURL:       p.WebhookURL,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		LastCheckpointAt: p.LastCheckpointAt,
		CompletedAt:      p.CompletedAt,
	}
}

// FromServerDomain converts a domain server to its MySQL row.
func FromServerDomain(s *domain.Server) *Server {
	if s == nil {
		return nil
	}
	return &Server{
		ServerID:      s.ID,
		CPUTotal:      s.Total.CPU,
		RAMTotal:      s.Total.RAM,
		HDDTotal:      s.Total.HDD,
		NetTotal:      s.Total.Net,
		CPUAvailable:  s.Available.CPU,
		RAMAvailable:  s.Available.RAM,
		HDDAvailable:  s.Available.HDD,
		NetAvailable:  s.Available.Net,
		SecurityLevel: s.SecurityLevel,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// ToServerDomain converts a MySQL row to the domain server.
func ToServerDomain(s *Server) *domain.Server {
	if s == nil {
		return nil
	}
	return &domain.Server{
		ID: s.ServerID,
		Total: domain.Reservation{
			CPU: s.CPUTotal,
			RAM: s.RAMTotal,
			HDD: s.HDDTotal,
			Net: s.NetTotal,
		},
		Available: domain.Reservation{
			CPU: s.CPUAvailable,
			RAM: s.RAMAvailable,
			HDD: s.HDDAvailable,
			Net: s.NetAvailable,
		},
		SecurityLevel: s.SecurityLevel,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// ToLifecycleEvent builds the outbound lifecycle event for a process that
// just reached a terminal state. The freed reservation is the stored one,
// credited back verbatim.
func ToLifecycleEvent(p *Process, eventID string, occurredAt time.Time) *domain.LifecycleEvent {
	return &domain.LifecycleEvent{
		EventID:         eventID,
		ProcessID:       p.ProcessID,
		OwnerID:         p.OwnerID,
		GatewayServerID: p.GatewayServerID,
		ProcessType:     domain.ProcessType(p.ProcessType),
		State:           domain.ProcessState(p.State),
		FreedReservation: domain.Reservation{
			CPU: p.CPUReserved,
			RAM: p.RAMReserved,
			HDD: p.HDDReserved,
			Net: p.NetReserved,
		},
		WebhookURL: p.WebhookURL,
		OccurredAt: occurredAt,
	}
}
