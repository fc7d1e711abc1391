package model

import (
	"time"
)

// ProcessState process state
type ProcessState string

const (
	ProcessStateQueued     ProcessState = "QUEUED"     // Admitted, not yet observed by the tick engine
	ProcessStateRunning    ProcessState = "RUNNING"    // Actively accumulating progress
	ProcessStateCancelling ProcessState = "CANCELLING" // Cancellation requested, resources not yet reclaimed
	ProcessStateCompleted  ProcessState = "COMPLETED"  // Finished, reservation credited back
	ProcessStateFailed     ProcessState = "FAILED"     // Precondition broke mid-execution, reservation credited back
	ProcessStateCancelled  ProcessState = "CANCELLED"  // Cancellation completed, reservation credited back
)

// IsTerminal reports whether no further transitions are legal from s.
func (s ProcessState) IsTerminal() bool {
	switch s {
	case ProcessStateCompleted, ProcessStateFailed, ProcessStateCancelled:
		return true
	}
	return false
}

// IsActive reports whether the tick engine still has work to do on s.
func (s ProcessState) IsActive() bool {
	switch s {
	case ProcessStateQueued, ProcessStateRunning, ProcessStateCancelling:
		return true
	}
	return false
}

// Valid reports whether s is a member of the closed state set.
func (s ProcessState) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

// CanTransition is the exhaustive transition table for the process state
// machine. Every state write in the store layer is guarded by it (directly
// or via a state-scoped WHERE clause), so illegal transitions cannot be
// persisted.
func CanTransition(from, to ProcessState) bool {
	switch from {
	case ProcessStateQueued:
		return to == ProcessStateRunning || to == ProcessStateCancelling
	case ProcessStateRunning:
		return to == ProcessStateCompleted || to == ProcessStateFailed || to == ProcessStateCancelling
	case ProcessStateCancelling:
		return to == ProcessStateCancelled
	}
	// Terminal states absorb everything.
	return false
}

// ProcessType process type
type ProcessType string

const (
	ProcessTypeFileDownload      ProcessType = "file_download"
	ProcessTypeFileUpload        ProcessType = "file_upload"
	ProcessTypeCrackerBruteforce ProcessType = "cracker_bruteforce"
	ProcessTypeBankHack          ProcessType = "bank_hack"
	ProcessTypeInstallVirus      ProcessType = "install_virus"
	ProcessTypePortScan          ProcessType = "port_scan"
	ProcessTypeLogForge          ProcessType = "log_forge"
)

// BaseDuration is the [min,max] wall-clock duration a process type takes on
// an undefended target with a minimal reservation. The throughput policy
// scales it by target security and reserved hardware.
type BaseDuration struct {
	Min time.Duration
	Max time.Duration
}

// processCatalog is the closed set of process types and their base durations.
var processCatalog = map[ProcessType]BaseDuration{
	ProcessTypeFileDownload:      {Min: 15 * time.Second, Max: 10 * time.Minute},
	ProcessTypeFileUpload:        {Min: 15 * time.Second, Max: 10 * time.Minute},
	ProcessTypeCrackerBruteforce: {Min: 1 * time.Minute, Max: 30 * time.Minute},
	ProcessTypeBankHack:          {Min: 5 * time.Minute, Max: 60 * time.Minute},
	ProcessTypeInstallVirus:      {Min: 30 * time.Second, Max: 15 * time.Minute},
	ProcessTypePortScan:          {Min: 10 * time.Second, Max: 5 * time.Minute},
	ProcessTypeLogForge:          {Min: 20 * time.Second, Max: 10 * time.Minute},
}

// Valid reports whether t is a member of the closed type set.
func (t ProcessType) Valid() bool {
	_, ok := processCatalog[t]
	return ok
}

// BaseDuration returns the catalog entry for t. The zero value is returned
// for unknown types; callers validate with Valid first.
func (t ProcessType) BaseDuration() BaseDuration {
	return processCatalog[t]
}

// IsTransfer reports whether t moves data over the network, which makes its
// throughput sensitive to the NET reservation.
func (t ProcessType) IsTransfer() bool {
	return t == ProcessTypeFileDownload || t == ProcessTypeFileUpload
}

// AllProcessTypes returns the closed set of process types.
func AllProcessTypes() []ProcessType {
	return []ProcessType{
		ProcessTypeFileDownload,
		ProcessTypeFileUpload,
		ProcessTypeCrackerBruteforce,
		ProcessTypeBankHack,
		ProcessTypeInstallVirus,
		ProcessTypePortScan,
		ProcessTypeLogForge,
	}
}

// Reservation is the resource amount committed to a process at admission
// time. It is stored verbatim and credited back verbatim on termination.
type Reservation struct {
	CPU int64 `json:"cpu"`
	RAM int64 `json:"ram"`
	HDD int64 `json:"hdd"`
	Net int64 `json:"net"`
}

// Valid reports whether every dimension is non-negative.
func (r Reservation) Valid() bool {
	return r.CPU >= 0 && r.RAM >= 0 && r.HDD >= 0 && r.Net >= 0
}

// IsZero reports whether no resources are reserved at all.
func (r Reservation) IsZero() bool {
	return r.CPU == 0 && r.RAM == 0 && r.HDD == 0 && r.Net == 0
}

// Fits reports whether r fits into the available amounts on every dimension.
func (r Reservation) Fits(available Reservation) bool {
	return r.CPU <= available.CPU && r.RAM <= available.RAM &&
		r.HDD <= available.HDD && r.Net <= available.Net
}

// Add returns r with other added on every dimension.
func (r Reservation) Add(other Reservation) Reservation {
	return Reservation{
		CPU: r.CPU + other.CPU,
		RAM: r.RAM + other.RAM,
		HDD: r.HDD + other.HDD,
		Net: r.Net + other.Net,
	}
}

// Sub returns r with other subtracted on every dimension.
func (r Reservation) Sub(other Reservation) Reservation {
	return Reservation{
		CPU: r.CPU - other.CPU,
		RAM: r.RAM - other.RAM,
		HDD: r.HDD - other.HDD,
		Net: r.Net - other.Net,
	}
}

// Process domain model
type Process struct {
	ID               string       `json:"process_id"`
	OwnerID          string       `json:"owner_id"`
	GatewayServerID  string       `json:"gateway_server_id"`
	TargetServerID   string       `json:"target_server_id"`
	Type             ProcessType  `json:"process_type"`
	State            ProcessState `json:"state"`
	Reservation      Reservation  `json:"reservation"`
	Progress         float64      `json:"progress"`
	RequiredWork     float64      `json:"required_work"`
	WebhookURL       string       `json:"webhook_url,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	LastCheckpointAt time.Time    `json:"last_checkpoint_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// ProgressPercent returns progress as 0-100 for display.
func (p *Process) ProgressPercent() float64 {
	if p.RequiredWork <= 0 {
		return 0
	}
	pct := p.Progress / p.RequiredWork * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Server domain model: one resource pool per server.
type Server struct {
	ID            string      `json:"server_id"`
	Total         Reservation `json:"total"`
	Available     Reservation `json:"available"`
	SecurityLevel int         `json:"security_level"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// ProcessFilter narrows process listings.
type ProcessFilter struct {
	OwnerID         string
	GatewayServerID string
	State           ProcessState
	Limit           int
	Offset          int
}

// AdmitRequest admission request
type AdmitRequest struct {
	ProcessType     string      `json:"process_type" binding:"required"`
	GatewayServerID string      `json:"gateway_server_id" binding:"required"`
	TargetServerID  string      `json:"target_server_id" binding:"required"`
	Requested       Reservation `json:"requested"`
	WebhookURL      string      `json:"webhook,omitempty"`
}

// AdmitResponse admission response
type AdmitResponse struct {
	ProcessID   string       `json:"process_id"`
	State       ProcessState `json:"state"`
	Reservation Reservation  `json:"reservation"`
}

// CancelResponse is always a success acknowledgment; cancellation never
// surfaces an error to the caller.
type CancelResponse struct {
	Status    string `json:"status"`
	ProcessID string `json:"process_id"`
}

// ProcessResponse process status response
type ProcessResponse struct {
	ProcessID       string       `json:"process_id"`
	OwnerID         string       `json:"owner_id"`
	GatewayServerID string       `json:"gateway_server_id"`
	TargetServerID  string       `json:"target_server_id"`
	ProcessType     ProcessType  `json:"process_type"`
	State           ProcessState `json:"state"`
	Reservation     Reservation  `json:"reservation"`
	ProgressPercent float64      `json:"progress_percent"`
	CreatedAt       string       `json:"created_at"`
	CompletedAt     string       `json:"completed_at,omitempty"`
}

// RegisterServerRequest server registry request
type RegisterServerRequest struct {
	ServerID      string      `json:"server_id" binding:"required"`
	Total         Reservation `json:"total"`
	SecurityLevel int         `json:"security_level"`
}
