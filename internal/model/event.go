package model

import (
	"encoding/json"
	"time"
)

// Lifecycle event types emitted on terminal transitions.
const (
	EventProcessCompleted = "PROCESS_COMPLETED"
	EventProcessFailed    = "PROCESS_FAILED"
	EventProcessCancelled = "PROCESS_CANCELLED"
)

// LifecycleEvent is emitted once per terminal transition for external
// collaborators (notification relay, websocket clients, webhooks). The
// engine does not format or deliver it beyond handing it to the sinks.
type LifecycleEvent struct {
	EventID          string       `json:"event_id"`
	ProcessID        string       `json:"process_id"`
	OwnerID          string       `json:"owner_id"`
	GatewayServerID  string       `json:"gateway_server_id"`
	ProcessType      ProcessType  `json:"process_type"`
	State            ProcessState `json:"state"`
	FreedReservation Reservation  `json:"freed_reservation"`
	WebhookURL       string       `json:"-"`
	OccurredAt       time.Time    `json:"occurred_at"`
}

// TickOutcome reports what a single guarded tick did to a record. Event is
// non-nil exactly when the tick drove a terminal transition and credited the
// reservation back.
type TickOutcome struct {
	Process *Process
	Event   *LifecycleEvent
}

// EventType maps the terminal state to the event type string.
func (e *LifecycleEvent) EventType() string {
	switch e.State {
	case ProcessStateCompleted:
		return EventProcessCompleted
	case ProcessStateFailed:
		return EventProcessFailed
	case ProcessStateCancelled:
		return EventProcessCancelled
	}
	return ""
}

// ToJSON converts the event to JSON bytes.
func (e *LifecycleEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON converts JSON bytes to the event.
func (e *LifecycleEvent) FromJSON(data []byte) error {
	return json.Unmarshal(data, e)
}
