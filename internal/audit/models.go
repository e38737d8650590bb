package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - event_id is required; every record belongs to one event.
// - actor and ip capture are best-effort; do not block gate flows on audit failures.
type Event struct {
	ID      string `json:"id" db:"id"`
	EventID string `json:"event_id" db:"event_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// Actor is the authenticated operator causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorName   string `json:"actor_name,omitempty" db:"actor_name"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the resolved client IP of the terminal.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	ParticipantID string `json:"participant_id,omitempty" db:"participant_id"`
	AccessLogID   string `json:"access_log_id,omitempty" db:"access_log_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAdminAction EventType = "admin_action"
	EventTypeForceEntry  EventType = "force_entry"
	EventTypeForceExit   EventType = "force_exit"
	EventTypeFastCheckIn EventType = "fast_check_in"
)
