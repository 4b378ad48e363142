package audit

import "time"

// Event is an immutable, append-only audit record.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor capture is best-effort; audit failures never block the audited flow.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// Actor is the free-form identity supplied by the caller (created_by, removed_by).
	Actor string `json:"actor,omitempty" db:"actor"`

	// TargetID is the internal key of the affected row.
	TargetID string `json:"target_id,omitempty" db:"target_id"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeTerminalCreated      EventType = "terminal_created"
	EventTypeTerminalRemoved      EventType = "terminal_removed"
	EventTypeTerminalRemoveDenied EventType = "terminal_remove_denied"
)
