package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names a CRM-sync event. Values are part of the wire contract.
type Type string

const (
	TypeProjectUpserted    Type = "project.upserted"
	TypeContactUpserted    Type = "contact.upserted"
	TypeContactLinked      Type = "project_contact.linked"
	TypeCallSessionCreated Type = "call_session.created"
	TypeCallSessionUpdated Type = "call_session.updated"
	TypeTerminalCreated    Type = "terminal_session.created"
	TypeTerminalRemoved    Type = "terminal_session.removed"
)

// Event is a best-effort notification for the external CRM. It is emitted after
// the owning transaction commits and never affects the write's outcome.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	EntityID   string    `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

func New(t Type, entityID uuid.UUID, data any, now time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		EntityID:   entityID.String(),
		OccurredAt: now.UTC(),
		Data:       data,
	}
}

// Publisher accepts events without blocking the caller and without returning errors.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// OrNop returns p, or Nop when p is nil.
func OrNop(p Publisher) Publisher {
	if p == nil {
		return Nop{}
	}
	return p
}

// Sink delivers one event to an external system.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
