package audit

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only: there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithClock overrides the timestamp source.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" || e.TargetID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// TerminalDetails is the metadata attached to terminal-state audit events.
type TerminalDetails struct {
	Scope           string     `json:"scope"`
	ProjectID       string     `json:"project_id,omitempty"`
	ContactID       string     `json:"contact_id,omitempty"`
	Reason          string     `json:"reason"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	OverrideAllowed bool       `json:"override_allowed"`
}

func (s *Service) LogTerminalCreated(ctx context.Context, actor, terminalID string, d TerminalDetails) error {
	return s.appendTerminal(ctx, EventTypeTerminalCreated, actor, terminalID, "terminal state created", d)
}

func (s *Service) LogTerminalRemoved(ctx context.Context, actor, terminalID string, d TerminalDetails) error {
	return s.appendTerminal(ctx, EventTypeTerminalRemoved, actor, terminalID, "terminal state removed", d)
}

// LogTerminalRemoveDenied records an attempted removal of a non-overridable block.
func (s *Service) LogTerminalRemoveDenied(ctx context.Context, actor, terminalID string, d TerminalDetails) error {
	return s.appendTerminal(ctx, EventTypeTerminalRemoveDenied, actor, terminalID, "override not allowed", d)
}

func (s *Service) appendTerminal(ctx context.Context, t EventType, actor, terminalID, msg string, d TerminalDetails) error {
	meta, err := sonic.MarshalString(d)
	if err != nil {
		return err
	}
	return s.Append(ctx, Event{
		Type:     t,
		Actor:    actor,
		TargetID: terminalID,
		Message:  msg,
		Metadata: meta,
	})
}
