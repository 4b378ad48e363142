package store

import (
	"context"
	"errors"
	"time"

	"outbound-crm/internal/domain"

	"github.com/google/uuid"
)

// NOTE: implementations must provide the constraint shapes the services rely on:
// - projects.external_id UNIQUE
// - contacts.external_id, contacts.phone, contacts.email UNIQUE (when not null)
// - project_contacts (project_id, contact_id) UNIQUE
// - call_sessions.external_id UNIQUE (when not null)
// - terminal_sessions.external_id UNIQUE (when not null)

var (
	// ErrNotFound is returned by single-row lookups that match nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrUniqueViolation is returned when a write collides with a unique constraint.
	ErrUniqueViolation = errors.New("store: unique violation")
	// ErrSessionEnded is returned when an outcome write targets a session whose
	// ended_at is already set.
	ErrSessionEnded = errors.New("store: call session already ended")
)

// Store is the transactional persistence boundary.
type Store interface {
	Queries

	// WithTx runs fn in a single transaction. fn's error rolls everything back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Queries are the reads available both inside and outside a transaction.
type Queries interface {
	ProjectByID(ctx context.Context, id uuid.UUID) (domain.Project, error)
	ProjectByExternalID(ctx context.Context, externalID string) (domain.Project, error)

	ContactByID(ctx context.Context, id uuid.UUID) (domain.Contact, error)
	ContactByExternalID(ctx context.Context, externalID string) (domain.Contact, error)
	ContactByPhone(ctx context.Context, phone string) (domain.Contact, error)
	ContactByEmail(ctx context.Context, email string) (domain.Contact, error)

	ProjectContact(ctx context.Context, projectID, contactID uuid.UUID) (domain.ProjectContact, error)

	CallSessionByID(ctx context.Context, id uuid.UUID) (domain.CallSession, error)
	CallSessionByExternalID(ctx context.Context, externalID string) (domain.CallSession, error)
	// CountCallSessions counts sessions for subject with started_at >= since.
	CountCallSessions(ctx context.Context, subject domain.Subject, since time.Time) (int, error)
	// ListCallSessions returns a project's sessions with from <= started_at < to, oldest first.
	ListCallSessions(ctx context.Context, projectID uuid.UUID, from, to time.Time) ([]domain.CallSession, error)

	TerminalByID(ctx context.Context, id uuid.UUID) (domain.TerminalSession, error)
	TerminalByExternalID(ctx context.Context, externalID string) (domain.TerminalSession, error)
	// ActiveTerminal returns the earliest-created terminal session matching q that is active at now.
	ActiveTerminal(ctx context.Context, q TerminalQuery, now time.Time) (domain.TerminalSession, bool, error)

	// ListCandidates returns storage-filtered candidate pairs ordered by
	// priority_score DESC, next_call_eligible_at ASC NULLS FIRST, link id ASC.
	ListCandidates(ctx context.Context, now time.Time, limit, offset int) ([]domain.Candidate, error)
}

// TerminalQuery selects terminal sessions by scope.
//
// For ScopeProject, ContactID nil matches project-wide rows only (contact key null);
// a non-nil ContactID matches rows narrowed to that pair.
// For ScopeContact, ContactID is required. For ScopeGlobal both are ignored.
type TerminalQuery struct {
	Scope     domain.Scope
	ProjectID *uuid.UUID
	ContactID *uuid.UUID
}

// Tx is a unit of work. Writes stamp updated_at (and created_at on insert) themselves.
type Tx interface {
	Queries

	InsertProject(ctx context.Context, p *domain.Project) error
	UpdateProject(ctx context.Context, p *domain.Project) error
	// TouchProjectCooldown sets last_contacted_at and next_call_eligible_at.
	TouchProjectCooldown(ctx context.Context, id uuid.UUID, lastContacted, nextEligible time.Time) error

	InsertContact(ctx context.Context, c *domain.Contact) error
	UpdateContact(ctx context.Context, c *domain.Contact) error

	InsertProjectContact(ctx context.Context, pc *domain.ProjectContact) error
	UpdateProjectContact(ctx context.Context, pc *domain.ProjectContact) error

	InsertCallSession(ctx context.Context, s *domain.CallSession) error
	// UpdateCallSessionOutcome writes only outcome fields; identity columns are never touched.
	// It applies only while the stored row has no ended_at and returns ErrSessionEnded otherwise.
	UpdateCallSessionOutcome(ctx context.Context, s *domain.CallSession) error

	InsertTerminal(ctx context.Context, t *domain.TerminalSession) error
	ExpireTerminal(ctx context.Context, id uuid.UUID, at time.Time) error
}

// IsRetryable reports whether err is a unique-constraint race worth one retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}
