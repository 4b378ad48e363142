package terminal

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"outbound-crm/internal/apperr"
	"outbound-crm/internal/audit"
	"outbound-crm/internal/domain"
	"outbound-crm/internal/events"
	"outbound-crm/internal/store"
	"outbound-crm/pkg/logger"

	"github.com/google/uuid"
)

// CreateInput describes a new block. The project may be named by internal or external
// key, likewise the contact; giving both forms that disagree is a conflict.
type CreateInput struct {
	ExternalID *string `json:"external_id,omitempty"`
	Scope      string  `json:"scope" binding:"required,oneof=project contact global"`

	ProjectID         *uuid.UUID `json:"project_id,omitempty"`
	ProjectExternalID *string    `json:"project_external_id,omitempty"`
	ContactID         *uuid.UUID `json:"contact_id,omitempty"`
	ContactExternalID *string    `json:"contact_external_id,omitempty"`

	Reason          string     `json:"reason" binding:"required"`
	CreatedBy       string     `json:"created_by,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	OverrideAllowed bool       `json:"override_allowed"`
}

// CreateResult reports whether Create inserted a row or returned an existing one.
type CreateResult struct {
	Terminal domain.TerminalSession `json:"terminal_session"`
	Created  bool                   `json:"created"`
}

// Status is the answer to "is a block active here?".
type Status struct {
	Active     bool       `json:"active"`
	Reason     string     `json:"reason,omitempty"`
	TerminalID *uuid.UUID `json:"terminal_id,omitempty"`
}

func statusOf(ts domain.TerminalSession, ok bool) Status {
	if !ok {
		return Status{}
	}
	id := ts.ID
	return Status{Active: true, Reason: ts.Reason, TerminalID: &id}
}

// Registry owns terminal states. A block, once active, overrides every other
// eligibility signal until it expires or is removed.
type Registry struct {
	store  store.Store
	audit  *audit.Service
	events events.Publisher
	log    *slog.Logger
	clock  func() time.Time
}

func NewRegistry(st store.Store, auditSvc *audit.Service, pub events.Publisher, log *slog.Logger) *Registry {
	return &Registry{
		store:  st,
		audit:  auditSvc,
		events: events.OrNop(pub),
		log:    logger.OrDefault(log),
		clock:  time.Now,
	}
}

// WithClock overrides the time source used for activity checks and removal stamps.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

func (r *Registry) now() time.Time { return r.clock().UTC() }

// Create inserts a block. A replay carrying a known external_id returns the stored
// row before any input validation, so retries succeed after the block has expired.
func (r *Registry) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	now := r.now()

	var res CreateResult
	err := store.WithRetry(ctx, r.store, "terminal create", func(ctx context.Context, tx store.Tx) error {
		res = CreateResult{}
		if in.ExternalID != nil {
			existing, err := tx.TerminalByExternalID(ctx, *in.ExternalID)
			if err == nil {
				res.Terminal = existing
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		scope, err := validate(&in, now)
		if err != nil {
			return err
		}

		projectID, err := resolveProject(ctx, tx, in)
		if err != nil {
			return err
		}
		contactID, err := resolveContact(ctx, tx, in)
		if err != nil {
			return err
		}
		if err := scope.CheckKeys(projectID, contactID); err != nil {
			return apperr.Conflict("%v", err)
		}

		ts := domain.TerminalSession{
			ExternalID:      in.ExternalID,
			Scope:           scope,
			ProjectID:       projectID,
			ContactID:       contactID,
			Reason:          in.Reason,
			CreatedBy:       in.CreatedBy,
			OverrideAllowed: in.OverrideAllowed,
		}
		if in.ExpiresAt != nil {
			v := in.ExpiresAt.UTC()
			ts.ExpiresAt = &v
		}
		if err := tx.InsertTerminal(ctx, &ts); err != nil {
			return err
		}
		res = CreateResult{Terminal: ts, Created: true}
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}
	if !res.Created {
		return res, nil
	}

	ts := res.Terminal
	r.logAudit(ctx, r.auditCreated, ts.CreatedBy, ts)
	logger.FromOr(ctx, r.log).Info("terminal state created",
		"terminal_id", ts.ID,
		"scope", ts.Scope.String(),
		"reason", ts.Reason,
	)
	r.events.Publish(ctx, events.New(events.TypeTerminalCreated, ts.ID, ts, r.now()))
	return res, nil
}

func validate(in *CreateInput, now time.Time) (domain.Scope, error) {
	scope, err := domain.ParseScope(in.Scope)
	if err != nil {
		return scope, apperr.Invalid("%v", err)
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if in.Reason == "" {
		return scope, apperr.Invalid("reason is required")
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return scope, apperr.Invalid("expires_at must be in the future")
	}
	return scope, nil
}

func resolveProject(ctx context.Context, q store.Queries, in CreateInput) (*uuid.UUID, error) {
	var id *uuid.UUID
	if in.ProjectExternalID != nil {
		p, err := q.ProjectByExternalID(ctx, strings.TrimSpace(*in.ProjectExternalID))
		if err != nil {
			return nil, notFound(err, "project not found")
		}
		id = &p.ID
	}
	if in.ProjectID != nil {
		if id != nil && *id != *in.ProjectID {
			return nil, apperr.Conflict("project_id and project_external_id name different projects")
		}
		p, err := q.ProjectByID(ctx, *in.ProjectID)
		if err != nil {
			return nil, notFound(err, "project not found")
		}
		id = &p.ID
	}
	return id, nil
}

func resolveContact(ctx context.Context, q store.Queries, in CreateInput) (*uuid.UUID, error) {
	var id *uuid.UUID
	if in.ContactID != nil {
		c, err := q.ContactByID(ctx, *in.ContactID)
		if err != nil {
			return nil, notFound(err, "contact not found")
		}
		id = &c.ID
	}
	if in.ContactExternalID != nil {
		c, err := q.ContactByExternalID(ctx, strings.TrimSpace(*in.ContactExternalID))
		if err != nil {
			return nil, notFound(err, "contact not found")
		}
		if id != nil && *id != c.ID {
			return nil, apperr.Conflict("contact_id and contact_external_id name different contacts")
		}
		id = &c.ID
	}
	return id, nil
}

// IsActive reports whether a block of scope is active for resourceID now.
// Global ignores resourceID. A project check only sees project-wide rows.
func (r *Registry) IsActive(ctx context.Context, scope domain.Scope, resourceID *uuid.UUID) (Status, error) {
	return r.ActiveAt(ctx, scope, resourceID, r.now())
}

// ActiveAt is IsActive evaluated at a caller-supplied instant.
func (r *Registry) ActiveAt(ctx context.Context, scope domain.Scope, resourceID *uuid.UUID, now time.Time) (Status, error) {
	q := store.TerminalQuery{Scope: scope}
	switch scope {
	case domain.ScopeGlobal:
	case domain.ScopeProject:
		if resourceID == nil {
			return Status{}, apperr.Invalid("project scope requires a resource id")
		}
		q.ProjectID = resourceID
	case domain.ScopeContact:
		if resourceID == nil {
			return Status{}, apperr.Invalid("contact scope requires a resource id")
		}
		q.ContactID = resourceID
	default:
		return Status{}, apperr.Invalid("invalid scope %v", scope)
	}
	ts, ok, err := r.store.ActiveTerminal(ctx, q, now.UTC())
	if err != nil {
		return Status{}, err
	}
	return statusOf(ts, ok), nil
}

// IsActiveForPair checks project-scope blocks narrowed to one contact.
func (r *Registry) IsActiveForPair(ctx context.Context, projectID, contactID uuid.UUID) (Status, error) {
	return r.ActiveForPairAt(ctx, projectID, contactID, r.now())
}

func (r *Registry) ActiveForPairAt(ctx context.Context, projectID, contactID uuid.UUID, now time.Time) (Status, error) {
	ts, ok, err := r.store.ActiveTerminal(ctx, store.TerminalQuery{
		Scope:     domain.ScopeProject,
		ProjectID: &projectID,
		ContactID: &contactID,
	}, now.UTC())
	if err != nil {
		return Status{}, err
	}
	return statusOf(ts, ok), nil
}

// Remove soft-deletes a block by setting expires_at to now. Blocks without
// override_allowed are PermissionDenied and stay as they are. An already expired
// block keeps its earlier expiry.
func (r *Registry) Remove(ctx context.Context, id uuid.UUID, actor string) (domain.TerminalSession, error) {
	var (
		out    domain.TerminalSession
		denied bool
	)
	err := r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		denied = false
		ts, err := tx.TerminalByID(ctx, id)
		if err != nil {
			return notFound(err, "terminal session not found")
		}
		out = ts
		if !ts.OverrideAllowed {
			denied = true
			return nil
		}
		now := r.now()
		if !ts.ActiveAt(now) {
			return nil
		}
		if err := tx.ExpireTerminal(ctx, id, now); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return domain.TerminalSession{}, err
	}

	if denied {
		r.logAudit(ctx, r.auditDenied, actor, out)
		logger.FromOr(ctx, r.log).Warn("terminal removal denied", "terminal_id", id, "actor", actor)
		return domain.TerminalSession{}, apperr.Denied("terminal session does not allow override")
	}

	out, err = r.store.TerminalByID(ctx, id)
	if err != nil {
		return domain.TerminalSession{}, err
	}
	r.logAudit(ctx, r.auditRemoved, actor, out)
	logger.FromOr(ctx, r.log).Info("terminal state removed", "terminal_id", id, "actor", actor)
	r.events.Publish(ctx, events.New(events.TypeTerminalRemoved, out.ID, out, r.now()))
	return out, nil
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (domain.TerminalSession, error) {
	ts, err := r.store.TerminalByID(ctx, id)
	if err != nil {
		return domain.TerminalSession{}, notFound(err, "terminal session not found")
	}
	return ts, nil
}

func (r *Registry) auditCreated(ctx context.Context, actor string, ts domain.TerminalSession) error {
	return r.audit.LogTerminalCreated(ctx, actor, ts.ID.String(), details(ts))
}

func (r *Registry) auditRemoved(ctx context.Context, actor string, ts domain.TerminalSession) error {
	return r.audit.LogTerminalRemoved(ctx, actor, ts.ID.String(), details(ts))
}

func (r *Registry) auditDenied(ctx context.Context, actor string, ts domain.TerminalSession) error {
	return r.audit.LogTerminalRemoveDenied(ctx, actor, ts.ID.String(), details(ts))
}

// logAudit is best-effort: failures are logged, never returned.
func (r *Registry) logAudit(ctx context.Context, fn func(context.Context, string, domain.TerminalSession) error, actor string, ts domain.TerminalSession) {
	if r.audit == nil {
		return
	}
	if err := fn(ctx, actor, ts); err != nil {
		logger.FromOr(ctx, r.log).Error("audit append failed", "terminal_id", ts.ID, "err", err)
	}
}

func details(ts domain.TerminalSession) audit.TerminalDetails {
	d := audit.TerminalDetails{
		Scope:           ts.Scope.String(),
		Reason:          ts.Reason,
		ExpiresAt:       ts.ExpiresAt,
		OverrideAllowed: ts.OverrideAllowed,
	}
	if ts.ProjectID != nil {
		d.ProjectID = ts.ProjectID.String()
	}
	if ts.ContactID != nil {
		d.ContactID = ts.ContactID.String()
	}
	return d
}

func notFound(err error, reason string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("%s", reason)
	}
	return err
}
