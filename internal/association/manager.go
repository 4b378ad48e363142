package association

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"outbound-crm/internal/apperr"
	"outbound-crm/internal/domain"
	"outbound-crm/internal/events"
	"outbound-crm/internal/store"
	"outbound-crm/pkg/logger"

	"github.com/google/uuid"
)

// LinkInput carries project-scoped preferences. Nil fields are left unchanged.
type LinkInput struct {
	RoleForProject     *string    `json:"role_for_project,omitempty"`
	RoleConfidence     *float64   `json:"role_confidence,omitempty" binding:"omitempty,gte=0,lte=1"`
	SuppressForProject *bool      `json:"suppress_for_project,omitempty"`
	LastContactedAt    *time.Time `json:"last_contacted_at,omitempty"`
}

func (in LinkInput) validate() error {
	if in.RoleConfidence != nil && (*in.RoleConfidence < 0 || *in.RoleConfidence > 1) {
		return apperr.Invalid("role_confidence must be between 0 and 1")
	}
	return nil
}

func (in LinkInput) apply(pc *domain.ProjectContact) {
	if in.RoleForProject != nil {
		pc.RoleForProject = *in.RoleForProject
	}
	if in.RoleConfidence != nil {
		pc.RoleConfidence = *in.RoleConfidence
	}
	if in.SuppressForProject != nil {
		pc.SuppressForProject = *in.SuppressForProject
	}
	if in.LastContactedAt != nil {
		v := in.LastContactedAt.UTC()
		pc.LastContactedAt = &v
	}
}

// Result reports whether Link inserted the association.
type Result struct {
	Link    domain.ProjectContact `json:"link"`
	Created bool                  `json:"created"`
}

// Manager maintains the project/contact association ledger. Links are never deleted.
type Manager struct {
	store  store.Store
	events events.Publisher
	log    *slog.Logger
	clock  func() time.Time
}

func NewManager(st store.Store, pub events.Publisher, log *slog.Logger) *Manager {
	return &Manager{
		store:  st,
		events: events.OrNop(pub),
		log:    logger.OrDefault(log),
		clock:  time.Now,
	}
}

// Link finds the (project, contact) association and updates it in place, or inserts it.
func (m *Manager) Link(ctx context.Context, projectID, contactID uuid.UUID, in LinkInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	var res Result
	err := store.WithRetry(ctx, m.store, "link", func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = m.LinkTx(ctx, tx, projectID, contactID, in)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	logger.FromOr(ctx, m.log).Debug("contact linked",
		"project_id", projectID,
		"contact_id", contactID,
		"created", res.Created,
	)
	m.events.Publish(ctx, events.New(events.TypeContactLinked, res.Link.ID, res.Link, m.clock()))
	return res, nil
}

// LinkTx is Link inside a caller-owned transaction. It emits no event; the caller owns
// the commit and decides what to publish.
func (m *Manager) LinkTx(ctx context.Context, tx store.Tx, projectID, contactID uuid.UUID, in LinkInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	if _, err := tx.ProjectByID(ctx, projectID); err != nil {
		return Result{}, notFound(err, "project not found")
	}
	if _, err := tx.ContactByID(ctx, contactID); err != nil {
		return Result{}, notFound(err, "contact not found")
	}

	pc, err := tx.ProjectContact(ctx, projectID, contactID)
	switch {
	case err == nil:
		in.apply(&pc)
		if err := tx.UpdateProjectContact(ctx, &pc); err != nil {
			return Result{}, err
		}
		return Result{Link: pc}, nil
	case errors.Is(err, store.ErrNotFound):
		pc = domain.ProjectContact{ProjectID: projectID, ContactID: contactID}
		in.apply(&pc)
		if err := tx.InsertProjectContact(ctx, &pc); err != nil {
			return Result{}, err
		}
		return Result{Link: pc, Created: true}, nil
	default:
		return Result{}, err
	}
}

// Get returns the association or NotFound.
func (m *Manager) Get(ctx context.Context, projectID, contactID uuid.UUID) (domain.ProjectContact, error) {
	pc, err := m.store.ProjectContact(ctx, projectID, contactID)
	if err != nil {
		return domain.ProjectContact{}, notFound(err, "association not found")
	}
	return pc, nil
}

func notFound(err error, reason string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("%s", reason)
	}
	return err
}
