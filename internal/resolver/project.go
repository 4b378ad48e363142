package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"outbound-crm/internal/apperr"
	"outbound-crm/internal/domain"
	"outbound-crm/internal/events"
	"outbound-crm/internal/store"
	"outbound-crm/pkg/logger"
)

// ProjectService upserts projects by external_id.
type ProjectService struct {
	store  store.Store
	events events.Publisher
	log    *slog.Logger
	clock  func() time.Time
}

func NewProjectService(st store.Store, pub events.Publisher, log *slog.Logger) *ProjectService {
	return &ProjectService{
		store:  st,
		events: events.OrNop(pub),
		log:    logger.OrDefault(log),
		clock:  time.Now,
	}
}

// Upsert finds the project by external_id inside one transaction and either applies the
// provided fields to it or inserts a new row. Repeating the same input is a no-op on identity.
func (s *ProjectService) Upsert(ctx context.Context, in ProjectInput) (UpsertResult[domain.Project], error) {
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if in.ExternalID == "" {
		return UpsertResult[domain.Project]{}, apperr.Invalid("external_id is required")
	}
	if in.Budget != nil && *in.Budget < 0 {
		return UpsertResult[domain.Project]{}, apperr.Invalid("budget must be >= 0")
	}

	var res UpsertResult[domain.Project]
	err := store.WithRetry(ctx, s.store, "project upsert", func(ctx context.Context, tx store.Tx) error {
		res = UpsertResult[domain.Project]{}

		existing, err := tx.ProjectByExternalID(ctx, in.ExternalID)
		switch {
		case err == nil:
			in.apply(&existing)
			if err := tx.UpdateProject(ctx, &existing); err != nil {
				return err
			}
			res.Record = existing
			res.MatchedBy = "external_id"
			return nil
		case errors.Is(err, store.ErrNotFound):
			p := domain.Project{ExternalID: in.ExternalID, Country: domain.DefaultCountry}
			in.apply(&p)
			if err := tx.InsertProject(ctx, &p); err != nil {
				return err
			}
			res.Record = p
			res.Created = true
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return UpsertResult[domain.Project]{}, err
	}

	logger.FromOr(ctx, s.log).Debug("project upserted",
		"project_id", res.Record.ID,
		"external_id", res.Record.ExternalID,
		"created", res.Created,
	)
	s.events.Publish(ctx, events.New(events.TypeProjectUpserted, res.Record.ID, res.Record, s.clock()))
	return res, nil
}

// GetByExternalID returns NotFound when no project carries externalID.
func (s *ProjectService) GetByExternalID(ctx context.Context, externalID string) (domain.Project, error) {
	p, err := s.store.ProjectByExternalID(ctx, strings.TrimSpace(externalID))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Project{}, apperr.NotFound("project not found")
	}
	return p, err
}
