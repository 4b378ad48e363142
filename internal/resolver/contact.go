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

	"github.com/google/uuid"
)

// matchRule is one row of the contact resolution table: if the payload carries the key,
// look it up; the first hit wins.
type matchRule struct {
	name   string
	key    func(in ContactInput) *string
	lookup func(q store.Queries, ctx context.Context, v string) (domain.Contact, error)
	get    func(c domain.Contact) *string
	set    func(c *domain.Contact, v *string)

	// identity keys are never rewritten once a row carries one.
	identity bool
}

// contactRules is evaluated in order: external_id, then phone, then email.
var contactRules = []matchRule{
	{
		name:   "external_id",
		key:    func(in ContactInput) *string { return in.ExternalID },
		lookup: store.Queries.ContactByExternalID,
		get:    func(c domain.Contact) *string { return c.ExternalID },
		set:    func(c *domain.Contact, v *string) { c.ExternalID = v },

		identity: true,
	},
	{
		name:   "phone",
		key:    func(in ContactInput) *string { return in.Phone },
		lookup: store.Queries.ContactByPhone,
		get:    func(c domain.Contact) *string { return c.Phone },
		set:    func(c *domain.Contact, v *string) { c.Phone = v },
	},
	{
		name:   "email",
		key:    func(in ContactInput) *string { return in.Email },
		lookup: store.Queries.ContactByEmail,
		get:    func(c domain.Contact) *string { return c.Email },
		set:    func(c *domain.Contact, v *string) { c.Email = v },
	},
}

// ContactService upserts contacts by external_id, then phone, then email.
type ContactService struct {
	store  store.Store
	events events.Publisher
	log    *slog.Logger
	clock  func() time.Time

	// RejectAmbiguous fails an upsert whose payload keys resolve to different rows
	// instead of updating the first match and reporting the conflicts.
	RejectAmbiguous bool
}

func NewContactService(st store.Store, pub events.Publisher, log *slog.Logger) *ContactService {
	return &ContactService{
		store:  st,
		events: events.OrNop(pub),
		log:    logger.OrDefault(log),
		clock:  time.Now,
	}
}

func (s *ContactService) Upsert(ctx context.Context, in ContactInput) (UpsertResult[domain.Contact], error) {
	in = in.normalized()
	if !in.hasKey() {
		return UpsertResult[domain.Contact]{}, apperr.Invalid("one of external_id, phone, email is required")
	}

	var res UpsertResult[domain.Contact]
	err := store.WithRetry(ctx, s.store, "contact upsert", func(ctx context.Context, tx store.Tx) error {
		res = UpsertResult[domain.Contact]{}

		matched, rule, err := resolve(ctx, tx, in)
		if err != nil {
			return err
		}
		if rule == "" {
			c := domain.Contact{}
			for _, r := range contactRules {
				r.set(&c, r.key(in))
			}
			in.applyProfile(&c)
			if err := tx.InsertContact(ctx, &c); err != nil {
				return err
			}
			res.Record = c
			res.Created = true
			return nil
		}

		conflicts, err := s.mergeKeys(ctx, tx, &matched, in)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 && s.RejectAmbiguous {
			return apperr.Conflict("contact keys belong to different contacts: %s", strings.Join(conflicts, ", "))
		}
		in.applyProfile(&matched)
		if err := tx.UpdateContact(ctx, &matched); err != nil {
			return err
		}
		res.Record = matched
		res.MatchedBy = rule
		res.Conflicts = conflicts
		return nil
	})
	if err != nil {
		return UpsertResult[domain.Contact]{}, err
	}

	log := logger.FromOr(ctx, s.log)
	if len(res.Conflicts) > 0 {
		log.Warn("contact upsert skipped keys owned by another contact",
			"contact_id", res.Record.ID,
			"matched_by", res.MatchedBy,
			"conflicts", res.Conflicts,
		)
	}
	log.Debug("contact upserted", "contact_id", res.Record.ID, "created", res.Created, "matched_by", res.MatchedBy)
	s.events.Publish(ctx, events.New(events.TypeContactUpserted, res.Record.ID, res.Record, s.clock()))
	return res, nil
}

// resolve walks contactRules and returns the first match and the rule name ("" if none).
func resolve(ctx context.Context, q store.Queries, in ContactInput) (domain.Contact, string, error) {
	for _, r := range contactRules {
		v := r.key(in)
		if v == nil {
			continue
		}
		c, err := r.lookup(q, ctx, *v)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.Contact{}, "", err
		}
		return c, r.name, nil
	}
	return domain.Contact{}, "", nil
}

// mergeKeys writes payload keys onto c unless another row already owns them, or c
// already carries a different identity key. It returns the names of the keys skipped.
func (s *ContactService) mergeKeys(ctx context.Context, q store.Queries, c *domain.Contact, in ContactInput) ([]string, error) {
	var conflicts []string
	for _, r := range contactRules {
		v := r.key(in)
		if v == nil {
			continue
		}
		cur := r.get(*c)
		if cur != nil && *cur == *v {
			continue
		}
		if cur != nil && r.identity {
			conflicts = append(conflicts, r.name)
			continue
		}
		owner, err := r.lookup(q, ctx, *v)
		switch {
		case errors.Is(err, store.ErrNotFound):
			r.set(c, v)
		case err != nil:
			return nil, err
		case owner.ID != c.ID:
			conflicts = append(conflicts, r.name)
		}
	}
	return conflicts, nil
}

// Get returns NotFound when the id is unknown.
func (s *ContactService) Get(ctx context.Context, id uuid.UUID) (domain.Contact, error) {
	c, err := s.store.ContactByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Contact{}, apperr.NotFound("contact not found")
	}
	return c, err
}

func trimmed(v *string, lower bool) *string {
	if v == nil {
		return nil
	}
	out := strings.TrimSpace(*v)
	if lower {
		out = strings.ToLower(out)
	}
	if out == "" {
		return nil
	}
	return &out
}
