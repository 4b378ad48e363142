package calls

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"outbound-crm/internal/apperr"
	"outbound-crm/internal/association"
	"outbound-crm/internal/domain"
	"outbound-crm/internal/events"
	"outbound-crm/internal/store"
	"outbound-crm/pkg/logger"

	"github.com/google/uuid"
)

// Ledger is the append-only call-session history. Recording a call also starts the
// project's cooldown and stamps the pair's last contact, all in one transaction.
type Ledger struct {
	store  store.Store
	links  *association.Manager
	policy domain.Policy
	events events.Publisher
	log    *slog.Logger
	clock  func() time.Time
}

func NewLedger(st store.Store, links *association.Manager, policy domain.Policy, pub events.Publisher, log *slog.Logger) *Ledger {
	return &Ledger{
		store:  st,
		links:  links,
		policy: policy.WithDefaults(),
		events: events.OrNop(pub),
		log:    logger.OrDefault(log),
		clock:  time.Now,
	}
}

// WithClock overrides the time source used for started_at defaults and cooldown stamps.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

func (l *Ledger) now() time.Time { return l.clock().UTC() }

func (l *Ledger) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	callType := domain.CallType(strings.TrimSpace(in.CallType))
	if !callType.Valid() {
		return CreateResult{}, apperr.Invalid("call_type must be ai or human")
	}
	status := strings.TrimSpace(in.CallStatus)
	if status == "" {
		return CreateResult{}, apperr.Invalid("call_status is required")
	}
	if in.DurationSeconds < 0 {
		return CreateResult{}, apperr.Invalid("duration_seconds must be >= 0")
	}

	var res CreateResult
	err := store.WithRetry(ctx, l.store, "call session create", func(ctx context.Context, tx store.Tx) error {
		res = CreateResult{}
		if in.ExternalID != nil {
			existing, err := tx.CallSessionByExternalID(ctx, *in.ExternalID)
			if err == nil {
				res.Session = existing
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		project, err := tx.ProjectByExternalID(ctx, strings.TrimSpace(in.ProjectExternalID))
		if err != nil {
			return notFound(err, "project not found")
		}
		contactID, err := resolveContact(ctx, tx, in)
		if err != nil {
			return err
		}

		now := l.now()
		s := domain.CallSession{
			ExternalID:       in.ExternalID,
			ProjectID:        project.ID,
			ContactID:        contactID,
			CallType:         callType,
			CallStatus:       domain.CallStatus(status),
			Outcome:          in.Outcome,
			Sentiment:        in.Sentiment,
			Escalated:        in.Escalated,
			EscalationReason: in.EscalationReason,
			Transcript:       in.Transcript,
			RecordingURL:     in.RecordingURL,
			DurationSeconds:  in.DurationSeconds,
			StartedAt:        now,
		}
		if in.StartedAt != nil {
			s.StartedAt = in.StartedAt.UTC()
		}
		if in.EndedAt != nil {
			v := in.EndedAt.UTC()
			if v.Before(s.StartedAt) {
				return apperr.Invalid("ended_at must not be before started_at")
			}
			s.EndedAt = &v
		}

		if err := tx.InsertCallSession(ctx, &s); err != nil {
			return err
		}
		if err := tx.TouchProjectCooldown(ctx, project.ID, now, now.Add(l.policy.Cooldown)); err != nil {
			return err
		}
		if contactID != nil {
			if _, err := l.links.LinkTx(ctx, tx, project.ID, *contactID, association.LinkInput{LastContactedAt: &now}); err != nil {
				return err
			}
		}
		res = CreateResult{Session: s, Created: true}
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}
	if !res.Created {
		return res, nil
	}

	logger.FromOr(ctx, l.log).Info("call session recorded",
		"call_session_id", res.Session.ID,
		"project_id", res.Session.ProjectID,
		"call_type", res.Session.CallType,
		"call_status", res.Session.CallStatus,
	)
	l.events.Publish(ctx, events.New(events.TypeCallSessionCreated, res.Session.ID, res.Session, l.now()))
	return res, nil
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

// Update merges outcome fields into an open session. A session whose ended_at is set
// is closed and rejects further updates.
func (l *Ledger) Update(ctx context.Context, id uuid.UUID, p Patch) (domain.CallSession, error) {
	if p.CallStatus != nil && strings.TrimSpace(*p.CallStatus) == "" {
		return domain.CallSession{}, apperr.Invalid("call_status must not be empty")
	}
	if p.DurationSeconds != nil && *p.DurationSeconds < 0 {
		return domain.CallSession{}, apperr.Invalid("duration_seconds must be >= 0")
	}

	var out domain.CallSession
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.CallSessionByID(ctx, id)
		if err != nil {
			return notFound(err, "call session not found")
		}
		if cur.EndedAt != nil {
			return apperr.Conflict("call session already ended")
		}
		p.apply(&cur)
		if cur.EndedAt != nil && cur.EndedAt.Before(cur.StartedAt) {
			return apperr.Invalid("ended_at must not be before started_at")
		}
		if err := tx.UpdateCallSessionOutcome(ctx, &cur); err != nil {
			if errors.Is(err, store.ErrSessionEnded) {
				return apperr.Conflict("call session already ended")
			}
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return domain.CallSession{}, err
	}

	logger.FromOr(ctx, l.log).Debug("call session updated", "call_session_id", id, "call_status", out.CallStatus)
	l.events.Publish(ctx, events.New(events.TypeCallSessionUpdated, out.ID, out, l.now()))
	return out, nil
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (domain.CallSession, error) {
	s, err := l.store.CallSessionByID(ctx, id)
	if err != nil {
		return domain.CallSession{}, notFound(err, "call session not found")
	}
	return s, nil
}

func notFound(err error, reason string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("%s", reason)
	}
	return err
}
