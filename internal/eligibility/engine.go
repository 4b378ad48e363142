package eligibility

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"outbound-crm/internal/apperr"
	"outbound-crm/internal/domain"
	"outbound-crm/internal/store"
	"outbound-crm/internal/terminal"
	"outbound-crm/pkg/logger"
)

const (
	DefaultBulkLimit       = 50
	MaxBulkLimit           = 500
	DefaultBulkConcurrency = 8
)

// Options tunes the bulk path. Zero values take the defaults above.
type Options struct {
	BulkDefaultLimit int
	BulkConcurrency  int
	Logger           *slog.Logger
}

// Engine decides whether a (project, contact) pair may be called.
//
// Priority (first failure wins):
//  1. project exists
//  2. project call_suppressed
//  3. global terminal state
//  4. project terminal state
//  5. project cooldown
//  6. project fatigue
//  7. contact: exists, do_not_call, contact terminal, suppress_for_project,
//     contact fatigue, pair terminal
//
// Decisions have no side effects. Store failures are returned as errors and never
// turn into an allow.
type Engine struct {
	store     store.Queries
	terminals *terminal.Registry
	policy    domain.Policy

	bulkLimit   int
	concurrency int

	log   *slog.Logger
	clock func() time.Time
}

func NewEngine(st store.Queries, terminals *terminal.Registry, policy domain.Policy, opts Options) *Engine {
	e := &Engine{
		store:       st,
		terminals:   terminals,
		policy:      policy.WithDefaults(),
		bulkLimit:   opts.BulkDefaultLimit,
		concurrency: opts.BulkConcurrency,
		log:         logger.OrDefault(opts.Logger),
		clock:       time.Now,
	}
	if e.bulkLimit <= 0 {
		e.bulkLimit = DefaultBulkLimit
	}
	if e.bulkLimit > MaxBulkLimit {
		e.bulkLimit = MaxBulkLimit
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultBulkConcurrency
	}
	return e
}

func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

func (e *Engine) Policy() domain.Policy { return e.policy }

func (e *Engine) now() time.Time { return e.clock().UTC() }

// IsEligible evaluates one project, optionally narrowed to one contact.
func (e *Engine) IsEligible(ctx context.Context, projectExternalID string, contact *ContactRef) (Decision, error) {
	projectExternalID = strings.TrimSpace(projectExternalID)
	if projectExternalID == "" {
		return Decision{}, apperr.Invalid("project_external_id is required")
	}
	if contact != nil && contact.empty() {
		return Decision{}, apperr.Invalid("contact_id or contact_external_id is required")
	}

	p, err := e.store.ProjectByExternalID(ctx, projectExternalID)
	if errors.Is(err, store.ErrNotFound) {
		return e.logged(ctx, projectExternalID, deny(CheckProjectNotFound, "project not found")), nil
	}
	if err != nil {
		return Decision{}, err
	}

	var in subject
	in.project = p
	if contact != nil {
		c, ok, err := e.lookupContact(ctx, contact)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			in.contact = &c
			link, err := e.store.ProjectContact(ctx, p.ID, c.ID)
			switch {
			case err == nil:
				in.link = &link
			case !errors.Is(err, store.ErrNotFound):
				return Decision{}, err
			}
		} else {
			in.contactMissing = true
		}
	}

	d, err := e.evaluate(ctx, in, e.now())
	if err != nil {
		return Decision{}, err
	}
	return e.logged(ctx, projectExternalID, d), nil
}

func (e *Engine) lookupContact(ctx context.Context, ref *ContactRef) (domain.Contact, bool, error) {
	var (
		c   domain.Contact
		err error
	)
	if ref.ID != nil {
		c, err = e.store.ContactByID(ctx, *ref.ID)
	} else {
		c, err = e.store.ContactByExternalID(ctx, strings.TrimSpace(*ref.ExternalID))
	}
	if errors.Is(err, store.ErrNotFound) {
		return domain.Contact{}, false, nil
	}
	if err != nil {
		return domain.Contact{}, false, err
	}
	if ref.ID != nil && ref.ExternalID != nil && *ref.ExternalID != "" {
		if c.ExternalID == nil || *c.ExternalID != strings.TrimSpace(*ref.ExternalID) {
			return domain.Contact{}, false, apperr.Conflict("contact_id and contact_external_id name different contacts")
		}
	}
	return c, true, nil
}

// subject is everything evaluate needs, already loaded. The single-pair and bulk
// paths both build one and share evaluate.
type subject struct {
	project        domain.Project
	contact        *domain.Contact
	contactMissing bool
	link           *domain.ProjectContact
}

func (e *Engine) evaluate(ctx context.Context, in subject, now time.Time) (Decision, error) {
	p := in.project

	if p.CallSuppressed {
		return deny(CheckProjectSuppressed, "project call suppressed"), nil
	}

	st, err := e.terminals.ActiveAt(ctx, domain.ScopeGlobal, nil, now)
	if err != nil {
		return Decision{}, err
	}
	if st.Active {
		return deny(CheckGlobalTerminal, "global terminal state active: %s", st.Reason), nil
	}

	st, err = e.terminals.ActiveAt(ctx, domain.ScopeProject, &p.ID, now)
	if err != nil {
		return Decision{}, err
	}
	if st.Active {
		return deny(CheckProjectTerminal, "project terminal state active: %s", st.Reason), nil
	}

	if p.NextCallEligibleAt != nil && p.NextCallEligibleAt.After(now) {
		return deny(CheckProjectCooldown, "project in cooldown until %s", p.NextCallEligibleAt.UTC().Format(time.RFC3339)), nil
	}

	if d, err := e.fatigue(ctx, domain.ProjectSubject(p.ID), now); err != nil || !d.Eligible {
		return d, err
	}

	if in.contactMissing {
		return deny(CheckContactNotFound, "contact not found"), nil
	}
	if in.contact == nil {
		return allow(), nil
	}
	c := in.contact

	if c.DoNotCall {
		return deny(CheckContactDoNotCall, "contact marked do not call"), nil
	}

	st, err = e.terminals.ActiveAt(ctx, domain.ScopeContact, &c.ID, now)
	if err != nil {
		return Decision{}, err
	}
	if st.Active {
		return deny(CheckContactTerminal, "contact terminal state active: %s", st.Reason), nil
	}

	if in.link != nil && in.link.SuppressForProject {
		return deny(CheckContactSuppressed, "contact suppressed for project"), nil
	}

	if d, err := e.fatigue(ctx, domain.ContactSubject(c.ID), now); err != nil || !d.Eligible {
		return d, err
	}

	st, err = e.terminals.ActiveForPairAt(ctx, p.ID, c.ID, now)
	if err != nil {
		return Decision{}, err
	}
	if st.Active {
		return deny(CheckPairTerminal, "project-contact terminal state active: %s", st.Reason), nil
	}

	return allow(), nil
}

// CheckFatigue counts the subject's calls since the start of today and over the
// last 7 days against the policy caps.
func (e *Engine) CheckFatigue(ctx context.Context, s domain.Subject) (Decision, error) {
	return e.fatigue(ctx, s, e.now())
}

func (e *Engine) fatigue(ctx context.Context, s domain.Subject, now time.Time) (Decision, error) {
	var daily, weekly Check
	switch s.Kind {
	case domain.SubjectProject:
		daily, weekly = CheckProjectDailyLimit, CheckProjectWeeklyLimit
	case domain.SubjectContact:
		daily, weekly = CheckContactDailyLimit, CheckContactWeeklyLimit
	default:
		return Decision{}, apperr.Invalid("unknown fatigue subject %q", s.Kind)
	}

	n, err := e.store.CountCallSessions(ctx, s, e.policy.StartOfDay(now))
	if err != nil {
		return Decision{}, err
	}
	if n >= e.policy.DailyCap {
		return deny(daily, "%s daily call limit reached (%d/%d)", s.Kind, n, e.policy.DailyCap), nil
	}

	n, err = e.store.CountCallSessions(ctx, s, now.Add(-7*24*time.Hour))
	if err != nil {
		return Decision{}, err
	}
	if n >= e.policy.WeeklyCap {
		return deny(weekly, "%s weekly call limit reached (%d/%d)", s.Kind, n, e.policy.WeeklyCap), nil
	}
	return allow(), nil
}

func (e *Engine) logged(ctx context.Context, projectExternalID string, d Decision) Decision {
	if !d.Eligible {
		logger.FromOr(ctx, e.log).Debug("call not eligible",
			"project_external_id", projectExternalID,
			"check", d.Check,
			"reason", d.Reason,
		)
	}
	return d
}
