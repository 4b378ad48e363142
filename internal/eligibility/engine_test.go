package eligibility

import (
	"context"
	"testing"
	"time"

	"outbound-crm/internal/apperr"
	"outbound-crm/internal/audit"
	"outbound-crm/internal/domain"
	"outbound-crm/internal/store"
	"outbound-crm/internal/store/memory"
	"outbound-crm/internal/terminal"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	st  *memory.Store
	reg *terminal.Registry
	eng *Engine
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{st: memory.New(), now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.st.Now = clock
	f.reg = terminal.NewRegistry(f.st, audit.NewService(audit.NewMemoryRepo()), nil, nil).WithClock(clock)
	f.eng = NewEngine(f.st, f.reg, domain.DefaultPolicy(), Options{}).WithClock(clock)
	return f
}

func (f *fixture) tx(t *testing.T, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	require.NoError(t, f.st.WithTx(context.Background(), fn))
}

func (f *fixture) project(t *testing.T, ext string, mutate func(*domain.Project)) domain.Project {
	t.Helper()
	p := domain.Project{ExternalID: ext, Country: domain.DefaultCountry}
	if mutate != nil {
		mutate(&p)
	}
	f.tx(t, func(ctx context.Context, tx store.Tx) error { return tx.InsertProject(ctx, &p) })
	return p
}

func (f *fixture) contact(t *testing.T, ext, phone string, mutate func(*domain.Contact)) domain.Contact {
	t.Helper()
	c := domain.Contact{ExternalID: ptr(ext), Phone: ptr(phone)}
	if mutate != nil {
		mutate(&c)
	}
	f.tx(t, func(ctx context.Context, tx store.Tx) error { return tx.InsertContact(ctx, &c) })
	return c
}

func (f *fixture) link(t *testing.T, p domain.Project, c domain.Contact, suppress bool) domain.ProjectContact {
	t.Helper()
	pc := domain.ProjectContact{ProjectID: p.ID, ContactID: c.ID, SuppressForProject: suppress}
	f.tx(t, func(ctx context.Context, tx store.Tx) error { return tx.InsertProjectContact(ctx, &pc) })
	return pc
}

func (f *fixture) calls(t *testing.T, projectID uuid.UUID, contactID *uuid.UUID, at ...time.Time) {
	t.Helper()
	f.tx(t, func(ctx context.Context, tx store.Tx) error {
		for _, ts := range at {
			s := domain.CallSession{
				ProjectID:  projectID,
				ContactID:  contactID,
				CallType:   domain.CallTypeAI,
				CallStatus: domain.CallStatusCompleted,
				StartedAt:  ts,
			}
			if err := tx.InsertCallSession(ctx, &s); err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *fixture) block(t *testing.T, in terminal.CreateInput) {
	t.Helper()
	if in.Reason == "" {
		in.Reason = "blocked"
	}
	_, err := f.reg.Create(context.Background(), in)
	require.NoError(t, err)
}

func TestIsEligible_ProjectChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.project(t, "open", nil)
	f.project(t, "suppressed", func(p *domain.Project) { p.CallSuppressed = true })
	future := f.now.Add(2 * time.Hour)
	f.project(t, "cooling", func(p *domain.Project) { p.NextCallEligibleAt = &future })
	past := f.now.Add(-time.Second)
	f.project(t, "cooled", func(p *domain.Project) { p.NextCallEligibleAt = &past })
	exact := f.now
	f.project(t, "cooled-exact", func(p *domain.Project) { p.NextCallEligibleAt = &exact })

	cases := []struct {
		ext    string
		check  Check
		reason string
	}{
		{"open", CheckPassed, "eligible"},
		{"missing", CheckProjectNotFound, "project not found"},
		{"suppressed", CheckProjectSuppressed, "project call suppressed"},
		{"cooling", CheckProjectCooldown, "project in cooldown until 2026-05-01T12:00:00Z"},
		{"cooled", CheckPassed, "eligible"},
		{"cooled-exact", CheckPassed, "eligible"},
	}
	for _, tc := range cases {
		t.Run(tc.ext, func(t *testing.T) {
			d, err := f.eng.IsEligible(ctx, tc.ext, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.check == CheckPassed, d.Eligible)
			assert.Equal(t, tc.check, d.Check)
			assert.Equal(t, tc.reason, d.Reason)
		})
	}
}

func TestIsEligible_FatigueBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	two := f.project(t, "two-today", nil)
	f.calls(t, two.ID, nil, f.now.Add(-2*time.Hour), f.now.Add(-time.Hour))

	three := f.project(t, "three-today", nil)
	f.calls(t, three.ID, nil, f.now.Add(-3*time.Hour), f.now.Add(-2*time.Hour), f.now.Add(-time.Hour))

	d, err := f.eng.IsEligible(ctx, "two-today", nil)
	require.NoError(t, err)
	assert.True(t, d.Eligible)

	d, err = f.eng.IsEligible(ctx, "three-today", nil)
	require.NoError(t, err)
	assert.False(t, d.Eligible)
	assert.Equal(t, CheckProjectDailyLimit, d.Check)
	assert.Equal(t, "project daily call limit reached (3/3)", d.Reason)

	// Yesterday's calls do not count toward today.
	yesterday := f.project(t, "yesterday", nil)
	f.calls(t, yesterday.ID, nil, f.now.Add(-11*time.Hour), f.now.Add(-12*time.Hour), f.now.Add(-13*time.Hour))
	d, err = f.eng.IsEligible(ctx, "yesterday", nil)
	require.NoError(t, err)
	assert.True(t, d.Eligible)
}

func TestIsEligible_WeeklyLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.project(t, "busy-week", nil)
	var at []time.Time
	for i := 0; i < 10; i++ {
		at = append(at, f.now.Add(-72*time.Hour).Add(time.Duration(i)*time.Minute))
	}
	f.calls(t, p.ID, nil, at...)

	d, err := f.eng.IsEligible(ctx, "busy-week", nil)
	require.NoError(t, err)
	assert.Equal(t, CheckProjectWeeklyLimit, d.Check)
	assert.Equal(t, "project weekly call limit reached (10/10)", d.Reason)

	// Calls older than seven days fall out of the window.
	f.now = f.now.Add(5 * 24 * time.Hour)
	d, err = f.eng.IsEligible(ctx, "busy-week", nil)
	require.NoError(t, err)
	assert.True(t, d.Eligible)
}

func TestIsEligible_TerminalPrecedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	future := f.now.Add(time.Hour)
	p := f.project(t, "proj", func(p *domain.Project) { p.NextCallEligibleAt = &future })
	f.calls(t, p.ID, nil, f.now.Add(-3*time.Hour), f.now.Add(-2*time.Hour), f.now.Add(-time.Hour))

	f.block(t, terminal.CreateInput{Scope: "project", ProjectID: &p.ID, Reason: "closed won"})
	d, err := f.eng.IsEligible(ctx, "proj", nil)
	require.NoError(t, err)
	assert.Equal(t, CheckProjectTerminal, d.Check)
	assert.Equal(t, "project terminal state active: closed won", d.Reason)

	f.block(t, terminal.CreateInput{Scope: "global", Reason: "holiday"})
	d, err = f.eng.IsEligible(ctx, "proj", nil)
	require.NoError(t, err)
	assert.Equal(t, CheckGlobalTerminal, d.Check)
	assert.Equal(t, "global terminal state active: holiday", d.Reason)
}

func TestIsEligible_ExpiredTerminalDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.project(t, "proj", nil)
	f.block(t, terminal.CreateInput{Scope: "project", ProjectID: &p.ID, ExpiresAt: ptr(f.now.Add(time.Hour))})

	d, err := f.eng.IsEligible(ctx, "proj", nil)
	require.NoError(t, err)
	assert.False(t, d.Eligible)

	f.now = f.now.Add(time.Hour)
	d, err = f.eng.IsEligible(ctx, "proj", nil)
	require.NoError(t, err)
	assert.True(t, d.Eligible)
}

func TestIsEligible_ContactChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.project(t, "proj", nil)
	other := f.project(t, "other", nil)
	f.project(t, "third", nil)

	ok := f.contact(t, "ok", "+1001", nil)
	f.link(t, p, ok, false)

	dnc := f.contact(t, "dnc", "+1002", func(c *domain.Contact) { c.DoNotCall = true })
	f.link(t, p, dnc, false)

	blocked := f.contact(t, "blocked", "+1003", nil)
	f.block(t, terminal.CreateInput{Scope: "contact", ContactID: &blocked.ID, Reason: "opted out"})

	suppressed := f.contact(t, "suppressed", "+1004", nil)
	f.link(t, p, suppressed, true)

	tired := f.contact(t, "tired", "+1005", nil)
	f.calls(t, other.ID, &tired.ID, f.now.Add(-3*time.Hour), f.now.Add(-2*time.Hour), f.now.Add(-time.Hour))

	paired := f.contact(t, "paired", "+1006", nil)
	f.block(t, terminal.CreateInput{Scope: "project", ProjectID: &p.ID, ContactID: &paired.ID, Reason: "asked not to be called about this job"})

	unlinked := f.contact(t, "unlinked", "+1007", nil)

	cases := []struct {
		name   string
		ref    *ContactRef
		check  Check
		reason string
	}{
		{"eligible", &ContactRef{ExternalID: ptr("ok")}, CheckPassed, "eligible"},
		{"by id", &ContactRef{ID: &ok.ID}, CheckPassed, "eligible"},
		{"unlinked contact", &ContactRef{ID: &unlinked.ID}, CheckPassed, "eligible"},
		{"missing", &ContactRef{ExternalID: ptr("nobody")}, CheckContactNotFound, "contact not found"},
		{"missing id", &ContactRef{ID: ptr(uuid.New())}, CheckContactNotFound, "contact not found"},
		{"do not call", &ContactRef{ExternalID: ptr("dnc")}, CheckContactDoNotCall, "contact marked do not call"},
		{"contact terminal", &ContactRef{ExternalID: ptr("blocked")}, CheckContactTerminal, "contact terminal state active: opted out"},
		{"suppressed for project", &ContactRef{ExternalID: ptr("suppressed")}, CheckContactSuppressed, "contact suppressed for project"},
		{"contact fatigue", &ContactRef{ExternalID: ptr("tired")}, CheckContactDailyLimit, "contact daily call limit reached (3/3)"},
		{"pair terminal", &ContactRef{ExternalID: ptr("paired")}, CheckPairTerminal, "project-contact terminal state active: asked not to be called about this job"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := f.eng.IsEligible(ctx, "proj", tc.ref)
			require.NoError(t, err)
			assert.Equal(t, tc.check == CheckPassed, d.Eligible)
			assert.Equal(t, tc.check, d.Check)
			assert.Equal(t, tc.reason, d.Reason)
		})
	}

	// The pair block is invisible to the project-only decision and to other projects.
	d, err := f.eng.IsEligible(ctx, "proj", nil)
	require.NoError(t, err)
	assert.True(t, d.Eligible)
	d, err = f.eng.IsEligible(ctx, "third", &ContactRef{ExternalID: ptr("paired")})
	require.NoError(t, err)
	assert.True(t, d.Eligible)
}

func TestIsEligible_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.project(t, "proj", nil)
	c := f.contact(t, "c-1", "+1", nil)
	f.contact(t, "c-2", "+2", nil)

	_, err := f.eng.IsEligible(ctx, " ", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.eng.IsEligible(ctx, "proj", &ContactRef{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.eng.IsEligible(ctx, "proj", &ContactRef{ID: &c.ID, ExternalID: ptr("c-2")})
	assert.ErrorIs(t, err, apperr.ErrValidationConflict)
}

// brokenStore fails every session count, as a lost database connection would.
type brokenStore struct {
	*memory.Store
}

func (brokenStore) CountCallSessions(context.Context, domain.Subject, time.Time) (int, error) {
	return 0, apperr.Unavailable("database unavailable", context.DeadlineExceeded)
}

func TestIsEligible_StoreFailureIsNotAnAllow(t *testing.T) {
	f := newFixture(t)
	f.project(t, "proj", nil)
	eng := NewEngine(brokenStore{f.st}, f.reg, domain.DefaultPolicy(), Options{}).WithClock(func() time.Time { return f.now })

	d, err := eng.IsEligible(context.Background(), "proj", nil)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	assert.False(t, d.Eligible)
}

func TestCheckFatigue_CustomPolicy(t *testing.T) {
	f := newFixture(t)
	p := f.project(t, "proj", nil)
	f.calls(t, p.ID, nil, f.now.Add(-time.Hour))

	eng := NewEngine(f.st, f.reg, domain.Policy{DailyCap: 1}, Options{}).WithClock(func() time.Time { return f.now })
	d, err := eng.CheckFatigue(context.Background(), domain.ProjectSubject(p.ID))
	require.NoError(t, err)
	assert.Equal(t, CheckProjectDailyLimit, d.Check)
	assert.Equal(t, "project daily call limit reached (1/1)", d.Reason)

	d, err = eng.CheckFatigue(context.Background(), domain.ContactSubject(uuid.New()))
	require.NoError(t, err)
	assert.True(t, d.Eligible)

	_, err = eng.CheckFatigue(context.Background(), domain.Subject{Kind: "team"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestIsEligible_TerminalExpiryUsesEngineInstant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.project(t, "proj-1", nil)

	_, err := f.reg.Create(ctx, terminal.CreateInput{Scope: "global", Reason: "freeze", ExpiresAt: ptr(f.now.Add(time.Hour))})
	require.NoError(t, err)

	d, err := f.eng.IsEligible(ctx, "proj-1", nil)
	require.NoError(t, err)
	assert.Equal(t, CheckGlobalTerminal, d.Check)

	later := f.now.Add(2 * time.Hour)
	f.eng.WithClock(func() time.Time { return later })
	d, err = f.eng.IsEligible(ctx, "proj-1", nil)
	require.NoError(t, err)
	assert.True(t, d.Eligible, "registry clock still reads the earlier instant")
}
