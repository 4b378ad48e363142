package eligibility

import (
	"context"
	"testing"
	"time"

	"outbound-crm/internal/apperr"
	"outbound-crm/internal/association"
	"outbound-crm/internal/calls"
	"outbound-crm/internal/domain"
	"outbound-crm/internal/resolver"
	"outbound-crm/internal/terminal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, e *Engine, limit int) []string {
	t.Helper()
	var out []string
	for c, err := range e.ListEligible(context.Background(), limit) {
		require.NoError(t, err)
		out = append(out, c.Project.ExternalID+"/"+*c.Contact.ExternalID)
	}
	return out
}

func TestListEligible_OrderAndRevalidation(t *testing.T) {
	f := newFixture(t)

	blocked := f.project(t, "blocked", func(p *domain.Project) { p.PriorityScore = 20 })
	high := f.project(t, "high", func(p *domain.Project) { p.PriorityScore = 10 })
	low := f.project(t, "low", func(p *domain.Project) { p.PriorityScore = 1 })
	tired := f.project(t, "tired", func(p *domain.Project) { p.PriorityScore = 5 })

	f.link(t, blocked, f.contact(t, "a", "+1001", nil), false)
	f.link(t, high, f.contact(t, "b", "+1002", nil), false)
	f.link(t, low, f.contact(t, "c", "+1003", nil), false)
	f.link(t, tired, f.contact(t, "d", "+1004", nil), false)

	// Neither is expressible as a storage filter; evaluate has to catch them.
	f.block(t, terminal.CreateInput{Scope: "project", ProjectID: &blocked.ID})
	f.calls(t, tired.ID, nil, f.now.Add(-3*time.Hour), f.now.Add(-2*time.Hour), f.now.Add(-time.Hour))

	assert.Equal(t, []string{"high/b", "low/c"}, collect(t, f.eng, 10))
	assert.Equal(t, []string{"high/b"}, collect(t, f.eng, 1))
}

func TestListEligible_PagesPastFilteredCandidates(t *testing.T) {
	f := newFixture(t)

	for i, ext := range []string{"p1", "p2", "p3", "p4"} {
		p := f.project(t, ext, func(p *domain.Project) { p.PriorityScore = 100 - i })
		f.link(t, p, f.contact(t, "c"+ext, "+200"+ext, nil), false)
		if i < 3 {
			f.block(t, terminal.CreateInput{Scope: "project", ProjectID: &p.ID})
		}
	}
	assert.Equal(t, []string{"p4/cp4"}, collect(t, f.eng, 1))
}

func TestListEligible_DefaultAndMaxLimit(t *testing.T) {
	f := newFixture(t)
	eng := NewEngine(f.st, f.reg, domain.DefaultPolicy(), Options{BulkDefaultLimit: 2, BulkConcurrency: 1}).
		WithClock(func() time.Time { return f.now })

	for _, ext := range []string{"p1", "p2", "p3"} {
		p := f.project(t, ext, nil)
		f.link(t, p, f.contact(t, "c"+ext, "+300"+ext, nil), false)
	}
	assert.Len(t, collect(t, eng, 0), 2)
	assert.Len(t, collect(t, eng, MaxBulkLimit+1), 3)
}

func TestListEligible_SingleUse(t *testing.T) {
	f := newFixture(t)
	p := f.project(t, "p", nil)
	f.link(t, p, f.contact(t, "c", "+1", nil), false)

	seq := f.eng.ListEligible(context.Background(), 5)
	n := 0
	for _, err := range seq {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 1, n)

	var got error
	for _, err := range seq {
		got = err
	}
	assert.ErrorIs(t, got, ErrSequenceConsumed)
}

func TestListEligible_StopsOnStoreError(t *testing.T) {
	f := newFixture(t)
	p := f.project(t, "p", nil)
	f.link(t, p, f.contact(t, "c", "+1", nil), false)

	eng := NewEngine(brokenStore{f.st}, f.reg, domain.DefaultPolicy(), Options{}).WithClock(func() time.Time { return f.now })
	var errs []error
	for _, err := range eng.ListEligible(context.Background(), 5) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], apperr.ErrUpstreamUnavailable)
}

func TestScenario_CallStartsCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := func() time.Time { return f.now }

	projects := resolver.NewProjectService(f.st, nil, nil)
	contacts := resolver.NewContactService(f.st, nil, nil)
	links := association.NewManager(f.st, nil, nil)
	ledger := calls.NewLedger(f.st, links, domain.DefaultPolicy(), nil, nil).WithClock(clock)

	proj, err := projects.Upsert(ctx, resolver.ProjectInput{ExternalID: "proj-1", CallSuppressed: ptr(false)})
	require.NoError(t, err)
	c, err := contacts.Upsert(ctx, resolver.ContactInput{ExternalID: ptr("c-1"), Phone: ptr("+1555")})
	require.NoError(t, err)
	_, err = links.Link(ctx, proj.Record.ID, c.Record.ID, association.LinkInput{})
	require.NoError(t, err)

	ref := &ContactRef{ExternalID: ptr("c-1")}
	d, err := f.eng.IsEligible(ctx, "proj-1", ref)
	require.NoError(t, err)
	assert.True(t, d.Eligible)
	assert.Equal(t, []string{"proj-1/c-1"}, collect(t, f.eng, 0))

	_, err = ledger.Create(ctx, calls.CreateInput{
		ProjectExternalID: "proj-1",
		ContactExternalID: ptr("c-1"),
		CallType:          "ai",
		CallStatus:        "completed",
	})
	require.NoError(t, err)

	d, err = f.eng.IsEligible(ctx, "proj-1", ref)
	require.NoError(t, err)
	assert.False(t, d.Eligible)
	assert.Equal(t, CheckProjectCooldown, d.Check)
	assert.Contains(t, d.Reason, "cooldown")
	assert.Empty(t, collect(t, f.eng, 0))

	f.now = f.now.Add(24*time.Hour - time.Second)
	d, err = f.eng.IsEligible(ctx, "proj-1", ref)
	require.NoError(t, err)
	assert.False(t, d.Eligible)

	f.now = f.now.Add(time.Second)
	d, err = f.eng.IsEligible(ctx, "proj-1", ref)
	require.NoError(t, err)
	assert.True(t, d.Eligible)
}
