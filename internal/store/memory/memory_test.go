package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"outbound-crm/internal/domain"
	"outbound-crm/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestWithTx_RollbackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.InsertProject(ctx, &domain.Project{ExternalID: "p-1"}))
		// visible inside the transaction
		_, err := tx.ProjectByExternalID(ctx, "p-1")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.ProjectByExternalID(ctx, "p-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestInsertProject_UniqueExternalID(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertProject(ctx, &domain.Project{ExternalID: "p-1"}); err != nil {
			return err
		}
		return tx.InsertProject(ctx, &domain.Project{ExternalID: "p-1"})
	})
	assert.ErrorIs(t, err, store.ErrUniqueViolation)
}

func TestInsertContact_UniqueNaturalKeys(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertContact(ctx, &domain.Contact{Phone: strptr("+1555"), Email: strptr("a@x.io")})
	}))

	for _, c := range []domain.Contact{
		{Phone: strptr("+1555")},
		{Email: strptr("a@x.io")},
	} {
		c := c
		err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertContact(ctx, &c)
		})
		assert.ErrorIs(t, err, store.ErrUniqueViolation)
	}

	// Nil keys never collide.
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertContact(ctx, &domain.Contact{ExternalID: strptr("c-2")}); err != nil {
			return err
		}
		return tx.InsertContact(ctx, &domain.Contact{ExternalID: strptr("c-3")})
	}))
}

func TestActiveTerminal_ScopeMatching(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	past := now.Add(-time.Minute)

	projectID := uuid.New()
	contactID := uuid.New()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, ts := range []domain.TerminalSession{
			{Scope: domain.ScopeProject, ProjectID: &projectID, ContactID: &contactID, Reason: "pair opt-out"},
			{Scope: domain.ScopeContact, ContactID: &contactID, Reason: "expired", ExpiresAt: &past},
		} {
			ts := ts
			if err := tx.InsertTerminal(ctx, &ts); err != nil {
				return err
			}
		}
		return nil
	}))

	_, ok, err := s.ActiveTerminal(ctx, store.TerminalQuery{Scope: domain.ScopeProject, ProjectID: &projectID}, now)
	require.NoError(t, err)
	assert.False(t, ok, "pair-narrowed row must not block the whole project")

	got, ok, err := s.ActiveTerminal(ctx, store.TerminalQuery{Scope: domain.ScopeProject, ProjectID: &projectID, ContactID: &contactID}, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pair opt-out", got.Reason)

	_, ok, err = s.ActiveTerminal(ctx, store.TerminalQuery{Scope: domain.ScopeContact, ContactID: &contactID}, now)
	require.NoError(t, err)
	assert.False(t, ok, "expired row is inactive")

	_, ok, err = s.ActiveTerminal(ctx, store.TerminalQuery{Scope: domain.ScopeGlobal}, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListCandidates_FiltersAndOrders(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	earlier := now.Add(-2 * time.Hour)
	later := now.Add(2 * time.Hour)

	type row struct {
		project domain.Project
		contact domain.Contact
		link    domain.ProjectContact
	}
	rows := []row{
		{domain.Project{ExternalID: "low"}, domain.Contact{Phone: strptr("+1")}, domain.ProjectContact{}},
		{domain.Project{ExternalID: "high-cooled", PriorityScore: 10, NextCallEligibleAt: &earlier}, domain.Contact{Phone: strptr("+2")}, domain.ProjectContact{}},
		{domain.Project{ExternalID: "high-null", PriorityScore: 10}, domain.Contact{Phone: strptr("+3")}, domain.ProjectContact{}},
		{domain.Project{ExternalID: "cooldown", PriorityScore: 50, NextCallEligibleAt: &later}, domain.Contact{Phone: strptr("+4")}, domain.ProjectContact{}},
		{domain.Project{ExternalID: "suppressed", PriorityScore: 50, CallSuppressed: true}, domain.Contact{Phone: strptr("+5")}, domain.ProjectContact{}},
		{domain.Project{ExternalID: "dnc", PriorityScore: 50}, domain.Contact{Phone: strptr("+6"), DoNotCall: true}, domain.ProjectContact{}},
		{domain.Project{ExternalID: "no-phone", PriorityScore: 50}, domain.Contact{Email: strptr("x@y.z")}, domain.ProjectContact{}},
		{domain.Project{ExternalID: "pair-suppressed", PriorityScore: 50}, domain.Contact{Phone: strptr("+8")}, domain.ProjectContact{SuppressForProject: true}},
	}
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for i := range rows {
			r := &rows[i]
			if err := tx.InsertProject(ctx, &r.project); err != nil {
				return err
			}
			if err := tx.InsertContact(ctx, &r.contact); err != nil {
				return err
			}
			r.link.ProjectID, r.link.ContactID = r.project.ID, r.contact.ID
			if err := tx.InsertProjectContact(ctx, &r.link); err != nil {
				return err
			}
		}
		return nil
	}))

	got, err := s.ListCandidates(ctx, now, 10, 0)
	require.NoError(t, err)
	var ids []string
	for _, c := range got {
		ids = append(ids, c.Project.ExternalID)
	}
	assert.Equal(t, []string{"high-null", "high-cooled", "low"}, ids)

	page, err := s.ListCandidates(ctx, now, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "high-cooled", page[0].Project.ExternalID)

	empty, err := s.ListCandidates(ctx, now, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpdateCallSessionOutcome_KeepsIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()
	started := time.Unix(1700000000, 0).UTC()

	var sess domain.CallSession
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p := domain.Project{ExternalID: "p"}
		if err := tx.InsertProject(ctx, &p); err != nil {
			return err
		}
		sess = domain.CallSession{ProjectID: p.ID, CallType: domain.CallTypeAI, CallStatus: "queued", StartedAt: started}
		return tx.InsertCallSession(ctx, &sess)
	}))

	other := uuid.New()
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		patch := sess
		patch.ProjectID = other
		patch.StartedAt = started.Add(time.Hour)
		patch.CallStatus = "completed"
		return tx.UpdateCallSessionOutcome(ctx, &patch)
	}))

	got, err := s.CallSessionByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ProjectID, got.ProjectID)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Equal(t, domain.CallStatus("completed"), got.CallStatus)
}

func TestUpdateCallSessionOutcome_StaleWriteCannotReopen(t *testing.T) {
	s := New()
	ctx := context.Background()
	ended := time.Unix(1700000600, 0).UTC()

	var sess domain.CallSession
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p := domain.Project{ExternalID: "p"}
		if err := tx.InsertProject(ctx, &p); err != nil {
			return err
		}
		sess = domain.CallSession{ProjectID: p.ID, CallType: domain.CallTypeAI, CallStatus: "in_progress", StartedAt: time.Unix(1700000000, 0).UTC()}
		return tx.InsertCallSession(ctx, &sess)
	}))
	stale := sess

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		closed := sess
		closed.CallStatus = "completed"
		closed.EndedAt = &ended
		return tx.UpdateCallSessionOutcome(ctx, &closed)
	}))

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		stale.Outcome = "late note"
		return tx.UpdateCallSessionOutcome(ctx, &stale)
	})
	assert.ErrorIs(t, err, store.ErrSessionEnded)

	got, err := s.CallSessionByID(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.True(t, got.EndedAt.Equal(ended))
	assert.Empty(t, got.Outcome)
}
