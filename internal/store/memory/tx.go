package memory

import (
	"context"
	"time"

	"outbound-crm/internal/domain"
	"outbound-crm/internal/store"

	"github.com/google/uuid"
)

// txn operates on a private copy of the state while the store lock is held.
type txn struct {
	st  *state
	now func() time.Time
}

var _ store.Tx = (*txn)(nil)

func (t *txn) ProjectByID(ctx context.Context, id uuid.UUID) (domain.Project, error) {
	return t.st.projectByID(id)
}

func (t *txn) ProjectByExternalID(ctx context.Context, externalID string) (domain.Project, error) {
	return t.st.projectByExternalID(externalID)
}

func (t *txn) ContactByID(ctx context.Context, id uuid.UUID) (domain.Contact, error) {
	return t.st.contactByID(id)
}

func (t *txn) ContactByExternalID(ctx context.Context, externalID string) (domain.Contact, error) {
	return t.st.contactBy(byExternalID(externalID))
}

func (t *txn) ContactByPhone(ctx context.Context, phone string) (domain.Contact, error) {
	return t.st.contactBy(byPhone(phone))
}

func (t *txn) ContactByEmail(ctx context.Context, email string) (domain.Contact, error) {
	return t.st.contactBy(byEmail(email))
}

func (t *txn) ProjectContact(ctx context.Context, projectID, contactID uuid.UUID) (domain.ProjectContact, error) {
	return t.st.projectContact(projectID, contactID)
}

func (t *txn) CallSessionByID(ctx context.Context, id uuid.UUID) (domain.CallSession, error) {
	return t.st.sessionByID(id)
}

func (t *txn) CallSessionByExternalID(ctx context.Context, externalID string) (domain.CallSession, error) {
	return t.st.sessionByExternalID(externalID)
}

func (t *txn) CountCallSessions(ctx context.Context, subject domain.Subject, since time.Time) (int, error) {
	return t.st.countSessions(subject, since), nil
}

func (t *txn) ListCallSessions(ctx context.Context, projectID uuid.UUID, from, to time.Time) ([]domain.CallSession, error) {
	return t.st.listSessions(projectID, from, to), nil
}

func (t *txn) TerminalByID(ctx context.Context, id uuid.UUID) (domain.TerminalSession, error) {
	return t.st.terminalByID(id)
}

func (t *txn) TerminalByExternalID(ctx context.Context, externalID string) (domain.TerminalSession, error) {
	return t.st.terminalByExternalID(externalID)
}

func (t *txn) ActiveTerminal(ctx context.Context, q store.TerminalQuery, now time.Time) (domain.TerminalSession, bool, error) {
	out, ok := t.st.activeTerminal(q, now)
	return out, ok, nil
}

func (t *txn) ListCandidates(ctx context.Context, now time.Time, limit, offset int) ([]domain.Candidate, error) {
	return t.st.listCandidates(now, limit, offset), nil
}

/* ===================== WRITES ===================== */

func (t *txn) InsertProject(ctx context.Context, p *domain.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, exists := t.st.projects[p.ID]; exists {
		return store.ErrUniqueViolation
	}
	if _, err := t.st.projectByExternalID(p.ExternalID); err == nil {
		return store.ErrUniqueViolation
	}
	now := t.now()
	p.CreatedAt, p.UpdatedAt = now, now
	t.st.projects[p.ID] = *p
	return nil
}

func (t *txn) UpdateProject(ctx context.Context, p *domain.Project) error {
	cur, ok := t.st.projects[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	if other, err := t.st.projectByExternalID(p.ExternalID); err == nil && other.ID != p.ID {
		return store.ErrUniqueViolation
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = t.now()
	t.st.projects[p.ID] = *p
	return nil
}

func (t *txn) TouchProjectCooldown(ctx context.Context, id uuid.UUID, lastContacted, nextEligible time.Time) error {
	p, ok := t.st.projects[id]
	if !ok {
		return store.ErrNotFound
	}
	p.LastContactedAt = &lastContacted
	p.NextCallEligibleAt = &nextEligible
	p.UpdatedAt = t.now()
	t.st.projects[id] = p
	return nil
}

func (t *txn) contactKeysTaken(c *domain.Contact) bool {
	for _, other := range t.st.contacts {
		if other.ID == c.ID {
			continue
		}
		if c.ExternalID != nil && other.ExternalID != nil && *c.ExternalID == *other.ExternalID {
			return true
		}
		if c.Phone != nil && other.Phone != nil && *c.Phone == *other.Phone {
			return true
		}
		if c.Email != nil && other.Email != nil && *c.Email == *other.Email {
			return true
		}
	}
	return false
}

func (t *txn) InsertContact(ctx context.Context, c *domain.Contact) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if _, exists := t.st.contacts[c.ID]; exists || t.contactKeysTaken(c) {
		return store.ErrUniqueViolation
	}
	now := t.now()
	c.CreatedAt, c.UpdatedAt = now, now
	t.st.contacts[c.ID] = *c
	return nil
}

func (t *txn) UpdateContact(ctx context.Context, c *domain.Contact) error {
	cur, ok := t.st.contacts[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	if t.contactKeysTaken(c) {
		return store.ErrUniqueViolation
	}
	c.CreatedAt = cur.CreatedAt
	c.UpdatedAt = t.now()
	t.st.contacts[c.ID] = *c
	return nil
}

func (t *txn) InsertProjectContact(ctx context.Context, pc *domain.ProjectContact) error {
	if pc.ID == uuid.Nil {
		pc.ID = uuid.New()
	}
	if _, ok := t.st.projects[pc.ProjectID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := t.st.contacts[pc.ContactID]; !ok {
		return store.ErrNotFound
	}
	if _, err := t.st.projectContact(pc.ProjectID, pc.ContactID); err == nil {
		return store.ErrUniqueViolation
	}
	now := t.now()
	pc.CreatedAt, pc.UpdatedAt = now, now
	t.st.links[pc.ID] = *pc
	return nil
}

func (t *txn) UpdateProjectContact(ctx context.Context, pc *domain.ProjectContact) error {
	cur, ok := t.st.links[pc.ID]
	if !ok {
		return store.ErrNotFound
	}
	// The composite key is immutable.
	pc.ProjectID, pc.ContactID = cur.ProjectID, cur.ContactID
	pc.CreatedAt = cur.CreatedAt
	pc.UpdatedAt = t.now()
	t.st.links[pc.ID] = *pc
	return nil
}

func (t *txn) InsertCallSession(ctx context.Context, s *domain.CallSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if _, ok := t.st.projects[s.ProjectID]; !ok {
		return store.ErrNotFound
	}
	if s.ContactID != nil {
		if _, ok := t.st.contacts[*s.ContactID]; !ok {
			return store.ErrNotFound
		}
	}
	if s.ExternalID != nil {
		if _, err := t.st.sessionByExternalID(*s.ExternalID); err == nil {
			return store.ErrUniqueViolation
		}
	}
	now := t.now()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.CreatedAt, s.UpdatedAt = now, now
	t.st.sessions[s.ID] = *s
	return nil
}

func (t *txn) UpdateCallSessionOutcome(ctx context.Context, s *domain.CallSession) error {
	cur, ok := t.st.sessions[s.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.EndedAt != nil {
		return store.ErrSessionEnded
	}
	cur.CallStatus = s.CallStatus
	cur.Outcome = s.Outcome
	cur.Sentiment = s.Sentiment
	cur.Escalated = s.Escalated
	cur.EscalationReason = s.EscalationReason
	cur.Transcript = s.Transcript
	cur.RecordingURL = s.RecordingURL
	cur.DurationSeconds = s.DurationSeconds
	cur.EndedAt = s.EndedAt
	cur.UpdatedAt = t.now()
	t.st.sessions[s.ID] = cur
	*s = cur
	return nil
}

func (t *txn) InsertTerminal(ctx context.Context, ts *domain.TerminalSession) error {
	if ts.ID == uuid.Nil {
		ts.ID = uuid.New()
	}
	if ts.ExternalID != nil {
		if _, err := t.st.terminalByExternalID(*ts.ExternalID); err == nil {
			return store.ErrUniqueViolation
		}
	}
	now := t.now()
	ts.CreatedAt, ts.UpdatedAt = now, now
	t.st.terminals[ts.ID] = *ts
	return nil
}

func (t *txn) ExpireTerminal(ctx context.Context, id uuid.UUID, at time.Time) error {
	ts, ok := t.st.terminals[id]
	if !ok {
		return store.ErrNotFound
	}
	ts.ExpiresAt = &at
	ts.UpdatedAt = t.now()
	t.st.terminals[id] = ts
	return nil
}
