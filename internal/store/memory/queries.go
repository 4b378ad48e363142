package memory

import (
	"context"
	"time"

	"outbound-crm/internal/domain"
	"outbound-crm/internal/store"

	"github.com/google/uuid"
)

// Reads on the committed state. Each call takes the store lock.

func (s *Store) ProjectByID(ctx context.Context, id uuid.UUID) (out domain.Project, err error) {
	s.read(func(st *state) { out, err = st.projectByID(id) })
	return
}

func (s *Store) ProjectByExternalID(ctx context.Context, externalID string) (out domain.Project, err error) {
	s.read(func(st *state) { out, err = st.projectByExternalID(externalID) })
	return
}

func (s *Store) ContactByID(ctx context.Context, id uuid.UUID) (out domain.Contact, err error) {
	s.read(func(st *state) { out, err = st.contactByID(id) })
	return
}

func (s *Store) ContactByExternalID(ctx context.Context, externalID string) (out domain.Contact, err error) {
	s.read(func(st *state) { out, err = st.contactBy(byExternalID(externalID)) })
	return
}

func (s *Store) ContactByPhone(ctx context.Context, phone string) (out domain.Contact, err error) {
	s.read(func(st *state) { out, err = st.contactBy(byPhone(phone)) })
	return
}

func (s *Store) ContactByEmail(ctx context.Context, email string) (out domain.Contact, err error) {
	s.read(func(st *state) { out, err = st.contactBy(byEmail(email)) })
	return
}

func (s *Store) ProjectContact(ctx context.Context, projectID, contactID uuid.UUID) (out domain.ProjectContact, err error) {
	s.read(func(st *state) { out, err = st.projectContact(projectID, contactID) })
	return
}

func (s *Store) CallSessionByID(ctx context.Context, id uuid.UUID) (out domain.CallSession, err error) {
	s.read(func(st *state) { out, err = st.sessionByID(id) })
	return
}

func (s *Store) CallSessionByExternalID(ctx context.Context, externalID string) (out domain.CallSession, err error) {
	s.read(func(st *state) { out, err = st.sessionByExternalID(externalID) })
	return
}

func (s *Store) CountCallSessions(ctx context.Context, subject domain.Subject, since time.Time) (n int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.read(func(st *state) { n = st.countSessions(subject, since) })
	return n, nil
}

func (s *Store) ListCallSessions(ctx context.Context, projectID uuid.UUID, from, to time.Time) (out []domain.CallSession, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.read(func(st *state) { out = st.listSessions(projectID, from, to) })
	return out, nil
}

func (s *Store) TerminalByID(ctx context.Context, id uuid.UUID) (out domain.TerminalSession, err error) {
	s.read(func(st *state) { out, err = st.terminalByID(id) })
	return
}

func (s *Store) TerminalByExternalID(ctx context.Context, externalID string) (out domain.TerminalSession, err error) {
	s.read(func(st *state) { out, err = st.terminalByExternalID(externalID) })
	return
}

func (s *Store) ActiveTerminal(ctx context.Context, q store.TerminalQuery, now time.Time) (out domain.TerminalSession, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return domain.TerminalSession{}, false, err
	}
	s.read(func(st *state) { out, ok = st.activeTerminal(q, now) })
	return out, ok, nil
}

func (s *Store) ListCandidates(ctx context.Context, now time.Time, limit, offset int) (out []domain.Candidate, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.read(func(st *state) { out = st.listCandidates(now, limit, offset) })
	return out, nil
}

func byExternalID(ext string) func(domain.Contact) bool {
	return func(c domain.Contact) bool { return c.ExternalID != nil && *c.ExternalID == ext }
}

func byPhone(phone string) func(domain.Contact) bool {
	return func(c domain.Contact) bool { return c.Phone != nil && *c.Phone == phone }
}

func byEmail(email string) func(domain.Contact) bool {
	return func(c domain.Contact) bool { return c.Email != nil && *c.Email == email }
}
