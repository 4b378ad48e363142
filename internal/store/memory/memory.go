package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"outbound-crm/internal/domain"
	"outbound-crm/internal/store"

	"github.com/google/uuid"
)

// Store is an in-memory transactional store useful for tests and local runs.
// It is not intended for production use.
//
// Transactions are serialized: WithTx holds the lock for the whole unit of work,
// operates on a copy of the state and swaps it in on success. A failed fn leaves
// the committed state untouched.
type Store struct {
	mu    sync.Mutex
	state *state

	// Now stamps created_at/updated_at. Defaults to time.Now.
	Now func() time.Time
}

func New() *Store {
	return &Store{state: newState(), Now: time.Now}
}

var _ store.Store = (*Store)(nil)

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &txn{st: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

// read runs fn against the committed state under the lock.
func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

type state struct {
	projects  map[uuid.UUID]domain.Project
	contacts  map[uuid.UUID]domain.Contact
	links     map[uuid.UUID]domain.ProjectContact
	sessions  map[uuid.UUID]domain.CallSession
	terminals map[uuid.UUID]domain.TerminalSession
}

func newState() *state {
	return &state{
		projects:  map[uuid.UUID]domain.Project{},
		contacts:  map[uuid.UUID]domain.Contact{},
		links:     map[uuid.UUID]domain.ProjectContact{},
		sessions:  map[uuid.UUID]domain.CallSession{},
		terminals: map[uuid.UUID]domain.TerminalSession{},
	}
}

// clone copies the maps. Entity values are copied by value; pointer fields are never
// mutated in place by this package, only replaced.
func (st *state) clone() *state {
	out := newState()
	for k, v := range st.projects {
		out.projects[k] = v
	}
	for k, v := range st.contacts {
		out.contacts[k] = v
	}
	for k, v := range st.links {
		out.links[k] = v
	}
	for k, v := range st.sessions {
		out.sessions[k] = v
	}
	for k, v := range st.terminals {
		out.terminals[k] = v
	}
	return out
}

/* ===================== READS ===================== */

func (st *state) projectByID(id uuid.UUID) (domain.Project, error) {
	p, ok := st.projects[id]
	if !ok {
		return domain.Project{}, store.ErrNotFound
	}
	return p, nil
}

func (st *state) projectByExternalID(ext string) (domain.Project, error) {
	for _, p := range st.projects {
		if p.ExternalID == ext {
			return p, nil
		}
	}
	return domain.Project{}, store.ErrNotFound
}

func (st *state) contactByID(id uuid.UUID) (domain.Contact, error) {
	c, ok := st.contacts[id]
	if !ok {
		return domain.Contact{}, store.ErrNotFound
	}
	return c, nil
}

func (st *state) contactBy(match func(domain.Contact) bool) (domain.Contact, error) {
	for _, c := range st.contacts {
		if match(c) {
			return c, nil
		}
	}
	return domain.Contact{}, store.ErrNotFound
}

func (st *state) projectContact(projectID, contactID uuid.UUID) (domain.ProjectContact, error) {
	for _, pc := range st.links {
		if pc.ProjectID == projectID && pc.ContactID == contactID {
			return pc, nil
		}
	}
	return domain.ProjectContact{}, store.ErrNotFound
}

func (st *state) sessionByID(id uuid.UUID) (domain.CallSession, error) {
	s, ok := st.sessions[id]
	if !ok {
		return domain.CallSession{}, store.ErrNotFound
	}
	return s, nil
}

func (st *state) sessionByExternalID(ext string) (domain.CallSession, error) {
	for _, s := range st.sessions {
		if s.ExternalID != nil && *s.ExternalID == ext {
			return s, nil
		}
	}
	return domain.CallSession{}, store.ErrNotFound
}

func (st *state) countSessions(subject domain.Subject, since time.Time) int {
	n := 0
	for _, s := range st.sessions {
		if s.StartedAt.Before(since) {
			continue
		}
		switch subject.Kind {
		case domain.SubjectProject:
			if s.ProjectID == subject.ID {
				n++
			}
		case domain.SubjectContact:
			if s.ContactID != nil && *s.ContactID == subject.ID {
				n++
			}
		}
	}
	return n
}

func (st *state) listSessions(projectID uuid.UUID, from, to time.Time) []domain.CallSession {
	out := make([]domain.CallSession, 0)
	for _, s := range st.sessions {
		if s.ProjectID != projectID {
			continue
		}
		if s.StartedAt.Before(from) || !s.StartedAt.Before(to) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (st *state) terminalByID(id uuid.UUID) (domain.TerminalSession, error) {
	t, ok := st.terminals[id]
	if !ok {
		return domain.TerminalSession{}, store.ErrNotFound
	}
	return t, nil
}

func (st *state) terminalByExternalID(ext string) (domain.TerminalSession, error) {
	for _, t := range st.terminals {
		if t.ExternalID != nil && *t.ExternalID == ext {
			return t, nil
		}
	}
	return domain.TerminalSession{}, store.ErrNotFound
}

func (st *state) activeTerminal(q store.TerminalQuery, now time.Time) (domain.TerminalSession, bool) {
	var (
		best  domain.TerminalSession
		found bool
	)
	for _, t := range st.terminals {
		if t.Scope != q.Scope || !t.ActiveAt(now) {
			continue
		}
		if !terminalMatches(t, q) {
			continue
		}
		if !found || t.CreatedAt.Before(best.CreatedAt) ||
			(t.CreatedAt.Equal(best.CreatedAt) && t.ID.String() < best.ID.String()) {
			best = t
			found = true
		}
	}
	return best, found
}

func terminalMatches(t domain.TerminalSession, q store.TerminalQuery) bool {
	switch q.Scope {
	case domain.ScopeGlobal:
		return true
	case domain.ScopeContact:
		return q.ContactID != nil && sameID(t.ContactID, q.ContactID)
	case domain.ScopeProject:
		if q.ProjectID == nil || !sameID(t.ProjectID, q.ProjectID) {
			return false
		}
		if q.ContactID == nil {
			return t.ContactID == nil
		}
		return sameID(t.ContactID, q.ContactID)
	default:
		return false
	}
}

func sameID(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

func (st *state) listCandidates(now time.Time, limit, offset int) []domain.Candidate {
	out := make([]domain.Candidate, 0)
	for _, pc := range st.links {
		if pc.SuppressForProject {
			continue
		}
		p, ok := st.projects[pc.ProjectID]
		if !ok || p.CallSuppressed {
			continue
		}
		if p.NextCallEligibleAt != nil && p.NextCallEligibleAt.After(now) {
			continue
		}
		c, ok := st.contacts[pc.ContactID]
		if !ok || c.DoNotCall || c.Phone == nil || strings.TrimSpace(*c.Phone) == "" {
			continue
		}
		out = append(out, domain.Candidate{Project: p, Contact: c, Link: pc})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Project.PriorityScore != b.Project.PriorityScore {
			return a.Project.PriorityScore > b.Project.PriorityScore
		}
		an, bn := a.Project.NextCallEligibleAt, b.Project.NextCallEligibleAt
		switch {
		case an == nil && bn != nil:
			return true
		case an != nil && bn == nil:
			return false
		case an != nil && bn != nil && !an.Equal(*bn):
			return an.Before(*bn)
		}
		return a.Link.ID.String() < b.Link.ID.String()
	})
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
