package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"outbound-crm/internal/domain"
	"outbound-crm/internal/store"

	"github.com/google/uuid"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// queries implements store.Queries over a *sql.DB or a *sql.Tx.
type queries struct {
	q querier
}

/* ===================== PROJECTS ===================== */

const projectCols = `id, external_id, name, address, city, state, zip, country, category, budget,
bid_due_at, start_at, priority_score, call_suppressed, last_contacted_at, next_call_eligible_at,
created_at, updated_at`

func scanProject(r rowScanner, p *domain.Project) error {
	return r.Scan(
		&p.ID,
		&p.ExternalID,
		&p.Name,
		&p.Address,
		&p.City,
		&p.State,
		&p.Zip,
		&p.Country,
		&p.Category,
		&p.Budget,
		&p.BidDueAt,
		&p.StartAt,
		&p.PriorityScore,
		&p.CallSuppressed,
		&p.LastContactedAt,
		&p.NextCallEligibleAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

func (s queries) ProjectByID(ctx context.Context, id uuid.UUID) (domain.Project, error) {
	q := `SELECT ` + projectCols + ` FROM projects WHERE id = $1`
	var p domain.Project
	if err := scanProject(s.q.QueryRowContext(ctx, q, id), &p); err != nil {
		return domain.Project{}, mapErr(err)
	}
	return p, nil
}

func (s queries) ProjectByExternalID(ctx context.Context, externalID string) (domain.Project, error) {
	q := `SELECT ` + projectCols + ` FROM projects WHERE external_id = $1`
	var p domain.Project
	if err := scanProject(s.q.QueryRowContext(ctx, q, externalID), &p); err != nil {
		return domain.Project{}, mapErr(err)
	}
	return p, nil
}

/* ===================== CONTACTS ===================== */

const contactCols = `id, external_id, first_name, last_name, company, phone, email,
preferred_channel, role, decision_authority, do_not_call, created_at, updated_at`

func scanContact(r rowScanner, c *domain.Contact) error {
	return r.Scan(
		&c.ID,
		&c.ExternalID,
		&c.FirstName,
		&c.LastName,
		&c.Company,
		&c.Phone,
		&c.Email,
		&c.PreferredChannel,
		&c.Role,
		&c.DecisionAuthority,
		&c.DoNotCall,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
}

func (s queries) contactWhere(ctx context.Context, where string, arg any) (domain.Contact, error) {
	q := `SELECT ` + contactCols + ` FROM contacts WHERE ` + where + ` = $1`
	var c domain.Contact
	if err := scanContact(s.q.QueryRowContext(ctx, q, arg), &c); err != nil {
		return domain.Contact{}, mapErr(err)
	}
	return c, nil
}

func (s queries) ContactByID(ctx context.Context, id uuid.UUID) (domain.Contact, error) {
	return s.contactWhere(ctx, "id", id)
}

func (s queries) ContactByExternalID(ctx context.Context, externalID string) (domain.Contact, error) {
	return s.contactWhere(ctx, "external_id", externalID)
}

func (s queries) ContactByPhone(ctx context.Context, phone string) (domain.Contact, error) {
	return s.contactWhere(ctx, "phone", phone)
}

func (s queries) ContactByEmail(ctx context.Context, email string) (domain.Contact, error) {
	return s.contactWhere(ctx, "email", email)
}

/* ===================== PROJECT CONTACTS ===================== */

const linkCols = `id, project_id, contact_id, role_for_project, role_confidence,
suppress_for_project, last_contacted_at, created_at, updated_at`

func scanLink(r rowScanner, pc *domain.ProjectContact) error {
	return r.Scan(
		&pc.ID,
		&pc.ProjectID,
		&pc.ContactID,
		&pc.RoleForProject,
		&pc.RoleConfidence,
		&pc.SuppressForProject,
		&pc.LastContactedAt,
		&pc.CreatedAt,
		&pc.UpdatedAt,
	)
}

func (s queries) ProjectContact(ctx context.Context, projectID, contactID uuid.UUID) (domain.ProjectContact, error) {
	q := `SELECT ` + linkCols + ` FROM project_contacts WHERE project_id = $1 AND contact_id = $2`
	var pc domain.ProjectContact
	if err := scanLink(s.q.QueryRowContext(ctx, q, projectID, contactID), &pc); err != nil {
		return domain.ProjectContact{}, mapErr(err)
	}
	return pc, nil
}

/* ===================== CALL SESSIONS ===================== */

const sessionCols = `id, external_id, project_id, contact_id, call_type, call_status, outcome,
sentiment, escalated, escalation_reason, transcript, recording_url, duration_seconds,
started_at, ended_at, created_at, updated_at`

func scanSession(r rowScanner, cs *domain.CallSession) error {
	return r.Scan(
		&cs.ID,
		&cs.ExternalID,
		&cs.ProjectID,
		&cs.ContactID,
		&cs.CallType,
		&cs.CallStatus,
		&cs.Outcome,
		&cs.Sentiment,
		&cs.Escalated,
		&cs.EscalationReason,
		&cs.Transcript,
		&cs.RecordingURL,
		&cs.DurationSeconds,
		&cs.StartedAt,
		&cs.EndedAt,
		&cs.CreatedAt,
		&cs.UpdatedAt,
	)
}

func (s queries) CallSessionByID(ctx context.Context, id uuid.UUID) (domain.CallSession, error) {
	q := `SELECT ` + sessionCols + ` FROM call_sessions WHERE id = $1`
	var cs domain.CallSession
	if err := scanSession(s.q.QueryRowContext(ctx, q, id), &cs); err != nil {
		return domain.CallSession{}, mapErr(err)
	}
	return cs, nil
}

func (s queries) CallSessionByExternalID(ctx context.Context, externalID string) (domain.CallSession, error) {
	q := `SELECT ` + sessionCols + ` FROM call_sessions WHERE external_id = $1`
	var cs domain.CallSession
	if err := scanSession(s.q.QueryRowContext(ctx, q, externalID), &cs); err != nil {
		return domain.CallSession{}, mapErr(err)
	}
	return cs, nil
}

func (s queries) CountCallSessions(ctx context.Context, subject domain.Subject, since time.Time) (int, error) {
	var q string
	switch subject.Kind {
	case domain.SubjectProject:
		q = `SELECT COUNT(*) FROM call_sessions WHERE project_id = $1 AND started_at >= $2`
	case domain.SubjectContact:
		q = `SELECT COUNT(*) FROM call_sessions WHERE contact_id = $1 AND started_at >= $2`
	default:
		return 0, fmt.Errorf("postgres: unknown subject kind %q", subject.Kind)
	}
	var n int
	if err := s.q.QueryRowContext(ctx, q, subject.ID, since).Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func (s queries) ListCallSessions(ctx context.Context, projectID uuid.UUID, from, to time.Time) ([]domain.CallSession, error) {
	q := `SELECT ` + sessionCols + `
FROM call_sessions
WHERE project_id = $1 AND started_at >= $2 AND started_at < $3
ORDER BY started_at ASC, id ASC`
	rows, err := s.q.QueryContext(ctx, q, projectID, from, to)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := make([]domain.CallSession, 0)
	for rows.Next() {
		var cs domain.CallSession
		if err := scanSession(rows, &cs); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, cs)
	}
	return out, mapErr(rows.Err())
}

/* ===================== TERMINAL SESSIONS ===================== */

const terminalCols = `id, external_id, scope, project_id, contact_id, reason, created_by,
expires_at, override_allowed, created_at, updated_at`

func scanTerminal(r rowScanner, t *domain.TerminalSession) error {
	return r.Scan(
		&t.ID,
		&t.ExternalID,
		&t.Scope,
		&t.ProjectID,
		&t.ContactID,
		&t.Reason,
		&t.CreatedBy,
		&t.ExpiresAt,
		&t.OverrideAllowed,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
}

func (s queries) TerminalByID(ctx context.Context, id uuid.UUID) (domain.TerminalSession, error) {
	q := `SELECT ` + terminalCols + ` FROM terminal_sessions WHERE id = $1`
	var t domain.TerminalSession
	if err := scanTerminal(s.q.QueryRowContext(ctx, q, id), &t); err != nil {
		return domain.TerminalSession{}, mapErr(err)
	}
	return t, nil
}

func (s queries) TerminalByExternalID(ctx context.Context, externalID string) (domain.TerminalSession, error) {
	q := `SELECT ` + terminalCols + ` FROM terminal_sessions WHERE external_id = $1`
	var t domain.TerminalSession
	if err := scanTerminal(s.q.QueryRowContext(ctx, q, externalID), &t); err != nil {
		return domain.TerminalSession{}, mapErr(err)
	}
	return t, nil
}

func (s queries) ActiveTerminal(ctx context.Context, tq store.TerminalQuery, now time.Time) (domain.TerminalSession, bool, error) {
	var (
		filter string
		args   = []any{tq.Scope, now}
	)
	switch tq.Scope {
	case domain.ScopeGlobal:
	case domain.ScopeContact:
		if tq.ContactID == nil {
			return domain.TerminalSession{}, false, fmt.Errorf("postgres: contact scope requires a contact id")
		}
		filter = ` AND contact_id = $3`
		args = append(args, *tq.ContactID)
	case domain.ScopeProject:
		if tq.ProjectID == nil {
			return domain.TerminalSession{}, false, fmt.Errorf("postgres: project scope requires a project id")
		}
		args = append(args, *tq.ProjectID)
		if tq.ContactID == nil {
			filter = ` AND project_id = $3 AND contact_id IS NULL`
		} else {
			filter = ` AND project_id = $3 AND contact_id = $4`
			args = append(args, *tq.ContactID)
		}
	default:
		return domain.TerminalSession{}, false, fmt.Errorf("postgres: invalid scope %v", tq.Scope)
	}

	q := `SELECT ` + terminalCols + `
FROM terminal_sessions
WHERE scope = $1 AND (expires_at IS NULL OR expires_at > $2)` + filter + `
ORDER BY created_at ASC, id ASC
LIMIT 1`
	var t domain.TerminalSession
	if err := scanTerminal(s.q.QueryRowContext(ctx, q, args...), &t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TerminalSession{}, false, nil
		}
		return domain.TerminalSession{}, false, mapErr(err)
	}
	return t, true, nil
}

/* ===================== CANDIDATES ===================== */

const candidateQuery = `
SELECT
  p.id, p.external_id, p.name, p.address, p.city, p.state, p.zip, p.country, p.category, p.budget,
  p.bid_due_at, p.start_at, p.priority_score, p.call_suppressed, p.last_contacted_at,
  p.next_call_eligible_at, p.created_at, p.updated_at,
  c.id, c.external_id, c.first_name, c.last_name, c.company, c.phone, c.email,
  c.preferred_channel, c.role, c.decision_authority, c.do_not_call, c.created_at, c.updated_at,
  pc.id, pc.project_id, pc.contact_id, pc.role_for_project, pc.role_confidence,
  pc.suppress_for_project, pc.last_contacted_at, pc.created_at, pc.updated_at
FROM project_contacts pc
JOIN projects p ON p.id = pc.project_id
JOIN contacts c ON c.id = pc.contact_id
WHERE p.call_suppressed = FALSE
  AND (p.next_call_eligible_at IS NULL OR p.next_call_eligible_at <= $1)
  AND c.do_not_call = FALSE
  AND pc.suppress_for_project = FALSE
  AND c.phone IS NOT NULL AND btrim(c.phone) <> ''
ORDER BY p.priority_score DESC, p.next_call_eligible_at ASC NULLS FIRST, pc.id ASC
LIMIT $2 OFFSET $3
`

func (s queries) ListCandidates(ctx context.Context, now time.Time, limit, offset int) ([]domain.Candidate, error) {
	rows, err := s.q.QueryContext(ctx, candidateQuery, now, limit, offset)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := make([]domain.Candidate, 0, limit)
	for rows.Next() {
		var (
			c  domain.Candidate
			p  = &c.Project
			ct = &c.Contact
			pc = &c.Link
		)
		if err := rows.Scan(
			&p.ID, &p.ExternalID, &p.Name, &p.Address, &p.City, &p.State, &p.Zip, &p.Country, &p.Category, &p.Budget,
			&p.BidDueAt, &p.StartAt, &p.PriorityScore, &p.CallSuppressed, &p.LastContactedAt,
			&p.NextCallEligibleAt, &p.CreatedAt, &p.UpdatedAt,
			&ct.ID, &ct.ExternalID, &ct.FirstName, &ct.LastName, &ct.Company, &ct.Phone, &ct.Email,
			&ct.PreferredChannel, &ct.Role, &ct.DecisionAuthority, &ct.DoNotCall, &ct.CreatedAt, &ct.UpdatedAt,
			&pc.ID, &pc.ProjectID, &pc.ContactID, &pc.RoleForProject, &pc.RoleConfidence,
			&pc.SuppressForProject, &pc.LastContactedAt, &pc.CreatedAt, &pc.UpdatedAt,
		); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, c)
	}
	return out, mapErr(rows.Err())
}
