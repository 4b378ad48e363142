package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"outbound-crm/internal/domain"
	"outbound-crm/internal/store"

	"github.com/google/uuid"
)

// txn is a unit of work bound to one *sql.Tx.
type txn struct {
	queries
	now func() time.Time
}

func (t *txn) stamp() time.Time { return t.now().UTC() }

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

/* ===================== PROJECTS ===================== */

func (t *txn) InsertProject(ctx context.Context, p *domain.Project) error {
	const q = `
INSERT INTO projects (
  id, external_id, name, address, city, state, zip, country, category, budget,
  bid_due_at, start_at, priority_score, call_suppressed, last_contacted_at, next_call_eligible_at,
  created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
)
`
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := t.stamp()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := t.q.ExecContext(ctx, q,
		p.ID,
		p.ExternalID,
		p.Name,
		p.Address,
		p.City,
		p.State,
		p.Zip,
		p.Country,
		p.Category,
		p.Budget,
		p.BidDueAt,
		p.StartAt,
		p.PriorityScore,
		p.CallSuppressed,
		p.LastContactedAt,
		p.NextCallEligibleAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return mapErr(err)
}

func (t *txn) UpdateProject(ctx context.Context, p *domain.Project) error {
	const q = `
UPDATE projects SET
  external_id = $2, name = $3, address = $4, city = $5, state = $6, zip = $7, country = $8,
  category = $9, budget = $10, bid_due_at = $11, start_at = $12, priority_score = $13,
  call_suppressed = $14, updated_at = $15
WHERE id = $1
RETURNING created_at
`
	p.UpdatedAt = t.stamp()
	err := t.q.QueryRowContext(ctx, q,
		p.ID,
		p.ExternalID,
		p.Name,
		p.Address,
		p.City,
		p.State,
		p.Zip,
		p.Country,
		p.Category,
		p.Budget,
		p.BidDueAt,
		p.StartAt,
		p.PriorityScore,
		p.CallSuppressed,
		p.UpdatedAt,
	).Scan(&p.CreatedAt)
	return mapErr(err)
}

func (t *txn) TouchProjectCooldown(ctx context.Context, id uuid.UUID, lastContacted, nextEligible time.Time) error {
	const q = `
UPDATE projects
SET last_contacted_at = $2, next_call_eligible_at = $3, updated_at = $4
WHERE id = $1
`
	res, err := t.q.ExecContext(ctx, q, id, lastContacted, nextEligible, t.stamp())
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

/* ===================== CONTACTS ===================== */

func (t *txn) InsertContact(ctx context.Context, c *domain.Contact) error {
	const q = `
INSERT INTO contacts (
  id, external_id, first_name, last_name, company, phone, email,
  preferred_channel, role, decision_authority, do_not_call, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
`
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := t.stamp()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := t.q.ExecContext(ctx, q,
		c.ID,
		c.ExternalID,
		c.FirstName,
		c.LastName,
		c.Company,
		c.Phone,
		c.Email,
		c.PreferredChannel,
		c.Role,
		c.DecisionAuthority,
		c.DoNotCall,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return mapErr(err)
}

func (t *txn) UpdateContact(ctx context.Context, c *domain.Contact) error {
	const q = `
UPDATE contacts SET
  external_id = $2, first_name = $3, last_name = $4, company = $5, phone = $6, email = $7,
  preferred_channel = $8, role = $9, decision_authority = $10, do_not_call = $11, updated_at = $12
WHERE id = $1
RETURNING created_at
`
	c.UpdatedAt = t.stamp()
	err := t.q.QueryRowContext(ctx, q,
		c.ID,
		c.ExternalID,
		c.FirstName,
		c.LastName,
		c.Company,
		c.Phone,
		c.Email,
		c.PreferredChannel,
		c.Role,
		c.DecisionAuthority,
		c.DoNotCall,
		c.UpdatedAt,
	).Scan(&c.CreatedAt)
	return mapErr(err)
}

/* ===================== PROJECT CONTACTS ===================== */

func (t *txn) InsertProjectContact(ctx context.Context, pc *domain.ProjectContact) error {
	const q = `
INSERT INTO project_contacts (
  id, project_id, contact_id, role_for_project, role_confidence,
  suppress_for_project, last_contacted_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	if pc.ID == uuid.Nil {
		pc.ID = uuid.New()
	}
	now := t.stamp()
	pc.CreatedAt, pc.UpdatedAt = now, now
	_, err := t.q.ExecContext(ctx, q,
		pc.ID,
		pc.ProjectID,
		pc.ContactID,
		pc.RoleForProject,
		pc.RoleConfidence,
		pc.SuppressForProject,
		pc.LastContactedAt,
		pc.CreatedAt,
		pc.UpdatedAt,
	)
	return mapErr(err)
}

func (t *txn) UpdateProjectContact(ctx context.Context, pc *domain.ProjectContact) error {
	// project_id and contact_id are never rewritten.
	const q = `
UPDATE project_contacts SET
  role_for_project = $2, role_confidence = $3, suppress_for_project = $4,
  last_contacted_at = $5, updated_at = $6
WHERE id = $1
RETURNING project_id, contact_id, created_at
`
	pc.UpdatedAt = t.stamp()
	err := t.q.QueryRowContext(ctx, q,
		pc.ID,
		pc.RoleForProject,
		pc.RoleConfidence,
		pc.SuppressForProject,
		pc.LastContactedAt,
		pc.UpdatedAt,
	).Scan(&pc.ProjectID, &pc.ContactID, &pc.CreatedAt)
	return mapErr(err)
}

/* ===================== CALL SESSIONS ===================== */

func (t *txn) InsertCallSession(ctx context.Context, s *domain.CallSession) error {
	const q = `
INSERT INTO call_sessions (
  id, external_id, project_id, contact_id, call_type, call_status, outcome, sentiment,
  escalated, escalation_reason, transcript, recording_url, duration_seconds,
  started_at, ended_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
)
`
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := t.stamp()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.CreatedAt, s.UpdatedAt = now, now
	_, err := t.q.ExecContext(ctx, q,
		s.ID,
		s.ExternalID,
		s.ProjectID,
		s.ContactID,
		s.CallType,
		s.CallStatus,
		s.Outcome,
		s.Sentiment,
		s.Escalated,
		s.EscalationReason,
		s.Transcript,
		s.RecordingURL,
		s.DurationSeconds,
		s.StartedAt,
		s.EndedAt,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return mapErr(err)
}

// UpdateCallSessionOutcome only matches open rows, so a writer holding a stale
// snapshot cannot clear an ended_at committed after its read.
func (t *txn) UpdateCallSessionOutcome(ctx context.Context, s *domain.CallSession) error {
	q := `
UPDATE call_sessions SET
  call_status = $2, outcome = $3, sentiment = $4, escalated = $5, escalation_reason = $6,
  transcript = $7, recording_url = $8, duration_seconds = $9, ended_at = $10, updated_at = $11
WHERE id = $1 AND ended_at IS NULL
RETURNING ` + sessionCols
	var out domain.CallSession
	err := scanSession(t.q.QueryRowContext(ctx, q,
		s.ID,
		s.CallStatus,
		s.Outcome,
		s.Sentiment,
		s.Escalated,
		s.EscalationReason,
		s.Transcript,
		s.RecordingURL,
		s.DurationSeconds,
		s.EndedAt,
		t.stamp(),
	), &out)
	if errors.Is(err, sql.ErrNoRows) {
		return t.sessionGone(ctx, s.ID)
	}
	if err != nil {
		return mapErr(err)
	}
	*s = out
	return nil
}

// sessionGone tells a missing row from one that ended concurrently.
func (t *txn) sessionGone(ctx context.Context, id uuid.UUID) error {
	var ended bool
	err := t.q.QueryRowContext(ctx, `SELECT ended_at IS NOT NULL FROM call_sessions WHERE id = $1`, id).Scan(&ended)
	if err != nil {
		return mapErr(err)
	}
	if ended {
		return store.ErrSessionEnded
	}
	return store.ErrNotFound
}

/* ===================== TERMINAL SESSIONS ===================== */

func (t *txn) InsertTerminal(ctx context.Context, ts *domain.TerminalSession) error {
	const q = `
INSERT INTO terminal_sessions (
  id, external_id, scope, project_id, contact_id, reason, created_by,
  expires_at, override_allowed, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`
	if ts.ID == uuid.Nil {
		ts.ID = uuid.New()
	}
	now := t.stamp()
	ts.CreatedAt, ts.UpdatedAt = now, now
	_, err := t.q.ExecContext(ctx, q,
		ts.ID,
		ts.ExternalID,
		ts.Scope,
		ts.ProjectID,
		ts.ContactID,
		ts.Reason,
		ts.CreatedBy,
		ts.ExpiresAt,
		ts.OverrideAllowed,
		ts.CreatedAt,
		ts.UpdatedAt,
	)
	return mapErr(err)
}

func (t *txn) ExpireTerminal(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE terminal_sessions SET expires_at = $2, updated_at = $3 WHERE id = $1`
	res, err := t.q.ExecContext(ctx, q, id, at, t.stamp())
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}
