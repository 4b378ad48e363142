package domain

import (
	"time"

	"github.com/google/uuid"
)

// Project is a unit of work that may be called about.
//
// Invariant: ExternalID identifies at most one row.
// Cooldown fields (LastContactedAt, NextCallEligibleAt) are written only by the call ledger.
type Project struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ExternalID string    `json:"external_id" db:"external_id"`

	Name     string   `json:"name" db:"name"`
	Address  string   `json:"address,omitempty" db:"address"`
	City     string   `json:"city,omitempty" db:"city"`
	State    string   `json:"state,omitempty" db:"state"`
	Zip      string   `json:"zip,omitempty" db:"zip"`
	Country  string   `json:"country" db:"country"`
	Category string   `json:"category,omitempty" db:"category"`
	Budget   *float64 `json:"budget,omitempty" db:"budget"`

	BidDueAt *time.Time `json:"bid_due_at,omitempty" db:"bid_due_at"`
	StartAt  *time.Time `json:"start_at,omitempty" db:"start_at"`

	// PriorityScore orders bulk candidate selection, highest first.
	PriorityScore int `json:"priority_score" db:"priority_score"`

	CallSuppressed     bool       `json:"call_suppressed" db:"call_suppressed"`
	LastContactedAt    *time.Time `json:"last_contacted_at,omitempty" db:"last_contacted_at"`
	NextCallEligibleAt *time.Time `json:"next_call_eligible_at,omitempty" db:"next_call_eligible_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

const DefaultCountry = "US"

// Contact is a person who can be called.
//
// Invariant: ExternalID, Phone and Email are each unique when present.
type Contact struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ExternalID *string   `json:"external_id,omitempty" db:"external_id"`

	FirstName string  `json:"first_name,omitempty" db:"first_name"`
	LastName  string  `json:"last_name,omitempty" db:"last_name"`
	Company   string  `json:"company,omitempty" db:"company"`
	Phone     *string `json:"phone,omitempty" db:"phone"`
	Email     *string `json:"email,omitempty" db:"email"`

	PreferredChannel  string `json:"preferred_channel,omitempty" db:"preferred_channel"`
	Role              string `json:"role,omitempty" db:"role"`
	DecisionAuthority string `json:"decision_authority,omitempty" db:"decision_authority"`

	DoNotCall bool `json:"do_not_call" db:"do_not_call"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProjectContact links a contact to a project with project-scoped preferences.
// Rows are never deleted; suppression is expressed via SuppressForProject.
type ProjectContact struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ProjectID uuid.UUID `json:"project_id" db:"project_id"`
	ContactID uuid.UUID `json:"contact_id" db:"contact_id"`

	RoleForProject     string     `json:"role_for_project,omitempty" db:"role_for_project"`
	RoleConfidence     float64    `json:"role_confidence" db:"role_confidence"`
	SuppressForProject bool       `json:"suppress_for_project" db:"suppress_for_project"`
	LastContactedAt    *time.Time `json:"last_contacted_at,omitempty" db:"last_contacted_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CallSession is an append-only record of one call attempt.
//
// Ledger invariants:
// - Rows are never deleted.
// - ProjectID, ContactID, StartedAt, CallType and ExternalID never change after insert.
// - Outcome fields may be appended only while EndedAt is unset.
type CallSession struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	ExternalID *string    `json:"external_id,omitempty" db:"external_id"`
	ProjectID  uuid.UUID  `json:"project_id" db:"project_id"`
	ContactID  *uuid.UUID `json:"contact_id,omitempty" db:"contact_id"`

	CallType   CallType   `json:"call_type" db:"call_type"`
	CallStatus CallStatus `json:"call_status" db:"call_status"`

	Outcome          string `json:"outcome,omitempty" db:"outcome"`
	Sentiment        string `json:"sentiment,omitempty" db:"sentiment"`
	Escalated        bool   `json:"escalated" db:"escalated"`
	EscalationReason string `json:"escalation_reason,omitempty" db:"escalation_reason"`
	Transcript       string `json:"transcript,omitempty" db:"transcript"`
	RecordingURL     string `json:"recording_url,omitempty" db:"recording_url"`
	DurationSeconds  int    `json:"duration_seconds" db:"duration_seconds"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallType string

const (
	CallTypeAI    CallType = "ai"
	CallTypeHuman CallType = "human"
)

func (t CallType) Valid() bool {
	return t == CallTypeAI || t == CallTypeHuman
}

// CallStatus is free-form; these are the values the reporting summary buckets.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
	CallStatusVoicemail  CallStatus = "voicemail"
)

// TerminalSession is a blocking state. See Scope for the key invariant.
// Removal is soft: ExpiresAt is set to the removal time and the row stays.
type TerminalSession struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	ExternalID *string    `json:"external_id,omitempty" db:"external_id"`
	Scope      Scope      `json:"scope" db:"scope"`
	ProjectID  *uuid.UUID `json:"project_id,omitempty" db:"project_id"`
	ContactID  *uuid.UUID `json:"contact_id,omitempty" db:"contact_id"`

	Reason          string     `json:"reason" db:"reason"`
	CreatedBy       string     `json:"created_by,omitempty" db:"created_by"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	OverrideAllowed bool       `json:"override_allowed" db:"override_allowed"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ActiveAt reports whether the block applies at now.
func (t TerminalSession) ActiveAt(now time.Time) bool {
	return t.ExpiresAt == nil || t.ExpiresAt.After(now)
}

// Candidate is one storage-filtered (project, contact) pair for bulk selection.
type Candidate struct {
	Project Project        `json:"project"`
	Contact Contact        `json:"contact"`
	Link    ProjectContact `json:"link"`
}
