package calls

import (
	"time"

	"outbound-crm/internal/domain"

	"github.com/google/uuid"
)

// CreateInput records one call attempt. The project is addressed by its external key;
// the contact, when present, by internal or external key.
//
// NOTE: provider-specific identifiers (carrier call ids and the like) belong in
// ExternalID, not in new columns.
type CreateInput struct {
	ExternalID        *string    `json:"external_id,omitempty"`
	ProjectExternalID string     `json:"project_external_id" binding:"required"`
	ContactID         *uuid.UUID `json:"contact_id,omitempty"`
	ContactExternalID *string    `json:"contact_external_id,omitempty"`

	CallType   string `json:"call_type" binding:"required,oneof=ai human"`
	CallStatus string `json:"call_status" binding:"required"`

	Outcome          string `json:"outcome,omitempty"`
	Sentiment        string `json:"sentiment,omitempty"`
	Escalated        bool   `json:"escalated,omitempty"`
	EscalationReason string `json:"escalation_reason,omitempty"`
	Transcript       string `json:"transcript,omitempty"`
	RecordingURL     string `json:"recording_url,omitempty" binding:"omitempty,url"`
	DurationSeconds  int    `json:"duration_seconds,omitempty" binding:"gte=0"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// CreateResult reports whether Create inserted a row. A replay by external_id
// returns the stored row with Created=false and has no side effects.
type CreateResult struct {
	Session domain.CallSession `json:"call_session"`
	Created bool               `json:"created"`
}

// Patch appends outcome data to an open session. Nil fields are left unchanged.
// Identity columns (project, contact, call type, started_at) are not patchable.
type Patch struct {
	CallStatus       *string    `json:"call_status,omitempty"`
	Outcome          *string    `json:"outcome,omitempty"`
	Sentiment        *string    `json:"sentiment,omitempty"`
	Escalated        *bool      `json:"escalated,omitempty"`
	EscalationReason *string    `json:"escalation_reason,omitempty"`
	Transcript       *string    `json:"transcript,omitempty"`
	RecordingURL     *string    `json:"recording_url,omitempty" binding:"omitempty,url"`
	DurationSeconds  *int       `json:"duration_seconds,omitempty" binding:"omitempty,gte=0"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

func (p Patch) apply(s *domain.CallSession) {
	if p.CallStatus != nil {
		s.CallStatus = domain.CallStatus(*p.CallStatus)
	}
	if p.Outcome != nil {
		s.Outcome = *p.Outcome
	}
	if p.Sentiment != nil {
		s.Sentiment = *p.Sentiment
	}
	if p.Escalated != nil {
		s.Escalated = *p.Escalated
	}
	if p.EscalationReason != nil {
		s.EscalationReason = *p.EscalationReason
	}
	if p.Transcript != nil {
		s.Transcript = *p.Transcript
	}
	if p.RecordingURL != nil {
		s.RecordingURL = *p.RecordingURL
	}
	if p.DurationSeconds != nil {
		s.DurationSeconds = *p.DurationSeconds
	}
	if p.EndedAt != nil {
		v := p.EndedAt.UTC()
		s.EndedAt = &v
	}
}
