package reporting

import (
	"time"

	"github.com/google/uuid"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest asks for one project's call metrics over [From, To).
type CallsSummaryRequest struct {
	ProjectExternalID string    `json:"project_external_id"`
	Range             TimeRange `json:"range"`
}

type CallsSummary struct {
	ProjectID         uuid.UUID `json:"project_id"`
	ProjectExternalID string    `json:"project_external_id"`
	Range             TimeRange `json:"range"`

	TotalCalls int `json:"total_calls"`
	AICalls    int `json:"ai_calls"`
	HumanCalls int `json:"human_calls"`

	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	NoAnswerCalls   int `json:"no_answer_calls"`
	BusyCalls       int `json:"busy_calls"`
	CanceledCalls   int `json:"canceled_calls"`
	VoicemailCalls  int `json:"voicemail_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	OtherCalls      int `json:"other_calls"`

	EscalatedCalls int `json:"escalated_calls"`
	RecordedCalls  int `json:"recorded_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// ConnectionRate is completed / total, 0 when there were no calls.
	ConnectionRate float64 `json:"connection_rate"`
}
