package reporting

import (
	"context"
	"errors"
	"strings"

	"outbound-crm/internal/apperr"
	"outbound-crm/internal/domain"
	"outbound-crm/internal/store"
)

// Service aggregates read-only metrics from the call ledger.
//
// IMPORTANT:
// - Sessions are read from the append-only ledger, never from cached counters.
// - The range is half-open on started_at.
type Service struct {
	store store.Queries
}

func NewService(st store.Queries) *Service { return &Service{store: st} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	ext := strings.TrimSpace(req.ProjectExternalID)
	if ext == "" {
		return CallsSummary{}, apperr.Invalid("project_external_id is required")
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, apperr.Invalid("range must have from < to")
	}

	p, err := s.store.ProjectByExternalID(ctx, ext)
	if errors.Is(err, store.ErrNotFound) {
		return CallsSummary{}, apperr.NotFound("project not found")
	}
	if err != nil {
		return CallsSummary{}, err
	}

	rows, err := s.store.ListCallSessions(ctx, p.ID, req.Range.From.UTC(), req.Range.To.UTC())
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{ProjectID: p.ID, ProjectExternalID: p.ExternalID, Range: req.Range}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		if c.Escalated {
			out.EscalatedCalls++
		}
		switch c.CallType {
		case domain.CallTypeAI:
			out.AICalls++
		case domain.CallTypeHuman:
			out.HumanCalls++
		}
		switch c.CallStatus {
		case domain.CallStatusCompleted:
			out.CompletedCalls++
		case domain.CallStatusFailed:
			out.FailedCalls++
		case domain.CallStatusNoAnswer:
			out.NoAnswerCalls++
		case domain.CallStatusBusy:
			out.BusyCalls++
		case domain.CallStatusCanceled:
			out.CanceledCalls++
		case domain.CallStatusVoicemail:
			out.VoicemailCalls++
		case domain.CallStatusInProgress:
			out.InProgressCalls++
		case domain.CallStatusRinging, domain.CallStatusQueued:
			// not counted separately
		default:
			out.OtherCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
		out.ConnectionRate = float64(out.CompletedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
