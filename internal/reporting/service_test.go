package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"outbound-crm/internal/apperr"
	"outbound-crm/internal/domain"
	"outbound-crm/internal/store"
	"outbound-crm/internal/store/memory"
)

func seed(t *testing.T, st *memory.Store, ext string, sessions ...domain.CallSession) domain.Project {
	t.Helper()
	p := domain.Project{ExternalID: ext, Country: domain.DefaultCountry}
	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertProject(ctx, &p); err != nil {
			return err
		}
		for _, s := range sessions {
			s.ProjectID = p.ID
			if err := tx.InsertCallSession(ctx, &s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return p
}

func TestReporting_ProjectIsolationAndRange(t *testing.T) {
	st := memory.New()
	now := time.Unix(1700000000, 0).UTC()
	seed(t, st, "p1",
		domain.CallSession{CallType: domain.CallTypeAI, CallStatus: domain.CallStatusCompleted, DurationSeconds: 30, StartedAt: now},
		domain.CallSession{CallType: domain.CallTypeAI, CallStatus: domain.CallStatusCompleted, DurationSeconds: 30, StartedAt: now.Add(-2 * time.Hour)},
	)
	seed(t, st, "p2",
		domain.CallSession{CallType: domain.CallTypeHuman, CallStatus: domain.CallStatusCompleted, DurationSeconds: 50, StartedAt: now},
	)
	svc := NewService(st)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{ProjectExternalID: "p1", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("expected 1 call, got %d", out.TotalCalls)
	}
	if out.ProjectExternalID != "p1" {
		t.Fatalf("unexpected project: %+v", out)
	}
}

func TestReporting_CallsSummaryAggregates(t *testing.T) {
	st := memory.New()
	now := time.Unix(1700000000, 0).UTC()
	seed(t, st, "p",
		domain.CallSession{CallType: domain.CallTypeAI, CallStatus: domain.CallStatusCompleted, DurationSeconds: 60, RecordingURL: "https://rec/1", StartedAt: now},
		domain.CallSession{CallType: domain.CallTypeAI, CallStatus: domain.CallStatusNoAnswer, StartedAt: now},
		domain.CallSession{CallType: domain.CallTypeHuman, CallStatus: domain.CallStatusVoicemail, DurationSeconds: 20, StartedAt: now},
		domain.CallSession{CallType: domain.CallTypeHuman, CallStatus: "left_message", Escalated: true, DurationSeconds: 10, StartedAt: now},
	)

	out, err := NewService(st).CallsSummary(context.Background(), CallsSummaryRequest{ProjectExternalID: "p", Range: TimeRange{From: now, To: now.Add(time.Minute)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 4 || out.AICalls != 2 || out.HumanCalls != 2 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.CompletedCalls != 1 || out.NoAnswerCalls != 1 || out.VoicemailCalls != 1 || out.OtherCalls != 1 {
		t.Fatalf("unexpected status buckets: %+v", out)
	}
	if out.EscalatedCalls != 1 || out.RecordedCalls != 1 {
		t.Fatalf("unexpected flags: %+v", out)
	}
	if out.TotalDurationSeconds != 90 || out.AverageDurationSeconds != 22 {
		t.Fatalf("unexpected durations: %+v", out)
	}
	if out.ConnectionRate != 0.25 {
		t.Fatalf("expected connection rate 0.25, got %v", out.ConnectionRate)
	}
}

func TestReporting_InvalidRequests(t *testing.T) {
	st := memory.New()
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(st)
	ctx := context.Background()

	_, err := svc.CallsSummary(ctx, CallsSummaryRequest{Range: TimeRange{From: now, To: now.Add(time.Hour)}})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = svc.CallsSummary(ctx, CallsSummaryRequest{ProjectExternalID: "p", Range: TimeRange{From: now, To: now}})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for empty range, got %v", err)
	}
	_, err = svc.CallsSummary(ctx, CallsSummaryRequest{ProjectExternalID: "missing", Range: TimeRange{From: now, To: now.Add(time.Hour)}})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
