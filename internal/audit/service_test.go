package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_AppendRequiresTypeAndTarget(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	assert.ErrorIs(t, svc.Append(context.Background(), Event{TargetID: "x"}), ErrInvalidEvent)
	assert.ErrorIs(t, svc.Append(context.Background(), Event{Type: EventTypeTerminalCreated}), ErrInvalidEvent)
	assert.Error(t, NewService(nil).Append(context.Background(), Event{Type: EventTypeTerminalCreated, TargetID: "x"}))
}

func TestService_LogTerminalEvents(t *testing.T) {
	repo := NewMemoryRepo()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo).WithClock(func() time.Time { return fixed })

	d := TerminalDetails{Scope: "contact", ContactID: "c-1", Reason: "opted out"}
	require.NoError(t, svc.LogTerminalCreated(context.Background(), "ops@crm", "t-1", d))
	require.NoError(t, svc.LogTerminalRemoveDenied(context.Background(), "agent", "t-1", d))

	evs := repo.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, EventTypeTerminalCreated, evs[0].Type)
	assert.Equal(t, "ops@crm", evs[0].Actor)
	assert.Equal(t, "t-1", evs[0].TargetID)
	assert.Equal(t, fixed, evs[0].CreatedAt)
	assert.NotEmpty(t, evs[0].ID)
	assert.JSONEq(t, `{"scope":"contact","contact_id":"c-1","reason":"opted out","override_allowed":false}`, evs[0].Metadata)

	assert.Equal(t, EventTypeTerminalRemoveDenied, evs[1].Type)
	assert.Equal(t, "override not allowed", evs[1].Message)
}
