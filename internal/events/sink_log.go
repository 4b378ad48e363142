package events

import (
	"context"
	"log/slog"

	"outbound-crm/pkg/logger"
)

// LogSink writes events to the structured log. Used when no broker is configured.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: logger.OrDefault(log)}
}

func (s *LogSink) Send(ctx context.Context, e Event) error {
	s.log.InfoContext(ctx, "crm sync event",
		"event_id", e.ID,
		"type", e.Type,
		"entity_id", e.EntityID,
		"occurred_at", e.OccurredAt,
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
