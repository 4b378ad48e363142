package events

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// RedisSink appends events to a Redis stream for the CRM connector to consume.
type RedisSink struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisSink(rdb redis.Cmdable, stream string, maxLen int64) *RedisSink {
	if maxLen <= 0 {
		maxLen = 100_000
	}
	return &RedisSink{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Send(ctx context.Context, e Event) error {
	data, err := sonic.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":          e.ID,
			"type":        string(e.Type),
			"entity_id":   e.EntityID,
			"occurred_at": e.OccurredAt.Format(time.RFC3339Nano),
			"data":        string(data),
		},
	}).Err()
}

// Close is a no-op; the client is owned by the process container.
func (s *RedisSink) Close() error { return nil }
