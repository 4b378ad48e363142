package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	got    []Event
	gate   chan struct{}
	err    error
	closed bool
}

func (s *captureSink) Send(ctx context.Context, e Event) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, e)
	return s.err
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.got...)
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestDispatcher_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, 8, quietLogger(&bytes.Buffer{}))
	d.Start()

	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 5; i++ {
		d.Publish(ctx, New(TypeProjectUpserted, uuid.New(), map[string]int{"i": i}, now))
	}
	require.NoError(t, d.Close(ctx))

	got := sink.events()
	require.Len(t, got, 5)
	for i, e := range got {
		assert.Equal(t, map[string]int{"i": i}, e.Data)
	}
	assert.True(t, sink.closed)

	// Publishing after close is dropped, not a panic.
	d.Publish(ctx, New(TypeProjectUpserted, uuid.New(), nil, now))
	assert.Len(t, sink.events(), 5)
}

func TestDispatcher_DropsWhenBufferFull(t *testing.T) {
	gate := make(chan struct{})
	sink := &captureSink{gate: gate}
	var logs bytes.Buffer
	d := NewDispatcher(sink, 1, quietLogger(&logs))
	// Not started: nothing drains, so the second publish overflows.
	ctx := context.Background()
	d.Publish(ctx, New(TypeContactUpserted, uuid.New(), nil, time.Now()))
	d.Publish(ctx, New(TypeContactUpserted, uuid.New(), nil, time.Now()))
	assert.Contains(t, logs.String(), "crm sync buffer full")

	d.Start()
	close(gate)
	require.NoError(t, d.Close(ctx))
	assert.Len(t, sink.events(), 1)
}

func TestDispatcher_SinkErrorsAreLogged(t *testing.T) {
	sink := &captureSink{err: errors.New("crm down")}
	var logs bytes.Buffer
	d := NewDispatcher(sink, 4, quietLogger(&logs))
	d.Start()
	d.Publish(context.Background(), New(TypeTerminalCreated, uuid.New(), nil, time.Now()))
	require.NoError(t, d.Close(context.Background()))
	assert.Contains(t, logs.String(), "crm sync send failed")
	assert.Contains(t, logs.String(), "crm down")
}

func TestRedisSink_AppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sink := NewRedisSink(rdb, "crm:sync", 0)
	id := uuid.New()
	e := New(TypeCallSessionCreated, id, map[string]string{"call_status": "completed"}, time.Unix(1700000000, 0))
	require.NoError(t, sink.Send(context.Background(), e))

	entries, err := rdb.XRange(context.Background(), "crm:sync", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	v := entries[0].Values
	assert.Equal(t, e.ID, v["id"])
	assert.Equal(t, "call_session.created", v["type"])
	assert.Equal(t, id.String(), v["entity_id"])
	assert.Equal(t, "2023-11-14T22:13:20Z", v["occurred_at"])
	assert.JSONEq(t, `{"call_status":"completed"}`, v["data"].(string))
}

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
	closed        bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPSink_PublishesJSON(t *testing.T) {
	ch := &fakeChannel{}
	sink := &AMQPSink{ch: ch, exchange: "crm.sync"}
	e := New(TypeTerminalRemoved, uuid.New(), map[string]string{"reason": "won"}, time.Unix(1700000000, 0))

	require.NoError(t, sink.Send(context.Background(), e))
	assert.Equal(t, "crm.sync", ch.exchange)
	assert.Equal(t, "terminal_session.removed", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, e.ID, ch.msg.MessageId)

	var decoded map[string]any
	require.NoError(t, sonic.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, "terminal_session.removed", decoded["type"])
	assert.Equal(t, map[string]any{"reason": "won"}, decoded["data"])

	require.NoError(t, sink.Close())
	assert.True(t, ch.closed)
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))
	r := &Recorder{}
	assert.Same(t, r, OrNop(r))
	r.Publish(context.Background(), Event{Type: TypeContactLinked})
	assert.Equal(t, []Type{TypeContactLinked}, r.Types())
}
