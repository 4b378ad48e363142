package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"outbound-crm/pkg/logger"
)

const defaultSendTimeout = 5 * time.Second

// Dispatcher is an in-process Publisher that hands events to a Sink from a single
// background goroutine. When the buffer is full the event is dropped and logged.
type Dispatcher struct {
	sink        Sink
	log         *slog.Logger
	sendTimeout time.Duration

	mu     sync.RWMutex
	ch     chan Event
	closed bool
	done   chan struct{}
}

var _ Publisher = (*Dispatcher)(nil)

func NewDispatcher(sink Sink, buffer int, log *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		sink:        sink,
		log:         logger.OrDefault(log).With("component", "crm_sync"),
		sendTimeout: defaultSendTimeout,
		ch:          make(chan Event, buffer),
		done:        make(chan struct{}),
	}
}

// Start launches the drain goroutine. Call once.
func (d *Dispatcher) Start() {
	go d.run()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		if err := d.sink.Send(ctx, e); err != nil {
			d.log.Warn("crm sync send failed", "event_id", e.ID, "type", e.Type, "entity_id", e.EntityID, "err", err)
		}
		cancel()
	}
}

func (d *Dispatcher) Publish(ctx context.Context, e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		logger.FromOr(ctx, d.log).Warn("crm sync event after close dropped", "event_id", e.ID, "type", e.Type)
		return
	}
	select {
	case d.ch <- e:
	default:
		logger.FromOr(ctx, d.log).Warn("crm sync buffer full, event dropped", "event_id", e.ID, "type", e.Type, "entity_id", e.EntityID)
	}
}

// Close stops intake, drains what is buffered and closes the sink.
// It returns ctx.Err() if draining outlives ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return d.sink.Close()
}
