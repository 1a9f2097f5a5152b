package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"pocketledger/internal/amqp"
	"pocketledger/internal/ledger"
	applog "pocketledger/internal/log"
)

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
}

// EventSource is satisfied by *ledger.Store.
type EventSource interface {
	Subscribe(fn func(ledger.Event)) (unsubscribe func())
}

// EventRelayConfig holds configuration for the relay
type EventRelayConfig struct {
	// BufferSize bounds events waiting to be published (default: 256)
	BufferSize int
}

func DefaultEventRelayConfig() EventRelayConfig {
	return EventRelayConfig{BufferSize: 256}
}

// EventRelay forwards ledger events to the message broker. Events are
// queued from the bus callback and published from a separate goroutine,
// so a slow or unavailable broker never delays a ledger mutation. When
// the buffer is full the event is dropped and counted.
type EventRelay struct {
	source    EventSource
	publisher EventPublisher
	config    EventRelayConfig

	events  chan ledger.Event
	dropped atomic.Int64
	failed  atomic.Int64
	sent    atomic.Int64

	mu          sync.Mutex
	running     bool
	unsubscribe func()
	stopCh      chan struct{}
	doneCh      chan struct{}
}

func NewEventRelay(source EventSource, publisher EventPublisher, config EventRelayConfig) *EventRelay {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultEventRelayConfig().BufferSize
	}
	return &EventRelay{
		source:    source,
		publisher: publisher,
		config:    config,
		events:    make(chan ledger.Event, config.BufferSize),
	}
}

// Start subscribes to the ledger and begins publishing.
func (r *EventRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("event relay is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.unsubscribe = r.source.Subscribe(r.enqueue)
	r.mu.Unlock()

	go r.runLoop(ctx)

	slog.InfoContext(ctx, "Event relay started", "buffer_size", r.config.BufferSize)
	return nil
}

func (r *EventRelay) enqueue(e ledger.Event) {
	select {
	case r.events <- e:
	default:
		r.dropped.Add(1)
		slog.Warn("Event relay buffer full, dropping event", "op", e.Op, applog.FieldRevision, e.Revision)
	}
}

// Stop unsubscribes, drains queued events and waits for the loop to exit.
func (r *EventRelay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.unsubscribe()
	r.mu.Unlock()

	close(r.stopCh)

	select {
	case <-r.doneCh:
		slog.InfoContext(ctx, "Event relay stopped",
			"sent", r.sent.Load(),
			"failed", r.failed.Load(),
			"dropped", r.dropped.Load())
	case <-ctx.Done():
		slog.WarnContext(ctx, "Event relay stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

func (r *EventRelay) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Stats returns sent, failed and dropped counters.
func (r *EventRelay) Stats() (sent, failed, dropped int64) {
	return r.sent.Load(), r.failed.Load(), r.dropped.Load()
}

func (r *EventRelay) runLoop(ctx context.Context) {
	defer close(r.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			r.drain(ctx)
			return
		case e := <-r.events:
			r.publish(ctx, e)
		}
	}
}

func (r *EventRelay) drain(ctx context.Context) {
	for {
		select {
		case e := <-r.events:
			r.publish(ctx, e)
		default:
			return
		}
	}
}

func (r *EventRelay) publish(ctx context.Context, e ledger.Event) {
	var txID string
	if e.Transaction != nil {
		txID = e.Transaction.ID
	}
	msg := amqp.NewLedgerEventMessage(string(e.Kind), e.Op, e.Revision, txID)
	if err := r.publisher.PublishLedgerEvent(ctx, msg); err != nil {
		r.failed.Add(1)
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"op", e.Op,
			applog.FieldRevision, e.Revision,
			applog.FieldError, err)
		return
	}
	r.sent.Add(1)
}
