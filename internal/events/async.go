package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Async publisher defaults
const (
	DefaultQueueSize      = 256
	DefaultPublishTimeout = 5 * time.Second
)

var (
	// ErrQueueFull is returned when an event is dropped because the queue is full
	ErrQueueFull = errors.New("event queue full")
	// ErrPublisherClosed is returned for events published after Close
	ErrPublisherClosed = errors.New("event publisher closed")
)

type queuedEvent struct {
	eventType string
	key       string
	data      interface{}
}

// AsyncPublisher queues events for a single background sender so callers never
// wait on the broker. Each delivery gets its own timeout, detached from the
// caller's context.
type AsyncPublisher struct {
	next    Publisher
	queue   chan queuedEvent
	timeout time.Duration
	logger  *zap.Logger
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsyncPublisher starts a sender draining into next
func NewAsyncPublisher(next Publisher, queueSize int, timeout time.Duration, logger *zap.Logger) *AsyncPublisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &AsyncPublisher{
		next:    next,
		queue:   make(chan queuedEvent, queueSize),
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go p.drain()
	return p
}

// Publish enqueues the event without blocking. ctx is not used for delivery.
func (p *AsyncPublisher) Publish(_ context.Context, eventType, key string, data interface{}) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- queuedEvent{eventType: eventType, key: key, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events, waits for queued ones to be sent and closes next
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.next.Close()
}

func (p *AsyncPublisher) drain() {
	defer close(p.done)
	for evt := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.next.Publish(ctx, evt.eventType, evt.key, evt.data)
		cancel()
		if err != nil {
			p.logger.Error("failed to deliver event",
				zap.String("event_type", evt.eventType),
				zap.String("key", evt.key),
				zap.Error(err))
		}
	}
}
