package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("notify: dispatch queue full")
	ErrClosed    = errors.New("notify: dispatcher closed")
)

// Async queues events for Next and delivers them from one background worker, so a
// slow endpoint never holds up a committed transition. Each delivery gets its own
// timeout, detached from the caller's request context.
type Async struct {
	next    Dispatcher
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

func NewAsync(next Dispatcher, logger *zap.Logger, size int, timeout time.Duration) *Async {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a := &Async{
		next:    next,
		logger:  logger,
		timeout: timeout,
		queue:   make(chan Event, size),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// Dispatch enqueues ev without waiting for delivery.
func (a *Async) Dispatch(_ context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) loop() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Dispatch(ctx, ev); err != nil {
			a.logger.Warn("async dispatch failed",
				zap.String("event_id", ev.ID),
				zap.String("request_id", ev.RequestID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
