package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Multi fans an event out to every dispatcher and joins their errors.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, ev Event) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LogDispatcher struct {
	Logger *zap.Logger
}

func (d LogDispatcher) Dispatch(_ context.Context, ev Event) error {
	d.Logger.Info("lifecycle event",
		zap.String("event_id", ev.ID),
		zap.String("request_id", ev.RequestID),
		zap.String("request_type", string(ev.RequestType)),
		zap.String("action", ev.Action),
		zap.String("from", ev.FromState),
		zap.String("to", ev.ToState),
		zap.String("actor_id", ev.ActorID),
		zap.Strings("recipients", ev.Recipients),
	)
	return nil
}

// Recorder keeps every dispatched event in memory. Tests use it to assert on emissions.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Dispatch(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
