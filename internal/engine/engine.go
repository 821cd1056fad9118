// Package engine applies lifecycle operations to requests, departments and lab
// timetables. Each operation is one store transaction: read with locks, check the
// actor and the transition, write the new state with its audit entry and events.
// Events are handed to the dispatcher only after the transaction commits.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"labportal/internal/booking"
	"labportal/internal/notify"
	"labportal/internal/store"
)

type Engine struct {
	store      store.Store
	dispatcher notify.Dispatcher
	logger     *zap.Logger
	conflicts  booking.Validator

	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests that need stable dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs replaces the uuid generator.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func New(s store.Store, d notify.Dispatcher, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if d == nil {
		d = notify.Multi(nil)
	}
	e := &Engine{
		store:      s,
		dispatcher: d,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// txn carries one operation's transaction and the events it will publish.
type txn struct {
	tx        store.Tx
	now       time.Time
	newID     func() string
	conflicts booking.Validator
	events    []notify.Event
}

func (t *txn) emit(ctx context.Context, ev notify.Event) error {
	ev.ID = t.newID()
	ev.Timestamp = t.now
	ev.Recipients = dedupe(ev.Recipients)
	if err := t.tx.InsertEvent(ctx, ev); err != nil {
		return err
	}
	t.events = append(t.events, ev)
	return nil
}

// run executes fn in one transaction and dispatches its events after commit.
// Dispatch failures are logged; the committed state stands.
func (e *Engine) run(ctx context.Context, fn func(t *txn) error) error {
	var committed []notify.Event
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		t := &txn{tx: tx, now: e.now().UTC(), newID: e.newID, conflicts: e.conflicts}
		if err := fn(t); err != nil {
			return err
		}
		committed = t.events
		return nil
	})
	if err != nil {
		return err
	}

	for _, ev := range committed {
		e.logger.Debug("transition committed",
			zap.String("request_id", ev.RequestID),
			zap.String("action", ev.Action),
			zap.String("from", ev.FromState),
			zap.String("to", ev.ToState),
			zap.String("actor_id", ev.ActorID),
		)
		if err := e.dispatcher.Dispatch(ctx, ev); err != nil {
			e.logger.Warn("event dispatch failed",
				zap.String("event_id", ev.ID),
				zap.String("request_id", ev.RequestID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
