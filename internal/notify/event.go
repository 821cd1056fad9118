// Package notify carries lifecycle events from the engine to whoever renders and
// delivers them. The engine decides that an event fires and to whom; message
// content belongs to the consumers.
package notify

import (
	"context"
	"time"
)

type RequestType string

const (
	RequestTypeBooking    RequestType = "booking"
	RequestTypeComponent  RequestType = "component"
	RequestTypeDepartment RequestType = "department"
)

// Event describes one committed transition. For department authority changes
// RequestID is the department id and the states are authority names.
type Event struct {
	ID          string      `json:"id"`
	RequestID   string      `json:"requestId"`
	RequestType RequestType `json:"requestType"`
	Action      string      `json:"action"`
	FromState   string      `json:"fromState"`
	ToState     string      `json:"toState"`
	ActorID     string      `json:"actorId"`
	Recipients  []string    `json:"recipients,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Dispatcher delivers committed events. Implementations must not block the caller
// for long; failures are reported, never retried by the engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, ev Event) error

func (f DispatcherFunc) Dispatch(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
