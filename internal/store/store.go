// Package store persists requests, departments, labs, stock and timetables.
// Every lifecycle mutation runs inside WithTx so the read-check-write of a
// transition is one atomic unit.
package store

import (
	"context"
	"time"

	"labportal/internal/booking"
	"labportal/internal/directory"
	"labportal/internal/inventory"
	"labportal/internal/notify"
	"labportal/internal/request"
	"labportal/internal/timetable"
)

type Store interface {
	Reader

	// WithTx runs fn atomically. A non-nil error from fn rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reader serves plain reads outside any transaction.
type Reader interface {
	GetRequest(ctx context.Context, id string) (*request.Request, error)
	ListRequestEvents(ctx context.Context, requestID string) ([]notify.Event, error)
	ListApprovedBookings(ctx context.Context, labID string, date time.Time) ([]booking.Slot, error)
	ListTimetable(ctx context.Context, labID string) ([]timetable.Entry, error)
	GetDepartment(ctx context.Context, id string) (*directory.Department, error)
	GetLab(ctx context.Context, id string) (*directory.Lab, error)
	GetUser(ctx context.Context, id string) (*directory.User, error)
	GetComponent(ctx context.Context, id string) (*inventory.Component, error)
}

// Tx is the view of the store inside one transaction. Methods suffixed ForUpdate
// lock the row until the transaction ends.
type Tx interface {
	GetRequestForUpdate(ctx context.Context, id string) (*request.Request, error)
	InsertRequest(ctx context.Context, r *request.Request) error
	// UpdateRequest writes status and per-step fields. The audit trail is only
	// ever extended through AppendAudit.
	UpdateRequest(ctx context.Context, r *request.Request) error
	AppendAudit(ctx context.Context, e request.AuditEntry) error

	// LockSlot serialises every transaction that approves a booking for labID on date.
	LockSlot(ctx context.Context, labID string, date time.Time) error
	ListApprovedBookings(ctx context.Context, labID string, date time.Time) ([]booking.Slot, error)

	GetComponent(ctx context.Context, id string) (*inventory.Component, error)
	GetComponentForUpdate(ctx context.Context, id string) (*inventory.Component, error)
	UpdateComponentStock(ctx context.Context, id string, available int) error

	GetDepartment(ctx context.Context, id string) (*directory.Department, error)
	GetDepartmentForUpdate(ctx context.Context, id string) (*directory.Department, error)
	UpdateDepartment(ctx context.Context, d *directory.Department) error
	GetLab(ctx context.Context, id string) (*directory.Lab, error)
	GetUser(ctx context.Context, id string) (*directory.User, error)

	GetTimetableEntryForUpdate(ctx context.Context, id string) (*timetable.Entry, error)
	InsertTimetableEntry(ctx context.Context, e *timetable.Entry) error
	UpdateTimetableEntry(ctx context.Context, e *timetable.Entry) error
	DeleteTimetableEntry(ctx context.Context, id string) error

	InsertEvent(ctx context.Context, ev notify.Event) error
}
