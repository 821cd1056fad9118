package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"labportal/internal/apperr"
	"labportal/internal/authority"
	"labportal/internal/booking"
	"labportal/internal/directory"
	"labportal/internal/inventory"
	"labportal/internal/notify"
	"labportal/internal/request"
	"labportal/internal/timetable"
	"labportal/pkg/db"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

func (p *Postgres) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithTx(ctx, p.db, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

func (p *Postgres) GetRequest(ctx context.Context, id string) (*request.Request, error) {
	return getRequest(ctx, p.db, id, false)
}

func (p *Postgres) ListRequestEvents(ctx context.Context, requestID string) ([]notify.Event, error) {
	const q = `
SELECT id, request_id, request_type, action, from_state, to_state, actor_id, recipients, occurred_at
FROM request_events
WHERE request_id = $1
ORDER BY occurred_at ASC, created_at ASC
`
	rows, err := p.db.Query(ctx, q, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notify.Event
	for rows.Next() {
		var ev notify.Event
		if err := rows.Scan(&ev.ID, &ev.RequestID, &ev.RequestType, &ev.Action, &ev.FromState, &ev.ToState,
			&ev.ActorID, &ev.Recipients, &ev.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *Postgres) ListApprovedBookings(ctx context.Context, labID string, date time.Time) ([]booking.Slot, error) {
	return listApprovedBookings(ctx, p.db, labID, date)
}

func (p *Postgres) ListTimetable(ctx context.Context, labID string) ([]timetable.Entry, error) {
	const q = `
SELECT id, lab_id, day_of_week, time_slot_start, time_slot_end, notes, is_active, COALESCE(updated_by, ''), updated_at
FROM timetable_entries
WHERE lab_id = $1
ORDER BY day_of_week, time_slot_start, id
`
	rows, err := p.db.Query(ctx, q, labID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []timetable.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (p *Postgres) GetDepartment(ctx context.Context, id string) (*directory.Department, error) {
	return getDepartment(ctx, p.db, id, "")
}

func (p *Postgres) GetLab(ctx context.Context, id string) (*directory.Lab, error) {
	return getLab(ctx, p.db, id)
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*directory.User, error) {
	return getUser(ctx, p.db, id)
}

func (p *Postgres) GetComponent(ctx context.Context, id string) (*inventory.Component, error) {
	return getComponent(ctx, p.db, id, false)
}

type pgTx struct {
	q pgx.Tx
}

func (t *pgTx) GetRequestForUpdate(ctx context.Context, id string) (*request.Request, error) {
	return getRequest(ctx, t.q, id, true)
}

func (t *pgTx) InsertRequest(ctx context.Context, r *request.Request) error {
	const q = `
INSERT INTO requests (
  id, type, requester_id, requester_role, lab_id, purpose, status, faculty_id,
  booking_date, start_minute, end_minute, return_date, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
`
	var bookingDate, returnDate *time.Time
	var start, end *int
	if r.Booking != nil {
		d := booking.Day(r.Booking.Date)
		s, e := int(r.Booking.Start), int(r.Booking.End)
		bookingDate, start, end = &d, &s, &e
	}
	if r.Component != nil {
		d := booking.Day(r.Component.ReturnDate)
		returnDate = &d
	}
	if _, err := t.q.Exec(ctx, q, r.ID, string(r.Type), r.RequesterID, string(r.RequesterRole), r.LabID, r.Purpose,
		string(r.Status), nullString(r.FacultyID), bookingDate, start, end, returnDate, r.CreatedAt); err != nil {
		return err
	}

	if r.Component != nil {
		const qItem = `
INSERT INTO request_items (request_id, component_id, quantity, position)
VALUES ($1, $2, $3, $4)
`
		for i, it := range r.Component.Items {
			if _, err := t.q.Exec(ctx, qItem, r.ID, it.ComponentID, it.Quantity, i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *pgTx) UpdateRequest(ctx context.Context, r *request.Request) error {
	const q = `
UPDATE requests
SET status = $2,
    final_approver_role = $3, final_approver_id = $4, final_approved_at = $5,
    terminated_by = $6, termination_reason = $7, terminated_at = $8,
    return_date = $9, issued_at = $10, returned_at = $11, actual_return_date = $12,
    ext_requested_return_date = $13, ext_previous_return_date = $14, ext_reason = $15, ext_status = $16,
    ext_requested_at = $17, ext_resolved_by = $18, ext_resolved_at = $19, ext_remarks = $20,
    updated_at = $21
WHERE id = $1
`
	var (
		returnDate, issuedAt, returnedAt, actualReturn *time.Time
		extRequested, extPrevious, extRequestedAt      *time.Time
		extResolvedAt                                  *time.Time
		extReason, extStatus, extResolvedBy, extRemark *string
	)
	if c := r.Component; c != nil {
		d := booking.Day(c.ReturnDate)
		returnDate, issuedAt, returnedAt, actualReturn = &d, c.IssuedAt, c.ReturnedAt, c.ActualReturnDate
		if x := c.Extension; x != nil {
			rd, pd, at := booking.Day(x.RequestedReturnDate), booking.Day(x.PreviousReturnDate), x.RequestedAt
			st := string(x.Status)
			extRequested, extPrevious, extRequestedAt = &rd, &pd, &at
			extReason, extStatus, extResolvedBy, extRemark = nullString(x.Reason), &st, nullString(x.ResolvedBy), nullString(x.Remarks)
			extResolvedAt = x.ResolvedAt
		}
	}

	tag, err := t.q.Exec(ctx, q, r.ID, string(r.Status),
		nullString(string(r.FinalApproverRole)), nullString(r.FinalApproverID), r.FinalApprovedAt,
		nullString(r.TerminatedBy), nullString(r.TerminationReason), r.TerminatedAt,
		returnDate, issuedAt, returnedAt, actualReturn,
		extRequested, extPrevious, extReason, extStatus,
		extRequestedAt, extResolvedBy, extResolvedAt, extRemark,
		r.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound.With("request %s not found", r.ID)
	}
	return nil
}

func (t *pgTx) AppendAudit(ctx context.Context, e request.AuditEntry) error {
	const q = `
INSERT INTO request_audit (id, request_id, action, role, actor_id, from_status, to_status, reason, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := t.q.Exec(ctx, q, e.ID, e.RequestID, string(e.Action), e.Role, e.ActorID,
		string(e.From), string(e.To), nullString(e.Reason), e.At)
	return err
}

func (t *pgTx) LockSlot(ctx context.Context, labID string, date time.Time) error {
	const q = `SELECT pg_advisory_xact_lock(hashtext($1))`
	key := fmt.Sprintf("slot:%s:%s", labID, booking.Day(date).Format(booking.DateLayout))
	_, err := t.q.Exec(ctx, q, key)
	return err
}

func (t *pgTx) ListApprovedBookings(ctx context.Context, labID string, date time.Time) ([]booking.Slot, error) {
	return listApprovedBookings(ctx, t.q, labID, date)
}

func (t *pgTx) GetComponent(ctx context.Context, id string) (*inventory.Component, error) {
	return getComponent(ctx, t.q, id, false)
}

func (t *pgTx) GetComponentForUpdate(ctx context.Context, id string) (*inventory.Component, error) {
	return getComponent(ctx, t.q, id, true)
}

func (t *pgTx) UpdateComponentStock(ctx context.Context, id string, available int) error {
	const q = `UPDATE components SET quantity_available = $2 WHERE id = $1`
	tag, err := t.q.Exec(ctx, q, id, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound.With("component %s not found", id)
	}
	return nil
}

func (t *pgTx) GetDepartment(ctx context.Context, id string) (*directory.Department, error) {
	return getDepartment(ctx, t.q, id, "FOR SHARE")
}

func (t *pgTx) GetDepartmentForUpdate(ctx context.Context, id string) (*directory.Department, error) {
	return getDepartment(ctx, t.q, id, "FOR UPDATE")
}

func (t *pgTx) UpdateDepartment(ctx context.Context, d *directory.Department) error {
	authority.Normalize(d)
	const q = `
UPDATE departments
SET hod_id = $2, lab_coordinator_id = $3, highest_approval_authority = $4, updated_at = NOW()
WHERE id = $1
`
	tag, err := t.q.Exec(ctx, q, d.ID, nullString(d.HODID), nullString(d.LabCoordinatorID), string(d.ApprovalAuthority))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound.With("department %s not found", d.ID)
	}
	return nil
}

func (t *pgTx) GetLab(ctx context.Context, id string) (*directory.Lab, error) {
	return getLab(ctx, t.q, id)
}

func (t *pgTx) GetUser(ctx context.Context, id string) (*directory.User, error) {
	return getUser(ctx, t.q, id)
}

func (t *pgTx) GetTimetableEntryForUpdate(ctx context.Context, id string) (*timetable.Entry, error) {
	const q = `
SELECT id, lab_id, day_of_week, time_slot_start, time_slot_end, notes, is_active, COALESCE(updated_by, ''), updated_at
FROM timetable_entries
WHERE id = $1
FOR UPDATE
`
	e, err := scanEntry(t.q.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound.With("timetable entry %s not found", id)
	}
	return e, err
}

func (t *pgTx) InsertTimetableEntry(ctx context.Context, e *timetable.Entry) error {
	const q = `
INSERT INTO timetable_entries (id, lab_id, day_of_week, time_slot_start, time_slot_end, notes, is_active, updated_by, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := t.q.Exec(ctx, q, e.ID, e.LabID, int(e.DayOfWeek), int(e.TimeSlotStart), int(e.TimeSlotEnd),
		e.Notes, e.IsActive, nullString(e.UpdatedBy), e.UpdatedAt)
	return err
}

func (t *pgTx) UpdateTimetableEntry(ctx context.Context, e *timetable.Entry) error {
	const q = `
UPDATE timetable_entries
SET day_of_week = $2, time_slot_start = $3, time_slot_end = $4, notes = $5, is_active = $6,
    updated_by = $7, updated_at = $8
WHERE id = $1
`
	tag, err := t.q.Exec(ctx, q, e.ID, int(e.DayOfWeek), int(e.TimeSlotStart), int(e.TimeSlotEnd),
		e.Notes, e.IsActive, nullString(e.UpdatedBy), e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound.With("timetable entry %s not found", e.ID)
	}
	return nil
}

func (t *pgTx) DeleteTimetableEntry(ctx context.Context, id string) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM timetable_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound.With("timetable entry %s not found", id)
	}
	return nil
}

func (t *pgTx) InsertEvent(ctx context.Context, ev notify.Event) error {
	const q = `
INSERT INTO request_events (id, request_id, request_type, action, from_state, to_state, actor_id, recipients, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	recipients := ev.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	_, err := t.q.Exec(ctx, q, ev.ID, ev.RequestID, string(ev.RequestType), ev.Action, ev.FromState, ev.ToState,
		ev.ActorID, recipients, ev.Timestamp)
	return err
}

const requestColumns = `
id, type, requester_id, requester_role, lab_id, purpose, status, COALESCE(faculty_id, ''),
COALESCE(final_approver_role, ''), COALESCE(final_approver_id, ''), final_approved_at,
COALESCE(terminated_by, ''), COALESCE(termination_reason, ''), terminated_at,
booking_date, start_minute, end_minute,
return_date, issued_at, returned_at, actual_return_date,
ext_requested_return_date, ext_previous_return_date, COALESCE(ext_reason, ''), COALESCE(ext_status, ''),
ext_requested_at, COALESCE(ext_resolved_by, ''), ext_resolved_at, COALESCE(ext_remarks, ''),
created_at, updated_at`

func getRequest(ctx context.Context, q querier, id string, forUpdate bool) (*request.Request, error) {
	sql := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var (
		r                                           request.Request
		status, finalRole                           string
		bookingDate, returnDate                     *time.Time
		startMinute, endMinute                      *int
		issuedAt, returnedAt, actualReturn          *time.Time
		extRequested, extPrevious, extRequestedAt   *time.Time
		extResolvedAt                               *time.Time
		extReason, extStatus, extResolvedBy, extRmk string
	)
	err := q.QueryRow(ctx, sql, id).Scan(
		&r.ID, &r.Type, &r.RequesterID, &r.RequesterRole, &r.LabID, &r.Purpose, &status, &r.FacultyID,
		&finalRole, &r.FinalApproverID, &r.FinalApprovedAt,
		&r.TerminatedBy, &r.TerminationReason, &r.TerminatedAt,
		&bookingDate, &startMinute, &endMinute,
		&returnDate, &issuedAt, &returnedAt, &actualReturn,
		&extRequested, &extPrevious, &extReason, &extStatus,
		&extRequestedAt, &extResolvedBy, &extResolvedAt, &extRmk,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound.With("request %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if r.Status, err = request.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("request %s: %w", id, err)
	}
	r.FinalApproverRole = directory.Authority(finalRole)

	switch r.Type {
	case request.TypeBooking:
		if bookingDate == nil || startMinute == nil || endMinute == nil {
			return nil, fmt.Errorf("request %s: booking columns missing", id)
		}
		r.Booking = &request.BookingDetails{
			Date:  *bookingDate,
			Start: booking.TimeOfDay(*startMinute),
			End:   booking.TimeOfDay(*endMinute),
		}
	case request.TypeComponent:
		c := &request.ComponentDetails{IssuedAt: issuedAt, ReturnedAt: returnedAt, ActualReturnDate: actualReturn}
		if returnDate != nil {
			c.ReturnDate = *returnDate
		}
		if extStatus != "" && extRequested != nil {
			x := &request.Extension{
				RequestedReturnDate: *extRequested,
				Reason:              extReason,
				Status:              request.ExtensionStatus(extStatus),
				ResolvedBy:          extResolvedBy,
				ResolvedAt:          extResolvedAt,
				Remarks:             extRmk,
			}
			if extPrevious != nil {
				x.PreviousReturnDate = *extPrevious
			}
			if extRequestedAt != nil {
				x.RequestedAt = *extRequestedAt
			}
			c.Extension = x
		}
		items, err := listItems(ctx, q, id)
		if err != nil {
			return nil, err
		}
		c.Items = items
		r.Component = c
	}

	audit, err := listAudit(ctx, q, id)
	if err != nil {
		return nil, err
	}
	r.Audit = audit
	return &r, nil
}

func listItems(ctx context.Context, q querier, requestID string) ([]request.Item, error) {
	rows, err := q.Query(ctx, `SELECT component_id, quantity FROM request_items WHERE request_id = $1 ORDER BY position`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []request.Item
	for rows.Next() {
		var it request.Item
		if err := rows.Scan(&it.ComponentID, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func listAudit(ctx context.Context, q querier, requestID string) ([]request.AuditEntry, error) {
	const sql = `
SELECT id, request_id, action, role, actor_id, from_status, to_status, COALESCE(reason, ''), at
FROM request_audit
WHERE request_id = $1
ORDER BY at ASC, id ASC
`
	rows, err := q.Query(ctx, sql, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []request.AuditEntry
	for rows.Next() {
		var e request.AuditEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Action, &e.Role, &e.ActorID, &e.From, &e.To, &e.Reason, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func listApprovedBookings(ctx context.Context, q querier, labID string, date time.Time) ([]booking.Slot, error) {
	const sql = `
SELECT id, lab_id, booking_date, start_minute, end_minute
FROM requests
WHERE type = 'booking' AND status = 'APPROVED' AND lab_id = $1 AND booking_date = $2
ORDER BY start_minute
`
	rows, err := q.Query(ctx, sql, labID, booking.Day(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Slot
	for rows.Next() {
		var s booking.Slot
		var start, end int
		if err := rows.Scan(&s.RequestID, &s.LabID, &s.Date, &start, &end); err != nil {
			return nil, err
		}
		s.Start, s.End = booking.TimeOfDay(start), booking.TimeOfDay(end)
		out = append(out, s)
	}
	return out, rows.Err()
}

func getComponent(ctx context.Context, q querier, id string, forUpdate bool) (*inventory.Component, error) {
	sql := `SELECT id, lab_id, name, quantity_total, quantity_available FROM components WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var c inventory.Component
	err := q.QueryRow(ctx, sql, id).Scan(&c.ID, &c.LabID, &c.Name, &c.QuantityTotal, &c.QuantityAvailable)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound.With("component %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func getDepartment(ctx context.Context, q querier, id string, lock string) (*directory.Department, error) {
	sql := `
SELECT id, name, code, COALESCE(hod_id, ''), COALESCE(lab_coordinator_id, ''), highest_approval_authority
FROM departments
WHERE id = $1 ` + lock
	var d directory.Department
	err := q.QueryRow(ctx, sql, id).Scan(&d.ID, &d.Name, &d.Code, &d.HODID, &d.LabCoordinatorID, &d.ApprovalAuthority)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound.With("department %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func getLab(ctx context.Context, q querier, id string) (*directory.Lab, error) {
	const sql = `
SELECT l.id, l.name, l.code, l.department_id, COALESCE(l.head_staff_id, ''),
       COALESCE(ARRAY(SELECT s.user_id FROM lab_staff s WHERE s.lab_id = l.id ORDER BY s.user_id), '{}')
FROM labs l
WHERE l.id = $1
`
	var l directory.Lab
	err := q.QueryRow(ctx, sql, id).Scan(&l.ID, &l.Name, &l.Code, &l.DepartmentID, &l.HeadStaffID, &l.StaffIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound.With("lab %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func getUser(ctx context.Context, q querier, id string) (*directory.User, error) {
	const sql = `SELECT id, name, email, role, COALESCE(department_code, '') FROM users WHERE id = $1`
	var u directory.User
	err := q.QueryRow(ctx, sql, id).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.DepartmentCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound.With("user %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanEntry(row pgx.Row) (*timetable.Entry, error) {
	var e timetable.Entry
	var day, start, end int
	if err := row.Scan(&e.ID, &e.LabID, &day, &start, &end, &e.Notes, &e.IsActive, &e.UpdatedBy, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.DayOfWeek = time.Weekday(day)
	e.TimeSlotStart, e.TimeSlotEnd = booking.TimeOfDay(start), booking.TimeOfDay(end)
	return &e, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
