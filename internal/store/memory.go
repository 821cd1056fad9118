package store

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"labportal/internal/apperr"
	"labportal/internal/authority"
	"labportal/internal/booking"
	"labportal/internal/directory"
	"labportal/internal/inventory"
	"labportal/internal/notify"
	"labportal/internal/request"
	"labportal/internal/timetable"
)

// Memory is an in-process Store. Transactions are fully serialised and run on a
// private copy of the data that replaces the shared copy only on success.
type Memory struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	Departments map[string]*directory.Department
	Labs        map[string]*directory.Lab
	Users       map[string]*directory.User
	Components  map[string]*inventory.Component
	Requests    map[string]*request.Request
	Timetable   map[string]*timetable.Entry
	Events      []notify.Event
}

// Fixture is the reference data a Memory store starts with.
type Fixture struct {
	Departments []directory.Department `json:"departments"`
	Labs        []directory.Lab        `json:"labs"`
	Users       []directory.User       `json:"users"`
	Components  []inventory.Component  `json:"components"`
}

func NewMemory() *Memory {
	return &Memory{data: &memData{
		Departments: map[string]*directory.Department{},
		Labs:        map[string]*directory.Lab{},
		Users:       map[string]*directory.User{},
		Components:  map[string]*inventory.Component{},
		Requests:    map[string]*request.Request{},
		Timetable:   map[string]*timetable.Entry{},
	}}
}

// Seed loads reference data, replacing rows with the same id.
func (m *Memory) Seed(f Fixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range f.Departments {
		d := f.Departments[i]
		authority.Normalize(&d)
		m.data.Departments[d.ID] = &d
	}
	for i := range f.Labs {
		l := f.Labs[i]
		l.StaffIDs = append([]string(nil), l.StaffIDs...)
		m.data.Labs[l.ID] = &l
	}
	for i := range f.Users {
		u := f.Users[i]
		m.data.Users[u.ID] = &u
	}
	for i := range f.Components {
		c := f.Components[i]
		m.data.Components[c.ID] = &c
	}
}

// LoadFixture reads a JSON Fixture from path.
func LoadFixture(path string) (Fixture, error) {
	var f Fixture
	b, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	err = json.Unmarshal(b, &f)
	return f, err
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.data.clone()
	if err := fn(&memTx{d: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *Memory) read() *memTx {
	return &memTx{d: m.data}
}

func (m *Memory) GetRequest(ctx context.Context, id string) (*request.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetRequestForUpdate(ctx, id)
}

func (m *Memory) ListRequestEvents(_ context.Context, requestID string) ([]notify.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notify.Event
	for _, ev := range m.data.Events {
		if ev.RequestID == requestID {
			ev.Recipients = append([]string(nil), ev.Recipients...)
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *Memory) ListApprovedBookings(ctx context.Context, labID string, date time.Time) ([]booking.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().ListApprovedBookings(ctx, labID, date)
}

func (m *Memory) ListTimetable(_ context.Context, labID string) ([]timetable.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []timetable.Entry
	for _, e := range m.data.Timetable {
		if e.LabID == labID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		if out[i].TimeSlotStart != out[j].TimeSlotStart {
			return out[i].TimeSlotStart < out[j].TimeSlotStart
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetDepartment(ctx context.Context, id string) (*directory.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetDepartment(ctx, id)
}

func (m *Memory) GetLab(ctx context.Context, id string) (*directory.Lab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetLab(ctx, id)
}

func (m *Memory) GetUser(ctx context.Context, id string) (*directory.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetUser(ctx, id)
}

func (m *Memory) GetComponent(ctx context.Context, id string) (*inventory.Component, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetComponent(ctx, id)
}

func (d *memData) clone() *memData {
	c := &memData{
		Departments: make(map[string]*directory.Department, len(d.Departments)),
		Labs:        make(map[string]*directory.Lab, len(d.Labs)),
		Users:       d.Users,
		Components:  make(map[string]*inventory.Component, len(d.Components)),
		Requests:    make(map[string]*request.Request, len(d.Requests)),
		Timetable:   make(map[string]*timetable.Entry, len(d.Timetable)),
		Events:      append([]notify.Event(nil), d.Events...),
	}
	for k, v := range d.Departments {
		dep := *v
		c.Departments[k] = &dep
	}
	for k, v := range d.Labs {
		lab := *v
		lab.StaffIDs = append([]string(nil), v.StaffIDs...)
		c.Labs[k] = &lab
	}
	for k, v := range d.Components {
		comp := *v
		c.Components[k] = &comp
	}
	for k, v := range d.Requests {
		c.Requests[k] = v.Clone()
	}
	for k, v := range d.Timetable {
		e := *v
		c.Timetable[k] = &e
	}
	return c
}

// memTx never hands out pointers into its maps; callers always get copies.
type memTx struct {
	d *memData
}

func (t *memTx) GetRequestForUpdate(_ context.Context, id string) (*request.Request, error) {
	r, ok := t.d.Requests[id]
	if !ok {
		return nil, apperr.ErrNotFound.With("request %s not found", id)
	}
	return r.Clone(), nil
}

func (t *memTx) InsertRequest(_ context.Context, r *request.Request) error {
	if _, ok := t.d.Requests[r.ID]; ok {
		return apperr.ErrValidation.With("request %s already exists", r.ID)
	}
	c := r.Clone()
	c.Audit = nil
	t.d.Requests[r.ID] = c
	return nil
}

func (t *memTx) UpdateRequest(_ context.Context, r *request.Request) error {
	cur, ok := t.d.Requests[r.ID]
	if !ok {
		return apperr.ErrNotFound.With("request %s not found", r.ID)
	}
	c := r.Clone()
	c.Audit = cur.Audit
	t.d.Requests[r.ID] = c
	return nil
}

func (t *memTx) AppendAudit(_ context.Context, e request.AuditEntry) error {
	r, ok := t.d.Requests[e.RequestID]
	if !ok {
		return apperr.ErrNotFound.With("request %s not found", e.RequestID)
	}
	r.Audit = append(r.Audit, e)
	return nil
}

// LockSlot is a no-op: memory transactions are already serialised.
func (t *memTx) LockSlot(context.Context, string, time.Time) error {
	return nil
}

func (t *memTx) ListApprovedBookings(_ context.Context, labID string, date time.Time) ([]booking.Slot, error) {
	day := booking.Day(date)
	var out []booking.Slot
	for _, r := range t.d.Requests {
		if r.Type != request.TypeBooking || r.Status != request.StatusApproved || r.LabID != labID {
			continue
		}
		s, ok := r.Slot()
		if !ok || !booking.Day(s.Date).Equal(day) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (t *memTx) GetComponent(ctx context.Context, id string) (*inventory.Component, error) {
	return t.GetComponentForUpdate(ctx, id)
}

func (t *memTx) GetComponentForUpdate(_ context.Context, id string) (*inventory.Component, error) {
	c, ok := t.d.Components[id]
	if !ok {
		return nil, apperr.ErrNotFound.With("component %s not found", id)
	}
	v := *c
	return &v, nil
}

func (t *memTx) UpdateComponentStock(_ context.Context, id string, available int) error {
	c, ok := t.d.Components[id]
	if !ok {
		return apperr.ErrNotFound.With("component %s not found", id)
	}
	c.QuantityAvailable = available
	return nil
}

func (t *memTx) GetDepartment(_ context.Context, id string) (*directory.Department, error) {
	d, ok := t.d.Departments[id]
	if !ok {
		return nil, apperr.ErrNotFound.With("department %s not found", id)
	}
	v := *d
	return &v, nil
}

func (t *memTx) GetDepartmentForUpdate(ctx context.Context, id string) (*directory.Department, error) {
	return t.GetDepartment(ctx, id)
}

func (t *memTx) UpdateDepartment(_ context.Context, d *directory.Department) error {
	if _, ok := t.d.Departments[d.ID]; !ok {
		return apperr.ErrNotFound.With("department %s not found", d.ID)
	}
	authority.Normalize(d)
	v := *d
	t.d.Departments[d.ID] = &v
	return nil
}

func (t *memTx) GetLab(_ context.Context, id string) (*directory.Lab, error) {
	l, ok := t.d.Labs[id]
	if !ok {
		return nil, apperr.ErrNotFound.With("lab %s not found", id)
	}
	v := *l
	v.StaffIDs = append([]string(nil), l.StaffIDs...)
	return &v, nil
}

func (t *memTx) GetUser(_ context.Context, id string) (*directory.User, error) {
	u, ok := t.d.Users[id]
	if !ok {
		return nil, apperr.ErrNotFound.With("user %s not found", id)
	}
	v := *u
	return &v, nil
}

func (t *memTx) GetTimetableEntryForUpdate(_ context.Context, id string) (*timetable.Entry, error) {
	e, ok := t.d.Timetable[id]
	if !ok {
		return nil, apperr.ErrNotFound.With("timetable entry %s not found", id)
	}
	v := *e
	return &v, nil
}

func (t *memTx) InsertTimetableEntry(_ context.Context, e *timetable.Entry) error {
	if _, ok := t.d.Timetable[e.ID]; ok {
		return apperr.ErrValidation.With("timetable entry %s already exists", e.ID)
	}
	v := *e
	t.d.Timetable[e.ID] = &v
	return nil
}

func (t *memTx) UpdateTimetableEntry(_ context.Context, e *timetable.Entry) error {
	if _, ok := t.d.Timetable[e.ID]; !ok {
		return apperr.ErrNotFound.With("timetable entry %s not found", e.ID)
	}
	v := *e
	t.d.Timetable[e.ID] = &v
	return nil
}

func (t *memTx) DeleteTimetableEntry(_ context.Context, id string) error {
	if _, ok := t.d.Timetable[id]; !ok {
		return apperr.ErrNotFound.With("timetable entry %s not found", id)
	}
	delete(t.d.Timetable, id)
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, ev notify.Event) error {
	ev.Recipients = append([]string(nil), ev.Recipients...)
	t.d.Events = append(t.d.Events, ev)
	return nil
}
