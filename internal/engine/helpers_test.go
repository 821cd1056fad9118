package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"labportal/internal/booking"
	"labportal/internal/directory"
	"labportal/internal/inventory"
	"labportal/internal/notify"
	"labportal/internal/request"
	"labportal/internal/store"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	eng   *Engine
	store *store.Memory
	rec   *notify.Recorder
	clock *clock
}

func fixture() store.Fixture {
	return store.Fixture{
		Users: []directory.User{
			{ID: "stu", Name: "Student", Email: "stu@example.edu", Role: directory.RoleStudent},
			{ID: "stu2", Name: "Student Two", Email: "stu2@example.edu", Role: directory.RoleStudent},
			{ID: "fac", Name: "Faculty", Email: "fac@example.edu", Role: directory.RoleFaculty},
			{ID: "fac2", Name: "Faculty Two", Email: "fac2@example.edu", Role: directory.RoleFaculty},
			{ID: "staff1", Name: "Head Staff", Email: "staff1@example.edu", Role: directory.RoleLabStaff},
			{ID: "staff2", Name: "Staff", Email: "staff2@example.edu", Role: directory.RoleLabStaff},
			{ID: "hod", Name: "HOD", Email: "hod@example.edu", Role: directory.RoleHOD},
			{ID: "coord", Name: "Coordinator", Email: "coord@example.edu", Role: directory.RoleFaculty},
			{ID: "other", Name: "Visitor", Email: "other@example.edu", Role: directory.RoleOthers},
		},
		Departments: []directory.Department{
			{ID: "cse", Name: "Computer Science", Code: "CSE", HODID: "hod", LabCoordinatorID: "coord", ApprovalAuthority: directory.AuthorityHOD},
			{ID: "eee", Name: "Electrical", Code: "EEE", LabCoordinatorID: "coord", ApprovalAuthority: directory.AuthorityHOD},
		},
		Labs: []directory.Lab{
			{ID: "cp1", Name: "Computing Lab 1", Code: "CP1", DepartmentID: "cse", StaffIDs: []string{"staff1", "staff2"}, HeadStaffID: "staff1"},
		},
		Components: []inventory.Component{
			{ID: "res", LabID: "cp1", Name: "Resistor kit", QuantityTotal: 10, QuantityAvailable: 10},
			{ID: "ard", LabID: "cp1", Name: "Arduino Uno", QuantityTotal: 10, QuantityAvailable: 3},
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := store.NewMemory()
	s.Seed(fixture())
	rec := &notify.Recorder{}
	clk := &clock{t: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	return &harness{
		eng:   New(s, rec, zap.NewNop(), WithClock(clk.now)),
		store: s,
		rec:   rec,
		clock: clk,
	}
}

func day(s string) time.Time {
	d, err := booking.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func hhmm(s string) booking.TimeOfDay {
	v, err := booking.ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (h *harness) book(t *testing.T, actor, date, start, end string) *request.Request {
	t.Helper()
	r, err := h.eng.SubmitBooking(context.Background(), actor, BookingInput{
		LabID: "cp1", Purpose: "practice", Date: day(date), Start: hhmm(start), End: hhmm(end),
	})
	require.NoError(t, err)
	return r
}

func (h *harness) borrow(t *testing.T, actor string, items ...request.Item) *request.Request {
	t.Helper()
	r, err := h.eng.SubmitComponent(context.Background(), actor, ComponentInput{
		LabID: "cp1", Purpose: "project", Items: items, ReturnDate: day("2024-01-20"),
	})
	require.NoError(t, err)
	return r
}

// toFinal drives a request to PENDING_FINAL_AUTHORITY through the default approvers.
func (h *harness) toFinal(t *testing.T, r *request.Request) {
	t.Helper()
	ctx := context.Background()
	if r.Status == request.StatusPendingFaculty {
		_, err := h.eng.Approve(ctx, r.ID, "fac")
		require.NoError(t, err)
	}
	got, err := h.eng.Approve(ctx, r.ID, "staff1")
	require.NoError(t, err)
	require.Equal(t, request.StatusPendingFinalAuthority, got.Status)
}

func (h *harness) approved(t *testing.T, r *request.Request) *request.Request {
	t.Helper()
	h.toFinal(t, r)
	got, err := h.eng.Approve(context.Background(), r.ID, "hod")
	require.NoError(t, err)
	require.Equal(t, request.StatusApproved, got.Status)
	return got
}

func (h *harness) reload(t *testing.T, id string) *request.Request {
	t.Helper()
	r, err := h.store.GetRequest(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (h *harness) available(t *testing.T, componentID string) int {
	t.Helper()
	c, err := h.store.GetComponent(context.Background(), componentID)
	require.NoError(t, err)
	return c.QuantityAvailable
}
