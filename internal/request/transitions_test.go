package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"labportal/internal/directory"
)

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusPendingFaculty, InitialStatus(directory.RoleStudent))
	for _, r := range []directory.Role{directory.RoleFaculty, directory.RoleLabStaff, directory.RoleHOD, directory.RoleOthers} {
		assert.Equal(t, StatusPendingLabStaff, InitialStatus(r), r)
	}
}

func TestNext_ApprovalChain(t *testing.T) {
	s := StatusPendingFaculty
	var ok bool
	for _, want := range []Status{StatusPendingLabStaff, StatusPendingFinalAuthority, StatusApproved} {
		s, ok = Next(TypeBooking, s, ActionApprove)
		assert.True(t, ok)
		assert.Equal(t, want, s)
	}
	_, ok = Next(TypeBooking, StatusApproved, ActionApprove)
	assert.False(t, ok)
}

func TestNext_LoanEdgesOnlyForComponents(t *testing.T) {
	_, ok := Next(TypeBooking, StatusApproved, ActionIssue)
	assert.False(t, ok)

	to, ok := Next(TypeComponent, StatusApproved, ActionIssue)
	assert.True(t, ok)
	assert.Equal(t, StatusIssued, to)

	to, ok = Next(TypeComponent, StatusIssued, ActionReturnRequest)
	assert.True(t, ok)
	assert.Equal(t, StatusReturnRequested, to)

	to, ok = Next(TypeComponent, StatusReturnRequested, ActionCompleteReturn)
	assert.True(t, ok)
	assert.Equal(t, StatusReturned, to)
}

func TestNext_RejectAndWithdrawOnlyWhilePending(t *testing.T) {
	for _, s := range []Status{StatusPendingFaculty, StatusPendingLabStaff, StatusPendingFinalAuthority} {
		to, ok := Next(TypeBooking, s, ActionReject)
		assert.True(t, ok)
		assert.Equal(t, StatusRejected, to)
		to, ok = Next(TypeComponent, s, ActionWithdraw)
		assert.True(t, ok)
		assert.Equal(t, StatusWithdrawn, to)
	}
	for _, s := range []Status{StatusApproved, StatusRejected, StatusWithdrawn, StatusIssued} {
		_, ok := Next(TypeComponent, s, ActionReject)
		assert.False(t, ok, s)
		_, ok = Next(TypeComponent, s, ActionWithdraw)
		assert.False(t, ok, s)
	}
}

func TestNext_SubmitIsNotATableLookup(t *testing.T) {
	_, ok := Next(TypeBooking, StatusCreated, ActionSubmit)
	assert.False(t, ok)
	assert.True(t, CanTransition(TypeBooking, StatusCreated, StatusPendingFaculty))
	assert.True(t, CanTransition(TypeBooking, StatusCreated, StatusPendingLabStaff))
	assert.False(t, CanTransition(TypeBooking, StatusCreated, StatusApproved))
}

func TestAllowedActions(t *testing.T) {
	assert.ElementsMatch(t, []Action{ActionApprove, ActionReject, ActionWithdraw}, AllowedActions(TypeBooking, StatusPendingLabStaff))
	assert.Empty(t, AllowedActions(TypeBooking, StatusApproved))
	assert.Equal(t, []Action{ActionIssue}, AllowedActions(TypeComponent, StatusApproved))
	assert.Empty(t, AllowedActions(TypeComponent, StatusReturned))
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, tr := range transitionsTable {
		assert.False(t, tr.From.Terminal(), "edge leaves terminal state %s", tr.From)
	}
}

func TestDelayDays(t *testing.T) {
	due := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	c := ComponentDetails{ReturnDate: due}
	assert.Equal(t, 0, c.DelayDays())

	onTime := due.Add(15 * time.Hour)
	c.ActualReturnDate = &onTime
	assert.Equal(t, 0, c.DelayDays())

	late := due.AddDate(0, 0, 3).Add(2 * time.Hour)
	c.ActualReturnDate = &late
	assert.Equal(t, 3, c.DelayDays())
}

func TestClone_IsDeep(t *testing.T) {
	r := &Request{
		ID:        "r1",
		Component: &ComponentDetails{Items: []Item{{ComponentID: "c1", Quantity: 2}}, Extension: &Extension{Status: ExtensionPending}},
		Audit:     []AuditEntry{{Action: ActionSubmit}},
	}
	c := r.Clone()
	c.Component.Items[0].Quantity = 9
	c.Component.Extension.Status = ExtensionApproved
	c.Audit[0].Action = ActionReject

	assert.Equal(t, 2, r.Component.Items[0].Quantity)
	assert.Equal(t, ExtensionPending, r.Component.Extension.Status)
	assert.Equal(t, ActionSubmit, r.Audit[0].Action)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("PENDING_LAB_STAFF")
	assert.NoError(t, err)
	assert.Equal(t, StatusPendingLabStaff, s)

	_, err = ParseStatus("pending")
	assert.Error(t, err)
}

func TestPendingStatuses(t *testing.T) {
	for _, s := range []Status{StatusPendingFaculty, StatusPendingLabStaff, StatusPendingFinalAuthority} {
		assert.True(t, s.Pending(), s)
	}
	for _, s := range []Status{StatusCreated, StatusApproved, StatusIssued, StatusRejected, StatusReturned} {
		assert.False(t, s.Pending(), s)
	}
}
