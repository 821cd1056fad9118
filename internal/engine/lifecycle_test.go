package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"labportal/internal/apperr"
	"labportal/internal/directory"
	"labportal/internal/notify"
	"labportal/internal/request"
)

func TestStudentBookingFullChain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.book(t, "stu", "2024-01-18", "10:00", "11:00")
	assert.Equal(t, request.StatusPendingFaculty, r.Status)

	r, err := h.eng.Approve(ctx, r.ID, "fac")
	require.NoError(t, err)
	assert.Equal(t, request.StatusPendingLabStaff, r.Status)

	r, err = h.eng.Approve(ctx, r.ID, "staff2")
	require.NoError(t, err)
	assert.Equal(t, request.StatusPendingFinalAuthority, r.Status)

	r, err = h.eng.Approve(ctx, r.ID, "hod")
	require.NoError(t, err)
	assert.Equal(t, request.StatusApproved, r.Status)
	assert.Equal(t, directory.AuthorityHOD, r.FinalApproverRole)
	assert.Equal(t, "hod", r.FinalApproverID)
	require.NotNil(t, r.FinalApprovedAt)

	stored := h.reload(t, r.ID)
	require.Len(t, stored.Audit, 4)
	var roles []string
	for _, e := range stored.Audit {
		roles = append(roles, e.Role)
	}
	assert.Equal(t, []string{"requester", "faculty", "lab_staff", "hod"}, roles)

	rec, ok := stored.Recommendation(request.StatusPendingFaculty)
	require.True(t, ok)
	assert.Equal(t, "fac", rec.ActorID)

	evs := h.rec.Events()
	require.Len(t, evs, 4)
	last := evs[3]
	assert.Equal(t, "PENDING_FINAL_AUTHORITY", last.FromState)
	assert.Equal(t, "APPROVED", last.ToState)
	assert.Equal(t, "hod", last.ActorID)
	assert.Equal(t, notify.RequestTypeBooking, last.RequestType)
	assert.Contains(t, last.Recipients, "stu")

	persisted, err := h.store.ListRequestEvents(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, persisted, 4)
}

func TestNonStudentSkipsFacultyStep(t *testing.T) {
	h := newHarness(t)
	for _, actor := range []string{"fac", "staff1", "other"} {
		r := h.book(t, actor, "2024-01-18", "10:00", "11:00")
		assert.Equal(t, request.StatusPendingLabStaff, r.Status, actor)
	}
}

func TestSubmitNotifiesNextApprovers(t *testing.T) {
	h := newHarness(t)
	h.book(t, "fac", "2024-01-18", "10:00", "11:00")

	evs := h.rec.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "SUBMIT", evs[0].Action)
	assert.Equal(t, "CREATED", evs[0].FromState)
	assert.ElementsMatch(t, []string{"fac", "staff1", "staff2"}, evs[0].Recipients)
}

func TestWithdrawThenApproveIsWrongState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.book(t, "fac", "2024-01-18", "10:00", "11:00")
	_, err := h.eng.Withdraw(ctx, r.ID, "staff1", "")
	assert.ErrorIs(t, err, apperr.ErrWrongActor)

	r, err = h.eng.Withdraw(ctx, r.ID, "fac", "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, request.StatusWithdrawn, r.Status)
	assert.Equal(t, "fac", r.TerminatedBy)
	assert.Equal(t, "no longer needed", r.TerminationReason)

	_, err = h.eng.Approve(ctx, r.ID, "staff1")
	assert.ErrorIs(t, err, apperr.ErrWrongState)
	assert.Equal(t, request.StatusWithdrawn, h.reload(t, r.ID).Status)
}

func TestApproveOutOfOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.book(t, "stu", "2024-01-18", "10:00", "11:00")

	_, err := h.eng.Approve(ctx, r.ID, "stu")
	assert.ErrorIs(t, err, apperr.ErrWrongActor)

	_, err = h.eng.Approve(ctx, r.ID, "staff1")
	assert.ErrorIs(t, err, apperr.ErrWrongState, "lab staff acting before the faculty step")

	_, err = h.eng.Approve(ctx, r.ID, "fac")
	require.NoError(t, err)

	_, err = h.eng.Approve(ctx, r.ID, "hod")
	assert.ErrorIs(t, err, apperr.ErrWrongState, "hod acting at the lab staff step")

	_, err = h.eng.Reject(ctx, r.ID, "fac2", "late")
	assert.ErrorIs(t, err, apperr.ErrWrongActor, "faculty step already passed")

	_, err = h.eng.Approve(ctx, r.ID, "other")
	assert.ErrorIs(t, err, apperr.ErrWrongActor)

	stored := h.reload(t, r.ID)
	assert.Equal(t, request.StatusPendingLabStaff, stored.Status)
	assert.Len(t, stored.Audit, 2)
}

func TestApproveOutOfOrderUnderCoordinatorAuthority(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.eng.SetAuthority(ctx, "cse", "hod", directory.AuthorityLabCoordinator, "")
	require.NoError(t, err)

	staffStep := h.book(t, "fac", "2024-01-18", "10:00", "11:00")
	require.Equal(t, request.StatusPendingLabStaff, staffStep.Status)

	_, err = h.eng.Approve(ctx, staffStep.ID, "hod")
	assert.ErrorIs(t, err, apperr.ErrWrongState, "hod acting before final sign-off")

	_, err = h.eng.Approve(ctx, staffStep.ID, "coord")
	assert.ErrorIs(t, err, apperr.ErrWrongState, "coordinator acting before final sign-off")

	_, err = h.eng.Approve(ctx, staffStep.ID, "fac2")
	assert.ErrorIs(t, err, apperr.ErrWrongActor)

	final := h.book(t, "stu", "2024-01-19", "10:00", "11:00")
	h.toFinal(t, final)

	_, err = h.eng.Approve(ctx, final.ID, "hod")
	assert.ErrorIs(t, err, apperr.ErrWrongActor, "sign-off rests with the coordinator")

	_, err = h.eng.Reject(ctx, final.ID, "fac2", "late")
	assert.ErrorIs(t, err, apperr.ErrWrongActor)

	_, err = h.eng.Approve(ctx, final.ID, "staff1")
	assert.ErrorIs(t, err, apperr.ErrWrongActor)

	stored := h.reload(t, final.ID)
	assert.Equal(t, request.StatusPendingFinalAuthority, stored.Status)
	assert.Len(t, stored.Audit, 3)
	assert.Equal(t, request.StatusPendingLabStaff, h.reload(t, staffStep.ID).Status)
}

func TestDesignatedFacultyOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r, err := h.eng.SubmitBooking(ctx, "stu", BookingInput{
		LabID: "cp1", FacultyID: "fac", Date: day("2024-01-18"), Start: hhmm("10:00"), End: hhmm("11:00"),
	})
	require.NoError(t, err)

	_, err = h.eng.Approve(ctx, r.ID, "fac2")
	assert.ErrorIs(t, err, apperr.ErrWrongActor)

	r, err = h.eng.Approve(ctx, r.ID, "fac")
	require.NoError(t, err)
	assert.Equal(t, request.StatusPendingLabStaff, r.Status)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.eng.SubmitBooking(ctx, "stu", BookingInput{LabID: "cp1", Date: day("2024-01-18"), Start: hhmm("11:00"), End: hhmm("11:00")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.eng.SubmitBooking(ctx, "stu", BookingInput{LabID: "cp1", Date: day("2024-01-01"), Start: hhmm("10:00"), End: hhmm("11:00")})
	assert.ErrorIs(t, err, apperr.ErrValidation, "date in the past")

	_, err = h.eng.SubmitBooking(ctx, "stu", BookingInput{LabID: "nope", Date: day("2024-01-18"), Start: hhmm("10:00"), End: hhmm("11:00")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.eng.SubmitBooking(ctx, "fac", BookingInput{LabID: "cp1", FacultyID: "fac2", Date: day("2024-01-18"), Start: hhmm("10:00"), End: hhmm("11:00")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.eng.SubmitComponent(ctx, "stu", ComponentInput{LabID: "cp1", ReturnDate: day("2024-01-20")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.eng.SubmitComponent(ctx, "stu", ComponentInput{
		LabID: "cp1", ReturnDate: day("2024-01-20"),
		Items: []request.Item{{ComponentID: "res", Quantity: 1}, {ComponentID: "res", Quantity: 2}},
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.eng.SubmitComponent(ctx, "stu", ComponentInput{
		LabID: "cp1", ReturnDate: day("2024-01-20"),
		Items: []request.Item{{ComponentID: "res", Quantity: 11}},
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	assert.Empty(t, h.rec.Events())
}

func TestRejectRecordsReason(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.book(t, "fac", "2024-01-18", "10:00", "11:00")
	h.toFinal(t, r)

	_, err := h.eng.Reject(ctx, r.ID, "staff1", "too late")
	assert.ErrorIs(t, err, apperr.ErrWrongState)

	r, err = h.eng.Reject(ctx, r.ID, "hod", "exam week")
	require.NoError(t, err)
	assert.Equal(t, request.StatusRejected, r.Status)
	assert.Equal(t, "hod", r.TerminatedBy)
	assert.Equal(t, "exam week", r.TerminationReason)
	assert.Empty(t, r.FinalApproverRole)

	last := r.Audit[len(r.Audit)-1]
	assert.Equal(t, request.ActionReject, last.Action)
	assert.Equal(t, "exam week", last.Reason)
}

func TestOverlappingBookingConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.book(t, "fac", "2024-01-18", "10:00", "11:00")
	second := h.book(t, "fac2", "2024-01-18", "10:30", "11:30")
	adjacent := h.book(t, "other", "2024-01-18", "11:00", "12:00")
	h.toFinal(t, first)
	h.toFinal(t, second)
	h.toFinal(t, adjacent)

	_, err := h.eng.Approve(ctx, first.ID, "hod")
	require.NoError(t, err)

	h.rec.Reset()
	_, err = h.eng.Approve(ctx, second.ID, "hod")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, request.StatusPendingFinalAuthority, h.reload(t, second.ID).Status)
	assert.Empty(t, h.rec.Events())

	_, err = h.eng.Approve(ctx, adjacent.ID, "hod")
	require.NoError(t, err, "touching endpoints do not overlap")

	_, err = h.eng.Reject(ctx, second.ID, "hod", "slot taken")
	require.NoError(t, err)
}

func TestFinalApproverRoleSurvivesAuthorityChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.eng.SetAuthority(ctx, "cse", "hod", directory.AuthorityLabCoordinator, "")
	require.NoError(t, err)

	r := h.book(t, "fac", "2024-01-18", "10:00", "11:00")
	h.toFinal(t, r)

	_, err = h.eng.Approve(ctx, r.ID, "hod")
	assert.ErrorIs(t, err, apperr.ErrWrongActor)

	r, err = h.eng.Approve(ctx, r.ID, "coord")
	require.NoError(t, err)
	assert.Equal(t, directory.AuthorityLabCoordinator, r.FinalApproverRole)

	_, err = h.eng.SetAuthority(ctx, "cse", "hod", directory.AuthorityHOD, "")
	require.NoError(t, err)

	stored := h.reload(t, r.ID)
	assert.Equal(t, directory.AuthorityLabCoordinator, stored.FinalApproverRole)
	assert.Equal(t, "coord", stored.FinalApproverID)
}

func TestIssueReturnRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.borrow(t, "stu", request.Item{ComponentID: "res", Quantity: 4}, request.Item{ComponentID: "ard", Quantity: 2})
	h.approved(t, r)
	require.Equal(t, 10, h.available(t, "res"))

	_, err := h.eng.Issue(ctx, r.ID, "stu")
	assert.ErrorIs(t, err, apperr.ErrWrongActor)

	r, err = h.eng.Issue(ctx, r.ID, "staff2")
	require.NoError(t, err)
	assert.Equal(t, request.StatusIssued, r.Status)
	require.NotNil(t, r.Component.IssuedAt)
	assert.Equal(t, 6, h.available(t, "res"))
	assert.Equal(t, 1, h.available(t, "ard"))

	_, err = h.eng.CompleteReturn(ctx, r.ID, "staff1")
	assert.ErrorIs(t, err, apperr.ErrWrongState)

	_, err = h.eng.ReturnRequest(ctx, r.ID, "staff1")
	assert.ErrorIs(t, err, apperr.ErrWrongActor)

	r, err = h.eng.ReturnRequest(ctx, r.ID, "stu")
	require.NoError(t, err)
	assert.Equal(t, request.StatusReturnRequested, r.Status)

	r, err = h.eng.CompleteReturn(ctx, r.ID, "staff1")
	require.NoError(t, err)
	assert.Equal(t, request.StatusReturned, r.Status)
	assert.Equal(t, 10, h.available(t, "res"))
	assert.Equal(t, 3, h.available(t, "ard"))
	assert.Zero(t, r.Component.DelayDays())

	_, err = h.eng.Issue(ctx, r.ID, "staff1")
	assert.ErrorIs(t, err, apperr.ErrWrongState)
}

func TestIssueInsufficientStockLeavesNothingBehind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.borrow(t, "stu", request.Item{ComponentID: "res", Quantity: 2}, request.Item{ComponentID: "ard", Quantity: 5})
	h.approved(t, r)
	h.rec.Reset()

	_, err := h.eng.Issue(ctx, r.ID, "staff1")
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	assert.Equal(t, request.StatusApproved, h.reload(t, r.ID).Status)
	assert.Equal(t, 10, h.available(t, "res"))
	assert.Equal(t, 3, h.available(t, "ard"))
	assert.Empty(t, h.rec.Events())
}

func TestLateReturnReportsDelay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.borrow(t, "stu", request.Item{ComponentID: "res", Quantity: 1})
	h.approved(t, r)
	_, err := h.eng.Issue(ctx, r.ID, "staff1")
	require.NoError(t, err)
	_, err = h.eng.ReturnRequest(ctx, r.ID, "stu")
	require.NoError(t, err)

	// Due 2024-01-20; returned 2024-01-23.
	h.clock.advance(13 * 24 * time.Hour)
	r, err = h.eng.CompleteReturn(ctx, r.ID, "staff1")
	require.NoError(t, err)
	assert.Equal(t, 3, r.Component.DelayDays())
}

func TestBookingsCannotBeIssued(t *testing.T) {
	h := newHarness(t)
	r := h.book(t, "fac", "2024-01-18", "10:00", "11:00")
	h.approved(t, r)

	_, err := h.eng.Issue(context.Background(), r.ID, "staff1")
	assert.ErrorIs(t, err, apperr.ErrWrongState)
}

func TestUnknownRequest(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.Approve(context.Background(), "missing", "hod")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentApprovalsHaveOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.book(t, "fac", "2024-01-18", "10:00", "11:00")
	h.toFinal(t, r)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.eng.Approve(ctx, r.ID, "hod")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrWrongState)
	}
	assert.Equal(t, 1, wins)

	stored := h.reload(t, r.ID)
	assert.Equal(t, request.StatusApproved, stored.Status)
	assert.Len(t, stored.Audit, 3)
}

func TestConcurrentBookingsForOneSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var ids []string
	for _, actor := range []string{"fac", "fac2", "coord", "other", "staff2"} {
		r := h.book(t, actor, "2024-01-18", "10:00", "11:00")
		h.toFinal(t, r)
		ids = append(ids, r.ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = h.eng.Approve(ctx, id, "hod")
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	assert.Equal(t, 1, wins)

	slots, err := h.store.ListApprovedBookings(ctx, "cp1", day("2024-01-18"))
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestDispatchFailureDoesNotRollBack(t *testing.T) {
	h := newHarness(t)
	failing := notify.DispatcherFunc(func(context.Context, notify.Event) error {
		return errors.New("smtp down")
	})
	eng := New(h.store, failing, zap.NewNop(), WithClock(h.clock.now))

	r, err := eng.SubmitBooking(context.Background(), "fac", BookingInput{
		LabID: "cp1", Date: day("2024-01-18"), Start: hhmm("10:00"), End: hhmm("11:00"),
	})
	require.NoError(t, err)

	assert.Equal(t, request.StatusPendingLabStaff, h.reload(t, r.ID).Status)
}

func TestStalledWebhookDoesNotHoldTransitions(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	stalled := notify.DispatcherFunc(func(ctx context.Context, _ notify.Event) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	async := notify.NewAsync(stalled, zap.NewNop(), 16, time.Minute)
	eng := New(h.store, notify.Multi{h.rec, async}, zap.NewNop(), WithClock(h.clock.now))

	done := make(chan error, 1)
	go func() {
		_, err := eng.SubmitBooking(context.Background(), "fac", BookingInput{
			LabID: "cp1", Date: day("2024-01-18"), Start: hhmm("10:00"), End: hhmm("11:00"),
		})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("submit waited on webhook delivery")
	}
	assert.Len(t, h.rec.Events(), 1)

	close(release)
	require.NoError(t, async.Close(context.Background()))
}
