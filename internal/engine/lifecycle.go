package engine

import (
	"context"
	"errors"
	"sort"

	"labportal/internal/apperr"
	"labportal/internal/authority"
	"labportal/internal/booking"
	"labportal/internal/directory"
	"labportal/internal/notify"
	"labportal/internal/request"
)

var pendingSteps = []request.Status{
	request.StatusPendingFaculty,
	request.StatusPendingLabStaff,
	request.StatusPendingFinalAuthority,
}

// Approve advances the request one step on behalf of whoever holds the current step.
// The final approval records which authority signed off; for bookings it also
// requires the slot to be free of approved bookings.
func (e *Engine) Approve(ctx context.Context, requestID, actorID string) (*request.Request, error) {
	return e.transition(ctx, requestID, request.ActionApprove, func(t *txn, r *request.Request, to request.Status) error {
		role, err := t.authorizeStep(ctx, r, actorID)
		if err != nil {
			return err
		}

		if to == request.StatusApproved {
			if slot, ok := r.Slot(); ok {
				if err := t.tx.LockSlot(ctx, slot.LabID, slot.Date); err != nil {
					return err
				}
				clash, err := t.conflicts.FirstClash(ctx, t.tx, slot)
				if err != nil {
					return err
				}
				if clash != nil {
					return apperr.ErrConflict.With("lab %s on %s: %s-%s overlaps approved booking %s (%s-%s)",
						slot.LabID, slot.Date.Format(booking.DateLayout), slot.Start, slot.End,
						clash.RequestID, clash.Start, clash.End)
				}
			}
			if r.FinalApproverRole == "" {
				now := t.now
				r.FinalApproverRole = directory.Authority(role)
				r.FinalApproverID = actorID
				r.FinalApprovedAt = &now
			}
		}
		return t.apply(ctx, r, request.ActionApprove, to, actorID, role, "")
	})
}

// Reject ends the request. Only the holder of the current step may reject.
func (e *Engine) Reject(ctx context.Context, requestID, actorID, reason string) (*request.Request, error) {
	return e.transition(ctx, requestID, request.ActionReject, func(t *txn, r *request.Request, to request.Status) error {
		role, err := t.authorizeStep(ctx, r, actorID)
		if err != nil {
			return err
		}
		t.terminate(r, actorID, reason)
		return t.apply(ctx, r, request.ActionReject, to, actorID, role, reason)
	})
}

// Withdraw lets the requester cancel a request that is still pending.
func (e *Engine) Withdraw(ctx context.Context, requestID, actorID, reason string) (*request.Request, error) {
	return e.transition(ctx, requestID, request.ActionWithdraw, func(t *txn, r *request.Request, to request.Status) error {
		if actorID != r.RequesterID {
			return apperr.ErrWrongActor.With("only the requester may withdraw request %s", r.ID)
		}
		t.terminate(r, actorID, reason)
		return t.apply(ctx, r, request.ActionWithdraw, to, actorID, request.AuditRoleRequester, reason)
	})
}

// Issue hands an approved loan out and takes its items from stock. Either every
// item is taken or none is.
func (e *Engine) Issue(ctx context.Context, requestID, actorID string) (*request.Request, error) {
	return e.transition(ctx, requestID, request.ActionIssue, func(t *txn, r *request.Request, to request.Status) error {
		if err := t.requireLabStaff(ctx, r, actorID); err != nil {
			return err
		}
		for _, it := range lockOrder(r.Component.Items) {
			c, err := t.tx.GetComponentForUpdate(ctx, it.ComponentID)
			if err != nil {
				return err
			}
			if err := c.Take(it.Quantity); err != nil {
				return err
			}
			if err := t.tx.UpdateComponentStock(ctx, c.ID, c.QuantityAvailable); err != nil {
				return err
			}
		}
		now := t.now
		r.Component.IssuedAt = &now
		return t.apply(ctx, r, request.ActionIssue, to, actorID, request.AuditRoleLabStaff, "")
	})
}

// ReturnRequest is the borrower announcing the items are coming back.
func (e *Engine) ReturnRequest(ctx context.Context, requestID, actorID string) (*request.Request, error) {
	return e.transition(ctx, requestID, request.ActionReturnRequest, func(t *txn, r *request.Request, to request.Status) error {
		if actorID != r.RequesterID {
			return apperr.ErrWrongActor.With("only the requester may return request %s", r.ID)
		}
		now := t.now
		r.Component.ReturnedAt = &now
		return t.apply(ctx, r, request.ActionReturnRequest, to, actorID, request.AuditRoleRequester, "")
	})
}

// CompleteReturn is lab staff confirming receipt. Stock is restored by exactly the
// issued quantities and the actual return date is recorded for delay reporting.
func (e *Engine) CompleteReturn(ctx context.Context, requestID, actorID string) (*request.Request, error) {
	return e.transition(ctx, requestID, request.ActionCompleteReturn, func(t *txn, r *request.Request, to request.Status) error {
		if err := t.requireLabStaff(ctx, r, actorID); err != nil {
			return err
		}
		for _, it := range lockOrder(r.Component.Items) {
			c, err := t.tx.GetComponentForUpdate(ctx, it.ComponentID)
			if err != nil {
				return err
			}
			c.Restore(it.Quantity)
			if err := t.tx.UpdateComponentStock(ctx, c.ID, c.QuantityAvailable); err != nil {
				return err
			}
		}
		now := t.now
		r.Component.ActualReturnDate = &now
		return t.apply(ctx, r, request.ActionCompleteReturn, to, actorID, request.AuditRoleLabStaff, "")
	})
}

// transition locks the request, resolves the edge for action and hands both to fn.
// An illegal action is ErrWrongState before any actor check runs.
func (e *Engine) transition(ctx context.Context, requestID string, action request.Action,
	fn func(t *txn, r *request.Request, to request.Status) error) (*request.Request, error) {
	var out *request.Request
	err := e.run(ctx, func(t *txn) error {
		r, err := t.tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		to, ok := request.Next(r.Type, r.Status, action)
		if !ok {
			return apperr.ErrWrongState.With("cannot %s a %s request in %s", action, r.Type, r.Status)
		}
		if err := fn(t, r, to); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// apply moves r to `to`, writes the row, appends the audit entry and emits the event.
func (t *txn) apply(ctx context.Context, r *request.Request, action request.Action, to request.Status, actorID, role, reason string) error {
	from := r.Status
	if !request.CanTransition(r.Type, from, to) {
		return apperr.ErrWrongState.With("no transition %s -> %s for %s requests", from, to, r.Type)
	}
	r.Status = to
	r.UpdatedAt = t.now
	if err := t.tx.UpdateRequest(ctx, r); err != nil {
		return err
	}

	entry := request.AuditEntry{
		ID:        t.newID(),
		RequestID: r.ID,
		Action:    action,
		Role:      role,
		ActorID:   actorID,
		From:      from,
		To:        to,
		Reason:    reason,
		At:        t.now,
	}
	if err := t.tx.AppendAudit(ctx, entry); err != nil {
		return err
	}
	r.Audit = append(r.Audit, entry)

	recipients, err := t.recipients(ctx, r)
	if err != nil {
		return err
	}
	return t.emit(ctx, notify.Event{
		RequestID:   r.ID,
		RequestType: notify.RequestType(r.Type),
		Action:      string(action),
		FromState:   string(from),
		ToState:     string(to),
		ActorID:     actorID,
		Recipients:  recipients,
	})
}

func (t *txn) terminate(r *request.Request, actorID, reason string) {
	now := t.now
	r.TerminatedBy = actorID
	r.TerminationReason = reason
	r.TerminatedAt = &now
}

// authorizeStep returns the audit role actorID acts in at the request's current step.
// Someone who would hold a step the request has not reached yet gets ErrWrongState:
// they are acting too early, not out of place. Everyone else gets ErrWrongActor.
func (t *txn) authorizeStep(ctx context.Context, r *request.Request, actorID string) (string, error) {
	if !r.Status.Pending() {
		return "", apperr.ErrWrongState.With("request %s is not pending", r.ID)
	}
	role, err := t.stepRole(ctx, r, r.Status, actorID)
	if err == nil || !errors.Is(err, apperr.ErrWrongActor) {
		return role, err
	}
	for _, step := range stepsAfter(r.Status) {
		ahead, aheadErr := t.awaitsActor(ctx, r, step, actorID)
		if aheadErr != nil {
			return "", aheadErr
		}
		if ahead {
			return "", apperr.ErrWrongState.With("request %s is %s; actor acts at %s", r.ID, r.Status, step)
		}
	}
	return "", err
}

// stepsAfter lists the pending steps that follow current in the chain.
func stepsAfter(current request.Status) []request.Status {
	for i, step := range pendingSteps {
		if step == current {
			return pendingSteps[i+1:]
		}
	}
	return nil
}

// awaitsActor reports whether actorID has a part to play once the request reaches step.
// The HOD counts for the final step under either authority, as the department's head.
func (t *txn) awaitsActor(ctx context.Context, r *request.Request, step request.Status, actorID string) (bool, error) {
	if step == request.StatusPendingFinalAuthority {
		dept, err := t.departmentOf(ctx, r.LabID)
		if err != nil {
			return false, err
		}
		return actorID == authority.CurrentApproverID(*dept) || (dept.HODID != "" && actorID == dept.HODID), nil
	}
	_, err := t.stepRole(ctx, r, step, actorID)
	if errors.Is(err, apperr.ErrWrongActor) {
		return false, nil
	}
	return err == nil, err
}

// stepRole checks actorID against the holder of step and returns the audit role.
func (t *txn) stepRole(ctx context.Context, r *request.Request, step request.Status, actorID string) (string, error) {
	switch step {
	case request.StatusPendingFaculty:
		if r.FacultyID != "" {
			if actorID != r.FacultyID {
				return "", apperr.ErrWrongActor.With("request %s awaits faculty %s", r.ID, r.FacultyID)
			}
			return request.AuditRoleFaculty, nil
		}
		u, err := t.tx.GetUser(ctx, actorID)
		if errors.Is(err, apperr.ErrNotFound) {
			return "", apperr.ErrWrongActor.With("unknown actor %s", actorID)
		}
		if err != nil {
			return "", err
		}
		if !u.Role.FacultyLevel() {
			return "", apperr.ErrWrongActor.With("user %s is not a faculty member", actorID)
		}
		return request.AuditRoleFaculty, nil

	case request.StatusPendingLabStaff:
		if err := t.requireLabStaff(ctx, r, actorID); err != nil {
			return "", err
		}
		return request.AuditRoleLabStaff, nil

	case request.StatusPendingFinalAuthority:
		dept, err := t.departmentOf(ctx, r.LabID)
		if err != nil {
			return "", err
		}
		holder := authority.CurrentApproverID(*dept)
		if holder == "" {
			return "", apperr.ErrWrongActor.With("department %s has no %s assigned", dept.Code, authority.CurrentApprover(*dept))
		}
		if actorID != holder {
			return "", apperr.ErrWrongActor.With("final approval for department %s rests with the %s", dept.Code, authority.CurrentApprover(*dept))
		}
		return string(authority.CurrentApprover(*dept)), nil
	}
	return "", apperr.ErrWrongState.With("request %s is not pending", r.ID)
}

func (t *txn) requireLabStaff(ctx context.Context, r *request.Request, actorID string) error {
	lab, err := t.tx.GetLab(ctx, r.LabID)
	if err != nil {
		return err
	}
	if !lab.IsStaff(actorID) {
		return apperr.ErrWrongActor.With("user %s is not staff of lab %s", actorID, lab.Code)
	}
	return nil
}

func (t *txn) departmentOf(ctx context.Context, labID string) (*directory.Department, error) {
	lab, err := t.tx.GetLab(ctx, labID)
	if err != nil {
		return nil, err
	}
	return t.tx.GetDepartment(ctx, lab.DepartmentID)
}

// recipients is the requester plus whoever must act next.
func (t *txn) recipients(ctx context.Context, r *request.Request) ([]string, error) {
	out := []string{r.RequesterID}
	switch r.Status {
	case request.StatusPendingFaculty:
		out = append(out, r.FacultyID)
	case request.StatusPendingLabStaff, request.StatusReturnRequested:
		staff, err := t.labStaff(ctx, r.LabID)
		if err != nil {
			return nil, err
		}
		out = append(out, staff...)
	case request.StatusApproved:
		// Approved loans wait on lab staff to issue them.
		if r.Type == request.TypeComponent {
			staff, err := t.labStaff(ctx, r.LabID)
			if err != nil {
				return nil, err
			}
			out = append(out, staff...)
		}
	case request.StatusPendingFinalAuthority:
		dept, err := t.departmentOf(ctx, r.LabID)
		if err != nil {
			return nil, err
		}
		out = append(out, authority.CurrentApproverID(*dept))
	}
	return out, nil
}

func (t *txn) labStaff(ctx context.Context, labID string) ([]string, error) {
	lab, err := t.tx.GetLab(ctx, labID)
	if err != nil {
		return nil, err
	}
	return lab.StaffIDs, nil
}

// lockOrder sorts items by component id so concurrent loans lock stock rows in the same order.
func lockOrder(items []request.Item) []request.Item {
	out := append([]request.Item(nil), items...)
	sort.Slice(out, func(i, j int) bool { return out[i].ComponentID < out[j].ComponentID })
	return out
}
