package engine

import (
	"context"
	"time"

	"labportal/internal/apperr"
	"labportal/internal/booking"
	"labportal/internal/notify"
	"labportal/internal/request"
)

const extensionNone = "none"

// RequestExtension asks to move an issued loan's return date later. The request
// status does not change; at most one extension may be pending.
func (e *Engine) RequestExtension(ctx context.Context, requestID, actorID string, newDate time.Time, reason string) (*request.Request, error) {
	var out *request.Request
	err := e.run(ctx, func(t *txn) error {
		r, err := t.tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if r.Type != request.TypeComponent || r.Status != request.StatusIssued {
			return apperr.ErrWrongState.With("extensions apply to issued loans; request %s is %s", r.ID, r.Status)
		}
		if actorID != r.RequesterID {
			return apperr.ErrWrongActor.With("only the requester may extend request %s", r.ID)
		}
		prev := r.Component.Extension
		if prev != nil && prev.Status == request.ExtensionPending {
			return apperr.ErrDuplicateExtension.With("request %s already has an extension pending", r.ID)
		}
		due := booking.Day(r.Component.ReturnDate)
		if !booking.Day(newDate).After(due) {
			return apperr.ErrValidation.With("new return date must be after %s", due.Format(booking.DateLayout))
		}

		r.Component.Extension = &request.Extension{
			RequestedReturnDate: booking.Day(newDate),
			PreviousReturnDate:  due,
			Reason:              reason,
			Status:              request.ExtensionPending,
			RequestedAt:         t.now,
		}
		from := extensionNone
		if prev != nil {
			from = string(prev.Status)
		}
		staff, err := t.labStaff(ctx, r.LabID)
		if err != nil {
			return err
		}
		if err := t.record(ctx, r, request.ActionExtensionRequest, actorID, request.AuditRoleRequester, reason,
			from, string(request.ExtensionPending), append([]string{r.RequesterID}, staff...)); err != nil {
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

// ResolveExtension approves or rejects the pending extension. Approval moves the
// loan's return date to the requested one.
func (e *Engine) ResolveExtension(ctx context.Context, requestID, actorID string, approve bool, remarks string) (*request.Request, error) {
	var out *request.Request
	err := e.run(ctx, func(t *txn) error {
		r, err := t.tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if r.Type != request.TypeComponent {
			return apperr.ErrWrongState.With("request %s is not a component loan", r.ID)
		}
		x := r.Component.Extension
		if x == nil || x.Status != request.ExtensionPending {
			return apperr.ErrWrongState.With("request %s has no pending extension", r.ID)
		}
		if r.Status != request.StatusIssued && r.Status != request.StatusReturnRequested {
			return apperr.ErrWrongState.With("request %s is %s", r.ID, r.Status)
		}
		if err := t.requireLabStaff(ctx, r, actorID); err != nil {
			return err
		}

		now := t.now
		action := request.ActionExtensionReject
		x.Status = request.ExtensionRejected
		if approve {
			action = request.ActionExtensionApprove
			x.Status = request.ExtensionApproved
			r.Component.ReturnDate = x.RequestedReturnDate
		}
		x.ResolvedBy = actorID
		x.ResolvedAt = &now
		x.Remarks = remarks

		if err := t.record(ctx, r, action, actorID, request.AuditRoleLabStaff, remarks,
			string(request.ExtensionPending), string(x.Status), []string{r.RequesterID}); err != nil {
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

// record writes r and logs an action that leaves Status where it is.
func (t *txn) record(ctx context.Context, r *request.Request, action request.Action, actorID, role, reason, from, to string, recipients []string) error {
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
		From:      r.Status,
		To:        r.Status,
		Reason:    reason,
		At:        t.now,
	}
	if err := t.tx.AppendAudit(ctx, entry); err != nil {
		return err
	}
	r.Audit = append(r.Audit, entry)

	return t.emit(ctx, notify.Event{
		RequestID:   r.ID,
		RequestType: notify.RequestTypeComponent,
		Action:      string(action),
		FromState:   from,
		ToState:     to,
		ActorID:     actorID,
		Recipients:  recipients,
	})
}
