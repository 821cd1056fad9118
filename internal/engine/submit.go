package engine

import (
	"context"
	"errors"
	"time"

	"labportal/internal/apperr"
	"labportal/internal/booking"
	"labportal/internal/directory"
	"labportal/internal/request"
)

type BookingInput struct {
	LabID     string            `json:"labId"`
	Purpose   string            `json:"purpose"`
	FacultyID string            `json:"facultyId,omitempty"`
	Date      time.Time         `json:"date"`
	Start     booking.TimeOfDay `json:"start"`
	End       booking.TimeOfDay `json:"end"`
}

type ComponentInput struct {
	LabID      string         `json:"labId"`
	Purpose    string         `json:"purpose"`
	FacultyID  string         `json:"facultyId,omitempty"`
	Items      []request.Item `json:"items"`
	ReturnDate time.Time      `json:"returnDate"`
}

// SubmitBooking creates a booking request and moves it to its first pending step.
// Pending requests for an already requested slot are accepted; overlap is checked
// only when a booking is finally approved.
func (e *Engine) SubmitBooking(ctx context.Context, actorID string, in BookingInput) (*request.Request, error) {
	slot := booking.Slot{LabID: in.LabID, Date: booking.Day(in.Date), Start: in.Start, End: in.End}
	if err := slot.Validate(); err != nil {
		return nil, err
	}

	var out *request.Request
	err := e.run(ctx, func(t *txn) error {
		if slot.Date.Before(booking.Day(t.now)) {
			return apperr.ErrValidation.With("booking date %s is in the past", slot.Date.Format(booking.DateLayout))
		}

		r, err := t.newRequest(ctx, request.TypeBooking, actorID, in.LabID, in.Purpose, in.FacultyID)
		if err != nil {
			return err
		}
		r.Booking = &request.BookingDetails{Date: slot.Date, Start: slot.Start, End: slot.End}

		out, err = t.submit(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitComponent creates a component loan request. Stock is only reserved at issue time.
func (e *Engine) SubmitComponent(ctx context.Context, actorID string, in ComponentInput) (*request.Request, error) {
	if len(in.Items) == 0 {
		return nil, apperr.ErrValidation.With("at least one item is required")
	}
	if in.ReturnDate.IsZero() {
		return nil, apperr.ErrValidation.With("return date is required")
	}
	seen := map[string]bool{}
	for _, it := range in.Items {
		if it.ComponentID == "" {
			return nil, apperr.ErrValidation.With("item component is required")
		}
		if it.Quantity <= 0 {
			return nil, apperr.ErrValidation.With("quantity for %s must be positive", it.ComponentID)
		}
		if seen[it.ComponentID] {
			return nil, apperr.ErrValidation.With("component %s listed twice", it.ComponentID)
		}
		seen[it.ComponentID] = true
	}

	var out *request.Request
	err := e.run(ctx, func(t *txn) error {
		if booking.Day(in.ReturnDate).Before(booking.Day(t.now)) {
			return apperr.ErrValidation.With("return date %s is in the past", in.ReturnDate.Format(booking.DateLayout))
		}

		r, err := t.newRequest(ctx, request.TypeComponent, actorID, in.LabID, in.Purpose, in.FacultyID)
		if err != nil {
			return err
		}
		// Only the owned total is checked here; stock rows are locked at issue.
		for _, it := range in.Items {
			c, err := t.tx.GetComponent(ctx, it.ComponentID)
			if err != nil {
				return err
			}
			if c.LabID != in.LabID {
				return apperr.ErrValidation.With("component %s does not belong to lab %s", c.ID, in.LabID)
			}
			if it.Quantity > c.QuantityTotal {
				return apperr.ErrInsufficientStock.With("%s: requested %d, lab owns %d", c.Name, it.Quantity, c.QuantityTotal)
			}
		}
		r.Component = &request.ComponentDetails{
			Items:      append([]request.Item(nil), in.Items...),
			ReturnDate: booking.Day(in.ReturnDate),
		}

		out, err = t.submit(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *txn) newRequest(ctx context.Context, typ request.Type, actorID, labID, purpose, facultyID string) (*request.Request, error) {
	requester, err := t.tx.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrWrongActor.With("unknown requester %s", actorID)
		}
		return nil, err
	}
	if _, err := t.tx.GetLab(ctx, labID); err != nil {
		return nil, err
	}

	if facultyID != "" {
		if requester.Role != directory.RoleStudent {
			return nil, apperr.ErrValidation.With("only student requests name a recommending faculty member")
		}
		f, err := t.tx.GetUser(ctx, facultyID)
		if err != nil {
			return nil, err
		}
		if !f.Role.FacultyLevel() {
			return nil, apperr.ErrValidation.With("user %s is not a faculty member", facultyID)
		}
	}

	return &request.Request{
		ID:            t.newID(),
		Type:          typ,
		RequesterID:   requester.ID,
		RequesterRole: requester.Role,
		LabID:         labID,
		Purpose:       purpose,
		FacultyID:     facultyID,
		Status:        request.StatusCreated,
		CreatedAt:     t.now,
		UpdatedAt:     t.now,
	}, nil
}

// submit stores r and applies SUBMIT, whose target depends only on the requester role.
func (t *txn) submit(ctx context.Context, r *request.Request) (*request.Request, error) {
	if err := t.tx.InsertRequest(ctx, r); err != nil {
		return nil, err
	}
	to := request.InitialStatus(r.RequesterRole)
	if err := t.apply(ctx, r, request.ActionSubmit, to, r.RequesterID, request.AuditRoleRequester, ""); err != nil {
		return nil, err
	}
	return r, nil
}
