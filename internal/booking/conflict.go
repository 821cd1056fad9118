package booking

import (
	"context"
	"time"
)

// ApprovedSource lists the approved bookings of one lab on one date. Callers that need
// the check to hold until their write commits must hold the slot lock of the same
// transaction while listing.
type ApprovedSource interface {
	ListApprovedBookings(ctx context.Context, labID string, date time.Time) ([]Slot, error)
}

// Validator answers whether a slot is still free. Only approved bookings count;
// pending requests for the same slot may coexist until one of them is approved.
type Validator struct{}

func (v Validator) IsFree(ctx context.Context, src ApprovedSource, candidate Slot) (bool, error) {
	clash, err := v.FirstClash(ctx, src, candidate)
	if err != nil {
		return false, err
	}
	return clash == nil, nil
}

// FirstClash returns the approved booking candidate would overlap, if any.
// The candidate's own request is ignored.
func (Validator) FirstClash(ctx context.Context, src ApprovedSource, candidate Slot) (*Slot, error) {
	approved, err := src.ListApprovedBookings(ctx, candidate.LabID, Day(candidate.Date))
	if err != nil {
		return nil, err
	}
	for i := range approved {
		if candidate.RequestID != "" && approved[i].RequestID == candidate.RequestID {
			continue
		}
		if approved[i].Overlaps(candidate) {
			return &approved[i], nil
		}
	}
	return nil, nil
}
