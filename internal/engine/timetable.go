package engine

import (
	"context"
	"time"

	"labportal/internal/apperr"
	"labportal/internal/booking"
	"labportal/internal/timetable"
)

// EntryInput is a timetable row as submitted. IsActive defaults to true on create
// and is left unchanged on update when nil.
type EntryInput struct {
	DayOfWeek     time.Weekday      `json:"dayOfWeek"`
	TimeSlotStart booking.TimeOfDay `json:"timeSlotStart"`
	TimeSlotEnd   booking.TimeOfDay `json:"timeSlotEnd"`
	Notes         string            `json:"notes"`
	IsActive      *bool             `json:"isActive,omitempty"`
}

// CreateEntry adds a recurring block to the lab's week. Entries may overlap.
func (e *Engine) CreateEntry(ctx context.Context, labID, actorID string, in EntryInput) (*timetable.Entry, error) {
	var out *timetable.Entry
	err := e.run(ctx, func(t *txn) error {
		if err := t.authorizeTimetable(ctx, labID, actorID); err != nil {
			return err
		}
		entry := timetable.Entry{
			ID:            t.newID(),
			LabID:         labID,
			DayOfWeek:     in.DayOfWeek,
			TimeSlotStart: in.TimeSlotStart,
			TimeSlotEnd:   in.TimeSlotEnd,
			Notes:         in.Notes,
			IsActive:      true,
			UpdatedBy:     actorID,
			UpdatedAt:     t.now,
		}
		if in.IsActive != nil {
			entry.IsActive = *in.IsActive
		}
		if err := timetable.Validate(entry); err != nil {
			return err
		}
		if err := t.tx.InsertTimetableEntry(ctx, &entry); err != nil {
			return err
		}
		out = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) UpdateEntry(ctx context.Context, labID, entryID, actorID string, in EntryInput) (*timetable.Entry, error) {
	var out *timetable.Entry
	err := e.run(ctx, func(t *txn) error {
		if err := t.authorizeTimetable(ctx, labID, actorID); err != nil {
			return err
		}
		entry, err := t.entryOf(ctx, labID, entryID)
		if err != nil {
			return err
		}
		entry.DayOfWeek = in.DayOfWeek
		entry.TimeSlotStart = in.TimeSlotStart
		entry.TimeSlotEnd = in.TimeSlotEnd
		entry.Notes = in.Notes
		if in.IsActive != nil {
			entry.IsActive = *in.IsActive
		}
		entry.UpdatedBy = actorID
		entry.UpdatedAt = t.now
		if err := timetable.Validate(*entry); err != nil {
			return err
		}
		if err := t.tx.UpdateTimetableEntry(ctx, entry); err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) DeleteEntry(ctx context.Context, labID, entryID, actorID string) error {
	return e.run(ctx, func(t *txn) error {
		if err := t.authorizeTimetable(ctx, labID, actorID); err != nil {
			return err
		}
		if _, err := t.entryOf(ctx, labID, entryID); err != nil {
			return err
		}
		return t.tx.DeleteTimetableEntry(ctx, entryID)
	})
}

func (t *txn) authorizeTimetable(ctx context.Context, labID, actorID string) error {
	lab, err := t.tx.GetLab(ctx, labID)
	if err != nil {
		return err
	}
	return timetable.Authorize(*lab, actorID)
}

func (t *txn) entryOf(ctx context.Context, labID, entryID string) (*timetable.Entry, error) {
	entry, err := t.tx.GetTimetableEntryForUpdate(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.LabID != labID {
		return nil, apperr.ErrNotFound.With("timetable entry %s not found in lab %s", entryID, labID)
	}
	return entry, nil
}
