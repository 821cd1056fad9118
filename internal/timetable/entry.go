// Package timetable holds a lab's recurring weekly grid. Entries are informational
// blocks and may overlap each other; booking overlap is checked elsewhere.
package timetable

import (
	"time"

	"labportal/internal/apperr"
	"labportal/internal/booking"
	"labportal/internal/directory"
)

type Entry struct {
	ID            string            `json:"id"`
	LabID         string            `json:"labId"`
	DayOfWeek     time.Weekday      `json:"dayOfWeek"`
	TimeSlotStart booking.TimeOfDay `json:"timeSlotStart"`
	TimeSlotEnd   booking.TimeOfDay `json:"timeSlotEnd"`
	Notes         string            `json:"notes,omitempty"`
	IsActive      bool              `json:"isActive"`
	UpdatedBy     string            `json:"updatedBy,omitempty"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func Validate(e Entry) error {
	if e.LabID == "" {
		return apperr.ErrValidation.With("lab is required")
	}
	if e.DayOfWeek < time.Sunday || e.DayOfWeek > time.Saturday {
		return apperr.ErrValidation.With("day of week %d is not in 0..6", e.DayOfWeek)
	}
	if e.TimeSlotStart < 0 || e.TimeSlotEnd > 24*60 {
		return apperr.ErrValidation.With("time slot %s-%s is outside the day", e.TimeSlotStart, e.TimeSlotEnd)
	}
	if e.TimeSlotEnd <= e.TimeSlotStart {
		return apperr.ErrValidation.With("time slot end %s must be after start %s", e.TimeSlotEnd, e.TimeSlotStart)
	}
	return nil
}

// Authorize allows only the lab's head staff to change its grid.
func Authorize(lab directory.Lab, actorID string) error {
	if !lab.IsHeadStaff(actorID) {
		return apperr.ErrWrongActor.With("only the head staff of lab %s may edit its timetable", lab.Code)
	}
	return nil
}
