package booking

import (
	"fmt"
	"time"

	"labportal/internal/apperr"
)

const DateLayout = "2006-01-02"

// TimeOfDay is minutes since midnight.
type TimeOfDay int

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, apperr.ErrValidation.With("time %q must be HH:MM", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseDate parses a calendar date (YYYY-MM-DD) as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperr.ErrValidation.With("date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Slot is the half-open range [Start, End) a booking occupies on one lab and date.
type Slot struct {
	RequestID string    `json:"requestId,omitempty"`
	LabID     string    `json:"labId"`
	Date      time.Time `json:"date"`
	Start     TimeOfDay `json:"start"`
	End       TimeOfDay `json:"end"`
}

func (s Slot) Validate() error {
	if s.LabID == "" {
		return apperr.ErrValidation.With("lab is required")
	}
	if s.Date.IsZero() {
		return apperr.ErrValidation.With("booking date is required")
	}
	if s.Start < 0 || s.End > 24*60 {
		return apperr.ErrValidation.With("time range %s-%s is outside the day", s.Start, s.End)
	}
	if s.End <= s.Start {
		return apperr.ErrValidation.With("end %s must be after start %s", s.End, s.Start)
	}
	return nil
}

// Overlaps reports whether two ranges share any instant. Touching endpoints do not.
func (s Slot) Overlaps(o Slot) bool {
	if s.LabID != o.LabID || !Day(s.Date).Equal(Day(o.Date)) {
		return false
	}
	return s.Start < o.End && o.Start < s.End
}
