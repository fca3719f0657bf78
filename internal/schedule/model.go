package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimeOfDay is a clock time expressed as minutes since midnight.
// Templates, exceptions and slots all use it so that slot expansion is
// plain integer arithmetic instead of timezone-sensitive timestamp math.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM" (24h clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On anchors the clock time onto a calendar date.
func (t TimeOfDay) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ScheduleTemplate is a recurring weekly availability rule for a doctor
// at a branch. Slots are materialized from it.
type ScheduleTemplate struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	BranchID       uuid.UUID
	Weekday        time.Weekday
	StartTime      TimeOfDay
	EndTime        TimeOfDay
	SlotMinutes    int
	MaxBookings    int
	BreakStart     *TimeOfDay
	BreakEnd       *TimeOfDay
	EffectiveFrom  *time.Time
	EffectiveUntil *time.Time
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the template invariants: start < end, positive slot
// duration, coherent break window.
func (t *ScheduleTemplate) Validate() error {
	if t.StartTime >= t.EndTime {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidTemplate, t.StartTime, t.EndTime)
	}
	if t.SlotMinutes <= 0 {
		return fmt.Errorf("%w: slot duration must be positive", ErrInvalidTemplate)
	}
	if t.MaxBookings <= 0 {
		return fmt.Errorf("%w: max bookings must be positive", ErrInvalidTemplate)
	}
	if (t.BreakStart == nil) != (t.BreakEnd == nil) {
		return fmt.Errorf("%w: break window needs both start and end", ErrInvalidTemplate)
	}
	if t.BreakStart != nil && *t.BreakStart >= *t.BreakEnd {
		return fmt.Errorf("%w: break start %s must be before break end %s", ErrInvalidTemplate, *t.BreakStart, *t.BreakEnd)
	}
	return nil
}

// CoversDate reports whether the template applies on the given date,
// considering weekday and the optional effective window.
func (t *ScheduleTemplate) CoversDate(date time.Time) bool {
	if !t.Active || date.Weekday() != t.Weekday {
		return false
	}
	day := truncateToDay(date)
	if t.EffectiveFrom != nil && day.Before(truncateToDay(*t.EffectiveFrom)) {
		return false
	}
	if t.EffectiveUntil != nil && day.After(truncateToDay(*t.EffectiveUntil)) {
		return false
	}
	return true
}

// ScheduleException blocks a doctor's availability on a specific date.
// With both StartTime and EndTime nil it blocks the whole day; otherwise
// only the given window. BranchID nil means the block applies at every
// branch.
type ScheduleException struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	BranchID  *uuid.UUID
	Date      time.Time
	StartTime *TimeOfDay
	EndTime   *TimeOfDay
	Reason    string
	Active    bool
	CreatedAt time.Time
}

func (e *ScheduleException) Validate() error {
	if (e.StartTime == nil) != (e.EndTime == nil) {
		return fmt.Errorf("%w: partial exception needs both start and end", ErrInvalidException)
	}
	if e.StartTime != nil && *e.StartTime >= *e.EndTime {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidException, *e.StartTime, *e.EndTime)
	}
	return nil
}

// FullDay reports whether the exception blocks the entire date.
func (e *ScheduleException) FullDay() bool {
	return e.StartTime == nil && e.EndTime == nil
}

// AppliesTo reports whether the exception is in force for the given
// branch and date.
func (e *ScheduleException) AppliesTo(branchID uuid.UUID, date time.Time) bool {
	if !e.Active {
		return false
	}
	if e.BranchID != nil && *e.BranchID != branchID {
		return false
	}
	return truncateToDay(e.Date).Equal(truncateToDay(date))
}

// Overlaps reports whether the exception window intersects [start, end).
// Full-day exceptions overlap everything on their date.
func (e *ScheduleException) Overlaps(start, end TimeOfDay) bool {
	if e.FullDay() {
		return true
	}
	return *e.StartTime < end && start < *e.EndTime
}

// Slot is a concrete bookable interval for a doctor at a branch.
type Slot struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	BranchID        uuid.UUID
	Date            time.Time
	StartTime       TimeOfDay
	EndTime         TimeOfDay
	MaxBookings     int
	CurrentBookings int
	Available       bool
	Blocked         bool
	BlockReason     *string
	BlockedBy       *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Bookable reports whether the slot can accept one more booking.
func (s *Slot) Bookable() bool {
	return s.Available && !s.Blocked && s.CurrentBookings < s.MaxBookings
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
