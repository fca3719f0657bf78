package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/schedule"
)

type Status string

const (
	StatusRequested   Status = "requested"
	StatusConfirmed   Status = "confirmed"
	StatusCheckedIn   Status = "checked_in"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

// Terminal reports whether no further transition is allowed from the
// status. Rescheduling a terminal appointment creates a new one; it
// never reanimates the old row.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityNormal    Priority = "normal"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

// QueueRank orders priorities for the daily queue: emergency ahead of
// urgent ahead of normal.
func (p Priority) QueueRank() int {
	switch p {
	case PriorityEmergency:
		return 0
	case PriorityUrgent:
		return 1
	default:
		return 2
	}
}

// InvalidTransitionError reports a state change not permitted from the
// appointment's current status.
type InvalidTransitionError struct {
	Current Status
	Op      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s appointment in status %q", e.Op, e.Current)
}

// allowedFrom maps each transition verb to its permitted source states.
var allowedFrom = map[string][]Status{
	"confirm":      {StatusRequested},
	"check_in":     {StatusRequested, StatusConfirmed},
	"start":        {StatusCheckedIn},
	"complete":     {StatusInProgress},
	"cancel":       {StatusRequested, StatusConfirmed, StatusCheckedIn, StatusInProgress},
	"mark_no_show": {StatusRequested, StatusConfirmed, StatusCheckedIn, StatusInProgress},
	"reschedule":   {StatusRequested, StatusConfirmed, StatusCheckedIn, StatusInProgress},
}

// transitionSources returns the legal source statuses for op, or the
// invalid-transition error carrying the current status.
func transitionSources(op string, current Status) ([]Status, error) {
	sources, ok := allowedFrom[op]
	if !ok {
		return nil, fmt.Errorf("unknown transition %q", op)
	}
	for _, s := range sources {
		if s == current {
			return sources, nil
		}
	}
	return nil, &InvalidTransitionError{Current: current, Op: op}
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        *uuid.UUID
	BranchID        uuid.UUID
	SlotID          *uuid.UUID
	ServiceID       *uuid.UUID
	PackageID       *uuid.UUID
	AppointmentType *string
	Date            time.Time
	StartTime       schedule.TimeOfDay
	EndTime         schedule.TimeOfDay
	Status          Status
	Priority        Priority
	Source          string
	TokenNumber     *int
	Reason          *string
	Notes           *string
	CancelReason    *string
	RescheduledFrom *uuid.UUID
	RescheduleCount int
	ConfirmedAt     *time.Time
	CheckedInAt     *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanReschedule is the reschedule predicate: non-terminal and still
// under the reschedule cap.
func (a *Appointment) CanReschedule(maxReschedules int) bool {
	return !a.Status.Terminal() && a.RescheduleCount < maxReschedules
}

type ReminderType string

const (
	ReminderConfirmation ReminderType = "confirmation"
	ReminderFollowUp     ReminderType = "follow_up"
)

type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderSent    ReminderStatus = "sent"
	ReminderFailed  ReminderStatus = "failed"
)

// Reminder is queued for an external notification dispatcher; this
// service only creates rows, it never sends.
type Reminder struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Type          ReminderType
	Channel       string
	Recipient     string
	Status        ReminderStatus
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
