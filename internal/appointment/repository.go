package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrRescheduleNotAllowed = errors.New("appointment can no longer be rescheduled")
)

// Patient is the subset of the patient record the scheduler needs:
// identity plus reminder recipients.
type Patient struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) error
	// DeleteAppointment removes a just-created row whose slot increment
	// failed; it is not exposed through the API.
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// UpdateStatus is a compare-and-set transition: the row moves to the
	// target status only while its current status is one of from, and the
	// matching transition timestamp is stamped. A miss reports
	// ErrAppointmentNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, at time.Time) (*Appointment, error)
	CheckIn(ctx context.Context, id uuid.UUID, token int, from []Status, at time.Time) (*Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, from []Status, at time.Time) (*Appointment, error)

	// NextTokenNumber computes max existing token + 1 for the branch+date,
	// starting at 1. Callers serialize via the token lock.
	NextTokenNumber(ctx context.Context, branchID uuid.UUID, date time.Time) (int, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListDailyQueue(ctx context.Context, branchID uuid.UUID, date time.Time, doctorID *uuid.UUID, includeCompleted bool) ([]Appointment, error)
	ListWaiting(ctx context.Context, branchID uuid.UUID, date time.Time, doctorID *uuid.UUID) ([]Appointment, error)

	InsertReminder(ctx context.Context, rem *Reminder) error
	InsertEvent(ctx context.Context, ev EventLog) error
}
