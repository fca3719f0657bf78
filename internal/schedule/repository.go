package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTemplateNotFound  = errors.New("schedule template not found")
	ErrExceptionNotFound = errors.New("schedule exception not found")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrSlotFull          = errors.New("slot is at capacity")
	ErrSlotNotBookable   = errors.New("slot is not bookable")
	ErrInvalidTemplate   = errors.New("invalid schedule template")
	ErrInvalidException  = errors.New("invalid schedule exception")
)

// Repository contains all DB interactions needed by the materializer and
// the booking flow.
type Repository interface {
	// Templates
	CreateTemplate(ctx context.Context, t *ScheduleTemplate) error
	GetTemplateByID(ctx context.Context, id uuid.UUID) (*ScheduleTemplate, error)
	ListActiveTemplates(ctx context.Context, doctorID, branchID uuid.UUID) ([]ScheduleTemplate, error)
	DeactivateTemplate(ctx context.Context, id uuid.UUID) error

	// Exceptions
	CreateException(ctx context.Context, e *ScheduleException) error
	ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]ScheduleException, error)
	DeactivateException(ctx context.Context, id uuid.UUID) error

	// Slots
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	FindSlot(ctx context.Context, doctorID, branchID uuid.UUID, date time.Time, start TimeOfDay) (*Slot, error)
	ListSlots(ctx context.Context, doctorID, branchID uuid.UUID, from, to time.Time) ([]Slot, error)
	// CreateSlot inserts the slot unless one already exists for the same
	// (doctor, branch, date, start). Returns true when a row was inserted.
	CreateSlot(ctx context.Context, s *Slot) (bool, error)
	DeleteUnbookedSlots(ctx context.Context, doctorID, branchID uuid.UUID, from, to time.Time) (int64, error)
	DeletePastUnbookedSlots(ctx context.Context, cutoff time.Time) (int64, error)

	// BlockSlots marks zero-booking slots in the window blocked; a nil
	// window covers the whole day. UnblockSlots reverses it.
	BlockSlots(ctx context.Context, doctorID, branchID uuid.UUID, date time.Time, start, end *TimeOfDay, reason string, actor *uuid.UUID) (int64, error)
	UnblockSlots(ctx context.Context, doctorID, branchID uuid.UUID, date time.Time, start, end *TimeOfDay) (int64, error)

	// Booking counters. IncrementSlotBookings fails with ErrSlotFull /
	// ErrSlotNotBookable instead of ever exceeding capacity.
	IncrementSlotBookings(ctx context.Context, slotID uuid.UUID) (*Slot, error)
	DecrementSlotBookings(ctx context.Context, slotID uuid.UUID) (*Slot, error)
}
