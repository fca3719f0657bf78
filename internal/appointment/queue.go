package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue views: read-only projections over appointment state for a
// branch and day. No mutation happens here.

// DailyQueue returns the day's active appointments ordered by priority
// bucket (emergency ahead of urgent ahead of normal), ties broken by
// start time. Terminal appointments are excluded; completed ones only
// appear when includeCompleted is set.
func (s *Service) DailyQueue(ctx context.Context, branchID uuid.UUID, date time.Time, doctorID *uuid.UUID, includeCompleted bool) ([]Appointment, error) {
	queue, err := s.repo.ListDailyQueue(ctx, branchID, dateOnly(date), doctorID, includeCompleted)
	if err != nil {
		return nil, fmt.Errorf("daily queue: %w", err)
	}
	return queue, nil
}

// WaitingPatients returns checked-in appointments not yet in progress,
// FIFO by check-in time.
func (s *Service) WaitingPatients(ctx context.Context, branchID uuid.UUID, date time.Time, doctorID *uuid.UUID) ([]Appointment, error) {
	waiting, err := s.repo.ListWaiting(ctx, branchID, dateOnly(date), doctorID)
	if err != nil {
		return nil, fmt.Errorf("waiting patients: %w", err)
	}
	return waiting, nil
}

// NextPatient returns the head of the waiting FIFO, or nil when nobody
// is waiting.
func (s *Service) NextPatient(ctx context.Context, branchID uuid.UUID, date time.Time, doctorID *uuid.UUID) (*Appointment, error) {
	waiting, err := s.WaitingPatients(ctx, branchID, date, doctorID)
	if err != nil {
		return nil, err
	}
	if len(waiting) == 0 {
		return nil, nil
	}
	return &waiting[0], nil
}
