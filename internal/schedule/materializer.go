package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service materializes bookable slots out of weekly templates and
// date-scoped exceptions, and owns template/exception administration.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "schedule").Logger(),
	}
}

// Template administration

func (s *Service) CreateTemplate(ctx context.Context, t *ScheduleTemplate) (*ScheduleTemplate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.Active = true
	if err := s.repo.CreateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

func (s *Service) ListTemplates(ctx context.Context, doctorID, branchID uuid.UUID) ([]ScheduleTemplate, error) {
	templates, err := s.repo.ListActiveTemplates(ctx, doctorID, branchID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

func (s *Service) DeactivateTemplate(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeactivateTemplate(ctx, id)
}

// Exception administration

func (s *Service) CreateException(ctx context.Context, e *ScheduleException) (*ScheduleException, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	e.Active = true
	if err := s.repo.CreateException(ctx, e); err != nil {
		return nil, fmt.Errorf("create exception: %w", err)
	}
	return e, nil
}

func (s *Service) ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]ScheduleException, error) {
	exceptions, err := s.repo.ListExceptions(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	return exceptions, nil
}

func (s *Service) DeactivateException(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeactivateException(ctx, id)
}

// Generate expands the doctor's templates into concrete slots for every
// date in [from, to]. Re-running over the same range is idempotent;
// regenerate first clears unbooked slots so template edits can take
// effect. A doctor with no active templates yields an empty result.
func (s *Service) Generate(ctx context.Context, doctorID, branchID uuid.UUID, from, to time.Time, regenerate bool) ([]Slot, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: %s after %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	templates, err := s.repo.ListActiveTemplates(ctx, doctorID, branchID)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	if len(templates) == 0 {
		return nil, nil
	}

	exceptions, err := s.repo.ListExceptions(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}

	if regenerate {
		deleted, err := s.repo.DeleteUnbookedSlots(ctx, doctorID, branchID, from, to)
		if err != nil {
			return nil, fmt.Errorf("clear unbooked slots: %w", err)
		}
		s.logger.Info().
			Str("doctor_id", doctorID.String()).
			Int64("deleted", deleted).
			Msg("regenerate cleared unbooked slots")
	}

	var created []Slot
	for date := truncateToDay(from); !date.After(to); date = date.AddDate(0, 0, 1) {
		dayExceptions := exceptionsForDay(exceptions, branchID, date)
		if hasFullDayException(dayExceptions) {
			continue
		}

		for i := range templates {
			tpl := &templates[i]
			if !tpl.CoversDate(date) {
				continue
			}
			slots, err := s.expandTemplate(ctx, tpl, date, dayExceptions)
			if err != nil {
				return nil, err
			}
			created = append(created, slots...)
		}
	}

	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Str("branch_id", branchID.String()).
		Int("created", len(created)).
		Msg("slots generated")

	return created, nil
}

// expandTemplate walks the template's time range in slot-duration steps.
// Trailing partial intervals are dropped, candidates inside the break
// window are dropped, and candidates under a partial-day exception are
// created blocked.
func (s *Service) expandTemplate(ctx context.Context, tpl *ScheduleTemplate, date time.Time, dayExceptions []ScheduleException) ([]Slot, error) {
	step := TimeOfDay(tpl.SlotMinutes)

	var created []Slot
	for start := tpl.StartTime; start+step <= tpl.EndTime; start += step {
		end := start + step

		if tpl.BreakStart != nil && start < *tpl.BreakEnd && *tpl.BreakStart < end {
			continue
		}

		slot := Slot{
			DoctorID:    tpl.DoctorID,
			BranchID:    tpl.BranchID,
			Date:        date,
			StartTime:   start,
			EndTime:     end,
			MaxBookings: tpl.MaxBookings,
			Available:   true,
		}

		for i := range dayExceptions {
			if dayExceptions[i].Overlaps(start, end) {
				reason := dayExceptions[i].Reason
				slot.Blocked = true
				slot.BlockReason = &reason
				break
			}
		}

		inserted, err := s.repo.CreateSlot(ctx, &slot)
		if err != nil {
			return nil, fmt.Errorf("create slot %s %s: %w", date.Format("2006-01-02"), start, err)
		}
		if inserted {
			created = append(created, slot)
		}
	}

	return created, nil
}

// EnsureSlot finds the slot for (doctor, branch, date, start) or
// materializes it on the fly when a template covers the requested time
// and no exception blocks it. Returns ErrSlotNotFound when neither
// applies; booking then proceeds without a slot.
func (s *Service) EnsureSlot(ctx context.Context, doctorID, branchID uuid.UUID, date time.Time, start TimeOfDay, durationMinutes int) (*Slot, error) {
	existing, err := s.repo.FindSlot(ctx, doctorID, branchID, date, start)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, fmt.Errorf("find slot: %w", err)
	}

	templates, err := s.repo.ListActiveTemplates(ctx, doctorID, branchID)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	end := start + TimeOfDay(durationMinutes)

	var tpl *ScheduleTemplate
	for i := range templates {
		t := &templates[i]
		if !t.CoversDate(date) {
			continue
		}
		if start < t.StartTime || end > t.EndTime {
			continue
		}
		if t.BreakStart != nil && start < *t.BreakEnd && *t.BreakStart < end {
			continue
		}
		tpl = t
		break
	}
	if tpl == nil {
		return nil, ErrSlotNotFound
	}

	exceptions, err := s.repo.ListExceptions(ctx, doctorID, date, date)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	for i := range exceptions {
		if exceptions[i].AppliesTo(branchID, date) && exceptions[i].Overlaps(start, end) {
			return nil, ErrSlotNotFound
		}
	}

	slot := Slot{
		DoctorID:    doctorID,
		BranchID:    branchID,
		Date:        truncateToDay(date),
		StartTime:   start,
		EndTime:     start + TimeOfDay(tpl.SlotMinutes),
		MaxBookings: tpl.MaxBookings,
		Available:   true,
	}

	inserted, err := s.repo.CreateSlot(ctx, &slot)
	if err != nil {
		return nil, fmt.Errorf("materialize slot: %w", err)
	}
	if !inserted {
		// Lost the race to a concurrent booking; reuse its row.
		return s.repo.FindSlot(ctx, doctorID, branchID, date, start)
	}

	s.logger.Debug().
		Str("doctor_id", doctorID.String()).
		Str("date", date.Format("2006-01-02")).
		Str("start", start.String()).
		Msg("slot materialized on demand")

	return &slot, nil
}

// Block marks empty slots in the window blocked. A nil window blocks the
// doctor's whole day at the branch.
func (s *Service) Block(ctx context.Context, doctorID, branchID uuid.UUID, date time.Time, start, end *TimeOfDay, reason string, actor *uuid.UUID) (int64, error) {
	if (start == nil) != (end == nil) {
		return 0, fmt.Errorf("%w: block window needs both start and end", ErrInvalidException)
	}
	if start != nil && *start >= *end {
		return 0, fmt.Errorf("%w: block start %s must be before end %s", ErrInvalidException, *start, *end)
	}

	blocked, err := s.repo.BlockSlots(ctx, doctorID, branchID, date, start, end, reason, actor)
	if err != nil {
		return 0, fmt.Errorf("block slots: %w", err)
	}
	return blocked, nil
}

func (s *Service) Unblock(ctx context.Context, doctorID, branchID uuid.UUID, date time.Time, start, end *TimeOfDay) (int64, error) {
	unblocked, err := s.repo.UnblockSlots(ctx, doctorID, branchID, date, start, end)
	if err != nil {
		return 0, fmt.Errorf("unblock slots: %w", err)
	}
	return unblocked, nil
}

// IncrementBookings reserves one booking on the slot. The guarded SQL
// refuses to exceed capacity; callers serialize via the per-slot lock.
func (s *Service) IncrementBookings(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	return s.repo.IncrementSlotBookings(ctx, slotID)
}

// DecrementBookings releases one booking on the slot, flooring at zero.
func (s *Service) DecrementBookings(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	return s.repo.DecrementSlotBookings(ctx, slotID)
}

// ListSlots returns materialized slots for the doctor/branch in range.
func (s *Service) ListSlots(ctx context.Context, doctorID, branchID uuid.UUID, from, to time.Time) ([]Slot, error) {
	slots, err := s.repo.ListSlots(ctx, doctorID, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// Cleanup deletes past, never-booked slots older than keepDays. Run by
// the cleanup worker.
func (s *Service) Cleanup(ctx context.Context, now time.Time, keepDays int) (int64, error) {
	cutoff := truncateToDay(now).AddDate(0, 0, -keepDays)
	deleted, err := s.repo.DeletePastUnbookedSlots(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup slots: %w", err)
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("cleaned up past slots")
	}
	return deleted, nil
}

func exceptionsForDay(exceptions []ScheduleException, branchID uuid.UUID, date time.Time) []ScheduleException {
	var day []ScheduleException
	for i := range exceptions {
		if exceptions[i].AppliesTo(branchID, date) {
			day = append(day, exceptions[i])
		}
	}
	return day
}

func hasFullDayException(exceptions []ScheduleException) bool {
	for i := range exceptions {
		if exceptions[i].FullDay() {
			return true
		}
	}
	return false
}
