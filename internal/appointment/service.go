package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/config"
	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
	"github.com/clinicore/clinic-scheduling/internal/schedule"
)

const (
	EventBooked      = "APPOINTMENT_BOOKED"
	EventConfirmed   = "APPOINTMENT_CONFIRMED"
	EventCheckedIn   = "APPOINTMENT_CHECKED_IN"
	EventStarted     = "APPOINTMENT_STARTED"
	EventCompleted   = "APPOINTMENT_COMPLETED"
	EventCancelled   = "APPOINTMENT_CANCELLED"
	EventNoShow      = "APPOINTMENT_NO_SHOW"
	EventRescheduled = "APPOINTMENT_RESCHEDULED"
)

var (
	ErrSlotBeingBooked  = errors.New("slot is currently being booked, please retry")
	ErrCheckInContended = errors.New("check-in desk is busy, please retry")
)

// SlotStore is the slice of the schedule service the booking flow needs.
type SlotStore interface {
	EnsureSlot(ctx context.Context, doctorID, branchID uuid.UUID, date time.Time, start schedule.TimeOfDay, durationMinutes int) (*schedule.Slot, error)
	IncrementBookings(ctx context.Context, slotID uuid.UUID) (*schedule.Slot, error)
	DecrementBookings(ctx context.Context, slotID uuid.UUID) (*schedule.Slot, error)
}

type Service struct {
	repo      Repository
	slots     SlotStore
	locker    redisclient.Locker
	durations DurationSource
	cfg       config.Config
	logger    zerolog.Logger
}

func NewService(repo Repository, slots SlotStore, locker redisclient.Locker, durations DurationSource, cfg config.Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		slots:     slots,
		locker:    locker,
		durations: durations,
		cfg:       cfg,
		logger:    logger.With().Str("component", "appointment").Logger(),
	}
}

type BookRequest struct {
	PatientID       uuid.UUID
	DoctorID        *uuid.UUID
	BranchID        uuid.UUID
	ServiceID       *uuid.UUID
	PackageID       *uuid.UUID
	AppointmentType *string
	Date            time.Time
	StartTime       schedule.TimeOfDay
	Priority        Priority
	Source          string
	Reason          *string
	Notes           *string
}

// Book creates a new appointment in `requested`. The visit duration is
// resolved in priority order: service, package session, appointment
// type, clinic default. When a doctor is named the matching slot is
// found or materialized on the fly; its booking counter is incremented
// only after the appointment row exists, inside a per-slot lock.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	duration, err := s.resolveDuration(ctx, req.ServiceID, req.PackageID, req.AppointmentType)
	if err != nil {
		return nil, err
	}

	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if req.Source == "" {
		req.Source = "front_desk"
	}

	appt := &Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		BranchID:        req.BranchID,
		ServiceID:       req.ServiceID,
		PackageID:       req.PackageID,
		AppointmentType: req.AppointmentType,
		Date:            dateOnly(req.Date),
		StartTime:       req.StartTime,
		EndTime:         req.StartTime + schedule.TimeOfDay(duration),
		Status:          StatusRequested,
		Priority:        req.Priority,
		Source:          req.Source,
		Reason:          req.Reason,
		Notes:           req.Notes,
	}

	slot, err := s.findBookableSlot(ctx, appt, duration)
	if err != nil {
		return nil, err
	}

	if err := s.createWithSlot(ctx, appt, slot); err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventBooked, map[string]any{
		"patient_id": appt.PatientID.String(),
		"date":       appt.Date.Format("2006-01-02"),
		"start":      appt.StartTime.String(),
		"priority":   string(appt.Priority),
	})

	return appt, nil
}

// findBookableSlot resolves the slot for the appointment's doctor and
// time. A missing slot with no covering template is not an error: the
// appointment simply carries no slot.
func (s *Service) findBookableSlot(ctx context.Context, appt *Appointment, duration int) (*schedule.Slot, error) {
	if appt.DoctorID == nil {
		return nil, nil
	}

	slot, err := s.slots.EnsureSlot(ctx, *appt.DoctorID, appt.BranchID, appt.Date, appt.StartTime, duration)
	if err != nil {
		if errors.Is(err, schedule.ErrSlotNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve slot: %w", err)
	}

	if !slot.Bookable() {
		if slot.CurrentBookings >= slot.MaxBookings {
			return nil, schedule.ErrSlotFull
		}
		return nil, schedule.ErrSlotNotBookable
	}

	return slot, nil
}

// createWithSlot persists the appointment and, when a slot is attached,
// bumps its booking counter inside the per-slot lock. The row is created
// first; an increment failure rolls the row back.
func (s *Service) createWithSlot(ctx context.Context, appt *Appointment, slot *schedule.Slot) error {
	if slot == nil {
		if err := s.repo.CreateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	}

	err := s.locker.WithLock(ctx, fmt.Sprintf("slot:%s", slot.ID), func(lockCtx context.Context) error {
		appt.SlotID = &slot.ID
		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		if _, err := s.slots.IncrementBookings(lockCtx, slot.ID); err != nil {
			if delErr := s.repo.DeleteAppointment(lockCtx, appt.ID); delErr != nil {
				s.logger.Error().Err(delErr).
					Str("appointment_id", appt.ID.String()).
					Msg("failed to roll back appointment after slot increment failure")
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return ErrSlotBeingBooked
		}
		return err
	}

	return nil
}

func (s *Service) resolveDuration(ctx context.Context, serviceID, packageID *uuid.UUID, apptType *string) (int, error) {
	if serviceID != nil {
		minutes, err := s.durations.ServiceMinutes(ctx, *serviceID)
		if err == nil {
			return minutes, nil
		}
		if !errors.Is(err, ErrDurationUnknown) {
			return 0, fmt.Errorf("service duration: %w", err)
		}
	}
	if packageID != nil {
		minutes, err := s.durations.PackageSessionMinutes(ctx, *packageID)
		if err == nil {
			return minutes, nil
		}
		if !errors.Is(err, ErrDurationUnknown) {
			return 0, fmt.Errorf("package duration: %w", err)
		}
	}
	if apptType != nil {
		minutes, err := s.durations.AppointmentTypeMinutes(ctx, *apptType)
		if err == nil {
			return minutes, nil
		}
		if !errors.Is(err, ErrDurationUnknown) {
			return 0, fmt.Errorf("appointment type duration: %w", err)
		}
	}
	return s.cfg.DefaultVisitMin, nil
}

// Confirm moves a requested appointment to confirmed and queues a
// confirmation reminder.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	updated, err := s.transition(ctx, id, "confirm", StatusConfirmed, EventConfirmed)
	if err != nil {
		return nil, err
	}
	s.queueReminder(ctx, updated, ReminderConfirmation)
	return updated, nil
}

// CheckIn assigns the next token for the branch+day and moves the
// appointment to checked_in. Token computation runs inside a
// per-branch-per-day lock so concurrent check-ins cannot collide.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	sources, err := transitionSources("check_in", appt.Status)
	if err != nil {
		return nil, err
	}

	var updated *Appointment
	lockKey := fmt.Sprintf("token:%s:%s", appt.BranchID, appt.Date.Format("2006-01-02"))

	err = s.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		token, err := s.repo.NextTokenNumber(lockCtx, appt.BranchID, appt.Date)
		if err != nil {
			return err
		}
		updated, err = s.repo.CheckIn(lockCtx, appt.ID, token, sources, time.Now())
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrCheckInContended
		}
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.refetchTransitionError(ctx, id, "check_in")
		}
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventCheckedIn, map[string]any{
		"token": *updated.TokenNumber,
	})

	return updated, nil
}

// Start moves a checked-in appointment to in_progress.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, "start", StatusInProgress, EventStarted)
}

// Complete finishes an in-progress appointment and queues a follow-up
// reminder.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	updated, err := s.transition(ctx, id, "complete", StatusCompleted, EventCompleted)
	if err != nil {
		return nil, err
	}
	s.queueReminder(ctx, updated, ReminderFollowUp)
	return updated, nil
}

// Cancel terminates any non-terminal appointment with a reason and
// releases its slot booking.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	sources, err := transitionSources("cancel", appt.Status)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Cancel(ctx, appt.ID, reason, sources, time.Now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.refetchTransitionError(ctx, id, "cancel")
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.releaseSlot(ctx, updated)

	s.logEvent(ctx, updated.ID, EventCancelled, map[string]any{
		"reason": reason,
	})

	return updated, nil
}

// MarkNoShow terminates a non-terminal appointment as no_show. The slot
// booking is kept: the time was held for the patient.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, "mark_no_show", StatusNoShow, EventNoShow)
}

type RescheduleRequest struct {
	Date      time.Time
	StartTime schedule.TimeOfDay
	DoctorID  *uuid.UUID // optional override; defaults to the original doctor
	BranchID  *uuid.UUID // optional override; defaults to the original branch
	Notes     *string
}

// Reschedule closes the original appointment as `rescheduled` (never
// `cancelled`), releases its slot booking, and creates a fresh
// `requested` appointment linked through RescheduledFrom that carries
// over patient, doctor, service and notes.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	old, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	sources, err := transitionSources("reschedule", old.Status)
	if err != nil {
		return nil, err
	}
	if !old.CanReschedule(s.cfg.MaxReschedules) {
		return nil, ErrRescheduleNotAllowed
	}

	duration := int(old.EndTime - old.StartTime)
	if duration <= 0 {
		duration, err = s.resolveDuration(ctx, old.ServiceID, old.PackageID, old.AppointmentType)
		if err != nil {
			return nil, err
		}
	}

	next := &Appointment{
		PatientID:       old.PatientID,
		DoctorID:        old.DoctorID,
		BranchID:        old.BranchID,
		ServiceID:       old.ServiceID,
		PackageID:       old.PackageID,
		AppointmentType: old.AppointmentType,
		Date:            dateOnly(req.Date),
		StartTime:       req.StartTime,
		EndTime:         req.StartTime + schedule.TimeOfDay(duration),
		Status:          StatusRequested,
		Priority:        old.Priority,
		Source:          "reschedule",
		Reason:          old.Reason,
		Notes:           old.Notes,
		RescheduledFrom: &old.ID,
		RescheduleCount: old.RescheduleCount + 1,
	}
	if req.DoctorID != nil {
		next.DoctorID = req.DoctorID
	}
	if req.BranchID != nil {
		next.BranchID = *req.BranchID
	}
	if req.Notes != nil {
		next.Notes = req.Notes
	}

	// Resolve the target slot before touching the original so a full
	// target slot fails the whole operation up front.
	slot, err := s.findBookableSlot(ctx, next, duration)
	if err != nil {
		return nil, err
	}

	closed, err := s.repo.UpdateStatus(ctx, old.ID, sources, StatusRescheduled, time.Now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.refetchTransitionError(ctx, id, "reschedule")
		}
		return nil, fmt.Errorf("close original appointment: %w", err)
	}

	s.releaseSlot(ctx, closed)

	if err := s.createWithSlot(ctx, next, slot); err != nil {
		return nil, fmt.Errorf("create rescheduled appointment: %w", err)
	}

	s.logEvent(ctx, old.ID, EventRescheduled, map[string]any{
		"new_appointment_id": next.ID.String(),
		"date":               next.Date.Format("2006-01-02"),
		"start":              next.StartTime.String(),
	})
	s.logEvent(ctx, next.ID, EventBooked, map[string]any{
		"rescheduled_from": old.ID.String(),
	})

	return next, nil
}

// Get retrieves an appointment by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListByPatient retrieves a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// transition runs the load / precondition / CAS update sequence shared
// by the single-step verbs.
func (s *Service) transition(ctx context.Context, id uuid.UUID, op string, to Status, event string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	sources, err := transitionSources(op, appt.Status)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, sources, to, time.Now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.refetchTransitionError(ctx, id, op)
		}
		return nil, fmt.Errorf("%s appointment: %w", op, err)
	}

	s.logEvent(ctx, updated.ID, event, map[string]any{})

	return updated, nil
}

// refetchTransitionError reloads the row after a CAS miss so the caller
// sees the status that actually beat it.
func (s *Service) refetchTransitionError(ctx context.Context, id uuid.UUID, op string) error {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return err
	}
	return &InvalidTransitionError{Current: current.Status, Op: op}
}

func (s *Service) releaseSlot(ctx context.Context, appt *Appointment) {
	if appt.SlotID == nil {
		return
	}
	if _, err := s.slots.DecrementBookings(ctx, *appt.SlotID); err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Str("slot_id", appt.SlotID.String()).
			Msg("failed to release slot booking")
	}
}

func (s *Service) queueReminder(ctx context.Context, appt *Appointment, typ ReminderType) {
	patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to load patient for reminder")
		return
	}

	var channel, recipient string
	switch {
	case patient.Phone != nil && *patient.Phone != "":
		channel, recipient = "sms", *patient.Phone
	case patient.Email != nil && *patient.Email != "":
		channel, recipient = "email", *patient.Email
	default:
		s.logger.Debug().
			Str("patient_id", patient.ID.String()).
			Msg("patient has no reminder contact, skipping")
		return
	}

	rem := &Reminder{
		AppointmentID: appt.ID,
		Type:          typ,
		Channel:       channel,
		Recipient:     recipient,
		Status:        ReminderPending,
	}

	if err := s.repo.InsertReminder(ctx, rem); err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Str("type", string(typ)).
			Msg("failed to queue reminder")
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
