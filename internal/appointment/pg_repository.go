package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinic-scheduling/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Phone,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

const appointmentColumns = `id, patient_id, doctor_id, branch_id, slot_id, service_id, package_id,
	appointment_type, appointment_date, start_minutes, end_minutes, status, priority, source,
	token_number, reason, notes, cancel_reason, rescheduled_from, reschedule_count,
	confirmed_at, checked_in_at, started_at, completed_at, cancelled_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status, priority string
	var start, end int

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.BranchID,
		&a.SlotID,
		&a.ServiceID,
		&a.PackageID,
		&a.AppointmentType,
		&a.Date,
		&start,
		&end,
		&status,
		&priority,
		&a.Source,
		&a.TokenNumber,
		&a.Reason,
		&a.Notes,
		&a.CancelReason,
		&a.RescheduledFrom,
		&a.RescheduleCount,
		&a.ConfirmedAt,
		&a.CheckedInAt,
		&a.StartedAt,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.StartTime = schedule.TimeOfDay(start)
	a.EndTime = schedule.TimeOfDay(end)
	a.Status = Status(status)
	a.Priority = Priority(priority)
	return &a, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, doctor_id, branch_id, slot_id, service_id, package_id,
			 appointment_type, appointment_date, start_minutes, end_minutes, status, priority,
			 source, reason, notes, rescheduled_from, reschedule_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.PatientID, a.DoctorID, a.BranchID, a.SlotID, a.ServiceID, a.PackageID,
		a.AppointmentType, a.Date, int(a.StartTime), int(a.EndTime), string(a.Status), string(a.Priority),
		a.Source, a.Reason, a.Notes, a.RescheduledFrom, a.RescheduleCount)

	return row.Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    confirmed_at = CASE WHEN $2 = 'confirmed' THEN $4 ELSE confirmed_at END,
		    started_at = CASE WHEN $2 = 'in_progress' THEN $4 ELSE started_at END,
		    completed_at = CASE WHEN $2 = 'completed' THEN $4 ELSE completed_at END,
		    cancelled_at = CASE WHEN $2 = 'cancelled' THEN $4 ELSE cancelled_at END,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns+`
	`, id, string(to), statusStrings(from), at)

	return scanAppointment(row)
}

func (r *PgRepository) CheckIn(ctx context.Context, id uuid.UUID, token int, from []Status, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'checked_in',
		    token_number = $2,
		    checked_in_at = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns+`
	`, id, token, statusStrings(from), at)

	return scanAppointment(row)
}

func (r *PgRepository) Cancel(ctx context.Context, id uuid.UUID, reason string, from []Status, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancel_reason = $2,
		    cancelled_at = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns+`
	`, id, reason, statusStrings(from), at)

	return scanAppointment(row)
}

func (r *PgRepository) NextTokenNumber(ctx context.Context, branchID uuid.UUID, date time.Time) (int, error) {
	var next int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(token_number), 0) + 1
		FROM appointments
		WHERE branch_id = $1 AND appointment_date = $2
	`, branchID, date).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next token number: %w", err)
	}
	return next, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, start_minutes DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListDailyQueue(ctx context.Context, branchID uuid.UUID, date time.Time, doctorID *uuid.UUID, includeCompleted bool) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE branch_id = $1
		  AND appointment_date = $2
		  AND ($3::uuid IS NULL OR doctor_id = $3)
		  AND status NOT IN ('cancelled', 'no_show', 'rescheduled')
		  AND ($4 OR status <> 'completed')
		ORDER BY
		  CASE priority WHEN 'emergency' THEN 0 WHEN 'urgent' THEN 1 ELSE 2 END,
		  start_minutes
	`, branchID, date, doctorID, includeCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListWaiting(ctx context.Context, branchID uuid.UUID, date time.Time, doctorID *uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE branch_id = $1
		  AND appointment_date = $2
		  AND ($3::uuid IS NULL OR doctor_id = $3)
		  AND status = 'checked_in'
		ORDER BY checked_in_at
	`, branchID, date, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertReminder(ctx context.Context, rem *Reminder) error {
	if rem.ID == uuid.Nil {
		rem.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO reminders (id, appointment_id, reminder_type, channel, recipient, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, rem.ID, rem.AppointmentID, string(rem.Type), rem.Channel, rem.Recipient, string(rem.Status))
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}

	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
