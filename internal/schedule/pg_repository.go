package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func minutesPtr(t *TimeOfDay) *int {
	if t == nil {
		return nil
	}
	v := int(*t)
	return &v
}

func timeOfDayPtr(v *int) *TimeOfDay {
	if v == nil {
		return nil
	}
	t := TimeOfDay(*v)
	return &t
}

func scanTemplate(row pgx.Row) (*ScheduleTemplate, error) {
	var t ScheduleTemplate
	var weekday, start, end int
	var breakStart, breakEnd *int

	err := row.Scan(
		&t.ID,
		&t.DoctorID,
		&t.BranchID,
		&weekday,
		&start,
		&end,
		&t.SlotMinutes,
		&t.MaxBookings,
		&breakStart,
		&breakEnd,
		&t.EffectiveFrom,
		&t.EffectiveUntil,
		&t.Active,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.Weekday = time.Weekday(weekday)
	t.StartTime = TimeOfDay(start)
	t.EndTime = TimeOfDay(end)
	t.BreakStart = timeOfDayPtr(breakStart)
	t.BreakEnd = timeOfDayPtr(breakEnd)
	return &t, nil
}

func scanException(row pgx.Row) (*ScheduleException, error) {
	var e ScheduleException
	var start, end *int

	err := row.Scan(
		&e.ID,
		&e.DoctorID,
		&e.BranchID,
		&e.Date,
		&start,
		&end,
		&e.Reason,
		&e.Active,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExceptionNotFound
		}
		return nil, err
	}

	e.StartTime = timeOfDayPtr(start)
	e.EndTime = timeOfDayPtr(end)
	return &e, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var start, end int

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.BranchID,
		&s.Date,
		&start,
		&end,
		&s.MaxBookings,
		&s.CurrentBookings,
		&s.Available,
		&s.Blocked,
		&s.BlockReason,
		&s.BlockedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.StartTime = TimeOfDay(start)
	s.EndTime = TimeOfDay(end)
	return &s, nil
}

const slotColumns = `id, doctor_id, branch_id, slot_date, start_minutes, end_minutes,
	max_bookings, current_bookings, available, blocked, block_reason, blocked_by,
	created_at, updated_at`

const templateColumns = `id, doctor_id, branch_id, weekday, start_minutes, end_minutes,
	slot_minutes, max_bookings, break_start_minutes, break_end_minutes,
	effective_from, effective_until, active, created_at, updated_at`

// Templates

func (r *PgRepository) CreateTemplate(ctx context.Context, t *ScheduleTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedule_templates
			(id, doctor_id, branch_id, weekday, start_minutes, end_minutes,
			 slot_minutes, max_bookings, break_start_minutes, break_end_minutes,
			 effective_from, effective_until, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING created_at, updated_at
	`, t.ID, t.DoctorID, t.BranchID, int(t.Weekday), int(t.StartTime), int(t.EndTime),
		t.SlotMinutes, t.MaxBookings, minutesPtr(t.BreakStart), minutesPtr(t.BreakEnd),
		t.EffectiveFrom, t.EffectiveUntil, t.Active)

	return row.Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *PgRepository) GetTemplateByID(ctx context.Context, id uuid.UUID) (*ScheduleTemplate, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM schedule_templates
		WHERE id = $1
	`, id)
	return scanTemplate(row)
}

func (r *PgRepository) ListActiveTemplates(ctx context.Context, doctorID, branchID uuid.UUID) ([]ScheduleTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+templateColumns+`
		FROM schedule_templates
		WHERE doctor_id = $1 AND branch_id = $2 AND active
		ORDER BY weekday, start_minutes
	`, doctorID, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScheduleTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (r *PgRepository) DeactivateTemplate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedule_templates
		SET active = false, updated_at = now()
		WHERE id = $1 AND active
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// Exceptions

func (r *PgRepository) CreateException(ctx context.Context, e *ScheduleException) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedule_exceptions
			(id, doctor_id, branch_id, exception_date, start_minutes, end_minutes,
			 reason, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING created_at
	`, e.ID, e.DoctorID, e.BranchID, e.Date, minutesPtr(e.StartTime), minutesPtr(e.EndTime),
		e.Reason, e.Active)

	return row.Scan(&e.CreatedAt)
}

func (r *PgRepository) ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]ScheduleException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, branch_id, exception_date, start_minutes, end_minutes,
		       reason, active, created_at
		FROM schedule_exceptions
		WHERE doctor_id = $1
		  AND exception_date BETWEEN $2 AND $3
		  AND active
		ORDER BY exception_date, start_minutes NULLS FIRST
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScheduleException
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (r *PgRepository) DeactivateException(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedule_exceptions
		SET active = false
		WHERE id = $1 AND active
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

// Slots

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) FindSlot(ctx context.Context, doctorID, branchID uuid.UUID, date time.Time, start TimeOfDay) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE doctor_id = $1 AND branch_id = $2 AND slot_date = $3 AND start_minutes = $4
	`, doctorID, branchID, date, int(start))
	return scanSlot(row)
}

func (r *PgRepository) ListSlots(ctx context.Context, doctorID, branchID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE doctor_id = $1 AND branch_id = $2
		  AND slot_date BETWEEN $3 AND $4
		ORDER BY slot_date, start_minutes
	`, doctorID, branchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

// CreateSlot relies on the unique index over (doctor_id, branch_id,
// slot_date, start_minutes); a conflicting insert is a no-op so repeated
// materialization runs cannot duplicate slots.
func (r *PgRepository) CreateSlot(ctx context.Context, s *Slot) (bool, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO slots
			(id, doctor_id, branch_id, slot_date, start_minutes, end_minutes,
			 max_bookings, current_bookings, available, blocked, block_reason, blocked_by,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		ON CONFLICT (doctor_id, branch_id, slot_date, start_minutes) DO NOTHING
	`, s.ID, s.DoctorID, s.BranchID, s.Date, int(s.StartTime), int(s.EndTime),
		s.MaxBookings, s.CurrentBookings, s.Available, s.Blocked, s.BlockReason, s.BlockedBy)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) DeleteUnbookedSlots(ctx context.Context, doctorID, branchID uuid.UUID, from, to time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots
		WHERE doctor_id = $1 AND branch_id = $2
		  AND slot_date BETWEEN $3 AND $4
		  AND current_bookings = 0
	`, doctorID, branchID, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) DeletePastUnbookedSlots(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots
		WHERE slot_date < $1
		  AND current_bookings = 0
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) BlockSlots(ctx context.Context, doctorID, branchID uuid.UUID, date time.Time, start, end *TimeOfDay, reason string, actor *uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET blocked = true,
		    block_reason = $5,
		    blocked_by = $6,
		    updated_at = now()
		WHERE doctor_id = $1 AND branch_id = $2 AND slot_date = $3
		  AND current_bookings = 0
		  AND NOT blocked
		  AND ($4::int IS NULL OR (start_minutes < $7 AND end_minutes > $4))
	`, doctorID, branchID, date, minutesPtr(start), reason, actor, minutesPtr(end))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) UnblockSlots(ctx context.Context, doctorID, branchID uuid.UUID, date time.Time, start, end *TimeOfDay) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET blocked = false,
		    block_reason = NULL,
		    blocked_by = NULL,
		    updated_at = now()
		WHERE doctor_id = $1 AND branch_id = $2 AND slot_date = $3
		  AND blocked
		  AND ($4::int IS NULL OR (start_minutes < $5 AND end_minutes > $4))
	`, doctorID, branchID, date, minutesPtr(start), minutesPtr(end))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IncrementSlotBookings bumps the booking counter only while the slot is
// bookable, so capacity can never be exceeded by the SQL itself.
func (r *PgRepository) IncrementSlotBookings(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET current_bookings = current_bookings + 1,
		    updated_at = now()
		WHERE id = $1
		  AND available
		  AND NOT blocked
		  AND current_bookings < max_bookings
		RETURNING `+slotColumns+`
	`, slotID)

	s, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, r.classifyIncrementFailure(ctx, slotID)
		}
		return nil, err
	}
	return s, nil
}

// classifyIncrementFailure distinguishes a missing slot from a full or
// blocked one after a zero-row increment.
func (r *PgRepository) classifyIncrementFailure(ctx context.Context, slotID uuid.UUID) error {
	s, err := r.GetSlotByID(ctx, slotID)
	if err != nil {
		return err
	}
	if s.CurrentBookings >= s.MaxBookings {
		return ErrSlotFull
	}
	return ErrSlotNotBookable
}

func (r *PgRepository) DecrementSlotBookings(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET current_bookings = GREATEST(current_bookings - 1, 0),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns+`
	`, slotID)
	return scanSlot(row)
}
