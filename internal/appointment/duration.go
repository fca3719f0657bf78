package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDurationUnknown means the referenced service/package/type has no
// configured duration; the resolver then falls through to the next
// source in priority order.
var ErrDurationUnknown = errors.New("no duration configured")

// DurationSource answers duration lookups for the booking flow. The
// priority order is: service, package session, appointment type,
// configured clinic default.
type DurationSource interface {
	ServiceMinutes(ctx context.Context, serviceID uuid.UUID) (int, error)
	PackageSessionMinutes(ctx context.Context, packageID uuid.UUID) (int, error)
	AppointmentTypeMinutes(ctx context.Context, name string) (int, error)
}

type PgDurationSource struct {
	pool *pgxpool.Pool
}

func NewPgDurationSource(pool *pgxpool.Pool) *PgDurationSource {
	return &PgDurationSource{pool: pool}
}

func (s *PgDurationSource) ServiceMinutes(ctx context.Context, serviceID uuid.UUID) (int, error) {
	return s.lookup(ctx, `SELECT duration_minutes FROM services WHERE id = $1`, serviceID)
}

func (s *PgDurationSource) PackageSessionMinutes(ctx context.Context, packageID uuid.UUID) (int, error) {
	return s.lookup(ctx, `SELECT session_minutes FROM packages WHERE id = $1`, packageID)
}

func (s *PgDurationSource) AppointmentTypeMinutes(ctx context.Context, name string) (int, error) {
	return s.lookup(ctx, `SELECT default_minutes FROM appointment_types WHERE name = $1`, name)
}

func (s *PgDurationSource) lookup(ctx context.Context, query string, arg any) (int, error) {
	var minutes *int
	err := s.pool.QueryRow(ctx, query, arg).Scan(&minutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrDurationUnknown
		}
		return 0, err
	}
	if minutes == nil || *minutes <= 0 {
		return 0, ErrDurationUnknown
	}
	return *minutes, nil
}
