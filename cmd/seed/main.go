package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinic-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	branchIDs, err := seedBranches(context.Background(), pool, 3)
	if err != nil {
		log.Fatalf("seed branches: %v", err)
	}
	doctorIDs, err := seedDoctors(context.Background(), pool, 40)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedServices(context.Background(), pool); err != nil {
		log.Fatalf("seed services: %v", err)
	}
	if err := seedAppointmentTypes(context.Background(), pool); err != nil {
		log.Fatalf("seed appointment types: %v", err)
	}
	if err := seedTemplates(context.Background(), pool, doctorIDs, branchIDs); err != nil {
		log.Fatalf("seed templates: %v", err)
	}

	log.Println("seed complete")
}

func seedBranches(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d branches", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.City() + " Clinic"

		_, err := tx.Exec(ctx, `
			INSERT INTO branches (id, name, address, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, gofakeit.Street())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		phone := gofakeit.Phone()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, phone, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, phone, email)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) error {
	services := []struct {
		name    string
		minutes int
	}{
		{"General Consultation", 15},
		{"Specialist Consultation", 30},
		{"Minor Procedure", 45},
		{"Annual Physical", 60},
		{"Vaccination", 10},
	}

	log.Printf("seeding %d services", len(services))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range services {
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, duration_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, uuid.New(), s.name, s.minutes)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedAppointmentTypes(ctx context.Context, pool *pgxpool.Pool) error {
	types := []struct {
		name    string
		minutes int
	}{
		{"walk_in", 15},
		{"consultation", 30},
		{"follow_up", 20},
		{"procedure", 45},
	}

	log.Printf("seeding %d appointment types", len(types))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, t := range types {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_types (name, default_minutes, created_at)
			VALUES ($1, $2, now())
		`, t.name, t.minutes)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// seedTemplates gives every doctor a morning and an afternoon template
// on two random weekdays at a random branch.
func seedTemplates(ctx context.Context, pool *pgxpool.Pool, doctorIDs, branchIDs []uuid.UUID) error {
	log.Printf("seeding templates for %d doctors", len(doctorIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	slotMinutes := []int{10, 15, 20, 30}

	for _, doctorID := range doctorIDs {
		branchID := branchIDs[gofakeit.Number(0, len(branchIDs)-1)]
		dur := slotMinutes[gofakeit.Number(0, len(slotMinutes)-1)]

		for _, weekday := range []int{gofakeit.Number(1, 3), gofakeit.Number(4, 5)} {
			// 09:00-13:00 with a 11:00-11:30 break, and 14:00-17:00
			windows := [][2]int{{9 * 60, 13 * 60}, {14 * 60, 17 * 60}}
			for i, win := range windows {
				var breakStart, breakEnd *int
				if i == 0 {
					bs, be := 11*60, 11*60+30
					breakStart, breakEnd = &bs, &be
				}

				_, err := tx.Exec(ctx, `
					INSERT INTO schedule_templates
						(id, doctor_id, branch_id, weekday, start_minutes, end_minutes,
						 slot_minutes, max_bookings, break_start_minutes, break_end_minutes,
						 active, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true, now(), now())
				`, uuid.New(), doctorID, branchID, weekday, win[0], win[1], dur, 1, breakStart, breakEnd)
				if err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}
