package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	"github.com/clinicore/clinic-scheduling/internal/schedule"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Schedules    *schedule.Service
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Env          string
	Version      string
	Logger       zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Schedule administration
	r.Route("/schedules", func(r chi.Router) {
		r.Post("/templates", createTemplateHandler(cfg.Schedules))
		r.Get("/templates", listTemplatesHandler(cfg.Schedules))
		r.Delete("/templates/{id}", deactivateTemplateHandler(cfg.Schedules))

		r.Post("/exceptions", createExceptionHandler(cfg.Schedules))
		r.Get("/exceptions", listExceptionsHandler(cfg.Schedules))
		r.Delete("/exceptions/{id}", deactivateExceptionHandler(cfg.Schedules))
	})

	// Slot materialization and day blocks
	r.Route("/slots", func(r chi.Router) {
		r.Get("/", listSlotsHandler(cfg.Schedules))
		r.Post("/generate", generateSlotsHandler(cfg.Schedules))
		r.Post("/block", blockSlotsHandler(cfg.Schedules, true))
		r.Post("/unblock", blockSlotsHandler(cfg.Schedules, false))
	})

	// Appointment lifecycle
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Appointments))
		r.Get("/", listAppointmentsHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))

		r.Post("/{id}/confirm", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
			return cfg.Appointments.Confirm(req.Context(), id)
		}))
		r.Post("/{id}/check-in", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
			return cfg.Appointments.CheckIn(req.Context(), id)
		}))
		r.Post("/{id}/start", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
			return cfg.Appointments.Start(req.Context(), id)
		}))
		r.Post("/{id}/complete", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
			return cfg.Appointments.Complete(req.Context(), id)
		}))
		r.Post("/{id}/no-show", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
			return cfg.Appointments.MarkNoShow(req.Context(), id)
		}))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Appointments))
	})

	// Queue views
	r.Route("/queue", func(r chi.Router) {
		r.Get("/", dailyQueueHandler(cfg.Appointments))
		r.Get("/waiting", waitingPatientsHandler(cfg.Appointments))
		r.Get("/next", nextPatientHandler(cfg.Appointments))
	})

	return r
}
