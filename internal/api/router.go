package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carebook/hospital-scheduling/internal/identity"
	"github.com/carebook/hospital-scheduling/internal/schedule"
)

type RouterConfig struct {
	Repo        schedule.Repository
	Generator   *schedule.Generator
	Coordinator *schedule.Coordinator
	Adjuster    *schedule.Adjuster
	Scorer      *schedule.Scorer
	Identity    identity.Provider

	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string

	DefaultCapacity int
	Log             zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(IdentityMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := &Handlers{
		Repo:            cfg.Repo,
		Generator:       cfg.Generator,
		Coordinator:     cfg.Coordinator,
		Adjuster:        cfg.Adjuster,
		Scorer:          cfg.Scorer,
		Identity:        cfg.Identity,
		Validate:        validator.New(),
		DefaultCapacity: cfg.DefaultCapacity,
		Log:             cfg.Log,
	}

	// Slots
	r.Route("/staff/{id}", func(r chi.Router) {
		r.Get("/slots", h.ListSlots)
		r.Post("/slots/generate", h.GenerateSlots)
		r.Post("/slots/bulk", h.BulkToggle)
		r.Get("/appointments", h.ListStaffAppointments)
		r.Get("/demand", h.Demand)
	})

	// Operational adjustments on a single slot
	r.Route("/slots/{id}", func(r chi.Router) {
		r.Post("/toggle", h.ToggleSlot)
		r.Post("/emergency-cancel", h.EmergencyCancelSlot)
		r.Post("/running-late", h.RunningLate)
		r.Post("/capacity", h.ResizeCapacity)
	})

	// Booking
	r.Post("/bookings", h.Book)
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Post("/reschedule", h.Reschedule)
		r.Post("/cancel", h.CancelAppointment)
		r.Post("/confirm", h.transitionHandler(cfg.Coordinator.Confirm))
		r.Post("/start", h.transitionHandler(cfg.Coordinator.Start))
		r.Post("/complete", h.transitionHandler(cfg.Coordinator.Complete))
		r.Post("/no-show", h.transitionHandler(cfg.Coordinator.MarkNoShow))
	})

	// Patient-facing reads
	r.Route("/patients/{id}", func(r chi.Router) {
		r.Get("/appointments", h.ListPatientAppointments)
		r.Get("/recommendations", h.Recommendations)
	})

	return r
}
