package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
	"github.com/hackgods/pediatric-clinic-booking/internal/clinic"
	"github.com/hackgods/pediatric-clinic-booking/internal/logging"
	"github.com/hackgods/pediatric-clinic-booking/internal/session"
)

// Conversations runs booking operations on stored conversations.
type Conversations interface {
	Begin(ctx context.Context, key session.Key) (booking.State, booking.Prompt, error)
	SelectChild(ctx context.Context, key session.Key, in booking.Input) (booking.State, booking.Prompt, error)
	SelectType(ctx context.Context, key session.Key, in booking.Input) (booking.State, booking.Prompt, error)
	SelectDate(ctx context.Context, key session.Key, in booking.Input) (booking.State, booking.Prompt, error)
	SelectTime(ctx context.Context, key session.Key, in booking.Input) (booking.State, booking.Prompt, error)
	Cancel(ctx context.Context, key session.Key) (booking.State, booking.Prompt, error)
	Current(ctx context.Context, key session.Key) (booking.State, booking.Prompt, error)
}

// GuardianDirectory serves the guardian's own records.
type GuardianDirectory interface {
	GetGuardian(ctx context.Context, id uuid.UUID) (*clinic.Guardian, error)
	GuardianChildren(ctx context.Context, guardianID uuid.UUID) ([]clinic.Child, error)
	GuardianAppointments(ctx context.Context, guardianID uuid.UUID, limit int) ([]clinic.AppointmentDetail, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, phone, secret string) (*clinic.Guardian, error)
}

type Tokens interface {
	Issue(guardianID string) (string, time.Time, error)
	Parse(token string) (string, error)
	IssueStaff(login string) (string, time.Time, error)
	ParseStaff(token string) (string, error)
}

type RouterConfig struct {
	Conversations Conversations
	Directory     GuardianDirectory
	Auth          Authenticator
	Tokens        Tokens
	Location      *time.Location

	Staff     StaffDesk // nil disables the staff API
	StaffAuth StaffAuthenticator

	PgPool Pinger
	Redis  *redis.Client

	Metrics http.Handler // defaults to the global Prometheus registry

	ChatWebhook http.Handler // nil disables the chat front-end
	ChatSecret  string

	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := logging.OrNop(cfg.Logger)
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	deps := map[string]Pinger{"postgres": cfg.PgPool, "redis": nil}
	if cfg.Redis != nil {
		deps["redis"] = PingFunc(func(ctx context.Context) error { return cfg.Redis.Ping(ctx).Err() })
	}
	health := NewHealthHandler(deps, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	metricsHandler := cfg.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Post("/auth/login", loginHandler(cfg.Auth, cfg.Tokens, logger))

	if cfg.ChatWebhook != nil {
		r.With(WebhookSecret(cfg.ChatSecret)).Method(http.MethodPost, "/chat/telegram", cfg.ChatWebhook)
	}

	r.Group(func(r chi.Router) {
		r.Use(GuardianAuth(cfg.Tokens))

		r.Get("/me/children", listChildrenHandler(cfg.Directory, loc, logger))
		r.Get("/me/appointments", listAppointmentsHandler(cfg.Directory, logger))

		b := &bookingHandlers{conv: cfg.Conversations, log: logger}
		r.Route("/booking", func(r chi.Router) {
			r.Get("/", b.current)
			r.Post("/begin", b.begin)
			r.Post("/child", b.step("select_child", cfg.Conversations.SelectChild, func(req StepRequest) string { return req.ChildID }))
			r.Post("/type", b.step("select_type", cfg.Conversations.SelectType, func(req StepRequest) string { return req.VisitType }))
			r.Post("/date", b.step("select_date", cfg.Conversations.SelectDate, func(req StepRequest) string { return req.Date }))
			r.Post("/time", b.step("select_time", cfg.Conversations.SelectTime, func(req StepRequest) string { return req.Time }))
			r.Post("/cancel", b.cancel)
		})
	})

	if cfg.Staff != nil && cfg.StaffAuth != nil {
		h := &staffHandlers{desk: cfg.Staff, loc: loc, log: logger}
		r.Route("/staff", func(r chi.Router) {
			r.Post("/login", staffLoginHandler(cfg.StaffAuth, cfg.Tokens, logger))

			r.Group(func(r chi.Router) {
				r.Use(StaffAuth(cfg.Tokens))

				r.Get("/patients", h.listPatients)
				r.Post("/patients", h.createPatient)
				r.Put("/patients/{id}", h.renamePatient)
				r.Get("/guardians", h.listGuardians)

				r.Get("/appointments", h.listAppointments)
				r.Post("/appointments", h.createAppointment)
				r.Put("/appointments/{id}/status", h.changeStatus)
				r.Post("/appointments/{id}/visit-result", h.recordVisit)

				r.Get("/medical-templates", h.listTemplates)
			})
		})
	}

	return r
}
