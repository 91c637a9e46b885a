package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/community-payback-reconciler/internal/outcome"
	"github.com/hackgods/community-payback-reconciler/internal/scheduling"
)

type OutcomeService interface {
	UpdateOutcomes(ctx context.Context, updates []outcome.Update) error
	GetRecord(ctx context.Context, id uuid.UUID) (*outcome.Record, error)
	History(ctx context.Context, appointmentID int64) ([]outcome.Record, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, crn string, trigger scheduling.Trigger) (scheduling.Outcome, error)
}

type RouterConfig struct {
	Outcomes   OutcomeService
	Scheduling Reconciler
	Checks     []Check
	Logger     *zap.Logger
	Env        string
	Version    string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Put("/appointments/outcomes", updateOutcomesHandler(cfg.Outcomes))
	r.Get("/appointments/{appointmentId}/outcomes", outcomeHistoryHandler(cfg.Outcomes))
	r.Get("/appointment-outcomes/{id}", getOutcomeRecordHandler(cfg.Outcomes))

	r.Post("/scheduling/{crn}/reconcile", reconcileHandler(cfg.Scheduling))

	return r
}
