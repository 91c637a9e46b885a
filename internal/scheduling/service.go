package scheduling

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Service gathers the data for a CRN, runs the Scheduler and publishes the
// decision.
type Service struct {
	sources   Sources
	scheduler *Scheduler
	publisher *TelemetryPublisher
	logger    *zap.Logger
}

func NewService(sources Sources, scheduler *Scheduler, publisher *TelemetryPublisher, logger *zap.Logger) *Service {
	return &Service{
		sources:   sources,
		scheduler: scheduler,
		publisher: publisher,
		logger:    logger.Named("scheduling.service"),
	}
}

func (s *Service) Reconcile(ctx context.Context, crn string, trigger Trigger) (Outcome, error) {
	requirement, err := s.sources.Requirements.Requirement(ctx, crn)
	if err != nil {
		if errors.Is(err, ErrRequirementNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load requirement: %w", err)
	}

	required, err := s.sources.Required.RequiredAppointments(ctx, requirement)
	if err != nil {
		return nil, fmt.Errorf("load required appointments: %w", err)
	}

	existing, err := s.sources.Existing.ExistingAppointments(ctx, requirement)
	if err != nil {
		return nil, fmt.Errorf("load existing appointments: %w", err)
	}

	req, err := NewRequest(requirement, trigger, existing, required)
	if err != nil {
		return nil, err
	}

	outcome := s.scheduler.Schedule(req)
	s.publisher.Publish(req, outcome)

	fields := []zap.Field{
		zap.String("crn", crn),
		zap.String("trigger_type", string(trigger.Type)),
		zap.String("outcome", outcome.Name()),
		zap.Int64("remaining_minutes", requirement.RemainingMinutes()),
		zap.Int("existing", len(existing)),
		zap.Int("required", len(required)),
	}
	if trigger.AppointmentID != nil {
		fields = append(fields, zap.Int64("appointment_id", *trigger.AppointmentID))
	}
	if insufficient, ok := outcome.(ExistingAppointmentsInsufficient); ok {
		fields = append(fields, zap.Int("plan_size", len(insufficient.Plan)))
	}
	s.logger.Info("scheduling_complete", fields...)

	return outcome, nil
}
