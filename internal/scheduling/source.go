package scheduling

import (
	"context"
	"errors"
)

var ErrRequirementNotFound = errors.New("requirement not found")

// RequirementSource supplies the outstanding requirement for a CRN.
type RequirementSource interface {
	Requirement(ctx context.Context, crn string) (Requirement, error)
}

// RequiredAppointmentSource supplies the appointments a requirement implies.
type RequiredAppointmentSource interface {
	RequiredAppointments(ctx context.Context, req Requirement) ([]RequiredAppointment, error)
}

// ExistingAppointmentSource supplies the appointments already booked for a
// CRN within the requirement window.
type ExistingAppointmentSource interface {
	ExistingAppointments(ctx context.Context, req Requirement) ([]ExistingAppointment, error)
}

// Sources groups the three collaborators; one store usually serves all of them.
type Sources struct {
	Requirements RequirementSource
	Required     RequiredAppointmentSource
	Existing     ExistingAppointmentSource
}
