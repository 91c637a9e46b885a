package scheduling

import "time"

// Action is one step of a Plan. The set of actions is closed: only
// CreateAppointment and RetainAppointment implement it.
type Action interface {
	isAction()
	// StartsAt is the start of the appointment the action concerns.
	StartsAt() time.Time
}

type CreateAppointment struct {
	Required RequiredAppointment
}

type RetainAppointment struct {
	Existing ExistingAppointment
	Notes    string
}

func (CreateAppointment) isAction() {}
func (RetainAppointment) isAction() {}

func (a CreateAppointment) StartsAt() time.Time { return a.Required.StartTime }
func (a RetainAppointment) StartsAt() time.Time { return a.Existing.StartTime }

type Plan []Action

// CreateCount counts the CreateAppointment actions in the plan.
func (p Plan) CreateCount() int {
	n := 0
	for _, a := range p {
		if _, ok := a.(CreateAppointment); ok {
			n++
		}
	}
	return n
}

// Outcome is the result of one Schedule call. Exactly one of the three
// variants below is returned.
type Outcome interface {
	isOutcome()
	Name() string
}

type ExistingAppointmentsSufficient struct{}

type RequirementAlreadySatisfied struct{}

type ExistingAppointmentsInsufficient struct {
	Plan Plan
}

func (ExistingAppointmentsSufficient) isOutcome()   {}
func (RequirementAlreadySatisfied) isOutcome()      {}
func (ExistingAppointmentsInsufficient) isOutcome() {}

func (ExistingAppointmentsSufficient) Name() string   { return "ExistingAppointmentsSufficient" }
func (RequirementAlreadySatisfied) Name() string      { return "RequirementAlreadySatisfied" }
func (ExistingAppointmentsInsufficient) Name() string { return "ExistingAppointmentsInsufficient" }
