package scheduling

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidRequest = errors.New("invalid scheduling request")

// Requirement is the unpaid work a person still owes on one sentence event.
type Requirement struct {
	CRN               string
	EventNumber       int64
	RequiredMinutes   int64
	AdjustmentMinutes int64
	CompletedMinutes  int64
	StartDate         time.Time
	EndDate           *time.Time
}

// RemainingMinutes never goes below zero.
func (r Requirement) RemainingMinutes() int64 {
	remaining := r.RequiredMinutes + r.AdjustmentMinutes - r.CompletedMinutes
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (r Requirement) IsSatisfied() bool {
	return r.RemainingMinutes() == 0
}

type TriggerType string

const (
	TriggerAppointmentChange TriggerType = "AppointmentChange"
	TriggerRequirementChange TriggerType = "RequirementChange"
	TriggerManual            TriggerType = "Manual"
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerAppointmentChange, TriggerRequirementChange, TriggerManual:
		return true
	}
	return false
}

type Trigger struct {
	Type          TriggerType
	AppointmentID *int64
}

type ExistingAppointment struct {
	ID              int64
	ProjectCode     string
	StartTime       time.Time
	EndTime         time.Time
	MinutesCredited int64
}

type RequiredAppointment struct {
	ProjectCode string
	StartTime   time.Time
	EndTime     time.Time
}

// Request is immutable once built; use NewRequest.
type Request struct {
	requirement Requirement
	trigger     Trigger
	existing    []ExistingAppointment
	required    []RequiredAppointment
}

func NewRequest(requirement Requirement, trigger Trigger, existing []ExistingAppointment, required []RequiredAppointment) (Request, error) {
	if requirement.CRN == "" {
		return Request{}, fmt.Errorf("%w: crn is required", ErrInvalidRequest)
	}
	if requirement.RequiredMinutes < 0 || requirement.CompletedMinutes < 0 {
		return Request{}, fmt.Errorf("%w: negative minutes on requirement", ErrInvalidRequest)
	}
	if trigger.Type == "" {
		return Request{}, fmt.Errorf("%w: trigger type is required", ErrInvalidRequest)
	}
	if !trigger.Type.Valid() {
		return Request{}, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidRequest, trigger.Type)
	}
	for _, a := range existing {
		if !a.EndTime.After(a.StartTime) {
			return Request{}, fmt.Errorf("%w: existing appointment %d ends before it starts", ErrInvalidRequest, a.ID)
		}
		if a.MinutesCredited < 0 {
			return Request{}, fmt.Errorf("%w: existing appointment %d has negative credited minutes", ErrInvalidRequest, a.ID)
		}
	}
	for _, a := range required {
		if !a.EndTime.After(a.StartTime) {
			return Request{}, fmt.Errorf("%w: required appointment at %s ends before it starts", ErrInvalidRequest, a.StartTime.Format(time.RFC3339))
		}
	}

	if trigger.AppointmentID != nil {
		id := *trigger.AppointmentID
		trigger.AppointmentID = &id
	}
	if requirement.EndDate != nil {
		end := *requirement.EndDate
		requirement.EndDate = &end
	}

	return Request{
		requirement: requirement,
		trigger:     trigger,
		existing:    append([]ExistingAppointment(nil), existing...),
		required:    append([]RequiredAppointment(nil), required...),
	}, nil
}

func (r Request) Requirement() Requirement { return r.requirement }
func (r Request) Trigger() Trigger         { return r.trigger }

func (r Request) ExistingAppointments() []ExistingAppointment {
	return append([]ExistingAppointment(nil), r.existing...)
}

func (r Request) RequiredAppointments() []RequiredAppointment {
	return append([]RequiredAppointment(nil), r.required...)
}
