package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hackgods/community-payback-reconciler/internal/scheduling"
)

// RoutingKeyAppointmentChanged is the routing key upstream uses for
// appointment domain events.
const RoutingKeyAppointmentChanged = "appointment.changed"

var ErrMalformedTrigger = errors.New("malformed scheduling trigger")

// TriggerMessage is the JSON body of a scheduling trigger domain event.
type TriggerMessage struct {
	CRN           string `json:"crn"`
	Type          string `json:"type,omitempty"`
	AppointmentID *int64 `json:"appointmentId,omitempty"`
}

// DecodeTrigger parses a message body. An absent type defaults to
// AppointmentChange, the only event upstream publishes today.
func DecodeTrigger(body []byte) (string, scheduling.Trigger, error) {
	var msg TriggerMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", scheduling.Trigger{}, fmt.Errorf("%w: %w", ErrMalformedTrigger, err)
	}

	crn := strings.TrimSpace(msg.CRN)
	if crn == "" {
		return "", scheduling.Trigger{}, fmt.Errorf("%w: crn is required", ErrMalformedTrigger)
	}

	triggerType := scheduling.TriggerAppointmentChange
	if msg.Type != "" {
		triggerType = scheduling.TriggerType(msg.Type)
	}

	return crn, scheduling.Trigger{Type: triggerType, AppointmentID: msg.AppointmentID}, nil
}
