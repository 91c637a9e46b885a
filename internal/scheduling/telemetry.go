package scheduling

import (
	"strconv"

	"github.com/hackgods/community-payback-reconciler/internal/telemetry"
)

const EventSchedulingComplete = "SchedulingComplete"

// TelemetryPublisher reports every scheduling decision as one event.
type TelemetryPublisher struct {
	client telemetry.Client
}

func NewTelemetryPublisher(client telemetry.Client) *TelemetryPublisher {
	return &TelemetryPublisher{client: client}
}

func (p *TelemetryPublisher) Publish(req Request, outcome Outcome) {
	p.client.TrackEvent(EventSchedulingComplete, CompletionProperties(req, outcome))
}

// CompletionProperties builds the SchedulingComplete event properties.
func CompletionProperties(req Request, outcome Outcome) map[string]string {
	creates := 0
	if insufficient, ok := outcome.(ExistingAppointmentsInsufficient); ok {
		creates = insufficient.Plan.CreateCount()
	}

	return map[string]string{
		"crn":                      req.requirement.CRN,
		"triggerType":              string(req.trigger.Type),
		"outcome":                  outcome.Name(),
		"appointmentCreationCount": strconv.Itoa(creates),
	}
}
