package telemetry

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// Client records named events. TrackEvent must return promptly and never
// fail the caller; delivery problems are the client's concern.
type Client interface {
	TrackEvent(name string, properties map[string]string)
}

type Event struct {
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// LogClient writes every event to the structured log.
type LogClient struct {
	logger *zap.Logger
}

func NewLogClient(logger *zap.Logger) *LogClient {
	return &LogClient{logger: logger.Named("telemetry")}
}

func (c *LogClient) TrackEvent(name string, properties map[string]string) {
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+1)
	fields = append(fields, zap.String("event", name))
	for _, k := range keys {
		fields = append(fields, zap.String(k, properties[k]))
	}
	c.logger.Info("telemetry_event", fields...)
}

// Multi fans an event out to several clients.
type Multi []Client

func (m Multi) TrackEvent(name string, properties map[string]string) {
	for _, c := range m {
		c.TrackEvent(name, copyProperties(properties))
	}
}

func copyProperties(p map[string]string) map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
