package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
}

func (s *recordingSink) Send(ctx context.Context, ev Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestAsyncClient_DeliversQueuedEventsOnClose(t *testing.T) {
	sink := &recordingSink{}
	client := NewAsyncClient(sink, AsyncConfig{Buffer: 8}, zap.NewNop())

	client.TrackEvent("SchedulingComplete", map[string]string{"crn": "X1"})
	client.TrackEvent("SchedulingComplete", map[string]string{"crn": "X2"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.Close(ctx))

	require.Equal(t, 2, sink.count())
	assert.Equal(t, "X1", sink.events[0].Properties["crn"])
	assert.Equal(t, "SchedulingComplete", sink.events[1].Name)
}

func TestAsyncClient_DropsWhenQueueFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &recordingSink{block: make(chan struct{})}
	client := NewAsyncClient(sink, AsyncConfig{Buffer: 1}, zap.New(core))

	// The first event is picked up by the worker and blocks in Send, the
	// second fills the queue, every further event is dropped.
	for i := 0; i < 5; i++ {
		client.TrackEvent("SchedulingComplete", nil)
	}

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("telemetry_dropped").Len() >= 3
	}, time.Second, 5*time.Millisecond)

	close(sink.block)
	require.NoError(t, client.Close(context.Background()))
	assert.LessOrEqual(t, sink.count(), 2)
}

func TestAsyncClient_BreakerOpensAfterFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := &recordingSink{err: errors.New("broker unavailable")}
	client := NewAsyncClient(sink, AsyncConfig{Buffer: 16, FailureThreshold: 2, OpenTimeout: time.Minute}, zap.New(core))

	for i := 0; i < 5; i++ {
		client.TrackEvent("SchedulingComplete", nil)
	}
	require.NoError(t, client.Close(context.Background()))

	assert.Equal(t, 2, sink.count())
	assert.Equal(t, 1, logs.FilterMessage("circuit_breaker_state_changed").Len())

	dropped := logs.FilterMessage("telemetry_dropped").All()
	require.Len(t, dropped, 5)
	assert.Equal(t, "breaker_open", dropped[4].ContextMap()["reason"])
}

func TestAsyncClient_TrackAfterCloseDoesNotPanic(t *testing.T) {
	client := NewAsyncClient(&recordingSink{}, AsyncConfig{}, zap.NewNop())
	require.NoError(t, client.Close(context.Background()))

	assert.NotPanics(t, func() {
		client.TrackEvent("SchedulingComplete", map[string]string{"crn": "X1"})
	})
}

func TestMulti_CopiesProperties(t *testing.T) {
	a, b := &captureClient{}, &captureClient{}
	props := map[string]string{"crn": "X1"}

	Multi{a, b}.TrackEvent("SchedulingComplete", props)
	a.props["crn"] = "changed"

	assert.Equal(t, "X1", b.props["crn"])
	assert.Equal(t, "X1", props["crn"])
}

type captureClient struct {
	name  string
	props map[string]string
}

func (c *captureClient) TrackEvent(name string, properties map[string]string) {
	c.name = name
	c.props = properties
}
