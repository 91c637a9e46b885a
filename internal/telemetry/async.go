package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Sink delivers a single event somewhere outside the process.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

type AsyncConfig struct {
	Buffer           int
	SendTimeout      time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// AsyncClient queues events and delivers them from a background goroutine
// through a circuit breaker. When the queue is full or the breaker is open
// the event is dropped and logged.
type AsyncClient struct {
	sink    Sink
	breaker *gobreaker.CircuitBreaker[struct{}]
	queue   chan Event
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

func NewAsyncClient(sink Sink, cfg AsyncConfig, logger *zap.Logger) *AsyncClient {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	logger = logger.Named("telemetry.async")

	c := &AsyncClient{
		sink:    sink,
		queue:   make(chan Event, cfg.Buffer),
		logger:  logger,
		timeout: cfg.SendTimeout,
		now:     time.Now,
		done:    make(chan struct{}),
	}

	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "telemetry-sink",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit_breaker_state_changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	go c.run()
	return c
}

func (c *AsyncClient) TrackEvent(name string, properties map[string]string) {
	ev := Event{Name: name, Properties: copyProperties(properties), OccurredAt: c.now().UTC()}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		c.logger.Warn("telemetry_dropped", zap.String("event", name), zap.String("reason", "closed"))
		return
	}

	select {
	case c.queue <- ev:
	default:
		c.logger.Warn("telemetry_dropped", zap.String("event", name), zap.String("reason", "queue_full"))
	}
}

func (c *AsyncClient) run() {
	defer close(c.done)

	for ev := range c.queue {
		c.deliver(ev)
	}
}

func (c *AsyncClient) deliver(ev Event) {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		return struct{}{}, c.sink.Send(ctx, ev)
	})
	if err == nil {
		return
	}

	reason := "send_failed"
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		reason = "breaker_open"
	}
	c.logger.Warn("telemetry_dropped",
		zap.String("event", ev.Name),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to expire.
func (c *AsyncClient) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.queue)
		c.mu.Unlock()
	})

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
