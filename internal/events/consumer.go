package events

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hackgods/community-payback-reconciler/internal/scheduling"
)

// Reconciler is what the consumer hands decoded triggers to.
type Reconciler interface {
	Reconcile(ctx context.Context, crn string, trigger scheduling.Trigger) (scheduling.Outcome, error)
}

type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
}

// TriggerConsumer reads scheduling triggers from a durable queue bound to the
// domain event exchange. Messages are acked after reconciliation; malformed
// messages and unknown CRNs are dropped, anything else is requeued once.
type TriggerConsumer struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	queue      string
	reconciler Reconciler
	logger     *zap.Logger
}

func NewTriggerConsumer(cfg ConsumerConfig, reconciler Reconciler, logger *zap.Logger) (*TriggerConsumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	closeAll := func() {
		_ = ch.Close()
		_ = conn.Close()
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(cfg.Queue, RoutingKeyAppointmentChanged, cfg.Exchange, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger = logger.Named("events.consumer")
	logger.Info("trigger_consumer_connected",
		zap.String("exchange", cfg.Exchange),
		zap.String("queue", cfg.Queue),
	)

	return &TriggerConsumer{
		conn:       conn,
		channel:    ch,
		queue:      cfg.Queue,
		reconciler: reconciler,
		logger:     logger,
	}, nil
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (c *TriggerConsumer) Run(ctx context.Context) error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *TriggerConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	crn, trigger, err := DecodeTrigger(msg.Body)
	if err != nil {
		c.logger.Warn("trigger_rejected", zap.Error(err), zap.String("routing_key", msg.RoutingKey))
		_ = msg.Nack(false, false)
		return
	}

	_, err = c.reconciler.Reconcile(ctx, crn, trigger)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, scheduling.ErrRequirementNotFound), errors.Is(err, scheduling.ErrInvalidRequest):
		c.logger.Warn("trigger_dropped", zap.String("crn", crn), zap.Error(err))
		_ = msg.Nack(false, false)
	default:
		c.logger.Error("reconcile_failed",
			zap.String("crn", crn),
			zap.Bool("redelivered", msg.Redelivered),
			zap.Error(err),
		)
		_ = msg.Nack(false, !msg.Redelivered)
	}
}

func (c *TriggerConsumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.logger.Warn("amqp_channel_close_failed", zap.Error(err))
	}
	return c.conn.Close()
}
