package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hackgods/community-payback-reconciler/internal/app"
	"github.com/hackgods/community-payback-reconciler/internal/config"
	"github.com/hackgods/community-payback-reconciler/internal/events"
	"github.com/hackgods/community-payback-reconciler/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.AMQPURL == "" {
		logger.Fatal("AMQP_URL is required for the reconcile worker")
	}

	logger.Info("reconcile_worker_starting",
		zap.String("env", cfg.Env),
		zap.String("exchange", cfg.AMQPExchange),
		zap.String("queue", cfg.TriggerQueue),
		zap.String("matching", cfg.Matching),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("startup_failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		a.Close(ctx)
	}()

	consumer, err := events.NewTriggerConsumer(events.ConsumerConfig{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Queue:    cfg.TriggerQueue,
	}, a.Scheduling, logger)
	if err != nil {
		logger.Error("consumer_init_failed", zap.Error(err))
		return
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Warn("consumer_close_failed", zap.Error(err))
		}
	}()

	if err := consumer.Run(rootCtx); err != nil {
		logger.Error("consumer_stopped", zap.Error(err))
		return
	}

	logger.Info("reconcile_worker_stopped")
}
