package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/order-payment-service/internal/app"
	"github.com/example/order-payment-service/internal/config"
	"github.com/example/order-payment-service/internal/health"
	"github.com/example/order-payment-service/internal/kafka/consumer"
	"github.com/example/order-payment-service/internal/kafka/producer"
	kafkapublisher "github.com/example/order-payment-service/internal/kafka/publisher"
	"github.com/example/order-payment-service/internal/logger"
	"github.com/example/order-payment-service/internal/worker"
	"github.com/example/order-payment-service/internal/worker/inbound"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}
	if err := cfg.RequireKafka(); err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "payment-worker").Logger()

	prod, err := producer.New(cfg.Kafka.Brokers, logger.Component(log, "kafka-producer"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer func() {
		if err := prod.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Worker.ConsumerGroup, logger.Component(log, "kafka-consumer"), cfg.Worker.CommitOnSuccessOnly)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer")
	}
	defer func() {
		if err := cons.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	statusPublisher := kafkapublisher.NewStatusPublisher(prod, cfg.Topics.Status)
	if statusPublisher == nil {
		log.Fatal().Msg("failed to create status publisher")
	}
	dlqPublisher := kafkapublisher.NewDLQPublisher(prod, cfg.Topics.DLQ)
	if dlqPublisher == nil {
		log.Fatal().Msg("failed to create dlq publisher")
	}

	client, err := app.NewPaymentsClient(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise payments client")
	}
	pipe, err := app.NewPipeline(cfg, client, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise pipeline")
	}

	engine, err := worker.NewEngine(worker.Config{
		MsgMaxBytes:       cfg.Worker.MsgMaxBytes,
		WorkerConcurrency: cfg.Worker.Concurrency,
	}, worker.Dependencies{
		Parser:          inbound.New(cfg.Worker.MsgMaxBytes, logger.Component(log, "inbound-parser")),
		Processor:       pipe,
		StatusPublisher: statusPublisher,
		DLQPublisher:    dlqPublisher,
		Logger:          log,
		Now:             time.Now,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise worker engine")
	}

	var healthSrv *health.Server
	if cfg.Health.Enabled {
		healthSrv = health.NewServer(cfg.App.Port, map[string]health.Check{
			"kafka_consumer": cons.IsReady,
			"kafka_producer": prod.IsReady,
			"status_topic":   prod.TopicReady(cfg.Topics.Status),
			"dlq_topic":      prod.TopicReady(cfg.Topics.DLQ),
		}, log)
		go func() {
			if err := healthSrv.Start(); err != nil {
				log.Error().Err(err).Msg("health server terminated")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := cons.Consume(ctx, []string{cfg.Topics.Inbound}, worker.KafkaHandler(engine, cons)); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().
		Str("inbound_topic", cfg.Topics.Inbound).
		Int("concurrency", cfg.Worker.Concurrency).
		Msg("payment worker started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("consumer terminated with error")
		}
	}

	stop()
	engine.Wait()

	if healthSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := healthSrv.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to stop health server")
		}
	}
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("payment worker init failed")
}
