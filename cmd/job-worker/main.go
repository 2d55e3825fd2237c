// Package main 后台任务执行器入口（job-worker）：孤儿会话回收 + 法规入库
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/infrastructure/eino/callback"
	"legal-rag-api/internal/infrastructure/messaging"
	"legal-rag-api/internal/wire"
	"legal-rag-api/pkg/logger"
	"legal-rag-api/pkg/retry"
	"legal-rag-api/pkg/tracer"
)

// dlqAlertThreshold 死信队列告警阈值
const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    "job-worker",
		ServiceVersion: cfg.App.Version,
		InstanceID:     cfg.App.InstanceID,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	callback.Init()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	if cfg.Registry.ReaperEnabled {
		go worker.Reaper.Run(ctx)
	}

	streamCfg := cfg.Messaging.RedisStream
	consumer := messaging.NewConsumer(worker.RedisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamPassageIngest,
		Group:         messaging.ConsumerGroupIndexer.WithPrefix(streamCfg.ConsumerGroupPrefix),
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  streamCfg.BlockTimeout,
		ClaimInterval: streamCfg.ClaimInterval,
		RetryLimit:    streamCfg.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    streamCfg.RetryBackoff.Initial,
			Max:        streamCfg.RetryBackoff.Max,
			Multiplier: streamCfg.RetryBackoff.Multiplier,
		},
	})

	consumer.RegisterHandler(messaging.TypePassageIngest, func(hctx context.Context, msg *messaging.Message) error {
		var payload messaging.IngestMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return retry.Permanent(err)
		}
		if payload.DocumentID == "" {
			return retry.Permanent(errors.New("document_id is required"))
		}

		count, err := worker.Indexer.IndexDocument(hctx, entity.LegalDocument{
			DocumentID:   payload.DocumentID,
			Title:        payload.Title,
			Jurisdiction: payload.Jurisdiction,
			ActName:      payload.ActName,
			Section:      payload.Section,
			EffectiveAt:  payload.EffectiveAt,
			Tags:         payload.Tags,
			Text:         payload.Text,
		})
		if err != nil {
			return err
		}
		logger.Info(hctx, "document indexed", "document_id", payload.DocumentID, "passages", count)
		return nil
	})

	consumer.RegisterHandler(messaging.TypePassageDelete, func(hctx context.Context, msg *messaging.Message) error {
		var payload messaging.DeleteMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return retry.Permanent(err)
		}
		return worker.Indexer.DeleteDocument(hctx, payload.DocumentID)
	})

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go consumer.MonitorDLQ(ctx, dlqAlertThreshold)

	log := logger.FromContext(ctx)
	log.Info("job-worker started", "reaper", cfg.Registry.ReaperEnabled)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("job-worker shutting down")
	cancel()
	consumer.Stop()
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
