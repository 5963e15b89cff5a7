package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/storygraph/internal/app"
	"github.com/OFFIS-RIT/storygraph/internal/config"
	"github.com/OFFIS-RIT/storygraph/internal/queue"
	"github.com/OFFIS-RIT/storygraph/pkg/ai"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	flush := app.InitLogger(cfg.Log, "worker")
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.New(ctx, cfg, app.Options{Export: true})
	if err != nil {
		logger.Fatal("Failed to build pipeline", "err", err)
	}
	defer pipeline.Close()

	// Init rabbitmq
	conn, err := queue.Dial(cfg.Rabbit.URL())
	if err != nil {
		logger.Fatal("Failed to connect to queue", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	processor := &queue.Processor{
		Client:        pipeline.Client,
		Source:        pipeline.Source,
		Catalog:       pipeline.Catalog,
		Scheduler:     pipeline.Scheduler(),
		DefaultSchema: cfg.Extract.DefaultSchema,
		ChunkSize:     cfg.Extract.ChunkSize,
		ChunkOverlap:  cfg.Extract.ChunkOverlap,
		UseCache:      cfg.Extract.UseCache,
		Publisher:     ch,
	}
	if pipeline.Exporter != nil {
		processor.Exporter = pipeline.Exporter
	}
	if pipeline.Timing != nil {
		processor.Timing = pipeline.Timing
	}

	// One message at a time; chapters of a message run in parallel.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.ExtractQueue,
		queue.ExtractQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.ExtractQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.ExtractQueue)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.ExtractQueue)
				return
			}
			startTime := time.Now()
			logger.Info("Received message", "queue", queue.ExtractQueue)

			if err := processor.ProcessExtractMessage(ctx, msg.Body); err != nil {
				logger.Error("Error processing message", "queue", queue.ExtractQueue, "err", err)
				queue.HandleProcessingError(consumerCh, msg, msg, queue.ExtractQueue, queue.DefaultMaxRetries)
			} else {
				if err := msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "err", err)
				}
				logger.Info("Message processed successfully", "queue", queue.ExtractQueue)
			}

			logMetrics(pipeline.AIClient, time.Since(startTime))
		}
	}
}

func logMetrics(client ai.GraphAIClient, processing time.Duration) {
	metrics := client.GetMetrics()
	logger.Info(
		"AI Metrics",
		"input_tokens", metrics.InputTokens,
		"output_tokens", metrics.OutputTokens,
		"total_tokens", metrics.TotalTokens,
		"duration", clock(time.Duration(metrics.DurationMs)*time.Millisecond),
	)
	logger.Info("Processing time", "duration", clock(processing))
	logger.Info("Waiting for next message")
	client.ResetMetrics()
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
