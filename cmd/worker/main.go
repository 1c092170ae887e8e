package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-sync/internal/aws"
	"github.com/imrishuroy/go-storefront-sync/internal/config"
	"github.com/imrishuroy/go-storefront-sync/internal/eventbus"
	"github.com/imrishuroy/go-storefront-sync/internal/logger"
	"github.com/imrishuroy/go-storefront-sync/internal/orders"
	"github.com/imrishuroy/go-storefront-sync/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	defer func() { _ = log.Sync() }()

	connector := aws.NewConnector(func(ctx context.Context) (*aws.AWSClients, error) {
		return aws.NewAWSClients(ctx, aws.Options{Region: cfg.AWS.Region, EndpointOverride: cfg.AWS.EndpointOverride})
	}, []string{cfg.Tables.Users, cfg.Tables.Orders}, log.Named("db"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	clients, err := connector.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatal("failed to init aws clients", zap.Error(err))
	}

	metrics := aws.NewMetrics(clients.CloudWatch, cfg.Metrics.Namespace)
	bus := eventbus.NewClient(cfg.App.ID, aws.NewPublisher(clients.SQS, cfg.Events.QueueURL), log.Named("events"))
	defer bus.Close()

	err = bus.Register(eventbus.Functions(eventbus.Deps{
		Users:   users.NewStore(clients.DynamoDB, cfg.Tables.Users),
		Orders:  orders.NewStore(clients.DynamoDB, cfg.Tables.Orders),
		Metrics: metrics,
		Logger:  log,
		OrderBatch: eventbus.Batch{
			MaxSize: cfg.Events.OrderBatchSize,
			Timeout: cfg.Events.OrderBatchTimeout,
		},
	})...)
	if err != nil {
		log.Fatal("failed to register functions", zap.Error(err))
	}
	log.Info("functions registered", zap.Any("functions", bus.Functions()))

	processor := NewProcessor(bus, metrics, log.Named("worker"))

	// RUN_LOCAL=true long-polls the queue instead of waiting for Lambda.
	if cfg.App.RunLocal {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		poller := NewPoller(clients.SQS, cfg.Events.QueueURL, cfg.Events.PollWait, processor, log.Named("poller"))
		if err := poller.Run(ctx); err != nil {
			log.Error("poller stopped", zap.Error(err))
		}
		return
	}

	lambda.Start(processor.Handle)
}
