package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-sync/internal/addresses"
	"github.com/imrishuroy/go-storefront-sync/internal/auth"
	"github.com/imrishuroy/go-storefront-sync/internal/aws"
	"github.com/imrishuroy/go-storefront-sync/internal/config"
	"github.com/imrishuroy/go-storefront-sync/internal/eventbus"
	"github.com/imrishuroy/go-storefront-sync/internal/handlers"
	"github.com/imrishuroy/go-storefront-sync/internal/idempotency"
	"github.com/imrishuroy/go-storefront-sync/internal/logger"
	"github.com/imrishuroy/go-storefront-sync/internal/media"
	"github.com/imrishuroy/go-storefront-sync/internal/orders"
	"github.com/imrishuroy/go-storefront-sync/internal/products"
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
	}, cfg.Tables.All(), log.Named("db"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	clients, err := connector.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatal("failed to init aws clients", zap.Error(err))
	}

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		log.Fatal("failed to init session verifier", zap.Error(err))
	}

	hcfg := handlers.HandlerConfig{
		Users:          users.NewStore(clients.DynamoDB, cfg.Tables.Users),
		Products:       products.NewStore(clients.DynamoDB, cfg.Tables.Products),
		Orders:         orders.NewStore(clients.DynamoDB, cfg.Tables.Orders),
		Addresses:      addresses.NewStore(clients.DynamoDB, cfg.Tables.Addresses),
		Idempotency:    idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Events.IdempotencyTTL).WithStaleAfter(cfg.Events.IdempotencyStaleAfter),
		Events:         eventbus.NewClient(cfg.App.ID, aws.NewPublisher(clients.SQS, cfg.Events.QueueURL), log.Named("events")),
		Media:          media.NewS3Uploader(clients.S3, cfg.Media.Bucket, cfg.Media.BaseURL, cfg.AWS.Region, log.Named("media")),
		Auth:           verifier,
		AllowedOrigins: cfg.App.CORSOrigins,
	}
	r := handlers.NewRouter(hcfg, log)

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.App.RunLocal {
		addr := ":" + cfg.App.Port
		log.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			log.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
