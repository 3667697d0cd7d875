// Command cascade is the DynamoDB Streams Lambda that propagates document
// soft-deletes to groups and notes.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/jacentio/notebook/internal/app"
	"github.com/jacentio/notebook/internal/config"
	"github.com/jacentio/notebook/internal/logging"
	"github.com/jacentio/notebook/projection"
	"github.com/jacentio/notebook/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cascade:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cascade:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Backend != config.BackendDynamoDB {
		logger.Fatal("cascade runs on DynamoDB streams only", zap.String("backend", cfg.Backend))
	}

	gw, _, err := app.NewGateway(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}

	handler := stream.NewHandler(gw, projection.Relationships(), logger)
	lambda.Start(handler.HandleCascadeDelete)
}
