// Package app wires configuration into a running notebook service: storage
// backend, gateway decorators, reader, writer and HTTP router.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jacentio/notebook/internal/config"
	"github.com/jacentio/notebook/internal/httpapi"
	"github.com/jacentio/notebook/projection"
	"github.com/jacentio/notebook/store"
	"github.com/jacentio/notebook/store/boltstore"
	"github.com/jacentio/notebook/store/memstore"
	"github.com/jacentio/notebook/stream"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "notebook"

// App is a fully wired notebook service.
type App struct {
	Gateway  store.Gateway
	Reader   *projection.Reader
	Writer   *projection.Writer
	Router   *chi.Mux
	Registry *prometheus.Registry

	close func() error
}

// New builds the service described by cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base, closeFn, err := NewGateway(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var gw store.Gateway = base
	if cfg.BreakerEnabled {
		gw = store.NewBreaker(gw, store.DefaultBreakerConfig(cfg.Backend), logger)
	}
	gw = store.Instrument(gw, store.NewMetrics(metricsNamespace, reg))

	var readerOpts []projection.Option
	if cfg.OrderByCreated {
		readerOpts = append(readerOpts, projection.OrderByCreated())
	}
	writerOpts := []projection.WriterOption{projection.WithMaxTransactItems(cfg.MaxTransactItems)}
	if cfg.Backend != config.BackendDynamoDB {
		// Only DynamoDB has a stream to drive the cascade.
		writerOpts = append(writerOpts, projection.WithCascade(stream.NewHandler(gw, projection.Relationships(), logger)))
	}

	a := &App{
		Gateway:  gw,
		Reader:   projection.NewReader(gw, logger, readerOpts...),
		Writer:   projection.NewWriter(gw, logger, writerOpts...),
		Registry: reg,
		close:    closeFn,
	}
	a.Router = httpapi.NewRouter(a.Reader, a.Writer, logger)

	logger.Info("notebook service ready",
		zap.String("backend", cfg.Backend),
		zap.Bool("breaker", cfg.BreakerEnabled),
		zap.Bool("orderByCreated", cfg.OrderByCreated),
	)
	return a, nil
}

// MountMetrics serves the Prometheus registry on /metrics.
func (a *App) MountMetrics() {
	a.Router.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
}

// Close releases the storage backend.
func (a *App) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

// NewGateway opens the storage backend named by cfg.Backend, without
// decorators. The returned func releases it.
func NewGateway(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Gateway, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendDynamoDB:
		client, err := NewDynamoDBClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return store.New(client, store.Config{TableName: cfg.TableName}, store.WithLogger(logger)), noop, nil

	case config.BackendBolt:
		db, err := boltstore.Open(boltstore.Config{Path: cfg.BoltPath}, boltstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil

	case config.BackendMemory:
		return memstore.New(), noop, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalid, cfg.Backend)
}

// NewDynamoDBClient loads the AWS configuration and builds a DynamoDB client,
// pointed at cfg.Endpoint when set.
func NewDynamoDBClient(ctx context.Context, cfg config.Config) (*dynamodb.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}
