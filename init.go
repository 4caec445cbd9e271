package main

import (
	"context"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/everyplants/batchmaker/internal/blob"
	"github.com/everyplants/batchmaker/internal/config"
	"github.com/everyplants/batchmaker/internal/pipeline"
	"github.com/everyplants/batchmaker/internal/store"
	"github.com/everyplants/batchmaker/internal/telemetry"
	"github.com/everyplants/batchmaker/pkg/fulfill"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	nopTracer := noop.NewTracerProvider().Tracer(cfg.ServiceName)
	nopShutdown := func(context.Context) error { return nil }
	if !cfg.OTELEnabled {
		return nopTracer, nopShutdown, nil
	}

	tracer, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version, cfg.Attributes()...)
	if err != nil {
		// The service runs untraced rather than not at all.
		return nopTracer, nopShutdown, err
	}
	return tracer, shutdown, nil
}

func initStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.DatabaseURL, cfg.DatabaseSchema)
}

func initBlobStore(cfg *config.Config) blob.Store {
	if cfg.BlobBaseURL == "" {
		// Local runs without a storage backend keep objects in memory.
		return blob.NewMemStore()
	}
	return blob.NewHTTPStore(cfg.BlobBaseURL, cfg.BlobBucket, cfg.BlobAPIKey)
}

func initFulfillClient(cfg *config.Config, logger *otelzap.Logger, tracer trace.Tracer) *fulfill.Client {
	return fulfill.New(fulfill.Config{
		APIKey:      cfg.FulfillAPIKey,
		BaseURL:     cfg.FulfillBaseURL,
		Timeout:     cfg.FulfillTimeout,
		MinInterval: cfg.FulfillMinInterval,
		UseMock:     cfg.FulfillUseMock,
	}, logger, tracer)
}

func initPipeline(cfg *config.Config, st *store.Store, logger *otelzap.Logger, tracer trace.Tracer) *pipeline.Pipeline {
	client := initFulfillClient(cfg, logger, tracer)
	metrics := telemetry.NewMetrics()

	return pipeline.New(pipeline.Config{
		BatchTimeout:   cfg.BatchTimeout,
		WebhookURL:     cfg.WebhookURL,
		SessionTagName: cfg.SessionTagName,
		SessionTagging: cfg.SessionTagging,
	}, st, initBlobStore(cfg), client, metrics, logger, tracer)
}
