package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/anomaly"
	"github.com/fyrsmithlabs/patternd/internal/config"
	"github.com/fyrsmithlabs/patternd/internal/graduation"
	"github.com/fyrsmithlabs/patternd/internal/logging"
	"github.com/fyrsmithlabs/patternd/internal/pattern"
	"github.com/fyrsmithlabs/patternd/internal/qdrant"
	"github.com/fyrsmithlabs/patternd/internal/quality"
	"github.com/fyrsmithlabs/patternd/internal/ratelimit"
	"github.com/fyrsmithlabs/patternd/internal/statestore"
)

// app holds the wired daemon components.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	store     statestore.Store
	states    *statestore.StateStore
	registry  *pattern.Registry
	engine    *quality.Engine
	evaluator *graduation.Evaluator
	detector  *anomaly.Detector
	limiter   *ratelimit.Limiter

	docstore qdrant.Client
}

// newApp loads configuration and wires every component. The returned app
// owns the qdrant connection; callers must Close it.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	store, err := statestore.New(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing state store: %w", err)
	}
	states := statestore.NewStateStore(store, logger)

	registry := pattern.NewRegistry()
	engine := quality.NewEngine(cfg.Quality, states, logger)
	evaluator := graduation.NewEvaluator(cfg.Graduation.Table(), states, logger)

	var docstore qdrant.Client
	var findings *anomaly.AnomalyStore
	if cfg.Qdrant.Enabled {
		client, err := qdrant.NewGRPCClient(&cfg.Qdrant.Client, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to document store: %w", err)
		}
		docstore = client
		findings = anomaly.NewAnomalyStore(client, cfg.Anomaly.Collection, logger)
	}

	detector, err := anomaly.NewDetector(cfg.Anomaly, registry, engine, findings, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing anomaly detector: %w", err)
	}

	limiter := ratelimit.NewLimiter(cfg.RateLimit, store, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		states:    states,
		registry:  registry,
		engine:    engine,
		evaluator: evaluator,
		detector:  detector,
		limiter:   limiter,
		docstore:  docstore,
	}, nil
}

// Close releases infrastructure resources.
func (a *app) Close() {
	if a.docstore != nil {
		if err := a.docstore.Close(); err != nil {
			a.logger.Warn("closing document store", zap.Error(err))
		}
	}
	_ = logging.Sync(a.logger)
}

// storeProbe reports state store availability for health checks.
func (a *app) storeProbe(context.Context) bool {
	return a.store.Available()
}

// docstoreProbe reports document store availability, or nil when disabled.
func (a *app) docstoreProbe() func(context.Context) bool {
	if a.docstore == nil {
		return nil
	}
	return func(ctx context.Context) bool {
		return a.docstore.Health(ctx) == nil
	}
}
