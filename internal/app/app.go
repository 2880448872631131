// Package app initializes and holds the long-lived application services,
// acting as a dependency injection container. It is built once at startup
// and passed to the commands that need it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	clocksys "github.com/chirag2653/website-to-skill-folder/internal/clock/system"
	"github.com/chirag2653/website-to-skill-folder/internal/config"
	"github.com/chirag2653/website-to-skill-folder/internal/firecrawl"
	"github.com/chirag2653/website-to-skill-folder/internal/hash/sha256"
	"github.com/chirag2653/website-to-skill-folder/internal/id/uuid"
	"github.com/chirag2653/website-to-skill-folder/internal/logging"
	"github.com/chirag2653/website-to-skill-folder/internal/orchestrator"
	"github.com/chirag2653/website-to-skill-folder/internal/pipeline"
	"github.com/chirag2653/website-to-skill-folder/internal/progress"
	"github.com/chirag2653/website-to-skill-folder/internal/progress/sinks"
	"github.com/chirag2653/website-to-skill-folder/internal/publisher"
	pubsubpub "github.com/chirag2653/website-to-skill-folder/internal/publisher/pubsub"
	"github.com/chirag2653/website-to-skill-folder/internal/reconcile"
	"github.com/chirag2653/website-to-skill-folder/internal/state"
	statefile "github.com/chirag2653/website-to-skill-folder/internal/state/file"
	statemem "github.com/chirag2653/website-to-skill-folder/internal/state/memory"
	statepg "github.com/chirag2653/website-to-skill-folder/internal/state/postgres"
	"github.com/chirag2653/website-to-skill-folder/internal/storage"
	storagegcs "github.com/chirag2653/website-to-skill-folder/internal/storage/gcs"
	storagelocal "github.com/chirag2653/website-to-skill-folder/internal/storage/local"
	storagemem "github.com/chirag2653/website-to-skill-folder/internal/storage/memory"
)

// App holds all the shared, long-lived services for the application.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	States   state.Store
	Docs     storage.Store
	Runner   *pipeline.Runner
	Registry *prometheus.Registry

	hub      *progress.Hub
	events   publisher.Publisher
	closeFns []func() error
}

// New creates and wires the service graph from configuration. It fails fast
// if any critical dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	a.States, err = newStateStore(ctx, cfg.State)
	if err != nil {
		return nil, fmt.Errorf("initialize state store: %w", err)
	}
	a.closeFns = append(a.closeFns, a.States.Close)

	a.Docs, err = newDocStore(ctx, cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("initialize document store: %w", err)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promSink, err := sinks.NewPrometheusSink(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{Logger: logger},
		promSink,
		sinks.NewLogSink(logger),
	)

	a.events, err = newPublisher(ctx, cfg.PubSub, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize publisher: %w", err)
	}

	retry := firecrawl.NewExponentialRetryPolicy(
		cfg.Firecrawl.MaxRetries,
		time.Duration(cfg.Firecrawl.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Firecrawl.BackoffMaxMs)*time.Millisecond,
	)
	client, err := firecrawl.New(firecrawl.Config{
		BaseURL:               cfg.Firecrawl.BaseURL,
		APIKey:                cfg.Firecrawl.APIKey,
		Timeout:               cfg.Firecrawl.Timeout(),
		IncludeSubdomains:     cfg.Firecrawl.IncludeSubdomains,
		IgnoreQueryParameters: cfg.Firecrawl.IgnoreQueryParams,
	}, retry, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize firecrawl client: %w", err)
	}

	clk := clocksys.New()
	batch := orchestrator.New(client, clk, orchestrator.Config{
		PollInterval:  cfg.Batch.PollInterval(),
		PollBudget:    cfg.Batch.PollBudget(),
		MaxBatchItems: cfg.Batch.MaxItems,
	}, logger)
	reconciler := reconcile.New(a.Docs, sha256.New(), reconcile.Config{
		MissThreshold: cfg.Sync.MissThreshold,
		SlugMaxLen:    cfg.Sync.SlugMaxLen,
	}, logger)

	var outputDir string
	if cfg.Output.Backend == "local" {
		outputDir = cfg.Output.Dir
	}
	a.Runner = pipeline.New(
		a.States,
		a.Docs,
		client,
		batch,
		reconciler,
		clk,
		uuid.NewGenerator(),
		a.events,
		a.hub,
		pipeline.Config{
			DiscoveryLimit: cfg.Firecrawl.DiscoveryLimit,
			EventTopic:     cfg.PubSub.TopicName,
			OutputDir:      outputDir,
			SlugMaxLen:     cfg.Sync.SlugMaxLen,
		},
		logger,
	)

	return a, nil
}

func newStateStore(ctx context.Context, cfg config.StateConfig) (state.Store, error) {
	switch cfg.Backend {
	case "file":
		return statefile.New(cfg.Dir)
	case "memory":
		return statemem.New(), nil
	case "postgres":
		return statepg.New(ctx, statepg.Config{DSN: cfg.DSN})
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

func newDocStore(ctx context.Context, cfg config.OutputConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "local":
		return storagelocal.New(storagelocal.Config{BaseDir: cfg.Dir})
	case "memory":
		return storagemem.New(), nil
	case "gcs":
		return storagegcs.New(ctx, storagegcs.Config{
			Bucket: cfg.GCSBucket,
			Prefix: cfg.GCSPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown output backend %q", cfg.Backend)
	}
}

func newPublisher(ctx context.Context, cfg config.PubSubConfig, logger *zap.Logger) (publisher.Publisher, error) {
	if cfg.ProjectID == "" {
		logger.Info("run-event publishing disabled, no pubsub project configured")
		return publisher.NoOp{}, nil
	}
	return pubsubpub.New(ctx, cfg.ProjectID)
}

// Close gracefully shuts down all services in the container.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.hub.Close(ctx); err != nil {
		a.Logger.Warn("progress hub close", zap.Error(err))
	}
	if c, ok := a.events.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			a.Logger.Warn("publisher close", zap.Error(err))
		}
	}
	if c, ok := a.Docs.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			a.Logger.Warn("document store close", zap.Error(err))
		}
	}
	for _, fn := range a.closeFns {
		if err := fn(); err != nil {
			a.Logger.Warn("close service", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
