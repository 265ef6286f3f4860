package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"alttext/internal/bus"
	"alttext/internal/config"
	"alttext/internal/observability"
	"alttext/internal/services"
	"alttext/internal/store"
	"alttext/internal/store/local"
	"alttext/internal/store/primary"
)

type App struct {
	Config *config.Config

	RunStore  store.RunStore
	JobClient store.JobClient

	BatchAPIProvider *services.OpenAIBatchProvider
	Metrics          *observability.Metrics
	MetricsHandler   http.Handler
	Events           *bus.Client // nil when NATS is not configured

	// --- Initialized Services ---
	Pipeline  *services.Pipeline
	Canceller *services.Canceller
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	if err := app.initRunStore(ctx); err != nil {
		return nil, err
	}
	if err := app.initBatchAPIProvider(); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.initMetrics(ctx); err != nil {
		app.Close()
		return nil, err
	}
	app.initEvents()
	app.initJobClient()
	if err := app.initPipeline(); err != nil {
		app.Close()
		return nil, err
	}

	log.Debug("Application initialization complete.")
	return app, nil
}

// --- Private Helper Methods ---

func (a *App) initRunStore(ctx context.Context) error {
	var (
		rs  store.RunStore
		err error
	)
	switch a.Config.Store.Driver {
	case "postgres":
		rs, err = primary.NewPrimaryStore(ctx, a.Config.Store.DSN)
	case "sqlite":
		rs, err = local.Open(ctx, a.Config.Store.DSN)
	default:
		err = fmt.Errorf("%w: %s", store.ErrUnknownDriver, a.Config.Store.Driver)
	}
	if err != nil {
		return fmt.Errorf("init run store: %w", err)
	}
	a.RunStore = rs
	return nil
}

func (a *App) initBatchAPIProvider() error {
	provider, err := services.NewOpenAIBatchProvider(a.Config.OpenAI.APIKey, a.Config.OpenAI.BaseURL)
	if err != nil {
		return fmt.Errorf("init OpenAI Batch API provider: %w", err)
	}
	a.BatchAPIProvider = provider
	return nil
}

func (a *App) initMetrics(ctx context.Context) error {
	m, handler, err := observability.NewMetrics(ctx)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	a.Metrics = m
	a.MetricsHandler = handler
	return nil
}

func (a *App) initEvents() {
	if a.Config.NATS.URL == "" {
		return
	}
	client, err := bus.Connect(a.Config.NATS.URL, a.Config.NATS.Subject)
	if err != nil {
		log.WithError(err).Warn("NATS unavailable, task status events disabled")
		return
	}
	a.Events = client
}

func (a *App) initJobClient() {
	a.JobClient = store.NewAsynqJobClient(a.RedisOpt(), a.Config.Worker.MaxRetry)
}

func (a *App) initPipeline() error {
	cfg := a.Config
	prompt, err := config.LoadPromptContent(cfg.Encoder.Prompt, services.DefaultAltTextPrompt)
	if err != nil {
		return fmt.Errorf("load alt text prompt: %w", err)
	}

	deps := services.CoordinatorDeps{Metrics: a.Metrics}
	if a.Events != nil {
		deps.Events = a.Events
	}

	a.Pipeline = services.NewPipeline(a.BatchAPIProvider, a.RunStore, services.PipelineConfig{
		Encoder: services.EncoderConfig{
			ImageColumn:  cfg.Encoder.ImageColumn,
			Model:        cfg.OpenAI.Model,
			BatchSize:    cfg.Encoder.BatchSize,
			OutputDir:    cfg.Encoder.OutputDir,
			MaxImageSize: cfg.Encoder.MaxImageSize,
			Prompt:       prompt,
		},
		Coordinator: services.CoordinatorConfig{
			PollInterval:     cfg.Coordinator.PollInterval,
			Concurrency:      cfg.Coordinator.Concurrency,
			Endpoint:         cfg.OpenAI.Endpoint,
			CompletionWindow: cfg.OpenAI.CompletionWindow,
		},
		ResultDir:    cfg.Fetcher.OutputDir,
		OutputColumn: cfg.Merger.OutputColumn,
		MaxWait:      cfg.Coordinator.MaxWait,
	}, deps)
	a.Canceller = a.Pipeline.Canceller()
	return nil
}

// RedisOpt returns the asynq connection options for the configured Redis.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
}

// Close releases every resource the app opened.
func (a *App) Close() {
	if a.JobClient != nil {
		if err := a.JobClient.Close(); err != nil {
			log.WithError(err).Warn("Error closing job client")
		}
	}
	if a.Events != nil {
		a.Events.Close()
	}
	if a.RunStore != nil {
		if err := a.RunStore.Close(); err != nil {
			log.WithError(err).Warn("Error closing run store")
		}
	}
}
