package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/bot"
	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
	"github.com/ternarybob/huntbot/internal/services/automation"
	"github.com/ternarybob/huntbot/internal/services/browser"
	"github.com/ternarybob/huntbot/internal/services/conversation"
	"github.com/ternarybob/huntbot/internal/services/credentials"
	"github.com/ternarybob/huntbot/internal/services/dispatch"
	"github.com/ternarybob/huntbot/internal/services/events"
	"github.com/ternarybob/huntbot/internal/services/pdf"
	"github.com/ternarybob/huntbot/internal/services/quota"
	"github.com/ternarybob/huntbot/internal/services/scheduler"
	"github.com/ternarybob/huntbot/internal/storage"
)

const (
	jobRotationSweep = "rotation_sweep"
	jobArtifactSweep = "artifact_sweep"
)

// Transport is the chat connection: outgoing messages plus the incoming update stream
type Transport interface {
	bot.Messenger
	Updates(ctx context.Context) <-chan bot.Incoming
}

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService interfaces.SchedulerService

	// Remote site automation
	Credentials *credentials.Store
	Launcher    *browser.Launcher
	Artifacts   *automation.ArtifactStore
	Runner      *automation.Runner
	Dispatcher  *dispatch.Dispatcher
	Rotator     *automation.Rotator

	// Conversational layer
	Conversations *conversation.Manager
	QuotaService  *quota.Service
	ReportService *pdf.Service
	Transport     Transport
	Handler       *bot.Handler
}

// New initializes the application and connects to Telegram
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	messenger, err := bot.NewTelegramMessenger(cfg.Telegram, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	return NewWithTransport(cfg, logger, messenger)
}

// NewWithTransport initializes the application on top of an existing transport
func NewWithTransport(cfg *common.Config, logger arbor.ILogger, transport Transport) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Transport: transport,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initScheduler(); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	app.Handler = bot.NewHandler(
		app.Transport,
		app.Conversations,
		app.Dispatcher,
		app.Rotator,
		app.QuotaService,
		app.StorageManager.UserStorage(),
		app.ReportService,
		bot.OptionsFromConfig(cfg),
		app.Logger,
	)

	logger.Info().
		Int("max_concurrency", cfg.Pipeline.MaxConcurrency).
		Int("queue_size", cfg.Pipeline.QueueSize).
		Str("artifacts", app.Artifacts.Root()).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes the business services in dependency order:
// events, credentials, browser automation, dispatcher, rotator, then the
// conversational services the bot handler needs.
func (a *App) initServices() error {
	var err error
	ctx := context.Background()

	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	a.Credentials = credentials.NewStore(
		models.Credentials{Email: a.Config.Account.Email, Password: a.Config.Account.Password},
		a.StorageManager.KeyValueStorage(),
		a.EventService,
		a.Logger,
	)
	if err := a.Credentials.Load(ctx); err != nil {
		return err
	}

	locators, unknown := automation.DefaultLocators(a.Config.Site.BaseURL).WithOverrides(a.Config.Site.Selectors)
	if len(unknown) > 0 {
		a.Logger.Warn().Strs("selectors", unknown).Msg("Ignoring unknown selector overrides")
	}
	timeouts := automation.TimeoutsFromConfig(a.Config.Pipeline, a.Config.Rotation)

	a.Launcher = browser.NewLauncher(a.Config.Browser, a.Logger)

	a.Artifacts, err = automation.NewArtifactStore(a.Config.Storage.ArtifactsDir)
	if err != nil {
		return err
	}

	auth := automation.NewAuthenticator(locators, a.Credentials, timeouts, a.Logger)
	extractor := automation.NewExtractor(locators, timeouts, a.Logger)
	a.Runner = automation.NewRunner(a.Launcher, auth, extractor, a.Artifacts, a.Logger)

	a.Dispatcher = dispatch.NewDispatcher(a.Runner, a.Config.Pipeline, a.EventService, a.Logger)

	a.Rotator = automation.NewRotator(a.Launcher, auth, locators, timeouts,
		a.Config.Rotation, a.Dispatcher, a.Credentials, a.Logger)

	a.Conversations = conversation.NewManager(conversation.Options{
		AllowedHosts:      a.Config.Pipeline.AllowedHosts,
		MaxPromptChars:    a.Config.Bot.MaxPromptChars,
		MinPasswordLength: a.Config.Rotation.MinLength,
		MaxPasswordLength: a.Config.Rotation.MaxLength,
	}, a.Logger)

	a.QuotaService = quota.NewService(
		a.StorageManager.UserStorage(),
		a.StorageManager.UsageStorage(),
		a.StorageManager.SettingsStorage(),
		a.Logger,
	)
	if err := a.QuotaService.Subscribe(a.EventService); err != nil {
		return fmt.Errorf("failed to subscribe quota service: %w", err)
	}

	a.ReportService = pdf.NewService(a.Logger)

	a.Logger.Debug().
		Str("site", a.Config.Site.BaseURL).
		Bool("headless", a.Config.Browser.Headless).
		Msg("Services initialized")

	return nil
}

// initScheduler registers the housekeeping jobs and starts the scheduler
func (a *App) initScheduler() error {
	a.SchedulerService = scheduler.NewService(a.Logger)

	if err := a.SchedulerService.RegisterJob(jobRotationSweep, a.Config.Scheduler.RotationSweep,
		"Abort suspended credential rotations past their deadline", a.sweepRotations); err != nil {
		return err
	}

	if err := a.SchedulerService.RegisterJob(jobArtifactSweep, a.Config.Scheduler.ArtifactSweep,
		"Remove leftover screenshot directories", a.sweepArtifacts); err != nil {
		return err
	}

	return a.SchedulerService.Start()
}

func (a *App) sweepRotations() error {
	if n := a.Rotator.Sweep(time.Now()); n > 0 {
		a.Logger.Info().Int("expired", n).Msg("Expired suspended rotations")
	}
	return nil
}

func (a *App) sweepArtifacts() error {
	n, err := a.Artifacts.RemoveOlderThan(a.Config.Storage.ArtifactMaxAge.Std(), time.Now())
	if n > 0 {
		a.Logger.Info().Int("removed", n).Msg("Removed stale artifact directories")
	}
	return err
}

// Run consumes chat updates until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	return a.Handler.Run(ctx, a.Transport.Updates(ctx))
}

// Close stops background work and closes all application resources.
// Call it after the context passed to Run has been cancelled.
func (a *App) Close() error {
	// Stop scheduler service
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	// Cancel running tasks; pending handles resolve so deliveries can finish
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
		a.Logger.Info().Msg("Dispatcher stopped")
	}

	if a.Handler != nil {
		a.Handler.Wait()
	}

	if a.Rotator != nil {
		a.Rotator.Close()
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
