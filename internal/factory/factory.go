package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mcoot/clanadmin/internal/config"
	"github.com/mcoot/clanadmin/internal/dependencies/clock"
	"github.com/mcoot/clanadmin/internal/dependencies/ids"
	"github.com/mcoot/clanadmin/internal/notify"
	"github.com/mcoot/clanadmin/internal/scheduler"
	"github.com/mcoot/clanadmin/internal/services/auth"
	"github.com/mcoot/clanadmin/internal/services/clansync"
	"github.com/mcoot/clanadmin/internal/services/inactivity"
	"github.com/mcoot/clanadmin/internal/services/roster"
	"github.com/mcoot/clanadmin/internal/storage"
	"github.com/mcoot/clanadmin/internal/storage/memory"
	"github.com/mcoot/clanadmin/internal/storage/postgres"
	redisstorage "github.com/mcoot/clanadmin/internal/storage/redis"
	"github.com/mcoot/clanadmin/internal/wom"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	IDs    ids.Generator
	WOM    *wom.Client
	Notify notify.Notifier // nil when no webhook is configured

	// Services
	SyncService       *clansync.Service
	RosterService     *roster.Service
	InactivityService *inactivity.Service
	AuthService       *auth.Service
	Runner            *scheduler.Runner
	Scheduler         *scheduler.Scheduler

	closer io.Closer
}

// Config holds configuration for the application factory
type Config struct {
	// Settings is the loaded configuration (optional)
	// If nil, defaults to config.Default()
	Settings *config.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}

	store, closer, err := openStorage(settings.Storage, logger)
	if err != nil {
		return nil, err
	}

	app, err := newWithDependencies(store, clock.New(), ids.New(), settings, logger)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	app.closer = closer
	return app, nil
}

// openStorage creates the configured backend; the closer is nil for memory
func openStorage(cfg config.StorageConfig, logger *slog.Logger) (storage.Storage, io.Closer, error) {
	switch cfg.Type {
	case "", config.StorageMemory:
		return memory.New(), nil, nil
	case config.StorageRedis:
		store, err := redisstorage.New(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.StoragePostgres:
		db, err := postgres.Open(cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			return nil, nil, fmt.Errorf("migrating database: %w", err)
		}
		store := postgres.New(db)
		return store, store, nil
	default:
		return nil, nil, errors.New("invalid storage type: must be 'memory', 'redis' or 'postgres'")
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, idGen ids.Generator, settings *config.Config, logger *slog.Logger) (*App, error) {
	womClient := wom.NewClient(settings.WOM, clk, logger)

	// A nil interface, not a typed nil, keeps the scheduler from posting
	var notifier notify.Notifier
	if settings.Discord.WebhookURL != "" {
		notifier = notify.NewDiscord(settings.Discord, clk, logger)
	}

	syncService := clansync.NewService(store, womClient, clk, idGen, logger, settings.Sync)
	rosterService := roster.New(store, clk, logger)
	inactivityService := inactivity.New(store, womClient, clk, logger, settings.Inactivity)
	authService := auth.New(settings.Auth, logger)
	runner := scheduler.NewRunner(syncService, inactivityService, logger)

	sched, err := scheduler.New(runner, notifier, clk, logger, settings.Scheduler)
	if err != nil {
		return nil, err
	}

	return &App{
		Storage:           store,
		Clock:             clk,
		IDs:               idGen,
		WOM:               womClient,
		Notify:            notifier,
		SyncService:       syncService,
		RosterService:     rosterService,
		InactivityService: inactivityService,
		AuthService:       authService,
		Runner:            runner,
		Scheduler:         sched,
	}, nil
}

// Close releases the storage connection, if any
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
