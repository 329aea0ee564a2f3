// Package app initializes and holds the long-lived services of the
// archiver, acting as a dependency injection container for the CLI.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkvault/internal/archive"
	"github.com/JakeFAU/linkvault/internal/clock/system"
	"github.com/JakeFAU/linkvault/internal/config"
	"github.com/JakeFAU/linkvault/internal/extract"
	collyfetcher "github.com/JakeFAU/linkvault/internal/fetcher/colly"
	"github.com/JakeFAU/linkvault/internal/fetcher/headless"
	"github.com/JakeFAU/linkvault/internal/hash/sha256"
	"github.com/JakeFAU/linkvault/internal/id/uuid"
	"github.com/JakeFAU/linkvault/internal/ledger"
	"github.com/JakeFAU/linkvault/internal/metrics"
	pubsubnotify "github.com/JakeFAU/linkvault/internal/notify/pubsub"
	"github.com/JakeFAU/linkvault/internal/pipeline"
	fsstore "github.com/JakeFAU/linkvault/internal/store/fs"
	gcsstore "github.com/JakeFAU/linkvault/internal/store/gcs"
)

// App holds all shared, long-lived services. It is initialized once at
// startup and passed to the commands that need it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     archive.Clock
	ids       archive.IDGenerator
	hasher    archive.Hasher
	store     archive.Store
	ledger    *ledger.Ledger
	fetcher   archive.Fetcher
	assets    archive.AssetFetcher
	extractor *extract.Extractor
	notifier  archive.Notifier

	headless *headless.Fetcher
	mirror   *gcsstore.Mirror
	pubsub   *pubsubnotify.Notifier
	pgLedger *ledger.PostgresBackend
}

// New wires all services from the configuration. It fails fast: any service
// that cannot be initialized refuses the whole startup.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	a := &App{
		cfg:       cfg,
		logger:    logger,
		clock:     system.New(),
		ids:       uuid.New(),
		hasher:    sha256.New(),
		extractor: extract.New(),
	}

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	if err := a.initLedger(ctx); err != nil {
		return nil, err
	}
	if err := a.initFetcher(); err != nil {
		return nil, err
	}
	if err := a.initNotifier(ctx); err != nil {
		return nil, err
	}

	logger.Info("application services initialized",
		zap.String("archive_root", cfg.Storage.Root),
		zap.String("ledger_backend", cfg.Ledger.Backend),
		zap.String("fetcher_mode", cfg.Fetcher.Mode),
		zap.Bool("gcs_mirror", cfg.Storage.GCSBucket != ""),
		zap.Bool("publish", cfg.PublishEnabled()),
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	local, err := fsstore.New(fsstore.Config{Root: a.cfg.Storage.Root}, a.logger)
	if err != nil {
		return fmt.Errorf("initialize archive store: %w", err)
	}
	if err := local.Recover(ctx); err != nil {
		return fmt.Errorf("recover archive store: %w", err)
	}
	a.store = local

	if a.cfg.Storage.GCSBucket != "" {
		mirror, err := gcsstore.NewMirror(ctx, local, a.cfg.Storage.GCSBucket, a.logger)
		if err != nil {
			return fmt.Errorf("initialize GCS mirror: %w", err)
		}
		a.mirror = mirror
		a.store = mirror
	}
	return nil
}

func (a *App) initLedger(ctx context.Context) error {
	var backend ledger.Backend
	switch a.cfg.Ledger.Backend {
	case config.LedgerBackendFile:
		fb, err := ledger.NewFileBackend(a.cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("initialize file ledger: %w", err)
		}
		backend = fb
	case config.LedgerBackendPostgres:
		pg, err := ledger.NewPostgresBackend(ctx, ledger.PostgresConfig{
			DSN:            a.cfg.Ledger.DSN,
			Table:          a.cfg.Ledger.FailuresTable,
			PermanentTable: a.cfg.Ledger.PermanentTable,
		})
		if err != nil {
			return fmt.Errorf("initialize postgres ledger: %w", err)
		}
		a.pgLedger = pg
		backend = pg
	default:
		return &archive.ConfigError{Reason: fmt.Sprintf("unknown ledger backend %q", a.cfg.Ledger.Backend)}
	}

	led, err := ledger.New(ctx, backend, a.clock, ledger.Options{
		Cooldown:    a.cfg.Cooldown(),
		MaxFailures: a.cfg.Ledger.MaxFailures,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	a.ledger = led
	return nil
}

func (a *App) initFetcher() error {
	httpFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Fetcher.UserAgent,
		Timeout:   a.cfg.FetchTimeout(),
	})
	// Lead images always go over plain HTTP, whatever renders the page.
	a.assets = httpFetcher

	switch a.cfg.Fetcher.Mode {
	case config.FetcherModeHTTP:
		a.fetcher = httpFetcher
	case config.FetcherModeHeadless:
		hf, err := headless.New(headless.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Fetcher.UserAgent,
			NavigationTimeout: a.cfg.NavTimeout(),
		})
		if err != nil {
			return fmt.Errorf("initialize headless fetcher: %w", err)
		}
		a.headless = hf
		a.fetcher = hf
	default:
		return &archive.ConfigError{Reason: fmt.Sprintf("unknown fetcher mode %q", a.cfg.Fetcher.Mode)}
	}
	return nil
}

func (a *App) initNotifier(ctx context.Context) error {
	if !a.cfg.PublishEnabled() {
		return nil
	}
	notifier, err := pubsubnotify.Connect(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("initialize pubsub notifier: %w", err)
	}
	a.pubsub = notifier
	a.notifier = notifier
	return nil
}

// Orchestrator builds a run orchestrator wired to the app's services.
func (a *App) Orchestrator(runCfg pipeline.Config) *pipeline.Orchestrator {
	return pipeline.New(
		a.store,
		a.ledger,
		a.fetcher,
		a.assets,
		a.extractor,
		a.notifier,
		a.clock,
		a.ids,
		a.hasher,
		runCfg,
		a.logger,
	)
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Clock returns the shared clock.
func (a *App) Clock() archive.Clock { return a.clock }

// Store returns the archive store (mirrored when a bucket is configured).
func (a *App) Store() archive.Store { return a.store }

// Ledger returns the failure ledger.
func (a *App) Ledger() *ledger.Ledger { return a.ledger }

// Close gracefully shuts down all services.
func (a *App) Close() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("close pubsub notifier", zap.Error(err))
		}
	}
	if a.pgLedger != nil {
		a.pgLedger.Close()
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.logger.Warn("close GCS mirror", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("sync logger on shutdown", zap.Error(err))
	}
}
