// Package server initializes and runs the main application server.
// It opens the local store, wires the domain services, and runs the HTTP
// front door, the event hub and the background sweeps until shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/andrejs2008/evomint/internal/logging"
	"github.com/andrejs2008/evomint/internal/server/admission"
	"github.com/andrejs2008/evomint/internal/server/config"
	"github.com/andrejs2008/evomint/internal/server/credentials"
	"github.com/andrejs2008/evomint/internal/server/images"
	"github.com/andrejs2008/evomint/internal/server/ledger"
	"github.com/andrejs2008/evomint/internal/server/lifecycle"
	"github.com/andrejs2008/evomint/internal/server/rest"
	"github.com/andrejs2008/evomint/internal/server/scheduler"
	"github.com/andrejs2008/evomint/internal/server/social"
	"github.com/andrejs2008/evomint/internal/server/storage"
	"github.com/andrejs2008/evomint/internal/traits"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	store     *storage.Store
	lifecycle *lifecycle.Service
	admission *admission.Service
	creds     *credentials.Service
	hub       *rest.Hub
	scheduler *scheduler.Scheduler
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	store, err := storage.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	adm := admission.NewService(store.DB, store.Repos, cfg.DefaultCombinationLimit, logger)
	if cfg.QuotaSeedFile != "" {
		if err := adm.SeedFromFile(ctx, cfg.QuotaSeedFile); err != nil {
			store.Close()
			return nil, fmt.Errorf("quota seed error: %w", err)
		}
	}

	creds := credentials.NewService(store.DB, store.Repos, cfg.EncryptionSecret, cfg.EncryptionSalt, logger)

	var generator images.Generator
	if cfg.ImageAPIKey != "" {
		generator = images.NewStabilityClient(images.StabilityConfig{
			BaseURL: cfg.ImageAPIEndpoint,
			APIKey:  cfg.ImageAPIKey,
		})
	}

	var artifacts images.Storage
	switch {
	case cfg.S3BaseEndpoint != "":
		artifacts, err = images.NewS3Storage(ctx, images.S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3BaseEndpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3RootUser,
			SecretKey: cfg.S3RootPassword,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
	case cfg.ImagesDir != "":
		artifacts = images.NewLocalStorage(cfg.ImagesDir, "/static")
	}

	var led ledger.Client
	if cfg.LedgerEnabled {
		led = ledger.NewHTTPClient(ledger.Config{
			BaseURL:        cfg.LedgerEndpoint,
			Timeout:        cfg.LedgerTimeout,
			MaxRetries:     cfg.LedgerMaxRetries,
			BackoffBase:    cfg.LedgerRetryBaseDelay,
			RequestsPerSec: cfg.LedgerRateLimit,
			Burst:          cfg.LedgerRateBurst,
		}, logger)
	}

	var signals social.Source
	if cfg.SocialFeedEndpoint != "" {
		signals = social.NewFeedSource(creds, social.Config{BaseURL: cfg.SocialFeedEndpoint}, logger)
	}

	hub := rest.NewHub(logger)

	lc := lifecycle.NewService(lifecycle.Deps{
		DB:        store.DB,
		Repos:     store.Repos,
		Engine:    traits.NewEngine(traits.DefaultConfig()),
		Admission: adm,
		Images:    images.NewService(generator, artifacts, logger),
		Ledger:    led,
		Signals:   signals,
		Events:    hub,
		Logger:    logger,
	}, lifecycle.Config{
		DefaultEvolutionPeriodDays: cfg.DefaultEvolutionPeriodDays,
		MaxLedgerAttempts:          cfg.MaxLedgerAttempts,
	})

	sched := scheduler.New(lc, sweepConfig(cfg, led != nil), logger)

	return &App{
		config:    cfg,
		logger:    logger,
		store:     store,
		lifecycle: lc,
		admission: adm,
		creds:     creds,
		hub:       hub,
		scheduler: sched,
	}, nil
}

// sweepConfig maps the configured sweep cadences onto the scheduler. With
// no ledger client there is nothing for the retry pass to repair, so its
// loop is left disabled instead of failing every tick.
func sweepConfig(cfg *config.Config, ledgerEnabled bool) scheduler.Config {
	sc := scheduler.Config{
		EvolutionInterval: cfg.EvolutionSweepInterval,
		RetryInterval:     cfg.RetrySweepInterval,
	}
	if !ledgerEnabled {
		sc.RetryInterval = 0
	}
	return sc
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	gin.SetMode(gin.ReleaseMode)

	staticDir := ""
	if app.config.S3BaseEndpoint == "" {
		staticDir = app.config.ImagesDir
	}

	router := rest.NewRouter(app.lifecycle, app.admission, app.creds, app.hub, rest.RouterConfig{
		AdminSecret:   []byte(app.config.AdminSecretKey),
		TokenValidity: app.config.AdminTokenValidityDuration,
		QuotaSeedPath: app.config.QuotaSeedFile,
		StaticDir:     staticDir,
	}, app.logger)

	s := rest.NewServer(app.config.EndpointAddr, router, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.scheduler.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
}
