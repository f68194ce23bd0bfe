package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/genflow/internal/api"
	"github.com/phrazzld/genflow/internal/catalog"
	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/notify"
	"github.com/phrazzld/genflow/internal/platform/fcm"
	"github.com/phrazzld/genflow/internal/platform/postgres"
	"github.com/phrazzld/genflow/internal/platform/runway"
	"github.com/phrazzld/genflow/internal/polling"
	"github.com/phrazzld/genflow/internal/service"
	"github.com/phrazzld/genflow/internal/service/auth"
	"github.com/phrazzld/genflow/internal/store"
)

const organizationCheckTimeout = 10 * time.Second

// application holds the process-wide dependencies and owns their shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jobStore  store.JobStore
	userStore store.UserStore

	runway  *runway.Client
	sink    notify.Sink
	catalog *catalog.Catalog

	poller            *polling.Poller
	generationService api.GenerationService
	tokenValidator    auth.TokenValidator
}

// newApplication wires the stores, the remote client, the notification sink,
// the finalizer, the poller and the services. Nothing is started.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:    cfg,
		logger:    logger,
		db:        db,
		jobStore:  postgres.NewPostgresJobStore(db),
		userStore: postgres.NewPostgresUserStore(db),
	}

	var err error
	app.tokenValidator, err = auth.NewHMACValidator(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token validator: %w", err)
	}

	app.runway, err = runway.NewClient(cfg.Runway, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize runway client: %w", err)
	}

	app.catalog, err = catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load task catalog: %w", err)
	}
	logger.Info("task catalog loaded", "kinds", app.catalog.Kinds())

	if cfg.Notification.Enabled {
		app.sink, err = fcm.NewSink(ctx, cfg.Notification, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize push notifications: %w", err)
		}
		logger.Info("push notifications enabled")
	} else {
		app.sink = notify.NewLogSink(logger)
		logger.Info("push notifications disabled, notifications will be logged")
	}

	finalizer := service.NewJobFinalizer(db, app.jobStore, app.userStore, app.sink, app.catalog, logger)
	app.poller = polling.NewPoller(
		app.runway,
		app.jobStore,
		finalizer,
		polling.ConfigFromSettings(cfg.Polling),
		logger,
	)
	app.generationService = service.NewGenerationService(
		app.jobStore,
		app.userStore,
		app.runway,
		app.catalog,
		app.poller,
		logger,
	)

	logger.Info("application initialized")
	return app, nil
}

// Run starts the poller and serves HTTP until ctx is cancelled, then shuts
// down in order: HTTP server, poller, database.
func (app *application) Run(ctx context.Context) error {
	app.logOrganization(ctx)

	// The poller outlives ctx so that it stops only after the HTTP server.
	if err := app.poller.Start(context.WithoutCancel(ctx)); err != nil {
		app.cleanup()
		return fmt.Errorf("failed to start poller: %w", err)
	}

	err := app.startHTTPServer(ctx, app.setupRouter())
	app.cleanup()
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// logOrganization reports the remote account's credit balance. Failure is
// only a warning; the API may still be reachable for task calls.
func (app *application) logOrganization(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, organizationCheckTimeout)
	defer cancel()

	org, err := app.runway.Organization(ctx)
	if err != nil {
		app.logger.Warn("failed to fetch runway organization", "error", err)
		return
	}
	app.logger.Info("runway organization", "credit_balance", org.CreditBalance)
}

// cleanup stops the poller and closes the database.
func (app *application) cleanup() {
	if app.poller != nil {
		app.poller.Stop()
	}
	if app.db != nil {
		closeDB(app.db, app.logger)
	}
	app.logger.Info("application shutdown completed")
}
