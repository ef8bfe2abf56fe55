package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/tunegate/tunegate/internal/auth/http"
	"github.com/tunegate/tunegate/internal/auth/service"
	"github.com/tunegate/tunegate/internal/auth/store"
	"github.com/tunegate/tunegate/internal/auth/store/drivers/sqlite"
	"github.com/tunegate/tunegate/internal/music"
	"github.com/tunegate/tunegate/pkg/cryptox"
	"github.com/tunegate/tunegate/pkg/jwtx"
	"github.com/tunegate/tunegate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the authorization service with all its
// dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db     store.Store
	signer *jwtx.Signer
	sealer *cryptox.Sealer

	// Services
	clientService       *service.ClientService
	authorizeService    *service.AuthorizeService
	tokenService        *service.TokenService
	housekeepingService *service.HousekeepingService

	// Catalog access (optional: absent without developer credentials)
	devTokens  *music.DeveloperTokenSource
	dispatcher *music.Dispatcher

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tunegate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initCrypto(); err != nil {
		return nil, err
	}
	if err := app.initCatalog(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("tunegate starting",
		"port", app.cfg.Port,
		"issuer", app.cfg.Issuer,
		"version", BuildVersion,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down tunegate...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("tunegate stopped")
	return nil
}

// initDatabase opens the SQLite store and applies migrations.
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initCrypto sets up the credential sealer and the access token signer.
func (app *Application) initCrypto() error {
	keyMaterial := app.cfg.TokenEncryptionKey
	if keyMaterial == "" {
		return fmt.Errorf("TUNEGATE_TOKEN_ENCRYPTION_KEY is required: sealed credentials must survive restarts")
	}

	sealer, err := cryptox.NewSealer([]byte(keyMaterial))
	if err != nil {
		return fmt.Errorf("failed to initialize credential sealer: %w", err)
	}
	app.sealer = sealer

	if app.cfg.SigningKeyPath != "" {
		pemKey, err := os.ReadFile(app.cfg.SigningKeyPath)
		if err != nil {
			return fmt.Errorf("failed to read signing key: %w", err)
		}
		signer, err := jwtx.NewSignerES256(app.cfg.SigningKeyID, pemKey)
		if err != nil {
			return fmt.Errorf("failed to load signing key: %w", err)
		}
		app.signer = signer
		app.logger.Info("loaded signing key", "kid", app.cfg.SigningKeyID)
		return nil
	}

	// Ephemeral key: access tokens stop verifying after a restart. Fine for
	// dev, wrong for prod.
	signer, err := jwtx.GenerateSignerES256(app.cfg.SigningKeyID)
	if err != nil {
		return fmt.Errorf("failed to generate signing key: %w", err)
	}
	app.signer = signer
	app.logger.Warn("using ephemeral signing key; set TUNEGATE_SIGNING_KEY_PATH for persistence")
	return nil
}

// initCatalog wires the catalog client when developer credentials are
// configured. Without them the OAuth surface still works but tool dispatch
// is unavailable.
func (app *Application) initCatalog() error {
	if app.cfg.AppleTeamID == "" || app.cfg.AppleKeyID == "" || app.cfg.ApplePrivateKeyPath == "" {
		app.logger.Warn("catalog credentials not configured; tool dispatch disabled")
		return nil
	}

	pemKey, err := os.ReadFile(app.cfg.ApplePrivateKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read developer key: %w", err)
	}

	devTokens, err := music.NewDeveloperTokenSource(app.cfg.AppleTeamID, app.cfg.AppleKeyID, pemKey)
	if err != nil {
		return fmt.Errorf("failed to initialize developer token source: %w", err)
	}
	app.devTokens = devTokens
	app.dispatcher = music.NewDispatcher(music.NewClient(devTokens, app.cfg.AppleStorefront))

	app.logger.Info("catalog client configured",
		"team_id", app.cfg.AppleTeamID,
		"storefront", app.cfg.AppleStorefront,
	)
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.clientService = &service.ClientService{Store: app.db}

	app.authorizeService = &service.AuthorizeService{
		Store:      app.db,
		Sealer:     app.sealer,
		RequestTTL: app.cfg.AuthRequestTTL,
	}

	app.tokenService = &service.TokenService{
		Store:      app.db,
		Signer:     app.signer,
		Sealer:     app.sealer,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTokenTTL,
		RefreshTTL: app.cfg.RefreshTokenTTL,
		CodeTTL:    app.cfg.AuthCodeTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.authorizeService,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.signer,
		app.cfg.Issuer,
		BuildVersion,
		app.db,
		app.logger,
	)

	// Wire services to router
	router.ClientService = app.clientService
	router.AuthorizeService = app.authorizeService
	router.TokenService = app.tokenService
	router.DevTokens = app.devTokens
	router.Dispatcher = app.dispatcher
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
