package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexstaff/identity/internal/identity/persona"
	"github.com/nexstaff/identity/internal/identity/service"
	"github.com/nexstaff/identity/internal/identity/store"
	"github.com/nexstaff/identity/internal/identity/store/drivers/sqlite"
	"github.com/nexstaff/identity/pkg/jwtx"
	"github.com/nexstaff/identity/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application wires the identity subsystem together: store, signer, persona
// registry, services and the housekeeping worker. There is no transport layer
// here; embedding programs call the services directly.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	signer *jwtx.Signer

	// Services
	Registration *service.RegistrationService
	Auth         *service.AuthService
	Tokens       *service.TokenService
	Verification *service.VerificationService
	Passwords    *service.PasswordService

	housekeeping *service.HousekeepingService
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	signer, err := jwtx.NewSigner([]byte(cfg.JWTSecret), cfg.Issuer)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize token signer: %w", err)
	}
	app.signer = signer

	app.initServices()

	return app, nil
}

// Logger exposes the application logger for embedding programs.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Store exposes the underlying store for embedding programs.
func (app *Application) Store() store.Store { return app.db }

// Run starts the background workers and blocks until a shutdown signal.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("identity service started",
		"version", BuildVersion,
		"tenant_id", app.cfg.TenantID,
		"require_verification", app.cfg.RequireEmailVerification)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown stops the workers and closes the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	app.housekeeping.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
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

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.Tokens = &service.TokenService{
		Signer:     app.signer,
		Store:      app.db,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
	}

	app.Registration = &service.RegistrationService{
		Store:               app.db,
		Tokens:              app.Tokens,
		Strategies:          persona.DefaultRegistry(),
		RequireVerification: app.cfg.RequireEmailVerification,
		DefaultTenantID:     app.cfg.TenantID,
		BcryptCost:          app.cfg.BcryptCost,
		PasswordMinLength:   app.cfg.PasswordMinLength,
		VerifyTTL:           app.cfg.VerifyTTL,
		PlatformURL:         app.cfg.PlatformURL,
	}

	app.Auth = &service.AuthService{
		Store:               app.db,
		Tokens:              app.Tokens,
		RequireVerification: app.cfg.RequireEmailVerification,
		MaxLoginAttempts:    app.cfg.MaxLoginAttempts,
		TempTTL:             app.cfg.TempTTL,
		VerifyTTL:           app.cfg.VerifyTTL,
		PlatformURL:         app.cfg.PlatformURL,
	}

	app.Verification = &service.VerificationService{
		Store:       app.db,
		VerifyTTL:   app.cfg.VerifyTTL,
		TenantID:    app.cfg.TenantID,
		PlatformURL: app.cfg.PlatformURL,
	}

	app.Passwords = &service.PasswordService{
		Store:             app.db,
		Tokens:            app.Tokens,
		BcryptCost:        app.cfg.BcryptCost,
		PasswordMinLength: app.cfg.PasswordMinLength,
		ResetTTL:          app.cfg.ResetTTL,
		TenantID:          app.cfg.TenantID,
		PlatformURL:       app.cfg.PlatformURL,
	}

	app.housekeeping = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}
