package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/delivery"
	httpapi "github.com/aussiebroadwan/vouch/internal/auth/http"
	"github.com/aussiebroadwan/vouch/internal/auth/service"
	"github.com/aussiebroadwan/vouch/internal/auth/store"
	"github.com/aussiebroadwan/vouch/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/vouch/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/vouch/pkg/cryptox"
	"github.com/aussiebroadwan/vouch/pkg/httpx"
	"github.com/aussiebroadwan/vouch/pkg/jwtx"
	"github.com/aussiebroadwan/vouch/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application holds the vouch service and everything it depends on.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         store.Store
	keyManager *jwtx.KeyManager
	sealer     *cryptox.Sealer
	delivery   *delivery.Router

	challenges          *service.ChallengeService
	sessions            *service.SessionService
	passwords           *service.PasswordAuthenticator
	otp                 *service.OTPService
	totp                *service.TOTPService
	backupCodes         *service.BackupCodeService
	stepUps             *service.StepUpService
	emailVerification   *service.EmailVerificationService
	passwordReset       *service.PasswordResetService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with every dependency initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "vouch",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := InitSessionKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.keyManager = keyManager

	sealer, err := InitSealer(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize secret sealer: %w", err)
	}
	app.sealer = sealer

	app.initDelivery()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("vouch starting", "port", app.cfg.Port, "version", BuildVersion, "driver", app.cfg.DatabaseDriver)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			_ = app.db.Close()
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

// Shutdown drains in-flight requests, stops housekeeping, waits for
// session activity updates and closes the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down vouch...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.sessions.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("vouch stopped")
	return nil
}

// initDatabase opens the configured driver and applies migrations.
func (app *Application) initDatabase() error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.DatabaseDriver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL)
	default:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
		db, err = sqlite.NewStore(dsn)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initDelivery registers the senders. Only the log sender ships with vouch;
// deployments register real email and SMS senders here.
func (app *Application) initDelivery() {
	app.delivery = delivery.NewRouter()
	for _, ch := range []delivery.Channel{delivery.ChannelEmail, delivery.ChannelSMS} {
		app.delivery.Register(ch, &delivery.LogSender{Logger: app.logger, Channel: ch})
	}
	if app.cfg.Env == "prod" {
		app.logger.Warn("delivery uses the log sender, secrets are written to the log")
	}
}

// initServices initializes the business logic services.
func (app *Application) initServices() {
	app.challenges = &service.ChallengeService{Store: app.db}
	app.backupCodes = &service.BackupCodeService{Store: app.db}
	app.passwords = &service.PasswordAuthenticator{Store: app.db}

	app.sessions = &service.SessionService{
		Store:  app.db,
		Keys:   app.keyManager,
		Issuer: app.cfg.Issuer,
		Logger: app.logger,
		TTL:    app.cfg.SessionTTL,
		Cookie: app.cfg.SessionCookie,
	}

	app.otp = &service.OTPService{
		Challenges: app.challenges,
		Delivery:   app.delivery,
		Logger:     app.logger,
	}

	app.totp = &service.TOTPService{
		Store:       app.db,
		Challenges:  app.challenges,
		BackupCodes: app.backupCodes,
		Sealer:      app.sealer,
		Issuer:      app.cfg.Issuer,
	}

	app.stepUps = &service.StepUpService{
		Store:       app.db,
		Passwords:   app.passwords,
		TOTP:        app.totp,
		BackupCodes: app.backupCodes,
		TTL:         app.cfg.StepUpTTL,
	}

	app.emailVerification = &service.EmailVerificationService{
		Store:      app.db,
		Challenges: app.challenges,
		Delivery:   app.delivery,
		LinkBase:   app.cfg.EmailVerificationURL(),
	}

	app.passwordReset = &service.PasswordResetService{
		Store:      app.db,
		Challenges: app.challenges,
		Sessions:   app.sessions,
		Delivery:   app.delivery,
		Logger:     app.logger,
		LinkBase:   app.cfg.PasswordResetURL(),
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.sessions,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	if app.cfg.KeyRotation {
		app.housekeepingService.KeyRotation = &service.KeyRotationService{
			KeyManager: app.keyManager,
			Logger:     app.logger,
		}
		app.logger.Info("session key rotation enabled", "interval", app.housekeepingService.Interval)
	}
}

// initHTTP builds the router and server. The limiter profiles are read when
// routes are applied, so they are set first.
func (app *Application) initHTTP() {
	httpx.StrictLimit = perMinute(app.cfg.RateLimitStrict)
	httpx.ModerateLimit = perMinute(app.cfg.RateLimitModerate)
	httpx.LenientLimit = perMinute(app.cfg.RateLimitLenient)

	router := httpapi.NewRouter(app.keyManager, BuildVersion, app.db, app.logger)
	router.Sessions = app.sessions
	router.Passwords = app.passwords
	router.OTP = app.otp
	router.EmailVerification = app.emailVerification
	router.PasswordReset = app.passwordReset
	router.TOTP = app.totp
	router.BackupCodes = app.backupCodes
	router.StepUps = app.stepUps
	router.StepUpMaxAge = app.cfg.StepUpMaxAge
	router.SecureCookies = app.cfg.SecureCookies
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

func perMinute(n int) httpx.RateLimitConfig {
	return httpx.RateLimitConfig{RequestsPerWindow: n, Window: time.Minute, Burst: n}
}
