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

	httpapi "github.com/aussiebroadwan/trustcore/internal/trust/http"
	"github.com/aussiebroadwan/trustcore/internal/trust/kv"
	"github.com/aussiebroadwan/trustcore/internal/trust/kv/drivers/memory"
	kvredis "github.com/aussiebroadwan/trustcore/internal/trust/kv/drivers/redis"
	"github.com/aussiebroadwan/trustcore/internal/trust/provider"
	"github.com/aussiebroadwan/trustcore/internal/trust/service"
	"github.com/aussiebroadwan/trustcore/internal/trust/store"
	"github.com/aussiebroadwan/trustcore/internal/trust/store/drivers/sqlite"
	"github.com/aussiebroadwan/trustcore/pkg/cryptox"
	"github.com/aussiebroadwan/trustcore/pkg/httpx"
	"github.com/aussiebroadwan/trustcore/pkg/jwtx"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application owns every dependency of the trust service.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	kv         kv.Store
	keyManager *jwtx.KeyManager
	cipher     *cryptox.Cipher
	providers  provider.Registry

	// Services
	tokenService        *service.TokenService
	apiKeyService       *service.APIKeyService
	signatureVerifier   *service.SignatureVerifier
	rateLimiter         *service.RateLimiter
	fraudEngine         *service.FraudEngine
	blacklistService    *service.BlacklistService
	reconciler          *service.Reconciler
	housekeepingService *service.HousekeepingService

	// HTTP server
	server         *http.Server
	router         *httpapi.Router
	trustedProxies *httpx.TrustedProxies
}

// New creates an Application with all dependencies initialised. Nothing
// listens until Run.
func New(ctx context.Context, cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	proxies, err := httpx.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("invalid config: TRUSTED_PROXIES: %w", err)
	}

	app := &Application{
		trustedProxies: proxies,
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "trustcore",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  cfg.LogOutput,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initKV(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	keyManager, cipher, err := InitKeys(cfg, app.logger)
	if err != nil {
		app.closeStores()
		return nil, err
	}
	app.keyManager = keyManager
	app.cipher = cipher

	if err := app.initProviders(); err != nil {
		app.closeStores()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Migrate applies the schema migrations to the configured database and
// exits without touching anything else.
func Migrate(cfg Config) error {
	db, err := sqlite.NewStore(sqliteDSN(cfg.DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	return db.ApplyMigrations()
}

func sqliteDSN(file string) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", file)
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("trust service starting", "port", app.cfg.Port, "version", BuildVersion)

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
			app.closeStores()
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

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down trust service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.closeStores()

	app.logger.Info("trust service stopped")
	return nil
}

// Close releases the stores of an Application that was never Run.
func (app *Application) Close() {
	app.closeStores()
}

func (app *Application) closeStores() {
	if app.kv != nil {
		if err := app.kv.Close(); err != nil {
			app.logger.Error("error closing kv store", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
	}
}

func (app *Application) Logger() *slog.Logger                 { return app.logger }
func (app *Application) Reconciler() *service.Reconciler      { return app.reconciler }
func (app *Application) Blacklist() *service.BlacklistService { return app.blacklistService }
func (app *Application) APIKeys() *service.APIKeyService      { return app.apiKeyService }
func (app *Application) FraudEngine() *service.FraudEngine    { return app.fraudEngine }

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(sqliteDSN(app.cfg.DatabaseFile))
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

// initKV connects the shared store. The memory driver is per process and
// only suits a single instance.
func (app *Application) initKV(ctx context.Context) error {
	switch app.cfg.KVDriver {
	case "memory":
		app.kv = memory.New()
		app.logger.Warn("using in-process kv store; nonces and counters are not shared between instances")
	case "redis":
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		s, err := kvredis.Dial(dialCtx, kvredis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect kv store: %w", err)
		}
		app.kv = s
		app.logger.Info("kv store connected", "driver", "redis", "addr", app.cfg.RedisAddr)
	default:
		return fmt.Errorf("unknown kv driver %q", app.cfg.KVDriver)
	}
	return nil
}

func (app *Application) initProviders() error {
	endpoints, err := provider.ParseEndpoints(app.cfg.Providers)
	if err != nil {
		return err
	}
	app.providers = provider.NewHTTPRegistry(endpoints, app.cfg.ProviderTimeout)
	app.logger.Info("payment providers configured", "providers", app.providers.Names())
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		KeyManager: app.keyManager,
		Store:      app.db,
		Cipher:     app.cipher,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTokenTTL,
		RefreshTTL: app.cfg.RefreshTokenTTL,
	}
	app.apiKeyService = &service.APIKeyService{Store: app.db, Cipher: app.cipher}

	app.signatureVerifier = &service.SignatureVerifier{
		Store:       app.db,
		Cipher:      app.cipher,
		Nonces:      &service.NonceStore{KV: app.kv},
		Skew:        app.cfg.SignatureClockSkew,
		NonceMargin: app.cfg.NonceTTLMargin,
	}
	app.rateLimiter = &service.RateLimiter{
		KV: app.kv,
		Default: service.RateLimitPolicy{
			Limit:  app.cfg.RateLimitDefaultLimit,
			Window: app.cfg.RateLimitDefaultWindow,
		},
	}

	app.fraudEngine = service.NewFraudEngine(app.kv, service.FraudPolicy{
		VelocityLimit:    app.cfg.FraudVelocityLimit,
		VelocityWindow:   app.cfg.FraudVelocityWindow,
		FailureThreshold: app.cfg.FraudFailureThreshold,
		FailureWindow:    app.cfg.FraudFailureWindow,
		BlockTTL:         app.cfg.FraudBlockTTL,
	}, nil)
	app.blacklistService = &service.BlacklistService{KV: app.kv}

	app.reconciler = &service.Reconciler{
		Store:       app.db,
		Providers:   app.providers,
		Concurrency: app.cfg.ReconcileConcurrency,
		ProviderRPS: app.cfg.ReconcileProviderRPS,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		BuildVersion,
		app.db,
		app.kv,
		app.logger,
	)

	router.TokenService = app.tokenService
	router.SignatureVerifier = app.signatureVerifier
	router.RateLimiter = app.rateLimiter
	router.FraudEngine = app.fraudEngine
	router.Reconciler = app.reconciler
	router.TrustedProxies = app.trustedProxies
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
