// Package app wires configuration, storage, services, and transport into
// a runnable license server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"licensed/internal/config"
	"licensed/internal/infrastructure"
	"licensed/internal/license"
	custommw "licensed/internal/middleware"
	"licensed/internal/store"
	handlers "licensed/internal/transport/http"
)

const AppName = "licensed"

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Store         *store.Store
	Service       *license.Service
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
}

// NewApplication creates a new application instance with dependency injection
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", infrastructure.ServiceVersion))

	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	st, err := store.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open license store: %w", err)
	}
	if err := st.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	signer := license.NewSigner(cfg.License.SecretKey)
	issuer := license.NewIssuer(signer, license.Defaults{
		LatestVersion:  cfg.License.LatestVersion,
		MinimumVersion: cfg.License.MinimumVersion,
		DownloadURL:    cfg.License.DefaultDownloadURL,
	}, nil)
	service := license.NewService(st, issuer, cfg.License.TrialDurationDays, nil, logger)

	app := &Application{
		Config:        cfg,
		Store:         st,
		Service:       service,
		Logger:        logger,
		OTelProviders: providers,
	}

	if err := app.setupRouter(); err != nil {
		return nil, err
	}
	app.setupServer()

	return app, nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() error {
	r := chi.NewRouter()

	otelMiddleware, err := custommw.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		return fmt.Errorf("failed to create otel middleware: %w", err)
	}
	metrics := otelMiddleware.Metrics()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StripSlashes)
	r.Use(otelMiddleware.Handler)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(custommw.SecurityHeaders)
	if a.Config.Security.RateLimit.Enabled {
		r.Use(custommw.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	licenseHandler := handlers.NewLicenseHandler(a.Service, metrics, a.Logger)
	updateHandler := handlers.NewUpdateHandler(a.Service, metrics, a.Logger)
	healthHandler := handlers.NewHealthHandler(a.Store, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(custommw.Compress(5))
		r.Use(custommw.Timeout(a.Config.Server.ReadTimeout, a.Logger))

		r.Mount("/license", licenseHandler.Routes())
		r.Mount("/updates", updateHandler.Routes())
	})

	r.Get("/healthz", healthHandler.HealthCheck)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
	return nil
}

// setupServer creates the HTTP server with configured timeouts
func (a *Application) setupServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(ctx, "server listening",
			slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down telemetry",
				slog.String("error", err.Error()))
		}
	}

	if err := a.Store.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "error closing store",
			slog.String("error", err.Error()))
	}

	infrastructure.CloseLogFile()

	a.Logger.InfoContext(ctx, "application shutdown complete",
		slog.Duration("grace_period", a.Config.Server.ShutdownTimeout))
	return nil
}
