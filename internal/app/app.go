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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"classpulse/internal/config"
	apierrors "classpulse/internal/errors"
	"classpulse/internal/infrastructure"
	"classpulse/internal/ingest"
	customMiddleware "classpulse/internal/middleware"
	"classpulse/internal/services"
	"classpulse/internal/store"
	handlers "classpulse/internal/transport/http"
)

const (
	Version = "1.0.0"
	AppName = "ClassPulse"
)

// Application is the main application container.
type Application struct {
	Config  *config.Config
	Router  *chi.Mux
	Server  *http.Server
	Logger  *slog.Logger
	Uploads *services.UploadService
	Summary *services.SummaryService
	Store   *store.Store
}

// NewApplication creates a new application instance with dependency
// injection.
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewApplicationWithConfig(ctx, cfg)
}

// NewApplicationWithConfig builds the application from an already loaded
// configuration.
func NewApplicationWithConfig(ctx context.Context, cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.Int("port", cfg.Server.Port))

	app := &Application{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initializeServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the store and the application services.
func (a *Application) initializeServices(ctx context.Context) error {
	st, err := store.New(a.Logger, a.Config.GetDataDir(), a.Config.Store.HistoryCap)
	if err != nil {
		return fmt.Errorf("failed to initialize upload store: %w", err)
	}
	a.Store = st

	engine := ingest.NewEngine(a.Logger, ingest.Config{
		Vocabulary: ingest.Vocabulary{
			NameHeaders:    a.Config.Ingest.NameHeaders,
			MetaHeaders:    a.Config.Ingest.MetaHeaders,
			CurrentSheets:  a.Config.Ingest.CurrentSheets,
			PreviousSheets: a.Config.Ingest.PreviousSheets,
		},
		MinScore: a.Config.Ingest.MinScore,
		MaxScore: a.Config.Ingest.MaxScore,
	})
	a.Uploads = services.NewUploadService(engine, st, a.Logger)

	summary, err := services.NewSummaryService(ctx, a.Config.Summary, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize summary service: %w", err)
	}
	a.Summary = summary

	return nil
}

// setupRouter configures the HTTP router with all middleware and routes.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Server.AllowedOrigins,
	}))

	if a.Config.Server.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Server.RateLimit.RPS,
			a.Config.Server.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		healthHandler := handlers.NewHealthHandler(Version, a.Summary.Enabled(), a.Logger)
		r.Get("/health", healthHandler.HealthCheck)

		errorHandler := apierrors.NewErrorHandler(a.Logger)
		uploadHandler := handlers.NewUploadHandler(
			a.Uploads,
			a.Summary,
			a.Logger,
			errorHandler,
			a.Config.Server.MaxUploadBytes,
		)
		r.Mount("/uploads", uploadHandler.Routes())
	})

	a.Router = r
}

// createServer creates the HTTP server instance.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Run starts the server and blocks until an interrupt or server error.
func (a *Application) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		a.Logger.Info("server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigChan:
		a.Logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	return a.Stop(ctx)
}

// Stop gracefully shuts down the server and closes the log file.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Info("shutting down server")
	if err := a.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.Logger.Info("server stopped")
	return infrastructure.CloseLogFile()
}
