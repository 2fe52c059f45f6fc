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
	"golang.org/x/sync/errgroup"

	"allocator/internal/config"
	apperrors "allocator/internal/errors"
	"allocator/internal/infrastructure"
	"allocator/internal/ingest"
	appmiddleware "allocator/internal/middleware"
	"allocator/internal/services"
	"allocator/internal/session"
	handlers "allocator/internal/transport/http"
	"allocator/internal/validation"
	ws "allocator/internal/websocket"
)

// Application represents the main application container
type Application struct {
	Config            *config.Config
	Router            *chi.Mux
	Server            *http.Server
	Store             *session.Store
	AllocationService *services.AllocationService
	HealthService     *services.HealthService
	WebSocketHub      *ws.Hub
	OTelProviders     *infrastructure.OTelProviders
	Metrics           *infrastructure.BusinessMetrics
	Logger            *slog.Logger

	errorHandler *apperrors.ErrorHandler
	wsHandler    *ws.Handler
	cancel       context.CancelFunc
	group        *errgroup.Group
}

// NewApplication wires every component from cfg. A nil cfg is loaded from
// the environment and the optional config file.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = logger.With(slog.String("service", config.AppName))

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize opentelemetry: %w", err)
	}
	metrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		OTelProviders: providers,
		Metrics:       metrics,
		Logger:        logger,
		errorHandler:  apperrors.NewErrorHandler(logger, cfg.Logging.Development),
	}

	app.initializeServices()
	app.setupRouter()
	app.createServer()

	logger.Info("application initialized",
		slog.String("version", config.AppVersion),
		slog.Int("port", cfg.Server.Port),
		slog.String("schema_profile", cfg.Engine.SchemaProfile))

	return app, nil
}

// initializeServices builds the session store, the engine services and the hub
func (a *Application) initializeServices() {
	cfg := a.Config

	a.WebSocketHub = ws.NewHub(a.Logger, a.Metrics)

	a.Store = session.NewStore(session.Options{
		TTL: cfg.Session.TTL,
		Max: cfg.Session.Max,
		OnEvict: func(id, reason string) {
			infrastructure.RecordSessionDelta(context.Background(), a.Metrics, -1)
			a.WebSocketHub.CloseSession(id)
		},
	}, a.Logger)

	a.AllocationService = services.NewAllocationService(services.AllocationDeps{
		Store:    a.Store,
		Ingestor: ingest.New(ingest.Options{MaxRows: cfg.Engine.MaxRows, MaxColumns: cfg.Engine.MaxColumns}, a.Logger),
		Validator: validation.NewFileValidator(validation.UploadRules{
			MaxBytes:          cfg.Upload.MaxBytes,
			AllowedExtensions: cfg.Upload.AllowedExtensions,
		}, a.Logger),
		Engine:   cfg.Engine,
		Export:   cfg.Export,
		Metrics:  a.Metrics,
		Notifier: a.WebSocketHub,
		Logger:   a.Logger,
	})

	a.HealthService = services.NewHealthService(config.AppVersion, a.Store, a.WebSocketHub, a.Logger)

	a.wsHandler = ws.NewHandler(
		a.WebSocketHub,
		a.AllocationService,
		cfg.WebSocket,
		cfg.Security.AllowedOrigins,
		cfg.Logging.Development,
		a.errorHandler,
		a.Logger,
	)
}

// setupRouter configures the HTTP router with middleware and routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(appmiddleware.RequestID)
	r.Use(appmiddleware.RealIP)

	// WebSocket upgrades must not pass through Timeout or Compress
	r.With(appmiddleware.WebSocketTraceMiddleware(a.Logger)).Get("/ws", a.wsHandler.ServeHTTP)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(appmiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics).Handler)
		r.Use(appmiddleware.StructuredLogger(a.Logger))
		r.Use(appmiddleware.Recoverer(a.errorHandler))
		r.Use(appmiddleware.SecurityHeaders)
		if a.Config.Security.EnableCORS {
			r.Use(appmiddleware.CORS(a.getCORSConfig()))
		}
		if rl := a.Config.Security.RateLimit; rl.Enabled {
			r.Use(appmiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger, a.errorHandler).Handler)
		}

		r.Route("/api", a.setupAPIRoutes)
	})

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	a.Router = r
}

// setupAPIRoutes mounts the REST handlers under /api
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(appmiddleware.Compress(5, "application/json", "text/csv"))
	r.Use(appmiddleware.Timeout(a.Config.Server.RequestTimeout, a.errorHandler))

	health := handlers.NewHealthHandler(a.HealthService, a.Logger)
	r.Mount("/health", health.Routes())
	r.Get("/version", health.Version)

	validator := appmiddleware.NewValidationMiddleware(a.Logger, a.errorHandler)
	sessions := handlers.NewSessionHandler(a.AllocationService, validator, a.errorHandler, a.Config.Upload.MaxBytes, a.Logger)
	r.Mount("/sessions", sessions.Routes())
}

func (a *Application) getCORSConfig() appmiddleware.CORSConfig {
	return appmiddleware.CORSConfig{
		AllowedOrigins:   a.Config.Security.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "Location", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

func (a *Application) createServer() {
	s := a.Config.Server
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", s.Port),
		Handler:        a.Router,
		ReadTimeout:    s.ReadTimeout,
		WriteTimeout:   s.WriteTimeout,
		IdleTimeout:    s.IdleTimeout,
		MaxHeaderBytes: s.MaxHeaderBytes,
	}
}

// Start launches the hub, the session janitor and the HTTP server.
// It returns once they are running; Wait reports the first failure.
func (a *Application) Start(ctx context.Context) error {
	if a.group != nil {
		return errors.New("application already started")
	}
	ctx, a.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	a.group = g

	g.Go(func() error { return a.WebSocketHub.Run(gctx) })
	g.Go(func() error { return a.Store.Run(gctx, a.Config.Session.JanitorInterval) })
	g.Go(func() error {
		a.Logger.Info("starting HTTP server", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	return nil
}

// Wait blocks until every background loop has returned
func (a *Application) Wait() error {
	if a.group == nil {
		return nil
	}
	err := a.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop shuts the server down, ends the background loops and flushes telemetry
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := a.OTelProviders.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("opentelemetry shutdown: %w", err))
	}

	a.Logger.Info("application stopped", slog.Int("sessions_dropped", a.Store.Len()))
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	return errors.Join(errs...)
}

// Run starts the application and blocks until SIGINT or SIGTERM
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- a.group.Wait() }()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case runErr = <-done:
		if runErr != nil {
			a.Logger.Error("background loop failed", slog.String("error", runErr.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Stop(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// ServeHTTP lets tests drive the full router without a listener
func (a *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.Router.ServeHTTP(w, r)
}
