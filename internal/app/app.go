package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"ridex/internal/config"
	apierrors "ridex/internal/errors"
	"ridex/internal/infrastructure"
	customMiddleware "ridex/internal/middleware"
	"ridex/internal/services"
	"ridex/internal/store"
	handlers "ridex/internal/transport/http"
	ws "ridex/internal/websocket"
)

// Shutdown step names, used in logs, metrics and CloseError.Step
const (
	stepDrainListener = "drainingListener"
	stepCloseGateway  = "closingGateway"
	stepCloseStore    = "closingStore"
)

// Listener describes the bound HTTP listener
type Listener struct {
	Addr net.Addr
}

// Port returns the bound TCP port
func (l *Listener) Port() int {
	if tcp, ok := l.Addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Collaborators are the route groups implemented outside the core. A nil
// handler leaves its group unmounted.
type Collaborators struct {
	Auth  http.Handler
	Rides http.Handler
	Users http.Handler
}

// Option configures an Application
type Option func(*Application)

// WithCollaborators mounts the domain route groups
func WithCollaborators(c Collaborators) Option {
	return func(a *Application) { a.collaborators = c }
}

// WithStoreOptions passes options to the store connector
func WithStoreOptions(opts ...store.Option) Option {
	return func(a *Application) { a.storeOpts = append(a.storeOpts, opts...) }
}

// Application owns the lifecycle of the RideX API process: store bring-up,
// router wiring, the HTTP listener and ordered shutdown.
type Application struct {
	cfg    *config.Config
	logger *slog.Logger

	otel       *infrastructure.OTelProviders
	metrics    *infrastructure.LifecycleMetrics
	errHandler *apierrors.ErrorHandler

	connector *store.Connector
	gateway   *ws.Gateway
	health    *services.HealthService

	collaborators Collaborators
	storeOpts     []store.Option

	phase *phaseMachine

	server   *http.Server
	listener net.Listener
	addr     atomicAddr
	served   chan struct{}
	serveErr chan error
}

// New wires the components. Nothing is dialed or bound until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &Application{
		cfg:      cfg,
		logger:   infrastructure.WithComponent(logger, "app"),
		served:   make(chan struct{}),
		serveErr: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(a)
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.NewOTelConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.otel = providers

	if a.metrics, err = infrastructure.CreateLifecycleMetrics(providers.Meter); err != nil {
		return nil, fmt.Errorf("failed to create lifecycle metrics: %w", err)
	}
	wsMetrics, err := ws.NewOTelMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket metrics: %w", err)
	}

	a.errHandler = apierrors.NewErrorHandler(logger, cfg.IsDevelopment())
	a.connector = store.NewConnector(cfg.Store, logger, append([]store.Option{store.WithMetrics(a.metrics)}, a.storeOpts...)...)
	a.gateway = ws.NewGateway(cfg.WebSocket, logger, wsMetrics, ws.WithErrorHandler(a.errHandler))
	a.health = services.NewHealthService(a.connector, a.gateway, cfg.Environment, logger,
		services.WithHealthMetrics(a.metrics))
	a.phase = newPhaseMachine(func(from, to Phase) {
		a.metrics.RecordPhase(context.Background(), from.String(), to.String())
		a.logger.Debug("Lifecycle phase changed", slog.String("from", from.String()), slog.String("to", to.String()))
	})

	return a, nil
}

// Phase returns the current lifecycle phase
func (a *Application) Phase() Phase {
	return a.phase.Current()
}

// Done is closed once the application is terminated or failed
func (a *Application) Done() <-chan struct{} {
	return a.phase.Done()
}

// Addr returns the bound listener address, or nil before the listener is bound
func (a *Application) Addr() net.Addr {
	return a.addr.Load()
}

// Store exposes the connector so collaborators can obtain a database handle
func (a *Application) Store() *store.Connector {
	return a.connector
}

// Gateway exposes the realtime gateway
func (a *Application) Gateway() *ws.Gateway {
	return a.gateway
}

// Start brings the service up: the store first, then the gateway and
// routes, and finally the listener. Either everything is ready and the
// listener is bound, or whatever was acquired is released, the phase is
// failed and a *errors.StartupError is returned. There is no retry.
func (a *Application) Start(ctx context.Context) (*Listener, error) {
	if err := a.phase.Transition(PhaseInitializing, PhaseStoreConnecting); err != nil {
		return nil, fmt.Errorf("%w: %v", apierrors.ErrAlreadyStarted, err)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.StartupTimeout)
	defer cancel()

	a.logStartupBanner(ctx)

	if err := a.connector.Connect(ctx); err != nil {
		return nil, a.failStart(ctx, start, err)
	}

	router := a.setupRouter()

	if err := ctx.Err(); err != nil {
		return nil, a.failStart(ctx, start, err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return nil, a.failStart(ctx, start, fmt.Errorf("failed to bind port %d: %w", a.cfg.Server.Port, err))
	}
	a.listener = ln

	a.server = &http.Server{
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}

	if err := a.phase.Transition(PhaseStoreConnecting, PhaseReady); err != nil {
		ln.Close()
		a.listener = nil
		return nil, a.failStart(ctx, start, err)
	}
	a.addr.Store(ln.Addr())
	a.gateway.Open()

	go a.serve(ln)

	a.metrics.RecordStartup(ctx, time.Since(start), nil)
	a.logger.InfoContext(ctx, "Server running",
		slog.Int("port", ln.Addr().(*net.TCPAddr).Port),
		slog.Duration("startup", time.Since(start)))

	return &Listener{Addr: ln.Addr()}, nil
}

func (a *Application) serve(ln net.Listener) {
	defer close(a.served)
	if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("Server error", slog.String("error", err.Error()))
		a.serveErr <- err
	}
}

// failStart releases what Start acquired and moves the phase to failed
func (a *Application) failStart(ctx context.Context, start time.Time, cause error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(cause, apierrors.ErrStartupTimeout) {
		cause = fmt.Errorf("%w after %s: %w", apierrors.ErrStartupTimeout, a.cfg.Server.StartupTimeout, cause)
	}

	if a.listener != nil {
		a.listener.Close()
		a.listener = nil
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Store.CloseTimeout)
	defer cancel()
	if err := a.connector.Close(closeCtx); err != nil {
		a.logger.WarnContext(ctx, "Failed to release store after startup failure", slog.String("error", err.Error()))
	}

	from, err := a.phase.Fail()
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to record startup failure", slog.String("error", err.Error()))
	}

	startupErr := apierrors.NewStartupError(from.String(), cause)
	a.metrics.RecordStartup(ctx, time.Since(start), startupErr)
	a.logger.ErrorContext(ctx, "Startup failed",
		slog.String("phase", from.String()),
		slog.String("error", cause.Error()))
	return startupErr
}

// Shutdown tears the service down in reverse dependency order: drain the
// listener, close gateway channels, close the store. Each step has its own
// bound and a failing step does not stop the next one. Only the first call
// from ready does the work; every other call returns nil at once. ctx should
// not be the signal context, which is already cancelled when this runs.
func (a *Application) Shutdown(ctx context.Context, reason string) error {
	if err := a.phase.Transition(PhaseReady, PhaseDrainingListener); err != nil {
		a.logger.DebugContext(ctx, "Shutdown skipped",
			slog.String("reason", reason),
			slog.String("phase", a.Phase().String()))
		return nil
	}

	start := time.Now()
	a.logger.InfoContext(ctx, "Shutting down", slog.String("reason", reason))

	var errs []error
	record := func(step string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		stepStart := time.Now()
		err := fn(stepCtx)
		elapsed := time.Since(stepStart)
		a.metrics.RecordShutdownStep(ctx, step, elapsed, err)

		if err == nil {
			a.logger.InfoContext(ctx, "Shutdown step completed",
				slog.String("step", step),
				slog.Duration("elapsed", elapsed))
			return
		}

		var closeErr *apierrors.CloseError
		if !errors.As(err, &closeErr) {
			closeErr = apierrors.NewCloseError(step, elapsed, err)
		}
		a.logger.ErrorContext(ctx, "Shutdown step failed",
			slog.String("step", step),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		errs = append(errs, closeErr)
	}

	record(stepDrainListener, a.cfg.Server.DrainTimeout, a.drainListener)
	a.advance(PhaseDrainingListener, PhaseClosingGateway)

	record(stepCloseGateway, a.cfg.WebSocket.CloseTimeout, a.gateway.CloseAll)
	a.advance(PhaseClosingGateway, PhaseClosingStore)

	record(stepCloseStore, a.cfg.Store.CloseTimeout, a.connector.Close)

	otelCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	if err := a.otel.Shutdown(otelCtx); err != nil {
		a.logger.WarnContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}
	cancel()

	a.advance(PhaseClosingStore, PhaseTerminated)

	err := errors.Join(errs...)
	a.logger.InfoContext(ctx, "Shutdown complete",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("failed_steps", len(errs)))
	return err
}

// drainListener stops accepting connections and waits for in-flight
// requests. When the drain window closes the remaining connections are cut.
func (a *Application) drainListener(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if err != nil {
		a.server.Close()
	}
	select {
	case <-a.served:
	case <-ctx.Done():
	}
	return err
}

func (a *Application) advance(from, to Phase) {
	if err := a.phase.Transition(from, to); err != nil {
		a.logger.Error("Unexpected phase transition failure", slog.String("error", err.Error()))
	}
}

// Run starts the application, waits for SIGINT, SIGTERM, cancellation of
// ctx or a fatal serve error, shuts down and returns the process exit code.
// Shutdown is bounded by the force exit timeout.
func (a *Application) Run(ctx context.Context) int {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.Start(sigCtx); err != nil {
		return 1
	}

	exitCode := 0
	var reason string
	select {
	case <-sigCtx.Done():
		reason = "signal received"
		if ctx.Err() != nil {
			reason = "context cancelled"
		}
	case err := <-a.serveErr:
		reason = "server error: " + err.Error()
		exitCode = 1
	}

	// Later signals are swallowed so a second Ctrl+C cannot interrupt the drain
	repeated := make(chan os.Signal, 1)
	signal.Notify(repeated, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(repeated)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ForceExitTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- a.Shutdown(shutdownCtx, reason) }()

	for {
		select {
		case err := <-result:
			if err != nil {
				return 1
			}
			return exitCode
		case sig := <-repeated:
			a.logger.Warn("Shutdown already in progress, ignoring signal", slog.String("signal", sig.String()))
		case <-shutdownCtx.Done():
			a.logger.Error("Shutdown did not finish in time, forcing exit",
				slog.Duration("timeout", a.cfg.Server.ForceExitTimeout))
			return 1
		}
	}
}

// setupRouter builds the router: middleware, the gateway on the same
// listener, then route groups in fixed order.
func (a *Application) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Follow ordering: RequestID → RealIP → OTel → Logger → Recoverer
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.otel, a.metrics).Handler)
	r.Use(customMiddleware.StructuredLogger(a.logger))
	r.Use(customMiddleware.Recoverer(a.errHandler))
	r.Use(customMiddleware.SecurityHeaders)
	r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
		AllowedOrigins:   a.cfg.AllowedOrigins(),
		AllowedMethods:   a.cfg.Security.AllowedMethods,
		AllowCredentials: true,
		Logger:           a.logger,
	}))
	r.Use(a.gateway.Decorate)

	r.NotFound(a.errHandler.NotFound)
	r.MethodNotAllowed(a.errHandler.MethodNotAllowed)

	a.gateway.Attach(r, ws.CORSPolicy{
		AllowedOrigins:   a.cfg.AllowedOrigins(),
		AllowedMethods:   a.cfg.Security.AllowedMethods,
		AllowCredentials: true,
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Group(func(r chi.Router) {
			if a.cfg.Security.RateLimit.Enabled {
				r.Use(customMiddleware.NewRateLimiter(
					a.cfg.Security.RateLimit.RPS,
					a.cfg.Security.RateLimit.Burst,
					a.logger,
				).Handler)
			}
			r.Use(customMiddleware.JSONBody(config.DefaultMaxBodyBytes, a.errHandler))

			a.mount(r, "/auth", a.collaborators.Auth, false)
			a.mount(r, "/rides", a.collaborators.Rides, true)
			a.mount(r, "/users", a.collaborators.Users, true)
		})

		r.Mount("/health", handlers.NewHealthHandler(a.health, a.logger).Routes())
	})

	if metrics := handlers.NewMetricsHandler(a.otel.PrometheusHTTP, a.errHandler); metrics.Enabled() {
		r.Handle("/metrics", metrics)
	}

	r.Get("/", handlers.Banner(config.LivenessBanner))

	return r
}

func (a *Application) mount(r chi.Router, pattern string, h http.Handler, needsStore bool) {
	if h == nil {
		a.logger.Debug("Route group not provided", slog.String("pattern", "/api"+pattern))
		return
	}
	if needsStore {
		r = r.With(handlers.RequireStore(a.connector, a.errHandler))
	}
	r.Mount(pattern, h)
}

func (a *Application) logStartupBanner(ctx context.Context) {
	sms := "DISABLED"
	if a.cfg.SMSNotificationsEnabled() {
		sms = "ENABLED"
	}
	a.logger.InfoContext(ctx, "Starting "+config.AppName,
		slog.String("version", config.AppVersion),
		slog.Int("port", a.cfg.Server.Port),
		slog.String("environment", a.cfg.Environment),
		slog.String("sms_notifications", sms),
		slog.String("frontend_url", a.cfg.Security.FrontendURL))
}
