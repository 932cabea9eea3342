package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Harshitk-cp/switchboard/internal/api/handlers"
	mw "github.com/Harshitk-cp/switchboard/internal/api/middleware"
	"github.com/Harshitk-cp/switchboard/internal/buildconfig"
	"github.com/Harshitk-cp/switchboard/internal/config"
	"github.com/Harshitk-cp/switchboard/internal/domain"
	"github.com/Harshitk-cp/switchboard/internal/gateway"
	"github.com/Harshitk-cp/switchboard/internal/origin"
	"github.com/Harshitk-cp/switchboard/internal/protocol"
	"github.com/Harshitk-cp/switchboard/internal/service"
	"github.com/Harshitk-cp/switchboard/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports database reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the router needs. NewApp builds it from config; tests
// build it by hand.
type Deps struct {
	DB          Pinger
	Sessions    domain.SessionStore
	Diagnostics domain.DiagnosticStore
	Dashboard   *service.DashboardService
	Gateway     *gateway.Gateway
	RelayLimit  *mw.RateLimiter
	Registry    *prometheus.Registry
	Logger      *zap.Logger
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router  *chi.Mux
	Flusher *service.DiagnosticsFlusher
	Gateway *gateway.Gateway

	limiter     *mw.RateLimiter
	stopCleanup chan struct{}
}

// NewApp wires the dashboard from process configuration. It fails when the
// origin table cannot serve every active module kind.
func NewApp(db *pgxpool.Pool, logger *zap.Logger) (*App, error) {
	env, err := config.Environment()
	if err != nil {
		return nil, err
	}
	active, err := config.ActiveModules()
	if err != nil {
		return nil, err
	}

	resolver, err := origin.NewResolver(config.OriginSnapshot(), active...)
	if err != nil {
		return nil, err
	}
	allowed, err := resolver.AllowedOrigins("", env, active)
	if err != nil {
		return nil, err
	}
	logger.Info("module origins resolved",
		zap.String("environment", string(env)),
		zap.Strings("allowed_origins", allowed))

	registry, err := protocol.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("compile message schemas: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	diagLog := gateway.NewDiagnosticLog(0, 0)
	gw := gateway.New(registry, logger,
		gateway.WithMetrics(gateway.NewMetrics(reg)),
		gateway.WithDiagnosticLog(diagLog),
	)

	sessionStore := store.NewSessionStore(db)
	diagStore := store.NewDiagnosticStore(db)

	flusher := service.NewDiagnosticsFlusher(diagLog, diagStore, logger)
	flusher.SetInterval(config.DiagnosticsFlushInterval())

	limiter := mw.NewRateLimiter(config.RateLimitRPS(), config.RateLimitBurst())

	r := NewRouter(Deps{
		DB:          db,
		Sessions:    sessionStore,
		Diagnostics: diagStore,
		Dashboard:   service.NewDashboardService(resolver, gw, env, active, logger),
		Gateway:     gw,
		RelayLimit:  limiter,
		Registry:    reg,
		Logger:      logger,
	})

	return &App{
		Router:      r,
		Flusher:     flusher,
		Gateway:     gw,
		limiter:     limiter,
		stopCleanup: make(chan struct{}),
	}, nil
}

// Start launches background work: diagnostics persistence and rate limiter pruning.
func (app *App) Start() {
	app.Flusher.Start()
	app.limiter.StartCleanup(5*time.Minute, app.stopCleanup)
}

func (app *App) Stop() {
	close(app.stopCleanup)
	app.Flusher.Stop()
}

func NewRouter(d Deps) *chi.Mux {
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	if d.RelayLimit == nil {
		d.RelayLimit = mw.NewRateLimiter(config.RateLimitRPS(), config.RateLimitBurst())
	}

	moduleHandler := handlers.NewModuleHandler(d.Dashboard, d.Logger)
	frameHandler := handlers.NewFrameHandler(d.Dashboard, d.Logger)
	relayHandler := handlers.NewRelayHandler(d.Gateway, d.Logger)
	diagHandler := handlers.NewDiagnosticsHandler(d.Dashboard, d.Diagnostics, d.Logger)

	metricsCollector := mw.NewMetricsCollector(d.Registry)

	r := chi.NewRouter()

	// No RealIP: the relay limiter keys on the connection peer, and forwarding
	// headers from an untrusted client would let a frame pick its own key.
	r.Use(mw.RequestID)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(d.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler(d.DB))
	r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		// Module frames post here. No session: the gateway authenticates by origin.
		r.With(mw.RateLimitWith(d.RelayLimit, mw.ClientIP, http.HandlerFunc(relayHandler.Throttled))).
			Post("/frames/{id}/messages", relayHandler.Post)

		r.Group(func(r chi.Router) {
			r.Use(mw.SessionAuth(d.Sessions))

			r.Get("/modules", moduleHandler.List)

			r.Post("/frames", frameHandler.Mount)
			r.Get("/frames/{id}", frameHandler.Get)
			r.Delete("/frames/{id}", frameHandler.Unmount)
			r.Get("/frames/{id}/events", frameHandler.Events)

			r.Get("/diagnostics", diagHandler.List)
		})
	})

	return r
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": "database unreachable"})
				return
			}
		}

		body := map[string]string{"status": "ok"}
		for k, v := range buildconfig.VersionInfo() {
			body[k] = v
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// Ensure stores satisfy interfaces at compile time.
var (
	_ domain.SessionStore    = (*store.SessionStore)(nil)
	_ domain.DiagnosticStore = (*store.DiagnosticStore)(nil)
)
