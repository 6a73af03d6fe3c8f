package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pms/internal/domain/audit"
	"pms/internal/domain/auth"
	"pms/internal/domain/notifications"
	"pms/internal/domain/portfolio"
	"pms/internal/domain/rates"
	"pms/internal/domain/reports"
	"pms/internal/platform/config"
	"pms/internal/platform/db"
	"pms/internal/platform/email"
	"pms/internal/platform/metrics"
	"pms/internal/transport/http/api"
	audithandler "pms/internal/transport/http/handlers/audit"
	authhandler "pms/internal/transport/http/handlers/auth"
	notificationshandler "pms/internal/transport/http/handlers/notifications"
	portfoliohandler "pms/internal/transport/http/handlers/portfolio"
	rateshandler "pms/internal/transport/http/handlers/rates"
	reportshandler "pms/internal/transport/http/handlers/reports"
	usershandler "pms/internal/transport/http/handlers/users"
	"pms/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Router  http.Handler
	Metrics *metrics.Collector
}

// New connects, migrates, seeds, and assembles the router. The returned App
// owns the pool; call Close when done.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	collector := metrics.New()

	authStore := auth.NewStore(pool)
	portfolioStore := portfolio.NewStore(pool)
	ratesService := rates.NewService(rates.NewStore(pool))
	auditService := audit.New(pool)
	notifyService := notifications.New(notifications.NewStore(pool), email.New(cfg))
	notifyService.DefaultFrom = cfg.EmailFrom
	reportsService := reports.NewService(reports.NewStore(pool), ratesService)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(collector))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.With(middleware.RequireRole(auth.RoleAdmin)).Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, collector.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		authhandler.NewHandler(authStore, cfg.JWTSecret, cfg.TokenTTL).RegisterRoutes(r)
		usershandler.NewHandler(authStore, auditService).RegisterRoutes(r)
		portfoliohandler.NewHandler(portfolioStore, auditService).RegisterRoutes(r)
		rateshandler.NewHandler(ratesService, notifyService, auditService, collector).RegisterRoutes(r)
		reportshandler.NewHandler(reportsService).RegisterRoutes(r)
		notificationshandler.NewHandler(notifyService).RegisterRoutes(r)
		audithandler.NewHandler(auditService).RegisterRoutes(r)
	})

	return &App{Config: cfg, DB: pool, Router: router, Metrics: collector}, nil
}

func (a *App) Close() {
	a.DB.Close()
}

// Run builds the app from the environment and serves until the listener fails.
func Run() error {
	cfg := config.Load()

	app, err := New(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	slog.Info("server listening", "addr", cfg.Addr, "env", cfg.Environment)
	return http.ListenAndServe(cfg.Addr, app.Router)
}
