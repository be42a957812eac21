package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/miniiam/apiserver/config"
	"github.com/miniiam/apiserver/internal/audit"
	"github.com/miniiam/apiserver/internal/auth"
	"github.com/miniiam/apiserver/internal/db"
	"github.com/miniiam/apiserver/internal/handlers"
	"github.com/miniiam/apiserver/internal/mq"
	"github.com/miniiam/apiserver/internal/services"
	"github.com/miniiam/apiserver/internal/storage"
	"github.com/miniiam/apiserver/internal/store"
	"github.com/miniiam/apiserver/internal/store/memory"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps the HTTP server and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
}

// Services groups the use cases the router exposes.
type Services struct {
	Identity       *services.IdentityService
	AccessRequests *services.AccessRequestService
	Reports        *services.ReportService
}

// New constructs a Server from cfg, connecting to every configured backend.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		if errors.Is(err, auth.ErrMissingSecret) {
			return nil, errors.New("JWT_SECRET is required")
		}
		return nil, err
	}

	st, dbConn, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Server{db: dbConn}

	s.broker, err = mq.Open(ctx, cfg.MQ)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open message queue: %w", err)
	}
	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open object storage: %w", err)
	}

	var publisher audit.Publisher
	if s.broker != nil {
		publisher = s.broker
	}
	ledger := audit.NewLedger(publisher, cfg.MQ.AuditChannel)

	identity, err := services.NewIdentityService(st, auth.NewHasher(cfg.Auth.BcryptCost), issuer, ledger)
	if err != nil {
		s.close()
		return nil, err
	}

	s.router = NewRouter(issuer, Services{
		Identity:       identity,
		AccessRequests: services.NewAccessRequestService(st, ledger),
		Reports:        services.NewReportService(st, objects),
	}, cfg.MetricsEnabled)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server configured",
		"port", port,
		"store", cfg.StoreBackend,
		"mq", cfg.MQ.Backend,
		"storage", cfg.Storage.Backend,
		"metrics", cfg.MetricsEnabled,
	)
	return s, nil
}

// OpenStore returns the configured store. The *sql.DB is nil for the memory
// backend; otherwise the caller owns it and must close it.
func OpenStore(ctx context.Context, cfg config.Config) (store.Store, *sql.DB, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		return memory.New(), nil, nil
	case config.StoreBackendPostgres, "":
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgresStore(dbConn), dbConn, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// NewRouter builds the HTTP routes over svc.
func NewRouter(issuer *auth.Issuer, svc Services, metricsEnabled bool) *chi.Mux {
	authMiddleware := handlers.RequireAuth(issuer)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	if metricsEnabled {
		router.Use(handlers.Metrics)
		router.Handle("/metrics", promhttp.Handler())
	}

	router.Get("/", handlers.Root)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, svc.Identity, authMiddleware)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, svc.Identity, authMiddleware)
	})
	router.Route("/access/requests", func(r chi.Router) {
		handlers.AccessRequestRouter(r, svc.AccessRequests, authMiddleware)
	})
	router.Route("/reports", func(r chi.Router) {
		handlers.ReportRouter(r, svc.Reports, authMiddleware)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	slog.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			slog.Warn("failed to close message queue", "error", err)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
