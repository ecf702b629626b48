package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/packsmith/packsmith/internal/api"
	"github.com/packsmith/packsmith/internal/api/middleware"
	"github.com/packsmith/packsmith/internal/auth"
	"github.com/packsmith/packsmith/internal/baseurl"
	"github.com/packsmith/packsmith/internal/config"
	"github.com/packsmith/packsmith/internal/logging"
	"github.com/packsmith/packsmith/internal/metrics"
	"github.com/packsmith/packsmith/internal/store"
)

// Server wraps the HTTP server and its wired components.
type Server struct {
	cfg      *config.Config
	log      *logging.Logger
	store    *store.Store
	users    *auth.Users
	sessions *auth.Sessions
	httpSrv  *http.Server
}

// New builds a fully wired server from the configuration.
func New(cfg *config.Config, log *logging.Logger) (*Server, error) {
	st, err := store.Open(cfg.Storage.Root, cfg.Storage.DuplicatePolicy, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open package store: %w", err)
	}

	users, err := auth.OpenUsers(cfg.Storage.Root, auth.ZxcvbnScorer{}, cfg.Auth.MinPasswordScore, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open user store: %w", err)
	}
	if err := seedInitialAdmin(cfg, users, log); err != nil {
		return nil, err
	}

	sessions := auth.NewSessions(cfg.Auth.SessionTTL, cfg.Auth.RememberTTL)

	resolver, err := baseurl.New(cfg.Server.BaseURL, cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL configuration: %w", err)
	}

	mode, err := auth.ParseMode(cfg.Auth.Mode)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry, st)

	handlers := api.NewHandlers(st, users, sessions, resolver, cfg, m, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(metrics.Middleware(m))
	router.Use(middleware.CORS())
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}
	router.Use(middleware.Identify(users, sessions))

	registerRoutes(router, handlers, mode, users, m, registry)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	return &Server{
		cfg:      cfg,
		log:      log.Named("server"),
		store:    st,
		users:    users,
		sessions: sessions,
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func registerRoutes(router *gin.Engine, h *api.Handlers, mode auth.Mode, users *auth.Users, m *metrics.Metrics, registry *prometheus.Registry) {
	read := middleware.Require(mode, auth.RoleRead, users, m)
	publish := middleware.Require(mode, auth.RolePublish, users, m)
	admin := middleware.Require(mode, auth.RoleAdmin, users, m)
	self := middleware.RequireIdentity(auth.RoleRead, users, m)

	// NuGet v3 protocol surface.
	router.GET("/index.json", read, h.ServiceIndex)
	router.GET("/search", read, h.Search)
	router.GET("/registration/:id/:file", read, h.Registration)
	router.GET("/package/:id/:version", read, h.PackageVersions)
	router.GET("/package/:id/:version/:filename", read, h.DownloadPackage)
	router.PUT("/publish", publish, h.Publish)
	router.POST("/publish", publish, h.Publish)

	// Administration API.
	apiGroup := router.Group("/api")
	apiGroup.POST("/login", h.Login)
	apiGroup.POST("/logout", h.Logout)
	apiGroup.GET("/session", h.SessionStatus)
	apiGroup.GET("/users", admin, h.ListUsers)
	apiGroup.POST("/users", admin, h.CreateUser)
	apiGroup.PUT("/users/:username", admin, h.UpdateUser)
	apiGroup.DELETE("/users/:username", admin, h.DeleteUser)
	apiGroup.GET("/credentials", self, h.ListCredentials)
	apiGroup.POST("/credentials", self, h.CreateCredential)
	apiGroup.DELETE("/credentials/:label", self, h.DeleteCredential)

	// Operational surface.
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info("registry listening",
		zap.String("addr", s.httpSrv.Addr),
		zap.String("authMode", s.cfg.Auth.Mode),
		zap.String("duplicatePolicy", s.cfg.Storage.DuplicatePolicy),
		zap.Int("packages", s.store.Count()))

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	return s.httpSrv.Shutdown(ctx)
}

// seedInitialAdmin bootstraps the first admin account on an empty user
// store so a locked-down server is reachable after first start.
func seedInitialAdmin(cfg *config.Config, users *auth.Users, log *logging.Logger) error {
	if cfg.Auth.InitialAdmin == "" || users.Count() > 0 {
		return nil
	}
	if cfg.Auth.InitialAdminPassword == "" {
		return fmt.Errorf("initial admin %q configured without a password", cfg.Auth.InitialAdmin)
	}
	if err := users.Create(cfg.Auth.InitialAdmin, cfg.Auth.InitialAdminPassword, auth.RoleAdmin); err != nil {
		return fmt.Errorf("failed to seed initial admin: %w", err)
	}
	log.Info("seeded initial admin account", zap.String("username", cfg.Auth.InitialAdmin))
	return nil
}
