package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otcheredev/incident-desk/internal/auth"
	"github.com/otcheredev/incident-desk/internal/cache"
	"github.com/otcheredev/incident-desk/internal/config"
	"github.com/otcheredev/incident-desk/internal/database"
	"github.com/otcheredev/incident-desk/internal/handlers"
	"github.com/otcheredev/incident-desk/internal/metrics"
	"github.com/otcheredev/incident-desk/internal/middleware"
	"github.com/otcheredev/incident-desk/internal/repository"
	"github.com/otcheredev/incident-desk/internal/services"
	"github.com/otcheredev/incident-desk/internal/tenancy"
	"github.com/otcheredev/incident-desk/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting incident desk")

	// Connect to database
	gormDB, err := database.Connect(cfg.DatabaseConnection())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get database handle")
	}

	pool := database.NewConnectionPool(sqlDB, cfg.PoolConfig())
	defer pool.Close()

	// Metrics are always collected; the endpoint is optional
	var registry prometheus.Registerer = prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		registry = prometheus.DefaultRegisterer
	}
	appMetrics := metrics.New(registry)
	metrics.RegisterPoolStats(registry, pool)

	scopes := database.NewScopeManager(gormDB, pool,
		database.WithObserver(appMetrics),
		database.WithResetTimeout(cfg.Database.ResetTimeout),
	)

	if cfg.Database.AutoMigrate {
		if err := database.MigratePublic(context.Background(), scopes, cfg.Database.PublicSchema); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate public schema")
		}
		log.Info().Str("schema", cfg.Database.PublicSchema).Msg("Public schema migrated")
	}

	// Initialize cache
	var cacheImpl cache.Cache
	if cfg.Cache.Type == "redis" {
		cacheImpl, err = cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Msg("Redis cache initialized")
	} else {
		cacheImpl = cache.NewMemoryCache()
		log.Info().Msg("Memory cache initialized")
	}
	defer cacheImpl.Close()

	// Initialize repositories
	tenantRepo := repository.NewTenantRepository(scopes, cfg.Database.PublicSchema)
	userRepo := repository.NewUserRepository()
	adminRepo := repository.NewSuperAdminRepository(scopes, cfg.Database.PublicSchema)
	auditRepo := repository.NewAuditRepository(scopes, cfg.Database.PublicSchema)
	incidentRepo := repository.NewIncidentRepository()

	// Tenancy pipeline
	verifier := auth.NewVerifier(
		auth.Config{
			Secret: cfg.Auth.JWTSecret,
			TTL:    cfg.Auth.TokenTTL,
			Issuer: cfg.Auth.Issuer,
		},
		auth.WithRevocations(auth.NewCacheRevocations(cacheImpl)),
	)
	resolver := tenancy.NewResolver()
	validator := tenancy.NewValidator(tenantRepo)

	pipelineOpts := []tenancy.PipelineOption{tenancy.WithRecorder(appMetrics)}
	var authOpts []services.AuthOption
	if cfg.Auth.AllowTenantOverride {
		pipelineOpts = append(pipelineOpts, tenancy.WithTenantOverride(auditRepo))
		authOpts = append(authOpts, services.WithImpersonation(auditRepo))
		log.Warn().Msg("Tenant override enabled for impersonation credentials")
	}
	pipeline := tenancy.NewPipeline(
		verifier,
		resolver,
		validator,
		scopes,
		tenancy.NewPrincipalLoader(userRepo),
		pipelineOpts...,
	)

	// Initialize services
	authService := services.NewAuthService(verifier, validator, scopes, userRepo, adminRepo, authOpts...)
	incidentService := services.NewIncidentService(incidentRepo)
	auditService := services.NewAuditService(auditRepo)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(pool, cacheImpl)
	authHandler := handlers.NewAuthHandler(authService, resolver)
	incidentHandler := handlers.NewIncidentHandler(incidentService)
	adminHandler := handlers.NewAdminHandler(authService, auditService, resolver)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(appMetrics.Middleware)
	r.Use(chimiddleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints (no authentication required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Credential issue (no credential yet)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/admin/login", authHandler.AdminLogin)

		// Everything else runs behind the tenancy pipeline
		r.Group(func(r chi.Router) {
			r.Use(middleware.TenantContext(pipeline))

			r.Get("/auth/me", authHandler.Me)
			r.Post("/auth/logout", authHandler.Logout)

			r.With(middleware.RequirePermission("incidents:read")).Get("/incidents", incidentHandler.ListIncidents)
			r.With(middleware.RequirePermission("incidents:create")).Post("/incidents", incidentHandler.CreateIncident)

			// Operator endpoints
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireSuperAdmin)

				r.Post("/impersonations", adminHandler.IssueImpersonation)
				r.Get("/tenants/{tenantID}/audit-logs", adminHandler.ListAuditLogs)
			})
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown; in-flight requests release their scoped connections
	// before the pool closes.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
