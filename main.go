package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint-server/src/config"
	"github.com/keymint/keymint-server/src/handlers"
	"github.com/keymint/keymint-server/src/logging"
	"github.com/keymint/keymint-server/src/middleware"
	"github.com/keymint/keymint-server/src/models"
	"github.com/keymint/keymint-server/src/services"
	"github.com/keymint/keymint-server/src/store"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize structured logging
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	log.Info().
		Int("port", cfg.Port).
		Str("log_level", cfg.LogLevel).
		Msg("starting server")

	// Initialize the backing store
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer st.Close()

	log.Info().Msg("store connected")

	// Initialize JWT secret in middleware
	if err := middleware.SetJWTSecret(cfg.JWTSecret); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize JWT secret")
	}

	// Initialize services
	keyService := services.NewKeyService(st, services.KeyServiceConfig{
		MinExpiryHorizon: cfg.MinExpiryHorizon,
	})
	rotationService := services.NewRotationService(keyService, services.RotationConfig{
		DefaultGraceDays: cfg.DefaultGraceDays,
		MaxGraceDays:     cfg.MaxGraceDays,
	})
	auditService := services.NewAuditService(st)
	adminService := services.NewAdminService(st)
	cleanupService := services.NewCleanupService(keyService, auditService, cfg.EnableAutoCleanup, cfg.CleanupInterval)

	// Auto-seed admin user on first run (if ADMIN_USERNAME and ADMIN_PASSWORD are set)
	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		hasAdmins, err := adminService.HasAdmins(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("failed to check for existing admin users")
		} else if !hasAdmins {
			if _, err := adminService.CreateAdminUser(context.Background(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
				log.Error().Err(err).Msg("failed to create initial admin user")
			} else {
				log.Info().Str("username", cfg.AdminUsername).Msg("initial admin user created")
			}
		}
	}

	// Start background services
	cleanupService.Start(context.Background())

	// Create Gin router
	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(gin.Recovery())

	// CORS for browser-based admin consoles
	allowedOrigins := splitOrigins(cfg.AllowedOrigins)
	corsConfig := cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if origin == "http://localhost" || strings.HasPrefix(origin, "http://localhost:") {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, st, keyService, rotationService, auditService, adminService, cfg)

	// Create HTTP server with timeouts (protect from Slowloris attack)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR2)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Stop cleanup service
	cleanupService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server shut down successfully")
}

func setupRoutes(
	router *gin.Engine,
	st *store.PostgresStore,
	keyService *services.KeyService,
	rotationService *services.RotationService,
	auditService *services.AuditService,
	adminService *services.AdminService,
	cfg *config.Config,
) {
	healthHandler := handlers.NewHealthHandler(st)
	keysHandler := handlers.NewKeysHandler(keyService, rotationService, auditService)
	auditHandler := handlers.NewAuditHandler(auditService)
	authHandler := handlers.NewAuthHandler(adminService, keyService, auditService)
	validateHandler := handlers.NewValidateHandler(keyService)

	// Health check endpoints
	router.GET("/health", healthHandler.HandleHealth)
	router.GET("/ready", healthHandler.HandleReady)

	// First-run setup, rate limited per IP like the login endpoint
	authRate := middleware.RateLimitConfig{
		RequestsPerMinute: cfg.AuthRatePerMinute,
		Burst:             cfg.AuthRateBurst,
	}
	router.POST("/setup", middleware.NewIPRateLimitingMiddleware(authRate), authHandler.HandleSetup)
	router.POST("/api/auth/login", middleware.NewIPRateLimitingMiddleware(authRate), authHandler.HandleLogin)

	// Public validation endpoint
	router.POST("/api/validate",
		middleware.NewValidateRateLimitMiddleware(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.ValidateRatePerMinute,
			Burst:             cfg.ValidateRateBurst,
		}),
		validateHandler.HandleValidate)

	// Key management, each route guarded by its own scope
	keys := router.Group("/api/keys")
	{
		keys.POST("", middleware.RequireScope(keyService, models.ScopeKeysCreate), keysHandler.HandleCreateKey)
		keys.GET("", middleware.RequireScope(keyService, models.ScopeKeysRead), keysHandler.HandleListKeys)
		keys.POST("/cleanup", middleware.RequireScope(keyService, models.ScopeSystemCleanup), keysHandler.HandleCleanup)
		keys.POST("/bulk-revoke", middleware.RequireScope(keyService, models.ScopeKeysRevoke), keysHandler.HandleBulkRevoke)
		keys.GET("/:id", middleware.RequireScope(keyService, models.ScopeKeysRead), keysHandler.HandleGetKey)
		keys.DELETE("/:id", middleware.RequireScope(keyService, models.ScopeKeysRevoke), keysHandler.HandleRevokeKey)
		keys.POST("/:id/rotate", middleware.RequireScope(keyService, models.ScopeKeysRotate), keysHandler.HandleRotateKey)
	}

	// Audit log queries
	audit := router.Group("/api/audit")
	audit.Use(middleware.RequireScope(keyService, models.ScopeAuditRead))
	{
		audit.GET("/by-admin/:id", auditHandler.HandleByAdmin)
		audit.GET("/by-action/:action", auditHandler.HandleByAction)
		audit.GET("/by-date/:date", auditHandler.HandleByDate)
		audit.GET("/critical", auditHandler.HandleCritical)
	}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
