package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
	"github.com/SscSPs/fiscal_journal/internal/core/services"
	"github.com/SscSPs/fiscal_journal/internal/export"
	"github.com/SscSPs/fiscal_journal/internal/handlers"
	"github.com/SscSPs/fiscal_journal/internal/middleware"
	"github.com/SscSPs/fiscal_journal/internal/platform/config"
	"github.com/SscSPs/fiscal_journal/internal/platform/telemetry"
	"github.com/SscSPs/fiscal_journal/internal/repositories/database/pgsql"
	"github.com/SscSPs/fiscal_journal/internal/repositories/database/sqlite"
	"github.com/SscSPs/fiscal_journal/internal/repositories/memory"
	"github.com/SscSPs/fiscal_journal/pkg/database"
)

const migrationsPath = "file://migrations"

// @title Fiscal Journal API
// @version 1.0
// @description Hash-chained legal journal and closure bulletins for point-of-sale fiscal compliance.

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @security BearerAuth
func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := telemetry.Setup(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			logger.Error("Failed to flush metrics", slog.String("error", err.Error()))
		}
	}()

	repos, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.String("driver", cfg.StorageDriver), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStorage()

	// Services register their counters on the meter provider installed above.
	serviceContainer, err := services.NewServiceContainer(cfg, repos, nil)
	if err != nil {
		logger.Error("Failed to build services", slog.String("error", err.Error()))
		os.Exit(1)
	}
	serviceContainer.Exporter = export.NewService(serviceContainer.Closure, logger)

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", middleware.RequestIDHeader)
	corsConfig.ExposeHeaders = []string{"Content-Disposition", middleware.RequestIDHeader}

	// Global middleware (cors, logging, recovery)
	r.Use(cors.New(corsConfig), middleware.StructuredLoggingMiddleware(logger), gin.Recovery())

	if err := r.SetTrustedProxies(nil); err != nil {
		logger.Error("Failed to set trusted proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := handlers.RegisterRoutes(r, cfg, serviceContainer); err != nil {
		logger.Error("Failed to register routes", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting",
			slog.String("port", cfg.Port),
			slog.String("storage", cfg.StorageDriver),
			slog.String("register_id", cfg.RegisterID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to run", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", slog.String("error", err.Error()))
	}
}

// openStorage connects the configured backend and returns its repositories
// along with a function releasing the connection.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.RepositoryProvider, func(), error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return repositories.RepositoryProvider{}, nil, err
		}
		if err := database.RunMigrations(cfg.DatabaseURL, migrationsPath, logger); err != nil {
			dbPool.Close()
			return repositories.RepositoryProvider{}, nil, err
		}
		return pgsql.NewRepositoryProvider(dbPool), func() { database.ClosePgxPool(dbPool, logger) }, nil

	case config.StorageSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return repositories.RepositoryProvider{}, nil, err
		}
		logger.Info("SQLite journal opened", slog.String("path", cfg.SQLitePath))
		return store.Provider(), func() {
			if err := store.Close(); err != nil {
				logger.Error("Error closing SQLite database", slog.String("error", err.Error()))
			}
		}, nil

	default:
		logger.Warn("Using in-memory storage; the journal is lost on restart")
		return memory.NewStore().Provider(), func() {}, nil
	}
}
