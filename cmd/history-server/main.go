package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/clinical-history/internal/config"
	"github.com/ehr/clinical-history/internal/domain/history"
	"github.com/ehr/clinical-history/internal/domain/report"
	"github.com/ehr/clinical-history/internal/platform/auth"
	"github.com/ehr/clinical-history/internal/platform/blobstore"
	"github.com/ehr/clinical-history/internal/platform/cache"
	"github.com/ehr/clinical-history/internal/platform/db"
	"github.com/ehr/clinical-history/internal/platform/middleware"
	"github.com/ehr/clinical-history/internal/platform/upstream"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "history-server",
		Short: "Clinical History API Server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinical history API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Identity cache. The shared cache is an optimization, not a hard
	// dependency: if it is down the resolver falls back to live fetches,
	// so startup degrades to an in-process store instead of failing.
	var store cache.Store
	redisStore, err := cache.NewRedisStore(ctx, cfg.CacheAddr())
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.CacheAddr()).
			Msg("cache unavailable, falling back to in-process store")
		store = cache.NewMemoryStore()
	} else {
		defer redisStore.Close()
		store = redisStore
		logger.Info().Str("addr", cfg.CacheAddr()).Msg("connected to cache")
	}

	// Upstream gateways behind circuit breakers
	gateway := upstream.NewGateway(cfg.PatientSvcURL, cfg.AppointmentSvcURL, cfg.BreakerTimeout())
	guarded := upstream.NewGuardedGateway(gateway, upstream.BreakerPolicy{
		ErrorThresholdPct: cfg.BreakerErrorThresholdPct,
		ResetTimeout:      cfg.BreakerResetTimeout(),
		MinRequests:       uint32(cfg.BreakerMinRequests),
	}, logger)
	resolver := upstream.NewIdentityResolver(store, guarded, cfg.IdentityCacheTTL(), logger)

	// Attachment storage
	blobs := blobstore.NewInMemoryBlobStore()

	// Domain services
	historyRepo := history.NewRepoPG(pool)
	historySvc := history.NewService(historyRepo, cfg.AllowPastTreatmentDates)
	historyHandler := history.NewHandler(historySvc, blobs)

	reportSvc := report.NewService(historySvc, resolver, guarded, logger)
	reportHandler := report.NewHandler(reportSvc)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))

	// Auth middleware
	if cfg.IsDev() && cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set; running with development auth defaults")
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	// Health check
	e.GET("/health", db.HealthHandler(pool))

	// API routes
	histories := e.Group("/histories")
	histories.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	historyHandler.RegisterRoutes(histories)
	reportHandler.RegisterRoutes(histories)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
