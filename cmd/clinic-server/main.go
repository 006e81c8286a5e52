package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dentaleditapp/tdeclinic-emr/internal/config"
	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/clinical"
	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/formulary"
	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/identity"
	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/ledger"
	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/reference"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/blobstore"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/db"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/metrics"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/middleware"
	"github.com/dentaleditapp/tdeclinic-emr/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Dental clinic record API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// withPool loads config and opens the pool for one-shot commands.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool, logger)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) error {
				migrator := db.NewMigrator(pool, migrations.FS, logger)
				count, err := migrator.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) error {
				statuses, err := db.NewMigrator(pool, migrations.FS, logger).Status(ctx)
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
			})
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load initial data",
	}

	staffCmd := &cobra.Command{
		Use:   "staff",
		Short: "Create the doctor and assistant logins on an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorPW, _ := cmd.Flags().GetString("doctor-password")
			assistantPW, _ := cmd.Flags().GetString("assistant-password")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) error {
				svc := identity.NewService(identity.NewUserRepo(pool), db.NewTxManager(pool), newTokens(cfg), cfg.TempPasswordLength, logger)
				seeded, err := svc.SeedStaff(ctx, identity.StaffPasswords{Doctor: doctorPW, Assistant: assistantPW})
				if err != nil {
					return err
				}
				if len(seeded) == 0 {
					fmt.Println("Users already exist. No action taken.")
					return nil
				}
				for _, u := range seeded {
					fmt.Printf("%-10s %-10s %s\n", u.Username, u.Role, u.Password)
				}
				return nil
			})
		},
	}
	staffCmd.Flags().String("doctor-password", "", "Password for the doctor login (generated when empty)")
	staffCmd.Flags().String("assistant-password", "", "Password for the assistant login (generated when empty)")
	cmd.AddCommand(staffCmd)

	medicinesCmd := &cobra.Command{
		Use:   "medicines",
		Short: "Load the default medicine library into an empty formulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) error {
				svc := formulary.NewService(formulary.NewMedicineRepoPG(pool), db.NewTxManager(pool), logger)
				res, err := svc.LoadDefaults(ctx, systemPrincipal)
				if err != nil {
					return err
				}
				if res.Existing > 0 {
					fmt.Printf("%d medicines already exist. No action taken.\n", res.Existing)
					return nil
				}
				fmt.Printf("%d default medicines loaded.\n", res.Inserted)
				return nil
			})
		},
	}
	cmd.AddCommand(medicinesCmd)

	return cmd
}

// systemPrincipal acts for CLI maintenance commands.
var systemPrincipal = auth.Principal{Username: "system", Role: auth.RoleDoctor}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

func newTokens(cfg *config.Config) *auth.Tokens {
	return auth.NewTokens(auth.TokenConfig{
		SigningKey: cfg.SigningKey(),
		Issuer:     cfg.JWTIssuer,
		TTL:        cfg.TokenTTL,
	})
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// newEcho builds the server with its middleware chain and the /api/v1
// routes of every registrar. health is served at /health.
func newEcho(cfg *config.Config, logger zerolog.Logger, tokens *auth.Tokens, health echo.HandlerFunc, registrars ...routeRegistrar) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.MaxUploadBytes+1<<20)))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(tokens))
	} else {
		e.Use(auth.JWTMiddleware(tokens, auth.AuthSkipper))
	}

	e.GET("/health", health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	for _, r := range registrars {
		r.RegisterRoutes(apiV1)
	}
	return e
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	files, err := blobstore.NewDiskStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open upload directory")
	}

	refData, err := reference.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load reference tables")
	}

	tx := db.NewTxManager(pool)
	tokens := newTokens(cfg)

	// Identity domain
	identitySvc := identity.NewService(identity.NewUserRepo(pool), tx, tokens, cfg.TempPasswordLength, logger)

	// Clinical domain
	clinicalSvc := clinical.NewService(clinical.NewStoresPG(pool), tx, files, logger)
	clinicalSvc.SetLogins(identitySvc)

	// Ledger
	ledgerSvc := ledger.NewService(clinicalSvc.Stores(), logger)

	// Formulary
	formularySvc := formulary.NewService(formulary.NewMedicineRepoPG(pool), tx, logger)

	e := newEcho(cfg, logger, tokens, db.HealthHandler(pool, version),
		identity.NewHandler(identitySvc),
		clinical.NewHandler(clinicalSvc),
		ledger.NewHandler(ledgerSvc),
		formulary.NewHandler(formularySvc),
		reference.NewHandler(refData),
	)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
