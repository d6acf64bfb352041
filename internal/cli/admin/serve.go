package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/groundwork/internal/api/handlers"
	"github.com/cloo-solutions/groundwork/internal/config"
	"github.com/cloo-solutions/groundwork/internal/database"
	"github.com/cloo-solutions/groundwork/internal/jobs"
	"github.com/cloo-solutions/groundwork/internal/server"
	"github.com/cloo-solutions/groundwork/internal/telemetry"
	"github.com/spf13/cobra"
)

const defaultMigrationsDir = "migrations"

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the groundwork API server and the background replay worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides GROUNDWORK_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-worker", false, "Do not run the background replay worker")
	cmd.Flags().String("migrations", defaultMigrationsDir, "Directory containing migration files")

	return cmd
}

// MigrateCmd applies pending migrations and exits.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			dir, _ := cmd.Flags().GetString("migrations")
			return runMigrations(cfg.DatabaseURL, dir)
		},
	}
	cmd.Flags().String("migrations", defaultMigrationsDir, "Directory containing migration files")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Default to 10% sampling in production, 100% in development
	sampleRate := 0.1
	if cfg.Environment == "development" {
		sampleRate = 1.0
	}
	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
	} else {
		defer shutdownTelemetry()
	}

	if portFlag, _ := cmd.Flags().GetString("port"); portFlag != "" {
		cfg.Port = portFlag
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		dir, _ := cmd.Flags().GetString("migrations")
		if err := runMigrations(cfg.DatabaseURL, dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger := newLogger(cfg)
	a, err := newApp(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}

	if cfg.InitOrgName != "" {
		org, err := a.auth.Bootstrap(ctx, cfg.InitOrgName, cfg.InitAPIKey)
		if err != nil {
			return fmt.Errorf("failed to bootstrap initial org: %w", err)
		}
		log.Printf("bootstrap: organization '%s' ready (id: %s)", org.Name, org.ID)
	}

	sig, err := a.signatures.Ensure(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile index signature: %w", err)
	}
	log.Printf("index signature v%d (%s/%s, dim %d, chunk %d/%d)",
		sig.Version, sig.Backend, sig.Model, sig.Dim, sig.ChunkSize, sig.ChunkOverlap)

	var replayWorker *jobs.Worker
	if noWorker, _ := cmd.Flags().GetBool("no-worker"); !noWorker {
		processor := jobs.NewReplayWorker(a.replay, jobs.DefaultRunsPerTick, logger.With("component", "replay_worker"))
		replayWorker = jobs.NewWorker("replay", processor, cfg.ReplayPollInterval, logger)
		a.replay.OnEnqueue(replayWorker.Wake)
		go replayWorker.Start(ctx)
		log.Println("replay worker started")
	}

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   a.auth,
		DocumentHandler: handlers.NewDocumentHandler(a.ingest),
		QueryHandler:    handlers.NewQueryHandler(a.query),
		ReplayHandler:   handlers.NewReplayHandler(a.replay),
		AuthHandler:     handlers.NewAuthHandler(a.auth),
		MaxBodyBytes:    cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if replayWorker != nil {
		replayWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL, dir string) error {
	state, err := database.Migrate(databaseURL, dir)
	if err != nil {
		return err
	}
	log.Printf("migrations: %s", state)
	return nil
}
