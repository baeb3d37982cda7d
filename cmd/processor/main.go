package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/straye-as/blob-processor/internal/auth"
	"github.com/straye-as/blob-processor/internal/config"
	"github.com/straye-as/blob-processor/internal/http/handler"
	"github.com/straye-as/blob-processor/internal/http/middleware"
	"github.com/straye-as/blob-processor/internal/http/router"
	"github.com/straye-as/blob-processor/internal/jobs"
	"github.com/straye-as/blob-processor/internal/logger"
	"github.com/straye-as/blob-processor/internal/metrics"
	"github.com/straye-as/blob-processor/internal/service"
	"github.com/straye-as/blob-processor/internal/storage"
	"github.com/straye-as/blob-processor/internal/transform"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load basic configuration first (for logging setup)
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	// Resolve the storage connection string from Key Vault when configured
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	log.Info("Processor configured",
		zap.String("input_container", cfg.Processor.InputContainer),
		zap.String("output_container", cfg.Processor.OutputContainer),
	)

	gateway, err := storage.NewGateway(&cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	log.Info("Storage initialized", zap.String("mode", gateway.Mode()))

	m := metrics.New()
	processor := service.NewProcessorService(cfg.Processor, gateway, transform.Default(), m, log)

	authMiddleware := auth.NewMiddleware(&cfg.EventGrid, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	eventHandler := handler.NewEventHandler(processor, cfg.Server.MaxBodySizeBytes(), log)
	healthHandler := handler.NewHealthHandler(map[string]handler.CheckFunc{
		"storage": storageCheck(gateway, cfg),
	}, 5*time.Second, log)

	rt := router.NewRouter(cfg, log, authMiddleware, rateLimiter, eventHandler, healthHandler, m.Handler())

	// Initialize and start scheduler for the backfill sweep
	var scheduler *jobs.Scheduler
	if cfg.Sweep.Enabled {
		scheduler = jobs.NewScheduler(log)
		sweeper := service.NewSweepService(cfg.Processor, cfg.Sweep.AccountName, gateway, processor, log)

		if err := jobs.RegisterSweepJob(
			scheduler,
			sweeper,
			m,
			log,
			cfg.Sweep.Cron,
			cfg.Sweep.TimeoutDuration(),
			cfg.Sweep.RunOnStartup,
		); err != nil {
			return fmt.Errorf("failed to register sweep job: %w", err)
		}

		scheduler.Start()
		log.Info("Scheduler started with sweep job",
			zap.String("cron_expr", cfg.Sweep.Cron),
			zap.String("account", cfg.Sweep.AccountName),
			zap.Duration("timeout", cfg.Sweep.TimeoutDuration()),
			zap.Time("next_run", scheduler.NextRun(jobs.SweepJobName)),
		)
	} else {
		log.Info("Sweep disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Stop accepting deliveries first; a running sweep finishes afterwards
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		if scheduler != nil {
			<-scheduler.Stop().Done()
			log.Info("Scheduler stopped")
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}

// storageCheck lists the input container when an account is known, otherwise
// only verifies that a client can be built
func storageCheck(gateway storage.Gateway, cfg *config.Config) handler.CheckFunc {
	return func(ctx context.Context) error {
		client, err := gateway.ResolveClient(cfg.Sweep.AccountName)
		if err != nil {
			return err
		}
		if cfg.Sweep.AccountName == "" && gateway.Mode() != "local" {
			return nil
		}
		_, err = client.List(ctx, cfg.Processor.InputContainer)
		return err
	}
}
