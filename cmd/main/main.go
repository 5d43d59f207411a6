package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/cache"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/config"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/dispatch"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/jetstream"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/observer"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/server"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/storage"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/usecase"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting Lead Routing Engine",
		zap.String("environment", cfg.Environment),
		zap.String("nats_url", cfg.NATS.URL),
		zap.Int("port", cfg.Server.Port),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	jsClient, err := initJetStreamClient(cfg.NATS.URL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	// Create repository adapters for the services
	contactRepo := storage.NewContactRepoAdapter(postgresRepo)
	leadRepo := storage.NewLeadRepoAdapter(postgresRepo)
	ruleRepo := storage.NewRuleRepoAdapter(postgresRepo)
	logRepo := storage.NewForwardingLogRepoAdapter(postgresRepo)
	settingsRepo := storage.NewSettingsRepoAdapter(postgresRepo)

	ruleCache := cache.NewRuleCache()

	// Create services
	ingestService := usecase.NewIngestService(contactRepo, leadRepo, ruleRepo, ruleCache, jsClient, usecase.IngestOptions{
		DedupeByEmail:     cfg.Ingestion.DedupeByEmail,
		RequireValidPhone: cfg.Ingestion.RequireValidPhone,
	})
	ruleService := usecase.NewRuleService(ruleRepo, settingsRepo, ruleCache)
	logService := usecase.NewLogService(logRepo)

	// Create dispatch worker (provisions the forwards stream + consumer)
	deliverer := dispatch.NewDeliverer(ruleRepo, logRepo, settingsRepo, cfg.Dispatch.DeliveryTimeout)
	dispatchWorker, err := dispatch.NewWorker(cfg, logger.Log, jsClient, deliverer)
	if err != nil {
		logger.Log.Fatal("Failed to initialize dispatch worker", zap.Error(err))
	}

	// HTTP server with readiness checks on both backing stores
	readyChecks := map[string]server.ReadyCheck{
		"postgres": postgresRepo.Ping,
		"nats": func(ctx context.Context) error {
			if status := jsClient.NatsConn().Status(); status != nats.CONNECTED {
				return fmt.Errorf("nats connection status: %s", status)
			}
			return nil
		},
	}
	httpServer := server.New(cfg.Server.Port, logger.Log, ingestService, ruleService, logService, readyChecks, metricsEnabled)
	httpServer.Start()

	logger.Log.Info("HTTP endpoints available",
		zap.String("ingest", fmt.Sprintf("http://localhost:%d/webhook/{webhookId}", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
	)

	// Start dispatch worker in a separate goroutine
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()
	sigChan := make(chan os.Signal, 1)
	go func() {
		if err := dispatchWorker.Start(mainCtx); err != nil {
			logger.Log.Error("Dispatch worker failed, initiating shutdown...", zap.Error(err))
			mainCancel()
			select {
			case sigChan <- syscall.SIGTERM:
			default:
				logger.Log.Warn("Could not send SIGTERM to signal channel immediately")
			}
		}
	}()

	// Wait for termination signal
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(3)

	// Shutdown HTTP server first so no new leads arrive mid-drain
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping HTTP server")
		start := time.Now()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping HTTP server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] HTTP server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping HTTP server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown dispatch worker
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping dispatch worker")
		start := time.Now()
		dispatchWorker.Stop()
		logger.Log.Info("[shutdown] Dispatch worker stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping dispatch worker",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close database and queue connections
	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		logger.Log.Info("[shutdown] Closing JetStream connection")
		jsStart := time.Now()
		jsClient.Close()
		logger.Log.Info("[shutdown] JetStream connection closed",
			zap.Duration("duration", time.Since(jsStart)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Lead Routing Engine shutdown complete")
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}

// initJetStreamClient initializes the JetStream client
func initJetStreamClient(url string) (*jetstream.Client, error) {
	client, err := jetstream.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream client: %w", err)
	}
	// Stream and consumer setup happens in the dispatch worker constructor
	return client, nil
}
