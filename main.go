package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/verity-labs/research-orchestrator/internal/activities"
	"github.com/verity-labs/research-orchestrator/internal/config"
	"github.com/verity-labs/research-orchestrator/internal/db"
	"github.com/verity-labs/research-orchestrator/internal/health"
	"github.com/verity-labs/research-orchestrator/internal/httpapi"
	"github.com/verity-labs/research-orchestrator/internal/llm"
	"github.com/verity-labs/research-orchestrator/internal/session"
	"github.com/verity-labs/research-orchestrator/internal/specialists"
	"github.com/verity-labs/research-orchestrator/internal/temporal"
	"github.com/verity-labs/research-orchestrator/internal/tracing"
	"github.com/verity-labs/research-orchestrator/internal/workflows"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := config.NewWatcher(cfg, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("Config hot reload disabled", zap.Error(err))
	}

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Observability.Tracing.Enabled,
		OTLPEndpoint: cfg.Observability.Tracing.Endpoint,
	}, logger); err != nil {
		logger.Warn("Tracing initialization failed", zap.Error(err))
	}

	redisAddr := getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	sessionTTL := time.Duration(cfg.Session.TTLSeconds) * time.Second
	sessionManager, err := session.NewManager(redisAddr, sessionTTL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.String("addr", redisAddr), zap.Error(err))
	}
	defer sessionManager.Close()

	cacheTTL := time.Duration(cfg.Session.CacheTTLSeconds) * time.Second
	researchCache := session.NewResearchCache(sessionManager.Client(), cacheTTL, logger)

	// Turn history persistence is optional; without DATABASE_URL turns are
	// only kept in session state.
	var dbClient *db.Client
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dbClient, err = db.NewClient(databaseURL, logger)
		if err != nil {
			logger.Warn("Turn persistence disabled", zap.Error(err))
			dbClient = nil
		} else {
			defer dbClient.Close()
		}
	}

	specialistCfg := specialists.LoadConfig(specialists.ConfigPath(), logger)
	registry, err := specialists.NewRegistry(specialistCfg, logger)
	if err != nil {
		logger.Fatal("Failed to build specialist registry", zap.Error(err))
	}

	llmClient := llm.NewClient(logger)
	toolClient := activities.NewToolClient(logger)

	acts := activities.NewActivities(
		sessionManager,
		researchCache,
		registry,
		llmClient,
		toolClient,
		dbClient,
		watcher.Current,
		logger,
	)

	temporalHost := getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	tClient, err := client.Dial(client.Options{
		HostPort: temporalHost,
		Logger:   temporal.NewZapAdapter(logger),
	})
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.String("host", temporalHost), zap.Error(err))
	}
	defer tClient.Close()

	wk := worker.New(tClient, workflows.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     getEnvOrDefaultInt("WORKER_MAX_ACTIVITIES", 20),
		MaxConcurrentWorkflowTaskExecutionSize: getEnvOrDefaultInt("WORKER_MAX_WORKFLOW_TASKS", 10),
	})
	wk.RegisterWorkflow(workflows.ResearchTurnWorkflow)
	wk.RegisterActivity(acts)

	if err := wk.Start(); err != nil {
		logger.Fatal("Failed to start worker", zap.Error(err))
	}
	defer wk.Stop()
	logger.Info("Worker started", zap.String("task_queue", workflows.TaskQueue))

	apiPort := getEnvOrDefaultInt("API_PORT", 8080)
	turnHandler := httpapi.NewTurnHandler(tClient, dbClient, watcher.Current, logger)
	apiServer := httpapi.StartServer(apiPort, turnHandler, logger)

	healthManager := health.NewManager(5 * time.Second)
	healthManager.Register(health.NewRedisChecker(sessionManager.Client()))
	if dbClient != nil {
		healthManager.Register(health.NewDatabaseChecker(dbClient))
	}
	healthManager.Register(health.NewServiceChecker("llm_service",
		getEnvOrDefault("LLM_SERVICE_URL", "http://localhost:8000"), false))
	healthManager.Register(health.NewCheckFunc("temporal", true, func(ctx context.Context) error {
		_, err := tClient.CheckHealth(ctx, &client.CheckHealthRequest{})
		return err
	}))

	adminMux := http.NewServeMux()
	healthManager.RegisterRoutes(adminMux)
	if cfg.Observability.Metrics.Enabled {
		adminMux.Handle("/metrics", promhttp.Handler())
	}
	adminServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Observability.Metrics.Port),
		Handler: adminMux,
	}
	go func() {
		logger.Info("Starting admin server", zap.Int("port", cfg.Observability.Metrics.Port))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown error", zap.Error(err))
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin server shutdown error", zap.Error(err))
	}
}

func newLogger(cfg *config.Research) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.Observability.Logging.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.Observability.Logging.Level); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
