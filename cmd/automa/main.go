// Automa exploitation server. Serves the campaign exploitation API and
// runs adaptive attack loops against authorized targets.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aspexa/automa/pkg/adaptive"
	"github.com/aspexa/automa/pkg/analysis"
	"github.com/aspexa/automa/pkg/api"
	"github.com/aspexa/automa/pkg/config"
	"github.com/aspexa/automa/pkg/control"
	"github.com/aspexa/automa/pkg/converter"
	"github.com/aspexa/automa/pkg/dispatch"
	"github.com/aspexa/automa/pkg/framing"
	"github.com/aspexa/automa/pkg/knowledge"
	"github.com/aspexa/automa/pkg/llm"
	"github.com/aspexa/automa/pkg/payload"
	"github.com/aspexa/automa/pkg/scoring"
	"github.com/aspexa/automa/pkg/storage"
	"github.com/aspexa/automa/pkg/strategy"
	"github.com/aspexa/automa/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Server.Port != "" {
		httpPort = cfg.Server.Port
	}

	// 2. Campaign store: Postgres when a DSN is configured, in-memory
	// otherwise (local development and tests).
	var campaigns storage.CampaignStore
	if dsn := os.Getenv(cfg.Storage.DatabaseDSNEnv); dsn != "" {
		if err := storage.Migrate(dsn); err != nil {
			slog.Error("Database migration failed", "error", err)
			os.Exit(1)
		}
		pool, err := storage.Connect(ctx, dsn)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		campaigns = storage.NewPostgresCampaignStore(pool)
		slog.Info("Connected to PostgreSQL campaign store")
	} else {
		campaigns = storage.NewMemoryCampaignStore()
		slog.Warn("No database DSN configured, using in-memory campaign store",
			"env", cfg.Storage.DatabaseDSNEnv)
	}

	// 3. Artifact store: S3 when a bucket is configured.
	var (
		blueprints storage.BlueprintStore
		results    storage.ResultStore
	)
	if cfg.Storage.S3Bucket != "" {
		client, err := storage.NewS3Client(ctx, cfg.Storage.S3Region, os.Getenv(cfg.Storage.S3EndpointEnv))
		if err != nil {
			slog.Error("Failed to create S3 client", "error", err)
			os.Exit(1)
		}
		s3Store := storage.NewS3Store(client, cfg.Storage.S3Bucket)
		blueprints, results = s3Store, s3Store
		slog.Info("S3 artifact store initialized", "bucket", cfg.Storage.S3Bucket)
	} else {
		memStore := storage.NewMemoryArtifactStore()
		blueprints, results = memStore, memStore
		slog.Warn("No S3 bucket configured, using in-memory artifact store")
	}

	// 4. Knowledge corpus
	knowledgeStore, err := knowledge.Open(cfg.Storage.KnowledgePath)
	if err != nil {
		slog.Error("Failed to open knowledge store", "path", cfg.Storage.KnowledgePath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := knowledgeStore.Close(); err != nil {
			slog.Error("Error closing knowledge store", "error", err)
		}
	}()
	slog.Info("Knowledge store opened", "path", cfg.Storage.KnowledgePath)

	// 5. LLM client
	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	llmClient, err := llm.NewGenAIClient(ctx, llm.GenAIConfig{
		APIKey:         apiKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		ChatTimeout:    cfg.LLM.ChatTimeout,
	})
	if err != nil {
		slog.Error("Failed to initialize LLM client", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}
	slog.Info("LLM client initialized", "model", cfg.LLM.Model)

	// 6. Exploitation loop
	registry := converter.NewRegistry()
	plane := control.NewPlane()
	loop := adaptive.NewLoop(adaptive.Deps{
		Chat:          llmClient,
		Embedder:      llmClient,
		Framings:      framing.NewLibrary(),
		ReconFramings: framing.NewReconGenerator(),
		Registry:      registry,
		Executor:      converter.NewExecutor(registry),
		Payloads:      payload.NewGenerator(llmClient),
		Dispatcher: dispatch.NewDispatcher(dispatch.Options{
			MaxConcurrentAttacks: cfg.Exploit.MaxConcurrentAttacks,
			RequestsPerSecond:    cfg.Exploit.RequestsPerSecond,
			RequestTimeout:       cfg.Exploit.RequestTimeout,
			MaxRetries:           cfg.Exploit.MaxRetries,
		}),
		Scorers:    scoring.NewSet(llmClient),
		Analyzer:   analysis.NewAnalyzer(llmClient),
		Chains:     strategy.NewChainDiscovery(llmClient, registry),
		Strategist: strategy.NewGenerator(llmClient),
		Knowledge:  knowledgeStore,
		Results:    results,
		Campaigns:  campaigns,
		Control:    plane,
	})

	// 7. HTTP server
	server := api.NewServer(cfg, loop, plane, campaigns, blueprints, results)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Automa started successfully", "version", version.Full(), "http_port", httpPort)

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Cancel running campaigns so loops persist partial results.
	for _, id := range plane.Running() {
		if err := plane.Cancel(id); err != nil {
			slog.Warn("Failed to cancel campaign during shutdown", "campaign_id", id, "error", err)
		}
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
