package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yakkyoku-ai/yakkyoku/internal/auth"
	"github.com/yakkyoku-ai/yakkyoku/internal/config"
	"github.com/yakkyoku-ai/yakkyoku/internal/extract"
	"github.com/yakkyoku-ai/yakkyoku/internal/notify"
	"github.com/yakkyoku-ai/yakkyoku/internal/pipeline"
	"github.com/yakkyoku-ai/yakkyoku/internal/ratelimit"
	"github.com/yakkyoku-ai/yakkyoku/internal/refill"
	"github.com/yakkyoku-ai/yakkyoku/internal/safety"
	"github.com/yakkyoku-ai/yakkyoku/internal/server"
	"github.com/yakkyoku-ai/yakkyoku/internal/storage"
	"github.com/yakkyoku-ai/yakkyoku/internal/telemetry"
	"github.com/yakkyoku-ai/yakkyoku/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("YAKKYOKU_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("yakkyoku starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	// Run migrations. RunMigrations tracks applied files in schema_migrations
	// and skips duplicates, so errors here indicate real failures.
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Seed development fixtures (no-op when the catalog is already populated).
	if cfg.SeedDev {
		if err := db.SeedDev(ctx); err != nil {
			slog.Warn("dev seed failed", "error", err)
		}
	}

	// Create JWT manager for the operator surface.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Bootstrap the configured operator credential so a fresh deployment has
	// one working operator account.
	if cfg.OperatorID != "" {
		hash, err := auth.HashAPIKey(cfg.OperatorAPIKey)
		if err != nil {
			return fmt.Errorf("auth: hash operator key: %w", err)
		}
		if err := db.UpsertOperator(ctx, cfg.OperatorID, hash); err != nil {
			return fmt.Errorf("auth: bootstrap operator: %w", err)
		}
		logger.Info("operator bootstrapped", "operator_id", cfg.OperatorID)
	}

	// Assemble the pipeline stages.
	extractor := newExtractor(cfg, logger)
	engine := safety.NewEngine(db, cfg.MaxQtyPerOrder, logger)
	analyzer := refill.NewAnalyzer(db, logger)

	var notifier notify.FulfillmentNotifier
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookAPIKey, logger)
		logger.Info("fulfillment notifier: webhook", "url", cfg.WebhookURL)
	} else {
		notifier = notify.NewLogNotifier(logger)
		logger.Info("fulfillment notifier: log only (no YAKKYOKU_WEBHOOK_URL)")
	}

	runner := pipeline.NewRunner(db, extractor, engine, analyzer, notifier, notify.NewLogSender(logger), logger)

	// Create rate limiter for the unauthenticated endpoints.
	var limiter ratelimit.Limiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: memory (in-process token bucket)",
			"per_second", cfg.RateLimitPerSecond, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		Runner:              runner,
		Limiter:             limiter,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown: stop accepting new requests and drain in-flight
	// pipeline runs before closing the pool.
	slog.Info("yakkyoku shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("yakkyoku stopped")
	return nil
}

// newExtractor selects the item extractor based on configuration.
// Provider selection: "rules", "ollama", or "auto" (default). Auto mode uses
// Ollama when a server is reachable, else the grammar rules. The Ollama
// extractor always carries the rules extractor as its fallback so intake
// keeps working when the model goes away mid-flight.
func newExtractor(cfg config.Config, logger *slog.Logger) extract.Extractor {
	rules := extract.NewRulesExtractor()

	switch cfg.ExtractProvider {
	case "rules":
		logger.Info("extractor: grammar rules")
		return rules

	case "ollama":
		logger.Info("extractor: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return extract.NewOllamaExtractor(cfg.OllamaURL, cfg.OllamaModel, rules, logger)

	case "auto":
		fallthrough
	default:
		if extract.Reachable(cfg.OllamaURL) {
			logger.Info("extractor: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
			return extract.NewOllamaExtractor(cfg.OllamaURL, cfg.OllamaModel, rules, logger)
		}
		logger.Info("extractor: grammar rules (no ollama server reachable)")
		return rules
	}
}
