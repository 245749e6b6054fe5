package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emreacar/prompt-optimizer/internal/api"
	"github.com/emreacar/prompt-optimizer/internal/auth"
	"github.com/emreacar/prompt-optimizer/internal/cache"
	"github.com/emreacar/prompt-optimizer/internal/catalog"
	"github.com/emreacar/prompt-optimizer/internal/circuitbreaker"
	"github.com/emreacar/prompt-optimizer/internal/config"
	"github.com/emreacar/prompt-optimizer/internal/cost"
	"github.com/emreacar/prompt-optimizer/internal/crypto"
	"github.com/emreacar/prompt-optimizer/internal/llm"
	"github.com/emreacar/prompt-optimizer/internal/notifications"
	"github.com/emreacar/prompt-optimizer/internal/orchestrator"
	"github.com/emreacar/prompt-optimizer/internal/ratelimit"
	"github.com/emreacar/prompt-optimizer/internal/rewriter"
	"github.com/emreacar/prompt-optimizer/internal/secrets"
	"github.com/emreacar/prompt-optimizer/internal/session"
	"github.com/emreacar/prompt-optimizer/internal/telemetry"
	"github.com/emreacar/prompt-optimizer/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting prompt optimizer", "addr", cfg.Addr, "version", "0.1.0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, "prompt-optimizer", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}

	cat := catalog.Default()
	breakers := circuitbreaker.NewManager(circuitbreaker.DefaultConfig())

	apiKey, err := resolveUpstreamKey(ctx, cfg)
	if err != nil {
		slog.Error("failed to resolve upstream API key", "error", err)
		os.Exit(1)
	}

	var client llm.Client
	if cfg.UseBedrock {
		client, err = llm.NewBedrockClient(ctx, cfg.AWSRegion, cat)
		if err != nil {
			slog.Error("failed to init bedrock client", "error", err)
			os.Exit(1)
		}
		slog.Info("using bedrock backend", "region", cfg.AWSRegion)
	} else {
		client = llm.NewCortexClient(cfg.CortexBaseURL, apiKey, cat, breakers)
		slog.Info("using cortex backend", "base_url", cfg.CortexBaseURL)
	}

	limits := ratelimit.Limits{
		ratelimit.OpOptimize: cfg.OptimizeLimit,
		ratelimit.OpSession:  cfg.SessionLimit,
	}

	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		limiter, err = ratelimit.NewRedisLimiter(cfg.RedisURL, limits)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		slog.Info("using redis rate limiter")
	} else {
		limiter = ratelimit.NewInMemoryLimiter(limits)
		slog.Info("using in-memory rate limiter")
	}

	var store session.Store
	var users auth.UserStore
	if cfg.DatabaseURL != "" {
		pgStore, err := session.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		store = pgStore
		users = auth.NewPostgresUserStore(pgStore.DB())
		slog.Info("using postgres session store")
	} else {
		store = session.NewInMemoryStore()
		users = auth.NewInMemoryUserStore()
		slog.Info("using in-memory session store")
	}

	var messageCache cache.MessageCache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			slog.Warn("redis cache unavailable, using in-memory", "error", err)
			messageCache = cache.NewInMemoryCache()
		} else {
			messageCache = redisCache
			slog.Info("using redis message cache")
		}
	} else {
		messageCache = cache.NewInMemoryCache()
	}

	var estimator token.Estimator = token.NewHeuristic()
	if cfg.TokenEstimator == "tiktoken" {
		tk, err := token.NewTiktoken()
		if err != nil {
			slog.Warn("tiktoken unavailable, using heuristic estimator", "error", err)
		} else {
			estimator = tk
			slog.Info("using tiktoken estimator")
		}
	}
	sessions := session.NewContextCache(store, messageCache, estimator,
		session.PairFlushPolicy{Cadence: 2}, session.NewPatternTitleGenerator())

	rw := rewriter.New(client, rewriter.Config{SkipLength: cfg.RewriteSkipLength})
	tracker := cost.NewInMemoryTracker()

	engine := orchestrator.New(orchestrator.Config{
		Client:           client,
		Catalog:          cat,
		Rewriter:         rw,
		Sessions:         sessions,
		Store:            store,
		Tracker:          tracker,
		ContextMaxTokens: cfg.ContextMaxTokens,
	})

	var notifier notifications.Notifier
	if cfg.SNSTopicArn != "" && cfg.AWSRegion != "" {
		notifier, err = notifications.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.SNSTopicArn)
		if err != nil {
			slog.Error("failed to init sns notifier", "error", err)
			os.Exit(1)
		}
		slog.Info("using sns notifier", "topic", cfg.SNSTopicArn)
	} else {
		notifier = notifications.NewInMemoryNotifier()
	}

	handler := api.NewHandler(api.HandlerConfig{
		Orchestrator:    engine,
		Users:           users,
		Limiter:         limiter,
		Sessions:        sessions,
		Store:           store,
		Catalog:         cat,
		Tracker:         tracker,
		Client:          client,
		Breakers:        breakers,
		Notifier:        notifier,
		PublicModel:     cfg.PublicModel,
		PublicMaxPrompt: cfg.PublicMaxPrompt,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown failed", "error", err)
	}

	slog.Info("server stopped")
}

// resolveUpstreamKey tries, in order: plain env, AES-GCM encrypted env,
// Secrets Manager.
func resolveUpstreamKey(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.CortexAPIKey != "" {
		return cfg.CortexAPIKey, nil
	}

	if cfg.CortexAPIKeyEncrypted != "" && cfg.EncryptionKey != "" {
		enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			return "", err
		}
		return enc.Decrypt(cfg.CortexAPIKeyEncrypted)
	}

	if cfg.CortexAPIKeySecret != "" && cfg.AWSRegion != "" {
		store, err := secrets.NewAWSStore(ctx, cfg.AWSRegion)
		if err != nil {
			return "", err
		}
		return store.GetSecret(ctx, cfg.CortexAPIKeySecret)
	}

	slog.Warn("no upstream API key configured")
	return "", nil
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
