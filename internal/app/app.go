// Package app wires every component into a running process: config,
// storage, security, budget, retrieval, prompts, personalities, the LLM
// dispatcher, the guidance pipeline, and the HTTP edge.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vimarsh/guidance/internal/auth"
	"github.com/vimarsh/guidance/internal/budget"
	"github.com/vimarsh/guidance/internal/config"
	"github.com/vimarsh/guidance/internal/cost"
	"github.com/vimarsh/guidance/internal/guidance"
	"github.com/vimarsh/guidance/internal/httpserver"
	"github.com/vimarsh/guidance/internal/llm"
	"github.com/vimarsh/guidance/internal/notify"
	"github.com/vimarsh/guidance/internal/personality"
	"github.com/vimarsh/guidance/internal/platform"
	"github.com/vimarsh/guidance/internal/prompt"
	"github.com/vimarsh/guidance/internal/security"
	"github.com/vimarsh/guidance/internal/store"
	"github.com/vimarsh/guidance/internal/telemetry"
	"github.com/vimarsh/guidance/internal/txn"
	"github.com/vimarsh/guidance/internal/vector"
)

const embeddingDimension = 256

// Run is the process entry point: it reads config, connects to
// infrastructure, wires every component, and serves HTTP until ctx is
// canceled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	statuses, err := cfg.Validate()
	if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	for _, s := range statuses {
		if s.Fallback {
			logger.Warn("config section running in fallback mode", "section", s.Name, "reason", s.Reason)
		}
	}

	logger.Info("starting vimarsh guidance service", "environment", cfg.Environment, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "vimarsh-guidance", "dev")
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	st, pool, rdb, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	sec := buildSecurity(cfg, rdb)

	txnLog, err := txn.NewLog(cfg.LocalStoreDir)
	if err != nil {
		return fmt.Errorf("opening transaction log: %w", err)
	}
	txnMgr := txn.NewManager(st, txnLog)
	accountant := cost.NewAccountant(st, txnMgr)

	sink := notify.NewSink(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if sink.IsEnabled() {
		logger.Info("slack budget alerts enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack budget alerts disabled (SLACK_BOT_TOKEN not set), logging only")
	}
	enforcer := budget.NewEnforcer(st, accountant, sink, budget.Defaults{
		MonthlyCap:    cfg.DefaultMonthlyBudget,
		DailyCap:      cfg.DefaultDailyBudget,
		PerRequestCap: cfg.DefaultRequestBudget,
	})

	index, embedder := buildRetrieval(pool)
	renderer := prompt.NewRenderer()
	personas := personality.NewRegistry(logger)

	provider := buildLLMProvider(cfg, logger)
	dispatcher := llm.NewDispatcher(provider, cfg.LLMModel, logger)

	pipeline := guidance.New(sec, enforcer, index, embedder, renderer, personas, dispatcher, accountant, st, logger)

	roles := auth.NewRoleManager(cfg.AdminEmails, cfg.SuperAdminEmails)
	var authSvc *auth.AuthService
	if cfg.AuthEnabled() {
		issuer := fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", cfg.AzureTenantID)
		authSvc = auth.NewAuthService(auth.ModeProduction, issuer, cfg.EntraClientID, roles)
		logger.Info("authentication enabled", "mode", "production", "tenant", cfg.AzureTenantID)
	} else {
		authSvc = auth.NewAuthService(auth.ModeDevelopment, "", "", roles)
		logger.Info("authentication running in development mode (dev-token/admin-token/test-token accepted)")
	}

	srv := httpserver.NewServer(cfg, logger, st, rdb, metricsReg, authSvc)
	srv.APIRouter.Use(auth.RequireAuth)
	httpserver.MountGuidanceRoutes(srv.APIRouter, pipeline, sec)
	httpserver.MountAdminRoutes(srv.APIRouter, enforcer, accountant, sec)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("guidance server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down guidance server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildStore wires the dual local/remote TokenStore from Config. Whenever a
// Postgres pool cannot be opened for Config.DatabaseURL (including its
// built-in localhost default), the remote leg is skipped and the store runs
// local-only.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, *pgxpool.Pool, *redis.Client, func(), error) {
	localDir := cfg.LocalStoreDir
	ls, err := store.NewLocalStore(localDir)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("opening local store at %s: %w", localDir, err)
	}

	mode := store.ModeLocalOnly
	var pool *pgxpool.Pool
	var rdb *redis.Client
	var remote store.Backend

	if pgPool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL); err != nil {
		logger.Warn("remote store unavailable, running local-only", "error", err)
	} else {
		pool = pgPool
		migrationsDir := filepath.Clean(cfg.MigrationsDir)
		if err := platform.RunMigrations(cfg.DatabaseURL, migrationsDir); err != nil {
			pool.Close()
			return nil, nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		remote = store.NewRemoteStore(pool)
		mode = store.ModeRemotePrimary
		logger.Info("remote store connected", "mode", mode)
	}

	if client, err := platform.NewRedisClient(ctx, cfg.RedisURL); err != nil {
		logger.Warn("redis unavailable, rate limiting degrades to in-process fallback", "error", err)
	} else {
		rdb = client
	}

	st := store.New(mode, ls, remote)

	cleanup := func() {
		ls.Close()
		if pool != nil {
			pool.Close()
		}
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}
	}

	return st, pool, rdb, cleanup, nil
}

func buildSecurity(cfg *config.Config, rdb *redis.Client) *security.Validator {
	limiter := security.NewRateLimiter(rdb, cfg.RateLimitGeneralRPM, cfg.RateLimitAdminRPM, cfg.RateLimitAuthRPM)
	return security.NewValidator(limiter, security.NewSanitizer(), security.NewRedactor())
}

// buildRetrieval wires the vector index and a matching embedder. A remote
// pgvector-backed index is used once a Postgres pool is available;
// otherwise it falls back to the in-process flat index.
func buildRetrieval(pool *pgxpool.Pool) (vector.Index, vector.Embedder) {
	embedder := vector.NewHashEmbedder(embeddingDimension)
	if pool != nil {
		return vector.NewRemoteIndex(pool), embedder
	}
	return vector.NewFlatIndex(), embedder
}

// buildLLMProvider wires the configured LLM HTTP endpoint. With no endpoint
// configured, HTTPProvider still satisfies Provider; every call fails fast
// and LLMDispatcher's fallback path serves the personality's canned
// greeting instead, matching Config.Validate's documented LLM fallback mode.
func buildLLMProvider(cfg *config.Config, logger *slog.Logger) llm.Provider {
	endpoint := cfg.LLMEndpoint
	if endpoint == "" {
		logger.Info("LLM_ENDPOINT not set, serving canned fallback responses only")
	}
	return llm.NewHTTPProvider(endpoint, cfg.GeminiAPIKey)
}
