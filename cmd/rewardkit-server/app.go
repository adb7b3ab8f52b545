package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	mem "rewardkit/adapters/memory"
	redisAdapter "rewardkit/adapters/redis"
	sqlxAdapter "rewardkit/adapters/sqlx"
	"rewardkit/analytics"
	"rewardkit/api/httpapi"
	"rewardkit/auth"
	"rewardkit/config"
	"rewardkit/core"
	"rewardkit/engine"
	"rewardkit/integrations/webhook"
	"rewardkit/leaderboard"
	"rewardkit/realtime"
	"rewardkit/reward"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Board   leaderboard.Board
	Service *engine.IngestService
	Metrics *analytics.Metrics
	Handler http.Handler
	Server  *http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	if path := os.Getenv("REWARDKIT_CONFIG"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideBoard() leaderboard.Board {
	return leaderboard.NewSkipList()
}

func provideStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	return setupStorage(ctx, cfg)
}

func provideAuth(cfg *config.Config) (auth.Provider, error) {
	switch cfg.Auth.Provider {
	case "static":
		tokens := make(auth.StaticTokens, len(cfg.Auth.StaticTokens))
		for token, user := range cfg.Auth.StaticTokens {
			tokens[token] = core.UserID(user)
		}
		return tokens, nil
	case "jwt":
		return auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.JWTIssuer}, nil
	default:
		return nil, fmt.Errorf("unknown auth provider: %s", cfg.Auth.Provider)
	}
}

func provideService(cfg *config.Config, hub *realtime.Hub, board leaderboard.Board, storage engine.Storage, logger *slog.Logger) (*engine.IngestService, error) {
	rules, err := cfg.Ruleset()
	if err != nil {
		return nil, err
	}
	svc := reward.New(
		reward.WithRealtime(hub),
		reward.WithLeaderboard(board),
		reward.WithStorage(storage),
		reward.WithRuleset(rules),
		reward.WithDispatchMode(engine.DispatchAsync),
		reward.WithEngineOptions(engine.WithLogger(logger)),
	)
	if len(cfg.Webhooks.Endpoints) > 0 {
		var opts []webhook.Option
		if cfg.Webhooks.SigningSecret != "" {
			opts = append(opts, webhook.WithSigningSecret([]byte(cfg.Webhooks.SigningSecret)))
		}
		analytics.Attach(webhook.New(cfg.Webhooks.Endpoints, opts...), svc)
	}
	return svc, nil
}

func provideMetrics(svc *engine.IngestService) *analytics.Metrics {
	m := analytics.NewMetrics()
	analytics.Attach(m, svc)
	return m
}

func provideHandler(svc *engine.IngestService, hub *realtime.Hub, provider auth.Provider, board leaderboard.Board, cfg *config.Config) http.Handler {
	return httpapi.NewMux(svc, hub, provider, board, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the appropriate storage adapter based on configuration.
func setupStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis)
	case "sql":
		store, err := sqlxAdapter.New(cfg.Storage.SQL)
		if err != nil {
			return nil, err
		}
		if cfg.Storage.SQL.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate schema: %w", err)
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
