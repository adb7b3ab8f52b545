package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rewardkit/adapters/redis"
	"rewardkit/adapters/sqlx"
	"rewardkit/core"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" env:"REWARDKIT_ENV"`
	Profile     string      `json:"profile" env:"REWARDKIT_PROFILE"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Identity provider configuration
	Auth AuthConfig `json:"auth"`

	// Award rules configuration
	Rules RulesConfig `json:"rules"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Security configuration
	Security SecurityConfig `json:"security"`

	// Outbound webhook configuration
	Webhooks WebhookConfig `json:"webhooks"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"REWARDKIT_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"REWARDKIT_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"REWARDKIT_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"REWARDKIT_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"REWARDKIT_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"REWARDKIT_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"REWARDKIT_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"REWARDKIT_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string       `json:"adapter" env:"REWARDKIT_STORAGE_ADAPTER"`
	Redis   redis.Config `json:"redis,omitempty"`
	SQL     sqlx.Config  `json:"sql,omitempty"`
}

// AuthConfig selects and configures the identity provider.
type AuthConfig struct {
	// Provider is "static" or "jwt".
	Provider string `json:"provider" env:"REWARDKIT_AUTH_PROVIDER"`
	// StaticTokens maps opaque tokens to user IDs (static provider).
	StaticTokens map[string]string `json:"static_tokens,omitempty" env:"REWARDKIT_AUTH_STATIC_TOKENS"`
	// JWTSecret signs and verifies HS256 tokens (jwt provider).
	JWTSecret string `json:"jwt_secret,omitempty" env:"REWARDKIT_AUTH_JWT_SECRET"`
	// JWTIssuer, when set, must match the token's issuer claim.
	JWTIssuer string `json:"jwt_issuer,omitempty" env:"REWARDKIT_AUTH_JWT_ISSUER"`
}

// RulesConfig overrides the built-in award rules. Zero values fall back to
// the defaults, so a partial file only changes what it names.
type RulesConfig struct {
	// Timezone is the IANA name of the reference timezone for day boundaries
	// and streaks (e.g. "America/Chicago"). Empty means UTC.
	Timezone string `json:"timezone" env:"REWARDKIT_RULES_TIMEZONE"`
	// Levels are ascending cumulative experience thresholds; level N requires
	// Levels[N-1].
	Levels []int64 `json:"levels,omitempty" env:"REWARDKIT_RULES_LEVELS"`
	// Table overrides or adds per-activity rules by activity type. Entries
	// merge field-wise over the built-in rule: an omitted field keeps the
	// default's value.
	Table map[string]RuleConfig `json:"table,omitempty"`
	// Quests replaces the quest catalog when non-empty.
	Quests []QuestConfig `json:"quests,omitempty"`
}

// RuleConfig is one rule table entry. Pointer fields distinguish "not named"
// from an explicit zero (daily_cap 0 removes the cap, base_points 0 disables
// the award). An omitted Quests list keeps the default rule's hooks.
type RuleConfig struct {
	BasePoints *int64            `json:"base_points,omitempty"`
	DailyCap   *int64            `json:"daily_cap,omitempty"`
	Quests     []QuestHookConfig `json:"quests,omitempty"`
}

// QuestHookConfig links an activity type to a quest counter.
type QuestHookConfig struct {
	Quest string `json:"quest_code"`
	Key   string `json:"progress_key"`
	Delta int64  `json:"delta"`
}

// QuestConfig is one quest catalog entry.
type QuestConfig struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Target int64  `json:"target"`
	Reward string `json:"reward,omitempty"`
	Active bool   `json:"active"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"REWARDKIT_LOG_LEVEL"`
	Format     string            `json:"format" env:"REWARDKIT_LOG_FORMAT"`
	Output     string            `json:"output" env:"REWARDKIT_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"REWARDKIT_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" env:"REWARDKIT_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int `json:"burst_size" env:"REWARDKIT_SECURITY_RATE_LIMIT_BURST"`
}

// WebhookConfig holds outbound event delivery configuration.
type WebhookConfig struct {
	Endpoints     []string `json:"endpoints,omitempty" env:"REWARDKIT_WEBHOOK_ENDPOINTS"`
	SigningSecret string   `json:"signing_secret,omitempty" env:"REWARDKIT_WEBHOOK_SIGNING_SECRET"`
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load from environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	// Validate the path for security
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	// Open the file safely after validation
	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Environment variables override file values
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
		},
		Auth: AuthConfig{
			Provider: "static",
		},
		Rules: RulesConfig{
			Timezone: "UTC",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
		},
	}
}

// Ruleset materializes the rules configuration on top of the built-in
// defaults: named table entries merge field-wise over theirs, levels replace
// wholesale, a non-empty quest list replaces the catalog.
func (c *Config) Ruleset() (core.Ruleset, error) {
	rs := core.DefaultRuleset()

	if c.Rules.Timezone != "" {
		loc, err := time.LoadLocation(c.Rules.Timezone)
		if err != nil {
			return core.Ruleset{}, fmt.Errorf("rules timezone: %w", err)
		}
		rs.Location = loc
	}
	if len(c.Rules.Levels) > 0 {
		rs.Levels = append([]int64(nil), c.Rules.Levels...)
	}
	for typ, rc := range c.Rules.Table {
		rule := rs.Table[core.ActivityType(typ)]
		if rc.BasePoints != nil {
			rule.BasePoints = *rc.BasePoints
		}
		if rc.DailyCap != nil {
			rule.DailyCap = *rc.DailyCap
		}
		if len(rc.Quests) > 0 {
			hooks := make([]core.QuestHook, 0, len(rc.Quests))
			for _, h := range rc.Quests {
				hooks = append(hooks, core.QuestHook{Quest: core.QuestCode(h.Quest), Key: h.Key, Delta: h.Delta})
			}
			rule.Quests = hooks
		}
		rs.Table[core.ActivityType(typ)] = rule
	}
	if len(c.Rules.Quests) > 0 {
		quests := make([]core.Quest, 0, len(c.Rules.Quests))
		for _, q := range c.Rules.Quests {
			quests = append(quests, core.Quest{
				Code:   core.QuestCode(q.Code),
				Name:   q.Name,
				Target: q.Target,
				Reward: q.Reward,
				Active: q.Active,
			})
		}
		rs.Quests = quests
	}
	return rs, nil
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	// Validate environment
	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	// Validate server config
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	// Validate storage config
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	// Validate auth config
	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("auth config: %v", err))
	}

	// Validate rules config
	if err := c.Rules.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("rules config: %v", err))
	}

	// Validate logging config
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	// Validate security config
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	// Create a copy for redaction
	cfg := *c

	// Redact sensitive information
	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if cfg.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = "[REDACTED]"
	}
	if len(cfg.Auth.StaticTokens) > 0 {
		cfg.Auth.StaticTokens = map[string]string{"[REDACTED]": "[REDACTED]"}
	}
	if cfg.Webhooks.SigningSecret != "" {
		cfg.Webhooks.SigningSecret = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
