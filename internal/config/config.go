// Package config loads the service configuration from an optional file,
// TAILOR_ prefixed environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jonathan/resume-tailor/internal/db"
	"github.com/jonathan/resume-tailor/internal/enrich"
	"github.com/jonathan/resume-tailor/internal/llm"
	"github.com/jonathan/resume-tailor/internal/task"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TAILOR"

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig `mapstructure:"server"`
	Database     db.Config    `mapstructure:"database"`
	Orchestrator task.Config  `mapstructure:"orchestrator"`
	LLM          LLMConfig    `mapstructure:"llm"`
	Fetch        FetchConfig  `mapstructure:"fetch"`
	Log          LogConfig    `mapstructure:"log"`
}

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// JWTSecret enables bearer authentication on mutating routes when set.
	JWTSecret string          `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig sets per-client request budgets.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Submit applies to the task submission routes, which start model calls.
	SubmitPerMinute  int `mapstructure:"submit_per_minute" validate:"min=0"`
	SubmitBurst      int `mapstructure:"submit_burst" validate:"min=0"`
	DefaultPerMinute int `mapstructure:"default_per_minute" validate:"min=0"`
	DefaultBurst     int `mapstructure:"default_burst" validate:"min=0"`
}

// LLMConfig contains the Gemini settings.
type LLMConfig struct {
	APIKey      string       `mapstructure:"api_key"`
	Temperature float32      `mapstructure:"temperature" validate:"min=0,max=2"`
	Models      ModelsConfig `mapstructure:"models"`
	Stages      enrich.Tiers `mapstructure:"stages"`
}

// ModelsConfig names the model used for each tier.
type ModelsConfig struct {
	Lite     string `mapstructure:"lite"`
	Standard string `mapstructure:"standard" validate:"required"`
	Advanced string `mapstructure:"advanced"`
}

// FetchConfig controls job link downloads.
type FetchConfig struct {
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	UserAgent      string        `mapstructure:"user_agent"`
	Browser        bool          `mapstructure:"browser"`
	BrowserTimeout time.Duration `mapstructure:"browser_timeout"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// ClientConfig converts the model settings for llm.NewGeminiClient.
func (c LLMConfig) ClientConfig() *llm.Config {
	cfg := llm.DefaultConfig()
	cfg.Temperature = c.Temperature
	for tier, name := range map[llm.ModelTier]string{
		llm.TierLite:     c.Models.Lite,
		llm.TierStandard: c.Models.Standard,
		llm.TierAdvanced: c.Models.Advanced,
	} {
		if name != "" {
			cfg = cfg.WithModel(tier, name)
		}
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 300*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.submit_per_minute", 30)
	v.SetDefault("server.rate_limit.submit_burst", 10)
	v.SetDefault("server.rate_limit.default_per_minute", 600)
	v.SetDefault("server.rate_limit.default_burst", 100)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("database.run_migrations", false)

	orch := task.DefaultConfig()
	v.SetDefault("orchestrator.batch_size", orch.BatchSize)
	v.SetDefault("orchestrator.workers", orch.Workers)
	v.SetDefault("orchestrator.queue_size", orch.QueueSize)
	v.SetDefault("orchestrator.task_timeout", orch.TaskTimeout)
	v.SetDefault("orchestrator.store_retries", orch.StoreRetries)
	v.SetDefault("orchestrator.store_backoff", orch.StoreBackoff)
	v.SetDefault("orchestrator.stuck_after", orch.StuckAfter)
	v.SetDefault("orchestrator.check_interval", orch.CheckInterval)

	models := llm.DefaultConfig()
	tiers := enrich.DefaultTiers()
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.temperature", models.Temperature)
	v.SetDefault("llm.models.lite", models.GetModel(llm.TierLite))
	v.SetDefault("llm.models.standard", models.GetModel(llm.TierStandard))
	v.SetDefault("llm.models.advanced", models.GetModel(llm.TierAdvanced))
	v.SetDefault("llm.stages.parse", string(tiers.Parse))
	v.SetDefault("llm.stages.rewrite", string(tiers.Rewrite))
	v.SetDefault("llm.stages.skills", string(tiers.Skills))
	v.SetDefault("llm.stages.summary", string(tiers.Summary))

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.browser", false)
	v.SetDefault("fetch.browser_timeout", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// unprefixed are the conventional variable names honored next to their
// TAILOR_ spellings. The prefixed name wins when both are set.
var unprefixed = map[string]string{
	"database.url": "DATABASE_URL",
	"llm.api_key":  "GEMINI_API_KEY",
	"server.port":  "PORT",
}

// Load reads configuration. path may be empty; a named file that cannot be
// read is an error. Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range unprefixed {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("configuration validation failed: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
