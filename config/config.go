// Package config loads the runtime configuration of a saathi deployment from
// a YAML file, SAATHI_* environment variables and bound command line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides: SAATHI_MODEL_PROVIDER
// sets model.provider.
const EnvPrefix = "SAATHI"

const (
	configName = "saathi"
	configType = "yaml"
	configDir  = ".saathi"
)

// Model providers.
const (
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Config is the full runtime configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Model     ModelConfig     `mapstructure:"model"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Session   SessionConfig   `mapstructure:"session"`
	Runs      RunsConfig      `mapstructure:"runs"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	// Graphs is a YAML file overriding the default composition graphs.
	Graphs string `mapstructure:"graphs"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format is "text" or "json" for the slog logger, "zap" for zap.
	Format      string `mapstructure:"format"`
	Development bool   `mapstructure:"development"`
}

// ModelConfig selects the reasoning provider.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Name        string  `mapstructure:"name"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// GatewayConfig bounds inference calls.
type GatewayConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	// RateLimit is in calls per second. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// MemoryConfig sizes the memory bank.
type MemoryConfig struct {
	Budget   int           `mapstructure:"budget"`
	Keep     int           `mapstructure:"keep"`
	HalfLife time.Duration `mapstructure:"half_life"`
	// Journal is a SQLite file persisting the bank. Empty keeps memory
	// volatile.
	Journal string `mapstructure:"journal"`
}

// SessionConfig selects the session store.
type SessionConfig struct {
	Backend     string        `mapstructure:"backend"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	Redis       RedisConfig   `mapstructure:"redis"`
}

// RedisConfig addresses the Redis session backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// RunsConfig bounds turn execution.
type RunsConfig struct {
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	MaxInferenceCalls int           `mapstructure:"max_inference_calls"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Workers           int           `mapstructure:"workers"`
	LoopIterations    int           `mapstructure:"loop_iterations"`
}

// ToolsConfig configures the tool set.
type ToolsConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// FileDir enables the file tool rooted at this directory.
	FileDir string `mapstructure:"file_dir"`
}

// TelemetryConfig toggles OpenTelemetry export through the global providers.
type TelemetryConfig struct {
	OTel bool `mapstructure:"otel"`
}

// SetDefaults registers every default on v. Every key gets one, which also
// makes it visible to AutomaticEnv during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.development", false)
	v.SetDefault("model.provider", ProviderMock)
	v.SetDefault("model.name", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.max_tokens", 1024)
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("gateway.max_retries", 2)
	v.SetDefault("gateway.initial_backoff", 200*time.Millisecond)
	v.SetDefault("gateway.max_backoff", 5*time.Second)
	v.SetDefault("gateway.rate_limit", 0.0)
	v.SetDefault("gateway.burst", 1)
	v.SetDefault("memory.budget", 1<<20)
	v.SetDefault("memory.keep", 5)
	v.SetDefault("memory.half_life", 24*time.Hour)
	v.SetDefault("memory.journal", "")
	v.SetDefault("session.backend", SessionMemory)
	v.SetDefault("session.idle_timeout", 30*time.Minute)
	v.SetDefault("session.redis.addr", "localhost:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.prefix", "saathi:session:")
	v.SetDefault("runs.max_concurrent", 10)
	v.SetDefault("runs.max_inference_calls", 0)
	v.SetDefault("runs.timeout", 2*time.Minute)
	v.SetDefault("runs.workers", 4)
	v.SetDefault("runs.loop_iterations", 3)
	v.SetDefault("tools.timeout", 10*time.Second)
	v.SetDefault("tools.file_dir", "")
	v.SetDefault("telemetry.otel", false)
	v.SetDefault("graphs", "")
}

// Default returns the configuration with every default applied. It panics if
// the defaults do not decode into Config.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: decode defaults: %v", err))
	}
	return cfg
}

// Load reads the configuration into v. When path is empty the file
// saathi.yaml is searched in the working directory and in ~/.saathi; a
// missing file is not an error. Flags bound to v beforehand take precedence.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, configDir))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{ProviderMock, ProviderOpenAI, ProviderAnthropic, ProviderGemini}, c.Model.Provider) {
		errs = append(errs, fmt.Errorf("model.provider: unknown provider %q", c.Model.Provider))
	}
	if c.Model.Provider != ProviderMock && c.Model.APIKey == "" {
		errs = append(errs, fmt.Errorf("model.api_key: required for provider %q", c.Model.Provider))
	}
	if !slices.Contains([]string{SessionMemory, SessionRedis}, c.Session.Backend) {
		errs = append(errs, fmt.Errorf("session.backend: unknown backend %q", c.Session.Backend))
	}
	if c.Memory.Budget <= 0 {
		errs = append(errs, errors.New("memory.budget: must be positive"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("gateway.timeout: must be positive"))
	}
	if c.Gateway.MaxRetries < 0 {
		errs = append(errs, errors.New("gateway.max_retries: must not be negative"))
	}
	if c.Runs.MaxConcurrent < 1 {
		errs = append(errs, errors.New("runs.max_concurrent: must be at least 1"))
	}
	if c.Runs.LoopIterations < 1 {
		errs = append(errs, errors.New("runs.loop_iterations: must be at least 1"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
