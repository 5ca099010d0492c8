package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level gateway configuration loaded from YAML and ENV.
type Config struct {
	Version     string                    `mapstructure:"version"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	Models      map[string]ModelConfig    `mapstructure:"models"`
	Workspace   WorkspaceConfig           `mapstructure:"workspace"`
	Pipeline    PipelineConfig            `mapstructure:"pipeline"`
	Suggestions SuggestionsConfig         `mapstructure:"suggestions"`
	Logging     LoggingConfig             `mapstructure:"logging"`
	Server      ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents an upstream model host such as an
// OpenAI-compatible endpoint or the editor's own language-model bridge.
type ProviderConfig struct {
	Type    string        `mapstructure:"type"`     // openai, mock
	BaseURL string        `mapstructure:"base_url"` // API base URL
	APIKey  string        `mapstructure:"api_key"`  // optional API key
	Timeout time.Duration `mapstructure:"timeout"`  // request timeout
}

// ModelConfig binds a logical model id to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
}

// WorkspaceConfig controls the workspace collaborator.
type WorkspaceConfig struct {
	Root                  string `mapstructure:"root"`
	AllowWrite            bool   `mapstructure:"allow_write"`
	SearchMaxResults      int    `mapstructure:"search_max_results"`
	SearchCacheTTLSeconds int    `mapstructure:"search_cache_ttl_seconds"`
	MaxFileBytes          int    `mapstructure:"max_file_bytes"`
}

// PipelineConfig describes chat pipeline runtime parameters.
type PipelineConfig struct {
	DefaultModel          string `mapstructure:"default_model"`
	MaxToolSteps          int    `mapstructure:"max_tool_steps"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// SuggestionsConfig controls the next-action suggestion engine.
type SuggestionsConfig struct {
	MaxActions int `mapstructure:"max_actions"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: COPILOT_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("workspace.root", ".")
	v.SetDefault("workspace.allow_write", true)
	v.SetDefault("workspace.search_max_results", 20)
	v.SetDefault("workspace.search_cache_ttl_seconds", 30)
	v.SetDefault("workspace.max_file_bytes", 1<<20)

	v.SetDefault("pipeline.default_model", "")
	v.SetDefault("pipeline.max_tool_steps", 6)
	v.SetDefault("pipeline.request_timeout_seconds", 120)

	v.SetDefault("suggestions.max_actions", 3)

	v.SetDefault("server.addr", ":8765")
	v.SetDefault("server.metrics_enabled", true)
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	var defaultFound bool
	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	if c.Pipeline.DefaultModel != "" {
		if _, ok := c.Models[c.Pipeline.DefaultModel]; !ok {
			return fmt.Errorf("pipeline references unknown model %q", c.Pipeline.DefaultModel)
		}
	}
	if c.Pipeline.MaxToolSteps <= 0 {
		return errors.New("pipeline.max_tool_steps must be > 0")
	}
	if c.Pipeline.RequestTimeoutSeconds <= 0 {
		return errors.New("pipeline.request_timeout_seconds must be > 0")
	}

	if c.Workspace.SearchMaxResults <= 0 {
		return errors.New("workspace.search_max_results must be > 0")
	}
	if c.Workspace.SearchCacheTTLSeconds < 0 {
		return errors.New("workspace.search_cache_ttl_seconds must be >= 0")
	}
	if c.Workspace.MaxFileBytes <= 0 {
		return errors.New("workspace.max_file_bytes must be > 0")
	}

	if c.Suggestions.MaxActions < 0 {
		return errors.New("suggestions.max_actions must be >= 0")
	}

	return nil
}
