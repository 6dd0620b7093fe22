// Package config handles configuration loading for Squadron.
// It supports XDG config paths, project-level overrides, and environment
// variables, plus the YAML squad/workflow catalog.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Squadron.
type Config struct {
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Server       ServerConfig       `mapstructure:"server"`
	State        StateConfig        `mapstructure:"state"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// AnthropicConfig holds agent invoker settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key.
	APIKey string `mapstructure:"api_key"`
	// Model is the Claude model handed to the invoker.
	Model string `mapstructure:"model"`
	// UseAWSBedrock routes invocations through AWS Bedrock.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile.
	AWSProfile string `mapstructure:"aws_profile"`
}

// OrchestratorConfig holds scheduling settings.
type OrchestratorConfig struct {
	// MaxParallelAgents bounds concurrent agent invocations across the
	// whole process, all tasks and steps included.
	MaxParallelAgents int `mapstructure:"max_parallel_agents"`
	// AgentTimeout is the per-agent invocation timeout.
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`
	// DefaultMaxIterations bounds the fix loop when a workflow does not
	// declare its own bound.
	DefaultMaxIterations int `mapstructure:"default_max_iterations"`
	// EventBuffer is the per-task progress event channel capacity.
	EventBuffer int `mapstructure:"event_buffer"`
}

// ServerConfig holds the REST control surface settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StateConfig holds task store settings.
type StateConfig struct {
	// Path is the SQLite database file. Empty disables persistence.
	Path string `mapstructure:"path"`
}

// CatalogConfig points at the squad/workflow catalog files.
type CatalogConfig struct {
	// Squads is the path to the squad catalog YAML.
	Squads string `mapstructure:"squads"`
	// Workflows is the path to the workflow catalog YAML.
	Workflows string `mapstructure:"workflows"`
}

// LoggingConfig holds structured logging settings for the server path.
type LoggingConfig struct {
	// Level is the zap level name (debug, info, warn, error).
	Level string `mapstructure:"level"`
	// DebugLog is the file path for the orchestrator debug log.
	// Empty disables it.
	DebugLog string `mapstructure:"debug_log"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
//  1. Environment variables (SQUADRON_*, ANTHROPIC_API_KEY)
//  2. Project config (.squadron/config.yaml in cwd or a parent)
//  3. User config (~/.config/squadron/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		pv := viper.New()
		pv.SetConfigFile(projectConfig)
		if err := pv.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("SQUADRON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// UserConfigPath returns the path to the user config file.
func UserConfigPath() string {
	return filepath.Join(userConfigDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")

	v.SetDefault("orchestrator.max_parallel_agents", 8)
	v.SetDefault("orchestrator.agent_timeout", "3m")
	v.SetDefault("orchestrator.default_max_iterations", 2)
	v.SetDefault("orchestrator.event_buffer", 100)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8337)

	v.SetDefault("state.path", "")

	v.SetDefault("catalog.squads", "")
	v.SetDefault("catalog.workflows", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.debug_log", "")
}

// userConfigDir returns the XDG config directory for squadron.
func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "squadron")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".squadron"
	}
	return filepath.Join(home, ".config", "squadron")
}

// findProjectConfig walks from the working directory upward looking for
// .squadron/config.yaml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".squadron", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
