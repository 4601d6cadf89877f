// Package config loads and hot-reloads the orchestrator's YAML
// configuration, grounded on the teacher's internal/config package (one
// struct per concern, decoded with gopkg.in/yaml.v3) and its
// internal/skills.Manager file-watch loop (github.com/fsnotify/fsnotify,
// debounced).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the orchestrator's top-level configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Loop     LoopConfig     `yaml:"loop"`
	Executor ExecutorConfig `yaml:"executor"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the consumer-facing HTTP/WS transport.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	EnableWS    bool   `yaml:"enable_ws"`
}

// ModelConfig configures the Model Client.
type ModelConfig struct {
	Provider    string        `yaml:"provider"` // only "anthropic" is implemented
	APIKeyEnv   string        `yaml:"api_key_env"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoopConfig configures the Orchestrator's bounds, per spec §4.2/§9.
type LoopConfig struct {
	MaxHistoryMessages int `yaml:"max_history_messages"`
	MaxTurns           int `yaml:"max_turns"`
}

// ExecutorConfig configures the Tool Executor.
type ExecutorConfig struct {
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

// JanitorConfig configures the background conversation sweeper.
type JanitorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	TTL      time.Duration `yaml:"ttl"`
}

// AuthConfig configures the optional bearer-token middleware.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig configures log/slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"` // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080, MetricsPort: 9090},
		Model: ModelConfig{
			Provider: "anthropic", APIKeyEnv: "ANTHROPIC_API_KEY",
			Model: "claude-sonnet-4-5", MaxTokens: 4096, Timeout: 120 * time.Second,
		},
		Loop:     LoopConfig{MaxHistoryMessages: 10, MaxTurns: 500},
		Executor: ExecutorConfig{ToolTimeout: 60 * time.Second},
		Janitor:  JanitorConfig{Enabled: true, Interval: time.Minute, TTL: 30 * time.Minute},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and decodes a YAML config file over top of Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the package assumes hold.
func (c *Config) Validate() error {
	if c.Model.Provider != "anthropic" {
		return fmt.Errorf("config: unsupported model.provider %q", c.Model.Provider)
	}
	if c.Loop.MaxHistoryMessages <= 0 {
		return fmt.Errorf("config: loop.max_history_messages must be positive")
	}
	if c.Loop.MaxTurns <= 0 {
		return fmt.Errorf("config: loop.max_turns must be positive")
	}
	return nil
}

// APIKey resolves the model API key from the environment variable named by
// Model.APIKeyEnv.
func (c *Config) APIKey() (string, error) {
	key := os.Getenv(c.Model.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("config: environment variable %s is not set", c.Model.APIKeyEnv)
	}
	return key, nil
}
