// Package config loads testpilot configuration from a YAML file, an optional
// .env file and environment variables, in that order of increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete testpilot configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Executor  ExecutorConfig  `yaml:"executor" json:"executor"`
	FixLoop   FixLoopConfig   `yaml:"fix_loop" json:"fix_loop"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Browser   BrowserConfig   `yaml:"browser" json:"browser"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Targets   TargetsConfig   `yaml:"targets" json:"targets"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// LLMConfig configures the chat completion provider.
type LLMConfig struct {
	APIKey  string        `yaml:"api_key" json:"-"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Sampling for intent resolution and code generation
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`

	// Sampling for code fixes
	FixTemperature float64 `yaml:"fix_temperature" json:"fix_temperature"`

	// Client-side rate limit, zero disables it
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`

	// Prompt budget for retrieved page context
	ContextTokenBudget int `yaml:"context_token_budget" json:"context_token_budget"`
}

// ExecutorConfig configures the pytest runner.
type ExecutorConfig struct {
	PythonBin string        `yaml:"python_bin" json:"python_bin"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	TempDir   string        `yaml:"temp_dir" json:"temp_dir"`
}

// FixLoopConfig configures the retry controller.
type FixLoopConfig struct {
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// RetrievalConfig configures the vector store.
type RetrievalConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	WeaviateURL string        `yaml:"weaviate_url" json:"weaviate_url"`
	APIKey      string        `yaml:"api_key" json:"-"`
	ClassName   string        `yaml:"class_name" json:"class_name"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxDistance float64       `yaml:"max_distance" json:"max_distance"`
	MaxResults  int           `yaml:"max_results" json:"max_results"`
	ChunkSize   int           `yaml:"chunk_size" json:"chunk_size"`
}

// BrowserConfig configures page fetching for indexing.
type BrowserConfig struct {
	Headless bool          `yaml:"headless" json:"headless"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	Install  bool          `yaml:"install" json:"install"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins" json:"allowed_origins"`
}

// TargetsConfig restricts which hosts may be tested or indexed.
type TargetsConfig struct {
	AllowedHosts []string `yaml:"allowed_hosts" json:"allowed_hosts"`
	DeniedHosts  []string `yaml:"denied_hosts" json:"denied_hosts"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	Directory string `yaml:"directory" json:"directory"`
}

// DefaultConfig returns a configuration suitable for local use.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:            "https://api.openai.com/v1",
			Model:              "gpt-4o-mini",
			Timeout:            60 * time.Second,
			Temperature:        0.7,
			MaxTokens:          2000,
			FixTemperature:     0.3,
			RequestsPerMinute:  60,
			ContextTokenBudget: 3000,
		},
		Executor: ExecutorConfig{
			PythonBin: "python",
			Timeout:   5 * time.Minute,
		},
		FixLoop: FixLoopConfig{
			MaxRetries: 3,
		},
		Retrieval: RetrievalConfig{
			Enabled:     true,
			WeaviateURL: "http://localhost:8080",
			ClassName:   "PageChunk",
			Timeout:     30 * time.Second,
			MaxDistance: 1.8,
			MaxResults:  3,
			ChunkSize:   1000,
		},
		Browser: BrowserConfig{
			Headless: true,
			Timeout:  30 * time.Second,
			Install:  true,
		},
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies .env and
// environment overrides. An empty path skips the file. A missing .env file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.LLM.APIKey, "OPENAI_API_KEY")
	setString(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	setString(&c.LLM.Model, "TESTPILOT_MODEL")
	setString(&c.Retrieval.WeaviateURL, "WEAVIATE_URL")
	setString(&c.Retrieval.APIKey, "WEAVIATE_API_KEY")
	setString(&c.Server.Addr, "TESTPILOT_ADDR")
	setString(&c.Executor.PythonBin, "PYTHON_BIN")
	setString(&c.Logging.Level, "TESTPILOT_LOG_LEVEL")
	setString(&c.Logging.Directory, "TESTPILOT_LOG_DIR")

	if v := os.Getenv("TESTPILOT_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TESTPILOT_MAX_RETRIES %q: %w", v, err)
		}
		c.FixLoop.MaxRetries = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm timeout cannot be negative")
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm max_tokens cannot be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2")
	}
	if c.LLM.FixTemperature < 0 || c.LLM.FixTemperature > 2 {
		return fmt.Errorf("llm fix_temperature must be between 0 and 2")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm requests_per_minute cannot be negative")
	}

	if c.Executor.PythonBin == "" {
		return fmt.Errorf("executor python_bin is required")
	}
	if c.Executor.Timeout < 0 {
		return fmt.Errorf("executor timeout cannot be negative")
	}

	if c.FixLoop.MaxRetries < 0 {
		return fmt.Errorf("fix_loop max_retries cannot be negative")
	}

	if c.Retrieval.Enabled {
		if c.Retrieval.WeaviateURL == "" {
			return fmt.Errorf("retrieval weaviate_url is required when retrieval is enabled")
		}
		if c.Retrieval.ClassName == "" {
			return fmt.Errorf("retrieval class_name is required when retrieval is enabled")
		}
	}
	if c.Retrieval.MaxDistance < 0 {
		return fmt.Errorf("retrieval max_distance cannot be negative")
	}
	if c.Retrieval.MaxResults < 0 {
		return fmt.Errorf("retrieval max_results cannot be negative")
	}
	if c.Retrieval.ChunkSize < 0 {
		return fmt.Errorf("retrieval chunk_size cannot be negative")
	}

	if c.Browser.Timeout < 0 {
		return fmt.Errorf("browser timeout cannot be negative")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}

	return nil
}
