// Package config loads the coordination core's settings from YAML with
// environment overrides. Missing required values are fatal at startup;
// nothing else in the system reads the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`
	Debug      bool   `yaml:"debug"`

	A2ATimeoutSeconds   int     `yaml:"a2a_timeout_seconds"`
	A2AMaxRetries       int     `yaml:"a2a_max_retries"`
	MaxRetrievalResults int     `yaml:"max_retrieval_results"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	CacheSize           int     `yaml:"cache_size"`

	ConversationTTLSeconds int `yaml:"conversation_ttl_seconds"`
	SweepIntervalSeconds   int `yaml:"sweep_interval_seconds"`
	TraceRetentionHours    int `yaml:"trace_retention_hours"`

	LLM LLMConfig `yaml:"llm"`
}

type LLMConfig struct {
	// Provider selects the synthesizer: "claude" or "echo". Empty means
	// echo, which needs no credentials.
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// Load reads the config file, applies defaults and environment overrides,
// and validates. filename may be empty to run on defaults alone.
func Load(filename string) (*Config, error) {
	var config Config

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Set defaults
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if config.DataDir == "" {
		config.DataDir = "./data"
	}
	if config.A2ATimeoutSeconds == 0 {
		config.A2ATimeoutSeconds = 30
	}
	if config.A2AMaxRetries == 0 {
		config.A2AMaxRetries = 1
	}
	if config.MaxRetrievalResults == 0 {
		config.MaxRetrievalResults = 10
	}
	if config.SimilarityThreshold == 0 {
		config.SimilarityThreshold = 0.8
	}
	if config.CacheSize == 0 {
		config.CacheSize = 256
	}
	if config.ConversationTTLSeconds == 0 {
		config.ConversationTTLSeconds = 3600
	}
	if config.SweepIntervalSeconds == 0 {
		config.SweepIntervalSeconds = 60
	}
	if config.TraceRetentionHours == 0 {
		config.TraceRetentionHours = 168
	}
	if config.LLM.APIKeyEnv == "" {
		config.LLM.APIKeyEnv = "ANTHROPIC_API_KEY"
	}

	applyEnvOverrides(&config)

	// Validate configuration values
	if config.A2ATimeoutSeconds < 0 {
		return nil, fmt.Errorf("a2a timeout seconds cannot be negative: %d", config.A2ATimeoutSeconds)
	}
	if config.A2AMaxRetries < 0 {
		return nil, fmt.Errorf("a2a max retries cannot be negative: %d", config.A2AMaxRetries)
	}
	if config.MaxRetrievalResults < 1 {
		return nil, fmt.Errorf("max retrieval results must be at least 1: %d", config.MaxRetrievalResults)
	}
	if config.SimilarityThreshold < 0 || config.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be in [0,1]: %f", config.SimilarityThreshold)
	}
	if config.LLM.Provider == "claude" && os.Getenv(config.LLM.APIKeyEnv) == "" {
		return nil, fmt.Errorf("llm provider is claude but %s is not set", config.LLM.APIKeyEnv)
	}

	return &config, nil
}

// APIKey resolves the LLM credential from the configured environment
// variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("LEXGRAPH_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("LEXGRAPH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("LEXGRAPH_A2A_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.A2ATimeoutSeconds = n
		}
	}
	if v := os.Getenv("LEXGRAPH_A2A_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.A2AMaxRetries = n
		}
	}
	if v := os.Getenv("LEXGRAPH_MAX_RETRIEVAL_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetrievalResults = n
		}
	}
	if v := os.Getenv("LEXGRAPH_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("LEXGRAPH_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LEXGRAPH_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
}
