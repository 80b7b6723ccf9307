// Package config loads service configuration from the environment with an
// optional YAML file override.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported LLM providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// LLM provider
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OllamaHost      string `yaml:"ollama_host"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AWSRegion       string `yaml:"aws_region"`

	// Batch ingestion
	ChunkSize        int           `yaml:"chunk_size"`
	ChunkOverlap     int           `yaml:"chunk_overlap"`
	BuildConcurrency int           `yaml:"build_concurrency"`
	ChunkDelay       time.Duration `yaml:"chunk_delay"`

	// Streaming ingestion
	StreamBatchSize    int           `yaml:"stream_batch_size"`
	StreamSendInterval time.Duration `yaml:"stream_send_interval"`

	// HTTP server
	ServerAddr string `yaml:"server_addr"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables, optionally merged
// over a YAML file named by GRAPHSCRIBE_CONFIG. Environment variables win.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("GRAPHSCRIBE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "graphscribe",
		SurrealDBDatabase:  "graphs",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		LLMProvider: ProviderOllama,
		LLMModel:    "llama3.1",
		OllamaHost:  "http://localhost:11434",

		ChunkSize:        500,
		ChunkOverlap:     50,
		BuildConcurrency: 4,
		ChunkDelay:       0,

		StreamBatchSize:    5,
		StreamSendInterval: 500 * time.Millisecond,

		ServerAddr: ":8090",

		LogFile:  "/tmp/graphscribe.log",
		LogLevel: slog.LevelInfo,
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.SurrealDBURL, "SURREALDB_URL")
	setString(&cfg.SurrealDBNamespace, "SURREALDB_NAMESPACE")
	setString(&cfg.SurrealDBDatabase, "SURREALDB_DATABASE")
	setString(&cfg.SurrealDBUser, "SURREALDB_USER")
	setString(&cfg.SurrealDBPass, "SURREALDB_PASS")
	setString(&cfg.SurrealDBAuthLevel, "SURREALDB_AUTH_LEVEL")

	setString(&cfg.LLMProvider, "GRAPHSCRIBE_LLM_PROVIDER")
	setString(&cfg.LLMModel, "GRAPHSCRIBE_LLM_MODEL")
	setString(&cfg.OllamaHost, "OLLAMA_HOST")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.AWSRegion, "AWS_REGION")

	setInt(&cfg.ChunkSize, "GRAPHSCRIBE_CHUNK_SIZE")
	setInt(&cfg.ChunkOverlap, "GRAPHSCRIBE_CHUNK_OVERLAP")
	setInt(&cfg.BuildConcurrency, "GRAPHSCRIBE_BUILD_CONCURRENCY")
	setDuration(&cfg.ChunkDelay, "GRAPHSCRIBE_CHUNK_DELAY")

	setInt(&cfg.StreamBatchSize, "GRAPHSCRIBE_STREAM_BATCH_SIZE")
	setDuration(&cfg.StreamSendInterval, "GRAPHSCRIBE_STREAM_SEND_INTERVAL")

	setString(&cfg.ServerAddr, "GRAPHSCRIBE_SERVER_ADDR")

	setString(&cfg.LogFile, "GRAPHSCRIBE_LOG_FILE")
	if val := os.Getenv("GRAPHSCRIBE_LOG_LEVEL"); val != "" {
		cfg.LogLevel = parseLogLevel(val)
	}
}

func (c Config) validate() error {
	switch c.LLMProvider {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderBedrock:
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.LLMProvider)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", c.ChunkOverlap)
	}
	if c.BuildConcurrency <= 0 {
		return fmt.Errorf("build concurrency must be positive, got %d", c.BuildConcurrency)
	}
	if c.StreamBatchSize <= 0 {
		return fmt.Errorf("stream batch size must be positive, got %d", c.StreamBatchSize)
	}
	return nil
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
