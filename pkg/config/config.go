package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/soundprediction/avert/pkg/resilience"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Model configuration: the backend that scores candidates
	Model ModelConfig `mapstructure:"model"`

	// Templates configuration
	Templates TemplateConfig `mapstructure:"templates"`

	// Scoring configuration
	Scoring ScoringConfig `mapstructure:"scoring"`

	// Cache configuration
	Cache CacheConfig `mapstructure:"cache"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Retry configuration
	Retry resilience.RetryConfig `mapstructure:"retry"`

	// CircuitBreaker configuration
	CircuitBreaker resilience.BreakerConfig `mapstructure:"circuit_breaker"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// ModelConfig selects the scoring backend.
type ModelConfig struct {
	Method       string        `mapstructure:"method"`        // embedding, rerank
	Endpoint     string        `mapstructure:"endpoint"`      // base URL of the serving stack
	EndpointType string        `mapstructure:"endpoint_type"` // tei, vllm, openai, local
	Name         string        `mapstructure:"name"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// TemplateConfig holds the document and query templates and the
// instructions injected into them.
type TemplateConfig struct {
	// Prompt selects a predefined template pair and wins over Document and
	// Query.
	Prompt   string `mapstructure:"prompt"`
	Document string `mapstructure:"document"`
	Query    string `mapstructure:"query"`

	Instructions     map[string]string `mapstructure:"instructions"`
	InstructionsFile string            `mapstructure:"instructions_file"`
	// MissingInstruction is one of drop, empty, error.
	MissingInstruction string `mapstructure:"missing_instruction"`
}

// ScoringConfig holds candidate generation and aggregation settings.
type ScoringConfig struct {
	Grouping  string `mapstructure:"grouping"`
	Enhance   bool   `mapstructure:"enhance"`
	Symbols   string `mapstructure:"symbols"`
	BatchSize int    `mapstructure:"batch_size"`
	MaxLen    int    `mapstructure:"max_len"`
	// MinScore marks verdicts invalid when no candidate reaches it. Zero
	// disables the check.
	MinScore float64 `mapstructure:"min_score"`
	// Concurrency bounds parallel samples in batch mode.
	Concurrency int `mapstructure:"concurrency"`
}

// CacheConfig holds the embedding cache configuration
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"` // empty keeps the cache in memory
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// Load loads configuration from the global viper instance and environment
// variables.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom loads configuration from v and environment variables.
func LoadFrom(v *viper.Viper) (*Config, error) {
	// Set defaults
	setDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", true)

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("model.timeout", 120*time.Second)

	v.SetDefault("templates.missing_instruction", "drop")

	// Scoring defaults
	v.SetDefault("scoring.grouping", "max")
	v.SetDefault("scoring.enhance", true)
	v.SetDefault("scoring.symbols", "letters")
	v.SetDefault("scoring.batch_size", 32)
	v.SetDefault("scoring.max_len", -1)
	v.SetDefault("scoring.concurrency", 4)

	retry := resilience.DefaultRetryConfig()
	v.SetDefault("retry.max_retries", retry.MaxRetries)
	v.SetDefault("retry.initial_delay", retry.InitialDelay)
	v.SetDefault("retry.max_delay", retry.MaxDelay)
	v.SetDefault("retry.backoff_multiplier", retry.BackoffMultiplier)

	breaker := resilience.DefaultBreakerConfig()
	v.SetDefault("circuit_breaker.enabled", breaker.Enabled)
	v.SetDefault("circuit_breaker.max_requests", breaker.MaxRequests)
	v.SetDefault("circuit_breaker.interval", breaker.Interval)
	v.SetDefault("circuit_breaker.timeout", breaker.Timeout)
	v.SetDefault("circuit_breaker.min_requests", breaker.MinRequests)
	v.SetDefault("circuit_breaker.ready_to_trip_ratio", breaker.ReadyToTripRatio)

	// Telemetry defaults
	home, err := os.UserHomeDir()
	if err == nil {
		defaultPath := fmt.Sprintf("%s/.avert/telemetry", home)
		v.SetDefault("telemetry.parquet_path", defaultPath)
	}
}

// overrideWithEnv overrides config with the AVERT_* environment variables
func overrideWithEnv(config *Config) error {
	// Backend
	if endpoint := os.Getenv("AVERT_MODEL_ENDPOINT"); endpoint != "" {
		config.Model.Endpoint = endpoint
	}
	if endpointType := os.Getenv("AVERT_ENDPOINT_TYPE"); endpointType != "" {
		config.Model.EndpointType = endpointType
	}
	if name := os.Getenv("AVERT_MODEL_NAME"); name != "" {
		config.Model.Name = name
	}
	if method := os.Getenv("AVERT_METHOD"); method != "" {
		config.Model.Method = method
	}
	if apiKey := os.Getenv("AVERT_API_KEY"); apiKey != "" {
		config.Model.APIKey = apiKey
	} else if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && config.Model.APIKey == "" {
		config.Model.APIKey = apiKey
	}

	// Templates
	if name := os.Getenv("AVERT_PROMPT_TEMPLATE"); name != "" {
		config.Templates.Prompt = name
	}
	if doc, ok := os.LookupEnv("AVERT_DOCUMENT_TEMPLATE"); ok {
		config.Templates.Document = decodeEscapes(doc)
	}
	if query, ok := os.LookupEnv("AVERT_QUERY_TEMPLATE"); ok {
		config.Templates.Query = decodeEscapes(query)
	}
	if prompt := strings.TrimSpace(os.Getenv("AVERT_INSTRUCTION_PROMPT")); prompt != "" {
		if config.Templates.Instructions == nil {
			config.Templates.Instructions = make(map[string]string)
		}
		config.Templates.Instructions["default"] = prompt
	}
	if path := os.Getenv("AVERT_INSTRUCTIONS_FILE"); path != "" {
		config.Templates.InstructionsFile = path
	}
	if policy := os.Getenv("AVERT_MISSING_INSTRUCTION"); policy != "" {
		config.Templates.MissingInstruction = policy
	}

	// Scoring
	if grouping := os.Getenv("AVERT_GROUPING"); grouping != "" {
		config.Scoring.Grouping = grouping
	}
	if enhance := os.Getenv("AVERT_ENHANCE"); enhance != "" {
		b, err := parseBool(enhance)
		if err != nil {
			return err
		}
		config.Scoring.Enhance = b
	}
	if size := os.Getenv("AVERT_BATCH_SIZE"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Errorf("invalid AVERT_BATCH_SIZE %q: %w", size, err)
		}
		config.Scoring.BatchSize = n
	}
	if maxLen := os.Getenv("AVERT_MAX_LEN"); maxLen != "" {
		n, err := strconv.Atoi(maxLen)
		if err != nil {
			return fmt.Errorf("invalid AVERT_MAX_LEN %q: %w", maxLen, err)
		}
		config.Scoring.MaxLen = n
	}

	// Logging
	if level := os.Getenv("AVERT_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", port, err)
		}
		config.Server.Port = n
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
	return nil
}

// parseBool accepts true/false, 1/0 and yes/no.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid AVERT_ENHANCE value %q: must be one of true, false, 1, 0, yes, no", s)
	}
}

// decodeEscapes turns backslash escapes such as \n into the characters they
// name, so multi-line templates fit in one environment variable. Malformed
// input is returned unchanged.
func decodeEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	decoded, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
	if err != nil {
		return s
	}
	return decoded
}
