// Package config provides configuration loading and structs for the kham server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in Config.Backend.
const (
	BackendMeiliSearch = "meilisearch"
	BackendBleve       = "bleve"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Backend     string            `yaml:"backend"`
	Server      ServerConfig      `yaml:"server"`
	MeiliSearch MeiliSearchConfig `yaml:"meilisearch"`
	Bleve       BleveConfig       `yaml:"bleve"`
	Tokenizer   TokenizerConfig   `yaml:"tokenizer"`
	Processing  ProcessingConfig  `yaml:"processing"`
	Query       QueryConfig       `yaml:"query"`
	Enhance     EnhanceConfig     `yaml:"enhance"`
	Cache       CacheConfig       `yaml:"cache"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	Tasks       TasksConfig       `yaml:"tasks"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// MeiliSearchConfig holds connection and resilience settings for the search engine.
type MeiliSearchConfig struct {
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key"`
	Index             string        `yaml:"index"`
	PrimaryKey        string        `yaml:"primary_key"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	TaskPollInterval  time.Duration `yaml:"task_poll_interval"`
}

// BleveConfig configures the local bleve backend. An empty Path keeps the index in memory.
type BleveConfig struct {
	Path string `yaml:"path"`
}

// TokenizerConfig selects segmentation engines and dictionaries.
type TokenizerConfig struct {
	Engine               string `yaml:"engine"`
	FallbackEngine       string `yaml:"fallback_engine"`
	KeepWhitespace       *bool  `yaml:"keep_whitespace"`
	BaseDictionaryPath   string `yaml:"base_dictionary_path"`
	CustomDictionaryPath string `yaml:"custom_dictionary_path"`
	WatchDictionary      bool   `yaml:"watch_dictionary"`
}

// KeepWhitespaceOrDefault returns whether whitespace tokens are kept; defaults to true when unset.
func (t *TokenizerConfig) KeepWhitespaceOrDefault() bool {
	if t.KeepWhitespace != nil {
		return *t.KeepWhitespace
	}
	return true
}

// ProcessingConfig controls how documents are prepared for indexing.
type ProcessingConfig struct {
	Fields             []string `yaml:"fields"`
	IDField            string   `yaml:"id_field"`
	Separator          string   `yaml:"separator"`
	NonSeparatorTokens []string `yaml:"non_separator_tokens"`
	TokenizedSuffix    string   `yaml:"tokenized_suffix"`
	MaxConcurrent      int      `yaml:"max_concurrent"`
	GenerateIDs        bool     `yaml:"generate_ids"`
}

// QueryConfig controls query expansion limits and boosts.
type QueryConfig struct {
	MaxVariants            int     `yaml:"max_variants"`
	MaxCompoundVariants    int     `yaml:"max_compound_variants"`
	MaxSuggestions         int     `yaml:"max_suggestions"`
	MaxCompletionsPerToken int     `yaml:"max_completions_per_token"`
	MinFragmentLength      int     `yaml:"min_fragment_length"`
	PartialBoost           float64 `yaml:"partial_boost"`
	CompoundPartialBoost   float64 `yaml:"compound_partial_boost"`
}

// EnhanceConfig controls result re-scoring.
type EnhanceConfig struct {
	MaxBoostRatio   float64  `yaml:"max_boost_ratio"`
	DefaultScore    float64  `yaml:"default_score"`
	HighlightFields []string `yaml:"highlight_fields"`
}

// CacheConfig selects the query-result cache.
type CacheConfig struct {
	Type  string        `yaml:"type"` // memory, redis, none
	Size  int           `yaml:"size"`
	TTL   time.Duration `yaml:"ttl"`
	Redis RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// AnalyticsConfig controls query analytics aggregation and export.
type AnalyticsConfig struct {
	Enabled           bool          `yaml:"enabled"`
	MaxLatencySamples int           `yaml:"max_latency_samples"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	BufferSize        int           `yaml:"buffer_size"`
	Kafka             KafkaConfig   `yaml:"kafka"`
}

// KafkaConfig holds the analytics export topic.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// TasksConfig controls the background task queue. An empty DatabasePath keeps tasks in memory.
type TasksConfig struct {
	Workers      int    `yaml:"workers"`
	QueueSize    int    `yaml:"queue_size"`
	DatabasePath string `yaml:"database_path"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses the config file at path, expands paths, applies defaults and
// KHAM_* environment overrides. Returns an error if the file cannot be read or parsed,
// or if the result is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Bleve.Path = expandPath(cfg.Bleve.Path, configDir)
	cfg.Tokenizer.BaseDictionaryPath = expandPath(cfg.Tokenizer.BaseDictionaryPath, configDir)
	cfg.Tokenizer.CustomDictionaryPath = expandPath(cfg.Tokenizer.CustomDictionaryPath, configDir)
	cfg.Tasks.DatabasePath = expandPath(cfg.Tasks.DatabasePath, configDir)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration built only from defaults and the environment.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from KHAM_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("KHAM_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv("KHAM_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("KHAM_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KHAM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KHAM_MEILI_URL"); v != "" {
		cfg.MeiliSearch.URL = v
	}
	if v := os.Getenv("KHAM_MEILI_API_KEY"); v != "" {
		cfg.MeiliSearch.APIKey = v
	}
	if v := os.Getenv("KHAM_MEILI_INDEX"); v != "" {
		cfg.MeiliSearch.Index = v
	}
	if v := os.Getenv("KHAM_CUSTOM_DICTIONARY"); v != "" {
		cfg.Tokenizer.CustomDictionaryPath = v
	}
	if v := os.Getenv("KHAM_REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("KHAM_KAFKA_BROKERS"); v != "" {
		cfg.Analytics.Kafka.Brokers = strings.Split(v, ",")
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
