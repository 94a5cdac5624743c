package config

import (
	"fmt"
	"time"
)

// Segmentation engine names.
const (
	EngineMaximal = "maximal"
	EngineLongest = "longest"
)

// Boost bounds shared by the query processor and validation.
const (
	MinBoost = 0.1
	MaxBoost = 3.0
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Backend == "" {
		cfg.Backend = BackendMeiliSearch
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}

	if cfg.MeiliSearch.URL == "" {
		cfg.MeiliSearch.URL = "http://localhost:7700"
	}
	if cfg.MeiliSearch.Index == "" {
		cfg.MeiliSearch.Index = "documents"
	}
	if cfg.MeiliSearch.PrimaryKey == "" {
		cfg.MeiliSearch.PrimaryKey = "id"
	}
	if cfg.MeiliSearch.Timeout == 0 {
		cfg.MeiliSearch.Timeout = 10 * time.Second
	}
	if cfg.MeiliSearch.MaxRetries == 0 {
		cfg.MeiliSearch.MaxRetries = 3
	}
	if cfg.MeiliSearch.RetryInitialDelay == 0 {
		cfg.MeiliSearch.RetryInitialDelay = 100 * time.Millisecond
	}
	if cfg.MeiliSearch.RetryMaxDelay == 0 {
		cfg.MeiliSearch.RetryMaxDelay = 2 * time.Second
	}
	if cfg.MeiliSearch.TaskPollInterval == 0 {
		cfg.MeiliSearch.TaskPollInterval = 100 * time.Millisecond
	}

	if cfg.Tokenizer.Engine == "" {
		cfg.Tokenizer.Engine = EngineMaximal
	}
	if cfg.Tokenizer.FallbackEngine == "" {
		cfg.Tokenizer.FallbackEngine = EngineLongest
	}
	if cfg.Tokenizer.KeepWhitespace == nil {
		t := true
		cfg.Tokenizer.KeepWhitespace = &t
	}

	if cfg.Processing.Fields == nil {
		cfg.Processing.Fields = []string{"title", "content"}
	}
	if cfg.Processing.IDField == "" {
		cfg.Processing.IDField = cfg.MeiliSearch.PrimaryKey
	}
	if cfg.Processing.Separator == "" {
		cfg.Processing.Separator = " "
	}
	if cfg.Processing.NonSeparatorTokens == nil {
		cfg.Processing.NonSeparatorTokens = []string{"ๆ", "ฯ"}
	}
	if cfg.Processing.TokenizedSuffix == "" {
		cfg.Processing.TokenizedSuffix = "_tokenized"
	}
	if cfg.Processing.MaxConcurrent == 0 {
		cfg.Processing.MaxConcurrent = 8
	}

	if cfg.Query.MaxVariants == 0 {
		cfg.Query.MaxVariants = 5
	}
	if cfg.Query.MaxCompoundVariants == 0 {
		cfg.Query.MaxCompoundVariants = 8
	}
	if cfg.Query.MaxSuggestions == 0 {
		cfg.Query.MaxSuggestions = 5
	}
	if cfg.Query.MaxCompletionsPerToken == 0 {
		cfg.Query.MaxCompletionsPerToken = 3
	}
	if cfg.Query.MinFragmentLength == 0 {
		cfg.Query.MinFragmentLength = 2
	}
	if cfg.Query.PartialBoost == 0 {
		cfg.Query.PartialBoost = 0.8
	}
	if cfg.Query.CompoundPartialBoost == 0 {
		cfg.Query.CompoundPartialBoost = 0.6
	}

	if cfg.Enhance.MaxBoostRatio == 0 {
		cfg.Enhance.MaxBoostRatio = 0.3
	}
	if cfg.Enhance.DefaultScore == 0 {
		cfg.Enhance.DefaultScore = 1.0
	}
	if cfg.Enhance.HighlightFields == nil {
		cfg.Enhance.HighlightFields = append([]string(nil), cfg.Processing.Fields...)
	}

	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "memory"
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 1000
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Cache.Redis.Addr == "" {
		cfg.Cache.Redis.Addr = "localhost:6379"
	}
	if cfg.Cache.Redis.PoolSize == 0 {
		cfg.Cache.Redis.PoolSize = 10
	}
	if cfg.Cache.Redis.KeyPrefix == "" {
		cfg.Cache.Redis.KeyPrefix = "kham:"
	}

	if cfg.Analytics.MaxLatencySamples == 0 {
		cfg.Analytics.MaxLatencySamples = 10000
	}
	if cfg.Analytics.SessionTTL == 0 {
		cfg.Analytics.SessionTTL = 30 * time.Minute
	}
	if cfg.Analytics.BufferSize == 0 {
		cfg.Analytics.BufferSize = 1000
	}
	if cfg.Analytics.Kafka.Topic == "" {
		cfg.Analytics.Kafka.Topic = "kham-query-events"
	}

	if cfg.Tasks.Workers == 0 {
		cfg.Tasks.Workers = 2
	}
	if cfg.Tasks.QueueSize == 0 {
		cfg.Tasks.QueueSize = 100
	}
}

// Validate reports settings that cannot work together.
func Validate(cfg *Config) error {
	switch cfg.Backend {
	case BackendMeiliSearch, BackendBleve:
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	for _, name := range []string{cfg.Tokenizer.Engine, cfg.Tokenizer.FallbackEngine} {
		switch name {
		case EngineMaximal, EngineLongest:
		default:
			return fmt.Errorf("unknown segmentation engine %q", name)
		}
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Processing.MaxConcurrent < 0 {
		return fmt.Errorf("processing.max_concurrent must be positive")
	}
	if cfg.Query.MaxVariants < 1 || cfg.Query.MaxCompoundVariants < 1 {
		return fmt.Errorf("query variant limits must be at least 1")
	}
	for name, b := range map[string]float64{
		"query.partial_boost":          cfg.Query.PartialBoost,
		"query.compound_partial_boost": cfg.Query.CompoundPartialBoost,
	} {
		if b < MinBoost || b > MaxBoost {
			return fmt.Errorf("%s must be within [%.1f, %.1f], got %v", name, MinBoost, MaxBoost, b)
		}
	}
	if cfg.Enhance.MaxBoostRatio < 0 {
		return fmt.Errorf("enhance.max_boost_ratio must not be negative")
	}
	switch cfg.Cache.Type {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}
	return nil
}
