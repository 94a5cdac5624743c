package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
meilisearch:
  url: "http://meili:7700"
  index: "articles"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.MeiliSearch.URL != "http://meili:7700" || cfg.MeiliSearch.Index != "articles" {
		t.Errorf("unexpected meilisearch config: %+v", cfg.MeiliSearch)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Backend != BackendMeiliSearch {
		t.Errorf("backend = %q, want %q", cfg.Backend, BackendMeiliSearch)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
tokenizer:
  custom_dictionary_path: "./dict/custom.json"
tasks:
  database_path: "./data/tasks.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDict := filepath.Join(dir, "dict", "custom.json")
	if cfg.Tokenizer.CustomDictionaryPath != wantDict {
		t.Errorf("custom_dictionary_path = %s, want %s", cfg.Tokenizer.CustomDictionaryPath, wantDict)
	}
	wantDB := filepath.Join(dir, "data", "tasks.db")
	if cfg.Tasks.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Tasks.DatabasePath, wantDB)
	}
	if cfg.Bleve.Path != "" {
		t.Errorf("empty bleve path should stay empty, got %s", cfg.Bleve.Path)
	}
}

func TestLoad_invalidEngine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tokenizer:\n  engine: \"newmm\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown engine")
	}
}

func TestLoad_envOverride(t *testing.T) {
	t.Setenv("KHAM_MEILI_URL", "http://env:7700")
	t.Setenv("KHAM_SERVER_PORT", "9100")
	t.Setenv("KHAM_KAFKA_BROKERS", "a:9092,b:9092")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("meilisearch:\n  url: \"http://file:7700\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MeiliSearch.URL != "http://env:7700" {
		t.Errorf("env should override file, got %s", cfg.MeiliSearch.URL)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if len(cfg.Analytics.Kafka.Brokers) != 2 {
		t.Errorf("brokers = %v", cfg.Analytics.Kafka.Brokers)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Tokenizer.Engine != EngineMaximal || cfg.Tokenizer.FallbackEngine != EngineLongest {
		t.Errorf("engines: got %s/%s", cfg.Tokenizer.Engine, cfg.Tokenizer.FallbackEngine)
	}
	if cfg.Processing.Separator != " " {
		t.Errorf("separator: got %q", cfg.Processing.Separator)
	}
	if len(cfg.Processing.NonSeparatorTokens) != 2 {
		t.Errorf("non separator tokens: got %v", cfg.Processing.NonSeparatorTokens)
	}
	if cfg.Query.MaxVariants != 5 || cfg.Query.MaxCompoundVariants != 8 {
		t.Errorf("variant limits: got %d/%d", cfg.Query.MaxVariants, cfg.Query.MaxCompoundVariants)
	}
	if cfg.Query.PartialBoost != 0.8 || cfg.Query.CompoundPartialBoost != 0.6 {
		t.Errorf("boosts: got %v/%v", cfg.Query.PartialBoost, cfg.Query.CompoundPartialBoost)
	}
	if cfg.Enhance.MaxBoostRatio != 0.3 {
		t.Errorf("max_boost_ratio: got %v", cfg.Enhance.MaxBoostRatio)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("cache ttl: got %v", cfg.Cache.TTL)
	}
	if len(cfg.Enhance.HighlightFields) != len(cfg.Processing.Fields) {
		t.Errorf("highlight fields should default to processing fields: %v", cfg.Enhance.HighlightFields)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestTokenizerConfig_KeepWhitespaceOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		c := &TokenizerConfig{}
		if got := c.KeepWhitespaceOrDefault(); !got {
			t.Errorf("KeepWhitespaceOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		c := &TokenizerConfig{KeepWhitespace: &f}
		if got := c.KeepWhitespaceOrDefault(); got {
			t.Errorf("KeepWhitespaceOrDefault() = %v, want false", got)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Backend = "elastic" }},
		{"fallback engine", func(c *Config) { c.Tokenizer.FallbackEngine = "deepcut" }},
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"boost", func(c *Config) { c.Query.PartialBoost = 5 }},
		{"cache", func(c *Config) { c.Cache.Type = "memcached" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server: ServerConfig{Host: "localhost", Port: 9090},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
