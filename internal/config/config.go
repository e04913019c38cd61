// Package config loads and validates the engine configuration.
// Precedence: built-in defaults, then the YAML config file, then
// environment variables. A .env file next to the working directory is
// honored before the environment is read.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// VaultName identifies one of the two note corpora.
type VaultName string

const (
	VaultWork     VaultName = "work"
	VaultPersonal VaultName = "personal"
	VaultAll      VaultName = "all"
	VaultUnknown  VaultName = "unknown"
)

// Config represents the complete noterag configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir" json:"data_dir"`
	Vaults    VaultsConfig    `yaml:"vaults" json:"vaults"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank" json:"rerank"`
	Answer    AnswerConfig    `yaml:"answer" json:"answer"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	FTS       FTSConfig       `yaml:"fts" json:"fts"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Log       LogConfig       `yaml:"log" json:"log"`
}

// VaultsConfig holds the two vault roots.
type VaultsConfig struct {
	// Work is the absolute path to the work vault root.
	Work string `yaml:"work" json:"work"`

	// Personal is the absolute path to the personal vault root.
	Personal string `yaml:"personal" json:"personal"`
}

// IndexConfig configures the ingestion pipeline.
type IndexConfig struct {
	// ChunkSize is the approximate chunk size in tokens (x4 = characters).
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// ChunkOverlap is the approximate overlap in tokens (x4 = characters).
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`

	// ExcludedFolders are substrings; any path containing one is skipped.
	ExcludedFolders []string `yaml:"excluded_folders" json:"excluded_folders"`

	// SweepDeleted removes rows for files no longer present in the vault
	// during incremental passes. Off by default.
	SweepDeleted bool `yaml:"sweep_deleted" json:"sweep_deleted"`
}

// EmbeddingConfig configures the embedding backend.
type EmbeddingConfig struct {
	// Model is the Ollama embedding model name.
	Model string `yaml:"model" json:"model"`

	// Dimension is the embedding vector dimension.
	Dimension int `yaml:"dimension" json:"dimension"`

	// OllamaURL is the embedding/rerank backend base URL.
	OllamaURL string `yaml:"ollama_url" json:"ollama_url"`

	// Timeout is the per-request timeout (duration string, default "30s").
	Timeout string `yaml:"timeout" json:"timeout"`

	// CacheSize bounds the in-process embedding cache (entries).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// RerankConfig configures the LLM judge used for reranking and expansion.
type RerankConfig struct {
	// Model is the small judge model (default a ~0.5B parameter LLM).
	Model string `yaml:"model" json:"model"`

	// TopK is how many fused candidates are scored.
	TopK int `yaml:"top_k" json:"top_k"`

	// Concurrency bounds parallel judgments.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// Timeout is the per-judgment timeout (duration string, default "10s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// AnswerConfig configures the answer-synthesis gateway.
type AnswerConfig struct {
	// GatewayURL is the chat-completions gateway base URL (CLAWDBOT_URL).
	GatewayURL string `yaml:"gateway_url" json:"gateway_url"`

	// Token is the bearer token (CLAWDBOT_TOKEN).
	Token string `yaml:"token" json:"token"`

	// Model is the gateway model name.
	Model string `yaml:"model" json:"model"`

	// MaxContextChunks is how many search hits feed the answer prompt.
	MaxContextChunks int `yaml:"max_context_chunks" json:"max_context_chunks"`

	// Timeout is the gateway request timeout (duration string, default "60s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// SearchConfig configures retrieval and fusion.
type SearchConfig struct {
	// RRFConstant is the RRF smoothing parameter k (default 60).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// CandidateLimit is the per-branch candidate pool for hybrid search.
	CandidateLimit int `yaml:"candidate_limit" json:"candidate_limit"`

	// DefaultLimit is the result count when the caller passes none.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// MaxLimit caps any requested result count.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`
}

// FTSConfig selects the document-level full-text backend.
type FTSConfig struct {
	// Backend is "sqlite" (FTS5, default) or "bleve".
	Backend string `yaml:"backend" json:"backend"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Addr is the listen address (host:port).
	Addr string `yaml:"addr" json:"addr"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// File is the JSON log file path; empty logs to stderr only.
	File string `yaml:"file" json:"file"`
}

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Index: IndexConfig{
			ChunkSize:       500,
			ChunkOverlap:    50,
			ExcludedFolders: []string{"archive", "templates", ".obsidian", ".trash"},
			SweepDeleted:    false,
		},
		Embedding: EmbeddingConfig{
			Model:     "nomic-embed-text",
			Dimension: 768,
			OllamaURL: "http://localhost:11434",
			Timeout:   "30s",
			CacheSize: 10000,
		},
		Rerank: RerankConfig{
			Model:       "qwen2.5:0.5b",
			TopK:        30,
			Concurrency: 5,
			Timeout:     "10s",
		},
		Answer: AnswerConfig{
			Model:            "clawdbot",
			MaxContextChunks: 5,
			Timeout:          "60s",
		},
		Search: SearchConfig{
			RRFConstant:    60,
			CandidateLimit: 30,
			DefaultLimit:   10,
			MaxLimit:       100,
		},
		FTS: FTSConfig{
			Backend: "sqlite",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8990",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// defaultDataDir returns the default on-disk state directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "noterag")
	}
	return filepath.Join(home, ".noterag")
}

// DefaultConfigPath returns the config file location following XDG:
// $XDG_CONFIG_HOME/noterag/config.yaml, else ~/.config/noterag/config.yaml.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "noterag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "noterag", "config.yaml")
	}
	return filepath.Join(home, ".config", "noterag", "config.yaml")
}

// Load builds the effective configuration. path selects an explicit
// config file; empty falls back to DefaultConfigPath (a missing default
// file is fine). Environment variables win over file values.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	if other.Vaults.Work != "" {
		c.Vaults.Work = other.Vaults.Work
	}
	if other.Vaults.Personal != "" {
		c.Vaults.Personal = other.Vaults.Personal
	}

	if other.Index.ChunkSize != 0 {
		c.Index.ChunkSize = other.Index.ChunkSize
	}
	if other.Index.ChunkOverlap != 0 {
		c.Index.ChunkOverlap = other.Index.ChunkOverlap
	}
	if len(other.Index.ExcludedFolders) > 0 {
		c.Index.ExcludedFolders = other.Index.ExcludedFolders
	}
	if other.Index.SweepDeleted {
		c.Index.SweepDeleted = true
	}

	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimension != 0 {
		c.Embedding.Dimension = other.Embedding.Dimension
	}
	if other.Embedding.OllamaURL != "" {
		c.Embedding.OllamaURL = other.Embedding.OllamaURL
	}
	if other.Embedding.Timeout != "" {
		c.Embedding.Timeout = other.Embedding.Timeout
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}

	if other.Rerank.Model != "" {
		c.Rerank.Model = other.Rerank.Model
	}
	if other.Rerank.TopK != 0 {
		c.Rerank.TopK = other.Rerank.TopK
	}
	if other.Rerank.Concurrency != 0 {
		c.Rerank.Concurrency = other.Rerank.Concurrency
	}
	if other.Rerank.Timeout != "" {
		c.Rerank.Timeout = other.Rerank.Timeout
	}

	if other.Answer.GatewayURL != "" {
		c.Answer.GatewayURL = other.Answer.GatewayURL
	}
	if other.Answer.Token != "" {
		c.Answer.Token = other.Answer.Token
	}
	if other.Answer.Model != "" {
		c.Answer.Model = other.Answer.Model
	}
	if other.Answer.MaxContextChunks != 0 {
		c.Answer.MaxContextChunks = other.Answer.MaxContextChunks
	}
	if other.Answer.Timeout != "" {
		c.Answer.Timeout = other.Answer.Timeout
	}

	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.CandidateLimit != 0 {
		c.Search.CandidateLimit = other.Search.CandidateLimit
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}

	if other.FTS.Backend != "" {
		c.FTS.Backend = other.FTS.Backend
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
}

// applyEnvOverrides applies environment variable overrides.
// NOTERAG_* keys cover the engine; OLLAMA_URL, CLAWDBOT_URL and
// CLAWDBOT_TOKEN follow the backends' conventional names.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NOTERAG_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("NOTERAG_VAULT_WORK"); v != "" {
		c.Vaults.Work = v
	}
	if v := os.Getenv("NOTERAG_VAULT_PERSONAL"); v != "" {
		c.Vaults.Personal = v
	}
	if v := os.Getenv("NOTERAG_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("NOTERAG_EMBEDDING_DIMENSION"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embedding.Dimension = d
		}
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.Embedding.OllamaURL = v
	}
	if v := os.Getenv("NOTERAG_RERANK_MODEL"); v != "" {
		c.Rerank.Model = v
	}
	if v := os.Getenv("CLAWDBOT_URL"); v != "" {
		c.Answer.GatewayURL = v
	}
	if v := os.Getenv("CLAWDBOT_TOKEN"); v != "" {
		c.Answer.Token = v
	}
	if v := os.Getenv("NOTERAG_FTS_BACKEND"); v != "" {
		c.FTS.Backend = v
	}
	if v := os.Getenv("NOTERAG_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("NOTERAG_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Vaults.Work == "" {
		return fmt.Errorf("vaults.work is required")
	}
	if c.Vaults.Personal == "" {
		return fmt.Errorf("vaults.personal is required")
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap must be in [0, chunk_size), got %d", c.Index.ChunkOverlap)
	}

	validBackends := map[string]bool{"sqlite": true, "bleve": true}
	if !validBackends[strings.ToLower(c.FTS.Backend)] {
		return fmt.Errorf("fts.backend must be 'sqlite' or 'bleve', got %s", c.FTS.Backend)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level)
	}

	for _, d := range []struct {
		name, val string
	}{
		{"embedding.timeout", c.Embedding.Timeout},
		{"rerank.timeout", c.Rerank.Timeout},
		{"answer.timeout", c.Answer.Timeout},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("%s: invalid duration %q", d.name, d.val)
		}
	}

	return nil
}

// EmbedTimeout returns the parsed embedding request timeout.
func (c *Config) EmbedTimeout() time.Duration { return parseDuration(c.Embedding.Timeout, 30*time.Second) }

// RerankTimeout returns the parsed per-judgment timeout.
func (c *Config) RerankTimeout() time.Duration { return parseDuration(c.Rerank.Timeout, 10*time.Second) }

// AnswerTimeout returns the parsed gateway timeout.
func (c *Config) AnswerTimeout() time.Duration { return parseDuration(c.Answer.Timeout, 60*time.Second) }

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// VaultRoot returns the configured root for a vault name, or empty.
func (c *Config) VaultRoot(name VaultName) string {
	switch name {
	case VaultWork:
		return c.Vaults.Work
	case VaultPersonal:
		return c.Vaults.Personal
	default:
		return ""
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
