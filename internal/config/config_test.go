package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testVaults fills the required vault paths so Validate passes.
func testVaults(t *testing.T, cfg *Config) {
	t.Helper()
	cfg.Vaults.Work = t.TempDir()
	cfg.Vaults.Personal = t.TempDir()
}

func TestNewConfig_Defaults(t *testing.T) {
	// Given/When: a fresh default config
	cfg := NewConfig()

	// Then: defaults match the documented reference values
	assert.Equal(t, 500, cfg.Index.ChunkSize)
	assert.Equal(t, 50, cfg.Index.ChunkOverlap)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, "http://localhost:11434", cfg.Embedding.OllamaURL)
	assert.Equal(t, 10000, cfg.Embedding.CacheSize)
	assert.Equal(t, "qwen2.5:0.5b", cfg.Rerank.Model)
	assert.Equal(t, 30, cfg.Rerank.TopK)
	assert.Equal(t, 5, cfg.Rerank.Concurrency)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 30, cfg.Search.CandidateLimit)
	assert.Equal(t, 5, cfg.Answer.MaxContextChunks)
	assert.Equal(t, "sqlite", cfg.FTS.Backend)
	assert.False(t, cfg.Index.SweepDeleted)
}

func TestLoad_MergesYAMLOverDefaults(t *testing.T) {
	// Given: a config file overriding a few fields
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
data_dir: ` + filepath.Join(dir, "state") + `
vaults:
  work: ` + filepath.Join(dir, "work") + `
  personal: ` + filepath.Join(dir, "personal") + `
index:
  chunk_size: 300
embedding:
  model: mxbai-embed-large
  dimension: 1024
fts:
  backend: bleve
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// When: loading with the explicit path
	cfg, err := Load(path)
	require.NoError(t, err)

	// Then: file values override, untouched fields keep defaults
	assert.Equal(t, 300, cfg.Index.ChunkSize)
	assert.Equal(t, 50, cfg.Index.ChunkOverlap, "unset field keeps default")
	assert.Equal(t, "mxbai-embed-large", cfg.Embedding.Model)
	assert.Equal(t, 1024, cfg.Embedding.Dimension)
	assert.Equal(t, "bleve", cfg.FTS.Backend)
}

func TestLoad_ExplicitMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
vaults:
  work: ` + filepath.Join(dir, "work") + `
  personal: ` + filepath.Join(dir, "personal") + `
embedding:
  ollama_url: http://file-host:11434
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("OLLAMA_URL", "http://env-host:11434")
	t.Setenv("CLAWDBOT_URL", "https://gateway.example")
	t.Setenv("CLAWDBOT_TOKEN", "secret")
	t.Setenv("NOTERAG_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://env-host:11434", cfg.Embedding.OllamaURL)
	assert.Equal(t, "https://gateway.example", cfg.Answer.GatewayURL)
	assert.Equal(t, "secret", cfg.Answer.Token)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate_RequiresVaultPaths(t *testing.T) {
	cfg := NewConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vaults.work")

	cfg.Vaults.Work = "/tmp/work"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vaults.personal")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }, "dimension"},
		{"overlap >= size", func(c *Config) { c.Index.ChunkOverlap = 500 }, "chunk_overlap"},
		{"unknown fts backend", func(c *Config) { c.FTS.Backend = "elastic" }, "fts.backend"},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad timeout", func(c *Config) { c.Rerank.Timeout = "soon" }, "rerank.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			testVaults(t, cfg)
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTimeoutGetters_ParseAndFallBack(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 30*time.Second, cfg.EmbedTimeout())
	assert.Equal(t, 10*time.Second, cfg.RerankTimeout())
	assert.Equal(t, 60*time.Second, cfg.AnswerTimeout())

	cfg.Embedding.Timeout = "2m"
	assert.Equal(t, 2*time.Minute, cfg.EmbedTimeout())

	cfg.Embedding.Timeout = "garbage"
	assert.Equal(t, 30*time.Second, cfg.EmbedTimeout(), "unparseable falls back")
}

func TestVaultRoot(t *testing.T) {
	cfg := NewConfig()
	cfg.Vaults.Work = "/notes/work"
	cfg.Vaults.Personal = "/notes/personal"

	assert.Equal(t, "/notes/work", cfg.VaultRoot(VaultWork))
	assert.Equal(t, "/notes/personal", cfg.VaultRoot(VaultPersonal))
	assert.Empty(t, cfg.VaultRoot(VaultAll))
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	cfg := NewConfig()
	testVaults(t, cfg)
	cfg.Index.ChunkSize = 321

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 321, loaded.Index.ChunkSize)
	assert.Equal(t, cfg.Vaults.Work, loaded.Vaults.Work)
}
