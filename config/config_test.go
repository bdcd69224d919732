package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearTestEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		if strings.HasPrefix(key, envPrefix+"_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearTestEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	cfg, err := Load(fs, nil)
	require.NoError(t, err)

	assert.Equal(t, "fake", cfg.Provider)
	assert.Equal(t, 1536, cfg.EmbedDimension)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbedModel)
	assert.Equal(t, "gpt-4o-mini", cfg.ChatModel)
	assert.Equal(t, ChunkConfig{MinSize: 800, MaxSize: 1200, Overlap: 100}, cfg.Chunk)
	assert.InDelta(t, 0.5, cfg.Retrieval.MinSimilarity, 1e-9)
	assert.InDelta(t, 0.65, cfg.Retrieval.MediumMax, 1e-9)
	assert.InDelta(t, 0.8, cfg.Retrieval.HighMax, 1e-9)
	assert.InDelta(t, 0.7, cfg.Retrieval.HighAvg, 1e-9)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadYAMLFile(t *testing.T) {
	clearTestEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "newsrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: openai
embedDimension: 256
chunk:
  minSize: 400
  maxSize: 600
  overlap: 50
retrieval:
  minSimilarity: 0.4
`), 0o600))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := Load(fs, []string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 256, cfg.EmbedDimension)
	assert.Equal(t, ChunkConfig{MinSize: 400, MaxSize: 600, Overlap: 50}, cfg.Chunk)
	assert.InDelta(t, 0.4, cfg.Retrieval.MinSimilarity, 1e-9)
	// Unset YAML keys keep their defaults.
	assert.InDelta(t, 0.8, cfg.Retrieval.HighMax, 1e-9)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("NEWSRAG_POSTGRES_DSN", "postgres://env-host:5432/newsrag")
	t.Setenv("NEWSRAG_EMBED_DIM", "64")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := Load(fs, nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host:5432/newsrag", cfg.PostgresDSN)
	assert.Equal(t, 64, cfg.EmbedDimension)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("NEWSRAG_EMBED_DIM", "64")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := Load(fs, []string{"--embed-dim", "128", "--provider", "ollama"})
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.EmbedDimension)
	assert.Equal(t, "ollama", cfg.Provider)
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearTestEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err := Load(fs, []string{"--config", "/nonexistent/newsrag.yaml"})
	assert.Error(t, err)
}
