package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// explicit path that does not exist is an error
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	// empty path with no file on disk falls back to pure defaults
	cfg, err := loadFromDir(t, t.TempDir(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Judge.MaxIterations)
	assert.Equal(t, 0.75, cfg.Judge.SimilarityThreshold)
	assert.False(t, cfg.Judge.EmbeddingBlocking)
	assert.True(t, cfg.Judge.RefineQuestion)
	assert.False(t, cfg.Reports.Enabled)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout())
	assert.Equal(t, 30*time.Second, cfg.Database.QueryTimeout())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, `
server:
  addr: ":9090"
database:
  driver: postgres
  dsn: postgres://app@localhost/hospital
judge:
  max_iterations: 5
  embedding_blocking: true
`)

	cfg, err := loadFromDir(t, dir, "")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://app@localhost/hospital", cfg.Database.DSN)
	assert.Equal(t, 5, cfg.Judge.MaxIterations)
	assert.True(t, cfg.Judge.EmbeddingBlocking)
	// untouched keys keep their defaults
	assert.Equal(t, 0.75, cfg.Judge.SimilarityThreshold)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "database:\n  dsn: from-file\n")

	t.Setenv("NLQUERY_DATABASE__DSN", "from-env")
	t.Setenv("NLQUERY_JUDGE__MAX_ITERATIONS", "4")
	t.Setenv("NLQUERY_LLM__API_KEY", "sk-test")

	cfg, err := loadFromDir(t, dir, "")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.DSN)
	assert.Equal(t, 4, cfg.Judge.MaxIterations)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := loadFromDir(t, t.TempDir(), "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "sqlite" }},
		{"empty llm url", func(c *Config) { c.LLM.BaseURL = "" }},
		{"zero iterations", func(c *Config) { c.Judge.MaxIterations = 0 }},
		{"threshold above one", func(c *Config) { c.Judge.SimilarityThreshold = 1.5 }},
		{"reports enabled without bucket", func(c *Config) { c.Reports.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func loadFromDir(t *testing.T, dir, path string) (*Config, error) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return Load(path)
}

func writeFile(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte(content), 0o644))
}
