package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, cfg.Model.Provider)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 1<<20, cfg.Memory.Budget)
	assert.Equal(t, SessionMemory, cfg.Session.Backend)
	assert.Equal(t, 3, cfg.Runs.LoopIterations)
	assert.Equal(t, Default(), cfg)
}

func TestDefault_IsValid(t *testing.T) {
	var cfg *Config
	require.NotPanics(t, func() { cfg = Default() })
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Runs.Workers)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saathi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  provider: openai
  name: gpt-4o-mini
  api_key: from-file
gateway:
  timeout: 5s
  max_retries: 1
memory:
  budget: 4096
  journal: /tmp/saathi.db
session:
  backend: redis
  redis:
    addr: redis:6379
`), 0o600))
	t.Setenv("SAATHI_MODEL_API_KEY", "from-env")
	t.Setenv("SAATHI_RUNS_MAX_CONCURRENT", "2")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Name)
	assert.Equal(t, "from-env", cfg.Model.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 1, cfg.Gateway.MaxRetries)
	assert.Equal(t, 4096, cfg.Memory.Budget)
	assert.Equal(t, "/tmp/saathi.db", cfg.Memory.Journal)
	assert.Equal(t, SessionRedis, cfg.Session.Backend)
	assert.Equal(t, "redis:6379", cfg.Session.Redis.Addr)
	assert.Equal(t, "saathi:session:", cfg.Session.Redis.Prefix)
	assert.Equal(t, 2, cfg.Runs.MaxConcurrent)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saathi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  provider: anthropic\nsession:\n  backend: etcd\n"), 0o600))

	_, err := Load(viper.New(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.api_key")
	assert.Contains(t, err.Error(), "session.backend")

	_, err = Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")
}
