package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORYLOOM_BACKEND_URL", "")
	t.Setenv("STORYLOOM_CACHE_DRIVER", "")
	os.Unsetenv("STORYLOOM_BACKEND_URL")
	os.Unsetenv("STORYLOOM_CACHE_DRIVER")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5001", cfg.BackendURL)
	assert.Equal(t, CacheFile, cfg.CacheDriver)
	assert.True(t, cfg.Sound)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("STORYLOOM_BACKEND_URL", "http://game.local:9000/")
	t.Setenv("STORYLOOM_CACHE_DRIVER", "Redis")
	t.Setenv("STORYLOOM_SOUND", "false")
	t.Setenv("DATABASE_URL", "postgres://u:p@h/db")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.CacheDir = t.TempDir()
	require.NoError(t, cfg.Finalize())
	assert.Equal(t, "http://game.local:9000", cfg.BackendURL)
	assert.Equal(t, CacheRedis, cfg.CacheDriver)
	assert.False(t, cfg.Sound)
	assert.Equal(t, "postgres://u:p@h/db", cfg.DSN)
	assert.Equal(t, filepath.Join(cfg.CacheDir, "storyloom.log"), cfg.LogFile)
}

func TestFinalizeRejectsBadDriver(t *testing.T) {
	cfg := Config{BackendURL: "http://x", CacheDriver: "memcache", CacheDir: t.TempDir()}
	assert.Error(t, cfg.Finalize())

	cfg = Config{BackendURL: "http://x", CacheDriver: CachePostgres, CacheDir: t.TempDir()}
	assert.Error(t, cfg.Finalize(), "postgres without dsn")
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "s.log")
	logger, err := NewLogger("debug", "json", path)
	require.NoError(t, err)
	logger.Named("Test").Info("hello", zap.String("k", "v"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"level":"INFO"`)

	nop, err := NewLogger("info", "json", "")
	require.NoError(t, err)
	assert.NotNil(t, nop)
}
