package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigurationDefaults(t *testing.T) {
	cfg, err := LoadConfiguration()
	require.NoError(t, err)

	assert.Equal(t, "8082", cfg.ServerPort)
	assert.False(t, cfg.Database.Enable)
	assert.False(t, cfg.Kafka.Enable)
	assert.Equal(t, 5*time.Second, cfg.Controller.ConnectTimeout)
	assert.Equal(t, "grbl", cfg.Controller.DefaultDialect)
	assert.Equal(t, runtime.NumCPU(), cfg.Tasks.Workers)
	assert.Equal(t, 1024, cfg.Bus.Retention)
}

func TestLoadConfigurationFromEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9000")
	t.Setenv("DB_ENABLE", "true")
	t.Setenv("CONTROLLER_HALT_ON_CANCEL", "1")
	t.Setenv("CONTROLLER_DRAIN_TIMEOUT_MS", "250")
	t.Setenv("TASK_WORKERS", "3")
	t.Setenv("BUS_CLIENT_QUEUE", "16")

	cfg, err := LoadConfiguration()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.ServerPort)
	assert.True(t, cfg.Database.Enable)
	assert.True(t, cfg.Controller.HaltOnCancel)
	assert.Equal(t, 250*time.Millisecond, cfg.Controller.DrainTimeout)
	assert.Equal(t, 3, cfg.Tasks.Workers)
	assert.Equal(t, 16, cfg.Bus.ClientQueue)
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("TASK_WORKERS", "many")
	t.Setenv("LOGGER_ENABLE", "perhaps")
	t.Setenv("TASK_CANCEL_GRACE_MS", "-5")

	cfg, err := LoadConfiguration()
	require.NoError(t, err)

	assert.Equal(t, runtime.NumCPU(), cfg.Tasks.Workers)
	assert.True(t, cfg.Logging.Enable)
	assert.Equal(t, 5*time.Second, cfg.Tasks.CancelGrace)
}
