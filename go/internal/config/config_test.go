package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := Load[ServerConfig]()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 10, cfg.Scheduler.Parallelism)
	assert.Equal(t, time.Second, cfg.Scheduler.TickInterval)
	assert.Equal(t, "DRAFT_EVENTS", cfg.NATS.Stream)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "bolt")
	t.Setenv("SCHEDULER_TICK_INTERVAL", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")

	srv, err := Load[ServerConfig]()
	require.NoError(t, err)
	assert.Equal(t, "bolt", srv.Store.Backend)
	assert.Equal(t, 250*time.Millisecond, srv.Scheduler.TickInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, srv.AllowedOrigins)

	ob, err := Load[OutboxConfig]()
	require.NoError(t, err)
	assert.Equal(t, 25, ob.Relay.BatchSize)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SCHEDULER_TICK_INTERVAL", "soon")
	_, err := Load[OrchestratorConfig]()
	assert.Error(t, err)
}

func TestLoadDotEnvMissingFileIsFine(t *testing.T) {
	t.Chdir(t.TempDir())
	assert.NoError(t, LoadDotEnv())
}
