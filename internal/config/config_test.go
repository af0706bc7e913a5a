package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "be-inspections", cfg.Service.Name)
	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Workflow.AutoSaveInterval)
	assert.Equal(t, 24*time.Hour, cfg.Workflow.WizardProgressTTL)
	assert.Zero(t, cfg.Workflow.RoutingCacheTTL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("AUTO_SAVE_INTERVAL", "45s")
	t.Setenv("ROUTING_CACHE_TTL", "30m")
	t.Setenv("NATS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Workflow.AutoSaveInterval)
	assert.Equal(t, 30*time.Minute, cfg.Workflow.RoutingCacheTTL)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("HTTP_PORT", "70000")
	_, err := Load()
	assert.Error(t, err)
}

func TestEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("HTTP_READ_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}
