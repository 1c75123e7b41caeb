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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Platform.CallTimeout)
	assert.Equal(t, 3*time.Second, cfg.Delays.Settle)
	assert.Equal(t, 10*time.Second, cfg.Delays.InterGroup)
	assert.Equal(t, 3*time.Second, cfg.Delays.ReconnectRestart)
	assert.Equal(t, 8*time.Second, cfg.Delays.ReconnectUnknown)
	assert.Equal(t, 30, cfg.Provision.MaxGroups)
	assert.Equal(t, "./sessions", cfg.Storage.SessionsDir)
	assert.Len(t, cfg.Access.AdminCode, 10)
	assert.True(t, cfg.RateLimiter.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8088
delays:
  inter_group: 250ms
  settle: 10ms
provision:
  max_groups: 5
rate_limiter:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Delays.InterGroup)
	assert.Equal(t, 10*time.Millisecond, cfg.Delays.Settle)
	assert.Equal(t, 5, cfg.Provision.MaxGroups)
	assert.False(t, cfg.RateLimiter.Enabled)

	// Untouched keys keep defaults.
	assert.Equal(t, 2*time.Second, cfg.Delays.Link)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	t.Run("valid defaults", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero call timeout", func(t *testing.T) {
		cfg := base()
		cfg.Platform.CallTimeout = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative delay", func(t *testing.T) {
		cfg := base()
		cfg.Delays.InterGroup = -time.Second
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing storage dir", func(t *testing.T) {
		cfg := base()
		cfg.Storage.LinksDir = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("rate limiter misconfigured", func(t *testing.T) {
		cfg := base()
		cfg.RateLimiter.RequestsPerSecond = 0
		assert.Error(t, cfg.Validate())
	})
}
