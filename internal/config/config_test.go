package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, Duration(10*time.Second), cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 0.005, cfg.Monitor.ErrorRateThreshold)
	assert.Equal(t, Duration(5*time.Minute), cfg.Monitor.ErrorRateWindow)
	assert.Equal(t, 0.10, cfg.Monitor.AuthSpikeThreshold)
	assert.Equal(t, Duration(15*time.Minute), cfg.Monitor.AlertCooldown)
	assert.Equal(t, 10, cfg.Monitor.HistorySize)
	assert.Equal(t, Duration(24*time.Hour), cfg.Credentials.DefaultLifetime)
	assert.Equal(t, "taskd", cfg.Alerting.ServiceName)
	assert.False(t, cfg.Alerting.PagerDutyRoutingKey.IsSet())
	assert.False(t, cfg.Alerting.SlackWebhookURL.IsSet())
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  port: 9999
  metrics_principals:
    - "ops@*"
monitor:
  error_rate_threshold: 0.01
  alert_cooldown: 30m
alerting:
  pagerduty_routing_key: rk-from-file
`
	path := filepath.Join(t.TempDir(), "taskd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []string{"ops@*"}, cfg.Server.MetricsPrincipals)
	assert.Equal(t, 0.01, cfg.Monitor.ErrorRateThreshold)
	assert.Equal(t, Duration(30*time.Minute), cfg.Monitor.AlertCooldown)
	assert.Equal(t, "rk-from-file", cfg.Alerting.PagerDutyRoutingKey.Value())

	// Untouched sections keep defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, Duration(5*time.Minute), cfg.Monitor.ErrorRateWindow)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	content := `
server:
  port: 9999
`
	path := filepath.Join(t.TempDir(), "taskd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("SERVER_PORT", "7777")
	t.Setenv("MONITOR_ERROR_RATE_THRESHOLD", "0.02")
	t.Setenv("ALERTING_SLACK_WEBHOOK_URL", "https://hooks.example.com/x")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, 0.02, cfg.Monitor.ErrorRateThreshold)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Alerting.SlackWebhookURL.Value())
}

func TestLoadMissingFileIgnored(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Server.Port)
}

func TestLoadInvalidConfig(t *testing.T) {
	t.Setenv("MONITOR_ERROR_RATE_THRESHOLD", "1.5")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error_rate_threshold")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	t.Run("defaults pass", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"issue rate non-positive", func(c *Config) { c.Server.IssueRate = -1 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"threshold at one", func(c *Config) { c.Monitor.ErrorRateThreshold = 1 }},
		{"zero history", func(c *Config) { c.Monitor.HistorySize = -1 }},
		{"negative delivery timeout", func(c *Config) { c.Alerting.DeliveryTimeout = Duration(-time.Second) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDuration(t *testing.T) {
	t.Run("parses duration strings", func(t *testing.T) {
		var d Duration
		require.NoError(t, d.UnmarshalText([]byte("90s")))
		assert.Equal(t, 90*time.Second, d.Duration())
	})

	t.Run("rejects negative", func(t *testing.T) {
		var d Duration
		assert.Error(t, d.UnmarshalText([]byte("-5m")))
	})

	t.Run("rejects garbage", func(t *testing.T) {
		var d Duration
		assert.Error(t, d.UnmarshalText([]byte("fast")))
	})

	t.Run("round trips through JSON", func(t *testing.T) {
		out, err := json.Marshal(Duration(15 * time.Minute))
		require.NoError(t, err)
		assert.Equal(t, `"15m0s"`, string(out))
	})
}

func TestSecret(t *testing.T) {
	s := Secret("super-secret")

	t.Run("String redacts", func(t *testing.T) {
		assert.Equal(t, "[REDACTED]", s.String())
	})

	t.Run("GoString redacts", func(t *testing.T) {
		assert.Equal(t, "Secret([REDACTED])", s.GoString())
	})

	t.Run("JSON redacts", func(t *testing.T) {
		out, err := json.Marshal(s)
		require.NoError(t, err)
		assert.Equal(t, `"[REDACTED]"`, string(out))
	})

	t.Run("empty stays empty", func(t *testing.T) {
		var empty Secret
		assert.Equal(t, "", empty.String())
		assert.False(t, empty.IsSet())
	})

	t.Run("Value exposes the raw string", func(t *testing.T) {
		assert.Equal(t, "super-secret", s.Value())
		assert.True(t, s.IsSet())
	})
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "server.port", envTransform("SERVER_PORT"))
	assert.Equal(t, "monitor.error_rate_threshold", envTransform("MONITOR_ERROR_RATE_THRESHOLD"))
	assert.Equal(t, "path", envTransform("PATH"))
}
