package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

// #region load-tests

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.True(t, c.Mock())
	assert.Equal(t, 2*time.Second, c.Interval())

	tc := c.Transport()
	assert.Equal(t, 50, tc.MaxBufferSize)
	assert.Equal(t, 1500*time.Millisecond, tc.BaseDelay)
	assert.Equal(t, 12*time.Second, tc.MaxDelay)
	assert.Equal(t, 20*time.Second, tc.PingInterval)
	assert.True(t, tc.Mock)
}

func TestApplyEnv_Overrides(t *testing.T) {
	c, err := ApplyEnv(Default(), lookup(map[string]string{
		"COGNIVIZ_WS_URL":          "ws://inference:9000/ws/metrics",
		"COGNIVIZ_COG_LOAD_MODE":   ModeLive,
		"COGNIVIZ_INTERVAL_MS":     "500",
		"COGNIVIZ_DEBUG_TELEMETRY": "true",
		"COGNIVIZ_REDIS_ADDR":      "localhost:6379",
	}))
	require.NoError(t, err)

	assert.Equal(t, "ws://inference:9000/ws/metrics", c.WSURL)
	assert.False(t, c.Mock())
	assert.Equal(t, 500*time.Millisecond, c.Interval())
	assert.True(t, c.DebugTelemetry)
	assert.Equal(t, "localhost:6379", c.RedisAddr)
	assert.Equal(t, "cogniviz:aggregates", c.RedisKey)
}

func TestApplyEnv_BadNumber(t *testing.T) {
	_, err := ApplyEnv(Default(), lookup(map[string]string{"COGNIVIZ_BUFFER_SIZE": "lots"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COGNIVIZ_BUFFER_SIZE")
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cogniviz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval_ms: 1000\nbuffer_size: 10\ncog_load_mode: live\n"), 0o644))
	t.Setenv("COGNIVIZ_BUFFER_SIZE", "20")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, c.IntervalMs)
	assert.Equal(t, 20, c.BufferSize)
	assert.Equal(t, ModeLive, c.CogLoadMode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// #endregion load-tests

// #region validate-tests

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.CogLoadMode = "replay" }},
		{"major version bump", func(c *Config) { c.SchemaVersion = "v2" }},
		{"zero interval", func(c *Config) { c.IntervalMs = 0 }},
		{"negative buffer", func(c *Config) { c.BufferSize = -1 }},
		{"max below base", func(c *Config) { c.BackoffMaxMs = 100 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

// #endregion validate-tests
