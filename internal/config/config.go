// Package config resolves runtime settings from defaults, an optional YAML
// file and COGNIVIZ_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dyra-12/cogniviz/internal/features"
	"github.com/dyra-12/cogniviz/internal/transport"
)

// Cognitive load modes.
const (
	ModeSimulation = "simulation"
	ModeLive       = "live"
)

// #region config

// Config holds every tunable of the telemetry client and inference service.
type Config struct {
	WSURL          string `yaml:"ws_url"`
	CogLoadMode    string `yaml:"cog_load_mode"`
	SchemaVersion  string `yaml:"schema_version"`
	IntervalMs     int    `yaml:"interval_ms"`
	BufferSize     int    `yaml:"buffer_size"`
	BackoffBaseMs  int    `yaml:"backoff_base_ms"`
	BackoffMaxMs   int    `yaml:"backoff_max_ms"`
	PingIntervalMs int    `yaml:"ping_interval_ms"`
	DBPath         string `yaml:"db"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisKey       string `yaml:"redis_key"`
	GRPCAddr       string `yaml:"grpc_addr"`
	HTTPAddr       string `yaml:"http_addr"`
	LogLevel       string `yaml:"log_level"`
	DebugTelemetry bool   `yaml:"debug_telemetry"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		WSURL:          transport.DefaultURL,
		CogLoadMode:    ModeSimulation,
		SchemaVersion:  features.SchemaVersion,
		IntervalMs:     2000,
		BufferSize:     50,
		BackoffBaseMs:  1500,
		BackoffMaxMs:   12000,
		PingIntervalMs: 20000,
		DBPath:         "cogniviz.db",
		RedisKey:       "cogniviz:aggregates",
		GRPCAddr:       "localhost:50051",
		HTTPAddr:       ":8000",
		LogLevel:       "info",
	}
}

// Load applies the YAML file at path (if any) and then the process
// environment on top of the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c, err := ApplyEnv(c, os.Getenv)
	if err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ApplyEnv overrides c with any COGNIVIZ_* variable getenv reports.
func ApplyEnv(c Config, getenv func(string) string) (Config, error) {
	e := env{get: getenv}
	c.WSURL = e.str("COGNIVIZ_WS_URL", c.WSURL)
	c.CogLoadMode = e.str("COGNIVIZ_COG_LOAD_MODE", c.CogLoadMode)
	c.SchemaVersion = e.str("COGNIVIZ_SCHEMA_VERSION", c.SchemaVersion)
	c.IntervalMs = e.num("COGNIVIZ_INTERVAL_MS", c.IntervalMs)
	c.BufferSize = e.num("COGNIVIZ_BUFFER_SIZE", c.BufferSize)
	c.BackoffBaseMs = e.num("COGNIVIZ_BACKOFF_BASE_MS", c.BackoffBaseMs)
	c.BackoffMaxMs = e.num("COGNIVIZ_BACKOFF_MAX_MS", c.BackoffMaxMs)
	c.PingIntervalMs = e.num("COGNIVIZ_PING_INTERVAL_MS", c.PingIntervalMs)
	c.DBPath = e.str("COGNIVIZ_DB", c.DBPath)
	c.RedisAddr = e.str("COGNIVIZ_REDIS_ADDR", c.RedisAddr)
	c.RedisKey = e.str("COGNIVIZ_REDIS_KEY", c.RedisKey)
	c.GRPCAddr = e.str("COGNIVIZ_GRPC_ADDR", c.GRPCAddr)
	c.HTTPAddr = e.str("COGNIVIZ_HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = e.str("COGNIVIZ_LOG_LEVEL", c.LogLevel)
	c.DebugTelemetry = e.flag("COGNIVIZ_DEBUG_TELEMETRY", c.DebugTelemetry)
	if e.err != nil {
		return Config{}, e.err
	}
	return c, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.CogLoadMode != ModeSimulation && c.CogLoadMode != ModeLive {
		return fmt.Errorf("cog_load_mode %q: want %s or %s", c.CogLoadMode, ModeSimulation, ModeLive)
	}
	if !features.CompatibleVersion(c.SchemaVersion) {
		return fmt.Errorf("schema_version %q is not compatible with %s", c.SchemaVersion, features.SchemaVersion)
	}
	if c.IntervalMs <= 0 {
		return fmt.Errorf("interval_ms must be positive, got %d", c.IntervalMs)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.BackoffBaseMs <= 0 || c.BackoffMaxMs < c.BackoffBaseMs {
		return fmt.Errorf("backoff %d..%dms is not a valid range", c.BackoffBaseMs, c.BackoffMaxMs)
	}
	return nil
}

// #endregion config

// #region derived

// Mock reports whether predictions come from the local responder.
func (c Config) Mock() bool { return c.CogLoadMode != ModeLive }

// Interval is the worker emission interval.
func (c Config) Interval() time.Duration { return ms(c.IntervalMs) }

// Transport builds the transport settings.
func (c Config) Transport() transport.Config {
	t := transport.DefaultConfig()
	t.URL = c.WSURL
	t.Mock = c.Mock()
	t.MaxBufferSize = c.BufferSize
	t.BaseDelay = ms(c.BackoffBaseMs)
	t.MaxDelay = ms(c.BackoffMaxMs)
	t.PingInterval = ms(c.PingIntervalMs)
	return t
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// #endregion derived

// #region helpers

// env reads variables and remembers the first parse failure.
type env struct {
	get func(string) string
	err error
}

func (e *env) str(key, fallback string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return fallback
}

func (e *env) num(key string, fallback int) int {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *env) flag(key string, fallback bool) bool {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// #endregion helpers
