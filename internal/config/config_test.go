package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 30.0, cfg.Feeds.RidesRadiusKm)
	assert.Equal(t, 40, cfg.Feeds.RidesLimit)
	assert.Equal(t, 5.5, cfg.Feeds.SOSRadiusKm)
	assert.Equal(t, 20, cfg.Feeds.SOSLimit)
	assert.Equal(t, 10.0, cfg.Movement.MinDistanceMeters)
	assert.Equal(t, 5*time.Second, cfg.Movement.MinInterval)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.applyEnv(envMap(map[string]string{
		"PORT":                  "9090",
		"POSITION_BACKEND":      "redis",
		"REDIS_ADDR":            "redis:6379",
		"REDIS_DB":              "2",
		"MOVEMENT_MIN_METERS":   "25",
		"MOVEMENT_MIN_INTERVAL": "2s",
		"LOG_FORMAT":            "json",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, BackendRedis, cfg.Store.PositionBackend)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 25.0, cfg.Movement.MinDistanceMeters)
	assert.Equal(t, 2*time.Second, cfg.Movement.MinInterval)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.applyEnv(envMap(map[string]string{
		"REDIS_DB":              "two",
		"MOVEMENT_MIN_INTERVAL": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_DB")
	assert.Contains(t, err.Error(), "MOVEMENT_MIN_INTERVAL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Backend = "postgres" }, wantErr: true},
		{name: "redis is not a live-query store", mutate: func(c *Config) { c.Store.Backend = BackendRedis }, wantErr: true},
		{name: "firestore without project", mutate: func(c *Config) { c.Store.Backend = BackendFirestore }, wantErr: true},
		{name: "firestore with project", mutate: func(c *Config) {
			c.Store.Backend = BackendFirestore
			c.Firestore.ProjectID = "convoy-dev"
		}},
		{name: "zero radius", mutate: func(c *Config) { c.Feeds.SOSRadiusKm = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CONVOY_TEST_ONLY=1\nSNAPSHOT_TIMEOUT=750ms\n"), 0o600))
	t.Setenv("SNAPSHOT_TIMEOUT", "")
	os.Unsetenv("SNAPSHOT_TIMEOUT")
	t.Cleanup(func() { os.Unsetenv("CONVOY_TEST_ONLY") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Feeds.SnapshotTimeout)
	assert.Equal(t, "1", os.Getenv("CONVOY_TEST_ONLY"))
}
