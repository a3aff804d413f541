package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/dht-telemetry/internal/telemetry"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://iot.egspgroup.in:81/api/dht", cfg.FeedURL)
	assert.True(t, cfg.InsecureTLS)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.FetchInterval)
	assert.Equal(t, "csv", cfg.StoreBackend)
	assert.Equal(t, "data/readings.csv", cfg.StorePath)
	assert.EqualValues(t, 32<<20, cfg.Feed().MaxBodyBytes)
	assert.Equal(t, telemetry.DefaultBands, cfg.Bands())

	fc := cfg.Feed()
	assert.True(t, fc.InsecureSkipVerify)
	assert.Equal(t, 10*time.Second, fc.Timeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FEED_URL", "https://sensor.local/api/dht")
	t.Setenv("FEED_INSECURE_TLS", "false")
	t.Setenv("FEED_TIMEOUT", "5s")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("STORE_PATH", "/var/lib/dht/readings.db")
	t.Setenv("CYCLE_MAX_RETRIES", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://sensor.local/api/dht", cfg.FeedURL)
	assert.False(t, cfg.Feed().InsecureSkipVerify)
	assert.Equal(t, 5*time.Second, cfg.Feed().Timeout)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Zero(t, cfg.Backoff().MaxRetries)
}

func TestLoadStorePathDefaultsPerBackend(t *testing.T) {
	tests := map[string]string{
		"csv":    "data/readings.csv",
		"sqlite": "data/readings.db",
		"badger": "data/badger",
		"memory": "",
	}
	for backend, want := range tests {
		t.Run(backend, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("STORE_BACKEND", backend)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, want, cfg.StorePath)
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STORE_BACKEND=badger\n"), 0o644))
	t.Setenv("STORE_BACKEND", "")
	os.Unsetenv("STORE_BACKEND")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.StoreBackend)
	assert.Equal(t, "data/badger", cfg.StorePath)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string][2]string{
		"bad backend":      {"STORE_BACKEND", "parquet"},
		"bad url":          {"FEED_URL", "not a url"},
		"bad duration":     {"FEED_TIMEOUT", "soon"},
		"inverted band":    {"TEMP_HIGH", "10"},
		"negative retries": {"CYCLE_MAX_RETRIES", "-1"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(kv[0], kv[1])

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
