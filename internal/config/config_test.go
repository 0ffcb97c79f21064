package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	storage := t.TempDir()
	t.Setenv("AJA_STORAGE_DIR", storage)

	s, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, storage, s.StorageDir)
	assert.Equal(t, filepath.Join(storage, "data", "jobs.sqlite3"), s.DBPath)
	assert.Equal(t, DriverSQLite, s.DBDriver)
	assert.Equal(t, "https://remoteok.com/api", s.RemoteOKURL)
	assert.Equal(t, 50, s.MaxFetchPerConnector)
	assert.Equal(t, "redis://localhost:6379/0", s.RedisURL)
	assert.Equal(t, BackendRedis, s.Queue.Backend)
	assert.Equal(t, "scoring", s.Queue.Name)
	assert.False(t, s.AI.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AJA_STORAGE_DIR", t.TempDir())
	t.Setenv("AJA_DB_PATH", "/tmp/custom.sqlite3")
	t.Setenv("AJA_MAX_FETCH_PER_CONNECTOR", "7")
	t.Setenv("AJA_REDIS_URL", "redis://cache:6380/2")
	t.Setenv("AJA_QUEUE_BACKEND", "kafka")
	t.Setenv("AJA_QUEUE_KAFKA_BROKERS", "k1:9092, k2:9092")

	s, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.sqlite3", s.DBPath)
	assert.Equal(t, 7, s.MaxFetchPerConnector)
	assert.Equal(t, "redis://cache:6380/2", s.RedisURL)
	assert.Equal(t, BackendKafka, s.Queue.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, s.Queue.Kafka.Brokers)
}

func TestValidateCrossFieldRules(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "postgres without url", env: map[string]string{"AJA_DB_DRIVER": "postgres"}},
		{name: "kafka without brokers", env: map[string]string{"AJA_QUEUE_BACKEND": "kafka"}},
		{name: "unknown driver", env: map[string]string{"AJA_DB_DRIVER": "mysql"}},
		{name: "bad source url", env: map[string]string{"AJA_REMOTEOK_URL": "not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AJA_STORAGE_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(newViper())
			require.Error(t, err)
		})
	}
}

func TestLoadDotEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, ".env")
	local := filepath.Join(dir, ".env.local")

	require.NoError(t, os.WriteFile(base, []byte("AJA_TEST_A=base\nAJA_TEST_B=base\nAJA_TEST_C=base\n"), 0o600))
	require.NoError(t, os.WriteFile(local, []byte("AJA_TEST_B=local\nAJA_TEST_C=local\n"), 0o600))

	t.Setenv("AJA_TEST_C", "process")
	t.Cleanup(func() {
		os.Unsetenv("AJA_TEST_A")
		os.Unsetenv("AJA_TEST_B")
	})

	require.NoError(t, LoadDotEnv(base, local, filepath.Join(dir, "missing.env")))

	assert.Equal(t, "base", os.Getenv("AJA_TEST_A"))
	assert.Equal(t, "local", os.Getenv("AJA_TEST_B"))
	assert.Equal(t, "process", os.Getenv("AJA_TEST_C"))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "jobs"), expandHome("~/jobs"))
	assert.Equal(t, "/abs", expandHome("/abs"))
}
