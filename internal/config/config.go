// Package config resolves the settings shared by every command. Values come
// from (lowest to highest precedence) built-in defaults, an optional config
// file, .env files and AJA_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "AJA"

	// HardFetchCap bounds every per-run fetch limit regardless of source or override.
	HardFetchCap = 100

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	BackendRedis = "redis"
	BackendKafka = "kafka"
)

// DotEnvFiles are loaded from the working directory when present. Later files win.
var DotEnvFiles = []string{".env", ".env.local"}

type Settings struct {
	StorageDir           string `mapstructure:"storage-dir" validate:"required"`
	DBDriver             string `mapstructure:"db-driver" validate:"oneof=sqlite postgres"`
	DBPath               string `mapstructure:"db-path"`
	DatabaseURL          string `mapstructure:"database-url"`
	RemoteOKURL          string `mapstructure:"remoteok-url" validate:"required,url"`
	MaxFetchPerConnector int    `mapstructure:"max-fetch-per-connector"`
	RedisURL             string `mapstructure:"redis-url" validate:"required"`

	Queue   QueueSettings   `mapstructure:"queue"`
	Metrics MetricsSettings `mapstructure:"metrics"`
	AI      AISettings      `mapstructure:"ai"`
}

type QueueSettings struct {
	Backend string        `mapstructure:"backend" validate:"oneof=redis kafka"`
	Name    string        `mapstructure:"name" validate:"required"`
	Kafka   KafkaSettings `mapstructure:"kafka"`
}

type KafkaSettings struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group-id"`
}

type MetricsSettings struct {
	Addr string `mapstructure:"addr"`
}

type AISettings struct {
	Enabled         bool           `mapstructure:"enabled"`
	MinimumFitScore float64        `mapstructure:"minimum-fit-score" validate:"gte=0,lte=1"`
	Gemini          GeminiSettings `mapstructure:"gemini"`
}

type GeminiSettings struct {
	Model        string `mapstructure:"model"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

// SetDefaults registers every known key so AutomaticEnv can override it.
func SetDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("storage-dir", filepath.Join(home, "Desktop", "job-aggregator"))
	v.SetDefault("db-driver", DriverSQLite)
	v.SetDefault("db-path", "")
	v.SetDefault("database-url", "")
	v.SetDefault("remoteok-url", "https://remoteok.com/api")
	v.SetDefault("max-fetch-per-connector", 50)
	v.SetDefault("redis-url", "redis://localhost:6379/0")
	v.SetDefault("queue.backend", BackendRedis)
	v.SetDefault("queue.name", "scoring")
	v.SetDefault("queue.kafka.brokers", []string{})
	v.SetDefault("queue.kafka.group-id", "job-aggregator-worker")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.minimum-fit-score", 0.0)
	v.SetDefault("ai.gemini.model", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.max-log-length", 200)
}

// BindEnv wires the AJA_ prefix: storage-dir -> AJA_STORAGE_DIR, queue.kafka.brokers -> AJA_QUEUE_KAFKA_BROKERS.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads the given files in order; values from later files win,
// and variables already present in the process environment win over all of them.
func LoadDotEnv(files ...string) error {
	for i := len(files) - 1; i >= 0; i-- {
		if _, err := os.Stat(files[i]); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "stat %s", files[i])
		}
		if err := godotenv.Load(files[i]); err != nil {
			return errors.Wrapf(err, "load %s", files[i])
		}
	}
	return nil
}

// Load unmarshals, resolves and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "unmarshal settings")
	}

	s.resolve()

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

func (s *Settings) resolve() {
	s.StorageDir = expandHome(strings.TrimSpace(s.StorageDir))
	s.DBPath = expandHome(strings.TrimSpace(s.DBPath))
	if s.DBPath == "" && s.StorageDir != "" {
		s.DBPath = filepath.Join(s.StorageDir, "data", "jobs.sqlite3")
	}

	brokers := make([]string, 0, len(s.Queue.Kafka.Brokers))
	for _, b := range s.Queue.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	s.Queue.Kafka.Brokers = brokers
}

var validate = validator.New()

// Validate checks field constraints plus the rules that span several fields.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errors.Wrap(err, "invalid settings")
	}

	if s.DBDriver == DriverPostgres && strings.TrimSpace(s.DatabaseURL) == "" {
		return errors.New("invalid settings: database-url is required when db-driver is postgres")
	}

	if s.Queue.Backend == BackendKafka && len(s.Queue.Kafka.Brokers) == 0 {
		return errors.New("invalid settings: queue.kafka.brokers is required when queue.backend is kafka")
	}

	if s.AI.Enabled && strings.TrimSpace(s.AI.Gemini.APIKeyFile) == "" && os.Getenv("GEMINI_API_KEY") == "" {
		return errors.New("invalid settings: ai.gemini.api-key-file or GEMINI_API_KEY is required when ai is enabled")
	}

	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
