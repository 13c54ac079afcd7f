// Package config provides configuration management for the dataset generator.
// It loads configuration from environment variables, .env files and an
// optional YAML scenario file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
)

// ScenarioFileEnv names the environment variable pointing at a scenario file
const ScenarioFileEnv = "DATAGEN_SCENARIO_FILE"

// Snapshot targets
const (
	SnapshotNone       = "none"
	SnapshotPostgres   = "postgres"
	SnapshotClickHouse = "clickhouse"
)

// Config holds all application configuration
type Config struct {
	Generation GenerationConfig
	Snapshot   SnapshotConfig
	Registry   RegistryConfig
	Database   DatabaseConfig
	Artifacts  ArtifactsConfig
	Metrics    MetricsConfig
	Retry      RetryConfig
	Logging    LoggingConfig
}

// GenerationConfig holds the generation parameters of a run
type GenerationConfig struct {
	Seed      uint64
	OutputDir string    `validate:"required"`
	StartDate time.Time `validate:"required"`
	EndDate   time.Time `validate:"required,gtfield=StartDate"`
	Schools   int       `validate:"min=1,max=66"`
	Users     int       `validate:"min=1"`
	Products  int       `validate:"min=1"`
	Referrals int       `validate:"min=0"`
	Purchases int       `validate:"min=0"`
}

// SnapshotConfig selects the relational snapshot sink
type SnapshotConfig struct {
	Target string `validate:"oneof=none postgres clickhouse"`
	Schema string `validate:"required"`
}

// RegistryConfig enables the Postgres generation run registry
type RegistryConfig struct {
	Enabled bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string `validate:"required"`
	Port           string `validate:"required"`
	Database       string `validate:"required"`
	User           string
	Password       string
	MaxConnections int `validate:"min=1"`
}

// URL returns the connection URL used by the migration runner
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required"`
	Database string `validate:"required"`
	User     string
	Password string
}

// RedisConfig holds Redis configuration for the latest-run pointer
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int `validate:"min=1"`
}

// ArtifactsConfig holds S3-compatible object storage configuration
type ArtifactsConfig struct {
	Enabled   bool
	Endpoint  string `validate:"required_if=Enabled true"`
	AccessKey string `validate:"required_if=Enabled true"`
	SecretKey string `validate:"required_if=Enabled true"`
	Bucket    string `validate:"required_if=Enabled true"`
	Prefix    string
	UseTLS    bool
}

// MetricsConfig holds generation metrics export configuration
type MetricsConfig struct {
	// TextfilePath is a node-exporter textfile; empty disables the export
	TextfilePath string
}

// RetryConfig holds the backoff settings for external sinks
type RetryConfig struct {
	MaxRetries   int           `validate:"min=0"`
	InitialDelay time.Duration `validate:"min=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn warning error fatal"`
	Format string `validate:"oneof=json text"`
}

// LoadConfig loads configuration from .env file, environment variables and the
// scenario file named by DATAGEN_SCENARIO_FILE, then validates it
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, apperrors.NewConfigError("error loading .env file", err)
		}
	}

	config := &Config{
		Generation: GenerationConfig{
			Seed:      getEnvAsUint64("DATAGEN_SEED", 42),
			OutputDir: getEnv("DATAGEN_OUTPUT_DIR", "./data"),
			StartDate: getEnvAsTime("DATAGEN_START_DATE", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
			EndDate:   getEnvAsTime("DATAGEN_END_DATE", time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)),
			Schools:   getEnvAsInt("DATAGEN_SCHOOLS", 50),
			Users:     getEnvAsInt("DATAGEN_USERS", 1000),
			Products:  getEnvAsInt("DATAGEN_PRODUCTS", 100),
			Referrals: getEnvAsInt("DATAGEN_REFERRALS", 1000),
			Purchases: getEnvAsInt("DATAGEN_PURCHASES", 10000),
		},
		Snapshot: SnapshotConfig{
			Target: getEnv("SNAPSHOT_TARGET", SnapshotNone),
			Schema: getEnv("SNAPSHOT_SCHEMA", "raw"),
		},
		Registry: RegistryConfig{
			Enabled: getEnvAsBool("RUN_REGISTRY_ENABLED", false),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "carton_caps"),
				User:           getEnv("POSTGRES_USER", "datagen"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "carton_caps"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", false),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 5),
			},
		},
		Artifacts: ArtifactsConfig{
			Enabled:   getEnvAsBool("ARTIFACTS_ENABLED", false),
			Endpoint:  getEnv("ARTIFACTS_ENDPOINT", ""),
			AccessKey: getEnv("ARTIFACTS_ACCESS_KEY", ""),
			SecretKey: getEnv("ARTIFACTS_SECRET_KEY", ""),
			Bucket:    getEnv("ARTIFACTS_BUCKET", "datagen"),
			Prefix:    getEnv("ARTIFACTS_PREFIX", "runs"),
			UseTLS:    getEnvAsBool("ARTIFACTS_USE_TLS", true),
		},
		Metrics: MetricsConfig{
			TextfilePath: getEnv("METRICS_TEXTFILE_PATH", ""),
		},
		Retry: RetryConfig{
			MaxRetries:   getEnvAsInt("SINK_MAX_RETRIES", 3),
			InitialDelay: getEnvAsDuration("SINK_RETRY_DELAY", 2*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if path := getEnv(ScenarioFileEnv, ""); path != "" {
		scenario, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenario.Apply(&config.Generation)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section and reports all invalid fields at once
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewConfigError("invalid configuration", err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			problems = append(problems, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
	}
	cfgErr := apperrors.NewConfigError("invalid configuration: "+strings.Join(problems, "; "), err)
	cfgErr.Details = map[string]interface{}{"fields": problems}
	return cfgErr
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsUint64 gets an environment variable as an unsigned integer with a default value
func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsTime gets an RFC 3339 environment variable as a UTC time with a default value
func getEnvAsTime(key string, defaultValue time.Time) time.Time {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.Parse(time.RFC3339, valueStr)
	if err != nil {
		return defaultValue
	}
	return value.UTC()
}
