package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds all application configuration
type Config struct {
	Pipeline      PipelineConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Storage       StorageConfig
	Watch         WatchConfig
	Log           LogConfig
	Rules         RulesConfig
}

type PipelineConfig struct {
	UserID        string
	Workers       int
	Currency      string
	DecimalComma  bool
	MonthFirst    bool
	InferMerchant bool
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

type StorageConfig struct {
	ArchivePath string
}

type WatchConfig struct {
	InboxDir       string
	Schedule       string
	FilesPerSecond float64
}

type LogConfig struct {
	Level  string
	Format string
}

type RulesConfig struct {
	Path string
}

// Load reads configuration from a .env file, when present, and the process
// environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (*Config, error) {
	e := envReader{k: k}
	cfg := &Config{
		Pipeline: PipelineConfig{
			UserID:        e.getEnv("INGEST_USER_ID", "local"),
			Workers:       e.getEnvAsInt("INGEST_WORKERS", 1),
			Currency:      strings.ToUpper(e.getEnv("INGEST_CURRENCY", "INR")),
			DecimalComma:  e.getEnvAsBool("INGEST_DECIMAL_COMMA", false),
			MonthFirst:    e.getEnvAsBool("INGEST_MONTH_FIRST", false),
			InferMerchant: e.getEnvAsBool("INGEST_INFER_MERCHANT", true),
		},
		Database: DatabaseConfig{
			Enabled:  e.getEnvAsBool("DATABASE_ENABLED", false),
			Host:     e.getEnv("POSTGRES_HOST", "localhost"),
			Port:     e.getEnvAsInt("POSTGRES_PORT", 5432),
			User:     e.getEnv("POSTGRES_USER", "postgres"),
			Password: e.getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: e.getEnv("POSTGRES_DB", "statements"),
			SSLMode:  e.getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: e.getEnvAsInt("POSTGRES_MAX_CONNS", 10),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: e.getEnvAsBool("METRICS_ENABLED", false),
			MetricsPort:    e.getEnvAsInt("METRICS_PORT", 9090),
		},
		Storage: StorageConfig{
			ArchivePath: e.getEnv("ARCHIVE_PATH", "./data/archive"),
		},
		Watch: WatchConfig{
			InboxDir:       e.getEnv("WATCH_INBOX_DIR", "./data/inbox"),
			Schedule:       e.getEnv("WATCH_SCHEDULE", "@every 1m"),
			FilesPerSecond: e.getEnvAsFloat("WATCH_FILES_PER_SECOND", 2),
		},
		Log: LogConfig{
			Level:  e.getEnv("LOG_LEVEL", "info"),
			Format: e.getEnv("LOG_FORMAT", "text"),
		},
		Rules: RulesConfig{
			Path: e.getEnv("RULES_PATH", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("INGEST_WORKERS must be at least 1, got %d", c.Pipeline.Workers)
	}
	if len(c.Pipeline.Currency) != 3 {
		return fmt.Errorf("INGEST_CURRENCY must be an ISO-4217 code, got %q", c.Pipeline.Currency)
	}
	if c.Watch.FilesPerSecond <= 0 {
		return errors.New("WATCH_FILES_PER_SECOND must be positive")
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type envReader struct {
	k *koanf.Koanf
}

func (e envReader) getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(e.k.String(key)); value != "" {
		return value
	}
	return defaultValue
}

func (e envReader) getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(e.getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func (e envReader) getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(e.getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func (e envReader) getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(e.getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}
