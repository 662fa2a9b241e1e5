package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	Port        string   `yaml:"port" mapstructure:"port" json:"port"`
	Host        string   `yaml:"host" mapstructure:"host" json:"host"`
	CORSOrigins []string `yaml:"corsOrigins" mapstructure:"corsOrigins" json:"corsOrigins"`
}

// TelemetryConfig contains live stream generation configuration
type TelemetryConfig struct {
	TickInterval time.Duration `yaml:"tickInterval" mapstructure:"tickInterval"`
}

// StorageConfig contains history store configuration. The ceilings apply to
// every backend; the capacity model is FIFO eviction, not backpressure.
type StorageConfig struct {
	Backend    string         `yaml:"backend" mapstructure:"backend"` // memory, badger, or postgres
	MaxRecords int            `yaml:"maxRecords" mapstructure:"maxRecords"`
	MaxBytes   int64          `yaml:"maxBytes" mapstructure:"maxBytes"`
	Badger     BadgerConfig   `yaml:"badger" mapstructure:"badger"`
	Postgres   PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// BadgerConfig contains BadgerDB-specific configuration
type BadgerConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	RetentionDays int    `yaml:"retentionDays" mapstructure:"retentionDays"`
}

// PostgresConfig contains PostgreSQL-specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"sslMode" mapstructure:"sslMode"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string            `yaml:"level" mapstructure:"level"`
	Format string            `yaml:"format" mapstructure:"format"`
	Output string            `yaml:"output" mapstructure:"output"`
	Fields map[string]string `yaml:"fields" mapstructure:"fields"`
}

// LoadConfig loads configuration from file
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults. Storage ceilings mirror the capped collection the service
	// replaced: 360 records / 5 MiB.
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.corsOrigins", []string{"http://localhost:3000", "http://localhost:8080"})
	v.SetDefault("telemetry.tickInterval", "3s")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.maxRecords", 360)
	v.SetDefault("storage.maxBytes", 5242880)
	v.SetDefault("storage.badger.path", "./data")
	v.SetDefault("storage.badger.retentionDays", 30)
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.sslMode", "disable")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Enable environment variable substitution
	v.AutomaticEnv()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vitalstream")
	}

	// Read config
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if c.Telemetry.TickInterval <= 0 {
		return fmt.Errorf("telemetry.tickInterval must be positive")
	}
	if c.Telemetry.TickInterval < 100*time.Millisecond {
		return fmt.Errorf("telemetry.tickInterval too short (min 100ms): %v", c.Telemetry.TickInterval)
	}

	switch c.Storage.Backend {
	case "", "memory", "badger", "postgres":
	default:
		return fmt.Errorf("invalid storage backend: %s (valid options: memory, badger, postgres)", c.Storage.Backend)
	}

	if c.Storage.MaxRecords <= 0 {
		return fmt.Errorf("storage.maxRecords must be positive")
	}
	if c.Storage.MaxBytes <= 0 {
		return fmt.Errorf("storage.maxBytes must be positive")
	}

	if c.Storage.Backend == "badger" && c.Storage.Badger.Path == "" {
		return fmt.Errorf("storage.badger.path is required for the badger backend")
	}
	if c.Storage.Backend == "postgres" {
		if c.Storage.Postgres.Host == "" {
			return fmt.Errorf("storage.postgres.host is required for the postgres backend")
		}
		if c.Storage.Postgres.Database == "" {
			return fmt.Errorf("storage.postgres.database is required for the postgres backend")
		}
	}

	return nil
}
