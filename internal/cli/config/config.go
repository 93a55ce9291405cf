package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WORM_DATABASE_URL
const EnvPrefix = "WORM"

// Supported database/sql driver names
var drivers = map[string]bool{
	"pgx":      true,
	"postgres": true,
	"sqlite3":  true,
}

// Config represents the worm configuration
type Config struct {
	Debug      bool             `mapstructure:"debug"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Schema     SchemaConfig     `mapstructure:"schema"`
	Migrations MigrationsConfig `mapstructure:"migrations"`
	Log        LogConfig        `mapstructure:"log"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL       string `mapstructure:"url"`
	Driver    string `mapstructure:"driver"`
	Isolation string `mapstructure:"isolation"`
}

// SchemaConfig points at the YAML entity descriptors
type SchemaConfig struct {
	Dir string `mapstructure:"dir"`
}

// MigrationsConfig points at the versioned SQL migration files
type MigrationsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig selects the logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads the configuration from worm.yaml (or worm.yml) in the working
// directory, or from path when it is not empty. Environment variables override
// file values; DATABASE_URL is honoured when no URL is configured.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("debug", false)
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.isolation", "read_committed")
	v.SetDefault("schema.dir", "schema")
	v.SetDefault("migrations.dir", "migrations")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	// registered so AutomaticEnv can see it
	v.SetDefault("database.url", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("worm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = os.Getenv("DATABASE_URL")
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if !drivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be one of pgx, postgres or sqlite3, got: %s", cfg.Database.Driver)
	}
	if cfg.Schema.Dir == "" {
		return fmt.Errorf("schema.dir must not be empty")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got: %s", cfg.Log.Level)
	}
	return nil
}
