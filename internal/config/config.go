package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"github.com/ehr/notesync/internal/importer"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	LegacyBaseURL      string        `mapstructure:"LEGACY_BASE_URL"`
	LegacyTimeout      time.Duration `mapstructure:"LEGACY_TIMEOUT"`
	LegacySigningKey   string        `mapstructure:"LEGACY_SIGNING_KEY"`
	LegacyClientID     string        `mapstructure:"LEGACY_CLIENT_ID"`
	LookbackYears      int           `mapstructure:"LOOKBACK_YEARS"`
	ImportSchedule     string        `mapstructure:"IMPORT_SCHEDULE"`
	ImportOnStart      bool          `mapstructure:"IMPORT_ON_START"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	LogFile            string        `mapstructure:"LOG_FILE"`
	MigrationsDir      string        `mapstructure:"MIGRATIONS_DIR"`
	// OperatorSigningKey enables bearer-token auth on the operator API.
	OperatorSigningKey string        `mapstructure:"OPERATOR_SIGNING_KEY"`
	OperatorIssuer     string        `mapstructure:"OPERATOR_ISSUER"`
}

// DefaultImportSchedule fires at minute 15 of every second hour starting at
// 01:00.
const DefaultImportSchedule = "0 15 1/2 * * *"

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("LEGACY_TIMEOUT", "30s")
	v.SetDefault("LEGACY_CLIENT_ID", "notesync")
	v.SetDefault("LOOKBACK_YEARS", 2)
	v.SetDefault("IMPORT_SCHEDULE", DefaultImportSchedule)
	v.SetDefault("IMPORT_ON_START", false)
	v.SetDefault("LOG_LEVEL", "info")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"LEGACY_BASE_URL", "LEGACY_TIMEOUT", "LEGACY_SIGNING_KEY", "LEGACY_CLIENT_ID",
		"LOOKBACK_YEARS", "IMPORT_SCHEDULE", "IMPORT_ON_START",
		"LOG_LEVEL", "LOG_FILE", "MIGRATIONS_DIR",
		"OPERATOR_SIGNING_KEY", "OPERATOR_ISSUER",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks the settings every command needs: the legacy endpoint,
// the lookback window and the schedule.
func (c *Config) Validate() error {
	if c.LegacyBaseURL == "" {
		return fmt.Errorf("LEGACY_BASE_URL is required")
	}
	u, err := url.Parse(c.LegacyBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("LEGACY_BASE_URL must be an absolute URL, got %q", c.LegacyBaseURL)
	}
	if c.LookbackYears < 1 {
		return fmt.Errorf("LOOKBACK_YEARS must be at least 1, got %d", c.LookbackYears)
	}
	if c.LegacyTimeout <= 0 {
		return fmt.Errorf("LEGACY_TIMEOUT must be positive, got %s", c.LegacyTimeout)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.ImportSchedule != "" {
		if err := importer.ValidateSchedule(c.ImportSchedule); err != nil {
			return err
		}
	}
	return nil
}

// ValidateServe adds the checks that only apply to the long-running server.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.RequireDatabase(); err != nil {
		return err
	}
	if !c.IsDev() && c.OperatorSigningKey == "" {
		return fmt.Errorf("OPERATOR_SIGNING_KEY is required outside development")
	}
	return nil
}

// RequireDatabase fails when no DATABASE_URL is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}
