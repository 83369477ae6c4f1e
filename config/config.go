// Package config loads application settings from a .env file and environment variables.
// Environment variables always take precedence over .env file values.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// Storage backend: postgres, sqlite or memory.
	DBDriver   string
	SQLitePath string

	// PostgreSQL – either set DatabaseURL directly, or the individual fields.
	DatabaseURL string
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string
	DBSSLMode   string

	// Webscorer feed credentials, needed by the importer.
	WebscorerAPIID   string
	WebscorerAPIPriv string
	WebscorerBaseURL string

	// How long a scanned chip stays on the kiosk screens.
	KioskChipTTL time.Duration

	// Server
	Debug      bool
	Port       string
	TLSDomains []string

	// MySQL – used only by cmd/migrate.
	MySQLDSN string
}

// Load reads configuration from a .env file (if present) and then from
// environment variables. Environment variables always win.
func Load() *Config {
	v := newViper()

	// Defaults
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_USER", "erik")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "race_info")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "race_info.db")
	v.SetDefault("KIOSK_CHIP_TTL", "10s")
	v.SetDefault("PORT", ":5000")
	v.SetDefault("DEBUG", false)

	cfg := &Config{
		DBDriver:         v.GetString("DB_DRIVER"),
		SQLitePath:       v.GetString("SQLITE_PATH"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		DBUser:           v.GetString("DB_USER"),
		DBPass:           v.GetString("DB_PASS"),
		DBHost:           v.GetString("DB_HOST"),
		DBPort:           v.GetString("DB_PORT"),
		DBName:           v.GetString("DB_NAME"),
		DBSSLMode:        v.GetString("DB_SSLMODE"),
		WebscorerAPIID:   v.GetString("WEBSCORER_API_ID"),
		WebscorerAPIPriv: v.GetString("WEBSCORER_API_PRIV"),
		WebscorerBaseURL: v.GetString("WEBSCORER_BASE_URL"),
		KioskChipTTL:     v.GetDuration("KIOSK_CHIP_TTL"),
		Debug:            v.GetBool("DEBUG"),
		Port:             v.GetString("PORT"),
		TLSDomains:       splitTrimmed(v.GetString("TLS_DOMAINS")),
		MySQLDSN:         v.GetString("MYSQL_DSN"),
	}

	cfg.validate()
	return cfg
}

// PostgresDSN returns the full PostgreSQL connection string.
// DATABASE_URL takes precedence over individual fields.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser,
		c.DBPass,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func (c *Config) validate() {
	switch c.DBDriver {
	case "postgres":
		if c.DatabaseURL == "" && c.DBPass == "" {
			log.Fatal("config: DATABASE_URL or DB_PASS must be set")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			log.Fatal("config: SQLITE_PATH must be set")
		}
	case "memory":
		// Nothing to check, state lives only in the registry.
	default:
		log.Fatalf("config: unknown DB_DRIVER %q (want postgres, sqlite or memory)", c.DBDriver)
	}
}

func newViper() *viper.Viper {
	// Silently load .env – OK if the file doesn't exist (production uses real env vars).
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment variables only")
	}

	v := viper.New()
	v.AutomaticEnv()
	return v
}

func splitTrimmed(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
