// Package config loads gateway settings from an INI file with environment
// variable overrides. Every key can be set via HAIRSTYLE_* env vars, which
// take precedence over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Config describes runtime options for the daemon.
type Config struct {
	// Server
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Storage. A postgres:// or postgresql:// DSN selects the Postgres
	// stores; anything else is treated as a SQLite file path.
	DatabaseDSN        string
	PGMaxOpenConns     int
	PGMaxIdleConns     int
	PGConnLifetimeMins int
	PGConnIdleMins     int

	// Providers
	WaveSpeedAPIKey  string
	WaveSpeedBaseURL string
	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiModel      string

	// Blob staging for provider input images
	BlobToken   string
	BlobBaseURL string

	// Auth service
	AuthBaseURL   string
	WebhookSecret string

	// Styles catalog override, empty means built in
	StylesFile string

	// Reconciliation sweep
	ReconcileInterval time.Duration

	// Logging
	LogFile  string
	LogLevel string
}

// DefaultDatabasePath is the SQLite location used when no DSN is configured.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "hairstyle.db"
	}
	return filepath.Join(home, ".hairstyle", "gateway.db")
}

// Load reads the config file at path. A missing file is not an error: all
// keys fall back to env vars and defaults.
func Load(path string) (Config, error) {
	file := ini.Empty()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := ini.Load(path)
			if err != nil {
				return Config{}, fmt.Errorf("config: load %s: %w", path, err)
			}
			file = loaded
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	server := file.Section("server")
	db := file.Section("database")
	providers := file.Section("providers")
	blob := file.Section("blob")
	authSec := file.Section("auth")
	logging := file.Section("logging")

	cfg := Config{
		ListenAddr:       firstNonEmpty(os.Getenv("HAIRSTYLE_LISTEN_ADDR"), server.Key("listen_addr").String(), ":8090"),
		DatabaseDSN:      firstNonEmpty(os.Getenv("HAIRSTYLE_DATABASE_DSN"), db.Key("dsn").String(), DefaultDatabasePath()),
		WaveSpeedAPIKey:  firstNonEmpty(os.Getenv("HAIRSTYLE_WAVESPEED_API_KEY"), providers.Key("wavespeed_api_key").String()),
		WaveSpeedBaseURL: firstNonEmpty(os.Getenv("HAIRSTYLE_WAVESPEED_BASE_URL"), providers.Key("wavespeed_base_url").String()),
		GeminiAPIKey:     firstNonEmpty(os.Getenv("HAIRSTYLE_GEMINI_API_KEY"), providers.Key("gemini_api_key").String()),
		GeminiBaseURL:    firstNonEmpty(os.Getenv("HAIRSTYLE_GEMINI_BASE_URL"), providers.Key("gemini_base_url").String()),
		GeminiModel:      firstNonEmpty(os.Getenv("HAIRSTYLE_GEMINI_MODEL"), providers.Key("gemini_model").String()),
		BlobToken:        firstNonEmpty(os.Getenv("HAIRSTYLE_BLOB_TOKEN"), blob.Key("token").String()),
		BlobBaseURL:      firstNonEmpty(os.Getenv("HAIRSTYLE_BLOB_BASE_URL"), blob.Key("base_url").String()),
		AuthBaseURL:      firstNonEmpty(os.Getenv("HAIRSTYLE_AUTH_BASE_URL"), authSec.Key("base_url").String()),
		WebhookSecret:    firstNonEmpty(os.Getenv("HAIRSTYLE_WEBHOOK_SECRET"), authSec.Key("webhook_secret").String()),
		StylesFile:       firstNonEmpty(os.Getenv("HAIRSTYLE_STYLES_FILE"), server.Key("styles_file").String()),
		LogFile:          firstNonEmpty(os.Getenv("HAIRSTYLE_LOG_FILE"), logging.Key("log_file").String()),
		LogLevel:         firstNonEmpty(os.Getenv("HAIRSTYLE_LOG_LEVEL"), logging.Key("log_level").String(), "info"),
	}

	var err error
	cfg.ReadTimeout, err = parseDurationKey("read_timeout", os.Getenv("HAIRSTYLE_READ_TIMEOUT"), server.Key("read_timeout").String(), 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.WriteTimeout, err = parseDurationKey("write_timeout", os.Getenv("HAIRSTYLE_WRITE_TIMEOUT"), server.Key("write_timeout").String(), 180*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconcileInterval, err = parseDurationKey("reconcile_interval", os.Getenv("HAIRSTYLE_RECONCILE_INTERVAL"), server.Key("reconcile_interval").String(), time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg.PGMaxOpenConns = parseOptionalInt(firstNonEmpty(os.Getenv("HAIRSTYLE_PG_MAX_OPEN"), db.Key("pg_max_open").String()), 10)
	cfg.PGMaxIdleConns = parseOptionalInt(firstNonEmpty(os.Getenv("HAIRSTYLE_PG_MAX_IDLE"), db.Key("pg_max_idle").String()), 5)
	cfg.PGConnLifetimeMins = parseOptionalInt(firstNonEmpty(os.Getenv("HAIRSTYLE_PG_CONN_LIFETIME_MINUTES"), db.Key("pg_conn_lifetime_minutes").String()), 30)
	cfg.PGConnIdleMins = parseOptionalInt(firstNonEmpty(os.Getenv("HAIRSTYLE_PG_CONN_IDLE_MINUTES"), db.Key("pg_conn_idle_minutes").String()), 10)

	return cfg, nil
}

// UsesPostgres reports whether the configured DSN selects the Postgres stores.
func (c Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseDSN, "postgres://") || strings.HasPrefix(c.DatabaseDSN, "postgresql://")
}

// Validate rejects configurations the daemon cannot start with.
func (c Config) Validate() error {
	if c.WaveSpeedAPIKey == "" && c.GeminiAPIKey == "" {
		return fmt.Errorf("config: at least one provider api key is required (wavespeed or gemini)")
	}
	if c.WaveSpeedAPIKey != "" && c.BlobToken == "" {
		return fmt.Errorf("config: blob token is required when wavespeed is configured")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func parseOptionalInt(value string, fallback int) int {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseDurationKey(name, envValue, fileValue string, fallback time.Duration) (time.Duration, error) {
	v := firstNonEmpty(envValue, fileValue)
	if v == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", name, v, err)
	}
	return dur, nil
}
