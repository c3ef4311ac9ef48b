package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
	"github.com/joho/godotenv"
)

const (
	defaultPort               = "1337"
	defaultLanguage           = "en"
	defaultRefreshConcurrency = 2
	defaultRefreshSchedule    = "@every 6h"
)

type Config struct {
	// DBDriver is "postgres" or "sqlite".
	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	Port     string
	Language string

	// Environment is the reference device the stored latest supported
	// version is computed for.
	Environment models.SupportEnvironment

	RefreshConcurrency int
	RefreshSchedule    string
	DailyRefresh       bool
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DBDriver:           strings.ToLower(getenv("DB_DRIVER", "postgres")),
		SQLitePath:         getenv("DB_SQLITE_PATH", "catalog.db"),
		Port:               getenv("PORT", defaultPort),
		Language:           getenv("CATALOG_LANGUAGE", defaultLanguage),
		RefreshConcurrency: defaultRefreshConcurrency,
		RefreshSchedule:    getenv("REFRESH_SCHEDULE", defaultRefreshSchedule),
		DailyRefresh:       getbool("REFRESH_DAILY", true),
	}
	cfg.DatabaseURL = getenv("DATABASE_URL", postgresURL())

	if raw := strings.TrimSpace(os.Getenv("CATALOG_OS_VERSION")); raw != "" {
		v, err := models.ParseOSVersion(raw)
		if err != nil {
			return Config{}, fmt.Errorf("CATALOG_OS_VERSION: %w", err)
		}
		cfg.Environment.OSVersion = v
	}
	cfg.Environment.SelfBundleID = strings.TrimSpace(os.Getenv("CATALOG_SELF_BUNDLE_ID"))
	cfg.Environment.SelfVersion = strings.TrimSpace(os.Getenv("CATALOG_SELF_VERSION"))

	if raw := strings.TrimSpace(os.Getenv("REFRESH_CONCURRENCY")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("REFRESH_CONCURRENCY must be a positive integer, got %q", raw)
		}
		cfg.RefreshConcurrency = n
	}

	switch cfg.DBDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("DB_DRIVER %q is not supported", cfg.DBDriver)
	}
	return cfg, nil
}

// DSN is what database.Open expects for DBDriver.
func (c Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.DatabaseURL
}

func postgresURL() string {
	return "postgres://" +
		os.Getenv("DB_USERNAME") + ":" +
		os.Getenv("DB_PASSWORD") + "@" +
		os.Getenv("DB_HOSTNAME") + "/" +
		os.Getenv("DB_DBNAME") + "?search_path=" +
		os.Getenv("DB_SCHEMA")
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}
