package util

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/nextias/wct_backend/db"
)

// Backend is the process-wide database backend, populated from main.
var Backend db.Backend

// Cfg is the resolved process configuration, populated from main.
var Cfg Config

// Config is resolved once at process start and passed down; nothing re-probes
// the environment after LoadConfig returns.
type Config struct {
	DBType       string // "sqlite" or "postgres"
	DatabasePath string // resolved sqlite file path
	PostgresDSN  string

	Port      string
	JWTSecret string

	AdminUsername string
	AdminEmail    string
	AdminPassword string

	ForceRecreateCartTables bool
	SeedSampleData          bool
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LoadConfig reads the environment (plus an optional .env file) into a Config.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using process environment")
	}

	cfg := Config{
		DBType:        getenv("DB_TYPE", "sqlite"),
		Port:          getenv("PORT", "8080"),
		JWTSecret:     getenv("JWT_SECRET", "wct-dev-secret"),
		AdminUsername: getenv("ADMIN_USERNAME", "superadmin"),
		AdminEmail:    getenv("ADMIN_EMAIL", "admin@nextias.com"),
		AdminPassword: getenv("ADMIN_PASSWORD", "Admin_2025!"),

		ForceRecreateCartTables: os.Getenv("FORCE_RECREATE_CART_TABLES") == "true",
		SeedSampleData:          os.Getenv("SEED_SAMPLE_DATA") == "true",
	}

	switch cfg.DBType {
	case "sqlite":
		cfg.DatabasePath = resolveSQLitePath()
	case "postgres":
		cfg.PostgresDSN = resolvePostgresDSN()
	default:
		return Config{}, fmt.Errorf("unsupported DB_TYPE %q", cfg.DBType)
	}

	if os.Getenv("JWT_SECRET") == "" {
		log.Warn().Msg("JWT_SECRET not set, using development default")
	}
	return cfg, nil
}

// resolveSQLitePath checks an ordered list of candidate locations for the
// database file and returns the first that exists: explicit override,
// platform temp path, working directory, data subdirectory. When none exist
// the temp path is returned and created on first use.
func resolveSQLitePath() string {
	if p := os.Getenv("DATABASE_PATH"); p != "" {
		log.Info().Str("path", p).Msg("using DATABASE_PATH override")
		return p
	}

	tmpPath := filepath.Join(os.TempDir(), "wct.db")
	candidates := []string{
		tmpPath,
		filepath.Join(mustGetwd(), "wct.db"),
		filepath.Join(mustGetwd(), "data", "wct.db"),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			log.Info().Str("path", p).Msg("found existing database file")
			return p
		}
	}

	log.Info().Str("path", tmpPath).Msg("no existing database found, defaulting")
	return tmpPath
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func resolvePostgresDSN() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getenv("DB_HOST", "localhost"),
		getenv("DB_PORT", "5432"),
		getenv("DB_USER", "postgres"),
		getenv("DB_PASS", ""),
		getenv("DB_NAME", "wct"),
		getenv("SSL_MODE", "disable"),
	)
}
