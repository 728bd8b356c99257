package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries everything the process reads from the environment.
type Config struct {
	Port string

	// Postgres (cloud tier)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// SQLite file backing the local tier.
	LocalStorePath string

	// Secret used to sign short-lived image URLs and websocket tokens.
	JWTSecret string

	// Directory the lifecycle guard exports emergency dumps into.
	ExportDir string

	// Seconds of quiet after the last mutation before an autosave fires.
	AutosaveDebounceSec int

	AllowedOrigins []string

	LogLevel string
}

// Load reads configs/.env when present, then the environment, applying
// development defaults for anything unset.
func Load() *Config {
	_ = godotenv.Load("configs/.env")

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "orders"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
		LocalStorePath: getEnv("LOCAL_STORE_PATH", "data/local.db"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		ExportDir:      getEnv("EXPORT_DIR", "data/exports"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		AutosaveDebounceSec: getEnvInt("AUTOSAVE_DEBOUNCE_SEC", 3),
	}

	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	if cfg.JWTSecret == "" {
		if os.Getenv("GIN_MODE") == "release" {
			panic("FATAL: JWT_SECRET environment variable is required in production mode")
		}
		cfg.JWTSecret = "default_super_secret_key" // development fallback only
	}

	return cfg
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort +
		"/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
