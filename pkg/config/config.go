package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	HTTPAddr       string
	MigrationsPath string
	LogLevel       string

	// StoreDriver selects the persistence backend: "postgres" (default) or "memory".
	// The memory store is seeded from SeedPath and is meant for local runs only.
	StoreDriver string
	SeedPath    string

	// Hosted Postgres convenience:
	// - DATABASE_URL: runtime connection (often a pooler)
	// - DIRECT_URL: direct connection for migrations
	DatabaseURL string
	DirectURL   string

	DB DBConfig

	Auth AuthConfig

	Notify NotifyConfig

	// CORSAllowedOrigins is a comma-separated allowlist of origins allowed to call the API
	// from a browser. Example:
	//   https://labs.example.edu,http://localhost:5173
	CORSAllowedOrigins []string
}

type DBConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string

	// MaxConns caps the pool; 0 keeps the pgxpool default.
	MaxConns int32
	// LockTimeout bounds how long a statement waits on a row or advisory lock.
	LockTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type NotifyConfig struct {
	// WebhookURL receives every lifecycle event as signed JSON. Empty disables the webhook.
	WebhookURL    string
	WebhookSecret string
}

func Load() Config {
	// Convenience for local dev: load variables from .env if present.
	// In production, rely on real environment variables.
	_ = godotenv.Load()

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			httpAddr = ":" + port
		} else {
			httpAddr = ":8081"
		}
	}

	return Config{
		AppEnv:         env("APP_ENV", "dev"),
		HTTPAddr:       httpAddr,
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
		LogLevel:       env("LOG_LEVEL", "info"),
		StoreDriver:    strings.ToLower(env("STORE_DRIVER", "postgres")),
		SeedPath:       os.Getenv("SEED_PATH"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DirectURL:      os.Getenv("DIRECT_URL"),
		DB: DBConfig{
			Host:     env("DB_HOST", "localhost"),
			Port:     env("DB_PORT", "5432"),
			Name:     env("DB_NAME", "labportal"),
			User:     env("DB_USER", "labportal"),
			Password: env("DB_PASSWORD", "labportal"),
			SSLMode:  env("DB_SSLMODE", "disable"),

			MaxConns:    int32(envInt("DB_MAX_CONNS", 0)),
			LockTimeout: envDuration("DB_LOCK_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
			Issuer:    env("AUTH_JWT_ISSUER", "labportal"),
		},
		Notify: NotifyConfig{
			WebhookURL:    os.Getenv("NOTIFY_WEBHOOK_URL"),
			WebhookSecret: os.Getenv("NOTIFY_WEBHOOK_SECRET"),
		},
		CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:4173"),
	}
}

// IsProd reports whether dev conveniences (header identity, memory store) must be refused.
func (c Config) IsProd() bool {
	return c.AppEnv == "prod"
}

func env(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envList(key, fallbackCSV string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallbackCSV
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return d
}
