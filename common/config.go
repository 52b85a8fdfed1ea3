package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	System struct {
		IsProd   bool   // MODE starting with "p"
		Port     string // listen port
		DBDriver string // sqlite, mysql or postgres
		DBConn   string // sqlite file path or DSN
		RedisURL string // optional; sessions live in the database when empty
	}
	Security struct {
		SessionSecret  string        // signs the session cookie and bearer tokens
		SessionMaxAge  time.Duration // lifetime of a server-side session
		PasswordScheme string        // bcrypt, argon2id or sha1
		AdminUsername  string        // seeded on an empty users table
		AdminPassword  string
	}
	Cache struct {
		Dir    string
		MaxAge time.Duration
	}
}

// LoadConfig reads an optional .env file, then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{}

	if mode, exist := os.LookupEnv("MODE"); exist {
		cfg.System.IsProd = strings.HasPrefix(strings.ToLower(mode), "p")
	}

	cfg.System.Port = getenv("PORT", "8080")
	cfg.System.DBDriver = strings.ToLower(getenv("DB_DRIVER", "sqlite"))
	switch cfg.System.DBDriver {
	case "sqlite":
		cfg.System.DBConn = getenv("sqlite_db", os.Getenv("DB_CONN"))
	case "mysql", "postgres":
		cfg.System.DBConn = os.Getenv("DB_CONN")
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.System.DBDriver)
	}
	if cfg.System.DBConn == "" {
		return nil, fmt.Errorf("database connection not set (sqlite_db or DB_CONN)")
	}
	cfg.System.RedisURL = os.Getenv("REDIS_URL")

	cfg.Security.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.Security.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET environment variable not set")
	}

	maxAge, err := getenvInt("SESSION_MAX_AGE", 86400*7)
	if err != nil {
		return nil, err
	}
	cfg.Security.SessionMaxAge = time.Duration(maxAge) * time.Second
	cfg.Security.PasswordScheme = strings.ToLower(getenv("PASSWORD_SCHEME", "bcrypt"))
	cfg.Security.AdminUsername = os.Getenv("ADMIN_USERNAME")
	cfg.Security.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	cfg.Cache.Dir = getenv("CACHE_DIR", "cache")
	cacheMinutes, err := getenvInt("CACHE_MAX_AGE", 10)
	if err != nil {
		return nil, err
	}
	cfg.Cache.MaxAge = time.Duration(cacheMinutes) * time.Minute

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}
