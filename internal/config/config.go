package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins []string

	DBHost         string
	DBUser         string
	DBPass         string
	DBName         string
	DBPort         string
	DBQueryTimeout time.Duration

	RedisURL  string
	JWTSecret string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	LogLevel  string
	LogFormat string

	DispatchWorkers          int
	DispatchRecoveryInterval time.Duration
	OrphanCleanupInterval    time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		DBHost: getEnv("DB_HOST", "localhost"),
		DBUser: getEnv("DB_USER", "postgres"),
		DBPass: os.Getenv("DB_PASS"),
		DBName: getEnv("DB_NAME", "casethreads"),
		DBPort: getEnv("DB_PORT", "5432"),

		RedisURL:  os.Getenv("REDIS_URL"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	var err error
	cfg.DBQueryTimeout, err = time.ParseDuration(getEnv("DB_QUERY_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_QUERY_TIMEOUT: %w", err)
	}
	cfg.DispatchRecoveryInterval, err = time.ParseDuration(getEnv("DISPATCH_RECOVERY_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_RECOVERY_INTERVAL: %w", err)
	}
	cfg.OrphanCleanupInterval, err = time.ParseDuration(getEnv("ORPHAN_CLEANUP_INTERVAL", "12h"))
	if err != nil {
		return nil, fmt.Errorf("invalid ORPHAN_CLEANUP_INTERVAL: %w", err)
	}
	cfg.DispatchWorkers, err = strconv.Atoi(getEnv("DISPATCH_WORKERS", "4"))
	if err != nil || cfg.DispatchWorkers < 1 {
		return nil, fmt.Errorf("invalid DISPATCH_WORKERS: must be a positive integer")
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-secret"
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
