package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config - конфигурация сервера. Значения берутся из окружения,
// .env подхватывается при наличии.
type Config struct {
	Port              string
	StorageType       string // in-memory или postgres
	DatabaseURL       string
	JWTSecret         string
	TokenTTL          time.Duration
	RecordNoopUpdates bool
}

// Load читает конфигурацию из окружения с разумными значениями по умолчанию.
func Load() *Config {
	// Отсутствие .env - не ошибка
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		StorageType:       getEnv("STORAGE", "in-memory"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret"),
		TokenTTL:          getDuration("TOKEN_TTL", 24*time.Hour),
		RecordNoopUpdates: getBool("RECORD_NOOP_UPDATES", true),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
