package identity

import (
	"fmt"
	"os"
	"strconv"
)

// StoreConfig holds configuration for identity storage backends.
type StoreConfig struct {
	Backend       string // "memory", "redis" or "postgres"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string
}

// NewStore creates the appropriate identity store based on configuration.
func NewStore(config StoreConfig) (Store, error) {
	switch config.Backend {
	case "redis":
		if config.RedisAddr == "" {
			return nil, fmt.Errorf("redis backend selected but no address configured")
		}
		return NewRedisStore(config.RedisAddr, config.RedisPassword, config.RedisDB)

	case "postgres":
		if config.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres backend selected but no DSN configured")
		}
		return NewPostgresStore(config.PostgresDSN)

	case "memory", "":
		// Default for local development and tests.
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown identity backend: %s", config.Backend)
	}
}

// NewStoreFromEnv creates an identity store from environment variables.
func NewStoreFromEnv() (Store, error) {
	redisDB := 0
	if raw := os.Getenv("IDENTITY_REDIS_DB"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			redisDB = parsed
		}
	}

	return NewStore(StoreConfig{
		Backend:       os.Getenv("IDENTITY_BACKEND"),
		RedisAddr:     os.Getenv("IDENTITY_REDIS_ADDR"),
		RedisPassword: os.Getenv("IDENTITY_REDIS_PASSWORD"),
		RedisDB:       redisDB,
		PostgresDSN:   os.Getenv("IDENTITY_POSTGRES_DSN"),
	})
}
