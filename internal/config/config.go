package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	Origin                    string
	Environment               string
	LogLevel                  string
	JWTSecret                 string
	JWTRefreshSecret          string
	Database                  DatabaseConfig
	Redis                     RedisConfig
	Queue                     QueueConfig
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	NotifyQueueKey            string
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
}

// RedisConfig holds the Redis connection used for queue fan-out and notification jobs.
// An empty Addr disables both and the server falls back to in-process delivery.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// QueueConfig tunes the live queue broadcast.
type QueueConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	dbConfig := DatabaseConfig{
		Driver:   getEnv("DB_DRIVER", "mysql"),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "3306"),
		Username: getEnv("DB_USERNAME", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "queuemedix"),
		DSN:      getEnv("DB_DSN", ""),
	}

	if dbConfig.DSN == "" {
		dsn, err := buildDSN(dbConfig)
		if err != nil {
			return nil, err
		}
		dbConfig.DSN = dsn
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtExpMinutes, err := strconv.Atoi(getEnv("JWT_EXPIRATION_MINUTES", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION_MINUTES: %w", err)
	}

	jwtRefreshExpHours, err := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168")) // 7 days
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_REFRESH_EXPIRATION_HOURS: %w", err)
	}

	sendBuffer, err := strconv.Atoi(getEnv("QUEUE_SEND_BUFFER", "16"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_SEND_BUFFER: %w", err)
	}
	if sendBuffer < 1 {
		return nil, fmt.Errorf("invalid QUEUE_SEND_BUFFER: must be positive, got %d", sendBuffer)
	}

	writeTimeoutSeconds, err := strconv.Atoi(getEnv("QUEUE_WRITE_TIMEOUT_SECONDS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_WRITE_TIMEOUT_SECONDS: %w", err)
	}

	return &Config{
		Port:             getEnv("PORT", "3001"),
		Origin:           getEnv("ORIGIN", "http://localhost:4200"),
		Environment:      getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		JWTSecret:        getEnv("JWT_SECRET", "default_jwt_secret"),
		JWTRefreshSecret: getEnv("JWT_REFRESH_SECRET", "default_refresh_secret"),
		Database:         dbConfig,
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Queue: QueueConfig{
			SendBuffer:   sendBuffer,
			WriteTimeout: time.Duration(writeTimeoutSeconds) * time.Second,
		},
		JWTExpirationMinutes:      jwtExpMinutes,
		JWTRefreshExpirationHours: jwtRefreshExpHours,
		NotifyQueueKey:            getEnv("NOTIFY_QUEUE_KEY", "queuemedix:notifications"),
	}, nil
}

func buildDSN(db DatabaseConfig) (string, error) {
	switch db.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			db.Username, db.Password, db.Host, db.Port, db.Name), nil
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			db.Host, db.Port, db.Username, db.Password, db.Name), nil
	case "sqlite":
		return db.Name + ".db", nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", db.Driver)
	}
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
