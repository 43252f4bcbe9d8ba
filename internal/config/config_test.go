package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_DSN", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "root:@tcp(localhost:3306)/queuemedix?charset=utf8mb4&parseTime=True&loc=UTC", cfg.Database.DSN)
	assert.Equal(t, 16, cfg.Queue.SendBuffer)
	assert.Equal(t, 5*time.Second, cfg.Queue.WriteTimeout)
	assert.Equal(t, 15, cfg.JWTExpirationMinutes)
	assert.Equal(t, 168, cfg.JWTRefreshExpirationHours)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USERNAME", "medix")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "queue")
	t.Setenv("DB_DSN", "")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("QUEUE_WRITE_TIMEOUT_SECONDS", "2")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "host=db port=5432 user=medix password=secret dbname=queue sslmode=disable TimeZone=UTC", cfg.Database.DSN)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 2*time.Second, cfg.Queue.WriteTimeout)
}

func TestLoadConfigExplicitDSN(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file:medix.db")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "file:medix.db", cfg.Database.DSN)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"redis db", "REDIS_DB", "two"},
		{"jwt expiry", "JWT_EXPIRATION_MINUTES", "soon"},
		{"send buffer", "QUEUE_SEND_BUFFER", "0"},
		{"write timeout", "QUEUE_WRITE_TIMEOUT_SECONDS", "x"},
		{"driver", "DB_DRIVER", "oracle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_DSN", "")
			t.Setenv(tt.key, tt.val)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
