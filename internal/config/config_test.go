package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("AUTH_ACCESS_TOKEN_TTL_MINUTES", "")
	t.Setenv("NOTIFY_RETENTION_PER_IDENTITY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7*24*60, cfg.Auth.AccessTokenTTLMinutes)
	assert.Equal(t, 200, cfg.Notification.RetentionPerIdentity)
	assert.Equal(t, 5*time.Second, cfg.Booking.SlotLockTTL())
	assert.Equal(t, "migrations", cfg.Postgres.MigrationsDir)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("RATE_LIMIT_LOGIN_RPS", "1.5")
	t.Setenv("SLOT_LOCK_WAIT_MILLIS", "250")
	t.Setenv("AUTH_BCRYPT_COST", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.App.Addr())
	assert.InDelta(t, 1.5, cfg.RateLimit.LoginRPS, 0.0001)
	assert.Equal(t, 250*time.Millisecond, cfg.Booking.SlotLockWait())
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
}

func TestLoadRejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "x")

	_, err := Load()
	assert.Error(t, err)
}
