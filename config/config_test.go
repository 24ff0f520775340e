package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8082", cfg.ServerPort)
	assert.Equal(t, 10*time.Minute, cfg.LockTTL)
	assert.Equal(t, 24*time.Hour, cfg.CancelCutoff)
	assert.InDelta(t, 0.2, cfg.FillingFastThreshold, 1e-9)
	assert.Equal(t, 3, cfg.PaymentMaxAttempts)
	assert.Equal(t, 256, cfg.NotifyBuffer)
	assert.False(t, cfg.RateLimitEnabled)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("LOCK_TTL", "90s")
	t.Setenv("CANCEL_CUTOFF", "12h")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.ServerPort)
	assert.Equal(t, 90*time.Second, cfg.LockTTL)
	assert.Equal(t, 12*time.Hour, cfg.CancelCutoff)
	assert.Equal(t, int64(-100123), cfg.TelegramChatID)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("LOCK_TTL", "ten minutes")

	_, err := Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: "5433", DBUser: "u", DBPassword: "p", DBName: "courts", DBSSLMode: "disable"}
	assert.Equal(t, "host=db user=u password=p dbname=courts port=5433 sslmode=disable", cfg.DSN())
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.UTC, (&Config{VenueTimezone: "Not/AZone"}).Location())
	assert.Equal(t, "UTC", (&Config{VenueTimezone: "UTC"}).Location().String())
}
