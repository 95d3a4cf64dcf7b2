package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	utils "github.com/phillip/volunteer-hub-go/utils"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "volunteer_hub", cfg.DBName)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.AccessTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 3, cfg.ReminderMaxAttempts)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_ACCESS_TTL", "15m")
	t.Setenv("CORS_ORIGINS", "https://a.org, https://b.org,")
	t.Setenv("PROFANITY_WORDS", "foo,bar baz")
	t.Setenv("REMINDER_BATCH_SIZE", "7")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 172.16.0.0/12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, []string{"https://a.org", "https://b.org"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"foo", "bar baz"}, cfg.ProfanityWords)
	assert.Equal(t, 7, cfg.ReminderBatchSize)
	assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.TrustedProxies)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsBadTrustedProxy(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1,proxy.internal")

	_, err := Load()
	assert.ErrorContains(t, err, "TRUSTED_PROXIES")
}

func TestLoadRequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestWire(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("EMAIL_PROVIDER", "log")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Wire())
	assert.IsType(t, &utils.LogMailer{}, cfg.Mailer)
	assert.IsType(t, utils.NoMedia{}, cfg.Media)
	assert.NotNil(t, cfg.Tokens)
	assert.NotEmpty(t, cfg.Profanity.Check("this is shit"))
}

func TestWireRejectsUnknownProvider(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("EMAIL_PROVIDER", "carrier-pigeon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.Wire())
}
