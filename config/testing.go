package config

import (
	"time"

	"github.com/rs/zerolog"

	moderation "github.com/phillip/volunteer-hub-go/moderation"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
)

// NewTest returns a fully wired Config over the in-memory store, with a log
// mailer and no media storage. Used by tests and CLI dry runs.
func NewTest() *Config {
	cfg := &Config{
		Env:                    "test",
		JWTSecret:              "test-secret",
		AccessTTL:              time.Hour,
		RefreshTTL:             24 * time.Hour,
		OTPTTL:                 10 * time.Minute,
		CORSOrigins:            []string{"*"},
		FrontendURL:            "http://localhost:3000",
		SupportEmail:           "support@volunteerhub.local",
		RateLimitPerMinute:     0,
		SubmissionLimitPerHour: 0,
		ReminderInterval:       time.Minute,
		ReminderBatchSize:      50,
		ReminderMaxAttempts:    3,
		ReminderLeadTime:       24 * time.Hour,
		Log:                    zerolog.Nop(),
	}
	cfg.Store = store.NewMemory()
	cfg.Tokens = utils.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	cfg.Mailer = &utils.LogMailer{Log: cfg.Log}
	cfg.Media = utils.NoMedia{}
	cfg.Profanity = moderation.NewFilter()
	cfg.Submissions = moderation.NewLimiter(0, time.Hour)
	return cfg
}
