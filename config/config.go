package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	moderation "github.com/phillip/volunteer-hub-go/moderation"
	reminders "github.com/phillip/volunteer-hub-go/reminders"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
)

const devJWTSecret = "dev-only-secret-change-me"

// Config holds settings plus the dependencies built from them. Handlers receive
// it as *config.Config.
type Config struct {
	Env  string
	Port string

	MongoURI string
	DBName   string

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	OTPTTL     time.Duration

	CORSOrigins []string
	// TrustedProxies may set X-Forwarded-For; empty trusts none.
	TrustedProxies []string
	FrontendURL    string
	SupportEmail   string

	EmailProvider  string
	EmailFrom      string
	EmailFromName  string
	ZeptoAPIURL    string
	ZeptoAPIKey    string
	SendgridAPIKey string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	RateLimitPerMinute     int
	SubmissionLimitPerHour int

	ReminderInterval    time.Duration
	ReminderBatchSize   int
	ReminderMaxAttempts int
	ReminderLeadTime    time.Duration

	ProfanityWords []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// wired dependencies
	MongoClient *mongo.Client
	Store       *store.Store
	Tokens      *utils.TokenIssuer
	Mailer      utils.Mailer
	Media       utils.Uploader
	Profanity   *moderation.Filter
	Submissions *moderation.Limiter
	Log         zerolog.Logger
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("DB_NAME", "volunteer_hub")
	v.SetDefault("JWT_ACCESS_TTL", 24*time.Hour)
	v.SetDefault("JWT_REFRESH_TTL", 7*24*time.Hour)
	v.SetDefault("OTP_TTL", 10*time.Minute)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("SUPPORT_EMAIL", "support@volunteerhub.local")
	v.SetDefault("EMAIL_PROVIDER", "log")
	v.SetDefault("EMAIL_FROM", "noreply@volunteerhub.local")
	v.SetDefault("EMAIL_FROM_NAME", "Volunteer Hub")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("SUBMISSION_LIMIT_PER_HOUR", 5)
	v.SetDefault("REMINDER_INTERVAL", time.Minute)
	v.SetDefault("REMINDER_BATCH_SIZE", 50)
	v.SetDefault("REMINDER_MAX_ATTEMPTS", 3)
	v.SetDefault("REMINDER_LEAD_TIME", 24*time.Hour)
	v.SetDefault("HTTP_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("HTTP_IDLE_TIMEOUT", 60*time.Second)
}

// Load reads settings from the environment, after an optional .env file.
func Load() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Env:                    strings.ToLower(v.GetString("APP_ENV")),
		Port:                   v.GetString("PORT"),
		MongoURI:               v.GetString("MONGO_URI"),
		DBName:                 v.GetString("DB_NAME"),
		JWTSecret:              v.GetString("JWT_SECRET"),
		AccessTTL:              v.GetDuration("JWT_ACCESS_TTL"),
		RefreshTTL:             v.GetDuration("JWT_REFRESH_TTL"),
		OTPTTL:                 v.GetDuration("OTP_TTL"),
		CORSOrigins:            splitList(v.GetString("CORS_ORIGINS")),
		TrustedProxies:         splitList(v.GetString("TRUSTED_PROXIES")),
		FrontendURL:            strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		SupportEmail:           v.GetString("SUPPORT_EMAIL"),
		EmailProvider:          strings.ToLower(v.GetString("EMAIL_PROVIDER")),
		EmailFrom:              v.GetString("EMAIL_FROM"),
		EmailFromName:          v.GetString("EMAIL_FROM_NAME"),
		ZeptoAPIURL:            v.GetString("ZEPTO_API_URL"),
		ZeptoAPIKey:            v.GetString("ZEPTO_API_KEY"),
		SendgridAPIKey:         v.GetString("SENDGRID_API_KEY"),
		CloudinaryCloudName:    v.GetString("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:       v.GetString("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret:    v.GetString("CLOUDINARY_API_SECRET"),
		RateLimitPerMinute:     v.GetInt("RATE_LIMIT_PER_MINUTE"),
		SubmissionLimitPerHour: v.GetInt("SUBMISSION_LIMIT_PER_HOUR"),
		ReminderInterval:       v.GetDuration("REMINDER_INTERVAL"),
		ReminderBatchSize:      v.GetInt("REMINDER_BATCH_SIZE"),
		ReminderMaxAttempts:    v.GetInt("REMINDER_MAX_ATTEMPTS"),
		ReminderLeadTime:       v.GetDuration("REMINDER_LEAD_TIME"),
		ProfanityWords:         splitList(v.GetString("PROFANITY_WORDS")),
		ReadTimeout:            v.GetDuration("HTTP_READ_TIMEOUT"),
		WriteTimeout:           v.GetDuration("HTTP_WRITE_TIMEOUT"),
		IdleTimeout:            v.GetDuration("HTTP_IDLE_TIMEOUT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if !c.IsDevelopment() {
			return fmt.Errorf("JWT_SECRET is required when APP_ENV=%s", c.Env)
		}
		c.JWTSecret = devJWTSecret
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.OTPTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive")
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", p)
			}
		}
	}
	if c.ReminderBatchSize <= 0 {
		c.ReminderBatchSize = 50
	}
	if c.ReminderMaxAttempts <= 0 {
		c.ReminderMaxAttempts = 1
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" || c.Env == "dev" }

// Wire builds the logger, token issuer, mailer, media uploader, profanity
// filter and submission limiter. It does not touch the database.
func (c *Config) Wire() error {
	c.Log = NewLogger(c.Env)
	c.Tokens = utils.NewTokenIssuer(c.JWTSecret, c.AccessTTL, c.RefreshTTL)
	c.Profanity = moderation.NewFilter(c.ProfanityWords...)
	c.Submissions = moderation.NewLimiter(c.SubmissionLimitPerHour, time.Hour)

	mailer, err := utils.NewMailer(
		c.EmailProvider,
		utils.Sender{Address: c.EmailFrom, Name: c.EmailFromName},
		c.ZeptoAPIURL, c.ZeptoAPIKey, c.SendgridAPIKey,
		c.Log.With().Str("component", "email").Logger(),
	)
	if err != nil {
		return err
	}
	c.Mailer = mailer

	c.Media = utils.NoMedia{}
	if c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != "" {
		cld, err := utils.NewCloudinary(c.CloudinaryCloudName, c.CloudinaryAPIKey, c.CloudinaryAPISecret)
		if err != nil {
			return err
		}
		c.Media = cld
	} else {
		c.Log.Warn().Msg("cloudinary not configured, image uploads disabled")
	}
	return nil
}

// Connect opens the Mongo client, creates indexes and wires the store.
func (c *Config) Connect(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.MongoURI))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(c.DBName)
	if err := store.EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return err
	}

	c.MongoClient = client
	c.Store = store.NewMongo(db)
	return nil
}

func (c *Config) Disconnect(ctx context.Context) error {
	if c.MongoClient == nil {
		return nil
	}
	return c.MongoClient.Disconnect(ctx)
}

// Scheduler returns the reminder scheduler over the wired store and mailer.
func (c *Config) Scheduler() *reminders.Scheduler {
	return &reminders.Scheduler{
		Reminders:   c.Store.Reminders,
		Mailer:      c.Mailer,
		Log:         c.Log.With().Str("component", "reminders").Logger(),
		Interval:    c.ReminderInterval,
		BatchSize:   c.ReminderBatchSize,
		MaxAttempts: c.ReminderMaxAttempts,
		FrontendURL: c.FrontendURL,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
