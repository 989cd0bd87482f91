// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// devJWTSecret signs tokens in development mode only.
const devJWTSecret = "dev-only-secret"

type Config struct {
	Host          string   `env:"HOST" envDefault:"0.0.0.0"`
	Port          string   `env:"PORT" envDefault:"8080"`
	PublicBaseURL string   `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	CORSOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Empty runs on the in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	AutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	// Required unless DEV_SENDERS is set.
	JWTSecret string `env:"JWT_SECRET"`

	Concurrency   int           `env:"DISPATCH_CONCURRENCY" envDefault:"8"`
	QPS           float64       `env:"DISPATCH_QPS" envDefault:"20"`
	Burst         int           `env:"DISPATCH_BURST" envDefault:"20"`
	Jitter        time.Duration `env:"DISPATCH_JITTER" envDefault:"0s"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`
	SendTimeout   time.Duration `env:"SEND_TIMEOUT" envDefault:"15s"`
	UploadTimeout time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"10s"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	AssetTTL      time.Duration `env:"ASSET_TTL" envDefault:"0s"`

	NATSURL string `env:"NATS_URL"`

	MailerSendAPIKey string `env:"MAILERSEND_API_KEY"`
	MailFromName     string `env:"MAIL_FROM_NAME" envDefault:"Invitely"`
	MailFromEmail    string `env:"MAIL_FROM_EMAIL" envDefault:"invites@example.com"`

	WhatsAppDataDir string `env:"WHATSAPP_DATA_DIR"`

	SMSGatewayURL     string `env:"SMS_GATEWAY_URL"`
	SMSGatewayAccount string `env:"SMS_GATEWAY_ACCOUNT"`
	SMSDummy          bool   `env:"SMS_DUMMY" envDefault:"false"`

	GraphURL             string `env:"GRAPH_API_URL"`
	MessengerPageToken   string `env:"MESSENGER_PAGE_TOKEN"`
	InstagramAccessToken string `env:"INSTAGRAM_ACCESS_TOKEN"`

	// DevSenders logs invitations on channels that have no real sender.
	DevSenders bool `env:"DEV_SENDERS" envDefault:"false"`
}

// Load reads a .env file when present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Concurrency <= 0 {
		return Config{}, errors.New("DISPATCH_CONCURRENCY must be positive")
	}
	if cfg.JWTSecret == "" {
		if !cfg.DevSenders {
			return Config{}, errors.New("JWT_SECRET is required")
		}
		cfg.JWTSecret = devJWTSecret
	}
	return cfg, nil
}

func (c Config) Addr() string { return c.Host + ":" + c.Port }
