package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Env      string `envconfig:"ENV" default:"development"`

	// Database
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"bloodlink"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"bloodlink"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`

	// Redis; an empty host disables rate limiting and idempotency
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	RateLimit       int           `envconfig:"RATE_LIMIT" default:"100"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// Bearer tokens
	JWTSecret string        `envconfig:"JWT_SECRET"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"720h"`

	// AWS fan-out
	AWSRegion   string `envconfig:"AWS_REGION" default:"us-east-1"`
	SQSQueueURL string `envconfig:"SQS_QUEUE_URL"`
	SMSEnabled  bool   `envconfig:"SMS_ENABLED" default:"false"`
	// SMSCountryCode replaces the leading 0 of local numbers
	SMSCountryCode string `envconfig:"SMS_COUNTRY_CODE" default:"+254"`
	SMSSenderID    string `envconfig:"SMS_SENDER_ID"`

	ReminderInterval  time.Duration `envconfig:"REMINDER_INTERVAL" default:"1h"`
	ReminderBatchSize int           `envconfig:"REMINDER_BATCH_SIZE" default:"100"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// Load reads configuration from the environment. Outside production a local
// .env file is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if pre := (Config{Env: os.Getenv("ENV")}); !pre.IsProduction() {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.DBPort <= 0 {
		return fmt.Errorf("invalid DB_PORT: %d", c.DBPort)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT: %d", c.RateLimit)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_WINDOW: %s", c.RateLimitWindow)
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("invalid REMINDER_INTERVAL: %s", c.ReminderInterval)
	}
	if c.ReminderBatchSize <= 0 {
		return fmt.Errorf("invalid REMINDER_BATCH_SIZE: %d", c.ReminderBatchSize)
	}
	if c.SMSEnabled && c.SMSCountryCode == "" {
		return errors.New("SMS_COUNTRY_CODE is required when SMS_ENABLED is set")
	}
	return nil
}

// DatabaseURL renders the pgx connection string.
func (c *Config) DatabaseURL() string {
	if c.DBPassword == "" {
		return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
			c.DBHost, c.DBPort, c.DBUser, c.DBName, c.DBSSLMode)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
