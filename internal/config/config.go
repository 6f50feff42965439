package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	HTTPAddr   string
	LogLevel   string
	LogFormat  string
	DataDir    string
	AppURL     string
	AdminToken string

	Database DatabaseConfig
	SMS      SMSConfig
	Twilio   TwilioConfig
	Redis    RedisConfig

	// Scheduler selects the job runner: "local" or "asynq".
	Scheduler string

	// ExchangeDate is the gift exchange day, zero when not configured.
	ExchangeDate time.Time

	DrawMaxAttempts int
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type SMSConfig struct {
	Enabled   bool
	Provider  string
	RateLimit int
	SendDelay time.Duration
	Timeout   time.Duration

	WindowStart int
	WindowEnd   int
	Location    *time.Location

	RetentionDays int

	// CountryCode replaces a leading trunk 0 when normalizing numbers for WhatsApp.
	CountryCode string
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
	BaseURL     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoadConfig loads configuration from environment variables or defaults.
// A .env file in the working directory is read first when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "data")
	cfg := &Config{
		HTTPAddr:   getEnv("HTTP_ADDR", ":3000"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "json"),
		DataDir:    dataDir,
		AppURL:     strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/"),
		AdminToken: getEnv("ADMIN_TOKEN", ""),
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite3"),
			DSN:    getEnv("DB_DSN", "file:"+filepath.Join(dataDir, "santa.db")+"?_foreign_keys=on&_busy_timeout=5000"),
		},
		SMS: SMSConfig{
			Enabled:       getEnvBool("SMS_ENABLED", false),
			Provider:      getEnv("SMS_PROVIDER", "twilio"),
			RateLimit:     getEnvInt("SMS_RATE_LIMIT", 10),
			SendDelay:     getEnvDuration("SMS_SEND_DELAY", 100*time.Millisecond),
			Timeout:       getEnvDuration("SMS_SEND_TIMEOUT", 15*time.Second),
			WindowStart:   getEnvInt("SMS_WINDOW_START", 9),
			WindowEnd:     getEnvInt("SMS_WINDOW_END", 21),
			Location:      getEnvLocation("TZ_NAME"),
			RetentionDays: getEnvInt("QUEUE_RETENTION_DAYS", 30),
			CountryCode:   getEnv("PHONE_COUNTRY_CODE", "1"),
		},
		Twilio: TwilioConfig{
			AccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
			PhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),
			BaseURL:     getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Scheduler:       getEnv("SCHEDULER", "local"),
		DrawMaxAttempts: getEnvInt("DRAW_MAX_ATTEMPTS", 5),
	}

	if v := getEnv("EXCHANGE_DATE", ""); v != "" {
		if d, err := time.ParseInLocation("2006-01-02", v, cfg.SMS.Location); err == nil {
			cfg.ExchangeDate = d
		}
	}

	return cfg
}

// StatusCallbackURL is where the SMS provider posts delivery receipts.
func (c *Config) StatusCallbackURL() string {
	return c.AppURL + "/api/webhooks/twilio/status"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvLocation(key string) *time.Location {
	if value := os.Getenv(key); value != "" {
		if loc, err := time.LoadLocation(value); err == nil {
			return loc
		}
	}
	return time.Local
}
