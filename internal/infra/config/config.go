package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"squad_recommender/internal/domain/mission"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string
	RedisURL    string // Optional; rate limiting is disabled when empty

	TelegramToken   string // Optional; admin bot is disabled when empty
	AdminTelegramID int64
	AdminAPIToken   string // Optional; manual HTTP routes are open when empty
	HTTPAddr        string
	TrustProxy      bool // Honor X-Forwarded-For / X-Real-IP; only behind a trusted proxy

	LogLevel    string
	Environment string
	LogFile     string // Optional rotating log file

	Location *time.Location

	CatalogBaseURL   string
	CatalogTimeout   time.Duration
	ProblemURLFormat string // fmt pattern taking the external problem id

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailFromName string
	SMTPTimeout  time.Duration

	RateLimitMax    int64
	RateLimitWindow time.Duration

	CronSpecDailyBatch    string
	CronSpecDeliverySweep string
	BatchWorkers          int

	BlockedWindow mission.BlockedWindow // Manual triggers are refused inside it
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken != "" {
		adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
		if adminIDStr == "" {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is required when TELEGRAM_TOKEN is set")
		}
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}
	cfg.AdminAPIToken = os.Getenv("ADMIN_API_TOKEN")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	if cfg.TrustProxy, err = getBool("TRUST_PROXY_HEADERS", false); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))
	cfg.LogFile = os.Getenv("LOG_FILE")

	tz := getEnv("TIMEZONE", "Asia/Seoul")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	cfg.CatalogBaseURL = strings.TrimRight(getEnv("CATALOG_BASE_URL", "https://solved.ac/api/v3"), "/")
	if cfg.CatalogTimeout, err = getDuration("CATALOG_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	cfg.ProblemURLFormat = getEnv("PROBLEM_URL_FORMAT", "https://www.acmicpc.net/problem/%d")

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is not set")
	}
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.MailFrom = os.Getenv("MAIL_FROM")
	if cfg.MailFrom == "" {
		return nil, fmt.Errorf("MAIL_FROM is not set")
	}
	cfg.MailFromName = getEnv("MAIL_FROM_NAME", "Squad Missions")
	if cfg.SMTPTimeout, err = getDuration("SMTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	limitMax, err := getInt("RATE_LIMIT_MAX", 30)
	if err != nil {
		return nil, err
	}
	if limitMax < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX must be at least 1, got %d", limitMax)
	}
	cfg.RateLimitMax = int64(limitMax)
	if cfg.RateLimitWindow, err = getDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", cfg.RateLimitWindow)
	}

	cfg.CronSpecDailyBatch = getEnv("CRON_SPEC_DAILY_BATCH", "0 6 * * *")        // Default: 06:00 daily, the cycle start
	cfg.CronSpecDeliverySweep = getEnv("CRON_SPEC_DELIVERY_SWEEP", "*/10 * * * *") // Default: every 10 minutes
	if cfg.BatchWorkers, err = getInt("BATCH_WORKERS", 4); err != nil {
		return nil, err
	}

	if cfg.BlockedWindow.StartHour, err = getInt("MANUAL_BLOCK_START_HOUR", mission.BlockedWindowStartHour); err != nil {
		return nil, err
	}
	if cfg.BlockedWindow.EndHour, err = getInt("MANUAL_BLOCK_END_HOUR", mission.BlockedWindowEndHour); err != nil {
		return nil, err
	}
	if cfg.BlockedWindow.StartHour < 0 || cfg.BlockedWindow.EndHour > 24 || cfg.BlockedWindow.StartHour > cfg.BlockedWindow.EndHour {
		return nil, fmt.Errorf("invalid manual block window %d..%d", cfg.BlockedWindow.StartHour, cfg.BlockedWindow.EndHour)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
