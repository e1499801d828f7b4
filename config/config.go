// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Bot       BotConfig
	TextGen   TextGenConfig
	Jobs      JobsConfig
	Scheduler SchedulerConfig
	Storage   StorageConfig
}

type AppConfig struct {
	Env        string
	Timezone   string
	ProfileURL string
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
	GatewayToken   string
}

type DatabaseConfig struct {
	URL string
}

// RedisConfig is optional. An empty URL keeps evaluation locks in-process.
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

type BotConfig struct {
	Email string
	Name  string
}

type TextGenConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type JobsConfig struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

type SchedulerConfig struct {
	SweepInterval    time.Duration
	SweepConcurrency int
	OnThisDayAt      string
}

type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
	// UploadDir receives photos on local disk when R2 is not configured.
	UploadDir       string
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, bool, error) {
	dotenvLoaded := godotenv.Load() == nil

	cfg := &Config{
		App: AppConfig{
			Env:        getEnv("APP_ENV", "development"),
			Timezone:   getEnv("APP_TIMEZONE", "Asia/Tokyo"),
			ProfileURL: getEnv("PROFILE_URL", "/profile"),
		},
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 5200),
			AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
			GatewayToken:   os.Getenv("GATEWAY_SERVICE_TOKEN"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:     os.Getenv("REDIS_URL"),
			LockTTL: time.Duration(getEnvInt("REDIS_LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Bot: BotConfig{
			Email: os.Getenv("BOT_EMAIL"),
			Name:  getEnv("BOT_NAME", "クイックン"),
		},
		TextGen: TextGenConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
			Model:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout:    time.Duration(getEnvInt("OPENAI_TIMEOUT_SECONDS", 60)) * time.Second,
			MaxRetries: getEnvInt("OPENAI_MAX_RETRIES", 2),
		},
		Jobs: JobsConfig{
			QueueSize: getEnvInt("JOB_QUEUE_SIZE", 256),
			Workers:   getEnvInt("JOB_WORKERS", 4),
			Timeout:   time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Scheduler: SchedulerConfig{
			SweepInterval:    time.Duration(getEnvInt("BADGE_SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,
			SweepConcurrency: getEnvInt("BADGE_SWEEP_CONCURRENCY", 4),
			OnThisDayAt:      getEnv("ON_THIS_DAY_AT", "09:00"),
		},
		Storage: StorageConfig{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
			UploadDir:       getEnv("UPLOAD_DIR", "uploads"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, dotenvLoaded, err
	}
	return cfg, dotenvLoaded, nil
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable not set")
	}
	if c.Server.GatewayToken == "" {
		return errors.New("GATEWAY_SERVICE_TOKEN environment variable not set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Server.Port)
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.App.Timezone, err)
	}
	if _, _, err := c.Scheduler.OnThisDayClock(); err != nil {
		return err
	}
	if c.Jobs.Workers <= 0 || c.Jobs.QueueSize <= 0 {
		return errors.New("JOB_WORKERS and JOB_QUEUE_SIZE must be positive")
	}
	if c.Scheduler.SweepConcurrency <= 0 {
		return errors.New("BADGE_SWEEP_CONCURRENCY must be positive")
	}
	if c.TextGen.MaxRetries < 0 {
		return errors.New("OPENAI_MAX_RETRIES must not be negative")
	}
	return nil
}

// Location returns the configured application timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OnThisDayClock parses ON_THIS_DAY_AT ("HH:MM").
func (s SchedulerConfig) OnThisDayClock() (uint, uint, error) {
	t, err := time.Parse("15:04", s.OnThisDayAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid ON_THIS_DAY_AT %q: %w", s.OnThisDayAt, err)
	}
	return uint(t.Hour()), uint(t.Minute()), nil
}

// StorageEnabled reports whether R2 credentials are present.
func (s StorageConfig) StorageEnabled() bool {
	return s.AccountID != "" && s.AccessKeyID != "" && s.AccessKeySecret != "" && s.Bucket != ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
