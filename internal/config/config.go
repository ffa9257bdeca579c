package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/toyoshi/solo-block-report-bot/internal/domain"
)

const tokenPlaceholder = "YOUR_BOT_TOKEN_HERE"

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`

	// Postgres is used when DatabaseURL is set, SQLite at DBPath otherwise.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBPath      string `envconfig:"DB_PATH" default:"./data/bot.db"`

	ReportTZ  string `envconfig:"REPORT_TZ" default:"Asia/Tokyo"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"` // json|console
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`

	PoolBaseURL       string        `envconfig:"POOL_BASE_URL" default:"https://solo.ckpool.org"`
	DifficultyURL     string        `envconfig:"DIFFICULTY_URL" default:"https://blockchain.info/q/getdifficulty"`
	PoolTimeout       time.Duration `envconfig:"POOL_TIMEOUT" default:"20s"`
	DifficultyTimeout time.Duration `envconfig:"DIFFICULTY_TIMEOUT" default:"10s"`
	PoolRPS           float64       `envconfig:"POOL_RPS" default:"2"`
	SendRPS           float64       `envconfig:"SEND_RPS" default:"25"`

	HitCheckSpec     string `envconfig:"HIT_CHECK_SPEC" default:"@every 5m"`
	DigestSpec       string `envconfig:"DIGEST_SPEC" default:"* * * * *"`
	CheckConcurrency int    `envconfig:"CHECK_CONCURRENCY" default:"4"`
}

// Load reads .env (if present) and then environment variables into Config.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOffline is Load for commands that do not talk to Telegram; the bot
// token is not required.
func LoadOffline() (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validateSettings(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.BotToken == "" || c.BotToken == tokenPlaceholder {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is not set"))
	}
	if err := c.validateSettings(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) validateSettings() error {
	var errs []error
	if c.CheckConcurrency < 1 {
		errs = append(errs, fmt.Errorf("CHECK_CONCURRENCY must be >= 1, got %d", c.CheckConcurrency))
	}
	if c.PoolRPS <= 0 {
		errs = append(errs, fmt.Errorf("POOL_RPS must be > 0, got %v", c.PoolRPS))
	}
	if c.SendRPS <= 0 {
		errs = append(errs, fmt.Errorf("SEND_RPS must be > 0, got %v", c.SendRPS))
	}
	if c.PoolTimeout <= 0 || c.DifficultyTimeout <= 0 {
		errs = append(errs, errors.New("POOL_TIMEOUT and DIFFICULTY_TIMEOUT must be positive"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves the report zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := domain.LoadZone(c.ReportTZ)
	if err != nil {
		return nil, fmt.Errorf("REPORT_TZ: %w", err)
	}
	return loc, nil
}
