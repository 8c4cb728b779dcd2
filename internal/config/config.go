// Package config provides YAML-based configuration loading for Soundcheck.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Soundcheck configuration, loaded from soundcheck.yaml.
type Config struct {
	Database  DatabaseConfig           `yaml:"database"`
	Server    ServerConfig             `yaml:"server"`
	Redis     RedisConfig              `yaml:"redis"`
	Scheduler SchedulerConfig          `yaml:"scheduler"`
	Packages  map[string]PackageConfig `yaml:"packages"`
	Notify    NotifyConfig             `yaml:"notify"`
}

// DatabaseConfig holds connection settings for the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "mysql" or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Path     string `yaml:"path"` // sqlite file path
}

// ServerConfig holds HTTP surface settings.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	JWTSecret  string `yaml:"jwt_secret"`
	CronSecret string `yaml:"cron_secret"`
}

// RedisConfig points at the redis instance backing the stats cache and the
// notification task queue. An empty Addr disables both.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SchedulerConfig holds the assignment, lease and abuse-limit knobs.
type SchedulerConfig struct {
	LeaseTTL              time.Duration `yaml:"lease_ttl"`
	ReapSchedule          string        `yaml:"reap_schedule"`
	MinListenSeconds      int           `yaml:"min_listen_seconds"`
	HeartbeatMaxStep      int           `yaml:"heartbeat_max_step"`
	ClientReportMaxStep   int           `yaml:"client_report_max_step"`
	SkipLimitPerDay       int           `yaml:"skip_limit_per_day"`
	PeerClaimsPerDay      int           `yaml:"peer_claims_per_day"`
	MinReviewerAccountAge time.Duration `yaml:"min_reviewer_account_age"`
	StatsTTL              time.Duration `yaml:"stats_ttl"`
	Timezone              string        `yaml:"timezone"`
}

// PackageConfig overrides the built-in catalog entry for one package type.
type PackageConfig struct {
	Reviews    int    `yaml:"reviews"`
	Priority   *int   `yaml:"priority"`
	MinTier    string `yaml:"min_tier"`
	GenreGated *bool  `yaml:"genre_gated"`
}

// NotifyConfig selects where emitted facts are delivered.
type NotifyConfig struct {
	Async   bool          `yaml:"async"`
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	SMTP    SMTPConfig    `yaml:"smtp"`
}

// SlackConfig configures the Slack sink.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig configures the Discord sink.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// SMTPConfig configures the email sink.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file next to the config, if present, is loaded into the process
// environment first so secrets can stay out of the YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, statErr := os.Stat(envPath); statErr == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", envPath, err)
		}
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays secrets from the environment. Env wins over YAML.
func (c *Config) applyEnv() {
	overlay := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	overlay(&c.Database.Password, "SOUNDCHECK_DB_PASSWORD")
	overlay(&c.Server.JWTSecret, "SOUNDCHECK_JWT_SECRET")
	overlay(&c.Server.CronSecret, "SOUNDCHECK_CRON_SECRET")
	overlay(&c.Redis.Password, "SOUNDCHECK_REDIS_PASSWORD")
	overlay(&c.Notify.Slack.BotToken, "SOUNDCHECK_SLACK_TOKEN")
	overlay(&c.Notify.Discord.BotToken, "SOUNDCHECK_DISCORD_TOKEN")
	overlay(&c.Notify.SMTP.Password, "SOUNDCHECK_SMTP_PASSWORD")
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "soundcheck"
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "soundcheck.db"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	s := &c.Scheduler
	if s.LeaseTTL == 0 {
		s.LeaseTTL = 48 * time.Hour
	}
	if s.ReapSchedule == "" {
		s.ReapSchedule = "*/5 * * * *"
	}
	if s.MinListenSeconds == 0 {
		s.MinListenSeconds = 180
	}
	if s.HeartbeatMaxStep == 0 {
		s.HeartbeatMaxStep = 10
	}
	if s.ClientReportMaxStep == 0 {
		s.ClientReportMaxStep = 60
	}
	if s.SkipLimitPerDay == 0 {
		s.SkipLimitPerDay = 3
	}
	if s.PeerClaimsPerDay == 0 {
		s.PeerClaimsPerDay = 2
	}
	if s.MinReviewerAccountAge == 0 {
		s.MinReviewerAccountAge = 24 * time.Hour
	}
	if s.StatsTTL == 0 {
		s.StatsTTL = 15 * time.Minute
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if c.Notify.SMTP.Port == 0 && c.Notify.SMTP.Host != "" {
		c.Notify.SMTP.Port = 587
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be mysql or sqlite", c.Database.Driver))
	}
	if c.Scheduler.LeaseTTL < 0 {
		errs = append(errs, "scheduler.lease_ttl must be positive")
	}
	if _, err := cron.ParseStandard(c.Scheduler.ReapSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("scheduler.reap_schedule: %v", err))
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("scheduler.timezone: %v", err))
	}
	for name, p := range c.Packages {
		switch name {
		case "STARTER", "STANDARD", "PRO", "PEER", "RELEASE_DECISION":
		default:
			errs = append(errs, fmt.Sprintf("packages.%s is not a known package type", name))
		}
		switch p.MinTier {
		case "", "ROOKIE", "VERIFIED", "PRO":
		default:
			errs = append(errs, fmt.Sprintf("packages.%s.min_tier %q is not a tier", name, p.MinTier))
		}
		if p.Reviews < 0 {
			errs = append(errs, fmt.Sprintf("packages.%s.reviews must not be negative", name))
		}
	}
	if c.Notify.Slack.BotToken != "" && c.Notify.Slack.Channel == "" {
		errs = append(errs, "notify.slack.channel is required when a bot token is set")
	}
	if c.Notify.Discord.BotToken != "" && c.Notify.Discord.Channel == "" {
		errs = append(errs, "notify.discord.channel is required when a bot token is set")
	}
	if c.Notify.SMTP.Host != "" && c.Notify.SMTP.From == "" {
		errs = append(errs, "notify.smtp.from is required when a host is set")
	}
	if c.Notify.Async && c.Redis.Addr == "" {
		errs = append(errs, "notify.async requires redis.addr")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Location returns the canonical timezone used for daily rate windows.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
