package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const CurrentConfigVersion = 1

// Config is the root configuration structure loaded from config.yaml.
type Config struct {
	Version  int            `yaml:"version"`
	System   SystemConfig   `yaml:"system"`
	Decision DecisionConfig `yaml:"decision"`
	Probes   ProbesConfig   `yaml:"probes"`
	Notify   NotifyConfig   `yaml:"notify"`
	Store    StoreConfig    `yaml:"store"`
	Status   StatusConfig   `yaml:"status"`
}

type SystemConfig struct {
	Schedule   string `yaml:"schedule"`
	RunOnStart bool   `yaml:"run_on_start"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
}

// DecisionConfig holds the thresholds that drive the alert state machine.
type DecisionConfig struct {
	MinConsecutiveFailures int `yaml:"min_consecutive_failures"`
	MaxResponseTimeMs      int `yaml:"max_response_time_ms"`
}

// MaxResponseTime returns the latency budget used for pass/fail judgment.
func (d DecisionConfig) MaxResponseTime() time.Duration {
	return time.Duration(d.MaxResponseTimeMs) * time.Millisecond
}

type ProbesConfig struct {
	Timeout   time.Duration   `yaml:"timeout"`
	API       APIProbeConfig  `yaml:"api"`
	CheckHost CheckHostConfig `yaml:"check_host"`
	Web       WebProbeConfig  `yaml:"web"`
}

type APIProbeConfig struct {
	BaseURL  string `yaml:"base_url"`
	BotToken string `yaml:"bot_token"`
}

type CheckHostConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Target       string        `yaml:"target"`
	MaxNodes     int           `yaml:"max_nodes"`
	FailNodes    int           `yaml:"fail_nodes"`
	PollAttempts int           `yaml:"poll_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type WebProbeConfig struct {
	URLs  []string `yaml:"urls"`
	Match string   `yaml:"match"`
}

type NotifyConfig struct {
	ServiceName string           `yaml:"service_name"`
	Timeout     time.Duration    `yaml:"timeout"`
	Mattermost  MattermostConfig `yaml:"mattermost"`
	Telegram    TelegramConfig   `yaml:"telegram"`
}

type MattermostConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Username   string `yaml:"username"`
	IconURL    string `yaml:"icon_url"`
}

type TelegramConfig struct {
	BaseURL  string `yaml:"base_url"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// StoreConfig selects and configures the AlertState backend.
type StoreConfig struct {
	Driver   string        `yaml:"driver"` // file, memory, redis, nats, postgres
	Key      string        `yaml:"key"`
	File     FileStore     `yaml:"file"`
	Redis    RedisStore    `yaml:"redis"`
	NATS     NATSStore     `yaml:"nats"`
	Postgres PostgresStore `yaml:"postgres"`
}

type FileStore struct {
	Path string `yaml:"path"`
}

type RedisStore struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

type NATSStore struct {
	URL    string `yaml:"url"`
	Bucket string `yaml:"bucket"`
}

type PostgresStore struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type StatusConfig struct {
	Enabled     bool       `yaml:"enabled"`
	BindAddress string     `yaml:"bind_address"`
	Auth        AuthConfig `yaml:"auth"`
}

type AuthConfig struct {
	Username         string `yaml:"username"`
	PasswordHash     string `yaml:"password_hash"`
	MaxLoginAttempts int    `yaml:"max_login_attempts"`
	LockoutDuration  int    `yaml:"lockout_duration"`
}

// Enabled reports whether basic auth protects the status endpoints.
func (a AuthConfig) Enabled() bool {
	return a.Username != "" && a.PasswordHash != ""
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Version: CurrentConfigVersion,
		System: SystemConfig{
			Schedule:  "@every 1m",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Decision: DecisionConfig{
			MinConsecutiveFailures: 2,
			MaxResponseTimeMs:      2000,
		},
		Probes: ProbesConfig{
			Timeout: 10 * time.Second,
			API: APIProbeConfig{
				BaseURL: "https://api.telegram.org",
			},
			CheckHost: CheckHostConfig{
				BaseURL:      "https://check-host.net",
				Target:       "https://api.telegram.org",
				MaxNodes:     5,
				FailNodes:    2,
				PollAttempts: 4,
				PollInterval: 1500 * time.Millisecond,
			},
			Web: WebProbeConfig{
				URLs:  []string{"https://web.telegram.org/", "https://telegram.org/"},
				Match: "telegram.org",
			},
		},
		Notify: NotifyConfig{
			ServiceName: "Telegram",
			Timeout:     10 * time.Second,
			Mattermost: MattermostConfig{
				Username: "tg-monitor",
				IconURL:  "https://telegram.org/img/t_logo.png",
			},
			Telegram: TelegramConfig{
				BaseURL: "https://api.telegram.org",
			},
		},
		Store: StoreConfig{
			Driver: "file",
			Key:    "tg_alert_state",
			File:   FileStore{Path: "state.json"},
			NATS:   NATSStore{Bucket: "tgwatch"},
			Postgres: PostgresStore{
				Table: "tgwatch_state",
			},
		},
		Status: StatusConfig{
			Enabled:     true,
			BindAddress: ":8080",
			Auth: AuthConfig{
				MaxLoginAttempts: 5,
				LockoutDuration:  900,
			},
		},
	}
}

// ApplyDefaults fills zero-value fields with defaults. Negative values are
// left for Validate to reject.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Version == 0 {
		c.Version = d.Version
	}
	if c.System.Schedule == "" {
		c.System.Schedule = d.System.Schedule
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = d.System.LogLevel
	}
	if c.System.LogFormat == "" {
		c.System.LogFormat = d.System.LogFormat
	}
	if c.Decision.MinConsecutiveFailures == 0 {
		c.Decision.MinConsecutiveFailures = d.Decision.MinConsecutiveFailures
	}
	if c.Decision.MaxResponseTimeMs == 0 {
		c.Decision.MaxResponseTimeMs = d.Decision.MaxResponseTimeMs
	}
	if c.Probes.Timeout == 0 {
		c.Probes.Timeout = d.Probes.Timeout
	}
	if c.Probes.API.BaseURL == "" {
		c.Probes.API.BaseURL = d.Probes.API.BaseURL
	}

	ch := &c.Probes.CheckHost
	if ch.BaseURL == "" {
		ch.BaseURL = d.Probes.CheckHost.BaseURL
	}
	if ch.Target == "" {
		ch.Target = d.Probes.CheckHost.Target
	}
	if ch.MaxNodes == 0 {
		ch.MaxNodes = d.Probes.CheckHost.MaxNodes
	}
	if ch.FailNodes == 0 {
		ch.FailNodes = d.Probes.CheckHost.FailNodes
	}
	if ch.PollAttempts == 0 {
		ch.PollAttempts = d.Probes.CheckHost.PollAttempts
	}
	if ch.PollInterval == 0 {
		ch.PollInterval = d.Probes.CheckHost.PollInterval
	}

	if c.Probes.Web.URLs == nil {
		c.Probes.Web.URLs = d.Probes.Web.URLs
	}
	if c.Probes.Web.Match == "" {
		c.Probes.Web.Match = d.Probes.Web.Match
	}

	if c.Notify.ServiceName == "" {
		c.Notify.ServiceName = d.Notify.ServiceName
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = d.Notify.Timeout
	}
	if c.Notify.Mattermost.Username == "" {
		c.Notify.Mattermost.Username = d.Notify.Mattermost.Username
	}
	if c.Notify.Mattermost.IconURL == "" {
		c.Notify.Mattermost.IconURL = d.Notify.Mattermost.IconURL
	}
	if c.Notify.Telegram.BaseURL == "" {
		c.Notify.Telegram.BaseURL = d.Notify.Telegram.BaseURL
	}
	// The bot used for getMe doubles as the sender unless configured separately.
	if c.Notify.Telegram.BotToken == "" {
		c.Notify.Telegram.BotToken = c.Probes.API.BotToken
	}

	if c.Store.Driver == "" {
		c.Store.Driver = d.Store.Driver
	}
	if c.Store.Key == "" {
		c.Store.Key = d.Store.Key
	}
	if c.Store.File.Path == "" {
		c.Store.File.Path = d.Store.File.Path
	}
	if c.Store.NATS.Bucket == "" {
		c.Store.NATS.Bucket = d.Store.NATS.Bucket
	}
	if c.Store.Postgres.Table == "" {
		c.Store.Postgres.Table = d.Store.Postgres.Table
	}

	if c.Status.BindAddress == "" {
		c.Status.BindAddress = d.Status.BindAddress
	}
	if c.Status.Auth.MaxLoginAttempts == 0 {
		c.Status.Auth.MaxLoginAttempts = d.Status.Auth.MaxLoginAttempts
	}
	if c.Status.Auth.LockoutDuration == 0 {
		c.Status.Auth.LockoutDuration = d.Status.Auth.LockoutDuration
	}
}

// Validate checks the config for logical errors.
func (c *Config) Validate() error {
	var errs []string

	if _, err := cron.ParseStandard(c.System.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("system.schedule is invalid: %v", err))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.System.LogLevel] {
		errs = append(errs, fmt.Sprintf("system.log_level must be one of: debug, info, warn, error (got %q)", c.System.LogLevel))
	}
	if c.System.LogFormat != "json" && c.System.LogFormat != "text" {
		errs = append(errs, fmt.Sprintf("system.log_format must be json or text (got %q)", c.System.LogFormat))
	}

	if c.Decision.MinConsecutiveFailures < 1 {
		errs = append(errs, "decision.min_consecutive_failures must be >= 1")
	}
	if c.Decision.MaxResponseTimeMs < 1 {
		errs = append(errs, "decision.max_response_time_ms must be >= 1")
	}
	if c.Decision.MaxResponseTime() >= c.Probes.Timeout {
		errs = append(errs, fmt.Sprintf("decision.max_response_time_ms (%d) must be < probes.timeout (%s)",
			c.Decision.MaxResponseTimeMs, c.Probes.Timeout))
	}

	if c.Probes.Timeout <= 0 {
		errs = append(errs, "probes.timeout must be positive")
	}

	ch := c.Probes.CheckHost
	if ch.MaxNodes < 1 {
		errs = append(errs, "probes.check_host.max_nodes must be >= 1")
	}
	if ch.FailNodes < 1 {
		errs = append(errs, "probes.check_host.fail_nodes must be >= 1")
	}
	if ch.PollAttempts < 1 {
		errs = append(errs, "probes.check_host.poll_attempts must be >= 1")
	}
	if ch.PollInterval <= 0 {
		errs = append(errs, "probes.check_host.poll_interval must be positive")
	}
	if ch.FailNodes > ch.MaxNodes {
		errs = append(errs, fmt.Sprintf("probes.check_host.fail_nodes (%d) must be <= max_nodes (%d)", ch.FailNodes, ch.MaxNodes))
	}
	errs = appendURLError(errs, "probes.api.base_url", c.Probes.API.BaseURL)
	errs = appendURLError(errs, "probes.check_host.base_url", ch.BaseURL)
	errs = appendURLError(errs, "probes.check_host.target", ch.Target)
	if len(c.Probes.Web.URLs) == 0 {
		errs = append(errs, "probes.web.urls must list at least one URL")
	}
	for i, u := range c.Probes.Web.URLs {
		errs = appendURLError(errs, fmt.Sprintf("probes.web.urls[%d]", i), u)
		if !strings.Contains(u, c.Probes.Web.Match) {
			errs = append(errs, fmt.Sprintf("probes.web.urls[%d] does not contain probes.web.match %q", i, c.Probes.Web.Match))
		}
	}

	if c.Notify.Mattermost.WebhookURL != "" {
		errs = appendURLError(errs, "notify.mattermost.webhook_url", c.Notify.Mattermost.WebhookURL)
	}
	errs = appendURLError(errs, "notify.telegram.base_url", c.Notify.Telegram.BaseURL)
	if c.Notify.Timeout <= 0 {
		errs = append(errs, "notify.timeout must be positive")
	}

	switch c.Store.Driver {
	case "file", "memory":
	case "redis":
		if c.Store.Redis.URL == "" {
			errs = append(errs, "store.redis.url is required for the redis driver")
		}
	case "nats":
		if c.Store.NATS.URL == "" {
			errs = append(errs, "store.nats.url is required for the nats driver")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, "store.postgres.dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be file, memory, redis, nats, or postgres (got %q)", c.Store.Driver))
	}

	if (c.Status.Auth.Username == "") != (c.Status.Auth.PasswordHash == "") {
		errs = append(errs, "status.auth.username and status.auth.password_hash must be set together")
	}
	if c.Status.Auth.MaxLoginAttempts < 1 {
		errs = append(errs, "status.auth.max_login_attempts must be >= 1")
	}
	if c.Status.Auth.LockoutDuration < 1 {
		errs = append(errs, "status.auth.lockout_duration must be >= 1")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}

func appendURLError(errs []string, field, raw string) []string {
	if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return append(errs, field+" must be a valid http(s) URL")
	}
	return errs
}
