package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values. Credentials are only
// ever injected this way or through ${VAR} references in the YAML.
const (
	EnvMinConsecutiveFailures = "MIN_CONSECUTIVE_FAILURES"
	EnvCheckHostMaxNodes      = "CHECK_HOST_MAX_NODES"
	EnvCheckHostFailNodes     = "CHECK_HOST_FAIL_NODES"
	EnvMaxResponseTimeMs      = "MAX_RESPONSE_TIME_MS"
	EnvBotToken               = "BOT_TOKEN"
	EnvChatID                 = "CHAT_ID"
	EnvMattermostWebhook      = "MATTERMOST_WEBHOOK"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are not an error.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			slog.Warn("failed to load env file", "path", f, "error", err)
			continue
		}
		slog.Debug("loaded env file", "path", f)
	}
}

// Load reads configuration from a YAML file, expanding ${VAR} references,
// then applies environment overrides, defaults and validation.
// If the file does not exist, the default config is used.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("config file not found, using defaults", "path", path)
	case err != nil:
		return Config{}, fmt.Errorf("read config file: %w", err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{EnvMinConsecutiveFailures, &cfg.Decision.MinConsecutiveFailures},
		{EnvCheckHostMaxNodes, &cfg.Probes.CheckHost.MaxNodes},
		{EnvCheckHostFailNodes, &cfg.Probes.CheckHost.FailNodes},
		{EnvMaxResponseTimeMs, &cfg.Decision.MaxResponseTimeMs},
	}
	for _, e := range ints {
		v, ok := lookup(e.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", e.name, err)
		}
		*e.dst = n
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{EnvBotToken, &cfg.Probes.API.BotToken},
		{EnvChatID, &cfg.Notify.Telegram.ChatID},
		{EnvMattermostWebhook, &cfg.Notify.Mattermost.WebhookURL},
	}
	for _, e := range strs {
		if v, ok := lookup(e.name); ok && v != "" {
			*e.dst = v
		}
	}
	return nil
}
