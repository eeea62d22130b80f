package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Decision.MinConsecutiveFailures)
	assert.Equal(t, 2000, cfg.Decision.MaxResponseTimeMs)
	assert.Equal(t, 5, cfg.Probes.CheckHost.MaxNodes)
	assert.Equal(t, 2, cfg.Probes.CheckHost.FailNodes)
	assert.Equal(t, 10*time.Second, cfg.Probes.Timeout)
	assert.Equal(t, "tg_alert_state", cfg.Store.Key)
	assert.True(t, cfg.Status.Enabled)
	assert.Equal(t, []string{"https://web.telegram.org/", "https://telegram.org/"}, cfg.Probes.Web.URLs)
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("TEST_TGWATCH_TOKEN", "123:abc")
	t.Setenv("TEST_TGWATCH_REDIS", "redis://localhost:6379/0")

	path := writeConfig(t, `
probes:
  api:
    bot_token: ${TEST_TGWATCH_TOKEN}
store:
  driver: redis
  redis:
    url: ${TEST_TGWATCH_REDIS}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Probes.API.BotToken)
	assert.Equal(t, "123:abc", cfg.Notify.Telegram.BotToken, "sender token falls back to probe token")
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.Redis.URL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvMinConsecutiveFailures, "3")
	t.Setenv(EnvCheckHostMaxNodes, "7")
	t.Setenv(EnvCheckHostFailNodes, "4")
	t.Setenv(EnvMaxResponseTimeMs, "1500")
	t.Setenv(EnvChatID, "42")
	t.Setenv(EnvMattermostWebhook, "https://mm.example.com/hooks/x")

	path := writeConfig(t, `
decision:
  min_consecutive_failures: 9
probes:
  timeout: 5s
  check_host:
    poll_interval: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Decision.MinConsecutiveFailures)
	assert.Equal(t, 7, cfg.Probes.CheckHost.MaxNodes)
	assert.Equal(t, 4, cfg.Probes.CheckHost.FailNodes)
	assert.Equal(t, 1500*time.Millisecond, cfg.Decision.MaxResponseTime())
	assert.Equal(t, 5*time.Second, cfg.Probes.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Probes.CheckHost.PollInterval)
	assert.Equal(t, "42", cfg.Notify.Telegram.ChatID)
	assert.Equal(t, "https://mm.example.com/hooks/x", cfg.Notify.Mattermost.WebhookURL)
}

func TestLoad_BadEnvInteger(t *testing.T) {
	t.Setenv(EnvCheckHostMaxNodes, "five")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvCheckHostMaxNodes)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "system: [unterminated")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config YAML")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.System.Schedule = "not a schedule"
	cfg.System.LogLevel = "verbose"
	cfg.Probes.CheckHost.FailNodes = 9
	cfg.Store.Driver = "etcd"
	cfg.Status.Auth.Username = "ops"

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "system.schedule")
	assert.Contains(t, msg, "system.log_level")
	assert.Contains(t, msg, "fail_nodes")
	assert.Contains(t, msg, "store.driver")
	assert.Contains(t, msg, "status.auth.username")
}

func TestValidate_BackendRequiresURL(t *testing.T) {
	for _, driver := range []string{"redis", "nats", "postgres"} {
		t.Run(driver, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Store.Driver = driver
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "store."+driver)
		})
	}
}

func TestValidate_WebURLMustMatchPattern(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Probes.Web.URLs = []string{"https://example.com/"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probes.web.match")
}

func TestApplyEnv_SkipsEmptyValues(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{EnvBotToken: "", EnvCheckHostFailNodes: ""}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	require.NoError(t, applyEnv(&cfg, lookup))
	assert.Empty(t, cfg.Probes.API.BotToken)
	assert.Equal(t, 2, cfg.Probes.CheckHost.FailNodes)
}

func TestLoad_NegativeThresholdRejected(t *testing.T) {
	t.Setenv(EnvMinConsecutiveFailures, "-1")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decision.min_consecutive_failures must be >= 1")
}

func TestLoad_NegativeYAMLValuesRejected(t *testing.T) {
	path := writeConfig(t, `
decision:
  max_response_time_ms: -5
probes:
  check_host:
    fail_nodes: -2
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decision.max_response_time_ms must be >= 1")
	assert.Contains(t, err.Error(), "probes.check_host.fail_nodes must be >= 1")
}

func TestLoad_EmptyWebURLsRejected(t *testing.T) {
	path := writeConfig(t, `
probes:
  web:
    urls: []
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probes.web.urls must list at least one URL")
}
