package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/makt28/tgwatch/internal/config"
	"github.com/makt28/tgwatch/internal/monitor"
	"github.com/makt28/tgwatch/internal/notify"
	"github.com/makt28/tgwatch/internal/storage"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) (cfgPath, statePath string) {
	t.Helper()
	dir := t.TempDir()
	statePath = filepath.Join(dir, "state.json")
	cfgPath = filepath.Join(dir, "config.yaml")
	body = strings.ReplaceAll(body, "STATE_PATH", statePath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath, statePath
}

func baseArgs(cfgPath string) []string {
	return []string{"--config", cfgPath, "--env-file", filepath.Join(filepath.Dir(cfgPath), "missing.env")}
}

const fileStoreConfig = `
system:
  log_level: error
store:
  driver: file
  file:
    path: STATE_PATH
status:
  enabled: false
`

func TestHashPassword_Arg(t *testing.T) {
	out, err := run(t, "", "hash-password", "hunter2", "--cost", "4")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))
}

func TestHashPassword_Stdin(t *testing.T) {
	out, err := run(t, "from-stdin\n", "hash-password", "--cost", "4")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("from-stdin")))

	_, err = run(t, "", "hash-password")
	assert.Error(t, err)
}

func TestStatus_NothingStored(t *testing.T) {
	cfgPath, _ := writeConfig(t, fileStoreConfig)

	out, err := run(t, "", append(baseArgs(cfgPath), "status", "--json")...)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Nil(t, body["since"])
	assert.Equal(t, false, body["alerting"])
}

func TestStatus_Stored(t *testing.T) {
	cfgPath, statePath := writeConfig(t, fileStoreConfig)

	fs, err := storage.NewFileStore(statePath, "tg_alert_state")
	require.NoError(t, err)
	data, err := storage.EncodeState(storage.AlertState{Alerting: true, Since: time.UnixMilli(1_700_000_000_000), ConsecutiveFails: 3})
	require.NoError(t, err)
	require.NoError(t, fs.Put(context.Background(), "tg_alert_state", data))

	out, err := run(t, "", append(baseArgs(cfgPath), "status", "--json")...)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, true, body["alerting"])
	assert.Equal(t, "2023-11-14T22:13:20Z", body["since"])
	assert.Equal(t, float64(3), body["consecutiveFails"])

	out, err = run(t, "", append(baseArgs(cfgPath), "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "OUTAGE")
}

func TestInvalidConfigFails(t *testing.T) {
	cfgPath, _ := writeConfig(t, "store:\n  driver: etcd\n")
	_, err := run(t, "", append(baseArgs(cfgPath), "status")...)
	assert.Error(t, err)
}

// TestTick_EndToEnd drives one tick against fake upstreams: the bot API is
// down, so with a threshold of one the tick enters alerting and notifies.
func TestTick_EndToEnd(t *testing.T) {
	var webhookHits atomic.Int32
	var webhookText atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("/bottest-token/getMe", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/check-http", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ok":1,"request_id":"r1","nodes":{"n1":["de"]}}`))
	})
	mux.HandleFunc("/check-result-extended/r1", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"n1":[[1,0.1]]}`))
	})
	mux.HandleFunc("/web", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		webhookText.Store(payload["text"])
		webhookHits.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfgPath, statePath := writeConfig(t, fmt.Sprintf(`
system:
  log_level: error
decision:
  min_consecutive_failures: 1
probes:
  api:
    base_url: %[1]s
    bot_token: test-token
  check_host:
    base_url: %[1]s
    max_nodes: 1
    fail_nodes: 1
    poll_attempts: 1
  web:
    urls: ["%[1]s/web"]
    match: "127.0.0.1"
notify:
  mattermost:
    webhook_url: %[1]s/hook
  telegram:
    chat_id: ""
store:
  driver: file
  file:
    path: STATE_PATH
status:
  enabled: false
`, srv.URL))

	out, err := run(t, "", append(baseArgs(cfgPath), "tick", "--json")...)
	require.NoError(t, err)

	var doc outcomeJSON
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.True(t, doc.ShouldAlert)
	assert.True(t, doc.Alerting)
	assert.Equal(t, "enter", doc.Transition)
	assert.True(t, doc.Persisted)
	require.Len(t, doc.Signals, 3)

	statuses := map[string]string{}
	for _, n := range doc.Notifications {
		statuses[n.Channel] = n.Status
	}
	assert.Equal(t, map[string]string{"mattermost": "sent", "telegram": "skipped"}, statuses)
	assert.EqualValues(t, 1, webhookHits.Load())
	assert.Contains(t, webhookText.Load(), "outage detected")

	fs, err := storage.NewFileStore(statePath, "tg_alert_state")
	require.NoError(t, err)
	data, err := fs.Get(context.Background(), "tg_alert_state")
	require.NoError(t, err)
	state, err := storage.DecodeState(data, time.Now())
	require.NoError(t, err)
	assert.True(t, state.Alerting)
	assert.Equal(t, 1, state.ConsecutiveFails)
}

func TestRenderOutcome(t *testing.T) {
	var buf bytes.Buffer
	renderOutcome(&buf, monitor.Outcome{
		ID:      "abc",
		Signals: []monitor.Signal{{Source: "getMe", Problem: true, Detail: "status=502, time=3ms"}},
		Next:    storage.AlertState{Alerting: true, ConsecutiveFails: 2},
		Notifications: []notify.Result{
			{Channel: "telegram", Status: notify.StatusFailed, Err: errors.New("chat not found")},
		},
		Transition: monitor.TransitionEnter,
	})

	out := buf.String()
	assert.Contains(t, out, "getMe")
	assert.Contains(t, out, "ALERTING")
	assert.Contains(t, out, "enter")
	assert.Contains(t, out, "chat not found")
	assert.Contains(t, out, "state not persisted")
}

func TestOpenStore(t *testing.T) {
	s, err := openStore(context.Background(), config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	_, err = openStore(context.Background(), config.StoreConfig{Driver: "etcd"})
	assert.Error(t, err)

	s, err = openStore(context.Background(), config.StoreConfig{
		Driver: "file",
		Key:    "k",
		File:   config.FileStore{Path: filepath.Join(t.TempDir(), "s.json")},
	})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
