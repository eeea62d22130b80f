package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/makt28/tgwatch/internal/config"
	"github.com/makt28/tgwatch/internal/storage"
)

type fakeStates struct {
	snap storage.Snapshot
	err  error
}

func (f fakeStates) Load(context.Context, time.Time) (storage.Snapshot, error) {
	return f.snap, f.err
}

func newTestRouter(t *testing.T, states StateLoader, auth config.AuthConfig) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "tgwatch_test_total", Help: "test"}))
	return NewRouter(Options{
		States:   states,
		Gatherer: reg,
		Auth:     auth,
		Version:  "1.2.3",
		Schedule: "@every 1m",
	}, nil)
}

func get(t *testing.T, h http.Handler, path string, setup func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if setup != nil {
		setup(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus_Stored(t *testing.T) {
	since := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	states := fakeStates{snap: storage.Snapshot{
		State: storage.AlertState{Alerting: true, Since: since, ConsecutiveFails: 4},
		Found: true,
	}}

	rec := get(t, newTestRouter(t, states, config.AuthConfig{}), "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["alerting"])
	assert.Equal(t, "2024-05-01T10:00:00Z", body["since"])
	assert.Equal(t, float64(4), body["consecutiveFails"])
	assert.NotEmpty(t, body["checkedAt"])
}

func TestStatus_NothingStored(t *testing.T) {
	states := fakeStates{snap: storage.Snapshot{State: storage.DefaultState(time.Now())}}

	rec := get(t, newTestRouter(t, states, config.AuthConfig{}), "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"since":null`)
	assert.Contains(t, rec.Body.String(), `"alerting":false`)
}

func TestStatus_StoreUnavailable(t *testing.T) {
	states := fakeStates{err: errors.New("dial tcp: refused")}

	rec := get(t, newTestRouter(t, states, config.AuthConfig{}), "/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "state store unavailable")
	assert.NotContains(t, rec.Body.String(), "refused")
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestRouter(t, fakeStates{}, config.AuthConfig{}), "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "@every 1m", body["schedule"])
	assert.Contains(t, body, "uptime_seconds")
}

func TestMetrics(t *testing.T) {
	rec := get(t, newTestRouter(t, fakeStates{}, config.AuthConfig{}), "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tgwatch_test_total 0")
}

func testAuth(t *testing.T) config.AuthConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return config.AuthConfig{
		Username:         "ops",
		PasswordHash:     string(hash),
		MaxLoginAttempts: 2,
		LockoutDuration:  60,
	}
}

func TestBasicAuth(t *testing.T) {
	h := newTestRouter(t, fakeStates{}, testAuth(t))

	rec := get(t, h, "/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Basic"))

	rec = get(t, h, "/metrics", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, h, "/status", func(r *http.Request) { r.SetBasicAuth("ops", "s3cret") })
	assert.Equal(t, http.StatusOK, rec.Code)

	// healthz stays public
	rec = get(t, h, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuth_Lockout(t *testing.T) {
	h := newTestRouter(t, fakeStates{}, testAuth(t))
	wrong := func(r *http.Request) { r.SetBasicAuth("ops", "nope") }
	right := func(r *http.Request) { r.SetBasicAuth("ops", "s3cret") }

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/status", wrong).Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/status", wrong).Code)

	// Locked out even with the right password.
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/status", right).Code)

	// Another client is unaffected.
	other := func(r *http.Request) {
		r.RemoteAddr = "10.9.8.7:4444"
		right(r)
	}
	assert.Equal(t, http.StatusOK, get(t, h, "/status", other).Code)
}

func TestLoginRateLimiter_Expiry(t *testing.T) {
	rl := NewLoginRateLimiter(1, 0, nil)
	rl.RecordFailure("1.2.3.4")
	assert.False(t, rl.IsLocked("1.2.3.4"), "zero lockout expires immediately")

	rl = NewLoginRateLimiter(2, 60, nil)
	rl.RecordFailure("1.2.3.4")
	assert.False(t, rl.IsLocked("1.2.3.4"))
	rl.RecordFailure("1.2.3.4")
	assert.True(t, rl.IsLocked("1.2.3.4"))
	rl.ClearIP("1.2.3.4")
	assert.False(t, rl.IsLocked("1.2.3.4"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(r))

	r.RemoteAddr = "garbage"
	assert.Equal(t, "garbage", clientIP(r))
}
