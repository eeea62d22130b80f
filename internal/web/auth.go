package web

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/makt28/tgwatch/internal/config"
)

// LoginRateLimiter tracks failed login attempts per IP.
type LoginRateLimiter struct {
	mu              sync.Mutex
	attempts        map[string]*loginAttempt
	maxAttempts     int
	lockoutDuration time.Duration
}

type loginAttempt struct {
	failCount int
	lockedAt  time.Time
}

func NewLoginRateLimiter(maxAttempts int, lockoutSeconds int, stopCh <-chan struct{}) *LoginRateLimiter {
	rl := &LoginRateLimiter{
		attempts:        make(map[string]*loginAttempt),
		maxAttempts:     maxAttempts,
		lockoutDuration: time.Duration(lockoutSeconds) * time.Second,
	}
	if stopCh != nil {
		go rl.cleanup(stopCh)
	}
	return rl
}

// IsLocked returns true if the IP is currently locked out.
func (rl *LoginRateLimiter) IsLocked(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	a, ok := rl.attempts[ip]
	if !ok || a.failCount < rl.maxAttempts {
		return false
	}
	if time.Since(a.lockedAt) < rl.lockoutDuration {
		return true
	}
	// Lockout expired, reset
	delete(rl.attempts, ip)
	return false
}

// RecordFailure increments the failure count for an IP.
func (rl *LoginRateLimiter) RecordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	a, ok := rl.attempts[ip]
	if !ok {
		a = &loginAttempt{}
		rl.attempts[ip] = a
	}
	a.failCount++
	if a.failCount >= rl.maxAttempts {
		a.lockedAt = time.Now()
	}
}

// ClearIP removes the failure record for an IP on successful login.
func (rl *LoginRateLimiter) ClearIP(ip string) {
	rl.mu.Lock()
	delete(rl.attempts, ip)
	rl.mu.Unlock()
}

func (rl *LoginRateLimiter) cleanup(stopCh <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, a := range rl.attempts {
				if a.failCount >= rl.maxAttempts && time.Since(a.lockedAt) >= rl.lockoutDuration {
					delete(rl.attempts, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// BasicAuth protects routes with HTTP basic auth against a bcrypt hash.
// With auth disabled it passes every request through.
func BasicAuth(auth config.AuthConfig, limiter *LoginRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !auth.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if limiter.IsLocked(ip) {
				writeError(w, http.StatusTooManyRequests, "too many failed attempts, try again later")
				return
			}

			username, password, ok := r.BasicAuth()
			if !ok {
				challenge(w)
				return
			}

			userOK := subtle.ConstantTimeCompare([]byte(username), []byte(auth.Username)) == 1
			passErr := bcrypt.CompareHashAndPassword([]byte(auth.PasswordHash), []byte(password))
			if !userOK || passErr != nil {
				limiter.RecordFailure(ip)
				slog.Warn("authentication failed", "ip", ip, "path", r.URL.Path)
				challenge(w)
				return
			}

			limiter.ClearIP(ip)
			next.ServeHTTP(w, r)
		})
	}
}

func challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="tgwatch", charset="UTF-8"`)
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

// clientIP is the peer address without its port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
