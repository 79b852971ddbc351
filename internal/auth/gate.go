// Package auth implements the optional password gate in front of the console.
package auth

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/zetxtech/websole/internal/model"
)

// CookieName is the session cookie set by a successful login.
const CookieName = "websole_session"

// QueryParam carries the password for scripted clients.
const QueryParam = "p"

const (
	// maxFailures wrong passwords within failureWindow lock every password
	// check until the oldest of them is failureWindow old.
	maxFailures   = 5
	failureWindow = time.Hour

	// DefaultTokenTTL is how long a login stays valid.
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// Gate checks passwords and tracks login tokens. A gate with an empty
// password lets every request through.
type Gate struct {
	password string
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger
	warn     rate.Sometimes

	mu       sync.Mutex
	tokens   map[string]time.Time
	failures []time.Time // most recent last, at most maxFailures
}

// NewGate creates a gate for password.
func NewGate(password string) *Gate {
	return &Gate{
		password: password,
		ttl:      DefaultTokenTTL,
		now:      time.Now,
		log:      log.With().Str("module", "auth").Logger(),
		warn:     rate.Sometimes{Interval: time.Minute},
		tokens:   make(map[string]time.Time),
	}
}

// Enabled reports whether a password is configured.
func (g *Gate) Enabled() bool {
	return g.password != ""
}

// checkPassword compares input with the configured password. It always
// fails when no password is configured.
func (g *Gate) checkPassword(input string) bool {
	if !g.Enabled() {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(input), []byte(g.password)) == 1
}

// Verify checks password against the failure lockout. Every place that
// accepts a password goes through it, so all wrong guesses count toward
// the same limit. While locked, even the right password is refused with
// ErrTooManyAttempts.
func (g *Gate) Verify(password string) error {
	if !g.Enabled() {
		return model.ErrUnauthorized
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.lockedLocked(now) {
		return model.ErrTooManyAttempts
	}
	if !g.checkPassword(password) {
		g.failures = append(g.failures, now)
		if len(g.failures) > maxFailures {
			g.failures = g.failures[len(g.failures)-maxFailures:]
		}
		g.warn.Do(func() {
			g.log.Warn().Int("recent_failures", len(g.failures)).Msg("wrong password")
		})
		return model.ErrUnauthorized
	}
	return nil
}

// lockedLocked reports whether the last maxFailures failures all fall
// within failureWindow of now. g.mu must be held.
func (g *Gate) lockedLocked(now time.Time) bool {
	return len(g.failures) == maxFailures && now.Sub(g.failures[0]) < failureWindow
}

// Login verifies password and returns a new session token.
func (g *Gate) Login(password string) (string, error) {
	if !g.Enabled() {
		return g.issue(), nil
	}
	if err := g.Verify(password); err != nil {
		return "", err
	}
	return g.issue(), nil
}

func (g *Gate) issue() string {
	token := uuid.New().String()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens[token] = g.now().Add(g.ttl)
	return token
}

// Logout forgets token.
func (g *Gate) Logout(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tokens, token)
}

// ValidToken reports whether token came from a login and has not expired.
func (g *Gate) ValidToken(token string) bool {
	if token == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	expires, ok := g.tokens[token]
	if !ok {
		return false
	}
	if g.now().After(expires) {
		delete(g.tokens, token)
		return false
	}
	return true
}

// Authorized reports whether the request carries a valid session cookie or
// the password in the query string.
func (g *Gate) Authorized(r *http.Request) bool {
	if !g.Enabled() {
		return true
	}
	if c, err := r.Cookie(CookieName); err == nil && g.ValidToken(c.Value) {
		return true
	}
	if p := r.URL.Query().Get(QueryParam); p != "" && g.Verify(p) == nil {
		return true
	}
	return false
}

// Middleware rejects unauthorized requests with 401.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.Authorized(c.Request) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "login required",
			},
		})
	}
}
