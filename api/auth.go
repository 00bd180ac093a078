package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const ownerKey = "owner"

var errNoOwner = errors.New("missing credentials")

// owner resolves the calling owner and stores it on the context.
func (s *Server) owner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := s.resolveOwner(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", err.Error()))
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

func (s *Server) resolveOwner(r *http.Request) (string, error) {
	if s.opts.JWTSecret == "" {
		if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
			return id, nil
		}
		return "", errNoOwner
	}

	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		// Browsers cannot set headers on websocket upgrades.
		raw = r.URL.Query().Get("access_token")
	}
	if raw == "" {
		return "", errNoOwner
	}
	return verifyToken(raw, []byte(s.opts.JWTSecret))
}

// verifyToken checks an HS256 token and returns its subject.
func verifyToken(raw string, secret []byte) (string, error) {
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid token: no subject")
	}
	return sub, nil
}

func ownerOf(c *gin.Context) string { return c.GetString(ownerKey) }

// limiters holds one token bucket per owner.
type limiters struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

func newLimiters(perSecond float64, burst int) *limiters {
	if burst <= 0 {
		burst = 1
	}
	return &limiters{rps: rate.Limit(perSecond), burst: burst, m: make(map[string]*rate.Limiter)}
}

func (l *limiters) allow(owner string) bool {
	if l.rps <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.m[owner]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.m[owner] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limits.allow(ownerOf(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody("RATE_LIMITED", "too many requests"))
			return
		}
		c.Next()
	}
}
