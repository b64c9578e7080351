package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint-server/src/services"
	"golang.org/x/time/rate"
)

// limiterEntry holds a rate limiter with last used timestamp
type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// clientRateLimiter manages per-client rate limiters with automatic cleanup
type clientRateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.RWMutex
	limit    rate.Limit
	burst    int
	stopCh   chan struct{}
}

func newClientRateLimiter(limit rate.Limit, burst int) *clientRateLimiter {
	c := &clientRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		stopCh:   make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

func (c *clientRateLimiter) getLimiter(client string) *rate.Limiter {
	c.mu.RLock()
	entry, ok := c.limiters[client]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		entry.lastUsed = time.Now()
		c.mu.Unlock()
		return entry.limiter
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check under write lock
	if entry, ok = c.limiters[client]; ok {
		entry.lastUsed = time.Now()
		return entry.limiter
	}
	limiter := rate.NewLimiter(c.limit, c.burst)
	c.limiters[client] = &limiterEntry{
		limiter:  limiter,
		lastUsed: time.Now(),
	}
	return limiter
}

// cleanupLoop removes stale entries every 5 minutes
func (c *clientRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// cleanup removes entries not used in the last 10 minutes
func (c *clientRateLimiter) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for client, entry := range c.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(c.limiters, client)
		}
	}
}

// Stop terminates the cleanup goroutine
func (c *clientRateLimiter) Stop() {
	close(c.stopCh)
}

// RateLimitConfig defines configuration for the rate limiting middleware
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// NewValidateRateLimitMiddleware enforces per-caller limits on the
// validation endpoint. Callers presenting a key secret are bucketed by
// the secret so one noisy integration cannot starve others behind the
// same NAT; anonymous or malformed requests fall back to the client IP.
func NewValidateRateLimitMiddleware(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 300
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 50
	}

	limit := rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	limiter := newClientRateLimiter(limit, cfg.Burst)

	return func(c *gin.Context) {
		client := c.ClientIP()
		auth := c.GetHeader("Authorization")
		if parts := strings.Split(auth, " "); len(parts) == 2 && parts[0] == "Bearer" &&
			strings.HasPrefix(parts[1], services.SecretPrefix) {
			client = parts[1]
		}

		l := limiter.getLimiter(client)
		if !l.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many validation requests. Please try again later.",
				"retry_after": "60s",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// NewIPRateLimitingMiddleware creates a Gin middleware that enforces per-IP limits
// Useful for authentication endpoints to prevent abuse
func NewIPRateLimitingMiddleware(cfg RateLimitConfig) gin.HandlerFunc {
	// Default values: 3 requests per minute for auth endpoints
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 3
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	limit := rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	limiter := newClientRateLimiter(limit, cfg.Burst)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		l := limiter.getLimiter(ip)
		if !l.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please try again later.",
				"retry_after": "60s",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
