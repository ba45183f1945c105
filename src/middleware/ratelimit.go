package middleware

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// RateLimiter throttles order flow per client with a fixed window counter.
// Clients are identified by the X-Owner-Id header when present, falling back
// to the source IP, so one trading participant cannot starve the others.
type RateLimiter struct {
	maxRequests    int
	windowDuration time.Duration
	counters       map[string]int
	mu             sync.Mutex
}

func NewRateLimiter(maxRequests int, windowDuration time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests:    maxRequests,
		windowDuration: windowDuration,
		counters:       make(map[string]int),
	}
}

func (rl *RateLimiter) getClientID(c *fiber.Ctx) string {
	if owner := c.Get("X-Owner-Id"); owner != "" {
		return "owner:" + owner
	}
	ip := c.Get("X-Forwarded-For")
	if ip == "" {
		ip = c.Get("X-Real-IP")
	}
	if ip == "" {
		ip = c.IP()
	}
	return ip
}

func (rl *RateLimiter) getWindowKey(clientID string, now time.Time) string {
	windowNumber := now.UnixNano() / int64(rl.windowDuration)
	return fmt.Sprintf("%s_%d", clientID, windowNumber)
}

func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	key := rl.getWindowKey(clientID, now)

	count, exists := rl.counters[key]

	if !exists {
		// edge case: drop the client's stale windows when a new one opens
		rl.removeOldWindows(clientID, key)
		rl.counters[key] = 1
		return true
	}

	if count >= rl.maxRequests {
		return false
	}

	rl.counters[key] = count + 1
	return true
}

func (rl *RateLimiter) removeOldWindows(clientID, currentKey string) {
	prefix := clientID + "_"
	for key := range rl.counters {
		if key == currentKey {
			continue
		}
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(rl.counters, key)
		}
	}
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := rl.getClientID(c)

		if !rl.Allow(clientID) {
			log.Warn().
				Str("client", clientID).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("max_requests", rl.maxRequests).
				Msg("Rate limit exceeded")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		c.Set("X-RateLimit-Window", rl.windowDuration.String())

		return c.Next()
	}
}

func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(100, time.Second)
}
