package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// Idle client limiters are evicted once the map grows past this.
	maxTrackedClients = 10000
	clientIdleTimeout = 3 * time.Minute
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
}

// RateLimiter throttles requests per client IP so one aggressive
// caller cannot starve the rest. Each client gets its own token
// bucket; buckets idle past the timeout are dropped when the map
// grows too large.
type RateLimiter struct {
	config  RateLimiterConfig
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		config:  config,
		clients: make(map[string]*clientLimiter),
	}
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cl, ok := rl.clients[client]
	if !ok {
		if len(rl.clients) >= maxTrackedClients {
			rl.evictIdle(now)
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.config.Rate, rl.config.Burst)}
		rl.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.Allow()
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	for key, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > clientIdleTimeout {
			delete(rl.clients, key)
		}
	}
}
