package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/charlesng35/opsdash/pkg/errors"
	"github.com/charlesng35/opsdash/pkg/response"
)

const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit throttles requests per client IP with a token bucket refilled at
// requestsPerMinute. Idle clients are forgotten after ten minutes.
func RateLimit(requestsPerMinute, burst int) gin.HandlerFunc {
	if requestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = requestsPerMinute
	}
	every := rate.Every(time.Minute / time.Duration(requestsPerMinute))

	var (
		mu      sync.Mutex
		clients = make(map[string]*clientLimiter)
		sweep   time.Time
	)

	return func(c *gin.Context) {
		now := time.Now()
		key := c.ClientIP()

		mu.Lock()
		if now.Sub(sweep) > limiterIdleTTL {
			for k, v := range clients {
				if now.Sub(v.lastSeen) > limiterIdleTTL {
					delete(clients, k)
				}
			}
			sweep = now
		}
		entry, ok := clients[key]
		if !ok {
			entry = &clientLimiter{limiter: rate.NewLimiter(every, burst)}
			clients[key] = entry
		}
		entry.lastSeen = now
		allowed := entry.limiter.AllowN(now, 1)
		remaining := int(math.Max(0, math.Floor(entry.limiter.TokensAt(now))))
		mu.Unlock()

		c.Header("X-RateLimit-Limit", strconv.Itoa(requestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(time.Minute.Seconds()/float64(requestsPerMinute)))))
			response.Abort(c, errors.ErrRateLimit)
			return
		}
		c.Next()
	}
}
