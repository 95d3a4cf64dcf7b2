package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	moderation "github.com/phillip/volunteer-hub-go/moderation"
)

// RateLimit rejects requests whose key is over the limiter's budget with 429.
// Requests with an empty key are not counted.
func RateLimit(l *moderation.Limiter, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			c.Next()
			return
		}
		if ok, retry := l.Allow(k); !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, try again later"})
			return
		}
		c.Next()
	}
}

// PerIP limits each client address to limit requests per window. The address
// comes from c.ClientIP, so forwarding headers count only when they were set by
// one of the engine's trusted proxies.
func PerIP(limit int, per time.Duration) gin.HandlerFunc {
	return RateLimit(moderation.NewLimiter(limit, per), func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// ByUser keys on the authenticated user; it must run after AuthMiddleware.
func ByUser(c *gin.Context) string { return c.GetString("user_id") }

// ByUserAndRoute gives every user a separate budget per route.
func ByUserAndRoute(c *gin.Context) string {
	user := ByUser(c)
	if user == "" {
		return ""
	}
	return c.Request.Method + " " + c.FullPath() + ":" + user
}
