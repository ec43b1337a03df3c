package main

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
)

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func (s *server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level.Debug(s.logger).Log(
			"msg", "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"took", time.Since(start),
		)
	}
}

// rateLimit enforces RATE_LIMIT_RPM per client IP.
func (s *server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || s.limiter.Limit() <= 0 {
			c.Next()
			return
		}
		allowed, remaining := s.limiter.Allow(c.Request.Context(), c.ClientIP())
		c.Header("X-RateLimit-Limit", strconv.Itoa(s.limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			abortDetail(c, http.StatusTooManyRequests, "Rate limit exceeded. Try again later.")
			return
		}
		c.Next()
	}
}

// uploadSizeGuard rejects oversized uploads from Content-Length before reading
// the body, and caps the body for requests that lie about it.
func (s *server) uploadSizeGuard() gin.HandlerFunc {
	limit := s.cfg.MaxUploadBytes + multipartSlack
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			abortDetail(c, http.StatusRequestEntityTooLarge, s.tooLargeDetail())
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// adminAuth provides a basic bearer token authentication for admin routes
func (s *server) adminAuth() gin.HandlerFunc {
	want := []byte("Bearer " + s.cfg.AdminToken)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			abortDetail(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		c.Next()
	}
}
