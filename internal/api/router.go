// Package api provides the HTTP API the governance engine is reachable
// through: evaluate/record_outcome, registry CRUD, limiter/quota/breaker
// query and reset, and oversight activate/deactivate/approve/reject —
// the "programmatic surface" the engine itself is built around, wrapped
// in gin.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/adriacb/enact/internal/config"
	"github.com/adriacb/enact/internal/telemetry"
)

// RouterDeps holds dependencies for router initialization.
type RouterDeps struct {
	Handlers *Handlers
	// StopRateLimiter is set by NewRouter. Call it during graceful shutdown to stop
	// the rate limiter's background cleanup goroutine.
	StopRateLimiter func()
	// HTTPMetrics, when set, records per-request metrics and tracing for
	// every route below. Left nil when telemetry is disabled.
	HTTPMetrics *telemetry.HTTPMetrics
	Tracer      trace.Tracer
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, deps *RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	// Safe default: do not trust any proxy headers (X-Forwarded-For, etc.)
	// Production should configure trusted proxy CIDRs explicitly.
	r.SetTrustedProxies(nil)
	r.Use(gin.Recovery())
	r.Use(securityHeadersMiddleware())
	r.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20) // 1MB
		c.Next()
	})
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))

	var h *Handlers
	if deps != nil {
		h = deps.Handlers
		if deps.HTTPMetrics != nil && deps.Tracer != nil {
			r.Use(deps.HTTPMetrics.GinMiddleware(deps.Tracer))
		}
	}

	r.GET("/health", healthCheck)
	r.GET("/ready", makeReadinessCheck(h))

	rl := newRateLimiter(100, time.Minute)
	if deps != nil {
		deps.StopRateLimiter = rl.Stop
	}
	v1 := r.Group("/api/v1")
	// Middleware order: Auth → Rate Limiting so that:
	// 1. Unauthenticated requests are rejected before consuming rate limit budget.
	// 2. Rate limits key on bearer identity rather than IP (set after auth validates token).
	v1.Use(bearerTokenMiddleware(cfg.Auth.BearerToken))
	v1.Use(rateLimitMiddleware(rl))
	if h != nil {
		registerRoutes(v1, h)
	}

	return r
}

func registerRoutes(v1 *gin.RouterGroup, h *Handlers) {
	v1.POST("/evaluate", h.Evaluate)
	v1.POST("/outcomes", h.RecordOutcome)

	tools := v1.Group("/tools")
	{
		tools.GET("", h.ListTools)
		tools.POST("", h.RegisterTool)
	}

	limits := v1.Group("/limits")
	{
		limits.GET("/rate/:agent_id/:tool", h.RateLimitStatus)
		limits.POST("/rate/:agent_id/:tool/reset", h.RateLimitReset)
		limits.GET("/quota/:agent_id", h.QuotaStatus)
		limits.POST("/quota/:agent_id/reset", h.QuotaReset)
		limits.GET("/breaker/:tool", h.BreakerStatus)
		limits.POST("/breaker/:tool/reset", h.BreakerReset)
	}

	killSwitch := v1.Group("/kill-switch")
	{
		killSwitch.GET("", h.KillSwitchStatus)
		killSwitch.POST("/activate", h.KillSwitchActivate)
		killSwitch.POST("/deactivate", h.KillSwitchDeactivate)
	}

	approvals := v1.Group("/approvals")
	{
		approvals.GET("/:id", h.GetApproval)
		approvals.POST("/:id/approve", h.ApproveApproval)
		approvals.POST("/:id/reject", h.RejectApproval)
	}
}

// rateLimiter implements a simple in-memory sliding window rate limiter per
// key; rateLimitMiddleware keys on the bearer token's suffix when present
// and on the client IP otherwise.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string][]time.Time
	limit    int
	window   time.Duration
	done     chan struct{}
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Stop terminates the cleanup goroutine.
func (rl *rateLimiter) Stop() {
	close(rl.done)
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	timestamps := rl.visitors[key]
	valid := make([]time.Time, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.visitors[key] = valid
		return false
	}

	rl.visitors[key] = append(valid, now)
	return true
}

func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			cutoff := now.Add(-rl.window)
			for key, timestamps := range rl.visitors {
				valid := make([]time.Time, 0, len(timestamps))
				for _, ts := range timestamps {
					if ts.After(cutoff) {
						valid = append(valid, ts)
					}
				}
				if len(valid) == 0 {
					delete(rl.visitors, key)
				} else {
					rl.visitors[key] = valid
				}
			}
			rl.mu.Unlock()
		}
	}
}

// securityHeadersMiddleware adds security response headers to all responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Next()
	}
}

func rateLimitMiddleware(rl *rateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Key on bearer token identity when present — more accurate for authenticated APIs
		// and allows per-identity rate limits rather than per-IP (which breaks behind NAT).
		key := c.ClientIP()
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token := strings.TrimPrefix(auth, "Bearer ")
			if len(token) >= 8 {
				// Use last 8 chars as key suffix to avoid storing full tokens in memory.
				key = "bearer:" + token[len(token)-8:]
			}
		}

		if !rl.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// Middleware

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		wildcard := false
		for _, o := range allowedOrigins {
			if o == "*" {
				allowed = true
				wildcard = true
				break
			}
			if o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if wildcard {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func bearerTokenMiddleware(token string) gin.HandlerFunc {
	if token == "" {
		log.Warn().Msg("ENACT_BEARER_TOKEN is not configured — all API requests will be rejected")
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		}
	}
	if len(token) < 32 {
		log.Warn().Int("token_len", len(token)).
			Msg("ENACT_BEARER_TOKEN is shorter than 32 chars — consider using a stronger token")
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		provided := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Health endpoints

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func makeReadinessCheck(h *Handlers) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		ready := true

		if h == nil || h.Engine == nil {
			checks["engine"] = "unavailable"
			ready = false
		} else {
			checks["engine"] = "ok"
		}

		if h == nil || h.Registry == nil {
			checks["registry"] = "unavailable"
			ready = false
		} else {
			checks["registry"] = "ok"
		}

		status := http.StatusOK
		statusStr := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			statusStr = "degraded"
		}

		c.JSON(status, gin.H{
			"status":    statusStr,
			"checks":    checks,
			"timestamp": time.Now().UTC(),
		})
	}
}
