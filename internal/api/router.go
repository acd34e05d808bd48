// Package api assembles the HTTP router: consumer and admin endpoints plus
// health and Prometheus metrics.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aimd54/hero-rewards/internal/api/admin"
	"github.com/aimd54/hero-rewards/internal/api/consumer"
	prommetrics "github.com/aimd54/hero-rewards/internal/metrics"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health() error
}

// HealthFunc adapts a function to HealthChecker.
type HealthFunc func() error

// Health implements HealthChecker.
func (f HealthFunc) Health() error { return f() }

// RouterConfig holds everything the router mounts.
type RouterConfig struct {
	Consumer    *consumer.Handler
	Admin       *admin.Handler
	Health      map[string]HealthChecker
	MetricsPath string
	Log         *logger.Logger
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), Instrument(), RequestLogger(cfg.Log))

	router.GET("/health", healthHandler(cfg.Health))
	if cfg.MetricsPath != "" {
		router.GET(cfg.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	v1 := router.Group("/api/v1")
	cfg.Consumer.RegisterRoutes(v1)
	cfg.Admin.RegisterRoutes(v1)

	return router
}

// Instrument records request counts and latency by route template.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		prommetrics.ObserveHTTPRequest(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}

// RequestLogger logs each request at debug level, and client errors at info.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Debug()
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			event = log.Info()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("actor_id", c.GetHeader(admin.HeaderActorID)).
			Msg("HTTP request")
	}
}

func healthHandler(checks map[string]HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check.Health(); err != nil {
				results[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		state := "healthy"
		if code != http.StatusOK {
			state = "unhealthy"
		}
		c.JSON(code, gin.H{
			"status":    state,
			"checks":    results,
			"timestamp": time.Now().UTC(),
		})
	}
}
