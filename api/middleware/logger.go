package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/internal/metrics"
)

// quietPrefixes are polled by probes and scrapers; successful hits are
// measured but only logged at debug level.
var quietPrefixes = []string{"/health", "/metrics"}

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(c.Request.Method, route, status, elapsed)

		entry := logger.FromContext(c.Request.Context()).WithFields(logrus.Fields{
			"status":     status,
			"method":     c.Request.Method,
			"route":      route,
			"latency_ms": elapsed.Milliseconds(),
			"ip":         c.ClientIP(),
		})
		if q := c.Request.URL.RawQuery; q != "" {
			entry = entry.WithField("query", q)
		}
		if actor := GetActor(c); actor != "" {
			entry = entry.WithField("actor", actor)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		case quiet(c.Request.URL.Path):
			entry.Debug("health check served")
		default:
			entry.Info("request served")
		}
	}
}

func quiet(path string) bool {
	for _, p := range quietPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
