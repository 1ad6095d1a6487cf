package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"catalog-admin-go/internal/config"
	"catalog-admin-go/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request. The module label is limited to configured module
// keys.
func MetricsMiddleware(m *metrics.Metrics, cfg *config.Config) echo.MiddlewareFunc {
	known := func(key string) bool {
		_, ok := cfg.Module(key)
		return ok
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()

			err := next(c)

			// An *echo.HTTPError is written later by the central error
			// handler, so the response status is not final yet.
			statusCode := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					statusCode = he.Code
				}
			}

			module := "none"
			if key := c.Param("module"); key != "" {
				module = metrics.NormalizeModule(key, known)
			}

			status := strconv.Itoa(statusCode)
			method := metrics.NormalizeMethod(c.Request().Method)
			path := metrics.NormalizePath(c.Request().URL.Path)
			duration := time.Since(start).Seconds()

			m.RequestsTotal.WithLabelValues(method, status, path, module).Inc()
			m.RequestDuration.WithLabelValues(method, status, path, module).Observe(duration)

			return err
		}
	}
}
