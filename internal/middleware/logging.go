// Package middleware provides Echo middleware for sessions, logging and security.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"catalog-admin-go/internal/access"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// Admin requests also carry the module and the session identity.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	var sessions access.ContextSessions

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if module := c.Param("module"); module != "" {
				attrs = append(attrs, "module", module)
			}
			if s, ok := sessions.Session(req.Context()); ok && s.Identity != "" {
				attrs = append(attrs, "identity", s.Identity)
			}

			logger.Info("request", attrs...)

			return err
		}
	}
}
