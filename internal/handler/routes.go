package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catalog-admin-go/internal/config"
	"catalog-admin-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, catalog *CatalogHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)

	admin := e.Group("/admin")
	admin.GET("/status", health.Status)
	admin.GET("/dashboard", catalog.Dashboard)
	admin.GET("/access/:module", catalog.Access)

	admin.GET("/:module", catalog.List)
	admin.POST("/:module", catalog.Create)
	admin.PUT("/:module/:id", catalog.Update)
	admin.DELETE("/:module/:id", catalog.Delete)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
