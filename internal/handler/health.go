package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"catalog-admin-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness checks.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the build version, backend origin settings and module table.
func (h *HealthHandler) Status(c echo.Context) error {
	modules := make([]string, 0, len(h.cfg.Modules))
	for _, m := range h.cfg.Modules {
		modules = append(modules, m.Key)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         string(h.version),
		"api_base_url":    h.cfg.API.BaseURL,
		"page_origin":     h.cfg.API.PageOrigin,
		"fallback_origin": h.cfg.API.FallbackOrigin,
		"modules":         modules,
	})
}
