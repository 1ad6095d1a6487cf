// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/catalog-admin/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host       string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	BaseURL    string `kong:"name='api-base-url',help='Backend API origin (overrides config).',env='API_BASE_URL'"`
	APIKey     string `kong:"help='Backend API key value (overrides config).',env='API_KEY'"`
	SuperAdmin string `kong:"help='Super-admin identity (overrides config).',env='SUPER_ADMIN'"`
	LogLevel   string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	API       APIConfig       `toml:"api"`
	Auth      AuthConfig      `toml:"auth"`
	Access    AccessConfig    `toml:"access"`
	Modules   []ModuleConfig  `toml:"modules"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8080); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// APIConfig holds backend connection settings.
type APIConfig struct {
	// BaseURL is the backend origin. When empty, requests served to the admin
	// pages resolve against PageOrigin and everything else against
	// FallbackOrigin.
	BaseURL string `toml:"base_url"`
	// PageOrigin is the origin the admin pages are served from. It is taken
	// from configuration only, never from request headers.
	PageOrigin      string `toml:"page_origin"`
	FallbackOrigin  string `toml:"fallback_origin"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
}

// AuthConfig holds the credentials attached to outbound backend requests.
type AuthConfig struct {
	APIKeyHeader string `toml:"api_key_header"`
	APIKey       string `toml:"api_key"`
	RoleHeader   string `toml:"role_header"`
	RoleKey      string `toml:"role_key"`
	RoleSegment  string `toml:"role_segment"`
}

// AccessConfig holds access policy settings.
type AccessConfig struct {
	SuperAdmin        string `toml:"super_admin"`
	IdentityCookie    string `toml:"identity_cookie"`
	PermissionsCookie string `toml:"permissions_cookie"`
}

// ModuleConfig maps an admin module key to its backend collection path.
type ModuleConfig struct {
	Key  string `toml:"key"`
	Path string `toml:"path"`
}

// DashboardConfig controls the dashboard summary fan-out.
type DashboardConfig struct {
	Modules     []string `toml:"modules"`
	Concurrency int      `toml:"concurrency"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// DefaultModules is the module table used when the config file declares none.
var DefaultModules = []ModuleConfig{
	{Key: "blog", Path: "/blogs"},
	{Key: "category", Path: "/categories"},
	{Key: "country", Path: "/countries"},
	{Key: "state", Path: "/states"},
	{Key: "design", Path: "/designs"},
	{Key: "order", Path: "/orders"},
	{Key: "seo", Path: "/seo"},
	{Key: "filter", Path: "/filters"},
	{Key: "product", Path: "/products"},
	{Key: "roles", Path: "/role-management/roles"},
}

// reservedRoutes are served by the admin service itself.
var reservedRoutes = []string{"/admin", "/healthz"}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/catalog-admin/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.BaseURL != "" {
		c.API.BaseURL = cli.BaseURL
	}
	if cli.APIKey != "" {
		c.Auth.APIKey = cli.APIKey
	}
	if cli.SuperAdmin != "" {
		c.Access.SuperAdmin = cli.SuperAdmin
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Auth.APIKey == "YOUR_API_KEY_HERE" || c.Auth.RoleKey == "YOUR_API_KEY_HERE" {
		return fmt.Errorf("auth contains placeholder key value; set a real key or leave it empty")
	}

	for name, raw := range map[string]string{
		"api.base_url":        c.API.BaseURL,
		"api.page_origin":     c.API.PageOrigin,
		"api.fallback_origin": c.API.FallbackOrigin,
	} {
		if err := validateOrigin(name, raw); err != nil {
			return err
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.API.TimeoutSeconds < 0 {
		return fmt.Errorf("api.timeout_seconds must be non-negative; got %d", c.API.TimeoutSeconds)
	}
	if c.API.IdleConnections < 0 {
		return fmt.Errorf("api.idle_connections must be non-negative; got %d", c.API.IdleConnections)
	}
	if c.Dashboard.Concurrency < 0 {
		return fmt.Errorf("dashboard.concurrency must be non-negative; got %d", c.Dashboard.Concurrency)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Module table.
	seen := make(map[string]bool, len(c.Modules))
	for i, m := range c.Modules {
		if m.Key == "" {
			return fmt.Errorf("modules[%d].key is required", i)
		}
		if m.Key == "access" || m.Key == "dashboard" || m.Key == "status" {
			return fmt.Errorf("modules[%d].key %q is reserved", i, m.Key)
		}
		if seen[m.Key] {
			return fmt.Errorf("modules[%d].key %q is duplicated", i, m.Key)
		}
		seen[m.Key] = true
		if m.Path == "" {
			return fmt.Errorf("modules[%d].path is required", i)
		}
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// validateOrigin accepts an empty value or an absolute http(s) URL.
func validateOrigin(name, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https; got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host; got %q", name, raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.API.FallbackOrigin == "" {
		c.API.FallbackOrigin = "http://localhost:8000"
	}
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = 60
	}
	if c.API.IdleConnections == 0 {
		c.API.IdleConnections = 100
	}
	if c.Auth.RoleSegment == "" {
		c.Auth.RoleSegment = "/role-management"
	}
	if c.Access.IdentityCookie == "" {
		c.Access.IdentityCookie = "admin_email"
	}
	if c.Access.PermissionsCookie == "" {
		c.Access.PermissionsCookie = "admin_permissions"
	}
	if len(c.Modules) == 0 {
		c.Modules = append([]ModuleConfig(nil), DefaultModules...)
	}
	if len(c.Dashboard.Modules) == 0 {
		c.Dashboard.Modules = []string{"order", "product", "blog", "category"}
	}
	if c.Dashboard.Concurrency == 0 {
		c.Dashboard.Concurrency = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Module returns the module entry for key.
func (c *Config) Module(key string) (ModuleConfig, bool) {
	for _, m := range c.Modules {
		if m.Key == key {
			return m, true
		}
	}
	return ModuleConfig{}, false
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
