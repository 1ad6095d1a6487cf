package access

import (
	"context"
	"encoding/json"
	"log/slog"

	"catalog-admin-go/internal/config"
	"catalog-admin-go/internal/metrics"
)

// Resolver decides the access level of the calling session for a module.
type Resolver struct {
	sessions   SessionReader
	superAdmin string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	known      func(string) bool
}

// NewResolver creates a Resolver reading sessions from r. The metrics
// parameter is optional.
func NewResolver(cfg *config.Config, r SessionReader, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		sessions:   r,
		superAdmin: cfg.Access.SuperAdmin,
		logger:     logger.With("component", "access"),
		metrics:    m,
		known: func(key string) bool {
			_, ok := cfg.Module(key)
			return ok || key == "dashboard"
		},
	}
}

// Resolve returns the level for module. It never fails: missing sessions,
// missing entries, unknown spellings, and malformed permission JSON all
// resolve to NoAccess.
func (r *Resolver) Resolve(ctx context.Context, module string) Level {
	level := r.resolve(ctx, module)
	if r.metrics != nil {
		r.metrics.AccessDecisions.WithLabelValues(metrics.NormalizeModule(module, r.known), level.String()).Inc()
	}
	return level
}

func (r *Resolver) resolve(ctx context.Context, module string) Level {
	s, ok := r.sessions.Session(ctx)
	if !ok {
		return NoAccess
	}

	if s.Identity != "" && r.superAdmin != "" && s.Identity == r.superAdmin {
		return FullAccess
	}

	raw, ok := decodePermissions(s.Permissions)[module]
	if !ok {
		return NoAccess
	}
	level, known := ParseLevel(raw)
	if !known {
		r.logger.Warn("unrecognized permission value", "module", module, "value", raw)
	}
	return level
}

// decodePermissions returns the string-valued entries of the stored map.
// Malformed input yields an empty map.
func decodePermissions(data []byte) map[string]string {
	perms := make(map[string]string)
	if len(data) == 0 {
		return perms
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return perms
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			perms[k] = s
		}
	}
	return perms
}
