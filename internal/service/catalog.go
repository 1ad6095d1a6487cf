// Package service implements admin screen semantics on top of the gateway:
// list, mutate, then refetch the full list.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"catalog-admin-go/internal/access"
	"catalog-admin-go/internal/config"
	"catalog-admin-go/internal/gateway"
	"catalog-admin-go/internal/model"
)

// DashboardModule is the permission key guarding the dashboard summary.
const DashboardModule = "dashboard"

var (
	// ErrUnknownModule is returned for module keys missing from the module table.
	ErrUnknownModule = errors.New("unknown module")
	// ErrForbidden is returned when the session's access level is too low.
	ErrForbidden = errors.New("access denied")
	// ErrInvalidMutation is returned for mutations missing required fields.
	ErrInvalidMutation = errors.New("invalid mutation")
)

// CatalogService serves the admin module screens.
type CatalogService struct {
	gateway *gateway.Gateway
	access  *access.Resolver
	cfg     *config.Config
	logger  *slog.Logger
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(gw *gateway.Gateway, r *access.Resolver, cfg *config.Config, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		gateway: gw,
		access:  r,
		cfg:     cfg,
		logger:  logger.With("component", "catalog_service"),
	}
}

// Access returns the caller's level for module.
func (s *CatalogService) Access(ctx context.Context, module string) (access.Level, error) {
	if module != DashboardModule {
		if _, ok := s.cfg.Module(module); !ok {
			return access.NoAccess, fmt.Errorf("%w: %q", ErrUnknownModule, module)
		}
	}
	return s.access.Resolve(ctx, module), nil
}

// Load fetches the list for module. When the fetch fails the returned page
// carries empty items and the error text alongside the error itself.
func (s *CatalogService) Load(ctx context.Context, module string) (*model.Page, error) {
	mod, level, err := s.authorize(ctx, module, access.Level.CanView)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, mod, level)
}

// Mutate applies m and refetches the module list. A failed mutation is an
// error; a failed refetch is reported in the returned page.
func (s *CatalogService) Mutate(ctx context.Context, m model.Mutation) (*model.MutationResult, error) {
	mod, level, err := s.authorize(ctx, m.Module, access.Level.CanEdit)
	if err != nil {
		return nil, err
	}

	method, target, err := mutationTarget(mod, m)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.Send(ctx, target, &gateway.RequestOptions{
		Method: method,
		Header: forwardHeaders(ctx),
		Body:   m.Body,
	})
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", m.Op, m.Module, err)
	}

	s.logger.Info("mutation applied", "module", m.Module, "op", m.Op, "id", m.ID)

	page, listErr := s.fetch(ctx, mod, level)
	if listErr != nil {
		s.logger.Warn("refetch after mutation failed", "module", m.Module, "err", listErr)
	}

	return &model.MutationResult{
		Status: "success",
		Result: resp.Body,
		Page:   page,
	}, nil
}

func (s *CatalogService) authorize(ctx context.Context, module string, allowed func(access.Level) bool) (config.ModuleConfig, access.Level, error) {
	mod, ok := s.cfg.Module(module)
	if !ok {
		return config.ModuleConfig{}, access.NoAccess, fmt.Errorf("%w: %q", ErrUnknownModule, module)
	}
	level := s.access.Resolve(ctx, module)
	if !allowed(level) {
		return mod, level, fmt.Errorf("%w: %s has %s", ErrForbidden, module, level)
	}
	return mod, level, nil
}

func (s *CatalogService) fetch(ctx context.Context, mod config.ModuleConfig, level access.Level) (*model.Page, error) {
	page := &model.Page{Module: mod.Key, Access: level.String(), Items: model.EmptyItems}

	resp, err := s.gateway.Send(ctx, mod.Path, &gateway.RequestOptions{Header: forwardHeaders(ctx)})
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		page.Error = err.Error()
		return page, fmt.Errorf("list %s: %w", mod.Key, err)
	}

	page.Items = resp.Body
	return page, nil
}

func mutationTarget(mod config.ModuleConfig, m model.Mutation) (string, string, error) {
	base := strings.TrimRight(mod.Path, "/")
	if m.Op == model.OpCreate {
		return http.MethodPost, base, nil
	}

	id := strings.TrimSpace(m.ID)
	if id == "" {
		return "", "", fmt.Errorf("%w: %s requires an id", ErrInvalidMutation, m.Op)
	}
	target := base + "/" + url.PathEscape(id)

	switch m.Op {
	case model.OpUpdate:
		return http.MethodPut, target, nil
	case model.OpDelete:
		return http.MethodDelete, target, nil
	default:
		return "", "", fmt.Errorf("%w: unsupported operation %q", ErrInvalidMutation, m.Op)
	}
}

type requestIDKey struct{}

// WithRequestID tags ctx so backend calls carry the inbound request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func forwardHeaders(ctx context.Context) http.Header {
	id, ok := ctx.Value(requestIDKey{}).(string)
	if !ok {
		return nil
	}
	return http.Header{"X-Request-Id": {id}}
}
