package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"catalog-admin-go/internal/gateway"
	"catalog-admin-go/internal/model"
)

var errUnrecognizedList = errors.New("unrecognized list shape")

// Dashboard counts the items of every dashboard module the caller can view.
// Modules are fetched concurrently; a failing module is reported in its
// entry and does not fail the summary.
func (s *CatalogService) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	if level := s.access.Resolve(ctx, DashboardModule); !level.CanView() {
		return nil, fmt.Errorf("%w: %s has %s", ErrForbidden, DashboardModule, level)
	}

	var keys []string
	for _, key := range s.cfg.Dashboard.Modules {
		if s.access.Resolve(ctx, key).CanView() {
			keys = append(keys, key)
		}
	}

	entries := make([]model.DashboardEntry, len(keys))

	var g errgroup.Group
	if s.cfg.Dashboard.Concurrency > 0 {
		g.SetLimit(s.cfg.Dashboard.Concurrency)
	}
	for i, key := range keys {
		g.Go(func() error {
			entries[i] = s.count(ctx, key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.Dashboard{Entries: entries}, nil
}

func (s *CatalogService) count(ctx context.Context, key string) model.DashboardEntry {
	entry := model.DashboardEntry{Module: key}

	mod, ok := s.cfg.Module(key)
	if !ok {
		entry.Error = ErrUnknownModule.Error()
		return entry
	}

	resp, err := s.gateway.Send(ctx, mod.Path, &gateway.RequestOptions{Header: forwardHeaders(ctx)})
	if err == nil {
		err = resp.Err()
	}
	if err == nil {
		entry.Count, err = countItems(resp.Body)
	}
	if err != nil {
		s.logger.Warn("dashboard count failed", "module", key, "err", err)
		entry.Error = err.Error()
	}
	return entry
}

// countItems understands bare arrays, {"total"|"count": n}, and
// {"data"|"items"|"results": [...]}.
func countItems(body json.RawMessage) (int, error) {
	var list []json.RawMessage
	if json.Unmarshal(body, &list) == nil {
		return len(list), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return 0, errUnrecognizedList
	}
	for _, key := range []string{"total", "count"} {
		var n int
		if raw, ok := obj[key]; ok && json.Unmarshal(raw, &n) == nil {
			return n, nil
		}
	}
	for _, key := range []string{"data", "items", "results"} {
		if raw, ok := obj[key]; ok && json.Unmarshal(raw, &list) == nil {
			return len(list), nil
		}
	}
	return 0, errUnrecognizedList
}
