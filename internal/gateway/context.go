package gateway

import (
	"context"
	"strings"
)

type pageOriginKey struct{}

// WithPageOrigin marks ctx as belonging to an interactive client whose page
// is served from origin. Root-relative targets resolve against it when no
// API base URL is configured.
func WithPageOrigin(ctx context.Context, origin string) context.Context {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		return ctx
	}
	return context.WithValue(ctx, pageOriginKey{}, origin)
}

// PageOrigin returns the origin stored by WithPageOrigin.
func PageOrigin(ctx context.Context) (string, bool) {
	origin, ok := ctx.Value(pageOriginKey{}).(string)
	return origin, ok
}
