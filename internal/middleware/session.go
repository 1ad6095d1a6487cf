package middleware

import (
	"net/url"

	"github.com/labstack/echo/v4"

	"catalog-admin-go/internal/access"
	"catalog-admin-go/internal/config"
	"catalog-admin-go/internal/gateway"
	"catalog-admin-go/internal/service"
)

// Session returns an Echo middleware that attaches the admin session, the
// configured page origin and the request id to the request context. The
// page origin comes from api.page_origin only, never from the Origin or Host
// headers.
//
// The session comes from the identity and permissions cookies set by the
// admin login screen. A request carrying neither cookie has no interactive
// session and resolves to no access everywhere.
func Session(cfg *config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()

			identity, hasIdentity := cookieValue(c, cfg.Access.IdentityCookie)
			perms, hasPerms := cookieValue(c, cfg.Access.PermissionsCookie)
			if hasIdentity || hasPerms {
				ctx = access.WithSession(ctx, access.Session{
					Identity:    identity,
					Permissions: []byte(perms),
				})
			}

			ctx = gateway.WithPageOrigin(ctx, cfg.API.PageOrigin)

			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = req.Header.Get(echo.HeaderXRequestID)
			}
			ctx = service.WithRequestID(ctx, id)

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

func cookieValue(c echo.Context, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	cookie, err := c.Cookie(name)
	if err != nil {
		return "", false
	}
	if v, err := url.QueryUnescape(cookie.Value); err == nil {
		return v, true
	}
	return cookie.Value, true
}
