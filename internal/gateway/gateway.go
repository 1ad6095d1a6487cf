// Package gateway is the single chokepoint for backend API calls. It resolves
// targets against the API origin, attaches credentials, busts caches on GET,
// and normalizes whatever the backend returns into JSON or an error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"catalog-admin-go/internal/config"
	"catalog-admin-go/internal/metrics"
)

// CacheBustParam is the query parameter appended to every GET.
const CacheBustParam = "_ts"

// CacheMode mirrors the transport cache policy of a request.
type CacheMode string

const (
	CacheDefault CacheMode = "default"
	CacheNoStore CacheMode = "no-store"
)

// CredentialsMode controls whether stored cookies travel with a request.
type CredentialsMode string

const (
	CredentialsInclude CredentialsMode = "include"
	CredentialsOmit    CredentialsMode = "omit"
)

// RequestOptions are the caller-supplied parts of a request. Body may be nil,
// []byte, string, json.RawMessage, io.Reader (sent raw), *Multipart, or any
// other value (JSON-encoded).
type RequestOptions struct {
	Method      string
	Header      http.Header
	Body        any
	Cache       CacheMode
	Credentials CredentialsMode
}

// Outbound is a fully resolved request handed to the Transport.
type Outbound struct {
	Method      string
	URL         string
	Header      http.Header
	Body        []byte
	Multipart   *Multipart
	Cache       CacheMode
	Credentials CredentialsMode
}

// Transport issues resolved requests. The caller closes the response body.
type Transport interface {
	Do(ctx context.Context, out *Outbound) (*http.Response, error)
}

// Gateway sends requests to the backend API.
type Gateway struct {
	transport      Transport
	baseURL        string
	fallbackOrigin string
	auth           config.AuthConfig
	logger         *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
}

// New creates a Gateway. The metrics parameter is optional.
func New(cfg *config.Config, t Transport, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		transport:      t,
		baseURL:        trimOrigin(cfg.API.BaseURL),
		fallbackOrigin: trimOrigin(cfg.API.FallbackOrigin),
		auth:           cfg.Auth,
		logger:         logger.With("component", "gateway"),
		metrics:        m,
		now:            time.Now,
	}
}

func trimOrigin(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

// Send issues a request for target, which is an absolute URL or a path on the
// API origin. Any 2xx outcome yields a Response whose Body is JSON. HTML
// responses, non-2xx responses without a JSON body, and transport failures
// are returned as errors.
func (g *Gateway) Send(ctx context.Context, target string, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}

	resolved := g.resolveURL(ctx, target)
	if method == http.MethodGet {
		resolved = bustCache(resolved, g.now())
	}

	body, multipart, err := encodeBody(opts.Body)
	if err != nil {
		g.fail(resolved, err)
		return nil, err
	}

	out := &Outbound{
		Cache:       CacheNoStore,
		Credentials: CredentialsInclude,
	}
	if opts.Cache != "" {
		out.Cache = opts.Cache
	}
	if opts.Credentials != "" {
		out.Credentials = opts.Credentials
	}
	out.Body = body
	out.Multipart = multipart
	out.Method = method
	out.URL = resolved
	out.Header = g.assembleHeaders(resolved, opts.Header, multipart != nil)

	g.logger.Debug("api request", "method", method, "url", resolved)

	resp, err := g.transport.Do(ctx, out)
	if err != nil {
		g.record("transport_error")
		g.fail(resolved, err)
		return nil, err
	}

	normalized, rule, err := normalize(resp, resolved)
	g.record(rule)
	if err != nil {
		g.fail(resolved, err)
		return nil, err
	}

	if normalized.Discarded != "" {
		g.logger.Warn("discarded non-JSON success body",
			"url", resolved,
			"status", resp.StatusCode,
			"text", truncate(normalized.Discarded, 200),
		)
	}
	return normalized, nil
}

// resolveURL turns target into an absolute URL.
func (g *Gateway) resolveURL(ctx context.Context, target string) string {
	if isAbsolute(target) {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return g.base(ctx) + target
}

// base picks the configured API origin, then the caller's page origin, then
// the fallback used outside interactive clients.
func (g *Gateway) base(ctx context.Context) string {
	if g.baseURL != "" {
		return g.baseURL
	}
	if origin, ok := PageOrigin(ctx); ok {
		return origin
	}
	return g.fallbackOrigin
}

func isAbsolute(target string) bool {
	lower := strings.ToLower(target)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// bustCache appends the timestamp parameter without re-encoding the rest of
// the URL.
func bustCache(rawURL string, now time.Time) string {
	fragment := ""
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		rawURL, fragment = rawURL[:i], rawURL[i:]
	}

	param := CacheBustParam + "=" + strconv.FormatInt(now.UnixMilli(), 10)
	switch {
	case !strings.Contains(rawURL, "?"):
		rawURL += "?" + param
	case strings.HasSuffix(rawURL, "?") || strings.HasSuffix(rawURL, "&"):
		rawURL += param
	default:
		rawURL += "&" + param
	}
	return rawURL + fragment
}

// assembleHeaders builds the outbound header set for resolved.
func (g *Gateway) assembleHeaders(resolved string, caller http.Header, multipart bool) http.Header {
	// Add canonicalizes keys, so map literals like {"content-type": ...} are
	// seen by the Get/Set/Del calls below.
	h := make(http.Header, len(caller))
	for k, vs := range caller {
		for _, v := range vs {
			h.Add(k, v)
		}
	}

	if h.Get("Accept") == "" {
		h.Set("Accept", "application/json")
	}
	if !multipart && h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}

	switch {
	case g.isRoleRoute(resolved) && g.auth.RoleHeader != "" && g.auth.RoleKey != "":
		h.Set(g.auth.RoleHeader, g.auth.RoleKey)
	case g.auth.APIKeyHeader != "" && g.auth.APIKey != "":
		h.Set(g.auth.APIKeyHeader, g.auth.APIKey)
	}

	if multipart {
		h.Del("Content-Type")
	}
	return h
}

func (g *Gateway) isRoleRoute(resolved string) bool {
	if g.auth.RoleSegment == "" {
		return false
	}
	path := resolved
	if u, err := url.Parse(resolved); err == nil {
		path = u.Path
	}
	return strings.Contains(path, g.auth.RoleSegment)
}

func encodeBody(body any) ([]byte, *Multipart, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil, nil
	case []byte:
		return v, nil, nil
	case json.RawMessage:
		return v, nil, nil
	case string:
		return []byte(v), nil, nil
	case *Multipart:
		return nil, v, nil
	case Multipart:
		return nil, &v, nil
	case *bytes.Buffer:
		return v.Bytes(), nil, nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, nil, fmt.Errorf("read request body: %w", err)
		}
		return data, nil, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request body: %w", err)
		}
		return data, nil, nil
	}
}

func (g *Gateway) fail(resolved string, err error) {
	g.logger.Error("api request failed", "url", resolved, "err", err)
}

func (g *Gateway) record(rule string) {
	if g.metrics != nil {
		g.metrics.GatewayOutcomes.WithLabelValues(rule).Inc()
	}
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
