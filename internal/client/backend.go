// Package client provides the HTTP transport for the catalog backend API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"time"

	"catalog-admin-go/internal/config"
	"catalog-admin-go/internal/gateway"
	"catalog-admin-go/internal/metrics"
)

// BackendClient sends resolved gateway requests to the backend.
type BackendClient struct {
	// withCookies carries the backend session cookies; anonymous shares the
	// connection pool but never attaches them.
	withCookies *http.Client
	anonymous   *http.Client
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewBackendClient creates a BackendClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.API.IdleConnections,
		MaxIdleConnsPerHost: cfg.API.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	timeout := time.Duration(cfg.API.TimeoutSeconds) * time.Second

	// cookiejar.New only fails on a bad PublicSuffixList, and none is given.
	jar, _ := cookiejar.New(nil)

	return &BackendClient{
		withCookies: &http.Client{Transport: transport, Timeout: timeout, Jar: jar},
		anonymous:   &http.Client{Transport: transport, Timeout: timeout},
		logger:      logger.With("component", "backend_client"),
		metrics:     m,
	}
}

// Do executes out against the backend and returns the raw response.
// The caller is responsible for closing the response body.
func (c *BackendClient) Do(ctx context.Context, out *gateway.Outbound) (*http.Response, error) {
	body, contentType, err := encodeBody(out)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header = out.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if out.Cache == gateway.CacheNoStore && req.Header.Get("Cache-Control") == "" {
		req.Header.Set("Cache-Control", "no-store")
		req.Header.Set("Pragma", "no-cache")
	}

	hc := c.withCookies
	if out.Credentials == gateway.CredentialsOmit {
		hc = c.anonymous
	}

	c.logger.Debug("backend request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := hc.Do(req) //nolint:bodyclose // body ownership transfers to caller
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("backend request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return resp, nil
}

// encodeBody returns the request body and, for multipart payloads, the
// Content-Type carrying the generated boundary.
func encodeBody(out *gateway.Outbound) (io.Reader, string, error) {
	if out.Multipart != nil {
		return encodeMultipart(out.Multipart)
	}
	if out.Body == nil {
		return http.NoBody, "", nil
	}
	return bytes.NewReader(out.Body), "", nil
}

func encodeMultipart(mp *gateway.Multipart) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(mp.Fields))
	for k := range mp.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range mp.Fields[k] {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("write multipart field %q: %w", k, err)
			}
		}
	}

	for _, f := range mp.Files {
		part, err := createFilePart(w, f)
		if err != nil {
			return nil, "", fmt.Errorf("create multipart file %q: %w", f.Field, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write multipart file %q: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func createFilePart(w *multipart.Writer, f gateway.File) (io.Writer, error) {
	if f.ContentType == "" {
		return w.CreateFormFile(f.Field, f.Name)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", f.ContentType)
	return w.CreatePart(h)
}
