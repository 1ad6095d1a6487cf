package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"catalog-admin-go/internal/access"
	"catalog-admin-go/internal/client"
	"catalog-admin-go/internal/config"
	"catalog-admin-go/internal/gateway"
	"catalog-admin-go/internal/service"
)

// recordedRequest is what the fake backend saw.
type recordedRequest struct {
	Method string
	Path   string
}

type recordingBackend struct {
	mu      sync.Mutex
	last    recordedRequest
	handler http.HandlerFunc
}

func (b *recordingBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.last = recordedRequest{Method: r.Method, Path: r.URL.Path}
	b.mu.Unlock()
	b.handler(w, r)
}

func (b *recordingBackend) Last() recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func jsonReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newTestCatalog(t *testing.T, backend http.Handler) (*CatalogHandler, *config.Config) {
	t.Helper()
	upstream := httptest.NewServer(backend)
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		API:     config.APIConfig{BaseURL: upstream.URL, TimeoutSeconds: 10, IdleConnections: 10},
		Access:  config.AccessConfig{SuperAdmin: "root@shop.example"},
		Modules: append([]config.ModuleConfig(nil), config.DefaultModules...),
		Dashboard: config.DashboardConfig{
			Modules:     []string{"blog", "product"},
			Concurrency: 2,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := gateway.New(cfg, client.NewBackendClient(cfg, logger, nil), logger, nil)
	resolver := access.NewResolver(cfg, access.ContextSessions{}, logger, nil)
	svc := service.NewCatalogService(gw, resolver, cfg, logger)
	return NewCatalogHandler(svc, logger), cfg
}

// newContext builds an echo context carrying a session with perms.
func newContext(method, target string, body io.Reader, perms string, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, body)
	req = req.WithContext(access.WithSession(req.Context(), access.Session{
		Identity:    "ed@shop.example",
		Permissions: []byte(perms),
	}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return c, rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestCatalogHandler_List(t *testing.T) {
	backend := &recordingBackend{handler: jsonReply(http.StatusOK, `[{"id":1,"name":"Shoes"}]`)}
	h, _ := newTestCatalog(t, backend)

	c, rec := newContext(http.MethodGet, "/admin/category", http.NoBody, `{"category":"only view"}`, "module", "category")
	if err := h.List(c); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	if body["access"] != "only view" {
		t.Errorf("access = %v, want %q", body["access"], "only view")
	}
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Errorf("items = %v, want one item", body["items"])
	}
	if got := backend.Last().Path; got != "/categories" {
		t.Errorf("backend path = %q, want %q", got, "/categories")
	}
}

func TestCatalogHandler_ListFailureKeepsEnvelope(t *testing.T) {
	backend := &recordingBackend{handler: func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}}
	h, _ := newTestCatalog(t, backend)

	c, rec := newContext(http.MethodGet, "/admin/blog", http.NoBody, `{"blog":"all access"}`, "module", "blog")
	if err := h.List(c); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	body := decodeBody(t, rec)
	if items, ok := body["items"].([]any); !ok || len(items) != 0 {
		t.Errorf("items = %v, want empty list", body["items"])
	}
	if body["error"] != "maintenance" {
		t.Errorf("error = %v, want %q", body["error"], "maintenance")
	}
}

func TestCatalogHandler_ListRejections(t *testing.T) {
	backend := &recordingBackend{handler: jsonReply(http.StatusOK, `[]`)}
	h, _ := newTestCatalog(t, backend)

	tests := []struct {
		name       string
		module     string
		perms      string
		wantStatus int
	}{
		{"no access", "blog", `{"blog":"no access"}`, http.StatusForbidden},
		{"absent key", "blog", `{"seo":"full"}`, http.StatusForbidden},
		{"unknown module", "widgets", `{"widgets":"full"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodGet, "/admin/"+tt.module, http.NoBody, tt.perms, "module", tt.module)
			if err := h.List(c); err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCatalogHandler_CreateJSON(t *testing.T) {
	backend := &recordingBackend{handler: func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			jsonReply(http.StatusCreated, `{"id":9,"title":"Launch"}`)(w, r)
			return
		}
		jsonReply(http.StatusOK, `[{"id":9,"title":"Launch"}]`)(w, r)
	}}
	h, _ := newTestCatalog(t, backend)

	c, rec := newContext(http.MethodPost, "/admin/blog", strings.NewReader(`{"title":"Launch"}`), `{"blog":"all access"}`, "module", "blog")
	c.Request().Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if err := h.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	body := decodeBody(t, rec)
	if body["status"] != "success" {
		t.Errorf("status field = %v", body["status"])
	}
	page, _ := body["page"].(map[string]any)
	if items, _ := page["items"].([]any); len(items) != 1 {
		t.Errorf("refetched items = %v", page["items"])
	}
}

func TestCatalogHandler_CreateRejectsBadJSON(t *testing.T) {
	backend := &recordingBackend{handler: jsonReply(http.StatusOK, `[]`)}
	h, _ := newTestCatalog(t, backend)

	c, rec := newContext(http.MethodPost, "/admin/blog", strings.NewReader(`{"title":`), `{"blog":"all access"}`, "module", "blog")
	if err := h.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if backend.Last().Method != "" {
		t.Errorf("backend should not be called, got %+v", backend.Last())
	}
}

func TestCatalogHandler_CreateBackendValidation(t *testing.T) {
	backend := &recordingBackend{handler: jsonReply(http.StatusUnprocessableEntity, `{"message":"title is required"}`)}
	h, _ := newTestCatalog(t, backend)

	c, rec := newContext(http.MethodPost, "/admin/blog", strings.NewReader(`{}`), `{"blog":"all access"}`, "module", "blog")
	if err := h.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	if body := decodeBody(t, rec); body["error"] != "title is required" {
		t.Errorf("error = %v, want %q", body["error"], "title is required")
	}
}

func TestCatalogHandler_CreateMultipart(t *testing.T) {
	var (
		mu       sync.Mutex
		gotType  string
		gotField string
		gotFile  string
	)
	inspect := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			jsonReply(http.StatusOK, `[]`)(w, r)
			return
		}
		mu.Lock()
		gotType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			gotField = r.FormValue("name")
			if f, _, err := r.FormFile("image"); err == nil {
				data, _ := io.ReadAll(f)
				gotFile = string(data)
				_ = f.Close()
			}
		}
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	h, _ := newTestCatalog(t, inspect)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", "Summer")
	fw, _ := mw.CreateFormFile("image", "banner.png")
	_, _ = fw.Write([]byte("PNGDATA"))
	_ = mw.Close()

	c, rec := newContext(http.MethodPost, "/admin/design", &buf, `{"design":"full"}`, "module", "design")
	c.Request().Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	if err := h.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.HasPrefix(gotType, "multipart/form-data; boundary=") {
		t.Errorf("Content-Type = %q, want multipart with boundary", gotType)
	}
	if gotField != "Summer" {
		t.Errorf("field name = %q, want %q", gotField, "Summer")
	}
	if gotFile != "PNGDATA" {
		t.Errorf("file data = %q, want %q", gotFile, "PNGDATA")
	}
}

func TestCatalogHandler_Delete(t *testing.T) {
	backend := &recordingBackend{handler: func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		jsonReply(http.StatusOK, `[]`)(w, r)
	}}
	h, _ := newTestCatalog(t, backend)

	c, rec := newContext(http.MethodDelete, "/admin/product/12", http.NoBody, `{"product":"all access"}`, "module", "product", "id", "12")
	if err := h.Delete(c); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	result, _ := body["result"].(map[string]any)
	if result["status"] != "success" {
		t.Errorf("result = %v, want synthetic success", body["result"])
	}
}

func TestCatalogHandler_UpdateViewOnlyForbidden(t *testing.T) {
	backend := &recordingBackend{handler: jsonReply(http.StatusOK, `{}`)}
	h, _ := newTestCatalog(t, backend)

	c, rec := newContext(http.MethodPut, "/admin/seo/3", strings.NewReader(`{}`), `{"seo":"only view"}`, "module", "seo", "id", "3")
	if err := h.Update(c); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestCatalogHandler_HTMLResponse(t *testing.T) {
	backend := &recordingBackend{handler: func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<!doctype html><html></html>"))
	}}
	h, _ := newTestCatalog(t, backend)

	c, rec := newContext(http.MethodDelete, "/admin/blog/1", http.NoBody, `{"blog":"full"}`, "module", "blog", "id", "1")
	if err := h.Delete(c); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if body := decodeBody(t, rec); !strings.Contains(fmt.Sprint(body["error"]), "HTML") {
		t.Errorf("error = %v, want HTML message", body["error"])
	}
}

func TestCatalogHandler_Access(t *testing.T) {
	h, _ := newTestCatalog(t, &recordingBackend{handler: jsonReply(http.StatusOK, `[]`)})

	c, rec := newContext(http.MethodGet, "/admin/access/order", http.NoBody, `{"order":"view"}`, "module", "order")
	if err := h.Access(c); err != nil {
		t.Fatalf("Access() error = %v", err)
	}
	body := decodeBody(t, rec)
	if body["access"] != "only view" || body["can_view"] != true || body["can_edit"] != false {
		t.Errorf("body = %v", body)
	}

	c, rec = newContext(http.MethodGet, "/admin/access/nope", http.NoBody, `{}`, "module", "nope")
	if err := h.Access(c); err != nil {
		t.Fatalf("Access() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCatalogHandler_Dashboard(t *testing.T) {
	backend := &recordingBackend{handler: func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/blogs":
			jsonReply(http.StatusOK, `[{"id":1},{"id":2},{"id":3}]`)(w, r)
		default:
			jsonReply(http.StatusOK, `{"total":7}`)(w, r)
		}
	}}
	h, _ := newTestCatalog(t, backend)

	c, rec := newContext(http.MethodGet, "/admin/dashboard", http.NoBody, `{"dashboard":"view","blog":"view"}`)
	if err := h.Dashboard(c); err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var d struct {
		Entries []struct {
			Module string `json:"module"`
			Count  int    `json:"count"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	if len(d.Entries) != 1 || d.Entries[0].Module != "blog" || d.Entries[0].Count != 3 {
		t.Errorf("entries = %+v, want only blog with 3", d.Entries)
	}

	c, rec = newContext(http.MethodGet, "/admin/dashboard", http.NoBody, `{"blog":"view"}`)
	if err := h.Dashboard(c); err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"unknown module", fmt.Errorf("x: %w", service.ErrUnknownModule), http.StatusNotFound, "unknown module"},
		{"forbidden", fmt.Errorf("x: %w", service.ErrForbidden), http.StatusForbidden, "access denied"},
		{"client error passthrough", &gateway.RequestError{StatusCode: 409, Message: "slug taken"}, http.StatusConflict, "slug taken"},
		{"server error", &gateway.RequestError{StatusCode: 500, Message: "boom"}, http.StatusBadGateway, "boom"},
		{"html", &gateway.HTMLResponseError{StatusCode: 200, URL: "http://x"}, http.StatusBadGateway, "backend returned an HTML page; check the API base URL"},
		{"too large", fmt.Errorf("http://x: %w", gateway.ErrResponseTooLarge), http.StatusBadGateway, "backend response too large"},
		{"timeout", fmt.Errorf("backend request: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "backend request timed out"},
		{"canceled", fmt.Errorf("backend request: %w", context.Canceled), http.StatusBadGateway, "client disconnected"},
		{"dns", &url.Error{Op: "Get", URL: "http://x", Err: &net.DNSError{Err: "no such host", Name: "x"}}, http.StatusBadGateway, "backend host unreachable"},
		{"url", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("refused")}, http.StatusBadGateway, "backend connection failed"},
		{"other", errors.New("weird"), http.StatusBadGateway, "backend request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := statusFor(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
