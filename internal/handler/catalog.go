package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"catalog-admin-go/internal/gateway"
	"catalog-admin-go/internal/model"
	"catalog-admin-go/internal/service"
)

// defaultMultipartMemory bounds in-memory multipart parsing when no body
// limit is configured.
const defaultMultipartMemory = 32 << 20

var errBadBody = errors.New("invalid request body")

// CatalogHandler serves the admin module screens.
type CatalogHandler struct {
	service   *service.CatalogService
	logger    *slog.Logger
	maxMemory int64
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(svc *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		service:   svc,
		logger:    logger.With("component", "catalog_handler"),
		maxMemory: defaultMultipartMemory,
	}
}

// List returns the module's item list. A failed fetch still returns the page
// envelope with empty items so the screen can render the error.
func (h *CatalogHandler) List(c echo.Context) error {
	page, err := h.service.Load(c.Request().Context(), c.Param("module"))
	if err != nil {
		if page != nil {
			status, _ := h.classify(c, err)
			return c.JSON(status, page)
		}
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// Create adds an item to the module.
func (h *CatalogHandler) Create(c echo.Context) error {
	return h.mutate(c, model.OpCreate)
}

// Update replaces the item identified by :id.
func (h *CatalogHandler) Update(c echo.Context) error {
	return h.mutate(c, model.OpUpdate)
}

// Delete removes the item identified by :id.
func (h *CatalogHandler) Delete(c echo.Context) error {
	return h.mutate(c, model.OpDelete)
}

func (h *CatalogHandler) mutate(c echo.Context, op model.Operation) error {
	m := model.Mutation{
		Module: c.Param("module"),
		Op:     op,
		ID:     c.Param("id"),
	}
	if op != model.OpDelete {
		body, err := h.readBody(c.Request())
		if err != nil {
			return h.mapError(c, err)
		}
		m.Body = body
	}

	res, err := h.service.Mutate(c.Request().Context(), m)
	if err != nil {
		return h.mapError(c, err)
	}

	status := http.StatusOK
	if op == model.OpCreate {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

// Access reports the caller's level for :module.
func (h *CatalogHandler) Access(c echo.Context) error {
	module := c.Param("module")
	level, err := h.service.Access(c.Request().Context(), module)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"module":   module,
		"access":   level,
		"can_view": level.CanView(),
		"can_edit": level.CanEdit(),
	})
}

// Dashboard returns item counts for the dashboard modules.
func (h *CatalogHandler) Dashboard(c echo.Context) error {
	d, err := h.service.Dashboard(c.Request().Context())
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// readBody converts the inbound body into a gateway body: multipart forms
// become *gateway.Multipart, anything else is passed on as raw JSON.
func (h *CatalogHandler) readBody(req *http.Request) (any, error) {
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))
	if mediaType == echo.MIMEMultipartForm {
		return h.readMultipart(req)
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadBody, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: body is not valid JSON", errBadBody)
	}
	return json.RawMessage(data), nil
}

func (h *CatalogHandler) readMultipart(req *http.Request) (*gateway.Multipart, error) {
	if err := req.ParseMultipartForm(h.maxMemory); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadBody, err)
	}
	defer func() { _ = req.MultipartForm.RemoveAll() }()

	form := &gateway.Multipart{Fields: req.MultipartForm.Value}
	for field, headers := range req.MultipartForm.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("%w: open %s: %w", errBadBody, fh.Filename, err)
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return nil, fmt.Errorf("%w: read %s: %w", errBadBody, fh.Filename, err)
			}
			form.Files = append(form.Files, gateway.File{
				Field:       field,
				Name:        fh.Filename,
				ContentType: fh.Header.Get(echo.HeaderContentType),
				Data:        data,
			})
		}
	}
	return form, nil
}

func (h *CatalogHandler) mapError(c echo.Context, err error) error {
	status, msg := h.classify(c, err)
	return c.JSON(status, map[string]string{"error": msg})
}

// classify picks the response status and client-facing message for err.
func (h *CatalogHandler) classify(c echo.Context, err error) (int, string) {
	status, msg := statusFor(err)

	attrs := []any{"err", err, "path", c.Request().URL.Path, "status", status}
	if status < http.StatusInternalServerError {
		h.logger.Warn("request rejected", attrs...)
	} else {
		h.logger.Error("backend error", attrs...)
	}
	return status, msg
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrUnknownModule):
		return http.StatusNotFound, "unknown module"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "access denied"
	case errors.Is(err, service.ErrInvalidMutation), errors.Is(err, errBadBody):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, gateway.ErrUnexpectedHTML):
		return http.StatusBadGateway, "backend returned an HTML page; check the API base URL"
	case errors.Is(err, gateway.ErrResponseTooLarge):
		return http.StatusBadGateway, "backend response too large"
	}

	var reqErr *gateway.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.StatusCode >= 400 && reqErr.StatusCode < 500 {
			return reqErr.StatusCode, reqErr.Message
		}
		return http.StatusBadGateway, reqErr.Message
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "backend request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusBadGateway, "client disconnected"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return http.StatusBadGateway, "backend host unreachable"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return http.StatusBadGateway, "backend connection failed"
	}

	return http.StatusBadGateway, "backend request failed"
}
