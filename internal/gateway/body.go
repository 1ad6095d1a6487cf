package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// File is one file part of a multipart body.
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// Multipart is a form-data body. The transport writes it and generates the
// boundary, so it must never be sent with a caller-chosen Content-Type.
type Multipart struct {
	Fields map[string][]string
	Files  []File
}

// SuccessBody is the synthetic body substituted for successful responses
// without a usable payload.
var SuccessBody = json.RawMessage(`{"status":"success"}`)

// Response is a normalized backend response. Body is always JSON.
type Response struct {
	StatusCode int
	OK         bool
	Header     http.Header
	Body       json.RawMessage

	// Synthetic is set when Body is SuccessBody rather than backend output.
	Synthetic bool
	// Discarded holds non-JSON text from a successful response that was
	// replaced by SuccessBody.
	Discarded string
}

func syntheticSuccess(header http.Header) *Response {
	return &Response{
		StatusCode: http.StatusOK,
		OK:         true,
		Header:     header,
		Body:       SuccessBody,
		Synthetic:  true,
	}
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Err returns nil for 2xx responses and a *RequestError otherwise, taking the
// message from the body's "message" or "error" field when present.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	return &RequestError{StatusCode: r.StatusCode, Message: messageFromBody(r.Body, r.StatusCode)}
}

func messageFromBody(body json.RawMessage, status int) string {
	var fields map[string]any
	if json.Unmarshal(body, &fields) == nil {
		for _, key := range []string{"message", "error", "detail"} {
			if s, ok := fields[key].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return genericFailure
}
