package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResponseBytes caps how much of a backend body is buffered.
const maxResponseBytes = 32 << 20

// inspected is a backend response with its body fully read.
type inspected struct {
	url         string
	status      int
	header      http.Header
	contentType string
	body        []byte
}

func (in *inspected) ok() bool {
	return in.status >= 200 && in.status < 300
}

// rule is one row of the normalization table.
type rule struct {
	name  string
	match func(in *inspected) bool
	apply func(in *inspected) (*Response, error)
}

// rules is evaluated top to bottom; the first match decides the outcome.
var rules = []rule{
	{
		name:  "no_content",
		match: func(in *inspected) bool { return in.status == http.StatusNoContent },
		apply: applySynthetic,
	},
	{
		name:  "empty_ok",
		match: func(in *inspected) bool { return in.status == http.StatusOK && len(in.body) == 0 },
		apply: applySynthetic,
	},
	{
		name:  "json",
		match: func(in *inspected) bool { return isJSON(in.contentType) && json.Valid(bytes.TrimSpace(in.body)) },
		apply: func(in *inspected) (*Response, error) {
			return &Response{
				StatusCode: in.status,
				OK:         in.ok(),
				Header:     in.header,
				Body:       json.RawMessage(bytes.TrimSpace(in.body)),
			}, nil
		},
	},
	{
		name:  "html",
		match: func(in *inspected) bool { return strings.Contains(in.contentType, "text/html") },
		apply: func(in *inspected) (*Response, error) {
			return nil, &HTMLResponseError{StatusCode: in.status, URL: in.url}
		},
	},
	{
		name:  "text_ok",
		match: (*inspected).ok,
		apply: func(in *inspected) (*Response, error) {
			resp := syntheticSuccess(in.header)
			resp.Discarded = strings.TrimSpace(string(in.body))
			return resp, nil
		},
	},
	{
		name:  "text_error",
		match: func(*inspected) bool { return true },
		apply: func(in *inspected) (*Response, error) {
			msg := string(in.body)
			if strings.TrimSpace(msg) == "" {
				msg = genericFailure
			}
			return nil, &RequestError{StatusCode: in.status, Message: msg}
		},
	},
}

func applySynthetic(in *inspected) (*Response, error) {
	return syntheticSuccess(in.header), nil
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json") || strings.Contains(contentType, "+json")
}

// normalize reads resp to completion and runs it through rules. It returns
// the name of the matching rule alongside the outcome.
func normalize(resp *http.Response, url string) (*Response, string, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, "read_error", fmt.Errorf("read response body: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, "too_large", fmt.Errorf("%s: %w (limit %d bytes)", url, ErrResponseTooLarge, maxResponseBytes)
	}

	in := &inspected{
		url:         url,
		status:      resp.StatusCode,
		header:      resp.Header,
		contentType: strings.ToLower(resp.Header.Get("Content-Type")),
		body:        body,
	}

	for _, r := range rules {
		if r.match(in) {
			out, err := r.apply(in)
			return out, r.name, err
		}
	}
	// The last rule always matches.
	panic("gateway: normalization table has no fallback rule")
}
