package gateway

import (
	"errors"
	"fmt"
)

// ErrUnexpectedHTML is matched by every *HTMLResponseError. A JSON API that
// answers with a web page is misrouted or misconfigured.
var ErrUnexpectedHTML = errors.New("unexpected HTML response")

// ErrResponseTooLarge is returned when a backend body exceeds the buffering
// limit. The body is never parsed from a truncated prefix.
var ErrResponseTooLarge = errors.New("response body too large")

// genericFailure is the message used when a failed response carries no text.
const genericFailure = "Request failed"

// RequestError is a non-2xx backend response. Error returns Message verbatim.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return e.Message
}

// HTMLResponseError reports an HTML page returned for URL.
type HTMLResponseError struct {
	StatusCode int
	URL        string
}

func (e *HTMLResponseError) Error() string {
	return fmt.Sprintf("received an unexpected HTML page from %s (status %d); check the API base URL", e.URL, e.StatusCode)
}

func (e *HTMLResponseError) Is(target error) bool {
	return target == ErrUnexpectedHTML
}
