package restclient

import (
	"fmt"
	"net/http"
)

// TransportError is a network failure or a transient upstream status
// (408, 429, 5xx). Network failures and the retryable statuses are retried.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int // 0 for network errors
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: transport error: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s: upstream returned %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError is returned for 401 and 403 responses. It is never retried.
type AuthError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s %s: authentication rejected (%d)", e.Method, e.URL, e.StatusCode)
}

// NotFoundError is returned for 404 responses.
type NotFoundError struct {
	Method string
	URL    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Method, e.URL)
}

// ValidationError is returned for any other 4xx response.
type ValidationError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *ValidationError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: request rejected (%d)", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: request rejected (%d): %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// retryableStatus lists the statuses treated as transient.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// classifyStatus maps a non-2xx status to a typed error and reports whether
// the request may be retried.
func classifyStatus(method, url string, status int, body []byte) (error, bool) {
	switch {
	case retryableStatus[status]:
		return &TransportError{Method: method, URL: url, StatusCode: status}, true
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Method: method, URL: url, StatusCode: status}, false
	case status == http.StatusNotFound:
		return &NotFoundError{Method: method, URL: url}, false
	case status >= 400 && status < 500:
		return &ValidationError{Method: method, URL: url, StatusCode: status, Body: truncate(string(body), 200)}, false
	default:
		return &TransportError{Method: method, URL: url, StatusCode: status}, false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
