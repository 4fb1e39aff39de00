package market

import "fmt"

// APIError is returned for any marketplace call that fails with an HTTP error
// status or a transport failure. Callers may retry with bounded backoff; the
// client itself never retries.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("marketplace request failed: %s %s (status: %d): %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("marketplace request failed: %s %s (status: %d)", e.Method, e.URL, e.StatusCode)
}

// IsRejection reports whether the error was a structured rejection by the
// marketplace (4xx) rather than a transient server or transport failure.
func (e *APIError) IsRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
