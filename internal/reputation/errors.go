package reputation

import (
	"fmt"
	"strings"
)

// TransportError means no response was received from the reputation service.
type TransportError struct {
	Identifier string
	Cause      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("reputation: request for %s failed: %v", e.Identifier, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// UpstreamError means the service answered with a status other than 200 or
// 429, or with a body that could not be interpreted.
type UpstreamError struct {
	Identifier string
	Status     int
	Body       string
}

func (e *UpstreamError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("reputation: unexpected status %d for %s: %s", e.Status, e.Identifier, body)
}

// RateLimitError means the service rejected the request with 429.
type RateLimitError struct {
	Identifier string
	Counters   Counters
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("reputation: reached API lookup limit for %s", e.Identifier)
}
