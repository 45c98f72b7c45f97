// Package httpclient builds the outbound http.Client every collaborator
// client shares, grounded on the teacher's internal/infra/httpclient base
// client (timeout policy, no implicit proxy surprises).
package httpclient

import (
	"net/http"
	"time"
)

// New builds an *http.Client with a bounded per-request timeout. The
// transport uses http.DefaultTransport's proxy-from-environment behavior,
// matching the teacher's own default.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: http.DefaultTransport,
	}
}
