// Package caption obtains alt text for images from an external vision model,
// spreading requests over a ring of API credentials with retry and backoff.
package caption

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spherical/alttext/internal/domain"
)

// Request is one caption request as sent to a backend.
type Request struct {
	Image    []byte
	MIMEType string
	Prompt   string
}

// Backend is a captioning service. Implementations classify failures as
// domain errors of type ErrorTypeBlocked, ErrorTypeTransient or
// ErrorTypeFailed.
type Backend interface {
	Name() string
	Describe(ctx context.Context, cred domain.Credential, req Request) (string, error)
}

// BackendConfig holds the settings shared by the HTTP backends.
type BackendConfig struct {
	Name            string
	Model           string
	BaseURL         string
	Temperature     float64
	TopP            float64
	MaxOutputTokens int
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// NewBackend creates the backend named by cfg.Name.
func NewBackend(cfg BackendConfig) (Backend, error) {
	switch cfg.Name {
	case "gemini", "":
		return NewGeminiBackend(cfg), nil
	case "openrouter":
		return NewOpenRouterBackend(cfg), nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown caption backend %q", cfg.Name), nil)
	}
}

func (c BackendConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// shouldRetry determines if a status code is retryable
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests: // 429
		return true
	case http.StatusInternalServerError: // 500
		return true
	case http.StatusBadGateway: // 502
		return true
	case http.StatusServiceUnavailable: // 503
		return true
	case http.StatusGatewayTimeout: // 504
		return true
	default:
		return false
	}
}

// statusError classifies a non-200 response.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(body))
	if shouldRetry(resp.StatusCode) {
		return domain.TransientError(msg, nil)
	}
	return domain.PermanentError(msg, nil)
}
