package httpx

import (
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 90 * time.Second

// NewExternalClient returns the client used for outbound calls to LLM
// providers and Slack. Non-positive values fall back to the default timeout.
func NewExternalClient(timeoutSeconds int) *http.Client {
	return &http.Client{Timeout: ExternalTimeout(timeoutSeconds)}
}

func ExternalTimeout(timeoutSeconds int) time.Duration {
	if timeoutSeconds > 0 {
		return time.Duration(timeoutSeconds) * time.Second
	}
	return defaultExternalHTTPTimeout
}
