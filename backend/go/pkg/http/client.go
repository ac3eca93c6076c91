package http

import (
	"fmt"
	"net/http"
	"time"

	"brandbook/backend/go/pkg/circuitbreaker"
)

// Client wraps http.Client with an optional circuit breaker.
// Responses with status >= 500 count as failures but are still returned to the caller.
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// NewClient creates a Client. A nil breaker disables circuit breaking.
func NewClient(timeout time.Duration, breaker circuitbreaker.CircuitBreaker) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}
}

// Do executes an HTTP request with circuit breaker protection.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	err := c.breaker.Execute(func() error {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("server error: received status code %d", resp.StatusCode)
		}
		return nil
	})
	if resp != nil {
		// The body belongs to the caller even when the status tripped the breaker.
		return resp, nil
	}
	return nil, err
}
