package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/energy-consumption-aggregation/internal/consumption"
)

// defaultMaxBodyBytes caps a response body; a 365-day page is well below it.
const defaultMaxBodyBytes = 32 << 20

// HTTPClientConfig bundles the HTTP client and response limits.
type HTTPClientConfig struct {
	Client       *http.Client
	MaxBodyBytes int64
}

var (
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

// doRequest executes the request through the circuit breaker and returns the
// response body. Failed requests are not retried; a non-2xx response becomes a
// *consumption.TransportError carrying the status and the API detail text.
func doRequest(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) ([]byte, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}

	req, err := buildRequest()
	if err != nil {
		return nil, err
	}
	// Ensure the request obeys context cancellation.
	req = req.WithContext(ctx)

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.Do(req)
		if execErr != nil {
			return nil, &consumption.TransportError{Detail: execErr.Error(), Err: execErr}
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, limit))
		if readErr != nil {
			return nil, &consumption.TransportError{StatusCode: resp.StatusCode, Detail: readErr.Error(), Err: readErr}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &consumption.TransportError{StatusCode: resp.StatusCode, Detail: errorDetail(body)}
		}
		return body, nil
	})
	if err != nil {
		// If circuit is open, propagate without touching the network.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &consumption.TransportError{
				Detail: fmt.Sprintf("%v: %v", errCircuitOpen, err),
				Err:    err,
			}
		}
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}

// errorDetail prefers the "detail" field of a JSON error body over the raw text.
func errorDetail(body []byte) string {
	var payload struct {
		Detail *string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		return *payload.Detail
	}
	return strings.TrimSpace(string(body))
}
