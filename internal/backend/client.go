// Package backend provides the shared HTTP plumbing both Backend
// Clients (goclient for Backend-G, baileysclient for Backend-B) build
// on: a circuit-breaker-guarded JSON round trip classified into the
// five-variant Result from spec §4.2.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker" // v0.5.0
	"go.uber.org/zap"

	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/apierr"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/httpclient"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/wamodel"
)

// StatusEnvelope is the success/error envelope both backends'
// `success=false` JSON bodies carry (spec §4.2's BackendError variant).
type StatusEnvelope struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Envelope exposes the embedded StatusEnvelope for generic
// classification. Named Status (not StatusEnvelope) so implementers
// that embed StatusEnvelope don't collide the promoted field name
// with the method name.
type Envelope interface {
	Status() StatusEnvelope
}

// BaseClient is the shared plumbing embedded by each backend-specific
// client. It is stateless apart from the base URL and the connection
// pool (spec §4.2: "clients are stateless apart from holding the base
// URL and an HTTP connection pool").
type BaseClient struct {
	Backend    wamodel.BackendID
	BaseURL    string
	HTTPClient *http.Client
	Policy     httpclient.Policy
	Breaker    *gobreaker.CircuitBreaker
	Logger     *zap.Logger
}

// NewBaseClient builds a BaseClient with its own circuit breaker,
// named after the backend it serves (spec §4.2 addition — SPEC_FULL.md
// §4.2 — circuit breaking is independent of the Health Monitor).
func NewBaseClient(id wamodel.BackendID, baseURL string, policy httpclient.Policy, logger *zap.Logger) *BaseClient {
	name := fmt.Sprintf("backend-%s", id)
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(bname string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("backend", bname),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BaseClient{
		Backend:    id,
		BaseURL:    baseURL,
		HTTPClient: httpclient.New(),
		Policy:     policy,
		Breaker:    gobreaker.NewCircuitBreaker(settings),
		Logger:     logger,
	}
}

// DoJSON performs a JSON request/response round trip under the
// backend's circuit breaker, classifying the outcome into the
// five-variant Result (spec §4.2): a nil *apierr.Error with out
// populated is "Ok"; otherwise the error's Kind/Code distinguish
// Transport / Protocol / BackendReported.
//
// out is normally a pointer to a struct embedding StatusEnvelope. DoJSON
// decodes only 2xx bodies into it: a success=false body is decoded (out
// is populated) before the BackendReported error is returned, while a
// non-2xx body is not decoded and out is left untouched.
func (c *BaseClient) DoJSON(ctx context.Context, method, path string, reqBody interface{}, out interface{}, category httpclient.TimeoutCategory) *apierr.Error {
	timeout := c.Policy.Timeout(category)
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return apierr.Protocol(apierr.CodeDecodeError, 0, "failed to marshal request body", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return apierr.Transport(apierr.CodeConnectionError, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	result, breakerErr := c.Breaker.Execute(func() (interface{}, error) {
		resp, doErr := c.HTTPClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		return resp, nil
	})
	latency := time.Since(start)

	if breakerErr != nil {
		if breakerErr == gobreaker.ErrOpenState || breakerErr == gobreaker.ErrTooManyRequests {
			c.Logger.Warn("circuit breaker rejected call",
				zap.String("backend", string(c.Backend)),
				zap.String("path", path),
			)
			return apierr.Transport(apierr.CodeBridgeUnreachable, "circuit breaker open", breakerErr)
		}
		if reqCtx.Err() != nil {
			return apierr.Transport(apierr.CodeTimeout, "request timed out", breakerErr)
		}
		return apierr.Transport(apierr.CodeConnectionError, "request failed", breakerErr)
	}

	resp := result.(*http.Response)
	defer resp.Body.Close()

	c.Logger.Debug("backend call completed",
		zap.String("backend", string(c.Backend)),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", latency),
	)

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return apierr.Protocol(apierr.CodeDecodeError, resp.StatusCode, "failed to read response body", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.Protocol(apierr.CodeHTTPError, resp.StatusCode, fmt.Sprintf("unexpected status %d", resp.StatusCode), fmt.Errorf("%s", string(body)))
	}

	if len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return apierr.Protocol(apierr.CodeDecodeError, resp.StatusCode, "failed to decode response body", err)
		}
	}

	if env, ok := out.(Envelope); ok {
		status := env.Status()
		if !status.Success {
			return apierr.BackendReported(status.ErrorCode, status.Message)
		}
	}

	return nil
}
