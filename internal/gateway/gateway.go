// Package gateway contains the stateless façades over the external inference
// endpoints: one for embeddings, one for text generation. Both share a
// bounded connection pool and the same retry policy; neither holds request
// state.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dolr-ai/content-moderation-sub000/internal/retry"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxIdleConns = 32
)

// NewPooledClient builds the shared HTTP client used by both gateways. The
// pool bounds simultaneous outbound connections independently of how many
// classify calls are in flight, which is the serving path's backpressure.
func NewPooledClient(maxConns int, timeout time.Duration) *http.Client {
	if maxConns <= 0 {
		maxConns = defaultMaxIdleConns
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        maxConns,
			MaxIdleConnsPerHost: maxConns,
			MaxConnsPerHost:     maxConns,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// retryableStatus reports whether an HTTP status is worth another attempt.
// 429 is throttling and backs off like a server error; other 4xx are
// rejections and fail fast.
func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

func isTransient(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == KindUnreachable
	}
	return true
}

// doJSON executes one POST of payload to url and decodes the body into out.
// It classifies every failure into a *Error carrying kind and raw body; the
// retry loop above it fills in the attempt count.
func doJSON(ctx context.Context, client *http.Client, api, url, apiKey string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", api, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", api, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &Error{API: api, Kind: KindUnreachable, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{API: api, Kind: KindUnreachable, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		kind := KindRejected
		if retryableStatus(resp.StatusCode) {
			kind = KindUnreachable
		}
		return &Error{
			API:        api,
			Kind:       kind,
			StatusCode: resp.StatusCode,
			RawBody:    json.RawMessage(raw),
			Err:        fmt.Errorf("upstream returned status %d", resp.StatusCode),
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{
			API:        api,
			Kind:       KindMalformed,
			StatusCode: resp.StatusCode,
			RawBody:    json.RawMessage(raw),
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}

	return nil
}

// callWithRetry wraps doJSON in the shared retry policy and stamps the final
// attempt count onto the surfaced error.
func callWithRetry(ctx context.Context, client *http.Client, logger *zap.Logger, policy retry.Policy, api, url, apiKey string, payload, out any) (int, error) {
	var retryLog retry.Logger
	if logger != nil {
		retryLog = func(attempt, maxAttempts int, delay time.Duration, err error) {
			logger.Warn("retrying upstream call",
				zap.String("api", api),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Duration("delay", delay),
				zap.Error(err))
		}
	}

	attempts, err := retry.Do(ctx, policy, isTransient, retryLog, func(attempt int) error {
		return doJSON(ctx, client, api, url, apiKey, payload, out)
	})
	if err != nil {
		var ge *Error
		if errors.As(err, &ge) {
			ge.Attempts = attempts
			return attempts, ge
		}
		return attempts, &Error{API: api, Kind: KindUnreachable, Attempts: attempts, Err: err}
	}
	return attempts, nil
}
