package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"eventpay/pkg/errutil"
	"eventpay/pkg/monitoring"

	"go.uber.org/zap"
)

// apiClient wraps outbound gateway calls with a bounded timeout and a small
// number of retries for transient failures only. A 4xx response is terminal
// and never retried.
type apiClient struct {
	hc         *http.Client
	maxRetries int
	name       string
}

func newAPIClient(name string, timeout time.Duration, maxRetries int) *apiClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &apiClient{
		hc:         &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		name:       name,
	}
}

func (c *apiClient) postJSON(ctx context.Context, url, operation string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errutil.Internal("failed to encode gateway request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return errutil.GatewayTimeout("gateway call cancelled", ctx.Err())
			}
		}

		start := time.Now()
		lastErr = c.doOnce(ctx, url, headers, payload, out)
		monitoring.GatewayCalls.WithLabelValues(c.name, operation).Observe(time.Since(start).Seconds())

		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}

		zap.L().Warn("transient gateway failure, retrying",
			zap.String("gateway", c.name),
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	return lastErr
}

func (c *apiClient) doOnce(ctx context.Context, url string, headers map[string]string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errutil.Internal("failed to build gateway request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if isTimeout(err) {
			return errutil.GatewayTimeout("gateway did not respond in time", err)
		}
		return errutil.BadGateway("gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errutil.BadGateway("failed to read gateway response", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return errutil.BadGateway(fmt.Sprintf("gateway returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		// business rejection, terminal
		return errutil.BadGateway(
			fmt.Sprintf("gateway rejected request with %d", resp.StatusCode),
			ErrRejected,
			errutil.WithDetails(errutil.Detail{Field: "response", Message: string(raw)}),
		)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return errutil.BadGateway("malformed gateway response", err)
		}
	}

	return nil
}

// ErrRejected marks a 4xx gateway response so the retry loop treats it as
// terminal.
var ErrRejected = errors.New("gateway rejected request")

// isTransient reports whether the failure is worth retrying: timeouts,
// transport errors and upstream 5xx. Rejections (4xx) are terminal.
func isTransient(err error) bool {
	if errors.Is(err, ErrRejected) {
		return false
	}

	switch errutil.StatusOf(err) {
	case errutil.StatusGatewayTimeout, errutil.StatusBadGateway:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
