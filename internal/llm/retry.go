package llm

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"go.uber.org/zap"
)

// retryStatus lists the responses worth another attempt.
var retryStatus = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryTransport retries requests answered with 500, 502, 503 or 504.
// Attempt n (1-based) waits BaseBackoff * 2^(n-1) first.
type RetryTransport struct {
	Base        http.RoundTripper
	MaxRetries  int
	BaseBackoff time.Duration
	Logger      *logging.Logger
}

func (t *RetryTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Buffer the body so each attempt can resend it.
	var body []byte
	if req.Body != nil && req.GetBody == nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("buffering request body: %w", err)
		}
		body = b
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			backoff := t.BaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}
		}

		r := req.Clone(req.Context())
		switch {
		case body != nil:
			r.Body = io.NopCloser(bytes.NewReader(body))
		case req.GetBody != nil:
			b, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = b
		}

		resp, err := t.base().RoundTrip(r)
		if err != nil {
			return nil, err
		}
		if !retryStatus[resp.StatusCode] || attempt >= t.MaxRetries {
			return resp, nil
		}

		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		retriesTotal.Inc()
		if t.Logger != nil {
			t.Logger.Warn(req.Context(), "llm request failed, retrying",
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
				zap.String("path", req.URL.Path),
			)
		}
	}
}
