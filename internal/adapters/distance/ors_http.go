package distance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/platform/metrics"
	"strconv"
	"strings"
	"time"
)

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}

func (o *ORSProvider) newRequest(
	ctx context.Context,
	method string,
	url string,
	body io.Reader,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", o.apiKey)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func (o *ORSProvider) do(op string, req *http.Request) (*http.Response, error) {
	resp, err := o.session.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(op, "error").Inc()
		return nil, err
	}
	metrics.ProviderRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// doWithRetry retries transient failures (network errors, 429 and 5xx
// responses) using exponential backoff while respecting context cancellation.
// Every attempt waits on the rate limiter first. The returned error is always
// a *domain.ProviderError.
func (o *ORSProvider) doWithRetry(
	ctx context.Context,
	op string,
	makeReq func() (*http.Request, error),
) (*http.Response, error) {
	const maxAttempts = 4
	backoff := o.retryBackoff

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, classify(op, ctx.Err())
			}
			return nil, &domain.ProviderError{Kind: domain.ErrorKindRateLimited, Message: op + ": client rate limit", Err: err}
		}

		req, err := makeReq()
		if err != nil {
			return nil, classify(op, fmt.Errorf("make request: %w", err))
		}

		resp, err := o.do(op, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case 429, 500, 502, 503, 504:
				retry = true
			}
		}

		var netErr net.Error
		if !retry && errors.As(err, &netErr) && ctx.Err() == nil {
			retry = true
		}

		if !retry || attempt == maxAttempts {
			return nil, classify(op, lastErr)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, classify(op, lastErr)
		case <-timer.C:
		}

		backoff *= 2
	}

	return nil, classify(op, lastErr)
}

// classify maps a transport or HTTP failure onto the provider error taxonomy.
func classify(op string, err error) *domain.ProviderError {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	var he *httpStatusError
	if errors.As(err, &he) {
		kind := domain.ErrorKindUnknown
		switch he.Code {
		case http.StatusTooManyRequests:
			kind = domain.ErrorKindRateLimited
		case http.StatusBadRequest, http.StatusNotFound:
			kind = domain.ErrorKindInvalidLocation
		}
		return &domain.ProviderError{Kind: kind, Status: he.Code, Message: op + ": " + he.Body, Err: err}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
		return &domain.ProviderError{Kind: domain.ErrorKindNetwork, Message: op + ": " + err.Error(), Err: err}
	}

	return &domain.ProviderError{Kind: domain.ErrorKindUnknown, Message: op + ": " + err.Error(), Err: err}
}

// malformed reports a response body that could not be interpreted.
func malformed(op string, format string, args ...any) *domain.ProviderError {
	return &domain.ProviderError{Kind: domain.ErrorKindUnknown, Message: op + ": " + fmt.Sprintf(format, args...)}
}
