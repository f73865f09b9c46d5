package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"solana-pulse-backend/internal/logging"
)

const maxAttempts = 3

// apiCore is the shared HTTP plumbing for every pull feed: timeout,
// per-minute rate budget, retry with exponential backoff for retriable
// statuses, and a circuit breaker that sheds load while the feed is down.
type apiCore struct {
	feed       string
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	limiter    *RateLimiter
	breaker    *gobreaker.CircuitBreaker
	log        *logging.Logger
}

func newAPICore(feed, baseURL string, timeout time.Duration, perMinute int, headers map[string]string) *apiCore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    feed,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &apiCore{
		feed:       feed,
		baseURL:    baseURL,
		headers:    headers,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    NewRateLimiter(perMinute),
		breaker:    breaker,
		log:        logging.WithComponent("upstream." + feed),
	}
}

type httpResult struct {
	status int
	body   []byte
	header http.Header
}

// getJSON performs a GET against path, decoding the body into out.
// A 404 maps to KindNotFound with out left untouched.
func (c *apiCore) getJSON(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return newError(c.feed, op, KindCancelled, err)
			}
		}

		if res := c.limiter.TryAcquire(); !res.Acquired {
			lastErr = newError(c.feed, op, KindRateLimited, fmt.Errorf("%s (wait %s)", res.Reason, res.WaitTime))
			continue
		}

		result, err := c.do(ctx, endpoint)
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return newError(c.feed, op, KindUnavailable, err)
			}
			if ctx.Err() != nil {
				return newError(c.feed, op, KindCancelled, ctx.Err())
			}
			lastErr = newError(c.feed, op, KindUnavailable, err)
			continue
		}

		switch {
		case result.status == http.StatusOK:
			if err := json.Unmarshal(result.body, out); err != nil {
				return newError(c.feed, op, KindBadResponse, fmt.Errorf("decode: %w (sample %q)", err, sample(result.body)))
			}
			return nil

		case result.status == http.StatusNotFound:
			return newError(c.feed, op, KindNotFound, nil)

		case result.status == http.StatusUnauthorized || result.status == http.StatusForbidden:
			return newError(c.feed, op, KindAuth, fmt.Errorf("status %d", result.status))

		case result.status == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(result.header)
			c.limiter.RecordRateLimited(retryAfter)
			lastErr = newError(c.feed, op, KindRateLimited, fmt.Errorf("status 429, retry after %s", retryAfter))

		case result.status >= 500:
			lastErr = newError(c.feed, op, KindUnavailable, fmt.Errorf("status %d", result.status))

		default:
			return newError(c.feed, op, KindBadResponse, fmt.Errorf("status %d: %s", result.status, sample(result.body)))
		}
	}

	if lastErr == nil {
		lastErr = newError(c.feed, op, KindUnavailable, fmt.Errorf("no attempts made"))
	}
	c.log.Warn("request failed after retries", "op", op, "error", lastErr)
	return lastErr
}

// do executes one HTTP request through the circuit breaker
func (c *apiCore) do(ctx context.Context, endpoint string) (*httpResult, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, err
		}

		result := &httpResult{status: resp.StatusCode, body: body, header: resp.Header}
		if resp.StatusCode >= 500 {
			// Count 5xx towards tripping the breaker while still
			// returning the payload for retry classification.
			return result, fmt.Errorf("status %d", resp.StatusCode)
		}
		return result, nil
	})

	if result, ok := res.(*httpResult); ok {
		return result, nil
	}
	return nil, err
}

func sleepBackoff(ctx context.Context, attempt int) error {
	base := 500 * time.Millisecond << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(base + jitter):
		return nil
	}
}

func parseRetryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func sample(body []byte) string {
	const n = 200
	if len(body) > n {
		return string(body[:n]) + "..."
	}
	return string(body)
}
