package clickstorm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxThrottleRetries = 20
	defaultRetryAfter  = time.Second
)

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeAccepted
	outcomeDuplicate
)

// httpClient wraps http.Client with an optional client-side pace.
type httpClient struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration, perSecond float64) *httpClient {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return &httpClient{
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		baseURL: baseURL,
	}
}

func (c *httpClient) get(ctx context.Context, path string, v any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if v == nil || resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}

// click posts one click, waiting out 429 responses. throttled counts the
// retries spent on rate limiting.
func (c *httpClient) click(ctx context.Context, itemID, actorID string) (res clickResponse, o outcome, throttled int, err error) {
	body, err := json.Marshal(clickRequest{ItemID: itemID, ActorID: actorID})
	if err != nil {
		return res, outcomeFailed, 0, fmt.Errorf("marshal click: %w", err)
	}

	for throttled = 0; throttled <= maxThrottleRetries; throttled++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return res, outcomeFailed, throttled, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/clicks", bytes.NewReader(body))
		if err != nil {
			return res, outcomeFailed, throttled, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return res, outcomeFailed, throttled, fmt.Errorf("post click: %w", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			select {
			case <-ctx.Done():
				return res, outcomeFailed, throttled, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		err = decodeClick(resp, &res)
		resp.Body.Close()
		if err != nil {
			return res, outcomeFailed, throttled, err
		}
		if res.Duplicate {
			return res, outcomeDuplicate, throttled, nil
		}
		return res, outcomeAccepted, throttled, nil
	}
	return res, outcomeFailed, throttled, fmt.Errorf("click %s/%s: still throttled after %d retries", itemID, actorID, maxThrottleRetries)
}

func decodeClick(resp *http.Response, res *clickResponse) error {
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("click rejected with status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
		return fmt.Errorf("decode click: %w", err)
	}
	return nil
}

func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultRetryAfter
}
