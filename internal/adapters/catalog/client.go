// Package catalog pulls item metadata from the external job feed and keeps
// the item store's display fields and active flags in line with it.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/lanes/internal/domain/model"
	"github.com/okian/lanes/pkg/logger"
	"github.com/okian/lanes/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	defaultAttempts    = 3
	defaultBaseBackoff = 100 * time.Millisecond
	defaultTimeout     = 15 * time.Second
	jitterFraction     = 0.3
	maxErrorBody       = 512
)

// feedJob is one entry of the JSearch-style response.
type feedJob struct {
	ID        string `json:"job_id"`
	Title     string `json:"job_title"`
	Employer  string `json:"employer_name"`
	City      string `json:"job_city"`
	State     string `json:"job_state"`
	Country   string `json:"job_country"`
	ApplyLink string `json:"job_apply_link"`
	Logo      string `json:"employer_logo"`
}

type feedResponse struct {
	Status string    `json:"status"`
	Data   []feedJob `json:"data"`
}

// Client fetches the catalog over HTTP with client side rate limiting and
// retries on 429 and 5xx.
type Client struct {
	endpoint    string
	apiKey      string
	query       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	attempts    int
	baseBackoff time.Duration
	logger      logger.Logger
}

// NewClient creates a client for endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    endpoint,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(1), 1),
		attempts:    defaultAttempts,
		baseBackoff: defaultBaseBackoff,
		logger:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the current catalog. Entries without an id are dropped.
func (c *Client) Fetch(ctx context.Context) ([]model.CatalogItem, error) {
	if c.endpoint == "" {
		return nil, ErrNotConfigured
	}
	req, err := c.newRequest(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		metrics.RecordCatalogFetchError()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordCatalogFetchError()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %d: %s", ErrStatus, resp.StatusCode, body)
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		metrics.RecordCatalogFetchError()
		return nil, fmt.Errorf("%w: decode: %w", ErrFetch, err)
	}

	items := make([]model.CatalogItem, 0, len(feed.Data))
	for _, j := range feed.Data {
		if j.ID == "" {
			continue
		}
		items = append(items, model.CatalogItem{
			ID:        j.ID,
			Title:     j.Title,
			Employer:  j.Employer,
			City:      j.City,
			State:     j.State,
			Country:   j.Country,
			ApplyLink: j.ApplyLink,
			LogoURL:   j.Logo,
		})
	}
	return items, nil
}

func (c *Client) newRequest(ctx context.Context) (*http.Request, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: parse endpoint: %w", ErrFetch, err)
	}
	if c.query != "" {
		q := u.Query()
		q.Set("query", c.query)
		q.Set("num_pages", "1")
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.apiKey)
		req.Header.Set("X-RapidAPI-Host", u.Host)
	}
	return req, nil
}

// do sends req, retrying transport errors, 429 and 5xx. The last response is
// returned as is once attempts run out.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", ErrFetch, err)
		}

		resp, err := c.httpClient.Do(req.Clone(ctx))
		switch {
		case err != nil:
			lastErr = err
		case retryable(resp.StatusCode) && attempt < c.attempts:
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
		default:
			return resp, nil
		}

		if attempt == c.attempts {
			break
		}
		delay := c.backoff(attempt)
		c.logger.Warn(ctx, "catalog fetch failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrFetch, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrFetch, c.attempts, lastErr)
}

// backoff doubles the base per attempt and adds up to 30% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	base := c.baseBackoff << (attempt - 1)
	return base + time.Duration(rand.Float64()*jitterFraction*float64(base))
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
