package catalog

import (
	"net/http"
	"time"

	"github.com/okian/lanes/pkg/logger"
	"golang.org/x/time/rate"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the key sent in the X-RapidAPI-Key header.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithQuery sets the search query appended to the endpoint.
func WithQuery(q string) ClientOption {
	return func(c *Client) {
		c.query = q
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithRetry sets the attempt count and the first backoff delay.
func WithRetry(attempts int, base time.Duration) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if base > 0 {
			c.baseBackoff = base
		}
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithDripWindow spreads the release of new items over d.
func WithDripWindow(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		if d >= 0 {
			s.dripWindow = d
		}
	}
}

// WithSchedule sets the cron spec Start uses.
func WithSchedule(spec string) SyncerOption {
	return func(s *Syncer) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithShuffle replaces the random release order of new items.
func WithShuffle(shuffle func(ids []string)) SyncerOption {
	return func(s *Syncer) {
		if shuffle != nil {
			s.shuffle = shuffle
		}
	}
}

// WithSyncClock overrides time.Now.
func WithSyncClock(now func() time.Time) SyncerOption {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSyncLogger sets the syncer logger.
func WithSyncLogger(l logger.Logger) SyncerOption {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}
