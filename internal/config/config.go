// Package config defines service configuration and its loading hooks.
//
// Conventions:
//   - New() returns a Config populated with defaults.
//   - Load layers a YAML file and environment variables over those defaults.
//   - Validate must pass before any component is constructed from a Config.
package config

import (
	"fmt"
	"net/netip"
	"runtime"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the item store backend: memory or postgres.
	Store string `koanf:"store"`
	// PostgresDSN is required when Store is postgres.
	PostgresDSN string `koanf:"postgres_dsn"`
	// PostgresMaxOpenConns and PostgresMaxIdleConns bound the connection pool.
	PostgresMaxOpenConns int `koanf:"postgres_max_open_conns"`
	PostgresMaxIdleConns int `koanf:"postgres_max_idle_conns"`
	// ShardCount configures the number of shards in the in-memory store and ledger.
	ShardCount int `koanf:"shard_count"`
	// SnapshotInterval controls how often the in-memory ranking snapshot is rebuilt.
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`

	// RedisAddr enables cross-instance change fan-out when set.
	RedisAddr string `koanf:"redis_addr"`
	// RedisChannel is the pub/sub channel changes are published on.
	RedisChannel string `koanf:"redis_channel"`

	// PromoteToTrending is the click count at which a New item becomes Trending.
	PromoteToTrending int `koanf:"promote_to_trending"`
	// PromoteToGraduated is the click count at which a Trending item graduates.
	PromoteToGraduated int `koanf:"promote_to_graduated"`

	// MaxTrending and MaxGraduated cap the lanes for synthetic clicks only.
	MaxTrending  int `koanf:"max_trending"`
	MaxGraduated int `koanf:"max_graduated"`

	// SchedulerEnabled turns the synthetic clicker on.
	SchedulerEnabled bool `koanf:"scheduler_enabled"`
	// SchedulerInterval is the tick period of the synthetic clicker.
	SchedulerInterval time.Duration `koanf:"scheduler_interval"`
	// SyntheticPresence is the number of fake observers shown while the scheduler runs.
	SyntheticPresence int `koanf:"synthetic_presence"`

	// NotifyQueueSize bounds the in-memory change queue.
	NotifyQueueSize int `koanf:"notify_queue_size"`
	// NotifyWorkers sets the number of change dispatch workers.
	NotifyWorkers int `koanf:"notify_workers"`
	// SubscriberBuffer is the per-subscriber channel capacity.
	SubscriberBuffer int `koanf:"subscriber_buffer"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// ClickRatePerSecond and ClickBurst limit POST /clicks per client. Zero disables.
	ClickRatePerSecond float64 `koanf:"click_rate_per_second"`
	ClickBurst         int     `koanf:"click_burst"`
	// TrustedProxies is a comma-separated list of CIDRs whose X-Forwarded-For
	// header names the client. Empty trusts no one.
	TrustedProxies string `koanf:"trusted_proxies"`

	// CatalogURL enables the catalog sync when set.
	CatalogURL string `koanf:"catalog_url"`
	// CatalogAPIKey is sent as X-RapidAPI-Key.
	CatalogAPIKey string `koanf:"catalog_api_key"`
	// CatalogQuery is passed through as the query parameter.
	CatalogQuery string `koanf:"catalog_query"`
	// CatalogSchedule is a cron spec, e.g. "@every 1h".
	CatalogSchedule string `koanf:"catalog_schedule"`
	// CatalogDripWindow spreads newly synced items' visibility over this window.
	CatalogDripWindow time.Duration `koanf:"catalog_drip_window"`
	// CatalogRatePerSecond throttles outbound catalog requests.
	CatalogRatePerSecond float64 `koanf:"catalog_rate_per_second"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		Store:                StoreMemory,
		PostgresMaxOpenConns: 25,
		PostgresMaxIdleConns: 5,
		ShardCount:           16,
		SnapshotInterval:     500 * time.Millisecond,
		RedisChannel:         "jobs-updates",
		PromoteToTrending:    5,
		PromoteToGraduated:   20,
		MaxTrending:          5,
		MaxGraduated:         3,
		SchedulerEnabled:     true,
		SchedulerInterval:    10 * time.Second,
		SyntheticPresence:    8,
		NotifyQueueSize:      10_000,
		NotifyWorkers:        runtime.NumCPU(),
		SubscriberBuffer:     64,
		MaxLeaderboardLimit:  100,
		ClickRatePerSecond:   5,
		ClickBurst:           10,
		CatalogQuery:         "web3 developer",
		CatalogSchedule:      "@every 1h",
		CatalogDripWindow:    55 * time.Minute,
		CatalogRatePerSecond: 1,
	}
}

// Validate reports the first configuration problem, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.Store != StoreMemory && c.Store != StorePostgres:
		return invalid("unknown store %q", c.Store)
	case c.Store == StorePostgres && c.PostgresDSN == "":
		return invalid("postgres_dsn is required for the postgres store")
	case c.PromoteToTrending <= 0:
		return invalid("promote_to_trending must be positive, got %d", c.PromoteToTrending)
	case c.PromoteToGraduated <= 0:
		return invalid("promote_to_graduated must be positive, got %d", c.PromoteToGraduated)
	case c.PromoteToGraduated <= c.PromoteToTrending:
		return invalid("promote_to_graduated (%d) must exceed promote_to_trending (%d)",
			c.PromoteToGraduated, c.PromoteToTrending)
	case c.MaxTrending < 0 || c.MaxGraduated < 0:
		return invalid("lane capacities must not be negative")
	case c.SchedulerEnabled && c.SchedulerInterval <= 0:
		return invalid("scheduler_interval must be positive")
	case c.NotifyQueueSize <= 0 || c.NotifyWorkers <= 0:
		return invalid("notify_queue_size and notify_workers must be positive")
	case c.SubscriberBuffer <= 0:
		return invalid("subscriber_buffer must be positive")
	case c.ShardCount <= 0:
		return invalid("shard_count must be positive")
	case c.MaxLeaderboardLimit <= 0:
		return invalid("max_leaderboard_limit must be positive")
	case c.ClickRatePerSecond < 0 || c.ClickBurst < 0:
		return invalid("click rate limits must not be negative")
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return invalid("trusted_proxies: %v", err)
	}
	return nil
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is a single-host
// prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, field := range strings.Split(c.TrustedProxies, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if !strings.Contains(field, "/") {
			addr, err := netip.ParseAddr(field)
			if err != nil {
				return nil, fmt.Errorf("parse %q: %w", field, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(field)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", field, err)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
