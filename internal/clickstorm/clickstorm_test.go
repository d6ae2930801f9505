package clickstorm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/lanes/internal/adapters/http/api"
	service "github.com/okian/lanes/internal/app"
	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLanesServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := service.New(service.WithLogger(logger.NewNop()))
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func stormConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		Actors:     25,
		Duplicates: 10,
		Workers:    8,
		Timeout:    5 * time.Second,
		Thresholds: lane.DefaultThresholds(),
	}
}

func TestRun(t *testing.T) {
	Convey("Given a running lanes server", t, func() {
		srv := newLanesServer(t)
		ctx := context.Background()

		Convey("When a storm of distinct and duplicate clicks hits a fresh item", func() {
			stats, err := Run(ctx, stormConfig(srv.URL), nil)

			Convey("Then the item matches a sequential replay", func() {
				So(err, ShouldBeNil)
				So(stats.Accepted, ShouldEqual, 25)
				So(stats.Duplicate, ShouldEqual, 10)
				So(stats.FinalCount, ShouldEqual, 25)
				So(stats.FinalLane, ShouldEqual, lane.Graduated)
				So(stats.Migrations, ShouldEqual, 2)
			})
		})

		Convey("When the same item is stormed twice", func() {
			cfg := stormConfig(srv.URL)
			cfg.ItemID = "job-twice"
			cfg.Actors, cfg.Duplicates = 4, 0
			_, err := Run(ctx, cfg, nil)
			So(err, ShouldBeNil)

			stats, err := Run(ctx, cfg, nil)

			Convey("Then every replayed click is a duplicate", func() {
				So(err, ShouldNotBeNil)
				So(stats.Duplicate, ShouldEqual, 4)
				So(stats.FinalCount, ShouldEqual, 4)
				So(stats.FinalLane, ShouldEqual, lane.New)
			})
		})
	})
}

func TestRun_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Run(context.Background(), stormConfig(srv.URL), nil)
	assert.ErrorIs(t, err, ErrUnhealthy)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing url", mutate: func(c *Config) { c.BaseURL = "" }},
		{name: "no actors", mutate: func(c *Config) { c.Actors = 0 }},
		{name: "negative duplicates", mutate: func(c *Config) { c.Duplicates = -1 }},
		{name: "no workers", mutate: func(c *Config) { c.Workers = 0 }},
		{name: "inverted thresholds", mutate: func(c *Config) { c.Thresholds = lane.Thresholds{PromoteToTrending: 9, PromoteToGraduated: 3} }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := stormConfig("http://localhost")
			tc.mutate(&cfg)
			assert.ErrorIs(t, validate(cfg), ErrInvalidConfig)
		})
	}
	assert.NoError(t, validate(stormConfig("http://localhost")))
}

func TestReplay(t *testing.T) {
	testCases := []struct {
		name            string
		from            lane.Lane
		count, clicks   int
		wantLane        lane.Lane
		wantTransitions int
	}{
		{name: "below trending", from: lane.New, clicks: 4, wantLane: lane.New},
		{name: "exactly trending", from: lane.New, clicks: 5, wantLane: lane.Trending, wantTransitions: 1},
		{name: "through graduation", from: lane.New, clicks: 100, wantLane: lane.Graduated, wantTransitions: 2},
		{name: "resume from trending", from: lane.Trending, count: 18, clicks: 2, wantLane: lane.Graduated, wantTransitions: 1},
		{name: "graduated is terminal", from: lane.Graduated, count: 30, clicks: 5, wantLane: lane.Graduated},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, transitions := replay(tc.from, tc.count, tc.clicks, lane.DefaultThresholds())
			assert.Equal(t, tc.wantLane, got)
			assert.Equal(t, tc.wantTransitions, transitions)
		})
	}
}

func TestClick_WaitsOutThrottling(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"accepted","accepted":true,"duplicate":false,"click_count":1}`))
	}))
	defer srv.Close()

	c := newHTTPClient(srv.URL, 5*time.Second, 0)
	res, o, throttled, err := c.click(context.Background(), "job-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, outcomeAccepted, o)
	assert.Equal(t, 1, throttled)
	assert.Equal(t, 1, res.ClickCount)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Equal(t, defaultRetryAfter, retryAfter(""))
	assert.Equal(t, defaultRetryAfter, retryAfter("soon"))
}
