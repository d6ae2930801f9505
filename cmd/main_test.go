package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/okian/lanes/internal/adapters/notify"
	"github.com/okian/lanes/internal/adapters/repository"
	app "github.com/okian/lanes/internal/app"
	"github.com/okian/lanes/internal/config"
	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/internal/scheduler"
	"github.com/okian/lanes/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func startService(t *testing.T, cfg *config.Config) (*app.Service, *notify.Broker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := newStore(ctx, cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	broker := notify.NewBroker()
	notifier := notify.NewNotifier(broker, 100, 1, logger.NewNop())
	notifier.Start(ctx)

	svc := app.New(
		app.WithLogger(logger.NewNop()),
		app.WithStore(store),
		app.WithThresholds(thresholdsOf(cfg)),
		app.WithPublisher(notifier),
		app.WithPresence(broker),
	)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(func() {
		_ = notifier.Shutdown(context.Background())
		svc.Stop()
	})
	return svc, broker
}

func TestMainConfiguration(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv("LANES_ADDR", ":8080")
	t.Setenv("LANES_MAX_GRADUATED", "4")
	t.Setenv("LANES_STORE", "memory")

	convey.Convey("Given environment overrides", t, func() {
		cfg, err := config.Load(context.Background())
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then the derived settings follow them", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(capacityOf(cfg), convey.ShouldResemble, scheduler.Capacity{MaxTrending: 5, MaxGraduated: 4})
			convey.So(thresholdsOf(cfg), convey.ShouldResemble, lane.DefaultThresholds())
		})

		convey.Convey("Then the memory store is selected", func() {
			store, err := newStore(context.Background(), cfg)
			convey.So(err, convey.ShouldBeNil)
			defer store.Close()
			_, ok := store.(*repository.MemoryStore)
			convey.So(ok, convey.ShouldBeTrue)
		})
	})
}

func TestNewDeliverer(t *testing.T) {
	convey.Convey("Given a broker", t, func() {
		ctx := context.Background()
		broker := notify.NewBroker()
		cfg := config.New()

		convey.Convey("When redis is not configured", func() {
			d, closeFn, err := newDeliverer(ctx, cfg, broker, logger.NewNop())
			convey.So(err, convey.ShouldBeNil)
			defer closeFn()

			convey.Convey("Then the broker delivers directly", func() {
				convey.So(d, convey.ShouldEqual, broker)
			})
		})

		convey.Convey("When redis is configured", func() {
			mr := miniredis.RunT(t)
			cfg.RedisAddr = mr.Addr()
			d, closeFn, err := newDeliverer(ctx, cfg, broker, logger.NewNop())
			convey.So(err, convey.ShouldBeNil)
			defer closeFn()

			convey.Convey("Then changes go through the bridge", func() {
				_, ok := d.(*notify.RedisBridge)
				convey.So(ok, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When redis is unreachable", func() {
			cfg.RedisAddr = "127.0.0.1:1"
			_, _, err := newDeliverer(ctx, cfg, broker, logger.NewNop())

			convey.Convey("Then startup fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestNewMux(t *testing.T) {
	convey.Convey("Given a wired mux", t, func() {
		cfg := config.New()
		cfg.ClickRatePerSecond = 0
		svc, _ := startService(t, cfg)
		mux := newMux(context.Background(), cfg, svc)

		convey.Convey("When a click is posted", func() {
			req := httptest.NewRequest(http.MethodPost, "/clicks", strings.NewReader(`{"item_id":"job-1","actor_id":"alice"}`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			convey.Convey("Then it is accepted and visible", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var body map[string]any
				convey.So(json.Unmarshal(w.Body.Bytes(), &body), convey.ShouldBeNil)
				convey.So(body["status"], convey.ShouldEqual, "accepted")

				it, err := svc.Item(context.Background(), "job-1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(it.ClickCount, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("Then docs and metrics are served", func() {
			for _, path := range []string{"/api-docs", "/openapi.yaml", "/healthz", "/metrics"} {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestServiceWithInjectedLogger(t *testing.T) {
	convey.Convey("Given a service built only with a discarding logger", t, func() {
		ctx := context.Background()
		svc := app.New(app.WithLogger(logger.NewNop()))

		convey.Convey("Then it starts without a global logger and records clicks", func() {
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			res, err := svc.RecordClick(ctx, "job-1", "alice")
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Accepted, convey.ShouldBeTrue)
			convey.So(res.ClickCount, convey.ShouldEqual, 1)
		})
	})
}

func TestNewServerShutdownEndsStreams(t *testing.T) {
	convey.Convey("Given a server with an open event stream", t, func() {
		cfg := config.New()
		svc, broker := startService(t, cfg)
		srv := newServer(cfg, newMux(context.Background(), cfg, svc), broker)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		go func() { _ = srv.Serve(ln) }()

		resp, err := http.Get("http://" + ln.Addr().String() + "/stream")
		convey.So(err, convey.ShouldBeNil)
		defer resp.Body.Close()

		line, err := bufio.NewReader(resp.Body).ReadString('\n')
		convey.So(err, convey.ShouldBeNil)
		convey.So(line, convey.ShouldStartWith, "event: connected")

		convey.Convey("When the server shuts down", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			start := time.Now()
			err := srv.Shutdown(ctx)

			convey.Convey("Then it does not wait for the stream client", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(time.Since(start) < time.Second, convey.ShouldBeTrue)
				convey.So(broker.ClientCount(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestApplyReload(t *testing.T) {
	convey.Convey("Given a running service and scheduler", t, func() {
		cfg := config.New()
		svc, _ := startService(t, cfg)
		sched := scheduler.New(svc, scheduler.WithLogger(logger.NewNop()))
		ctx := context.Background()

		convey.Convey("When a valid config is applied", func() {
			next := config.New()
			next.PromoteToTrending, next.PromoteToGraduated = 3, 9
			next.MaxTrending, next.MaxGraduated = 7, 2
			applyReload(ctx, logger.NewNop(), svc, sched, next)

			convey.Convey("Then thresholds and capacity change", func() {
				convey.So(svc.Thresholds(), convey.ShouldResemble, lane.Thresholds{PromoteToTrending: 3, PromoteToGraduated: 9})
				convey.So(sched.Capacity(), convey.ShouldResemble, scheduler.Capacity{MaxTrending: 7, MaxGraduated: 2})
			})
		})

		convey.Convey("When thresholds are inverted", func() {
			next := config.New()
			next.PromoteToTrending, next.PromoteToGraduated = 9, 3
			applyReload(ctx, logger.NewNop(), svc, sched, next)

			convey.Convey("Then the previous thresholds stay", func() {
				convey.So(svc.Thresholds(), convey.ShouldResemble, lane.DefaultThresholds())
			})
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		cfg := config.New()
		svc, _ := startService(t, cfg)
		notifier := notify.NewNotifier(notify.NewBroker(), 10, 1, logger.NewNop())

		convey.Convey("Then a single pass does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(context.Background(), svc, notifier) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loops stop with their context", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				startServiceMetricsUpdater(ctx, svc, notifier)
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("metrics updaters did not stop")
			}
		})
	})
}
