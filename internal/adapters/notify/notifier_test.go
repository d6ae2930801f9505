package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/lanes/internal/adapters/notify"
	"github.com/okian/lanes/internal/domain/model"
	logging "github.com/okian/lanes/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type blockingDeliverer struct {
	release chan struct{}
}

func (d blockingDeliverer) Deliver(ctx context.Context, _ model.Change) error {
	select {
	case <-d.release:
	case <-ctx.Done():
	}
	return nil
}

type failingDeliverer struct{ calls *int }

func (d failingDeliverer) Deliver(context.Context, model.Change) error {
	*d.calls++
	return errors.New("down")
}

func TestNotifier(t *testing.T) {
	_ = logging.Init()

	Convey("Given a notifier over a broker", t, func() {
		ctx := context.Background()
		b := notify.NewBroker()
		n := notify.NewNotifier(b, 8, 2, nil)
		n.Start(ctx)
		sub, stop := b.Subscribe(ctx)
		defer stop()

		Convey("When a change is published", func() {
			So(n.Publish(ctx, model.Change{ItemID: "job-1"}), ShouldBeTrue)

			Convey("Then the subscriber receives it asynchronously", func() {
				select {
				case c := <-sub:
					So(c.ItemID, ShouldEqual, "job-1")
				case <-time.After(time.Second):
					t.Fatal("change not delivered")
				}
			})
		})

		Convey("When the notifier is shut down", func() {
			So(n.Shutdown(ctx), ShouldBeNil)

			Convey("Then further publishes are dropped without error", func() {
				So(n.Publish(ctx, model.Change{ItemID: "late"}), ShouldBeFalse)
			})
		})
	})

	Convey("Given a notifier whose deliverer is stuck", t, func() {
		ctx := context.Background()
		release := make(chan struct{})
		n := notify.NewNotifier(blockingDeliverer{release: release}, 1, 1, nil)
		n.Start(ctx)

		Convey("When more changes arrive than the queue holds", func() {
			accepted := 0
			for i := 0; i < 5; i++ {
				if n.Publish(ctx, model.Change{ItemID: "job"}) {
					accepted++
				}
			}
			close(release)

			Convey("Then the excess is dropped instead of blocking", func() {
				So(accepted, ShouldBeLessThan, 5)
				So(accepted, ShouldBeGreaterThanOrEqualTo, 1)
			})
		})
	})

	Convey("Given a fan-out with a failing member", t, func() {
		calls := 0
		b := notify.NewBroker()
		f := notify.Fanout{failingDeliverer{calls: &calls}, b}
		sub, stop := b.Subscribe(context.Background())
		defer stop()

		err := f.Deliver(context.Background(), model.Change{ItemID: "x"})

		Convey("Then the others still deliver and the error is reported", func() {
			So(err, ShouldNotBeNil)
			So(calls, ShouldEqual, 1)
			So((<-sub).ItemID, ShouldEqual, "x")
		})
	})
}
