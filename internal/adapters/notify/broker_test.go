package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/lanes/internal/adapters/notify"
	"github.com/okian/lanes/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBroker(t *testing.T) {
	Convey("Given a broker with two subscribers", t, func() {
		ctx := context.Background()
		b := notify.NewBroker(notify.WithSubscriberBuffer(1))
		first, cancelFirst := b.Subscribe(ctx)
		second, cancelSecond := b.Subscribe(ctx)
		defer cancelFirst()
		defer cancelSecond()

		So(b.ClientCount(), ShouldEqual, 2)

		Convey("When a change is delivered", func() {
			So(b.Deliver(ctx, model.Change{ItemID: "job-1", ClickCount: 3}), ShouldBeNil)

			Convey("Then both subscribers receive it", func() {
				So((<-first).ItemID, ShouldEqual, "job-1")
				So((<-second).ClickCount, ShouldEqual, 3)
			})
		})

		Convey("When a subscriber does not read", func() {
			_ = b.Deliver(ctx, model.Change{ItemID: "a"})
			done := make(chan struct{})
			go func() {
				_ = b.Deliver(ctx, model.Change{ItemID: "b"})
				close(done)
			}()

			Convey("Then delivery does not block and the overflow is dropped", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("deliver blocked on a slow subscriber")
				}
				So((<-first).ItemID, ShouldEqual, "a")
				select {
				case c := <-first:
					So(c.ItemID, ShouldNotEqual, "b")
				default:
				}
			})
		})

		Convey("When a subscriber cancels", func() {
			cancelFirst()
			_, open := <-first

			Convey("Then its channel is closed and it is no longer counted", func() {
				So(open, ShouldBeFalse)
				So(b.ClientCount(), ShouldEqual, 1)
			})
		})

		Convey("When synthetic presence is set", func() {
			b.SetSynthetic(5)

			Convey("Then online includes it", func() {
				So(b.Online(), ShouldEqual, 7)
			})
		})
	})

	Convey("Given a subscriber bound to a context", t, func() {
		b := notify.NewBroker()
		ctx, cancel := context.WithCancel(context.Background())
		ch, _ := b.Subscribe(ctx)

		Convey("When the context ends", func() {
			cancel()

			Convey("Then the subscription is removed", func() {
				select {
				case _, open := <-ch:
					So(open, ShouldBeFalse)
				case <-time.After(time.Second):
					t.Fatal("subscription not removed")
				}
				So(b.ClientCount(), ShouldEqual, 0)
			})
		})
	})
}
