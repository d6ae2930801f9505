package lane_test

import (
	"errors"
	"testing"

	"github.com/okian/lanes/internal/domain/lane"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNext(t *testing.T) {
	th := lane.DefaultThresholds()

	Convey("Given the default thresholds", t, func() {
		Convey("When a New item is below the trending threshold", func() {
			So(lane.Next(lane.New, 0, th), ShouldEqual, lane.New)
			So(lane.Next(lane.New, 4, th), ShouldEqual, lane.New)
		})

		Convey("When a New item reaches the trending threshold", func() {
			So(lane.Next(lane.New, 5, th), ShouldEqual, lane.Trending)
		})

		Convey("When a New item is already past the graduated threshold", func() {
			Convey("Then it moves only one lane", func() {
				So(lane.Next(lane.New, 25, th), ShouldEqual, lane.Trending)
			})
		})

		Convey("When a Trending item reaches the graduated threshold", func() {
			So(lane.Next(lane.Trending, 19, th), ShouldEqual, lane.Trending)
			So(lane.Next(lane.Trending, 20, th), ShouldEqual, lane.Graduated)
		})

		Convey("When an item is Graduated", func() {
			Convey("Then it stays Graduated for any count", func() {
				for _, n := range []int{0, 1, 5, 19, 20, 1000} {
					So(lane.Next(lane.Graduated, n, th), ShouldEqual, lane.Graduated)
				}
			})
		})

		Convey("When an item is Trending with a count under the trending threshold", func() {
			Convey("Then it is never demoted", func() {
				So(lane.Next(lane.Trending, 0, th), ShouldEqual, lane.Trending)
			})
		})

		Convey("When the result is compared to the input lane", func() {
			Convey("Then it never ranks lower", func() {
				for _, from := range lane.All {
					for n := 0; n <= 30; n++ {
						So(lane.Next(from, n, th).Rank(), ShouldBeGreaterThanOrEqualTo, from.Rank())
					}
				}
			})
		})
	})
}

func TestParse(t *testing.T) {
	Convey("Given lane names", t, func() {
		l, err := lane.Parse(" Trending ")
		So(err, ShouldBeNil)
		So(l, ShouldEqual, lane.Trending)

		_, err = lane.Parse("archived")
		So(errors.Is(err, lane.ErrUnknownLane), ShouldBeTrue)
	})
}

func TestPolicy(t *testing.T) {
	Convey("Given a policy with default thresholds", t, func() {
		p, err := lane.NewPolicy(lane.DefaultThresholds())
		So(err, ShouldBeNil)

		Convey("When the graduated threshold is lowered to 10", func() {
			err := p.Update(lane.Thresholds{PromoteToTrending: 5, PromoteToGraduated: 10})
			So(err, ShouldBeNil)

			Convey("Then a Graduated item stays Graduated at count 20", func() {
				So(p.Evaluate(lane.Graduated, 20), ShouldEqual, lane.Graduated)
			})

			Convey("Then a Trending item at 10 graduates on its next evaluation", func() {
				So(p.Evaluate(lane.Trending, 10), ShouldEqual, lane.Graduated)
			})
		})

		Convey("When an invalid update is attempted", func() {
			err := p.Update(lane.Thresholds{PromoteToTrending: 8, PromoteToGraduated: 8})

			Convey("Then it is rejected and the old thresholds remain", func() {
				So(errors.Is(err, lane.ErrInvalidThresholds), ShouldBeTrue)
				So(p.Thresholds(), ShouldResemble, lane.DefaultThresholds())
			})
		})
	})

	Convey("Given invalid thresholds", t, func() {
		_, err := lane.NewPolicy(lane.Thresholds{PromoteToTrending: 0, PromoteToGraduated: 20})
		So(errors.Is(err, lane.ErrInvalidThresholds), ShouldBeTrue)
	})
}
