package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/lanes/internal/domain/lane"
	types "github.com/okian/lanes/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntry(t *testing.T) {
	Convey("Given a leaderboard entry", t, func() {
		entry := types.Entry{Rank: 1, ItemID: "job-1", Title: "Rust dev", Lane: lane.Trending, ClickCount: 7}

		Convey("When it is encoded", func() {
			raw, err := json.Marshal(entry)
			So(err, ShouldBeNil)

			Convey("Then it uses snake case keys and the lane name", func() {
				So(string(raw), ShouldContainSubstring, `"item_id":"job-1"`)
				So(string(raw), ShouldContainSubstring, `"lane":"trending"`)
				So(string(raw), ShouldContainSubstring, `"click_count":7`)
			})
		})
	})
}
