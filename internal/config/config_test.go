package config_test

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/okian/lanes/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.PromoteToTrending, convey.ShouldEqual, 5)
			convey.So(cfg.PromoteToGraduated, convey.ShouldEqual, 20)
			convey.So(cfg.MaxTrending, convey.ShouldEqual, 5)
			convey.So(cfg.MaxGraduated, convey.ShouldEqual, 3)
			convey.So(cfg.SchedulerInterval, convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.CatalogDripWindow, convey.ShouldEqual, 55*time.Minute)
			convey.So(cfg.RedisChannel, convey.ShouldEqual, "jobs-updates")
		})

		convey.Convey("Then it should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs that must be rejected at startup", t, func() {
		cases := map[string]func(*config.Config){
			"zero trending threshold":     func(c *config.Config) { c.PromoteToTrending = 0 },
			"negative graduated":          func(c *config.Config) { c.PromoteToGraduated = -1 },
			"graduated equals trending":   func(c *config.Config) { c.PromoteToGraduated = c.PromoteToTrending },
			"graduated below trending":    func(c *config.Config) { c.PromoteToTrending, c.PromoteToGraduated = 10, 3 },
			"empty addr":                  func(c *config.Config) { c.Addr = "" },
			"unknown store":               func(c *config.Config) { c.Store = "cassandra" },
			"postgres without dsn":        func(c *config.Config) { c.Store = config.StorePostgres },
			"negative capacity":           func(c *config.Config) { c.MaxTrending = -1 },
			"scheduler without interval":  func(c *config.Config) { c.SchedulerInterval = 0 },
			"no notify workers":           func(c *config.Config) { c.NotifyWorkers = 0 },
			"no subscriber buffer":        func(c *config.Config) { c.SubscriberBuffer = 0 },
			"negative click rate":         func(c *config.Config) { c.ClickRatePerSecond = -1 },
			"zero leaderboard limit":      func(c *config.Config) { c.MaxLeaderboardLimit = 0 },
			"zero shards":                 func(c *config.Config) { c.ShardCount = 0 },
			"malformed trusted proxy":     func(c *config.Config) { c.TrustedProxies = "10.0.0.0/8,not-a-cidr" },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()

			convey.Convey("Then "+name+" is an invalid config", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("Then trusted proxies accept CIDRs and bare addresses", func() {
			cfg := config.New()
			cfg.TrustedProxies = " 10.1.2.3/8, 192.168.0.7 ,"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
			prefixes, err := cfg.TrustedProxyPrefixes()
			convey.So(err, convey.ShouldBeNil)
			convey.So(prefixes, convey.ShouldResemble, []netip.Prefix{
				netip.MustParsePrefix("10.0.0.0/8"),
				netip.MustParsePrefix("192.168.0.7/32"),
			})
		})

		convey.Convey("Then zero capacities are allowed", func() {
			cfg := config.New()
			cfg.MaxTrending, cfg.MaxGraduated = 0, 0
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
