package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/lanes/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader_Defaults(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")

	convey.Convey("Given no file and no overrides", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then it should load the defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.PromoteToTrending, convey.ShouldEqual, 5)
			convey.So(cfg.PromoteToGraduated, convey.ShouldEqual, 20)
		})
	})
}

func TestConfigLoader_Env(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv("LANES_ADDR", ":8080")
	t.Setenv("LANES_PROMOTE_TO_TRENDING", "3")
	t.Setenv("LANES_PROMOTE_TO_GRADUATED", "9")
	t.Setenv("LANES_MAX_TRENDING", "7")
	t.Setenv("LANES_SCHEDULER_INTERVAL", "2s")
	t.Setenv("LANES_SCHEDULER_ENABLED", "false")

	convey.Convey("Given environment overrides", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then they should win over defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.PromoteToTrending, convey.ShouldEqual, 3)
			convey.So(cfg.PromoteToGraduated, convey.ShouldEqual, 9)
			convey.So(cfg.MaxTrending, convey.ShouldEqual, 7)
			convey.So(cfg.SchedulerInterval, convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.SchedulerEnabled, convey.ShouldBeFalse)
		})
	})
}

func TestConfigLoader_File(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
promote_to_trending: 4
promote_to_graduated: 12
max_graduated: 2
redis_channel: "lanes-test"
`)
	t.Setenv(config.EnvConfigFile, path)
	t.Setenv("LANES_MAX_GRADUATED", "6")

	convey.Convey("Given a YAML file and an env override", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then the file layers over defaults and env over the file", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			convey.So(cfg.PromoteToTrending, convey.ShouldEqual, 4)
			convey.So(cfg.PromoteToGraduated, convey.ShouldEqual, 12)
			convey.So(cfg.MaxGraduated, convey.ShouldEqual, 6)
			convey.So(cfg.RedisChannel, convey.ShouldEqual, "lanes-test")
		})
	})
}

func TestConfigLoader_Invalid(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv("LANES_PROMOTE_TO_TRENDING", "0")

	convey.Convey("Given a non-positive threshold", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then loading should refuse it", func() {
			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestConfigLoader_MissingFile(t *testing.T) {
	t.Setenv(config.EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))

	convey.Convey("Given a config path that does not exist", t, func() {
		_, err := config.Load(context.Background())

		convey.Convey("Then it should be a load error", func() {
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})
	})
}

func TestConfigWatch_NoFile(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")

	convey.Convey("Given no config file", t, func() {
		err := config.Watch(context.Background(), func(*config.Config) {}, func(error) {})

		convey.Convey("Then watching is a no-op", func() {
			convey.So(err, convey.ShouldBeNil)
		})
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lanes.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
