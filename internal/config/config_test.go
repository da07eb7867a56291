package config_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.BaseURL, convey.ShouldEqual, "https://api.polygon.io")
			convey.So(cfg.Timezone, convey.ShouldEqual, "US/Eastern")
			convey.So(cfg.CacheBackend, convey.ShouldEqual, config.BackendBolt)
			convey.So(filepath.Base(cfg.CacheDir), convey.ShouldEqual, ".div_cache")
			convey.So(cfg.PageSize, convey.ShouldEqual, 1000)
			convey.So(cfg.RateLimitMaxRetries, convey.ShouldEqual, 0)
			convey.So(cfg.RateLimitMultiplier, convey.ShouldEqual, 1.0)
			convey.So(cfg.WarmWorkers, convey.ShouldEqual, 2)
			convey.So(cfg.WarmQueueSize, convey.ShouldEqual, 256)
		})

		convey.Convey("Then the duration helpers should match the provider contract", func() {
			convey.So(cfg.CacheTTL(), convey.ShouldEqual, 30*24*time.Hour)
			convey.So(cfg.RateLimitWait(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.ConnectTimeout(), convey.ShouldEqual, 3*time.Second)
			convey.So(cfg.ReadTimeout(), convey.ShouldEqual, 10*time.Second)
		})

		convey.Convey("Then the location should resolve to New York time", func() {
			loc := cfg.Location()
			ts := time.Date(2024, 1, 15, 12, 0, 0, 0, loc)
			_, offset := ts.Zone()
			convey.So(offset, convey.ShouldEqual, -5*3600)
		})

		convey.Convey("Then the defaults should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
