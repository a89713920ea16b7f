package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/boxoffice/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should carry the forecaster defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.ReferenceYear, convey.ShouldEqual, 2024)
			convey.So(cfg.MinTrainingSize, convey.ShouldEqual, 300)
			convey.So(cfg.MinBudget, convey.ShouldEqual, 10_000)
			convey.So(cfg.CastPolicy, convey.ShouldEqual, "lead")
			convey.So(cfg.ModelTrees, convey.ShouldEqual, 300)
			convey.So(cfg.ModelLearningRate, convey.ShouldEqual, 0.05)
			convey.So(cfg.ModelMaxDepth, convey.ShouldEqual, 5)
			convey.So(cfg.ModelSeed, convey.ShouldEqual, 42)
			convey.So(cfg.ModelTestFraction, convey.ShouldEqual, 0.2)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a valid config", t, func() {
		cfg := config.New()

		cases := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"unknown cast policy", func(c *config.Config) { c.CastPolicy = "ensemble" }},
			{"negative window", func(c *config.Config) { c.TalentWindow = -1 }},
			{"zero trees", func(c *config.Config) { c.ModelTrees = 0 }},
			{"subsample over one", func(c *config.Config) { c.ModelSubsample = 1.5 }},
			{"test fraction of one", func(c *config.Config) { c.ModelTestFraction = 1 }},
			{"file without path", func(c *config.Config) { c.PriceIndexSource = "file" }},
			{"unknown index source", func(c *config.Config) { c.PriceIndexSource = "ftp" }},
			{"bls start before the series", func(c *config.Config) { c.BLSStartYear = 1900 }},
		}
		for _, tc := range cases {
			convey.Convey("When the config has "+tc.name, func() {
				c := *cfg
				tc.mutate(&c)

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					err := c.Validate()
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}
	})
}
