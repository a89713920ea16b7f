package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/boxoffice/internal/adapters/mq/worker"
	service "github.com/okian/boxoffice/internal/app"
	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/model"
	"github.com/okian/boxoffice/internal/domain/revenue"
	"github.com/okian/boxoffice/internal/synth"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPipeline_Train(t *testing.T) {
	Convey("Given a trained synthetic catalog", t, func() {
		art, report := trained(t)

		Convey("Then every stage ran and the rows were kept", func() {
			So(report.Input, ShouldEqual, 400)
			So(report.Rows, ShouldEqual, 400)
			So(report.Stages, ShouldContainKey, service.StageClean)
			So(report.Stages, ShouldContainKey, service.StageSummarize)
			So(report.Genres, ShouldEqual, len(art.Schema.Genres))
		})

		Convey("Then the artifact is complete and learned something", func() {
			So(art.Validate(), ShouldBeNil)
			So(art.CreatedAt, ShouldEqual, fixedNow)
			So(art.Evaluation.TrainRows+art.Evaluation.TestRows, ShouldEqual, 400)
			So(art.Evaluation.R2Log, ShouldBeGreaterThan, 0.3)
			So(art.Talent, ShouldNotBeEmpty)
			So(art.PriceIndex, ShouldHaveLength, 25)
			So(art.Schema.PostReleaseFields(), ShouldBeEmpty)
		})

		Convey("Then importance covers every feature, largest first", func() {
			So(art.Importance, ShouldHaveLength, art.Schema.Width())
			for i := 1; i < len(art.Importance); i++ {
				So(art.Importance[i-1].MeanAbs, ShouldBeGreaterThanOrEqualTo, art.Importance[i].MeanAbs)
			}
			So(art.Importance[0].Feature, ShouldEqual, "budget_adj")
		})
	})

	Convey("Given the same catalog on the worker pool and in shuffled order", t, func() {
		releases, points := catalog(t, 150)
		cfg := smallConfig()

		ctx := context.Background()
		pool := worker.NewPool(4, 32)
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(ctx) }()

		reversed := make([]model.Release, len(releases))
		for i, r := range releases {
			reversed[len(releases)-1-i] = r
		}

		a, _, errA := service.NewPipeline().Train(ctx, releases, points, cfg)
		b, _, errB := service.NewPipeline(service.WithRunner(pool)).Train(ctx, reversed, points, cfg)

		Convey("Then the fitted model is identical", func() {
			So(errA, ShouldBeNil)
			So(errB, ShouldBeNil)
			So(b.Schema, ShouldResemble, a.Schema)
			So(b.Ensemble, ShouldResemble, a.Ensemble)
			So(b.Talent, ShouldResemble, a.Talent)
			So(b.Evaluation, ShouldResemble, a.Evaluation)
		})
	})

	Convey("Given raw records that break the cleaning rules", t, func() {
		releases, points := catalog(t, 150)
		dup := releases[0]
		lowBudget := releases[1]
		lowBudget.ID = "low-budget"
		lowBudget.Budget.Amount = 5_000
		noRevenue := releases[2]
		noRevenue.ID = "no-revenue"
		noRevenue.Revenue = nil
		input := append(append([]model.Release{}, releases...), dup, lowBudget, noRevenue)

		_, report, err := service.NewPipeline().Train(context.Background(), input, points, smallConfig())

		Convey("Then they are dropped with a reason and training proceeds", func() {
			So(err, ShouldBeNil)
			So(report.Duplicates, ShouldEqual, 1)
			So(report.Rejected[model.RejectDuplicate], ShouldEqual, 1)
			So(report.Rejected[model.RejectLowBudget], ShouldEqual, 1)
			So(report.Rejected[model.RejectMissingRevenue], ShouldEqual, 1)
			So(report.Rows, ShouldEqual, 150)
		})
	})

	Convey("Given a price index that starts after the first release", t, func() {
		releases, _ := catalog(t, 150)
		_, _, err := service.NewPipeline().Train(context.Background(), releases, synth.PriceIndex(2010, 2024), smallConfig())

		Convey("Then training fails naming the year", func() {
			So(errors.Is(err, currency.ErrOutOfRange), ShouldBeTrue)
			var oor *currency.OutOfRangeError
			So(errors.As(err, &oor), ShouldBeTrue)
			So(oor.Year, ShouldBeLessThan, 2010)
		})
	})

	Convey("Given fewer rows than the minimum", t, func() {
		releases, points := catalog(t, 60)
		_, _, err := service.NewPipeline().Train(context.Background(), releases, points, smallConfig())

		Convey("Then training reports insufficient data", func() {
			So(errors.Is(err, revenue.ErrInsufficientData), ShouldBeTrue)
		})
	})

	Convey("Given a cancelled context", t, func() {
		releases, points := catalog(t, 150)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := service.NewPipeline().Train(ctx, releases, points, smallConfig())

		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}
