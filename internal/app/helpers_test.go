package service_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	service "github.com/okian/boxoffice/internal/app"
	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/gbm"
	"github.com/okian/boxoffice/internal/domain/model"
	"github.com/okian/boxoffice/internal/domain/revenue"
	"github.com/okian/boxoffice/internal/synth"
	"github.com/okian/boxoffice/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func smallConfig() service.TrainConfig {
	cfg := service.DefaultTrainConfig()
	cfg.Params = gbm.Params{
		Trees: 40, LearningRate: 0.2, MaxDepth: 3, MinSamplesLeaf: 3,
		Lambda: 1, Subsample: 1, Colsample: 1, Seed: 11,
	}
	cfg.MinTrainingSize = 100
	cfg.ImportanceSample = 150
	return cfg
}

func catalog(t *testing.T, n int) ([]model.Release, []currency.Point) {
	t.Helper()
	cfg := synth.DefaultConfig()
	cfg.Releases = n
	cfg.Directors = 40
	cfg.Actors = 120
	rs, err := synth.Catalog(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return rs, synth.PriceIndex(cfg.StartYear, cfg.EndYear)
}

var (
	trainOnce sync.Once
	trainArt  *revenue.Artifact
	trainRep  service.TrainReport
	trainErr  error
)

// trained fits one shared artifact for the package's tests.
func trained(t *testing.T) (*revenue.Artifact, service.TrainReport) {
	t.Helper()
	trainOnce.Do(func() {
		releases, points := catalog(t, 400)
		p := service.NewPipeline(service.WithClock(func() time.Time { return fixedNow }))
		trainArt, trainRep, trainErr = p.Train(context.Background(), releases, points, smallConfig())
	})
	if trainErr != nil {
		t.Fatal(trainErr)
	}
	return trainArt, trainRep
}
