package gbm_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/okian/boxoffice/internal/domain/gbm"
	. "github.com/smartystreets/goconvey/convey"
)

func stepData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic test data
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		a, b, noise := rng.Float64()*10, rng.Float64(), rng.Float64()
		x[i] = []float64{a, b, noise}
		y[i] = 2*a + 5
		if b > 0.5 {
			y[i] += 10
		}
	}
	return x, y
}

func mse(e *gbm.Ensemble, x [][]float64, y []float64) float64 {
	var s float64
	for i := range x {
		p, err := e.Predict(x[i])
		if err != nil {
			return math.Inf(1)
		}
		s += (p - y[i]) * (p - y[i])
	}
	return s / float64(len(x))
}

func TestTrain(t *testing.T) {
	ctx := context.Background()

	Convey("Given a piecewise-linear target", t, func() {
		x, y := stepData(400, 1)
		p := gbm.DefaultParams()
		p.Trees = 120
		p.LearningRate = 0.1

		Convey("When an ensemble is trained", func() {
			e, err := gbm.Train(ctx, x, y, p)

			Convey("Then it fits far better than the mean", func() {
				So(err, ShouldBeNil)
				So(e.Trees, ShouldHaveLength, 120)
				So(e.Validate(), ShouldBeNil)

				var mean, variance float64
				for _, v := range y {
					mean += v
				}
				mean /= float64(len(y))
				So(e.Base, ShouldAlmostEqual, mean, 1e-9)
				for _, v := range y {
					variance += (v - mean) * (v - mean)
				}
				variance /= float64(len(y))
				So(mse(e, x, y), ShouldBeLessThan, variance*0.05)
			})

			Convey("Then trees respect the depth limit and covers add up", func() {
				for _, tr := range e.Trees {
					So(tr.Depth(), ShouldBeLessThanOrEqualTo, p.MaxDepth)
					So(tr.Nodes[0].Cover, ShouldEqual, 320)
					for _, n := range tr.Nodes {
						if !n.IsLeaf() {
							So(tr.Nodes[n.Left].Cover+tr.Nodes[n.Right].Cover, ShouldEqual, n.Cover)
						}
					}
				}
			})

			Convey("Then training again with the same seed gives the same model", func() {
				again, err := gbm.Train(ctx, x, y, p)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, e)
			})

			Convey("Then a different seed gives a different model", func() {
				p.Seed = 7
				other, err := gbm.Train(ctx, x, y, p)
				So(err, ShouldBeNil)
				So(other, ShouldNotResemble, e)
			})
		})
	})

	Convey("Given min samples per leaf", t, func() {
		x, y := stepData(100, 2)
		p := gbm.DefaultParams()
		p.Trees = 5
		p.MinSamplesLeaf = 20
		p.Subsample = 1
		e, err := gbm.Train(ctx, x, y, p)

		Convey("Then no leaf covers fewer rows", func() {
			So(err, ShouldBeNil)
			for _, tr := range e.Trees {
				for _, n := range tr.Nodes {
					if n.IsLeaf() {
						So(n.Cover, ShouldBeGreaterThanOrEqualTo, 20)
					}
				}
			}
		})
	})

	Convey("Given a constant target", t, func() {
		x, _ := stepData(50, 3)
		y := make([]float64, len(x))
		for i := range y {
			y[i] = 4
		}
		p := gbm.DefaultParams()
		p.Trees = 3
		e, err := gbm.Train(ctx, x, y, p)

		Convey("Then every tree is a single zero leaf", func() {
			So(err, ShouldBeNil)
			for _, tr := range e.Trees {
				So(tr.Nodes, ShouldHaveLength, 1)
				So(tr.Nodes[0].Value, ShouldAlmostEqual, 0, 1e-15)
			}
			pred, _ := e.Predict(x[0])
			So(pred, ShouldEqual, 4)
		})
	})

	Convey("Given bad input", t, func() {
		x, y := stepData(10, 4)

		Convey("Then mismatched lengths are rejected", func() {
			_, err := gbm.Train(ctx, x, y[:5], gbm.DefaultParams())
			So(errors.Is(err, gbm.ErrInvalidData), ShouldBeTrue)
		})

		Convey("Then ragged rows are rejected", func() {
			x[3] = x[3][:2]
			_, err := gbm.Train(ctx, x, y, gbm.DefaultParams())
			So(errors.Is(err, gbm.ErrWidth), ShouldBeTrue)
		})

		Convey("Then NaN features are rejected", func() {
			x[1][0] = math.NaN()
			_, err := gbm.Train(ctx, x, y, gbm.DefaultParams())
			So(errors.Is(err, gbm.ErrInvalidData), ShouldBeTrue)
		})

		Convey("Then invalid params are rejected", func() {
			p := gbm.DefaultParams()
			p.Subsample = 0
			_, err := gbm.Train(ctx, x, y, p)
			So(errors.Is(err, gbm.ErrInvalidParams), ShouldBeTrue)
		})

		Convey("Then a cancelled context stops training", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := gbm.Train(cctx, x, y, gbm.DefaultParams())
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestEnsemble(t *testing.T) {
	Convey("Given a hand-built ensemble", t, func() {
		e := &gbm.Ensemble{
			Base:     1,
			Features: 2,
			Trees: []gbm.Tree{{Nodes: []gbm.Node{
				{Feature: 1, Threshold: 0.5, Left: 1, Right: 2, Cover: 10},
				{Left: -1, Right: -1, Value: -2, Cover: 4},
				{Left: -1, Right: -1, Value: 3, Cover: 6},
			}}},
		}

		Convey("Then rows below the threshold go left", func() {
			p, err := e.Predict([]float64{9, 0.4})
			So(err, ShouldBeNil)
			So(p, ShouldEqual, -1)
			p, _ = e.Predict([]float64{9, 0.5})
			So(p, ShouldEqual, 4)
		})

		Convey("Then the wrong width is rejected", func() {
			_, err := e.Predict([]float64{1})
			So(errors.Is(err, gbm.ErrWidth), ShouldBeTrue)
		})

		Convey("Then a node pointing backwards is malformed", func() {
			e.Trees[0].Nodes[0].Left = 0
			So(errors.Is(e.Validate(), gbm.ErrInvalidData), ShouldBeTrue)
		})
	})
}
