// Package revenue fits and applies the box office revenue model.
package revenue

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/features"
	"github.com/okian/boxoffice/internal/domain/gbm"
	"github.com/okian/boxoffice/internal/domain/talent"
)

// Default fitting configuration constants.
const (
	DefaultMinTrainingSize = 300
	DefaultTestFraction    = 0.2
)

// Option applies a configuration option to Fit.
type Option func(*fitOptions)

type fitOptions struct {
	minTrainingSize int
	testFraction    float64
	params          gbm.Params
	talent          []talent.Entry
	priceIndex      []currency.Point
	now             func() time.Time
}

// WithMinTrainingSize sets the smallest dataset Fit accepts.
func WithMinTrainingSize(n int) Option {
	return func(o *fitOptions) {
		if n > 1 {
			o.minTrainingSize = n
		}
	}
}

// WithTestFraction sets the share of rows held out for evaluation.
func WithTestFraction(f float64) Option {
	return func(o *fitOptions) {
		if f > 0 && f < 1 {
			o.testFraction = f
		}
	}
}

// WithParams sets the boosting parameters, including the seed.
func WithParams(p gbm.Params) Option {
	return func(o *fitOptions) {
		o.params = p
	}
}

// WithTalentSnapshot freezes the talent history into the artifact.
func WithTalentSnapshot(entries []talent.Entry) Option {
	return func(o *fitOptions) {
		o.talent = entries
	}
}

// WithPriceIndex freezes the price index into the artifact.
func WithPriceIndex(points []currency.Point) Option {
	return func(o *fitOptions) {
		o.priceIndex = points
	}
}

// WithClock overrides the artifact creation time source.
func WithClock(now func() time.Time) Option {
	return func(o *fitOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// Estimate is a point prediction on both scales.
type Estimate struct {
	LogRevenue float64
	Revenue    float64
}

// Fit trains on vectors and nominal-free (already adjusted) revenue targets.
// A seeded, disjoint test split is held out and reported.
func Fit(ctx context.Context, schema features.Schema, vectors []features.Vector, targets []float64, opts ...Option) (*Artifact, error) {
	o := fitOptions{
		minTrainingSize: DefaultMinTrainingSize,
		testFraction:    DefaultTestFraction,
		params:          gbm.DefaultParams(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if post := schema.PostReleaseFields(); len(post) > 0 {
		return nil, &features.SchemaMismatchError{
			Field:  post[0],
			Reason: "known only after release: " + strings.Join(post, ", "),
		}
	}
	if err := schema.Verify(); err != nil {
		return nil, err
	}
	if len(vectors) != len(targets) {
		return nil, fmt.Errorf("%w: %d vectors for %d targets", ErrInvalidTarget, len(vectors), len(targets))
	}
	if len(vectors) < o.minTrainingSize {
		return nil, &InsufficientDataError{Have: len(vectors), Need: o.minTrainingSize}
	}

	x := make([][]float64, len(vectors))
	y := make([]float64, len(targets))
	for i, v := range vectors {
		if err := schema.Validate(v); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		t := targets[i]
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return nil, fmt.Errorf("%w: row %d is %v", ErrInvalidTarget, i, t)
		}
		x[i] = v.Values
		y[i] = Transform(t)
	}

	train, test := split(len(x), o.testFraction, o.params.Seed)
	xTrain, yTrain := gather(x, y, train)
	ens, err := gbm.Train(ctx, xTrain, yTrain, o.params)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	eval := Evaluation{TrainRows: len(train), TestRows: len(test)}
	logTruth := make([]float64, len(test))
	logPred := make([]float64, len(test))
	truth := make([]float64, len(test))
	pred := make([]float64, len(test))
	for k, i := range test {
		p, err := ens.Predict(x[i])
		if err != nil {
			return nil, err
		}
		logTruth[k], logPred[k] = y[i], p
		truth[k], pred[k] = targets[i], Inverse(p)
	}
	eval.R2Log = R2(logTruth, logPred)
	eval.R2 = R2(truth, pred)
	eval.MAE = MAE(truth, pred)
	eval.RMSE = RMSE(truth, pred)

	return &Artifact{
		ID:            uuid.NewString(),
		CreatedAt:     o.now().UTC(),
		FormatVersion: FormatVersion,
		Schema:        schema,
		Ensemble:      *ens,
		Params:        o.params,
		TestFraction:  o.testFraction,
		Evaluation:    eval,
		Talent:        o.talent,
		PriceIndex:    o.priceIndex,
	}, nil
}

// Predict scores v with a's frozen model and returns the back-transformed revenue.
func Predict(a *Artifact, v features.Vector) (Estimate, error) {
	if err := a.Schema.Validate(v); err != nil {
		return Estimate{}, err
	}
	z, err := a.Ensemble.Predict(v.Values)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{LogRevenue: z, Revenue: Inverse(z)}, nil
}

// split returns disjoint, sorted train and test row indices.
func split(n int, testFraction float64, seed int64) (train, test []int) {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible split, not security
	perm := rng.Perm(n)
	nTest := int(math.Round(testFraction * float64(n)))
	nTest = min(n-1, max(1, nTest))
	test = append(test, perm[:nTest]...)
	train = append(train, perm[nTest:]...)
	sort.Ints(test)
	sort.Ints(train)
	return train, test
}

func gather(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	gx := make([][]float64, len(idx))
	gy := make([]float64, len(idx))
	for k, i := range idx {
		gx[k], gy[k] = x[i], y[i]
	}
	return gx, gy
}
