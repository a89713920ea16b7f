// Package explain attributes model outputs to input features with
// path-dependent TreeSHAP.
package explain

import (
	"context"
	"math"
	"sort"

	"github.com/okian/boxoffice/internal/domain/features"
	"github.com/okian/boxoffice/internal/domain/revenue"
	"github.com/okian/boxoffice/internal/domain/types"
)

// Explanation decomposes one log-scale prediction. Baseline is the
// expected model output over the training data.
type Explanation struct {
	Baseline      float64
	Output        float64
	Contributions []types.Contribution
}

// Residual is how far Baseline plus the contributions lands from Output.
func (e Explanation) Residual() float64 {
	sum := e.Baseline
	for _, c := range e.Contributions {
		sum += c.Contribution
	}
	return math.Abs(sum - e.Output)
}

// Explain returns one contribution per schema field, in schema order.
func Explain(a *revenue.Artifact, v features.Vector) (Explanation, error) {
	if err := a.Schema.Validate(v); err != nil {
		return Explanation{}, err
	}
	phi, baseline, err := Values(&a.Ensemble, v.Values)
	if err != nil {
		return Explanation{}, err
	}
	out, err := a.Ensemble.Predict(v.Values)
	if err != nil {
		return Explanation{}, err
	}
	contrib := make([]types.Contribution, len(phi))
	for i, p := range phi {
		contrib[i] = types.Contribution{Feature: v.Names[i], Value: v.Values[i], Contribution: p}
	}
	return Explanation{Baseline: baseline, Output: out, Contributions: contrib}, nil
}

// Summarize ranks features by mean absolute contribution over vectors,
// largest first. Ties keep schema order.
func Summarize(ctx context.Context, a *revenue.Artifact, vectors []features.Vector) ([]types.Importance, error) {
	names := a.Schema.Names()
	sums := make([]float64, len(names))
	for _, v := range vectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := a.Schema.Validate(v); err != nil {
			return nil, err
		}
		phi, _, err := Values(&a.Ensemble, v.Values)
		if err != nil {
			return nil, err
		}
		for i, p := range phi {
			sums[i] += math.Abs(p)
		}
	}
	out := make([]types.Importance, len(names))
	for i, name := range names {
		out[i] = types.Importance{Feature: name}
		if len(vectors) > 0 {
			out[i].MeanAbs = sums[i] / float64(len(vectors))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MeanAbs > out[j].MeanAbs })
	return out, nil
}
