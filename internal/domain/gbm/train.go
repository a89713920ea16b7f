package gbm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Default boosting parameters.
const (
	defaultTrees          = 300
	defaultLearningRate   = 0.05
	defaultMaxDepth       = 5
	defaultSubsample      = 0.8
	defaultColsample      = 0.8
	defaultMinSamplesLeaf = 1
	defaultLambda         = 1.0
	defaultSeed           = 42
)

// Params configures training.
type Params struct {
	Trees          int     `json:"trees"`
	LearningRate   float64 `json:"learning_rate"`
	MaxDepth       int     `json:"max_depth"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	Lambda         float64 `json:"lambda"`
	Subsample      float64 `json:"subsample"`
	Colsample      float64 `json:"colsample"`
	Seed           int64   `json:"seed"`
}

// DefaultParams returns the standard configuration.
func DefaultParams() Params {
	return Params{
		Trees:          defaultTrees,
		LearningRate:   defaultLearningRate,
		MaxDepth:       defaultMaxDepth,
		MinSamplesLeaf: defaultMinSamplesLeaf,
		Lambda:         defaultLambda,
		Subsample:      defaultSubsample,
		Colsample:      defaultColsample,
		Seed:           defaultSeed,
	}
}

// Validate rejects parameters training cannot honor.
func (p Params) Validate() error {
	switch {
	case p.Trees < 1:
		return fmt.Errorf("%w: trees %d", ErrInvalidParams, p.Trees)
	case !(p.LearningRate > 0 && p.LearningRate <= 1):
		return fmt.Errorf("%w: learning rate %v", ErrInvalidParams, p.LearningRate)
	case p.MaxDepth < 1:
		return fmt.Errorf("%w: max depth %d", ErrInvalidParams, p.MaxDepth)
	case p.MinSamplesLeaf < 1:
		return fmt.Errorf("%w: min samples leaf %d", ErrInvalidParams, p.MinSamplesLeaf)
	case !(p.Lambda >= 0):
		return fmt.Errorf("%w: lambda %v", ErrInvalidParams, p.Lambda)
	case !(p.Subsample > 0 && p.Subsample <= 1):
		return fmt.Errorf("%w: subsample %v", ErrInvalidParams, p.Subsample)
	case !(p.Colsample > 0 && p.Colsample <= 1):
		return fmt.Errorf("%w: colsample %v", ErrInvalidParams, p.Colsample)
	}
	return nil
}

// Train fits an ensemble to rows x and targets y by squared-error boosting.
// Every random choice comes from p.Seed, so equal inputs give equal models.
func Train(ctx context.Context, x [][]float64, y []float64, p Params) (*Ensemble, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	width, err := checkData(x, y)
	if err != nil {
		return nil, err
	}
	n := len(x)

	var base float64
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	// rows sorted by each feature, ties by row index
	sorted := make([][]int, width)
	for f := 0; f < width; f++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]][f] < x[idx[b]][f] })
		sorted[f] = idx
	}

	rng := rand.New(rand.NewSource(p.Seed)) //nolint:gosec // reproducible sampling, not security
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	grad := make([]float64, n)
	inSample := make([]bool, n)

	e := &Ensemble{Base: base, Features: width, Trees: make([]Tree, 0, p.Trees)}
	b := &builder{x: x, grad: grad, p: p, goLeft: make([]bool, n)}
	for t := 0; t < p.Trees; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range grad {
			grad[i] = pred[i] - y[i]
		}

		rows := sampleCount(n, p.Subsample)
		for i := range inSample {
			inSample[i] = false
		}
		for _, i := range rng.Perm(n)[:rows] {
			inSample[i] = true
		}
		cols := rng.Perm(width)[:sampleCount(width, p.Colsample)]
		sort.Ints(cols)

		lists := make([][]int, len(cols))
		for k, f := range cols {
			l := make([]int, 0, rows)
			for _, i := range sorted[f] {
				if inSample[i] {
					l = append(l, i)
				}
			}
			lists[k] = l
		}

		b.nodes = nil
		b.build(lists, cols, 0)
		tree := Tree{Nodes: b.nodes}
		e.Trees = append(e.Trees, tree)
		for i := range pred {
			pred[i] += tree.Predict(x[i])
		}
	}
	return e, nil
}

func checkData(x [][]float64, y []float64) (int, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("%w: no rows", ErrInvalidData)
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d rows for %d targets", ErrInvalidData, len(x), len(y))
	}
	width := len(x[0])
	if width == 0 {
		return 0, fmt.Errorf("%w: no features", ErrInvalidData)
	}
	for i, row := range x {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrWidth, i, len(row), width)
		}
		for f, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: row %d feature %d is %v", ErrInvalidData, i, f, v)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return 0, fmt.Errorf("%w: target %d is %v", ErrInvalidData, i, y[i])
		}
	}
	return width, nil
}

func sampleCount(n int, frac float64) int {
	k := int(math.Round(frac * float64(n)))
	return min(n, max(1, k))
}

// builder grows one tree by exact greedy search over presorted row lists.
type builder struct {
	x      [][]float64
	grad   []float64
	p      Params
	nodes  []Node
	goLeft []bool
}

type split struct {
	gain      float64
	list      int // position in lists/cols
	pos       int // rows [0, pos) of the list go left
	threshold float64
}

// build adds the subtree over the rows in lists (one sorted list per column
// in cols, all holding the same rows) and returns its root index.
func (b *builder) build(lists [][]int, cols []int, depth int) int {
	rows := lists[0]
	var g float64
	for _, i := range rows {
		g += b.grad[i]
	}
	h := float64(len(rows))

	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Left:  -1,
		Right: -1,
		Value: -g / (h + b.p.Lambda) * b.p.LearningRate,
		Cover: h,
	})

	if depth >= b.p.MaxDepth || len(rows) < 2*b.p.MinSamplesLeaf {
		return idx
	}
	best, ok := b.bestSplit(lists, cols, g, h)
	if !ok {
		return idx
	}

	for k, i := range lists[best.list] {
		b.goLeft[i] = k < best.pos
	}
	left := make([][]int, len(lists))
	right := make([][]int, len(lists))
	for k, l := range lists {
		ll := make([]int, 0, best.pos)
		rl := make([]int, 0, len(l)-best.pos)
		for _, i := range l {
			if b.goLeft[i] {
				ll = append(ll, i)
			} else {
				rl = append(rl, i)
			}
		}
		left[k], right[k] = ll, rl
	}

	l := b.build(left, cols, depth+1)
	r := b.build(right, cols, depth+1)
	b.nodes[idx].Feature = cols[best.list]
	b.nodes[idx].Threshold = best.threshold
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}

func (b *builder) bestSplit(lists [][]int, cols []int, g, h float64) (split, bool) {
	lambda := b.p.Lambda
	minLeaf := b.p.MinSamplesLeaf
	parent := g * g / (h + lambda)
	best := split{gain: 0}
	found := false
	for k, l := range lists {
		f := cols[k]
		var gl float64
		for pos := 1; pos < len(l); pos++ {
			gl += b.grad[l[pos-1]]
			lo, hi := b.x[l[pos-1]][f], b.x[l[pos]][f]
			if lo == hi {
				continue
			}
			nl := pos
			nr := len(l) - pos
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			hl, hr := float64(nl), float64(nr)
			gr := g - gl
			gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
			if gain > best.gain+1e-12 {
				thr := lo + (hi-lo)/2
				if thr <= lo {
					thr = hi
				}
				best = split{gain: gain, list: k, pos: pos, threshold: thr}
				found = true
			}
		}
	}
	return best, found
}
