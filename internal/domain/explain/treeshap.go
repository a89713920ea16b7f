package explain

import (
	"fmt"

	"github.com/okian/boxoffice/internal/domain/gbm"
)

// pathElement is one split feature on the current root-to-node path.
// zero is the share of training cover that flows along the path when the
// feature is unknown, one whether x itself follows it.
type pathElement struct {
	feature int
	zero    float64
	one     float64
	weight  float64
}

// Values returns the per-feature contributions of x to e's raw output and the
// cover-weighted expected output. Baseline plus the sum of the contributions
// equals e.Predict(x) up to rounding.
func Values(e *gbm.Ensemble, x []float64) (phi []float64, baseline float64, err error) {
	if len(x) != e.Features {
		return nil, 0, fmt.Errorf("%w: got %d values, want %d", gbm.ErrWidth, len(x), e.Features)
	}
	phi = make([]float64, e.Features)
	baseline = e.Base
	for ti := range e.Trees {
		t := &e.Trees[ti]
		if len(t.Nodes) == 0 {
			continue
		}
		w := walker{tree: t, x: x, phi: phi}
		w.recurse(0, nil, 1, 1, -1)
		if w.err != nil {
			return nil, 0, fmt.Errorf("tree %d: %w", ti, w.err)
		}
		baseline += expected(t)
	}
	return phi, baseline, nil
}

// expected is the tree output averaged over its training cover.
func expected(t *gbm.Tree) float64 {
	root := t.Nodes[0].Cover
	if root <= 0 {
		return 0
	}
	var sum float64
	for _, n := range t.Nodes {
		if n.IsLeaf() {
			sum += n.Cover / root * n.Value
		}
	}
	return sum
}

type walker struct {
	tree *gbm.Tree
	x    []float64
	phi  []float64
	err  error
}

func (w *walker) recurse(node int, parent []pathElement, zero, one float64, feature int) {
	if w.err != nil {
		return
	}
	depth := len(parent)
	path := make([]pathElement, depth+1)
	copy(path, parent)
	extend(path, depth, zero, one, feature)

	n := w.tree.Nodes[node]
	if n.IsLeaf() {
		for i := 1; i <= depth; i++ {
			el := path[i]
			w.phi[el.feature] += unwoundSum(path, depth, i) * (el.one - el.zero) * n.Value
		}
		return
	}
	if n.Cover <= 0 {
		w.err = fmt.Errorf("%w: node %d has no cover", gbm.ErrInvalidData, node)
		return
	}

	hot, cold := n.Left, n.Right
	if !(w.x[n.Feature] < n.Threshold) {
		hot, cold = cold, hot
	}

	inZero, inOne := 1.0, 1.0
	for k := 0; k <= depth; k++ {
		if path[k].feature == n.Feature {
			inZero, inOne = path[k].zero, path[k].one
			unwind(path, depth, k)
			path = path[:depth]
			break
		}
	}

	hotZero := w.tree.Nodes[hot].Cover / n.Cover
	coldZero := w.tree.Nodes[cold].Cover / n.Cover
	w.recurse(hot, path, hotZero*inZero, inOne, n.Feature)
	w.recurse(cold, path, coldZero*inZero, 0, n.Feature)
}

// extend grows the permutation weights of path[:depth] by one element.
func extend(path []pathElement, depth int, zero, one float64, feature int) {
	path[depth] = pathElement{feature: feature, zero: zero, one: one}
	if depth == 0 {
		path[depth].weight = 1
	}
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / d
		path[i].weight = zero * path[i].weight * float64(depth-i) / d
	}
}

// unwind undoes extend for the element at index k of path[:depth+1].
func unwind(path []pathElement, depth, k int) {
	one, zero := path[k].one, path[k].zero
	next := path[depth].weight
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * d / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/d
		} else {
			path[i].weight = path[i].weight * d / (zero * float64(depth-i))
		}
	}
	for i := k; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

// unwoundSum is the total weight path would have with element k removed.
func unwoundSum(path []pathElement, depth, k int) float64 {
	one, zero := path[k].one, path[k].zero
	next := path[depth].weight
	d := float64(depth + 1)
	var total float64
	for i := depth - 1; i >= 0; i-- {
		switch {
		case one != 0:
			tmp := next * d / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(depth-i)/d
		case zero != 0:
			total += path[i].weight / zero / (float64(depth-i) / d)
		}
	}
	return total
}
