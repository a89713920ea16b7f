// Package gbm implements gradient-boosted regression trees with squared loss.
package gbm

import (
	"fmt"
	"math"
)

// Node is one tree node. Left == -1 marks a leaf. Rows with
// x[Feature] < Threshold go left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"` // leaf output, learning rate applied
	Cover     float64 `json:"cover"` // training rows that reached the node
}

// IsLeaf reports whether n has no children.
func (n Node) IsLeaf() bool { return n.Left < 0 }

// Tree is a regression tree stored as a flat node slice rooted at 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Leaf returns the index of the leaf x lands in.
func (t Tree) Leaf(x []float64) int {
	i := 0
	for !t.Nodes[i].IsLeaf() {
		n := t.Nodes[i]
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// Predict returns the leaf value for x.
func (t Tree) Predict(x []float64) float64 {
	return t.Nodes[t.Leaf(x)].Value
}

// Depth is the number of edges on the longest root-to-leaf path.
func (t Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// Ensemble is a trained boosted model: Base plus the sum of tree outputs.
type Ensemble struct {
	Base     float64 `json:"base"`
	Features int     `json:"features"`
	Trees    []Tree  `json:"trees"`
}

// Predict scores one row.
func (e *Ensemble) Predict(x []float64) (float64, error) {
	if len(x) != e.Features {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrWidth, len(x), e.Features)
	}
	out := e.Base
	for _, t := range e.Trees {
		out += t.Predict(x)
	}
	return out, nil
}

// Validate checks the structure of a decoded ensemble.
func (e *Ensemble) Validate() error {
	if e.Features <= 0 {
		return fmt.Errorf("%w: %d features", ErrInvalidData, e.Features)
	}
	if math.IsNaN(e.Base) || math.IsInf(e.Base, 0) {
		return fmt.Errorf("%w: base %v", ErrInvalidData, e.Base)
	}
	for ti, t := range e.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("%w: tree %d is empty", ErrInvalidData, ti)
		}
		for ni, n := range t.Nodes {
			if n.IsLeaf() {
				continue
			}
			if n.Feature < 0 || n.Feature >= e.Features ||
				n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("%w: tree %d node %d is malformed", ErrInvalidData, ti, ni)
			}
		}
	}
	return nil
}
