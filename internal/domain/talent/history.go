package talent

import (
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"
)

// History is one person's settled outcomes in a role, kept in an
// order-statistic treap keyed by (date, release ID). Every node carries its
// subtree size and revenue sum, so "how many outcomes precede a cutoff" and
// "what do the last K of them sum to" are O(log n).
//
// A History is built once and then only read; reads are safe for concurrent use.
type History struct {
	root *hnode
}

// treap node
type hnode struct {
	date      time.Time
	releaseID string
	revenue   float64
	prio      uint64
	left      *hnode
	right     *hnode
	size      int
	sum       float64
}

func hsize(n *hnode) int {
	if n == nil {
		return 0
	}
	return n.size
}

func hsum(n *hnode) float64 {
	if n == nil {
		return 0
	}
	return n.sum
}

func hfix(n *hnode) {
	if n != nil {
		n.size = 1 + hsize(n.left) + hsize(n.right)
		n.sum = n.revenue + hsum(n.left) + hsum(n.right)
	}
}

func hrotateRight(y *hnode) *hnode {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	hfix(y)
	hfix(x)
	return x
}

func hrotateLeft(x *hnode) *hnode {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	hfix(x)
	hfix(y)
	return y
}

// priority hashes the key so the tree shape depends only on the content,
// not on insertion order.
func priority(date time.Time, releaseID string) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(date.Unix()))
	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(releaseID)
	return d.Sum64()
}

func hinsert(n *hnode, date time.Time, releaseID string, revenue float64) *hnode {
	if n == nil {
		nn := &hnode{date: date, releaseID: releaseID, revenue: revenue, prio: priority(date, releaseID)}
		hfix(nn)
		return nn
	}
	if date.Equal(n.date) && releaseID == n.releaseID {
		n.revenue = revenue
		hfix(n)
		return n
	}
	if creditLess(date, releaseID, n.date, n.releaseID) {
		n.left = hinsert(n.left, date, releaseID, revenue)
		if n.left.prio > n.prio {
			n = hrotateRight(n)
		}
	} else {
		n.right = hinsert(n.right, date, releaseID, revenue)
		if n.right.prio > n.prio {
			n = hrotateLeft(n)
		}
	}
	hfix(n)
	return n
}

// countBefore returns the number of outcomes dated strictly before cutoff.
func countBefore(n *hnode, cutoff time.Time) int {
	count := 0
	for n != nil {
		if n.date.Before(cutoff) {
			count += hsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// prefixSum returns the revenue sum of the first k outcomes in key order.
func prefixSum(n *hnode, k int) float64 {
	var sum float64
	for n != nil && k > 0 {
		ls := hsize(n.left)
		if k <= ls {
			n = n.left
			continue
		}
		sum += hsum(n.left) + n.revenue
		k -= ls + 1
		n = n.right
	}
	return sum
}

// Add records a settled-able outcome. Re-adding a key replaces its revenue.
func (h *History) Add(c Credit) {
	if c.Revenue == nil {
		return
	}
	h.root = hinsert(h.root, c.Date, c.ReleaseID, *c.Revenue)
}

// Len is the number of outcomes held.
func (h *History) Len() int { return hsize(h.root) }

// ScoreAt returns the score a release dated at would receive under p: the
// mean over outcomes with date + settle strictly before at, restricted to the
// last p.Window of them when Window > 0.
func (h *History) ScoreAt(at time.Time, p Policy) Score {
	r := countBefore(h.root, at.Add(-p.settle()))
	if r == 0 {
		return NoHistory
	}
	lo := 0
	if p.Window > 0 && r > p.Window {
		lo = r - p.Window
	}
	n := r - lo
	sum := prefixSum(h.root, r) - prefixSum(h.root, lo)
	return Known(sum/float64(n), n)
}

// Credits returns the outcomes in key order.
func (h *History) Credits() []Credit {
	out := make([]Credit, 0, h.Len())
	var walk func(n *hnode)
	walk = func(n *hnode) {
		if n == nil {
			return
		}
		walk(n.left)
		rev := n.revenue
		out = append(out, Credit{ReleaseID: n.releaseID, Date: n.date, Revenue: &rev})
		walk(n.right)
	}
	walk(h.root)
	return out
}
