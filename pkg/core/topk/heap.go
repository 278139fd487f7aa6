// Package topk provides a bounded selector that keeps the k smallest
// candidates seen in a stream.
//
// The selector is a max-heap built on Go's standard container/heap package:
// the root is the "worst of the best", so a new candidate only has to be
// compared with the root and, when smaller, replaces it in O(log k).
package topk

import (
	"container/heap"
	"sort"

	"github.com/sanonone/gmc/pkg/core/types"
)

// maxHeap is a max-heap of candidates, ordered by distance. The candidate
// with the largest distance is always at the top.
type maxHeap []types.Candidate

// Len returns the size of the heap.
func (h maxHeap) Len() int { return len(h) }

// Less gives a larger distance a higher priority. Ties are broken by index so
// that the heap content does not depend on insertion order.
func (h maxHeap) Less(i, j int) bool {
	if h[i].Distance != h[j].Distance {
		return h[i].Distance > h[j].Distance
	}
	return h[i].Id > h[j].Id
}

// Swap swaps the elements at indices i and j.
func (h maxHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push adds an element to the heap.
func (h *maxHeap) Push(x any) { *h = append(*h, x.(types.Candidate)) }

// Pop removes and returns the element with the largest distance.
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Selector keeps the k smallest candidates offered to it. The capacity is
// fixed by the initial set passed to New; it never grows or shrinks.
// Behaviour is undefined for k = 0.
type Selector struct {
	h maxHeap
}

// New builds a selector from the initial k candidates in O(k).
// The slice is copied.
func New(initial []types.Candidate) *Selector {
	h := make(maxHeap, len(initial))
	copy(h, initial)
	heap.Init(&h)
	return &Selector{h: h}
}

// Offer replaces the current maximum with c when c is strictly smaller, and
// reports whether the held set changed.
func (s *Selector) Offer(c types.Candidate) bool {
	if !s.h.less(c, s.h[0]) {
		return false
	}
	s.h[0] = c
	heap.Fix(&s.h, 0)
	return true
}

// Max returns the largest of the held candidates.
func (s *Selector) Max() types.Candidate { return s.h[0] }

// Len returns k.
func (s *Selector) Len() int { return len(s.h) }

// Sorted returns a copy of the held candidates in ascending distance order.
func (s *Selector) Sorted() []types.Candidate {
	out := make([]types.Candidate, len(s.h))
	copy(out, s.h)
	sort.Slice(out, func(i, j int) bool { return s.h.less(out[i], out[j]) })
	return out
}

// less is the ascending order used by Offer and Sorted: distance first, then index.
func (maxHeap) less(a, b types.Candidate) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Id < b.Id
}
