// Package components finds the connected components of an undirected graph
// with an array based disjoint-set forest (union by rank, path compression).
//
// It is the final step of the clustering: every connected component of the
// symmetrized consensus graph is one cluster.
package components

import "gonum.org/v1/gonum/mat"

// DisjointSet is a forest over the integers [0, n). Parent relations are
// indices into the same arena, so the structure is trivially copyable.
type DisjointSet struct {
	parent []int
	rank   []int
}

// NewDisjointSet returns n singleton sets.
func NewDisjointSet(n int) *DisjointSet {
	ds := &DisjointSet{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range ds.parent {
		ds.parent[i] = i
	}
	return ds
}

// Len returns the number of elements.
func (ds *DisjointSet) Len() int { return len(ds.parent) }

// Find returns the root of x, compressing the path on the way.
func (ds *DisjointSet) Find(x int) int {
	root := x
	for ds.parent[root] != root {
		root = ds.parent[root]
	}
	for ds.parent[x] != root {
		next := ds.parent[x]
		ds.parent[x] = root
		x = next
	}
	return root
}

// Union merges the sets holding a and b and returns the new root.
func (ds *DisjointSet) Union(a, b int) int {
	ra, rb := ds.Find(a), ds.Find(b)
	if ra == rb {
		return ra
	}
	switch {
	case ds.rank[ra] < ds.rank[rb]:
		ds.parent[ra] = rb
		return rb
	case ds.rank[rb] < ds.rank[ra]:
		ds.parent[rb] = ra
		return ra
	default:
		ds.parent[rb] = ra
		ds.rank[ra]++
		return ra
	}
}

// Labels assigns a dense id to every root in first-encountered order
// (scanning elements 0..n-1) and returns the per-element ids and the number
// of distinct roots.
func (ds *DisjointSet) Labels() ([]int, int) {
	n := ds.Len()
	ids := make([]int, n)
	for i := range ids {
		ids[i] = -1
	}

	labels := make([]int, n)
	count := 0
	for i := 0; i < n; i++ {
		root := ds.Find(i)
		if ids[root] == -1 {
			ids[root] = count
			count++
		}
		labels[i] = ids[root]
	}
	return labels, count
}

// Edge is an undirected edge between two elements.
type Edge struct {
	A, B int
}

// FromEdges labels the components of the graph on n vertices given by edges.
// The labelling does not depend on the order of edges.
func FromEdges(n int, edges []Edge) ([]int, int) {
	ds := NewDisjointSet(n)
	for _, e := range edges {
		ds.Union(e.A, e.B)
	}
	return ds.Labels()
}

// FromAffinity labels the components of the graph with an edge (i, j)
// wherever u[i][j] != 0 or u[j][i] != 0. The count is reported as found, it
// may differ from any target cluster number.
func FromAffinity(u mat.Matrix) ([]int, int) {
	n, _ := u.Dims()
	ds := NewDisjointSet(n)
	for j := 0; j < n; j++ {
		for x := 0; x < j; x++ {
			if u.At(j, x) != 0 || u.At(x, j) != 0 {
				ds.Union(j, x)
			}
		}
	}
	return ds.Labels()
}
