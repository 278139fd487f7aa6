package gmc

import "github.com/sanonone/gmc/pkg/core/types"

// NeighborGraph is the fixed-sparsity similarity graph of one view: every
// sample owns a row of Width() = PN+1 entries.
//
// Entry 0 of a row is the sentinel, the (PN+1)-th nearest sample, whose
// distance normalizes the weights and whose weight is always 0. Entries
// 1..PN are the PN nearest samples by ascending distance. The index array is
// set once at construction; only weights change afterwards.
type NeighborGraph struct {
	samples int
	width   int

	index  []int
	weight []float64
	dist   []float64
	sums   []float64
}

func newNeighborGraph(samples, neighbors int) *NeighborGraph {
	width := neighbors + 1
	return &NeighborGraph{
		samples: samples,
		width:   width,
		index:   make([]int, samples*width),
		weight:  make([]float64, samples*width),
		dist:    make([]float64, samples*width),
		sums:    make([]float64, samples),
	}
}

// Samples returns the number of rows.
func (g *NeighborGraph) Samples() int { return g.samples }

// Neighbors returns PN.
func (g *NeighborGraph) Neighbors() int { return g.width - 1 }

// Width returns PN+1, the number of entries per row.
func (g *NeighborGraph) Width() int { return g.width }

// Indices returns the neighbor indices of row y, sentinel first. The slice
// aliases the graph and must not be modified.
func (g *NeighborGraph) Indices(y int) []int {
	return g.index[y*g.width : (y+1)*g.width]
}

// Weights returns the weights of row y, aligned with Indices(y). The slice
// aliases the graph.
func (g *NeighborGraph) Weights(y int) []float64 {
	return g.weight[y*g.width : (y+1)*g.width]
}

// Distances returns the squared distances of row y, aligned with Indices(y).
func (g *NeighborGraph) Distances(y int) []float64 {
	return g.dist[y*g.width : (y+1)*g.width]
}

// Row returns row y as (index, weight) pairs.
func (g *NeighborGraph) Row(y int) []types.Neighbor {
	idx, w := g.Indices(y), g.Weights(y)
	out := make([]types.Neighbor, g.width)
	for i := range out {
		out[i] = types.Neighbor{Index: idx[i], Weight: w[i]}
	}
	return out
}

// NewNeighborGraphFromRows rebuilds a graph from stored rows, e.g. a
// snapshot. Every row must have the same length. Distances are not
// restored.
func NewNeighborGraphFromRows(rows [][]types.Neighbor) *NeighborGraph {
	if len(rows) == 0 {
		return &NeighborGraph{}
	}
	g := newNeighborGraph(len(rows), len(rows[0])-1)
	for y, row := range rows {
		idx, w := g.Indices(y), g.Weights(y)
		for i, e := range row {
			idx[i] = e.Index
			w[i] = e.Weight
		}
	}
	return g
}
