package gmc

import (
	"math"

	"github.com/sanonone/gmc/pkg/core/distance"
	"github.com/sanonone/gmc/pkg/core/topk"
	"github.com/sanonone/gmc/pkg/core/types"
	"gonum.org/v1/gonum/mat"
)

// BuildNeighborGraph builds the PN-neighbor graph of one view (samples are
// the rows of x) with the closed-form adaptive weights
//
//	w_i = (d_0 - d_i) / (PN*d_0 - sum(d_1..d_PN) + EPS),  w_0 = 0
//
// where d_0 is the distance to the (PN+1)-th nearest sample.
func BuildNeighborGraph(x *mat.Dense, neighbors int, pairwise distance.PairwiseFunc) *NeighborGraph {
	d := pairwise(x)
	n, _ := d.Dims()
	g := newNeighborGraph(n, neighbors)
	width := neighbors + 1

	initial := make([]types.Candidate, width)
	for y := 0; y < n; y++ {
		row := d.RawRowView(y)
		row[y] = math.Inf(1)

		for i := range initial {
			initial[i] = types.Candidate{Id: i, Distance: row[i]}
		}
		sel := topk.New(initial)
		for x := width; x < n; x++ {
			if row[x] < sel.Max().Distance {
				sel.Offer(types.Candidate{Id: x, Distance: row[x]})
			}
		}

		sorted := sel.Sorted()
		sentinel := sorted[neighbors]

		idx, w, ed := g.Indices(y), g.Weights(y), g.Distances(y)
		idx[0], ed[0] = sentinel.Id, sentinel.Distance

		var sum float64
		for i, c := range sorted[:neighbors] {
			idx[i+1], ed[i+1] = c.Id, c.Distance
			sum += c.Distance
		}
		g.sums[y] = sum

		denominator := float64(neighbors)*ed[0] - sum + EPS
		w[0] = 0
		for i := 1; i < width; i++ {
			w[i] = (ed[0] - ed[i]) / denominator
		}
	}
	return g
}

// InitConsensus averages the neighbor weights of all views into a dense
// samples x samples matrix and normalizes every row to sum to one. A row
// whose weights are all zero (every candidate at the same distance) is
// spread uniformly over its neighbors.
func InitConsensus(graphs []*NeighborGraph) *mat.Dense {
	m := float64(len(graphs))
	n := graphs[0].Samples()
	u := mat.NewDense(n, n, nil)

	for y := 0; y < n; y++ {
		row := u.RawRowView(y)
		var sum float64
		for _, g := range graphs {
			idx, w := g.Indices(y), g.Weights(y)
			for i := range idx {
				t := w[i] / m
				row[idx[i]] += t
				sum += t
			}
		}

		if sum > 0 {
			for x := range row {
				row[x] /= sum
			}
			continue
		}

		// Degenerate row: uniform over the true neighbors of every view.
		var count float64
		for _, g := range graphs {
			for _, x := range g.Indices(y)[1:] {
				if row[x] == 0 {
					row[x] = 1
					count++
				}
			}
		}
		for x := range row {
			row[x] /= count
		}
	}
	return u
}
