package components

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func twoTriangles() []Edge {
	return []Edge{
		{0, 1}, {1, 2}, {2, 0},
		{3, 4}, {4, 5}, {5, 3},
	}
}

func TestFromEdgesTwoTriangles(t *testing.T) {
	labels, count := FromEdges(6, twoTriangles())
	require.Equal(t, 2, count)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, labels)
}

func TestFromEdgesOrderInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for trial := 0; trial < 50; trial++ {
		edges := twoTriangles()
		rng.Shuffle(len(edges), func(i, j int) { edges[i], edges[j] = edges[j], edges[i] })
		for i := range edges {
			if rng.Intn(2) == 0 {
				edges[i].A, edges[i].B = edges[i].B, edges[i].A
			}
		}

		labels, count := FromEdges(6, edges)
		require.Equal(t, 2, count)
		assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, labels)
	}
}

func TestFromAffinityAsymmetric(t *testing.T) {
	// Only one direction of each edge is set; the OR symmetrization still
	// connects the triangles.
	u := mat.NewDense(6, 6, nil)
	u.Set(0, 1, 0.5)
	u.Set(2, 1, 0.3)
	u.Set(3, 4, 0.9)
	u.Set(5, 3, 0.1)

	labels, count := FromAffinity(u)
	require.Equal(t, 2, count)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, labels)
}

func TestFromAffinityReportsTrueCount(t *testing.T) {
	u := mat.NewDense(4, 4, nil)
	u.Set(0, 3, 1)
	labels, count := FromAffinity(u)
	assert.Equal(t, 3, count)
	assert.Equal(t, []int{0, 1, 2, 0}, labels)
}

func TestDisjointSetUnionByRank(t *testing.T) {
	ds := NewDisjointSet(8)
	for i := 1; i < 8; i++ {
		ds.Union(0, i)
	}
	root := ds.Find(7)
	for i := 0; i < 8; i++ {
		assert.Equal(t, root, ds.Find(i))
	}
	assert.LessOrEqual(t, ds.rank[root], 1)
}
