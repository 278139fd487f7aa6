// Package distance provides pairwise squared Euclidean distance kernels.
//
// A kernel takes an n x d matrix whose rows are samples and returns the dense,
// symmetric n x n matrix of squared distances between rows. Two kernels are
// registered in a catalog and selected by name:
//
//   - Gram: uses the identity ||a-b||^2 = ||a||^2 + ||b||^2 - 2 a.b with a single
//     symmetric rank-k update (gonum SymOuterK, BLAS dsyrk) for the dot products.
//     Only the upper triangle is computed and mirrored.
//   - Direct: the reference double loop over row differences.
package distance

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Kernel names a pairwise distance implementation.
type Kernel string

const (
	// Gram computes distances through the Gram matrix of the samples.
	Gram Kernel = "gram"
	// Direct computes every distance from the row differences.
	Direct Kernel = "direct"
)

// PairwiseFunc computes the n x n squared distance matrix between the rows of x.
type PairwiseFunc func(x *mat.Dense) *mat.Dense

// RankUpdater computes x * x^T into a symmetric matrix. The linear algebra
// provider satisfies it, so callers can route the multiply through the same
// backend used for eigen-decomposition.
type RankUpdater interface {
	SymRankK(x mat.Matrix) *mat.SymDense
}

// gonumRankUpdater is the default backend for the Gram kernel.
type gonumRankUpdater struct{}

func (gonumRankUpdater) SymRankK(x mat.Matrix) *mat.SymDense {
	n, _ := x.Dims()
	s := mat.NewSymDense(n, nil)
	s.SymOuterK(1, x)
	return s
}

// kernels maps a kernel name to its implementation.
var kernels = map[Kernel]PairwiseFunc{
	Gram:   func(x *mat.Dense) *mat.Dense { return PairwiseGram(x, gonumRankUpdater{}) },
	Direct: PairwiseDirect,
}

// GetPairwiseFunc returns the kernel registered under name.
func GetPairwiseFunc(name Kernel) (PairwiseFunc, error) {
	fn, ok := kernels[name]
	if !ok {
		return nil, fmt.Errorf("distance kernel '%s' not supported", name)
	}
	return fn, nil
}

// PairwiseSquared is the default kernel (Gram).
func PairwiseSquared(x *mat.Dense) *mat.Dense {
	return PairwiseGram(x, gonumRankUpdater{})
}

// PairwiseGram computes squared distances with the Gram identity. The diagonal
// is forced to 0; off-diagonal values are left exactly as computed, so tiny
// negative values produced by cancellation are not clamped.
func PairwiseGram(x *mat.Dense, rk RankUpdater) *mat.Dense {
	n, _ := x.Dims()

	// Squared norm of every sample.
	ssq := make([]float64, n)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		ssq[i] = floats.Dot(row, row)
	}

	g := rk.SymRankK(x)

	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := ssq[i] + ssq[j] - 2.0*g.At(i, j)
			d.Set(i, j, v)
			d.Set(j, i, v)
		}
	}
	return d
}

// PairwiseDirect is the reference implementation.
func PairwiseDirect(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a := x.RawRowView(i)
		for j := i + 1; j < n; j++ {
			v := SquaredEuclidean(a, x.RawRowView(j))
			d.Set(i, j, v)
			d.Set(j, i, v)
		}
	}
	return d
}

// SquaredEuclidean returns ||a-b||^2. It panics when the lengths differ.
func SquaredEuclidean(a, b []float64) float64 {
	if len(a) != len(b) {
		panic("distance: vectors must have the same length")
	}
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}
