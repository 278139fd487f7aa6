// Package linalg is the linear algebra boundary of the clustering engine.
//
// Provider is the contract the optimizer consumes: the smallest eigenpairs of
// a symmetric matrix, the Frobenius norm, and a symmetric rank-k multiply.
// Gonum implements it on top of gonum.org/v1/gonum/mat (LAPACK dsyev and BLAS
// dsyrk ports). Group (collective.go) runs the eigen-decomposition as a
// collective call across a fixed set of participants.
package linalg

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEigenFailed is returned when the factorization does not converge.
	ErrEigenFailed = errors.New("linalg: symmetric eigen-decomposition failed")
	// ErrInvalidRank is returned when more eigenpairs are requested than the
	// matrix has.
	ErrInvalidRank = errors.New("linalg: invalid number of eigenpairs")
)

// Provider is the set of dense primitives the optimizer relies on. Every call
// must be deterministic: the same input yields the same output on every
// participant.
type Provider interface {
	// SmallestEigen returns the k smallest eigenvalues of a in ascending order
	// and the matching eigenvectors as the columns of an n x k matrix.
	SmallestEigen(a *mat.SymDense, k int) ([]float64, *mat.Dense, error)
	// FrobeniusNorm returns sqrt(sum(a_ij^2)).
	FrobeniusNorm(a mat.Matrix) float64
	// SymRankK returns x * x^T.
	SymRankK(x mat.Matrix) *mat.SymDense
}

// Gonum is the default Provider.
type Gonum struct{}

var _ Provider = Gonum{}

// SmallestEigen factorizes a completely and keeps the first k pairs. gonum's
// EigenSym already reports eigenvalues in ascending order.
func (Gonum) SmallestEigen(a *mat.SymDense, k int) ([]float64, *mat.Dense, error) {
	n := a.SymmetricDim()
	if k < 1 || k > n {
		return nil, nil, fmt.Errorf("%w: k=%d for a %dx%d matrix", ErrInvalidRank, k, n, n)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(a, true); !ok {
		return nil, nil, ErrEigenFailed
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	out := mat.NewDense(n, k, nil)
	out.Copy(vectors.Slice(0, n, 0, k))
	return append([]float64(nil), values[:k]...), out, nil
}

// FrobeniusNorm uses mat.Norm with L=2, which is the Frobenius norm for matrices.
func (Gonum) FrobeniusNorm(a mat.Matrix) float64 {
	return mat.Norm(a, 2)
}

// SymRankK computes x * x^T with a single symmetric rank-k update.
func (Gonum) SymRankK(x mat.Matrix) *mat.SymDense {
	n, _ := x.Dims()
	s := mat.NewSymDense(n, nil)
	s.SymOuterK(1, x)
	return s
}

// DefaultParticipants is the number of physical cores reported by cpuid, or
// the logical CPU count when cpuid cannot tell.
func DefaultParticipants() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return max(1, runtime.NumCPU())
}

// CPUBrand names the processor for startup logs.
func CPUBrand() string {
	if cpuid.CPU.BrandName == "" {
		return "unknown"
	}
	return cpuid.CPU.BrandName
}
