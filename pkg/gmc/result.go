package gmc

import "gonum.org/v1/gonum/mat"

// Result is the bundle produced by the coordinator at the end of a run.
type Result struct {
	// RunID identifies the run in logs, snapshots and the job API.
	RunID string
	// U is the samples x samples consensus graph; every row is on the simplex.
	U *mat.Dense
	// Graphs holds the per-view neighbor graphs (S0) with their final weights.
	Graphs []*NeighborGraph
	// F is the samples x clusters spectral embedding.
	F *mat.Dense
	// Eigenvalues is the (clusters+1) x (iterations+1) trace; column 0 comes
	// from the initial decomposition, column i from iteration i.
	Eigenvalues *mat.Dense
	// Labels holds the cluster id of every sample.
	Labels []int
	// Weights holds the final per-view weights w.
	Weights []float64
	// LambdaTrace holds the multiplier used by every iteration.
	LambdaTrace []float64

	Samples    int
	Views      int
	Clusters   int // connected components found, may differ from the target
	Iterations int // iterations actually executed
	Lambda     float64
	Converged  bool
}

// Members groups sample indices by cluster id.
func (r *Result) Members() [][]int {
	out := make([][]int, r.Clusters)
	for i, l := range r.Labels {
		out[l] = append(out[l], i)
	}
	return out
}
