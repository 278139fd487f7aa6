// Package simplex projects vectors onto the probability simplex
// {x : x >= 0, sum(x) = 1}.
//
// The projection of v is max(v - t, 0) for the unique threshold t that makes
// the result sum to one. t is found with a Newton iteration on the piecewise
// linear, convex function
//
//	f(t) = sum(max(t - v_i, 0)) / N - t
//
// starting from t = 0. Newton only brings f near zero, so the threshold is
// then recomputed in closed form on its active set {i : v_i > t}:
//
//	t = (sum of active v_i - 1) / |active|
//
// repeated until the active set is stable. Started from any t at or below the
// true threshold these refinements increase monotonically and end on the
// exact breakpoint segment within len(v) steps, so the result sums to one up
// to rounding even when Newton hit its iteration cap.
package simplex

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// Tolerance is the residual |f(t)| at which the Newton iteration stops.
	Tolerance = 1e-10
	// MaxIterations caps the Newton iteration. Hitting the cap is not an
	// error; the last evaluated threshold is used.
	MaxIterations = 100

	eps = 2.220446049250313e-16
)

// Project collapses the rows of q (one per contributing view) into one
// candidate vector and returns its projection onto the simplex.
//
// The rows are summed, centered on their mean, divided by the number of rows
// and shifted by 1/N, so a single feasible row is returned unchanged.
func Project(q *mat.Dense) []float64 {
	rows, n := q.Dims()
	v := make([]float64, n)
	for r := 0; r < rows; r++ {
		for i, x := range q.RawRowView(r) {
			v[i] += x
		}
	}
	center(v, rows)
	return ProjectCentered(v)
}

// ProjectVector projects a single vector. The input is not modified.
func ProjectVector(x []float64) []float64 {
	v := append([]float64(nil), x...)
	center(v, 1)
	return ProjectCentered(v)
}

// center rewrites v as (v - mean(v)) / rows + 1/N, which sums to one.
func center(v []float64, rows int) {
	n := float64(len(v))
	var mean float64
	for _, x := range v {
		mean += x
	}
	mean /= n
	for i := range v {
		v[i] = (v[i]-mean)/float64(rows) + 1.0/n
	}
}

// ProjectCentered projects v, which must already sum to one, in place and
// returns it. An already non-negative v is feasible and returned as is.
func ProjectCentered(v []float64) []float64 {
	if len(v) == 0 {
		return v
	}

	vmin := math.Inf(1)
	for _, x := range v {
		vmin = math.Min(vmin, x)
	}
	if vmin >= 0 {
		return v
	}

	t := threshold(v)
	for i, x := range v {
		v[i] = math.Max(x-t, 0)
	}
	return v
}

// threshold returns the projection threshold of v.
func threshold(v []float64) float64 {
	t := newton(v)
	if excess(v, t) < 1 {
		// t overshot the true threshold. The mean shift is always a lower
		// bound, since sum(max(v - t, 0)) >= sum(v - t) = 1 there.
		t = (floats.Sum(v) - 1) / float64(len(v))
	}
	return refine(v, t)
}

// newton runs the damped Newton iteration and returns the last t at which f
// was evaluated.
func newton(v []float64) float64 {
	n := float64(len(v))
	var t float64
	for it := 0; it < MaxIterations; it++ {
		var sum float64
		var npos int
		for _, x := range v {
			if d := t - x; d > 0 {
				sum += d
				npos++
			}
		}

		f := sum/n - t
		if math.Abs(f) <= Tolerance {
			break
		}
		// EPS keeps the slope away from zero when every entry is active.
		g := float64(npos)/n - 1 + eps
		if it < MaxIterations-1 {
			t -= f / g
		}
	}
	return t
}

// refine recomputes t from its active set until the set stops shrinking. t
// must not exceed the true threshold.
func refine(v []float64, t float64) float64 {
	active := len(v) + 1
	for {
		var sum float64
		var k int
		for _, x := range v {
			if x > t {
				sum += x
				k++
			}
		}
		if k == 0 || k >= active {
			return t
		}
		active = k
		if next := (sum - 1) / float64(k); next > t {
			t = next
		}
	}
}

// excess is sum(max(v - t, 0)).
func excess(v []float64, t float64) float64 {
	var s float64
	for _, x := range v {
		if x > t {
			s += x - t
		}
	}
	return s
}
