package gmc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sanonone/gmc/pkg/components"
	"github.com/sanonone/gmc/pkg/core/distance"
	"github.com/sanonone/gmc/pkg/linalg"
	"github.com/sanonone/gmc/pkg/metrics"
	"github.com/sanonone/gmc/pkg/simplex"
	"github.com/tidwall/btree"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// optimizer carries the state shared by the alternating updates. It is owned
// by the coordinator; only the eigen-decomposition goes through the
// collective.
type optimizer struct {
	cfg      Config
	provider linalg.Provider
	coll     linalg.Collective
	hook     func(Iteration)
	log      *slog.Logger

	num, m int
	graphs []*NeighborGraph
	u      *mat.Dense
	w      []float64
	f      *embedding
	lambda float64

	evs     [][]float64
	lambdas []float64

	// scratch buffers
	discrepancy *mat.Dense
	laplacian   *mat.SymDense
	all         []int
	pos         []int
}

func newOptimizer(views []*mat.Dense, cfg Config, o runOptions, coll linalg.Collective, log *slog.Logger) (*optimizer, error) {
	if cfg.Normalize {
		log.Debug("Init, normalize")
		views = Normalize(views)
	}

	pairwise, err := pairwiseFor(cfg.Kernel, o.provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	num, _ := views[0].Dims()
	m := len(views)

	log.Debug("Init, neighbor graphs", "views", m, "samples", num, "neighbors", cfg.Neighbors)
	graphs := make([]*NeighborGraph, m)
	for v, x := range views {
		graphs[v] = BuildNeighborGraph(x, cfg.Neighbors, pairwise)
	}

	log.Debug("Init, U")
	u := InitConsensus(graphs)

	w := make([]float64, m)
	for v := range w {
		w[v] = 1.0 / float64(m)
	}

	opt := &optimizer{
		cfg:         cfg,
		provider:    o.provider,
		coll:        coll,
		hook:        o.hook,
		log:         log,
		num:         num,
		m:           m,
		graphs:      graphs,
		u:           u,
		w:           w,
		f:           newEmbedding(num, cfg.Clusters),
		lambda:      cfg.Lambda,
		discrepancy: mat.NewDense(num, num, nil),
		laplacian:   mat.NewSymDense(num, nil),
		all:         make([]int, num),
		pos:         make([]int, num),
	}
	for i := range opt.all {
		opt.all[i] = i
		opt.pos[i] = -1
	}
	return opt, nil
}

// loop runs the iterations and reports whether the eigengap condition was
// met and how many iterations were executed.
func (o *optimizer) loop(ctx context.Context) (bool, int, error) {
	for it := 0; it < o.cfg.MaxIterations; it++ {
		if err := ctx.Err(); err != nil {
			return false, it, err
		}

		o.log.Debug("update S0", "iteration", it)
		o.updateS0()

		o.log.Debug("update w", "iteration", it)
		o.updateW()

		o.log.Debug("update U", "iteration", it)
		o.updateU()

		o.log.Debug("update F", "iteration", it)
		values, err := o.updateF(ctx)
		if err != nil {
			return false, it, err
		}

		o.log.Debug("update lambda", "iteration", it, "lambda", o.lambda)
		used := o.lambda
		converged, action := o.updateLambda(values)
		o.lambdas = append(o.lambdas, used)
		metrics.LambdaAdjustmentsTotal.WithLabelValues(action).Inc()

		if o.hook != nil {
			o.hook(Iteration{
				Index:       it,
				Lambda:      used,
				NextLambda:  o.lambda,
				Action:      action,
				Eigenvalues: values,
				Weights:     o.w,
				U:           o.u,
				F:           o.f.current(),
				Converged:   converged,
			})
		}

		done := converged || it == o.cfg.MaxIterations-1
		decision := linalg.Decision{Iteration: it, Lambda: o.lambda, Done: done}
		if err := o.coll.Broadcast(ctx, decision); err != nil {
			return converged, it + 1, err
		}
		if converged {
			return true, it + 1, nil
		}
	}
	return false, o.cfg.MaxIterations, nil
}

// updateS0 refines the weights of every neighbor row against the matching
// row of U. The topology is fixed; negative solutions are clipped to zero.
func (o *optimizer) updateS0() {
	pn := float64(o.cfg.Neighbors)
	for v, g := range o.graphs {
		weight := 2.0 * o.w[v]
		for y := 0; y < o.num; y++ {
			idx, s, ed := g.Indices(y), g.Weights(y), g.Distances(y)
			urow := o.u.RawRowView(y)

			far := ed[0]
			farU := urow[idx[0]]
			var sumU float64
			for _, x := range idx[1:] {
				sumU += urow[x]
			}

			numerator := far - weight*farU
			denominator := pn*far - g.sums[y] + weight*(sumU-pn*farU) + EPS

			for i, x := range idx {
				r := (numerator - ed[i] + weight*urow[x]) / denominator
				if r < 0 {
					r = 0
				}
				s[i] = r
			}
		}
	}
}

// updateW sets w[v] = 0.5 / (||U - S0_v||_F + EPS).
func (o *optimizer) updateW() {
	for v, g := range o.graphs {
		o.discrepancy.Copy(o.u)
		for y := 0; y < o.num; y++ {
			row := o.discrepancy.RawRowView(y)
			idx, s := g.Indices(y), g.Weights(y)
			for i, x := range idx {
				row[x] -= s[i]
			}
		}
		o.w[v] = 0.5 / (o.provider.FrobeniusNorm(o.discrepancy) + EPS)
	}
}

// candidates returns the ascending support of row y under the configured
// policy.
func (o *optimizer) candidates(y int) []int {
	if o.cfg.Candidates == GlobalCandidates {
		return o.all
	}

	set := btree.NewBTreeG[int](func(a, b int) bool { return a < b })
	for _, g := range o.graphs {
		idx, s := g.Indices(y), g.Weights(y)
		for i, x := range idx {
			if s[i] > 0 {
				set.Set(x)
			}
		}
	}
	if set.Len() == 0 {
		for _, g := range o.graphs {
			for _, x := range g.Indices(y) {
				set.Set(x)
			}
		}
	}

	out := make([]int, 0, set.Len())
	set.Scan(func(x int) bool {
		out = append(out, x)
		return true
	})
	return out
}

// updateU rebuilds every row of U. For row y and candidate x the quadratic
// term of view v is
//
//	q[v][x] = -lambda * dist_F(y, x) / (2m) / w[v] + S0_v(y, x)
//
// (divided by the view weight first, then the neighbor weight is added), and
// the m rows are handed to the simplex projector.
func (o *optimizer) updateU() {
	dist := distance.PairwiseGram(o.f.current(), o.provider)
	m := float64(o.m)

	for y := 0; y < o.num; y++ {
		cand := o.candidates(y)
		for i, x := range cand {
			o.pos[x] = i
		}

		q := mat.NewDense(o.m, len(cand), nil)
		drow := dist.RawRowView(y)
		for i, x := range cand {
			base := o.lambda * drow[x] / m * -0.5
			for v := 0; v < o.m; v++ {
				q.Set(v, i, base/o.w[v])
			}
		}
		for v, g := range o.graphs {
			qrow := q.RawRowView(v)
			idx, s := g.Indices(y), g.Weights(y)
			for i, x := range idx {
				if p := o.pos[x]; p >= 0 {
					qrow[p] += s[i]
				}
			}
		}

		proj := simplex.Project(q)

		urow := o.u.RawRowView(y)
		for x := range urow {
			urow[x] = 0
		}
		for i, x := range cand {
			urow[x] = proj[i]
			o.pos[x] = -1
		}
	}
}

// updateF symmetrizes U into the Laplacian L = D - (U+U^T)/2, requests its
// c+1 smallest eigenpairs through the collective and stores the first c
// eigenvectors as the new F. The eigenvalues are appended to the trace.
func (o *optimizer) updateF(ctx context.Context) ([]float64, error) {
	n := o.num
	for i := 0; i < n; i++ {
		var degree float64
		row := o.u.RawRowView(i)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			wij := (row[j] + o.u.At(j, i)) / 2
			degree += wij
			if j > i {
				o.laplacian.SetSym(i, j, -wij)
			}
		}
		o.laplacian.SetSym(i, i, degree)
	}

	start := time.Now()
	values, vectors, err := o.coll.Eigen(ctx, o.laplacian, o.cfg.Clusters+1)
	metrics.EigenDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("gmc: eigen-decomposition: %w", err)
	}

	o.f.advance(vectors.Slice(0, n, 0, o.cfg.Clusters))
	o.evs = append(o.evs, values)
	return values, nil
}

// updateLambda applies the eigengap test to the c+1 smallest eigenvalues:
// too much spectral mass in the first c doubles lambda, a zero (c+1)-th
// eigenvalue halves it and restores the previous F, anything else converges.
func (o *optimizer) updateLambda(values []float64) (bool, string) {
	c := o.cfg.Clusters
	zr := o.cfg.ZeroTolerance
	fn := floats.Sum(values[:c])

	switch {
	case fn > zr:
		o.lambda *= 2
		return false, "double"
	case fn+values[c] < zr:
		o.lambda /= 2
		o.f.revert()
		return false, "halve"
	default:
		return true, "keep"
	}
}

func (o *optimizer) result(runID string, converged bool, iterations int) *Result {
	labels, count := components.FromAffinity(o.u)

	c := o.cfg.Clusters
	evs := mat.NewDense(c+1, len(o.evs), nil)
	for j, col := range o.evs {
		evs.SetCol(j, col)
	}

	return &Result{
		RunID:       runID,
		U:           o.u,
		Graphs:      o.graphs,
		F:           mat.DenseCopyOf(o.f.current()),
		Eigenvalues: evs,
		Labels:      labels,
		Weights:     append([]float64(nil), o.w...),
		LambdaTrace: append([]float64(nil), o.lambdas...),
		Samples:     o.num,
		Views:       o.m,
		Clusters:    count,
		Iterations:  iterations,
		Lambda:      o.lambda,
		Converged:   converged,
	}
}
