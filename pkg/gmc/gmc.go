// Package gmc implements graph-based multi-view clustering.
//
// Given m views (samples x features matrices over the same samples), Run
// builds a PN-neighbor similarity graph per view and then alternates:
//
//  1. refine the neighbor weights of every view against the consensus U,
//  2. re-weight the views by their distance to U,
//  3. rebuild every row of U as a simplex projection pulled toward the
//     current spectral embedding F,
//  4. recompute F from the smallest eigenpairs of the Laplacian of U,
//  5. double or halve the rank-penalty multiplier lambda until the Laplacian
//     has exactly c (near) zero eigenvalues.
//
// The connected components of the final U are the clusters.
//
// Basic usage:
//
//	cfg := gmc.DefaultConfig()
//	cfg.Clusters = 3
//	res, err := gmc.Run(ctx, views, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Clusters, res.Labels)
package gmc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sanonone/gmc/pkg/components"
	"github.com/sanonone/gmc/pkg/core/distance"
	"github.com/sanonone/gmc/pkg/linalg"
	"github.com/sanonone/gmc/pkg/metrics"
	"gonum.org/v1/gonum/mat"
)

// Run clusters the samples described by views. Every view has one row per
// sample. Configuration and topology errors are returned before any
// iteration. Running out of iterations is not an error: the result reports
// Converged=false and the iterations executed.
//
// ctx is observed at iteration boundaries only. When it is cancelled, Run
// stops every participant and returns the state reached so far together with
// ctx.Err().
func Run(ctx context.Context, views []*mat.Dense, cfg Config, opts ...Option) (res *Result, err error) {
	o := defaultRunOptions()
	for _, opt := range opts {
		opt(&o)
	}

	num, err := checkViews(views)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if err := cfg.Validate(num); err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	coll := o.collective
	if coll == nil {
		group, err := linalg.NewGroup(ctx, o.provider, cfg.Participants)
		if err != nil {
			metrics.RunsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		defer func() {
			if cerr := group.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("gmc: closing participant group: %w", cerr)
			}
		}()
		coll = group
	}

	runID := uuid.NewString()
	log := o.logger.With("run_id", runID)
	start := time.Now()

	opt, err := newOptimizer(views, cfg, o, coll, log)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if _, err := opt.updateF(ctx); err != nil {
		metrics.RunsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}

	converged, iterations, err := opt.loop(ctx)
	res = opt.result(runID, converged, iterations)

	metrics.RunsTotal.WithLabelValues(outcomeOf(err, converged)).Inc()
	metrics.IterationsPerRun.Observe(float64(iterations))
	metrics.ClustersFound.Observe(float64(res.Clusters))

	log.Info("GMC run finished",
		"samples", res.Samples,
		"views", res.Views,
		"iterations", res.Iterations,
		"clusters", res.Clusters,
		"target_clusters", cfg.Clusters,
		"lambda", res.Lambda,
		"converged", res.Converged,
		"duration", time.Since(start).String(),
	)
	return res, err
}

func checkViews(views []*mat.Dense) (int, error) {
	if len(views) == 0 {
		return 0, ErrNoViews
	}
	num, _ := views[0].Dims()
	for v, x := range views {
		if x == nil {
			return 0, fmt.Errorf("%w: view %d is nil", ErrShapeMismatch, v)
		}
		r, c := x.Dims()
		if r != num {
			return 0, fmt.Errorf("%w: view %d has %d samples, view 0 has %d", ErrShapeMismatch, v, r, num)
		}
		if c < 1 {
			return 0, fmt.Errorf("%w: view %d has no features", ErrShapeMismatch, v)
		}
	}
	return num, nil
}

func outcome(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "error"
}

func outcomeOf(err error, converged bool) string {
	switch {
	case err != nil:
		return outcome(err)
	case converged:
		return "converged"
	default:
		return "budget"
	}
}

// pairwiseFor resolves the configured kernel. The Gram kernel routes its
// rank-k multiply through the run's provider.
func pairwiseFor(kernel distance.Kernel, p linalg.Provider) (distance.PairwiseFunc, error) {
	if kernel == distance.Gram {
		return func(x *mat.Dense) *mat.Dense { return distance.PairwiseGram(x, p) }, nil
	}
	return distance.GetPairwiseFunc(kernel)
}

// Labels extracts the clusters of a consensus graph: the connected components
// of the graph with an edge wherever u[i][j] or u[j][i] is non-zero.
func Labels(u mat.Matrix) ([]int, int) {
	return components.FromAffinity(u)
}
