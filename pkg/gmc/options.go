package gmc

import (
	"log/slog"

	"github.com/sanonone/gmc/pkg/linalg"
	"gonum.org/v1/gonum/mat"
)

// Iteration is what the hook receives after every iteration. U and F alias
// the optimizer state and are only valid during the call.
type Iteration struct {
	Index       int
	Lambda      float64 // multiplier used by this iteration's U update
	NextLambda  float64 // multiplier after the adjustment
	Action      string  // "double", "halve" or "keep"
	Eigenvalues []float64
	Weights     []float64
	U           *mat.Dense
	F           *mat.Dense
	Converged   bool
}

// Option customizes a run.
type Option func(*runOptions)

type runOptions struct {
	logger     *slog.Logger
	provider   linalg.Provider
	collective linalg.Collective
	hook       func(Iteration)
}

func defaultRunOptions() runOptions {
	return runOptions{
		logger:   slog.Default(),
		provider: linalg.Gonum{},
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProvider replaces the gonum linear algebra provider.
func WithProvider(p linalg.Provider) Option {
	return func(o *runOptions) {
		if p != nil {
			o.provider = p
		}
	}
}

// WithCollective runs the eigen-decompositions through c instead of a group
// created for the run. The caller keeps ownership of c and closes it.
func WithCollective(c linalg.Collective) Option {
	return func(o *runOptions) { o.collective = c }
}

// WithIterationHook registers fn to be called after every iteration.
func WithIterationHook(fn func(Iteration)) Option {
	return func(o *runOptions) { o.hook = fn }
}
