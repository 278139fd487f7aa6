package gmc

import (
	"errors"
	"fmt"
	"math"

	"github.com/sanonone/gmc/pkg/core/distance"
	"github.com/sanonone/gmc/pkg/linalg"
)

// EPS guards every division that can see a zero denominator.
const EPS = 2.220446049250313e-16

var (
	// ErrInvalidConfig reports a parameter that cannot produce a run.
	ErrInvalidConfig = errors.New("gmc: invalid configuration")
	// ErrNoViews is returned when no view is supplied.
	ErrNoViews = errors.New("gmc: at least one view is required")
	// ErrShapeMismatch is returned when views disagree on the sample count.
	ErrShapeMismatch = errors.New("gmc: views must describe the same samples")
)

// CandidatePolicy selects the support of every consensus row during the U
// update. It is fixed for a whole run.
type CandidatePolicy string

const (
	// LocalCandidates restricts row y of U to the samples that carry a
	// positive neighbor weight for y in at least one view.
	LocalCandidates CandidatePolicy = "local"
	// GlobalCandidates lets row y of U spread over every sample.
	GlobalCandidates CandidatePolicy = "global"
)

// Config holds the parameters of one clustering run.
type Config struct {
	// Clusters is the target number of connected components (c).
	Clusters int `yaml:"clusters" json:"clusters"`
	// Neighbors is the fixed number of neighbors per sample (PN).
	Neighbors int `yaml:"neighbors" json:"neighbors"`
	// Lambda is the initial rank-penalty multiplier.
	Lambda float64 `yaml:"lambda" json:"lambda"`
	// MaxIterations is the iteration budget.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
	// ZeroTolerance (ZR) is the threshold under which an eigenvalue sum is zero.
	ZeroTolerance float64 `yaml:"zero_tolerance" json:"zero_tolerance"`
	// Normalize z-scores every feature of every view before graph construction.
	Normalize bool `yaml:"normalize" json:"normalize"`
	// Candidates is the support policy of the U update.
	Candidates CandidatePolicy `yaml:"candidates" json:"candidates"`
	// Participants is the size of the collective eigen-decomposition group.
	Participants int `yaml:"participants" json:"participants"`
	// Kernel is the pairwise distance kernel used to build neighbor graphs.
	Kernel distance.Kernel `yaml:"kernel" json:"kernel"`
}

// DefaultConfig returns the defaults. Clusters has no sensible default and
// must be set by the caller.
func DefaultConfig() Config {
	return Config{
		Neighbors:     15,
		Lambda:        1,
		MaxIterations: 20,
		ZeroTolerance: 1e-10,
		Candidates:    LocalCandidates,
		Participants:  linalg.DefaultParticipants(),
		Kernel:        distance.Gram,
	}
}

// Validate checks the configuration against the number of samples.
func (c Config) Validate(samples int) error {
	switch {
	case c.Clusters < 1:
		return fmt.Errorf("%w: clusters must be positive, got %d", ErrInvalidConfig, c.Clusters)
	case c.Clusters+1 > samples:
		return fmt.Errorf("%w: %d clusters need at least %d samples, got %d", ErrInvalidConfig, c.Clusters, c.Clusters+1, samples)
	case c.Neighbors < 1:
		return fmt.Errorf("%w: neighbors must be positive, got %d", ErrInvalidConfig, c.Neighbors)
	case c.Neighbors+1 >= samples:
		return fmt.Errorf("%w: %d neighbors need more than %d samples, got %d", ErrInvalidConfig, c.Neighbors, c.Neighbors+1, samples)
	case !(c.Lambda > 0) || math.IsInf(c.Lambda, 0):
		return fmt.Errorf("%w: lambda must be a positive finite number, got %v", ErrInvalidConfig, c.Lambda)
	case c.MaxIterations < 1:
		return fmt.Errorf("%w: max_iterations must be positive, got %d", ErrInvalidConfig, c.MaxIterations)
	case !(c.ZeroTolerance >= 0):
		return fmt.Errorf("%w: zero_tolerance must be non-negative, got %v", ErrInvalidConfig, c.ZeroTolerance)
	case c.Candidates != LocalCandidates && c.Candidates != GlobalCandidates:
		return fmt.Errorf("%w: unknown candidate policy %q", ErrInvalidConfig, c.Candidates)
	case c.Participants < 1:
		return fmt.Errorf("%w: participants must be positive, got %d", linalg.ErrInvalidTopology, c.Participants)
	}
	if _, err := distance.GetPairwiseFunc(c.Kernel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
