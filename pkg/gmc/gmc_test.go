package gmc

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/sanonone/gmc/pkg/core/distance"
	"github.com/sanonone/gmc/pkg/core/types"
	"github.com/sanonone/gmc/pkg/linalg"
	"github.com/sanonone/gmc/pkg/simplex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const perChain = 20

// chainPositions returns n points on a line with slowly growing gaps, so no
// two distances from a point coincide and its nearest samples are always the
// adjacent ones.
func chainPositions(n int) []float64 {
	pos := make([]float64, n)
	for i := 1; i < n; i++ {
		pos[i] = pos[i-1] + 1 + 0.01*float64(i-1)
	}
	return pos
}

// twoChains returns two views of 2*perChain samples forming two far apart
// chains. Samples [0, perChain) belong to the first chain.
func twoChains() []*mat.Dense {
	pos := chainPositions(perChain)
	n := 2 * perChain
	a := mat.NewDense(n, 2, nil)
	b := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		x := pos[i%perChain] + 100*float64(i/perChain)
		a.SetRow(i, []float64{x, 0})
		b.SetRow(i, []float64{2 * x, x, 7})
	}
	return []*mat.Dense{a, b}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Clusters = 2
	cfg.Neighbors = 5
	cfg.Participants = 1
	return cfg
}

func assertRowsOnSimplex(t *testing.T, u *mat.Dense) {
	t.Helper()
	r, _ := u.Dims()
	for y := 0; y < r; y++ {
		row := u.RawRowView(y)
		assert.InDelta(t, 1, floats.Sum(row), 1e-9, "row %d", y)
		assert.GreaterOrEqual(t, floats.Min(row), 0.0, "row %d", y)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		target error
	}{
		{"valid", func(*Config) {}, nil},
		{"no clusters", func(c *Config) { c.Clusters = 0 }, ErrInvalidConfig},
		{"too many clusters", func(c *Config) { c.Clusters = 10 }, ErrInvalidConfig},
		{"no neighbors", func(c *Config) { c.Neighbors = 0 }, ErrInvalidConfig},
		{"too many neighbors", func(c *Config) { c.Neighbors = 9 }, ErrInvalidConfig},
		{"zero lambda", func(c *Config) { c.Lambda = 0 }, ErrInvalidConfig},
		{"infinite lambda", func(c *Config) { c.Lambda = math.Inf(1) }, ErrInvalidConfig},
		{"nan lambda", func(c *Config) { c.Lambda = math.NaN() }, ErrInvalidConfig},
		{"no iterations", func(c *Config) { c.MaxIterations = 0 }, ErrInvalidConfig},
		{"negative tolerance", func(c *Config) { c.ZeroTolerance = -1 }, ErrInvalidConfig},
		{"unknown policy", func(c *Config) { c.Candidates = "nearby" }, ErrInvalidConfig},
		{"unknown kernel", func(c *Config) { c.Kernel = "cosine" }, ErrInvalidConfig},
		{"no participants", func(c *Config) { c.Participants = 0 }, linalg.ErrInvalidTopology},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate(10)
			if tt.target == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	ctx := context.Background()

	_, err := Run(ctx, nil, testConfig())
	assert.ErrorIs(t, err, ErrNoViews)

	views := twoChains()
	views[1] = mat.NewDense(5, 3, nil)
	_, err = Run(ctx, views, testConfig())
	assert.ErrorIs(t, err, ErrShapeMismatch)

	cfg := testConfig()
	cfg.Neighbors = 2 * perChain
	_, err = Run(ctx, twoChains(), cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuildNeighborGraph(t *testing.T) {
	views := twoChains()
	pairwise, err := distance.GetPairwiseFunc(distance.Direct)
	require.NoError(t, err)

	const pn = 5
	g := BuildNeighborGraph(views[0], pn, pairwise)
	require.Equal(t, 2*perChain, g.Samples())
	require.Equal(t, pn, g.Neighbors())
	require.Equal(t, pn+1, g.Width())

	for y := 0; y < g.Samples(); y++ {
		idx, w, ed := g.Indices(y), g.Weights(y), g.Distances(y)

		assert.Equal(t, 0.0, w[0], "sentinel weight of row %d", y)
		assert.NotContains(t, idx, y, "row %d lists itself", y)

		positive := 0
		for i := 1; i <= pn; i++ {
			if w[i] > 0 {
				positive++
			}
			assert.LessOrEqual(t, ed[i], ed[0], "row %d: neighbor beyond sentinel", y)
			if i > 1 {
				assert.LessOrEqual(t, ed[i-1], ed[i], "row %d not ascending", y)
			}
			// Neighbors never cross chains.
			assert.Equal(t, y/perChain, idx[i]/perChain)
		}
		assert.Equal(t, pn, positive, "row %d", y)
		assert.InDelta(t, 1, floats.Sum(w), 1e-9, "row %d", y)
	}

	// Both kernels agree on the topology.
	gram := BuildNeighborGraph(views[0], pn, func(x *mat.Dense) *mat.Dense {
		return distance.PairwiseGram(x, linalg.Gonum{})
	})
	for y := 0; y < g.Samples(); y++ {
		assert.Equal(t, g.Indices(y), gram.Indices(y))
	}
}

func TestNeighborGraphRows(t *testing.T) {
	views := twoChains()
	pairwise, _ := distance.GetPairwiseFunc(distance.Direct)
	g := BuildNeighborGraph(views[1], 4, pairwise)

	rows := make([][]types.Neighbor, g.Samples())
	for y := range rows {
		rows[y] = g.Row(y)
	}
	back := NewNeighborGraphFromRows(rows)
	require.Equal(t, g.Width(), back.Width())
	for y := range rows {
		assert.Equal(t, g.Indices(y), back.Indices(y))
		assert.Equal(t, g.Weights(y), back.Weights(y))
	}
}

func TestInitConsensus(t *testing.T) {
	views := twoChains()
	pairwise, _ := distance.GetPairwiseFunc(distance.Direct)
	graphs := []*NeighborGraph{
		BuildNeighborGraph(views[0], 5, pairwise),
		BuildNeighborGraph(views[1], 5, pairwise),
	}
	u := InitConsensus(graphs)
	assertRowsOnSimplex(t, u)

	// Identical topologies and proportional distances give identical weights.
	for y := 0; y < graphs[0].Samples(); y++ {
		for i, x := range graphs[0].Indices(y) {
			assert.InDelta(t, graphs[0].Weights(y)[i], u.At(y, x), 1e-9)
		}
	}
}

func TestInitConsensusDegenerateRow(t *testing.T) {
	// Every neighbor at the sentinel distance: all weights are zero.
	g := newNeighborGraph(4, 2)
	for y := 0; y < 4; y++ {
		idx := g.Indices(y)
		k := 0
		for x := 0; x < 4; x++ {
			if x != y {
				idx[k] = x
				k++
			}
		}
	}
	u := InitConsensus([]*NeighborGraph{g})
	assertRowsOnSimplex(t, u)
	assert.InDelta(t, 0, u.At(0, 1), 1e-15, "sentinel stays empty")
	assert.InDelta(t, 0.5, u.At(0, 2), 1e-15)
	assert.InDelta(t, 0.5, u.At(0, 3), 1e-15)
}

func TestNormalize(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	z := Normalize([]*mat.Dense{x})[0]

	col := mat.Col(nil, 0, z)
	assert.InDelta(t, 0, floats.Sum(col), 1e-12)
	var ss float64
	for _, v := range col {
		ss += v * v
	}
	assert.InDelta(t, 1, ss/3, 1e-12, "unit sample variance")

	// A constant feature maps to zero, not NaN.
	for _, v := range mat.Col(nil, 1, z) {
		assert.Equal(t, 0.0, v)
	}
	// The input is untouched.
	assert.Equal(t, 1.0, x.At(0, 0))
}

func TestEmbeddingBuffer(t *testing.T) {
	e := newEmbedding(2, 1)
	first := mat.NewDense(2, 1, []float64{1, 2})
	second := mat.NewDense(2, 1, []float64{3, 4})

	e.advance(first)
	assert.True(t, mat.Equal(first, e.current()))
	e.advance(second)
	assert.True(t, mat.Equal(second, e.current()))
	assert.True(t, mat.Equal(first, e.previous()))

	e.revert()
	assert.True(t, mat.Equal(first, e.current()))
	assert.True(t, mat.Equal(second, e.previous()))

	// advance writes into the idle slot and never aliases its argument.
	second.Set(0, 0, 99)
	assert.Equal(t, 3.0, e.previous().At(0, 0))
}

func TestRunSeparatesChains(t *testing.T) {
	for _, policy := range []CandidatePolicy{LocalCandidates, GlobalCandidates} {
		t.Run(string(policy), func(t *testing.T) {
			cfg := testConfig()
			cfg.Candidates = policy

			var trace []Iteration
			res, err := Run(context.Background(), twoChains(), cfg, WithIterationHook(func(it Iteration) {
				assertRowsOnSimplex(t, it.U)
				trace = append(trace, Iteration{
					Index:      it.Index,
					Lambda:     it.Lambda,
					NextLambda: it.NextLambda,
					Action:     it.Action,
					Converged:  it.Converged,
				})
			}))
			require.NoError(t, err)
			require.NotNil(t, res)

			assert.NotEmpty(t, res.RunID)
			assert.Equal(t, 2*perChain, res.Samples)
			assert.Equal(t, 2, res.Views)
			assert.Len(t, res.Weights, 2)
			assertRowsOnSimplex(t, res.U)
			require.Len(t, trace, res.Iterations)
			assert.Len(t, res.LambdaTrace, res.Iterations)

			r, c := res.Eigenvalues.Dims()
			assert.Equal(t, cfg.Clusters+1, r)
			assert.Equal(t, res.Iterations+1, c)
			fr, fc := res.F.Dims()
			assert.Equal(t, 2*perChain, fr)
			assert.Equal(t, cfg.Clusters, fc)

			for i, it := range trace {
				assert.Greater(t, it.Lambda, 0.0)
				assert.Equal(t, res.LambdaTrace[i], it.Lambda)
				switch it.Action {
				case "double":
					assert.Equal(t, 2*it.Lambda, it.NextLambda)
				case "halve":
					assert.Equal(t, it.Lambda/2, it.NextLambda)
				case "keep":
					assert.Equal(t, it.Lambda, it.NextLambda)
					assert.True(t, it.Converged)
				default:
					t.Fatalf("unexpected action %q", it.Action)
				}
			}

			if policy == LocalCandidates {
				// Two chains far apart: the local support can never bridge them.
				assert.True(t, res.Converged)
				require.Equal(t, 2, res.Clusters)
				for i := 0; i < 2*perChain; i++ {
					assert.Equal(t, res.Labels[(i/perChain)*perChain], res.Labels[i])
				}
				assert.NotEqual(t, res.Labels[0], res.Labels[perChain])

				members := res.Members()
				require.Len(t, members, 2)
				assert.Len(t, members[0], perChain)
				assert.Len(t, members[1], perChain)
			}
		})
	}
}

// gaussianBlobs returns two 2-D views of 20 points around (0,0) and 20
// around (20,20). The second view is a rotated, slightly jittered copy.
func gaussianBlobs() ([]*mat.Dense, []int) {
	rng := rand.New(rand.NewSource(7))
	const per = 20
	a := mat.NewDense(2*per, 2, nil)
	b := mat.NewDense(2*per, 2, nil)
	truth := make([]int, 2*per)
	for i := 0; i < 2*per; i++ {
		c := float64(i / per)
		truth[i] = i / per
		x := 20*c + rng.NormFloat64()
		y := 20*c + rng.NormFloat64()
		a.SetRow(i, []float64{x, y})
		b.SetRow(i, []float64{
			0.6*x - 0.8*y + 0.05*rng.NormFloat64(),
			0.8*x + 0.6*y + 0.05*rng.NormFloat64(),
		})
	}
	return []*mat.Dense{a, b}, truth
}

func TestRunGaussianBlobs(t *testing.T) {
	views, truth := gaussianBlobs()
	cfg := testConfig()

	res, err := Run(context.Background(), views, cfg)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, cfg.MaxIterations)
	require.Equal(t, 2, res.Clusters)

	// Labels match the blobs up to renaming.
	mapping := map[int]int{}
	for i, l := range res.Labels {
		if want, ok := mapping[l]; ok {
			assert.Equal(t, want, truth[i], "sample %d", i)
			continue
		}
		mapping[l] = truth[i]
	}
	assert.Len(t, mapping, 2)
}

func TestRunBudgetExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.Clusters = 5
	cfg.MaxIterations = 3

	res, err := Run(context.Background(), twoChains(), cfg)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Iterations, 3)
	if !res.Converged {
		assert.Equal(t, 3, res.Iterations)
	}
}

func TestRunParticipantsAgree(t *testing.T) {
	group, err := linalg.NewGroup(context.Background(), linalg.Gonum{}, 3)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Participants = 3
	res, err := Run(context.Background(), twoChains(), cfg, WithCollective(group))
	require.NoError(t, err)
	require.NoError(t, group.Close())

	transcripts := group.Transcripts()
	require.Len(t, transcripts, 3)
	coordinator := transcripts[0]
	assert.Len(t, coordinator.Eigenvalues, res.Iterations+1)
	require.Len(t, coordinator.Decisions, res.Iterations)
	assert.True(t, coordinator.Decisions[len(coordinator.Decisions)-1].Done)

	for _, tr := range transcripts[1:] {
		assert.Equal(t, coordinator.Eigenvalues, tr.Eigenvalues, "participant %d", tr.Participant)
		assert.Equal(t, coordinator.Decisions, tr.Decisions, "participant %d", tr.Participant)
	}
}

func TestRunCancelledReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.Clusters = 5
	cfg.MaxIterations = 10

	res, err := Run(ctx, twoChains(), cfg, WithIterationHook(func(Iteration) { cancel() }))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Iterations)
	assertRowsOnSimplex(t, res.U)
}

func TestUpdateUDividesBeforeAddingNeighborWeight(t *testing.T) {
	cfg := testConfig()
	o := defaultRunOptions()
	opt, err := newOptimizer(twoChains(), cfg, o, nil, o.logger)
	require.NoError(t, err)

	// A non-trivial embedding so the distance term matters.
	f := mat.NewDense(opt.num, cfg.Clusters, nil)
	for i := 0; i < opt.num; i++ {
		f.Set(i, 0, 0.05*float64(i))
		f.Set(i, 1, 0.02*float64(i%7))
	}
	opt.f.advance(f)
	opt.lambda = 3

	const y = 7
	cand := opt.candidates(y)
	dist := distance.PairwiseDirect(f)

	build := func(w []float64, divideFirst bool) []float64 {
		q := mat.NewDense(opt.m, len(cand), nil)
		for v, g := range opt.graphs {
			idx, s := g.Indices(y), g.Weights(y)
			for i, x := range cand {
				base := opt.lambda * dist.At(y, x) / float64(opt.m) * -0.5
				var sw float64
				for k, nx := range idx {
					if nx == x {
						sw = s[k]
					}
				}
				if divideFirst {
					q.Set(v, i, base/w[v]+sw)
				} else {
					q.Set(v, i, (base+sw)/w[v])
				}
			}
		}
		return simplex.Project(q)
	}

	for _, tc := range []struct {
		name  string
		w     []float64
		agree bool
	}{
		// Only unit weights make the two orders coincide. Any other uniform
		// weight rescales the neighbor term relative to the distance term.
		{"unit", []float64{1, 1}, true},
		{"uniform", []float64{0.5, 0.5}, false},
		{"mixed", []float64{0.5, 0.25}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opt.w = tc.w
			want := build(tc.w, true)
			other := build(tc.w, false)

			opt.updateU()
			row := opt.u.RawRowView(y)
			got := make([]float64, len(cand))
			for i, x := range cand {
				got[i] = row[x]
			}
			assert.InDeltaSlice(t, want, got, 1e-9)
			assert.InDelta(t, 1, floats.Sum(row), 1e-9)
			assert.Equal(t, tc.agree, floats.EqualApprox(other, got, 1e-9))
		})
	}
}
