package simplex

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// sortProjection is the classic sort based Euclidean projection onto the simplex.
func sortProjection(v []float64) []float64 {
	u := append([]float64(nil), v...)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))
	var cum, theta float64
	for i, x := range u {
		cum += x
		if t := (cum - 1) / float64(i+1); x-t > 0 {
			theta = t
		}
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Max(x-theta, 0)
	}
	return out
}

func assertOnSimplex(t *testing.T, x []float64) {
	t.Helper()
	assert.InDelta(t, 1.0, floats.Sum(x), 1e-8)
	assert.GreaterOrEqual(t, floats.Min(x), -1e-12)
}

func TestProjectRandomVectors(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(60)
		scale := math.Pow(10, float64(rng.Intn(7)-3))
		v := make([]float64, n)
		for i := range v {
			v[i] = rng.NormFloat64() * scale
		}

		got := ProjectVector(v)
		require.Len(t, got, n)
		assertOnSimplex(t, got)

		// The centered vector sums to one, so its projection is the plain
		// Euclidean projection of the centered input.
		centered := append([]float64(nil), v...)
		center(centered, 1)
		want := sortProjection(centered)
		for i := range want {
			assert.InDelta(t, want[i], got[i], 1e-9)
		}
	}
}

func TestProjectLargeVectors(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	cases := []struct {
		n     int
		scale float64
	}{
		{500, 1e4},
		{2000, 1e3},
		{2000, 1e4},
		{5000, 1e5},
	}
	for _, tc := range cases {
		for trial := 0; trial < 20; trial++ {
			v := make([]float64, tc.n)
			for i := range v {
				v[i] = rng.NormFloat64() * tc.scale
			}
			assertOnSimplex(t, ProjectVector(v))
		}
	}
}

func TestProjectHeavyTailed(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for trial := 0; trial < 2000; trial++ {
		n := 2 + rng.Intn(400)
		rows := 1 + rng.Intn(3)
		q := mat.NewDense(rows, n, nil)
		for r := 0; r < rows; r++ {
			for i := 0; i < n; i++ {
				// A normal over a small uniform has Cauchy like tails.
				q.Set(r, i, rng.NormFloat64()/(0.001+rng.Float64())*100)
			}
		}
		assertOnSimplex(t, Project(q))
	}
}

func TestRefineRecoversFromNewtonCap(t *testing.T) {
	v := []float64{-3e4, 2e4, 1e4 + 1, 0.5, -0.5}
	center(v, 1)
	want := sortProjection(v)

	// Start from the mean shift as if Newton had made no progress.
	start := (floats.Sum(v) - 1) / float64(len(v))
	got := append([]float64(nil), v...)
	th := refine(got, start)
	for i, x := range got {
		got[i] = math.Max(x-th, 0)
	}
	assert.InDeltaSlice(t, want, got, 1e-9)
	assertOnSimplex(t, got)
}

func TestProjectFeasibleIsIdentity(t *testing.T) {
	x := []float64{0.1, 0.2, 0.3, 0.4}
	got := ProjectVector(x)
	for i := range x {
		assert.InDelta(t, x[i], got[i], 1e-15)
	}
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4}, x, "input must not be modified")
}

func TestProjectIsIdempotent(t *testing.T) {
	once := ProjectVector([]float64{3, -1, 0.5, 2, -4})
	twice := ProjectVector(once)
	for i := range once {
		assert.InDelta(t, once[i], twice[i], 1e-12)
	}
}

func TestProjectSumsRows(t *testing.T) {
	// Two identical rows average back to the same row.
	q := mat.NewDense(2, 3, []float64{
		0.2, 0.3, 0.5,
		0.2, 0.3, 0.5,
	})
	got := Project(q)
	assert.InDeltaSlice(t, []float64{0.2, 0.3, 0.5}, got, 1e-15)

	q = mat.NewDense(3, 4, []float64{
		-5, 1, 2, 9,
		4, -3, 0, 1,
		2, 2, -7, 3,
	})
	assertOnSimplex(t, Project(q))
}

func TestProjectDominantEntry(t *testing.T) {
	got := ProjectVector([]float64{100, 0, 0})
	assert.InDeltaSlice(t, []float64{1, 0, 0}, got, 1e-12)
}

func TestProjectEmpty(t *testing.T) {
	assert.Empty(t, ProjectCentered(nil))
}
