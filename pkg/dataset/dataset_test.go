package dataset

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestReadMatrixFeatureMajor(t *testing.T) {
	// 2 features, 3 samples.
	in := "2 3\n1 2 3\n4 5 6\n"
	x, err := ReadMatrix(strings.NewReader(in))
	require.NoError(t, err)

	r, c := x.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []float64{1, 4}, x.RawRowView(0))
	assert.Equal(t, []float64{3, 6}, x.RawRowView(2))
}

func TestReadMatrixErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"missing height": "2",
		"bad width":      "x 3",
		"zero height":    "2 0",
		"short":          "2 2\n1 2 3",
		"bad value":      "1 2\n1 abc",
		"trailing":       "1 1\n1 2",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadMatrix(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDumpMatrixRoundTrip(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		0.1, -1e-300,
		math.Pi, 12345678.9,
		1.0 / 3, 0,
	})

	var buf bytes.Buffer
	require.NoError(t, DumpMatrix(&buf, x))
	assert.True(t, strings.HasPrefix(buf.String(), "2 3\n"))

	back, err := ReadMatrix(&buf)
	require.NoError(t, err)
	assert.True(t, mat.Equal(x, back), "values must survive bit for bit")
}

func TestDatasetDirectory(t *testing.T) {
	dir := t.TempDir()
	ds := &Dataset{
		Names: []string{"a.txt", "b.txt"},
		Views: []*mat.Dense{
			mat.NewDense(2, 1, []float64{1, 2}),
			mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}),
		},
	}
	require.NoError(t, WriteDataset(dir, ds))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("junk"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	back, err := ReadDataset(dir)
	require.NoError(t, err)
	assert.Equal(t, ds.Names, back.Names)
	assert.Equal(t, 2, back.Samples())
	for v := range ds.Views {
		assert.True(t, mat.Equal(ds.Views[v], back.Views[v]))
	}
}

func TestReadDatasetEmpty(t *testing.T) {
	_, err := ReadDataset(t.TempDir())
	assert.ErrorIs(t, err, ErrEmptyDataset)
}
