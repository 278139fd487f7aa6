package gmc

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Normalize returns z-scored copies of the views: every feature (column) is
// centered on its mean and divided by its sample standard deviation. A
// constant feature has its deviation replaced by EPS so it maps to zero
// instead of NaN.
func Normalize(views []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(views))
	for v, x := range views {
		n, d := x.Dims()
		z := mat.NewDense(n, d, nil)
		col := make([]float64, n)
		for j := 0; j < d; j++ {
			mat.Col(col, j, x)
			mean, std := stat.MeanStdDev(col, nil)
			if std == 0 || math.IsNaN(std) {
				std = EPS
			}
			for i := 0; i < n; i++ {
				z.Set(i, j, (col[i]-mean)/std)
			}
		}
		out[v] = z
	}
	return out
}
