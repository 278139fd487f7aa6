package gmc

import "gonum.org/v1/gonum/mat"

// embedding is the two-slot buffer holding the current spectral embedding F
// and the previous one. Advancing writes into the idle slot and flips the
// flag; reverting only flips it back, nothing is copied.
type embedding struct {
	slots [2]*mat.Dense
	cur   int
}

func newEmbedding(samples, clusters int) *embedding {
	return &embedding{
		slots: [2]*mat.Dense{
			mat.NewDense(samples, clusters, nil),
			mat.NewDense(samples, clusters, nil),
		},
	}
}

func (e *embedding) current() *mat.Dense  { return e.slots[e.cur] }
func (e *embedding) previous() *mat.Dense { return e.slots[1-e.cur] }

// advance stores next as the current embedding; the old current becomes previous.
func (e *embedding) advance(next mat.Matrix) {
	e.slots[1-e.cur].Copy(next)
	e.cur = 1 - e.cur
}

// revert makes the previous embedding current again.
func (e *embedding) revert() { e.cur = 1 - e.cur }
