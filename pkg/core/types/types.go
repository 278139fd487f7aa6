// Package types holds the small value types shared by the graph construction
// packages.
package types

// Candidate is a sample seen from a fixed anchor row: the sample's index and
// its squared distance to the anchor.
type Candidate struct {
	Id       int
	Distance float64
}

// Neighbor is one (index, weight) entry of a sparse neighbor row.
type Neighbor struct {
	Index  int
	Weight float64
}
