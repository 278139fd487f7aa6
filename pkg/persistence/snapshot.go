package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sanonone/gmc/pkg/core/types"
	"github.com/sanonone/gmc/pkg/gmc"
)

const snapshotVersion = 1

// ErrMissingSection is returned when a snapshot lacks its header or end marker.
var ErrMissingSection = errors.New("persistence: missing snapshot section")

// WriteSnapshot serializes res. Matrices and neighbor weights are stored at
// precision p; view weights, the lambda trace and the header are always
// float64.
func WriteSnapshot(w io.Writer, res *gmc.Result, p Precision) error {
	if !p.valid() {
		return fmt.Errorf("persistence: invalid precision %v", p)
	}
	bw := bufio.NewWriter(w)
	fw := NewFrameWriter(bw)

	var e encoder
	frame := func(op OpCode) error {
		err := fw.WriteFrame(op, e.buf)
		e.buf = e.buf[:0]
		return err
	}

	e.u8(snapshotVersion)
	e.u8(byte(p))
	e.str(res.RunID)
	e.u32(uint32(res.Samples))
	e.u32(uint32(res.Views))
	e.u32(uint32(res.Clusters))
	e.u32(uint32(res.Iterations))
	e.f64(res.Lambda)
	if res.Converged {
		e.u8(1)
	} else {
		e.u8(0)
	}
	if err := frame(OpHeader); err != nil {
		return err
	}

	sections := []struct {
		op OpCode
		fn func()
	}{
		{OpConsensus, func() { e.matrix(p, res.U) }},
		{OpEmbedding, func() { e.matrix(p, res.F) }},
		{OpEigenvalues, func() { e.matrix(p, res.Eigenvalues) }},
		{OpLabels, func() {
			e.u32(uint32(len(res.Labels)))
			for _, l := range res.Labels {
				e.i32(l)
			}
		}},
		{OpWeights, func() { e.floats(Float64, res.Weights) }},
		{OpLambdas, func() { e.floats(Float64, res.LambdaTrace) }},
	}
	for _, s := range sections {
		s.fn()
		if err := frame(s.op); err != nil {
			return err
		}
	}

	for v, g := range res.Graphs {
		e.u32(uint32(v))
		e.u32(uint32(g.Samples()))
		e.u32(uint32(g.Width()))
		e.u8(byte(p))
		for y := 0; y < g.Samples(); y++ {
			idx, wt := g.Indices(y), g.Weights(y)
			for i := range idx {
				e.i32(idx[i])
				e.float(p, wt[i])
			}
		}
		if err := frame(OpGraph); err != nil {
			return err
		}
	}

	if err := frame(OpEnd); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot. Neighbor
// distances are not stored, so the restored graphs carry weights only.
func ReadSnapshot(r io.Reader) (*gmc.Result, Precision, error) {
	br := bufio.NewReader(r)
	res := &gmc.Result{}
	var precision Precision
	seenHeader := false

	for {
		op, payload, _, err := ReadFrame(br)
		if err == io.EOF {
			return nil, 0, fmt.Errorf("%w: end marker", ErrMissingSection)
		}
		if err != nil {
			return nil, 0, err
		}
		if !seenHeader && op != OpHeader {
			return nil, 0, fmt.Errorf("%w: header", ErrMissingSection)
		}

		d := &decoder{buf: payload}
		switch op {
		case OpHeader:
			if version := d.u8(); d.err == nil && version != snapshotVersion {
				return nil, 0, fmt.Errorf("persistence: unsupported snapshot version %d", version)
			}
			precision = d.precision()
			res.RunID = d.str()
			res.Samples = int(d.u32())
			res.Views = int(d.u32())
			res.Clusters = int(d.u32())
			res.Iterations = int(d.u32())
			res.Lambda = d.f64()
			res.Converged = d.u8() == 1
			seenHeader = true
		case OpConsensus:
			res.U = d.matrix()
		case OpEmbedding:
			res.F = d.matrix()
		case OpEigenvalues:
			res.Eigenvalues = d.matrix()
		case OpLabels:
			n := d.count(4)
			res.Labels = make([]int, n)
			for i := range res.Labels {
				res.Labels[i] = d.i32()
			}
		case OpWeights:
			res.Weights = d.floats()
		case OpLambdas:
			res.LambdaTrace = d.floats()
		case OpGraph:
			g, err := decodeGraph(d, len(res.Graphs))
			if err != nil {
				return nil, 0, err
			}
			res.Graphs = append(res.Graphs, g)
		case OpEnd:
			if len(res.Graphs) != res.Views {
				return nil, 0, fmt.Errorf("%w: %d of %d graphs", ErrMissingSection, len(res.Graphs), res.Views)
			}
			return res, precision, nil
		default:
			// Unknown sections from newer writers are skipped.
			continue
		}
		if err := d.done(); err != nil {
			return nil, 0, fmt.Errorf("section 0x%02x: %w", byte(op), err)
		}
	}
}

func decodeGraph(d *decoder, want int) (*gmc.NeighborGraph, error) {
	view := int(d.u32())
	samples := int(d.u32())
	width := int(d.u32())
	p := d.precision()
	if d.err != nil {
		return nil, d.err
	}
	if view != want {
		return nil, fmt.Errorf("%w: graph %d out of order, want %d", ErrCorruptSection, view, want)
	}
	if samples < 1 || width < 2 || samples*width*(4+int(p)) != len(d.buf) {
		return nil, fmt.Errorf("%w: graph %d of %dx%d", ErrCorruptSection, view, samples, width)
	}

	rows := make([][]types.Neighbor, samples)
	for y := range rows {
		rows[y] = make([]types.Neighbor, width)
		for i := range rows[y] {
			rows[y][i].Index = d.i32()
			rows[y][i].Weight = d.float(p)
		}
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return gmc.NewNeighborGraphFromRows(rows), nil
}

// SaveSnapshot writes res to path atomically: the data goes to a temporary
// file in the same directory which is synced and renamed over path.
func SaveSnapshot(path string, res *gmc.Result, p Precision) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("persistence: creating snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteSnapshot(tmp, res, p); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadSnapshot reads the snapshot stored at path.
func LoadSnapshot(path string) (*gmc.Result, Precision, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ReadSnapshot(f)
}
