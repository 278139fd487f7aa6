// Package dataset reads and writes views in the plain text matrix format.
//
// A file holds one view. The first line is "<width> <height>" where width is
// the number of features and height the number of samples; the values follow
// feature by feature, height values per feature, separated by any whitespace.
// In memory a view is a samples x features matrix.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmptyDataset is returned when a directory holds no view file.
	ErrEmptyDataset = errors.New("dataset: no view files found")
	// ErrMalformed reports a file that does not follow the text format.
	ErrMalformed = errors.New("dataset: malformed matrix")
)

// ReadMatrix parses one view from r.
func ReadMatrix(r io.Reader) (*mat.Dense, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)

	next := func() (string, bool) {
		if sc.Scan() {
			return sc.Text(), true
		}
		return "", false
	}

	width, err := readDim(next, "width")
	if err != nil {
		return nil, err
	}
	height, err := readDim(next, "height")
	if err != nil {
		return nil, err
	}

	x := mat.NewDense(height, width, nil)
	for j := 0; j < width; j++ {
		for i := 0; i < height; i++ {
			tok, ok := next()
			if !ok {
				if err := sc.Err(); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("%w: expected %d values, got %d", ErrMalformed, width*height, j*height+i)
			}
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: value %d: %v", ErrMalformed, j*height+i, err)
			}
			x.Set(i, j, v)
		}
	}
	if tok, ok := next(); ok {
		return nil, fmt.Errorf("%w: trailing data %q", ErrMalformed, tok)
	}
	return x, sc.Err()
}

func readDim(next func() (string, bool), name string) (int, error) {
	tok, ok := next()
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformed, name)
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrMalformed, name, tok)
	}
	return n, nil
}

// DumpMatrix writes x in the text format. Values use the shortest
// representation that parses back to the same float64.
func DumpMatrix(w io.Writer, x mat.Matrix) error {
	height, width := x.Dims()
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d\n", width, height)

	buf := make([]byte, 0, 32)
	for j := 0; j < width; j++ {
		for i := 0; i < height; i++ {
			if i > 0 {
				bw.WriteByte(' ')
			}
			buf = strconv.AppendFloat(buf[:0], x.At(i, j), 'g', -1, 64)
			bw.Write(buf)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadMatrixFile reads one view from path.
func ReadMatrixFile(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	x, err := ReadMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return x, nil
}

// WriteMatrixFile writes x to path, replacing any existing file.
func WriteMatrixFile(path string, x mat.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := DumpMatrix(f, x); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Dataset is a set of views over the same samples.
type Dataset struct {
	Names []string
	Views []*mat.Dense
}

// Samples returns the sample count of the first view.
func (d *Dataset) Samples() int {
	if len(d.Views) == 0 {
		return 0
	}
	r, _ := d.Views[0].Dims()
	return r
}

// ReadDataset loads every regular file of dir as a view, in name order
// (os.ReadDir sorts entries).
// Hidden files are skipped.
func ReadDataset(dir string) (*Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{}
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name()[0] == '.' {
			continue
		}
		x, err := ReadMatrixFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		ds.Names = append(ds.Names, e.Name())
		ds.Views = append(ds.Views, x)
	}
	if len(ds.Views) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrEmptyDataset, dir)
	}
	return ds, nil
}

// WriteDataset writes every view of ds into dir, creating it if needed.
// Views without a name are written as view_<index>.txt.
func WriteDataset(dir string, ds *Dataset) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for v, x := range ds.Views {
		name := fmt.Sprintf("view_%d.txt", v)
		if v < len(ds.Names) && ds.Names[v] != "" {
			name = ds.Names[v]
		}
		if err := WriteMatrixFile(filepath.Join(dir, name), x); err != nil {
			return err
		}
	}
	return nil
}
