package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sanonone/gmc/pkg/gmc"
)

// Record is one journaled iteration.
type Record struct {
	Iteration   int
	Lambda      float64
	NextLambda  float64
	Action      string
	Converged   bool
	Eigenvalues []float64
	Weights     []float64
}

// RecordOf extracts the journaled fields of an iteration.
func RecordOf(it gmc.Iteration) Record {
	return Record{
		Iteration:   it.Index,
		Lambda:      it.Lambda,
		NextLambda:  it.NextLambda,
		Action:      it.Action,
		Converged:   it.Converged,
		Eigenvalues: append([]float64(nil), it.Eigenvalues...),
		Weights:     append([]float64(nil), it.Weights...),
	}
}

func (r Record) encode(e *encoder) {
	e.u32(uint32(r.Iteration))
	e.f64(r.Lambda)
	e.f64(r.NextLambda)
	e.str(r.Action)
	if r.Converged {
		e.u8(1)
	} else {
		e.u8(0)
	}
	e.floats(Float64, r.Eigenvalues)
	e.floats(Float64, r.Weights)
}

func decodeRecord(payload []byte) (Record, error) {
	d := &decoder{buf: payload}
	r := Record{
		Iteration:  int(d.u32()),
		Lambda:     d.f64(),
		NextLambda: d.f64(),
		Action:     d.str(),
		Converged:  d.u8() == 1,
	}
	r.Eigenvalues = d.floats()
	r.Weights = d.floats()
	return r, d.done()
}

// Journal appends one frame per iteration to a file. It is safe for
// concurrent use.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	fw   *FrameWriter
	path string
	enc  encoder
	err  error
}

// OpenJournal opens or creates the journal at path in append mode.
func OpenJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("persistence: opening journal: %w", err)
	}
	buf := bufio.NewWriter(file)
	return &Journal{file: file, buf: buf, fw: NewFrameWriter(buf), path: path}, nil
}

// Append writes r. The frame reaches the file on the next Flush, Sync or Close.
func (j *Journal) Append(r Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.enc.buf = j.enc.buf[:0]
	r.encode(&j.enc)
	return j.fw.WriteFrame(OpIteration, j.enc.buf)
}

// Hook returns an iteration hook that journals every iteration. The first
// write error is kept and reported by Err and Close.
func (j *Journal) Hook() func(gmc.Iteration) {
	return func(it gmc.Iteration) {
		if err := j.Append(RecordOf(it)); err != nil {
			j.mu.Lock()
			if j.err == nil {
				j.err = err
			}
			j.mu.Unlock()
		}
	}
}

// Err returns the first error recorded by the hook.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Flush hands buffered frames to the operating system.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.buf.Flush()
}

// Sync flushes and fsyncs the journal.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sync()
}

func (j *Journal) sync() error {
	if err := j.buf.Flush(); err != nil {
		return err
	}
	return j.file.Sync()
}

// Path returns the journal location.
func (j *Journal) Path() string { return j.path }

// Close syncs and closes the file. It reports the first failure among the
// hook writes, the final sync and the close.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.sync(); err != nil {
		_ = j.file.Close()
		return errors.Join(j.err, err)
	}
	if err := j.file.Close(); err != nil {
		return errors.Join(j.err, err)
	}
	return j.err
}

// ReadJournal decodes every record of r. A frame cut short at the end of the
// stream (a crash during a write) ends the journal without error; any other
// corruption is reported together with the records read so far.
func ReadJournal(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	var out []Record
	for {
		op, payload, _, err := ReadFrame(br)
		switch {
		case err == io.EOF, errors.Is(err, ErrIncompleteFrame):
			return out, nil
		case err != nil:
			return out, err
		}
		if op != OpIteration {
			return out, fmt.Errorf("%w: unexpected opcode 0x%02x in journal", ErrCorruptSection, byte(op))
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
