package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/mat"
)

// Precision is the storage width of floating point sections.
type Precision byte

const (
	Float64 Precision = 8
	Float16 Precision = 2
)

// ErrCorruptSection reports a frame whose payload does not decode.
var ErrCorruptSection = errors.New("persistence: corrupt section")

// ParsePrecision maps "float64" and "float16" to a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "", "float64":
		return Float64, nil
	case "float16":
		return Float16, nil
	}
	return 0, fmt.Errorf("persistence: unknown precision %q", s)
}

func (p Precision) String() string {
	switch p {
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	}
	return fmt.Sprintf("precision(%d)", byte(p))
}

func (p Precision) valid() bool { return p == Float64 || p == Float16 }

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v byte)     { e.buf = append(e.buf, v) }
func (e *encoder) u32(v uint32)  { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) i32(v int)     { e.u32(uint32(int32(v))) }
func (e *encoder) f64(v float64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v)) }

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) float(p Precision, v float64) {
	if p == Float16 {
		e.buf = binary.LittleEndian.AppendUint16(e.buf, float16.Fromfloat32(float32(v)).Bits())
		return
	}
	e.f64(v)
}

func (e *encoder) floats(p Precision, vs []float64) {
	e.u8(byte(p))
	e.u32(uint32(len(vs)))
	for _, v := range vs {
		e.float(p, v)
	}
}

func (e *encoder) matrix(p Precision, m mat.Matrix) {
	r, c := m.Dims()
	e.u8(byte(p))
	e.u32(uint32(r))
	e.u32(uint32(c))
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			e.float(p, m.At(i, j))
		}
	}
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf) {
		d.err = fmt.Errorf("%w: need %d bytes, have %d", ErrCorruptSection, n, len(d.buf))
		return nil
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) u8() byte {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) i32() int { return int(int32(d.u32())) }

func (d *decoder) f64() float64 {
	if b := d.take(8); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (d *decoder) str() string {
	n := int(d.u32())
	return string(d.take(n))
}

func (d *decoder) precision() Precision {
	p := Precision(d.u8())
	if d.err == nil && !p.valid() {
		d.err = fmt.Errorf("%w: %v", ErrCorruptSection, p)
	}
	return p
}

func (d *decoder) float(p Precision) float64 {
	if p == Float16 {
		if b := d.take(2); b != nil {
			return float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
		}
		return 0
	}
	return d.f64()
}

// count reads a length and checks that n elements of size bytes fit in the
// remaining payload.
func (d *decoder) count(size int) int {
	n := int(d.u32())
	if d.err == nil && n*size > len(d.buf) {
		d.err = fmt.Errorf("%w: %d elements do not fit in %d bytes", ErrCorruptSection, n, len(d.buf))
		return 0
	}
	return n
}

func (d *decoder) floats() []float64 {
	p := d.precision()
	n := d.count(int(p))
	if d.err != nil {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = d.float(p)
	}
	return out
}

func (d *decoder) matrix() *mat.Dense {
	p := d.precision()
	r := int(d.u32())
	c := int(d.u32())
	if d.err != nil {
		return nil
	}
	if r == 0 || c == 0 || r*c*int(p) > len(d.buf) {
		d.err = fmt.Errorf("%w: %dx%d matrix", ErrCorruptSection, r, c)
		return nil
	}
	data := make([]float64, r*c)
	for i := range data {
		data[i] = d.float(p)
	}
	return mat.NewDense(r, c, data)
}

// done reports any decoding error or unread trailing bytes.
func (d *decoder) done() error {
	if d.err != nil {
		return d.err
	}
	if len(d.buf) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorruptSection, len(d.buf))
	}
	return nil
}
