// Package persistence stores clustering runs on disk.
//
// Snapshots and journals share one binary framing:
//
//	[Magic(1)][OpCode(1)][Length(4)][CRC32(4)][Payload(Length)]
//
// Integers are little endian; the CRC is IEEE over the payload only.
package persistence

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"slices"
)

const (
	// MagicByte marks the start of every frame.
	MagicByte = 0xA5

	// HeaderSize is Magic + OpCode + Length + CRC32.
	HeaderSize = 10

	// MaxPayload bounds the length a reader accepts. It fits the dense
	// consensus matrix of about 11k samples at float64.
	MaxPayload = 1 << 30

	// readChunk is the largest allocation made ahead of the bytes actually
	// read, so a corrupt length cannot reserve MaxPayload up front.
	readChunk = 1 << 20
)

// OpCode identifies the section carried by a frame.
type OpCode byte

const (
	OpHeader      OpCode = 0x01
	OpConsensus   OpCode = 0x02 // U
	OpEmbedding   OpCode = 0x03 // F
	OpEigenvalues OpCode = 0x04
	OpLabels      OpCode = 0x05
	OpWeights     OpCode = 0x06
	OpLambdas     OpCode = 0x07
	OpGraph       OpCode = 0x08 // one per view
	OpIteration   OpCode = 0x10 // journal record
	OpEnd         OpCode = 0xFF
)

var (
	// ErrInvalidMagic indicates the stream lost synchronization or is not ours.
	ErrInvalidMagic = errors.New("persistence: invalid magic byte")
	// ErrChecksumMismatch indicates a corrupted payload.
	ErrChecksumMismatch = errors.New("persistence: crc32 checksum mismatch")
	// ErrIncompleteFrame indicates the stream ended inside a frame.
	ErrIncompleteFrame = errors.New("persistence: incomplete frame")
)

// FrameWriter writes frames to an io.Writer. Wrap files in a bufio.Writer so
// header and payload land in one write.
type FrameWriter struct {
	w      io.Writer
	header [HeaderSize]byte
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame encodes payload under op.
func (fw *FrameWriter) WriteFrame(op OpCode, payload []byte) error {
	h := fw.header[:]
	h[0] = MagicByte
	h[1] = byte(op)
	binary.LittleEndian.PutUint32(h[2:6], uint32(len(payload)))
	binary.LittleEndian.PutUint32(h[6:10], crc32.ChecksumIEEE(payload))

	if _, err := fw.w.Write(h); err != nil {
		return err
	}
	_, err := fw.w.Write(payload)
	return err
}

// ReadFrame reads and validates the next frame. It returns the opcode, the
// payload and the number of bytes consumed. A clean io.EOF is returned only
// at a frame boundary.
func ReadFrame(r io.Reader) (OpCode, []byte, int, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return 0, nil, 0, io.EOF
		}
		return 0, nil, 0, ErrIncompleteFrame
	}

	if header[0] != MagicByte {
		return 0, nil, HeaderSize, ErrInvalidMagic
	}
	op := OpCode(header[1])
	length := binary.LittleEndian.Uint32(header[2:6])
	expected := binary.LittleEndian.Uint32(header[6:10])
	if uint64(length) > MaxPayload {
		return 0, nil, HeaderSize, ErrIncompleteFrame
	}

	payload, err := readPayload(r, int(length))
	if err != nil {
		return 0, nil, HeaderSize, ErrIncompleteFrame
	}
	if crc32.ChecksumIEEE(payload) != expected {
		return 0, nil, HeaderSize + int(length), ErrChecksumMismatch
	}
	return op, payload, HeaderSize + int(length), nil
}

// readPayload reads n bytes, growing the buffer one chunk at a time.
func readPayload(r io.Reader, n int) ([]byte, error) {
	payload := make([]byte, 0, min(n, readChunk))
	for len(payload) < n {
		step := min(n-len(payload), readChunk)
		payload = slices.Grow(payload, step)
		end := len(payload) + step
		if _, err := io.ReadFull(r, payload[len(payload):end]); err != nil {
			return nil, err
		}
		payload = payload[:end]
	}
	return payload, nil
}
