// Package wire implements the outer frame layer: every envelope is written to
// the byte stream as a 4-byte big-endian length prefix followed by exactly
// that many bytes.
//
// It solves TCP's sticky packet problem the usual way — the receiver reads the
// length first, then reads exactly that many bytes with io.ReadFull. The frame
// layer knows nothing about envelope contents; field-level framing lives in
// package message.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame. A length prefix beyond this is treated
// as stream corruption rather than an allocation request.
const MaxFrameSize = 16 << 20

// WriteFrame writes a length prefix followed by body to w.
// The caller must hold a write lock if multiple goroutines share the same
// writer, otherwise frames will interleave and corrupt the stream.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return fmt.Errorf("wire: frame of %d bytes exceeds limit %d", len(body), MaxFrameSize)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))

	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads one complete frame from r.
// Uses io.ReadFull to guarantee exactly N bytes are read, so a premature close
// or short read surfaces as an error rather than a truncated frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("wire: frame length %d exceeds limit %d", n, MaxFrameSize)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
