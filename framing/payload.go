// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrShortPayload = errors.New("framing: short payload")

// Reader provides typed access to a frame payload. The first failed read is
// remembered: subsequent reads return zero values and Err reports the failure.
type Reader struct {
	data []byte
	pos  int
	err  error
}

func NewReader(payload []byte) *Reader {
	return &Reader{data: payload}
}

// Err returns the first error encountered while reading
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread payload bytes
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Readable reports whether at least n more bytes can be read
func (r *Reader) Readable(n int) bool {
	return r.err == nil && r.Remaining() >= n
}

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.Remaining() < n {
		r.err = fmt.Errorf(
			"%w: need %d bytes at offset %d, have %d",
			ErrShortPayload,
			n,
			r.pos,
			r.Remaining(),
		)
		return nil
	}
	ret := r.data[r.pos : r.pos+n]
	r.pos += n
	return ret
}

// ReadUint8 reads a single byte
func (r *Reader) ReadUint8() uint8 {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadUint16 reads a big-endian word
func (r *Reader) ReadUint16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

// ReadFloat32 reads a big-endian IEEE754 single precision value
func (r *Reader) ReadFloat32() float32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

// ReadBool reads a single byte where any nonzero value is true
func (r *Reader) ReadBool() bool {
	return r.ReadUint8() != 0
}

// ReadFixedString reads an n byte field and strips NUL and space padding
func (r *Reader) ReadFixedString(n int) string {
	b := r.next(n)
	if b == nil {
		return ""
	}
	if idx := strings.IndexByte(string(b), 0); idx >= 0 {
		b = b[:idx]
	}
	return strings.TrimRight(string(b), " ")
}

// Writer builds a frame payload
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the payload written so far
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current payload length
func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteFloat32(v float32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteFixedString writes s truncated or NUL padded to exactly n bytes
func (w *Writer) WriteFixedString(s string, n int) {
	field := make([]byte, n)
	copy(field, s)
	w.buf = append(w.buf, field...)
}
