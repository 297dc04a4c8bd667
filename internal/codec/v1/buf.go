// Copyright 2025 The Katana Authors
// This file is part of Katana.
//
// Katana is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Katana is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Katana. If not, see <http://www.gnu.org/licenses/>.

// Package v1 is the DB-version-1 wire codec: a separate module per DB
// version with its own tag ordering, as the "Versioned wire
// types" design note requires. A later schema bump adds a sibling v2
// package rather than mutating this one.
package v1

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/katana-sequencer/katana/internal/felt"
)

// writer accumulates a v1-encoded value.
type writer struct {
	buf []byte
}

func (w *writer) byte(b byte) { w.buf = append(w.buf, b) }

func (w *writer) uvarint(x uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *writer) bytes(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) felt(f felt.Felt) {
	b, _ := f.MarshalBinary()
	w.buf = append(w.buf, b...)
}

func (w *writer) felts(fs []felt.Felt) {
	w.uvarint(uint64(len(fs)))
	for _, f := range fs {
		w.felt(f)
	}
}

func (w *writer) str(s string) { w.bytes([]byte(s)) }

// reader decodes a v1-encoded value, tracking position and the first
// error encountered so call sites don't need to check every step.
type reader struct {
	buf []byte
	pos int
	err error
}

func newReader(b []byte) *reader { return &reader{buf: b} }

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.buf) {
		r.fail(io.ErrUnexpectedEOF)
		return 0
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	x, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		r.fail(fmt.Errorf("v1: bad uvarint"))
		return 0
	}
	r.pos += n
	return x
}

func (r *reader) bytes() []byte {
	n := r.uvarint()
	if r.err != nil {
		return nil
	}
	if uint64(r.pos)+n > uint64(len(r.buf)) {
		r.fail(io.ErrUnexpectedEOF)
		return nil
	}
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out
}

func (r *reader) felt() felt.Felt {
	if r.err != nil {
		return felt.Zero
	}
	if r.pos+32 > len(r.buf) {
		r.fail(io.ErrUnexpectedEOF)
		return felt.Zero
	}
	var f felt.Felt
	if err := f.UnmarshalBinary(r.buf[r.pos : r.pos+32]); err != nil {
		r.fail(err)
		return felt.Zero
	}
	r.pos += 32
	return f
}

func (r *reader) felts() []felt.Felt {
	n := r.uvarint()
	if r.err != nil || n == 0 {
		return nil
	}
	out := make([]felt.Felt, n)
	for i := range out {
		out[i] = r.felt()
	}
	return out
}

func (r *reader) str() string { return string(r.bytes()) }

func (r *reader) uint64() uint64 { return r.uvarint() }

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.pos != len(r.buf) {
		return fmt.Errorf("v1: %d trailing bytes", len(r.buf)-r.pos)
	}
	return nil
}
