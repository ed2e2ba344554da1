// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package strpool implements a deduplicating, NUL-terminated byte arena
// addressed by 32-bit offsets, the single string table every other on-disk
// section of the database refers into.
package strpool

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrInvalidOffset is returned by Get when an offset does not point at a
// valid, NUL-terminated string inside the pool.
var ErrInvalidOffset = errors.New("strpool: invalid offset")

// Writer is an appendable, deduplicating string pool. Create one with
// NewWriter; offset 0 always resolves to the empty string.
type Writer struct {
	buf     []byte
	offsets map[string]uint32
}

// NewWriter returns a Writer with the empty string already interned at
// offset 0.
func NewWriter() *Writer {
	w := &Writer{
		buf:     []byte{0},
		offsets: map[string]uint32{"": 0},
	}
	return w
}

// Add interns s, returning its offset. If s has already been added, the
// offset of the prior occurrence is returned and no bytes are appended.
func (w *Writer) Add(s string) uint32 {
	if off, ok := w.offsets[s]; ok {
		return off
	}
	off := uint32(len(w.buf))
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	w.offsets[s] = off
	return off
}

// Bytes returns the serialized pool contents, ready to be written to disk.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current size in bytes of the pool.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reader is a read-only view over a pool's bytes, typically backed directly
// by an mmap region.
type Reader struct {
	data []byte
}

// NewReader wraps data (which is not copied) as a Reader.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Get returns the NUL-terminated string starting at off. It returns
// ErrInvalidOffset if off is out of range or no NUL terminator is found
// before the end of the pool.
func (r *Reader) Get(off uint32) (string, error) {
	if int(off) >= len(r.data) {
		return "", fmt.Errorf("%w: offset %d >= pool length %d", ErrInvalidOffset, off, len(r.data))
	}
	rest := r.data[off:]
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return "", fmt.Errorf("%w: no NUL terminator after offset %d", ErrInvalidOffset, off)
	}
	return string(rest[:nul]), nil
}
