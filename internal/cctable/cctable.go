// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package cctable implements the sorted, binary-searchable country table: an
// array of (code, continent, name offset) records, 8 bytes each, big-endian.
package cctable

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// RecordSize is the on-disk size in bytes of a single country record.
const RecordSize = 8

// ErrDuplicate is returned by a Builder when the same code is added twice.
var ErrDuplicate = errors.New("cctable: duplicate country code")

// ErrInvalidCode is returned when a code is not two uppercase ASCII letters,
// excepting the reserved special codes.
var ErrInvalidCode = errors.New("cctable: invalid country code")

// Special country codes, reserved by this system; see spec GLOSSARY.
const (
	AnonymousProxy = "A1"
	Satellite      = "A2"
	Anycast        = "A3"
	Drop           = "XD"
)

var reservedXCodes = map[string]bool{
	AnonymousProxy: true,
	Satellite:      true,
	Anycast:        true,
	Drop:           true,
}

// ValidateCode reports whether code is an acceptable country code: either
// two uppercase ASCII letters, or one of the reserved special codes. Any
// code beginning with 'X' other than the reserved values is invalid.
func ValidateCode(code string) error {
	if len(code) != 2 {
		return fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	if reservedXCodes[code] {
		return nil
	}
	if code[0] == 'X' {
		return fmt.Errorf("%w: %q (reserved X-prefix)", ErrInvalidCode, code)
	}
	for _, c := range []byte(code) {
		if c < 'A' || c > 'Z' {
			return fmt.Errorf("%w: %q", ErrInvalidCode, code)
		}
	}
	return nil
}

// Record is a single country entry.
type Record struct {
	Code      [2]byte
	Continent [2]byte
	NameOff   uint32
}

// Builder accumulates country records prior to sorting and serialisation.
type Builder struct {
	records []Record
	seen    map[string]struct{}
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{seen: make(map[string]struct{})}
}

// Add appends a new country record. continent may be empty for the reserved
// special codes, which carry no continent.
func (b *Builder) Add(code, continent string, nameOff uint32) error {
	if err := ValidateCode(code); err != nil {
		return err
	}
	if _, ok := b.seen[code]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, code)
	}
	b.seen[code] = struct{}{}
	var rec Record
	copy(rec.Code[:], code)
	copy(rec.Continent[:], continent)
	rec.NameOff = nameOff
	b.records = append(b.records, rec)
	return nil
}

// Len returns the number of records added so far.
func (b *Builder) Len() int {
	return len(b.records)
}

// Bytes sorts the accumulated records by code and serialises them.
func (b *Builder) Bytes() []byte {
	sort.Slice(b.records, func(i, j int) bool {
		return bytes.Compare(b.records[i].Code[:], b.records[j].Code[:]) < 0
	})
	out := make([]byte, len(b.records)*RecordSize)
	for i, rec := range b.records {
		off := i * RecordSize
		out[off] = rec.Code[0]
		out[off+1] = rec.Code[1]
		out[off+2] = rec.Continent[0]
		out[off+3] = rec.Continent[1]
		binary.BigEndian.PutUint32(out[off+4:off+8], rec.NameOff)
	}
	return out
}

// ErrInvalidData is returned when the backing slice's length isn't a
// multiple of RecordSize, or the table isn't sorted ascending by code.
var ErrInvalidData = errors.New("cctable: invalid table data")

// Reader is a read-only, binary-searchable view over a serialized country
// table, typically backed directly by an mmap region.
type Reader struct {
	data []byte
	n    int
}

// NewReader wraps data (not copied) as a Reader, validating its shape and
// sort order.
func NewReader(data []byte) (*Reader, error) {
	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: length %d not a multiple of %d", ErrInvalidData, len(data), RecordSize)
	}
	r := &Reader{data: data, n: len(data) / RecordSize}
	var prev [2]byte
	for i := 0; i < r.n; i++ {
		rec := r.at(i)
		if i > 0 && bytes.Compare(rec.Code[:], prev[:]) <= 0 {
			return nil, fmt.Errorf("%w: records not strictly ascending by code at index %d", ErrInvalidData, i)
		}
		prev = rec.Code
	}
	return r, nil
}

// Len returns the number of country records in the table.
func (r *Reader) Len() int {
	return r.n
}

func (r *Reader) at(i int) Record {
	off := i * RecordSize
	var rec Record
	rec.Code[0], rec.Code[1] = r.data[off], r.data[off+1]
	rec.Continent[0], rec.Continent[1] = r.data[off+2], r.data[off+3]
	rec.NameOff = binary.BigEndian.Uint32(r.data[off+4 : off+8])
	return rec
}

// At returns the i-th record in ascending-code order.
func (r *Reader) At(i int) Record {
	return r.at(i)
}

// Get performs a binary search for code, which must already have passed
// ValidateCode. It returns the matching record and true if present.
func (r *Reader) Get(code string) (Record, bool) {
	if err := ValidateCode(code); err != nil {
		return Record{}, false
	}
	target := [2]byte{code[0], code[1]}
	lo, hi := 0, r.n-1
	for lo <= hi {
		mid := (lo + hi) / 2
		rec := r.at(mid)
		c := bytes.Compare(rec.Code[:], target[:])
		switch {
		case c == 0:
			return rec, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return Record{}, false
}
