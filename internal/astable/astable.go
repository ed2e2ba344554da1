// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package astable implements the sorted, binary-searchable autonomous-system
// table: an array of (asn, name offset) pairs, 8 bytes each, big-endian.
package astable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// RecordSize is the on-disk size in bytes of a single AS record.
const RecordSize = 8

// ErrDuplicate is returned by a Builder when the same ASN is added twice.
var ErrDuplicate = errors.New("astable: duplicate ASN")

// ErrInvalidASN is returned by a Builder when asked to add ASN 0, which is
// reserved and never a valid allocation per spec.md's AS-record invariant.
var ErrInvalidASN = errors.New("astable: asn must be nonzero")

// Record is a single autonomous-system entry: its number and the pool
// offset of its human-readable name.
type Record struct {
	ASN     uint32
	NameOff uint32
}

// Builder accumulates AS records prior to sorting and serialisation.
type Builder struct {
	records []Record
	seen    map[uint32]struct{}
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{seen: make(map[uint32]struct{})}
}

// Add appends a new AS record. It returns ErrInvalidASN if asn is 0, and
// ErrDuplicate if asn was already added.
func (b *Builder) Add(asn uint32, nameOff uint32) error {
	if asn == 0 {
		return ErrInvalidASN
	}
	if _, ok := b.seen[asn]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicate, asn)
	}
	b.seen[asn] = struct{}{}
	b.records = append(b.records, Record{ASN: asn, NameOff: nameOff})
	return nil
}

// Len returns the number of records added so far.
func (b *Builder) Len() int {
	return len(b.records)
}

// Bytes sorts the accumulated records by ASN and serialises them to their
// on-disk big-endian form.
func (b *Builder) Bytes() []byte {
	sort.Slice(b.records, func(i, j int) bool {
		return b.records[i].ASN < b.records[j].ASN
	})
	out := make([]byte, len(b.records)*RecordSize)
	for i, rec := range b.records {
		off := i * RecordSize
		binary.BigEndian.PutUint32(out[off:off+4], rec.ASN)
		binary.BigEndian.PutUint32(out[off+4:off+8], rec.NameOff)
	}
	return out
}

// Reader is a read-only, binary-searchable view over a serialized AS table,
// typically backed directly by an mmap region.
type Reader struct {
	data []byte
	n    int
}

// ErrInvalidData is returned when the backing slice's length isn't a
// multiple of RecordSize, or the table isn't sorted ascending by ASN.
var ErrInvalidData = errors.New("astable: invalid table data")

// NewReader wraps data (not copied) as a Reader, validating that its length
// is a multiple of RecordSize and that records are sorted ascending by ASN.
func NewReader(data []byte) (*Reader, error) {
	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: length %d not a multiple of %d", ErrInvalidData, len(data), RecordSize)
	}
	r := &Reader{data: data, n: len(data) / RecordSize}
	prev := uint32(0)
	for i := 0; i < r.n; i++ {
		rec := r.at(i)
		if i > 0 && rec.ASN <= prev {
			return nil, fmt.Errorf("%w: records not strictly ascending by ASN at index %d", ErrInvalidData, i)
		}
		prev = rec.ASN
	}
	return r, nil
}

// Len returns the number of AS records in the table.
func (r *Reader) Len() int {
	return r.n
}

func (r *Reader) at(i int) Record {
	off := i * RecordSize
	return Record{
		ASN:     binary.BigEndian.Uint32(r.data[off : off+4]),
		NameOff: binary.BigEndian.Uint32(r.data[off+4 : off+8]),
	}
}

// At returns the i-th record in ascending-ASN order.
func (r *Reader) At(i int) Record {
	return r.at(i)
}

// Get performs a binary search for asn, returning its record and true if
// present.
func (r *Reader) Get(asn uint32) (Record, bool) {
	lo, hi := 0, r.n-1
	for lo <= hi {
		mid := (lo + hi) / 2
		rec := r.at(mid)
		switch {
		case rec.ASN == asn:
			return rec, true
		case rec.ASN < asn:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return Record{}, false
}
