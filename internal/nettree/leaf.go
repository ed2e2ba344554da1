// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package nettree

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// LeafRecordSize is the on-disk size in bytes of a single network-leaf
// record.
const LeafRecordSize = 8

// Flag bits carried by a Leaf.
const (
	FlagAnonymousProxy    uint16 = 0x1
	FlagSatelliteProvider uint16 = 0x2
	FlagAnycast           uint16 = 0x4
	FlagDrop              uint16 = 0x8
)

// Leaf is the (country, flags, asn) triple attached to a network's
// terminal tree node.
type Leaf struct {
	Country [2]byte
	Flags   uint16
	ASN     uint32
}

// HasFlag reports whether f is set in l.Flags.
func (l Leaf) HasFlag(f uint16) bool {
	return l.Flags&f != 0
}

func (l Leaf) encode(dst []byte) {
	dst[0], dst[1] = l.Country[0], l.Country[1]
	binary.BigEndian.PutUint16(dst[2:4], l.Flags)
	binary.BigEndian.PutUint32(dst[4:8], l.ASN)
}

func decodeLeaf(src []byte) Leaf {
	var l Leaf
	l.Country[0], l.Country[1] = src[0], src[1]
	l.Flags = binary.BigEndian.Uint16(src[2:4])
	l.ASN = binary.BigEndian.Uint32(src[4:8])
	return l
}

// ErrInvalidData is returned when a serialized leaf or tree section is
// malformed.
var ErrInvalidData = errors.New("nettree: invalid data")

// LeafReader is a read-only view over the flat network-leaf table,
// typically backed directly by an mmap region.
type LeafReader struct {
	data []byte
	n    int
}

// NewLeafReader wraps data (not copied) as a LeafReader.
func NewLeafReader(data []byte) (*LeafReader, error) {
	if len(data)%LeafRecordSize != 0 {
		return nil, fmt.Errorf("%w: leaf table length %d not a multiple of %d", ErrInvalidData, len(data), LeafRecordSize)
	}
	return &LeafReader{data: data, n: len(data) / LeafRecordSize}, nil
}

// Len returns the number of leaf records.
func (r *LeafReader) Len() int {
	return r.n
}

// At returns the leaf at index i.
func (r *LeafReader) At(i int) (Leaf, error) {
	if i < 0 || i >= r.n {
		return Leaf{}, fmt.Errorf("%w: leaf index %d out of range [0,%d)", ErrInvalidData, i, r.n)
	}
	off := i * LeafRecordSize
	return decodeLeaf(r.data[off : off+LeafRecordSize]), nil
}
