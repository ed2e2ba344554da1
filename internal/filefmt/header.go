// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package filefmt implements the on-disk magic, version, and section header
// for the location database file: a small, fixed-size, big-endian header
// describing the offset and length of every section that follows it.
package filefmt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the 7 ASCII bytes every database file begins with.
const Magic = "LOCDBXX"

// Version1 is the only format version this implementation supports.
// Version 0 is the legacy format and is explicitly rejected.
const Version1 = uint16(1)

const (
	magicLen     = 7
	signatureCap = 2048
)

// MagicAndVersionLen is the size in bytes of the magic+version prefix that
// precedes the header on disk.
const MagicAndVersionLen = magicLen + 2

// sectionOffsetsLen is the size, in bytes, of the header fields preceding
// the two signature fields.
const sectionOffsetsLen = 4 + 4 + 4 + 8 + // vendor, description, license, created_at
	4 + 4 + 8 + // pool off/len/checksum
	4 + 4 + 8 + // as off/len/checksum
	4 + 4 + 8 + // network_tree off/len/checksum
	4 + 4 + 8 + // networks off/len/checksum
	4 + 4 + 8 // countries off/len/checksum

// SignatureFieldLen is the on-disk size, in bytes, of a single signature
// field (its 2-byte length prefix plus its fixed-capacity body).
const SignatureFieldLen = 2 + signatureCap

// HeaderSize is the fixed, on-disk size in bytes of the v1 header,
// immediately following the 9-byte magic+version.
const HeaderSize = sectionOffsetsLen + 2*SignatureFieldLen

// SignatureAreaOffset is the byte offset, relative to the start of the
// header (i.e. MagicAndVersionLen bytes into the file), at which the two
// signature fields begin. Signing and verification zero this region
// (SignatureAreaLen bytes) before computing the file digest.
const SignatureAreaOffset = sectionOffsetsLen

// SignatureAreaLen is the combined on-disk size, in bytes, of both
// signature fields.
const SignatureAreaLen = 2 * SignatureFieldLen

// ErrNotADatabase is returned when the magic bytes don't match, or the file
// is too short to contain them.
var ErrNotADatabase = errors.New("filefmt: not a location database")

// ErrUnsupportedVersion describes a recognised magic with an unknown or
// rejected (legacy v0) version. ReadMagic does not return it; callers
// compare the returned version themselves.
var ErrUnsupportedVersion = errors.New("filefmt: unsupported database version")

// ErrInvalidData is returned when a header section's offset/length is
// malformed.
var ErrInvalidData = errors.New("filefmt: invalid header data")

// Header is the fully decoded v1 header. Each section carries an opaque
// 64-bit checksum alongside its offset/length; filefmt only stores and
// retrieves the value -- computing it at write time and verifying it at open
// time is the root package's job (it already imports go-farm for this).
type Header struct {
	VendorOff      uint32
	DescriptionOff uint32
	LicenseOff     uint32
	CreatedAt      uint64

	PoolOff, PoolLen uint32
	PoolChecksum     uint64

	ASOff, ASLen uint32
	ASChecksum   uint64

	NetworkTreeOff, NetworkTreeLen uint32
	NetworkTreeChecksum            uint64

	NetworksOff, NetworksLen uint32
	NetworksChecksum         uint64

	CountriesOff, CountriesLen uint32
	CountriesChecksum          uint64

	Signature1 []byte
	Signature2 []byte
}

// section describes one of the header's offset/length pairs, used for the
// generic non-overlap validation in Validate.
type section struct {
	name        string
	off, length uint32
}

// ReadMagic parses the 9-byte magic+version prefix of data. It returns
// ErrNotADatabase if data is too short or the magic bytes don't match, and
// the parsed version otherwise (callers must still reject unsupported
// versions).
func ReadMagic(data []byte) (version uint16, err error) {
	if len(data) < magicLen+2 {
		return 0, fmt.Errorf("%w: file too short to contain magic", ErrNotADatabase)
	}
	if string(data[:magicLen]) != Magic {
		return 0, fmt.Errorf("%w: bad magic bytes", ErrNotADatabase)
	}
	version = binary.BigEndian.Uint16(data[magicLen : magicLen+2])
	return version, nil
}

// WriteMagic appends the 9-byte magic+version prefix for version to dst.
func WriteMagic(dst []byte, version uint16) []byte {
	dst = append(dst, Magic...)
	var v [2]byte
	binary.BigEndian.PutUint16(v[:], version)
	return append(dst, v[:]...)
}

// Decode parses a v1 header from data, which must be at least HeaderSize
// bytes (the bytes immediately following the magic+version prefix).
func Decode(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: header truncated: %d < %d", ErrInvalidData, len(data), HeaderSize)
	}
	h := &Header{}
	r := cursor{data: data}

	h.VendorOff = r.u32()
	h.DescriptionOff = r.u32()
	h.LicenseOff = r.u32()
	h.CreatedAt = r.u64()

	h.PoolOff, h.PoolLen = r.u32(), r.u32()
	h.PoolChecksum = r.u64()
	h.ASOff, h.ASLen = r.u32(), r.u32()
	h.ASChecksum = r.u64()
	h.NetworkTreeOff, h.NetworkTreeLen = r.u32(), r.u32()
	h.NetworkTreeChecksum = r.u64()
	h.NetworksOff, h.NetworksLen = r.u32(), r.u32()
	h.NetworksChecksum = r.u64()
	h.CountriesOff, h.CountriesLen = r.u32(), r.u32()
	h.CountriesChecksum = r.u64()

	h.Signature1 = r.sig()
	h.Signature2 = r.sig()

	return h, r.err
}

// Encode serializes h to its fixed-size on-disk form.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	w := cursor{data: buf}

	w.putU32(h.VendorOff)
	w.putU32(h.DescriptionOff)
	w.putU32(h.LicenseOff)
	w.putU64(h.CreatedAt)

	w.putU32(h.PoolOff)
	w.putU32(h.PoolLen)
	w.putU64(h.PoolChecksum)
	w.putU32(h.ASOff)
	w.putU32(h.ASLen)
	w.putU64(h.ASChecksum)
	w.putU32(h.NetworkTreeOff)
	w.putU32(h.NetworkTreeLen)
	w.putU64(h.NetworkTreeChecksum)
	w.putU32(h.NetworksOff)
	w.putU32(h.NetworksLen)
	w.putU64(h.NetworksChecksum)
	w.putU32(h.CountriesOff)
	w.putU32(h.CountriesLen)
	w.putU64(h.CountriesChecksum)

	w.putSig(h.Signature1)
	w.putSig(h.Signature2)

	return buf
}

// cursor is a tiny big-endian read/write cursor over a fixed buffer.
type cursor struct {
	data []byte
	off  int
	err  error
}

func (c *cursor) u32() uint32 {
	if c.err != nil {
		return 0
	}
	v := binary.BigEndian.Uint32(c.data[c.off : c.off+4])
	c.off += 4
	return v
}

func (c *cursor) u64() uint64 {
	if c.err != nil {
		return 0
	}
	v := binary.BigEndian.Uint64(c.data[c.off : c.off+8])
	c.off += 8
	return v
}

func (c *cursor) sig() []byte {
	if c.err != nil {
		return nil
	}
	n := binary.BigEndian.Uint16(c.data[c.off : c.off+2])
	c.off += 2
	body := c.data[c.off : c.off+signatureCap]
	c.off += signatureCap
	if int(n) > signatureCap {
		c.err = fmt.Errorf("%w: signature length %d exceeds capacity %d", ErrInvalidData, n, signatureCap)
		return nil
	}
	out := make([]byte, n)
	copy(out, body[:n])
	return out
}

func (c *cursor) putU32(v uint32) {
	binary.BigEndian.PutUint32(c.data[c.off:c.off+4], v)
	c.off += 4
}

func (c *cursor) putU64(v uint64) {
	binary.BigEndian.PutUint64(c.data[c.off:c.off+8], v)
	c.off += 8
}

func (c *cursor) putSig(sig []byte) {
	binary.BigEndian.PutUint16(c.data[c.off:c.off+2], uint16(len(sig)))
	c.off += 2
	copy(c.data[c.off:c.off+signatureCap], sig)
	c.off += signatureCap
}

// Validate checks that every declared section lies within a file of size
// fileLen and that no two sections overlap.
func (h *Header) Validate(fileLen int, dataStart int) error {
	secs := []section{
		{"pool", h.PoolOff, h.PoolLen},
		{"as", h.ASOff, h.ASLen},
		{"network_tree", h.NetworkTreeOff, h.NetworkTreeLen},
		{"networks", h.NetworksOff, h.NetworksLen},
		{"countries", h.CountriesOff, h.CountriesLen},
	}
	type span struct {
		name     string
		lo, hi   int64
	}
	var spans []span
	for _, s := range secs {
		lo := int64(s.off)
		hi := lo + int64(s.length)
		if s.length > 0 {
			if lo < int64(dataStart) || hi > int64(fileLen) {
				return fmt.Errorf("%w: section %q [%d,%d) out of bounds for file of length %d", ErrInvalidData, s.name, lo, hi, fileLen)
			}
		}
		spans = append(spans, span{s.name, lo, hi})
	}
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			if a.lo == a.hi || b.lo == b.hi {
				continue
			}
			if a.lo < b.hi && b.lo < a.hi {
				return fmt.Errorf("%w: sections %q and %q overlap", ErrInvalidData, a.name, b.name)
			}
		}
	}
	return nil
}
