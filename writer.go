// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package locdb

import (
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"github.com/dgryski/go-farm"

	"github.com/location-tools/locdb/internal/astable"
	"github.com/location-tools/locdb/internal/bitaddr"
	"github.com/location-tools/locdb/internal/cctable"
	"github.com/location-tools/locdb/internal/filefmt"
	"github.com/location-tools/locdb/internal/nettree"
	"github.com/location-tools/locdb/internal/sign"
	"github.com/location-tools/locdb/internal/strpool"
)

// Writer builds a new database file in memory and emits it in a single pass.
// It moves through three implicit states: empty, populated by Add/Set calls,
// and sealed once Write succeeds. No method may be called on a sealed
// Writer.
type Writer struct {
	pool *strpool.Writer
	as   *astable.Builder
	cc   *cctable.Builder
	tree *nettree.Builder

	vendorOff      uint32
	descriptionOff uint32
	licenseOff     uint32
	createdAt      time.Time

	logger         *slog.Logger
	privateKeyPEM1 []byte
	privateKeyPEM2 []byte

	sealed bool
}

// NewWriter returns an empty Writer ready to accept AS, country, and network
// records.
func NewWriter(opts ...WriterOption) *Writer {
	var o writerOptions
	o.logger = noopLogger()
	for _, opt := range opts {
		opt(&o)
	}
	return &Writer{
		pool:           strpool.NewWriter(),
		as:             astable.NewBuilder(),
		cc:             cctable.NewBuilder(),
		tree:           nettree.NewBuilder(),
		createdAt:      time.Now(),
		logger:         o.logger,
		privateKeyPEM1: o.privateKeyPEM1,
		privateKeyPEM2: o.privateKeyPEM2,
	}
}

// SetVendor sets the database header's vendor string.
func (w *Writer) SetVendor(vendor string) error {
	if err := w.checkSealed(); err != nil {
		return err
	}
	w.vendorOff = w.pool.Add(vendor)
	return nil
}

// SetDescription sets the database header's description string.
func (w *Writer) SetDescription(description string) error {
	if err := w.checkSealed(); err != nil {
		return err
	}
	w.descriptionOff = w.pool.Add(description)
	return nil
}

// SetLicense sets the database header's license string.
func (w *Writer) SetLicense(license string) error {
	if err := w.checkSealed(); err != nil {
		return err
	}
	w.licenseOff = w.pool.Add(license)
	return nil
}

// SetCreatedAt overrides the database's creation timestamp, which otherwise
// defaults to the time NewWriter was called.
func (w *Writer) SetCreatedAt(t time.Time) error {
	if err := w.checkSealed(); err != nil {
		return err
	}
	w.createdAt = t
	return nil
}

// AddAS adds an autonomous-system record. It returns ErrInvalidArgument if
// asn has already been added.
func (w *Writer) AddAS(asn uint32, name string) error {
	if err := w.checkSealed(); err != nil {
		return err
	}
	nameOff := w.pool.Add(name)
	if err := w.as.Add(asn, nameOff); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// AddCountry adds a country record. continent may be empty for the reserved
// special codes (see GetCountry). It returns ErrInvalidArgument if code is
// malformed or has already been added.
func (w *Writer) AddCountry(code, continent, name string) error {
	if err := w.checkSealed(); err != nil {
		return err
	}
	nameOff := w.pool.Add(name)
	if err := w.cc.Add(code, continent, nameOff); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// AddNetwork inserts a network allocation into the tree being built.
// country may be empty; if non-empty it must be a valid country code.
// Insertion order does not affect the resulting canonical tree: networks
// that enclose one another are deduplicated or split, and adjacent
// identical leaves are merged back together at Write time. The one
// exception is a network added twice: flags are OR'd, and the country and
// asn of the later call are kept.
func (w *Writer) AddNetwork(network netip.Prefix, country string, asn uint32, flags uint16) error {
	if err := w.checkSealed(); err != nil {
		return err
	}
	if !network.IsValid() {
		return fmt.Errorf("%w: invalid network %v", ErrInvalidArgument, network)
	}
	if err := w.validateCountry(country); err != nil {
		return err
	}

	addr := bitaddr.FromNetip(network.Addr())
	prefix := network.Bits()
	if network.Addr().Is4() {
		prefix += 96
	}
	w.addLeaf(addr, prefix, country, asn, flags)
	return nil
}

// AddNetworkRange inserts every address in the inclusive range [start, end]
// as a single allocation, splitting it into the minimal set of CIDR-aligned
// blocks internally. This accepts data from sources that describe
// allocations as address ranges rather than CIDR blocks, a common delegation
// format. start and end must be the same address family, and start must not
// sort after end.
func (w *Writer) AddNetworkRange(start, end netip.Addr, country string, asn uint32, flags uint16) error {
	if err := w.checkSealed(); err != nil {
		return err
	}
	if !start.IsValid() || !end.IsValid() {
		return fmt.Errorf("%w: invalid range endpoint", ErrInvalidArgument)
	}
	if start.Is4() != end.Is4() {
		return fmt.Errorf("%w: range endpoints are different address families", ErrInvalidArgument)
	}
	if err := w.validateCountry(country); err != nil {
		return err
	}

	blocks, err := bitaddr.RangeToPrefixes(bitaddr.FromNetip(start), bitaddr.FromNetip(end))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	for _, block := range blocks {
		w.addLeaf(block.Address, block.Length, country, asn, flags)
	}
	return nil
}

func (w *Writer) validateCountry(country string) error {
	if country == "" {
		return nil
	}
	if err := cctable.ValidateCode(country); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

func (w *Writer) addLeaf(addr bitaddr.Address, prefix int, country string, asn uint32, flags uint16) {
	var leaf nettree.Leaf
	copy(leaf.Country[:], country)
	leaf.ASN = asn
	leaf.Flags = flags
	w.tree.Add(addr, prefix, leaf)
}

func (w *Writer) checkSealed() error {
	if w.sealed {
		return ErrWriterSealed
	}
	return nil
}

// Write canonicalises the accumulated tree, lays out every section, signs
// the result if signing keys were supplied, and writes the finished
// database to dst. The Writer is sealed on success; it must not be reused.
func (w *Writer) Write(dst io.Writer) (err error) {
	if err := w.checkSealed(); err != nil {
		return err
	}

	treeBytes, leafBytes, stats := w.tree.Serialize()
	w.logger.Debug("serialized network tree", "nodes", stats.Nodes, "leaves", stats.Leaves)

	poolBytes := w.pool.Bytes()
	asBytes := w.as.Bytes()
	ccBytes := w.cc.Bytes()

	dataStart := uint32(filefmt.MagicAndVersionLen + filefmt.HeaderSize)

	header := &filefmt.Header{
		VendorOff:      w.vendorOff,
		DescriptionOff: w.descriptionOff,
		LicenseOff:     w.licenseOff,
		CreatedAt:      uint64(w.createdAt.Unix()),
	}

	header.PoolOff, header.PoolLen = dataStart, uint32(len(poolBytes))
	header.PoolChecksum = farm.Hash64(poolBytes)
	header.ASOff, header.ASLen = header.PoolOff+header.PoolLen, uint32(len(asBytes))
	header.ASChecksum = farm.Hash64(asBytes)
	header.NetworksOff, header.NetworksLen = header.ASOff+header.ASLen, uint32(len(leafBytes))
	header.NetworksChecksum = farm.Hash64(leafBytes)
	header.NetworkTreeOff, header.NetworkTreeLen = header.NetworksOff+header.NetworksLen, uint32(len(treeBytes))
	header.NetworkTreeChecksum = farm.Hash64(treeBytes)
	header.CountriesOff, header.CountriesLen = header.NetworkTreeOff+header.NetworkTreeLen, uint32(len(ccBytes))
	header.CountriesChecksum = farm.Hash64(ccBytes)

	buf := make([]byte, 0, int(header.CountriesOff+header.CountriesLen))
	buf = filefmt.WriteMagic(buf, filefmt.Version1)
	buf = append(buf, header.Encode()...)
	buf = append(buf, poolBytes...)
	buf = append(buf, asBytes...)
	buf = append(buf, leafBytes...)
	buf = append(buf, treeBytes...)
	buf = append(buf, ccBytes...)

	if w.privateKeyPEM1 != nil || w.privateKeyPEM2 != nil {
		digest := sign.Digest(buf)
		if w.privateKeyPEM1 != nil {
			key1, perr := sign.ParsePrivateKey(w.privateKeyPEM1)
			if perr != nil {
				return fmt.Errorf("%w: %v", ErrInvalidArgument, perr)
			}
			sig1, serr := sign.Sign(key1, digest)
			if serr != nil {
				return fmt.Errorf("%w: %v", ErrIO, serr)
			}
			header.Signature1 = sig1
		}
		if w.privateKeyPEM2 != nil {
			key2, perr := sign.ParsePrivateKey(w.privateKeyPEM2)
			if perr != nil {
				return fmt.Errorf("%w: %v", ErrInvalidArgument, perr)
			}
			sig2, serr := sign.Sign(key2, digest)
			if serr != nil {
				return fmt.Errorf("%w: %v", ErrIO, serr)
			}
			header.Signature2 = sig2
		}

		// The header is fixed-size: re-encoding with signatures filled in
		// does not move any section that follows it.
		copy(buf[filefmt.MagicAndVersionLen:filefmt.MagicAndVersionLen+filefmt.HeaderSize], header.Encode())
	}

	if _, werr := dst.Write(buf); werr != nil {
		return fmt.Errorf("%w: %v", ErrIO, werr)
	}

	w.sealed = true
	w.logger.Info("wrote database",
		"size", len(buf), "as_records", w.as.Len(), "country_records", w.cc.Len(), "networks", stats.Leaves)
	return nil
}
