// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package locdb reads and writes the location database file format: a
// compact, self-describing, byte-ordered binary container mapping IP
// addresses to their enclosing network allocation and that network's
// country, autonomous system, and operator-assigned flags.
//
// A Database is opened once from an *os.File and then shared freely across
// goroutines: every read operation (Lookup, ListNetworks, GetAS,
// GetCountry, and the header accessors) is a pure function over an
// immutable, memory-mapped region and is safe for concurrent use. Writer
// construction is the only mutable, single-threaded part of the API.
package locdb

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgryski/go-farm"

	"github.com/location-tools/locdb/internal/astable"
	"github.com/location-tools/locdb/internal/bitaddr"
	"github.com/location-tools/locdb/internal/cctable"
	"github.com/location-tools/locdb/internal/filefmt"
	"github.com/location-tools/locdb/internal/mmapfile"
	"github.com/location-tools/locdb/internal/nettree"
	"github.com/location-tools/locdb/internal/sign"
	"github.com/location-tools/locdb/internal/strpool"
)

// dbHandle owns the mmap region and duplicated file descriptor shared by a
// Database and every reference obtained via Ref. The last release unmaps
// the region and closes the descriptor; see the spec's "Reference counting
// of database/child handles" design note.
type dbHandle struct {
	mapping *mmapfile.Mapping
	refs    int32
	closed  int32
}

func (h *dbHandle) acquire() {
	atomic.AddInt32(&h.refs, 1)
}

func (h *dbHandle) release() error {
	if atomic.AddInt32(&h.refs, -1) > 0 {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&h.closed, 0, 1) {
		return nil
	}
	return h.mapping.Close()
}

func (h *dbHandle) isClosed() bool {
	return atomic.LoadInt32(&h.closed) != 0
}

// Database is an opened, read-only location database.
type Database struct {
	handle *dbHandle

	header  *filefmt.Header
	version uint16

	pool    *strpool.Reader
	asTable *astable.Reader
	ccTable *cctable.Reader
	leaves  *nettree.LeafReader
	tree    *nettree.TreeReader

	logger *slog.Logger
}

// Open duplicates f's descriptor, memory-maps it read-only, validates the
// magic/version/header, and returns a Database borrowing views over the
// mapped sections. The caller may close f immediately after Open returns.
func Open(f *os.File, opts ...OpenOption) (*Database, error) {
	var o openOptions
	o.logger = noopLogger()
	for _, opt := range opts {
		opt(&o)
	}

	mapping, err := mmapfile.Open(f, o.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	db, err := openFromMapping(mapping, o.logger)
	if err != nil {
		_ = mapping.Close()
		return nil, err
	}
	return db, nil
}

func openFromMapping(mapping *mmapfile.Mapping, logger *slog.Logger) (*Database, error) {
	data := mapping.Data()

	version, err := filefmt.ReadMagic(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotADatabase, err)
	}
	if version != filefmt.Version1 {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, version)
	}

	const magicAndVersionLen = 9
	header, err := filefmt.Decode(data[magicAndVersionLen:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	dataStart := magicAndVersionLen + filefmt.HeaderSize
	if err := header.Validate(len(data), dataStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	poolBytes := section(data, header.PoolOff, header.PoolLen)
	if err := checkSectionChecksum(logger, "pool", poolBytes, header.PoolChecksum); err != nil {
		return nil, err
	}
	pool := strpool.NewReader(poolBytes)

	asBytes := section(data, header.ASOff, header.ASLen)
	if err := checkSectionChecksum(logger, "as", asBytes, header.ASChecksum); err != nil {
		return nil, err
	}
	asTable, err := astable.NewReader(asBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	logger.Debug("opened AS table", "records", asTable.Len())

	ccBytes := section(data, header.CountriesOff, header.CountriesLen)
	if err := checkSectionChecksum(logger, "countries", ccBytes, header.CountriesChecksum); err != nil {
		return nil, err
	}
	ccTable, err := cctable.NewReader(ccBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	logger.Debug("opened country table", "records", ccTable.Len())

	leafBytes := section(data, header.NetworksOff, header.NetworksLen)
	if err := checkSectionChecksum(logger, "networks", leafBytes, header.NetworksChecksum); err != nil {
		return nil, err
	}
	leaves, err := nettree.NewLeafReader(leafBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	treeBytes := section(data, header.NetworkTreeOff, header.NetworkTreeLen)
	if err := checkSectionChecksum(logger, "network_tree", treeBytes, header.NetworkTreeChecksum); err != nil {
		return nil, err
	}
	tree, err := nettree.NewTreeReader(treeBytes, leaves)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	logger.Debug("opened network tree", "nodes", tree.Len(), "leaves", leaves.Len())

	handle := &dbHandle{mapping: mapping, refs: 1}

	logger.Info("opened database",
		"as_records", asTable.Len(), "country_records", ccTable.Len(), "networks", leaves.Len())

	return &Database{
		handle:  handle,
		header:  header,
		version: version,
		pool:    pool,
		asTable: asTable,
		ccTable: ccTable,
		leaves:  leaves,
		tree:    tree,
		logger:  logger,
	}, nil
}

func section(data []byte, off, length uint32) []byte {
	if length == 0 {
		return nil
	}
	return data[off : off+length]
}

// checkSectionChecksum recomputes data's FarmHash64 and compares it against
// want, the checksum recorded for this section in the header at Write time.
// On mismatch it logs a hex dump of the corrupt section at Debug level
// before returning ErrInvalidData; the dump is never produced on the
// success path.
func checkSectionChecksum(logger *slog.Logger, name string, data []byte, want uint64) error {
	got := farm.Hash64(data)
	if got != want {
		logger.Debug("section checksum mismatch", "section", name, "want", want, "got", got)
		logger.Debug("corrupt section dump", "section", name, "hex", filefmt.Hexdump(data))
		return fmt.Errorf("%w: %s section checksum mismatch", ErrInvalidData, name)
	}
	return nil
}

// Ref increments the database's reference count and returns db, allowing
// the returned value to be closed independently (e.g. by a goroutine that
// outlives the caller's own Close).
func (db *Database) Ref() *Database {
	db.handle.acquire()
	return db
}

// Close releases this reference to the database. The underlying mmap region
// and file descriptor are only released once every Ref'd reference has been
// closed.
func (db *Database) Close() error {
	return db.handle.release()
}

func (db *Database) checkOpen() error {
	if db.handle.isClosed() {
		return ErrDatabaseClosed
	}
	return nil
}

// CreatedAt returns the time the database was built.
func (db *Database) CreatedAt() (time.Time, error) {
	if err := db.checkOpen(); err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(db.header.CreatedAt), 0).UTC(), nil
}

// Vendor returns the vendor string from the database header.
func (db *Database) Vendor() (string, error) {
	return db.headerString(db.header.VendorOff)
}

// Description returns the description string from the database header.
func (db *Database) Description() (string, error) {
	return db.headerString(db.header.DescriptionOff)
}

// License returns the license string from the database header.
func (db *Database) License() (string, error) {
	return db.headerString(db.header.LicenseOff)
}

func (db *Database) headerString(off uint32) (string, error) {
	if err := db.checkOpen(); err != nil {
		return "", err
	}
	s, err := db.pool.Get(off)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return s, nil
}

// GetAS performs a binary search for asn, returning the matching AS record,
// or ok=false if there is none.
func (db *Database) GetAS(asn uint32) (as AS, ok bool, err error) {
	if err := db.checkOpen(); err != nil {
		return AS{}, false, err
	}
	rec, found := db.asTable.Get(asn)
	if !found {
		return AS{}, false, nil
	}
	name, gerr := db.pool.Get(rec.NameOff)
	if gerr != nil {
		return AS{}, false, fmt.Errorf("%w: %v", ErrInvalidData, gerr)
	}
	return AS{Number: rec.ASN, Name: name}, true, nil
}

// GetCountry performs a binary search for code, returning the matching
// country record, or ok=false if there is none. It returns
// ErrInvalidArgument if code is not a valid country code.
func (db *Database) GetCountry(code string) (c Country, ok bool, err error) {
	if err := db.checkOpen(); err != nil {
		return Country{}, false, err
	}
	if verr := cctable.ValidateCode(code); verr != nil {
		return Country{}, false, fmt.Errorf("%w: %v", ErrInvalidArgument, verr)
	}
	rec, found := db.ccTable.Get(code)
	if !found {
		return Country{}, false, nil
	}
	name, gerr := db.pool.Get(rec.NameOff)
	if gerr != nil {
		return Country{}, false, fmt.Errorf("%w: %v", ErrInvalidData, gerr)
	}
	continent := string(rec.Continent[:])
	if isBogonCountry(rec.Code) {
		continent = ""
	}
	return Country{
		Code:      string(rec.Code[:]),
		Continent: continent,
		Name:      name,
	}, true, nil
}

// Lookup parses address (either IPv4 or IPv6) and returns the most specific
// network covering it, or ok=false if no network in the database covers it.
// It returns ErrInvalidArgument if address does not parse.
func (db *Database) Lookup(address string) (net Network, ok bool, err error) {
	if err := db.checkOpen(); err != nil {
		return Network{}, false, err
	}
	addr, perr := netip.ParseAddr(address)
	if perr != nil {
		return Network{}, false, fmt.Errorf("%w: %v", ErrInvalidArgument, perr)
	}
	a := bitaddr.FromNetip(addr)

	leafIdx, prefix, found := db.tree.Lookup(a)
	if !found {
		return Network{}, false, nil
	}
	leaf, lerr := db.leaves.At(leafIdx)
	if lerr != nil {
		return Network{}, false, fmt.Errorf("%w: %v", ErrInvalidData, lerr)
	}

	first := bitaddr.FirstAddress(a, prefix)
	network := leafToNetwork(first, prefix, leaf)
	return network, true, nil
}

func leafToNetwork(first bitaddr.Address, prefix int, leaf nettree.Leaf) Network {
	addr := first.Netip()
	bits := prefix
	if addr.Is4() {
		bits = prefix - 96
	}
	return Network{
		Prefix:      netip.PrefixFrom(addr, bits),
		CountryCode: trimZero(leaf.Country),
		ASN:         leaf.ASN,
		Flags:       leaf.Flags,
	}
}

// Verify checks the database's detached signature against pubKeyPEM, a
// PEM-encoded RSA public key. It returns ErrNoSignature if the database
// carries no signature, ErrBadSignature if neither signature slot verifies
// against the key, and nil if either does.
func (db *Database) Verify(pubKeyPEM []byte) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	pub, err := sign.ParsePublicKey(pubKeyPEM)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	digest := db.digestWithZeroedSignatures()
	if verr := sign.Verify(pub, digest, db.header.Signature1, db.header.Signature2); verr != nil {
		switch {
		case errors.Is(verr, sign.ErrNoSignature):
			return ErrNoSignature
		case errors.Is(verr, sign.ErrBadSignature):
			return ErrBadSignature
		default:
			return fmt.Errorf("%w: %v", ErrIO, verr)
		}
	}
	return nil
}

// digestWithZeroedSignatures recomputes the SHA-512 digest of the mapped
// file with both signature fields zeroed, mirroring the layout Write signs.
func (db *Database) digestWithZeroedSignatures() [64]byte {
	data := db.handle.mapping.Data()
	buf := make([]byte, len(data))
	copy(buf, data)

	sigStart := filefmt.MagicAndVersionLen + filefmt.SignatureAreaOffset
	sigEnd := sigStart + filefmt.SignatureAreaLen
	for i := sigStart; i < sigEnd && i < len(buf); i++ {
		buf[i] = 0
	}
	return sign.Digest(buf)
}

func trimZero(code [2]byte) string {
	if code == [2]byte{} {
		return ""
	}
	return string(code[:])
}
