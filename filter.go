// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package locdb

import (
	"net/netip"

	"github.com/location-tools/locdb/internal/bitaddr"
	"github.com/location-tools/locdb/internal/nettree"
)

// AddressFamily restricts ListNetworks to a particular address family.
type AddressFamily int

const (
	// FamilyAny matches both IPv4 and IPv6 networks.
	FamilyAny AddressFamily = iota
	// FamilyV4 restricts to networks within ::ffff:0:0/96.
	FamilyV4
	// FamilyV6 restricts to networks outside ::ffff:0:0/96.
	FamilyV6
)

// Filter composes the predicates ListNetworks accepts. All set predicates
// must match (logical AND) for a network to be yielded. The zero Filter
// matches every network.
type Filter struct {
	Family AddressFamily

	// FlagsMask/FlagsMatch, if FlagsSet, require leaf.Flags & FlagsMask ==
	// FlagsMatch.
	FlagsSet   bool
	FlagsMask  uint16
	FlagsMatch uint16

	// ASN, if ASNSet, requires an exact match.
	ASNSet bool
	ASN    uint32

	// Country, if CountrySet, requires an exact match.
	CountrySet bool
	Country    string
}

func (f Filter) toInternal() nettree.Filter {
	nf := nettree.Filter{
		HasFlags:   f.FlagsSet,
		FlagsMask:  f.FlagsMask,
		FlagsMatch: f.FlagsMatch,
		HasASN:     f.ASNSet,
		ASN:        f.ASN,
	}
	switch f.Family {
	case FamilyV4:
		nf.Family = nettree.FamilyV4
	case FamilyV6:
		nf.Family = nettree.FamilyV6
	default:
		nf.Family = nettree.FamilyAny
	}
	if f.CountrySet {
		nf.HasCountry = true
		copy(nf.Country[:], f.Country)
	}
	return nf
}

// NetworkIterator yields networks in ascending address order. It is safe to
// stop iterating early by calling Close.
type NetworkIterator struct {
	enum    nettree.Enumerator
	ch      <-chan nettree.Result
	started bool
	closed  bool
}

// Next advances the iterator, returning the next matching network, or
// ok=false once exhausted.
func (it *NetworkIterator) Next() (Network, bool) {
	if it.closed {
		return Network{}, false
	}
	if !it.started {
		it.ch = it.enum.Iter()
		it.started = true
	}
	res, ok := <-it.ch
	if !ok {
		return Network{}, false
	}
	return leafToNetwork(res.Address, res.Prefix, res.Leaf), true
}

// Close releases the iterator's goroutine. It is safe to call multiple
// times and safe to omit if Next was run to exhaustion.
func (it *NetworkIterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.enum.Close()
}

// ListNetworks returns an iterator over every network matching filter, in
// ascending address order.
func (db *Database) ListNetworks(filter Filter) (*NetworkIterator, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	enum := db.tree.Enumerate(filter.toInternal())
	return &NetworkIterator{enum: enum}, nil
}

// ListBogons is a convenience over ListNetworks restricted to the reserved
// special country codes (anonymous proxy, satellite, anycast, drop).
func (db *Database) ListBogons() (*NetworkIterator, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	enum := db.tree.Enumerate(nettree.Filter{Family: nettree.FamilyAny})
	return &NetworkIterator{enum: &bogonEnumerator{inner: enum, done: make(chan struct{})}}, nil
}

// bogonEnumerator wraps an Enumerator, dropping every leaf whose country
// code is not one of the reserved special codes.
type bogonEnumerator struct {
	inner nettree.Enumerator
	done  chan struct{}
}

func (b *bogonEnumerator) Iter() <-chan nettree.Result {
	in := b.inner.Iter()
	out := make(chan nettree.Result)
	go func() {
		defer close(out)
		for res := range in {
			if isBogonCountry(res.Leaf.Country) {
				select {
				case out <- res:
				case <-b.done:
					return
				}
			}
		}
	}()
	return out
}

func (b *bogonEnumerator) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
	b.inner.Close()
}

func isBogonCountry(code [2]byte) bool {
	switch string(code[:]) {
	case "A1", "A2", "A3", "XD":
		return true
	default:
		return false
	}
}

// SubnetNetworks enumerates every network at or beneath network, in
// ascending address order.
func (db *Database) SubnetNetworks(network netip.Prefix, filter Filter) (*NetworkIterator, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	addr := bitaddr.FromNetip(network.Addr())
	prefix := network.Bits()
	if network.Addr().Is4() {
		prefix += 96
	}
	enum, _ := db.tree.EnumerateSubnet(addr, prefix, filter.toInternal())
	return &NetworkIterator{enum: enum}, nil
}
