// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package locdb

import (
	"net/netip"

	"github.com/location-tools/locdb/internal/cctable"
	"github.com/location-tools/locdb/internal/nettree"
)

// Flag bits a Network may carry; see Network.HasFlag.
const (
	FlagAnonymousProxy    = nettree.FlagAnonymousProxy
	FlagSatelliteProvider = nettree.FlagSatelliteProvider
	FlagAnycast           = nettree.FlagAnycast
	FlagDrop              = nettree.FlagDrop
)

// The reserved special country codes; see GetCountry and ListBogons.
const (
	CountryAnonymousProxy = cctable.AnonymousProxy
	CountrySatellite      = cctable.Satellite
	CountryAnycast        = cctable.Anycast
	CountryDrop           = cctable.Drop
)

// Network is a single network allocation returned by Lookup or ListNetworks.
// Its fields are fully materialized at construction time and remain valid
// after the Database that produced it is closed.
type Network struct {
	Prefix      netip.Prefix
	CountryCode string
	ASN         uint32
	Flags       uint16
}

// HasFlag reports whether f is set on n.
func (n Network) HasFlag(f uint16) bool {
	return n.Flags&f != 0
}

// String returns the network in CIDR notation.
func (n Network) String() string {
	return n.Prefix.String()
}

// AS is a single autonomous-system record.
type AS struct {
	Number uint32
	Name   string
}

// Country is a single country record. Continent is empty for the reserved
// special codes (anonymous proxy, satellite, anycast, drop).
type Country struct {
	Code      string
	Continent string
	Name      string
}
