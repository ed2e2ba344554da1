// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package nettree

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/location-tools/locdb/internal/bitaddr"
)

func mustNetwork(t *testing.T, cidr string) (bitaddr.Address, int) {
	t.Helper()
	p := netip.MustParsePrefix(cidr)
	addr := bitaddr.FromNetip(p.Addr())
	prefix := p.Bits()
	if p.Addr().Is4() {
		prefix += 96
	}
	return addr, prefix
}

func TestBuilderDedupEnclosedIdenticalLeaf(t *testing.T) {
	// A /8, then a /16 and a /24 beneath it with identical payload, collapse
	// back down to a single /8 leaf.
	b := NewBuilder()
	leaf := Leaf{Country: [2]byte{'U', 'S'}, ASN: 64496}

	addr8, p8 := mustNetwork(t, "10.0.0.0/8")
	addr16, p16 := mustNetwork(t, "10.0.0.0/16")
	addr24, p24 := mustNetwork(t, "10.0.0.0/24")

	b.Add(addr8, p8, leaf)
	b.Add(addr16, p16, leaf)
	b.Add(addr24, p24, leaf)

	treeBytes, leafBytes, stats := b.Serialize()
	assert.Equal(t, 1, stats.Leaves)

	leaves, err := NewLeafReader(leafBytes)
	require.NoError(t, err)
	tree, err := NewTreeReader(treeBytes, leaves)
	require.NoError(t, err)

	idx, depth, ok := tree.Lookup(addr24)
	require.True(t, ok)
	assert.Equal(t, p8, depth)
	got, err := leaves.At(idx)
	require.NoError(t, err)
	assert.Equal(t, leaf, got)
}

func TestBuilderSplitOnConflictingInsert(t *testing.T) {
	// A /24 with one payload arrives under a /16 already carrying a
	// different payload: the /16 must split so both survive at their own
	// specificity.
	b := NewBuilder()
	outer := Leaf{Country: [2]byte{'U', 'S'}, ASN: 1}
	inner := Leaf{Country: [2]byte{'D', 'E'}, ASN: 2}

	addr16, p16 := mustNetwork(t, "10.0.0.0/16")
	addr24, p24 := mustNetwork(t, "10.0.1.0/24")

	b.Add(addr16, p16, outer)
	b.Add(addr24, p24, inner)

	treeBytes, leafBytes, _ := b.Serialize()
	leaves, err := NewLeafReader(leafBytes)
	require.NoError(t, err)
	tree, err := NewTreeReader(treeBytes, leaves)
	require.NoError(t, err)

	idxInner, depthInner, ok := tree.Lookup(addr24)
	require.True(t, ok)
	assert.Equal(t, p24, depthInner)
	gotInner, err := leaves.At(idxInner)
	require.NoError(t, err)
	assert.Equal(t, inner, gotInner)

	otherAddr, _ := mustNetwork(t, "10.0.2.0/24")
	idxOuter, depthOuter, ok := tree.Lookup(otherAddr)
	require.True(t, ok)
	assert.Equal(t, p16, depthOuter)
	gotOuter, err := leaves.At(idxOuter)
	require.NoError(t, err)
	assert.Equal(t, outer, gotOuter)
}

func TestBuilderFillGapsOnBroaderAfterNarrower(t *testing.T) {
	// Insert the more specific network first, then a broader network
	// covering it: the broader insert must only fill the still-uncovered
	// gap, leaving the narrower leaf untouched.
	b := NewBuilder()
	narrow := Leaf{Country: [2]byte{'D', 'E'}, ASN: 2}
	broad := Leaf{Country: [2]byte{'U', 'S'}, ASN: 1}

	addr24, p24 := mustNetwork(t, "10.0.1.0/24")
	addr16, p16 := mustNetwork(t, "10.0.0.0/16")

	b.Add(addr24, p24, narrow)
	b.Add(addr16, p16, broad)

	treeBytes, leafBytes, _ := b.Serialize()
	leaves, err := NewLeafReader(leafBytes)
	require.NoError(t, err)
	tree, err := NewTreeReader(treeBytes, leaves)
	require.NoError(t, err)

	idxNarrow, depthNarrow, ok := tree.Lookup(addr24)
	require.True(t, ok)
	assert.Equal(t, p24, depthNarrow)
	gotNarrow, err := leaves.At(idxNarrow)
	require.NoError(t, err)
	assert.Equal(t, narrow, gotNarrow)

	gapAddr, _ := mustNetwork(t, "10.0.2.0/24")
	idxBroad, depthBroad, ok := tree.Lookup(gapAddr)
	require.True(t, ok)
	assert.Equal(t, p16, depthBroad)
	gotBroad, err := leaves.At(idxBroad)
	require.NoError(t, err)
	assert.Equal(t, broad, gotBroad)
}

func TestBuilderExactDuplicateInsertOrsFlags(t *testing.T) {
	b := NewBuilder()
	first := Leaf{Country: [2]byte{'U', 'S'}, ASN: 1, Flags: FlagAnycast}
	second := Leaf{Country: [2]byte{'U', 'S'}, ASN: 1, Flags: FlagDrop}

	addr, prefix := mustNetwork(t, "192.0.2.0/24")
	b.Add(addr, prefix, first)
	b.Add(addr, prefix, second)

	treeBytes, leafBytes, stats := b.Serialize()
	assert.Equal(t, 1, stats.Leaves)

	leaves, err := NewLeafReader(leafBytes)
	require.NoError(t, err)
	tree, err := NewTreeReader(treeBytes, leaves)
	require.NoError(t, err)

	idx, _, ok := tree.Lookup(addr)
	require.True(t, ok)
	got, err := leaves.At(idx)
	require.NoError(t, err)
	assert.Equal(t, FlagAnycast|FlagDrop, got.Flags)
}

func TestBuilderMergesIdenticalSiblingsAfterSplit(t *testing.T) {
	// Both halves of a network end up with the same payload after two
	// separate, equally-specific inserts: canonicalisation must merge them
	// back into a single parent leaf.
	b := NewBuilder()
	leaf := Leaf{Country: [2]byte{'U', 'S'}, ASN: 1}

	lowerAddr, p25 := mustNetwork(t, "192.0.2.0/25")
	upperAddr, _ := mustNetwork(t, "192.0.2.128/25")

	b.Add(lowerAddr, p25, leaf)
	b.Add(upperAddr, p25, leaf)

	_, _, stats := b.Serialize()
	assert.Equal(t, 1, stats.Leaves)
}

func TestBuilderLookupMiss(t *testing.T) {
	b := NewBuilder()
	addr, prefix := mustNetwork(t, "192.0.2.0/24")
	b.Add(addr, prefix, Leaf{ASN: 1})

	treeBytes, leafBytes, _ := b.Serialize()
	leaves, err := NewLeafReader(leafBytes)
	require.NoError(t, err)
	tree, err := NewTreeReader(treeBytes, leaves)
	require.NoError(t, err)

	elsewhere, _ := mustNetwork(t, "203.0.113.0/24")
	_, _, ok := tree.Lookup(elsewhere)
	assert.False(t, ok)
}
