// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package nettree

import (
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/location-tools/locdb/internal/bitaddr"
)

func encodeNode(n rawNode) []byte {
	buf := make([]byte, NodeRecordSize)
	binary.BigEndian.PutUint32(buf[0:4], n.zero)
	binary.BigEndian.PutUint32(buf[4:8], n.one)
	binary.BigEndian.PutUint32(buf[8:12], n.networkIndex)
	return buf
}

func TestNewTreeReaderRejectsLeafAndInternal(t *testing.T) {
	var leafBuf [LeafRecordSize]byte
	Leaf{ASN: 1}.encode(leafBuf[:])
	leaves, err := NewLeafReader(leafBuf[:])
	require.NoError(t, err)

	bad := encodeNode(rawNode{zero: 1, one: Sentinel, networkIndex: 0})
	_, err = NewTreeReader(bad, leaves)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestNewTreeReaderRejectsOutOfRangeLeaf(t *testing.T) {
	leaves, err := NewLeafReader(nil)
	require.NoError(t, err)

	bad := encodeNode(rawNode{zero: Sentinel, one: Sentinel, networkIndex: 0})
	_, err = NewTreeReader(bad, leaves)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestNewTreeReaderRejectsOutOfRangeChild(t *testing.T) {
	leaves, err := NewLeafReader(nil)
	require.NoError(t, err)

	bad := encodeNode(rawNode{zero: 5, one: Sentinel, networkIndex: Sentinel})
	_, err = NewTreeReader(bad, leaves)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestEnumerateAscendingOrder(t *testing.T) {
	b := NewBuilder()
	a1, p1 := mustNetwork(t, "10.0.0.0/24")
	a2, p2 := mustNetwork(t, "10.0.1.0/24")
	b.Add(a2, p2, Leaf{ASN: 2})
	b.Add(a1, p1, Leaf{ASN: 1})

	treeBytes, leafBytes, _ := b.Serialize()
	leaves, err := NewLeafReader(leafBytes)
	require.NoError(t, err)
	tree, err := NewTreeReader(treeBytes, leaves)
	require.NoError(t, err)

	enum := tree.Enumerate(Filter{})
	defer enum.Close()

	var asns []uint32
	for res := range enum.Iter() {
		asns = append(asns, res.Leaf.ASN)
	}
	assert.Equal(t, []uint32{1, 2}, asns)
}

func TestEnumerateFiltersByASN(t *testing.T) {
	b := NewBuilder()
	a1, p1 := mustNetwork(t, "10.0.0.0/24")
	a2, p2 := mustNetwork(t, "10.0.1.0/24")
	b.Add(a1, p1, Leaf{ASN: 1})
	b.Add(a2, p2, Leaf{ASN: 2})

	treeBytes, leafBytes, _ := b.Serialize()
	leaves, err := NewLeafReader(leafBytes)
	require.NoError(t, err)
	tree, err := NewTreeReader(treeBytes, leaves)
	require.NoError(t, err)

	enum := tree.Enumerate(Filter{HasASN: true, ASN: 2})
	defer enum.Close()

	var results []Result
	for res := range enum.Iter() {
		results = append(results, res)
	}
	require.Len(t, results, 1)
	assert.Equal(t, uint32(2), results[0].Leaf.ASN)
}

func TestEnumerateSubnetScopesToSubtree(t *testing.T) {
	b := NewBuilder()
	inA, pA := mustNetwork(t, "10.0.0.0/24")
	inB, pB := mustNetwork(t, "10.0.1.0/24")
	outside, pOut := mustNetwork(t, "192.0.2.0/24")
	b.Add(inA, pA, Leaf{ASN: 1})
	b.Add(inB, pB, Leaf{ASN: 2})
	b.Add(outside, pOut, Leaf{ASN: 3})

	treeBytes, leafBytes, _ := b.Serialize()
	leaves, err := NewLeafReader(leafBytes)
	require.NoError(t, err)
	tree, err := NewTreeReader(treeBytes, leaves)
	require.NoError(t, err)

	subnet, _ := mustNetwork(t, "10.0.0.0/16")
	enum, ok := tree.EnumerateSubnet(subnet, 96+16, Filter{})
	require.True(t, ok)
	defer enum.Close()

	var asns []uint32
	for res := range enum.Iter() {
		asns = append(asns, res.Leaf.ASN)
	}
	assert.ElementsMatch(t, []uint32{1, 2}, asns)
}

func TestEnumerateSubnetEmptyWhenUncovered(t *testing.T) {
	b := NewBuilder()
	a1, p1 := mustNetwork(t, "10.0.0.0/24")
	b.Add(a1, p1, Leaf{ASN: 1})

	treeBytes, leafBytes, _ := b.Serialize()
	leaves, err := NewLeafReader(leafBytes)
	require.NoError(t, err)
	tree, err := NewTreeReader(treeBytes, leaves)
	require.NoError(t, err)

	elsewhere, _ := mustNetwork(t, "192.0.2.0/24")
	enum, ok := tree.EnumerateSubnet(elsewhere, 96+24, Filter{})
	require.True(t, ok)
	defer enum.Close()

	count := 0
	for range enum.Iter() {
		count++
	}
	assert.Equal(t, 0, count)
}

func TestEnumeratorCloseStopsDelivery(t *testing.T) {
	b := NewBuilder()
	a1, p1 := mustNetwork(t, "10.0.0.0/24")
	a2, p2 := mustNetwork(t, "10.0.1.0/24")
	b.Add(a1, p1, Leaf{ASN: 1})
	b.Add(a2, p2, Leaf{ASN: 2})

	treeBytes, leafBytes, _ := b.Serialize()
	leaves, err := NewLeafReader(leafBytes)
	require.NoError(t, err)
	tree, err := NewTreeReader(treeBytes, leaves)
	require.NoError(t, err)

	enum := tree.Enumerate(Filter{})
	ch := enum.Iter()
	_, ok := <-ch
	require.True(t, ok)

	enum.Close()
	// Drain; the channel must close promptly rather than hang.
	for range ch {
	}
}

func TestFilterMatchFamily(t *testing.T) {
	v4 := bitaddr.FromNetip(netip.MustParseAddr("192.0.2.1"))
	v6 := bitaddr.FromNetip(netip.MustParseAddr("2001:db8::1"))

	assert.True(t, Filter{Family: FamilyV4}.Match(v4, Leaf{}))
	assert.False(t, Filter{Family: FamilyV4}.Match(v6, Leaf{}))
	assert.True(t, Filter{Family: FamilyV6}.Match(v6, Leaf{}))
	assert.True(t, Filter{Family: FamilyAny}.Match(v4, Leaf{}))
}
