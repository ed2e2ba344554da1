// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bitaddr

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFamily(t *testing.T) {
	v4 := FromNetip(netip.MustParseAddr("192.0.2.1"))
	assert.Equal(t, FamilyV4, FamilyOf(v4))

	v6 := FromNetip(netip.MustParseAddr("2001:db8::1"))
	assert.Equal(t, FamilyV6, FamilyOf(v6))
}

func TestNetipRoundTrip(t *testing.T) {
	for _, s := range []string{"192.0.2.1", "2001:db8::1", "::1", "0.0.0.0"} {
		addr := netip.MustParseAddr(s)
		got := FromNetip(addr).Netip()
		assert.Equal(t, addr, got)
	}
}

func TestCompare(t *testing.T) {
	a := FromNetip(netip.MustParseAddr("192.0.2.1"))
	b := FromNetip(netip.MustParseAddr("192.0.2.2"))
	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(b, a))
	assert.Equal(t, 0, Compare(a, a))
}

func TestBitAndSetBit(t *testing.T) {
	var a Address
	a = SetBit(a, 0, 1)
	assert.Equal(t, 1, Bit(a, 0))
	assert.Equal(t, 0, Bit(a, 1))
	a = SetBit(a, 0, 0)
	assert.Equal(t, 0, Bit(a, 0))
}

func TestIncrementDecrement(t *testing.T) {
	var a Address
	next, err := Increment(a)
	require.NoError(t, err)
	assert.Equal(t, 1, Bit(next, 127))

	_, err = Decrement(Address{})
	assert.ErrorIs(t, err, ErrOutOfRange)

	var allOnes Address
	for i := range allOnes {
		allOnes[i] = 0xff
	}
	_, err = Increment(allOnes)
	assert.ErrorIs(t, err, ErrOutOfRange)

	back, err := Decrement(next)
	require.NoError(t, err)
	assert.Equal(t, a, back)
}

func TestIncrementDecrementStopAtIPv4Boundary(t *testing.T) {
	top := FromNetip(netip.MustParseAddr("255.255.255.255"))
	_, err := Increment(top)
	assert.ErrorIs(t, err, ErrOutOfRange)

	bottom := FromNetip(netip.MustParseAddr("0.0.0.0"))
	_, err = Decrement(bottom)
	assert.ErrorIs(t, err, ErrOutOfRange)

	almostTop := FromNetip(netip.MustParseAddr("255.255.255.254"))
	next, err := Increment(almostTop)
	require.NoError(t, err)
	assert.Equal(t, top, next)
	assert.Equal(t, FamilyV4, FamilyOf(next))

	almostBottom := FromNetip(netip.MustParseAddr("0.0.0.1"))
	prev, err := Decrement(almostBottom)
	require.NoError(t, err)
	assert.Equal(t, bottom, prev)
	assert.Equal(t, FamilyV4, FamilyOf(prev))
}

func TestPrefixToMaskAndAnd(t *testing.T) {
	addr := FromNetip(netip.MustParseAddr("192.0.2.200"))
	mask24 := PrefixToMask(120) // ::ffff:192.0.2.200/24 is bits 96..120 + network
	first := And(addr, mask24)
	assert.Equal(t, byte(0), first[15])
}

func TestFirstLastAddress(t *testing.T) {
	network := FromNetip(netip.MustParseAddr("192.0.2.0"))
	prefix := 96 + 24
	first := FirstAddress(network, prefix)
	last := LastAddress(network, prefix)
	assert.Equal(t, netip.MustParseAddr("192.0.2.0"), first.Netip())
	assert.Equal(t, netip.MustParseAddr("192.0.2.255"), last.Netip())
}

func TestTrailingZeroBits(t *testing.T) {
	zero := Address{}
	assert.Equal(t, 128, TrailingZeroBits(zero))

	one := Address{}
	one[15] = 1
	assert.Equal(t, 0, TrailingZeroBits(one))

	aligned := Address{}
	aligned[15] = 0x80
	assert.Equal(t, 7, TrailingZeroBits(aligned))
}

func TestRangeToPrefixes(t *testing.T) {
	start := FromNetip(netip.MustParseAddr("192.0.2.0"))
	end := FromNetip(netip.MustParseAddr("192.0.2.5"))
	blocks, err := RangeToPrefixes(start, end)
	require.NoError(t, err)

	var got []string
	for _, b := range blocks {
		got = append(got, netip.PrefixFrom(b.Address.Netip(), b.Length-96).String())
	}
	assert.Equal(t, []string{"192.0.2.0/30", "192.0.2.4/31"}, got)
}

func TestRangeToPrefixesSingleAddress(t *testing.T) {
	addr := FromNetip(netip.MustParseAddr("203.0.113.9"))
	blocks, err := RangeToPrefixes(addr, addr)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, 128, blocks[0].Length)
}

func TestRangeToPrefixesRejectsReversedRange(t *testing.T) {
	start := FromNetip(netip.MustParseAddr("192.0.2.5"))
	end := FromNetip(netip.MustParseAddr("192.0.2.0"))
	_, err := RangeToPrefixes(start, end)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestIsIn96(t *testing.T) {
	v4 := FromNetip(netip.MustParseAddr("10.0.0.1"))
	assert.True(t, IsIn96(v4))

	v6 := FromNetip(netip.MustParseAddr("2001:db8::1"))
	assert.False(t, IsIn96(v6))
}
