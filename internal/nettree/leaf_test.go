// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package nettree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeafEncodeDecode(t *testing.T) {
	l := Leaf{Country: [2]byte{'U', 'S'}, Flags: FlagAnycast, ASN: 64496}
	var buf [LeafRecordSize]byte
	l.encode(buf[:])
	got := decodeLeaf(buf[:])
	assert.Equal(t, l, got)
}

func TestLeafHasFlag(t *testing.T) {
	l := Leaf{Flags: FlagAnonymousProxy | FlagDrop}
	assert.True(t, l.HasFlag(FlagAnonymousProxy))
	assert.True(t, l.HasFlag(FlagDrop))
	assert.False(t, l.HasFlag(FlagAnycast))
}

func TestLeafReader(t *testing.T) {
	leaves := []Leaf{
		{Country: [2]byte{'U', 'S'}, ASN: 1},
		{Country: [2]byte{'D', 'E'}, ASN: 2},
	}
	buf := make([]byte, len(leaves)*LeafRecordSize)
	for i, l := range leaves {
		l.encode(buf[i*LeafRecordSize : (i+1)*LeafRecordSize])
	}

	r, err := NewLeafReader(buf)
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	got, err := r.At(0)
	require.NoError(t, err)
	assert.Equal(t, leaves[0], got)

	_, err = r.At(5)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestLeafReaderRejectsMisalignedData(t *testing.T) {
	_, err := NewLeafReader(make([]byte, LeafRecordSize+1))
	assert.ErrorIs(t, err, ErrInvalidData)
}
