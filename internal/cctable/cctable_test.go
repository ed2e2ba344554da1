// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package cctable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCode(t *testing.T) {
	assert.NoError(t, ValidateCode("US"))
	assert.NoError(t, ValidateCode(AnonymousProxy))
	assert.NoError(t, ValidateCode(Drop))

	assert.ErrorIs(t, ValidateCode("us"), ErrInvalidCode)
	assert.ErrorIs(t, ValidateCode("XZ"), ErrInvalidCode)
	assert.ErrorIs(t, ValidateCode("USA"), ErrInvalidCode)
}

func TestBuilderRejectsDuplicate(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add("US", "NA", 1))
	err := b.Add("US", "NA", 2)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestBuilderSortsByCode(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add("US", "NA", 1))
	require.NoError(t, b.Add("DE", "EU", 2))
	require.NoError(t, b.Add(AnonymousProxy, "", 3))

	r, err := NewReader(b.Bytes())
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())

	rec0 := r.At(0)
	rec1 := r.At(1)
	rec2 := r.At(2)
	assert.Equal(t, "A1", string(rec0.Code[:]))
	assert.Equal(t, "DE", string(rec1.Code[:]))
	assert.Equal(t, "US", string(rec2.Code[:]))
}

func TestReaderGet(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add("US", "NA", 7))
	r, err := NewReader(b.Bytes())
	require.NoError(t, err)

	rec, ok := r.Get("US")
	require.True(t, ok)
	assert.Equal(t, uint32(7), rec.NameOff)
	assert.Equal(t, "NA", string(rec.Continent[:]))

	_, ok = r.Get("FR")
	assert.False(t, ok)
}
