// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package nettree

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/location-tools/locdb/internal/bitaddr"
)

// NodeRecordSize is the on-disk size in bytes of a single tree node.
const NodeRecordSize = 12

// Sentinel marks an absent child or absent leaf reference in a tree node.
const Sentinel = 0xFFFFFFFF

// MaxDepth is the maximum depth of the tree, one bit per level of a
// 128-bit address.
const MaxDepth = 128

type rawNode struct {
	zero, one, networkIndex uint32
}

func decodeNode(src []byte) rawNode {
	return rawNode{
		zero:         binary.BigEndian.Uint32(src[0:4]),
		one:          binary.BigEndian.Uint32(src[4:8]),
		networkIndex: binary.BigEndian.Uint32(src[8:12]),
	}
}

// TreeReader is a read-only view over the flat, pre-order-serialized tree
// node array, typically backed directly by an mmap region.
type TreeReader struct {
	data   []byte
	n      int
	leaves *LeafReader
}

// NewTreeReader wraps data (not copied) as a TreeReader. leaves must already
// be validated.
func NewTreeReader(data []byte, leaves *LeafReader) (*TreeReader, error) {
	if len(data)%NodeRecordSize != 0 {
		return nil, fmt.Errorf("%w: tree data length %d not a multiple of %d", ErrInvalidData, len(data), NodeRecordSize)
	}
	n := len(data) / NodeRecordSize
	t := &TreeReader{data: data, n: n, leaves: leaves}
	for i := 0; i < n; i++ {
		node := t.at(i)
		if node.networkIndex != Sentinel {
			if node.zero != Sentinel || node.one != Sentinel {
				return nil, fmt.Errorf("%w: node %d is both leaf and internal", ErrInvalidData, i)
			}
			if int(node.networkIndex) >= leaves.Len() {
				return nil, fmt.Errorf("%w: node %d references out-of-range leaf %d", ErrInvalidData, i, node.networkIndex)
			}
		}
		if node.zero != Sentinel && int(node.zero) >= n {
			return nil, fmt.Errorf("%w: node %d has out-of-range zero child %d", ErrInvalidData, i, node.zero)
		}
		if node.one != Sentinel && int(node.one) >= n {
			return nil, fmt.Errorf("%w: node %d has out-of-range one child %d", ErrInvalidData, i, node.one)
		}
	}
	return t, nil
}

// Len returns the number of nodes in the tree.
func (t *TreeReader) Len() int {
	return t.n
}

func (t *TreeReader) at(i int) rawNode {
	off := i * NodeRecordSize
	return decodeNode(t.data[off : off+NodeRecordSize])
}

// Lookup performs the longest-prefix-match walk described in the database
// format: starting at the root, it follows addr's bits one at a time,
// remembering the deepest leaf encountered, and returns that leaf's index
// and the prefix (depth) at which it was found.
func (t *TreeReader) Lookup(addr bitaddr.Address) (leafIndex, prefix int, ok bool) {
	if t.n == 0 {
		return 0, 0, false
	}
	idx := 0
	bestIdx := -1
	bestDepth := 0
	for depth := 0; depth <= MaxDepth; depth++ {
		node := t.at(idx)
		if node.networkIndex != Sentinel {
			bestIdx = int(node.networkIndex)
			bestDepth = depth
			// A leaf node has no children by construction; stop here.
			break
		}
		if depth == MaxDepth {
			break
		}
		bit := bitaddr.Bit(addr, uint(depth))
		next := node.zero
		if bit == 1 {
			next = node.one
		}
		if next == Sentinel {
			break
		}
		idx = int(next)
	}
	if bestIdx < 0 {
		return 0, 0, false
	}
	return bestIdx, bestDepth, true
}

// Family restricts enumeration to a particular address family.
type Family int

const (
	FamilyAny Family = iota
	FamilyV4
	FamilyV6
)

// Filter composes the predicates ListNetworks accepts; all non-zero fields
// must match for a leaf to be emitted.
type Filter struct {
	Family Family

	HasFlags   bool
	FlagsMask  uint16
	FlagsMatch uint16

	HasASN bool
	ASN    uint32

	HasCountry bool
	Country    [2]byte
}

// Match reports whether addr/leaf satisfies f.
func (f Filter) Match(addr bitaddr.Address, leaf Leaf) bool {
	switch f.Family {
	case FamilyV4:
		if bitaddr.FamilyOf(addr) != bitaddr.FamilyV4 {
			return false
		}
	case FamilyV6:
		if bitaddr.FamilyOf(addr) != bitaddr.FamilyV6 {
			return false
		}
	}
	if f.HasFlags && leaf.Flags&f.FlagsMask != f.FlagsMatch {
		return false
	}
	if f.HasASN && leaf.ASN != f.ASN {
		return false
	}
	if f.HasCountry && leaf.Country != f.Country {
		return false
	}
	return true
}

// Result is one network yielded by an Enumerator.
type Result struct {
	Address bitaddr.Address
	Prefix  int
	Leaf    Leaf
}

// Enumerator iterates over networks in ascending address order. It is
// restartable (call Iter again) and supports caller-driven early
// termination by calling Close; no in-flight work persists afterwards.
type Enumerator interface {
	Iter() <-chan Result
	Close()
}

type enumerator struct {
	t        *TreeReader
	startIdx int
	prefix   bitaddr.Address
	depth0   int
	filter   Filter

	mu    sync.Mutex
	chans []func()
}

// Enumerate walks the whole tree in ascending address order, in-order
// (zero branch first), yielding every leaf that matches filter.
func (t *TreeReader) Enumerate(filter Filter) Enumerator {
	return &enumerator{t: t, startIdx: 0, depth0: 0, filter: filter}
}

// EnumerateSubnet enters the subtree rooted at network/prefix and yields
// every matching leaf beneath it, in ascending address order.
func (t *TreeReader) EnumerateSubnet(network bitaddr.Address, prefix int, filter Filter) (Enumerator, bool) {
	if t.n == 0 {
		return &enumerator{t: t, startIdx: -1}, true
	}
	idx := 0
	for depth := 0; depth < prefix; depth++ {
		node := t.at(idx)
		if node.networkIndex != Sentinel {
			// A leaf above the requested depth covers the whole subnet;
			// the caller gets a one-node enumerator rooted exactly there.
			break
		}
		bit := bitaddr.Bit(network, uint(depth))
		next := node.zero
		if bit == 1 {
			next = node.one
		}
		if next == Sentinel {
			return &enumerator{t: t, startIdx: -1}, true
		}
		idx = int(next)
	}
	return &enumerator{t: t, startIdx: idx, prefix: network, depth0: prefix, filter: filter}, true
}

func (e *enumerator) Iter() <-chan Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan Result)
	e.chans = append(e.chans, cancel)
	go e.produce(ctx, ch)
	return ch
}

func (e *enumerator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cancel := range e.chans {
		cancel()
	}
	e.chans = nil
}

func (e *enumerator) produce(ctx context.Context, ch chan<- Result) {
	defer close(ch)
	if e.startIdx < 0 || e.t == nil || e.t.n == 0 {
		return
	}
	e.walk(ctx, ch, e.startIdx, e.prefix, e.depth0)
}

// walk performs an in-order (zero branch first) traversal from node idx,
// whose address path so far is the top depth bits of addr.
func (e *enumerator) walk(ctx context.Context, ch chan<- Result, idx int, addr bitaddr.Address, depth int) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	node := e.t.at(idx)
	if node.networkIndex != Sentinel {
		leaf, err := e.t.leaves.At(int(node.networkIndex))
		if err != nil {
			return true
		}
		if e.filter.Match(addr, leaf) {
			select {
			case ch <- Result{Address: addr, Prefix: depth, Leaf: leaf}:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	if node.zero != Sentinel {
		if !e.walk(ctx, ch, int(node.zero), addr, depth+1) {
			return false
		}
	}
	if node.one != Sentinel {
		oneAddr := bitaddr.SetBit(addr, uint(depth), 1)
		if !e.walk(ctx, ch, int(node.one), oneAddr, depth+1) {
			return false
		}
	}
	return true
}
