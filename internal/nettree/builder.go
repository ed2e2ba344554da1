// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package nettree

import (
	"encoding/binary"

	"github.com/location-tools/locdb/internal/bitaddr"
)

// wnode is the writer's in-memory tree node, used only during
// canonicalisation; it is never serialized directly.
type wnode struct {
	zero, one *wnode
	leaf      *Leaf
}

// Builder accumulates networks and canonicalises them (deduplicate,
// merge-adjacent, propagate flags) before serialisation.
type Builder struct {
	root *wnode
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{root: &wnode{}}
}

// Add inserts a network (address/prefix, leaf). Insertion order does not
// affect the final canonical tree, except for an exact duplicate network:
// its flags are OR'd, but the country and ASN of the later insert are kept.
func (b *Builder) Add(address bitaddr.Address, prefix int, leaf Leaf) {
	cur := b.root
	for depth := 0; depth < prefix; depth++ {
		if cur.leaf != nil {
			if *cur.leaf == leaf {
				// Rule: N is strictly enclosed by an existing network M
				// with identical leaf data -- drop N.
				return
			}
			// A more specific network with different data arrives under an
			// existing, less specific leaf: push the existing leaf down to
			// both children so coverage is preserved, then keep descending.
			existing := *cur.leaf
			cur.zero = &wnode{leaf: &existing}
			cur.one = &wnode{leaf: &existing}
			cur.leaf = nil
		}
		bit := bitaddr.Bit(address, uint(depth))
		var next **wnode
		if bit == 0 {
			next = &cur.zero
		} else {
			next = &cur.one
		}
		if *next == nil {
			*next = &wnode{}
		}
		cur = *next
	}

	switch {
	case cur.leaf != nil:
		// Exact duplicate network: accumulate (OR) flags, and let the most
		// recently added country/asn win.
		merged := leaf
		merged.Flags |= cur.leaf.Flags
		cur.leaf = &merged
	case cur.zero != nil || cur.one != nil:
		// A less specific network arrives after more specific ones already
		// occupy parts of its range: fill every currently uncovered gap
		// beneath it with this leaf, without disturbing existing structure.
		fillGaps(cur, leaf)
	default:
		l := leaf
		cur.leaf = &l
	}
}

// fillGaps recursively assigns leaf to every nil child slot beneath node,
// leaving already-populated subtrees (more specific networks) untouched.
func fillGaps(node *wnode, leaf Leaf) {
	if node.leaf != nil {
		return
	}
	if node.zero == nil {
		l := leaf
		node.zero = &wnode{leaf: &l}
	} else {
		fillGaps(node.zero, leaf)
	}
	if node.one == nil {
		l := leaf
		node.one = &wnode{leaf: &l}
	} else {
		fillGaps(node.one, leaf)
	}
}

// canonicalize performs the upward merge pass: wherever a node has two leaf
// children with identical payload, it collapses into a single leaf,
// cascading upward until no further merges are possible.
func canonicalize(node *wnode) {
	if node == nil || node.leaf != nil {
		return
	}
	canonicalize(node.zero)
	canonicalize(node.one)

	if node.zero != nil && node.one != nil &&
		node.zero.leaf != nil && node.one.leaf != nil &&
		*node.zero.leaf == *node.one.leaf {
		merged := *node.zero.leaf
		node.leaf = &merged
		node.zero = nil
		node.one = nil
	}
}

// Stats summarises a canonicalised, serialized tree, useful for logging.
type Stats struct {
	Nodes  int
	Leaves int
}

// Serialize canonicalises the accumulated tree and emits its flat, pre-order
// node array and the corresponding network-leaf table.
func (b *Builder) Serialize() (treeBytes, leafBytes []byte, stats Stats) {
	canonicalize(b.root)

	var nodes []rawNode
	var leaves []Leaf

	var emit func(n *wnode) uint32
	emit = func(n *wnode) uint32 {
		idx := uint32(len(nodes))
		nodes = append(nodes, rawNode{zero: Sentinel, one: Sentinel, networkIndex: Sentinel})

		if n.leaf != nil {
			leafIdx := uint32(len(leaves))
			leaves = append(leaves, *n.leaf)
			nodes[idx].networkIndex = leafIdx
			return idx
		}

		if n.zero != nil {
			zeroIdx := emit(n.zero)
			nodes[idx].zero = zeroIdx
		}
		if n.one != nil {
			oneIdx := emit(n.one)
			nodes[idx].one = oneIdx
		}
		return idx
	}
	emit(b.root)

	treeBytes = make([]byte, len(nodes)*NodeRecordSize)
	for i, n := range nodes {
		off := i * NodeRecordSize
		binary.BigEndian.PutUint32(treeBytes[off:off+4], n.zero)
		binary.BigEndian.PutUint32(treeBytes[off+4:off+8], n.one)
		binary.BigEndian.PutUint32(treeBytes[off+8:off+12], n.networkIndex)
	}

	leafBytes = make([]byte, len(leaves)*LeafRecordSize)
	for i, l := range leaves {
		l.encode(leafBytes[i*LeafRecordSize : (i+1)*LeafRecordSize])
	}

	return treeBytes, leafBytes, Stats{Nodes: len(nodes), Leaves: len(leaves)}
}
