// Copyright 2025 The Katana Authors
// This file is part of Katana.
//
// Katana is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Katana is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Katana. If not, see <http://www.gnu.org/licenses/>.

package trie

import (
	"fmt"

	"github.com/katana-sequencer/katana/internal/felt"
)

type nodeKind uint8

const (
	kindLeaf   nodeKind = 0
	kindEdge   nodeKind = 1
	kindBinary nodeKind = 2
)

// Domain-separation tags folded into every node hash so a leaf can never
// be re-interpreted as an inner node.
var (
	tagLeaf   = felt.FromUint64(0x6c656166)   // "leaf"
	tagEdge   = felt.FromUint64(0x65646765)   // "edge"
	tagBinary = felt.FromUint64(0x62696e)     // "bin"
)

// node is one trie node in memory. Exactly the fields for its kind are
// meaningful. Nodes are immutable once hashed; an update always builds new
// nodes along the changed path.
type node struct {
	kind nodeKind

	// leaf
	value felt.Felt

	// edge: a compressed run of pathLen bits (MSB-first in path) ending
	// at child.
	path    [32]byte
	pathLen uint16
	child   felt.Felt

	// binary
	left  felt.Felt
	right felt.Felt
}

// hash returns the node's content address.
func (n *node) hash() felt.Felt {
	switch n.kind {
	case kindLeaf:
		return felt.PoseidonHash(tagLeaf, n.value)
	case kindEdge:
		return felt.PoseidonHash(tagEdge, felt.FromUint64(uint64(n.pathLen)), felt.FromBytesBE(n.path[:]), n.child)
	case kindBinary:
		return felt.PoseidonHash(tagBinary, n.left, n.right)
	default:
		panic("trie: unknown node kind")
	}
}

// encode serializes a node for the TrieNodes table.
func (n *node) encode() []byte {
	switch n.kind {
	case kindLeaf:
		out := make([]byte, 1+32)
		out[0] = byte(kindLeaf)
		v := n.value.Bytes()
		copy(out[1:], v[:])
		return out
	case kindEdge:
		out := make([]byte, 1+2+32+32)
		out[0] = byte(kindEdge)
		out[1] = byte(n.pathLen >> 8)
		out[2] = byte(n.pathLen)
		copy(out[3:35], n.path[:])
		c := n.child.Bytes()
		copy(out[35:], c[:])
		return out
	case kindBinary:
		out := make([]byte, 1+32+32)
		out[0] = byte(kindBinary)
		l := n.left.Bytes()
		r := n.right.Bytes()
		copy(out[1:33], l[:])
		copy(out[33:], r[:])
		return out
	default:
		panic("trie: unknown node kind")
	}
}

func decodeNode(b []byte) (*node, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("trie: empty node encoding")
	}
	switch nodeKind(b[0]) {
	case kindLeaf:
		if len(b) != 33 {
			return nil, fmt.Errorf("trie: leaf node want 33 bytes, got %d", len(b))
		}
		n := &node{kind: kindLeaf}
		n.value = felt.FromBytesBE(b[1:33])
		return n, nil
	case kindEdge:
		if len(b) != 67 {
			return nil, fmt.Errorf("trie: edge node want 67 bytes, got %d", len(b))
		}
		n := &node{kind: kindEdge}
		n.pathLen = uint16(b[1])<<8 | uint16(b[2])
		copy(n.path[:], b[3:35])
		n.child = felt.FromBytesBE(b[35:67])
		return n, nil
	case kindBinary:
		if len(b) != 65 {
			return nil, fmt.Errorf("trie: binary node want 65 bytes, got %d", len(b))
		}
		n := &node{kind: kindBinary}
		n.left = felt.FromBytesBE(b[1:33])
		n.right = felt.FromBytesBE(b[33:65])
		return n, nil
	default:
		return nil, fmt.Errorf("trie: unknown node kind %d", b[0])
	}
}

// bitAt returns bit i (MSB-first) of a 32-byte path.
func bitAt(b [32]byte, i int) byte {
	return (b[i/8] >> (7 - uint(i)%8)) & 1
}

// setBit sets bit i (MSB-first) of a 32-byte path to v.
func setBit(b *[32]byte, i int, v byte) {
	if v != 0 {
		b[i/8] |= 1 << (7 - uint(i)%8)
	} else {
		b[i/8] &^= 1 << (7 - uint(i)%8)
	}
}
