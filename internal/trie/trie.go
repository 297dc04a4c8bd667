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

// Package trie implements the Bonsai-style sparse Merkle-Patricia tries
//: a global contracts trie, per-contract storage tries
// and a declared-classes trie, all over the Poseidon hash. Nodes are
// content-addressed (id == hash) and persisted in the TrieNodes table
// keyed by (trie_id, node_id); per-block roots land in TrieRoots so
// historical roots are O(1) lookups.
package trie

import (
	"errors"
	"fmt"

	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/kv"
)

// keyBits is the path depth: the full 256-bit big-endian felt encoding.
// Felts are smaller than 2^252 so the top bits are always zero, which
// just means the first few levels are shared edges.
const keyBits = 256

// ErrInconsistentRoot is the fatal commit failure: a
// node referenced by a persisted root is missing or malformed.
var ErrInconsistentRoot = errors.New("trie: inconsistent root")

// Trie id prefixes. A trie's nodes live under its id in TrieNodes and its
// per-block roots under the same id in TrieRoots.
const (
	idClasses   byte = 0x01
	idContracts byte = 0x02
	idStorage   byte = 0x03
)

// ClassesTrieID and ContractsTrieID are the fixed ids of the two global
// tries; StorageTrieID derives a per-contract id from the address.
func ClassesTrieID() []byte   { return []byte{idClasses} }
func ContractsTrieID() []byte { return []byte{idContracts} }

func StorageTrieID(address felt.Felt) []byte {
	b := address.Bytes()
	out := make([]byte, 0, 33)
	out = append(out, idStorage)
	out = append(out, b[:]...)
	return out
}

// nodeStore reads/writes one trie's nodes in the TrieNodes table.
type nodeStore struct {
	tx kv.RwTx
	id []byte
}

func (s nodeStore) key(hash felt.Felt) []byte {
	h := hash.Bytes()
	out := make([]byte, 0, len(s.id)+32)
	out = append(out, s.id...)
	out = append(out, h[:]...)
	return out
}

func (s nodeStore) get(hash felt.Felt) (*node, error) {
	v, found, err := s.tx.Get(kv.TrieNodes, s.key(hash))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: missing node %s", ErrInconsistentRoot, hash.Hex())
	}
	return decodeNode(v)
}

// put persists n content-addressed and returns its hash. Writing the same
// node twice is a no-op, which is what makes the node space append-only
// and shareable across block roots.
func (s nodeStore) put(n *node) (felt.Felt, error) {
	h := n.hash()
	if err := s.tx.Put(kv.TrieNodes, s.key(h), n.encode()); err != nil {
		return felt.Felt{}, err
	}
	return h, nil
}

// Trie is one sparse Merkle-Patricia trie rooted at root (felt.Zero for
// the empty trie), bound to the transaction its nodeStore wraps.
type Trie struct {
	store nodeStore
	root  felt.Felt
}

// New opens the trie identified by id at root within tx.
func New(tx kv.RwTx, id []byte, root felt.Felt) *Trie {
	return &Trie{store: nodeStore{tx: tx, id: id}, root: root}
}

// Root returns the current root hash (felt.Zero when empty).
func (t *Trie) Root() felt.Felt { return t.root }

// Get returns the value stored under key, felt.Zero if absent.
func (t *Trie) Get(key felt.Felt) (felt.Felt, error) {
	kb := key.Bytes()
	h := t.root
	depth := 0
	for {
		if h.IsZero() {
			return felt.Zero, nil
		}
		if depth == keyBits {
			n, err := t.store.get(h)
			if err != nil {
				return felt.Felt{}, err
			}
			if n.kind != kindLeaf {
				return felt.Felt{}, fmt.Errorf("%w: non-leaf at full depth", ErrInconsistentRoot)
			}
			return n.value, nil
		}
		n, err := t.store.get(h)
		if err != nil {
			return felt.Felt{}, err
		}
		switch n.kind {
		case kindBinary:
			if bitAt(kb, depth) == 0 {
				h = n.left
			} else {
				h = n.right
			}
			depth++
		case kindEdge:
			for i := 0; i < int(n.pathLen); i++ {
				if bitAt(n.path, i) != bitAt(kb, depth+i) {
					return felt.Zero, nil
				}
			}
			h = n.child
			depth += int(n.pathLen)
		case kindLeaf:
			return felt.Felt{}, fmt.Errorf("%w: leaf above full depth", ErrInconsistentRoot)
		}
	}
}

// Put inserts or replaces the value under key. A zero value is stored as
// an explicit zero leaf rather than deleting the path; reads of untouched
// and zeroed keys are indistinguishable (both yield felt.Zero), which is
// all the state model requires.
func (t *Trie) Put(key, value felt.Felt) error {
	leafHash, err := t.store.put(&node{kind: kindLeaf, value: value})
	if err != nil {
		return err
	}
	newRoot, err := t.insert(t.root, 0, key.Bytes(), leafHash)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

// putEdge wraps child in an edge covering bits kb[depth : depth+length],
// collapsing a zero-length edge to the child itself.
func (t *Trie) putEdge(kb [32]byte, depth, length int, child felt.Felt) (felt.Felt, error) {
	if length == 0 {
		return child, nil
	}
	var path [32]byte
	for i := 0; i < length; i++ {
		setBit(&path, i, bitAt(kb, depth+i))
	}
	return t.store.put(&node{kind: kindEdge, path: path, pathLen: uint16(length), child: child})
}

// subPath extracts length bits of path starting at bit start, left-aligned.
func subPath(path [32]byte, start, length int) [32]byte {
	var out [32]byte
	for i := 0; i < length; i++ {
		setBit(&out, i, bitAt(path, start+i))
	}
	return out
}

func (t *Trie) insert(h felt.Felt, depth int, kb [32]byte, leafHash felt.Felt) (felt.Felt, error) {
	if depth == keyBits {
		return leafHash, nil
	}
	if h.IsZero() {
		return t.putEdge(kb, depth, keyBits-depth, leafHash)
	}
	n, err := t.store.get(h)
	if err != nil {
		return felt.Felt{}, err
	}
	switch n.kind {
	case kindBinary:
		if bitAt(kb, depth) == 0 {
			newLeft, err := t.insert(n.left, depth+1, kb, leafHash)
			if err != nil {
				return felt.Felt{}, err
			}
			return t.store.put(&node{kind: kindBinary, left: newLeft, right: n.right})
		}
		newRight, err := t.insert(n.right, depth+1, kb, leafHash)
		if err != nil {
			return felt.Felt{}, err
		}
		return t.store.put(&node{kind: kindBinary, left: n.left, right: newRight})

	case kindEdge:
		common := 0
		for common < int(n.pathLen) && bitAt(n.path, common) == bitAt(kb, depth+common) {
			common++
		}
		if common == int(n.pathLen) {
			newChild, err := t.insert(n.child, depth+common, kb, leafHash)
			if err != nil {
				return felt.Felt{}, err
			}
			return t.store.put(&node{kind: kindEdge, path: n.path, pathLen: n.pathLen, child: newChild})
		}

		// Diverge at bit `common`: split the edge into (shared prefix,
		// binary, two branches).
		existRemainder := int(n.pathLen) - common - 1
		existPath := subPath(n.path, common+1, existRemainder)
		existBranch := n.child
		if existRemainder > 0 {
			existBranch, err = t.store.put(&node{kind: kindEdge, path: existPath, pathLen: uint16(existRemainder), child: n.child})
			if err != nil {
				return felt.Felt{}, err
			}
		}

		newBranch, err := t.putEdge(kb, depth+common+1, keyBits-depth-common-1, leafHash)
		if err != nil {
			return felt.Felt{}, err
		}

		var bin *node
		if bitAt(n.path, common) == 0 {
			bin = &node{kind: kindBinary, left: existBranch, right: newBranch}
		} else {
			bin = &node{kind: kindBinary, left: newBranch, right: existBranch}
		}
		binHash, err := t.store.put(bin)
		if err != nil {
			return felt.Felt{}, err
		}
		if common == 0 {
			return binHash, nil
		}
		prefix := subPath(n.path, 0, common)
		return t.store.put(&node{kind: kindEdge, path: prefix, pathLen: uint16(common), child: binHash})

	case kindLeaf:
		return felt.Felt{}, fmt.Errorf("%w: leaf above full depth", ErrInconsistentRoot)
	default:
		return felt.Felt{}, fmt.Errorf("%w: unknown node kind", ErrInconsistentRoot)
	}
}
