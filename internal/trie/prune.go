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
	"encoding/binary"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/kv"
)

var headKey = []byte("head")

// PruneResult reports what a pruning sweep removed.
type PruneResult struct {
	RemovedNodes uint64
	RemovedRoots uint64
	Horizon      uint64
}

// Prune deletes trie nodes unreachable from any retained block root,
// keeping the head block and the `keep` blocks before it. The sweep is
// mark-and-delete inside one RwTx: roots within the horizon are collected
// into a retained-blocks bitmap, every node reachable from a retained
// root is marked, and unmarked nodes plus out-of-horizon root rows are
// deleted.
func Prune(env kv.Env, keep uint64) (PruneResult, error) {
	tx, err := env.BeginRw()
	if err != nil {
		return PruneResult{}, err
	}
	defer tx.Rollback()

	var head uint64
	if v, found, err := tx.Get(kv.DatabaseInfo, headKey); err != nil {
		return PruneResult{}, err
	} else if !found {
		return PruneResult{}, tx.Commit()
	} else {
		head = binary.BigEndian.Uint64(v)
	}
	if head < keep {
		return PruneResult{Horizon: 0}, tx.Commit()
	}
	horizon := head - keep

	retained := roaring64.New()
	retained.AddRange(horizon, head+1)

	// Pass 1: walk TrieRoots, mark reachable nodes for retained roots,
	// collect out-of-horizon root rows for deletion. Per-trie latest root
	// below the horizon is also retained: it is the base the first
	// retained block's reads still resolve through for untouched tries.
	type rootRow struct {
		key  []byte
		id   []byte
		root felt.Felt
	}
	var stale []rootRow
	latestBelow := make(map[string]rootRow)
	reachable := make(map[string]struct{})

	cur, err := tx.Cursor(kv.TrieRoots)
	if err != nil {
		return PruneResult{}, err
	}
	for k, v, err := cur.First(); k != nil; k, v, err = cur.Next() {
		if err != nil {
			cur.Close()
			return PruneResult{}, err
		}
		if len(k) < 9 {
			continue
		}
		id := append([]byte(nil), k[:len(k)-8]...)
		blockNum := binary.BigEndian.Uint64(k[len(k)-8:])
		row := rootRow{key: append([]byte(nil), k...), id: id, root: felt.FromBytesBE(v)}
		if retained.Contains(blockNum) {
			if err := mark(tx, id, row.root, reachable); err != nil {
				cur.Close()
				return PruneResult{}, err
			}
		} else {
			if prevBest, ok := latestBelow[string(id)]; !ok || blockOf(row.key) > blockOf(prevBest.key) {
				latestBelow[string(id)] = row
			}
			stale = append(stale, row)
		}
	}
	cur.Close()

	for _, row := range latestBelow {
		if err := mark(tx, row.id, row.root, reachable); err != nil {
			return PruneResult{}, err
		}
	}

	var res PruneResult
	res.Horizon = horizon

	// Pass 2: delete unmarked nodes.
	nodeCur, err := tx.Cursor(kv.TrieNodes)
	if err != nil {
		return PruneResult{}, err
	}
	var doomed [][]byte
	for k, _, err := nodeCur.First(); k != nil; k, _, err = nodeCur.Next() {
		if err != nil {
			nodeCur.Close()
			return PruneResult{}, err
		}
		if _, ok := reachable[string(k)]; !ok {
			doomed = append(doomed, append([]byte(nil), k...))
		}
	}
	nodeCur.Close()
	for _, k := range doomed {
		if err := tx.Delete(kv.TrieNodes, k); err != nil {
			return PruneResult{}, err
		}
		res.RemovedNodes++
	}

	// Pass 3: delete stale root rows, sparing each trie's base root.
	for _, row := range stale {
		if best, ok := latestBelow[string(row.id)]; ok && string(best.key) == string(row.key) {
			continue
		}
		if err := tx.Delete(kv.TrieRoots, row.key); err != nil {
			return PruneResult{}, err
		}
		res.RemovedRoots++
	}

	return res, tx.Commit()
}

func blockOf(rootsRowKey []byte) uint64 {
	return binary.BigEndian.Uint64(rootsRowKey[len(rootsRowKey)-8:])
}

// mark walks the subtree under root in trie id, adding every node's
// TrieNodes key to the reachable set.
func mark(tx kv.RwTx, id []byte, root felt.Felt, reachable map[string]struct{}) error {
	if root.IsZero() {
		return nil
	}
	store := nodeStore{tx: tx, id: id}
	stack := []felt.Felt{root}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h.IsZero() {
			continue
		}
		key := string(store.key(h))
		if _, seen := reachable[key]; seen {
			continue
		}
		n, err := store.get(h)
		if err != nil {
			return err
		}
		reachable[key] = struct{}{}
		switch n.kind {
		case kindEdge:
			stack = append(stack, n.child)
		case kindBinary:
			stack = append(stack, n.left, n.right)
		}
	}
	return nil
}
