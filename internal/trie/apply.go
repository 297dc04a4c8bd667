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
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/kv"
	"github.com/katana-sequencer/katana/internal/state"
)

// Updater replays StateUpdates against the tries and persists per-block
// roots. It implements provider.TrieUpdater; the block producer's Writer
// calls ApplyBlock inside its single RwTx so trie growth commits or rolls
// back with the rest of the block.
type Updater struct{}

func NewUpdater() *Updater { return &Updater{} }

func rootsKey(id []byte, blockNumber uint64) []byte {
	out := make([]byte, 0, len(id)+8)
	out = append(out, id...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], blockNumber)
	return append(out, b[:]...)
}

// rootAt returns the trie's newest persisted root at or before maxBlock,
// felt.Zero if it has never been rooted. Roots are written only for
// touched tries, so a seek-then-step-back over TrieRoots is the lookup.
func rootAt(tx kv.RwTx, id []byte, maxBlock uint64) (felt.Felt, error) {
	cur, err := tx.Cursor(kv.TrieRoots)
	if err != nil {
		return felt.Felt{}, err
	}
	defer cur.Close()

	k, v, err := cur.Seek(rootsKey(id, maxBlock))
	if err != nil {
		return felt.Felt{}, err
	}
	if k != nil && bytes.Equal(k, rootsKey(id, maxBlock)) {
		return felt.FromBytesBE(v), nil
	}
	// First key past the target; the candidate is one step back.
	k, v, err = cur.Prev()
	if err != nil {
		return felt.Felt{}, err
	}
	if k == nil || len(k) != len(id)+8 || !bytes.HasPrefix(k, id) {
		return felt.Zero, nil
	}
	return felt.FromBytesBE(v), nil
}

func putRoot(tx kv.RwTx, id []byte, blockNumber uint64, root felt.Felt) error {
	r := root.Bytes()
	return tx.Put(kv.TrieRoots, rootsKey(id, blockNumber), r[:])
}

// contractLeaf is the contracts-trie leaf value:
// Poseidon(class_hash, storage_root, nonce, 0).
func contractLeaf(classHash, storageRoot, nonce felt.Felt) felt.Felt {
	return felt.PoseidonHash(classHash, storageRoot, nonce, felt.Zero)
}

// ApplyBlock replays updates key by key in deterministic order (address
// ascending, then storage key ascending), persists every touched trie's
// new root under blockNumber, and returns the combined state root:
// Poseidon(contracts_root, classes_root).
//
// It runs before the flat-state tables are updated, so ContractInfo still
// holds the pre-block (class_hash, nonce) pairs; the update's own deltas
// are overlaid on top of those reads.
func (u *Updater) ApplyBlock(tx kv.RwTx, blockNumber uint64, updates *state.StateUpdates) (felt.Felt, error) {
	var prev uint64
	if blockNumber > 0 {
		prev = blockNumber - 1
	}

	contractsRoot, err := rootAt(tx, ContractsTrieID(), prev)
	if err != nil {
		return felt.Felt{}, err
	}
	if blockNumber == 0 {
		contractsRoot = felt.Zero
	}
	contracts := New(tx, ContractsTrieID(), contractsRoot)

	for _, addr := range updates.SortedAddresses() {
		storageID := StorageTrieID(addr)
		storageRoot := felt.Zero
		if blockNumber > 0 {
			storageRoot, err = rootAt(tx, storageID, prev)
			if err != nil {
				return felt.Felt{}, err
			}
		}
		storage := New(tx, storageID, storageRoot)

		keys := updates.StorageKeysForAddress(addr)
		for _, key := range keys {
			if err := storage.Put(key, updates.StorageDiffs[state.StorageKey{Address: addr, Key: key}]); err != nil {
				return felt.Felt{}, err
			}
		}
		if len(keys) > 0 {
			if err := putRoot(tx, storageID, blockNumber, storage.Root()); err != nil {
				return felt.Felt{}, err
			}
		}

		classHash, nonce, err := preBlockContractInfo(tx, addr)
		if err != nil {
			return felt.Felt{}, err
		}
		if ch, ok := updates.DeployedContracts[addr]; ok {
			classHash = ch
		}
		if ch, ok := updates.ReplacedClasses[addr]; ok {
			classHash = ch
		}
		if n, ok := updates.Nonces[addr]; ok {
			nonce = n
		}

		if err := contracts.Put(addr, contractLeaf(classHash, storage.Root(), nonce)); err != nil {
			return felt.Felt{}, err
		}
	}

	classesRoot := felt.Zero
	if blockNumber > 0 {
		classesRoot, err = rootAt(tx, ClassesTrieID(), prev)
		if err != nil {
			return felt.Felt{}, err
		}
	}
	classesTrie := New(tx, ClassesTrieID(), classesRoot)
	for _, d := range updates.DeclaredSierra {
		if err := classesTrie.Put(d.ClassHash, d.CompiledClassHash); err != nil {
			return felt.Felt{}, err
		}
	}
	for _, ch := range updates.DeclaredLegacy {
		if err := classesTrie.Put(ch, ch); err != nil {
			return felt.Felt{}, err
		}
	}

	if err := putRoot(tx, ContractsTrieID(), blockNumber, contracts.Root()); err != nil {
		return felt.Felt{}, err
	}
	if err := putRoot(tx, ClassesTrieID(), blockNumber, classesTrie.Root()); err != nil {
		return felt.Felt{}, err
	}

	return StateRoot(contracts.Root(), classesTrie.Root()), nil
}

// StateRoot combines the two global roots into the header's state_root.
func StateRoot(contractsRoot, classesRoot felt.Felt) felt.Felt {
	return felt.PoseidonHash(contractsRoot, classesRoot)
}

// RootsAt returns the persisted (contracts, classes) root pair for a
// committed block, for historical state-root queries.
func RootsAt(tx kv.RwTx, blockNumber uint64) (contractsRoot, classesRoot felt.Felt, err error) {
	contractsRoot, err = rootAt(tx, ContractsTrieID(), blockNumber)
	if err != nil {
		return
	}
	classesRoot, err = rootAt(tx, ClassesTrieID(), blockNumber)
	return
}

// preBlockContractInfo reads the pre-block (class_hash, nonce) pair from
// the flat ContractInfo table; the value is two concatenated 32-byte
// felts, the same packing internal/provider writes.
func preBlockContractInfo(tx kv.RwTx, addr felt.Felt) (classHash, nonce felt.Felt, err error) {
	ab := addr.Bytes()
	v, found, err := tx.Get(kv.ContractInfo, ab[:])
	if err != nil {
		return felt.Felt{}, felt.Felt{}, err
	}
	if !found {
		return felt.Zero, felt.Zero, nil
	}
	if len(v) != 64 {
		return felt.Felt{}, felt.Felt{}, fmt.Errorf("trie: ContractInfo value want 64 bytes, got %d", len(v))
	}
	return felt.FromBytesBE(v[:32]), felt.FromBytesBE(v[32:]), nil
}
