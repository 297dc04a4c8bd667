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

package provider

import (
	codecv1 "github.com/katana-sequencer/katana/internal/codec/v1"
	"github.com/katana-sequencer/katana/internal/kv"
	"github.com/katana-sequencer/katana/internal/state"
)

// applyStateUpdates writes a block's delta into the flat-state and history
// tables: ContractInfo/ContractStorage hold the latest values, while
// ContractHistory/StorageHistory accumulate block-stamped snapshots so
// a point-in-time read is one seek plus a forward walk over that key's
// snapshots. Classes, compiled-class hashes
// and declaration blocks are recorded for every artifact the update
// carries. Replay order is deterministic (address ascending, then storage
// key ascending), the same order the trie layer uses.
func (w *Writer) applyStateUpdates(blockNumber uint64, u *state.StateUpdates) error {
	for _, addr := range u.SortedAddresses() {
		// Resolve the address's resulting (class_hash, nonce) pair.
		classHash, nonce, found, err := w.contractInfo(addr)
		if err != nil {
			return err
		}
		infoChanged := !found
		if ch, ok := u.DeployedContracts[addr]; ok {
			classHash, infoChanged = ch, true
		}
		if ch, ok := u.ReplacedClasses[addr]; ok {
			classHash, infoChanged = ch, true
		}
		if n, ok := u.Nonces[addr]; ok {
			nonce, infoChanged = n, true
		}
		if infoChanged {
			info := contractInfoValue(classHash, nonce)
			if err := w.tx.Put(kv.ContractInfo, feltKey(addr), info); err != nil {
				return dbErr(err)
			}
			if err := w.tx.Put(kv.ContractHistory, historyKey(addr), historyValue(blockNumber, info)); err != nil {
				return dbErr(err)
			}
		}

		for _, key := range u.StorageKeysForAddress(addr) {
			newVal := u.StorageDiffs[state.StorageKey{Address: addr, Key: key}]

			old, err := w.currentStorageAt(addr, key)
			if err != nil {
				return err
			}
			if !old.IsZero() {
				if err := w.tx.DeleteDup(kv.ContractStorage, contractStorageKey(addr), contractStorageValue(key, old)); err != nil {
					return dbErr(err)
				}
			}
			if err := w.tx.Put(kv.ContractStorage, contractStorageKey(addr), contractStorageValue(key, newVal)); err != nil {
				return dbErr(err)
			}

			vb := newVal.Bytes()
			if err := w.tx.Put(kv.StorageHistory, historyKey(addr, key), historyValue(blockNumber, vb[:])); err != nil {
				return dbErr(err)
			}
		}
	}

	for hash, artifact := range u.ClassArtifacts {
		enc, err := codecv1.EncodeClassArtifact(artifact)
		if err != nil {
			return err
		}
		if err := w.tx.Put(kv.Classes, feltKey(hash), enc); err != nil {
			return dbErr(err)
		}
		if err := w.tx.Put(kv.ClassDeclBlocks, feltKey(hash), u64Key(blockNumber)); err != nil {
			return dbErr(err)
		}
	}
	for _, d := range u.DeclaredSierra {
		if err := w.tx.Put(kv.CompiledClassHashes, feltKey(d.ClassHash), feltKey(d.CompiledClassHash)); err != nil {
			return dbErr(err)
		}
	}
	return nil
}
