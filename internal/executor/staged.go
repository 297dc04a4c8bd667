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

package executor

import (
	"github.com/google/btree"

	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/state"
)

// BaseState is the read-only snapshot the staged overlay falls through
// to. internal/provider and internal/fork both satisfy it (via adapters),
// so the same executor runs against local and forked state.
type BaseState interface {
	Nonce(addr felt.Felt) (felt.Felt, error)
	ClassHash(addr felt.Felt) (felt.Felt, error)
	Storage(addr, key felt.Felt) (felt.Felt, error)
	Class(hash felt.Felt) (classes.Artifact, error)
	ClassDeclared(hash felt.Felt) (bool, error)
	BlockHash(number uint64) (felt.Felt, error)
}

type storageEntry struct {
	addr, key, val felt.Felt
}

func lessStorage(a, b storageEntry) bool {
	if c := a.addr.Cmp(b.addr); c != 0 {
		return c < 0
	}
	return a.key.Cmp(b.key) < 0
}

type feltEntry struct {
	k, v felt.Felt
}

func lessFelt(a, b feltEntry) bool { return a.k.Cmp(b.k) < 0 }

type journalKind uint8

const (
	jStorage journalKind = iota
	jNonce
	jClass
	jDeclareSierra
	jDeclareLegacy
)

// journalEntry is one undo record: enough to restore the overlay to its
// pre-write state on rollback, and to enumerate the keys a transaction
// touched when building its per-tx diff.
type journalEntry struct {
	kind journalKind

	addr, key felt.Felt
	prev      felt.Felt
	hadPrev   bool

	// class-slot bookkeeping: whether addr was already in the deployed /
	// replaced sets before this write.
	wasDeployed bool
	wasReplaced bool
	nowDeployed bool

	classHash felt.Felt
}

// StagedState is the mutable view layered over a read-only snapshot
//: an in-memory overlay of small ordered maps, never a
// deep clone. Reads fall through to base on overlay miss; writes stay in
// the overlay until the block producer flushes them. The journal gives
// per-transaction checkpoints so a revert inside one transaction never
// disturbs the writes of the previous ones.
type StagedState struct {
	base BaseState

	storage     *btree.BTreeG[storageEntry]
	nonces      *btree.BTreeG[feltEntry]
	classHashes *btree.BTreeG[feltEntry]

	deployed map[felt.Felt]struct{}
	replaced map[felt.Felt]struct{}

	declaredSierra []state.DeclaredSierraClass
	declaredLegacy []felt.Felt
	artifacts      map[felt.Felt]classes.Artifact

	journal []journalEntry
}

// NewStagedState builds an empty overlay over base.
func NewStagedState(base BaseState) *StagedState {
	return &StagedState{
		base:        base,
		storage:     btree.NewG(16, lessStorage),
		nonces:      btree.NewG(16, lessFelt),
		classHashes: btree.NewG(16, lessFelt),
		deployed:    make(map[felt.Felt]struct{}),
		replaced:    make(map[felt.Felt]struct{}),
		artifacts:   make(map[felt.Felt]classes.Artifact),
	}
}

// StorageRead is the storage_read syscall.
func (s *StagedState) StorageRead(addr, key felt.Felt) (felt.Felt, error) {
	if e, ok := s.storage.Get(storageEntry{addr: addr, key: key}); ok {
		return e.val, nil
	}
	return s.base.Storage(addr, key)
}

// StorageWrite is the storage_write syscall.
func (s *StagedState) StorageWrite(addr, key, val felt.Felt) {
	prev, hadPrev := s.storage.Get(storageEntry{addr: addr, key: key})
	s.journal = append(s.journal, journalEntry{kind: jStorage, addr: addr, key: key, prev: prev.val, hadPrev: hadPrev})
	s.storage.ReplaceOrInsert(storageEntry{addr: addr, key: key, val: val})
}

// GetNonceAt is the get_nonce_at syscall.
func (s *StagedState) GetNonceAt(addr felt.Felt) (felt.Felt, error) {
	if e, ok := s.nonces.Get(feltEntry{k: addr}); ok {
		return e.v, nil
	}
	return s.base.Nonce(addr)
}

// SetNonce stages a nonce update.
func (s *StagedState) SetNonce(addr, nonce felt.Felt) {
	prev, hadPrev := s.nonces.Get(feltEntry{k: addr})
	s.journal = append(s.journal, journalEntry{kind: jNonce, addr: addr, prev: prev.v, hadPrev: hadPrev})
	s.nonces.ReplaceOrInsert(feltEntry{k: addr, v: nonce})
}

// GetClassHashAt is the get_class_hash_at syscall.
func (s *StagedState) GetClassHashAt(addr felt.Felt) (felt.Felt, error) {
	if e, ok := s.classHashes.Get(feltEntry{k: addr}); ok {
		return e.v, nil
	}
	return s.base.ClassHash(addr)
}

func (s *StagedState) setClass(addr, classHash felt.Felt, deploy bool) {
	prev, hadPrev := s.classHashes.Get(feltEntry{k: addr})
	_, wasDeployed := s.deployed[addr]
	_, wasReplaced := s.replaced[addr]
	s.journal = append(s.journal, journalEntry{
		kind: jClass, addr: addr, prev: prev.v, hadPrev: hadPrev,
		wasDeployed: wasDeployed, wasReplaced: wasReplaced, nowDeployed: deploy,
	})
	s.classHashes.ReplaceOrInsert(feltEntry{k: addr, v: classHash})
	if deploy {
		s.deployed[addr] = struct{}{}
	} else {
		s.replaced[addr] = struct{}{}
	}
}

// Deploy is the deploy syscall: binds addr to classHash, failing if the
// address already hosts a contract.
func (s *StagedState) Deploy(addr, classHash felt.Felt) error {
	existing, err := s.GetClassHashAt(addr)
	if err != nil {
		return err
	}
	if !existing.IsZero() {
		return validationErrf("contract already deployed at %s", addr.Hex())
	}
	s.setClass(addr, classHash, true)
	return nil
}

// ReplaceClass is the replace_class syscall.
func (s *StagedState) ReplaceClass(addr, classHash felt.Felt) {
	s.setClass(addr, classHash, false)
}

// ClassDeclared reports whether hash is declared in the overlay or base.
func (s *StagedState) ClassDeclared(hash felt.Felt) (bool, error) {
	if _, ok := s.artifacts[hash]; ok {
		return true, nil
	}
	return s.base.ClassDeclared(hash)
}

// Declare is the declare syscall: stages the class artifact. compiledHash
// is zero for legacy classes.
func (s *StagedState) Declare(classHash felt.Felt, artifact classes.Artifact, compiledHash felt.Felt) error {
	declared, err := s.ClassDeclared(classHash)
	if err != nil {
		return err
	}
	if declared {
		return ErrClassAlreadyDeclared
	}
	s.artifacts[classHash] = artifact
	if artifact.Kind == classes.KindSierra {
		s.declaredSierra = append(s.declaredSierra, state.DeclaredSierraClass{ClassHash: classHash, CompiledClassHash: compiledHash})
		s.journal = append(s.journal, journalEntry{kind: jDeclareSierra, classHash: classHash})
	} else {
		s.declaredLegacy = append(s.declaredLegacy, classHash)
		s.journal = append(s.journal, journalEntry{kind: jDeclareLegacy, classHash: classHash})
	}
	return nil
}

// Class resolves an artifact from the overlay or base.
func (s *StagedState) Class(hash felt.Felt) (classes.Artifact, error) {
	if a, ok := s.artifacts[hash]; ok {
		return a, nil
	}
	return s.base.Class(hash)
}

// GetBlockHash is the get_block_hash syscall.
func (s *StagedState) GetBlockHash(number uint64) (felt.Felt, error) {
	return s.base.BlockHash(number)
}

// Checkpoint marks the current journal position; RollbackTo unwinds every
// write made after it, in reverse order.
func (s *StagedState) Checkpoint() int { return len(s.journal) }

func (s *StagedState) RollbackTo(cp int) {
	for i := len(s.journal) - 1; i >= cp; i-- {
		e := s.journal[i]
		switch e.kind {
		case jStorage:
			if e.hadPrev {
				s.storage.ReplaceOrInsert(storageEntry{addr: e.addr, key: e.key, val: e.prev})
			} else {
				s.storage.Delete(storageEntry{addr: e.addr, key: e.key})
			}
		case jNonce:
			if e.hadPrev {
				s.nonces.ReplaceOrInsert(feltEntry{k: e.addr, v: e.prev})
			} else {
				s.nonces.Delete(feltEntry{k: e.addr})
			}
		case jClass:
			if e.hadPrev {
				s.classHashes.ReplaceOrInsert(feltEntry{k: e.addr, v: e.prev})
			} else {
				s.classHashes.Delete(feltEntry{k: e.addr})
			}
			if !e.wasDeployed {
				delete(s.deployed, e.addr)
			}
			if !e.wasReplaced {
				delete(s.replaced, e.addr)
			}
		case jDeclareSierra:
			s.declaredSierra = s.declaredSierra[:len(s.declaredSierra)-1]
			delete(s.artifacts, e.classHash)
		case jDeclareLegacy:
			s.declaredLegacy = s.declaredLegacy[:len(s.declaredLegacy)-1]
			delete(s.artifacts, e.classHash)
		}
	}
	s.journal = s.journal[:cp]
}

// DiffSince builds the StateUpdates produced by every write after cp:
// the per-transaction diff Execute attaches to each ExecutionResult.
func (s *StagedState) DiffSince(cp int) *state.StateUpdates {
	u := state.New()
	for i := cp; i < len(s.journal); i++ {
		e := s.journal[i]
		switch e.kind {
		case jStorage:
			if cur, ok := s.storage.Get(storageEntry{addr: e.addr, key: e.key}); ok {
				u.StorageDiffs[state.StorageKey{Address: e.addr, Key: e.key}] = cur.val
			}
		case jNonce:
			if cur, ok := s.nonces.Get(feltEntry{k: e.addr}); ok {
				u.Nonces[e.addr] = cur.v
			}
		case jClass:
			if cur, ok := s.classHashes.Get(feltEntry{k: e.addr}); ok {
				if e.nowDeployed {
					u.DeployedContracts[e.addr] = cur.v
				} else {
					u.ReplacedClasses[e.addr] = cur.v
				}
			}
		case jDeclareSierra:
			for _, d := range s.declaredSierra {
				if d.ClassHash.Equal(e.classHash) {
					u.DeclaredSierra = append(u.DeclaredSierra, d)
					break
				}
			}
			if a, ok := s.artifacts[e.classHash]; ok {
				u.ClassArtifacts[e.classHash] = a
			}
		case jDeclareLegacy:
			u.DeclaredLegacy = append(u.DeclaredLegacy, e.classHash)
			if a, ok := s.artifacts[e.classHash]; ok {
				u.ClassArtifacts[e.classHash] = a
			}
		}
	}
	return u
}

// BlockDiff flushes the full accumulated overlay as one StateUpdates, in
// deterministic (address, key) ascending order; this is what the block
// producer hands to the provider at commit.
func (s *StagedState) BlockDiff() *state.StateUpdates {
	u := state.New()
	s.storage.Ascend(func(e storageEntry) bool {
		u.StorageDiffs[state.StorageKey{Address: e.addr, Key: e.key}] = e.val
		return true
	})
	s.nonces.Ascend(func(e feltEntry) bool {
		u.Nonces[e.k] = e.v
		return true
	})
	s.classHashes.Ascend(func(e feltEntry) bool {
		if _, ok := s.deployed[e.k]; ok {
			u.DeployedContracts[e.k] = e.v
		} else {
			u.ReplacedClasses[e.k] = e.v
		}
		return true
	})
	u.DeclaredSierra = append(u.DeclaredSierra, s.declaredSierra...)
	u.DeclaredLegacy = append(u.DeclaredLegacy, s.declaredLegacy...)
	for h, a := range s.artifacts {
		u.ClassArtifacts[h] = a
	}
	return u
}
