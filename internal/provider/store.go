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
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/kv"
)

// Store is the snapshot factory: it owns the kv.Env handle
// and hands out snapshot-bound Providers/Writers. Env exposes the raw
// environment for components that manage their own transactions.
type Store struct {
	env     kv.Env
	pending PendingSource
	trie    TrieUpdater
}

// NewStore wraps env. trie may be nil; the pending source starts unset and
// SetPendingSource lets
// the producer register itself after construction (the producer needs the
// Store to exist first, so the dependency is broken this way around).
func NewStore(env kv.Env, trie TrieUpdater) *Store {
	return &Store{env: env, trie: trie}
}

// SetPendingSource registers the live pending-block source. Call once,
// during node wiring, before any reads are served.
func (s *Store) SetPendingSource(p PendingSource) { s.pending = p }

// Env exposes the underlying environment for components that manage their
// own transactions against non-provider tables (the fork cache, the trie's
// pruning sweep). It is intentionally not part of the Reader/Writer
// capability surface.
func (s *Store) Env() kv.Env { return s.env }

// Reader opens a fresh read-only snapshot. The caller must call the
// returned release function (it rolls the RoTx back, which for a read-only
// transaction just frees the snapshot).
func (s *Store) Reader() (*Provider, func(), error) {
	tx, err := s.env.BeginRo()
	if err != nil {
		return nil, nil, dbErr(err)
	}
	return NewProvider(tx, s.pending), tx.Rollback, nil
}

// Writer opens the single read-write transaction and binds a Writer to
// it. Commit/rollback of the transaction is the caller's responsibility:
// the producer commits after InsertBlockWithStatesAndReceipts succeeds and
// rolls back on any failure, which is what makes block commit atomic.
func (s *Store) Writer() (*Writer, kv.RwTx, error) {
	tx, err := s.env.BeginRw()
	if err != nil {
		return nil, nil, dbErr(err)
	}
	return NewWriter(tx, s.pending, s.trie), tx, nil
}

// View runs fn against one read snapshot and releases it afterwards; the
// convenience form for single-shot reads.
func (s *Store) View(fn func(*Provider) error) error {
	p, release, err := s.Reader()
	if err != nil {
		return err
	}
	defer release()
	return fn(p)
}

// contractInfo reads the current (class_hash, nonce) pair for addr, with
// found=false when the contract has never been touched.
func (p *Provider) contractInfo(addr felt.Felt) (classHash, nonce felt.Felt, found bool, err error) {
	v, found, err := p.tx.Get(kv.ContractInfo, feltKey(addr))
	if err != nil {
		return felt.Felt{}, felt.Felt{}, false, dbErr(err)
	}
	if !found {
		return felt.Zero, felt.Zero, false, nil
	}
	classHash, nonce, err = splitContractInfoValue(v)
	return classHash, nonce, true, err
}

// ClassDeclaredAt returns the block a class hash was declared in, with
// found=false for hashes never declared. Used by pool admission to reject
// re-declarations (ClassAlreadyDeclared) and Declares referencing unknown
// classes.
func (p *Provider) ClassDeclaredAt(classHash felt.Felt) (uint64, bool, error) {
	v, found, err := p.tx.Get(kv.ClassDeclBlocks, feltKey(classHash))
	if err != nil {
		return 0, false, dbErr(err)
	}
	if !found {
		return 0, false, nil
	}
	return u64Val(v), true, nil
}
