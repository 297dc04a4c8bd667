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

// Package state defines StateUpdates, the canonical per-block delta
// structure applied between blocks, and the declared-class-artifact
// invariant that guards block commit.
package state

import (
	"sort"

	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/felt"
)

// StorageKey addresses one (contract, slot) pair.
type StorageKey struct {
	Address felt.Felt
	Key     felt.Felt
}

// DeclaredSierraClass pairs a Sierra class hash with its compiled class
// hash, as recorded in StateUpdates.declared_sierra.
type DeclaredSierraClass struct {
	ClassHash         felt.Felt
	CompiledClassHash felt.Felt
}

// StateUpdates is the per-block delta applied to the global state. Every
// class hash referenced in DeclaredSierra/DeclaredLegacy must have a
// matching entry in ClassArtifacts, enforced by Validate and re-checked
// by the provider at commit time per the declared-class-artifact
// invariant.
type StateUpdates struct {
	Nonces          map[felt.Felt]felt.Felt // address -> new nonce
	StorageDiffs    map[StorageKey]felt.Felt
	ReplacedClasses map[felt.Felt]felt.Felt // address -> new class_hash
	DeclaredSierra  []DeclaredSierraClass
	DeclaredLegacy  []felt.Felt // class hashes
	DeployedContracts map[felt.Felt]felt.Felt // address -> class_hash
	ClassArtifacts  map[felt.Felt]classes.Artifact
}

// New returns an empty, ready-to-use StateUpdates.
func New() *StateUpdates {
	return &StateUpdates{
		Nonces:            make(map[felt.Felt]felt.Felt),
		StorageDiffs:      make(map[StorageKey]felt.Felt),
		ReplacedClasses:   make(map[felt.Felt]felt.Felt),
		DeployedContracts: make(map[felt.Felt]felt.Felt),
		ClassArtifacts:    make(map[felt.Felt]classes.Artifact),
	}
}

// Validate enforces the declared-class-artifact invariant:
// every class hash referenced in the declared_* fields must be
// accompanied by its artifact.
func (u *StateUpdates) Validate() error {
	for _, d := range u.DeclaredSierra {
		if _, ok := u.ClassArtifacts[d.ClassHash]; !ok {
			return &MissingArtifactError{ClassHash: d.ClassHash}
		}
	}
	for _, ch := range u.DeclaredLegacy {
		if _, ok := u.ClassArtifacts[ch]; !ok {
			return &MissingArtifactError{ClassHash: ch}
		}
	}
	return nil
}

// MissingArtifactError reports a declared class hash with no accompanying
// artifact; aborts block commit.
type MissingArtifactError struct {
	ClassHash felt.Felt
}

func (e *MissingArtifactError) Error() string {
	return "state: declared class " + e.ClassHash.Hex() + " has no accompanying artifact"
}

// SortedAddresses returns every address touched by this update (nonce,
// storage, replaced class, or deployment) in ascending order, the
// deterministic replay order the trie layer requires.
func (u *StateUpdates) SortedAddresses() []felt.Felt {
	seen := make(map[felt.Felt]struct{})
	add := func(a felt.Felt) { seen[a] = struct{}{} }
	for a := range u.Nonces {
		add(a)
	}
	for k := range u.StorageDiffs {
		add(k.Address)
	}
	for a := range u.ReplacedClasses {
		add(a)
	}
	for a := range u.DeployedContracts {
		add(a)
	}
	out := make([]felt.Felt, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// StorageKeysForAddress returns the storage keys touched for addr, sorted
// ascending, per the trie replay order invariant.
func (u *StateUpdates) StorageKeysForAddress(addr felt.Felt) []felt.Felt {
	var out []felt.Felt
	for k := range u.StorageDiffs {
		if k.Address.Equal(addr) {
			out = append(out, k.Key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}
