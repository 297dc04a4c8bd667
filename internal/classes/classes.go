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

// Package classes implements the two Starknet class artifact variants:
// legacy (Cairo 0) and Sierra (Cairo 1). Classes are immutable once
// declared; ordering of the wire-format tag below is a persisted contract.
package classes

import "github.com/katana-sequencer/katana/internal/felt"

// Kind tags the wire variant. The numeric values are a persisted DB
// contract: never renumber once a schema version ships.
type Kind uint8

const (
	KindLegacy Kind = 0
	KindSierra Kind = 1
)

// EntryPoint is one exported function of a class, indexed by selector.
type EntryPoint struct {
	Selector felt.Felt
	Offset   uint64
}

// LegacyClass is a Cairo 0 artifact: a raw CASM program plus its ABI JSON
// and the entry points for each call kind.
type LegacyClass struct {
	Program           []byte // compressed CASM program bytes
	ABI               []byte // raw ABI JSON
	ExternalEntries   []EntryPoint
	L1HandlerEntries  []EntryPoint
	ConstructorEntry  []EntryPoint
}

// SierraClass is a Cairo 1 artifact: the Sierra program plus its compiled
// CASM and entry-point table. CompiledClassHash is the hash of the CASM,
// persisted separately (table CompiledClassHashes) so forks/migrations can
// recompile without re-declaring.
type SierraClass struct {
	SierraProgram     []byte
	CompiledCASM      []byte
	ABI               []byte
	ExternalEntries   []EntryPoint
	L1HandlerEntries  []EntryPoint
	ConstructorEntry  []EntryPoint
	CompiledClassHash felt.Felt
}

// Artifact is the tagged union stored in the Classes table.
type Artifact struct {
	Kind   Kind
	Legacy *LegacyClass
	Sierra *SierraClass
}

// Hash returns the class hash as it would appear in ContractInfo /
// StateUpdates.declared_*. Legacy and Sierra classes hash over disjoint
// domains: the Kind value is the first element hashed.
func (a Artifact) Hash() felt.Felt {
	switch a.Kind {
	case KindLegacy:
		return felt.PoseidonHash(felt.FromUint64(uint64(KindLegacy)), felt.PedersenHash(felt.FromBytesBE(a.Legacy.Program), felt.FromBytesBE(a.Legacy.ABI)))
	case KindSierra:
		return felt.PoseidonHash(felt.FromUint64(uint64(KindSierra)), felt.FromBytesBE(a.Sierra.SierraProgram), a.Sierra.CompiledClassHash)
	default:
		return felt.Zero
	}
}
