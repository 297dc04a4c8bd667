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

package v1

import (
	"sort"

	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/state"
)

func sortedFeltKeys[V any](m map[felt.Felt]V) []felt.Felt {
	out := make([]felt.Felt, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func writeFeltMap(w *writer, m map[felt.Felt]felt.Felt) {
	keys := sortedFeltKeys(m)
	w.uvarint(uint64(len(keys)))
	for _, k := range keys {
		w.felt(k)
		w.felt(m[k])
	}
}

func readFeltMap(r *reader) map[felt.Felt]felt.Felt {
	n := r.uvarint()
	m := make(map[felt.Felt]felt.Felt, n)
	for i := uint64(0); i < n; i++ {
		k := r.felt()
		m[k] = r.felt()
	}
	return m
}

// EncodeStateUpdates serializes a block's state delta. Map fields are
// written in ascending key order so two equal deltas always produce
// identical bytes, matching the deterministic replay order the trie
// layer relies on elsewhere.
func EncodeStateUpdates(u *state.StateUpdates) ([]byte, error) {
	w := &writer{}
	writeFeltMap(w, u.Nonces)

	storageKeys := make([]state.StorageKey, 0, len(u.StorageDiffs))
	for k := range u.StorageDiffs {
		storageKeys = append(storageKeys, k)
	}
	sort.Slice(storageKeys, func(i, j int) bool {
		if c := storageKeys[i].Address.Cmp(storageKeys[j].Address); c != 0 {
			return c < 0
		}
		return storageKeys[i].Key.Cmp(storageKeys[j].Key) < 0
	})
	w.uvarint(uint64(len(storageKeys)))
	for _, k := range storageKeys {
		w.felt(k.Address)
		w.felt(k.Key)
		w.felt(u.StorageDiffs[k])
	}

	writeFeltMap(w, u.ReplacedClasses)

	sierra := append([]state.DeclaredSierraClass(nil), u.DeclaredSierra...)
	sort.Slice(sierra, func(i, j int) bool { return sierra[i].ClassHash.Cmp(sierra[j].ClassHash) < 0 })
	w.uvarint(uint64(len(sierra)))
	for _, d := range sierra {
		w.felt(d.ClassHash)
		w.felt(d.CompiledClassHash)
	}

	legacy := append([]felt.Felt(nil), u.DeclaredLegacy...)
	sort.Slice(legacy, func(i, j int) bool { return legacy[i].Cmp(legacy[j]) < 0 })
	w.felts(legacy)

	writeFeltMap(w, u.DeployedContracts)

	artifactKeys := sortedFeltKeys(u.ClassArtifacts)
	w.uvarint(uint64(len(artifactKeys)))
	for _, k := range artifactKeys {
		ab, err := EncodeClassArtifact(u.ClassArtifacts[k])
		if err != nil {
			return nil, err
		}
		w.felt(k)
		w.bytes(ab)
	}

	return w.buf, nil
}

// DecodeStateUpdates is the inverse of EncodeStateUpdates.
func DecodeStateUpdates(b []byte) (*state.StateUpdates, error) {
	r := newReader(b)
	u := state.New()

	u.Nonces = readFeltMap(r)

	n := r.uvarint()
	for i := uint64(0); i < n; i++ {
		addr := r.felt()
		key := r.felt()
		val := r.felt()
		u.StorageDiffs[state.StorageKey{Address: addr, Key: key}] = val
	}

	u.ReplacedClasses = readFeltMap(r)

	nd := r.uvarint()
	if nd > 0 {
		u.DeclaredSierra = make([]state.DeclaredSierraClass, nd)
		for i := range u.DeclaredSierra {
			u.DeclaredSierra[i] = state.DeclaredSierraClass{ClassHash: r.felt(), CompiledClassHash: r.felt()}
		}
	}

	u.DeclaredLegacy = r.felts()
	u.DeployedContracts = readFeltMap(r)

	na := r.uvarint()
	for i := uint64(0); i < na; i++ {
		k := r.felt()
		ab := r.bytes()
		artifact, err := DecodeClassArtifact(ab)
		if err != nil {
			return nil, err
		}
		u.ClassArtifacts[k] = artifact
	}

	if err := r.done(); err != nil {
		return nil, err
	}
	return u, nil
}
