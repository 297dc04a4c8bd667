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
	"encoding/binary"
	"fmt"

	"github.com/katana-sequencer/katana/internal/felt"
)

// Numeric keys (block numbers, tx indices, stage checkpoints) are encoded
// big-endian so lexicographic byte order matches numeric order.
func u64Key(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

func u64Val(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func feltKey(f felt.Felt) []byte {
	b := f.Bytes()
	return b[:]
}

func decodeFelt(b []byte) (felt.Felt, error) {
	var f felt.Felt
	if err := f.UnmarshalBinary(b); err != nil {
		return felt.Felt{}, err
	}
	return f, nil
}

// contractStorageKey builds the DupSort dbi key for the ContractStorage
// table: the address alone, grouping all of one account's storage slots
// under a single dbi key.
func contractStorageKey(addr felt.Felt) []byte { return feltKey(addr) }

// contractStorageValue is the DupSort value: storage_key ++ value,
// ordered lexicographically by storage_key so NextDup walks one account's
// slots in ascending key order.
func contractStorageValue(key, value felt.Felt) []byte {
	kb := key.Bytes()
	vb := value.Bytes()
	out := make([]byte, 0, 64)
	out = append(out, kb[:]...)
	out = append(out, vb[:]...)
	return out
}

func splitContractStorageValue(v []byte) (key, value felt.Felt, err error) {
	if len(v) != 64 {
		return felt.Felt{}, felt.Felt{}, errShortValue("ContractStorage", 64, len(v))
	}
	if key, err = decodeFelt(v[:32]); err != nil {
		return
	}
	value, err = decodeFelt(v[32:])
	return
}

// contractInfoValue packs (class_hash, nonce) as two concatenated felts.
func contractInfoValue(classHash, nonce felt.Felt) []byte {
	cb := classHash.Bytes()
	nb := nonce.Bytes()
	out := make([]byte, 0, 64)
	out = append(out, cb[:]...)
	out = append(out, nb[:]...)
	return out
}

func splitContractInfoValue(v []byte) (classHash, nonce felt.Felt, err error) {
	if len(v) != 64 {
		return felt.Felt{}, felt.Felt{}, errShortValue("ContractInfo", 64, len(v))
	}
	if classHash, err = decodeFelt(v[:32]); err != nil {
		return
	}
	nonce, err = decodeFelt(v[32:])
	return
}

// historyKey is the dbi key shared by ContractHistory ((address)) and
// StorageHistory ((address, storage_key)).
func historyKey(parts ...felt.Felt) []byte {
	out := make([]byte, 0, 32*len(parts))
	for _, p := range parts {
		b := p.Bytes()
		out = append(out, b[:]...)
	}
	return out
}

// historyValue prefixes the payload with the block number so DupSort
// iteration within one (address[, key]) walks snapshots in ascending
// block order, letting a point-in-time read seek to the newest entry at
// or before a target block.
func historyValue(block uint64, payload []byte) []byte {
	out := make([]byte, 0, 8+len(payload))
	out = append(out, u64Key(block)...)
	out = append(out, payload...)
	return out
}

func splitHistoryValue(v []byte) (block uint64, payload []byte, err error) {
	if len(v) < 8 {
		return 0, nil, errShortValue("history", 8, len(v))
	}
	return u64Val(v[:8]), v[8:], nil
}

type shortValueError struct {
	table     string
	want, got int
}

func errShortValue(table string, want, got int) error { return &shortValueError{table, want, got} }

func (e *shortValueError) Error() string {
	return fmt.Sprintf("provider: %s value too short: want %d got %d", e.table, e.want, e.got)
}
