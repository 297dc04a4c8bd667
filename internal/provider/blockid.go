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

import "github.com/katana-sequencer/katana/internal/felt"

// BlockIDKind tags which of the four block identifier forms is in use.
type BlockIDKind uint8

const (
	BlockIDLatest BlockIDKind = iota
	BlockIDPending
	BlockIDNumber
	BlockIDHash
)

// BlockID addresses a block the way every Reader method accepts it:
// latest, pending, number(N), or hash(H).
type BlockID struct {
	Kind   BlockIDKind
	Number uint64
	Hash   felt.Felt
}

func Latest() BlockID  { return BlockID{Kind: BlockIDLatest} }
func Pending() BlockID { return BlockID{Kind: BlockIDPending} }
func Number(n uint64) BlockID  { return BlockID{Kind: BlockIDNumber, Number: n} }
func ByHash(h felt.Felt) BlockID { return BlockID{Kind: BlockIDHash, Hash: h} }
