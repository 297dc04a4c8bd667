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

// Package block defines the Header/Block value types and the header's
// Poseidon commitment.
package block

import "github.com/katana-sequencer/katana/internal/felt"

// DAMode selects where block data is published.
type DAMode uint8

const (
	DAModeCalldata DAMode = iota
	DAModeBlob
)

// GasPrice is a (wei, fri) price pair, matching Starknet's dual fee-token
// pricing for a resource.
type GasPrice struct {
	InWei felt.Felt
	InFri felt.Felt
}

// Header carries everything needed to verify a block without its body.
type Header struct {
	Number                uint64
	ParentHash            felt.Felt
	Timestamp             uint64
	SequencerAddress      felt.Felt
	StateRoot             felt.Felt
	TransactionsCommitment felt.Felt
	EventsCommitment      felt.Felt
	ReceiptsCommitment    felt.Felt
	L1GasPrice            GasPrice
	L1DataGasPrice        GasPrice
	L2GasPrice            GasPrice
	L1DAMode              DAMode
	StarknetVersion       string
	ProtocolVersion       string
}

// Hash computes the deterministic Poseidon commitment over the header
// fields for the header's Starknet version. Only one commitment scheme is
// implemented here (versioning the scheme itself is future work, flagged
// in DESIGN.md); StarknetVersion is still hashed in so headers produced
// under different declared versions never collide.
func (h Header) Hash() felt.Felt {
	return felt.PoseidonHash(
		felt.FromUint64(h.Number),
		h.ParentHash,
		felt.FromUint64(h.Timestamp),
		h.SequencerAddress,
		h.StateRoot,
		h.TransactionsCommitment,
		h.EventsCommitment,
		h.ReceiptsCommitment,
		h.L1GasPrice.InWei,
		h.L1GasPrice.InFri,
		h.L1DataGasPrice.InWei,
		h.L1DataGasPrice.InFri,
		h.L2GasPrice.InWei,
		h.L2GasPrice.InFri,
		felt.FromUint64(uint64(h.L1DAMode)),
		felt.FromBytesBE([]byte(h.StarknetVersion)),
	)
}

// Block is a committed header plus the ordered list of the transaction
// hashes it contains; full transaction bodies live in the Transactions
// table, indexed via BlockBodyIndices.
type Block struct {
	Header       Header
	TxHashes     []felt.Felt
}

// TransactionsCommitment folds the block's transaction hashes into the
// header's transactions_commitment field using the same Poseidon sponge
// as every other commitment in this module, keeping the scheme uniform
// rather than introducing a separate Merkle commitment type.
func TransactionsCommitment(txHashes []felt.Felt) felt.Felt {
	return felt.PoseidonHash(txHashes...)
}
