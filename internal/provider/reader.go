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
	"github.com/katana-sequencer/katana/internal/block"
	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/receipt"
	"github.com/katana-sequencer/katana/internal/state"
	"github.com/katana-sequencer/katana/internal/txn"
)

// BlockReader resolves headers/blocks and block identifiers.
type BlockReader interface {
	HeaderByID(id BlockID) (block.Header, error)
	BlockByID(id BlockID) (block.Block, error)
	ResolveNumber(id BlockID) (uint64, error)
	HeadNumber() (uint64, bool, error)
}

// TransactionReader resolves individual transactions by (block, index) or
// hash, and a block's full body.
type TransactionReader interface {
	TransactionByHash(hash felt.Felt) (txn.Transaction, error)
	TransactionsByBlockID(id BlockID) ([]txn.Transaction, error)
	BlockNumberByTxHash(hash felt.Felt) (uint64, error)
}

// StateReader answers point-in-time state questions against a BlockID.
type StateReader interface {
	NonceAt(id BlockID, address felt.Felt) (felt.Felt, error)
	ClassHashAt(id BlockID, address felt.Felt) (felt.Felt, error)
	StorageAt(id BlockID, address, key felt.Felt) (felt.Felt, error)
}

// ClassReader resolves declared class artifacts.
type ClassReader interface {
	ClassByHash(hash felt.Felt) (classes.Artifact, error)
	CompiledClassHash(sierraHash felt.Felt) (felt.Felt, error)
}

// ReceiptReader resolves a transaction's receipt.
type ReceiptReader interface {
	ReceiptByHash(hash felt.Felt) (receipt.Receipt, error)
	ReceiptsByBlockID(id BlockID) ([]receipt.Receipt, error)
}

// TraceReader resolves a transaction's execution trace.
type TraceReader interface {
	TraceByHash(hash felt.Felt) (receipt.Trace, error)
}

// StateUpdatesReader resolves a block's committed state delta.
type StateUpdatesReader interface {
	StateUpdatesByID(id BlockID) (*state.StateUpdates, error)
}

// StageCheckpointReader resolves the sync pipeline's per-stage
// checkpoints (see internal/syncstage).
type StageCheckpointReader interface {
	StageCheckpoint(stage string) (uint64, bool, error)
}

// Reader bundles every capability group a snapshot-bound Provider
// satisfies in one interface, for callers that just want "a read
// snapshot" without naming each narrower interface.
type Reader interface {
	BlockReader
	TransactionReader
	StateReader
	ClassReader
	ReceiptReader
	TraceReader
	StateUpdatesReader
	StageCheckpointReader
}
