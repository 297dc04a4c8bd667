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

// PendingView is the block producer's in-progress staged state, as
// visible through the `pending` block identifier.
// internal/producer constructs one per in-progress block; reads against
// it must observe the partial batch up to the last fully executed
// transaction and never a torn intermediate state.
type PendingView struct {
	Header       block.Header
	Transactions []txn.Transaction
	Receipts     []receipt.Receipt
	Traces       []receipt.Trace
	Nonces       map[felt.Felt]felt.Felt
	ClassHashes  map[felt.Felt]felt.Felt
	Storage      map[state.StorageKey]felt.Felt
	Classes      map[felt.Felt]classes.Artifact
}

// PendingSource is implemented by internal/producer and registered with
// a Store so BlockID{Kind: BlockIDPending} reads route to the producer's
// live staged view instead of committed tables. With no registered
// source (or no block in progress), header, block, transaction and
// receipt reads at `pending` find nothing, while nonce, class hash and
// storage reads at `pending` fall back to the latest committed state.
type PendingSource interface {
	PendingBlock() (*PendingView, bool)
}
