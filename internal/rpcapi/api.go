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

// Package rpcapi declares the Go contracts a JSON-RPC server binds the
// starknet_*, katana_* and dev_* namespaces to. The HTTP transport and
// method dispatch are external collaborators; these
// interfaces are the seam they plug into.
package rpcapi

import (
	"context"
	"time"

	"github.com/katana-sequencer/katana/internal/block"
	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/executor"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/provider"
	"github.com/katana-sequencer/katana/internal/receipt"
	"github.com/katana-sequencer/katana/internal/txn"
)

// BlockAPI serves the starknet_* block methods.
type BlockAPI interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockWithTxHashes(ctx context.Context, id provider.BlockID) (block.Block, error)
	BlockTransactionCount(ctx context.Context, id provider.BlockID) (int, error)
}

// TxAPI serves transaction submission and lookup.
type TxAPI interface {
	AddInvokeTransaction(ctx context.Context, tx txn.Transaction) (felt.Felt, error)
	AddDeclareTransaction(ctx context.Context, tx txn.Transaction, artifact classes.Artifact) (felt.Felt, error)
	AddDeployAccountTransaction(ctx context.Context, tx txn.Transaction) (felt.Felt, error)
	TransactionByHash(ctx context.Context, hash felt.Felt) (txn.Transaction, error)
	TransactionReceipt(ctx context.Context, hash felt.Felt) (receipt.Receipt, error)
}

// StateAPI serves point-in-time state queries.
type StateAPI interface {
	GetNonce(ctx context.Context, id provider.BlockID, addr felt.Felt) (felt.Felt, error)
	GetStorageAt(ctx context.Context, id provider.BlockID, addr, key felt.Felt) (felt.Felt, error)
	GetClassHashAt(ctx context.Context, id provider.BlockID, addr felt.Felt) (felt.Felt, error)
	GetClass(ctx context.Context, classHash felt.Felt) (classes.Artifact, error)
}

// TraceAPI serves simulation and tracing.
type TraceAPI interface {
	EstimateFee(ctx context.Context, id provider.BlockID, tx txn.Transaction) (executor.FeeEstimate, error)
	SimulateTransaction(ctx context.Context, id provider.BlockID, tx txn.Transaction, flags executor.SimulationFlags) (executor.Simulation, error)
	TraceTransaction(ctx context.Context, hash felt.Felt) (receipt.Trace, error)
}

// AdminAPI serves the katana_* namespace.
type AdminAPI interface {
	Mine(ctx context.Context, n int) error
	SetStorageAt(ctx context.Context, addr, key, value felt.Felt) error
	SetNonce(ctx context.Context, addr, nonce felt.Felt) error
	SetClassAt(ctx context.Context, addr, classHash felt.Felt) error
	PredeployedAccounts(ctx context.Context) ([]felt.Felt, error)
	IncreaseNextBlockTimestamp(ctx context.Context, delta time.Duration) error
}

// DevAPI serves the dev_* mining toggles.
type DevAPI interface {
	SetIntervalMining(ctx context.Context, interval time.Duration) error
	SetInstantMining(ctx context.Context) error
	StopMining(ctx context.Context) error
}
