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

// Package executor defines the Executor capability, a deterministic
// transaction-execution facade over a staged state, plus
// the staged-state overlay itself. The Starknet VM proper is an external
// collaborator; the in-tree reference implementation (refvm.go) is a
// deterministic stand-in with just enough call semantics to exercise the
// pool/producer/provider pipeline end to end.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/katana-sequencer/katana/internal/block"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/receipt"
	"github.com/katana-sequencer/katana/internal/state"
	"github.com/katana-sequencer/katana/internal/txn"
)

// BlockEnv is everything execution needs to know about the block being
// built. StarknetVersion selects the version-constants table used to
// price resources.
type BlockEnv struct {
	Number           uint64
	Timestamp        uint64
	SequencerAddress felt.Felt
	ChainID          felt.Felt
	L1GasPrice       block.GasPrice
	L1DataGasPrice   block.GasPrice
	L2GasPrice       block.GasPrice
	L1DAMode         block.DAMode
	StarknetVersion  string

	// MaxBlockResources is the per-block configured ceiling. RefVM rejects
	// a transaction whose L2 gas bound exceeds its L2 gas amount (zero
	// means no ceiling); no combined effective limit is computed and no
	// network-level constants are applied.
	MaxBlockResources txn.V3ResourceBounds

	// FeeDisabled zeroes all fee charging (--disable-fee).
	FeeDisabled bool
}

// ExecutionResult is one transaction's complete output: its receipt, its
// trace and the state diff it alone produced. A transaction that failed
// validation has Rejected set and contributed nothing to the state; the
// producer drops it from the block instead of aborting the batch.
type ExecutionResult struct {
	Receipt   receipt.Receipt
	Trace     receipt.Trace
	StateDiff *state.StateUpdates
	Rejected  error
}

// FeeEstimate reports the gas/resource usage a transaction would consume
// and the fee it would be charged.
type FeeEstimate struct {
	Usage      receipt.ResourceUsage
	OverallFee felt.Felt
}

// SimulationFlags relax validation for simulate calls.
type SimulationFlags struct {
	SkipValidate  bool
	SkipFeeCharge bool
}

// Simulation is an estimate plus the trace and the full state diff.
type Simulation struct {
	Estimate  FeeEstimate
	Trace     receipt.Trace
	StateDiff *state.StateUpdates
}

// Executor is the capability contract Execution is
// deterministic given (env, starting state, transactions). Execute
// applies each transaction's effects to st in order; Estimate and
// Simulate leave st untouched.
type Executor interface {
	Execute(ctx context.Context, env BlockEnv, st *StagedState, txs []txn.Transaction) ([]ExecutionResult, error)
	Estimate(ctx context.Context, env BlockEnv, st *StagedState, tx txn.Transaction) (FeeEstimate, error)
	Simulate(ctx context.Context, env BlockEnv, st *StagedState, tx txn.Transaction, flags SimulationFlags) (Simulation, error)
}

// ValidationError is a pre-execution rejection: wrong chain id, bad
// nonce, missing class, unpayable fee. The transaction is rejected, not
// reverted; it never makes it into a block (RPC 55 ValidationFailure).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "executor: validation failed: " + e.Reason }

func validationErrf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ErrClassAlreadyDeclared rejects a Declare for a class hash that is
// already declared at or before the current head.
var ErrClassAlreadyDeclared = errors.New("executor: class already declared")
