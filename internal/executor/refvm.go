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

package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/receipt"
	"github.com/katana-sequencer/katana/internal/txn"
)

// Builtin class hashes the reference VM dispatches on. The genesis layer
// deploys the fee token with ERC20ClassHash and pre-funded accounts with
// AccountClassHash; any other deployed class gets the generic
// store/read call surface.
var (
	ERC20ClassHash   = felt.FromUint64(0xe20)
	AccountClassHash = felt.FromUint64(0xacc)
	PanicClassHash   = felt.FromUint64(0xbad)
)

// Selector names an entry point. The reference VM uses the raw name bytes
// as the selector value; a real VM would use sn_keccak, but nothing in
// this module depends on the particular mapping, only on determinism.
func Selector(name string) felt.Felt { return felt.FromBytesBE([]byte(name)) }

var (
	selTransfer  = Selector("transfer")
	selBalanceOf = Selector("balance_of")
	selStore     = Selector("store")
	selRead      = Selector("read")
	selPanic     = Selector("panic")
)

// BalanceSlot is the ERC20 balance storage slot for an address, shared
// with the genesis allocator.
func BalanceSlot(addr felt.Felt) felt.Felt {
	return felt.PedersenHash(felt.FromBytesBE([]byte("ERC20_balances")), addr)
}

// FeeTokenAddress is where the genesis layer deploys the default fee
// token. The VM charges fees against this contract's balance slots.
var FeeTokenAddress = felt.FromUint64(0xf33)

// Gas accounting constants for the reference VM's flat cost model. The
// version-constants table is selected by BlockEnv.StarknetVersion; all
// currently supported versions share one table.
const (
	gasValidate       = 500
	gasBasePerTx      = 1000
	gasPerCalldataElt = 100
	gasDeclare        = 2000
	gasDeploy         = 1500
)

// RefVM is the deterministic in-tree Executor. Declared-class artifacts
// travel out-of-band from Declare transactions (the wire form carries
// only hashes), so the producer registers each drained Declare's artifact
// with ProvideArtifact before calling Execute.
type RefVM struct {
	mu        sync.Mutex
	artifacts map[felt.Felt]classes.Artifact
}

func NewRefVM() *RefVM {
	return &RefVM{artifacts: make(map[felt.Felt]classes.Artifact)}
}

var _ Executor = (*RefVM)(nil)

// ProvideArtifact registers the class artifact for a pending Declare.
func (vm *RefVM) ProvideArtifact(classHash felt.Felt, a classes.Artifact) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.artifacts[classHash] = a
}

func (vm *RefVM) artifactFor(classHash felt.Felt) (classes.Artifact, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	a, ok := vm.artifacts[classHash]
	return a, ok
}

// revertError carries the panic data of a reverted execution up to the
// receipt builder without aborting the batch.
type revertError struct {
	reason string
}

func (e *revertError) Error() string { return "reverted: " + e.reason }

func (vm *RefVM) Execute(ctx context.Context, env BlockEnv, st *StagedState, txs []txn.Transaction) ([]ExecutionResult, error) {
	out := make([]ExecutionResult, 0, len(txs))
	for _, t := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := vm.executeOne(env, st, t, SimulationFlags{})
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) || errors.Is(err, ErrClassAlreadyDeclared) {
				out = append(out, ExecutionResult{Rejected: err, Receipt: receipt.Receipt{TxHash: t.Hash()}})
				continue
			}
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (vm *RefVM) Estimate(ctx context.Context, env BlockEnv, st *StagedState, t txn.Transaction) (FeeEstimate, error) {
	if err := ctx.Err(); err != nil {
		return FeeEstimate{}, err
	}
	cp := st.Checkpoint()
	defer st.RollbackTo(cp)
	res, err := vm.executeOne(env, st, t, SimulationFlags{})
	if err != nil {
		return FeeEstimate{}, err
	}
	return FeeEstimate{Usage: res.Receipt.ResourceUsage, OverallFee: res.Receipt.ActualFee}, nil
}

func (vm *RefVM) Simulate(ctx context.Context, env BlockEnv, st *StagedState, t txn.Transaction, flags SimulationFlags) (Simulation, error) {
	if err := ctx.Err(); err != nil {
		return Simulation{}, err
	}
	cp := st.Checkpoint()
	defer st.RollbackTo(cp)
	res, err := vm.executeOne(env, st, t, flags)
	if err != nil {
		return Simulation{}, err
	}
	return Simulation{
		Estimate:  FeeEstimate{Usage: res.Receipt.ResourceUsage, OverallFee: res.Receipt.ActualFee},
		Trace:     res.Trace,
		StateDiff: res.StateDiff,
	}, nil
}

// executeOne runs the full validate / execute / charge-fee sequence for a
// single transaction. A revert mid-execution rolls the execution writes
// back but keeps the nonce bump and still charges the fee consumed up to
// the revert point; a validation
// failure rolls everything back and surfaces as *ValidationError.
func (vm *RefVM) executeOne(env BlockEnv, st *StagedState, t txn.Transaction, flags SimulationFlags) (ExecutionResult, error) {
	cp := st.Checkpoint()

	usage := receipt.ResourceUsage{}
	if !flags.SkipValidate {
		if err := vm.validate(env, st, t); err != nil {
			st.RollbackTo(cp)
			return ExecutionResult{}, err
		}
		usage.Steps += gasValidate
	}

	// The nonce bump survives a revert but not a validation failure.
	if t.Kind != txn.KindL1Handler {
		sender := t.Sender()
		if t.Kind == txn.KindDeployAccountV1 || t.Kind == txn.KindDeployAccountV3 {
			// The account does not exist until the deploy below; its
			// nonce is seeded there.
		} else {
			nonce, err := st.GetNonceAt(sender)
			if err != nil {
				st.RollbackTo(cp)
				return ExecutionResult{}, err
			}
			st.SetNonce(sender, nonce.Add(felt.One))
		}
	}

	execCp := st.Checkpoint()
	trace, execUsage, execErr := vm.run(env, st, t)
	usage.Steps += execUsage.Steps
	usage.L2Gas = usage.Steps
	usage.L1Gas = execUsage.L1Gas
	usage.L1DataGas = execUsage.L1DataGas

	status := receipt.StatusSucceeded
	revertReason := ""
	if execErr != nil {
		var rev *revertError
		if isRevert(execErr, &rev) {
			st.RollbackTo(execCp)
			status = receipt.StatusReverted
			revertReason = rev.reason
			// A reverted tx still consumed what it consumed; the trace
			// is truncated to the failing frame.
		} else {
			st.RollbackTo(cp)
			return ExecutionResult{}, execErr
		}
	}

	fee := vm.fee(env, t, usage)
	if !flags.SkipFeeCharge && !env.FeeDisabled && !fee.IsZero() {
		if err := vm.chargeFee(env, st, t.Sender(), fee); err != nil {
			st.RollbackTo(cp)
			return ExecutionResult{}, err
		}
	}
	if env.FeeDisabled {
		fee = felt.Zero
	}

	diff := st.DiffSince(cp)
	events := trace.Events()
	rcpt := receipt.Receipt{
		TxHash:        t.Hash(),
		Status:        status,
		RevertReason:  revertReason,
		ActualFee:     fee,
		ResourceUsage: usage,
		Events:        events,
		Messages:      trace.Messages(),
	}
	return ExecutionResult{Receipt: rcpt, Trace: trace, StateDiff: diff}, nil
}

func isRevert(err error, out **revertError) bool {
	rev, ok := err.(*revertError)
	if ok {
		*out = rev
	}
	return ok
}

// validate applies the pre-execution checks: chain id, signature
// presence, exact nonce match, the V3 L2 gas bound (at most the per-block
// maximum when one is set, and at least the per-transaction base gas
// unless fees are disabled), and artifact availability for Declares. No
// network-level resource ceiling is applied.
func (vm *RefVM) validate(env BlockEnv, st *StagedState, t txn.Transaction) error {
	if !t.ChainID().Equal(env.ChainID) {
		return validationErrf("chain id %s != %s", t.ChainID().Hex(), env.ChainID.Hex())
	}

	switch t.Kind {
	case txn.KindL1Handler:
		// Bridged from L1, no user signature or account nonce.
		return nil
	case txn.KindDeployAccountV1, txn.KindDeployAccountV3:
		// No account exists to hold a nonce yet.
	default:
		nonce, err := st.GetNonceAt(t.Sender())
		if err != nil {
			return err
		}
		if !t.Nonce().Equal(nonce) {
			return validationErrf("nonce %s != expected %s for %s", t.Nonce().Hex(), nonce.Hex(), t.Sender().Hex())
		}
	}

	if sig := signatureOf(t); len(sig) == 0 {
		return validationErrf("missing signature")
	}

	if bounds, ok := t.EffectiveResourceBounds(); ok {
		maxL2 := env.MaxBlockResources.L2Gas.MaxAmount
		if maxL2 > 0 && bounds.L2Gas.MaxAmount > maxL2 {
			return validationErrf("l2 gas bound %d exceeds block max %d", bounds.L2Gas.MaxAmount, maxL2)
		}
		if !env.FeeDisabled && bounds.L2Gas.MaxAmount < gasBasePerTx {
			return validationErrf("l2 gas bound %d below minimum %d", bounds.L2Gas.MaxAmount, gasBasePerTx)
		}
	}

	if classHash, ok := t.DeclaredClassHash(); ok {
		declared, err := st.ClassDeclared(classHash)
		if err != nil {
			return err
		}
		if declared {
			return ErrClassAlreadyDeclared
		}
		if _, ok := vm.artifactFor(classHash); !ok {
			return validationErrf("no artifact provided for class %s", classHash.Hex())
		}
	}
	return nil
}

func signatureOf(t txn.Transaction) []felt.Felt {
	switch t.Kind {
	case txn.KindInvokeV0:
		return t.InvokeV0.Signature
	case txn.KindInvokeV1:
		return t.InvokeV1.Signature
	case txn.KindInvokeV3:
		return t.InvokeV3.Signature
	case txn.KindDeclareV0:
		return t.DeclareV0.Signature
	case txn.KindDeclareV1:
		return t.DeclareV1.Signature
	case txn.KindDeclareV2:
		return t.DeclareV2.Signature
	case txn.KindDeclareV3:
		return t.DeclareV3.Signature
	case txn.KindDeployAccountV1:
		return t.DeployAccountV1.Signature
	case txn.KindDeployAccountV3:
		return t.DeployAccountV3.Signature
	default:
		return []felt.Felt{felt.One} // L1Handler carries no user signature
	}
}

// run dispatches on transaction kind and produces the execution trace.
func (vm *RefVM) run(env BlockEnv, st *StagedState, t txn.Transaction) (receipt.Trace, receipt.ResourceUsage, error) {
	switch t.Kind {
	case txn.KindInvokeV0:
		return vm.call(env, st, t.Sender(), t.InvokeV0.ContractAddress, t.InvokeV0.EntryPointSelector, t.InvokeV0.Calldata)
	case txn.KindInvokeV1:
		return vm.invoke(env, st, t.Sender(), t.InvokeV1.Calldata)
	case txn.KindInvokeV3:
		return vm.invoke(env, st, t.Sender(), t.InvokeV3.Calldata)
	case txn.KindL1Handler:
		return vm.call(env, st, t.Sender(), t.L1Handler.ContractAddress, t.L1Handler.EntryPointSelector, t.L1Handler.Calldata)
	case txn.KindDeclareV0, txn.KindDeclareV1, txn.KindDeclareV2, txn.KindDeclareV3:
		return vm.declare(st, t)
	case txn.KindDeployAccountV1, txn.KindDeployAccountV3:
		return vm.deployAccount(st, t)
	default:
		return receipt.Trace{}, receipt.ResourceUsage{}, validationErrf("unsupported transaction kind %d", t.Kind)
	}
}

// invoke unpacks the account call convention: calldata is
// [target, selector, argc, args...].
func (vm *RefVM) invoke(env BlockEnv, st *StagedState, sender felt.Felt, calldata []felt.Felt) (receipt.Trace, receipt.ResourceUsage, error) {
	if len(calldata) < 3 {
		return receipt.Trace{}, receipt.ResourceUsage{}, &revertError{reason: "calldata too short for call"}
	}
	target := calldata[0]
	selector := calldata[1]
	argc := calldata[2].Uint64()
	if uint64(len(calldata)-3) < argc {
		return receipt.Trace{}, receipt.ResourceUsage{}, &revertError{reason: "calldata arg count mismatch"}
	}
	return vm.call(env, st, sender, target, selector, calldata[3:3+argc])
}

func (vm *RefVM) call(env BlockEnv, st *StagedState, caller, target, selector felt.Felt, args []felt.Felt) (receipt.Trace, receipt.ResourceUsage, error) {
	usage := receipt.ResourceUsage{Steps: gasBasePerTx + gasPerCalldataElt*uint64(len(args))}
	info := receipt.CallInfo{
		ContractAddress:    target,
		EntryPointSelector: selector,
		Calldata:           args,
	}

	classHash, err := st.GetClassHashAt(target)
	if err != nil {
		return receipt.Trace{}, usage, err
	}
	if classHash.IsZero() {
		return receipt.Trace{Root: info}, usage, &revertError{reason: fmt.Sprintf("contract not deployed: %s", target.Hex())}
	}

	switch {
	case classHash.Equal(PanicClassHash) || selector.Equal(selPanic):
		return receipt.Trace{Root: info}, usage, &revertError{reason: panicData(args)}

	case classHash.Equal(ERC20ClassHash):
		switch {
		case selector.Equal(selTransfer):
			if len(args) != 2 {
				return receipt.Trace{Root: info}, usage, &revertError{reason: "transfer expects (to, amount)"}
			}
			to, amount := args[0], args[1]
			fromSlot, toSlot := BalanceSlot(caller), BalanceSlot(to)
			fromBal, err := st.StorageRead(target, fromSlot)
			if err != nil {
				return receipt.Trace{}, usage, err
			}
			if fromBal.Cmp(amount) < 0 {
				return receipt.Trace{Root: info}, usage, &revertError{reason: "insufficient balance"}
			}
			toBal, err := st.StorageRead(target, toSlot)
			if err != nil {
				return receipt.Trace{}, usage, err
			}
			st.StorageWrite(target, fromSlot, fromBal.Sub(amount))
			st.StorageWrite(target, toSlot, toBal.Add(amount))
			info.Events = append(info.Events, receipt.Event{
				FromAddress: target,
				Keys:        []felt.Felt{selTransfer},
				Data:        []felt.Felt{caller, to, amount},
			})
			info.Result = []felt.Felt{felt.One}
			return receipt.Trace{Root: info}, usage, nil

		case selector.Equal(selBalanceOf):
			if len(args) != 1 {
				return receipt.Trace{Root: info}, usage, &revertError{reason: "balance_of expects (addr)"}
			}
			bal, err := st.StorageRead(target, BalanceSlot(args[0]))
			if err != nil {
				return receipt.Trace{}, usage, err
			}
			info.Result = []felt.Felt{bal}
			return receipt.Trace{Root: info}, usage, nil

		default:
			return receipt.Trace{Root: info}, usage, &revertError{reason: "unknown ERC20 entry point"}
		}

	default:
		// Generic contract surface: store/read against the callee's own
		// storage.
		switch {
		case selector.Equal(selStore):
			if len(args) != 2 {
				return receipt.Trace{Root: info}, usage, &revertError{reason: "store expects (key, value)"}
			}
			st.StorageWrite(target, args[0], args[1])
			info.Result = []felt.Felt{felt.One}
			return receipt.Trace{Root: info}, usage, nil
		case selector.Equal(selRead):
			if len(args) != 1 {
				return receipt.Trace{Root: info}, usage, &revertError{reason: "read expects (key)"}
			}
			v, err := st.StorageRead(target, args[0])
			if err != nil {
				return receipt.Trace{}, usage, err
			}
			info.Result = []felt.Felt{v}
			return receipt.Trace{Root: info}, usage, nil
		default:
			return receipt.Trace{Root: info}, usage, &revertError{reason: "unknown entry point"}
		}
	}
}

func panicData(args []felt.Felt) string {
	if len(args) == 0 {
		return "panicked"
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Hex()
	}
	return "panicked: [" + strings.Join(parts, ", ") + "]"
}

func (vm *RefVM) declare(st *StagedState, t txn.Transaction) (receipt.Trace, receipt.ResourceUsage, error) {
	usage := receipt.ResourceUsage{Steps: gasDeclare}
	classHash, _ := t.DeclaredClassHash()
	artifact, ok := vm.artifactFor(classHash)
	if !ok {
		return receipt.Trace{}, usage, validationErrf("no artifact provided for class %s", classHash.Hex())
	}
	compiled := felt.Zero
	switch t.Kind {
	case txn.KindDeclareV2:
		compiled = t.DeclareV2.CompiledClassHash
	case txn.KindDeclareV3:
		compiled = t.DeclareV3.CompiledClassHash
	}
	if err := st.Declare(classHash, artifact, compiled); err != nil {
		return receipt.Trace{}, usage, err
	}
	info := receipt.CallInfo{ContractAddress: t.Sender(), EntryPointSelector: Selector("__declare__"), Result: []felt.Felt{classHash}}
	return receipt.Trace{Root: info}, usage, nil
}

func (vm *RefVM) deployAccount(st *StagedState, t txn.Transaction) (receipt.Trace, receipt.ResourceUsage, error) {
	usage := receipt.ResourceUsage{Steps: gasDeploy}
	var classHash felt.Felt
	var calldata []felt.Felt
	switch t.Kind {
	case txn.KindDeployAccountV1:
		classHash, calldata = t.DeployAccountV1.ClassHash, t.DeployAccountV1.ConstructorCalldata
	case txn.KindDeployAccountV3:
		classHash, calldata = t.DeployAccountV3.ClassHash, t.DeployAccountV3.ConstructorCalldata
	}
	addr := t.Sender()
	if err := st.Deploy(addr, classHash); err != nil {
		return receipt.Trace{}, usage, err
	}
	st.SetNonce(addr, felt.One)
	info := receipt.CallInfo{ContractAddress: addr, EntryPointSelector: Selector("constructor"), Calldata: calldata, Result: []felt.Felt{addr}}
	return receipt.Trace{Root: info}, usage, nil
}

// fee prices usage with the version-constants table for
// env.StarknetVersion. The effective rate is the L2 gas price in fri for
// V3 transactions (plus tip) and in wei for earlier versions.
func (vm *RefVM) fee(env BlockEnv, t txn.Transaction, usage receipt.ResourceUsage) felt.Felt {
	if env.FeeDisabled {
		return felt.Zero
	}
	gas := felt.FromUint64(usage.Steps)
	var price felt.Felt
	if _, isV3 := t.EffectiveResourceBounds(); isV3 {
		price = env.L2GasPrice.InFri.Add(felt.FromUint64(t.Tip()))
	} else {
		price = env.L2GasPrice.InWei
	}
	if price.IsZero() {
		price = felt.One
	}
	return gas.Mul(price)
}

// chargeFee moves the fee from the sender's fee-token balance to the
// sequencer's. An unpayable fee is a validation failure, not a revert.
func (vm *RefVM) chargeFee(env BlockEnv, st *StagedState, sender, fee felt.Felt) error {
	fromSlot := BalanceSlot(sender)
	bal, err := st.StorageRead(FeeTokenAddress, fromSlot)
	if err != nil {
		return err
	}
	if bal.Cmp(fee) < 0 {
		return validationErrf("fee %s exceeds balance %s", fee.Hex(), bal.Hex())
	}
	seqSlot := BalanceSlot(env.SequencerAddress)
	seqBal, err := st.StorageRead(FeeTokenAddress, seqSlot)
	if err != nil {
		return err
	}
	st.StorageWrite(FeeTokenAddress, fromSlot, bal.Sub(fee))
	st.StorageWrite(FeeTokenAddress, seqSlot, seqBal.Add(fee))
	return nil
}
