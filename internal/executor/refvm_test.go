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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/receipt"
	"github.com/katana-sequencer/katana/internal/state"
	"github.com/katana-sequencer/katana/internal/txn"
)

// memBase is a map-backed BaseState for tests.
type memBase struct {
	nonces      map[felt.Felt]felt.Felt
	classHashes map[felt.Felt]felt.Felt
	storage     map[state.StorageKey]felt.Felt
	declared    map[felt.Felt]classes.Artifact
}

func newMemBase() *memBase {
	return &memBase{
		nonces:      make(map[felt.Felt]felt.Felt),
		classHashes: make(map[felt.Felt]felt.Felt),
		storage:     make(map[state.StorageKey]felt.Felt),
		declared:    make(map[felt.Felt]classes.Artifact),
	}
}

func (b *memBase) Nonce(a felt.Felt) (felt.Felt, error)     { return b.nonces[a], nil }
func (b *memBase) ClassHash(a felt.Felt) (felt.Felt, error) { return b.classHashes[a], nil }
func (b *memBase) Storage(a, k felt.Felt) (felt.Felt, error) {
	return b.storage[state.StorageKey{Address: a, Key: k}], nil
}
func (b *memBase) Class(h felt.Felt) (classes.Artifact, error) {
	if a, ok := b.declared[h]; ok {
		return a, nil
	}
	return classes.Artifact{}, &ValidationError{Reason: "class not found"}
}
func (b *memBase) ClassDeclared(h felt.Felt) (bool, error) {
	_, ok := b.declared[h]
	return ok, nil
}
func (b *memBase) BlockHash(uint64) (felt.Felt, error) { return felt.Zero, nil }

func f(x uint64) felt.Felt { return felt.FromUint64(x) }

var (
	accountA = f(0x1)
	addrB    = f(0x2)
	chainID  = felt.FromBytesBE([]byte("KATANA"))
)

func testEnv() BlockEnv {
	return BlockEnv{
		Number:           1,
		Timestamp:        1000,
		SequencerAddress: f(0x5e9),
		ChainID:          chainID,
		StarknetVersion:  "0.13.4",
	}
}

// base with account A deployed and funded with 1_000_000, fee token
// deployed.
func fundedBase() *memBase {
	b := newMemBase()
	b.classHashes[accountA] = AccountClassHash
	b.classHashes[FeeTokenAddress] = ERC20ClassHash
	b.storage[state.StorageKey{Address: FeeTokenAddress, Key: BalanceSlot(accountA)}] = f(1_000_000)
	return b
}

func transferTx(nonce, to, amount felt.Felt) txn.Transaction {
	return txn.Transaction{
		Kind: txn.KindInvokeV3,
		InvokeV3: &txn.InvokeV3{
			Common: txn.Common{
				ChainID:       chainID,
				SenderAddress: accountA,
				Nonce:         nonce,
				Signature:     []felt.Felt{f(1), f(2)},
			},
			V3Extras: txn.V3Extras{
				ResourceBounds: txn.V3ResourceBounds{
					L2Gas: txn.ResourceBounds{MaxAmount: 1 << 20, MaxPricePerUnit: f(1)},
				},
			},
			Calldata: []felt.Felt{FeeTokenAddress, selTransfer, f(2), to, amount},
		},
	}
}

func TestTransferSucceeds(t *testing.T) {
	vm := NewRefVM()
	st := NewStagedState(fundedBase())
	env := testEnv()
	env.FeeDisabled = true

	tx := transferTx(f(0), addrB, f(1))
	// calldata: [target, selector, argc=2, to, amount]
	tx.InvokeV3.Calldata = []felt.Felt{FeeTokenAddress, selTransfer, f(2), addrB, f(1)}

	res, err := vm.Execute(context.Background(), env, st, []txn.Transaction{tx})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, receipt.StatusSucceeded, res[0].Receipt.Status)

	balB, err := st.StorageRead(FeeTokenAddress, BalanceSlot(addrB))
	require.NoError(t, err)
	require.True(t, balB.Equal(f(1)))

	nonce, err := st.GetNonceAt(accountA)
	require.NoError(t, err)
	require.True(t, nonce.Equal(f(1)))

	// Transfer event in emission order.
	require.Len(t, res[0].Receipt.Events, 1)
	require.True(t, res[0].Receipt.Events[0].Keys[0].Equal(selTransfer))
}

func TestTransferChargesFee(t *testing.T) {
	vm := NewRefVM()
	st := NewStagedState(fundedBase())
	env := testEnv()
	env.L2GasPrice.InFri = f(1)

	tx := transferTx(f(0), addrB, f(1))
	tx.InvokeV3.Calldata = []felt.Felt{FeeTokenAddress, selTransfer, f(2), addrB, f(1)}

	res, err := vm.Execute(context.Background(), env, st, []txn.Transaction{tx})
	require.NoError(t, err)
	require.False(t, res[0].Receipt.ActualFee.IsZero())

	balA, err := st.StorageRead(FeeTokenAddress, BalanceSlot(accountA))
	require.NoError(t, err)
	// Balance dropped by transfer amount plus fee.
	want := f(1_000_000).Sub(f(1)).Sub(res[0].Receipt.ActualFee)
	require.True(t, balA.Equal(want))
}

func TestRevertKeepsNonceAndFee(t *testing.T) {
	vm := NewRefVM()
	base := fundedBase()
	panicAddr := f(0x77)
	base.classHashes[panicAddr] = PanicClassHash
	st := NewStagedState(base)
	env := testEnv()
	env.L2GasPrice.InFri = f(1)

	tx := transferTx(f(0), addrB, f(1))
	tx.InvokeV3.Calldata = []felt.Felt{panicAddr, Selector("anything"), f(1), f(0xdead)}

	res, err := vm.Execute(context.Background(), env, st, []txn.Transaction{tx})
	require.NoError(t, err)
	require.Equal(t, receipt.StatusReverted, res[0].Receipt.Status)
	require.Contains(t, res[0].Receipt.RevertReason, "0xdead")
	require.False(t, res[0].Receipt.ActualFee.IsZero())

	// Nonce advanced, execution writes rolled back.
	nonce, err := st.GetNonceAt(accountA)
	require.NoError(t, err)
	require.True(t, nonce.Equal(f(1)))
	v, err := st.StorageRead(panicAddr, f(0xdead))
	require.NoError(t, err)
	require.True(t, v.IsZero())
}

func TestWrongNonceIsValidationError(t *testing.T) {
	vm := NewRefVM()
	st := NewStagedState(fundedBase())
	env := testEnv()
	env.FeeDisabled = true

	tx := transferTx(f(5), addrB, f(1))
	tx.InvokeV3.Calldata = []felt.Felt{FeeTokenAddress, selTransfer, f(2), addrB, f(1)}

	res, err := vm.Execute(context.Background(), env, st, []txn.Transaction{tx})
	require.NoError(t, err)
	require.Len(t, res, 1)
	var verr *ValidationError
	require.ErrorAs(t, res[0].Rejected, &verr)

	// Nothing stuck: nonce unchanged.
	nonce, err := st.GetNonceAt(accountA)
	require.NoError(t, err)
	require.True(t, nonce.IsZero())
}

func declareTx(nonce felt.Felt, classHash, compiled felt.Felt) txn.Transaction {
	return txn.Transaction{
		Kind: txn.KindDeclareV3,
		DeclareV3: &txn.DeclareV3{
			Common: txn.Common{
				ChainID:       chainID,
				SenderAddress: accountA,
				Nonce:         nonce,
				Signature:     []felt.Felt{f(1)},
			},
			ClassHash:         classHash,
			CompiledClassHash: compiled,
		},
	}
}

func sierraArtifact() classes.Artifact {
	return classes.Artifact{Kind: classes.KindSierra, Sierra: &classes.SierraClass{
		SierraProgram: []byte("sierra"), CompiledCASM: []byte("casm"), CompiledClassHash: f(0xca5e),
	}}
}

func TestDeclareThenRedeclareFails(t *testing.T) {
	vm := NewRefVM()
	st := NewStagedState(fundedBase())
	env := testEnv()
	env.FeeDisabled = true

	classHash := f(0xc1a55)
	vm.ProvideArtifact(classHash, sierraArtifact())

	res, err := vm.Execute(context.Background(), env, st, []txn.Transaction{declareTx(f(0), classHash, f(0xca5e))})
	require.NoError(t, err)
	require.Equal(t, receipt.StatusSucceeded, res[0].Receipt.Status)
	require.Len(t, res[0].StateDiff.DeclaredSierra, 1)
	require.Contains(t, res[0].StateDiff.ClassArtifacts, classHash)

	res, err = vm.Execute(context.Background(), env, st, []txn.Transaction{declareTx(f(1), classHash, f(0xca5e))})
	require.NoError(t, err)
	require.ErrorIs(t, res[0].Rejected, ErrClassAlreadyDeclared)
}

func TestDeployAccount(t *testing.T) {
	vm := NewRefVM()
	base := fundedBase()
	st := NewStagedState(base)
	env := testEnv()
	env.FeeDisabled = true

	salt := f(0x5a17)
	deploy := txn.Transaction{
		Kind: txn.KindDeployAccountV3,
		DeployAccountV3: &txn.DeployAccountV3{
			Common:              txn.Common{ChainID: chainID, Nonce: f(0), Signature: []felt.Felt{f(9)}},
			ClassHash:           AccountClassHash,
			ContractAddressSalt: salt,
		},
	}
	addr := deploy.Sender()
	require.False(t, addr.IsZero())

	res, err := vm.Execute(context.Background(), env, st, []txn.Transaction{deploy})
	require.NoError(t, err)
	require.Equal(t, receipt.StatusSucceeded, res[0].Receipt.Status)

	ch, err := st.GetClassHashAt(addr)
	require.NoError(t, err)
	require.True(t, ch.Equal(AccountClassHash))
	nonce, err := st.GetNonceAt(addr)
	require.NoError(t, err)
	require.True(t, nonce.Equal(f(1)))
	require.Contains(t, res[0].StateDiff.DeployedContracts, addr)
}

func TestEstimateLeavesStateUntouched(t *testing.T) {
	vm := NewRefVM()
	st := NewStagedState(fundedBase())
	env := testEnv()
	env.L2GasPrice.InFri = f(1)

	tx := transferTx(f(0), addrB, f(1))
	tx.InvokeV3.Calldata = []felt.Felt{FeeTokenAddress, selTransfer, f(2), addrB, f(1)}

	est, err := vm.Estimate(context.Background(), env, st, tx)
	require.NoError(t, err)
	require.False(t, est.OverallFee.IsZero())

	nonce, err := st.GetNonceAt(accountA)
	require.NoError(t, err)
	require.True(t, nonce.IsZero())
	balB, err := st.StorageRead(FeeTokenAddress, BalanceSlot(addrB))
	require.NoError(t, err)
	require.True(t, balB.IsZero())
}

func TestSimulateSkipsValidation(t *testing.T) {
	vm := NewRefVM()
	st := NewStagedState(fundedBase())
	env := testEnv()
	env.FeeDisabled = true

	// Wrong nonce on purpose; SkipValidate must let it through.
	tx := transferTx(f(42), addrB, f(1))
	tx.InvokeV3.Calldata = []felt.Felt{FeeTokenAddress, selTransfer, f(2), addrB, f(1)}

	sim, err := vm.Simulate(context.Background(), env, st, tx, SimulationFlags{SkipValidate: true, SkipFeeCharge: true})
	require.NoError(t, err)
	require.Len(t, sim.StateDiff.StorageDiffs, 2)
}
