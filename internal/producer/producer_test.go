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

package producer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/katana-sequencer/katana/internal/block"
	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/executor"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/genesis"
	"github.com/katana-sequencer/katana/internal/kv"
	"github.com/katana-sequencer/katana/internal/pool"
	"github.com/katana-sequencer/katana/internal/provider"
	"github.com/katana-sequencer/katana/internal/receipt"
	"github.com/katana-sequencer/katana/internal/trie"
	"github.com/katana-sequencer/katana/internal/txn"
)

func f(x uint64) felt.Felt { return felt.FromUint64(x) }

var (
	chainID   = felt.FromBytesBE([]byte("KATANA"))
	sequencer = f(0x5e9)
)

type node struct {
	store *provider.Store
	pool  *pool.Pool
	vm    *executor.RefVM
	pr    *Producer
	accts []genesis.Account
}

func newNode(t *testing.T) *node {
	t.Helper()
	env := kv.NewMem(kv.ChaindataTablesCfg)
	updater := trie.NewUpdater()
	store := provider.NewStore(env, updater)

	_, accts, err := genesis.Initialize(store, updater, genesis.Config{
		ChainID:          chainID,
		Seed:             "seed0",
		Accounts:         1,
		SequencerAddress: sequencer,
		StarknetVersion:  "0.13.4",
		Timestamp:        100,
	})
	require.NoError(t, err)
	require.True(t, accts[0].Address.Equal(f(0x1)))

	views := func() (pool.StateView, func(), error) {
		rd, release, err := store.Reader()
		if err != nil {
			return nil, nil, err
		}
		return executor.ProviderState{P: rd}, release, nil
	}
	p := pool.New(pool.Config{ChainID: chainID}, views)
	vm := executor.NewRefVM()

	now := time.Unix(1_700_000_000, 0)
	pr := New(Config{
		Mode:             ModeManual,
		ChainID:          chainID,
		SequencerAddress: sequencer,
		StarknetVersion:  "0.13.4",
		L2GasPrice:       block.GasPrice{InWei: f(1), InFri: f(1)},
		Now:              func() time.Time { return now },
	}, store, p, vm, updater, zap.NewNop())

	return &node{store: store, pool: p, vm: vm, pr: pr, accts: accts}
}

func (n *node) read(t *testing.T, fn func(*provider.Provider)) {
	t.Helper()
	rd, release, err := n.store.Reader()
	require.NoError(t, err)
	defer release()
	fn(rd)
}

func transferTx(nonce uint64, to, amount felt.Felt) txn.Transaction {
	return txn.Transaction{
		Kind: txn.KindInvokeV3,
		InvokeV3: &txn.InvokeV3{
			Common: txn.Common{
				ChainID:       chainID,
				SenderAddress: f(0x1),
				Nonce:         f(nonce),
				Signature:     []felt.Felt{f(1), f(2)},
			},
			V3Extras: txn.V3Extras{
				ResourceBounds: txn.V3ResourceBounds{
					L2Gas: txn.ResourceBounds{MaxAmount: 1 << 20, MaxPricePerUnit: f(1)},
				},
			},
			Calldata: []felt.Felt{executor.FeeTokenAddress, executor.Selector("transfer"), f(2), to, amount},
		},
	}
}

// Scenario 1: empty start.
func TestEmptyStart(t *testing.T) {
	n := newNode(t)
	n.read(t, func(p *provider.Provider) {
		head, found, err := p.HeadNumber()
		require.NoError(t, err)
		require.True(t, found)
		require.Zero(t, head)

		nonce, err := p.NonceAt(provider.Latest(), f(0x1))
		require.NoError(t, err)
		require.True(t, nonce.IsZero())

		bal, err := p.StorageAt(provider.Latest(), executor.FeeTokenAddress, executor.BalanceSlot(f(0x1)))
		require.NoError(t, err)
		require.Equal(t, "0xf4240", bal.Hex())
	})
}

// Scenario 2: single transfer.
func TestSingleTransfer(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	hash, err := n.pool.Add(ctx, transferTx(0, f(0x2), f(1)), nil)
	require.NoError(t, err)

	h, err := n.pr.ProduceBlock(ctx)
	require.NoError(t, err)
	require.NotNil(t, h)
	require.EqualValues(t, 1, h.Number)

	n.read(t, func(p *provider.Provider) {
		head, _, err := p.HeadNumber()
		require.NoError(t, err)
		require.EqualValues(t, 1, head)

		r, err := p.ReceiptByHash(hash)
		require.NoError(t, err)
		require.Equal(t, receipt.StatusSucceeded, r.Status)

		nonce, err := p.NonceAt(provider.Latest(), f(0x1))
		require.NoError(t, err)
		require.Equal(t, "0x1", nonce.Hex())

		bal, err := p.StorageAt(provider.Latest(), executor.FeeTokenAddress, executor.BalanceSlot(f(0x2)))
		require.NoError(t, err)
		require.Equal(t, "0x1", bal.Hex())
	})
}

// Scenario 3: nonce gap.
func TestNonceGapScheduling(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	// First get A to on-chain nonce 1.
	_, err := n.pool.Add(ctx, transferTx(0, f(0x2), f(1)), nil)
	require.NoError(t, err)
	_, err = n.pr.ProduceBlock(ctx)
	require.NoError(t, err)

	// Submit nonces 1 and 3 (skipping 2).
	_, err = n.pool.Add(ctx, transferTx(1, f(0x2), f(1)), nil)
	require.NoError(t, err)
	_, err = n.pool.Add(ctx, transferTx(3, f(0x2), f(1)), nil)
	require.NoError(t, err)
	require.Len(t, n.pool.PendingFor(f(0x1)), 1)

	_, err = n.pr.ProduceBlock(ctx)
	require.NoError(t, err)
	n.read(t, func(p *provider.Provider) {
		nonce, err := p.NonceAt(provider.Latest(), f(0x1))
		require.NoError(t, err)
		require.Equal(t, "0x2", nonce.Hex())
	})

	// Close the gap; 2 then 3 schedule.
	_, err = n.pool.Add(ctx, transferTx(2, f(0x2), f(1)), nil)
	require.NoError(t, err)
	_, err = n.pr.ProduceBlock(ctx)
	require.NoError(t, err)
	n.read(t, func(p *provider.Provider) {
		nonce, err := p.NonceAt(provider.Latest(), f(0x1))
		require.NoError(t, err)
		require.Equal(t, "0x4", nonce.Hex())
	})
}

// Scenario 4: reverting transaction.
func TestRevertingTransaction(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	// Call an address with no contract behind it: reverts.
	tx := transferTx(0, f(0x2), f(1))
	tx.InvokeV3.Calldata = []felt.Felt{f(0xdead), executor.Selector("anything"), f(0)}
	hash, err := n.pool.Add(ctx, tx, nil)
	require.NoError(t, err)

	_, err = n.pr.ProduceBlock(ctx)
	require.NoError(t, err)

	n.read(t, func(p *provider.Provider) {
		r, err := p.ReceiptByHash(hash)
		require.NoError(t, err)
		require.Equal(t, receipt.StatusReverted, r.Status)
		require.NotEmpty(t, r.RevertReason)
		require.False(t, r.ActualFee.IsZero())

		nonce, err := p.NonceAt(provider.Latest(), f(0x1))
		require.NoError(t, err)
		require.Equal(t, "0x1", nonce.Hex())
	})
}

// Scenario 6: declare then deploy.
func TestDeclareThenDeploy(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	classHash := f(0xc1a55)
	compiled := f(0xca5e)
	artifact := classes.Artifact{Kind: classes.KindSierra, Sierra: &classes.SierraClass{
		SierraProgram: []byte("sierra"), CompiledCASM: []byte("casm"), CompiledClassHash: compiled,
	}}

	bounds := txn.V3Extras{ResourceBounds: txn.V3ResourceBounds{
		L2Gas: txn.ResourceBounds{MaxAmount: 1 << 20, MaxPricePerUnit: f(1)},
	}}
	declare := txn.Transaction{
		Kind: txn.KindDeclareV3,
		DeclareV3: &txn.DeclareV3{
			Common:            txn.Common{ChainID: chainID, SenderAddress: f(0x1), Nonce: f(0), Signature: []felt.Felt{f(1)}},
			V3Extras:          bounds,
			ClassHash:         classHash,
			CompiledClassHash: compiled,
		},
	}
	_, err := n.pool.Add(ctx, declare, &artifact)
	require.NoError(t, err)
	_, err = n.pr.ProduceBlock(ctx)
	require.NoError(t, err)

	n.read(t, func(p *provider.Provider) {
		a, err := p.ClassByHash(classHash)
		require.NoError(t, err)
		require.Equal(t, classes.KindSierra, a.Kind)

		cch, err := p.CompiledClassHash(classHash)
		require.NoError(t, err)
		require.True(t, cch.Equal(compiled))

		// Unrelated address still has no class.
		ch, err := p.ClassHashAt(provider.Latest(), f(0x4242))
		require.NoError(t, err)
		require.True(t, ch.IsZero())
	})

	// Deploy an account with the declared class. The deploy pays its own
	// fee, so the address is funded first.
	deploy := txn.Transaction{
		Kind: txn.KindDeployAccountV3,
		DeployAccountV3: &txn.DeployAccountV3{
			Common:              txn.Common{ChainID: chainID, Nonce: f(0), Signature: []felt.Felt{f(1)}},
			V3Extras:            bounds,
			ClassHash:           classHash,
			ContractAddressSalt: f(0x5a17),
		},
	}
	addr := deploy.Sender()

	_, err = n.pool.Add(ctx, transferTx(1, addr, f(100_000)), nil)
	require.NoError(t, err)
	_, err = n.pr.ProduceBlock(ctx)
	require.NoError(t, err)

	_, err = n.pool.Add(ctx, deploy, nil)
	require.NoError(t, err)
	_, err = n.pr.ProduceBlock(ctx)
	require.NoError(t, err)

	n.read(t, func(p *provider.Provider) {
		ch, err := p.ClassHashAt(provider.Latest(), addr)
		require.NoError(t, err)
		require.True(t, ch.Equal(classHash))
	})

	// Re-declare fails at admission.
	redeclare := declare
	redeclare.DeclareV3 = &txn.DeclareV3{
		Common:            txn.Common{ChainID: chainID, SenderAddress: f(0x1), Nonce: f(2), Signature: []felt.Felt{f(1)}},
		V3Extras:          bounds,
		ClassHash:         classHash,
		CompiledClassHash: compiled,
	}
	_, err = n.pool.Add(ctx, redeclare, &artifact)
	require.ErrorIs(t, err, pool.ErrClassAlreadyDeclared)
}

func TestManualEmptyPoolIsNoOp(t *testing.T) {
	n := newNode(t)
	h, err := n.pr.ProduceBlock(context.Background())
	require.NoError(t, err)
	require.Nil(t, h)

	n.read(t, func(p *provider.Provider) {
		head, _, err := p.HeadNumber()
		require.NoError(t, err)
		require.Zero(t, head)
	})
}

func TestBlockIdentifierEquivalence(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()
	_, err := n.pool.Add(ctx, transferTx(0, f(0x2), f(1)), nil)
	require.NoError(t, err)
	_, err = n.pr.ProduceBlock(ctx)
	require.NoError(t, err)

	n.read(t, func(p *provider.Provider) {
		latest, err := p.HeaderByID(provider.Latest())
		require.NoError(t, err)
		byNum, err := p.HeaderByID(provider.Number(latest.Number))
		require.NoError(t, err)
		byHash, err := p.HeaderByID(provider.ByHash(latest.Hash()))
		require.NoError(t, err)
		require.Equal(t, latest, byNum)
		require.Equal(t, latest, byHash)
	})
}

func TestHistoricalReads(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	slotB := executor.BalanceSlot(f(0x2))
	for i := uint64(0); i < 3; i++ {
		_, err := n.pool.Add(ctx, transferTx(i, f(0x2), f(10)), nil)
		require.NoError(t, err)
		_, err = n.pr.ProduceBlock(ctx)
		require.NoError(t, err)
	}

	n.read(t, func(p *provider.Provider) {
		// Balance grows by 10 per block; historical reads see each step.
		for i := uint64(1); i <= 3; i++ {
			bal, err := p.StorageAt(provider.Number(i), executor.FeeTokenAddress, slotB)
			require.NoError(t, err)
			require.True(t, bal.Equal(f(10*i)), "block %d", i)
		}
		// Before the first transfer: zero.
		bal, err := p.StorageAt(provider.Number(0), executor.FeeTokenAddress, slotB)
		require.NoError(t, err)
		require.True(t, bal.IsZero())

		// head+1 is not found.
		_, err = p.StorageAt(provider.Number(4), executor.FeeTokenAddress, slotB)
		require.ErrorIs(t, err, provider.ErrBlockNotFound)
	})
}

func TestPendingVisibility(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	_, err := n.pool.Add(ctx, transferTx(0, f(0x2), f(5)), nil)
	require.NoError(t, err)
	require.NoError(t, n.pr.ProducePending(ctx))

	n.read(t, func(p *provider.Provider) {
		// Committed head is still genesis.
		head, _, err := p.HeadNumber()
		require.NoError(t, err)
		require.Zero(t, head)

		// Pending sees the staged transfer.
		bal, err := p.StorageAt(provider.Pending(), executor.FeeTokenAddress, executor.BalanceSlot(f(0x2)))
		require.NoError(t, err)
		require.True(t, bal.Equal(f(5)))

		nonce, err := p.NonceAt(provider.Pending(), f(0x1))
		require.NoError(t, err)
		require.True(t, nonce.Equal(f(1)))
	})

	// Sealing the pending block commits it.
	h, err := n.pr.ProduceBlock(ctx)
	require.NoError(t, err)
	require.NotNil(t, h)
	require.EqualValues(t, 1, h.Number)
}

func TestStateRootChainsAcrossBlocks(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	var roots []felt.Felt
	for i := uint64(0); i < 3; i++ {
		_, err := n.pool.Add(ctx, transferTx(i, f(0x2), f(1)), nil)
		require.NoError(t, err)
		h, err := n.pr.ProduceBlock(ctx)
		require.NoError(t, err)
		roots = append(roots, h.StateRoot)
	}
	// Roots are non-zero and distinct (fee transfers change balances
	// every block).
	for i, r := range roots {
		require.False(t, r.IsZero(), "root %d", i)
		for j := i + 1; j < len(roots); j++ {
			require.False(t, r.Equal(roots[j]))
		}
	}

	n.read(t, func(p *provider.Provider) {
		for i, r := range roots {
			h, err := p.HeaderByID(provider.Number(uint64(i) + 1))
			require.NoError(t, err)
			require.True(t, h.StateRoot.Equal(r))
		}
	})
}

func TestHeadEventPublished(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()
	events := n.pr.Subscribe()

	_, err := n.pool.Add(ctx, transferTx(0, f(0x2), f(1)), nil)
	require.NoError(t, err)
	_, err = n.pr.ProduceBlock(ctx)
	require.NoError(t, err)

	select {
	case ev := <-events:
		require.EqualValues(t, 1, ev.Number)
		require.False(t, ev.Hash.IsZero())
	default:
		t.Fatal("no head event published")
	}
}
