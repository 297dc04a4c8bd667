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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sequencer/katana/internal/block"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/kv"
	"github.com/katana-sequencer/katana/internal/receipt"
	"github.com/katana-sequencer/katana/internal/state"
	"github.com/katana-sequencer/katana/internal/txn"
)

func f(x uint64) felt.Felt { return felt.FromUint64(x) }

func newStore() *Store {
	return NewStore(kv.NewMem(kv.ChaindataTablesCfg), nil)
}

func sampleTx(nonce uint64) txn.Transaction {
	return txn.Transaction{
		Kind: txn.KindInvokeV1,
		InvokeV1: &txn.InvokeV1{
			Common: txn.Common{
				ChainID:       f(0x4b),
				SenderAddress: f(0x1),
				Nonce:         f(nonce),
				Signature:     []felt.Felt{f(9)},
			},
			Calldata: []felt.Felt{f(1), f(2)},
			MaxFee:   f(100),
		},
	}
}

// insertBlock writes one block with the given txs and per-tx receipts.
func insertBlock(t *testing.T, s *Store, number uint64, parent felt.Felt, txs []txn.Transaction, updates *state.StateUpdates) block.Header {
	t.Helper()
	receipts := make([]receipt.Receipt, len(txs))
	traces := make([]receipt.Trace, len(txs))
	for i, tx := range txs {
		receipts[i] = receipt.Receipt{TxHash: tx.Hash(), Status: receipt.StatusSucceeded, ActualFee: f(10)}
	}
	header := block.Header{
		Number:          number,
		ParentHash:      parent,
		Timestamp:       1000 + number,
		StarknetVersion: "0.13.4",
	}
	w, tx, err := s.Writer()
	require.NoError(t, err)
	require.NoError(t, w.InsertBlockWithStatesAndReceipts(header, txs, updates, receipts, traces))
	require.NoError(t, tx.Commit())
	return header
}

func TestInsertAndReadBack(t *testing.T) {
	s := newStore()
	txs := []txn.Transaction{sampleTx(0), sampleTx(1)}
	h := insertBlock(t, s, 0, felt.Zero, txs, state.New())

	require.NoError(t, s.View(func(p *Provider) error {
		head, found, err := p.HeadNumber()
		require.NoError(t, err)
		require.True(t, found)
		require.Zero(t, head)

		got, err := p.HeaderByID(Latest())
		require.NoError(t, err)
		require.Equal(t, h, got)

		byHash, err := p.HeaderByID(ByHash(h.Hash()))
		require.NoError(t, err)
		require.Equal(t, h, byHash)

		b, err := p.BlockByID(Number(0))
		require.NoError(t, err)
		require.Len(t, b.TxHashes, 2)

		// Receipt invariant: tx_by_hash exists and block_by_tx_hash
		// points at the enclosing block.
		for _, tx := range txs {
			gotTx, err := p.TransactionByHash(tx.Hash())
			require.NoError(t, err)
			require.Equal(t, tx.Hash(), gotTx.Hash())

			n, err := p.BlockNumberByTxHash(tx.Hash())
			require.NoError(t, err)
			require.Zero(t, n)

			r, err := p.ReceiptByHash(tx.Hash())
			require.NoError(t, err)
			require.Equal(t, tx.Hash(), r.TxHash)
		}
		return nil
	}))
}

func TestTxCountReceiptMismatchRejected(t *testing.T) {
	s := newStore()
	w, tx, err := s.Writer()
	require.NoError(t, err)
	defer tx.Rollback()

	header := block.Header{Number: 0, StarknetVersion: "0.13.4"}
	err = w.InsertBlockWithStatesAndReceipts(header, []txn.Transaction{sampleTx(0)}, state.New(), nil, nil)
	require.Error(t, err)
}

func TestDeclaredClassWithoutArtifactAborts(t *testing.T) {
	s := newStore()
	w, tx, err := s.Writer()
	require.NoError(t, err)
	defer tx.Rollback()

	u := state.New()
	u.DeclaredLegacy = []felt.Felt{f(0xc1a55)} // no artifact supplied

	header := block.Header{Number: 0, StarknetVersion: "0.13.4"}
	err = w.InsertBlockWithStatesAndReceipts(header, nil, u, nil, nil)
	var missing *state.MissingArtifactError
	require.ErrorAs(t, err, &missing)
}

func TestStateReadsCurrentAndHistorical(t *testing.T) {
	s := newStore()
	addr, key := f(0xa), f(0x1)

	u0 := state.New()
	u0.StorageDiffs[state.StorageKey{Address: addr, Key: key}] = f(100)
	u0.Nonces[addr] = f(1)
	h0 := insertBlock(t, s, 0, felt.Zero, nil, u0)

	u1 := state.New()
	u1.StorageDiffs[state.StorageKey{Address: addr, Key: key}] = f(200)
	u1.Nonces[addr] = f(2)
	insertBlock(t, s, 1, h0.Hash(), nil, u1)

	require.NoError(t, s.View(func(p *Provider) error {
		v, err := p.StorageAt(Latest(), addr, key)
		require.NoError(t, err)
		require.True(t, v.Equal(f(200)))

		v, err = p.StorageAt(Number(0), addr, key)
		require.NoError(t, err)
		require.True(t, v.Equal(f(100)))

		nonce, err := p.NonceAt(Number(0), addr)
		require.NoError(t, err)
		require.True(t, nonce.Equal(f(1)))

		// Untouched key is zero at any height.
		v, err = p.StorageAt(Latest(), addr, f(0x99))
		require.NoError(t, err)
		require.True(t, v.IsZero())

		// Past head: not found.
		_, err = p.StorageAt(Number(2), addr, key)
		require.ErrorIs(t, err, ErrBlockNotFound)
		return nil
	}))
}

func TestStateUpdatesRoundTripThroughTables(t *testing.T) {
	s := newStore()
	u := state.New()
	u.StorageDiffs[state.StorageKey{Address: f(0xa), Key: f(1)}] = f(5)
	u.DeployedContracts[f(0xa)] = f(0xacc)
	insertBlock(t, s, 0, felt.Zero, nil, u)

	require.NoError(t, s.View(func(p *Provider) error {
		got, err := p.StateUpdatesByID(Number(0))
		require.NoError(t, err)
		require.Len(t, got.StorageDiffs, 1)
		require.Len(t, got.DeployedContracts, 1)

		ch, err := p.ClassHashAt(Latest(), f(0xa))
		require.NoError(t, err)
		require.True(t, ch.Equal(f(0xacc)))
		return nil
	}))
}

func TestSnapshotConsistencyAcrossReads(t *testing.T) {
	s := newStore()
	u := state.New()
	u.Nonces[f(0xa)] = f(1)
	h0 := insertBlock(t, s, 0, felt.Zero, nil, u)

	// Open a snapshot, then commit another block behind its back.
	rd, release, err := s.Reader()
	require.NoError(t, err)
	defer release()

	u2 := state.New()
	u2.Nonces[f(0xa)] = f(2)
	insertBlock(t, s, 1, h0.Hash(), nil, u2)

	// The held snapshot still sees head 0 and nonce 1 on every call.
	head, _, err := rd.HeadNumber()
	require.NoError(t, err)
	require.Zero(t, head)
	nonce, err := rd.NonceAt(Latest(), f(0xa))
	require.NoError(t, err)
	require.True(t, nonce.Equal(f(1)))
}

func TestStageCheckpointRead(t *testing.T) {
	s := newStore()
	tx, err := s.Env().BeginRw()
	require.NoError(t, err)
	require.NoError(t, tx.Put(kv.StageCheckpoints, []byte("Headers"), u64Key(7)))
	require.NoError(t, tx.Commit())

	require.NoError(t, s.View(func(p *Provider) error {
		cp, found, err := p.StageCheckpoint("Headers")
		require.NoError(t, err)
		require.True(t, found)
		require.EqualValues(t, 7, cp)

		_, found, err = p.StageCheckpoint("Bodies")
		require.NoError(t, err)
		require.False(t, found)
		return nil
	}))
}
