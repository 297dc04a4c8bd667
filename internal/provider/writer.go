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
	"fmt"

	codecv1 "github.com/katana-sequencer/katana/internal/codec/v1"
	"github.com/katana-sequencer/katana/internal/block"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/kv"
	"github.com/katana-sequencer/katana/internal/receipt"
	"github.com/katana-sequencer/katana/internal/state"
	"github.com/katana-sequencer/katana/internal/txn"
)

var txCountKey = []byte("txcount")

// TrieUpdater replays a block's StateUpdates against the historical
// trie (internal/trie) and returns the resulting state root. Writer
// calls it before persisting the header so the header's StateRoot can
// be checked against what the trie actually computed. A Writer built
// with a nil TrieUpdater skips the check; only tests that don't
// exercise the trie layer do that.
type TrieUpdater interface {
	ApplyBlock(tx kv.RwTx, blockNumber uint64, updates *state.StateUpdates) (stateRoot felt.Felt, err error)
}

// Writer is the sole mutation path at block granularity. Exactly one
// Writer may be open at a time per Store, mirroring the producer's
// exclusive BlockWriter ownership.
type Writer struct {
	*Provider
	tx   kv.RwTx
	trie TrieUpdater
}

// NewWriter builds a Writer bound to tx. trie may be nil.
func NewWriter(tx kv.RwTx, pending PendingSource, trie TrieUpdater) *Writer {
	return &Writer{Provider: NewProvider(tx, pending), tx: tx, trie: trie}
}

// InsertBlockWithStatesAndReceipts is the only way to extend the chain.
// It validates the declared-class-artifact invariant and the
// receipts/traces/tx-count equality, then writes every affected table,
// updates the trie, and bumps head, all within the caller's single
// kv.RwTx, so a failure at any point leaves nothing durable once the
// caller rolls back.
func (w *Writer) InsertBlockWithStatesAndReceipts(
	header block.Header,
	txs []txn.Transaction,
	updates *state.StateUpdates,
	receipts []receipt.Receipt,
	traces []receipt.Trace,
) error {
	if len(txs) != len(receipts) || len(txs) != len(traces) {
		return fmt.Errorf("provider: tx_count=%d receipts=%d traces=%d must be equal", len(txs), len(receipts), len(traces))
	}
	if err := updates.Validate(); err != nil {
		return err
	}

	if w.trie != nil {
		root, err := w.trie.ApplyBlock(w.tx, header.Number, updates)
		if err != nil {
			return err
		}
		if !root.Equal(header.StateRoot) {
			return ErrStateRootMismatch
		}
	}

	first, err := w.nextTxIndex()
	if err != nil {
		return err
	}

	for i, t := range txs {
		idx := first + uint64(i)
		hash := t.Hash()

		enc, eerr := codecv1.EncodeTransaction(t)
		if eerr != nil {
			return eerr
		}
		if err := w.tx.Put(kv.Transactions, u64Key(idx), enc); err != nil {
			return dbErr(err)
		}
		if err := w.tx.Put(kv.TxHashes, u64Key(idx), feltKey(hash)); err != nil {
			return dbErr(err)
		}
		if err := w.tx.Put(kv.TxNumbers, feltKey(hash), u64Key(idx)); err != nil {
			return dbErr(err)
		}
		if err := w.tx.Put(kv.Receipts, u64Key(idx), codecv1.EncodeReceipt(receipts[i])); err != nil {
			return dbErr(err)
		}
		if err := w.tx.Put(kv.TxTraces, u64Key(idx), codecv1.EncodeTrace(traces[i])); err != nil {
			return dbErr(err)
		}
	}

	if err := w.tx.Put(kv.BlockBodyIndices, u64Key(header.Number), bodyIndicesValue(first, uint64(len(txs)))); err != nil {
		return dbErr(err)
	}

	headerBytes := codecv1.EncodeHeader(header)
	if err := w.tx.Put(kv.Headers, u64Key(header.Number), headerBytes); err != nil {
		return dbErr(err)
	}
	blockHash := header.Hash()
	if err := w.tx.Put(kv.BlockHashes, u64Key(header.Number), feltKey(blockHash)); err != nil {
		return dbErr(err)
	}
	if err := w.tx.Put(kv.BlockNumbers, feltKey(blockHash), u64Key(header.Number)); err != nil {
		return dbErr(err)
	}

	encUpdates, err := codecv1.EncodeStateUpdates(updates)
	if err != nil {
		return err
	}
	if err := w.tx.Put(kv.StateUpdates, u64Key(header.Number), encUpdates); err != nil {
		return dbErr(err)
	}

	if err := w.applyStateUpdates(header.Number, updates); err != nil {
		return err
	}

	if err := w.tx.Put(kv.DatabaseInfo, headKey, u64Key(header.Number)); err != nil {
		return dbErr(err)
	}
	if err := w.tx.Put(kv.DatabaseInfo, txCountKey, u64Key(first+uint64(len(txs)))); err != nil {
		return dbErr(err)
	}
	return nil
}

func (w *Writer) nextTxIndex() (uint64, error) {
	v, found, err := w.tx.Get(kv.DatabaseInfo, txCountKey)
	if err != nil {
		return 0, dbErr(err)
	}
	if !found {
		return 0, nil
	}
	return u64Val(v), nil
}

func bodyIndicesValue(first, count uint64) []byte {
	out := make([]byte, 16)
	copy(out[:8], u64Key(first))
	copy(out[8:], u64Key(count))
	return out
}
