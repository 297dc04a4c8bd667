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
	codecv1 "github.com/katana-sequencer/katana/internal/codec/v1"
	"github.com/katana-sequencer/katana/internal/block"
	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/kv"
	"github.com/katana-sequencer/katana/internal/receipt"
	"github.com/katana-sequencer/katana/internal/state"
	"github.com/katana-sequencer/katana/internal/txn"
)

var headKey = []byte("head")

// Provider is a read-only facade bound to a single kv.RoTx: every
// Reader method below reads through that one transaction, so two calls
// on the same Provider always observe the same snapshot. It never opens
// its own transaction.
type Provider struct {
	tx      kv.RoTx
	pending PendingSource // nil for snapshots that don't serve `pending`
}

// NewProvider builds a snapshot-bound reader over tx. pending may be nil.
func NewProvider(tx kv.RoTx, pending PendingSource) *Provider {
	return &Provider{tx: tx, pending: pending}
}

var _ Reader = (*Provider)(nil)

func (p *Provider) HeadNumber() (uint64, bool, error) {
	v, found, err := p.tx.Get(kv.DatabaseInfo, headKey)
	if err != nil {
		return 0, false, dbErr(err)
	}
	if !found {
		return 0, false, nil
	}
	return u64Val(v), true, nil
}

// ResolveNumber maps any BlockID to a concrete committed block number.
// Pending has no committed number and returns ErrBlockNotFound; callers
// that need to handle pending specially should check id.Kind first.
func (p *Provider) ResolveNumber(id BlockID) (uint64, error) {
	switch id.Kind {
	case BlockIDNumber:
		return id.Number, nil
	case BlockIDLatest:
		n, found, err := p.HeadNumber()
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, ErrBlockNotFound
		}
		return n, nil
	case BlockIDHash:
		v, found, err := p.tx.Get(kv.BlockNumbers, feltKey(id.Hash))
		if err != nil {
			return 0, dbErr(err)
		}
		if !found {
			return 0, ErrBlockNotFound
		}
		return u64Val(v), nil
	case BlockIDPending:
		return 0, ErrBlockNotFound
	default:
		return 0, ErrBlockNotFound
	}
}

func (p *Provider) HeaderByID(id BlockID) (block.Header, error) {
	if id.Kind == BlockIDPending {
		if p.pending != nil {
			if pv, ok := p.pending.PendingBlock(); ok {
				return pv.Header, nil
			}
		}
		return block.Header{}, ErrBlockNotFound
	}
	n, err := p.ResolveNumber(id)
	if err != nil {
		return block.Header{}, err
	}
	v, found, err := p.tx.Get(kv.Headers, u64Key(n))
	if err != nil {
		return block.Header{}, dbErr(err)
	}
	if !found {
		return block.Header{}, ErrBlockNotFound
	}
	h, err := codecv1.DecodeHeader(v)
	if err != nil {
		return block.Header{}, dbErr(err)
	}
	return h, nil
}

func (p *Provider) BlockByID(id BlockID) (block.Block, error) {
	if id.Kind == BlockIDPending {
		if p.pending != nil {
			if pv, ok := p.pending.PendingBlock(); ok {
				hashes := make([]felt.Felt, len(pv.Transactions))
				for i, t := range pv.Transactions {
					hashes[i] = t.Hash()
				}
				return block.Block{Header: pv.Header, TxHashes: hashes}, nil
			}
		}
		return block.Block{}, ErrBlockNotFound
	}
	h, err := p.HeaderByID(id)
	if err != nil {
		return block.Block{}, err
	}
	txs, err := p.TransactionsByBlockID(id)
	if err != nil {
		return block.Block{}, err
	}
	hashes := make([]felt.Felt, len(txs))
	for i, t := range txs {
		hashes[i] = t.Hash()
	}
	return block.Block{Header: h, TxHashes: hashes}, nil
}

// bodyIndices returns (first_tx_index, tx_count) for a committed block.
func (p *Provider) bodyIndices(n uint64) (uint64, uint64, error) {
	v, found, err := p.tx.Get(kv.BlockBodyIndices, u64Key(n))
	if err != nil {
		return 0, 0, dbErr(err)
	}
	if !found {
		return 0, 0, ErrBlockNotFound
	}
	if len(v) != 16 {
		return 0, 0, dbErr(errShortValue("BlockBodyIndices", 16, len(v)))
	}
	return u64Val(v[:8]), u64Val(v[8:]), nil
}

func (p *Provider) TransactionsByBlockID(id BlockID) ([]txn.Transaction, error) {
	if id.Kind == BlockIDPending {
		if p.pending != nil {
			if pv, ok := p.pending.PendingBlock(); ok {
				return pv.Transactions, nil
			}
		}
		return nil, ErrBlockNotFound
	}
	n, err := p.ResolveNumber(id)
	if err != nil {
		return nil, err
	}
	first, count, err := p.bodyIndices(n)
	if err != nil {
		return nil, err
	}
	out := make([]txn.Transaction, 0, count)
	for i := uint64(0); i < count; i++ {
		v, found, err := p.tx.Get(kv.Transactions, u64Key(first+i))
		if err != nil {
			return nil, dbErr(err)
		}
		if !found {
			return nil, ErrTxNotFound
		}
		t, err := codecv1.DecodeTransaction(v)
		if err != nil {
			return nil, dbErr(err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (p *Provider) txIndex(hash felt.Felt) (uint64, bool, error) {
	v, found, err := p.tx.Get(kv.TxNumbers, feltKey(hash))
	if err != nil {
		return 0, false, dbErr(err)
	}
	if !found {
		return 0, false, nil
	}
	return u64Val(v), true, nil
}

func (p *Provider) TransactionByHash(hash felt.Felt) (txn.Transaction, error) {
	idx, found, err := p.txIndex(hash)
	if err != nil {
		return txn.Transaction{}, err
	}
	if !found {
		if p.pending != nil {
			if pv, ok := p.pending.PendingBlock(); ok {
				for _, t := range pv.Transactions {
					if t.Hash().Equal(hash) {
						return t, nil
					}
				}
			}
		}
		return txn.Transaction{}, ErrTxNotFound
	}
	v, found, err := p.tx.Get(kv.Transactions, u64Key(idx))
	if err != nil {
		return txn.Transaction{}, dbErr(err)
	}
	if !found {
		return txn.Transaction{}, ErrTxNotFound
	}
	t, err := codecv1.DecodeTransaction(v)
	if err != nil {
		return txn.Transaction{}, dbErr(err)
	}
	return t, nil
}

// BlockNumberByTxHash resolves the block that contains a committed
// transaction, by walking BlockBodyIndices for the range covering the
// transaction's global index.
func (p *Provider) BlockNumberByTxHash(hash felt.Felt) (uint64, error) {
	idx, found, err := p.txIndex(hash)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrTxNotFound
	}
	cur, err := p.tx.Cursor(kv.BlockBodyIndices)
	if err != nil {
		return 0, dbErr(err)
	}
	defer cur.Close()
	for k, v, err := cur.First(); k != nil; k, v, err = cur.Next() {
		if err != nil {
			return 0, dbErr(err)
		}
		if len(v) != 16 {
			return 0, dbErr(errShortValue("BlockBodyIndices", 16, len(v)))
		}
		first, count := u64Val(v[:8]), u64Val(v[8:])
		if idx >= first && idx < first+count {
			return u64Val(k), nil
		}
	}
	return 0, ErrTxNotFound
}

func (p *Provider) ReceiptByHash(hash felt.Felt) (receipt.Receipt, error) {
	idx, found, err := p.txIndex(hash)
	if err != nil {
		return receipt.Receipt{}, err
	}
	if !found {
		if p.pending != nil {
			if pv, ok := p.pending.PendingBlock(); ok {
				for i, t := range pv.Transactions {
					if t.Hash().Equal(hash) && i < len(pv.Receipts) {
						return pv.Receipts[i], nil
					}
				}
			}
		}
		return receipt.Receipt{}, ErrTxNotFound
	}
	v, found, err := p.tx.Get(kv.Receipts, u64Key(idx))
	if err != nil {
		return receipt.Receipt{}, dbErr(err)
	}
	if !found {
		return receipt.Receipt{}, ErrTxNotFound
	}
	r, err := codecv1.DecodeReceipt(v)
	if err != nil {
		return receipt.Receipt{}, dbErr(err)
	}
	return r, nil
}

func (p *Provider) ReceiptsByBlockID(id BlockID) ([]receipt.Receipt, error) {
	if id.Kind == BlockIDPending {
		if p.pending != nil {
			if pv, ok := p.pending.PendingBlock(); ok {
				return pv.Receipts, nil
			}
		}
		return nil, ErrBlockNotFound
	}
	n, err := p.ResolveNumber(id)
	if err != nil {
		return nil, err
	}
	first, count, err := p.bodyIndices(n)
	if err != nil {
		return nil, err
	}
	out := make([]receipt.Receipt, 0, count)
	for i := uint64(0); i < count; i++ {
		v, found, err := p.tx.Get(kv.Receipts, u64Key(first+i))
		if err != nil {
			return nil, dbErr(err)
		}
		if !found {
			return nil, ErrTxNotFound
		}
		r, err := codecv1.DecodeReceipt(v)
		if err != nil {
			return nil, dbErr(err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *Provider) TraceByHash(hash felt.Felt) (receipt.Trace, error) {
	idx, found, err := p.txIndex(hash)
	if err != nil {
		return receipt.Trace{}, err
	}
	if !found {
		if p.pending != nil {
			if pv, ok := p.pending.PendingBlock(); ok {
				for i, t := range pv.Transactions {
					if t.Hash().Equal(hash) && i < len(pv.Traces) {
						return pv.Traces[i], nil
					}
				}
			}
		}
		return receipt.Trace{}, ErrTxNotFound
	}
	v, found, err := p.tx.Get(kv.TxTraces, u64Key(idx))
	if err != nil {
		return receipt.Trace{}, dbErr(err)
	}
	if !found {
		return receipt.Trace{}, ErrTxNotFound
	}
	tr, err := codecv1.DecodeTrace(v)
	if err != nil {
		return receipt.Trace{}, dbErr(err)
	}
	return tr, nil
}

func (p *Provider) ClassByHash(hash felt.Felt) (classes.Artifact, error) {
	v, found, err := p.tx.Get(kv.Classes, feltKey(hash))
	if err != nil {
		return classes.Artifact{}, dbErr(err)
	}
	if !found {
		return classes.Artifact{}, &ClassHashError{ClassHash: hash, Inner: ErrClassNotFound}
	}
	a, err := codecv1.DecodeClassArtifact(v)
	if err != nil {
		return classes.Artifact{}, dbErr(err)
	}
	return a, nil
}

func (p *Provider) CompiledClassHash(sierraHash felt.Felt) (felt.Felt, error) {
	v, found, err := p.tx.Get(kv.CompiledClassHashes, feltKey(sierraHash))
	if err != nil {
		return felt.Felt{}, dbErr(err)
	}
	if !found {
		return felt.Felt{}, &ClassHashError{ClassHash: sierraHash, Inner: ErrClassNotFound}
	}
	return decodeFelt(v)
}

func (p *Provider) StateUpdatesByID(id BlockID) (*state.StateUpdates, error) {
	n, err := p.ResolveNumber(id)
	if err != nil {
		return nil, err
	}
	v, found, err := p.tx.Get(kv.StateUpdates, u64Key(n))
	if err != nil {
		return nil, dbErr(err)
	}
	if !found {
		return nil, ErrBlockNotFound
	}
	u, err := codecv1.DecodeStateUpdates(v)
	if err != nil {
		return nil, dbErr(err)
	}
	return u, nil
}

func (p *Provider) StageCheckpoint(stage string) (uint64, bool, error) {
	v, found, err := p.tx.Get(kv.StageCheckpoints, []byte(stage))
	if err != nil {
		return 0, false, dbErr(err)
	}
	if !found {
		return 0, false, nil
	}
	return u64Val(v), true, nil
}
