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

package v1

import "github.com/katana-sequencer/katana/internal/block"

func writeGasPrice(w *writer, g block.GasPrice) {
	w.felt(g.InWei)
	w.felt(g.InFri)
}

func readGasPrice(r *reader) block.GasPrice {
	return block.GasPrice{InWei: r.felt(), InFri: r.felt()}
}

// EncodeHeader serializes a block header. Field order is a persisted
// contract for this DB version; new fields must be appended, never
// inserted.
func EncodeHeader(h block.Header) []byte {
	w := &writer{}
	w.uvarint(h.Number)
	w.felt(h.ParentHash)
	w.uvarint(h.Timestamp)
	w.felt(h.SequencerAddress)
	w.felt(h.StateRoot)
	w.felt(h.TransactionsCommitment)
	w.felt(h.EventsCommitment)
	w.felt(h.ReceiptsCommitment)
	writeGasPrice(w, h.L1GasPrice)
	writeGasPrice(w, h.L1DataGasPrice)
	writeGasPrice(w, h.L2GasPrice)
	w.byte(byte(h.L1DAMode))
	w.str(h.StarknetVersion)
	w.str(h.ProtocolVersion)
	return w.buf
}

// DecodeHeader is the inverse of EncodeHeader.
func DecodeHeader(b []byte) (block.Header, error) {
	r := newReader(b)
	h := block.Header{
		Number:                 r.uvarint(),
		ParentHash:             r.felt(),
		Timestamp:              r.uvarint(),
		SequencerAddress:       r.felt(),
		StateRoot:              r.felt(),
		TransactionsCommitment: r.felt(),
		EventsCommitment:       r.felt(),
		ReceiptsCommitment:     r.felt(),
	}
	h.L1GasPrice = readGasPrice(r)
	h.L1DataGasPrice = readGasPrice(r)
	h.L2GasPrice = readGasPrice(r)
	h.L1DAMode = block.DAMode(r.byte())
	h.StarknetVersion = r.str()
	h.ProtocolVersion = r.str()
	if err := r.done(); err != nil {
		return block.Header{}, err
	}
	return h, nil
}

// EncodeBlock serializes a block's header and its ordered transaction
// hash list. Full transaction bodies are encoded and stored separately
// via EncodeTransaction.
func EncodeBlock(b block.Block) []byte {
	w := &writer{}
	hb := EncodeHeader(b.Header)
	w.bytes(hb)
	w.felts(b.TxHashes)
	return w.buf
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(b []byte) (block.Block, error) {
	r := newReader(b)
	hb := r.bytes()
	txHashes := r.felts()
	if err := r.done(); err != nil {
		return block.Block{}, err
	}
	h, err := DecodeHeader(hb)
	if err != nil {
		return block.Block{}, err
	}
	return block.Block{Header: h, TxHashes: txHashes}, nil
}
