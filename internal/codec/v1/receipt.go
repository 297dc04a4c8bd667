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

import "github.com/katana-sequencer/katana/internal/receipt"

func writeEvent(w *writer, e receipt.Event) {
	w.felt(e.FromAddress)
	w.felts(e.Keys)
	w.felts(e.Data)
}

func readEvent(r *reader) receipt.Event {
	return receipt.Event{FromAddress: r.felt(), Keys: r.felts(), Data: r.felts()}
}

func writeEvents(w *writer, es []receipt.Event) {
	w.uvarint(uint64(len(es)))
	for _, e := range es {
		writeEvent(w, e)
	}
}

func readEvents(r *reader) []receipt.Event {
	n := r.uvarint()
	if n == 0 {
		return nil
	}
	out := make([]receipt.Event, n)
	for i := range out {
		out[i] = readEvent(r)
	}
	return out
}

func writeMessage(w *writer, m receipt.L2ToL1Message) {
	w.felt(m.FromAddress)
	w.felt(m.ToAddress)
	w.felts(m.Payload)
}

func readMessage(r *reader) receipt.L2ToL1Message {
	return receipt.L2ToL1Message{FromAddress: r.felt(), ToAddress: r.felt(), Payload: r.felts()}
}

func writeMessages(w *writer, ms []receipt.L2ToL1Message) {
	w.uvarint(uint64(len(ms)))
	for _, m := range ms {
		writeMessage(w, m)
	}
}

func readMessages(r *reader) []receipt.L2ToL1Message {
	n := r.uvarint()
	if n == 0 {
		return nil
	}
	out := make([]receipt.L2ToL1Message, n)
	for i := range out {
		out[i] = readMessage(r)
	}
	return out
}

func writeResourceUsage(w *writer, u receipt.ResourceUsage) {
	w.uvarint(u.L1Gas)
	w.uvarint(u.L2Gas)
	w.uvarint(u.L1DataGas)
	w.uvarint(u.Steps)
}

func readResourceUsage(r *reader) receipt.ResourceUsage {
	return receipt.ResourceUsage{L1Gas: r.uvarint(), L2Gas: r.uvarint(), L1DataGas: r.uvarint(), Steps: r.uvarint()}
}

func writeCallInfo(w *writer, c receipt.CallInfo) {
	w.felt(c.ContractAddress)
	w.felt(c.EntryPointSelector)
	w.felts(c.Calldata)
	w.felts(c.Result)
	writeEvents(w, c.Events)
	writeMessages(w, c.Messages)
	w.uvarint(uint64(len(c.Calls)))
	for _, child := range c.Calls {
		writeCallInfo(w, child)
	}
}

func readCallInfo(r *reader) receipt.CallInfo {
	c := receipt.CallInfo{
		ContractAddress:    r.felt(),
		EntryPointSelector: r.felt(),
		Calldata:           r.felts(),
		Result:             r.felts(),
		Events:             readEvents(r),
		Messages:           readMessages(r),
	}
	n := r.uvarint()
	if n > 0 {
		c.Calls = make([]receipt.CallInfo, n)
		for i := range c.Calls {
			c.Calls[i] = readCallInfo(r)
		}
	}
	return c
}

// EncodeReceipt serializes a Receipt. Traces live in the separate
// TxTraces table (see EncodeTrace) so a reader that only needs receipts
// never pays to decode a call tree.
func EncodeReceipt(rcpt receipt.Receipt) []byte {
	w := &writer{}
	w.felt(rcpt.TxHash)
	w.byte(byte(rcpt.Status))
	w.str(rcpt.RevertReason)
	w.felt(rcpt.ActualFee)
	writeResourceUsage(w, rcpt.ResourceUsage)
	writeEvents(w, rcpt.Events)
	writeMessages(w, rcpt.Messages)
	return w.buf
}

// DecodeReceipt is the inverse of EncodeReceipt.
func DecodeReceipt(b []byte) (receipt.Receipt, error) {
	r := newReader(b)
	rcpt := receipt.Receipt{
		TxHash:       r.felt(),
		Status:       receipt.Status(r.byte()),
		RevertReason: r.str(),
		ActualFee:    r.felt(),
	}
	rcpt.ResourceUsage = readResourceUsage(r)
	rcpt.Events = readEvents(r)
	rcpt.Messages = readMessages(r)
	if err := r.done(); err != nil {
		return receipt.Receipt{}, err
	}
	return rcpt, nil
}

// EncodeTrace serializes a transaction's execution trace (its call tree).
func EncodeTrace(trace receipt.Trace) []byte {
	w := &writer{}
	writeCallInfo(w, trace.Root)
	return w.buf
}

// DecodeTrace is the inverse of EncodeTrace.
func DecodeTrace(b []byte) (receipt.Trace, error) {
	r := newReader(b)
	trace := receipt.Trace{Root: readCallInfo(r)}
	if err := r.done(); err != nil {
		return receipt.Trace{}, err
	}
	return trace, nil
}
