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

// Package receipt holds per-transaction execution output and the call
// trace produced alongside it.
package receipt

import "github.com/katana-sequencer/katana/internal/felt"

// Status is the terminal execution outcome.
type Status uint8

const (
	StatusSucceeded Status = iota
	StatusReverted
)

// Event is a single emitted event, attributed to the contract that
// raised it.
type Event struct {
	FromAddress felt.Felt
	Keys        []felt.Felt
	Data        []felt.Felt
}

// L2ToL1Message is an outgoing message queued for L1 consumption.
type L2ToL1Message struct {
	FromAddress felt.Felt
	ToAddress   felt.Felt
	Payload     []felt.Felt
}

// ResourceUsage records gas/resource consumption for fee accounting.
type ResourceUsage struct {
	L1Gas     uint64
	L2Gas     uint64
	L1DataGas uint64
	Steps     uint64
}

// CallInfo is one node in the execution trace's call tree.
type CallInfo struct {
	ContractAddress    felt.Felt
	EntryPointSelector felt.Felt
	Calldata           []felt.Felt
	Result             []felt.Felt
	Events             []Event
	Messages           []L2ToL1Message
	Calls              []CallInfo
}

// Trace is the root of a transaction's execution trace: a tree of call
// infos produced by the VM's own call stack.
type Trace struct {
	Root CallInfo
}

// Events flattens the trace into emission order: pre-order depth-first
// across the call tree, matching the receipt invariant.
func (t Trace) Events() []Event {
	var out []Event
	var walk func(c CallInfo)
	walk = func(c CallInfo) {
		out = append(out, c.Events...)
		for _, child := range c.Calls {
			walk(child)
		}
	}
	walk(t.Root)
	return out
}

// Messages flattens the trace's L2-to-L1 messages in the same pre-order
// DFS order as Events.
func (t Trace) Messages() []L2ToL1Message {
	var out []L2ToL1Message
	var walk func(c CallInfo)
	walk = func(c CallInfo) {
		out = append(out, c.Messages...)
		for _, child := range c.Calls {
			walk(child)
		}
	}
	walk(t.Root)
	return out
}

// Receipt is the per-transaction output committed alongside a block.
type Receipt struct {
	TxHash         felt.Felt
	Status         Status
	RevertReason   string // only meaningful when Status == StatusReverted
	ActualFee      felt.Felt
	ResourceUsage  ResourceUsage
	Events         []Event
	Messages       []L2ToL1Message
}
