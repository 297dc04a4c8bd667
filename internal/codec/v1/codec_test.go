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

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sequencer/katana/internal/block"
	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/receipt"
	"github.com/katana-sequencer/katana/internal/state"
	"github.com/katana-sequencer/katana/internal/txn"
)

func f(x uint64) felt.Felt { return felt.FromUint64(x) }

func sampleHeader() block.Header {
	return block.Header{
		Number:                 42,
		ParentHash:             f(1),
		Timestamp:              1700000000,
		SequencerAddress:       f(2),
		StateRoot:              f(3),
		TransactionsCommitment: f(4),
		EventsCommitment:       f(5),
		ReceiptsCommitment:     f(6),
		L1GasPrice:             block.GasPrice{InWei: f(7), InFri: f(8)},
		L1DataGasPrice:         block.GasPrice{InWei: f(9), InFri: f(10)},
		L2GasPrice:             block.GasPrice{InWei: f(11), InFri: f(12)},
		L1DAMode:               block.DAModeBlob,
		StarknetVersion:        "0.13.1",
		ProtocolVersion:        "0.1.0",
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := sampleHeader()
	got, err := DecodeHeader(EncodeHeader(h))
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestBlockRoundTrip(t *testing.T) {
	b := block.Block{Header: sampleHeader(), TxHashes: []felt.Felt{f(100), f(200)}}
	got, err := DecodeBlock(EncodeBlock(b))
	require.NoError(t, err)
	require.Equal(t, b, got)
}

func sampleV3Extras() txn.V3Extras {
	return txn.V3Extras{
		Tip: 5,
		ResourceBounds: txn.V3ResourceBounds{
			L1Gas:     txn.ResourceBounds{MaxAmount: 10, MaxPricePerUnit: f(11)},
			L2Gas:     txn.ResourceBounds{MaxAmount: 12, MaxPricePerUnit: f(13)},
			L1DataGas: txn.ResourceBounds{MaxAmount: 14, MaxPricePerUnit: f(15)},
		},
		PaymasterData:         []felt.Felt{f(16)},
		NonceDAMode:           txn.DAModeL2,
		FeeDAMode:             txn.DAModeL1,
		AccountDeploymentData: []felt.Felt{f(17), f(18)},
	}
}

func sampleCommon() txn.Common {
	return txn.Common{ChainID: f(1), SenderAddress: f(2), Nonce: f(3), Signature: []felt.Felt{f(4), f(5)}}
}

func TestTransactionRoundTrip(t *testing.T) {
	cases := []txn.Transaction{
		{Kind: txn.KindInvokeV0, InvokeV0: &txn.InvokeV0{
			Common: sampleCommon(), ContractAddress: f(6), EntryPointSelector: f(7),
			Calldata: []felt.Felt{f(8), f(9)}, MaxFee: f(10),
		}},
		{Kind: txn.KindInvokeV1, InvokeV1: &txn.InvokeV1{
			Common: sampleCommon(), Calldata: []felt.Felt{f(8)}, MaxFee: f(10),
		}},
		{Kind: txn.KindInvokeV3, InvokeV3: &txn.InvokeV3{
			Common: sampleCommon(), V3Extras: sampleV3Extras(), Calldata: []felt.Felt{f(20)},
		}},
		{Kind: txn.KindDeclareV0, DeclareV0: &txn.DeclareV0{
			Common: sampleCommon(), ClassHash: f(30), MaxFee: f(31),
		}},
		{Kind: txn.KindDeclareV1, DeclareV1: &txn.DeclareV1{
			Common: sampleCommon(), ClassHash: f(30), MaxFee: f(31),
		}},
		{Kind: txn.KindDeclareV2, DeclareV2: &txn.DeclareV2{
			Common: sampleCommon(), ClassHash: f(30), CompiledClassHash: f(32), MaxFee: f(31),
		}},
		{Kind: txn.KindDeclareV3, DeclareV3: &txn.DeclareV3{
			Common: sampleCommon(), V3Extras: sampleV3Extras(), ClassHash: f(30), CompiledClassHash: f(32),
		}},
		{Kind: txn.KindDeployAccountV1, DeployAccountV1: &txn.DeployAccountV1{
			Common: sampleCommon(), ClassHash: f(40), ContractAddressSalt: f(41),
			ConstructorCalldata: []felt.Felt{f(42)}, MaxFee: f(43),
		}},
		{Kind: txn.KindDeployAccountV3, DeployAccountV3: &txn.DeployAccountV3{
			Common: sampleCommon(), V3Extras: sampleV3Extras(), ClassHash: f(40),
			ContractAddressSalt: f(41), ConstructorCalldata: []felt.Felt{f(42)},
		}},
		{Kind: txn.KindL1Handler, L1Handler: &txn.L1Handler{
			Common: sampleCommon(), ContractAddress: f(50), EntryPointSelector: f(51),
			Calldata: []felt.Felt{f(52)}, L1MessageNonce: 7,
		}},
	}

	for _, tx := range cases {
		enc, err := EncodeTransaction(tx)
		require.NoError(t, err)
		got, err := DecodeTransaction(enc)
		require.NoError(t, err)
		require.Equal(t, tx, got)
	}
}

func sampleTrace() receipt.Trace {
	return receipt.Trace{Root: receipt.CallInfo{
		ContractAddress:    f(1),
		EntryPointSelector: f(2),
		Calldata:           []felt.Felt{f(3)},
		Result:             []felt.Felt{f(4)},
		Events: []receipt.Event{
			{FromAddress: f(5), Keys: []felt.Felt{f(6)}, Data: []felt.Felt{f(7)}},
		},
		Messages: []receipt.L2ToL1Message{
			{FromAddress: f(8), ToAddress: f(9), Payload: []felt.Felt{f(10)}},
		},
		Calls: []receipt.CallInfo{
			{ContractAddress: f(11), EntryPointSelector: f(12)},
		},
	}}
}

func TestReceiptRoundTrip(t *testing.T) {
	rcpt := receipt.Receipt{
		TxHash:        f(1),
		Status:        receipt.StatusReverted,
		RevertReason:  "insufficient balance",
		ActualFee:     f(2),
		ResourceUsage: receipt.ResourceUsage{L1Gas: 1, L2Gas: 2, L1DataGas: 3, Steps: 4},
		Events:        []receipt.Event{{FromAddress: f(5)}},
		Messages:      []receipt.L2ToL1Message{{FromAddress: f(6), ToAddress: f(7)}},
	}
	trace := sampleTrace()

	gotR, err := DecodeReceipt(EncodeReceipt(rcpt))
	require.NoError(t, err)
	require.Equal(t, rcpt, gotR)

	gotT, err := DecodeTrace(EncodeTrace(trace))
	require.NoError(t, err)
	require.Equal(t, trace, gotT)
}

func TestClassArtifactRoundTrip(t *testing.T) {
	legacy := classes.Artifact{Kind: classes.KindLegacy, Legacy: &classes.LegacyClass{
		Program:          []byte{1, 2, 3},
		ABI:              []byte(`[]`),
		ExternalEntries:  []classes.EntryPoint{{Selector: f(1), Offset: 10}},
		L1HandlerEntries: []classes.EntryPoint{{Selector: f(2), Offset: 20}},
		ConstructorEntry: []classes.EntryPoint{{Selector: f(3), Offset: 30}},
	}}
	enc, err := EncodeClassArtifact(legacy)
	require.NoError(t, err)
	got, err := DecodeClassArtifact(enc)
	require.NoError(t, err)
	require.Equal(t, legacy, got)

	sierra := classes.Artifact{Kind: classes.KindSierra, Sierra: &classes.SierraClass{
		SierraProgram:     []byte{4, 5, 6},
		CompiledCASM:      []byte{7, 8},
		ABI:               []byte(`[]`),
		ExternalEntries:   []classes.EntryPoint{{Selector: f(1), Offset: 10}},
		CompiledClassHash: f(99),
	}}
	enc, err = EncodeClassArtifact(sierra)
	require.NoError(t, err)
	got, err = DecodeClassArtifact(enc)
	require.NoError(t, err)
	require.Equal(t, sierra, got)
}

func TestStateUpdatesRoundTrip(t *testing.T) {
	u := state.New()
	u.Nonces[f(1)] = f(2)
	u.Nonces[f(3)] = f(4)
	u.StorageDiffs[state.StorageKey{Address: f(1), Key: f(5)}] = f(6)
	u.StorageDiffs[state.StorageKey{Address: f(1), Key: f(7)}] = f(8)
	u.ReplacedClasses[f(9)] = f(10)
	u.DeployedContracts[f(11)] = f(12)
	u.DeclaredLegacy = []felt.Felt{f(13)}
	u.DeclaredSierra = []state.DeclaredSierraClass{{ClassHash: f(14), CompiledClassHash: f(15)}}
	u.ClassArtifacts[f(13)] = classes.Artifact{Kind: classes.KindLegacy, Legacy: &classes.LegacyClass{Program: []byte{1}}}
	u.ClassArtifacts[f(14)] = classes.Artifact{Kind: classes.KindSierra, Sierra: &classes.SierraClass{SierraProgram: []byte{2}, CompiledClassHash: f(15)}}
	require.NoError(t, u.Validate())

	enc, err := EncodeStateUpdates(u)
	require.NoError(t, err)
	got, err := DecodeStateUpdates(enc)
	require.NoError(t, err)
	require.Equal(t, u, got)

	enc2, err := EncodeStateUpdates(u)
	require.NoError(t, err)
	require.Equal(t, enc, enc2, "encoding of an unchanged StateUpdates must be byte-for-byte stable")
}
