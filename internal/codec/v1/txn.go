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
	"fmt"

	"github.com/katana-sequencer/katana/internal/txn"
)

func writeCommon(w *writer, c txn.Common) {
	w.felt(c.ChainID)
	w.felt(c.SenderAddress)
	w.felt(c.Nonce)
	w.felts(c.Signature)
}

func readCommon(r *reader) txn.Common {
	return txn.Common{
		ChainID:       r.felt(),
		SenderAddress: r.felt(),
		Nonce:         r.felt(),
		Signature:     r.felts(),
	}
}

func writeResourceBounds(w *writer, b txn.ResourceBounds) {
	w.uvarint(b.MaxAmount)
	w.felt(b.MaxPricePerUnit)
}

func readResourceBounds(r *reader) txn.ResourceBounds {
	return txn.ResourceBounds{MaxAmount: r.uvarint(), MaxPricePerUnit: r.felt()}
}

func writeV3ResourceBounds(w *writer, b txn.V3ResourceBounds) {
	writeResourceBounds(w, b.L1Gas)
	writeResourceBounds(w, b.L2Gas)
	writeResourceBounds(w, b.L1DataGas)
}

func readV3ResourceBounds(r *reader) txn.V3ResourceBounds {
	return txn.V3ResourceBounds{
		L1Gas:     readResourceBounds(r),
		L2Gas:     readResourceBounds(r),
		L1DataGas: readResourceBounds(r),
	}
}

func writeV3Extras(w *writer, e txn.V3Extras) {
	w.uvarint(e.Tip)
	writeV3ResourceBounds(w, e.ResourceBounds)
	w.felts(e.PaymasterData)
	w.byte(byte(e.NonceDAMode))
	w.byte(byte(e.FeeDAMode))
	w.felts(e.AccountDeploymentData)
}

func readV3Extras(r *reader) txn.V3Extras {
	return txn.V3Extras{
		Tip:                   r.uvarint(),
		ResourceBounds:        readV3ResourceBounds(r),
		PaymasterData:         r.felts(),
		NonceDAMode:           txn.DAMode(r.byte()),
		FeeDAMode:             txn.DAMode(r.byte()),
		AccountDeploymentData: r.felts(),
	}
}

// EncodeTransaction serializes a tagged Transaction. The leading Kind
// byte, and the field order within each variant, are persisted
// contracts for this DB version: new variants are appended to Kind,
// never inserted or renumbered.
func EncodeTransaction(t txn.Transaction) ([]byte, error) {
	w := &writer{}
	w.byte(byte(t.Kind))
	switch t.Kind {
	case txn.KindInvokeV0:
		tx := t.InvokeV0
		writeCommon(w, tx.Common)
		w.felt(tx.ContractAddress)
		w.felt(tx.EntryPointSelector)
		w.felts(tx.Calldata)
		w.felt(tx.MaxFee)
	case txn.KindInvokeV1:
		tx := t.InvokeV1
		writeCommon(w, tx.Common)
		w.felts(tx.Calldata)
		w.felt(tx.MaxFee)
	case txn.KindInvokeV3:
		tx := t.InvokeV3
		writeCommon(w, tx.Common)
		writeV3Extras(w, tx.V3Extras)
		w.felts(tx.Calldata)
	case txn.KindDeclareV0:
		tx := t.DeclareV0
		writeCommon(w, tx.Common)
		w.felt(tx.ClassHash)
		w.felt(tx.MaxFee)
	case txn.KindDeclareV1:
		tx := t.DeclareV1
		writeCommon(w, tx.Common)
		w.felt(tx.ClassHash)
		w.felt(tx.MaxFee)
	case txn.KindDeclareV2:
		tx := t.DeclareV2
		writeCommon(w, tx.Common)
		w.felt(tx.ClassHash)
		w.felt(tx.CompiledClassHash)
		w.felt(tx.MaxFee)
	case txn.KindDeclareV3:
		tx := t.DeclareV3
		writeCommon(w, tx.Common)
		writeV3Extras(w, tx.V3Extras)
		w.felt(tx.ClassHash)
		w.felt(tx.CompiledClassHash)
	case txn.KindDeployAccountV1:
		tx := t.DeployAccountV1
		writeCommon(w, tx.Common)
		w.felt(tx.ClassHash)
		w.felt(tx.ContractAddressSalt)
		w.felts(tx.ConstructorCalldata)
		w.felt(tx.MaxFee)
	case txn.KindDeployAccountV3:
		tx := t.DeployAccountV3
		writeCommon(w, tx.Common)
		writeV3Extras(w, tx.V3Extras)
		w.felt(tx.ClassHash)
		w.felt(tx.ContractAddressSalt)
		w.felts(tx.ConstructorCalldata)
	case txn.KindL1Handler:
		tx := t.L1Handler
		writeCommon(w, tx.Common)
		w.felt(tx.ContractAddress)
		w.felt(tx.EntryPointSelector)
		w.felts(tx.Calldata)
		w.uvarint(tx.L1MessageNonce)
	default:
		return nil, fmt.Errorf("codec/v1: unknown transaction kind %d", t.Kind)
	}
	return w.buf, nil
}

// DecodeTransaction is the inverse of EncodeTransaction.
func DecodeTransaction(b []byte) (txn.Transaction, error) {
	r := newReader(b)
	kind := txn.Kind(r.byte())
	t := txn.Transaction{Kind: kind}
	switch kind {
	case txn.KindInvokeV0:
		tx := &txn.InvokeV0{Common: readCommon(r)}
		tx.ContractAddress = r.felt()
		tx.EntryPointSelector = r.felt()
		tx.Calldata = r.felts()
		tx.MaxFee = r.felt()
		t.InvokeV0 = tx
	case txn.KindInvokeV1:
		tx := &txn.InvokeV1{Common: readCommon(r)}
		tx.Calldata = r.felts()
		tx.MaxFee = r.felt()
		t.InvokeV1 = tx
	case txn.KindInvokeV3:
		tx := &txn.InvokeV3{Common: readCommon(r)}
		tx.V3Extras = readV3Extras(r)
		tx.Calldata = r.felts()
		t.InvokeV3 = tx
	case txn.KindDeclareV0:
		tx := &txn.DeclareV0{Common: readCommon(r)}
		tx.ClassHash = r.felt()
		tx.MaxFee = r.felt()
		t.DeclareV0 = tx
	case txn.KindDeclareV1:
		tx := &txn.DeclareV1{Common: readCommon(r)}
		tx.ClassHash = r.felt()
		tx.MaxFee = r.felt()
		t.DeclareV1 = tx
	case txn.KindDeclareV2:
		tx := &txn.DeclareV2{Common: readCommon(r)}
		tx.ClassHash = r.felt()
		tx.CompiledClassHash = r.felt()
		tx.MaxFee = r.felt()
		t.DeclareV2 = tx
	case txn.KindDeclareV3:
		tx := &txn.DeclareV3{Common: readCommon(r)}
		tx.V3Extras = readV3Extras(r)
		tx.ClassHash = r.felt()
		tx.CompiledClassHash = r.felt()
		t.DeclareV3 = tx
	case txn.KindDeployAccountV1:
		tx := &txn.DeployAccountV1{Common: readCommon(r)}
		tx.ClassHash = r.felt()
		tx.ContractAddressSalt = r.felt()
		tx.ConstructorCalldata = r.felts()
		tx.MaxFee = r.felt()
		t.DeployAccountV1 = tx
	case txn.KindDeployAccountV3:
		tx := &txn.DeployAccountV3{Common: readCommon(r)}
		tx.V3Extras = readV3Extras(r)
		tx.ClassHash = r.felt()
		tx.ContractAddressSalt = r.felt()
		tx.ConstructorCalldata = r.felts()
		t.DeployAccountV3 = tx
	case txn.KindL1Handler:
		tx := &txn.L1Handler{Common: readCommon(r)}
		tx.ContractAddress = r.felt()
		tx.EntryPointSelector = r.felt()
		tx.Calldata = r.felts()
		tx.L1MessageNonce = r.uvarint()
		t.L1Handler = tx
	default:
		return txn.Transaction{}, fmt.Errorf("codec/v1: unknown transaction kind %d", kind)
	}
	if err := r.done(); err != nil {
		return txn.Transaction{}, err
	}
	return t, nil
}
