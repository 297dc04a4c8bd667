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

// Package txn implements the tagged transaction variants. Variant order
// inside the wire tag (see Kind) is a persisted contract: once a DB
// version ships with a given ordinal assignment, it must never change:
// add new kinds at the end, never renumber.
package txn

import "github.com/katana-sequencer/katana/internal/felt"

type Kind uint8

const (
	KindInvokeV0 Kind = iota
	KindInvokeV1
	KindInvokeV3
	KindDeclareV0
	KindDeclareV1
	KindDeclareV2
	KindDeclareV3
	KindDeployAccountV1
	KindDeployAccountV3
	KindL1Handler
)

// DAMode selects where a resource's data is made available.
type DAMode uint8

const (
	DAModeL1 DAMode = iota
	DAModeL2
)

// ResourceBounds bounds one resource kind's (max_amount, max_price_per_unit).
type ResourceBounds struct {
	MaxAmount       uint64
	MaxPricePerUnit felt.Felt
}

// V3ResourceBounds is the resource-bounds triple carried by every V3
// transaction (L1 gas, L2 gas, L1 data gas).
type V3ResourceBounds struct {
	L1Gas     ResourceBounds
	L2Gas     ResourceBounds
	L1DataGas ResourceBounds
}

// Common fields shared by every variant.
type Common struct {
	ChainID       felt.Felt
	SenderAddress felt.Felt
	Nonce         felt.Felt
	Signature     []felt.Felt
}

// V3Extras are the fields introduced with V3 transactions: tips, resource
// bounds, a fee-token/data-availability mode choice, and paymaster data.
type V3Extras struct {
	Tip                  uint64
	ResourceBounds       V3ResourceBounds
	PaymasterData        []felt.Felt
	NonceDAMode          DAMode
	FeeDAMode            DAMode
	AccountDeploymentData []felt.Felt
}

type InvokeV0 struct {
	Common
	ContractAddress    felt.Felt
	EntryPointSelector felt.Felt
	Calldata           []felt.Felt
	MaxFee             felt.Felt
}

type InvokeV1 struct {
	Common
	Calldata []felt.Felt
	MaxFee   felt.Felt
}

type InvokeV3 struct {
	Common
	V3Extras
	Calldata []felt.Felt
}

type DeclareV0 struct {
	Common
	ClassHash felt.Felt
	MaxFee    felt.Felt
}

type DeclareV1 struct {
	Common
	ClassHash felt.Felt
	MaxFee    felt.Felt
}

type DeclareV2 struct {
	Common
	ClassHash         felt.Felt
	CompiledClassHash felt.Felt
	MaxFee            felt.Felt
}

type DeclareV3 struct {
	Common
	V3Extras
	ClassHash         felt.Felt
	CompiledClassHash felt.Felt
}

type DeployAccountV1 struct {
	Common
	ClassHash           felt.Felt
	ContractAddressSalt felt.Felt
	ConstructorCalldata []felt.Felt
	MaxFee              felt.Felt
}

type DeployAccountV3 struct {
	Common
	V3Extras
	ClassHash           felt.Felt
	ContractAddressSalt felt.Felt
	ConstructorCalldata []felt.Felt
}

// L1Handler is an internal variant: never submitted directly by users, it
// is constructed by the (out-of-scope) L1 message bridge and fed into the
// pool the same way as any other transaction.
type L1Handler struct {
	Common
	ContractAddress    felt.Felt
	EntryPointSelector felt.Felt
	Calldata           []felt.Felt
	L1MessageNonce     uint64
}

// Transaction is the tagged union over every variant. Exactly one of the
// pointer fields matching Kind is non-nil.
type Transaction struct {
	Kind            Kind
	InvokeV0        *InvokeV0
	InvokeV1        *InvokeV1
	InvokeV3        *InvokeV3
	DeclareV0       *DeclareV0
	DeclareV1       *DeclareV1
	DeclareV2       *DeclareV2
	DeclareV3       *DeclareV3
	DeployAccountV1 *DeployAccountV1
	DeployAccountV3 *DeployAccountV3
	L1Handler       *L1Handler
}

// Sender returns the transaction's sender address (the contract_address
// for Invoke, the deployer-derived address for DeployAccount).
func (t Transaction) Sender() felt.Felt {
	switch t.Kind {
	case KindInvokeV0:
		return t.InvokeV0.ContractAddress
	case KindInvokeV1:
		return t.InvokeV1.SenderAddress
	case KindInvokeV3:
		return t.InvokeV3.SenderAddress
	case KindDeclareV0:
		return t.DeclareV0.SenderAddress
	case KindDeclareV1:
		return t.DeclareV1.SenderAddress
	case KindDeclareV2:
		return t.DeclareV2.SenderAddress
	case KindDeclareV3:
		return t.DeclareV3.SenderAddress
	case KindDeployAccountV1, KindDeployAccountV3:
		return t.deployedAddress()
	case KindL1Handler:
		return t.L1Handler.ContractAddress
	default:
		return felt.Zero
	}
}

func (t Transaction) deployedAddress() felt.Felt {
	switch t.Kind {
	case KindDeployAccountV1:
		return ComputeContractAddress(t.DeployAccountV1.ContractAddressSalt, t.DeployAccountV1.ClassHash, t.DeployAccountV1.ConstructorCalldata)
	case KindDeployAccountV3:
		return ComputeContractAddress(t.DeployAccountV3.ContractAddressSalt, t.DeployAccountV3.ClassHash, t.DeployAccountV3.ConstructorCalldata)
	default:
		return felt.Zero
	}
}

// Nonce returns the transaction's nonce (always zero for DeployAccount,
// which predates its own account's existence).
func (t Transaction) Nonce() felt.Felt {
	switch t.Kind {
	case KindInvokeV0:
		return t.InvokeV0.Nonce
	case KindInvokeV1:
		return t.InvokeV1.Nonce
	case KindInvokeV3:
		return t.InvokeV3.Nonce
	case KindDeclareV0:
		return t.DeclareV0.Nonce
	case KindDeclareV1:
		return t.DeclareV1.Nonce
	case KindDeclareV2:
		return t.DeclareV2.Nonce
	case KindDeclareV3:
		return t.DeclareV3.Nonce
	case KindDeployAccountV1:
		return t.DeployAccountV1.Nonce
	case KindDeployAccountV3:
		return t.DeployAccountV3.Nonce
	case KindL1Handler:
		return t.L1Handler.Nonce
	default:
		return felt.Zero
	}
}

// Tip returns the V3 tip used for priority scheduling (zero for pre-V3
// variants, which have no tip field).
func (t Transaction) Tip() uint64 {
	switch t.Kind {
	case KindInvokeV3:
		return t.InvokeV3.Tip
	case KindDeclareV3:
		return t.DeclareV3.Tip
	case KindDeployAccountV3:
		return t.DeployAccountV3.Tip
	default:
		return 0
	}
}

// ChainID returns the chain id the transaction was signed against.
func (t Transaction) ChainID() felt.Felt {
	switch t.Kind {
	case KindInvokeV0:
		return t.InvokeV0.ChainID
	case KindInvokeV1:
		return t.InvokeV1.ChainID
	case KindInvokeV3:
		return t.InvokeV3.ChainID
	case KindDeclareV0:
		return t.DeclareV0.ChainID
	case KindDeclareV1:
		return t.DeclareV1.ChainID
	case KindDeclareV2:
		return t.DeclareV2.ChainID
	case KindDeclareV3:
		return t.DeclareV3.ChainID
	case KindDeployAccountV1:
		return t.DeployAccountV1.ChainID
	case KindDeployAccountV3:
		return t.DeployAccountV3.ChainID
	case KindL1Handler:
		return t.L1Handler.ChainID
	default:
		return felt.Zero
	}
}

// ComputeContractAddress derives a deployed contract's address from
// (deployer=0 for self-deploying accounts, salt, class_hash, calldata),
// per the Contract instance definition.
func ComputeContractAddress(salt, classHash felt.Felt, constructorCalldata []felt.Felt) felt.Felt {
	args := append([]felt.Felt{felt.Zero, salt, classHash}, constructorCalldata...)
	return felt.PedersenHashN(args...)
}

// Hash computes the transaction's canonical hash over its fields and
// chain id, per the rules of its version. The domain-separating Kind
// value is folded in first so distinct variants never collide even when
// their remaining fields happen to coincide.
func (t Transaction) Hash() felt.Felt {
	tag := felt.FromUint64(uint64(t.Kind))
	switch t.Kind {
	case KindInvokeV0:
		tx := t.InvokeV0
		return felt.PoseidonHash(append([]felt.Felt{tag, tx.ContractAddress, tx.EntryPointSelector, tx.MaxFee, tx.ChainID}, tx.Calldata...)...)
	case KindInvokeV1:
		tx := t.InvokeV1
		return felt.PoseidonHash(append([]felt.Felt{tag, tx.SenderAddress, tx.Nonce, tx.MaxFee, tx.ChainID}, tx.Calldata...)...)
	case KindInvokeV3:
		tx := t.InvokeV3
		h := []felt.Felt{tag, tx.SenderAddress, tx.Nonce, tx.ChainID, felt.FromUint64(tx.Tip)}
		h = append(h, resourceBoundsFelts(tx.ResourceBounds)...)
		h = append(h, tx.Calldata...)
		return felt.PoseidonHash(h...)
	case KindDeclareV0:
		tx := t.DeclareV0
		return felt.PoseidonHash(tag, tx.SenderAddress, tx.ClassHash, tx.MaxFee, tx.ChainID, tx.Nonce)
	case KindDeclareV1:
		tx := t.DeclareV1
		return felt.PoseidonHash(tag, tx.SenderAddress, tx.ClassHash, tx.MaxFee, tx.ChainID, tx.Nonce)
	case KindDeclareV2:
		tx := t.DeclareV2
		return felt.PoseidonHash(tag, tx.SenderAddress, tx.ClassHash, tx.CompiledClassHash, tx.MaxFee, tx.ChainID, tx.Nonce)
	case KindDeclareV3:
		tx := t.DeclareV3
		h := []felt.Felt{tag, tx.SenderAddress, tx.ClassHash, tx.CompiledClassHash, tx.ChainID, tx.Nonce, felt.FromUint64(tx.Tip)}
		h = append(h, resourceBoundsFelts(tx.ResourceBounds)...)
		return felt.PoseidonHash(h...)
	case KindDeployAccountV1:
		tx := t.DeployAccountV1
		h := append([]felt.Felt{tag, tx.ClassHash, tx.ContractAddressSalt, tx.MaxFee, tx.ChainID, tx.Nonce}, tx.ConstructorCalldata...)
		return felt.PoseidonHash(h...)
	case KindDeployAccountV3:
		tx := t.DeployAccountV3
		h := []felt.Felt{tag, tx.ClassHash, tx.ContractAddressSalt, tx.ChainID, tx.Nonce, felt.FromUint64(tx.Tip)}
		h = append(h, resourceBoundsFelts(tx.ResourceBounds)...)
		h = append(h, tx.ConstructorCalldata...)
		return felt.PoseidonHash(h...)
	case KindL1Handler:
		tx := t.L1Handler
		h := append([]felt.Felt{tag, tx.ContractAddress, tx.EntryPointSelector, tx.ChainID, tx.Nonce, felt.FromUint64(tx.L1MessageNonce)}, tx.Calldata...)
		return felt.PoseidonHash(h...)
	default:
		return felt.Zero
	}
}

func resourceBoundsFelts(b V3ResourceBounds) []felt.Felt {
	return []felt.Felt{
		felt.FromUint64(b.L1Gas.MaxAmount), b.L1Gas.MaxPricePerUnit,
		felt.FromUint64(b.L2Gas.MaxAmount), b.L2Gas.MaxPricePerUnit,
		felt.FromUint64(b.L1DataGas.MaxAmount), b.L1DataGas.MaxPricePerUnit,
	}
}

// EffectiveResourceBounds returns the V3 bounds and true, or the zero
// value and false for pre-V3 variants that instead carry a flat MaxFee.
func (t Transaction) EffectiveResourceBounds() (V3ResourceBounds, bool) {
	switch t.Kind {
	case KindInvokeV3:
		return t.InvokeV3.ResourceBounds, true
	case KindDeclareV3:
		return t.DeclareV3.ResourceBounds, true
	case KindDeployAccountV3:
		return t.DeployAccountV3.ResourceBounds, true
	default:
		return V3ResourceBounds{}, false
	}
}

// DeclaredClassHash returns the class hash a Declare transaction
// references, or (zero, false) for non-Declare variants.
func (t Transaction) DeclaredClassHash() (felt.Felt, bool) {
	switch t.Kind {
	case KindDeclareV0:
		return t.DeclareV0.ClassHash, true
	case KindDeclareV1:
		return t.DeclareV1.ClassHash, true
	case KindDeclareV2:
		return t.DeclareV2.ClassHash, true
	case KindDeclareV3:
		return t.DeclareV3.ClassHash, true
	default:
		return felt.Zero, false
	}
}
