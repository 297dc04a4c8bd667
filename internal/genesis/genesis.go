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

// Package genesis seeds a fresh database with block 0: the fee token,
// the pre-funded dev accounts (deterministic from a seed string) and the
// builtin class declarations, committed through the same BlockWriter
// path every later block takes.
package genesis

import (
	"fmt"

	"github.com/katana-sequencer/katana/internal/block"
	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/executor"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/provider"
	"github.com/katana-sequencer/katana/internal/state"
)

// TotalSupplySlot is the fee token's total-supply storage slot.
var TotalSupplySlot = felt.FromBytesBE([]byte("ERC20_total_supply"))

// DefaultBalance is each pre-funded account's starting balance.
var DefaultBalance = felt.FromUint64(1_000_000)

// Account is one pre-funded dev account. Keys are derived
// deterministically from the seed so the same seed always yields the
// same account set.
type Account struct {
	Address    felt.Felt
	PublicKey  felt.Felt
	PrivateKey felt.Felt
	Balance    felt.Felt
}

// Config parameterizes genesis.
type Config struct {
	ChainID          felt.Felt
	Seed             string
	Accounts         int
	Balance          felt.Felt
	SequencerAddress felt.Felt
	StarknetVersion  string
	Timestamp        uint64

	// Path names a --genesis JSON file whose account set replaces the
	// seed-derived one (see LoadAccounts). Empty means derive.
	Path string
}

// DeriveAccounts builds the deterministic account set: account i lives
// at address i+1 with keys derived from (seed, i).
func DeriveAccounts(seed string, n int, balance felt.Felt) []Account {
	if balance.IsZero() {
		balance = DefaultBalance
	}
	seedFelt := felt.FromBytesBE([]byte(seed))
	out := make([]Account, n)
	for i := 0; i < n; i++ {
		priv := felt.PedersenHash(seedFelt, felt.FromUint64(uint64(i)))
		out[i] = Account{
			Address:    felt.FromUint64(uint64(i) + 1),
			PrivateKey: priv,
			PublicKey:  felt.PedersenHash(priv, felt.One),
			Balance:    balance,
		}
	}
	return out
}

// builtinClassArtifact synthesizes the artifact for a builtin class so
// the declared-class invariant holds for genesis declarations.
func builtinClassArtifact(name string) classes.Artifact {
	return classes.Artifact{Kind: classes.KindLegacy, Legacy: &classes.LegacyClass{
		Program: []byte("builtin:" + name),
		ABI:     []byte(`[]`),
	}}
}

// Initialize writes block 0 if the database is empty; on an already
// initialized database it returns the existing genesis header
// untouched. trie must be the same updater the producer commits with,
// so the genesis state root and later roots chain correctly.
func Initialize(store *provider.Store, trie provider.TrieUpdater, cfg Config) (block.Header, []Account, error) {
	var accounts []Account
	if cfg.Path != "" {
		var err error
		if accounts, err = LoadAccounts(cfg.Path); err != nil {
			return block.Header{}, nil, err
		}
	} else {
		accounts = DeriveAccounts(cfg.Seed, cfg.Accounts, cfg.Balance)
	}

	var existing *block.Header
	err := store.View(func(p *provider.Provider) error {
		if _, found, err := p.HeadNumber(); err != nil || !found {
			return err
		}
		h, err := p.HeaderByID(provider.Number(0))
		if err != nil {
			return err
		}
		existing = &h
		return nil
	})
	if err != nil {
		return block.Header{}, nil, err
	}
	if existing != nil {
		return *existing, accounts, nil
	}

	updates := state.New()

	updates.DeclaredLegacy = []felt.Felt{executor.ERC20ClassHash, executor.AccountClassHash}
	updates.ClassArtifacts[executor.ERC20ClassHash] = builtinClassArtifact("erc20")
	updates.ClassArtifacts[executor.AccountClassHash] = builtinClassArtifact("account")

	updates.DeployedContracts[executor.FeeTokenAddress] = executor.ERC20ClassHash

	total := felt.Zero
	for _, acct := range accounts {
		updates.DeployedContracts[acct.Address] = executor.AccountClassHash
		slot := executor.BalanceSlot(acct.Address)
		updates.StorageDiffs[state.StorageKey{Address: executor.FeeTokenAddress, Key: slot}] = acct.Balance
		total = total.Add(acct.Balance)
	}
	updates.StorageDiffs[state.StorageKey{Address: executor.FeeTokenAddress, Key: TotalSupplySlot}] = total

	w, tx, err := store.Writer()
	if err != nil {
		return block.Header{}, nil, err
	}
	defer tx.Rollback()

	root, err := trie.ApplyBlock(tx, 0, updates)
	if err != nil {
		return block.Header{}, nil, err
	}

	header := block.Header{
		Number:                 0,
		ParentHash:             felt.Zero,
		Timestamp:              cfg.Timestamp,
		SequencerAddress:       cfg.SequencerAddress,
		StateRoot:              root,
		TransactionsCommitment: block.TransactionsCommitment(nil),
		StarknetVersion:        cfg.StarknetVersion,
		ProtocolVersion:        cfg.StarknetVersion,
	}

	if err := w.InsertBlockWithStatesAndReceipts(header, nil, updates, nil, nil); err != nil {
		return block.Header{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return block.Header{}, nil, fmt.Errorf("genesis: commit: %w", err)
	}
	return header, accounts, nil
}
