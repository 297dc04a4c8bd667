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

package genesis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sequencer/katana/internal/executor"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/kv"
	"github.com/katana-sequencer/katana/internal/provider"
	"github.com/katana-sequencer/katana/internal/trie"
)

func f(x uint64) felt.Felt { return felt.FromUint64(x) }

func TestDeriveAccountsDeterministic(t *testing.T) {
	a := DeriveAccounts("seed0", 3, felt.Zero)
	b := DeriveAccounts("seed0", 3, felt.Zero)
	require.Equal(t, a, b)
	require.True(t, a[0].Address.Equal(f(1)))
	require.True(t, a[0].Balance.Equal(DefaultBalance))

	c := DeriveAccounts("seed1", 3, felt.Zero)
	require.False(t, a[0].PrivateKey.Equal(c[0].PrivateKey))
}

func writeGenesisFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAccounts(t *testing.T) {
	path := writeGenesisFile(t, `{"accounts": [
		{"address": "0x10", "balance": "0xf4240"},
		{"address": "0x20", "publicKey": "0xabc"}
	]}`)

	accts, err := LoadAccounts(path)
	require.NoError(t, err)
	require.Len(t, accts, 2)
	require.True(t, accts[0].Address.Equal(f(0x10)))
	require.True(t, accts[0].Balance.Equal(f(1_000_000)))
	require.True(t, accts[1].Balance.IsZero())
	require.False(t, accts[1].PublicKey.IsZero())
}

func TestLoadAccountsRejectsBadInput(t *testing.T) {
	for name, body := range map[string]string{
		"empty":       `{"accounts": []}`,
		"zeroAddress": `{"accounts": [{"address": "0x0"}]}`,
		"duplicate":   `{"accounts": [{"address": "0x1"}, {"address": "0x1"}]}`,
		"badBalance":  `{"accounts": [{"address": "0x1", "balance": "xyz"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := writeGenesisFile(t, body)
			_, err := LoadAccounts(path)
			require.Error(t, err)
		})
	}
}

func TestInitializeFromFile(t *testing.T) {
	path := writeGenesisFile(t, `{"accounts": [{"address": "0x77", "balance": "0x64"}]}`)

	env := kv.NewMem(kv.ChaindataTablesCfg)
	updater := trie.NewUpdater()
	store := provider.NewStore(env, updater)

	_, accts, err := Initialize(store, updater, Config{
		ChainID:         felt.FromBytesBE([]byte("KATANA")),
		Path:            path,
		StarknetVersion: "0.13.4",
	})
	require.NoError(t, err)
	require.Len(t, accts, 1)

	require.NoError(t, store.View(func(p *provider.Provider) error {
		bal, err := p.StorageAt(provider.Latest(), executor.FeeTokenAddress, executor.BalanceSlot(f(0x77)))
		require.NoError(t, err)
		require.True(t, bal.Equal(f(0x64)))

		ch, err := p.ClassHashAt(provider.Latest(), f(0x77))
		require.NoError(t, err)
		require.True(t, ch.Equal(executor.AccountClassHash))
		return nil
	}))
}
