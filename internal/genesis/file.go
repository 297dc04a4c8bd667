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
	"encoding/json"
	"fmt"
	"os"

	"github.com/katana-sequencer/katana/internal/felt"
)

// fileAccount is one entry of the --genesis JSON document.
type fileAccount struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey,omitempty"`
	Balance   string `json:"balance"`
}

type genesisFile struct {
	Accounts []fileAccount `json:"accounts"`
}

// LoadAccounts parses a --genesis file into the account set used in
// place of the seed-derived defaults:
//
//	{"accounts": [{"address": "0x1", "balance": "0xf4240"}]}
//
// Accounts loaded this way carry no private key (the file describes
// externally controlled accounts); a missing balance means unfunded.
func LoadAccounts(path string) ([]Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	var doc genesisFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("genesis: parse %s: %w", path, err)
	}
	if len(doc.Accounts) == 0 {
		return nil, fmt.Errorf("genesis: %s lists no accounts", path)
	}

	out := make([]Account, 0, len(doc.Accounts))
	seen := make(map[felt.Felt]struct{}, len(doc.Accounts))
	for i, fa := range doc.Accounts {
		addr, err := felt.FromHex(fa.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis: account %d address: %w", i, err)
		}
		if addr.IsZero() {
			return nil, fmt.Errorf("genesis: account %d has zero address", i)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("genesis: duplicate account address %s", addr.Hex())
		}
		seen[addr] = struct{}{}

		acct := Account{Address: addr}
		if fa.Balance != "" {
			if acct.Balance, err = felt.FromHex(fa.Balance); err != nil {
				return nil, fmt.Errorf("genesis: account %s balance: %w", addr.Hex(), err)
			}
		}
		if fa.PublicKey != "" {
			if acct.PublicKey, err = felt.FromHex(fa.PublicKey); err != nil {
				return nil, fmt.Errorf("genesis: account %s publicKey: %w", addr.Hex(), err)
			}
		}
		out = append(out, acct)
	}
	return out, nil
}
