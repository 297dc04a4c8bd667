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

// Package config is the assembled node configuration. cmd/katana fills
// it from flags and environment variables; flags are the source of
// truth, env vars (KATANA_DB_DIR, KATANA_CHAIN_ID) fill gaps.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/katana-sequencer/katana/internal/felt"
)

// DefaultChainID is "KATANA" (0x4b4154414e41).
var DefaultChainID = felt.FromBytesBE([]byte("KATANA"))

// Config is everything the node needs to start.
type Config struct {
	HTTPAddr   string
	HTTPPort   int
	RPCMethods []string

	DBDir string
	Chain string

	Dev       bool
	BlockTime time.Duration
	NoMining  bool

	ForkURL   string
	ForkBlock uint64

	DisableFee  bool
	GenesisPath string
	Seed        string
	Accounts    int

	MetricsPort int
	Explorer    bool

	LogLevel string
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		HTTPAddr: "127.0.0.1",
		HTTPPort: 5050,
		Seed:     "0",
		Accounts: 10,
	}
}

// ApplyEnv fills unset fields from the environment.
func (c *Config) ApplyEnv() {
	if c.DBDir == "" {
		c.DBDir = os.Getenv("KATANA_DB_DIR")
	}
	if c.Chain == "" {
		c.Chain = os.Getenv("KATANA_CHAIN_ID")
	}
}

// ChainID resolves the configured chain name to its id felt.
func (c *Config) ChainID() felt.Felt {
	if c.Chain == "" {
		return DefaultChainID
	}
	if f, err := felt.FromHex(c.Chain); err == nil {
		return f
	}
	return felt.FromBytesBE([]byte(c.Chain))
}

// Validate rejects inconsistent combinations; cmd/katana maps the error
// to exit code 1 (configuration error).
func (c *Config) Validate() error {
	if c.ForkURL == "" && c.ForkBlock != 0 {
		return errors.New("config: --fork.block requires --fork.url")
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return errors.New("config: invalid --http.port")
	}
	if c.Accounts < 0 {
		return errors.New("config: --accounts must be non-negative")
	}
	if c.BlockTime < 0 {
		return errors.New("config: --block-time must be non-negative")
	}
	return nil
}
