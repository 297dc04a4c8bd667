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

package executor

import (
	"errors"

	"github.com/katana-sequencer/katana/internal/classcache"
	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/provider"
)

// ProviderState adapts a snapshot-bound provider to BaseState. Reads are
// at `latest`; on a virgin database (no head yet) every state read is
// zero, which is exactly the pre-genesis world the first block executes
// against.
//
// Cache is the process-wide class registry; classes are immutable once
// declared, so one cache is shared by every snapshot. A nil Cache reads
// straight from the provider (tests, offline tools).
type ProviderState struct {
	P     *provider.Provider
	Cache *classcache.Cache
}

func zeroOnNoBlock(v felt.Felt, err error) (felt.Felt, error) {
	if errors.Is(err, provider.ErrBlockNotFound) {
		return felt.Zero, nil
	}
	return v, err
}

func (s ProviderState) Nonce(addr felt.Felt) (felt.Felt, error) {
	return zeroOnNoBlock(s.P.NonceAt(provider.Latest(), addr))
}

func (s ProviderState) ClassHash(addr felt.Felt) (felt.Felt, error) {
	return zeroOnNoBlock(s.P.ClassHashAt(provider.Latest(), addr))
}

func (s ProviderState) Storage(addr, key felt.Felt) (felt.Felt, error) {
	return zeroOnNoBlock(s.P.StorageAt(provider.Latest(), addr, key))
}

func (s ProviderState) Class(hash felt.Felt) (classes.Artifact, error) {
	if s.Cache != nil {
		return s.Cache.Get(hash, func() (classes.Artifact, error) {
			return s.P.ClassByHash(hash)
		})
	}
	return s.P.ClassByHash(hash)
}

func (s ProviderState) ClassDeclared(hash felt.Felt) (bool, error) {
	_, found, err := s.P.ClassDeclaredAt(hash)
	return found, err
}

func (s ProviderState) BlockHash(number uint64) (felt.Felt, error) {
	h, err := s.P.HeaderByID(provider.Number(number))
	if errors.Is(err, provider.ErrBlockNotFound) {
		return felt.Zero, nil
	}
	if err != nil {
		return felt.Felt{}, err
	}
	return h.Hash(), nil
}
