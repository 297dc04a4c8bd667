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

package fork

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/kv"
)

// Cache-key namespaces within the ForkCache table. The cache is
// append-only and content-addressed by (kind, addr, key, block): a
// missing key triggers exactly one remote call whose result is stored
// before being returned.
const (
	kindStorage   byte = 's'
	kindNonce     byte = 'n'
	kindClassHash byte = 'c'
	kindBlockHash byte = 'b'
)

// Backend resolves reads at or below the fork point through the remote
// endpoint, caching results in the ForkCache table. Concurrent misses
// for the same key collapse into one remote call via singleflight.
type Backend struct {
	env       kv.Env
	remote    Remote
	forkBlock uint64
	sf        singleflight.Group
}

// NewBackend wires a read-through backend forking at forkBlock.
func NewBackend(env kv.Env, remote Remote, forkBlock uint64) *Backend {
	return &Backend{env: env, remote: remote, forkBlock: forkBlock}
}

// ForkBlock returns the fork point F.
func (b *Backend) ForkBlock() uint64 { return b.forkBlock }

func cacheKey(kind byte, blockNumber uint64, parts ...felt.Felt) []byte {
	out := make([]byte, 0, 9+32*len(parts))
	out = append(out, kind)
	var nb [8]byte
	for i := 0; i < 8; i++ {
		nb[i] = byte(blockNumber >> (56 - 8*i))
	}
	out = append(out, nb[:]...)
	for _, p := range parts {
		pb := p.Bytes()
		out = append(out, pb[:]...)
	}
	return out
}

// cached runs the read-through protocol for one key: cache hit, or one
// deduplicated remote fetch whose result is persisted before return.
func (b *Backend) cached(ctx context.Context, key []byte, fetch func(context.Context) (felt.Felt, error)) (felt.Felt, error) {
	tx, err := b.env.BeginRo()
	if err != nil {
		return felt.Felt{}, err
	}
	v, found, err := tx.Get(kv.ForkCache, key)
	tx.Rollback()
	if err != nil {
		return felt.Felt{}, err
	}
	if found {
		return felt.FromBytesBE(v), nil
	}

	res, err, _ := b.sf.Do(string(key), func() (any, error) {
		val, err := fetch(ctx)
		if err != nil {
			return felt.Felt{}, err
		}
		wtx, err := b.env.BeginRw()
		if err != nil {
			return felt.Felt{}, err
		}
		vb := val.Bytes()
		if err := wtx.Put(kv.ForkCache, key, vb[:]); err != nil {
			wtx.Rollback()
			return felt.Felt{}, err
		}
		if err := wtx.Commit(); err != nil {
			return felt.Felt{}, err
		}
		return val, nil
	})
	if err != nil {
		return felt.Felt{}, err
	}
	return res.(felt.Felt), nil
}

// StorageAt reads a remote storage slot at blockNumber (≤ fork point).
func (b *Backend) StorageAt(ctx context.Context, addr, key felt.Felt, blockNumber uint64) (felt.Felt, error) {
	if blockNumber > b.forkBlock {
		blockNumber = b.forkBlock
	}
	return b.cached(ctx, cacheKey(kindStorage, blockNumber, addr, key), func(ctx context.Context) (felt.Felt, error) {
		return b.remote.StorageAt(ctx, addr, key, blockNumber)
	})
}

// NonceAt reads a remote nonce at blockNumber (≤ fork point).
func (b *Backend) NonceAt(ctx context.Context, addr felt.Felt, blockNumber uint64) (felt.Felt, error) {
	if blockNumber > b.forkBlock {
		blockNumber = b.forkBlock
	}
	return b.cached(ctx, cacheKey(kindNonce, blockNumber, addr), func(ctx context.Context) (felt.Felt, error) {
		return b.remote.NonceAt(ctx, addr, blockNumber)
	})
}

// ClassHashAt reads a remote class hash at blockNumber (≤ fork point).
func (b *Backend) ClassHashAt(ctx context.Context, addr felt.Felt, blockNumber uint64) (felt.Felt, error) {
	if blockNumber > b.forkBlock {
		blockNumber = b.forkBlock
	}
	return b.cached(ctx, cacheKey(kindClassHash, blockNumber, addr), func(ctx context.Context) (felt.Felt, error) {
		return b.remote.ClassHashAt(ctx, addr, blockNumber)
	})
}

// BlockHashByNumber reads a remote block hash (≤ fork point).
func (b *Backend) BlockHashByNumber(ctx context.Context, blockNumber uint64) (felt.Felt, error) {
	return b.cached(ctx, cacheKey(kindBlockHash, blockNumber), func(ctx context.Context) (felt.Felt, error) {
		return b.remote.BlockHashByNumber(ctx, blockNumber)
	})
}
