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

package syncstage

import (
	"context"
	"encoding/binary"
	"errors"

	codecv1 "github.com/katana-sequencer/katana/internal/codec/v1"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/kv"
	"github.com/katana-sequencer/katana/internal/state"
	"github.com/katana-sequencer/katana/internal/trie"
)

func u64Key(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// firstBlock converts a checkpoint to the first block the stage still
// has to process.
func firstBlock(checkpoint uint64) uint64 {
	if checkpoint == noCheckpoint {
		return 0
	}
	return checkpoint + 1
}

// Headers verifies the header chain is gap-free and parent-hash linked.
type Headers struct{}

func (Headers) ID() string { return StageHeaders }

func (Headers) Run(ctx context.Context, tx kv.RwTx, from, target uint64) (uint64, error) {
	var prevHash felt.Felt
	start := firstBlock(from)
	if start > 0 {
		v, found, err := tx.Get(kv.Headers, u64Key(start-1))
		if err != nil {
			return from, err
		}
		if !found {
			return from, &StageError{Stage: StageHeaders, Block: start - 1, Err: errors.New("checkpointed header missing")}
		}
		h, err := codecv1.DecodeHeader(v)
		if err != nil {
			return from, &StageError{Stage: StageHeaders, Block: start - 1, Err: err}
		}
		prevHash = h.Hash()
	}

	for n := start; n <= target; n++ {
		if err := ctx.Err(); err != nil {
			return n - 1, err
		}
		v, found, err := tx.Get(kv.Headers, u64Key(n))
		if err != nil {
			return n - 1, err
		}
		if !found {
			return n - 1, &StageError{Stage: StageHeaders, Block: n, Err: errors.New("header missing")}
		}
		h, err := codecv1.DecodeHeader(v)
		if err != nil {
			return n - 1, &StageError{Stage: StageHeaders, Block: n, Err: err}
		}
		if h.Number != n {
			return n - 1, &StageError{Stage: StageHeaders, Block: n, Err: errors.New("header number mismatch")}
		}
		if n > 0 && !h.ParentHash.Equal(prevHash) {
			return n - 1, &StageError{Stage: StageHeaders, Block: n, Err: errors.New("parent hash mismatch")}
		}
		prevHash = h.Hash()
	}
	return target, nil
}

// Bodies verifies body indices and the receipts/tx-count equality for
// every block.
type Bodies struct{}

func (Bodies) ID() string { return StageBodies }

func (Bodies) Run(ctx context.Context, tx kv.RwTx, from, target uint64) (uint64, error) {
	for n := firstBlock(from); n <= target; n++ {
		if err := ctx.Err(); err != nil {
			return n - 1, err
		}
		v, found, err := tx.Get(kv.BlockBodyIndices, u64Key(n))
		if err != nil {
			return n - 1, err
		}
		if !found || len(v) != 16 {
			return n - 1, &StageError{Stage: StageBodies, Block: n, Err: errors.New("body indices missing")}
		}
		first := binary.BigEndian.Uint64(v[:8])
		count := binary.BigEndian.Uint64(v[8:])
		for i := uint64(0); i < count; i++ {
			if _, found, err := tx.Get(kv.Transactions, u64Key(first+i)); err != nil || !found {
				return n - 1, &StageError{Stage: StageBodies, Block: n, Err: errors.New("transaction missing")}
			}
			if _, found, err := tx.Get(kv.Receipts, u64Key(first+i)); err != nil || !found {
				return n - 1, &StageError{Stage: StageBodies, Block: n, Err: errors.New("receipt missing")}
			}
		}
	}
	return target, nil
}

// Execution verifies each block's StateUpdates decodes and upholds the
// declared-class-artifact invariant. Database migration by re-execution
// replays these updates; validating them here is what makes that replay
// safe to resume.
type Execution struct{}

func (Execution) ID() string { return StageExecution }

func (Execution) Run(ctx context.Context, tx kv.RwTx, from, target uint64) (uint64, error) {
	for n := firstBlock(from); n <= target; n++ {
		if err := ctx.Err(); err != nil {
			return n - 1, err
		}
		u, err := readStateUpdates(tx, n)
		if err != nil {
			return n - 1, &StageError{Stage: StageExecution, Block: n, Err: err}
		}
		if err := u.Validate(); err != nil {
			return n - 1, &StageError{Stage: StageExecution, Block: n, Err: err}
		}
	}
	return target, nil
}

// TrieBuild re-applies each block's StateUpdates through the trie and
// checks the resulting root against the committed header. Re-applying
// an already-built block is idempotent (nodes are content-addressed), so
// resuming mid-way is safe.
type TrieBuild struct {
	Updater *trie.Updater
}

func (TrieBuild) ID() string { return StageTrieBuild }

func (s TrieBuild) Run(ctx context.Context, tx kv.RwTx, from, target uint64) (uint64, error) {
	for n := firstBlock(from); n <= target; n++ {
		if err := ctx.Err(); err != nil {
			return n - 1, err
		}
		u, err := readStateUpdates(tx, n)
		if err != nil {
			return n - 1, &StageError{Stage: StageTrieBuild, Block: n, Err: err}
		}
		root, err := s.Updater.ApplyBlock(tx, n, u)
		if err != nil {
			return n - 1, &StageError{Stage: StageTrieBuild, Block: n, Err: err}
		}
		hv, found, err := tx.Get(kv.Headers, u64Key(n))
		if err != nil || !found {
			return n - 1, &StageError{Stage: StageTrieBuild, Block: n, Err: errors.New("header missing")}
		}
		h, err := codecv1.DecodeHeader(hv)
		if err != nil {
			return n - 1, &StageError{Stage: StageTrieBuild, Block: n, Err: err}
		}
		if !h.StateRoot.Equal(root) {
			return n - 1, &StageError{Stage: StageTrieBuild, Block: n, Err: trie.ErrInconsistentRoot}
		}
	}
	return target, nil
}

// Finalize publishes the verified head into DatabaseInfo, making the
// pipeline's progress visible to providers.
type Finalize struct{}

func (Finalize) ID() string { return StageFinalize }

func (Finalize) Run(ctx context.Context, tx kv.RwTx, from, target uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return from, err
	}
	if err := tx.Put(kv.DatabaseInfo, []byte("head"), u64Key(target)); err != nil {
		return from, err
	}
	return target, nil
}

func readStateUpdates(tx kv.RwTx, n uint64) (*state.StateUpdates, error) {
	v, found, err := tx.Get(kv.StateUpdates, u64Key(n))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("state updates missing")
	}
	return codecv1.DecodeStateUpdates(v)
}

// Default returns the full pipeline in run order.
func Default(updater *trie.Updater) []Stage {
	return []Stage{Headers{}, Bodies{}, Execution{}, TrieBuild{Updater: updater}, Finalize{}}
}
