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
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/katana-sequencer/katana/internal/block"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/genesis"
	"github.com/katana-sequencer/katana/internal/kv"
	"github.com/katana-sequencer/katana/internal/provider"
	"github.com/katana-sequencer/katana/internal/state"
	"github.com/katana-sequencer/katana/internal/trie"
)

func f(x uint64) felt.Felt { return felt.FromUint64(x) }

// buildChain seeds genesis plus n extra empty-ish blocks, each touching
// one storage slot so every block has a distinct state root.
func buildChain(t *testing.T, n int) (kv.Env, *trie.Updater) {
	t.Helper()
	env := kv.NewMem(kv.ChaindataTablesCfg)
	updater := trie.NewUpdater()
	store := provider.NewStore(env, updater)

	_, _, err := genesis.Initialize(store, updater, genesis.Config{
		ChainID:          felt.FromBytesBE([]byte("KATANA")),
		Seed:             "seed0",
		Accounts:         1,
		SequencerAddress: f(0x5e9),
		StarknetVersion:  "0.13.4",
		Timestamp:        100,
	})
	require.NoError(t, err)

	parent, err := headerAt(store, 0)
	require.NoError(t, err)

	for i := 1; i <= n; i++ {
		u := state.New()
		u.StorageDiffs[state.StorageKey{Address: f(0x9), Key: f(1)}] = f(uint64(i))

		w, tx, err := store.Writer()
		require.NoError(t, err)
		root, err := updater.ApplyBlock(tx, uint64(i), u)
		require.NoError(t, err)
		h := block.Header{
			Number:          uint64(i),
			ParentHash:      parent.Hash(),
			Timestamp:       100 + uint64(i),
			StateRoot:       root,
			StarknetVersion: "0.13.4",
		}
		require.NoError(t, w.InsertBlockWithStatesAndReceipts(h, nil, u, nil, nil))
		require.NoError(t, tx.Commit())
		parent = h
	}
	return env, updater
}

func headerAt(store *provider.Store, n uint64) (block.Header, error) {
	var h block.Header
	err := store.View(func(p *provider.Provider) error {
		var err error
		h, err = p.HeaderByID(provider.Number(n))
		return err
	})
	return h, err
}

func TestPipelineAdvancesAllStages(t *testing.T) {
	env, updater := buildChain(t, 4)
	p := NewPipeline(env, zap.NewNop(), Default(updater)...)

	require.NoError(t, p.Run(context.Background(), 4))

	for _, id := range []string{StageHeaders, StageBodies, StageExecution, StageTrieBuild, StageFinalize} {
		cp, found, err := p.Checkpoint(id)
		require.NoError(t, err)
		require.True(t, found, id)
		require.EqualValues(t, 4, cp, id)
	}
}

func TestPipelineResumesFromCheckpoint(t *testing.T) {
	env, updater := buildChain(t, 4)
	p := NewPipeline(env, zap.NewNop(), Default(updater)...)

	require.NoError(t, p.Run(context.Background(), 2))
	cp, found, err := p.Checkpoint(StageHeaders)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 2, cp)

	// Second run picks up where the first stopped.
	require.NoError(t, p.Run(context.Background(), 4))
	cp, _, err = p.Checkpoint(StageFinalize)
	require.NoError(t, err)
	require.EqualValues(t, 4, cp)
}

func TestStageNeverPassesUpstream(t *testing.T) {
	env, updater := buildChain(t, 4)

	// Pin Headers at 1 by pre-writing its checkpoint, then run the full
	// pipeline to target 1 and check Bodies stays at or below it.
	tx, err := env.BeginRw()
	require.NoError(t, err)
	require.NoError(t, writeCheckpoint(tx, StageHeaders, 1))
	require.NoError(t, tx.Commit())

	p := NewPipeline(env, zap.NewNop(), Headers{}, Bodies{}, Execution{}, TrieBuild{Updater: updater}, Finalize{})
	require.NoError(t, p.Run(context.Background(), 1))

	cp, found, err := p.Checkpoint(StageBodies)
	require.NoError(t, err)
	require.True(t, found)
	require.LessOrEqual(t, cp, uint64(1))
}

func TestFailureTruncatesCheckpoints(t *testing.T) {
	env, updater := buildChain(t, 4)
	p := NewPipeline(env, zap.NewNop(), Default(updater)...)
	require.NoError(t, p.Run(context.Background(), 4))

	// Re-run the same pipeline targeting 5 with block 5 absent: the
	// Headers stage fails at 5 and every checkpoint is left at 4.
	require.Error(t, p.Run(context.Background(), 5))
	for _, id := range []string{StageHeaders, StageBodies, StageExecution, StageTrieBuild, StageFinalize} {
		cp, found, err := p.Checkpoint(id)
		require.NoError(t, err)
		require.True(t, found, id)
		require.EqualValues(t, 4, cp, id)
	}
}
