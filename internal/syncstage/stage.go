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

// Package syncstage is the linear staged pipeline:
// Headers → Bodies → Execution → TrieBuild → Finalize, each stage
// checkpointed in the StageCheckpoints table so a restart resumes every
// stage where it left off. A stage never advances past the minimum of
// its upstream stages' checkpoints; a failure at block N truncates every
// stage back to N-1.
package syncstage

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/katana-sequencer/katana/internal/kv"
)

// Stage ids, in pipeline order.
const (
	StageHeaders   = "Headers"
	StageBodies    = "Bodies"
	StageExecution = "Execution"
	StageTrieBuild = "TrieBuild"
	StageFinalize  = "Finalize"
)

// Stage advances one concern of the chain from `from` (exclusive, the
// stage's checkpoint; ^0 means virgin) to `target` (inclusive). It
// returns the new checkpoint: target on success, the last good block
// otherwise alongside the error.
type Stage interface {
	ID() string
	Run(ctx context.Context, tx kv.RwTx, from, target uint64) (uint64, error)
}

// StageError pins a failure to the block that caused it, so the
// pipeline knows where to truncate.
type StageError struct {
	Stage string
	Block uint64
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("syncstage: stage %s failed at block %d: %v", e.Stage, e.Block, e.Err)
}
func (e *StageError) Unwrap() error { return e.Err }

// noCheckpoint marks a stage that has never run. Block numbers start at
// 0, so "checkpoint 0" must mean "block 0 done"; the sentinel lives
// outside the block-number space.
const noCheckpoint = ^uint64(0)

func checkpointKey(stage string) []byte { return []byte(stage) }

func readCheckpoint(tx kv.RoTx, stage string) (uint64, error) {
	v, found, err := tx.Get(kv.StageCheckpoints, checkpointKey(stage))
	if err != nil {
		return 0, err
	}
	if !found {
		return noCheckpoint, nil
	}
	return binary.BigEndian.Uint64(v), nil
}

func writeCheckpoint(tx kv.RwTx, stage string, block uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], block)
	return tx.Put(kv.StageCheckpoints, checkpointKey(stage), b[:])
}

// Pipeline runs its stages in order against one environment.
type Pipeline struct {
	env    kv.Env
	stages []Stage
	log    *zap.Logger
}

func NewPipeline(env kv.Env, log *zap.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{env: env, stages: stages, log: log}
}

// Run advances every stage to target (inclusive). On a stage failure at
// block N, every stage's checkpoint is truncated back to N-1 and the
// error is returned; the caller restarts the pipeline.
func (p *Pipeline) Run(ctx context.Context, target uint64) error {
	for i, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx, err := p.env.BeginRw()
		if err != nil {
			return err
		}

		cp, err := readCheckpoint(tx, stage.ID())
		if err != nil {
			tx.Rollback()
			return err
		}

		// Upstream bound: never run past the slowest earlier stage. A
		// virgin upstream means nothing is verified yet, so this stage
		// has nothing to do either.
		bound := target
		virginUpstream := false
		for _, up := range p.stages[:i] {
			upCp, err := readCheckpoint(tx, up.ID())
			if err != nil {
				tx.Rollback()
				return err
			}
			if upCp == noCheckpoint {
				virginUpstream = true
				break
			}
			if upCp < bound {
				bound = upCp
			}
		}
		if virginUpstream || (cp != noCheckpoint && cp >= bound) {
			tx.Rollback()
			continue
		}

		newCp, runErr := stage.Run(ctx, tx, cp, bound)
		if runErr != nil {
			tx.Rollback()
			var serr *StageError
			if asStageError(runErr, &serr) {
				if terr := p.truncate(serr.Block); terr != nil {
					return terr
				}
			}
			return runErr
		}
		if err := writeCheckpoint(tx, stage.ID(), newCp); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		p.log.Debug("stage advanced", zap.String("stage", stage.ID()), zap.Uint64("checkpoint", newCp))
	}
	return nil
}

func asStageError(err error, out **StageError) bool {
	serr, ok := err.(*StageError)
	if ok {
		*out = serr
	}
	return ok
}

// truncate rewinds every stage's checkpoint to failed-1 (or clears them
// entirely when the failure was at block 0).
func (p *Pipeline) truncate(failed uint64) error {
	tx, err := p.env.BeginRw()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stage := range p.stages {
		if failed == 0 {
			if err := tx.Delete(kv.StageCheckpoints, checkpointKey(stage.ID())); err != nil {
				return err
			}
			continue
		}
		cp, err := readCheckpoint(tx, stage.ID())
		if err != nil {
			return err
		}
		if cp == noCheckpoint || cp < failed {
			continue
		}
		if err := writeCheckpoint(tx, stage.ID(), failed-1); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Checkpoint reads a stage's current checkpoint; found is false for a
// stage that has never completed a block.
func (p *Pipeline) Checkpoint(stage string) (uint64, bool, error) {
	tx, err := p.env.BeginRo()
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()
	cp, err := readCheckpoint(tx, stage)
	if err != nil {
		return 0, false, err
	}
	if cp == noCheckpoint {
		return 0, false, nil
	}
	return cp, true, nil
}
