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

	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/executor"
	"github.com/katana-sequencer/katana/internal/felt"
)

// State layers the local chain over the remote chain at the fork point:
// a read that the local tables answer (anything written since the fork)
// wins; otherwise the read falls through to the cached remote at block
// F. It satisfies executor.BaseState, so the executor runs unchanged on
// a forked node.
//
// A local write of an explicit zero is indistinguishable from "never
// written locally" and falls through to the remote value; see DESIGN.md.
type State struct {
	Local   executor.BaseState
	Backend *Backend
	Ctx     context.Context
}

var _ executor.BaseState = State{}

func (s State) Storage(addr, key felt.Felt) (felt.Felt, error) {
	v, err := s.Local.Storage(addr, key)
	if err != nil || !v.IsZero() {
		return v, err
	}
	return s.Backend.StorageAt(s.Ctx, addr, key, s.Backend.ForkBlock())
}

func (s State) Nonce(addr felt.Felt) (felt.Felt, error) {
	v, err := s.Local.Nonce(addr)
	if err != nil || !v.IsZero() {
		return v, err
	}
	return s.Backend.NonceAt(s.Ctx, addr, s.Backend.ForkBlock())
}

func (s State) ClassHash(addr felt.Felt) (felt.Felt, error) {
	v, err := s.Local.ClassHash(addr)
	if err != nil || !v.IsZero() {
		return v, err
	}
	return s.Backend.ClassHashAt(s.Ctx, addr, s.Backend.ForkBlock())
}

// Class resolves locally only: class artifacts are not fetched over the
// fork (executing against a remote-declared class needs the artifact to
// be re-declared locally first).
func (s State) Class(hash felt.Felt) (classes.Artifact, error) {
	return s.Local.Class(hash)
}

func (s State) ClassDeclared(hash felt.Felt) (bool, error) {
	return s.Local.ClassDeclared(hash)
}

func (s State) BlockHash(number uint64) (felt.Felt, error) {
	if number <= s.Backend.ForkBlock() {
		return s.Backend.BlockHashByNumber(s.Ctx, number)
	}
	return s.Local.BlockHash(number)
}
