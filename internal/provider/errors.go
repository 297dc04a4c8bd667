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

// Package provider is the typed facade over internal/kv: readers, the
// sole block-granularity writer, and snapshot factories. No Provider or
// Writer method opens its own transaction: each is bound to the one
// kv.RoTx/kv.RwTx it was built from (Store opens those), which is what
// makes two reads through the same Provider observe the same snapshot.
package provider

import (
	"errors"
	"fmt"

	"github.com/katana-sequencer/katana/internal/felt"
)

// Errors surfaced by readers and the writer.
var (
	ErrBlockNotFound               = errors.New("provider: block not found")
	ErrTxNotFound                  = errors.New("provider: transaction not found")
	ErrClassNotFound               = errors.New("provider: class not found")
	ErrStateRootMismatch           = errors.New("provider: computed state root does not match header")
	ErrDeclaredClassMissingArtifact = errors.New("provider: declared class has no accompanying artifact")
)

// DatabaseError wraps any failure surfaced by the underlying kv.Env/Tx,
// so callers can branch on storage failures without unwrapping
// engine internals.
type DatabaseError struct{ Err error }

func (e *DatabaseError) Error() string { return fmt.Sprintf("provider: database error: %v", e.Err) }
func (e *DatabaseError) Unwrap() error { return e.Err }

func dbErr(err error) error {
	if err == nil {
		return nil
	}
	return &DatabaseError{Err: err}
}

// ClassHashError carries the offending class hash alongside
// ErrClassNotFound/ErrDeclaredClassMissingArtifact so callers can report
// which class failed without string-matching the error text.
type ClassHashError struct {
	ClassHash felt.Felt
	Inner     error
}

func (e *ClassHashError) Error() string {
	return fmt.Sprintf("%v: class %s", e.Inner, e.ClassHash.Hex())
}
func (e *ClassHashError) Unwrap() error { return e.Inner }
