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

package kv

import "errors"

// Failure modes
var (
	// ErrMapFull is returned when a write still does not fit after the
	// engine has grown the map and retried it once (see
	// mdbxEnv.growAndRetry).
	ErrMapFull = errors.New("kv: map full")
	// ErrCorruption is fatal: the process should log at error level and
	// exit(2).
	ErrCorruption = errors.New("kv: database corruption detected")
	// ErrVersionMismatch means the on-disk schema is newer than the
	// code knows how to read; the caller must migrate or downgrade.
	ErrVersionMismatch = errors.New("kv: schema version mismatch")
	// ErrWriteConflict should never surface to callers: writers are
	// serialized by construction. Kept as a named sentinel purely so an
	// internal assertion failure has somewhere to point.
	ErrWriteConflict = errors.New("kv: write conflict")
)

// IOError wraps an underlying I/O failure from the backing store.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return "kv: io error during " + e.Op + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }
