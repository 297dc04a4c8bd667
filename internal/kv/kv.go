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

// Package kv is the memory-mapped, B+-tree-based ordered key-value store
// with ACID transactions. The rest of the tree only ever sees the
// Env/RoTx/RwTx/Cursor interfaces in this file; the libmdbx-backed
// implementation lives in mdbx.go.
package kv

// Table names a typed sub-database within the environment.
type Table string

// Cursor yields (key, value) pairs in key order, forward or backward, and
// supports seeking. Cursors are bound to the transaction that created them
// and are invalidated the moment that transaction commits or rolls back.
type Cursor interface {
	// First/Next/Last/Prev move the cursor and return io.EOF-free zero
	// values (nil, nil, nil) once iteration is exhausted.
	First() (k, v []byte, err error)
	Next() (k, v []byte, err error)
	Last() (k, v []byte, err error)
	Prev() (k, v []byte, err error)
	// Seek positions the cursor at the first key >= seek.
	Seek(seek []byte) (k, v []byte, err error)
	// NextDup/FirstDup navigate duplicate values for DupSort tables; they
	// return (nil, nil, nil) for tables that don't permit duplicates.
	NextDup() (k, v []byte, err error)
	FirstDup() (v []byte, err error)
	Close()
}

// RoTx is a read-only transaction: a stable point-in-time snapshot valid
// across every table for the transaction's entire lifetime. Multiple RoTx
// may coexist with each other and with at most one RwTx.
type RoTx interface {
	Get(table Table, key []byte) (val []byte, found bool, err error)
	Cursor(table Table) (Cursor, error)
	// Commit releases the snapshot. A read-only transaction that is
	// never committed is released when the caller drops its reference
	// (Rollback is the explicit form of that).
	Commit() error
	Rollback()
}

// RwTx is the single mutually-exclusive writer transaction. Mutations
// batch in memory and become atomically visible to future RoTx only on
// Commit; Rollback discards them entirely.
type RwTx interface {
	RoTx
	Put(table Table, key, val []byte) error
	Delete(table Table, key []byte) error
	// DeleteDup removes exactly one (key, val) pair from a DupSort table,
	// leaving the key's other duplicate values in place. On non-DupSort
	// tables it behaves like Delete.
	DeleteDup(table Table, key, val []byte) error
	Clear(table Table) error
}

// Env is the opened database environment: one per process, one writer at
// a time, any number of concurrent readers.
type Env interface {
	BeginRo() (RoTx, error)
	BeginRw() (RwTx, error)
	// SchemaVersion returns the on-disk schema version recorded when the
	// environment was created or last migrated.
	SchemaVersion() (major, minor, patch uint32)
	// Metrics exposes the engine's metric set for registration against
	// the process-wide registry at node start.
	Metrics() *Metrics
	Close() error
}

// Stats is a point-in-time snapshot of per-table entry and page counts
// plus the environment-wide freelist size.
type Stats struct {
	PerTable  map[Table]TableStats
	Freelist  uint64
}

// TableStats holds the size/entry-count pair for one table.
type TableStats struct {
	Entries uint64
	Pages   uint64
}
