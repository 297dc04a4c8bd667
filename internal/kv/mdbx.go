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

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/erigontech/mdbx-go/mdbx"
)

const schemaVersionFile = "schema_version"

// mdbxIntegerKeyFlag is MDBX_INTEGERKEY (see mdbx.h). The mdbx-go binding
// does not expose this flag as a named constant, so its documented value
// is used directly.
const mdbxIntegerKeyFlag = 0x08

// currentSchema is the code's own schema version. OpenMdbx refuses to
// auto-upgrade a database whose on-disk version is newer than this.
var currentSchema = [3]uint32{1, 0, 0}

// mdbxEnv wraps a libmdbx environment as a kv.Env. All table DBI handles
// are opened once, inside the very first write transaction, so every
// later transaction can address tables by the Table name without
// reopening them.
type mdbxEnv struct {
	env     *mdbx.Env
	dbis    map[Table]mdbx.DBI
	mu      sync.RWMutex
	metrics *Metrics
	major, minor, patch uint32
}

// OpenMdbx opens (creating if absent) the libmdbx environment rooted at
// dir/db, enforcing the schema-version check
func OpenMdbx(dir string, cfg Cfg) (Env, error) {
	dbDir := filepath.Join(dir, "db")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Err: err}
	}

	onDisk, err := readSchemaVersion(dbDir)
	if err != nil {
		return nil, err
	}
	if onDisk != nil && versionGreater(*onDisk, currentSchema) {
		return nil, fmt.Errorf("%w: on-disk %v newer than code %v", ErrVersionMismatch, *onDisk, currentSchema)
	}

	env, err := mdbx.NewEnv(mdbx.Default)
	if err != nil {
		return nil, &IOError{Op: "mdbx.NewEnv", Err: err}
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(len(cfg)+8)); err != nil {
		return nil, &IOError{Op: "SetOption(MaxDB)", Err: err}
	}
	if err := env.Open(dbDir, mdbx.NoTLS, 0o644); err != nil {
		return nil, &IOError{Op: "env.Open", Err: err}
	}

	e := &mdbxEnv{env: env, dbis: make(map[Table]mdbx.DBI), metrics: NewMetrics()}
	if err := e.openTables(cfg); err != nil {
		env.Close()
		return nil, err
	}

	if onDisk == nil {
		if err := writeSchemaVersion(dbDir, currentSchema); err != nil {
			env.Close()
			return nil, err
		}
	}
	version := currentSchema
	if onDisk != nil {
		version = *onDisk
	}
	e.major, e.minor, e.patch = version[0], version[1], version[2]
	return e, nil
}

func (e *mdbxEnv) openTables(cfg Cfg) error {
	return e.env.Update(func(txn *mdbx.Txn) error {
		for table, item := range cfg {
			flags := uint(mdbx.Create)
			if item.Flags&DupSort != 0 {
				flags |= uint(mdbx.DupSort)
			}
			if item.Flags&IntegerKey != 0 {
				flags |= mdbxIntegerKeyFlag
			}
			dbi, err := txn.OpenDBI(string(table), flags, nil, nil)
			if err != nil {
				return fmt.Errorf("open table %s: %w", table, err)
			}
			e.dbis[table] = dbi
		}
		return nil
	})
}

func (e *mdbxEnv) SchemaVersion() (uint32, uint32, uint32) { return e.major, e.minor, e.patch }

func (e *mdbxEnv) dbi(table Table) (mdbx.DBI, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.dbis[table]
	return d, ok
}

func (e *mdbxEnv) BeginRo() (RoTx, error) {
	e.metrics.RoTxCreated.Inc()
	txn, err := e.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, &IOError{Op: "BeginTxn(ro)", Err: err}
	}
	return &mdbxTx{env: e, txn: txn, readonly: true}, nil
}

func (e *mdbxEnv) BeginRw() (RwTx, error) {
	e.metrics.RwTxCreated.Inc()
	txn, err := e.env.BeginTxn(nil, 0)
	if err != nil {
		return nil, &IOError{Op: "BeginTxn(rw)", Err: err}
	}
	return &mdbxTx{env: e, txn: txn, readonly: false}, nil
}

func (e *mdbxEnv) Metrics() *Metrics { return e.metrics }

func (e *mdbxEnv) Close() error { e.env.Close(); return nil }

// growAndRetry doubles the map size once: a Put hitting MapFull grows
// the map and retries exactly once before surfacing ErrMapFull.
func (e *mdbxEnv) growAndRetry() error {
	info, err := e.env.Info(nil)
	if err != nil {
		return &IOError{Op: "env.Info", Err: err}
	}
	newSize := info.Geo.Current * 2
	return e.env.SetGeometry(-1, -1, int(newSize), -1, -1, -1)
}

type mdbxTx struct {
	env      *mdbxEnv
	txn      *mdbx.Txn
	readonly bool
	done     bool
}

func (t *mdbxTx) Get(table Table, key []byte) ([]byte, bool, error) {
	dbi, ok := t.env.dbi(table)
	if !ok {
		return nil, false, fmt.Errorf("kv: unknown table %s", table)
	}
	v, err := t.txn.Get(dbi, key)
	if err != nil {
		if mdbx.IsNotFound(err) {
			t.env.metrics.GetMisses.Inc()
			return nil, false, nil
		}
		return nil, false, &IOError{Op: "Get", Err: err}
	}
	t.env.metrics.GetHits.Inc()
	return v, true, nil
}

func (t *mdbxTx) Cursor(table Table) (Cursor, error) {
	dbi, ok := t.env.dbi(table)
	if !ok {
		return nil, fmt.Errorf("kv: unknown table %s", table)
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, &IOError{Op: "OpenCursor", Err: err}
	}
	return &mdbxCursor{c: c}, nil
}

func (t *mdbxTx) Put(table Table, key, val []byte) error {
	if t.readonly {
		return fmt.Errorf("kv: Put on read-only transaction")
	}
	dbi, ok := t.env.dbi(table)
	if !ok {
		return fmt.Errorf("kv: unknown table %s", table)
	}
	if err := t.txn.Put(dbi, key, val, 0); err != nil {
		if mdbx.IsMapFull(err) {
			if gerr := t.env.growAndRetry(); gerr == nil {
				if err2 := t.txn.Put(dbi, key, val, 0); err2 == nil {
					t.env.metrics.Puts.Inc()
					return nil
				}
			}
			return ErrMapFull
		}
		t.env.metrics.PutFailures.Inc()
		return &IOError{Op: "Put", Err: err}
	}
	t.env.metrics.Puts.Inc()
	return nil
}

func (t *mdbxTx) Delete(table Table, key []byte) error {
	if t.readonly {
		return fmt.Errorf("kv: Delete on read-only transaction")
	}
	dbi, ok := t.env.dbi(table)
	if !ok {
		return fmt.Errorf("kv: unknown table %s", table)
	}
	if err := t.txn.Del(dbi, key, nil); err != nil {
		if mdbx.IsNotFound(err) {
			return nil
		}
		t.env.metrics.DeleteFailures.Inc()
		return &IOError{Op: "Del", Err: err}
	}
	t.env.metrics.Deletes.Inc()
	return nil
}

func (t *mdbxTx) DeleteDup(table Table, key, val []byte) error {
	if t.readonly {
		return fmt.Errorf("kv: DeleteDup on read-only transaction")
	}
	dbi, ok := t.env.dbi(table)
	if !ok {
		return fmt.Errorf("kv: unknown table %s", table)
	}
	if err := t.txn.Del(dbi, key, val); err != nil {
		if mdbx.IsNotFound(err) {
			return nil
		}
		t.env.metrics.DeleteFailures.Inc()
		return &IOError{Op: "Del", Err: err}
	}
	t.env.metrics.Deletes.Inc()
	return nil
}

func (t *mdbxTx) Clear(table Table) error {
	if t.readonly {
		return fmt.Errorf("kv: Clear on read-only transaction")
	}
	dbi, ok := t.env.dbi(table)
	if !ok {
		return fmt.Errorf("kv: unknown table %s", table)
	}
	if err := t.txn.Drop(dbi, false); err != nil {
		return &IOError{Op: "Drop", Err: err}
	}
	t.env.metrics.Clears.Inc()
	return nil
}

func (t *mdbxTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if _, err := t.txn.Commit(); err != nil {
		if t.readonly {
			t.env.metrics.RoTxFailed.Inc()
		} else {
			t.env.metrics.CommitsFailed.Inc()
		}
		return &IOError{Op: "Commit", Err: err}
	}
	if !t.readonly {
		t.env.metrics.CommitsSucceeded.Inc()
	}
	return nil
}

func (t *mdbxTx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.txn.Abort()
	t.env.metrics.Aborts.Inc()
}

type mdbxCursor struct {
	c *mdbx.Cursor
}

func (c *mdbxCursor) First() ([]byte, []byte, error) { return c.op(mdbx.First) }
func (c *mdbxCursor) Next() ([]byte, []byte, error)  { return c.op(mdbx.Next) }
func (c *mdbxCursor) Last() ([]byte, []byte, error)  { return c.op(mdbx.Last) }
func (c *mdbxCursor) Prev() ([]byte, []byte, error)  { return c.op(mdbx.Prev) }

func (c *mdbxCursor) Seek(seek []byte) ([]byte, []byte, error) {
	k, v, err := c.c.Get(seek, nil, mdbx.SetRange)
	return c.result(k, v, err)
}

func (c *mdbxCursor) NextDup() ([]byte, []byte, error) { return c.op(mdbx.NextDup) }

func (c *mdbxCursor) FirstDup() ([]byte, error) {
	_, v, err := c.op(mdbx.FirstDup)
	return v, err
}

func (c *mdbxCursor) op(op uint) ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, op)
	return c.result(k, v, err)
}

func (c *mdbxCursor) result(k, v []byte, err error) ([]byte, []byte, error) {
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, &IOError{Op: "cursor.Get", Err: err}
	}
	return k, v, nil
}

func (c *mdbxCursor) Close() { c.c.Close() }

// The on-disk schema version file is exactly two bytes (major, minor) per
// the database layout; patch is tracked in-process only and is
// not part of the persisted compatibility contract.
func readSchemaVersion(dbDir string) (*[3]uint32, error) {
	b, err := os.ReadFile(filepath.Join(dbDir, schemaVersionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &IOError{Op: "read schema version", Err: err}
	}
	if len(b) != 2 {
		return nil, ErrCorruption
	}
	v := [3]uint32{uint32(b[0]), uint32(b[1]), 0}
	return &v, nil
}

func writeSchemaVersion(dbDir string, v [3]uint32) error {
	if v[0] > 255 || v[1] > 255 {
		return fmt.Errorf("kv: schema version %v does not fit the two-byte on-disk format", v)
	}
	b := []byte{byte(v[0]), byte(v[1])}
	if err := os.WriteFile(filepath.Join(dbDir, schemaVersionFile), b, 0o644); err != nil {
		return &IOError{Op: "write schema version", Err: err}
	}
	return nil
}

func versionGreater(a, b [3]uint32) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}
