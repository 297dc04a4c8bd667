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
	"bytes"
	"sort"
	"sync"
)

// memEnv is an in-memory Env used by unit tests and by `--dev` ephemeral
// nodes that don't want a libmdbx file on disk. It honors the same
// single-writer/multi-reader contract as mdbxEnv: BeginRw blocks until any
// prior writer has committed or rolled back.
type memEnv struct {
	mu      sync.Mutex
	writer  sync.Mutex
	tables  map[Table]*memTable
	metrics *Metrics
	cfg     Cfg
}

type memTable struct {
	dupSort bool
	data    map[string][][]byte // key -> values (len 1 unless dupSort)
}

// NewMem builds a fresh in-memory environment with every table from cfg
// pre-created, schema version fixed at the code's current version.
func NewMem(cfg Cfg) Env {
	e := &memEnv{tables: make(map[Table]*memTable), metrics: NewMetrics(), cfg: cfg}
	for t, item := range cfg {
		e.tables[t] = &memTable{dupSort: item.Flags&DupSort != 0, data: make(map[string][][]byte)}
	}
	return e
}

func (e *memEnv) SchemaVersion() (uint32, uint32, uint32) {
	return currentSchema[0], currentSchema[1], currentSchema[2]
}

func (e *memEnv) BeginRo() (RoTx, error) {
	e.metrics.RoTxCreated.Inc()
	snapshot := make(map[Table]*memTable, len(e.tables))
	e.mu.Lock()
	for t, tbl := range e.tables {
		snapshot[t] = tbl.clone()
	}
	e.mu.Unlock()
	return &memTx{env: e, tables: snapshot, readonly: true}, nil
}

func (e *memEnv) BeginRw() (RwTx, error) {
	e.metrics.RwTxCreated.Inc()
	e.writer.Lock()
	e.mu.Lock()
	working := make(map[Table]*memTable, len(e.tables))
	for t, tbl := range e.tables {
		working[t] = tbl.clone()
	}
	e.mu.Unlock()
	return &memTx{env: e, tables: working, readonly: false}, nil
}

func (e *memEnv) Metrics() *Metrics { return e.metrics }

func (e *memEnv) Close() error { return nil }

func (tb *memTable) clone() *memTable {
	out := &memTable{dupSort: tb.dupSort, data: make(map[string][][]byte, len(tb.data))}
	for k, v := range tb.data {
		cp := make([][]byte, len(v))
		copy(cp, v)
		out.data[k] = cp
	}
	return out
}

type memTx struct {
	env      *memEnv
	tables   map[Table]*memTable
	readonly bool
	done     bool
}

func (t *memTx) Get(table Table, key []byte) ([]byte, bool, error) {
	tbl, ok := t.tables[table]
	if !ok {
		return nil, false, errUnknownTable(table)
	}
	vs, ok := tbl.data[string(key)]
	if !ok || len(vs) == 0 {
		t.env.metrics.GetMisses.Inc()
		return nil, false, nil
	}
	t.env.metrics.GetHits.Inc()
	return vs[0], true, nil
}

func (t *memTx) Put(table Table, key, val []byte) error {
	if t.readonly {
		return errReadOnly("Put")
	}
	tbl, ok := t.tables[table]
	if !ok {
		return errUnknownTable(table)
	}
	if tbl.dupSort {
		// Duplicates are kept sorted by value bytes, matching libmdbx's
		// DupSort ordering so NextDup walks in the same order on both
		// backends.
		vs := tbl.data[string(key)]
		idx := sort.Search(len(vs), func(i int) bool { return bytes.Compare(vs[i], val) >= 0 })
		if idx < len(vs) && bytes.Equal(vs[idx], val) {
			t.env.metrics.Puts.Inc()
			return nil
		}
		vs = append(vs, nil)
		copy(vs[idx+1:], vs[idx:])
		vs[idx] = append([]byte(nil), val...)
		tbl.data[string(key)] = vs
	} else {
		tbl.data[string(key)] = [][]byte{append([]byte(nil), val...)}
	}
	t.env.metrics.Puts.Inc()
	return nil
}

func (t *memTx) Delete(table Table, key []byte) error {
	if t.readonly {
		return errReadOnly("Delete")
	}
	tbl, ok := t.tables[table]
	if !ok {
		return errUnknownTable(table)
	}
	delete(tbl.data, string(key))
	t.env.metrics.Deletes.Inc()
	return nil
}

func (t *memTx) DeleteDup(table Table, key, val []byte) error {
	if t.readonly {
		return errReadOnly("DeleteDup")
	}
	tbl, ok := t.tables[table]
	if !ok {
		return errUnknownTable(table)
	}
	vs := tbl.data[string(key)]
	for i, v := range vs {
		if bytes.Equal(v, val) {
			vs = append(vs[:i], vs[i+1:]...)
			if len(vs) == 0 {
				delete(tbl.data, string(key))
			} else {
				tbl.data[string(key)] = vs
			}
			break
		}
	}
	t.env.metrics.Deletes.Inc()
	return nil
}

func (t *memTx) Clear(table Table) error {
	if t.readonly {
		return errReadOnly("Clear")
	}
	tbl, ok := t.tables[table]
	if !ok {
		return errUnknownTable(table)
	}
	tbl.data = make(map[string][][]byte)
	t.env.metrics.Clears.Inc()
	return nil
}

func (t *memTx) Cursor(table Table) (Cursor, error) {
	tbl, ok := t.tables[table]
	if !ok {
		return nil, errUnknownTable(table)
	}
	keys := make([]string, 0, len(tbl.data))
	for k := range tbl.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &memCursor{tbl: tbl, keys: keys, pos: -1}, nil
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if !t.readonly {
		t.env.mu.Lock()
		t.env.tables = t.tables
		t.env.mu.Unlock()
		t.env.writer.Unlock()
		t.env.metrics.CommitsSucceeded.Inc()
	}
	return nil
}

func (t *memTx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	if !t.readonly {
		t.env.writer.Unlock()
	}
	t.env.metrics.Aborts.Inc()
}

type memCursor struct {
	tbl      *memTable
	keys     []string
	pos      int
	dupIdx   int
}

func (c *memCursor) at() (k, v []byte, err error) {
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil, nil, nil
	}
	key := c.keys[c.pos]
	vs := c.tbl.data[key]
	if c.dupIdx >= len(vs) {
		return nil, nil, nil
	}
	return []byte(key), vs[c.dupIdx], nil
}

func (c *memCursor) First() ([]byte, []byte, error) {
	c.pos, c.dupIdx = 0, 0
	return c.at()
}

func (c *memCursor) Next() ([]byte, []byte, error) {
	if c.pos < 0 {
		return c.First()
	}
	c.pos++
	c.dupIdx = 0
	return c.at()
}

func (c *memCursor) Last() ([]byte, []byte, error) {
	c.pos = len(c.keys) - 1
	c.dupIdx = 0
	return c.at()
}

func (c *memCursor) Prev() ([]byte, []byte, error) {
	if c.pos < 0 {
		c.pos = len(c.keys)
	}
	c.pos--
	c.dupIdx = 0
	return c.at()
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte, error) {
	idx := sort.Search(len(c.keys), func(i int) bool { return c.keys[i] >= string(seek) })
	c.pos, c.dupIdx = idx, 0
	return c.at()
}

func (c *memCursor) NextDup() ([]byte, []byte, error) {
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil, nil, nil
	}
	c.dupIdx++
	return c.at()
}

func (c *memCursor) FirstDup() ([]byte, error) {
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil, nil
	}
	c.dupIdx = 0
	_, v, err := c.at()
	return v, err
}

func (c *memCursor) Close() {}

func errUnknownTable(t Table) error { return &unknownTableError{t} }

type unknownTableError struct{ t Table }

func (e *unknownTableError) Error() string { return "kv: unknown table " + string(e.t) }

func errReadOnly(op string) error { return &readOnlyError{op} }

type readOnlyError struct{ op string }

func (e *readOnlyError) Error() string { return "kv: " + e.op + " on read-only transaction" }
