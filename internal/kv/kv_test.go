package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testCfg() Cfg {
	return Cfg{
		Headers:         {Flags: Default},
		ContractStorage: {Flags: DupSort},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	env := NewMem(testCfg())
	defer env.Close()

	rw, err := env.BeginRw()
	require.NoError(t, err)
	require.NoError(t, rw.Put(Headers, []byte("k1"), []byte("v1")))
	require.NoError(t, rw.Commit())

	ro, err := env.BeginRo()
	require.NoError(t, err)
	defer ro.Rollback()
	v, found, err := ro.Get(Headers, []byte("k1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), v)
}

func TestGetMissReturnsNotFound(t *testing.T) {
	env := NewMem(testCfg())
	ro, err := env.BeginRo()
	require.NoError(t, err)
	defer ro.Rollback()
	_, found, err := ro.Get(Headers, []byte("absent"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestRoSnapshotIsolatedFromLaterWrites(t *testing.T) {
	env := NewMem(testCfg())
	rw, err := env.BeginRw()
	require.NoError(t, err)
	require.NoError(t, rw.Put(Headers, []byte("a"), []byte("1")))
	require.NoError(t, rw.Commit())

	ro, err := env.BeginRo()
	require.NoError(t, err)
	defer ro.Rollback()

	rw2, err := env.BeginRw()
	require.NoError(t, err)
	require.NoError(t, rw2.Put(Headers, []byte("a"), []byte("2")))
	require.NoError(t, rw2.Commit())

	v, found, err := ro.Get(Headers, []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("1"), v, "read-only snapshot must not observe the later write")
}

func TestRollbackDiscardsMutations(t *testing.T) {
	env := NewMem(testCfg())
	rw, err := env.BeginRw()
	require.NoError(t, err)
	require.NoError(t, rw.Put(Headers, []byte("k"), []byte("v")))
	rw.Rollback()

	ro, err := env.BeginRo()
	require.NoError(t, err)
	defer ro.Rollback()
	_, found, err := ro.Get(Headers, []byte("k"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestCursorOrdersKeysAscending(t *testing.T) {
	env := NewMem(testCfg())
	rw, err := env.BeginRw()
	require.NoError(t, err)
	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, rw.Put(Headers, []byte(k), []byte(k)))
	}
	require.NoError(t, rw.Commit())

	ro, err := env.BeginRo()
	require.NoError(t, err)
	defer ro.Rollback()
	cur, err := ro.Cursor(Headers)
	require.NoError(t, err)
	defer cur.Close()

	var got []string
	for k, _, err := cur.First(); k != nil; k, _, err = cur.Next() {
		require.NoError(t, err)
		got = append(got, string(k))
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestCursorSeekFindsFirstKeyGreaterOrEqual(t *testing.T) {
	env := NewMem(testCfg())
	rw, err := env.BeginRw()
	require.NoError(t, err)
	for _, k := range []string{"a", "c", "e"} {
		require.NoError(t, rw.Put(Headers, []byte(k), []byte(k)))
	}
	require.NoError(t, rw.Commit())

	ro, err := env.BeginRo()
	require.NoError(t, err)
	defer ro.Rollback()
	cur, err := ro.Cursor(Headers)
	require.NoError(t, err)
	defer cur.Close()

	k, _, err := cur.Seek([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, "c", string(k))
}

func TestDupSortAllowsMultipleValuesPerKey(t *testing.T) {
	env := NewMem(testCfg())
	rw, err := env.BeginRw()
	require.NoError(t, err)
	require.NoError(t, rw.Put(ContractStorage, []byte("addr1"), []byte("v1")))
	require.NoError(t, rw.Put(ContractStorage, []byte("addr1"), []byte("v2")))
	require.NoError(t, rw.Commit())

	ro, err := env.BeginRo()
	require.NoError(t, err)
	defer ro.Rollback()
	cur, err := ro.Cursor(ContractStorage)
	require.NoError(t, err)
	defer cur.Close()

	_, v, err := cur.Seek([]byte("addr1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
	_, v2, err := cur.NextDup()
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v2)
}

func TestDeleteDupRemovesSingleValue(t *testing.T) {
	env := NewMem(testCfg())
	rw, err := env.BeginRw()
	require.NoError(t, err)
	require.NoError(t, rw.Put(ContractStorage, []byte("addr1"), []byte("v1")))
	require.NoError(t, rw.Put(ContractStorage, []byte("addr1"), []byte("v2")))
	require.NoError(t, rw.DeleteDup(ContractStorage, []byte("addr1"), []byte("v1")))
	require.NoError(t, rw.Commit())

	ro, err := env.BeginRo()
	require.NoError(t, err)
	defer ro.Rollback()
	cur, err := ro.Cursor(ContractStorage)
	require.NoError(t, err)
	defer cur.Close()

	_, v, err := cur.Seek([]byte("addr1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)
	_, v2, err := cur.NextDup()
	require.NoError(t, err)
	require.Nil(t, v2)
}

func TestClearRemovesAllEntries(t *testing.T) {
	env := NewMem(testCfg())
	rw, err := env.BeginRw()
	require.NoError(t, err)
	require.NoError(t, rw.Put(Headers, []byte("a"), []byte("1")))
	require.NoError(t, rw.Clear(Headers))
	require.NoError(t, rw.Commit())

	ro, err := env.BeginRo()
	require.NoError(t, err)
	defer ro.Rollback()
	_, found, err := ro.Get(Headers, []byte("a"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestSchemaVersionMatchesCurrent(t *testing.T) {
	env := NewMem(testCfg())
	major, minor, _ := env.SchemaVersion()
	require.Equal(t, currentSchema[0], major)
	require.Equal(t, currentSchema[1], minor)
}
