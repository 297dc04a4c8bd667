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

// Table name constants. Comments describe key -> value shape, matching
// the table set.
const (
	Headers          Table = "Headers"          // block_number -> Header
	BlockHashes      Table = "BlockHashes"       // block_number -> block_hash
	BlockNumbers     Table = "BlockNumbers"      // block_hash -> block_number
	BlockBodyIndices Table = "BlockBodyIndices"  // block_number -> (first_tx_index, tx_count)
	Transactions     Table = "Transactions"      // tx_index -> Transaction
	TxHashes         Table = "TxHashes"          // tx_index -> tx_hash
	TxNumbers        Table = "TxNumbers"         // tx_hash -> tx_index
	Receipts         Table = "Receipts"          // tx_index -> Receipt
	TxTraces         Table = "TxTraces"          // tx_index -> ExecutionTrace

	ContractInfo    Table = "ContractInfo"    // address -> (class_hash, nonce)
	ContractStorage Table = "ContractStorage" // (address, storage_key) -> storage_value [dup]

	Classes             Table = "Classes"             // class_hash -> ClassArtifact
	CompiledClassHashes Table = "CompiledClassHashes" // sierra_class_hash -> compiled_class_hash
	ClassDeclBlocks     Table = "ClassDeclBlocks"      // class_hash -> block_number

	ContractHistory Table = "ContractHistory" // (address, block_number) -> ContractInfo snapshot
	StorageHistory  Table = "StorageHistory"  // (address, key, block_number) -> storage_value

	StateUpdates     Table = "StateUpdates"     // block_number -> StateUpdates
	TrieNodes        Table = "TrieNodes"        // (trie_id, node_id) -> TrieNode
	TrieRoots        Table = "TrieRoots"        // (trie_id, block_number) -> node_id
	StageCheckpoints Table = "StageCheckpoints" // stage_id -> block_number

	// DatabaseInfo stores environment-wide metadata: the head block
	// number ("head") and the next global transaction index ("txcount").
	// The schema version is kept in its own file, not in this table.
	DatabaseInfo Table = "DbInfo"

	// ForkCache holds the fork backend's read-through cache, namespaced
	// by remote-call kind (see internal/fork). It is its own table so
	// cached remote data stays apart from locally-produced data.
	ForkCache Table = "ForkCache"
)

// CmpFunc orders two (key, value) pairs within a table; nil means use the
// engine's default byte-lexicographic comparison.
type CmpFunc func(k1, k2, v1, v2 []byte) int

// Flags mirror libmdbx's per-table flags.
type Flags uint

const (
	Default    Flags = 0x00
	ReverseKey Flags = 0x02
	DupSort    Flags = 0x04
	IntegerKey Flags = 0x08
	IntegerDup Flags = 0x20
)

// CfgItem is one table's registered configuration.
type CfgItem struct {
	Flags Flags
}

// Cfg is the full table configuration used to open the environment.
type Cfg map[Table]CfgItem

// ChaindataTables lists every table the engine must create on open. A
// table used at runtime that is missing from this list surfaces as an
// "unknown table" error from every Get/Put/Cursor that names it.
var ChaindataTables = []Table{
	Headers, BlockHashes, BlockNumbers, BlockBodyIndices,
	Transactions, TxHashes, TxNumbers, Receipts, TxTraces,
	ContractInfo, ContractStorage,
	Classes, CompiledClassHashes, ClassDeclBlocks,
	ContractHistory, StorageHistory,
	StateUpdates, TrieNodes, TrieRoots, StageCheckpoints,
	DatabaseInfo, ForkCache,
}

// ChaindataTablesCfg is the flags configuration for every table:
// ContractStorage and the two history tables permit duplicate keys;
// everything else is Default.
var ChaindataTablesCfg = Cfg{
	ContractStorage: {Flags: DupSort},
	ContractHistory: {Flags: DupSort},
	StorageHistory:  {Flags: DupSort},
}

func init() {
	for _, t := range ChaindataTables {
		if _, ok := ChaindataTablesCfg[t]; !ok {
			ChaindataTablesCfg[t] = CfgItem{Flags: Default}
		}
	}
}
