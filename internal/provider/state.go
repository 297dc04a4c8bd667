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

package provider

import (
	"bytes"

	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/kv"
	"github.com/katana-sequencer/katana/internal/state"
)

// findAtOrBefore scans a DupSort table's duplicate-value group for key
// and returns the payload recorded at the greatest block number <=
// target. DupSort values are ordered ascending by their block-number
// prefix, so this is a single forward walk with no sorting needed.
func findAtOrBefore(tx kv.RoTx, table kv.Table, key []byte, target uint64) ([]byte, bool, error) {
	cur, err := tx.Cursor(table)
	if err != nil {
		return nil, false, dbErr(err)
	}
	defer cur.Close()

	k, v, err := cur.Seek(key)
	if err != nil {
		return nil, false, dbErr(err)
	}
	if k == nil || !bytes.Equal(k, key) {
		return nil, false, nil
	}

	var best []byte
	var bestFound bool
	for v != nil {
		block, payload, perr := splitHistoryValue(v)
		if perr != nil {
			return nil, false, dbErr(perr)
		}
		if block > target {
			break
		}
		best, bestFound = payload, true
		k, v, err = cur.NextDup()
		if err != nil {
			return nil, false, dbErr(err)
		}
	}
	return best, bestFound, nil
}

// stateAt resolves id to either "current" (the head/pending fast path)
// or a concrete historical block number that must consult the history
// tables.
func (p *Provider) stateAt(id BlockID) (current bool, number uint64, err error) {
	if id.Kind == BlockIDPending {
		return true, 0, nil
	}
	n, err := p.ResolveNumber(id)
	if err != nil {
		return false, 0, err
	}
	head, found, err := p.HeadNumber()
	if err != nil {
		return false, 0, err
	}
	if !found || n > head {
		return false, 0, ErrBlockNotFound
	}
	if n == head {
		return true, n, nil
	}
	return false, n, nil
}

func (p *Provider) NonceAt(id BlockID, address felt.Felt) (felt.Felt, error) {
	current, n, err := p.stateAt(id)
	if err != nil {
		return felt.Felt{}, err
	}
	if current {
		if id.Kind == BlockIDPending && p.pending != nil {
			if pv, ok := p.pending.PendingBlock(); ok {
				if v, ok := pv.Nonces[address]; ok {
					return v, nil
				}
			}
		}
		v, found, err := p.tx.Get(kv.ContractInfo, feltKey(address))
		if err != nil {
			return felt.Felt{}, dbErr(err)
		}
		if !found {
			return felt.Zero, nil
		}
		_, nonce, err := splitContractInfoValue(v)
		return nonce, err
	}
	payload, found, err := findAtOrBefore(p.tx, kv.ContractHistory, historyKey(address), n)
	if err != nil {
		return felt.Felt{}, err
	}
	if !found {
		return felt.Zero, nil
	}
	_, nonce, err := splitContractInfoValue(payload)
	return nonce, dbErr(err)
}

func (p *Provider) ClassHashAt(id BlockID, address felt.Felt) (felt.Felt, error) {
	current, n, err := p.stateAt(id)
	if err != nil {
		return felt.Felt{}, err
	}
	if current {
		if id.Kind == BlockIDPending && p.pending != nil {
			if pv, ok := p.pending.PendingBlock(); ok {
				if v, ok := pv.ClassHashes[address]; ok {
					return v, nil
				}
			}
		}
		v, found, err := p.tx.Get(kv.ContractInfo, feltKey(address))
		if err != nil {
			return felt.Felt{}, dbErr(err)
		}
		if !found {
			return felt.Zero, nil
		}
		classHash, _, err := splitContractInfoValue(v)
		return classHash, err
	}
	payload, found, err := findAtOrBefore(p.tx, kv.ContractHistory, historyKey(address), n)
	if err != nil {
		return felt.Felt{}, err
	}
	if !found {
		return felt.Zero, nil
	}
	classHash, _, err := splitContractInfoValue(payload)
	return classHash, dbErr(err)
}

func (p *Provider) StorageAt(id BlockID, address, key felt.Felt) (felt.Felt, error) {
	current, n, err := p.stateAt(id)
	if err != nil {
		return felt.Felt{}, err
	}
	if current {
		if id.Kind == BlockIDPending && p.pending != nil {
			if pv, ok := p.pending.PendingBlock(); ok {
				if v, ok := pv.Storage[state.StorageKey{Address: address, Key: key}]; ok {
					return v, nil
				}
			}
		}
		return p.currentStorageAt(address, key)
	}
	payload, found, err := findAtOrBefore(p.tx, kv.StorageHistory, historyKey(address, key), n)
	if err != nil {
		return felt.Felt{}, err
	}
	if !found {
		return felt.Zero, nil
	}
	return decodeFelt(payload)
}

// currentStorageAt walks the ContractStorage DupSort group for address
// looking for the matching storage_key; the group is ordered ascending
// by storage_key so this is a single forward scan.
func (p *Provider) currentStorageAt(address, key felt.Felt) (felt.Felt, error) {
	cur, err := p.tx.Cursor(kv.ContractStorage)
	if err != nil {
		return felt.Felt{}, dbErr(err)
	}
	defer cur.Close()

	target := feltKey(address)
	k, v, err := cur.Seek(target)
	if err != nil {
		return felt.Felt{}, dbErr(err)
	}
	if k == nil || !bytes.Equal(k, target) {
		return felt.Zero, nil
	}
	for v != nil {
		sk, sv, serr := splitContractStorageValue(v)
		if serr != nil {
			return felt.Felt{}, dbErr(serr)
		}
		if sk.Equal(key) {
			return sv, nil
		}
		if sk.Cmp(key) > 0 {
			break
		}
		k, v, err = cur.NextDup()
		if err != nil {
			return felt.Felt{}, dbErr(err)
		}
	}
	return felt.Zero, nil
}
