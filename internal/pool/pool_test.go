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

package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/txn"
)

func f(x uint64) felt.Felt { return felt.FromUint64(x) }

var chainID = felt.FromBytesBE([]byte("KATANA"))

// fakeView is a fixed admission snapshot.
type fakeView struct {
	nonces  map[felt.Felt]felt.Felt
	classes map[felt.Felt]felt.Felt
}

func (v *fakeView) Nonce(a felt.Felt) (felt.Felt, error)     { return v.nonces[a], nil }
func (v *fakeView) ClassHash(a felt.Felt) (felt.Felt, error) { return v.classes[a], nil }
func (v *fakeView) ClassDeclared(felt.Felt) (bool, error)    { return false, nil }

func newTestPool(view *fakeView) *Pool {
	return New(Config{ChainID: chainID}, func() (StateView, func(), error) {
		return view, func() {}, nil
	})
}

func invoke(sender felt.Felt, nonce, tip uint64) txn.Transaction {
	return txn.Transaction{
		Kind: txn.KindInvokeV3,
		InvokeV3: &txn.InvokeV3{
			Common: txn.Common{
				ChainID:       chainID,
				SenderAddress: sender,
				Nonce:         f(nonce),
				Signature:     []felt.Felt{f(7)},
			},
			V3Extras: txn.V3Extras{
				Tip: tip,
				ResourceBounds: txn.V3ResourceBounds{
					L2Gas: txn.ResourceBounds{MaxAmount: 1 << 20, MaxPricePerUnit: f(1)},
				},
			},
			Calldata: []felt.Felt{f(0x99), f(1), f(0)},
		},
	}
}

func deployedView(senders ...felt.Felt) *fakeView {
	v := &fakeView{nonces: make(map[felt.Felt]felt.Felt), classes: make(map[felt.Felt]felt.Felt)}
	for _, s := range senders {
		v.classes[s] = f(0xacc)
	}
	return v
}

func TestAddAndDrainSingle(t *testing.T) {
	a := f(0x1)
	p := newTestPool(deployedView(a))

	hash, err := p.Add(context.Background(), invoke(a, 0, 0), nil)
	require.NoError(t, err)
	require.False(t, hash.IsZero())
	require.Equal(t, 1, p.Len())

	batch := p.Drain(0)
	require.Len(t, batch, 1)
	require.Zero(t, p.Len())
}

func TestDuplicateHashRejected(t *testing.T) {
	a := f(0x1)
	p := newTestPool(deployedView(a))

	tx := invoke(a, 0, 0)
	_, err := p.Add(context.Background(), tx, nil)
	require.NoError(t, err)
	_, err = p.Add(context.Background(), tx, nil)
	require.ErrorIs(t, err, ErrDuplicateTxHash)
}

func TestNonceTooLow(t *testing.T) {
	a := f(0x1)
	v := deployedView(a)
	v.nonces[a] = f(5)
	p := newTestPool(v)

	_, err := p.Add(context.Background(), invoke(a, 3, 0), nil)
	require.ErrorIs(t, err, ErrNonceTooLow)
}

func TestMissingSignatureRejected(t *testing.T) {
	a := f(0x1)
	p := newTestPool(deployedView(a))

	tx := invoke(a, 0, 0)
	tx.InvokeV3.Signature = nil
	_, err := p.Add(context.Background(), tx, nil)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestUndeployedSenderRejected(t *testing.T) {
	p := newTestPool(deployedView()) // nobody deployed
	_, err := p.Add(context.Background(), invoke(f(0x1), 0, 0), nil)
	require.ErrorIs(t, err, ErrClassNotDeclared)
}

func TestPerSenderNonceOrdering(t *testing.T) {
	a := f(0x1)
	p := newTestPool(deployedView(a))

	// Insert out of order; drain must come back nonce-ascending.
	for _, n := range []uint64{2, 0, 1} {
		_, err := p.Add(context.Background(), invoke(a, n, 0), nil)
		require.NoError(t, err)
	}
	batch := p.Drain(0)
	require.Len(t, batch, 3)
	for i, pend := range batch {
		require.True(t, pend.Tx.Nonce().Equal(f(uint64(i))), "position %d", i)
	}
}

func TestNonceGapHeldBack(t *testing.T) {
	a := f(0x1)
	v := deployedView(a)
	v.nonces[a] = f(1)
	p := newTestPool(v)

	// Scenario: nonces 1 and 3 submitted, 2 missing.
	_, err := p.Add(context.Background(), invoke(a, 1, 0), nil)
	require.NoError(t, err)
	_, err = p.Add(context.Background(), invoke(a, 3, 0), nil)
	require.NoError(t, err)

	require.Len(t, p.PendingFor(a), 1)

	batch := p.Drain(0)
	require.Len(t, batch, 1)
	require.True(t, batch[0].Tx.Nonce().Equal(f(1)))

	// Gap closes: 2 then 3 become schedulable in order.
	_, err = p.Add(context.Background(), invoke(a, 2, 0), nil)
	require.NoError(t, err)
	batch = p.Drain(0)
	require.Len(t, batch, 2)
	require.True(t, batch[0].Tx.Nonce().Equal(f(2)))
	require.True(t, batch[1].Tx.Nonce().Equal(f(3)))
}

func TestHugeNonceGapRejected(t *testing.T) {
	a := f(0x1)
	p := newTestPool(deployedView(a))

	_, err := p.Add(context.Background(), invoke(a, DefaultMaxNonceGap+5, 0), nil)
	var gap *NonceGapError
	require.ErrorAs(t, err, &gap)
}

func TestCrossSenderTipPriority(t *testing.T) {
	a, b, c := f(0x1), f(0x2), f(0x3)
	p := newTestPool(deployedView(a, b, c))

	_, err := p.Add(context.Background(), invoke(a, 0, 1), nil)
	require.NoError(t, err)
	_, err = p.Add(context.Background(), invoke(b, 0, 10), nil)
	require.NoError(t, err)
	_, err = p.Add(context.Background(), invoke(c, 0, 1), nil)
	require.NoError(t, err)

	batch := p.Drain(0)
	require.Len(t, batch, 3)
	// Highest tip first, then arrival order among equal tips.
	require.True(t, batch[0].Tx.Sender().Equal(b))
	require.True(t, batch[1].Tx.Sender().Equal(a))
	require.True(t, batch[2].Tx.Sender().Equal(c))
}

func TestDrainCapacity(t *testing.T) {
	a := f(0x1)
	p := newTestPool(deployedView(a))
	for n := uint64(0); n < 5; n++ {
		_, err := p.Add(context.Background(), invoke(a, n, 0), nil)
		require.NoError(t, err)
	}
	batch := p.Drain(2)
	require.Len(t, batch, 2)
	require.Equal(t, 3, p.Len())
}

func TestReinjectAfterFailedCommit(t *testing.T) {
	a := f(0x1)
	p := newTestPool(deployedView(a))
	for n := uint64(0); n < 3; n++ {
		_, err := p.Add(context.Background(), invoke(a, n, 0), nil)
		require.NoError(t, err)
	}
	batch := p.Drain(0)
	require.Len(t, batch, 3)
	require.Zero(t, p.Len())

	p.Reinject(batch)
	require.Equal(t, 3, p.Len())
	again := p.Drain(0)
	require.Len(t, again, 3)
	require.True(t, again[0].Tx.Nonce().IsZero())
}

func TestRemoveAfterCommit(t *testing.T) {
	a := f(0x1)
	p := newTestPool(deployedView(a))
	h0, err := p.Add(context.Background(), invoke(a, 0, 0), nil)
	require.NoError(t, err)
	_, err = p.Add(context.Background(), invoke(a, 1, 0), nil)
	require.NoError(t, err)

	p.Remove([]felt.Felt{h0})
	require.Equal(t, 1, p.Len())
}

func TestCancelledContextIsValidationFailure(t *testing.T) {
	a := f(0x1)
	p := newTestPool(deployedView(a))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Add(ctx, invoke(a, 0, 0), nil)
	var vf *ValidationFailedError
	require.ErrorAs(t, err, &vf)
}
