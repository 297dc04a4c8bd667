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

// Package pool is the validated, ordered transaction queue:
// per-sender strict nonce ordering, cross-sender priority by
// (tip, arrival), dedup by hash. A single mutex guards the internal
// structures; the priority counter is a sequentially-consistent atomic so
// pool-wide FIFO order is well-defined under contention.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/txn"
)

// Reject reasons returned by Add.
var (
	ErrInvalidSignature      = errors.New("pool: invalid signature")
	ErrNonceTooLow           = errors.New("pool: nonce too low")
	ErrFeeBelowMin           = errors.New("pool: fee below minimum")
	ErrResourceBoundsInvalid = errors.New("pool: resource bounds invalid")
	ErrClassNotDeclared      = errors.New("pool: class not declared")
	ErrClassAlreadyDeclared  = errors.New("pool: class already declared")
	ErrDuplicateTxHash       = errors.New("pool: duplicate transaction hash")
)

// NonceGapError rejects a transaction whose nonce is so far ahead of the
// schedulable window that queueing it would be unbounded. Gaps within
// MaxNonceGap are admitted and held until the gap closes.
type NonceGapError struct {
	Gap uint64
}

func (e *NonceGapError) Error() string { return fmt.Sprintf("pool: nonce gap of %d too large", e.Gap) }

// ValidationFailedError wraps admission-time failures that aren't one of
// the dedicated reject reasons, including timeouts.
type ValidationFailedError struct {
	Err error
}

func (e *ValidationFailedError) Error() string { return "pool: validation failed: " + e.Err.Error() }
func (e *ValidationFailedError) Unwrap() error { return e.Err }

// StateView is the admission-time read surface: one consistent snapshot
// per Add call, provided by the node's snapshot factory.
type StateView interface {
	Nonce(addr felt.Felt) (felt.Felt, error)
	ClassHash(addr felt.Felt) (felt.Felt, error)
	ClassDeclared(classHash felt.Felt) (bool, error)
}

// ViewFactory opens a fresh StateView; the release func frees it.
type ViewFactory func() (StateView, func(), error)

// Pending couples a drained transaction with its out-of-band class
// artifact (only Declares carry one).
type Pending struct {
	Tx       txn.Transaction
	Artifact *classes.Artifact
}

type entry struct {
	tx       txn.Transaction
	artifact *classes.Artifact
	seq      uint64
	tip      uint64
}

// senderQueue holds one sender's pending transactions keyed by nonce.
type senderQueue struct {
	byNonce map[uint64]*entry
	// next is the nonce the sender's next schedulable transaction must
	// carry: on-chain nonce plus already-drained-but-uncommitted count.
	next uint64
}

// readyItem is one sender's best schedulable transaction in the
// cross-sender priority order: higher tip first, then earlier arrival.
type readyItem struct {
	tip    uint64
	seq    uint64
	sender felt.Felt
}

func lessReady(a, b readyItem) bool {
	if a.tip != b.tip {
		return a.tip > b.tip
	}
	return a.seq < b.seq
}

// Config bounds admission.
type Config struct {
	// MinTip rejects V3 transactions tipping below it (FeeBelowMin).
	MinTip uint64
	// MaxNonceGap bounds how far past the schedulable window a queued
	// nonce may reach before the transaction is rejected outright.
	MaxNonceGap uint64
	// ChainID transactions must be signed against.
	ChainID felt.Felt
	// SizeGauge, when set, tracks the number of stored transactions
	// (queued ones included).
	SizeGauge prometheus.Gauge
}

// DefaultMaxNonceGap keeps queued-but-unschedulable transactions bounded
// per sender.
const DefaultMaxNonceGap = 16

// Pool is the transaction pool. All methods are safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	cfg     Config
	views   ViewFactory
	all     map[felt.Felt]felt.Felt // tx hash -> sender
	senders map[felt.Felt]*senderQueue
	ready   *btree.BTreeG[readyItem]
	byReady map[felt.Felt]readyItem // sender -> its current ready item

	seq    atomic.Uint64
	notify chan struct{}
}

// New builds an empty pool. views supplies the admission snapshot.
func New(cfg Config, views ViewFactory) *Pool {
	if cfg.MaxNonceGap == 0 {
		cfg.MaxNonceGap = DefaultMaxNonceGap
	}
	return &Pool{
		cfg:     cfg,
		views:   views,
		all:     make(map[felt.Felt]felt.Felt),
		senders: make(map[felt.Felt]*senderQueue),
		ready:   btree.NewG(16, lessReady),
		byReady: make(map[felt.Felt]readyItem),
		notify:  make(chan struct{}, 1),
	}
}

// Notify signals once per admission; the Instant-mode producer selects on
// it.
func (p *Pool) Notify() <-chan struct{} { return p.notify }

// Add validates and stores tx, returning its hash. artifact carries the
// declared class for Declare transactions and must be nil otherwise.
// ctx bounds validation time; an expired context surfaces as
// ValidationFailed(Timeout).
func (p *Pool) Add(ctx context.Context, tx txn.Transaction, artifact *classes.Artifact) (felt.Felt, error) {
	hash := tx.Hash()

	if err := ctx.Err(); err != nil {
		return felt.Felt{}, &ValidationFailedError{Err: err}
	}

	view, release, err := p.views()
	if err != nil {
		return felt.Felt{}, &ValidationFailedError{Err: err}
	}
	defer release()

	if err := p.validate(ctx, view, tx, artifact); err != nil {
		return felt.Felt{}, err
	}

	sender := tx.Sender()
	nonce := tx.Nonce().Uint64()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, dup := p.all[hash]; dup {
		return felt.Felt{}, ErrDuplicateTxHash
	}

	sq := p.senders[sender]
	if sq == nil {
		onchain, err := view.Nonce(sender)
		if err != nil {
			return felt.Felt{}, &ValidationFailedError{Err: err}
		}
		sq = &senderQueue{byNonce: make(map[uint64]*entry), next: onchain.Uint64()}
		p.senders[sender] = sq
	}

	if nonce < sq.next && sq.byNonce[nonce] == nil {
		return felt.Felt{}, ErrNonceTooLow
	}
	if _, exists := sq.byNonce[nonce]; exists {
		return felt.Felt{}, ErrDuplicateTxHash
	}
	if nonce > sq.next && nonce-sq.next > p.cfg.MaxNonceGap {
		return felt.Felt{}, &NonceGapError{Gap: nonce - sq.next}
	}

	e := &entry{tx: tx, artifact: artifact, seq: p.seq.Add(1), tip: tx.Tip()}
	sq.byNonce[nonce] = e
	p.all[hash] = sender
	p.refreshReady(sender, sq)
	p.sizeChanged()

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return hash, nil
}

// validate runs the stateless and snapshot checks outside the pool lock.
func (p *Pool) validate(ctx context.Context, view StateView, tx txn.Transaction, artifact *classes.Artifact) error {
	if err := ctx.Err(); err != nil {
		return &ValidationFailedError{Err: err}
	}

	if !p.cfg.ChainID.IsZero() && !tx.ChainID().Equal(p.cfg.ChainID) {
		return &ValidationFailedError{Err: fmt.Errorf("chain id %s not supported", tx.ChainID().Hex())}
	}
	if tx.Kind != txn.KindL1Handler && len(signatureOf(tx)) == 0 {
		return ErrInvalidSignature
	}

	if bounds, ok := tx.EffectiveResourceBounds(); ok {
		if bounds.L2Gas.MaxAmount == 0 {
			return ErrResourceBoundsInvalid
		}
		if tx.Tip() < p.cfg.MinTip {
			return ErrFeeBelowMin
		}
	}

	switch tx.Kind {
	case txn.KindInvokeV0, txn.KindInvokeV1, txn.KindInvokeV3:
		// The sending account must exist on chain.
		ch, err := view.ClassHash(tx.Sender())
		if err != nil {
			return &ValidationFailedError{Err: err}
		}
		if ch.IsZero() {
			return ErrClassNotDeclared
		}
	case txn.KindDeclareV0, txn.KindDeclareV1, txn.KindDeclareV2, txn.KindDeclareV3:
		if artifact == nil {
			return &ValidationFailedError{Err: errors.New("declare without class artifact")}
		}
		classHash, _ := tx.DeclaredClassHash()
		declared, err := view.ClassDeclared(classHash)
		if err != nil {
			return &ValidationFailedError{Err: err}
		}
		if declared {
			return ErrClassAlreadyDeclared
		}
	}
	return nil
}

// sizeChanged publishes the current pool depth; callers hold p.mu.
func (p *Pool) sizeChanged() {
	if p.cfg.SizeGauge != nil {
		p.cfg.SizeGauge.Set(float64(len(p.all)))
	}
}

// refreshReady recomputes the sender's entry in the cross-sender priority
// order: the transaction at exactly sq.next, if present.
func (p *Pool) refreshReady(sender felt.Felt, sq *senderQueue) {
	if old, ok := p.byReady[sender]; ok {
		p.ready.Delete(old)
		delete(p.byReady, sender)
	}
	if e, ok := sq.byNonce[sq.next]; ok {
		item := readyItem{tip: e.tip, seq: e.seq, sender: sender}
		p.ready.ReplaceOrInsert(item)
		p.byReady[sender] = item
	}
}

// Drain returns up to capacity transactions in scheduling order, removing
// them from the pool. capacity <= 0 means unbounded.
func (p *Pool) Drain(capacity int) []Pending {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Pending
	for capacity <= 0 || len(out) < capacity {
		best, ok := p.ready.Min()
		if !ok {
			break
		}
		sq := p.senders[best.sender]
		e := sq.byNonce[sq.next]
		out = append(out, Pending{Tx: e.tx, Artifact: e.artifact})
		delete(sq.byNonce, sq.next)
		delete(p.all, e.tx.Hash())
		sq.next++
		p.refreshReady(best.sender, sq)
	}
	p.sizeChanged()
	return out
}

// Remove drops the given hashes (called after block commit for included
// transactions, and for drops decided during commit failure recovery).
func (p *Pool) Remove(hashes []felt.Felt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range hashes {
		sender, ok := p.all[h]
		if !ok {
			continue
		}
		delete(p.all, h)
		sq := p.senders[sender]
		if sq == nil {
			continue
		}
		for nonce, e := range sq.byNonce {
			if e.tx.Hash().Equal(h) {
				delete(sq.byNonce, nonce)
				break
			}
		}
		p.refreshReady(sender, sq)
	}
	p.sizeChanged()
}

// Reinject puts drained-but-uncommitted transactions back (commit
// rollback path). The entries take fresh arrival numbers in batch order,
// so they rank after transactions of equal tip already in the pool.
func (p *Pool) Reinject(batch []Pending) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pend := range batch {
		sender := pend.Tx.Sender()
		nonce := pend.Tx.Nonce().Uint64()
		sq := p.senders[sender]
		if sq == nil {
			sq = &senderQueue{byNonce: make(map[uint64]*entry), next: nonce}
			p.senders[sender] = sq
		}
		if nonce < sq.next {
			sq.next = nonce
		}
		if _, exists := sq.byNonce[nonce]; exists {
			continue
		}
		sq.byNonce[nonce] = &entry{tx: pend.Tx, artifact: pend.Artifact, seq: p.seq.Add(1), tip: pend.Tx.Tip()}
		p.all[pend.Tx.Hash()] = sender
	}
	for sender, sq := range p.senders {
		p.refreshReady(sender, sq)
	}
	p.sizeChanged()
}

// PendingFor returns the sender's schedulable transactions: the
// contiguous nonce run starting at the sender's next expected nonce.
// Queued transactions past a gap are excluded.
func (p *Pool) PendingFor(sender felt.Felt) []txn.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	sq := p.senders[sender]
	if sq == nil {
		return nil
	}
	var out []txn.Transaction
	for n := sq.next; ; n++ {
		e, ok := sq.byNonce[n]
		if !ok {
			break
		}
		out = append(out, e.tx)
	}
	return out
}

// Len reports the number of stored transactions, queued ones included.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// OnHeadCommitted resyncs per-sender expected nonces after a block
// commit; senders whose queues emptied are dropped.
func (p *Pool) OnHeadCommitted(view StateView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sender, sq := range p.senders {
		if len(sq.byNonce) == 0 {
			delete(p.senders, sender)
			if old, ok := p.byReady[sender]; ok {
				p.ready.Delete(old)
				delete(p.byReady, sender)
			}
			continue
		}
		onchain, err := view.Nonce(sender)
		if err != nil {
			continue
		}
		if n := onchain.Uint64(); n > sq.next {
			sq.next = n
		}
		p.refreshReady(sender, sq)
	}
}

func signatureOf(t txn.Transaction) []felt.Felt {
	switch t.Kind {
	case txn.KindInvokeV0:
		return t.InvokeV0.Signature
	case txn.KindInvokeV1:
		return t.InvokeV1.Signature
	case txn.KindInvokeV3:
		return t.InvokeV3.Signature
	case txn.KindDeclareV0:
		return t.DeclareV0.Signature
	case txn.KindDeclareV1:
		return t.DeclareV1.Signature
	case txn.KindDeclareV2:
		return t.DeclareV2.Signature
	case txn.KindDeclareV3:
		return t.DeclareV3.Signature
	case txn.KindDeployAccountV1:
		return t.DeployAccountV1.Signature
	case txn.KindDeployAccountV3:
		return t.DeployAccountV3.Signature
	default:
		return nil
	}
}
