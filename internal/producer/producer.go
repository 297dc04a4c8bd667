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

// Package producer is the block-producer state machine:
// Idle → Draining → Executing → Committing → Publishing → Idle, in one of
// three modes (Interval, Instant, Manual). The producer holds the sole
// BlockWriter; everything else reads committed data or the live pending
// view it publishes through provider.PendingSource.
package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/katana-sequencer/katana/internal/block"
	"github.com/katana-sequencer/katana/internal/executor"
	"github.com/katana-sequencer/katana/internal/felt"
	"github.com/katana-sequencer/katana/internal/metrics"
	"github.com/katana-sequencer/katana/internal/pool"
	"github.com/katana-sequencer/katana/internal/provider"
	"github.com/katana-sequencer/katana/internal/receipt"
	"github.com/katana-sequencer/katana/internal/state"
	"github.com/katana-sequencer/katana/internal/txn"
)

// Mode selects when blocks are produced.
type Mode uint8

const (
	// ModeInterval produces a block every BlockTime regardless of load.
	ModeInterval Mode = iota
	// ModeInstant produces a block as soon as any transaction is admitted.
	ModeInstant
	// ModeManual produces only on explicit ProduceBlock calls.
	ModeManual
)

func (m Mode) String() string {
	switch m {
	case ModeInterval:
		return "interval"
	case ModeInstant:
		return "instant"
	case ModeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// State is the machine's current phase, for logs and introspection.
type State uint8

const (
	StateIdle State = iota
	StateDraining
	StateExecuting
	StateCommitting
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateExecuting:
		return "executing"
	case StateCommitting:
		return "committing"
	case StatePublishing:
		return "publishing"
	default:
		return "unknown"
	}
}

// HeadEvent announces a committed block to subscribers.
type HeadEvent struct {
	Number uint64
	Hash   felt.Felt
}

// Config parameterizes the producer.
type Config struct {
	Mode             Mode
	BlockTime        time.Duration
	MaxBatch         int
	ChainID          felt.Felt
	SequencerAddress felt.Felt
	StarknetVersion  string
	FeeDisabled      bool
	L1GasPrice       block.GasPrice
	L1DataGasPrice   block.GasPrice
	L2GasPrice       block.GasPrice

	// Now is the clock; nil means time.Now. Tests pin it.
	Now func() time.Time

	// BaseState builds the executor's fall-through state over a read
	// snapshot. nil means the plain local ProviderState; fork nodes
	// install a fork.State-producing factory here.
	BaseState func(p *provider.Provider) executor.BaseState

	// Metrics, when set, receives the head/block/tx counters on every
	// commit.
	Metrics *metrics.Node
}

// pendingBlock is the in-progress block: an open read snapshot, the
// staged overlay on top of it, and everything executed so far.
type pendingBlock struct {
	header   block.Header
	staged   *executor.StagedState
	txs      []txn.Transaction
	receipts []receipt.Receipt
	traces   []receipt.Trace
	// diff is a point-in-time copy of the staged overlay, refreshed
	// under mu after each fully executed transaction. `pending` readers
	// see this copy, never the live overlay the executor is mutating.
	diff    *state.StateUpdates
	release func()
}

// Producer drives block production. All public methods are safe for
// concurrent use; production itself is serialized by the run mutex so
// there is never more than one block mid-flight.
type Producer struct {
	cfg   Config
	store *provider.Store
	pool  *pool.Pool
	exec  executor.Executor
	trie  provider.TrieUpdater
	log   *zap.Logger

	// run serializes produce cycles; mu guards the fields below for the
	// short reads the pending view and state probes need.
	run sync.Mutex
	mu  sync.RWMutex

	pending    *pendingBlock
	state      State
	mode       Mode
	timeOffset time.Duration

	subsMu sync.Mutex
	subs   []chan HeadEvent
}

// New wires a producer. It registers itself as the store's pending
// source so `pending` reads route here.
func New(cfg Config, store *provider.Store, p *pool.Pool, exec executor.Executor, trie provider.TrieUpdater, log *zap.Logger) *Producer {
	if cfg.MaxBatch == 0 {
		cfg.MaxBatch = 512
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BaseState == nil {
		cfg.BaseState = func(p *provider.Provider) executor.BaseState {
			return executor.ProviderState{P: p}
		}
	}
	pr := &Producer{cfg: cfg, store: store, pool: p, exec: exec, trie: trie, log: log, mode: cfg.Mode}
	store.SetPendingSource(pr)
	return pr
}

var _ provider.PendingSource = (*Producer)(nil)

// PendingBlock publishes the staged view for `pending` reads. The view
// reflects the batch up to the last fully executed transaction: the
// producer only swaps results in under mu after each transaction
// completes, never mid-transaction.
func (pr *Producer) PendingBlock() (*provider.PendingView, bool) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	if pr.pending == nil {
		return nil, false
	}
	pb := pr.pending
	diff := pb.diff
	if diff == nil {
		diff = state.New()
	}
	view := &provider.PendingView{
		Header:       pb.header,
		Transactions: append([]txn.Transaction(nil), pb.txs...),
		Receipts:     append([]receipt.Receipt(nil), pb.receipts...),
		Traces:       append([]receipt.Trace(nil), pb.traces...),
		Nonces:       diff.Nonces,
		ClassHashes:  make(map[felt.Felt]felt.Felt),
		Storage:      diff.StorageDiffs,
		Classes:      diff.ClassArtifacts,
	}
	for a, ch := range diff.DeployedContracts {
		view.ClassHashes[a] = ch
	}
	for a, ch := range diff.ReplacedClasses {
		view.ClassHashes[a] = ch
	}
	return view, true
}

// State reports the machine's current phase.
func (pr *Producer) State() State {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.state
}

func (pr *Producer) setState(s State) {
	pr.mu.Lock()
	pr.state = s
	pr.mu.Unlock()
}

// Mode returns the current production mode.
func (pr *Producer) Mode() Mode {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.mode
}

// SetMode switches production mode at the next loop iteration (the
// dev_* interval/instant toggles).
func (pr *Producer) SetMode(m Mode) {
	pr.mu.Lock()
	pr.mode = m
	pr.mu.Unlock()
}

// IncreaseNextBlockTimestamp shifts the next block's timestamp forward
// (the katana_increaseNextBlockTimestamp admin call).
func (pr *Producer) IncreaseNextBlockTimestamp(d time.Duration) {
	pr.mu.Lock()
	pr.timeOffset += d
	pr.mu.Unlock()
}

// Subscribe returns a channel receiving one HeadEvent per committed
// block. The channel is buffered; a slow subscriber drops events rather
// than stalling Publishing.
func (pr *Producer) Subscribe() <-chan HeadEvent {
	ch := make(chan HeadEvent, 16)
	pr.subsMu.Lock()
	pr.subs = append(pr.subs, ch)
	pr.subsMu.Unlock()
	return ch
}

func (pr *Producer) publish(ev HeadEvent) {
	pr.subsMu.Lock()
	defer pr.subsMu.Unlock()
	for _, ch := range pr.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Start runs the mode loop until ctx is cancelled.
func (pr *Producer) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pr.loop(ctx) })
	return g.Wait()
}

func (pr *Producer) loop(ctx context.Context) error {
	interval := pr.cfg.BlockTime
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if pr.Mode() != ModeInterval {
				continue
			}
			if _, err := pr.ProduceBlock(ctx); err != nil {
				pr.log.Error("interval block production failed", zap.Error(err))
			}
		case <-pr.pool.Notify():
			if pr.Mode() != ModeInstant {
				continue
			}
			if _, err := pr.ProduceBlock(ctx); err != nil {
				pr.log.Error("instant block production failed", zap.Error(err))
			}
		}
	}
}

// Mine runs n ProduceBlock cycles back to back (the katana_mine admin
// call); outside Interval mode a cycle with an empty pool produces no block.
func (pr *Producer) Mine(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if _, err := pr.ProduceBlock(ctx); err != nil {
			return err
		}
	}
	return nil
}

// openPending drains nothing yet: it stages the next block's environment
// over a fresh read snapshot.
func (pr *Producer) openPending() (*pendingBlock, error) {
	rd, release, err := pr.store.Reader()
	if err != nil {
		return nil, err
	}

	parentHash := felt.Zero
	number := uint64(0)
	if head, found, err := rd.HeadNumber(); err != nil {
		release()
		return nil, err
	} else if found {
		h, err := rd.HeaderByID(provider.Number(head))
		if err != nil {
			release()
			return nil, err
		}
		number = head + 1
		parentHash = h.Hash()
	}

	pr.mu.RLock()
	offset := pr.timeOffset
	pr.mu.RUnlock()

	header := block.Header{
		Number:           number,
		ParentHash:       parentHash,
		Timestamp:        uint64(pr.cfg.Now().Add(offset).Unix()),
		SequencerAddress: pr.cfg.SequencerAddress,
		L1GasPrice:       pr.cfg.L1GasPrice,
		L1DataGasPrice:   pr.cfg.L1DataGasPrice,
		L2GasPrice:       pr.cfg.L2GasPrice,
		StarknetVersion:  pr.cfg.StarknetVersion,
		ProtocolVersion:  pr.cfg.StarknetVersion,
	}
	staged := executor.NewStagedState(pr.cfg.BaseState(rd))
	return &pendingBlock{header: header, staged: staged, release: release}, nil
}

func (pr *Producer) blockEnv(h block.Header) executor.BlockEnv {
	return executor.BlockEnv{
		Number:           h.Number,
		Timestamp:        h.Timestamp,
		SequencerAddress: h.SequencerAddress,
		ChainID:          pr.cfg.ChainID,
		L1GasPrice:       h.L1GasPrice,
		L1DataGasPrice:   h.L1DataGasPrice,
		L2GasPrice:       h.L2GasPrice,
		StarknetVersion:  h.StarknetVersion,
		FeeDisabled:      pr.cfg.FeeDisabled,
	}
}

// ProducePending drains and executes a batch without committing: the
// result stays visible through the `pending` identifier until the next
// ProduceBlock call seals it.
func (pr *Producer) ProducePending(ctx context.Context) error {
	pr.run.Lock()
	defer pr.run.Unlock()
	_, err := pr.executeBatch(ctx)
	return err
}

// executeBatch drains the pool into the pending block, executing each
// transaction in order. Returns the drained batch (for rollback
// accounting).
func (pr *Producer) executeBatch(ctx context.Context) ([]pool.Pending, error) {
	pr.setState(StateDraining)
	batch := pr.pool.Drain(pr.cfg.MaxBatch)

	if len(batch) == 0 {
		pr.setState(StateIdle)
		return nil, nil
	}

	pr.mu.RLock()
	pb := pr.pending
	pr.mu.RUnlock()
	if pb == nil {
		var err error
		pb, err = pr.openPending()
		if err != nil {
			pr.pool.Reinject(batch)
			pr.setState(StateIdle)
			return nil, err
		}
		pr.mu.Lock()
		pr.pending = pb
		pr.mu.Unlock()
	}

	pr.setState(StateExecuting)
	env := pr.blockEnv(pb.header)
	for _, pend := range batch {
		if pend.Artifact != nil {
			if hash, ok := pend.Tx.DeclaredClassHash(); ok {
				if vm, ok := pr.exec.(*executor.RefVM); ok {
					vm.ProvideArtifact(hash, *pend.Artifact)
				}
			}
		}

		results, err := pr.exec.Execute(ctx, env, pb.staged, []txn.Transaction{pend.Tx})
		if err != nil {
			// Batch-level failure (context cancelled, storage error):
			// the whole pending block is abandoned.
			pr.abandonPending()
			pr.pool.Reinject(batch)
			pr.setState(StateIdle)
			return nil, err
		}
		res := results[0]
		if res.Rejected != nil {
			pr.log.Info("transaction rejected during execution",
				zap.String("hash", pend.Tx.Hash().Hex()), zap.Error(res.Rejected))
			continue
		}
		// Swap the executed transaction in atomically so `pending`
		// readers never observe a torn partial result.
		pr.mu.Lock()
		pb.txs = append(pb.txs, pend.Tx)
		pb.receipts = append(pb.receipts, res.Receipt)
		pb.traces = append(pb.traces, res.Trace)
		pb.diff = pb.staged.BlockDiff()
		pr.mu.Unlock()
	}
	return batch, nil
}

func (pr *Producer) abandonPending() {
	pr.mu.Lock()
	if pr.pending != nil {
		pr.pending.release()
		pr.pending = nil
	}
	pr.mu.Unlock()
}

// ProduceBlock runs one full cycle: drain, execute, commit, publish.
// With an empty pool it is a no-op in Manual/Instant mode and produces
// an empty block in Interval mode. Returns the committed header, or nil
// for a no-op.
func (pr *Producer) ProduceBlock(ctx context.Context) (*block.Header, error) {
	pr.run.Lock()
	defer pr.run.Unlock()

	batch, err := pr.executeBatch(ctx)
	if err != nil {
		return nil, err
	}

	pr.mu.RLock()
	pb := pr.pending
	pr.mu.RUnlock()

	if pb == nil || len(pb.txs) == 0 {
		if pr.Mode() != ModeInterval && pb == nil {
			// Nothing staged, nothing drained: idempotent no-op.
			return nil, nil
		}
		if pb == nil {
			pb, err = pr.openPending()
			if err != nil {
				return nil, err
			}
			pr.mu.Lock()
			pr.pending = pb
			pr.mu.Unlock()
		}
	}

	header, err := pr.commit(pb)
	if err != nil {
		pr.abandonPending()
		if len(batch) > 0 {
			// The whole drained batch goes back to the pool in drain
			// order; no transaction is re-validated or dropped here.
			pr.pool.Reinject(batch)
		}
		pr.setState(StateIdle)
		return nil, fmt.Errorf("producer: commit failed: %w", err)
	}
	return header, nil
}

// commit seals the pending block: computes commitments and the state
// root, writes everything through the sole BlockWriter in one RwTx, and
// publishes the new head. Once entered, the commit is not cancellable.
func (pr *Producer) commit(pb *pendingBlock) (*block.Header, error) {
	pr.setState(StateCommitting)

	updates := pb.staged.BlockDiff()

	w, tx, err := pr.store.Writer()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	header := pb.header
	txHashes := make([]felt.Felt, len(pb.txs))
	for i, t := range pb.txs {
		txHashes[i] = t.Hash()
	}
	header.TransactionsCommitment = block.TransactionsCommitment(txHashes)
	header.EventsCommitment = eventsCommitment(pb.receipts)
	header.ReceiptsCommitment = receiptsCommitment(pb.receipts)

	root, err := pr.trie.ApplyBlock(tx, header.Number, updates)
	if err != nil {
		return nil, err
	}
	header.StateRoot = root

	if err := w.InsertBlockWithStatesAndReceipts(header, pb.txs, updates, pb.receipts, pb.traces); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	pr.setState(StatePublishing)

	included := make([]felt.Felt, len(pb.txs))
	copy(included, txHashes)
	pr.pool.Remove(included)
	if rd, release, err := pr.store.Reader(); err == nil {
		pr.pool.OnHeadCommitted(executor.ProviderState{P: rd})
		release()
	}

	if m := pr.cfg.Metrics; m != nil {
		m.BlocksProduced.Inc()
		m.HeadNumber.Set(float64(header.Number))
		m.TxsCommitted.Add(float64(len(pb.txs)))
	}

	pr.abandonPending()
	pr.publish(HeadEvent{Number: header.Number, Hash: header.Hash()})
	pr.log.Info("block committed",
		zap.Uint64("number", header.Number),
		zap.Int("txs", len(pb.txs)),
		zap.String("state_root", header.StateRoot.Hex()))

	pr.setState(StateIdle)
	return &header, nil
}

// eventsCommitment folds every receipt's events into one Poseidon
// commitment, in block order.
func eventsCommitment(receipts []receipt.Receipt) felt.Felt {
	var elems []felt.Felt
	for _, r := range receipts {
		for _, e := range r.Events {
			elems = append(elems, e.FromAddress)
			elems = append(elems, e.Keys...)
			elems = append(elems, e.Data...)
		}
	}
	return felt.PoseidonHash(elems...)
}

// receiptsCommitment commits to (tx hash, status, fee) per receipt.
func receiptsCommitment(receipts []receipt.Receipt) felt.Felt {
	var elems []felt.Felt
	for _, r := range receipts {
		elems = append(elems, r.TxHash, felt.FromUint64(uint64(r.Status)), r.ActualFee)
	}
	return felt.PoseidonHash(elems...)
}
