package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/chainsafe/cccp-relayer/internal/metrics"
	"github.com/chainsafe/cccp-relayer/pkg/db"
	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

// BootstrapOptions configures the historical reconciliation run before live
// processing.
type BootstrapOptions struct {
	// Enabled turns the historical phases on. When false every phase is
	// still visited but does no work and live processing starts at the
	// current safe block.
	Enabled   bool
	Lookback  time.Duration
	Constants primitives.ProtocolConstants
}

// scanRange is the inclusive block range a chain has to catch up on.
type scanRange struct {
	from, to uint64
	empty    bool
}

// Bootstrapper drives the bootstrap sequencer through every phase. It is
// owned by a single goroutine; Phase may be read concurrently.
type Bootstrapper struct {
	chains   *chainSet
	store    db.Store
	roundUps *RoundUpHandler
	sockets  *SocketHandler
	opts     BootstrapOptions
	logger   *zap.Logger

	sequencer *primitives.BootstrapSequencer
	phase     atomic.Uint32

	mu      sync.Mutex
	ranges  map[primitives.ChainID]scanRange
	cursors map[primitives.ChainID]uint64
	// roundUpStop is the native block of the first round up that failed
	// to replay. Native socket events from that block on are left for the
	// live scan.
	roundUpStop    uint64
	roundUpStopped bool
}

// NewBootstrapper creates a new bootstrapper
func NewBootstrapper(chains *chainSet, store db.Store, roundUps *RoundUpHandler, sockets *SocketHandler, opts BootstrapOptions, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{
		chains:    chains,
		store:     store,
		roundUps:  roundUps,
		sockets:   sockets,
		opts:      opts,
		logger:    logger.With(zap.String("component", "bootstrap")),
		sequencer: primitives.NewBootstrapSequencer(),
		ranges:    make(map[primitives.ChainID]scanRange),
		cursors:   make(map[primitives.ChainID]uint64),
	}
}

// Phase returns the current bootstrap phase.
func (b *Bootstrapper) Phase() primitives.BootstrapState {
	return primitives.BootstrapState(b.phase.Load())
}

// Cursors returns the next block to scan per chain once bootstrap is done.
func (b *Bootstrapper) Cursors() map[primitives.ChainID]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[primitives.ChainID]uint64, len(b.cursors))
	for id, next := range b.cursors {
		out[id] = next
	}
	return out
}

// Run executes every phase in order and returns once NormalStart is reached.
func (b *Bootstrapper) Run(ctx context.Context) error {
	for !b.sequencer.IsNormal() {
		current := b.sequencer.Current()
		start := time.Now()
		b.logger.Info("Bootstrap phase started", zap.Stringer("phase", current))

		if err := b.runPhase(ctx, current); err != nil {
			return fmt.Errorf("bootstrap phase %s: %w", current, err)
		}

		next, err := b.sequencer.Advance()
		if err != nil {
			return err
		}
		b.phase.Store(uint32(next))
		metrics.BootstrapPhase.Set(float64(next))
		b.logger.Info("Bootstrap phase finished",
			zap.Stringer("phase", current),
			zap.Stringer("next", next),
			zap.Duration("took", time.Since(start)))
	}
	return nil
}

func (b *Bootstrapper) runPhase(ctx context.Context, phase primitives.BootstrapState) error {
	switch phase {
	case primitives.NodeSyncing:
		return b.waitForSync(ctx)
	case primitives.BootstrapRoundUpPhase1:
		if !b.opts.Enabled {
			return nil
		}
		return b.redeliverRoundUps(ctx)
	case primitives.BootstrapRoundUpPhase2:
		if !b.opts.Enabled {
			return nil
		}
		return b.replayRoundUps(ctx)
	case primitives.BootstrapBridgeRelay:
		return b.replaySockets(ctx)
	default:
		return nil
	}
}

// waitForSync blocks until no chain reports itself as syncing.
func (b *Bootstrapper) waitForSync(ctx context.Context) error {
	for _, chain := range b.chains.all {
		md := chain.Metadata()
		for {
			syncing, err := chain.IsSyncing(ctx)
			if err != nil {
				return err
			}
			if !syncing {
				break
			}
			b.logger.Info("Waiting for node to sync", zap.String("chain", md.Name()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(md.CallInterval()):
			}
		}
	}
	return nil
}

// redeliverRoundUps re-emits every stored rotation not yet delivered.
func (b *Bootstrapper) redeliverRoundUps(ctx context.Context) error {
	pending, err := b.store.ListUndeliveredRoundUps(ctx)
	if err != nil {
		return err
	}
	for _, event := range pending {
		b.roundUps.tracker.Observe(event.Round, event.Status, event.Authorities)
		if err := b.roundUps.Deliver(ctx, event); err != nil {
			if isFatal(err) || errors.Is(err, context.Canceled) {
				return err
			}
			metrics.ErrorsTotal.WithLabelValues("bootstrap", "roundup_redeliver").Inc()
			b.logger.Error("Failed to redeliver round up",
				zap.String("round", event.Round.String()),
				zap.Error(err))
		}
	}
	b.logger.Info("Undelivered round ups processed", zap.Int("count", len(pending)))
	return nil
}

// replayRoundUps rebuilds the authority history of the native chain.
func (b *Bootstrapper) replayRoundUps(ctx context.Context) error {
	native := b.chains.native
	r, err := b.rangeOf(ctx, native)
	if err != nil || r.empty {
		return err
	}

	authority := native.Contracts().Authority
	logs, err := native.FilterLogs(ctx, authority.Address(), authority.RoundUpTopic(), r.from, r.to, b.opts.Constants.BlockChunkSize)
	if err != nil {
		return err
	}
	failed, stopped, err := handleInOrder(logs,
		func(log types.Log) error { return b.roundUps.HandleLog(ctx, log) },
		func(log types.Log, err error) {
			metrics.ErrorsTotal.WithLabelValues("bootstrap", "roundup").Inc()
			b.logger.Error("Failed to replay round up",
				zap.String("tx", log.TxHash.Hex()),
				zap.Uint64("block", log.BlockNumber),
				zap.Error(err))
		})
	if err != nil {
		return err
	}
	if stopped {
		b.mu.Lock()
		b.roundUpStop, b.roundUpStopped = failed, true
		b.mu.Unlock()
	}
	b.logger.Info("Round ups replayed",
		zap.Uint64("from_block", r.from),
		zap.Uint64("to_block", r.to),
		zap.Int("logs", len(logs)))
	return nil
}

// replaySockets rebuilds bridge request state on every chain and sets the
// live cursors. A chain whose replay failed resumes at the failed block.
func (b *Bootstrapper) replaySockets(ctx context.Context) error {
	for _, chain := range b.chains.all {
		md := chain.Metadata()
		if !b.opts.Enabled {
			safe, ok, err := chain.SafeBlockNumber(ctx)
			if err != nil {
				return err
			}
			next := uint64(0)
			if ok {
				next = safe + 1
			}
			b.setCursor(md.ID(), next)
			continue
		}

		r, err := b.rangeOf(ctx, chain)
		if err != nil {
			return err
		}
		if r.empty {
			b.setCursor(md.ID(), r.from)
			continue
		}

		resume := r.to + 1
		if md.IsNative() {
			b.mu.Lock()
			if b.roundUpStopped {
				resume = b.roundUpStop
			}
			b.mu.Unlock()
		}

		var logs []types.Log
		if resume > r.from {
			socket := chain.Contracts().Socket
			logs, err = chain.FilterLogs(ctx, socket.Address(), socket.EventTopic(), r.from, resume-1, b.opts.Constants.BlockChunkSize)
			if err != nil {
				return err
			}
			failed, stopped, err := handleInOrder(logs,
				func(log types.Log) error { return b.sockets.HandleLog(ctx, chain, log) },
				func(log types.Log, err error) {
					metrics.ErrorsTotal.WithLabelValues("bootstrap", "socket").Inc()
					b.logger.Error("Failed to replay socket event",
						zap.String("chain", md.Name()),
						zap.String("tx", log.TxHash.Hex()),
						zap.Uint64("block", log.BlockNumber),
						zap.Error(err))
				})
			if err != nil {
				return err
			}
			if stopped && failed < resume {
				resume = failed
			}
		}
		if resume > r.from {
			if err := b.store.SetChainState(ctx, md.ID(), resume-1); err != nil {
				return err
			}
			metrics.LastProcessedBlock.WithLabelValues(md.Name()).Set(float64(resume - 1))
		}
		b.setCursor(md.ID(), resume)

		b.logger.Info("Socket events replayed",
			zap.String("chain", md.Name()),
			zap.Uint64("from_block", r.from),
			zap.Uint64("to_block", r.to),
			zap.Uint64("next_block", resume),
			zap.Int("logs", len(logs)))
	}
	return nil
}

func (b *Bootstrapper) setCursor(id primitives.ChainID, next uint64) {
	b.mu.Lock()
	b.cursors[id] = next
	b.mu.Unlock()
}

// rangeOf computes, once per chain, the range between the stored safe block
// and the current safe block. Without a stored block the start is estimated
// from the lookback window and the measured block time.
func (b *Bootstrapper) rangeOf(ctx context.Context, chain ChainClient) (scanRange, error) {
	md := chain.Metadata()
	b.mu.Lock()
	r, ok := b.ranges[md.ID()]
	b.mu.Unlock()
	if ok {
		return r, nil
	}

	safe, ok, err := chain.SafeBlockNumber(ctx)
	if err != nil {
		return scanRange{}, err
	}
	if !ok {
		r = scanRange{empty: true}
		b.storeRange(md.ID(), r)
		return r, nil
	}

	from, err := b.startBlock(ctx, chain, safe)
	if err != nil {
		return scanRange{}, err
	}
	r = scanRange{from: from, to: safe, empty: from > safe}
	b.storeRange(md.ID(), r)
	return r, nil
}

func (b *Bootstrapper) storeRange(id primitives.ChainID, r scanRange) {
	b.mu.Lock()
	b.ranges[id] = r
	b.mu.Unlock()
}

func (b *Bootstrapper) startBlock(ctx context.Context, chain ChainClient, safe uint64) (uint64, error) {
	md := chain.Metadata()
	state, err := b.store.GetChainState(ctx, md.ID())
	if err == nil {
		return state.SafeBlock + 1, nil
	}
	if !errors.Is(err, db.ErrChainStateNotFound) {
		return 0, err
	}

	blockTime, err := chain.AverageBlockTime(ctx, b.opts.Constants.BlockOffset, b.opts.Constants.ReferenceBlockTime(md.IsNative()))
	if err != nil {
		return 0, err
	}
	return LookbackStart(safe, b.opts.Lookback, blockTime), nil
}

// LookbackStart returns the block roughly lookback before safe, floored at 0.
func LookbackStart(safe uint64, lookback, blockTime time.Duration) uint64 {
	if blockTime <= 0 || lookback <= 0 {
		return safe
	}
	blocks := uint64(lookback / blockTime)
	if blocks > safe {
		return 0
	}
	return safe - blocks
}
