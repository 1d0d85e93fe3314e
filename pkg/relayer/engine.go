package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainsafe/cccp-relayer/internal/metrics"
	"github.com/chainsafe/cccp-relayer/pkg/config"
	"github.com/chainsafe/cccp-relayer/pkg/db"
	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

const priceInterval = time.Minute

// ErrNotRelayer is returned when the configured relayer account is not
// registered in the relayer manager of the native chain.
var ErrNotRelayer = errors.New("account is not a registered relayer")

// Engine orchestrates the relayer: bootstrap first, then one head-following
// worker per chain.
type Engine struct {
	config     *config.Config
	chains     *chainSet
	store      db.Store
	logger     *zap.Logger
	instanceID string
	relayer    common.Address

	bootstrapper *Bootstrapper
	roundUps     *RoundUpHandler
	sockets      *SocketHandler
	roundTracker *RoundUpTracker

	ready   atomic.Bool
	cursors sync.Map // primitives.ChainID -> uint64

	errCh    chan error
	failOnce sync.Once
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine creates a new relayer engine
func NewEngine(cfg *config.Config, clients []ChainClient, store db.Store, sender Sender, logger *zap.Logger) (*Engine, error) {
	chains, err := newChainSet(clients)
	if err != nil {
		return nil, err
	}

	var relayer common.Address
	if cfg.Relayer.Address != "" {
		relayer = common.HexToAddress(cfg.Relayer.Address)
	}

	instanceID := uuid.NewString()
	logger = logger.With(zap.String("instance_id", instanceID))

	roundTracker := NewRoundUpTracker()
	roundUps := NewRoundUpHandler(chains, roundTracker, store, sender, relayer, logger)
	sockets := NewSocketHandler(chains, NewStatusTracker(store), roundTracker, sender, relayer, logger)
	bootstrapper := NewBootstrapper(chains, store, roundUps, sockets, BootstrapOptions{
		Enabled:   cfg.Bootstrap.Enabled,
		Lookback:  cfg.Bootstrap.Lookback,
		Constants: cfg.Bootstrap.ProtocolConstants(),
	}, logger)

	return &Engine{
		config:       cfg,
		chains:       chains,
		store:        store,
		logger:       logger,
		instanceID:   instanceID,
		relayer:      relayer,
		bootstrapper: bootstrapper,
		roundUps:     roundUps,
		sockets:      sockets,
		roundTracker: roundTracker,
		errCh:        make(chan error, 1),
		stopCh:       make(chan struct{}),
	}, nil
}

// Start checks the relayer registration and starts bootstrap and the chain
// workers in the background.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Starting relayer engine",
		zap.Int("chains", len(e.chains.all)),
		zap.String("native", e.chains.native.Metadata().Name()))

	if err := e.checkRelayer(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.run(ctx)
	}()

	go func() {
		select {
		case <-e.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return nil
}

// Stop stops the relayer engine
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.logger.Info("Stopping relayer engine")
		close(e.stopCh)
	})
	e.wg.Wait()
	e.logger.Info("Relayer engine stopped")
}

// Err delivers the first fatal error. The engine stops itself after sending it.
func (e *Engine) Err() <-chan error { return e.errCh }

// IsReady reports whether bootstrap has completed.
func (e *Engine) IsReady() bool { return e.ready.Load() }

// Phase returns the current bootstrap phase.
func (e *Engine) Phase() primitives.BootstrapState { return e.bootstrapper.Phase() }

// InstanceID identifies this engine run.
func (e *Engine) InstanceID() string { return e.instanceID }

// ChainStatus is the progress of one chain.
type ChainStatus struct {
	Name      string `json:"name"`
	ID        uint32 `json:"id"`
	IsNative  bool   `json:"is_native"`
	NextBlock uint64 `json:"next_block"`
}

// Status is a snapshot of the engine state.
type Status struct {
	InstanceID     string        `json:"instance_id"`
	Phase          string        `json:"phase"`
	Ready          bool          `json:"ready"`
	AuthorityRound string        `json:"authority_round,omitempty"`
	Chains         []ChainStatus `json:"chains"`
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	status := Status{
		InstanceID: e.instanceID,
		Phase:      e.Phase().String(),
		Ready:      e.IsReady(),
	}
	if set, ok := e.roundTracker.Current(); ok {
		status.AuthorityRound = set.Round.String()
	}
	for _, chain := range e.chains.all {
		md := chain.Metadata()
		cs := ChainStatus{Name: md.Name(), ID: uint32(md.ID()), IsNative: md.IsNative()}
		if next, ok := e.cursors.Load(md.ID()); ok {
			cs.NextBlock = next.(uint64)
		}
		status.Chains = append(status.Chains, cs)
	}
	return status
}

func (e *Engine) checkRelayer(ctx context.Context) error {
	if e.relayer == (common.Address{}) {
		return nil
	}
	registered, ok, err := e.chains.native.IsRelayer(ctx, e.relayer)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Warn("Native chain has no relayer manager; skipping registration check")
		return nil
	}
	if !registered {
		return fmt.Errorf("%w: %s", ErrNotRelayer, e.relayer.Hex())
	}
	return nil
}

func (e *Engine) run(ctx context.Context) {
	if err := e.bootstrapper.Run(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			e.fail(err)
		}
		return
	}

	for id, next := range e.bootstrapper.Cursors() {
		e.cursors.Store(id, next)
	}
	e.ready.Store(true)
	e.logger.Info("Bootstrap complete, following chain heads")

	var workers sync.WaitGroup
	for _, chain := range e.chains.all {
		workers.Add(1)
		go func(chain ChainClient) {
			defer workers.Done()
			e.follow(ctx, chain)
		}(chain)

		if len(chain.Contracts().Aggregators()) > 0 {
			workers.Add(1)
			go func(chain ChainClient) {
				defer workers.Done()
				e.watchPrices(ctx, chain)
			}(chain)
		}
	}
	workers.Wait()
}

// fail publishes the first fatal error and stops every worker.
func (e *Engine) fail(err error) {
	e.failOnce.Do(func() {
		e.logger.Error("Relayer engine failed", zap.Error(err))
		e.errCh <- err
		e.stopOnce.Do(func() { close(e.stopCh) })
	})
}

// follow scans new safe blocks of chain at its call interval.
func (e *Engine) follow(ctx context.Context, chain ChainClient) {
	md := chain.Metadata()
	logger := e.logger.With(zap.String("chain", md.Name()))

	ticker := time.NewTicker(md.CallInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.poll(ctx, chain); err != nil {
				if isFatal(err) {
					e.fail(err)
					return
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				metrics.ErrorsTotal.WithLabelValues("engine", "poll").Inc()
				logger.Error("Failed to process new blocks", zap.Error(err))
			}
		}
	}
}

// poll processes the blocks between the chain cursor and its safe block. The
// cursor and the stored safe block stop before the first log that failed, so
// the next poll retries from that block.
func (e *Engine) poll(ctx context.Context, chain ChainClient) error {
	md := chain.Metadata()
	var next uint64
	if v, ok := e.cursors.Load(md.ID()); ok {
		next = v.(uint64)
	}

	safe, ok, err := chain.SafeBlockNumber(ctx)
	if err != nil {
		return err
	}
	if !ok || safe < next {
		return nil
	}
	chunk := e.config.Bootstrap.BlockChunkSize
	resume := safe + 1

	if md.IsNative() {
		authority := chain.Contracts().Authority
		logs, err := chain.FilterLogs(ctx, authority.Address(), authority.RoundUpTopic(), next, safe, chunk)
		if err != nil {
			return err
		}
		failed, stopped, err := handleInOrder(logs,
			func(log types.Log) error { return e.roundUps.HandleLog(ctx, log) },
			func(log types.Log, err error) {
				metrics.ErrorsTotal.WithLabelValues("engine", "roundup").Inc()
				e.logger.Error("Failed to handle round up",
					zap.String("tx", log.TxHash.Hex()),
					zap.Uint64("block", log.BlockNumber),
					zap.Error(err))
			})
		if err != nil {
			return err
		}
		if stopped {
			resume = failed
		}
	}

	// socket events past a failed round up wait for it to be retried
	if resume > next {
		socket := chain.Contracts().Socket
		logs, err := chain.FilterLogs(ctx, socket.Address(), socket.EventTopic(), next, resume-1, chunk)
		if err != nil {
			return err
		}
		failed, stopped, err := handleInOrder(logs,
			func(log types.Log) error { return e.sockets.HandleLog(ctx, chain, log) },
			func(log types.Log, err error) {
				metrics.ErrorsTotal.WithLabelValues("engine", "socket").Inc()
				e.logger.Error("Failed to handle socket event",
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

	if resume > next {
		if err := e.store.SetChainState(ctx, md.ID(), resume-1); err != nil {
			return err
		}
		metrics.LastProcessedBlock.WithLabelValues(md.Name()).Set(float64(resume - 1))
	}
	e.cursors.Store(md.ID(), resume)
	return nil
}

// watchPrices refreshes the Chainlink price gauges of chain.
func (e *Engine) watchPrices(ctx context.Context, chain ChainClient) {
	name := chain.Metadata().Name()
	ticker := time.NewTicker(priceInterval)
	defer ticker.Stop()

	for {
		prices, err := chain.LatestPrices(ctx)
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("engine", "price_feed").Inc()
			e.logger.Warn("Failed to read price feeds", zap.String("chain", name), zap.Error(err))
		}
		for _, p := range prices {
			metrics.ChainlinkPrice.WithLabelValues(name, string(p.Pair)).Set(p.Price.InexactFloat64())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
