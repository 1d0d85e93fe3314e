package relayer

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/cccp-relayer/pkg/db"
	"github.com/chainsafe/cccp-relayer/pkg/ethereum/contracts"
	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

type bootstrapFixture struct {
	native *MockChainClient
	eth    *MockChainClient
	store  *MockStore
	sender *MockSender
	boot   *Bootstrapper
}

func newBootstrapFixture(t *testing.T, enabled bool) *bootstrapFixture {
	t.Helper()
	f := &bootstrapFixture{
		native: newMockChain(t, "bifrost", 3068, true),
		eth:    newMockChain(t, "ethereum", 1, false),
		store:  NewMockStore(),
		sender: &MockSender{},
	}
	chains := mustChainSet(t, f.native, f.eth)
	rounds := NewRoundUpTracker()
	roundUps := NewRoundUpHandler(chains, rounds, f.store, f.sender, common.Address{}, zap.NewNop())
	sockets := NewSocketHandler(chains, NewStatusTracker(f.store), rounds, f.sender, common.Address{}, zap.NewNop())
	f.boot = NewBootstrapper(chains, f.store, roundUps, sockets, BootstrapOptions{
		Enabled:   enabled,
		Lookback:  time.Hour,
		Constants: primitives.DefaultProtocolConstants(),
	}, zap.NewNop())
	return f
}

func safeAt(block uint64) func(context.Context) (uint64, bool, error) {
	return func(context.Context) (uint64, bool, error) { return block, true, nil }
}

func TestBootstrapper_FullRun(t *testing.T) {
	f := newBootstrapFixture(t, true)
	ctx := context.Background()

	// round 3 was committed before the restart but never delivered
	key, previous := newKey(t)
	pendingAuths := []common.Address{common.HexToAddress("0x03")}
	require.NoError(t, f.store.SaveRoundUp(ctx, &db.RoundUpEvent{
		Round:       big.NewInt(3),
		Status:      primitives.NextAuthorityCommitted,
		Authorities: pendingAuths,
		ChainID:     3068,
	}))
	f.native.RoundSignaturesFunc = func(_ context.Context, round *big.Int) ([]primitives.Signature, error) {
		hash, err := contracts.RoundUpHash(round, pendingAuths)
		require.NoError(t, err)
		return []primitives.Signature{sign(t, key, hash)}, nil
	}
	f.native.AuthoritiesFunc = func(context.Context, *big.Int) ([]common.Address, error) {
		return []common.Address{previous}, nil
	}

	// native chain resumes from a stored block, ethereum uses the lookback
	require.NoError(t, f.store.SetChainState(ctx, 3068, 5000))
	f.native.SafeBlockNumberFunc = safeAt(9000)
	f.eth.SafeBlockNumberFunc = safeAt(20000)

	var syncingCalls atomic.Int32
	f.eth.IsSyncingFunc = func(context.Context) (bool, error) {
		return syncingCalls.Add(1) == 1, nil
	}

	type query struct {
		address  common.Address
		from, to uint64
		chunk    uint64
	}
	var nativeQueries, ethQueries []query
	f.native.FilterLogsFunc = func(_ context.Context, address common.Address, topic common.Hash, from, to, chunk uint64) ([]types.Log, error) {
		nativeQueries = append(nativeQueries, query{address, from, to, chunk})
		if topic == f.native.Contracts().Authority.RoundUpTopic() {
			return []types.Log{roundUpLog(t, f.native, 4, primitives.NextAuthorityRelayed.Code(), pendingAuths, 6000)}, nil
		}
		return []types.Log{socketLog(t, f.native, hashOf(1), 3068, 1, primitives.Requested.Code(), 7000)}, nil
	}
	f.eth.FilterLogsFunc = func(_ context.Context, address common.Address, _ common.Hash, from, to, chunk uint64) ([]types.Log, error) {
		ethQueries = append(ethQueries, query{address, from, to, chunk})
		return []types.Log{socketLog(t, f.eth, hashOf(2), 1, 3068, primitives.Requested.Code(), 19000)}, nil
	}

	require.NoError(t, f.boot.Run(ctx))
	assert.Equal(t, primitives.NormalStart, f.boot.Phase())
	assert.Equal(t, int32(2), syncingCalls.Load())

	// phase 1 delivered the pending round to ethereum
	assert.True(t, f.store.roundUp(3).Delivered)
	// phase 2 recorded the replayed rotation
	require.NotNil(t, f.store.roundUp(4))

	require.Len(t, nativeQueries, 2)
	assert.Equal(t, query{f.native.Contracts().Authority.Address(), 5001, 9000, 2000}, nativeQueries[0])
	assert.Equal(t, query{f.native.Contracts().Socket.Address(), 5001, 9000, 2000}, nativeQueries[1])

	// 1h at the 12s reference block time is 300 blocks
	require.Len(t, ethQueries, 1)
	assert.Equal(t, query{f.eth.Contracts().Socket.Address(), 19700, 20000, 2000}, ethQueries[0])

	assert.Equal(t, map[primitives.ChainID]uint64{3068: 9001, 1: 20001}, f.boot.Cursors())

	state, err := f.store.GetChainState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(20000), state.SafeBlock)

	// one round control relay plus one poll per socket event
	assert.Len(t, f.sender.Sent(), 3)
}

func TestBootstrapper_Disabled(t *testing.T) {
	f := newBootstrapFixture(t, false)
	f.native.SafeBlockNumberFunc = safeAt(100)
	f.eth.SafeBlockNumberFunc = func(context.Context) (uint64, bool, error) { return 0, false, nil }
	f.native.FilterLogsFunc = func(context.Context, common.Address, common.Hash, uint64, uint64, uint64) ([]types.Log, error) {
		t.Fatal("no history is scanned when bootstrap is disabled")
		return nil, nil
	}
	f.eth.FilterLogsFunc = f.native.FilterLogsFunc

	require.NoError(t, f.boot.Run(context.Background()))
	assert.Equal(t, primitives.NormalStart, f.boot.Phase())
	assert.Equal(t, map[primitives.ChainID]uint64{3068: 101, 1: 0}, f.boot.Cursors())
}

func TestBootstrapper_AlreadyCaughtUp(t *testing.T) {
	f := newBootstrapFixture(t, true)
	require.NoError(t, f.store.SetChainState(context.Background(), 3068, 500))
	require.NoError(t, f.store.SetChainState(context.Background(), 1, 800))
	f.native.SafeBlockNumberFunc = safeAt(500)
	f.eth.SafeBlockNumberFunc = safeAt(800)
	f.native.FilterLogsFunc = func(context.Context, common.Address, common.Hash, uint64, uint64, uint64) ([]types.Log, error) {
		t.Fatal("nothing to scan")
		return nil, nil
	}
	f.eth.FilterLogsFunc = f.native.FilterLogsFunc

	require.NoError(t, f.boot.Run(context.Background()))
	assert.Equal(t, map[primitives.ChainID]uint64{3068: 501, 1: 801}, f.boot.Cursors())
}

func TestBootstrapper_FatalStatusStopsBootstrap(t *testing.T) {
	f := newBootstrapFixture(t, true)
	f.native.SafeBlockNumberFunc = safeAt(100)
	f.eth.SafeBlockNumberFunc = safeAt(100)
	f.eth.FilterLogsFunc = func(context.Context, common.Address, common.Hash, uint64, uint64, uint64) ([]types.Log, error) {
		return []types.Log{socketLog(t, f.eth, hashOf(9), 1, 3068, 42, 50)}, nil
	}

	err := f.boot.Run(context.Background())
	require.ErrorIs(t, err, primitives.ErrUnknownSocketStatus)
	assert.Equal(t, primitives.BootstrapBridgeRelay, f.boot.Phase())
}

func TestBootstrapper_FailedReplayResumesAtFailedBlock(t *testing.T) {
	f := newBootstrapFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.store.SetChainState(ctx, 3068, 10))
	require.NoError(t, f.store.SetChainState(ctx, 1, 10))
	f.native.SafeBlockNumberFunc = safeAt(100)
	f.eth.SafeBlockNumberFunc = safeAt(100)

	f.native.RoundSignaturesFunc = func(context.Context, *big.Int) ([]primitives.Signature, error) {
		return nil, errors.New("rpc timeout")
	}
	f.native.EstimateGasLimitFunc = func(context.Context, ethereum.CallMsg, primitives.GasCoefficient) (uint64, error) {
		return 0, errors.New("execution reverted")
	}

	var nativeSocketTo uint64
	f.native.FilterLogsFunc = func(_ context.Context, _ common.Address, topic common.Hash, _, to, _ uint64) ([]types.Log, error) {
		if topic == f.native.Contracts().Authority.RoundUpTopic() {
			return []types.Log{roundUpLog(t, f.native, 6, primitives.NextAuthorityCommitted.Code(), nil, 70)}, nil
		}
		nativeSocketTo = to
		return nil, nil
	}
	f.eth.FilterLogsFunc = func(context.Context, common.Address, common.Hash, uint64, uint64, uint64) ([]types.Log, error) {
		return []types.Log{
			socketLog(t, f.eth, hashOf(1), 1, 3068, primitives.Requested.Code(), 40),
			socketLog(t, f.eth, hashOf(2), 1, 3068, primitives.Requested.Code(), 60),
		}, nil
	}

	require.NoError(t, f.boot.Run(ctx))
	assert.Equal(t, primitives.NormalStart, f.boot.Phase())

	// native socket events stop before the failed round up
	assert.Equal(t, uint64(69), nativeSocketTo)
	assert.Equal(t, map[primitives.ChainID]uint64{3068: 70, 1: 40}, f.boot.Cursors())

	state, err := f.store.GetChainState(ctx, 3068)
	require.NoError(t, err)
	assert.Equal(t, uint64(69), state.SafeBlock)
	state, err = f.store.GetChainState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(39), state.SafeBlock)

	// nothing after the failed request was handled
	assert.Empty(t, f.sender.Sent())
	_, ok := f.store.socketStatus(hashOf(2))
	assert.False(t, ok)
	assert.False(t, f.store.roundUp(6).Delivered)
}

func TestBootstrapper_SyncErrorAndCancel(t *testing.T) {
	f := newBootstrapFixture(t, true)
	f.native.IsSyncingFunc = func(context.Context) (bool, error) { return false, errors.New("rpc down") }
	require.Error(t, f.boot.Run(context.Background()))
	assert.Equal(t, primitives.NodeSyncing, f.boot.Phase())

	f = newBootstrapFixture(t, true)
	f.native.IsSyncingFunc = func(context.Context) (bool, error) { return true, nil }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, f.boot.Run(ctx), context.Canceled)
}

func TestLookbackStart(t *testing.T) {
	tests := []struct {
		name      string
		safe      uint64
		lookback  time.Duration
		blockTime time.Duration
		want      uint64
	}{
		{"native", 10000, time.Hour, 3 * time.Second, 8800},
		{"external", 10000, time.Hour, 12 * time.Second, 9700},
		{"floored at genesis", 100, time.Hour, 3 * time.Second, 0},
		{"zero lookback", 100, 0, 3 * time.Second, 100},
		{"zero block time", 100, time.Hour, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LookbackStart(tt.safe, tt.lookback, tt.blockTime))
		})
	}
}
