package relayer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/cccp-relayer/pkg/db"
	"github.com/chainsafe/cccp-relayer/pkg/ethereum/contracts"
	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

const testGas = uint64(100000)

// MockChainClient is a mock implementation of ChainClient
type MockChainClient struct {
	metadata *primitives.ProviderMetadata
	binding  *contracts.Binding

	IsSyncingFunc         func(ctx context.Context) (bool, error)
	SafeBlockNumberFunc   func(ctx context.Context) (uint64, bool, error)
	FilterLogsFunc        func(ctx context.Context, address common.Address, topic common.Hash, from, to, chunk uint64) ([]types.Log, error)
	AverageBlockTimeFunc  func(ctx context.Context, offset uint64, fallback time.Duration) (time.Duration, error)
	EstimateGasLimitFunc  func(ctx context.Context, msg ethereum.CallMsg, coefficient primitives.GasCoefficient) (uint64, error)
	RoundSignaturesFunc   func(ctx context.Context, round *big.Int) ([]primitives.Signature, error)
	RequestSignaturesFunc func(ctx context.Context, requestHash common.Hash) (*big.Int, []primitives.Signature, error)
	AuthoritiesFunc       func(ctx context.Context, round *big.Int) ([]common.Address, error)
	IsRelayerFunc         func(ctx context.Context, account common.Address) (bool, bool, error)
	LatestPricesFunc      func(ctx context.Context) ([]*contracts.PriceRound, error)
}

func newMockChain(t *testing.T, name string, id primitives.ChainID, native bool) *MockChainClient {
	t.Helper()
	md, err := primitives.NewProviderMetadata(name, id, 2, 1, 5*time.Millisecond, native)
	require.NoError(t, err)

	binding, err := contracts.NewBinding(contracts.Addresses{
		Socket:    common.BigToAddress(big.NewInt(int64(id)*10 + 1)).Hex(),
		Vault:     common.BigToAddress(big.NewInt(int64(id)*10 + 2)).Hex(),
		Authority: common.BigToAddress(big.NewInt(int64(id)*10 + 3)).Hex(),
	}, nil)
	require.NoError(t, err)

	return &MockChainClient{metadata: md, binding: binding}
}

func (m *MockChainClient) Metadata() *primitives.ProviderMetadata { return m.metadata }

func (m *MockChainClient) Contracts() *contracts.Binding { return m.binding }

func (m *MockChainClient) IsSyncing(ctx context.Context) (bool, error) {
	if m.IsSyncingFunc != nil {
		return m.IsSyncingFunc(ctx)
	}
	return false, nil
}

func (m *MockChainClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	safe, _, err := m.SafeBlockNumber(ctx)
	return safe + m.metadata.BlockConfirmations(), err
}

func (m *MockChainClient) SafeBlockNumber(ctx context.Context) (uint64, bool, error) {
	if m.SafeBlockNumberFunc != nil {
		return m.SafeBlockNumberFunc(ctx)
	}
	return 0, false, nil
}

func (m *MockChainClient) FilterLogs(ctx context.Context, address common.Address, topic common.Hash, from, to, chunk uint64) ([]types.Log, error) {
	if m.FilterLogsFunc != nil {
		return m.FilterLogsFunc(ctx, address, topic, from, to, chunk)
	}
	return nil, nil
}

func (m *MockChainClient) AverageBlockTime(ctx context.Context, offset uint64, fallback time.Duration) (time.Duration, error) {
	if m.AverageBlockTimeFunc != nil {
		return m.AverageBlockTimeFunc(ctx, offset, fallback)
	}
	return fallback, nil
}

func (m *MockChainClient) EstimateGasLimit(ctx context.Context, msg ethereum.CallMsg, coefficient primitives.GasCoefficient) (uint64, error) {
	if m.EstimateGasLimitFunc != nil {
		return m.EstimateGasLimitFunc(ctx, msg, coefficient)
	}
	return testGas, nil
}

func (m *MockChainClient) RoundSignatures(ctx context.Context, round *big.Int) ([]primitives.Signature, error) {
	if m.RoundSignaturesFunc != nil {
		return m.RoundSignaturesFunc(ctx, round)
	}
	return nil, nil
}

func (m *MockChainClient) RequestSignatures(ctx context.Context, requestHash common.Hash) (*big.Int, []primitives.Signature, error) {
	if m.RequestSignaturesFunc != nil {
		return m.RequestSignaturesFunc(ctx, requestHash)
	}
	return big.NewInt(0), nil, nil
}

func (m *MockChainClient) Authorities(ctx context.Context, round *big.Int) ([]common.Address, error) {
	if m.AuthoritiesFunc != nil {
		return m.AuthoritiesFunc(ctx, round)
	}
	return nil, nil
}

func (m *MockChainClient) IsRelayer(ctx context.Context, account common.Address) (bool, bool, error) {
	if m.IsRelayerFunc != nil {
		return m.IsRelayerFunc(ctx, account)
	}
	return false, false, nil
}

func (m *MockChainClient) LatestPrices(ctx context.Context) ([]*contracts.PriceRound, error) {
	if m.LatestPricesFunc != nil {
		return m.LatestPricesFunc(ctx)
	}
	return nil, nil
}

// MockSender records every transaction it is given
type MockSender struct {
	mu       sync.Mutex
	sent     []QueuedTransaction
	SendFunc func(ctx context.Context, chainID primitives.ChainID, tx primitives.BuiltRelayTransaction) error
}

func (m *MockSender) Send(ctx context.Context, chainID primitives.ChainID, tx primitives.BuiltRelayTransaction) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, chainID, tx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, QueuedTransaction{ChainID: chainID, Tx: tx})
	return nil
}

func (m *MockSender) Sent() []QueuedTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]QueuedTransaction(nil), m.sent...)
}

// MockStore is an in-memory db.Store
type MockStore struct {
	mu          sync.Mutex
	chainStates map[primitives.ChainID]uint64
	roundUps    map[string]*db.RoundUpEvent
	sockets     map[common.Hash]*db.SocketEvent

	GetSocketEventErr error
}

func NewMockStore() *MockStore {
	return &MockStore{
		chainStates: make(map[primitives.ChainID]uint64),
		roundUps:    make(map[string]*db.RoundUpEvent),
		sockets:     make(map[common.Hash]*db.SocketEvent),
	}
}

func (m *MockStore) GetChainState(_ context.Context, chainID primitives.ChainID) (*db.ChainState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	safe, ok := m.chainStates[chainID]
	if !ok {
		return nil, db.ErrChainStateNotFound
	}
	return &db.ChainState{ChainID: chainID, SafeBlock: safe}, nil
}

func (m *MockStore) SetChainState(_ context.Context, chainID primitives.ChainID, safeBlock uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if safeBlock > m.chainStates[chainID] {
		m.chainStates[chainID] = safeBlock
	}
	return nil
}

func (m *MockStore) SaveRoundUp(_ context.Context, event *db.RoundUpEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := event.Round.String()
	if prev, ok := m.roundUps[key]; ok && prev.Status >= event.Status {
		return nil
	}
	cp := *event
	cp.Delivered = false
	m.roundUps[key] = &cp
	return nil
}

func (m *MockStore) ListUndeliveredRoundUps(_ context.Context) ([]*db.RoundUpEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db.RoundUpEvent
	for _, ev := range m.roundUps {
		if !ev.Delivered {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round.Cmp(out[j].Round) < 0 })
	return out, nil
}

func (m *MockStore) MarkRoundUpDelivered(_ context.Context, round *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.roundUps[round.String()]; ok {
		ev.Delivered = true
	}
	return nil
}

func (m *MockStore) GetSocketEvent(_ context.Context, requestHash common.Hash) (*db.SocketEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetSocketEventErr != nil {
		return nil, m.GetSocketEventErr
	}
	ev, ok := m.sockets[requestHash]
	if !ok {
		return nil, db.ErrSocketEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (m *MockStore) UpsertSocketEvent(_ context.Context, event *db.SocketEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sockets[event.RequestHash]; ok && !prev.Status.Reaches(event.Status) {
		return false, nil
	}
	cp := *event
	m.sockets[event.RequestHash] = &cp
	return true, nil
}

func (m *MockStore) roundUp(round int64) *db.RoundUpEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roundUps[big.NewInt(round).String()]
}

func (m *MockStore) socketStatus(requestHash common.Hash) (primitives.SocketEventStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.sockets[requestHash]
	if !ok {
		return 0, false
	}
	return ev.Status, true
}

func socketLog(t *testing.T, chain *MockChainClient, requestHash common.Hash, src, dst uint32, status uint8, block uint64) types.Log {
	t.Helper()
	parsed, err := contracts.SocketMetaData.GetAbi()
	require.NoError(t, err)
	data, err := parsed.Events["Socket"].Inputs.NonIndexed().Pack(src, dst, big.NewInt(1), status, []byte{0x01})
	require.NoError(t, err)

	socket := chain.Contracts().Socket
	return types.Log{
		Address:     socket.Address(),
		Topics:      []common.Hash{socket.EventTopic(), requestHash},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
	}
}

func roundUpLog(t *testing.T, chain *MockChainClient, round int64, status uint8, authorities []common.Address, block uint64) types.Log {
	t.Helper()
	parsed, err := contracts.AuthorityMetaData.GetAbi()
	require.NoError(t, err)
	data, err := parsed.Events["RoundUp"].Inputs.NonIndexed().Pack(status, authorities)
	require.NoError(t, err)

	authority := chain.Contracts().Authority
	return types.Log{
		Address:     authority.Address(),
		Topics:      []common.Hash{authority.RoundUpTopic(), common.BigToHash(big.NewInt(round))},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
	}
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func sign(t *testing.T, key *ecdsa.PrivateKey, hash common.Hash) primitives.Signature {
	t.Helper()
	raw, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)
	sig, err := primitives.SignatureFromBytes(raw)
	require.NoError(t, err)
	return sig
}

func mustChainSet(t *testing.T, clients ...ChainClient) *chainSet {
	t.Helper()
	set, err := newChainSet(clients)
	require.NoError(t, err)
	return set
}

func hashOf(i int) common.Hash { return crypto.Keccak256Hash([]byte(fmt.Sprintf("request-%d", i))) }
