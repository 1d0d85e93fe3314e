// Package relayer observes socket and authority events on every configured
// chain and turns them into relay transactions.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainsafe/cccp-relayer/pkg/ethereum/contracts"
	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

var (
	// ErrUnknownChain is returned when an event references an unconfigured chain.
	ErrUnknownChain = errors.New("unknown chain")
	// ErrNoValidSignatures is returned when none of the collected signatures is usable.
	ErrNoValidSignatures = errors.New("no valid signatures")
)

// ChainClient defines the interface for interactions with one chain
type ChainClient interface {
	Metadata() *primitives.ProviderMetadata
	Contracts() *contracts.Binding

	IsSyncing(ctx context.Context) (bool, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	SafeBlockNumber(ctx context.Context) (uint64, bool, error)
	FilterLogs(ctx context.Context, address common.Address, topic common.Hash, from, to, chunk uint64) ([]types.Log, error)
	AverageBlockTime(ctx context.Context, offset uint64, fallback time.Duration) (time.Duration, error)
	EstimateGasLimit(ctx context.Context, msg ethereum.CallMsg, coefficient primitives.GasCoefficient) (uint64, error)

	RoundSignatures(ctx context.Context, round *big.Int) ([]primitives.Signature, error)
	RequestSignatures(ctx context.Context, requestHash common.Hash) (*big.Int, []primitives.Signature, error)
	Authorities(ctx context.Context, round *big.Int) ([]common.Address, error)
	IsRelayer(ctx context.Context, account common.Address) (registered, ok bool, err error)
	LatestPrices(ctx context.Context) ([]*contracts.PriceRound, error)
}

// Sender hands relay transactions to the broadcast pipeline
type Sender interface {
	Send(ctx context.Context, chainID primitives.ChainID, tx primitives.BuiltRelayTransaction) error
}

// chainSet indexes the configured chains. It is read-only after construction.
type chainSet struct {
	byID   map[primitives.ChainID]ChainClient
	all    []ChainClient
	native ChainClient
}

func newChainSet(clients []ChainClient) (*chainSet, error) {
	set := &chainSet{byID: make(map[primitives.ChainID]ChainClient, len(clients))}
	for _, c := range clients {
		id := c.Metadata().ID()
		if _, dup := set.byID[id]; dup {
			return nil, fmt.Errorf("duplicate chain id %d", id)
		}
		set.byID[id] = c
		set.all = append(set.all, c)
		if c.Metadata().IsNative() {
			if set.native != nil {
				return nil, fmt.Errorf("chains %s and %s are both native", set.native.Metadata(), c.Metadata())
			}
			set.native = c
		}
	}
	if set.native == nil {
		return nil, errors.New("no native chain configured")
	}
	return set, nil
}

func (s *chainSet) get(id primitives.ChainID) (ChainClient, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, id)
	}
	return c, nil
}

func (s *chainSet) external() []ChainClient {
	out := make([]ChainClient, 0, len(s.all))
	for _, c := range s.all {
		if !c.Metadata().IsNative() {
			out = append(out, c)
		}
	}
	return out
}

// txBuilder turns calldata into relay transactions for a target chain.
type txBuilder struct {
	from common.Address
}

func (b txBuilder) build(ctx context.Context, target ChainClient, to common.Address, data []byte) (primitives.BuiltRelayTransaction, error) {
	md := target.Metadata()
	msg := ethereum.CallMsg{From: b.from, To: &to, Data: data}
	gas, err := target.EstimateGasLimit(ctx, msg, primitives.CoefficientFor(md.Direction()))
	if err != nil {
		return primitives.BuiltRelayTransaction{}, fmt.Errorf("chain %s: %w", md, err)
	}
	msg.Gas = gas
	return primitives.NewBuiltRelayTransaction(msg, !md.IsNative()), nil
}

// isFatal reports whether err means the chain data can no longer be trusted.
func isFatal(err error) bool {
	return errors.Is(err, primitives.ErrUnknownSocketStatus) || errors.Is(err, primitives.ErrUnknownRoundUpStatus)
}

// handleInOrder feeds logs to handle in order and stops at the first failure.
// A fatal error is returned. Any other failure is passed to onFailure and the
// block of the failed log is returned so the scan resumes there.
func handleInOrder(logs []types.Log, handle func(types.Log) error, onFailure func(types.Log, error)) (uint64, bool, error) {
	for _, log := range logs {
		if err := handle(log); err != nil {
			if isFatal(err) {
				return 0, false, err
			}
			onFailure(log, err)
			return log.BlockNumber, true, nil
		}
	}
	return 0, false, nil
}
