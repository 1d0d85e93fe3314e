package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/chainsafe/cccp-relayer/pkg/config"
	"github.com/chainsafe/cccp-relayer/pkg/ethereum/contracts"
	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

// Provider is the connection to one EVM chain together with its metadata
// and protocol contracts.
type Provider struct {
	metadata  *primitives.ProviderMetadata
	contracts *contracts.Binding
	client    *ethclient.Client
	logger    *zap.Logger
}

// Dial connects to the chain described by cfg. Metadata and contract
// addresses are validated before any network access.
func Dial(ctx context.Context, cfg *config.ChainConfig, logger *zap.Logger) (*Provider, error) {
	metadata, err := cfg.Metadata()
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", cfg.Name, err)
	}

	binding, err := contracts.NewBinding(cfg.Addresses(), client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain %s: %w", cfg.Name, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read %s chain id: %w", cfg.Name, err)
	}
	if chainID.Cmp(new(big.Int).SetUint64(uint64(metadata.ID()))) != 0 {
		client.Close()
		return nil, fmt.Errorf("chain %s: configured id %d but RPC reports %s", cfg.Name, metadata.ID(), chainID)
	}

	if err := verifyVault(ctx, binding); err != nil {
		client.Close()
		return nil, fmt.Errorf("chain %s: %w", cfg.Name, err)
	}

	logger = logger.With(zap.String("chain", metadata.Name()), zap.Uint32("chain_id", uint32(metadata.ID())))
	logger.Info("Connected to chain",
		zap.String("socket", binding.Socket.Address().Hex()),
		zap.String("authority", binding.Authority.Address().Hex()),
		zap.Uint64("block_confirmations", metadata.BlockConfirmations()),
		zap.Bool("is_native", metadata.IsNative()))

	return &Provider{
		metadata:  metadata,
		contracts: binding,
		client:    client,
		logger:    logger,
	}, nil
}

// Close closes the RPC connection
func (p *Provider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

// Metadata returns the chain metadata.
func (p *Provider) Metadata() *primitives.ProviderMetadata { return p.metadata }

// Contracts returns the protocol contract handles.
func (p *Provider) Contracts() *contracts.Binding { return p.contracts }

// IsSyncing reports whether the node is still catching up with the network.
func (p *Provider) IsSyncing(ctx context.Context) (bool, error) {
	progress, err := p.client.SyncProgress(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get sync progress: %w", err)
	}
	return progress != nil, nil
}

// LatestBlockNumber gets the latest block number
func (p *Provider) LatestBlockNumber(ctx context.Context) (uint64, error) {
	number, err := p.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return number, nil
}

// SafeBlockNumber returns the head minus the finality margin. ok is false
// while the chain is shorter than the margin.
func (p *Provider) SafeBlockNumber(ctx context.Context) (safe uint64, ok bool, err error) {
	head, err := p.LatestBlockNumber(ctx)
	if err != nil {
		return 0, false, err
	}
	safe, ok = p.metadata.SafeBlock(head)
	return safe, ok, nil
}

// FilterLogs fetches logs in [from, to] in windows of chunk blocks.
func (p *Provider) FilterLogs(ctx context.Context, address common.Address, topic common.Hash, from, to, chunk uint64) ([]types.Log, error) {
	var logs []types.Log
	for _, window := range primitives.SplitBlockRange(from, to, chunk) {
		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(window.From),
			ToBlock:   new(big.Int).SetUint64(window.To),
			Addresses: []common.Address{address},
			Topics:    [][]common.Hash{{topic}},
		}
		batch, err := p.client.FilterLogs(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to filter logs %d-%d: %w", window.From, window.To, err)
		}
		p.logger.Debug("Fetched logs",
			zap.Uint64("from_block", window.From),
			zap.Uint64("to_block", window.To),
			zap.Int("count", len(batch)))
		logs = append(logs, batch...)
	}
	return logs, nil
}

// AverageBlockTime measures the block time over the last offset blocks.
// fallback is returned when the chain is shorter than offset.
func (p *Provider) AverageBlockTime(ctx context.Context, offset uint64, fallback time.Duration) (time.Duration, error) {
	head, err := p.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest header: %w", err)
	}
	if offset == 0 || head.Number.Uint64() < offset {
		return fallback, nil
	}

	past, err := p.client.HeaderByNumber(ctx, new(big.Int).Sub(head.Number, new(big.Int).SetUint64(offset)))
	if err != nil {
		return 0, fmt.Errorf("failed to get header at offset %d: %w", offset, err)
	}
	return averageBlockTime(past.Time, head.Time, offset, fallback), nil
}

func averageBlockTime(pastTime, headTime, offset uint64, fallback time.Duration) time.Duration {
	if headTime <= pastTime || offset == 0 {
		return fallback
	}
	return time.Duration(headTime-pastTime) * time.Second / time.Duration(offset)
}

// EstimateGasLimit estimates msg and applies the gas coefficient.
func (p *Provider) EstimateGasLimit(ctx context.Context, msg ethereum.CallMsg, coefficient primitives.GasCoefficient) (uint64, error) {
	gas, err := p.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrGasEstimationFailed, err)
	}
	return ApplyGasCoefficient(gas, coefficient)
}

// RoundSignatures returns the quorum signatures of an authority round.
func (p *Provider) RoundSignatures(ctx context.Context, round *big.Int) ([]primitives.Signature, error) {
	r, s, v, err := p.contracts.Authority.GetRoundSignatures(&bind.CallOpts{Context: ctx}, round)
	if err != nil {
		return nil, fmt.Errorf("failed to get round %s signatures: %w", round, err)
	}
	return primitives.SignaturesFromRSV(r, s, v)
}

// RequestSignatures returns the authority signatures collected for a bridge
// request in the latest round.
func (p *Provider) RequestSignatures(ctx context.Context, requestHash common.Hash) (*big.Int, []primitives.Signature, error) {
	opts := &bind.CallOpts{Context: ctx}
	round, err := p.contracts.Authority.LatestRound(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest round: %w", err)
	}
	r, s, v, err := p.contracts.Socket.GetSignatures(opts, requestHash, round)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get signatures of %s: %w", requestHash.Hex(), err)
	}
	sigs, err := primitives.SignaturesFromRSV(r, s, v)
	if err != nil {
		return nil, nil, err
	}
	return round, sigs, nil
}

// Authorities returns the authority set of a round.
func (p *Provider) Authorities(ctx context.Context, round *big.Int) ([]common.Address, error) {
	authorities, err := p.contracts.Authority.PreviousAuthorities(&bind.CallOpts{Context: ctx}, round)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorities of round %s: %w", round, err)
	}
	return authorities, nil
}

// IsRelayer reports whether account is a registered relayer. ok is false when
// the chain has no relayer manager.
func (p *Provider) IsRelayer(ctx context.Context, account common.Address) (registered, ok bool, err error) {
	manager, ok := p.contracts.RelayerManager()
	if !ok {
		return false, false, nil
	}
	registered, err = manager.IsRelayer(&bind.CallOpts{Context: ctx}, account)
	if err != nil {
		return false, true, fmt.Errorf("failed to query relayer manager: %w", err)
	}
	return registered, true, nil
}

// LatestPrices reads every configured Chainlink feed.
func (p *Provider) LatestPrices(ctx context.Context) ([]*contracts.PriceRound, error) {
	var prices []*contracts.PriceRound
	for _, feed := range p.contracts.Aggregators() {
		price, err := feed.LatestPrice(&bind.CallOpts{Context: ctx})
		if err != nil {
			return nil, fmt.Errorf("failed to read %s feed: %w", feed.Pair(), err)
		}
		prices = append(prices, price)
	}
	return prices, nil
}

// verifyVault checks that the vault points at the configured socket.
func verifyVault(ctx context.Context, binding *contracts.Binding) error {
	socket, err := binding.Vault.Socket(&bind.CallOpts{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to read vault socket: %w", err)
	}
	if socket != binding.Socket.Address() {
		return fmt.Errorf("%w: vault points at socket %s, configured %s",
			ErrContractMismatch, socket.Hex(), binding.Socket.Address().Hex())
	}
	return nil
}

var (
	// ErrGasEstimationFailed is returned when the node rejects a gas estimation.
	ErrGasEstimationFailed = errors.New("gas estimation failed")
	// ErrContractMismatch is returned when deployed contracts do not reference each other.
	ErrContractMismatch = errors.New("contract mismatch")
)
