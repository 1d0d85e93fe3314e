package contracts

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidContractAddress is returned when a configured address is not a 20 byte hex string.
var ErrInvalidContractAddress = errors.New("invalid contract address")

// Addresses are the configured contract addresses of one chain. Optional
// contracts are nil when the chain does not host them.
type Addresses struct {
	Socket         string
	Vault          string
	Authority      string
	RelayerManager *string

	ChainlinkUSDCUSD *string
	ChainlinkUSDTUSD *string
	ChainlinkDAIUSD  *string
}

// Binding holds the protocol contract handles of one chain.
type Binding struct {
	Socket    *SocketContract
	Vault     *VaultContract
	Authority *AuthorityContract

	relayerManager *RelayerManagerContract
	aggregators    map[AggregatorPair]*ChainlinkContract
}

// NewBinding resolves every address and binds the contracts. Nothing is
// returned unless all addresses are valid.
func NewBinding(addrs Addresses, backend bind.ContractBackend) (*Binding, error) {
	socketAddr, err := ParseAddress("socket", addrs.Socket)
	if err != nil {
		return nil, err
	}
	vaultAddr, err := ParseAddress("vault", addrs.Vault)
	if err != nil {
		return nil, err
	}
	authorityAddr, err := ParseAddress("authority", addrs.Authority)
	if err != nil {
		return nil, err
	}
	relayerManagerAddr, err := parseOptionalAddress("relayer_manager", addrs.RelayerManager)
	if err != nil {
		return nil, err
	}

	feeds := []struct {
		pair AggregatorPair
		raw  *string
	}{
		{USDCUSD, addrs.ChainlinkUSDCUSD},
		{USDTUSD, addrs.ChainlinkUSDTUSD},
		{DAIUSD, addrs.ChainlinkDAIUSD},
	}
	feedAddrs := make(map[AggregatorPair]common.Address, len(feeds))
	for _, feed := range feeds {
		addr, err := parseOptionalAddress("chainlink_"+string(feed.pair), feed.raw)
		if err != nil {
			return nil, err
		}
		if addr != nil {
			feedAddrs[feed.pair] = *addr
		}
	}

	b := &Binding{aggregators: make(map[AggregatorPair]*ChainlinkContract, len(feedAddrs))}
	if b.Socket, err = NewSocketContract(socketAddr, backend); err != nil {
		return nil, fmt.Errorf("failed to bind socket: %w", err)
	}
	if b.Vault, err = NewVaultContract(vaultAddr, backend); err != nil {
		return nil, fmt.Errorf("failed to bind vault: %w", err)
	}
	if b.Authority, err = NewAuthorityContract(authorityAddr, backend); err != nil {
		return nil, fmt.Errorf("failed to bind authority: %w", err)
	}
	if relayerManagerAddr != nil {
		if b.relayerManager, err = NewRelayerManagerContract(*relayerManagerAddr, backend); err != nil {
			return nil, fmt.Errorf("failed to bind relayer manager: %w", err)
		}
	}
	for pair, addr := range feedAddrs {
		feed, err := NewChainlinkContract(pair, addr, backend)
		if err != nil {
			return nil, fmt.Errorf("failed to bind %s aggregator: %w", pair, err)
		}
		b.aggregators[pair] = feed
	}

	return b, nil
}

// RelayerManager returns the relayer manager handle if the chain hosts one.
func (b *Binding) RelayerManager() (*RelayerManagerContract, bool) {
	return b.relayerManager, b.relayerManager != nil
}

// Aggregator returns the price feed for pair if the chain hosts one.
func (b *Binding) Aggregator(pair AggregatorPair) (*ChainlinkContract, bool) {
	feed, ok := b.aggregators[pair]
	return feed, ok
}

// Aggregators returns every configured price feed.
func (b *Binding) Aggregators() []*ChainlinkContract {
	out := make([]*ChainlinkContract, 0, len(b.aggregators))
	for _, pair := range []AggregatorPair{USDCUSD, USDTUSD, DAIUSD} {
		if feed, ok := b.aggregators[pair]; ok {
			out = append(out, feed)
		}
	}
	return out
}

// ParseAddress decodes a 20 byte hex address, with or without 0x prefix.
func ParseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %s=%q", ErrInvalidContractAddress, field, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseOptionalAddress(field string, raw *string) (*common.Address, error) {
	if raw == nil {
		return nil, nil
	}
	addr, err := ParseAddress(field, *raw)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}
