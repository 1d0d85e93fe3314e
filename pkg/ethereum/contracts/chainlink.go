package contracts

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AggregatorPair identifies a Chainlink price feed.
type AggregatorPair string

const (
	USDCUSD AggregatorPair = "usdc/usd"
	USDTUSD AggregatorPair = "usdt/usd"
	DAIUSD  AggregatorPair = "dai/usd"
)

// PriceRound is the latest answer of a price feed.
type PriceRound struct {
	Pair      AggregatorPair
	RoundID   *big.Int
	Price     decimal.Decimal
	UpdatedAt time.Time
}

// ChainlinkContract is a handle to a Chainlink price aggregator.
type ChainlinkContract struct {
	pair     AggregatorPair
	address  common.Address
	contract *bind.BoundContract
}

// NewChainlinkContract binds the aggregator deployed at address.
func NewChainlinkContract(pair AggregatorPair, address common.Address, backend bind.ContractBackend) (*ChainlinkContract, error) {
	contract, _, err := bindContract(ChainlinkAggregatorMetaData, address, backend)
	if err != nil {
		return nil, err
	}
	return &ChainlinkContract{pair: pair, address: address, contract: contract}, nil
}

// Pair returns the feed pair.
func (c *ChainlinkContract) Pair() AggregatorPair { return c.pair }

// Address returns the contract address.
func (c *ChainlinkContract) Address() common.Address { return c.address }

// LatestPrice returns the latest answer scaled by the feed decimals.
func (c *ChainlinkContract) LatestPrice(opts *bind.CallOpts) (*PriceRound, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "decimals"); err != nil {
		return nil, fmt.Errorf("failed to read %s decimals: %w", c.pair, err)
	}
	decimals := *abi.ConvertType(out[0], new(uint8)).(*uint8)

	out = nil
	if err := c.contract.Call(opts, &out, "latestRoundData"); err != nil {
		return nil, fmt.Errorf("failed to read %s round data: %w", c.pair, err)
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("unexpected latestRoundData output length %d", len(out))
	}
	roundID := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	answer := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	updatedAt := *abi.ConvertType(out[3], new(*big.Int)).(**big.Int)

	return &PriceRound{
		Pair:      c.pair,
		RoundID:   roundID,
		Price:     decimal.NewFromBigInt(answer, -int32(decimals)),
		UpdatedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}
