package contracts

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// SocketMetaData is the subset of the socket ABI used by the relayer.
var SocketMetaData = &bind.MetaData{
	ABI: `[
{"anonymous":false,"type":"event","name":"Socket","inputs":[
 {"indexed":true,"name":"requestHash","type":"bytes32"},
 {"indexed":false,"name":"srcChainId","type":"uint32"},
 {"indexed":false,"name":"dstChainId","type":"uint32"},
 {"indexed":false,"name":"sequence","type":"uint128"},
 {"indexed":false,"name":"status","type":"uint8"},
 {"indexed":false,"name":"params","type":"bytes"}]},
{"type":"function","name":"getSignatures","stateMutability":"view","inputs":[
 {"name":"requestHash","type":"bytes32"},
 {"name":"round","type":"uint256"}],"outputs":[
 {"name":"r","type":"bytes32[]"},
 {"name":"s","type":"bytes32[]"},
 {"name":"v","type":"bytes"}]},
{"type":"function","name":"poll","stateMutability":"nonpayable","inputs":[
 {"name":"requestHash","type":"bytes32"},
 {"name":"srcChainId","type":"uint32"},
 {"name":"dstChainId","type":"uint32"},
 {"name":"sequence","type":"uint128"},
 {"name":"status","type":"uint8"},
 {"name":"params","type":"bytes"}],"outputs":[]}
]`,
}

// AuthorityMetaData is the subset of the authority ABI used by the relayer.
var AuthorityMetaData = &bind.MetaData{
	ABI: `[
{"anonymous":false,"type":"event","name":"RoundUp","inputs":[
 {"indexed":false,"name":"status","type":"uint8"},
 {"indexed":true,"name":"round","type":"uint256"},
 {"indexed":false,"name":"newAuthorities","type":"address[]"}]},
{"type":"function","name":"latestRound","stateMutability":"view","inputs":[],"outputs":[
 {"name":"","type":"uint256"}]},
{"type":"function","name":"previousAuthorities","stateMutability":"view","inputs":[
 {"name":"round","type":"uint256"}],"outputs":[
 {"name":"","type":"address[]"}]},
{"type":"function","name":"getRoundSignatures","stateMutability":"view","inputs":[
 {"name":"round","type":"uint256"}],"outputs":[
 {"name":"r","type":"bytes32[]"},
 {"name":"s","type":"bytes32[]"},
 {"name":"v","type":"bytes"}]},
{"type":"function","name":"roundControlRelay","stateMutability":"nonpayable","inputs":[
 {"name":"round","type":"uint256"},
 {"name":"newAuthorities","type":"address[]"},
 {"name":"r","type":"bytes32[]"},
 {"name":"s","type":"bytes32[]"},
 {"name":"v","type":"bytes"}],"outputs":[]}
]`,
}

// VaultMetaData is the subset of the vault ABI used by the relayer.
var VaultMetaData = &bind.MetaData{
	ABI: `[
{"type":"function","name":"socket","stateMutability":"view","inputs":[],"outputs":[
 {"name":"","type":"address"}]}
]`,
}

// RelayerManagerMetaData is the subset of the relayer manager ABI used by the relayer.
var RelayerManagerMetaData = &bind.MetaData{
	ABI: `[
{"type":"function","name":"isRelayer","stateMutability":"view","inputs":[
 {"name":"account","type":"address"}],"outputs":[
 {"name":"","type":"bool"}]}
]`,
}

// ChainlinkAggregatorMetaData is the Chainlink AggregatorV3Interface subset used by the relayer.
var ChainlinkAggregatorMetaData = &bind.MetaData{
	ABI: `[
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[
 {"name":"","type":"uint8"}]},
{"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],"outputs":[
 {"name":"roundId","type":"uint80"},
 {"name":"answer","type":"int256"},
 {"name":"startedAt","type":"uint256"},
 {"name":"updatedAt","type":"uint256"},
 {"name":"answeredInRound","type":"uint80"}]}
]`,
}

func bindContract(meta *bind.MetaData, address common.Address, backend bind.ContractBackend) (*bind.BoundContract, *abi.ABI, error) {
	parsed, err := meta.GetAbi()
	if err != nil {
		return nil, nil, err
	}
	return bind.NewBoundContract(address, *parsed, backend, backend, backend), parsed, nil
}
