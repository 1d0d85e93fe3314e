package db

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

// ChainState tracks the last safe block processed on a chain. It is the
// starting point of the historical scans on the next start.
type ChainState struct {
	ChainID   primitives.ChainID
	SafeBlock uint64
	UpdatedAt time.Time
}

// RoundUpEvent is an observed authority rotation.
type RoundUpEvent struct {
	Round       *big.Int
	Status      primitives.RoundUpEventStatus
	Authorities []common.Address
	ChainID     primitives.ChainID
	BlockNumber uint64
	TxHash      common.Hash
	Delivered   bool
}

// SocketEvent is the last observed state of one bridge request.
type SocketEvent struct {
	RequestHash common.Hash
	SrcChainID  primitives.ChainID
	DstChainID  primitives.ChainID
	Sequence    *big.Int
	Status      primitives.SocketEventStatus
	ChainID     primitives.ChainID
	BlockNumber uint64
	TxHash      common.Hash
}
