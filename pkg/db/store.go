// Package db persists the relayer's resumable state: per-chain safe blocks,
// observed authority rotations and the last seen status of bridge requests.
package db

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

var (
	// ErrChainStateNotFound is returned when no safe block was stored for a chain yet.
	ErrChainStateNotFound = errors.New("chain state not found")
	// ErrSocketEventNotFound is returned when a bridge request was never observed.
	ErrSocketEventNotFound = errors.New("socket event not found")
)

// ChainStateStore persists the last safe block per chain.
type ChainStateStore interface {
	GetChainState(ctx context.Context, chainID primitives.ChainID) (*ChainState, error)
	// SetChainState stores safeBlock unless a newer block is already stored.
	SetChainState(ctx context.Context, chainID primitives.ChainID, safeBlock uint64) error
}

// RoundUpStore persists observed authority rotations.
type RoundUpStore interface {
	// SaveRoundUp records a rotation. A higher status than the stored one
	// replaces it and clears the delivered flag.
	SaveRoundUp(ctx context.Context, event *RoundUpEvent) error
	ListUndeliveredRoundUps(ctx context.Context) ([]*RoundUpEvent, error)
	MarkRoundUpDelivered(ctx context.Context, round *big.Int) error
}

// SocketEventStore persists the last observed status of bridge requests.
type SocketEventStore interface {
	GetSocketEvent(ctx context.Context, requestHash common.Hash) (*SocketEvent, error)
	// UpsertSocketEvent stores event if it is new or moves the status forward.
	// It reports whether the row changed.
	UpsertSocketEvent(ctx context.Context, event *SocketEvent) (bool, error)
}

// Store is the full relayer persistence layer.
type Store interface {
	ChainStateStore
	RoundUpStore
	SocketEventStore
}
