// Package primitives holds the protocol contract shared by every relayer
// component: chain metadata, event status codes, bootstrap phases, gas
// coefficients, signature recovery and relay transaction values.
package primitives

import (
	"errors"
	"fmt"
	"math/bits"
	"time"
)

var (
	// ErrInvalidChainMetadata is returned when chain metadata is missing its identity.
	ErrInvalidChainMetadata = errors.New("invalid chain metadata")
	// ErrConfirmationOverflow is returned when the finality margin does not fit in 64 bits.
	ErrConfirmationOverflow = errors.New("block confirmations overflow")
)

// ChainID is the EVM chain id of a network.
type ChainID uint32

// BridgeDirection is the direction of a bridge request relative to the native chain.
type BridgeDirection uint8

const (
	// Inbound requests flow from an external chain into the native chain.
	Inbound BridgeDirection = iota + 1
	// Outbound requests flow from the native chain to an external chain.
	Outbound
)

func (d BridgeDirection) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return fmt.Sprintf("BridgeDirection(%d)", uint8(d))
	}
}

// ProviderMetadata is the immutable configuration of one chain.
type ProviderMetadata struct {
	name               string
	id                 ChainID
	blockConfirmations uint64
	getLogsBatchSize   uint64
	callInterval       time.Duration
	direction          BridgeDirection
	isNative           bool
}

// NewProviderMetadata builds the metadata of a chain. The stored block
// confirmations include the eth_getLogs batch size because the tail of a
// batch can still be reorganised.
func NewProviderMetadata(
	name string,
	id ChainID,
	blockConfirmations uint64,
	getLogsBatchSize uint64,
	callInterval time.Duration,
	isNative bool,
) (*ProviderMetadata, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty chain name", ErrInvalidChainMetadata)
	}
	if id == 0 {
		return nil, fmt.Errorf("%w: chain %s has zero id", ErrInvalidChainMetadata, name)
	}

	margin, carry := bits.Add64(blockConfirmations, getLogsBatchSize, 0)
	if carry != 0 {
		return nil, fmt.Errorf("%w: chain %s (%d + %d)", ErrConfirmationOverflow, name, blockConfirmations, getLogsBatchSize)
	}

	direction := Outbound
	if isNative {
		direction = Inbound
	}

	return &ProviderMetadata{
		name:               name,
		id:                 id,
		blockConfirmations: margin,
		getLogsBatchSize:   getLogsBatchSize,
		callInterval:       callInterval,
		direction:          direction,
		isNative:           isNative,
	}, nil
}

// Name returns the display name of the chain.
func (m *ProviderMetadata) Name() string { return m.name }

// ID returns the chain id.
func (m *ProviderMetadata) ID() ChainID { return m.id }

// BlockConfirmations returns the finality margin in blocks.
func (m *ProviderMetadata) BlockConfirmations() uint64 { return m.blockConfirmations }

// GetLogsBatchSize returns the eth_getLogs batch width in blocks.
func (m *ProviderMetadata) GetLogsBatchSize() uint64 { return m.getLogsBatchSize }

// CallInterval returns the head polling interval.
func (m *ProviderMetadata) CallInterval() time.Duration { return m.callInterval }

// Direction returns the bridge direction of requests that target this chain.
func (m *ProviderMetadata) Direction() BridgeDirection { return m.direction }

// IsNative reports whether this is the native chain.
func (m *ProviderMetadata) IsNative() bool { return m.isNative }

// SafeBlock returns the newest block at the given head that is past the
// finality margin. ok is false while the chain is shorter than the margin.
func (m *ProviderMetadata) SafeBlock(head uint64) (safe uint64, ok bool) {
	if head < m.blockConfirmations {
		return 0, false
	}
	return head - m.blockConfirmations, true
}

func (m *ProviderMetadata) String() string {
	return fmt.Sprintf("%s(%d)", m.name, m.id)
}
