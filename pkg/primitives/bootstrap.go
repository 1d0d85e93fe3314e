package primitives

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidBootstrapTransition is returned when a bootstrap phase change is
// not a move to the immediately following phase.
var ErrInvalidBootstrapTransition = errors.New("invalid bootstrap transition")

// BootstrapState is a phase of the startup sequence.
type BootstrapState uint8

const (
	// NodeSyncing blocks event processing while the chain clients catch up.
	NodeSyncing BootstrapState = iota
	// BootstrapRoundUpPhase1 re-emits persisted round-up events not yet delivered.
	BootstrapRoundUpPhase1
	// BootstrapRoundUpPhase2 rebuilds round-up history from the last safe block.
	BootstrapRoundUpPhase2
	// BootstrapBridgeRelay rebuilds bridge request history from the last safe block.
	BootstrapBridgeRelay
	// NormalStart follows the chain heads.
	NormalStart
)

func (s BootstrapState) String() string {
	switch s {
	case NodeSyncing:
		return "NodeSyncing"
	case BootstrapRoundUpPhase1:
		return "BootstrapRoundUpPhase1"
	case BootstrapRoundUpPhase2:
		return "BootstrapRoundUpPhase2"
	case BootstrapBridgeRelay:
		return "BootstrapBridgeRelay"
	case NormalStart:
		return "NormalStart"
	default:
		return fmt.Sprintf("BootstrapState(%d)", uint8(s))
	}
}

// Next returns the phase after s. ok is false for NormalStart.
func (s BootstrapState) Next() (next BootstrapState, ok bool) {
	if s >= NormalStart {
		return s, false
	}
	return s + 1, true
}

// BootstrapSequencer walks the bootstrap phases in order. It is owned by a
// single goroutine; callers serialise Advance and TransitionTo.
type BootstrapSequencer struct {
	state   BootstrapState
	visited []BootstrapState
}

// NewBootstrapSequencer returns a sequencer positioned at NodeSyncing.
func NewBootstrapSequencer() *BootstrapSequencer {
	return &BootstrapSequencer{
		state:   NodeSyncing,
		visited: []BootstrapState{NodeSyncing},
	}
}

// Current returns the current phase.
func (b *BootstrapSequencer) Current() BootstrapState { return b.state }

// IsNormal reports whether bootstrap has completed.
func (b *BootstrapSequencer) IsNormal() bool { return b.state == NormalStart }

// Advance moves to the following phase and returns it.
func (b *BootstrapSequencer) Advance() (BootstrapState, error) {
	next, ok := b.state.Next()
	if !ok {
		return b.state, fmt.Errorf("%w: %s is terminal", ErrInvalidBootstrapTransition, b.state)
	}
	b.state = next
	b.visited = append(b.visited, next)
	return next, nil
}

// TransitionTo moves to target, which must be the phase right after the
// current one.
func (b *BootstrapSequencer) TransitionTo(target BootstrapState) error {
	next, ok := b.state.Next()
	if !ok || target != next {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidBootstrapTransition, b.state, target)
	}
	_, err := b.Advance()
	return err
}

// Visited returns the phases entered so far, in order.
func (b *BootstrapSequencer) Visited() []BootstrapState {
	out := make([]BootstrapState, len(b.visited))
	copy(out, b.visited)
	return out
}

// ProtocolConstants are the fixed parameters of bootstrap and block time estimation.
type ProtocolConstants struct {
	// BlockChunkSize is the block width of one eth_getLogs request during bootstrap.
	BlockChunkSize uint64
	// BlockOffset is the number of blocks sampled to measure the average block time.
	BlockOffset uint64
	// NativeBlockTime is the reference block time of the native chain.
	NativeBlockTime time.Duration
	// ExternalBlockTime is the reference block time of external chains.
	ExternalBlockTime time.Duration
}

// DefaultProtocolConstants returns the production values.
func DefaultProtocolConstants() ProtocolConstants {
	return ProtocolConstants{
		BlockChunkSize:    2000,
		BlockOffset:       100,
		NativeBlockTime:   3 * time.Second,
		ExternalBlockTime: 12 * time.Second,
	}
}

// ReferenceBlockTime returns the reference block time for a chain.
func (c ProtocolConstants) ReferenceBlockTime(isNative bool) time.Duration {
	if isNative {
		return c.NativeBlockTime
	}
	return c.ExternalBlockTime
}

// BlockRange is an inclusive range of block numbers.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitBlockRange splits [from, to] into consecutive windows of at most width blocks.
func SplitBlockRange(from, to, width uint64) []BlockRange {
	if from > to || width == 0 {
		return nil
	}
	ranges := make([]BlockRange, 0, (to-from)/width+1)
	for start := from; ; {
		end := to
		if to-start >= width {
			end = start + width - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}
	return ranges
}
