package primitives

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSocketStatus is returned for a code outside the socket status range.
	ErrUnknownSocketStatus = errors.New("unknown socket event status")
	// ErrUnknownRoundUpStatus is returned for a code outside the round-up status range.
	ErrUnknownRoundUpStatus = errors.New("unknown roundup event status")
)

// SocketEventStatus is the lifecycle status of a bridge request. Compare and
// Before order statuses by code; Reaches follows the request lifecycle.
type SocketEventStatus uint8

const (
	Requested SocketEventStatus = iota + 1
	Failed
	Executed
	Reverted
	Accepted
	Rejected
	Committed
	Rollbacked
)

var socketStatusNames = [...]string{
	Requested:  "Requested",
	Failed:     "Failed",
	Executed:   "Executed",
	Reverted:   "Reverted",
	Accepted:   "Accepted",
	Rejected:   "Rejected",
	Committed:  "Committed",
	Rollbacked: "Rollbacked",
}

// DecodeSocketStatus maps an on-chain status code to a SocketEventStatus.
// Codes outside 1..8 are never defaulted.
func DecodeSocketStatus(code uint8) (SocketEventStatus, error) {
	if code < uint8(Requested) || code > uint8(Rollbacked) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownSocketStatus, code)
	}
	return SocketEventStatus(code), nil
}

// Code returns the on-chain status code.
func (s SocketEventStatus) Code() uint8 { return uint8(s) }

// Compare returns -1, 0 or +1 depending on whether s comes before, equals or
// comes after other in the lifecycle order.
func (s SocketEventStatus) Compare(other SocketEventStatus) int {
	switch {
	case s < other:
		return -1
	case s > other:
		return 1
	default:
		return 0
	}
}

// Before reports whether s precedes other.
func (s SocketEventStatus) Before(other SocketEventStatus) bool { return s < other }

// socketLifecycle lists the statuses that may directly follow each status.
// Executed and Reverted are emitted by the destination chain after Accepted.
var socketLifecycle = map[SocketEventStatus][]SocketEventStatus{
	Requested: {Failed, Accepted, Rejected},
	Accepted:  {Executed, Reverted},
	Executed:  {Committed},
	Reverted:  {Rollbacked},
	Rejected:  {Rollbacked},
}

// Successors returns the statuses that may directly follow s.
func (s SocketEventStatus) Successors() []SocketEventStatus {
	return append([]SocketEventStatus(nil), socketLifecycle[s]...)
}

// Reaches reports whether next can follow s in the request lifecycle,
// directly or through intermediate statuses.
func (s SocketEventStatus) Reaches(next SocketEventStatus) bool {
	for _, n := range socketLifecycle[s] {
		if n == next || n.Reaches(next) {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status is emitted after s.
func (s SocketEventStatus) IsTerminal() bool {
	return s == Failed || s == Committed || s == Rollbacked
}

func (s SocketEventStatus) String() string {
	if s >= Requested && s <= Rollbacked {
		return socketStatusNames[s]
	}
	return fmt.Sprintf("SocketEventStatus(%d)", uint8(s))
}

// RoundUpEventStatus is the progress of an authority set rotation.
type RoundUpEventStatus uint8

const (
	// NextAuthorityRelayed means a relayer voted for the next authority set
	// but quorum has not been reached yet.
	NextAuthorityRelayed RoundUpEventStatus = iota + 9
	// NextAuthorityCommitted means quorum was reached for the next authority set.
	NextAuthorityCommitted
)

// DecodeRoundUpStatus maps an on-chain status code to a RoundUpEventStatus.
// Codes outside 9..10 are never defaulted.
func DecodeRoundUpStatus(code uint8) (RoundUpEventStatus, error) {
	switch RoundUpEventStatus(code) {
	case NextAuthorityRelayed, NextAuthorityCommitted:
		return RoundUpEventStatus(code), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownRoundUpStatus, code)
	}
}

// Code returns the on-chain status code.
func (s RoundUpEventStatus) Code() uint8 { return uint8(s) }

func (s RoundUpEventStatus) String() string {
	switch s {
	case NextAuthorityRelayed:
		return "NextAuthorityRelayed"
	case NextAuthorityCommitted:
		return "NextAuthorityCommitted"
	default:
		return fmt.Sprintf("RoundUpEventStatus(%d)", uint8(s))
	}
}
