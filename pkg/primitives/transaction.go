package primitives

import (
	"github.com/ethereum/go-ethereum"
)

// BuiltRelayTransaction is a relay transaction request ready for the sender pipeline.
type BuiltRelayTransaction struct {
	// TxRequest is the unsigned transaction body.
	TxRequest ethereum.CallMsg
	// IsExternal is true when the destination is an external chain.
	IsExternal bool
}

// NewBuiltRelayTransaction packages a transaction request with its routing flag.
func NewBuiltRelayTransaction(req ethereum.CallMsg, destinationIsExternal bool) BuiltRelayTransaction {
	return BuiltRelayTransaction{TxRequest: req, IsExternal: destinationIsExternal}
}
