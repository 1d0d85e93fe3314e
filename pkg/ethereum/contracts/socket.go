package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SocketMessage is a decoded Socket event. Status is the raw on-chain code.
type SocketMessage struct {
	RequestHash [32]byte
	SrcChainId  uint32
	DstChainId  uint32
	Sequence    *big.Int
	Status      uint8
	Params      []byte
	Raw         types.Log
}

// SocketContract is a handle to the bridge socket contract of one chain.
type SocketContract struct {
	address  common.Address
	contract *bind.BoundContract
	abi      *abi.ABI
}

// NewSocketContract binds the socket contract deployed at address.
func NewSocketContract(address common.Address, backend bind.ContractBackend) (*SocketContract, error) {
	contract, parsed, err := bindContract(SocketMetaData, address, backend)
	if err != nil {
		return nil, err
	}
	return &SocketContract{address: address, contract: contract, abi: parsed}, nil
}

// Address returns the contract address.
func (c *SocketContract) Address() common.Address { return c.address }

// EventTopic returns the topic of the Socket event.
func (c *SocketContract) EventTopic() common.Hash { return c.abi.Events["Socket"].ID }

// ParseSocket decodes a Socket event log.
func (c *SocketContract) ParseSocket(log types.Log) (*SocketMessage, error) {
	msg := new(SocketMessage)
	if err := c.contract.UnpackLog(msg, "Socket", log); err != nil {
		return nil, fmt.Errorf("failed to unpack socket event: %w", err)
	}
	msg.Raw = log
	return msg, nil
}

// GetSignatures returns the signatures collected for a request in the given round.
func (c *SocketContract) GetSignatures(opts *bind.CallOpts, requestHash [32]byte, round *big.Int) (r, s [][32]byte, v []byte, err error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "getSignatures", requestHash, round); err != nil {
		return nil, nil, nil, err
	}
	return unpackRSV(out)
}

// PackPoll encodes a poll call relaying msg with the given status.
func (c *SocketContract) PackPoll(msg *SocketMessage, status uint8) ([]byte, error) {
	return c.abi.Pack("poll", msg.RequestHash, msg.SrcChainId, msg.DstChainId, msg.Sequence, status, msg.Params)
}

func unpackRSV(out []interface{}) (r, s [][32]byte, v []byte, err error) {
	if len(out) != 3 {
		return nil, nil, nil, fmt.Errorf("unexpected signature output length %d", len(out))
	}
	r = *abi.ConvertType(out[0], new([][32]byte)).(*[][32]byte)
	s = *abi.ConvertType(out[1], new([][32]byte)).(*[][32]byte)
	v = *abi.ConvertType(out[2], new([]byte)).(*[]byte)
	return r, s, v, nil
}
