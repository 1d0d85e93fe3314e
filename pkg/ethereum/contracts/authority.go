package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var roundUpArguments = abi.Arguments{
	{Type: mustType("uint256")},
	{Type: mustType("address[]")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// RoundUpHash is the digest authorities sign to approve the authority set of a round.
func RoundUpHash(round *big.Int, authorities []common.Address) (common.Hash, error) {
	packed, err := roundUpArguments.Pack(round, authorities)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack round %s: %w", round, err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// RoundUpSubmit is a decoded RoundUp event. Status is the raw on-chain code.
type RoundUpSubmit struct {
	Status         uint8
	Round          *big.Int
	NewAuthorities []common.Address
	Raw            types.Log
}

// AuthorityContract is a handle to the authority contract of one chain.
type AuthorityContract struct {
	address  common.Address
	contract *bind.BoundContract
	abi      *abi.ABI
}

// NewAuthorityContract binds the authority contract deployed at address.
func NewAuthorityContract(address common.Address, backend bind.ContractBackend) (*AuthorityContract, error) {
	contract, parsed, err := bindContract(AuthorityMetaData, address, backend)
	if err != nil {
		return nil, err
	}
	return &AuthorityContract{address: address, contract: contract, abi: parsed}, nil
}

// Address returns the contract address.
func (c *AuthorityContract) Address() common.Address { return c.address }

// RoundUpTopic returns the topic of the RoundUp event.
func (c *AuthorityContract) RoundUpTopic() common.Hash { return c.abi.Events["RoundUp"].ID }

// ParseRoundUp decodes a RoundUp event log.
func (c *AuthorityContract) ParseRoundUp(log types.Log) (*RoundUpSubmit, error) {
	ev := new(RoundUpSubmit)
	if err := c.contract.UnpackLog(ev, "RoundUp", log); err != nil {
		return nil, fmt.Errorf("failed to unpack roundup event: %w", err)
	}
	ev.Raw = log
	return ev, nil
}

// LatestRound returns the current authority round.
func (c *AuthorityContract) LatestRound(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "latestRound"); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// PreviousAuthorities returns the authority set of a round.
func (c *AuthorityContract) PreviousAuthorities(opts *bind.CallOpts, round *big.Int) ([]common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "previousAuthorities", round); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

// GetRoundSignatures returns the quorum signatures approving a round.
func (c *AuthorityContract) GetRoundSignatures(opts *bind.CallOpts, round *big.Int) (r, s [][32]byte, v []byte, err error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "getRoundSignatures", round); err != nil {
		return nil, nil, nil, err
	}
	return unpackRSV(out)
}

// PackRoundControlRelay encodes a roundControlRelay call.
func (c *AuthorityContract) PackRoundControlRelay(round *big.Int, authorities []common.Address, r, s [][32]byte, v []byte) ([]byte, error) {
	return c.abi.Pack("roundControlRelay", round, authorities, r, s, v)
}
