package contracts

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// RelayerManagerContract is a handle to the relayer manager. It only exists on the native chain.
type RelayerManagerContract struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewRelayerManagerContract binds the relayer manager deployed at address.
func NewRelayerManagerContract(address common.Address, backend bind.ContractBackend) (*RelayerManagerContract, error) {
	contract, _, err := bindContract(RelayerManagerMetaData, address, backend)
	if err != nil {
		return nil, err
	}
	return &RelayerManagerContract{address: address, contract: contract}, nil
}

// Address returns the contract address.
func (c *RelayerManagerContract) Address() common.Address { return c.address }

// IsRelayer reports whether account is a registered relayer.
func (c *RelayerManagerContract) IsRelayer(opts *bind.CallOpts, account common.Address) (bool, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "isRelayer", account); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}
