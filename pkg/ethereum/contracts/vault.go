package contracts

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// VaultContract is a handle to the vault contract of one chain.
type VaultContract struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewVaultContract binds the vault contract deployed at address.
func NewVaultContract(address common.Address, backend bind.ContractBackend) (*VaultContract, error) {
	contract, _, err := bindContract(VaultMetaData, address, backend)
	if err != nil {
		return nil, err
	}
	return &VaultContract{address: address, contract: contract}, nil
}

// Address returns the contract address.
func (c *VaultContract) Address() common.Address { return c.address }

// Socket returns the socket the vault is attached to.
func (c *VaultContract) Socket(opts *bind.CallOpts) (common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "socket"); err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}
