// Package insurance binds the claim insurance contract to a signer.
package insurance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"SmartClaim/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReverted is returned by WaitMined when the transaction was included
// with a failed status.
var ErrReverted = errors.New("transaction reverted")

// Handle is a signer-bound view of the contract. Each entry point returns
// the pending transaction; WaitMined blocks until it is confirmed.
type Handle interface {
	RegisterPolicy(ctx context.Context, holder common.Address, payout *big.Int, condition string) (*types.Transaction, error)
	SubmitClaim(ctx context.Context, policyID *big.Int, evidence string) (*types.Transaction, error)
	ApproveClaim(ctx context.Context, policyID *big.Int) (*types.Transaction, error)
	Payout(ctx context.Context, policyID *big.Int) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

var parsedABI = sync.OnceValues(func() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(ABI))
})

// Contract implements Handle on top of a go-ethereum bound contract.
type Contract struct {
	address common.Address
	bound   *bind.BoundContract
	backend bind.DeployBackend
	opts    bind.TransactOpts
}

// Bind attaches signer to the deployed contract at Address.
func Bind(backend web3.Backend, signer *bind.TransactOpts) (*Contract, error) {
	return BindAt(backend, signer, Address)
}

// BindAt attaches signer to the contract at address.
func BindAt(backend web3.Backend, signer *bind.TransactOpts, address string) (*Contract, error) {
	if backend == nil {
		return nil, errors.New("no chain backend")
	}
	if signer == nil {
		return nil, errors.New("no transaction signer")
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("malformed contract address %q", address)
	}
	parsed, err := parsedABI()
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	addr := common.HexToAddress(address)
	return &Contract{
		address: addr,
		bound:   bind.NewBoundContract(addr, parsed, backend, backend, backend),
		backend: backend,
		opts:    *signer,
	}, nil
}

// Address returns the bound contract address.
func (c *Contract) Address() common.Address { return c.address }

// From returns the account transactions are signed for.
func (c *Contract) From() common.Address { return c.opts.From }

// RegisterPolicy invokes registerPolicy(address,uint256,string).
func (c *Contract) RegisterPolicy(ctx context.Context, holder common.Address, payout *big.Int, condition string) (*types.Transaction, error) {
	return c.transact(ctx, MethodRegisterPolicy, holder, payout, condition)
}

// SubmitClaim invokes submitClaim(uint256,string).
func (c *Contract) SubmitClaim(ctx context.Context, policyID *big.Int, evidence string) (*types.Transaction, error) {
	return c.transact(ctx, MethodSubmitClaim, policyID, evidence)
}

// ApproveClaim invokes approveClaim(uint256).
func (c *Contract) ApproveClaim(ctx context.Context, policyID *big.Int) (*types.Transaction, error) {
	return c.transact(ctx, MethodApproveClaim, policyID)
}

// Payout invokes payout(uint256).
func (c *Contract) Payout(ctx context.Context, policyID *big.Int) (*types.Transaction, error) {
	return c.transact(ctx, MethodPayout, policyID)
}

// WaitMined waits for tx to be included and checks its receipt status.
func (c *Contract) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

func (c *Contract) transact(ctx context.Context, method string, params ...any) (*types.Transaction, error) {
	opts := c.opts
	opts.Context = ctx
	tx, err := c.bound.Transact(&opts, method, params...)
	if err != nil {
		return nil, fmt.Errorf("%s tx: %w", method, err)
	}
	return tx, nil
}
