package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is the chain access a bound contract needs: calls, transaction
// submission, receipts for confirmation and the chain id for signing.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Provider mediates account access and transaction signing for one wallet.
type Provider interface {
	// Name identifies the provider in logs and in the UI.
	Name() string
	// RequestAccounts asks the wallet for account access. An error or an empty
	// result means the user did not grant access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Signer derives transaction options bound to account.
	Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error)
	// Backend returns the chain backend transactions are sent through.
	Backend() Backend
	// Close releases connections held by the provider.
	Close()
}

// AccountReleaser is implemented by providers that keep secrets for an
// approved account, such as an unlocked keystore key. The session calls it
// when the account is disconnected.
type AccountReleaser interface {
	ReleaseAccount(account common.Address) error
}
