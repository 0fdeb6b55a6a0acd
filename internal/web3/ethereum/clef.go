package ethereum

import (
	"context"
	"errors"
	"fmt"

	"SmartClaim/internal/web3"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/common"
)

// ClefProvider delegates account approval and signing to an external signer
// (clef or any wallet speaking its account_* API). The signer prompts the
// user, so account listing and each signature can be declined.
type ClefProvider struct {
	signer  *external.ExternalSigner
	backend web3.Backend
	closer  func()
}

// DialClefProvider connects to the external signer and the node.
func DialClefProvider(ctx context.Context, rpcURL, clefURL string) (*ClefProvider, error) {
	client, err := DialBackend(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	signer, err := external.NewExternalSigner(clefURL)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect external signer: %w", err)
	}
	return &ClefProvider{signer: signer, backend: client, closer: client.Close}, nil
}

// Name implements web3.Provider.
func (p *ClefProvider) Name() string { return web3.DriverClef }

// Backend implements web3.Provider.
func (p *ClefProvider) Backend() web3.Backend { return p.backend }

// RequestAccounts asks the signer to list accounts. The signer swallows a
// declined prompt and reports no accounts, which is treated as a rejection.
func (p *ClefProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	result := make(chan []accounts.Account, 1)
	go func() { result <- p.signer.Accounts() }()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case list := <-result:
		if len(list) == 0 {
			return nil, errors.New("external signer returned no accounts")
		}
		addrs := make([]common.Address, 0, len(list))
		for _, acc := range list {
			addrs = append(addrs, acc.Address)
		}
		return addrs, nil
	}
}

// Signer returns transact options that forward every signature request to
// the external signer.
func (p *ClefProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	return walletTransactor(ctx, p.signer, accounts.Account{Address: account}, chainID), nil
}

// Close implements web3.Provider.
func (p *ClefProvider) Close() {
	if p.signer != nil {
		_ = p.signer.Close()
	}
	if p.closer != nil {
		p.closer()
		p.closer = nil
	}
}
