package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"SmartClaim/internal/web3"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

var errNotAuthorized = errors.New("not authorized to sign for this account")

// DialBackend connects to the JSON-RPC node transactions are sent through.
func DialBackend(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, errors.New("ethereum rpc url is not configured")
	}
	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum node: %w", err)
	}
	return ethclient.NewClient(rpcClient), nil
}

// KeyProvider signs with a single in-process private key. It backs local
// development setups and tests against a simulated chain.
type KeyProvider struct {
	name    string
	key     *ecdsa.PrivateKey
	account common.Address
	backend web3.Backend
	closer  func()
}

// NewKeyProvider wraps an already connected backend.
func NewKeyProvider(name string, backend web3.Backend, key *ecdsa.PrivateKey) *KeyProvider {
	return &KeyProvider{
		name:    name,
		key:     key,
		account: crypto.PubkeyToAddress(key.PublicKey),
		backend: backend,
	}
}

// DialKeyProvider parses a hex encoded private key and dials the node.
func DialKeyProvider(ctx context.Context, rpcURL, hexKey string) (*KeyProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	client, err := DialBackend(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	p := NewKeyProvider(web3.DriverKey, client, key)
	p.closer = client.Close
	return p, nil
}

// Name implements web3.Provider.
func (p *KeyProvider) Name() string { return p.name }

// Backend implements web3.Provider.
func (p *KeyProvider) Backend() web3.Backend { return p.backend }

// RequestAccounts always grants the key's address.
func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []common.Address{p.account}, nil
}

// Signer derives keyed transact options for the provider's own account.
func (p *KeyProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	if account != p.account {
		return nil, fmt.Errorf("%w: %s", errNotAuthorized, account.Hex())
	}
	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(p.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("keyed transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Close implements web3.Provider.
func (p *KeyProvider) Close() {
	if p.closer != nil {
		p.closer()
		p.closer = nil
	}
}

// txSigner is the signing half of accounts.Wallet shared by the keystore and
// the external signer.
type txSigner interface {
	SignTx(account accounts.Account, tx *coretypes.Transaction, chainID *big.Int) (*coretypes.Transaction, error)
}

func walletTransactor(ctx context.Context, wallet txSigner, account accounts.Account, chainID *big.Int) *bind.TransactOpts {
	return &bind.TransactOpts{
		From: account.Address,
		Signer: func(addr common.Address, tx *coretypes.Transaction) (*coretypes.Transaction, error) {
			if addr != account.Address {
				return nil, errNotAuthorized
			}
			return wallet.SignTx(account, tx, chainID)
		},
		Context: ctx,
	}
}
