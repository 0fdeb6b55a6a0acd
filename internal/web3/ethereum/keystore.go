package ethereum

import (
	"context"
	"errors"
	"fmt"

	"SmartClaim/internal/web3"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// KeystoreProvider uses an encrypted key directory. Unlocking the first
// account with the configured passphrase is the approval step.
type KeystoreProvider struct {
	ks         *keystore.KeyStore
	passphrase string
	backend    web3.Backend
	closer     func()
}

// NewKeystoreProvider wraps an opened keystore and a connected backend.
func NewKeystoreProvider(ks *keystore.KeyStore, passphrase string, backend web3.Backend) *KeystoreProvider {
	return &KeystoreProvider{ks: ks, passphrase: passphrase, backend: backend}
}

// DialKeystoreProvider opens dir with standard scrypt parameters and dials
// the node.
func DialKeystoreProvider(ctx context.Context, rpcURL, dir, passphrase string) (*KeystoreProvider, error) {
	client, err := DialBackend(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	p := NewKeystoreProvider(ks, passphrase, client)
	p.closer = client.Close
	return p, nil
}

// Name implements web3.Provider.
func (p *KeystoreProvider) Name() string { return web3.DriverKeystore }

// Backend implements web3.Provider.
func (p *KeystoreProvider) Backend() web3.Backend { return p.backend }

// RequestAccounts unlocks the first account and returns every address in the
// keystore, the unlocked one first.
func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	list := p.ks.Accounts()
	if len(list) == 0 {
		return nil, errors.New("keystore holds no accounts")
	}
	if err := p.ks.Unlock(list[0], p.passphrase); err != nil {
		return nil, fmt.Errorf("unlock %s: %w", list[0].Address.Hex(), err)
	}
	addrs := make([]common.Address, 0, len(list))
	for _, acc := range list {
		addrs = append(addrs, acc.Address)
	}
	return addrs, nil
}

// Signer returns transact options that sign through the keystore.
func (p *KeystoreProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	acc, err := p.ks.Find(accounts.Account{Address: account})
	if err != nil {
		return nil, fmt.Errorf("find account %s: %w", account.Hex(), err)
	}
	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	return walletTransactor(ctx, p.ks, acc, chainID), nil
}

// ReleaseAccount locks account again, dropping its decrypted key.
func (p *KeystoreProvider) ReleaseAccount(account common.Address) error {
	return p.ks.Lock(account)
}

// Close implements web3.Provider.
func (p *KeystoreProvider) Close() {
	if p.closer != nil {
		p.closer()
		p.closer = nil
	}
}
