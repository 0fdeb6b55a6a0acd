package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"SmartClaim/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

func newSimulatedChain(t *testing.T, funded ...common.Address) *simulated.Backend {
	t.Helper()
	alloc := coretypes.GenesisAlloc{}
	for _, addr := range funded {
		alloc[addr] = coretypes.Account{Balance: big.NewInt(1_000_000_000_000_000_000)}
	}
	sim := simulated.NewBackend(alloc)
	t.Cleanup(func() { _ = sim.Close() })
	return sim
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func dummyTx(chainID *big.Int) *coretypes.Transaction {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	return coretypes.NewTx(&coretypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(1_000_000_000),
		Gas:       21000,
		To:        &to,
	})
}

func TestKeyProviderGrantsOwnAccount(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := newKey(t)
	sim := newSimulatedChain(t, crypto.PubkeyToAddress(key.PublicKey))
	provider := NewKeyProvider("simulated", sim.Client(), key)

	accounts, err := provider.RequestAccounts(ctx)
	if err != nil {
		t.Fatalf("request accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0] != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("unexpected accounts %v", accounts)
	}

	opts, err := provider.Signer(ctx, accounts[0])
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if opts.From != accounts[0] {
		t.Fatalf("transactor bound to %s, want %s", opts.From.Hex(), accounts[0].Hex())
	}

	if _, err := provider.Signer(ctx, common.HexToAddress("0x0000000000000000000000000000000000000001")); err == nil {
		t.Fatal("expected foreign account to be refused")
	}
}

func TestKeystoreProviderUnlockAndSign(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	acc, err := ks.NewAccount("correct horse")
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	sim := newSimulatedChain(t, acc.Address)
	backend := sim.Client()

	rejected := NewKeystoreProvider(ks, "wrong", backend)
	if _, err := rejected.RequestAccounts(ctx); err == nil {
		t.Fatal("expected wrong passphrase to be rejected")
	}

	provider := NewKeystoreProvider(ks, "correct horse", backend)
	accounts, err := provider.RequestAccounts(ctx)
	if err != nil {
		t.Fatalf("request accounts: %v", err)
	}
	if accounts[0] != acc.Address {
		t.Fatalf("unexpected first account %s", accounts[0].Hex())
	}

	opts, err := provider.Signer(ctx, acc.Address)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	signed, err := opts.Signer(acc.Address, dummyTx(chainID))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sender, err := coretypes.Sender(coretypes.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != acc.Address {
		t.Fatalf("signed by %s, want %s", sender.Hex(), acc.Address.Hex())
	}

	if _, err := opts.Signer(common.HexToAddress("0x0000000000000000000000000000000000000002"), dummyTx(chainID)); err == nil {
		t.Fatal("expected signer to refuse a different sender")
	}

	if err := provider.ReleaseAccount(acc.Address); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := opts.Signer(acc.Address, dummyTx(chainID)); !errors.Is(err, keystore.ErrLocked) {
		t.Fatalf("expected released account to be locked, got %v", err)
	}
}

func TestKeystoreProviderEmpty(t *testing.T) {
	t.Parallel()
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	provider := NewKeystoreProvider(ks, "", nil)
	if _, err := provider.RequestAccounts(context.Background()); err == nil {
		t.Fatal("expected empty keystore to be rejected")
	}
}

func TestDialBackendRequiresURL(t *testing.T) {
	if _, err := DialBackend(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty rpc url")
	}
}

var (
	_ web3.Provider = (*KeyProvider)(nil)
	_ web3.Provider = (*KeystoreProvider)(nil)
	_ web3.Provider = (*ClefProvider)(nil)
	_ web3.Backend  = (simulated.Client)(nil)

	_ web3.AccountReleaser = (*KeystoreProvider)(nil)
)
