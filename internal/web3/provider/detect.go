package provider

import (
	"context"
	"fmt"
	"strings"

	"SmartClaim/internal/web3"
	"SmartClaim/internal/web3/ethereum"
)

// Detect builds the wallet provider selected by cfg. It returns a nil
// provider and no error when no wallet is configured; callers treat that as
// "wallet not detected".
func Detect(ctx context.Context, cfg web3.ProviderConfig) (web3.Provider, error) {
	if !cfg.Detected() {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case web3.DriverClef:
		p, err := ethereum.DialClefProvider(ctx, cfg.RPCURL, cfg.ClefURL)
		if err != nil {
			return nil, fmt.Errorf("init clef wallet: %w", err)
		}
		return p, nil
	case web3.DriverKeystore:
		p, err := ethereum.DialKeystoreProvider(ctx, cfg.RPCURL, cfg.KeystoreDir, cfg.ResolvePassphrase())
		if err != nil {
			return nil, fmt.Errorf("init keystore wallet: %w", err)
		}
		return p, nil
	case web3.DriverKey:
		p, err := ethereum.DialKeyProvider(ctx, cfg.RPCURL, cfg.ResolvePrivateKey())
		if err != nil {
			return nil, fmt.Errorf("init key wallet: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported wallet driver %q", cfg.Driver)
	}
}
