package web3

import "testing"

func TestProviderConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ProviderConfig
		wantErr bool
	}{
		{"not detected", ProviderConfig{}, false},
		{"missing rpc", ProviderConfig{Driver: DriverClef, ClefURL: "http://localhost:8550"}, true},
		{"clef", ProviderConfig{Driver: DriverClef, RPCURL: "http://localhost:8545", ClefURL: "http://localhost:8550"}, false},
		{"keystore without dir", ProviderConfig{Driver: DriverKeystore, RPCURL: "http://localhost:8545"}, true},
		{"key", ProviderConfig{Driver: DriverKey, RPCURL: "http://localhost:8545", PrivateKey: "0x01"}, false},
		{"unknown", ProviderConfig{Driver: "ledger", RPCURL: "http://localhost:8545"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestResolveSecretPrefersEnv(t *testing.T) {
	t.Setenv("SMARTCLAIM_TEST_PASS", "from-env")
	cfg := ProviderConfig{Passphrase: "inline", PassphraseEnv: "SMARTCLAIM_TEST_PASS"}
	if got := cfg.ResolvePassphrase(); got != "from-env" {
		t.Fatalf("expected env passphrase, got %q", got)
	}
	cfg.PassphraseEnv = "SMARTCLAIM_TEST_UNSET"
	if got := cfg.ResolvePassphrase(); got != "inline" {
		t.Fatalf("expected inline passphrase, got %q", got)
	}
}
