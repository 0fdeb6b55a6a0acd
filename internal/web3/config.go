package web3

import (
	"fmt"
	"os"
	"strings"
)

// Supported wallet drivers.
const (
	DriverNone     = ""
	DriverClef     = "clef"
	DriverKeystore = "keystore"
	DriverKey      = "key"
)

// ProviderConfig selects and configures the wallet provider. An empty driver
// means no wallet is available to the process.
type ProviderConfig struct {
	Driver        string `yaml:"driver"`
	RPCURL        string `yaml:"rpc_url"`
	ClefURL       string `yaml:"clef_url"`
	KeystoreDir   string `yaml:"keystore_dir"`
	Passphrase    string `yaml:"passphrase"`
	PassphraseEnv string `yaml:"passphrase_env"`
	PrivateKey    string `yaml:"private_key"`
	PrivateKeyEnv string `yaml:"private_key_env"`
}

// Detected reports whether a wallet driver is configured.
func (c ProviderConfig) Detected() bool {
	return strings.TrimSpace(c.Driver) != DriverNone
}

// Validate checks that the fields required by the selected driver are set.
func (c ProviderConfig) Validate() error {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	if driver == DriverNone {
		return nil
	}
	if strings.TrimSpace(c.RPCURL) == "" {
		return fmt.Errorf("wallet driver %s requires rpc_url", driver)
	}
	switch driver {
	case DriverClef:
		if strings.TrimSpace(c.ClefURL) == "" {
			return fmt.Errorf("wallet driver %s requires clef_url", driver)
		}
	case DriverKeystore:
		if strings.TrimSpace(c.KeystoreDir) == "" {
			return fmt.Errorf("wallet driver %s requires keystore_dir", driver)
		}
	case DriverKey:
		if c.ResolvePrivateKey() == "" {
			return fmt.Errorf("wallet driver %s requires private_key or private_key_env", driver)
		}
	default:
		return fmt.Errorf("unsupported wallet driver %q", c.Driver)
	}
	return nil
}

// ResolvePassphrase prefers the environment variable over the inline value.
func (c ProviderConfig) ResolvePassphrase() string {
	return resolveSecret(c.Passphrase, c.PassphraseEnv)
}

// ResolvePrivateKey prefers the environment variable over the inline value.
func (c ProviderConfig) ResolvePrivateKey() string {
	return resolveSecret(c.PrivateKey, c.PrivateKeyEnv)
}

func resolveSecret(inline, env string) string {
	if env = strings.TrimSpace(env); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(inline)
}
