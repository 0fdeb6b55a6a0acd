// Package web3 defines the wallet provider boundary used by the session
// manager: a provider hands out the user's accounts, derives a transaction
// signer for one of them and exposes the chain backend transactions are sent
// through. Concrete providers live in the ethereum subpackage; provider.Detect
// picks one from configuration.
package web3
