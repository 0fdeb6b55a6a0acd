// Package session owns the wallet connection lifecycle: account approval,
// signer derivation and binding of the insurance contract to that signer.
package session

import (
	"SmartClaim/internal/insurance"
	"SmartClaim/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// DeepLink opens the client inside the wallet's mobile browser.
const DeepLink = "https://metamask.app.link/dapp/samopera.github.io/smartclaim"

// State is the connection stage of a session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateBound        State = "bound"
)

var settledChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Session is an immutable snapshot of the wallet connection. The contract
// handle is present only in the bound state; the account is present in both
// the connecting and bound states.
type Session struct {
	state    State
	account  common.Address
	provider web3.Provider
	contract insurance.Handle
	// settled is closed once a connecting session has finished binding.
	settled chan struct{}
}

func disconnected() *Session {
	return &Session{state: StateDisconnected, settled: settledChan}
}

func (s Session) State() State {
	if s.state == "" {
		return StateDisconnected
	}
	return s.state
}

// Connected reports whether an account has been granted.
func (s Session) Connected() bool {
	return s.State() != StateDisconnected
}

// Account returns the granted account.
func (s Session) Account() (common.Address, bool) {
	if !s.Connected() {
		return common.Address{}, false
	}
	return s.account, true
}

// Contract returns the signer-bound contract handle once binding completed.
func (s Session) Contract() (insurance.Handle, bool) {
	if s.State() != StateBound || s.contract == nil {
		return nil, false
	}
	return s.contract, true
}

// Provider returns the wallet provider the session was granted by.
func (s Session) Provider() web3.Provider {
	if !s.Connected() {
		return nil
	}
	return s.provider
}

// Settled is closed when the session is no longer waiting for a binding.
func (s Session) Settled() <-chan struct{} {
	if s.settled == nil {
		return settledChan
	}
	return s.settled
}
