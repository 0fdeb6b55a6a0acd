package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	xerrors "SmartClaim/internal/errors"
	"SmartClaim/internal/insurance"
	"SmartClaim/internal/notify"
	"SmartClaim/internal/web3"
	"SmartClaim/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// ActionToggle names wallet connect/disconnect in notices and logs.
const ActionToggle = "toggle_wallet"

// Binder derives a contract handle for account from the provider.
type Binder func(ctx context.Context, provider web3.Provider, account common.Address) (insurance.Handle, error)

// Option customises a Manager.
type Option func(*Manager)

// WithNotifier sets where user notices are delivered.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithBinder replaces the contract binding step.
func WithBinder(b Binder) Option {
	return func(m *Manager) {
		if b != nil {
			m.bind = b
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithStateObserver registers fn to be called after every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(m *Manager) { m.observe = fn }
}

// Manager holds the current session. A nil provider means no wallet was
// detected.
type Manager struct {
	provider web3.Provider
	notifier notify.Notifier
	bind     Binder
	logger   *slog.Logger
	observe  func(State)

	current atomic.Pointer[Session]
	wg      sync.WaitGroup
}

// NewManager returns a manager in the disconnected state. Nothing is
// connected until Toggle is called.
func NewManager(provider web3.Provider, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		notifier: notify.Nop{},
		bind:     BindContract,
		logger:   logger.Named("session"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.current.Store(disconnected())
	return m
}

// BindContract derives the signer for account and binds the deployed
// insurance contract to it.
func BindContract(ctx context.Context, provider web3.Provider, account common.Address) (insurance.Handle, error) {
	opts, err := provider.Signer(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("derive signer: %w", err)
	}
	contract, err := insurance.Bind(provider.Backend(), opts)
	if err != nil {
		return nil, fmt.Errorf("bind contract: %w", err)
	}
	return contract, nil
}

// Detected reports whether a wallet provider is available.
func (m *Manager) Detected() bool { return m.provider != nil }

// DeepLink returns the link offered when no wallet is detected.
func (m *Manager) DeepLink() string { return DeepLink }

// Current returns a consistent snapshot of the session.
func (m *Manager) Current() Session { return *m.current.Load() }

// Toggle connects when disconnected and disconnects otherwise.
func (m *Manager) Toggle(ctx context.Context) (Session, error) {
	if m.provider == nil {
		err := xerrors.New(xerrors.CodeWalletNotDetected, "", xerrors.WithMetadata("deep_link", DeepLink))
		m.logger.Warn("toggle without wallet provider")
		m.emit(ctx, notify.Failure(ActionToggle, err))
		return m.Current(), err
	}

	cur := m.current.Load()
	if cur.Connected() {
		return m.disconnect(cur), nil
	}
	return m.connect(ctx, cur)
}

func (m *Manager) connect(ctx context.Context, cur *Session) (Session, error) {
	accounts, err := m.provider.RequestAccounts(ctx)
	if err == nil && len(accounts) == 0 {
		err = fmt.Errorf("%s returned no accounts", m.provider.Name())
	}
	if err != nil {
		m.logger.Warn("wallet connection rejected",
			slog.String("provider", m.provider.Name()),
			slog.Any("error", err))
		return m.Current(), xerrors.Wrap(xerrors.CodeConnectionRejected, err, "")
	}

	pending := &Session{
		state:    StateConnecting,
		account:  accounts[0],
		provider: m.provider,
		settled:  make(chan struct{}),
	}
	if !m.current.CompareAndSwap(cur, pending) {
		// A concurrent toggle already moved the session on.
		m.logger.Debug("connect superseded by concurrent toggle")
		return m.Current(), nil
	}
	m.transition(pending, pending.account, "wallet connected")

	m.wg.Add(1)
	go m.bindSession(context.WithoutCancel(ctx), pending)
	return *pending, nil
}

func (m *Manager) disconnect(cur *Session) Session {
	next := disconnected()
	for !m.current.CompareAndSwap(cur, next) {
		cur = m.current.Load()
		if !cur.Connected() {
			return *cur
		}
	}
	m.transition(next, cur.account, "wallet disconnected")
	m.release(cur.account)
	return *next
}

func (m *Manager) bindSession(ctx context.Context, pending *Session) {
	defer m.wg.Done()
	defer close(pending.settled)

	contract, err := m.safeBind(ctx, pending)
	if err != nil {
		m.logger.Error("contract binding failed",
			slog.String("account", pending.account.Hex()),
			slog.Any("error", err))
		if next := disconnected(); m.current.CompareAndSwap(pending, next) {
			m.transition(next, pending.account, "binding failed")
			m.release(pending.account)
		}
		return
	}

	bound := &Session{
		state:    StateBound,
		account:  pending.account,
		provider: pending.provider,
		contract: contract,
		settled:  pending.settled,
	}
	if !m.current.CompareAndSwap(pending, bound) {
		m.logger.Info("discarding binding for a session that is gone",
			slog.String("account", pending.account.Hex()))
		return
	}
	m.transition(bound, bound.account, "contract bound")
}

func (m *Manager) safeBind(ctx context.Context, pending *Session) (handle insurance.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle, err = nil, fmt.Errorf("binder panic: %v", r)
		}
	}()
	handle, err = m.bind(ctx, pending.provider, pending.account)
	if err == nil && handle == nil {
		err = fmt.Errorf("binder returned no contract handle")
	}
	return handle, err
}

func (m *Manager) transition(s *Session, account common.Address, msg string) {
	logger.Audit().Info(msg,
		slog.String("state", string(s.State())),
		slog.String("account", account.Hex()),
		slog.String("provider", m.provider.Name()))
	if m.observe != nil {
		m.observe(s.State())
	}
}

// release 让 provider 丢弃该账户的已解锁密钥（若 provider 支持）。
func (m *Manager) release(account common.Address) {
	r, ok := m.provider.(web3.AccountReleaser)
	if !ok {
		return
	}
	if err := r.ReleaseAccount(account); err != nil {
		m.logger.Warn("release account failed",
			slog.String("account", account.Hex()),
			slog.Any("error", err))
	}
}

// WaitBound blocks until a pending binding settles and returns the session
// if it is bound. It fails with NOT_READY otherwise.
func (m *Manager) WaitBound(ctx context.Context) (Session, error) {
	cur := m.Current()
	select {
	case <-cur.Settled():
	case <-ctx.Done():
		return m.Current(), xerrors.Wrap(xerrors.CodeNotReady, ctx.Err(), "")
	}
	s := m.Current()
	if _, ok := s.Contract(); !ok {
		return s, xerrors.New(xerrors.CodeNotReady, "")
	}
	return s, nil
}

// Close waits for in-flight bindings to finish or ctx to end.
func (m *Manager) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) emit(ctx context.Context, n notify.Notice) {
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.Warn("notice delivery failed", slog.Any("error", err))
	}
}
