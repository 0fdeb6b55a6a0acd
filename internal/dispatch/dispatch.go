// Package dispatch turns user form input into calls against the bound
// insurance contract and reports each outcome as a notice.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"runtime/debug"
	"strings"
	"time"

	xerrors "SmartClaim/internal/errors"
	"SmartClaim/internal/insurance"
	"SmartClaim/internal/notify"
	"SmartClaim/internal/session"
	"SmartClaim/internal/web3"
	"SmartClaim/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Action identifies one of the contract operations.
type Action string

const (
	ActionRegisterPolicy Action = "register_policy"
	ActionSubmitClaim    Action = "submit_claim"
	ActionApproveClaim   Action = "approve_claim"
	ActionPayout         Action = "payout"
)

// Outcome labels used for metrics.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeNotReady = "not_ready"
	OutcomeRejected = "invalid_input"
)

type actionSpec struct {
	failure xerrors.Code
	success string
}

var actions = map[Action]actionSpec{
	ActionRegisterPolicy: {failure: xerrors.CodeRegistrationFailed, success: "Policy registered!"},
	ActionSubmitClaim:    {failure: xerrors.CodeClaimFailed, success: "Claim submitted!"},
	ActionApproveClaim:   {failure: xerrors.CodeApprovalFailed, success: "Claim approved!"},
	ActionPayout:         {failure: xerrors.CodePayoutFailed, success: "Payout sent!"},
}

// PolicyRequest is the input of RegisterPolicy. Payout is a decimal ether
// amount.
type PolicyRequest struct {
	PolicyHolder string `json:"policy_holder"`
	Payout       string `json:"payout"`
	Condition    string `json:"condition"`
}

// FileRef points at an evidence attachment. Only the name is used.
type FileRef struct {
	Name string `json:"name"`
}

// ClaimRequest is the input of SubmitClaim.
type ClaimRequest struct {
	PolicyID   string   `json:"policy_id"`
	Evidence   string   `json:"evidence"`
	Attachment *FileRef `json:"attachment,omitempty"`
}

// AdminRequest is the input of ApproveClaim and Payout.
type AdminRequest struct {
	PolicyID string `json:"policy_id"`
}

// Result describes a confirmed contract call.
type Result struct {
	Action      Action        `json:"action"`
	Notice      notify.Notice `json:"notice"`
	TxHash      string        `json:"tx_hash"`
	BlockNumber uint64        `json:"block_number"`
}

// SessionSource supplies the current wallet session.
type SessionSource interface {
	Current() session.Session
}

// Observer records dispatch outcomes.
type Observer interface {
	ObserveDispatch(action, outcome string, elapsed time.Duration)
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithNotifier sets where notices are delivered.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Dispatcher) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithObserver sets the metrics sink.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// Dispatcher runs the four contract operations. It holds no state between
// calls; readiness is read from the session source on every call.
type Dispatcher struct {
	sessions SessionSource
	notifier notify.Notifier
	observer Observer
	logger   *slog.Logger
}

// New creates a Dispatcher reading sessions from src.
func New(src SessionSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sessions: src,
		notifier: notify.Nop{},
		logger:   logger.Named("dispatch"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// RegisterPolicy registers a policy for the holder with the given payout.
func (d *Dispatcher) RegisterPolicy(ctx context.Context, req PolicyRequest) (Result, error) {
	return d.run(ctx, ActionRegisterPolicy, nil, func(ctx context.Context, h insurance.Handle) (*types.Transaction, error) {
		if !common.IsHexAddress(req.PolicyHolder) {
			return nil, fmt.Errorf("malformed policy holder %q", req.PolicyHolder)
		}
		payout, err := web3.ParseEther(req.Payout)
		if err != nil {
			return nil, fmt.Errorf("payout amount: %w", err)
		}
		return h.RegisterPolicy(ctx, common.HexToAddress(req.PolicyHolder), payout, req.Condition)
	})
}

// SubmitClaim files a claim against a policy. An attachment must be
// selected; only its name becomes part of the evidence.
func (d *Dispatcher) SubmitClaim(ctx context.Context, req ClaimRequest) (Result, error) {
	precheck := func() error {
		if req.Attachment == nil || req.Attachment.Name == "" {
			return xerrors.New(xerrors.CodeFileRequired, "")
		}
		return nil
	}
	return d.run(ctx, ActionSubmitClaim, precheck, func(ctx context.Context, h insurance.Handle) (*types.Transaction, error) {
		id, err := ParsePolicyID(req.PolicyID)
		if err != nil {
			return nil, err
		}
		return h.SubmitClaim(ctx, id, FormatEvidence(req.Evidence, req.Attachment.Name))
	})
}

// ApproveClaim approves the claim on a policy. Authorization is enforced by
// the contract.
func (d *Dispatcher) ApproveClaim(ctx context.Context, req AdminRequest) (Result, error) {
	return d.run(ctx, ActionApproveClaim, nil, func(ctx context.Context, h insurance.Handle) (*types.Transaction, error) {
		id, err := ParsePolicyID(req.PolicyID)
		if err != nil {
			return nil, err
		}
		return h.ApproveClaim(ctx, id)
	})
}

// Payout triggers the payout of an approved claim.
func (d *Dispatcher) Payout(ctx context.Context, req AdminRequest) (Result, error) {
	return d.run(ctx, ActionPayout, nil, func(ctx context.Context, h insurance.Handle) (*types.Transaction, error) {
		id, err := ParsePolicyID(req.PolicyID)
		if err != nil {
			return nil, err
		}
		return h.Payout(ctx, id)
	})
}

// Reject reports a request that could not be decoded into an action input.
// The cause is logged and the action's generic failure notice is delivered;
// no session or network access happens.
func (d *Dispatcher) Reject(ctx context.Context, action Action, cause error) (Result, error) {
	start := time.Now()
	spec, ok := actions[action]
	if !ok {
		return Result{Action: action}, xerrors.Wrap(xerrors.CodeInvalidArgument, cause, "")
	}
	d.logger.Error("request rejected",
		slog.String("action", string(action)),
		slog.Any("error", cause))
	return d.fail(ctx, action, start, OutcomeRejected, xerrors.Wrap(spec.failure, cause, ""))
}

// ParsePolicyID parses a non-negative base-10 policy id. Only ASCII digits
// are accepted; signs, spaces and underscores are not.
func ParsePolicyID(raw string) (*big.Int, error) {
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return nil, fmt.Errorf("malformed policy id %q", raw)
	}
	id, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("malformed policy id %q", raw)
	}
	return id, nil
}

// FormatEvidence appends the attachment name to the evidence text.
func FormatEvidence(evidence, attachment string) string {
	return evidence + " - Image: " + attachment
}

type callFunc func(ctx context.Context, h insurance.Handle) (*types.Transaction, error)

func (d *Dispatcher) run(ctx context.Context, action Action, precheck func() error, call callFunc) (Result, error) {
	start := time.Now()
	spec := actions[action]
	log := d.logger.With(slog.String("action", string(action)))

	if precheck != nil {
		if err := precheck(); err != nil {
			log.Info("precondition failed", slog.String("code", string(xerrors.CodeOf(err))))
			return d.fail(ctx, action, start, OutcomeRejected, err)
		}
	}

	current := d.sessions.Current()
	handle, ok := current.Contract()
	if !ok {
		err := xerrors.New(xerrors.CodeNotReady, "", xerrors.WithMetadata("state", string(current.State())))
		log.Warn("contract handle not ready", slog.String("state", string(current.State())))
		return d.fail(ctx, action, start, OutcomeNotReady, err)
	}

	receipt, tx, err := invoke(ctx, handle, call)
	if err != nil {
		log.Error("contract call failed", slog.Any("error", err))
		return d.fail(ctx, action, start, OutcomeFailure, xerrors.Wrap(spec.failure, err, ""))
	}

	hash := tx.Hash().Hex()
	account, _ := current.Account()
	logger.Audit().Info("transaction confirmed",
		slog.String("action", string(action)),
		slog.String("account", account.Hex()),
		slog.String("tx_hash", hash),
		slog.Uint64("block", receipt.BlockNumber.Uint64()))

	n := notify.Success(string(action), spec.success, hash)
	d.emit(ctx, n)
	d.observe(action, OutcomeSuccess, start)
	return Result{Action: action, Notice: n, TxHash: hash, BlockNumber: receipt.BlockNumber.Uint64()}, nil
}

// invoke performs the call and waits for its confirmation. A panic raised by
// the handle is converted into an error.
func invoke(ctx context.Context, h insurance.Handle, call callFunc) (receipt *types.Receipt, tx *types.Transaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			receipt, tx = nil, nil
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	tx, err = call(ctx, h)
	if err != nil {
		return nil, nil, err
	}
	if tx == nil {
		return nil, nil, fmt.Errorf("no transaction returned")
	}
	receipt, err = h.WaitMined(ctx, tx)
	if err != nil {
		return nil, tx, err
	}
	if receipt == nil {
		return nil, tx, fmt.Errorf("no receipt for %s", tx.Hash().Hex())
	}
	if receipt.BlockNumber == nil {
		receipt.BlockNumber = new(big.Int)
	}
	return receipt, tx, nil
}

func (d *Dispatcher) fail(ctx context.Context, action Action, start time.Time, outcome string, err error) (Result, error) {
	n := notify.Failure(string(action), err)
	d.emit(ctx, n)
	d.observe(action, outcome, start)
	return Result{Action: action, Notice: n}, err
}

func (d *Dispatcher) emit(ctx context.Context, n notify.Notice) {
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.logger.Warn("notice delivery failed", slog.Any("error", err))
	}
}

func (d *Dispatcher) observe(action Action, outcome string, start time.Time) {
	if d.observer != nil {
		d.observer.ObserveDispatch(string(action), outcome, time.Since(start))
	}
}
