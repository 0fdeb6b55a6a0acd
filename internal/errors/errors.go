package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，决定日志级别与提示样式。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。Message 即展示给用户的提示文本。
type Attributes struct {
	Message  string
	Severity Severity
	Notify   bool
}

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	CodeWalletNotDetected  Code = "WALLET_NOT_DETECTED"
	CodeConnectionRejected Code = "CONNECTION_REJECTED"
	CodeNotReady           Code = "NOT_READY"

	CodeFileRequired       Code = "FILE_REQUIRED"
	CodeRegistrationFailed Code = "REGISTRATION_FAILED"
	CodeClaimFailed        Code = "CLAIM_FAILED"
	CodeApprovalFailed     Code = "APPROVAL_FAILED"
	CodePayoutFailed       Code = "PAYOUT_FAILED"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown: {
			Message:  "Something went wrong.",
			Severity: SeverityCritical,
			Notify:   true,
		},
		CodeInvalidArgument: {
			Message:  "Invalid input.",
			Severity: SeverityInfo,
			Notify:   true,
		},
		CodeWalletNotDetected: {
			Message:  "Wallet not detected. Please open this site inside your wallet app or install a wallet.",
			Severity: SeverityWarning,
			Notify:   true,
		},
		CodeConnectionRejected: {
			Message:  "Wallet connection rejected.",
			Severity: SeverityInfo,
			Notify:   false,
		},
		CodeNotReady: {
			Message:  "Wallet session is not ready yet. Connect your wallet and try again.",
			Severity: SeverityWarning,
			Notify:   true,
		},
		CodeFileRequired: {
			Message:  "Please select an image to upload as part of evidence.",
			Severity: SeverityInfo,
			Notify:   true,
		},
		CodeRegistrationFailed: {
			Message:  "Error registering policy.",
			Severity: SeverityWarning,
			Notify:   true,
		},
		CodeClaimFailed: {
			Message:  "Error submitting claim.",
			Severity: SeverityWarning,
			Notify:   true,
		},
		CodeApprovalFailed: {
			Message:  "Error approving claim.",
			Severity: SeverityWarning,
			Notify:   true,
		},
		CodePayoutFailed: {
			Message:  "Error issuing payout.",
			Severity: SeverityWarning,
			Notify:   true,
		},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	notify   *bool
	severity *Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithNotify 指定错误是否需要提示用户。
func WithNotify(notify bool) Option {
	return func(e *Error) {
		e.notify = &notify
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New 创建一个新的错误实例，message 为空时使用错误码的默认提示。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回面向用户的提示。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// ShouldNotify 判断是否需要向用户展示提示。
func (e *Error) ShouldNotify() bool {
	if e == nil {
		return false
	}
	if e.notify != nil {
		return *e.notify
	}
	return AttributesOf(e.code).Notify
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// MessageOf 返回可以直接展示给用户的提示文本，底层原因不会出现在其中。
func MessageOf(err error) string {
	if e, ok := From(err); ok {
		return e.Message()
	}
	return AttributesOf(CodeUnknown).Message
}

// ShouldNotify 判断任意 error 是否需要提示用户。
func ShouldNotify(err error) bool {
	if e, ok := From(err); ok {
		return e.ShouldNotify()
	}
	return err != nil
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
