// Package notify 负责把操作结果以提示的形式送达用户及外部订阅方。
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	xerrors "SmartClaim/internal/errors"

	"github.com/google/uuid"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelLog      Channel = "log"
	ChannelFeed     Channel = "feed"
	ChannelRedis    Channel = "redis"
	ChannelRabbitMQ Channel = "rabbitmq"
)

// Kind 描述提示的类别，决定界面的展示方式。
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Notice 是一条展示给用户的提示，相当于浏览器中的阻塞式弹窗。
type Notice struct {
	ID         string       `json:"id"`
	Kind       Kind         `json:"kind"`
	Code       xerrors.Code `json:"code,omitempty"`
	Action     string       `json:"action,omitempty"`
	Message    string       `json:"message"`
	TxHash     string       `json:"tx_hash,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Success 构造一条成功提示。
func Success(action, message, txHash string) Notice {
	return stamp(Notice{Kind: KindSuccess, Action: action, Message: message, TxHash: txHash})
}

// Failure 根据统一错误构造失败提示，只使用错误码登记的文案，不暴露底层原因。
func Failure(action string, err error) Notice {
	return stamp(Notice{
		Kind:    KindError,
		Code:    xerrors.CodeOf(err),
		Action:  action,
		Message: xerrors.MessageOf(err),
	})
}

func stamp(n Notice) Notice {
	n.ID = uuid.NewString()
	n.OccurredAt = time.Now().UTC()
	return n
}

// Notifier 负责将提示发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, notice Notice) error
}

// Fanout 将提示广播给多个通知器。
type Fanout struct {
	notifiers []Notifier
}

// NewFanout 创建一个新的 Fanout，同一渠道只保留最后注册的通知器。
func NewFanout(notifiers ...Notifier) *Fanout {
	index := make(map[Channel]int, len(notifiers))
	set := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		if i, ok := index[n.Channel()]; ok {
			set[i] = n
			continue
		}
		index[n.Channel()] = len(set)
		set = append(set, n)
	}
	return &Fanout{notifiers: set}
}

// Channel 返回组合渠道名。
func (f *Fanout) Channel() Channel { return "fanout" }

// Notify 将提示广播至所有渠道，单个渠道失败不影响其他渠道。
func (f *Fanout) Notify(ctx context.Context, notice Notice) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, notice); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", n.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// Nop 丢弃所有提示。
type Nop struct{}

func (Nop) Channel() Channel { return "nop" }

func (Nop) Notify(context.Context, Notice) error { return nil }
