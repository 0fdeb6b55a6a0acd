package notify

import (
	"context"
	"log/slog"

	"SmartClaim/pkg/logger"
)

// LogNotifier 将提示写入结构化日志。
type LogNotifier struct {
	Logger *slog.Logger
}

// Channel 返回日志渠道。
func (n *LogNotifier) Channel() Channel { return ChannelLog }

// Notify 记录提示，失败提示使用 Warn 级别。
func (n *LogNotifier) Notify(ctx context.Context, notice Notice) error {
	l := logger.Named("notify")
	if n != nil && n.Logger != nil {
		l = n.Logger
	}
	level := slog.LevelInfo
	if notice.Kind == KindError {
		level = slog.LevelWarn
	}
	l.LogAttrs(ctx, level, "user notice",
		slog.String("notice_id", notice.ID),
		slog.String("kind", string(notice.Kind)),
		slog.String("code", string(notice.Code)),
		slog.String("action", notice.Action),
		slog.String("message", notice.Message),
		slog.String("tx_hash", notice.TxHash),
	)
	return nil
}
