// Package notify defines the pluggable alert delivery channels.
//
// Email/SMS/push providers are external collaborators; the implementations
// here log the attempt and succeed, so the delivery pipeline is complete
// end-to-end without a provider account. A real provider drops in behind
// the Channel interface.
package notify

import (
	"context"

	"github.com/lisafeets/callguard/internal/domain"

	"go.uber.org/zap"
)

// Channel 一个通知渠道
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *domain.Alert, recipientID string) error
}

// logChannel 记录日志的占位实现
type logChannel struct {
	name   string
	logger *zap.Logger
}

func (c *logChannel) Name() string { return c.name }

func (c *logChannel) Send(_ context.Context, alert *domain.Alert, recipientID string) error {
	c.logger.Info("Notification channel send",
		zap.String("channel", c.name),
		zap.String("alert_id", alert.ID),
		zap.String("recipient_id", recipientID),
		zap.String("alert_type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
	)
	return nil
}

// NewEmailChannel 创建 email 渠道（占位实现）
func NewEmailChannel(logger *zap.Logger) Channel {
	return &logChannel{name: "email", logger: logger}
}

// NewSMSChannel 创建 SMS 渠道（占位实现）
func NewSMSChannel(logger *zap.Logger) Channel {
	return &logChannel{name: "sms", logger: logger}
}

// NewPushChannel 创建 push 渠道（占位实现）
func NewPushChannel(logger *zap.Logger) Channel {
	return &logChannel{name: "push", logger: logger}
}
