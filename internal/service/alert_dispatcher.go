package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lisafeets/callguard/internal/domain"
	"github.com/lisafeets/callguard/internal/notify"
	"github.com/lisafeets/callguard/internal/realtime"
	"github.com/lisafeets/callguard/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Trigger 一次警报触发
type Trigger struct {
	SeniorID string
	Type     domain.AlertType
	Severity domain.Severity
	Title    string
	Message  string
	Metadata *string
}

// RealtimePusher 实时通道（realtime.Registry 满足）
type RealtimePusher interface {
	SendToUser(userID string, msg realtime.Message) int
}

// AlertDispatcher 警报分发
// 对每个 active 关系的监护人各生成一条 Alert 并尝试投递；每个接收人是
// 独立的工作单元，单个接收人的渠道失败不影响其他人。
type AlertDispatcher struct {
	alertRepo  repository.AlertRepository
	familyRepo repository.FamilyRepository
	pusher     RealtimePusher
	channels   []notify.Channel
	logger     *zap.Logger
	now        func() time.Time
}

// NewAlertDispatcher 创建警报分发器
func NewAlertDispatcher(
	alertRepo repository.AlertRepository,
	familyRepo repository.FamilyRepository,
	pusher RealtimePusher,
	channels []notify.Channel,
	logger *zap.Logger,
) *AlertDispatcher {
	return &AlertDispatcher{
		alertRepo:  alertRepo,
		familyRepo: familyRepo,
		pusher:     pusher,
		channels:   channels,
		logger:     logger,
		now:        time.Now,
	}
}

// Dispatch 对触发执行扇出
// 关系查询失败整体返回错误（警报留待下个周期）；之后每个接收人并行、
// 相互隔离地投递。
func (d *AlertDispatcher) Dispatch(ctx context.Context, trigger Trigger) error {
	connections, err := d.familyRepo.ActiveConnectionsForSenior(ctx, trigger.SeniorID)
	if err != nil {
		return fmt.Errorf("lookup active connections: %w", err)
	}
	if len(connections) == 0 {
		d.logger.Info("Trigger has no active guardians",
			zap.String("senior_id", trigger.SeniorID),
			zap.String("alert_type", string(trigger.Type)),
		)
		return nil
	}

	var wg sync.WaitGroup
	for _, conn := range connections {
		wg.Add(1)
		go func(guardianID string) {
			defer wg.Done()
			d.deliverToRecipient(ctx, trigger, guardianID)
		}(conn.GuardianID)
	}
	wg.Wait()
	return nil
}

// deliverToRecipient 单个接收人的完整投递流程
func (d *AlertDispatcher) deliverToRecipient(ctx context.Context, trigger Trigger, guardianID string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Recovered panic in alert delivery",
				zap.String("guardian_id", guardianID),
				zap.Any("panic", r),
			)
		}
	}()

	alert := &domain.Alert{
		ID:             uuid.New().String(),
		SenderID:       trigger.SeniorID,
		ReceiverID:     guardianID,
		Type:           trigger.Type,
		Severity:       trigger.Severity,
		Title:          trigger.Title,
		Message:        trigger.Message,
		Metadata:       trigger.Metadata,
		DeliveryStatus: domain.DeliveryPending,
		SentAt:         d.now(),
	}

	if err := d.alertRepo.CreateAlert(ctx, alert); err != nil {
		d.logger.Error("Failed to create alert row",
			zap.String("guardian_id", guardianID),
			zap.String("alert_type", string(trigger.Type)),
			zap.Error(err),
		)
		return
	}

	// 实时通道总是尝试；没有在线连接不是错误
	d.pushRealtime(guardianID, alert)

	// 其余渠道按接收人偏好
	prefs, err := d.familyRepo.NotificationPreferences(ctx, guardianID)
	if err != nil {
		d.logger.Warn("Preference lookup failed, realtime only",
			zap.String("guardian_id", guardianID),
			zap.Error(err),
		)
		prefs = &domain.NotificationPreferences{}
	}
	for _, ch := range d.channels {
		if !channelEnabled(ch.Name(), prefs) {
			continue
		}
		if err := ch.Send(ctx, alert, guardianID); err != nil {
			// 单渠道失败只记日志，继续其余渠道
			d.logger.Warn("Notification channel failed",
				zap.String("channel", ch.Name()),
				zap.String("guardian_id", guardianID),
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}

	// 所有渠道尝试完毕后标记 sent
	if err := d.alertRepo.MarkSent(ctx, alert.ID, d.now()); err != nil {
		d.logger.Error("Failed to mark alert sent",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
	}
}

func (d *AlertDispatcher) pushRealtime(guardianID string, alert *domain.Alert) {
	delivered := d.pusher.SendToUser(guardianID, realtimeAlertMessage(alert))
	d.logger.Debug("Realtime alert push",
		zap.String("guardian_id", guardianID),
		zap.String("alert_id", alert.ID),
		zap.Int("connections", delivered),
	)
}

func realtimeAlertMessage(alert *domain.Alert) realtime.Message {
	return realtime.NewMessage(realtime.TypeAlert, realtime.AlertData{
		ID:        alert.ID,
		Title:     alert.Title,
		Message:   alert.Message,
		AlertType: string(alert.Type),
		Severity:  string(alert.Severity),
		Timestamp: alert.SentAt.Unix(),
	})
}

func channelEnabled(name string, prefs *domain.NotificationPreferences) bool {
	switch name {
	case "email":
		return prefs.Email
	case "sms":
		return prefs.SMS
	case "push":
		return prefs.Push
	}
	return false
}
