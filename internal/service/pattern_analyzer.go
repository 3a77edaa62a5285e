package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lisafeets/callguard/internal/domain"
	"github.com/lisafeets/callguard/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 聚合阈值
const (
	UnknownCallThreshold = 10 // 24h 内未知来电数
	UnknownSMSThreshold  = 20 // 24h 内未知发送者消息总数
	analysisWindow       = 24 * time.Hour
	dedupTTL             = 24 * time.Hour
)

// PatternAnalyzer 滚动窗口聚合分析
// 每次成功摄取后同步执行（不是独立轮询）；触发通过 redis SETNX 去重，
// 同一 (senior, type) 24h 内只产生一次警报。redis 不可用时退化为照常
// 触发（at-least-once 优先于去重）。
type PatternAnalyzer struct {
	activityRepo repository.ActivityRepository
	redisClient  *redis.Client
	dispatcher   *AlertDispatcher
	logger       *zap.Logger
	now          func() time.Time
}

// NewPatternAnalyzer 创建模式分析器
func NewPatternAnalyzer(
	activityRepo repository.ActivityRepository,
	redisClient *redis.Client,
	dispatcher *AlertDispatcher,
	logger *zap.Logger,
) *PatternAnalyzer {
	return &PatternAnalyzer{
		activityRepo: activityRepo,
		redisClient:  redisClient,
		dispatcher:   dispatcher,
		logger:       logger,
		now:          time.Now,
	}
}

// Analyze 重算 ownerID 的 24h 聚合并按阈值触发警报
// 分析失败只记日志，不影响摄取结果。
func (a *PatternAnalyzer) Analyze(ctx context.Context, ownerID string) {
	since := a.now().Add(-analysisWindow)

	unknownCalls, err := a.activityRepo.CountUnknownCallsSince(ctx, ownerID, since)
	if err != nil {
		a.logger.Error("Pattern analysis: unknown call count failed",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
	} else if unknownCalls >= UnknownCallThreshold {
		a.fire(ctx, ownerID, domain.AlertFrequentUnknownCalls,
			"Frequent unknown calls",
			fmt.Sprintf("%d calls from unknown numbers in the last 24 hours", unknownCalls),
		)
	}

	unknownSMS, err := a.activityRepo.SumUnknownSMSMessagesSince(ctx, ownerID, since)
	if err != nil {
		a.logger.Error("Pattern analysis: unknown sms sum failed",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
	} else if unknownSMS >= UnknownSMSThreshold {
		a.fire(ctx, ownerID, domain.AlertSuspiciousSMSPattern,
			"Suspicious SMS pattern",
			fmt.Sprintf("%d messages from unknown senders in the last 24 hours", unknownSMS),
		)
	}
}

func (a *PatternAnalyzer) fire(ctx context.Context, ownerID string, alertType domain.AlertType, title, message string) {
	key := fmt.Sprintf("alert:dedup:%s:%s", ownerID, alertType)

	if a.redisClient != nil {
		acquired, err := a.redisClient.SetNX(ctx, key, a.now().Unix(), dedupTTL).Result()
		if err != nil {
			a.logger.Warn("Alert dedup unavailable, firing anyway",
				zap.String("owner_id", ownerID),
				zap.String("alert_type", string(alertType)),
				zap.Error(err),
			)
		} else if !acquired {
			a.logger.Debug("Alert suppressed by dedup window",
				zap.String("owner_id", ownerID),
				zap.String("alert_type", string(alertType)),
			)
			return
		}
	}

	err := a.dispatcher.Dispatch(ctx, Trigger{
		SeniorID: ownerID,
		Type:     alertType,
		Severity: domain.SeverityHigh,
		Title:    title,
		Message:  message,
	})
	if err != nil {
		// 分发失败时释放去重键，让下一个批次重试
		if a.redisClient != nil {
			a.redisClient.Del(ctx, key)
		}
		a.logger.Error("Alert dispatch failed",
			zap.String("owner_id", ownerID),
			zap.String("alert_type", string(alertType)),
			zap.Error(err),
		)
	}
}
