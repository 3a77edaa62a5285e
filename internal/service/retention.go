package service

import (
	"context"
	"time"

	"github.com/lisafeets/callguard/internal/repository"

	"go.uber.org/zap"
)

// RetentionService 按保留期定时清理过期数据
type RetentionService struct {
	activityRepo      repository.ActivityRepository
	alertRepo         repository.AlertRepository
	activityRetention time.Duration
	alertRetention    time.Duration
	interval          time.Duration
	logger            *zap.Logger
}

// NewRetentionService 创建清理任务
func NewRetentionService(
	activityRepo repository.ActivityRepository,
	alertRepo repository.AlertRepository,
	activityRetention, alertRetention, interval time.Duration,
	logger *zap.Logger,
) *RetentionService {
	return &RetentionService{
		activityRepo:      activityRepo,
		alertRepo:         alertRepo,
		activityRetention: activityRetention,
		alertRetention:    alertRetention,
		interval:          interval,
		logger:            logger,
	}
}

// Start 启动清理循环，ctx 取消后退出
func (s *RetentionService) Start(ctx context.Context) {
	s.logger.Info("retention service started",
		zap.Duration("activity_retention", s.activityRetention),
		zap.Duration("alert_retention", s.alertRetention),
		zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// 启动时先清一轮
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention service stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep 执行一轮清理；单边失败不影响另一边
func (s *RetentionService) Sweep(ctx context.Context) {
	now := time.Now()

	activityCutoff := now.Add(-s.activityRetention)
	removed, err := s.activityRepo.DeleteActivityOlderThan(ctx, activityCutoff)
	if err != nil {
		s.logger.Error("activity retention sweep failed", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("expired activity removed",
			zap.Int64("count", removed),
			zap.Time("cutoff", activityCutoff))
	}

	alertCutoff := now.Add(-s.alertRetention)
	removed, err = s.alertRepo.DeleteAlertsOlderThan(ctx, alertCutoff)
	if err != nil {
		s.logger.Error("alert retention sweep failed", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("expired alerts removed",
			zap.Int64("count", removed),
			zap.Time("cutoff", alertCutoff))
	}
}
