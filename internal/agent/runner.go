package agent

import (
	"context"
	"time"

	"github.com/lisafeets/callguard/internal/domain"
	"github.com/lisafeets/callguard/internal/service"

	"go.uber.org/zap"
)

// Runner 采集与上传的主循环
//
// 单消费者：同一时刻最多一个同步在执行。定时器和 Notify 都只是"请尽快
// 同步一次"的信号；同步进行中收到的信号合并为一次后续执行。
type Runner struct {
	collector *Collector
	store     *Store
	client    *SyncClient
	interval  time.Duration
	batchSize int
	logger    *zap.Logger

	kick     chan struct{}
	lastScan time.Time
}

// NewRunner 创建主循环
func NewRunner(collector *Collector, store *Store, client *SyncClient, interval time.Duration, batchSize int, logger *zap.Logger) *Runner {
	return &Runner{
		collector: collector,
		store:     store,
		client:    client,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		kick:      make(chan struct{}, 1),
		lastScan:  time.Now().Add(-24 * time.Hour), // 首轮回补一天
	}
}

// Notify 请求尽快执行一次同步（非阻塞；重复信号合并）
func (r *Runner) Notify() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run 阻塞运行，ctx 取消后返回
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("Agent runner started",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Agent runner stopped")
			return
		case <-ticker.C:
			r.cycle(ctx)
		case <-r.kick:
			r.cycle(ctx)
		}
	}
}

// cycle 一轮采集 + 上传
func (r *Runner) cycle(ctx context.Context) {
	scanStart := time.Now()
	if _, err := r.collector.Collect(ctx, r.lastScan); err != nil {
		r.logger.Error("Collection failed", zap.Error(err))
		// 扫描失败不推进 lastScan，下一轮重扫同一窗口
	} else {
		r.lastScan = scanStart
	}

	r.syncCalls(ctx)
	r.syncConversations(ctx)
}

func (r *Runner) syncCalls(ctx context.Context) {
	for {
		batch, err := r.store.PendingCalls(ctx, r.batchSize)
		if err != nil {
			r.logger.Error("Pending call query failed", zap.Error(err))
			return
		}
		if len(batch) == 0 {
			return
		}

		outcome := domain.SyncOutcomeSuccess
		if _, err := r.client.UploadCalls(ctx, callUploads(batch)); err != nil {
			r.logger.Warn("Call batch upload failed",
				zap.Int("batch", len(batch)),
				zap.Error(err),
			)
			outcome = domain.SyncOutcomeFailure
		}
		if err := r.store.MarkCallOutcome(ctx, batch, outcome); err != nil {
			r.logger.Error("Call outcome update failed", zap.Error(err))
			return
		}
		if outcome == domain.SyncOutcomeFailure {
			return // 本轮放弃，等下一轮重试
		}
		if len(batch) < r.batchSize {
			return
		}
	}
}

func (r *Runner) syncConversations(ctx context.Context) {
	for {
		batch, err := r.store.PendingConversations(ctx, r.batchSize)
		if err != nil {
			r.logger.Error("Pending conversation query failed", zap.Error(err))
			return
		}
		if len(batch) == 0 {
			return
		}

		outcome := domain.SyncOutcomeSuccess
		if _, err := r.client.UploadConversations(ctx, conversationUploads(batch)); err != nil {
			r.logger.Warn("Conversation batch upload failed",
				zap.Int("batch", len(batch)),
				zap.Error(err),
			)
			outcome = domain.SyncOutcomeFailure
		}
		if err := r.store.MarkConversationOutcome(ctx, batch, outcome); err != nil {
			r.logger.Error("Conversation outcome update failed", zap.Error(err))
			return
		}
		if outcome == domain.SyncOutcomeFailure {
			return
		}
		if len(batch) < r.batchSize {
			return
		}
	}
}

func callUploads(batch []QueuedCall) []service.CallRecordUpload {
	out := make([]service.CallRecordUpload, len(batch))
	for i, q := range batch {
		out[i] = q.Upload
	}
	return out
}

func conversationUploads(batch []QueuedConversation) []service.SmsConversationUpload {
	out := make([]service.SmsConversationUpload, len(batch))
	for i, q := range batch {
		out[i] = q.Upload
	}
	return out
}
