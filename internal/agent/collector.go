package agent

import (
	"context"
	"errors"
	"time"

	"github.com/lisafeets/callguard/internal/cache"
	"github.com/lisafeets/callguard/internal/grouper"
	"github.com/lisafeets/callguard/internal/risk"
	"github.com/lisafeets/callguard/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Collector 把设备日志扫描结果转成上传队列里的记录
// 短信正文只在这里短暂存在：提取内容标志后立即丢弃。
type Collector struct {
	source   ActivitySource
	store    *Store
	contacts *cache.Cache
	logger   *zap.Logger
}

// NewCollector 创建采集器
func NewCollector(source ActivitySource, store *Store, contacts *cache.Cache, logger *zap.Logger) *Collector {
	return &Collector{
		source:   source,
		store:    store,
		contacts: contacts,
		logger:   logger,
	}
}

// Collect 扫描 since 之后的新记录并全部入队，返回新入队的条数
// 权限被拒按"本轮没有数据"处理，不算错误。
func (c *Collector) Collect(ctx context.Context, since time.Time) (int, error) {
	total := 0

	calls, err := c.source.ScanCalls(ctx, since)
	if err != nil && !errors.Is(err, ErrPermissionDenied) {
		return 0, err
	}
	if errors.Is(err, ErrPermissionDenied) {
		c.logger.Warn("Call log access denied, skipping scan")
	}
	if len(calls) > 0 {
		queued := make([]QueuedCall, 0, len(calls))
		for _, sc := range calls {
			queued = append(queued, c.queuedCall(ctx, sc))
		}
		n, err := c.store.EnqueueCalls(ctx, queued)
		if err != nil {
			return total, err
		}
		total += n
	}

	messages, err := c.source.ScanMessages(ctx, since)
	if err != nil && !errors.Is(err, ErrPermissionDenied) {
		return total, err
	}
	if errors.Is(err, ErrPermissionDenied) {
		c.logger.Warn("SMS log access denied, skipping scan")
	}
	if len(messages) > 0 {
		conversations := c.queuedConversations(ctx, messages)
		n, err := c.store.EnqueueConversations(ctx, conversations)
		if err != nil {
			return total, err
		}
		total += n
	}

	c.logger.Debug("Collection pass finished",
		zap.Int("calls_scanned", len(calls)),
		zap.Int("messages_scanned", len(messages)),
		zap.Int("enqueued", total),
	)
	return total, nil
}

func (c *Collector) queuedCall(ctx context.Context, sc ScannedCall) QueuedCall {
	name, known := c.lookupContact(ctx, sc.Number)
	// 时间戳保留设备时区偏移，server 端重评分依赖设备本地小时
	up := service.CallRecordUpload{
		Phone:        sc.Number,
		Duration:     sc.Duration,
		Direction:    sc.Direction,
		Timestamp:    sc.Timestamp.Format(time.RFC3339),
		KnownContact: &known,
	}
	if known && name != "" {
		up.ContactName = &name
	}
	return QueuedCall{ID: uuid.New().String(), Upload: up}
}

func (c *Collector) queuedConversations(ctx context.Context, messages []ScannedMessage) []QueuedConversation {
	raw := make([]grouper.RawMessage, 0, len(messages))
	for _, m := range messages {
		raw = append(raw, grouper.RawMessage{
			Counterpart: m.Number,
			ThreadID:    m.ThreadID,
			Body:        m.Body,
			Incoming:    m.Incoming,
			Timestamp:   m.Timestamp,
		})
	}

	grouped := grouper.Group(raw)
	out := make([]QueuedConversation, 0, len(grouped))
	for _, conv := range grouped {
		// 合并整个会话的内容标志；正文在这之后不再被引用
		flagSet := map[string]struct{}{}
		for _, m := range conv.Messages {
			for _, f := range risk.ContentFlags(m.Body) {
				flagSet[f] = struct{}{}
			}
		}
		flags := make([]string, 0, len(flagSet))
		for f := range flagSet {
			flags = append(flags, f)
		}

		_, known := c.lookupContact(ctx, conv.Counterpart)
		out = append(out, QueuedConversation{
			ID: uuid.New().String(),
			Upload: service.SmsConversationUpload{
				Phone:           conv.Counterpart,
				ThreadID:        conv.ThreadID,
				MessageCount:    len(conv.Messages),
				Direction:       string(conv.Direction),
				LatestTimestamp: conv.Latest.Format(time.RFC3339),
				KnownContact:    &known,
				InboundOnly:     conv.InboundOnly,
				ContentFlags:    flags,
			},
		})
	}
	return out
}

type contactEntry struct {
	name  string
	known bool
}

// lookupContact 带缓存的联系人解析；设备联系人 API 较慢，同一号码频繁出现
func (c *Collector) lookupContact(ctx context.Context, number string) (string, bool) {
	if v, ok := c.contacts.Get(number); ok {
		ent := v.(contactEntry)
		return ent.name, ent.known
	}
	name, known := c.source.LookupContact(ctx, number)
	c.contacts.Set(number, contactEntry{name: name, known: known})
	return name, known
}
