// Package agent runs on the monitored device: it scans the call and SMS
// logs, extracts only metadata (message bodies are reduced to content
// flags and discarded), queues records locally, and uploads batches to
// the server.
package agent

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied 设备拒绝读取通话/短信日志
// 扫描层把它视为"本轮没有数据"，不中断采集循环。
var ErrPermissionDenied = errors.New("agent: log access permission denied")

// ScannedCall 从设备通话日志读到的一条原始记录
type ScannedCall struct {
	Number    string
	Duration  int64
	Direction string // incoming | outgoing | missed
	Timestamp time.Time
}

// ScannedMessage 从设备短信日志读到的一条原始消息
// Body 只在进程内存在：内容标志提取后立即丢弃，不落盘、不上传。
type ScannedMessage struct {
	Number    string
	ThreadID  string
	Body      string
	Incoming  bool
	Timestamp time.Time
}

// ActivitySource 设备日志读取接口（平台相关的采集实现在这后面）
type ActivitySource interface {
	ScanCalls(ctx context.Context, since time.Time) ([]ScannedCall, error)
	ScanMessages(ctx context.Context, since time.Time) ([]ScannedMessage, error)
	// LookupContact 返回号码对应的联系人名；未知号码返回 ("", false)。
	LookupContact(ctx context.Context, number string) (string, bool)
}
