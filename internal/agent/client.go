package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lisafeets/callguard/internal/service"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// uploadResult 服务端响应里的 result 字段
type uploadResult struct {
	Accepted int `json:"accepted"`
}

type uploadResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Result  uploadResult `json:"result"`
}

// SyncClient 上传通道的 HTTP 客户端
type SyncClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewSyncClient 创建上传客户端
func NewSyncClient(serverURL, deviceToken string, timeout time.Duration, logger *zap.Logger) *SyncClient {
	client := resty.New().
		SetBaseURL(serverURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(deviceToken)

	return &SyncClient{
		httpClient: client,
		logger:     logger,
	}
}

// UploadCalls 上传一批通话记录，返回服务端接受的条数
func (c *SyncClient) UploadCalls(ctx context.Context, records []service.CallRecordUpload) (int, error) {
	return c.upload(ctx, "/activity/api/v1/calls",
		map[string]any{"records": records}, len(records))
}

// UploadConversations 上传一批短信会话
func (c *SyncClient) UploadConversations(ctx context.Context, conversations []service.SmsConversationUpload) (int, error) {
	return c.upload(ctx, "/activity/api/v1/sms",
		map[string]any{"conversations": conversations}, len(conversations))
}

func (c *SyncClient) upload(ctx context.Context, path string, body map[string]any, count int) (int, error) {
	var response uploadResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&response).
		Post(path)
	if err != nil {
		return 0, fmt.Errorf("upload to %s: %w", path, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		c.logger.Debug("Batch uploaded",
			zap.String("path", path),
			zap.Int("sent", count),
			zap.Int("accepted", response.Result.Accepted),
		)
		return response.Result.Accepted, nil
	case http.StatusBadRequest:
		// 服务端判定整批非法；重试不会有不同结果
		return 0, fmt.Errorf("upload to %s rejected: %s", path, response.Message)
	default:
		return 0, fmt.Errorf("upload to %s: unexpected status %d", path, resp.StatusCode())
	}
}
