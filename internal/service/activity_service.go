package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lisafeets/callguard/internal/domain"
	"github.com/lisafeets/callguard/internal/privacy"
	"github.com/lisafeets/callguard/internal/repository"
	"github.com/lisafeets/callguard/internal/risk"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 上传批次的字段边界
const (
	maxBatchSize      = 500
	minPhoneLength    = 4
	maxPhoneLength    = 20
	maxContactNameLen = 100
)

// ValidationError 整批拒绝时返回的校验错误，指明违规字段
type ValidationError struct {
	Index int    // 批次内下标
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %d: field %q %s", e.Index, e.Field, e.Msg)
}

// CallRecordUpload 通话记录上传载荷
// 原始号码只在传输中出现（TLS 保护）；持久化前由隐私层转为 hash。
type CallRecordUpload struct {
	Phone        string  `json:"phone"`
	ContactName  *string `json:"contact_name,omitempty"`
	Duration     int64   `json:"duration"`
	Direction    string  `json:"direction"`
	Timestamp    string  `json:"timestamp"` // RFC3339
	KnownContact *bool   `json:"known_contact"`
}

// SmsConversationUpload 短信会话上传载荷
// 正文永不离开设备；ContentFlags 由采集侧提取，随记录传输。
type SmsConversationUpload struct {
	Phone           string   `json:"phone"`
	ThreadID        string   `json:"thread_id"`
	MessageCount    int      `json:"message_count"`
	Direction       string   `json:"direction"`
	LatestTimestamp string   `json:"latest_timestamp"` // RFC3339
	KnownContact    *bool    `json:"known_contact"`
	InboundOnly     bool     `json:"inbound_only"`
	ContentFlags    []string `json:"content_flags,omitempty"`
}

// ActivityService 活动摄取服务
type ActivityService interface {
	IngestCalls(ctx context.Context, ownerID string, batch []CallRecordUpload) (int, error)
	IngestSMS(ctx context.Context, ownerID string, batch []SmsConversationUpload) (int, error)
}

type activityService struct {
	activityRepo repository.ActivityRepository
	analyzer     *PatternAnalyzer
	hasher       *privacy.Hasher
	encryptor    *privacy.Encryptor
	logger       *zap.Logger
	now          func() time.Time
}

// NewActivityService 创建活动摄取服务
func NewActivityService(
	activityRepo repository.ActivityRepository,
	analyzer *PatternAnalyzer,
	hasher *privacy.Hasher,
	encryptor *privacy.Encryptor,
	logger *zap.Logger,
) ActivityService {
	return &activityService{
		activityRepo: activityRepo,
		analyzer:     analyzer,
		hasher:       hasher,
		encryptor:    encryptor,
		logger:       logger,
		now:          time.Now,
	}
}

// IngestCalls 校验并持久化一批通话记录
// 校验失败整批拒绝（不做部分写入）；通过后 server 端重新评分（权威），
// 幂等写入，最后同步触发模式分析。
func (s *activityService) IngestCalls(ctx context.Context, ownerID string, batch []CallRecordUpload) (int, error) {
	if err := validateCallBatch(batch); err != nil {
		return 0, err
	}

	records := make([]*domain.CallRecord, 0, len(batch))
	for i, up := range batch {
		ts, _ := time.Parse(time.RFC3339, up.Timestamp) // 校验阶段已确认可解析

		score, factors := risk.ScoreCall(risk.CallInput{
			RawNumber:    up.Phone,
			Duration:     up.Duration,
			Incoming:     domain.CallDirection(up.Direction) == domain.CallIncoming,
			Timestamp:    ts,
			KnownContact: *up.KnownContact,
		})

		rec := &domain.CallRecord{
			ID:           uuid.New().String(),
			OwnerID:      ownerID,
			PhoneHash:    s.hasher.HashNumber(up.Phone),
			Duration:     up.Duration,
			Direction:    domain.CallDirection(up.Direction),
			Timestamp:    ts,
			KnownContact: *up.KnownContact,
			RiskScore:    score,
			RiskFactors:  factors,
			SyncState:    domain.SyncSynced,
		}

		if up.ContactName != nil && *up.ContactName != "" {
			enc, err := s.encryptor.Encrypt(*up.ContactName)
			if err != nil {
				// 加密失败只影响这一条记录：跳过并记录，不中断整批
				s.logger.Warn("Contact name encryption failed, skipping record",
					zap.String("owner_id", ownerID),
					zap.Int("index", i),
					zap.Error(err),
				)
				continue
			}
			rec.ContactName = &enc
		}

		records = append(records, rec)
	}

	inserted, err := s.activityRepo.InsertCallRecords(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("persist call batch: %w", err)
	}

	s.logger.Info("Call batch ingested",
		zap.String("owner_id", ownerID),
		zap.Int("received", len(batch)),
		zap.Int("inserted", inserted),
	)

	s.analyzer.Analyze(ctx, ownerID)
	return len(records), nil
}

// IngestSMS 校验并持久化一批短信会话
func (s *activityService) IngestSMS(ctx context.Context, ownerID string, batch []SmsConversationUpload) (int, error) {
	if err := validateSMSBatch(batch); err != nil {
		return 0, err
	}

	// 频率聚合在写入前查询一次，同一批内共用
	since := s.now().Add(-24 * time.Hour)
	recentUnknown, err := s.activityRepo.SumUnknownSMSMessagesSince(ctx, ownerID, since)
	if err != nil {
		s.logger.Warn("Frequency aggregate query failed, scoring without it",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		recentUnknown = 0
	}

	conversations := make([]*domain.SmsConversation, 0, len(batch))
	for _, up := range batch {
		ts, _ := time.Parse(time.RFC3339, up.LatestTimestamp)

		score, factors := risk.ScoreSMS(risk.SMSInput{
			RawNumber:          up.Phone,
			KnownContact:       *up.KnownContact,
			MessageCount:       up.MessageCount,
			InboundOnly:        up.InboundOnly,
			ContentFlags:       up.ContentFlags,
			RecentUnknownCount: recentUnknown,
		})

		conversations = append(conversations, &domain.SmsConversation{
			ID:               uuid.New().String(),
			OwnerID:          ownerID,
			PhoneHash:        s.hasher.HashNumber(up.Phone),
			ThreadID:         up.ThreadID,
			MessageCount:     up.MessageCount,
			Direction:        domain.ConversationDirection(up.Direction),
			LatestTimestamp:  ts,
			KnownContact:     *up.KnownContact,
			RiskScore:        score,
			ContentFlags:     up.ContentFlags,
			FrequencyPattern: factors,
			SyncState:        domain.SyncSynced,
		})
	}

	inserted, err := s.activityRepo.InsertConversations(ctx, conversations)
	if err != nil {
		return 0, fmt.Errorf("persist sms batch: %w", err)
	}

	s.logger.Info("SMS batch ingested",
		zap.String("owner_id", ownerID),
		zap.Int("received", len(batch)),
		zap.Int("inserted", inserted),
	)

	s.analyzer.Analyze(ctx, ownerID)
	return len(conversations), nil
}

func validateCallBatch(batch []CallRecordUpload) error {
	if len(batch) == 0 {
		return &ValidationError{Index: -1, Field: "records", Msg: "must not be empty"}
	}
	if len(batch) > maxBatchSize {
		return &ValidationError{Index: -1, Field: "records", Msg: "exceeds maximum batch size"}
	}
	for i, up := range batch {
		if l := len(up.Phone); l < minPhoneLength || l > maxPhoneLength {
			return &ValidationError{Index: i, Field: "phone", Msg: "length out of bounds"}
		}
		if up.Duration < 0 {
			return &ValidationError{Index: i, Field: "duration", Msg: "must be non-negative"}
		}
		if !domain.ValidCallDirection(domain.CallDirection(up.Direction)) {
			return &ValidationError{Index: i, Field: "direction", Msg: "is not a valid direction"}
		}
		if _, err := time.Parse(time.RFC3339, up.Timestamp); err != nil {
			return &ValidationError{Index: i, Field: "timestamp", Msg: "is not a valid RFC3339 timestamp"}
		}
		if up.KnownContact == nil {
			return &ValidationError{Index: i, Field: "known_contact", Msg: "is required"}
		}
		if up.ContactName != nil && len(*up.ContactName) > maxContactNameLen {
			return &ValidationError{Index: i, Field: "contact_name", Msg: "exceeds maximum length"}
		}
	}
	return nil
}

func validateSMSBatch(batch []SmsConversationUpload) error {
	if len(batch) == 0 {
		return &ValidationError{Index: -1, Field: "conversations", Msg: "must not be empty"}
	}
	if len(batch) > maxBatchSize {
		return &ValidationError{Index: -1, Field: "conversations", Msg: "exceeds maximum batch size"}
	}
	for i, up := range batch {
		if l := len(up.Phone); l < minPhoneLength || l > maxPhoneLength {
			return &ValidationError{Index: i, Field: "phone", Msg: "length out of bounds"}
		}
		if up.ThreadID == "" {
			return &ValidationError{Index: i, Field: "thread_id", Msg: "is required"}
		}
		if up.MessageCount < 1 {
			return &ValidationError{Index: i, Field: "message_count", Msg: "must be at least 1"}
		}
		switch domain.ConversationDirection(up.Direction) {
		case domain.ConversationIncoming, domain.ConversationOutgoing, domain.ConversationMixed:
		default:
			return &ValidationError{Index: i, Field: "direction", Msg: "is not a valid direction"}
		}
		if _, err := time.Parse(time.RFC3339, up.LatestTimestamp); err != nil {
			return &ValidationError{Index: i, Field: "latest_timestamp", Msg: "is not a valid RFC3339 timestamp"}
		}
		if up.KnownContact == nil {
			return &ValidationError{Index: i, Field: "known_contact", Msg: "is required"}
		}
	}
	return nil
}
